// Package migrations embeds SQL migration files into the binary.
//
// The playout server runs migrations without the SQL files present on the
// filesystem; they're compiled into the executable.
package migrations

import (
	"embed"

	"github.com/tv2/tv-automation-server-core-sub000/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	// Register embedded migrations with the database package.
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "." // Files are at root of embedded FS
}
