// Package database provides the SQLite connection used by the playout and
// audit repositories.
//
// The connection runs in WAL mode with a busy timeout and foreign keys on.
// Schema changes come from versioned up/down migration files that the
// migrations package embeds into the binary:
//
//	db, err := database.Open(database.FromConfig(cfg.Database))
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns are nullable or carry a default, and
// every .up.sql has a matching .down.sql.
package database
