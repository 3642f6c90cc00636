package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tv2/tv-automation-server-core-sub000/internal/infrastructure/config"
	"github.com/tv2/tv-automation-server-core-sub000/internal/infrastructure/database"

	_ "github.com/tv2/tv-automation-server-core-sub000/migrations"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(getConfigPath(*configPath), func(db *database.DB) error {
				return migrateUp(cmd.Context(), db, cmd.OutOrStdout())
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(getConfigPath(*configPath), func(db *database.DB) error {
				return migrateDown(cmd.Context(), db, cmd.OutOrStdout())
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List applied and pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(getConfigPath(*configPath), func(db *database.DB) error {
				return migrateStatus(cmd.Context(), db, cmd.OutOrStdout())
			})
		},
	})
	return cmd
}

// withDatabase opens the configured database for the duration of fn.
func withDatabase(configPath string, fn func(db *database.DB) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	db, err := database.Open(database.FromConfig(cfg.Database))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()
	return fn(db)
}

func migrateUp(ctx context.Context, db *database.DB, out io.Writer) error {
	applied, err := db.Migrate(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Fprintln(out, "no pending migrations")
		return nil
	}
	for _, v := range applied {
		fmt.Fprintf(out, "applied %s\n", v)
	}
	return nil
}

func migrateDown(ctx context.Context, db *database.DB, out io.Writer) error {
	version, err := db.MigrateDown(ctx)
	if err != nil {
		return err
	}
	if version == "" {
		fmt.Fprintln(out, "nothing to roll back")
		return nil
	}
	fmt.Fprintf(out, "rolled back %s\n", version)
	return nil
}

func migrateStatus(ctx context.Context, db *database.DB, out io.Writer) error {
	applied, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		return err
	}
	for _, m := range applied {
		fmt.Fprintf(out, "applied  %s  %s\n", m.Version, m.AppliedAt.Format("2006-01-02 15:04:05"))
	}
	for _, m := range pending {
		fmt.Fprintf(out, "pending  %s  %s\n", m.Version, m.Name)
	}
	return nil
}
