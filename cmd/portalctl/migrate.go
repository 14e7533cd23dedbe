package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"portal/internal/adapters/storage"
	"portal/internal/config"
)

func newMigrateCmd(cfg config.Config) *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations to the local database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := storage.Open(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()
			before, err := storage.SchemaVersion(db)
			if err != nil {
				return err
			}
			if err := storage.MigrateDB(db); err != nil {
				return fmt.Errorf("migrate %s: %w", dbPath, err)
			}
			after, err := storage.SchemaVersion(db)
			if err != nil {
				return err
			}
			if after == before {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is up to date (schema %d)\n", dbPath, after)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s migrated from schema %d to %d\n", dbPath, before, after)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", cfg.DBPath, "sqlite database path")
	return cmd
}
