package cmd

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"github.com/templui/accounts/internal/db"
)

func MigrateCmd() *cobra.Command {
	flags := &dbFlags{}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}
	addDBFlags(migrateCmd, flags)

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.withDB(cmd.Context(), func(ctx context.Context, database *sqlx.DB) error {
				return db.RunMigrations(ctx, database.DB, flags.driver)
			})
		},
	})

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.withDB(cmd.Context(), func(ctx context.Context, database *sqlx.DB) error {
				return db.MigrateDown(ctx, database.DB, flags.driver)
			})
		},
	})

	return migrateCmd
}
