package cmd

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// NewRootCmd loads .env before any subcommand is built, so flag defaults
// taken from the environment see its values.
func NewRootCmd() *cobra.Command {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:          "do",
		Short:        "Development and operator tools for the accounts service",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(DevCmd())
	rootCmd.AddCommand(MigrateCmd())
	rootCmd.AddCommand(StatsCmd())
	rootCmd.AddCommand(UsersCmd())

	return rootCmd
}
