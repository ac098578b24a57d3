package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"github.com/templui/accounts/internal/repository"
	"github.com/templui/accounts/internal/service"
)

func addDBFlags(c *cobra.Command, flags *dbFlags) {
	c.PersistentFlags().StringVar(&flags.driver, "driver", envOr("DB_DRIVER", "sqlite"), "database driver (sqlite or pgx)")
	c.PersistentFlags().StringVar(&flags.connection, "db", envOr("DB_CONNECTION", "./data/accounts.db"), "database connection string")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func StatsCmd() *cobra.Command {
	flags := &dbFlags{}
	var days int
	var timezone string

	c := &cobra.Command{
		Use:   "stats",
		Short: "Print user and sign-in statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			loc := time.Local
			if timezone != "" {
				l, err := time.LoadLocation(timezone)
				if err != nil {
					return fmt.Errorf("invalid timezone %q: %w", timezone, err)
				}
				loc = l
			}

			return flags.withDB(cmd.Context(), func(ctx context.Context, database *sqlx.DB) error {
				stats := service.NewStatsService(repository.NewStore(database), loc)

				total, err := stats.TotalUsers(ctx)
				if err != nil {
					return err
				}
				today, err := stats.ActiveToday(ctx)
				if err != nil {
					return err
				}
				avg, err := stats.AvgActiveLastNDays(ctx, days)
				if err != nil {
					return err
				}

				fmt.Printf("total users:        %d\n", total)
				fmt.Printf("active today:       %d\n", today)
				fmt.Printf("avg active (%2d d):  %.2f\n", days, avg)
				return nil
			})
		},
	}

	addDBFlags(c, flags)
	c.Flags().IntVar(&days, "days", 7, "window for the daily active average")
	c.Flags().StringVar(&timezone, "tz", envOr("STATS_TIMEZONE", ""), "IANA timezone for day boundaries")
	return c
}

func UsersCmd() *cobra.Command {
	flags := &dbFlags{}

	c := &cobra.Command{
		Use:   "users",
		Short: "List users that have signed in",
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.withDB(cmd.Context(), func(ctx context.Context, database *sqlx.DB) error {
				users, err := repository.NewStore(database).Users.ListWithSignins(ctx)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "EMAIL\tNICKNAME\tKIND\tACTIVATED\tSIGNINS\tLAST SIGNIN")
				for _, u := range users {
					fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%d\t%s\n",
						u.Email, u.Nickname, u.Kind(), u.IsActivated(), u.SigninCount,
						u.LastSigninAt.Local().Format(time.DateTime))
				}
				return w.Flush()
			})
		},
	}

	addDBFlags(c, flags)
	return c
}
