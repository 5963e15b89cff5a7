package main

import (
	"fmt"

	"github.com/OFFIS-RIT/storygraph/internal/migrations"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down]",
	Short:     "Apply or revert the database migrations",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Postgres.URL == "" {
			return fmt.Errorf("DATABASE_URL is not set")
		}
		direction := migrations.Up
		if len(args) == 1 && args[0] == "down" {
			direction = migrations.Down
		}
		if err := migrations.Run(cfg.Postgres.URL, cfg.Postgres.MigrationsDir, direction); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
