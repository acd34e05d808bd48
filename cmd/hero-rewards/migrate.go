package main

import (
	"github.com/spf13/cobra"

	"github.com/aimd54/hero-rewards/internal/repository"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long:  `Apply every pending embedded SQL migration to the configured PostgreSQL database.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		return repository.RunMigrations(cfg.Database.Postgres.URL(), log.Component("migrate"))
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
