package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aimd54/hero-rewards/internal/config"
	"github.com/aimd54/hero-rewards/pkg/logger"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "hero-rewards",
	Short: "Hero grade progression and rewards engine",
	Long: `hero-rewards tracks how much food each consumer has saved, promotes them
through hero grades and tiers, and awards the badges and benefits attached
to each level.

Commands:
  serve        Run the HTTP API and the reconciliation scheduler
  migrate      Apply database migrations
  grade-table  Inspect or replace the active grade table`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: ./config.yaml)")
}

// loadConfig reads configuration and builds the root logger.
func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	log := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	return cfg, log, nil
}
