package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clubmetrics/districtsync/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "districtsync",
	Short: "District statistics snapshot and reconciliation tool",
	Long:  "Fetches district statistics from the upstream dashboard, stores them as versioned snapshots, and reconciles month-end data against late upstream revisions.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
