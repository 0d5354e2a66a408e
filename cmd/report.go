package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/clubmetrics/districtsync/internal/report"
)

var (
	reportPeriod string
	reportXLSX   string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Build a reconciliation trend report for a target period",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		rep, err := report.Build(ctx, env.Jobs, reportPeriod)
		if err != nil {
			return err
		}

		if reportXLSX != "" {
			if err := report.WriteXLSX(rep, reportXLSX); err != nil {
				return err
			}
			fmt.Printf("report written to %s\n", reportXLSX)
			return nil
		}

		report.RenderText(os.Stdout, rep)
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportPeriod, "period", "", "target period YYYY-MM-DD")
	reportCmd.Flags().StringVar(&reportXLSX, "xlsx", "", "write an xlsx workbook instead of terminal output")
	_ = reportCmd.MarkFlagRequired("period")
	rootCmd.AddCommand(reportCmd)
}
