package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/clubmetrics/districtsync/internal/model"
	"github.com/clubmetrics/districtsync/internal/snapshot"
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "Inspect stored snapshot versions",
}

var (
	snapListStatus string
	snapListFrom   string
	snapListTo     string
	snapListLimit  int
)

var snapshotsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshot versions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		infos, err := env.Snapshots.ListSnapshots(ctx, snapshot.ListFilter{
			Status: model.SnapshotStatus(snapListStatus),
			From:   snapListFrom,
			To:     snapListTo,
			Limit:  snapListLimit,
		})
		if err != nil {
			return err
		}

		fmt.Printf("%-12s %-9s %9s %7s %8s %7s\n", "VERSION", "STATUS", "DISTRICTS", "FAILED", "CLOSING", "LEGACY")
		for _, info := range infos {
			status := string(info.Status)
			switch info.Status {
			case model.SnapshotStatusSuccess:
				status = color.GreenString(status)
			case model.SnapshotStatusPartial:
				status = color.YellowString(status)
			case model.SnapshotStatusFailed:
				status = color.RedString(status)
			}
			fmt.Printf("%-12s %-18s %9d %7d %8t %7t\n",
				info.SnapshotID, status, info.TotalDistricts, info.FailedDistricts,
				info.IsClosingPeriodData, info.Legacy,
			)
		}
		return nil
	},
}

var snapshotsShowCmd = &cobra.Command{
	Use:   "show <version>",
	Short: "Print a snapshot version as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		snap, err := env.Snapshots.ReadSnapshot(ctx, args[0])
		if err != nil {
			return err
		}
		if snap == nil {
			return eris.Errorf("no snapshot at version %s", args[0])
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	},
}

var snapshotsLatestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Print the latest successful snapshot as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		snap, err := env.Snapshots.GetLatestSuccessful(ctx)
		if err != nil {
			return err
		}
		if snap == nil {
			return eris.New("no successful snapshot exists")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	},
}

var snapshotsVerifyCmd = &cobra.Command{
	Use:   "verify <version>",
	Short: "Check a version's compatibility and manifest consistency",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		versionID := args[0]
		compat, err := env.Snapshots.CheckVersionCompatibility(ctx, versionID)
		if err != nil {
			return err
		}
		if compat == nil {
			return eris.Errorf("no snapshot at version %s", versionID)
		}

		if compat.IsCompatible {
			fmt.Println(color.GreenString("compatible"))
		} else {
			fmt.Println(color.RedString("incompatible"))
		}
		for _, w := range compat.Warnings {
			fmt.Printf("  %s %s\n", color.YellowString("warning:"), w)
		}

		manifest, err := env.Snapshots.ReadManifest(ctx, versionID)
		if err != nil {
			return err
		}
		if manifest == nil {
			fmt.Println("legacy single-blob snapshot, no manifest")
			return nil
		}
		if !manifest.WriteComplete {
			fmt.Println(color.RedString("manifest write is incomplete"))
		}
		fmt.Printf("%d districts, %d successful, %d failed\n",
			manifest.TotalDistricts, manifest.SuccessfulDistricts, manifest.FailedDistricts)
		return nil
	},
}

func init() {
	snapshotsListCmd.Flags().StringVar(&snapListStatus, "status", "", "filter by status (success|partial|failed)")
	snapshotsListCmd.Flags().StringVar(&snapListFrom, "from", "", "inclusive lower version date bound")
	snapshotsListCmd.Flags().StringVar(&snapListTo, "to", "", "inclusive upper version date bound")
	snapshotsListCmd.Flags().IntVar(&snapListLimit, "limit", 0, "maximum versions to list")

	snapshotsCmd.AddCommand(snapshotsListCmd, snapshotsShowCmd, snapshotsLatestCmd, snapshotsVerifyCmd)
	rootCmd.AddCommand(snapshotsCmd)
}
