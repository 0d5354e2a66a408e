package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clubmetrics/districtsync/internal/model"
	"github.com/clubmetrics/districtsync/internal/reconcile"
	"github.com/clubmetrics/districtsync/internal/snapshot"
)

var (
	fetchDate        string
	fetchClosing     bool
	fetchSkipPointer bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch district statistics and write a snapshot",
	Long:  "Fetches all districts' statistics from the upstream dashboard for a reporting date and writes them as a new snapshot version. With --closing, late month-end data is written onto the original period's version and reconciliation jobs are started.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		asOf := time.Now().UTC()
		if fetchDate != "" {
			var err error
			asOf, err = time.Parse("2006-01-02", fetchDate)
			if err != nil {
				return eris.Wrapf(err, "invalid --date %q", fetchDate)
			}
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := newFetcher().Fetch(ctx, asOf)
		if err != nil {
			return err
		}
		if res == nil {
			return eris.Errorf("upstream has no data for %s", asOf.Format("2006-01-02"))
		}

		status := model.SnapshotStatusSuccess
		if len(res.Errors) > 0 {
			status = model.SnapshotStatusPartial
		}

		snap := &model.Snapshot{
			SnapshotID:         res.DataAsOfDate,
			Status:             status,
			SchemaVersion:      model.CurrentSchemaVersion,
			CalculationVersion: model.CurrentCalculationVersion,
			RankingVersion:     model.CurrentRankingVersion,
			Errors:             res.Errors,
			Metadata: model.FetchMetadata{
				Source:       res.Source,
				FetchedAt:    res.FetchedAt,
				DataAsOfDate: res.DataAsOfDate,
			},
			Districts: res.Districts,
		}

		opts := snapshot.WriteOptions{SkipPointerUpdate: fetchSkipPointer}

		if fetchClosing {
			dataDate, err := time.Parse("2006-01-02", res.DataAsOfDate)
			if err != nil {
				return eris.Wrapf(err, "upstream returned invalid as-of date %q", res.DataAsOfDate)
			}
			logical := snapshot.LastDayOfMonth(dataDate).Format("2006-01-02")
			collection := time.Now().UTC().Format("2006-01-02")

			decision, err := env.Snapshots.ShouldOverwriteClosingPeriodSnapshot(ctx, logical, collection)
			if err != nil {
				return err
			}
			if !decision.ShouldUpdate {
				fmt.Printf("%s %s\n", color.YellowString("skipped:"), decision.Reason)
				return nil
			}

			snap.Metadata.IsClosingPeriodData = true
			snap.Metadata.CollectionDate = collection
			snap.Metadata.LogicalDate = logical
			snap.SnapshotID = logical
			opts.OverrideVersionDate = logical
		}

		manifest, err := env.Snapshots.WriteSnapshot(ctx, snap, nil, opts)
		if err != nil {
			return err
		}

		fmt.Printf("%s version %s: %d districts (%d failed), status %s\n",
			color.GreenString("snapshot written"),
			manifest.SnapshotID, manifest.TotalDistricts, manifest.FailedDistricts, snap.Status,
		)

		if fetchClosing {
			rcfg, err := env.Reconcile.Load(ctx)
			if err != nil {
				return err
			}
			runner := reconcile.NewRunner(env.Jobs, env.Snapshots, newFetcher(), reconcile.RunnerOptions{
				Workers: cfg.Reconciliation.Workers,
			})
			created, err := runner.EnsureJobs(ctx, snap, rcfg)
			if err != nil {
				return err
			}
			if created > 0 {
				fmt.Printf("started %d reconciliation jobs for %s\n", created, snap.EffectiveDate())
			}
			zap.L().Info("closing-period fetch complete",
				zap.String("version", snap.EffectiveDate()),
				zap.Int("jobs_created", created),
			)
		}

		return nil
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchDate, "date", "", "reporting date YYYY-MM-DD (default today)")
	fetchCmd.Flags().BoolVar(&fetchClosing, "closing", false, "treat data as closing-period data for the previous month")
	fetchCmd.Flags().BoolVar(&fetchSkipPointer, "skip-pointer", false, "do not advance the current pointer")
	rootCmd.AddCommand(fetchCmd)
}
