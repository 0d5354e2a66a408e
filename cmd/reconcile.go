package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/clubmetrics/districtsync/internal/jobstore"
	"github.com/clubmetrics/districtsync/internal/model"
	"github.com/clubmetrics/districtsync/internal/reconcile"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run and inspect month-end reconciliation",
}

var reconcileRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the periodic reconciliation loop until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		rcfg, err := env.Reconcile.Load(ctx)
		if err != nil {
			return err
		}

		runner := reconcile.NewRunner(env.Jobs, env.Snapshots, newFetcher(), reconcile.RunnerOptions{
			Workers: cfg.Reconciliation.Workers,
		})
		runner.Run(ctx, time.Duration(rcfg.CheckFrequencyHours)*time.Hour)
		return nil
	},
}

var reconcileOnceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single check cycle for every active job",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		runner := reconcile.NewRunner(env.Jobs, env.Snapshots, newFetcher(), reconcile.RunnerOptions{
			Workers: cfg.Reconciliation.Workers,
		})
		return runner.RunAll(ctx)
	},
}

var (
	jobsStatus   string
	jobsDistrict string
	jobsPeriod   string
	jobsActive   bool
	jobsLimit    int
)

var reconcileJobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List reconciliation jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		jobs, err := env.Jobs.ListJobs(ctx, jobstore.JobFilter{
			Status:       model.JobPhase(jobsStatus),
			DistrictID:   jobsDistrict,
			TargetPeriod: jobsPeriod,
			ActiveOnly:   jobsActive,
			Limit:        jobsLimit,
		})
		if err != nil {
			return err
		}

		fmt.Printf("%-38s %-10s %-12s %-12s %-10s %6s %4s %9s\n",
			"ID", "DISTRICT", "PERIOD", "PHASE", "OUTCOME", "STABLE", "EXT", "PROGRESS")
		for i := range jobs {
			j := &jobs[i]
			phase := fmt.Sprintf("%-12s", string(j.Status))
			switch j.Status {
			case model.JobPhaseCompleted:
				phase = color.GreenString(phase)
			case model.JobPhaseFailed:
				phase = color.RedString(phase)
			case model.JobPhaseStabilizing:
				phase = color.YellowString(phase)
			}
			fmt.Printf("%-38s %-10s %-12s %s %-10s %6d %4d %8.1f%%\n",
				j.ID, j.DistrictID, j.TargetPeriod, phase, string(j.Outcome()),
				j.ConsecutiveStableDays, j.ExtensionCount,
				j.Progress.CompletionPercentage,
			)
		}
		return nil
	},
}

var reconcileTimelineCmd = &cobra.Command{
	Use:   "timeline <job-id>",
	Short: "Print a job's check history, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		job, err := env.Jobs.GetJob(ctx, args[0])
		if err != nil {
			return err
		}
		if job == nil {
			return eris.Errorf("no job %s", args[0])
		}

		entries, err := env.Jobs.ListTimeline(ctx, job.ID)
		if err != nil {
			return err
		}

		fmt.Printf("job %s: district %s, period %s, phase %s\n\n",
			job.ID, job.DistrictID, job.TargetPeriod, job.Status)
		for _, e := range entries {
			marker := " "
			if e.IsSignificant {
				marker = color.RedString("!")
			} else if e.CacheUpdated {
				marker = color.YellowString("~")
			}
			fmt.Printf("%s %s source=%s significant=%t updated=%t",
				marker, e.Date.Format("2006-01-02 15:04"), e.SourceDataDate,
				e.IsSignificant, e.CacheUpdated)
			if e.Notes != "" {
				fmt.Printf(" (%s)", e.Notes)
			}
			fmt.Println()
		}
		return nil
	},
}

var reconcileConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show and change the reconciliation configuration",
}

var reconcileConfigShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective reconciliation configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		rcfg, err := env.Reconcile.Load(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rcfg)
	},
}

var (
	setMaxDays          int
	setStabilityDays    int
	setCheckHours       int
	setMembershipPct    float64
	setClubCount        int
	setDistinguishedPct float64
	setAutoExtension    bool
	setMaxExtDays       int
	setExtIncrement     int
	setExtWindow        int
	setChangedBy        string
	setReason           string
)

var reconcileConfigSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update reconciliation configuration fields",
	Long:  "Updates only the fields whose flags are given, validates the result, and appends an audit entry. Invalid configurations are rejected whole; nothing is clamped.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		rcfg, err := env.Reconcile.Load(ctx)
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		if flags.Changed("max-days") {
			rcfg.MaxReconciliationDays = setMaxDays
		}
		if flags.Changed("stability-days") {
			rcfg.StabilityPeriodDays = setStabilityDays
		}
		if flags.Changed("check-hours") {
			rcfg.CheckFrequencyHours = setCheckHours
		}
		if flags.Changed("membership-pct") {
			rcfg.Thresholds.MembershipPercent = setMembershipPct
		}
		if flags.Changed("club-count") {
			rcfg.Thresholds.ClubCountAbsolute = setClubCount
		}
		if flags.Changed("distinguished-pct") {
			rcfg.Thresholds.DistinguishedPercent = setDistinguishedPct
		}
		if flags.Changed("auto-extension") {
			rcfg.AutoExtensionEnabled = setAutoExtension
		}
		if flags.Changed("max-extension-days") {
			rcfg.MaxExtensionDays = setMaxExtDays
		}
		if flags.Changed("extension-increment-days") {
			rcfg.ExtensionIncrementDays = setExtIncrement
		}
		if flags.Changed("extension-window-days") {
			rcfg.ExtensionTriggerWindowDays = setExtWindow
		}

		if err := env.Reconcile.Update(ctx, rcfg, setChangedBy, setReason); err != nil {
			return err
		}
		fmt.Println(color.GreenString("configuration updated"))
		return nil
	},
}

var auditLimit int

var reconcileConfigAuditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Print configuration changes, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		entries, err := env.Reconcile.Audit(ctx, auditLimit)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("%s by %q: %s\n", e.ChangedAt.Format(time.RFC3339), e.ChangedBy, e.Reason)
		}
		return nil
	},
}

func init() {
	reconcileJobsCmd.Flags().StringVar(&jobsStatus, "status", "", "filter by phase")
	reconcileJobsCmd.Flags().StringVar(&jobsDistrict, "district", "", "filter by district")
	reconcileJobsCmd.Flags().StringVar(&jobsPeriod, "period", "", "filter by target period")
	reconcileJobsCmd.Flags().BoolVar(&jobsActive, "active", false, "active jobs only")
	reconcileJobsCmd.Flags().IntVar(&jobsLimit, "limit", 0, "maximum jobs to list")

	reconcileConfigSetCmd.Flags().IntVar(&setMaxDays, "max-days", 0, "max reconciliation days")
	reconcileConfigSetCmd.Flags().IntVar(&setStabilityDays, "stability-days", 0, "consecutive stable days required")
	reconcileConfigSetCmd.Flags().IntVar(&setCheckHours, "check-hours", 0, "hours between check cycles")
	reconcileConfigSetCmd.Flags().Float64Var(&setMembershipPct, "membership-pct", 0, "membership change significance threshold (percent)")
	reconcileConfigSetCmd.Flags().IntVar(&setClubCount, "club-count", 0, "club count change significance threshold (absolute)")
	reconcileConfigSetCmd.Flags().Float64Var(&setDistinguishedPct, "distinguished-pct", 0, "distinguished change significance threshold (percent)")
	reconcileConfigSetCmd.Flags().BoolVar(&setAutoExtension, "auto-extension", false, "enable automatic extensions")
	reconcileConfigSetCmd.Flags().IntVar(&setMaxExtDays, "max-extension-days", 0, "total extension days cap")
	reconcileConfigSetCmd.Flags().IntVar(&setExtIncrement, "extension-increment-days", 0, "days added per extension")
	reconcileConfigSetCmd.Flags().IntVar(&setExtWindow, "extension-window-days", 0, "days before deadline that trigger extension")
	reconcileConfigSetCmd.Flags().StringVar(&setChangedBy, "by", "", "who is making the change")
	reconcileConfigSetCmd.Flags().StringVar(&setReason, "reason", "", "why the change is being made")

	reconcileConfigAuditCmd.Flags().IntVar(&auditLimit, "limit", 20, "maximum audit entries")

	reconcileConfigCmd.AddCommand(reconcileConfigShowCmd, reconcileConfigSetCmd, reconcileConfigAuditCmd)
	reconcileCmd.AddCommand(reconcileRunCmd, reconcileOnceCmd, reconcileJobsCmd, reconcileTimelineCmd, reconcileConfigCmd)
	rootCmd.AddCommand(reconcileCmd)
}
