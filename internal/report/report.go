// Package report builds reconciliation trend reports from job timelines
// and renders them to the terminal or an xlsx workbook.
package report

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/clubmetrics/districtsync/internal/jobstore"
	"github.com/clubmetrics/districtsync/internal/model"
	"github.com/clubmetrics/districtsync/internal/reconcile"
)

// DistrictTrend summarizes one district's reconciliation history for a
// target period.
type DistrictTrend struct {
	DistrictID         string
	Phase              model.JobPhase
	Outcome            model.JobOutcome
	Checks             int
	SignificantChanges int
	SnapshotUpdates    int
	StableDays         int
	Extensions         int
	ExtensionDays      int
	LastMembership     int
	LastClubCount      int
	LastDistinguished  int
	Metrics            model.ChangeMetrics
}

// Report is the reconciliation trend view for one target period.
type Report struct {
	TargetPeriod string
	Districts    []DistrictTrend
}

// Totals aggregates counts across all districts in the report.
func (r *Report) Totals() (checks, significant, updates int) {
	for _, d := range r.Districts {
		checks += d.Checks
		significant += d.SignificantChanges
		updates += d.SnapshotUpdates
	}
	return checks, significant, updates
}

// Build assembles the trend report for a target period from stored jobs
// and their timelines. Districts are sorted by descending overall
// significance so the most volatile districts lead.
func Build(ctx context.Context, jobs jobstore.Store, targetPeriod string) (*Report, error) {
	list, err := jobs.ListJobs(ctx, jobstore.JobFilter{TargetPeriod: targetPeriod})
	if err != nil {
		return nil, err
	}

	rep := &Report{TargetPeriod: targetPeriod}
	for i := range list {
		job := &list[i]
		entries, err := jobs.ListTimeline(ctx, job.ID)
		if err != nil {
			return nil, err
		}
		rep.Districts = append(rep.Districts, districtTrend(job, entries))
	}

	sort.Slice(rep.Districts, func(i, j int) bool {
		a, b := rep.Districts[i], rep.Districts[j]
		if a.Metrics.OverallSignificance != b.Metrics.OverallSignificance {
			return a.Metrics.OverallSignificance > b.Metrics.OverallSignificance
		}
		return a.DistrictID < b.DistrictID
	})
	return rep, nil
}

func districtTrend(job *model.ReconciliationJob, entries []model.TimelineEntry) DistrictTrend {
	t := DistrictTrend{
		DistrictID:    job.DistrictID,
		Phase:         job.Status,
		Outcome:       job.Outcome(),
		Checks:        len(entries),
		StableDays:    job.ConsecutiveStableDays,
		Extensions:    job.ExtensionCount,
		ExtensionDays: job.ExtensionDaysApplied,
	}

	// Metrics come from the most recent cycle that observed real change.
	var lastChanges *model.DataChanges
	for _, e := range entries {
		if e.IsSignificant {
			t.SignificantChanges++
		}
		if e.CacheUpdated {
			t.SnapshotUpdates++
		}
		if e.Changes != nil && e.Changes.HasChanges {
			lastChanges = e.Changes
		}
	}
	t.Metrics = reconcile.CalculateChangeMetrics(lastChanges)

	if job.LastStats != nil {
		t.LastMembership = job.LastStats.MembershipTotal
		t.LastClubCount = job.LastStats.ClubCount
		t.LastDistinguished = job.LastStats.DistinguishedClubs.Total()
	}
	return t
}

// RenderText writes the report as a colored table.
func RenderText(w io.Writer, rep *Report) {
	bold := color.New(color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	p := message.NewPrinter(language.English)

	fmt.Fprintf(w, "%s %s\n\n", bold("Reconciliation trend for"), bold(rep.TargetPeriod))
	fmt.Fprintf(w, "%-10s %-12s %-10s %7s %7s %8s %5s %10s %7s %8s\n",
		"DISTRICT", "PHASE", "OUTCOME", "CHECKS", "SIGNIF", "UPDATES", "EXT", "MEMBERS", "CLUBS", "OVERALL")

	for _, d := range rep.Districts {
		// Pad before coloring so escape codes do not skew the column.
		phase := fmt.Sprintf("%-12s", string(d.Phase))
		switch d.Phase {
		case model.JobPhaseCompleted:
			phase = green(phase)
		case model.JobPhaseFailed:
			phase = red(phase)
		case model.JobPhaseStabilizing:
			phase = yellow(phase)
		}
		fmt.Fprintf(w, "%-10s %s %-10s %7d %7d %8d %5d %10s %7d %8.2f\n",
			d.DistrictID, phase, string(d.Outcome),
			d.Checks, d.SignificantChanges, d.SnapshotUpdates, d.Extensions,
			p.Sprintf("%d", d.LastMembership), d.LastClubCount,
			d.Metrics.OverallSignificance,
		)
	}

	checks, significant, updates := rep.Totals()
	fmt.Fprintf(w, "\n%d districts, %s checks, %s significant, %s snapshot updates\n",
		len(rep.Districts),
		p.Sprintf("%d", checks), p.Sprintf("%d", significant), p.Sprintf("%d", updates),
	)
}
