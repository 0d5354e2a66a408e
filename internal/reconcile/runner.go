package reconcile

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/clubmetrics/districtsync/internal/jobstore"
	"github.com/clubmetrics/districtsync/internal/model"
	"github.com/clubmetrics/districtsync/internal/snapshot"
)

// StatsSource fetches current district statistics for a period. The
// upstream collaborator is opaque here; it already carries its own
// retry-with-backoff behavior.
type StatsSource interface {
	FetchStats(ctx context.Context, asOf time.Time) (map[string]model.DistrictStatistics, string, error)
}

// SnapshotUpdater is the slice of the snapshot store the runner needs:
// reading the target period's data and overwriting it in place when the
// closing-period arbitration allows.
type SnapshotUpdater interface {
	ReadSnapshot(ctx context.Context, versionID string) (*model.Snapshot, error)
	ShouldOverwriteClosingPeriodSnapshot(ctx context.Context, versionID, newCollectionDate string) (*snapshot.OverwriteDecision, error)
	OverwriteDistrictRecord(ctx context.Context, versionID, districtID string, stats model.DistrictStatistics, reason string) error
}

// Runner drives the reconciliation state machine: one independent check
// loop per active job, each cycle a single logical transaction
// (fetch, detect, decide, persist).
type Runner struct {
	jobs    jobstore.Store
	snaps   SnapshotUpdater
	source  StatsSource
	workers int
	now     func() time.Time
}

// RunnerOptions tunes the runner.
type RunnerOptions struct {
	// Workers bounds how many job cycles run in parallel per tick.
	Workers int
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// NewRunner creates a reconciliation runner.
func NewRunner(jobs jobstore.Store, snaps SnapshotUpdater, source StatsSource, opts RunnerOptions) *Runner {
	w := opts.Workers
	if w <= 0 {
		w = 4
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Runner{jobs: jobs, snaps: snaps, source: source, workers: w, now: now}
}

// EnsureJobs creates a monitoring job for every district in the snapshot
// that does not already have an active job for the target period. Called
// when a new snapshot for the period first becomes current.
func (r *Runner) EnsureJobs(ctx context.Context, snap *model.Snapshot, cfg model.ReconciliationConfig) (int, error) {
	targetPeriod := snap.EffectiveDate()
	created := 0
	for districtID, stats := range snap.Districts {
		existing, err := r.jobs.FindActiveJob(ctx, districtID, targetPeriod)
		if err != nil {
			return created, err
		}
		if existing != nil {
			continue
		}
		job := NewJob(districtID, targetPeriod, cfg, r.now())
		job.LastStats = &stats
		if err := r.jobs.CreateJob(ctx, job); err != nil {
			return created, err
		}
		created++
	}
	if created > 0 {
		zap.L().Info("reconciliation jobs created",
			zap.String("component", "reconcile.runner"),
			zap.String("target_period", targetPeriod),
			zap.Int("count", created),
		)
	}
	return created, nil
}

// RunCycle executes one check cycle for a job. The persisted job state
// changes only if the whole cycle succeeds: a fetch or detection failure
// leaves the job untouched for the next scheduled attempt; there is no
// automatic retry within a cycle.
func (r *Runner) RunCycle(ctx context.Context, job *model.ReconciliationJob) error {
	if job.Status.Terminal() {
		return nil
	}
	now := r.now().UTC()

	periodDate, err := time.Parse("2006-01-02", job.TargetPeriod)
	if err != nil {
		return eris.Wrapf(err, "reconcile: job %s has invalid target period %q", job.ID, job.TargetPeriod)
	}

	stats, sourceDataDate, err := r.source.FetchStats(ctx, periodDate)
	if err != nil {
		return eris.Wrapf(err, "reconcile: fetch stats for %s", job.TargetPeriod)
	}
	current, ok := stats[job.DistrictID]
	if !ok {
		return eris.Errorf("reconcile: district %s absent from upstream data for %s", job.DistrictID, job.TargetPeriod)
	}

	previous, err := r.previousStats(ctx, job)
	if err != nil {
		return err
	}

	changes := DetectChanges(job.DistrictID, previous, current)
	significant := IsSignificantChange(changes, job.Config.Thresholds)

	// Decide on a copy so a persistence failure leaves no partial
	// transition behind.
	updated := *job
	res := Advance(&updated, significant, now)
	updated.LastStats = &current

	entry := model.TimelineEntry{
		Date:           now,
		SourceDataDate: sourceDataDate,
		Changes:        changes,
		IsSignificant:  significant,
		CacheUpdated:   changes.HasChanges,
		Notes:          res.Notes,
	}

	if changes.HasChanges {
		if err := r.applyClosingUpdate(ctx, &updated, current, significant, now, &entry); err != nil {
			return err
		}
	}

	if err := r.jobs.AppendTimeline(ctx, job.ID, entry); err != nil {
		return err
	}
	if err := r.jobs.UpdateJob(ctx, &updated); err != nil {
		return err
	}
	*job = updated

	zap.L().Debug("reconciliation cycle complete",
		zap.String("component", "reconcile.runner"),
		zap.String("job", job.ID),
		zap.String("district", job.DistrictID),
		zap.String("phase", string(job.Status)),
		zap.Bool("significant", significant),
		zap.Bool("extended", res.ExtensionApplied),
	)
	return nil
}

// previousStats returns the last observed statistics for the job's
// district, falling back to the stored snapshot when the job has none yet.
func (r *Runner) previousStats(ctx context.Context, job *model.ReconciliationJob) (model.DistrictStatistics, error) {
	if job.LastStats != nil {
		return *job.LastStats, nil
	}
	snap, err := r.snaps.ReadSnapshot(ctx, job.TargetPeriod)
	if err != nil {
		return model.DistrictStatistics{}, err
	}
	if snap == nil {
		return model.DistrictStatistics{}, eris.Errorf("reconcile: no snapshot at %s for job %s", job.TargetPeriod, job.ID)
	}
	stats, ok := snap.Districts[job.DistrictID]
	if !ok {
		return model.DistrictStatistics{}, eris.Errorf("reconcile: district %s absent from snapshot %s", job.DistrictID, job.TargetPeriod)
	}
	return stats, nil
}

// applyClosingUpdate pushes observed drift back into the stored snapshot
// for the same logical period, subject to closing-period arbitration.
func (r *Runner) applyClosingUpdate(ctx context.Context, job *model.ReconciliationJob, current model.DistrictStatistics, significant bool, now time.Time, entry *model.TimelineEntry) error {
	collectionDate := now.Format("2006-01-02")
	decision, err := r.snaps.ShouldOverwriteClosingPeriodSnapshot(ctx, job.TargetPeriod, collectionDate)
	if err != nil {
		return err
	}
	if !decision.ShouldUpdate {
		entry.Notes += "; snapshot overwrite rejected: " + decision.Reason
		return nil
	}

	reason := "closing-period drift"
	if significant {
		reason = "significant closing-period change"
	}
	return r.snaps.OverwriteDistrictRecord(ctx, job.TargetPeriod, job.DistrictID, current, reason)
}

// RunAll runs one cycle for every active job with bounded parallelism.
// Jobs share no mutable state, so cycles are independent. Individual cycle
// failures are logged and do not stop the sweep.
func (r *Runner) RunAll(ctx context.Context) error {
	jobs, err := r.jobs.ListJobs(ctx, jobstore.JobFilter{ActiveOnly: true})
	if err != nil {
		return err
	}

	g := new(errgroup.Group)
	g.SetLimit(r.workers)
	for i := range jobs {
		job := jobs[i]
		g.Go(func() error {
			if err := r.RunCycle(ctx, &job); err != nil {
				zap.L().Error("reconciliation cycle failed; job state unchanged",
					zap.String("component", "reconcile.runner"),
					zap.String("job", job.ID),
					zap.String("district", job.DistrictID),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	return g.Wait()
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
// An in-flight sweep always completes before shutdown is honored.
func (r *Runner) Run(ctx context.Context, checkFrequency time.Duration) {
	if checkFrequency <= 0 {
		checkFrequency = 24 * time.Hour
	}

	log := zap.L().With(zap.String("component", "reconcile.runner"))
	log.Info("starting reconciliation runner",
		zap.Duration("check_frequency", checkFrequency),
	)

	ticker := time.NewTicker(checkFrequency)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("reconciliation runner stopped")
			return
		case <-ticker.C:
			if err := r.RunAll(ctx); err != nil {
				log.Error("reconciliation sweep failed", zap.Error(err))
			}
		}
	}
}
