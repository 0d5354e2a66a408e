package reconcile

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clubmetrics/districtsync/internal/model"
)

// NewJob creates a monitoring job for one (district, target period) pair.
// MaxEndDate is fixed here and never moves: extensions lengthen the
// effective deadline but can never push past it.
func NewJob(districtID, targetPeriod string, cfg model.ReconciliationConfig, now time.Time) *model.ReconciliationJob {
	now = now.UTC()
	return &model.ReconciliationJob{
		ID:           uuid.New().String(),
		DistrictID:   districtID,
		TargetPeriod: targetPeriod,
		Status:       model.JobPhaseMonitoring,
		StartDate:    now,
		MaxEndDate:   now.AddDate(0, 0, cfg.MaxReconciliationDays+cfg.MaxExtensionDays),
		Config:       cfg,
		Progress: model.JobProgress{
			Phase: model.JobPhaseMonitoring,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CycleResult describes what one state machine step did.
type CycleResult struct {
	Phase            model.JobPhase
	ExtensionApplied bool
	ExtensionDays    int
	StableDays       int
	TimedOut         bool
	Notes            string
}

// Advance applies one check cycle's verdict to the job. The effective
// deadline is recomputed fresh from elapsed time each cycle; only the
// cumulative extension-days count is stored, never a mutated absolute
// deadline. The timeout check runs after the stability check, so a job
// that stabilizes exactly at the deadline completes rather than times out.
func Advance(job *model.ReconciliationJob, isSignificant bool, now time.Time) CycleResult {
	now = now.UTC()
	cfg := job.Config
	elapsedDays := int(now.Sub(job.StartDate).Hours() / 24)

	var res CycleResult

	if isSignificant {
		job.ConsecutiveStableDays = 0
		job.Status = model.JobPhaseMonitoring
		res.Notes = "significant change observed"

		if cfg.AutoExtensionEnabled {
			remaining := cfg.MaxReconciliationDays + job.ExtensionDaysApplied - elapsedDays
			if remaining <= cfg.ExtensionTriggerWindowDays {
				inc := cfg.ExtensionIncrementDays
				if job.ExtensionDaysApplied+inc > cfg.MaxExtensionDays {
					inc = cfg.MaxExtensionDays - job.ExtensionDaysApplied
				}
				if inc > 0 {
					job.ExtensionDaysApplied += inc
					job.ExtensionCount++
					res.ExtensionApplied = true
					res.ExtensionDays = inc
					res.Notes = fmt.Sprintf("significant change near deadline; monitoring extended by %d day(s)", inc)
				}
			}
		}
	} else {
		job.ConsecutiveStableDays++
		if job.Status == model.JobPhaseMonitoring {
			job.Status = model.JobPhaseStabilizing
		}
		res.Notes = fmt.Sprintf("stable cycle %d/%d", job.ConsecutiveStableDays, cfg.StabilityPeriodDays)
	}

	// Stability first, then timeout.
	if job.ConsecutiveStableDays >= cfg.StabilityPeriodDays {
		job.Status = model.JobPhaseCompleted
		res.Notes = "stability period reached"
	} else if elapsedDays >= cfg.MaxReconciliationDays+job.ExtensionDaysApplied || !now.Before(job.MaxEndDate) {
		job.Status = model.JobPhaseFailed
		res.TimedOut = true
		res.Notes = "monitoring window exhausted"
	}

	job.Progress = model.JobProgress{
		Phase:                job.Status,
		CompletionPercentage: completionPercentage(job),
	}
	job.UpdatedAt = now

	res.Phase = job.Status
	res.StableDays = job.ConsecutiveStableDays
	return res
}

func completionPercentage(job *model.ReconciliationJob) float64 {
	if job.Status.Terminal() {
		return 100
	}
	if job.Config.StabilityPeriodDays <= 0 {
		return 0
	}
	pct := float64(job.ConsecutiveStableDays) / float64(job.Config.StabilityPeriodDays) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}
