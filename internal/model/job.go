package model

import "time"

// JobPhase represents the reconciliation state machine phase.
type JobPhase string

const (
	JobPhaseMonitoring  JobPhase = "monitoring"
	JobPhaseStabilizing JobPhase = "stabilizing"
	JobPhaseCompleted   JobPhase = "completed"
	JobPhaseFailed      JobPhase = "failed"
)

// Terminal reports whether the phase is an end state.
func (p JobPhase) Terminal() bool {
	return p == JobPhaseCompleted || p == JobPhaseFailed
}

// JobOutcome classifies a finished job for reporting.
type JobOutcome string

const (
	JobOutcomeCompleted JobOutcome = "completed"
	JobOutcomeExtended  JobOutcome = "extended"
	JobOutcomeTimeout   JobOutcome = "timeout"
)

// JobProgress tracks how far a job has advanced toward stability.
type JobProgress struct {
	Phase                JobPhase `json:"phase"`
	CompletionPercentage float64  `json:"completion_percentage"`
}

// ReconciliationJob monitors one (district, target period) pair for late
// upstream revisions. MaxEndDate is fixed at creation as
// startDate + maxReconciliationDays + maxExtensionDays and is never
// exceeded regardless of extensions applied.
type ReconciliationJob struct {
	ID                    string               `json:"id"`
	DistrictID            string               `json:"district_id"`
	TargetPeriod          string               `json:"target_period"`
	Status                JobPhase             `json:"status"`
	StartDate             time.Time            `json:"start_date"`
	MaxEndDate            time.Time            `json:"max_end_date"`
	Config                ReconciliationConfig `json:"config"`
	Progress              JobProgress          `json:"progress"`
	ConsecutiveStableDays int                  `json:"consecutive_stable_days"`
	ExtensionCount        int                  `json:"extension_count"`
	ExtensionDaysApplied  int                  `json:"extension_days_applied"`
	LastStats             *DistrictStatistics  `json:"last_stats,omitempty"`
	CreatedAt             time.Time            `json:"created_at"`
	UpdatedAt             time.Time            `json:"updated_at"`
}

// Outcome classifies the job once terminal: completed with zero extensions
// is "completed", completed with at least one is "extended", failed is
// "timeout". Returns "" while the job is still active.
func (j *ReconciliationJob) Outcome() JobOutcome {
	switch j.Status {
	case JobPhaseCompleted:
		if j.ExtensionCount > 0 {
			return JobOutcomeExtended
		}
		return JobOutcomeCompleted
	case JobPhaseFailed:
		return JobOutcomeTimeout
	default:
		return ""
	}
}

// TimelineEntry records one check cycle. CacheUpdated is true whenever the
// cycle observed any real change, independent of significance, so that
// non-significant drift remains visible for audit.
type TimelineEntry struct {
	Date           time.Time    `json:"date"`
	SourceDataDate string       `json:"source_data_date"`
	Changes        *DataChanges `json:"changes,omitempty"`
	IsSignificant  bool         `json:"is_significant"`
	CacheUpdated   bool         `json:"cache_updated"`
	Notes          string       `json:"notes,omitempty"`
}
