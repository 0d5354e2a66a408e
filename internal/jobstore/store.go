// Package jobstore persists reconciliation jobs and their check-cycle
// timelines. Two drivers exist: SQLite for single-node deployments and
// Postgres for shared ones.
package jobstore

import (
	"context"

	"github.com/clubmetrics/districtsync/internal/model"
)

// JobFilter specifies criteria for listing jobs.
type JobFilter struct {
	Status       model.JobPhase `json:"status,omitempty"`
	DistrictID   string         `json:"district_id,omitempty"`
	TargetPeriod string         `json:"target_period,omitempty"`
	ActiveOnly   bool           `json:"active_only,omitempty"`
	Limit        int            `json:"limit,omitempty"`
	Offset       int            `json:"offset,omitempty"`
}

// Store defines the persistence interface for reconciliation jobs.
type Store interface {
	CreateJob(ctx context.Context, job *model.ReconciliationJob) error
	GetJob(ctx context.Context, jobID string) (*model.ReconciliationJob, error)
	// FindActiveJob returns the non-terminal job for a (district, period)
	// pair, or nil.
	FindActiveJob(ctx context.Context, districtID, targetPeriod string) (*model.ReconciliationJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]model.ReconciliationJob, error)
	UpdateJob(ctx context.Context, job *model.ReconciliationJob) error

	AppendTimeline(ctx context.Context, jobID string, entry model.TimelineEntry) error
	// ListTimeline returns a job's entries oldest-first.
	ListTimeline(ctx context.Context, jobID string) ([]model.TimelineEntry, error)

	Migrate(ctx context.Context) error
	Close() error
}
