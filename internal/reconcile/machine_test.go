package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubmetrics/districtsync/internal/model"
)

var jobStart = time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

func newTestJob(t *testing.T, cfg model.ReconciliationConfig) *model.ReconciliationJob {
	t.Helper()
	job := NewJob("42", "2025-06-30", cfg, jobStart)
	require.NotEmpty(t, job.ID)
	return job
}

func TestNewJobFixedMaxEndDate(t *testing.T) {
	cfg := model.DefaultReconciliationConfig()
	job := newTestJob(t, cfg)

	assert.Equal(t, model.JobPhaseMonitoring, job.Status)
	assert.Equal(t, jobStart.AddDate(0, 0, cfg.MaxReconciliationDays+cfg.MaxExtensionDays), job.MaxEndDate)
}

func TestAdvanceStabilizesAndCompletes(t *testing.T) {
	cfg := model.DefaultReconciliationConfig()
	job := newTestJob(t, cfg)

	res := Advance(job, false, jobStart.AddDate(0, 0, 1))
	assert.Equal(t, model.JobPhaseStabilizing, res.Phase)
	assert.Equal(t, 1, res.StableDays)
	assert.InDelta(t, 100.0/3, job.Progress.CompletionPercentage, 0.01)

	Advance(job, false, jobStart.AddDate(0, 0, 2))
	res = Advance(job, false, jobStart.AddDate(0, 0, 3))

	assert.Equal(t, model.JobPhaseCompleted, res.Phase)
	assert.Equal(t, 3, job.ConsecutiveStableDays)
	assert.InDelta(t, 100, job.Progress.CompletionPercentage, 0.001)
	assert.Equal(t, model.JobOutcomeCompleted, job.Outcome())
}

func TestAdvanceSignificantResetsStability(t *testing.T) {
	cfg := model.DefaultReconciliationConfig()
	job := newTestJob(t, cfg)

	Advance(job, false, jobStart.AddDate(0, 0, 1))
	Advance(job, false, jobStart.AddDate(0, 0, 2))
	res := Advance(job, true, jobStart.AddDate(0, 0, 3))

	assert.Equal(t, model.JobPhaseMonitoring, res.Phase)
	assert.Zero(t, job.ConsecutiveStableDays)
	assert.False(t, res.ExtensionApplied)
}

func TestAdvanceExtensionInsideTriggerWindow(t *testing.T) {
	cfg := model.DefaultReconciliationConfig()
	job := newTestJob(t, cfg)

	// Day 12 of 14: 2 days remain, inside the 3-day trigger window.
	res := Advance(job, true, jobStart.AddDate(0, 0, 12))

	assert.True(t, res.ExtensionApplied)
	assert.Equal(t, cfg.ExtensionIncrementDays, res.ExtensionDays)
	assert.Equal(t, 1, job.ExtensionCount)
	assert.Equal(t, cfg.ExtensionIncrementDays, job.ExtensionDaysApplied)
	assert.Equal(t, model.JobPhaseMonitoring, job.Status)
}

func TestAdvanceNoExtensionOutsideWindow(t *testing.T) {
	cfg := model.DefaultReconciliationConfig()
	job := newTestJob(t, cfg)

	// Day 5 of 14: 9 days remain, well outside the window.
	res := Advance(job, true, jobStart.AddDate(0, 0, 5))

	assert.False(t, res.ExtensionApplied)
	assert.Zero(t, job.ExtensionCount)
}

func TestAdvanceExtensionCapped(t *testing.T) {
	cfg := model.DefaultReconciliationConfig() // max 7, increment 3
	job := newTestJob(t, cfg)

	Advance(job, true, jobStart.AddDate(0, 0, 12)) // +3 -> 3
	Advance(job, true, jobStart.AddDate(0, 0, 15)) // +3 -> 6
	res := Advance(job, true, jobStart.AddDate(0, 0, 18))

	assert.True(t, res.ExtensionApplied)
	assert.Equal(t, 1, res.ExtensionDays) // capped at 7 total
	assert.Equal(t, 7, job.ExtensionDaysApplied)
	assert.Equal(t, 3, job.ExtensionCount)

	// Cap reached: no further extension, the job times out instead.
	res = Advance(job, true, jobStart.AddDate(0, 0, 21))
	assert.False(t, res.ExtensionApplied)
	assert.True(t, res.TimedOut)
	assert.Equal(t, model.JobPhaseFailed, job.Status)
	assert.Equal(t, model.JobOutcomeTimeout, job.Outcome())
}

func TestAdvanceAutoExtensionDisabled(t *testing.T) {
	cfg := model.DefaultReconciliationConfig()
	cfg.AutoExtensionEnabled = false
	job := newTestJob(t, cfg)

	res := Advance(job, true, jobStart.AddDate(0, 0, 13))
	assert.False(t, res.ExtensionApplied)
}

func TestAdvanceTimeoutWithoutStability(t *testing.T) {
	cfg := model.DefaultReconciliationConfig()
	cfg.AutoExtensionEnabled = false
	job := newTestJob(t, cfg)

	res := Advance(job, true, jobStart.AddDate(0, 0, 14))

	assert.True(t, res.TimedOut)
	assert.Equal(t, model.JobPhaseFailed, job.Status)
	assert.InDelta(t, 100, job.Progress.CompletionPercentage, 0.001)
}

func TestAdvanceStabilityWinsAtDeadline(t *testing.T) {
	cfg := model.DefaultReconciliationConfig()
	cfg.AutoExtensionEnabled = false
	job := newTestJob(t, cfg)
	job.ConsecutiveStableDays = cfg.StabilityPeriodDays - 1

	// The final stable cycle lands exactly on the deadline: stability is
	// checked first, so the job completes instead of timing out.
	res := Advance(job, false, jobStart.AddDate(0, 0, cfg.MaxReconciliationDays))

	assert.Equal(t, model.JobPhaseCompleted, res.Phase)
	assert.False(t, res.TimedOut)
}

func TestAdvanceCompletedWithExtensionsIsExtendedOutcome(t *testing.T) {
	cfg := model.DefaultReconciliationConfig()
	job := newTestJob(t, cfg)

	Advance(job, true, jobStart.AddDate(0, 0, 12)) // extension
	Advance(job, false, jobStart.AddDate(0, 0, 13))
	Advance(job, false, jobStart.AddDate(0, 0, 14))
	Advance(job, false, jobStart.AddDate(0, 0, 15))

	assert.Equal(t, model.JobPhaseCompleted, job.Status)
	assert.Equal(t, model.JobOutcomeExtended, job.Outcome())
}

func TestAdvanceNeverPassesMaxEndDate(t *testing.T) {
	cfg := model.DefaultReconciliationConfig()
	job := newTestJob(t, cfg)
	job.ExtensionDaysApplied = cfg.MaxExtensionDays

	// Even with all extensions applied, the fixed MaxEndDate still binds.
	res := Advance(job, true, job.MaxEndDate)
	assert.True(t, res.TimedOut)
	assert.Equal(t, model.JobPhaseFailed, job.Status)
}
