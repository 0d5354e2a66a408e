package snapshot

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubmetrics/districtsync/internal/model"
)

func writeClosingSnap(t *testing.T, store *Store, versionID, collectionDate string) {
	t.Helper()
	snap := testSnap(versionID, 3)
	snap.Metadata.IsClosingPeriodData = true
	snap.Metadata.CollectionDate = collectionDate
	snap.Metadata.LogicalDate = versionID
	_, err := store.WriteSnapshot(context.Background(), snap, nil, WriteOptions{})
	require.NoError(t, err)
}

func TestShouldOverwriteNoExisting(t *testing.T) {
	store, _ := newTestStore(t)

	d, err := store.ShouldOverwriteClosingPeriodSnapshot(context.Background(), "2025-06-30", "2025-07-02")
	require.NoError(t, err)
	assert.True(t, d.ShouldUpdate)
	assert.Empty(t, d.ExistingCollectionDate)
}

func TestShouldOverwriteMonotonicity(t *testing.T) {
	store, _ := newTestStore(t)
	writeClosingSnap(t, store, "2025-06-30", "2025-07-03")
	ctx := context.Background()

	// Same date: allowed.
	d, err := store.ShouldOverwriteClosingPeriodSnapshot(ctx, "2025-06-30", "2025-07-03")
	require.NoError(t, err)
	assert.True(t, d.ShouldUpdate)

	// Newer: allowed.
	d, err = store.ShouldOverwriteClosingPeriodSnapshot(ctx, "2025-06-30", "2025-07-05")
	require.NoError(t, err)
	assert.True(t, d.ShouldUpdate)

	// Older: rejected, freshness never regresses.
	d, err = store.ShouldOverwriteClosingPeriodSnapshot(ctx, "2025-06-30", "2025-07-01")
	require.NoError(t, err)
	assert.False(t, d.ShouldUpdate)
	assert.Equal(t, "2025-07-03", d.ExistingCollectionDate)
	assert.Contains(t, d.Reason, "newer than candidate")
}

func TestShouldOverwriteFallsBackToDataAsOfDate(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	// Regular snapshot with no collection date.
	_, err := store.WriteSnapshot(ctx, testSnap("2025-06-30", 2), nil, WriteOptions{})
	require.NoError(t, err)

	d, err := store.ShouldOverwriteClosingPeriodSnapshot(ctx, "2025-06-30", "2025-06-29")
	require.NoError(t, err)
	assert.False(t, d.ShouldUpdate)
	assert.Equal(t, "2025-06-30", d.ExistingCollectionDate)
}

func TestOverwriteDistrictRecord(t *testing.T) {
	store, blobs := newTestStore(t)
	ctx := context.Background()
	writeClosingSnap(t, store, "2025-06-30", "2025-07-02")

	newStats := model.DistrictStatistics{
		MembershipTotal:    1500,
		ClubCount:          55,
		DistinguishedClubs: model.DistinguishedBreakdown{Distinguished: 6, Select: 4, Presidents: 2},
	}
	require.NoError(t, store.OverwriteDistrictRecord(ctx, "2025-06-30", "02", newStats, "closing-period drift"))

	snap, err := store.ReadSnapshot(ctx, "2025-06-30")
	require.NoError(t, err)
	assert.Equal(t, newStats, snap.Districts["02"])

	manifest, err := store.ReadManifest(ctx, "2025-06-30")
	require.NoError(t, err)
	entry := manifest.Entry("02")
	require.NotNil(t, entry)
	assert.Equal(t, model.RecordStatusSuccess, entry.Status)

	// An audit line explains the post-write_complete mutation.
	data, err := blobs.Get(ctx, auditKey("2025-06-30"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	var audit RecordAudit
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &audit))
	assert.Equal(t, "02", audit.DistrictID)
	assert.Equal(t, "closing-period drift", audit.Reason)
}

func TestOverwriteDistrictRecordRepairsFailedEntry(t *testing.T) {
	store, blobs := newTestStore(t)
	ctx := context.Background()

	snap := testSnap("2025-06-30", 3)
	manifest, err := store.WriteSnapshot(ctx, snap, nil, WriteOptions{})
	require.NoError(t, err)
	entry := manifest.Entry("02")
	require.NotNil(t, entry)

	// Force the manifest into a failed state for district 02.
	entry.Status = model.RecordStatusFailed
	entry.ErrorMessage = "simulated"
	manifest.SuccessfulDistricts--
	manifest.FailedDistricts++
	data, err := json.Marshal(manifest)
	require.NoError(t, err)
	require.NoError(t, blobs.Put(ctx, manifestKey("2025-06-30"), data))

	require.NoError(t, store.OverwriteDistrictRecord(ctx, "2025-06-30", "02",
		snap.Districts["02"], "late record recovery"))

	repaired, err := store.ReadManifest(ctx, "2025-06-30")
	require.NoError(t, err)
	assert.Equal(t, 3, repaired.SuccessfulDistricts)
	assert.Zero(t, repaired.FailedDistricts)
}

func TestOverwriteDistrictRecordRejectsUnknownDistrict(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	writeClosingSnap(t, store, "2025-06-30", "2025-07-02")

	err := store.OverwriteDistrictRecord(ctx, "2025-06-30", "99", model.DistrictStatistics{}, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in version")
}

func TestOverwriteDistrictRecordRejectsLegacy(t *testing.T) {
	store, blobs := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, blobs.Put(ctx, legacyKey("2024-12-31"), []byte(`{"snapshot_id":"2024-12-31","status":"success","districts":{}}`)))

	err := store.OverwriteDistrictRecord(ctx, "2024-12-31", "42", model.DistrictStatistics{}, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "legacy snapshots are immutable")
}

func TestLastDayOfMonth(t *testing.T) {
	tests := []struct {
		in   time.Time
		want int
	}{
		{time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), 30},
		{time.Date(2025, 7, 15, 10, 0, 0, 0, time.UTC), 31},
		{time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC), 29}, // leap year
		{time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC), 28},
		{time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), 31},
	}
	for _, tt := range tests {
		got := LastDayOfMonth(tt.in)
		assert.Equal(t, tt.want, got.Day())
		assert.Equal(t, tt.in.Month(), got.Month())
		assert.Equal(t, tt.in.Year(), got.Year())
	}
}
