package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/clubmetrics/districtsync/internal/model"
)

// OverwriteDecision is the outcome of closing-period arbitration.
type OverwriteDecision struct {
	ShouldUpdate           bool   `json:"should_update"`
	Reason                 string `json:"reason"`
	ExistingCollectionDate string `json:"existing_collection_date,omitempty"`
}

// ShouldOverwriteClosingPeriodSnapshot decides whether closing-period data
// collected on newCollectionDate may overwrite the snapshot at versionID.
// Update is allowed when no snapshot exists at the version, or when the
// candidate's collection date is the same or newer than the existing one.
// Only a strictly newer existing collection date rejects the candidate, so
// data freshness per version is monotonically non-decreasing and a stale
// re-run can never clobber fresher data.
func (s *Store) ShouldOverwriteClosingPeriodSnapshot(ctx context.Context, versionID, newCollectionDate string) (*OverwriteDecision, error) {
	existing, err := s.existingCollectionDate(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if existing == "" {
		return &OverwriteDecision{
			ShouldUpdate: true,
			Reason:       "no existing snapshot at this version",
		}, nil
	}

	// Canonical YYYY-MM-DD dates compare correctly as strings.
	if newCollectionDate >= existing {
		return &OverwriteDecision{
			ShouldUpdate:           true,
			Reason:                 fmt.Sprintf("candidate collection date %s is not older than existing %s", newCollectionDate, existing),
			ExistingCollectionDate: existing,
		}, nil
	}
	return &OverwriteDecision{
		ShouldUpdate:           false,
		Reason:                 fmt.Sprintf("existing snapshot was collected %s, newer than candidate %s", existing, newCollectionDate),
		ExistingCollectionDate: existing,
	}, nil
}

// existingCollectionDate returns the stored version's collection date,
// falling back to its data-as-of date, or "" when the version is absent.
func (s *Store) existingCollectionDate(ctx context.Context, versionID string) (string, error) {
	meta, err := s.readMetadata(ctx, versionID)
	if err != nil {
		return "", err
	}
	if meta == nil {
		legacy, err := s.readLegacySnapshot(ctx, versionID)
		if err != nil || legacy == nil {
			return "", err
		}
		if legacy.Metadata.CollectionDate != "" {
			return legacy.Metadata.CollectionDate, nil
		}
		return legacy.Metadata.DataAsOfDate, nil
	}
	if meta.Metadata.CollectionDate != "" {
		return meta.Metadata.CollectionDate, nil
	}
	return meta.Metadata.DataAsOfDate, nil
}

// RecordAudit is one line in a version's append-only overwrite audit log,
// explaining why a district record changed after write_complete.
type RecordAudit struct {
	DistrictID string    `json:"district_id"`
	Reason     string    `json:"reason"`
	ChangedAt  time.Time `json:"changed_at"`
}

// OverwriteDistrictRecord replaces a district record in place under the
// same version key during closing-period reconciliation, appending an
// audit entry recording why it changed. The manifest entry is refreshed so
// readers see the new size and timestamp.
func (s *Store) OverwriteDistrictRecord(ctx context.Context, versionID, districtID string, stats model.DistrictStatistics, reason string) error {
	manifest, err := s.ReadManifest(ctx, versionID)
	if err != nil {
		return err
	}
	if manifest == nil {
		return s.storageErr("overwrite district record",
			eris.Errorf("version %s has no manifest; legacy snapshots are immutable", versionID))
	}
	entry := manifest.Entry(districtID)
	if entry == nil {
		return s.storageErr("overwrite district record",
			eris.Errorf("district %s is not in version %s's manifest", districtID, versionID))
	}

	rec := model.DistrictRecord{
		DistrictID:  districtID,
		CollectedAt: time.Now().UTC(),
		Status:      model.RecordStatusSuccess,
		Stats:       &stats,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "snapshot: marshal district record")
	}
	if err := s.blobs.Put(ctx, entry.Key, data); err != nil {
		return s.storageErr("overwrite district record", err)
	}

	wasFailed := entry.Status == model.RecordStatusFailed
	entry.Status = model.RecordStatusSuccess
	entry.ErrorMessage = ""
	entry.Size = int64(len(data))
	entry.LastModified = rec.CollectedAt
	if wasFailed {
		manifest.SuccessfulDistricts++
		manifest.FailedDistricts--
	}

	manifestJSON, err := json.Marshal(manifest)
	if err != nil {
		return eris.Wrap(err, "snapshot: marshal manifest")
	}
	if err := s.blobs.Put(ctx, manifestKey(versionID), manifestJSON); err != nil {
		return s.storageErr("overwrite district record", err)
	}

	audit := RecordAudit{DistrictID: districtID, Reason: reason, ChangedAt: rec.CollectedAt}
	line, err := json.Marshal(audit)
	if err != nil {
		return eris.Wrap(err, "snapshot: marshal audit entry")
	}
	if err := s.blobs.Append(ctx, auditKey(versionID), line); err != nil {
		return s.storageErr("append audit", err)
	}

	zap.L().Info("district record overwritten in place",
		zap.String("component", "snapshot.store"),
		zap.String("version", versionID),
		zap.String("district", districtID),
		zap.String("reason", reason),
	)
	return nil
}

// LastDayOfMonth returns the final day of t's month, in t's location.
func LastDayOfMonth(t time.Time) time.Time {
	firstOfNext := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, 1, 0)
	return firstOfNext.AddDate(0, 0, -1)
}
