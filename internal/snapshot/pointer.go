package snapshot

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/clubmetrics/districtsync/internal/blob"
	"github.com/clubmetrics/districtsync/internal/model"
)

// ReadCurrentPointer returns the current pointer, or nil if it is missing.
// A corrupt pointer document is also reported as nil so that callers fall
// through to the scan path; the corruption is logged.
func (s *Store) ReadCurrentPointer(ctx context.Context) (*model.CurrentPointer, error) {
	data, err := s.blobs.Get(ctx, pointerKey)
	if err != nil {
		if err == blob.ErrNotFound {
			return nil, nil
		}
		return nil, s.storageErr("read pointer", err)
	}
	var ptr model.CurrentPointer
	if err := json.Unmarshal(data, &ptr); err != nil {
		zap.L().Warn("current pointer is corrupt, ignoring",
			zap.String("component", "snapshot.store"),
			zap.Error(err),
		)
		return nil, nil
	}
	if ptr.SnapshotID == "" {
		return nil, nil
	}
	return &ptr, nil
}

// SetCurrentPointer atomically replaces the current pointer. The blob
// provider guarantees replace atomicity (temp-write + rename on the local
// filesystem, server-side atomic object write on GCS).
func (s *Store) SetCurrentPointer(ctx context.Context, versionID, schemaVersion, calculationVersion string) error {
	ptr := model.CurrentPointer{
		SnapshotID:         versionID,
		UpdatedAt:          time.Now().UTC(),
		SchemaVersion:      schemaVersion,
		CalculationVersion: calculationVersion,
	}
	data, err := json.Marshal(ptr)
	if err != nil {
		return s.storageErr("write pointer", err)
	}
	if err := s.blobs.Put(ctx, pointerKey, data); err != nil {
		return s.storageErr("write pointer", err)
	}
	zap.L().Info("current pointer updated",
		zap.String("component", "snapshot.store"),
		zap.String("version", versionID),
	)
	return nil
}

// GetLatestSuccessful returns the most recent successful snapshot. The
// pointer is advisory: if it is missing, corrupt, or names a snapshot that
// is not successful, a full scan ordered by version key descending finds
// the first verified success and repairs the pointer as a side effect.
// Returns nil when no successful snapshot exists at all.
func (s *Store) GetLatestSuccessful(ctx context.Context) (*model.Snapshot, error) {
	ptr, err := s.ReadCurrentPointer(ctx)
	if err != nil {
		return nil, err
	}
	if ptr != nil {
		snap, err := s.ReadSnapshot(ctx, ptr.SnapshotID)
		if err != nil {
			return nil, err
		}
		if snap != nil && snap.Status == model.SnapshotStatusSuccess {
			return snap, nil
		}
		zap.L().Warn("current pointer names a non-successful snapshot, falling back to scan",
			zap.String("component", "snapshot.store"),
			zap.String("version", ptr.SnapshotID),
		)
	}

	return s.scanLatestSuccessful(ctx)
}

// scanLatestSuccessful walks version keys newest-first and promotes the
// first verified successful snapshot. The scan may race with a concurrent
// write; that is acceptable because it only ever promotes an
// already-committed, immutable snapshot.
func (s *Store) scanLatestSuccessful(ctx context.Context) (*model.Snapshot, error) {
	ids, err := s.listVersionIDs(ctx)
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		info, err := s.describeVersion(ctx, id)
		if err != nil {
			return nil, err
		}
		if info == nil || info.Status != model.SnapshotStatusSuccess {
			continue
		}
		snap, err := s.ReadSnapshot(ctx, id)
		if err != nil {
			return nil, err
		}
		if snap == nil {
			continue
		}

		// Repair the pointer. Best effort: the snapshot itself is already
		// consistent, so a repair failure is logged, not raised.
		if err := s.SetCurrentPointer(ctx, id, snap.SchemaVersion, snap.CalculationVersion); err != nil {
			zap.L().Error("pointer repair failed",
				zap.String("component", "snapshot.store"),
				zap.String("version", id),
				zap.Error(err),
			)
		}
		return snap, nil
	}
	return nil, nil
}
