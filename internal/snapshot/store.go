// Package snapshot implements the versioned district snapshot store:
// per-district record writes with partial-failure capture, a per-version
// manifest, an atomically replaced current pointer, version compatibility
// checks, and closing-period overwrite arbitration.
package snapshot

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/clubmetrics/districtsync/internal/blob"
	"github.com/clubmetrics/districtsync/internal/model"
)

const defaultWriteConcurrency = 8

// Store is the public-facing versioned snapshot store.
type Store struct {
	blobs       blob.Store
	concurrency int
}

// Options tunes the store.
type Options struct {
	// WriteConcurrency bounds the number of parallel district writes.
	WriteConcurrency int
}

// New creates a snapshot store over the given blob provider.
func New(blobs blob.Store, opts Options) *Store {
	c := opts.WriteConcurrency
	if c <= 0 {
		c = defaultWriteConcurrency
	}
	return &Store{blobs: blobs, concurrency: c}
}

// versionMetadata is the per-version metadata document. It carries
// everything needed to reconstruct a Snapshot's aggregate fields without
// reading district records.
type versionMetadata struct {
	SnapshotID         string               `json:"snapshot_id"`
	Status             model.SnapshotStatus `json:"status"`
	SchemaVersion      string               `json:"schema_version"`
	CalculationVersion string               `json:"calculation_version"`
	RankingVersion     string               `json:"ranking_version,omitempty"`
	Errors             []string             `json:"errors,omitempty"`
	Metadata           model.FetchMetadata  `json:"metadata"`
}

// SideArtifact is an optional cross-district document written alongside a
// snapshot version. Unlike district records, an artifact write failure
// fails the entire snapshot write.
type SideArtifact struct {
	Name string
	Data []byte
}

// WriteOptions control a single WriteSnapshot call.
type WriteOptions struct {
	// SkipPointerUpdate leaves the current pointer untouched even for a
	// successful snapshot.
	SkipPointerUpdate bool
	// OverrideVersionDate pins the on-disk version key instead of the
	// snapshot's effective date. Used for closing-period ingestion so late
	// data lands on the original period's version.
	OverrideVersionDate string
}

// WriteSnapshot creates or overwrites the version's metadata, all district
// records, the optional side artifact, and the manifest. Individual
// district write failures are recorded in the manifest and do not abort
// the write; metadata, manifest, artifact, and pointer failures do.
func (s *Store) WriteSnapshot(ctx context.Context, snap *model.Snapshot, artifact *SideArtifact, opts WriteOptions) (*model.Manifest, error) {
	versionID := snap.EffectiveDate()
	if opts.OverrideVersionDate != "" {
		versionID = opts.OverrideVersionDate
	}
	if versionID == "" {
		return nil, eris.New("snapshot: write: empty version date")
	}

	log := zap.L().With(
		zap.String("component", "snapshot.store"),
		zap.String("version", versionID),
	)

	meta := versionMetadata{
		SnapshotID:         versionID,
		Status:             snap.Status,
		SchemaVersion:      snap.SchemaVersion,
		CalculationVersion: snap.CalculationVersion,
		RankingVersion:     snap.RankingVersion,
		Errors:             snap.Errors,
		Metadata:           snap.Metadata,
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, eris.Wrap(err, "snapshot: marshal metadata")
	}
	if err := s.blobs.Put(ctx, metadataKey(versionID), metaJSON); err != nil {
		return nil, s.storageErr("write metadata", err)
	}

	entries := s.writeDistricts(ctx, versionID, snap)

	manifest := &model.Manifest{
		SnapshotID:     versionID,
		Entries:        entries,
		TotalDistricts: len(entries),
		WrittenAt:      time.Now().UTC(),
	}
	for _, e := range entries {
		if e.Status == model.RecordStatusSuccess {
			manifest.SuccessfulDistricts++
		} else {
			manifest.FailedDistricts++
		}
	}

	if artifact != nil {
		key := artifactKey(versionID, artifact.Name)
		if err := s.blobs.Put(ctx, key, artifact.Data); err != nil {
			// No partial side-artifact state is tolerated.
			return nil, s.storageErr("write side artifact", err)
		}
		manifest.Artifact = &model.ArtifactDescriptor{
			Key:    key,
			Status: model.ArtifactPresent,
			Size:   int64(len(artifact.Data)),
		}
	}

	manifest.WriteComplete = true
	manifestJSON, err := json.Marshal(manifest)
	if err != nil {
		return nil, eris.Wrap(err, "snapshot: marshal manifest")
	}
	if err := s.blobs.Put(ctx, manifestKey(versionID), manifestJSON); err != nil {
		return nil, s.storageErr("write manifest", err)
	}

	log.Info("snapshot written",
		zap.String("status", string(snap.Status)),
		zap.Int("districts", manifest.TotalDistricts),
		zap.Int("failed", manifest.FailedDistricts),
		zap.Bool("closing_period", snap.Metadata.IsClosingPeriodData),
	)

	if snap.Status == model.SnapshotStatusSuccess && !opts.SkipPointerUpdate {
		if err := s.SetCurrentPointer(ctx, versionID, snap.SchemaVersion, snap.CalculationVersion); err != nil {
			return nil, err
		}
	}

	return manifest, nil
}

// writeDistricts writes all district records with bounded parallelism.
// Each write's outcome is captured individually; a failure never cancels
// or blocks sibling writes, so the errgroup is used purely as a bounded
// worker pool and always returns nil.
func (s *Store) writeDistricts(ctx context.Context, versionID string, snap *model.Snapshot) []model.ManifestEntry {
	ids := make([]string, 0, len(snap.Districts))
	for id := range snap.Districts {
		ids = append(ids, id)
	}

	entries := make([]model.ManifestEntry, len(ids))
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			stats := snap.Districts[id]
			rec := model.DistrictRecord{
				DistrictID:  id,
				CollectedAt: snap.Metadata.FetchedAt,
				Status:      model.RecordStatusSuccess,
				Stats:       &stats,
			}
			entry := model.ManifestEntry{
				DistrictID:   id,
				Key:          districtKey(versionID, id),
				Status:       model.RecordStatusSuccess,
				LastModified: time.Now().UTC(),
			}

			data, err := json.Marshal(rec)
			if err == nil {
				entry.Size = int64(len(data))
				err = s.blobs.Put(ctx, entry.Key, data)
			}
			if err != nil {
				entry.Status = model.RecordStatusFailed
				entry.ErrorMessage = err.Error()
				zap.L().Warn("district record write failed",
					zap.String("version", versionID),
					zap.String("district", id),
					zap.Error(err),
				)
			}

			mu.Lock()
			entries[i] = entry
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return entries
}

// ReadManifest returns the version's manifest, or nil if none exists
// (which indicates a legacy single-blob snapshot or no snapshot at all).
func (s *Store) ReadManifest(ctx context.Context, versionID string) (*model.Manifest, error) {
	data, err := s.blobs.Get(ctx, manifestKey(versionID))
	if err != nil {
		if err == blob.ErrNotFound {
			return nil, nil
		}
		return nil, s.storageErr("read manifest", err)
	}
	var m model.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, s.storageErr("parse manifest", eris.Wrapf(err, "version %s", versionID))
	}
	return &m, nil
}

func (s *Store) readMetadata(ctx context.Context, versionID string) (*versionMetadata, error) {
	data, err := s.blobs.Get(ctx, metadataKey(versionID))
	if err != nil {
		if err == blob.ErrNotFound {
			return nil, nil
		}
		return nil, s.storageErr("read metadata", err)
	}
	var meta versionMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, s.storageErr("parse metadata", eris.Wrapf(err, "version %s", versionID))
	}
	return &meta, nil
}
