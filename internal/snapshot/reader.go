package snapshot

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/clubmetrics/districtsync/internal/blob"
	"github.com/clubmetrics/districtsync/internal/model"
)

// ReadSnapshot reconstructs a full snapshot for a version: manifest first,
// then every district record marked success, then aggregate metadata.
// Falls back to the legacy single-blob format when no manifest exists at
// the key. Returns nil when the version does not exist in either format.
func (s *Store) ReadSnapshot(ctx context.Context, versionID string) (*model.Snapshot, error) {
	manifest, err := s.ReadManifest(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if manifest == nil {
		return s.readLegacySnapshot(ctx, versionID)
	}

	meta, err := s.readMetadata(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, s.storageErr("read metadata",
			eris.Errorf("version %s has a manifest but no metadata document", versionID))
	}

	snap := &model.Snapshot{
		SnapshotID:         versionID,
		Status:             meta.Status,
		SchemaVersion:      meta.SchemaVersion,
		CalculationVersion: meta.CalculationVersion,
		RankingVersion:     meta.RankingVersion,
		Errors:             meta.Errors,
		Metadata:           meta.Metadata,
		Districts:          make(map[string]model.DistrictStatistics, len(manifest.Entries)),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, entry := range manifest.Entries {
		if entry.Status != model.RecordStatusSuccess {
			continue
		}
		g.Go(func() error {
			rec, err := s.readDistrictRecord(gctx, entry.Key)
			if err != nil {
				return err
			}
			if rec.Stats == nil {
				return s.storageErr("read district record",
					eris.Errorf("record %s has no statistics payload", entry.Key))
			}
			mu.Lock()
			snap.Districts[rec.DistrictID] = *rec.Stats
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return snap, nil
}

func (s *Store) readDistrictRecord(ctx context.Context, key string) (*model.DistrictRecord, error) {
	data, err := s.blobs.Get(ctx, key)
	if err != nil {
		if err == blob.ErrNotFound {
			// A manifest names the record: its absence means the store is
			// inconsistent, not a benign not-found.
			return nil, s.storageErr("read district record",
				eris.Errorf("record %s named by manifest is missing", key))
		}
		return nil, s.storageErr("read district record", err)
	}
	var rec model.DistrictRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, s.storageErr("parse district record", eris.Wrap(err, key))
	}
	return &rec, nil
}

// ReadSideArtifact returns the version's side artifact data, or nil when
// the manifest records none.
func (s *Store) ReadSideArtifact(ctx context.Context, versionID string) ([]byte, error) {
	manifest, err := s.ReadManifest(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if manifest == nil || manifest.Artifact == nil || manifest.Artifact.Status != model.ArtifactPresent {
		return nil, nil
	}
	data, err := s.blobs.Get(ctx, manifest.Artifact.Key)
	if err != nil {
		if err == blob.ErrNotFound {
			return nil, nil
		}
		return nil, s.storageErr("read side artifact", err)
	}
	return data, nil
}

// VersionInfo summarizes one stored snapshot version for listings.
type VersionInfo struct {
	SnapshotID          string               `json:"snapshot_id"`
	Status              model.SnapshotStatus `json:"status"`
	TotalDistricts      int                  `json:"total_districts"`
	SuccessfulDistricts int                  `json:"successful_districts"`
	FailedDistricts     int                  `json:"failed_districts"`
	IsClosingPeriodData bool                 `json:"is_closing_period_data"`
	CollectionDate      string               `json:"collection_date,omitempty"`
	Legacy              bool                 `json:"legacy,omitempty"`
}

// ListFilter narrows ListSnapshots results. Zero values match everything.
type ListFilter struct {
	Status model.SnapshotStatus
	From   string // inclusive version date lower bound
	To     string // inclusive version date upper bound
	Limit  int
}

// ListSnapshots returns version summaries ordered by version key
// descending (newest first).
func (s *Store) ListSnapshots(ctx context.Context, filter ListFilter) ([]VersionInfo, error) {
	ids, err := s.listVersionIDs(ctx)
	if err != nil {
		return nil, err
	}

	var infos []VersionInfo
	for _, id := range ids {
		if filter.From != "" && id < filter.From {
			continue
		}
		if filter.To != "" && id > filter.To {
			continue
		}
		info, err := s.describeVersion(ctx, id)
		if err != nil {
			return nil, err
		}
		if info == nil {
			continue
		}
		if filter.Status != "" && info.Status != filter.Status {
			continue
		}
		infos = append(infos, *info)
		if filter.Limit > 0 && len(infos) >= filter.Limit {
			break
		}
	}
	return infos, nil
}

// listVersionIDs returns all stored version keys, descending.
func (s *Store) listVersionIDs(ctx context.Context) ([]string, error) {
	keys, err := s.blobs.List(ctx, snapshotPrefix)
	if err != nil {
		return nil, s.storageErr("list versions", err)
	}
	seen := make(map[string]bool)
	var ids []string
	for _, key := range keys {
		id := versionFromKey(key)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	// blob.List is ascending; reverse for newest-first.
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
	return ids, nil
}

func (s *Store) describeVersion(ctx context.Context, versionID string) (*VersionInfo, error) {
	manifest, err := s.ReadManifest(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if manifest == nil {
		snap, err := s.readLegacySnapshot(ctx, versionID)
		if err != nil || snap == nil {
			return nil, err
		}
		n := len(snap.Districts)
		return &VersionInfo{
			SnapshotID:          versionID,
			Status:              snap.Status,
			TotalDistricts:      n,
			SuccessfulDistricts: n,
			IsClosingPeriodData: snap.Metadata.IsClosingPeriodData,
			CollectionDate:      snap.Metadata.CollectionDate,
			Legacy:              true,
		}, nil
	}

	meta, err := s.readMetadata(ctx, versionID)
	if err != nil {
		return nil, err
	}
	info := &VersionInfo{
		SnapshotID:          versionID,
		TotalDistricts:      manifest.TotalDistricts,
		SuccessfulDistricts: manifest.SuccessfulDistricts,
		FailedDistricts:     manifest.FailedDistricts,
	}
	if meta != nil {
		info.Status = meta.Status
		info.IsClosingPeriodData = meta.Metadata.IsClosingPeriodData
		info.CollectionDate = meta.Metadata.CollectionDate
	}
	return info, nil
}
