package snapshot

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/clubmetrics/districtsync/internal/blob"
	"github.com/clubmetrics/districtsync/internal/model"
)

// legacySnapshot is the pre-migration aggregate format: one document per
// version holding every district inline. Still readable, never written.
type legacySnapshot struct {
	SnapshotID         string                         `json:"snapshot_id"`
	Status             model.SnapshotStatus           `json:"status"`
	SchemaVersion      string                         `json:"schema_version"`
	CalculationVersion string                         `json:"calculation_version"`
	RankingVersion     string                         `json:"ranking_version,omitempty"`
	Errors             []string                       `json:"errors,omitempty"`
	Metadata           model.FetchMetadata            `json:"metadata"`
	Districts          map[string]legacyDistrictStats `json:"districts"`
}

// legacyDistrictStats defers decoding of the distinguished counts, which
// historically appeared either as an object or as a bare 3-element array.
type legacyDistrictStats struct {
	MembershipTotal    int             `json:"membership_total"`
	ClubCount          int             `json:"club_count"`
	DistinguishedClubs json.RawMessage `json:"distinguished_clubs,omitempty"`
	PaidClubBase       int             `json:"paid_club_base,omitempty"`
	MembershipBase     int             `json:"membership_base,omitempty"`
}

// isLegacyCountsFormat reports whether raw is the historical array form
// [distinguished, select, presidents] rather than the keyed object form.
func isLegacyCountsFormat(raw json.RawMessage) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '[':
			return true
		default:
			return false
		}
	}
	return false
}

// decodeDistinguished transforms either counts variant into the breakdown
// struct. The array form is a one-way conversion; it is never written back.
func decodeDistinguished(raw json.RawMessage) (model.DistinguishedBreakdown, error) {
	var out model.DistinguishedBreakdown
	if len(raw) == 0 {
		return out, nil
	}
	if isLegacyCountsFormat(raw) {
		var counts []int
		if err := json.Unmarshal(raw, &counts); err != nil {
			return out, eris.Wrap(err, "legacy counts array")
		}
		if len(counts) > 0 {
			out.Distinguished = counts[0]
		}
		if len(counts) > 1 {
			out.Select = counts[1]
		}
		if len(counts) > 2 {
			out.Presidents = counts[2]
		}
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, eris.Wrap(err, "distinguished counts object")
	}
	return out, nil
}

// readLegacySnapshot reads the pre-migration single-blob format. Returns
// nil when no legacy document exists for the version.
func (s *Store) readLegacySnapshot(ctx context.Context, versionID string) (*model.Snapshot, error) {
	data, err := s.blobs.Get(ctx, legacyKey(versionID))
	if err != nil {
		if err == blob.ErrNotFound {
			return nil, nil
		}
		return nil, s.storageErr("read legacy snapshot", err)
	}

	var legacy legacySnapshot
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, s.storageErr("parse legacy snapshot", eris.Wrapf(err, "version %s", versionID))
	}

	snap := &model.Snapshot{
		SnapshotID:         versionID,
		Status:             legacy.Status,
		SchemaVersion:      legacy.SchemaVersion,
		CalculationVersion: legacy.CalculationVersion,
		RankingVersion:     legacy.RankingVersion,
		Errors:             legacy.Errors,
		Metadata:           legacy.Metadata,
		Districts:          make(map[string]model.DistrictStatistics, len(legacy.Districts)),
	}
	for id, ls := range legacy.Districts {
		breakdown, err := decodeDistinguished(ls.DistinguishedClubs)
		if err != nil {
			return nil, s.storageErr("parse legacy snapshot",
				eris.Wrapf(err, "version %s district %s", versionID, id))
		}
		snap.Districts[id] = model.DistrictStatistics{
			MembershipTotal:    ls.MembershipTotal,
			ClubCount:          ls.ClubCount,
			DistinguishedClubs: breakdown,
			PaidClubBase:       ls.PaidClubBase,
			MembershipBase:     ls.MembershipBase,
		}
	}
	return snap, nil
}
