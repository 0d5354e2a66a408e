package model

import (
	"time"
)

// Current version tags stamped onto every snapshot at write time. Readers
// compare these against stored values to decide compatibility.
const (
	CurrentSchemaVersion      = "2.1"
	CurrentCalculationVersion = "1.4"
	CurrentRankingVersion     = "1.1"
)

// SnapshotStatus represents the overall outcome of a snapshot write.
type SnapshotStatus string

const (
	SnapshotStatusSuccess SnapshotStatus = "success"
	SnapshotStatusPartial SnapshotStatus = "partial"
	SnapshotStatusFailed  SnapshotStatus = "failed"
)

// RecordStatus represents the outcome of a single district's write.
type RecordStatus string

const (
	RecordStatusSuccess RecordStatus = "success"
	RecordStatusFailed  RecordStatus = "failed"
)

// DistinguishedBreakdown counts clubs by distinguished recognition level.
type DistinguishedBreakdown struct {
	Distinguished int `json:"distinguished"`
	Select        int `json:"select"`
	Presidents    int `json:"presidents"`
}

// Total returns the combined distinguished club count across all levels.
func (d DistinguishedBreakdown) Total() int {
	return d.Distinguished + d.Select + d.Presidents
}

// DistrictStatistics holds one district's rolled-up figures for a period.
// The roll-up formulas live upstream; these are opaque inputs here.
type DistrictStatistics struct {
	MembershipTotal    int                    `json:"membership_total"`
	ClubCount          int                    `json:"club_count"`
	DistinguishedClubs DistinguishedBreakdown `json:"distinguished_clubs"`
	PaidClubBase       int                    `json:"paid_club_base,omitempty"`
	MembershipBase     int                    `json:"membership_base,omitempty"`
}

// DistrictRecord is one district's document within a snapshot version.
// Written exactly once per (version, district) by the ingest pipeline;
// immutable after the manifest's write_complete flag is set, except for
// in-place overwrite during closing-period reconciliation.
type DistrictRecord struct {
	DistrictID   string              `json:"district_id"`
	CollectedAt  time.Time           `json:"collected_at"`
	Status       RecordStatus        `json:"status"`
	ErrorMessage string              `json:"error_message,omitempty"`
	Stats        *DistrictStatistics `json:"stats,omitempty"`
}

// FetchMetadata records where a snapshot's data came from and which period
// it covers. LogicalDate equals DataAsOfDate unless closing-period data is
// in effect, in which case LogicalDate is the last day of the data month
// and CollectionDate preserves the true fetch date.
type FetchMetadata struct {
	Source              string    `json:"source"`
	FetchedAt           time.Time `json:"fetched_at"`
	DataAsOfDate        string    `json:"data_as_of_date"`
	IsClosingPeriodData bool      `json:"is_closing_period_data"`
	CollectionDate      string    `json:"collection_date,omitempty"`
	LogicalDate         string    `json:"logical_date,omitempty"`
}

// Snapshot is one dated capture of all districts' statistics.
type Snapshot struct {
	SnapshotID         string                        `json:"snapshot_id"`
	Status             SnapshotStatus                `json:"status"`
	SchemaVersion      string                        `json:"schema_version"`
	CalculationVersion string                        `json:"calculation_version"`
	RankingVersion     string                        `json:"ranking_version,omitempty"`
	Errors             []string                      `json:"errors,omitempty"`
	Metadata           FetchMetadata                 `json:"metadata"`
	Districts          map[string]DistrictStatistics `json:"districts"`
}

// EffectiveDate returns the logical date if set, otherwise the data-as-of
// date. This is the date snapshots are keyed by.
func (s *Snapshot) EffectiveDate() string {
	if s.Metadata.LogicalDate != "" {
		return s.Metadata.LogicalDate
	}
	return s.Metadata.DataAsOfDate
}

// CurrentPointer names the most recent successful snapshot. Only ever
// updated for snapshots whose status is success, and only via atomic
// replace.
type CurrentPointer struct {
	SnapshotID         string    `json:"snapshot_id"`
	UpdatedAt          time.Time `json:"updated_at"`
	SchemaVersion      string    `json:"schema_version"`
	CalculationVersion string    `json:"calculation_version"`
}
