package model

import "time"

// ArtifactStatus reports whether a side artifact was written.
type ArtifactStatus string

const (
	ArtifactPresent ArtifactStatus = "present"
	ArtifactMissing ArtifactStatus = "missing"
)

// ManifestEntry records the write outcome for a single district record.
type ManifestEntry struct {
	DistrictID   string       `json:"district_id"`
	Key          string       `json:"key"`
	Status       RecordStatus `json:"status"`
	Size         int64        `json:"size"`
	LastModified time.Time    `json:"last_modified"`
	ErrorMessage string       `json:"error_message,omitempty"`
}

// ArtifactDescriptor describes an optional cross-district side artifact
// (e.g. a rankings file) attached to a snapshot version.
type ArtifactDescriptor struct {
	Key    string         `json:"key"`
	Status ArtifactStatus `json:"status"`
	Size   int64          `json:"size,omitempty"`
}

// Manifest is the per-version index of district write outcomes.
// Invariant: SuccessfulDistricts + FailedDistricts == TotalDistricts.
type Manifest struct {
	SnapshotID          string              `json:"snapshot_id"`
	Entries             []ManifestEntry     `json:"entries"`
	TotalDistricts      int                 `json:"total_districts"`
	SuccessfulDistricts int                 `json:"successful_districts"`
	FailedDistricts     int                 `json:"failed_districts"`
	Artifact            *ArtifactDescriptor `json:"artifact,omitempty"`
	WriteComplete       bool                `json:"write_complete"`
	WrittenAt           time.Time           `json:"written_at"`
}

// Entry returns the manifest entry for a district, or nil.
func (m *Manifest) Entry(districtID string) *ManifestEntry {
	for i := range m.Entries {
		if m.Entries[i].DistrictID == districtID {
			return &m.Entries[i]
		}
	}
	return nil
}
