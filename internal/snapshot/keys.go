package snapshot

import (
	"path"
	"strings"
)

// Storage layout. One directory-like prefix per snapshot version, plus a
// single pointer object at the collection root. Pre-migration snapshots
// live as one aggregate document directly under the snapshots prefix.
const (
	snapshotPrefix = "snapshots/"
	pointerKey     = "current.json"

	manifestName = "manifest.json"
	metadataName = "metadata.json"
	auditName    = "audit.jsonl"
	districtsDir = "districts"
)

func manifestKey(versionID string) string {
	return path.Join(snapshotPrefix+versionID, manifestName)
}

func metadataKey(versionID string) string {
	return path.Join(snapshotPrefix+versionID, metadataName)
}

func districtKey(versionID, districtID string) string {
	return path.Join(snapshotPrefix+versionID, districtsDir, districtID+".json")
}

func artifactKey(versionID, name string) string {
	return path.Join(snapshotPrefix+versionID, name)
}

func auditKey(versionID string) string {
	return path.Join(snapshotPrefix+versionID, auditName)
}

// legacyKey is the pre-migration single-blob location for a version.
func legacyKey(versionID string) string {
	return snapshotPrefix + versionID + ".json"
}

// versionFromKey extracts the snapshot version a key belongs to, or "".
func versionFromKey(key string) string {
	rest, ok := strings.CutPrefix(key, snapshotPrefix)
	if !ok {
		return ""
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return rest[:i]
	}
	// Legacy single-blob: snapshots/<id>.json
	return strings.TrimSuffix(rest, ".json")
}
