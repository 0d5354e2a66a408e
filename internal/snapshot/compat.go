package snapshot

import (
	"context"
	"fmt"

	"github.com/clubmetrics/districtsync/internal/model"
)

// CompatibilityResult reports how a stored snapshot's version tags compare
// against the running system's. Schema mismatch is hard-incompatible;
// calculation and ranking mismatches are soft warnings only.
type CompatibilityResult struct {
	IsCompatible          bool     `json:"is_compatible"`
	SchemaCompatible      bool     `json:"schema_compatible"`
	CalculationCompatible bool     `json:"calculation_compatible"`
	RankingCompatible     bool     `json:"ranking_compatible"`
	Warnings              []string `json:"warnings,omitempty"`
}

// CheckVersionCompatibility compares a stored version's schema,
// calculation, and ranking tags against the current ones. Returns nil when
// the version does not exist.
func (s *Store) CheckVersionCompatibility(ctx context.Context, versionID string) (*CompatibilityResult, error) {
	meta, err := s.readMetadata(ctx, versionID)
	if err != nil {
		return nil, err
	}

	var schema, calc, ranking string
	if meta != nil {
		schema, calc, ranking = meta.SchemaVersion, meta.CalculationVersion, meta.RankingVersion
	} else {
		legacy, err := s.readLegacySnapshot(ctx, versionID)
		if err != nil {
			return nil, err
		}
		if legacy == nil {
			return nil, nil
		}
		schema, calc, ranking = legacy.SchemaVersion, legacy.CalculationVersion, legacy.RankingVersion
	}

	res := &CompatibilityResult{
		SchemaCompatible:      schema == model.CurrentSchemaVersion,
		CalculationCompatible: calc == model.CurrentCalculationVersion,
		RankingCompatible:     ranking == "" || ranking == model.CurrentRankingVersion,
	}
	res.IsCompatible = res.SchemaCompatible

	if !res.SchemaCompatible {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"schema version %q does not match current %q; data cannot be read safely",
			schema, model.CurrentSchemaVersion))
	}
	if !res.CalculationCompatible {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"calculation version %q differs from current %q; figures were computed under a different formula generation",
			calc, model.CurrentCalculationVersion))
	}
	if !res.RankingCompatible {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"ranking version %q differs from current %q; rankings may not be comparable",
			ranking, model.CurrentRankingVersion))
	}
	return res, nil
}
