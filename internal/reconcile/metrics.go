package reconcile

import (
	"github.com/shopspring/decimal"

	"github.com/clubmetrics/districtsync/internal/model"
)

// Fixed weights for the overall significance score. This is a trend
// reporting view only; the pass/fail threshold check in
// IsSignificantChange is independent of these weights.
var (
	weightMembership    = decimal.NewFromFloat(0.4)
	weightClubCount     = decimal.NewFromFloat(0.3)
	weightDistinguished = decimal.NewFromFloat(0.3)
)

// CalculateChangeMetrics produces per-dimension impact percentages and a
// weighted overall significance score for a set of changes.
func CalculateChangeMetrics(changes *model.DataChanges) model.ChangeMetrics {
	var m model.ChangeMetrics
	if changes == nil || !changes.HasChanges {
		return m
	}

	if changes.Membership != nil {
		m.MembershipImpact = absFloat(changes.Membership.PercentChange)
	}
	if changes.ClubCount != nil {
		// Club count impact is the relative size of the absolute delta.
		m.ClubCountImpact = absFloat(percentChange(changes.ClubCount.Previous, changes.ClubCount.Current))
	}
	if changes.Distinguished != nil {
		m.DistinguishedImpact = absFloat(changes.Distinguished.PercentChange)
	}

	overall := weightMembership.Mul(decimal.NewFromFloat(m.MembershipImpact)).
		Add(weightClubCount.Mul(decimal.NewFromFloat(m.ClubCountImpact))).
		Add(weightDistinguished.Mul(decimal.NewFromFloat(m.DistinguishedImpact))).
		Round(2)
	m.OverallSignificance, _ = overall.Float64()
	return m
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
