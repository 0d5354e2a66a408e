// Package reconcile implements month-end reconciliation: change detection
// against configurable thresholds and the bounded-duration monitoring state
// machine that decides when a snapshot-in-flux has settled.
package reconcile

import (
	"github.com/shopspring/decimal"

	"github.com/clubmetrics/districtsync/internal/model"
)

// percentChange computes 100*(cur-prev)/prev rounded to 2 decimal places.
// Returns 0 when prev is 0. decimal keeps the threshold boundary exact: a
// change landing precisely on a configured cutoff must classify as
// significant, which float arithmetic cannot promise.
func percentChange(prev, cur int) float64 {
	if prev == 0 {
		return 0
	}
	pct := decimal.NewFromInt(int64(cur - prev)).
		Div(decimal.NewFromInt(int64(prev))).
		Mul(decimal.NewFromInt(100)).
		Round(2)
	f, _ := pct.Float64()
	return f
}

// DetectChanges compares two observations of a district's statistics
// across exactly three dimensions: membership total, club count, and the
// distinguished-status breakdown. A dimension is recorded only if it
// differs.
func DetectChanges(districtID string, previous, current model.DistrictStatistics) *model.DataChanges {
	changes := &model.DataChanges{DistrictID: districtID}

	if previous.MembershipTotal != current.MembershipTotal {
		changes.Membership = &model.PercentChange{
			Previous:      previous.MembershipTotal,
			Current:       current.MembershipTotal,
			PercentChange: percentChange(previous.MembershipTotal, current.MembershipTotal),
		}
		changes.ChangedFields = append(changes.ChangedFields, model.FieldMembership)
	}

	if previous.ClubCount != current.ClubCount {
		changes.ClubCount = &model.AbsoluteChange{
			Previous:       previous.ClubCount,
			Current:        current.ClubCount,
			AbsoluteChange: current.ClubCount - previous.ClubCount,
		}
		changes.ChangedFields = append(changes.ChangedFields, model.FieldClubCount)
	}

	prevDist := previous.DistinguishedClubs.Total()
	curDist := current.DistinguishedClubs.Total()
	if prevDist != curDist {
		changes.Distinguished = &model.PercentChange{
			Previous:      prevDist,
			Current:       curDist,
			PercentChange: percentChange(prevDist, curDist),
		}
		changes.ChangedFields = append(changes.ChangedFields, model.FieldDistinguished)
	}

	changes.HasChanges = len(changes.ChangedFields) > 0
	return changes
}

// IsSignificantChange reports whether any dimension's change meets or
// exceeds its configured threshold (absolute value, >= boundary).
// Dimensions are evaluated independently: significance is an OR across
// dimensions, never a weighted composite. Short-circuits on the first hit.
func IsSignificantChange(changes *model.DataChanges, thresholds model.SignificantChangeThresholds) bool {
	if changes == nil || !changes.HasChanges {
		return false
	}

	if changes.Membership != nil {
		pct := decimal.NewFromFloat(changes.Membership.PercentChange).Abs()
		if pct.GreaterThanOrEqual(decimal.NewFromFloat(thresholds.MembershipPercent)) {
			return true
		}
	}
	if changes.ClubCount != nil {
		abs := changes.ClubCount.AbsoluteChange
		if abs < 0 {
			abs = -abs
		}
		if abs >= thresholds.ClubCountAbsolute {
			return true
		}
	}
	if changes.Distinguished != nil {
		pct := decimal.NewFromFloat(changes.Distinguished.PercentChange).Abs()
		if pct.GreaterThanOrEqual(decimal.NewFromFloat(thresholds.DistinguishedPercent)) {
			return true
		}
	}
	return false
}
