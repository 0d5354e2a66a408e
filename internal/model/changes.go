package model

// Change field names appended to DataChanges.ChangedFields.
const (
	FieldMembership    = "membership"
	FieldClubCount     = "club_count"
	FieldDistinguished = "distinguished"
)

// PercentChange records a before/after pair with relative delta.
// Percent is 0 when the previous value is 0, rounded to 2 decimal places.
type PercentChange struct {
	Previous      int     `json:"previous"`
	Current       int     `json:"current"`
	PercentChange float64 `json:"percent_change"`
}

// AbsoluteChange records a before/after pair with absolute delta.
type AbsoluteChange struct {
	Previous       int `json:"previous"`
	Current        int `json:"current"`
	AbsoluteChange int `json:"absolute_change"`
}

// DataChanges holds the field-level deltas between two observations of a
// district's statistics. A dimension is present only if it differs.
type DataChanges struct {
	DistrictID    string          `json:"district_id"`
	Membership    *PercentChange  `json:"membership,omitempty"`
	ClubCount     *AbsoluteChange `json:"club_count,omitempty"`
	Distinguished *PercentChange  `json:"distinguished,omitempty"`
	ChangedFields []string        `json:"changed_fields"`
	HasChanges    bool            `json:"has_changes"`
}

// ChangeMetrics is a non-binary scoring view of a DataChanges, used for
// trend reporting independently of the pass/fail threshold check.
type ChangeMetrics struct {
	MembershipImpact    float64 `json:"membership_impact"`
	ClubCountImpact     float64 `json:"club_count_impact"`
	DistinguishedImpact float64 `json:"distinguished_impact"`
	OverallSignificance float64 `json:"overall_significance"`
}

// SignificantChangeThresholds configures per-dimension significance cutoffs.
// A change whose absolute value meets or exceeds its threshold is
// significant; dimensions are evaluated independently (OR, not weighted).
type SignificantChangeThresholds struct {
	MembershipPercent    float64 `json:"membership_percent" mapstructure:"membership_percent" validate:"gt=0"`
	ClubCountAbsolute    int     `json:"club_count_absolute" mapstructure:"club_count_absolute" validate:"gt=0"`
	DistinguishedPercent float64 `json:"distinguished_percent" mapstructure:"distinguished_percent" validate:"gt=0"`
}

// ReconciliationConfig controls the month-end reconciliation windows.
// Validated on load and update; invalid values are rejected, never clamped.
type ReconciliationConfig struct {
	MaxReconciliationDays      int                         `json:"max_reconciliation_days" mapstructure:"max_reconciliation_days" validate:"gte=1,lte=90"`
	StabilityPeriodDays        int                         `json:"stability_period_days" mapstructure:"stability_period_days" validate:"gte=1,lte=30"`
	CheckFrequencyHours        int                         `json:"check_frequency_hours" mapstructure:"check_frequency_hours" validate:"gte=1,lte=168"`
	Thresholds                 SignificantChangeThresholds `json:"significant_change_thresholds" mapstructure:"thresholds"`
	AutoExtensionEnabled       bool                        `json:"auto_extension_enabled" mapstructure:"auto_extension_enabled"`
	MaxExtensionDays           int                         `json:"max_extension_days" mapstructure:"max_extension_days" validate:"gte=0,lte=30"`
	ExtensionIncrementDays     int                         `json:"extension_increment_days" mapstructure:"extension_increment_days" validate:"gte=1,lte=14"`
	ExtensionTriggerWindowDays int                         `json:"extension_trigger_window_days" mapstructure:"extension_trigger_window_days" validate:"gte=1,lte=14"`
}

// DefaultReconciliationConfig returns the fallback configuration used when
// the persisted document is absent or fails validation.
func DefaultReconciliationConfig() ReconciliationConfig {
	return ReconciliationConfig{
		MaxReconciliationDays: 14,
		StabilityPeriodDays:   3,
		CheckFrequencyHours:   24,
		Thresholds: SignificantChangeThresholds{
			MembershipPercent:    1.0,
			ClubCountAbsolute:    1,
			DistinguishedPercent: 5.0,
		},
		AutoExtensionEnabled:       true,
		MaxExtensionDays:           7,
		ExtensionIncrementDays:     3,
		ExtensionTriggerWindowDays: 3,
	}
}
