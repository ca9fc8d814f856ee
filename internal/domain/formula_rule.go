package domain

import (
	"fmt"
	"time"
)

// DefaultPreviewCount is the sample therapy count used when none is given
const DefaultPreviewCount = 20

// FormulaRule turns a clinic's daily therapy count into a target quantity
// for one product. Zero MinimumValue, MaximumValue and FixedValue mean unset.
type FormulaRule struct {
	ID              int64        `json:"id" db:"id"`
	ClinicID        int64        `json:"clinic_id" db:"clinic_id"`
	ProductID       int64        `json:"product_id" db:"product_id"`
	DisplayName     string       `json:"display_name" db:"display_name"`
	Multiplier      float64      `json:"multiplier" db:"multiplier"`
	StartingRoundUp bool         `json:"starting_round_up" db:"starting_round_up"`
	WeekendFactor   float64      `json:"weekend_factor" db:"weekend_factor"`
	Buffer          float64      `json:"buffer" db:"buffer"`
	EndingRoundUp   bool         `json:"ending_round_up" db:"ending_round_up"`
	MinimumValue    float64      `json:"minimum_value" db:"minimum_value"`
	MaximumValue    float64      `json:"maximum_value" db:"maximum_value"`
	FixedValue      float64      `json:"fixed_value" db:"fixed_value"`
	Status          RecordStatus `json:"status" db:"status"`
	CreatedAt       time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at" db:"updated_at"`
}

// NewFormulaRule returns a rule with the neutral defaults applied
func NewFormulaRule(clinicID, productID int64) *FormulaRule {
	return &FormulaRule{
		ClinicID:      clinicID,
		ProductID:     productID,
		Multiplier:    1.0,
		WeekendFactor: 1.0,
		Status:        StatusActive,
	}
}

// ApplyNeutralFactors replaces a zero multiplier or weekend factor with 1
func (r *FormulaRule) ApplyNeutralFactors() {
	if r.Multiplier == 0 {
		r.Multiplier = 1.0
	}
	if r.WeekendFactor == 0 {
		r.WeekendFactor = 1.0
	}
}

// IsActive reports whether the rule takes part in planning
func (r *FormulaRule) IsActive() bool {
	return r.Status == "" || r.Status == StatusActive
}

// RuleDisplayName builds the "<clinic> - <product>" label
func RuleDisplayName(clinicName, productName string) string {
	if clinicName == "" || productName == "" {
		return "New Rule"
	}
	return fmt.Sprintf("%s - %s", clinicName, productName)
}

// FormulaRuleFilter narrows rule listings
type FormulaRuleFilter struct {
	ClinicID        int64 `json:"clinic_id"`
	ProductID       int64 `json:"product_id"`
	IncludeArchived bool  `json:"include_archived"`
}

// FormulaBreakdown holds every intermediate value of a formula evaluation
type FormulaBreakdown struct {
	TherapyCount    int     `json:"therapy_count"`
	Base            float64 `json:"base"`
	AfterStartRound float64 `json:"after_start_round"`
	AfterWeekend    float64 `json:"after_weekend"`
	AfterBuffer     float64 `json:"after_buffer"`
	AfterEndRound   float64 `json:"after_end_round"`
	Final           float64 `json:"final"`
	Fixed           bool    `json:"fixed"`
}
