package formula

import (
	"math"

	"github.com/andresuchdata/clinic-stock/backend-go/internal/domain"
)

// Validate checks a rule before it is saved
func Validate(rule *domain.FormulaRule) error {
	if rule.ClinicID <= 0 {
		return domain.NewValidationError("clinic_id", "clinic is required")
	}
	if rule.ProductID <= 0 {
		return domain.NewValidationError("product_id", "product is required")
	}

	numeric := []struct {
		field string
		value float64
	}{
		{"multiplier", rule.Multiplier},
		{"weekend_factor", rule.WeekendFactor},
		{"buffer", rule.Buffer},
		{"minimum_value", rule.MinimumValue},
		{"maximum_value", rule.MaximumValue},
		{"fixed_value", rule.FixedValue},
	}
	for _, n := range numeric {
		if math.IsNaN(n.value) || math.IsInf(n.value, 0) {
			return domain.NewValidationError(n.field, "must be a finite number")
		}
	}

	if rule.MinimumValue != 0 && rule.MaximumValue != 0 && rule.MinimumValue > rule.MaximumValue {
		return domain.NewValidationError("minimum_value", "minimum value cannot be greater than maximum value")
	}

	return nil
}
