package formula

import (
	"math"
	"testing"

	"github.com/andresuchdata/clinic-stock/backend-go/internal/domain"
)

func TestValidate(t *testing.T) {
	testCases := []struct {
		name      string
		mutate    func(r *domain.FormulaRule)
		wantField string
	}{
		{"valid defaults", func(r *domain.FormulaRule) {}, ""},
		{"min equals max", func(r *domain.FormulaRule) { r.MinimumValue, r.MaximumValue = 5, 5 }, ""},
		{"only minimum", func(r *domain.FormulaRule) { r.MinimumValue = 50 }, ""},
		{"min above max", func(r *domain.FormulaRule) { r.MinimumValue, r.MaximumValue = 30, 20 }, "minimum_value"},
		{"missing clinic", func(r *domain.FormulaRule) { r.ClinicID = 0 }, "clinic_id"},
		{"missing product", func(r *domain.FormulaRule) { r.ProductID = 0 }, "product_id"},
		{"nan multiplier", func(r *domain.FormulaRule) { r.Multiplier = math.NaN() }, "multiplier"},
		{"infinite buffer", func(r *domain.FormulaRule) { r.Buffer = math.Inf(1) }, "buffer"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rule := domain.NewFormulaRule(3, 4)
			tc.mutate(rule)
			err := Validate(rule)
			if tc.wantField == "" {
				if err != nil {
					t.Fatalf("Expected rule to be valid, got %v", err)
				}
				return
			}
			var valErr *domain.ValidationError
			if !asValidation(err, &valErr) {
				t.Fatalf("Expected ValidationError, got %v", err)
			}
			if valErr.Field != tc.wantField {
				t.Errorf("Expected field %s, got %s", tc.wantField, valErr.Field)
			}
		})
	}
}

func asValidation(err error, target **domain.ValidationError) bool {
	v, ok := err.(*domain.ValidationError)
	if ok {
		*target = v
	}
	return ok
}
