package formula

import (
	"math"

	"github.com/andresuchdata/clinic-stock/backend-go/internal/domain"
	"github.com/shopspring/decimal"
)

// QuantityPlaces is the number of decimals stock quantities are stored with
const QuantityPlaces = 4

// Compute returns the target quantity a rule yields for a therapy count.
// Steps run in a fixed order; each one feeds the next.
func Compute(rule *domain.FormulaRule, therapyCount int) float64 {
	return evaluate(rule, therapyCount).Final
}

// Preview returns every intermediate value of the calculation for a sample
// therapy count. Final always equals Compute for the same inputs.
func Preview(rule *domain.FormulaRule, sampleCount int) domain.FormulaBreakdown {
	return evaluate(rule, sampleCount)
}

func evaluate(rule *domain.FormulaRule, therapyCount int) domain.FormulaBreakdown {
	breakdown := domain.FormulaBreakdown{TherapyCount: therapyCount}

	// 1. Fixed value overrides everything. Zero counts as unset.
	if rule.FixedValue != 0 {
		breakdown.Fixed = true
		breakdown.Final = rule.FixedValue
		return breakdown
	}

	// 2. Base = therapy count × multiplier
	result := decimal.NewFromInt(int64(therapyCount)).Mul(toDecimal(rule.Multiplier))
	breakdown.Base = result.InexactFloat64()

	// 3. Optional round up before weekend/buffer
	if rule.StartingRoundUp {
		result = result.Ceil()
	}
	breakdown.AfterStartRound = result.InexactFloat64()

	// 4. Weekend factor
	result = result.Mul(toDecimal(rule.WeekendFactor))
	breakdown.AfterWeekend = result.InexactFloat64()

	// 5. Safety buffer
	result = result.Add(toDecimal(rule.Buffer))
	breakdown.AfterBuffer = result.InexactFloat64()

	// 6. Optional round up of the buffered value
	if rule.EndingRoundUp {
		result = result.Ceil()
	}
	breakdown.AfterEndRound = result.InexactFloat64()

	// 7. Clamp to minimum, then maximum
	if rule.MinimumValue != 0 {
		result = decimal.Max(result, toDecimal(rule.MinimumValue))
	}
	if rule.MaximumValue != 0 {
		result = decimal.Min(result, toDecimal(rule.MaximumValue))
	}
	breakdown.Final = result.InexactFloat64()

	return breakdown
}

// Shortage is the quantity missing to reach target given a stock position.
// It is never negative: surplus stock is not pulled back. The result is
// rounded to QuantityPlaces so it matches what the transfer store keeps.
func Shortage(target float64, position domain.StockPosition) float64 {
	net := toDecimal(position.Available).Sub(toDecimal(position.Reserved))
	shortage := toDecimal(target).Sub(net).Round(QuantityPlaces)
	if !shortage.IsPositive() {
		return 0
	}
	return shortage.InexactFloat64()
}

// toDecimal converts a float using its shortest representation so values
// like 1.1 stay exact. Non-finite values are rejected by Validate at save
// time and collapse to zero here.
func toDecimal(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}
