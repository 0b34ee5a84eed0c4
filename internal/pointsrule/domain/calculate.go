package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Calculate converts a monetary amount into points under this rule at the
// given time.
//
// Percentage and multiplier rules multiply the amount by the raw value and
// floor the result, so value 1 on a 100.00 order yields 100 points. Fixed
// rules grant the value regardless of amount. Amounts below the rule
// minimum, or events outside the rule window, earn nothing. Results are
// capped at MaxPerTransaction when set.
func (r PointsRule) Calculate(amount decimal.Decimal, at time.Time) int64 {
	if !r.InWindow(at) {
		return 0
	}
	if amount.LessThan(r.MinimumAmount) {
		return 0
	}

	var pts int64
	switch r.Calculation {
	case CalculationFixed:
		pts = r.Value.Floor().IntPart()
	case CalculationPercentage, CalculationMultiplier:
		pts = amount.Mul(r.Value).Floor().IntPart()
	}
	if pts < 0 {
		return 0
	}
	if r.MaxPerTransaction != nil && pts > *r.MaxPerTransaction {
		pts = *r.MaxPerTransaction
	}
	return pts
}

// InWindow reports whether the rule applies at the given time.
func (r PointsRule) InWindow(at time.Time) bool {
	if r.StartAt != nil && at.Before(*r.StartAt) {
		return false
	}
	if r.EndAt != nil && at.After(*r.EndAt) {
		return false
	}
	return true
}
