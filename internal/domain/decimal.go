package domain

import (
	"math"

	"github.com/shopspring/decimal"
)

// ToDecimal converts f to a decimal. Values that have no decimal
// representation (NaN, ±Inf) become zero.
func ToDecimal(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

// Float returns d as a float64.
func Float(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

// DecimalPtr returns a pointer to a copy of d.
func DecimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}
