package analytics

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"strategylab/internal/domain"
)

// FormatMoney formats an amount with comma separators and two decimals.
func FormatMoney(d decimal.Decimal) string {
	f := domain.Float(d)
	if f < 0 {
		return "-$" + humanize.FormatFloat("#,###.##", -f)
	}
	return "$" + humanize.FormatFloat("#,###.##", f)
}

// FormatPct formats a percentage with an explicit sign.
// Drops decimals for values >= 1000% to keep width compact.
func FormatPct(p float64) string {
	switch {
	case math.IsNaN(p) || math.IsInf(p, 0):
		return "-"
	case math.Abs(p) >= 1000:
		return fmt.Sprintf("%+.0f%%", p)
	default:
		return fmt.Sprintf("%+.2f%%", p)
	}
}

// FormatRatio formats an optional ratio, "-" when undefined.
func FormatRatio(r *float64) string {
	if r == nil {
		return "-"
	}
	return FormatFloat(*r)
}

// FormatFloat formats a plain statistic.
func FormatFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "-"
	}
	return fmt.Sprintf("%.2f", f)
}

// FormatCount formats a count, using a K suffix for large values.
func FormatCount(n int) string {
	if n >= 100_000 {
		return fmt.Sprintf("%.0fK", float64(n)/1e3)
	}
	return humanize.Comma(int64(n))
}
