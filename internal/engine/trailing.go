package engine

import (
	"github.com/shopspring/decimal"

	"strategylab/internal/domain"
)

// TrailingStops keeps a per-symbol high-water mark (longs) or low-water mark
// (shorts) and derives the trailing stop price from it. The stop only ever
// moves in the position's favor.
type TrailingStops struct {
	pct   decimal.Decimal
	marks map[string]decimal.Decimal
}

// NewTrailingStops creates a manager trailing by pct (0.05 = 5%). A
// non-positive pct disables trailing.
func NewTrailingStops(pct float64) *TrailingStops {
	return &TrailingStops{
		pct:   domain.ToDecimal(pct),
		marks: make(map[string]decimal.Decimal),
	}
}

// Enabled reports whether trailing is configured.
func (ts *TrailingStops) Enabled() bool { return ts.pct.IsPositive() }

// Start seeds the mark for a new position at its entry price.
func (ts *TrailingStops) Start(symbol string, entry decimal.Decimal) {
	if !ts.Enabled() {
		return
	}
	ts.marks[symbol] = entry
}

// Update advances the mark with the bar's extreme and returns the trailing
// stop price.
func (ts *TrailingStops) Update(symbol string, side domain.PositionSide, high, low decimal.Decimal) (decimal.Decimal, bool) {
	if !ts.Enabled() {
		return decimal.Zero, false
	}
	mark, ok := ts.marks[symbol]
	one := decimal.NewFromInt(1)
	if side == domain.PositionSideShort {
		if !ok || low.LessThan(mark) {
			mark = low
		}
		ts.marks[symbol] = mark
		return mark.Mul(one.Add(ts.pct)), true
	}
	if !ok || high.GreaterThan(mark) {
		mark = high
	}
	ts.marks[symbol] = mark
	return mark.Mul(one.Sub(ts.pct)), true
}

// Remove forgets the mark for symbol.
func (ts *TrailingStops) Remove(symbol string) {
	delete(ts.marks, symbol)
}
