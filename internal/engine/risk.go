package engine

import (
	"github.com/shopspring/decimal"

	"strategylab/internal/domain"
)

// ---------------------------------------------------------------------------
// Margin
// ---------------------------------------------------------------------------

// MarginTracker tracks leverage utilization and buying power for a
// configured margin multiplier.
type MarginTracker struct {
	multiplier      decimal.Decimal
	utilization     float64
	peakUtilization float64
}

// NewMarginTracker creates a MarginTracker. Multipliers below 1.0 are
// treated as 1.0 (cash account).
func NewMarginTracker(multiplier float64) *MarginTracker {
	if multiplier < 1 {
		multiplier = 1
	}
	return &MarginTracker{multiplier: domain.ToDecimal(multiplier)}
}

// BuyingPower returns cash scaled by the multiplier, less the cost basis
// already committed to open shorts. It never goes negative.
func (m *MarginTracker) BuyingPower(cash, shortBasis decimal.Decimal) decimal.Decimal {
	if !cash.IsPositive() {
		return decimal.Zero
	}
	bp := cash.Mul(m.multiplier).Sub(shortBasis)
	if bp.IsNegative() {
		return decimal.Zero
	}
	return bp
}

// Update records the utilization snapshot gross/equity.
func (m *MarginTracker) Update(gross, equity decimal.Decimal) {
	if !equity.IsPositive() {
		return
	}
	m.utilization = domain.Float(gross.Div(equity))
	if m.utilization > m.peakUtilization {
		m.peakUtilization = m.utilization
	}
}

// Utilization returns the latest snapshot.
func (m *MarginTracker) Utilization() float64 { return m.utilization }

// PeakUtilization returns the highest snapshot seen.
func (m *MarginTracker) PeakUtilization() float64 { return m.peakUtilization }

// ---------------------------------------------------------------------------
// Circuit breaker
// ---------------------------------------------------------------------------

// CircuitBreaker halts new entries once equity has fallen more than a
// threshold below its running peak. Once tripped it stays halted for the
// rest of the run.
type CircuitBreaker struct {
	maxDrawdown float64
	peak        decimal.Decimal
	halted      bool
}

// NewCircuitBreaker creates a CircuitBreaker for maxDrawdown (a fraction,
// 0.10 = 10%). A non-positive value disables it.
func NewCircuitBreaker(maxDrawdown float64) *CircuitBreaker {
	return &CircuitBreaker{maxDrawdown: maxDrawdown}
}

// Check folds equity into the running peak and reports whether trading is
// halted.
func (cb *CircuitBreaker) Check(equity decimal.Decimal) bool {
	if cb.maxDrawdown <= 0 {
		return false
	}
	if equity.GreaterThan(cb.peak) {
		cb.peak = equity
	}
	if !cb.halted && cb.peak.IsPositive() {
		dd := domain.Float(cb.peak.Sub(equity).Div(cb.peak))
		if dd > cb.maxDrawdown {
			cb.halted = true
		}
	}
	return cb.halted
}

// Halted reports the current state without updating it.
func (cb *CircuitBreaker) Halted() bool { return cb.halted }
