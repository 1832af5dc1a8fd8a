package engine

import (
	"sort"

	"github.com/shopspring/decimal"

	"strategylab/internal/domain"
)

// Ledger tracks open positions in memory, at most one per symbol. It is
// owned by a single Engine run and never shared.
type Ledger struct {
	positions map[string]*domain.Position
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{
		positions: make(map[string]*domain.Position),
	}
}

// Get returns the open position for symbol, if any.
func (l *Ledger) Get(symbol string) (*domain.Position, bool) {
	p, ok := l.positions[symbol]
	return p, ok
}

// Open records pos. It reports false, leaving the ledger untouched, when
// the symbol already has a position.
func (l *Ledger) Open(pos *domain.Position) bool {
	if _, exists := l.positions[pos.Symbol]; exists {
		return false
	}
	l.positions[pos.Symbol] = pos
	return true
}

// Close removes and returns the position for symbol.
func (l *Ledger) Close(symbol string) (*domain.Position, bool) {
	p, ok := l.positions[symbol]
	if ok {
		delete(l.positions, symbol)
	}
	return p, ok
}

// Len returns the number of open positions.
func (l *Ledger) Len() int { return len(l.positions) }

// Symbols returns the symbols with open positions in sorted order so that
// iteration is deterministic.
func (l *Ledger) Symbols() []string {
	syms := make([]string, 0, len(l.positions))
	for s := range l.positions {
		syms = append(syms, s)
	}
	sort.Strings(syms)
	return syms
}

// ShortCostBasis sums the entry cost basis of every open short.
func (l *Ledger) ShortCostBasis() decimal.Decimal {
	total := decimal.Zero
	for _, p := range l.positions {
		if p.Side == domain.PositionSideShort {
			total = total.Add(p.CostBasis())
		}
	}
	return total
}
