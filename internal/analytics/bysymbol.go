package analytics

import (
	"sort"

	"github.com/shopspring/decimal"

	"strategylab/internal/domain"
)

// SymbolBreakdown is the trade summary of one symbol.
type SymbolBreakdown struct {
	Symbol    string          `json:"symbol"`
	Trades    int             `json:"trades"`
	Wins      int             `json:"wins"`
	WinRate   float64         `json:"win_rate"`
	NetPnL    decimal.Decimal `json:"net_pnl"`
	AvgPnLPct float64         `json:"avg_pnl_pct"`
}

// BySymbol groups trades per symbol of the run. It returns nil unless the
// run covers more than one symbol; symbols that never traded get a zero row.
func BySymbol(symbols []string, trades []domain.Trade) []SymbolBreakdown {
	if len(symbols) < 2 {
		return nil
	}
	groups := make(map[string]*SymbolBreakdown, len(symbols))
	for _, sym := range symbols {
		groups[sym] = &SymbolBreakdown{Symbol: sym}
	}
	sums := make(map[string]float64)
	for _, t := range trades {
		b, ok := groups[t.Symbol]
		if !ok {
			b = &SymbolBreakdown{Symbol: t.Symbol}
			groups[t.Symbol] = b
		}
		b.Trades++
		if t.IsWin() {
			b.Wins++
		}
		b.NetPnL = b.NetPnL.Add(t.PnL)
		sums[t.Symbol] += t.PnLPct
	}

	out := make([]SymbolBreakdown, 0, len(groups))
	for sym, b := range groups {
		if b.Trades > 0 {
			b.WinRate = float64(b.Wins) / float64(b.Trades) * 100
			b.AvgPnLPct = sums[sym] / float64(b.Trades)
		}
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// runSymbols returns the sorted symbols the run loaded bars for.
func runSymbols(bars map[string][]domain.Bar) []string {
	out := make([]string, 0, len(bars))
	for sym := range bars {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
