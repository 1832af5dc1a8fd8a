// Package analytics turns the trade log and equity curve of a finished run
// into performance metrics, benchmark comparisons and a tear sheet.
package analytics

import (
	"math"

	"github.com/shopspring/decimal"

	"strategylab/internal/domain"
)

// SortinoCap is reported when a run has no downside deviation but a
// positive excess return.
const SortinoCap = 999.99

// ProfitFactorCap is reported when a run has winning trades and no losses.
const ProfitFactorCap = 999.99

// Input is what the aggregator needs from one run.
type Input struct {
	InitialCapital decimal.Decimal
	FinalEquity    decimal.Decimal
	Trades         []domain.Trade
	EquityCurve    []domain.EquityPoint
	ExposedDates   int
	TotalDates     int

	// RiskFreeRate is annual; it is converted to a daily rate.
	RiskFreeRate float64

	// Bars and PrimarySymbol drive the buy-and-hold comparison.
	Bars          map[string][]domain.Bar
	PrimarySymbol string
	Benchmark     []domain.Bar

	// Trials is the number of configurations tried when the run was
	// selected, used by the deflated Sharpe estimate. Zero means one.
	Trials int
}

// Metrics are the scalar results of a run. Percentages are in percent
// units (12.5 = 12.5%).
type Metrics struct {
	TotalReturnPct      float64         `json:"total_return_pct"`
	AnnualizedReturnPct float64         `json:"annualized_return_pct"`
	NetProfit           decimal.Decimal `json:"net_profit"`

	TotalTrades   int      `json:"total_trades"`
	WinningTrades int      `json:"winning_trades"`
	LosingTrades  int      `json:"losing_trades"`
	WinRate       float64  `json:"win_rate"`
	ProfitFactor  *float64 `json:"profit_factor"`

	AvgTradePct    float64         `json:"avg_trade_pct"`
	AvgWinPct      float64         `json:"avg_win_pct"`
	AvgLossPct     float64         `json:"avg_loss_pct"`
	LargestWin     decimal.Decimal `json:"largest_win"`
	LargestLoss    decimal.Decimal `json:"largest_loss"`
	AvgHoldingDays float64         `json:"avg_holding_days"`

	TotalCommission decimal.Decimal `json:"total_commission"`
	TotalSlippage   decimal.Decimal `json:"total_slippage"`

	VolatilityPct  float64  `json:"volatility_pct"`
	SharpeRatio    float64  `json:"sharpe_ratio"`
	SortinoRatio   *float64 `json:"sortino_ratio"`
	CalmarRatio    float64  `json:"calmar_ratio"`
	RecoveryFactor float64  `json:"recovery_factor"`
	MaxDrawdownPct float64  `json:"max_drawdown_pct"`

	MaxConsecutiveWins   int     `json:"max_consecutive_wins"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
	ExposurePct          float64 `json:"exposure_pct"`
}

// Report bundles every analytics section of a run. Optional sections are
// nil when there is not enough data for them.
type Report struct {
	Metrics   Metrics              `json:"metrics"`
	Benchmark *BenchmarkComparison `json:"benchmark,omitempty"`
	BySymbol  []SymbolBreakdown    `json:"by_symbol,omitempty"`
	Extended  *Extended            `json:"extended,omitempty"`
	Advanced  *Advanced            `json:"advanced,omitempty"`
}

// Compute runs the full aggregation once, after the date loop.
func Compute(in Input) *Report {
	returns := dailyReturns(in.EquityCurve)
	m := computeMetrics(in, returns)

	r := &Report{Metrics: m}
	r.Benchmark = CompareBenchmark(in, m.TotalReturnPct, returns)
	r.BySymbol = BySymbol(runSymbols(in.Bars), in.Trades)
	r.Extended = ComputeExtended(in, returns)
	r.Advanced = ComputeAdvanced(in, m, returns)
	return r
}

func computeMetrics(in Input, returns []float64) Metrics {
	var m Metrics

	initial := domain.Float(in.InitialCapital)
	final := domain.Float(in.FinalEquity)
	m.NetProfit = in.FinalEquity.Sub(in.InitialCapital)
	if initial > 0 {
		m.TotalReturnPct = (final/initial - 1) * 100
		m.AnnualizedReturnPct = annualize(final/initial, len(in.EquityCurve))
	}

	tradeStats(in.Trades, &m)

	dailyRF := in.RiskFreeRate / tradingDays
	m.SharpeRatio = sharpe(returns, dailyRF)
	m.SortinoRatio = sortino(returns, dailyRF)
	m.VolatilityPct = computeStddev(returns, computeMean(returns)) * math.Sqrt(tradingDays) * 100

	m.MaxDrawdownPct = MaxDrawdownPct(in.EquityCurve)
	if m.MaxDrawdownPct > 0 {
		m.CalmarRatio = m.AnnualizedReturnPct / m.MaxDrawdownPct
		m.RecoveryFactor = m.TotalReturnPct / m.MaxDrawdownPct
	}
	if in.TotalDates > 0 {
		m.ExposurePct = float64(in.ExposedDates) / float64(in.TotalDates) * 100
	}
	return m
}

// annualize converts a growth multiple over bars periods into an annual
// percentage: (growth)^(252/bars) - 1.
func annualize(growth float64, bars int) float64 {
	if bars <= 0 {
		return 0
	}
	if growth <= 0 {
		return -100
	}
	return finite((math.Pow(growth, tradingDays/float64(bars)) - 1) * 100)
}

func tradeStats(trades []domain.Trade, m *Metrics) {
	m.TotalTrades = len(trades)
	m.TotalCommission = decimal.Zero
	m.TotalSlippage = decimal.Zero
	if len(trades) == 0 {
		return
	}

	var grossWin, grossLoss decimal.Decimal
	var sumPct, sumWinPct, sumLossPct, sumHold float64
	wins, losses, curWins, curLosses := 0, 0, 0, 0

	for _, t := range trades {
		sumPct += t.PnLPct
		sumHold += float64(t.HoldingDays)
		m.TotalCommission = m.TotalCommission.Add(t.Commission)
		m.TotalSlippage = m.TotalSlippage.Add(t.Slippage)

		if t.IsWin() {
			wins++
			grossWin = grossWin.Add(t.PnL)
			sumWinPct += t.PnLPct
			if t.PnL.GreaterThan(m.LargestWin) {
				m.LargestWin = t.PnL
			}
			curWins++
			curLosses = 0
		} else {
			losses++
			grossLoss = grossLoss.Add(t.PnL.Abs())
			sumLossPct += t.PnLPct
			if t.PnL.LessThan(m.LargestLoss) {
				m.LargestLoss = t.PnL
			}
			curLosses++
			curWins = 0
		}
		m.MaxConsecutiveWins = max(m.MaxConsecutiveWins, curWins)
		m.MaxConsecutiveLosses = max(m.MaxConsecutiveLosses, curLosses)
	}

	n := float64(len(trades))
	m.WinningTrades = wins
	m.LosingTrades = losses
	m.WinRate = float64(wins) / n * 100
	m.AvgTradePct = sumPct / n
	m.AvgHoldingDays = sumHold / n
	if wins > 0 {
		m.AvgWinPct = sumWinPct / float64(wins)
	}
	if losses > 0 {
		m.AvgLossPct = sumLossPct / float64(losses)
	}

	switch {
	case grossLoss.IsPositive():
		pf := domain.Float(grossWin.Div(grossLoss))
		m.ProfitFactor = &pf
	case grossWin.IsPositive():
		pf := ProfitFactorCap
		m.ProfitFactor = &pf
	}
}

// sharpe is the annualized Sharpe ratio of daily returns in excess of
// dailyRF. Zero when the excess series has no dispersion.
func sharpe(returns []float64, dailyRF float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	excess := make([]float64, len(returns))
	for i, r := range returns {
		excess[i] = r - dailyRF
	}
	mean := computeMean(excess)
	sd := computeStddev(excess, mean)
	if sd == 0 {
		return 0
	}
	return finite(mean / sd * math.Sqrt(tradingDays))
}

// sortino uses the downside deviation below dailyRF. It returns nil when
// the ratio is undefined and SortinoCap when there is no downside but a
// positive excess return.
func sortino(returns []float64, dailyRF float64) *float64 {
	if len(returns) < 2 {
		return nil
	}
	excessSum, downSq := 0.0, 0.0
	for _, r := range returns {
		e := r - dailyRF
		excessSum += e
		if e < 0 {
			downSq += e * e
		}
	}
	mean := excessSum / float64(len(returns))
	downside := math.Sqrt(downSq / float64(len(returns)-1))
	if downside == 0 {
		if mean > 0 {
			v := SortinoCap
			return &v
		}
		return nil
	}
	v := finite(mean / downside * math.Sqrt(tradingDays))
	return &v
}
