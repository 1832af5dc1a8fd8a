package analytics

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategylab/internal/domain"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func day(i int) time.Time { return day0.AddDate(0, 0, i) }

func curveOf(values ...float64) []domain.EquityPoint {
	out := make([]domain.EquityPoint, len(values))
	for i, v := range values {
		out[i] = domain.EquityPoint{Date: day(i), Equity: decimal.NewFromFloat(v)}
	}
	return out
}

func trade(sym string, pnl, pct float64, hold int) domain.Trade {
	return domain.Trade{
		Symbol:      sym,
		PnL:         decimal.NewFromFloat(pnl),
		PnLPct:      pct,
		HoldingDays: hold,
		Side:        domain.PositionSideLong,
		Commission:  decimal.NewFromInt(1),
		Slippage:    decimal.NewFromFloat(0.5),
	}
}

func TestMaxDrawdownPct(t *testing.T) {
	curve := curveOf(100, 120, 90, 110, 95)
	assert.InDelta(t, 25.0, MaxDrawdownPct(curve), 1e-9)

	// Never sets a new high after the first point.
	curve = curveOf(100, 80, 90, 70, 95)
	assert.InDelta(t, 30.0, MaxDrawdownPct(curve), 1e-9)
	assert.Equal(t, 0.0, MaxDrawdownPct(nil))
}

func TestAnnualize(t *testing.T) {
	assert.InDelta(t, 10.0, annualize(1.10, 252), 1e-9)
	assert.InDelta(t, 21.0, annualize(1.10, 126), 1e-9)
	assert.Equal(t, -100.0, annualize(0, 10))
	assert.Equal(t, 0.0, annualize(1.1, 0))
}

func TestComputeTradeStats(t *testing.T) {
	trades := []domain.Trade{
		trade("AAA", 100, 10, 3),
		trade("AAA", 50, 5, 4),
		trade("AAA", -30, -3, 2),
		trade("AAA", -20, -2, 1),
		trade("AAA", -10, -1, 10),
		trade("AAA", 60, 6, 5),
	}
	r := Compute(Input{
		InitialCapital: decimal.NewFromInt(1000),
		FinalEquity:    decimal.NewFromInt(1150),
		Trades:         trades,
		EquityCurve:    curveOf(1000, 1100, 1050, 1150),
		ExposedDates:   3,
		TotalDates:     4,
	})
	m := r.Metrics

	assert.Equal(t, 6, m.TotalTrades)
	assert.Equal(t, 3, m.WinningTrades)
	assert.Equal(t, 3, m.LosingTrades)
	assert.InDelta(t, 50.0, m.WinRate, 1e-9)
	require.NotNil(t, m.ProfitFactor)
	assert.InDelta(t, 210.0/60.0, *m.ProfitFactor, 1e-9)
	assert.Equal(t, 2, m.MaxConsecutiveWins)
	assert.Equal(t, 3, m.MaxConsecutiveLosses)
	assert.InDelta(t, 15.0, m.TotalReturnPct, 1e-9)
	assert.InDelta(t, 75.0, m.ExposurePct, 1e-9)
	assert.InDelta(t, 7.0, m.AvgWinPct, 1e-9)
	assert.InDelta(t, -2.0, m.AvgLossPct, 1e-9)
	assert.True(t, m.LargestWin.Equal(decimal.NewFromInt(100)))
	assert.True(t, m.LargestLoss.Equal(decimal.NewFromInt(-30)))
	assert.True(t, m.TotalCommission.Equal(decimal.NewFromInt(6)))
	assert.True(t, m.NetProfit.Equal(decimal.NewFromInt(150)))
	assert.Nil(t, r.BySymbol, "single symbol has no breakdown")
	require.NotNil(t, r.Advanced)
	assert.Nil(t, r.Extended, "too few equity points")
}

func TestProfitFactorWithoutLosses(t *testing.T) {
	r := Compute(Input{
		InitialCapital: decimal.NewFromInt(1000),
		FinalEquity:    decimal.NewFromInt(1100),
		Trades:         []domain.Trade{trade("AAA", 100, 10, 1)},
		EquityCurve:    curveOf(1000, 1100),
	})
	require.NotNil(t, r.Metrics.ProfitFactor)
	assert.Equal(t, ProfitFactorCap, *r.Metrics.ProfitFactor)

	r = Compute(Input{InitialCapital: decimal.NewFromInt(1000), FinalEquity: decimal.NewFromInt(1000)})
	assert.Nil(t, r.Metrics.ProfitFactor)
}

func TestSortinoSentinelAndUndefined(t *testing.T) {
	up := []float64{0.01, 0.02, 0.01}
	s := sortino(up, 0)
	require.NotNil(t, s)
	assert.Equal(t, SortinoCap, *s)

	flat := []float64{0, 0, 0}
	assert.Nil(t, sortino(flat, 0))

	mixed := []float64{0.02, -0.01, 0.01, -0.02}
	s = sortino(mixed, 0)
	require.NotNil(t, s)
	assert.InDelta(t, 0.0, *s, 1e-12)
}

func TestSharpe(t *testing.T) {
	assert.Equal(t, 0.0, sharpe([]float64{0.01, 0.01, 0.01}, 0))
	r := []float64{0.01, 0.03, 0.02}
	assert.InDelta(t, 0.02/0.01*math.Sqrt(252), sharpe(r, 0), 1e-9)
}

func TestCompareBenchmark(t *testing.T) {
	bars := func(sym string, closes ...float64) []domain.Bar {
		out := make([]domain.Bar, len(closes))
		for i, c := range closes {
			out[i] = domain.Bar{Symbol: sym, Timestamp: day(i), Close: decimal.NewFromFloat(c)}
		}
		return out
	}
	in := Input{
		Bars: map[string][]domain.Bar{
			"BBB": bars("BBB", 10, 11, 12),
			"AAA": bars("AAA", 100, 105, 110),
		},
		EquityCurve: curveOf(1000, 1020, 1050),
		Benchmark:   bars("SPY", 400, 404, 412),
	}
	cmp := CompareBenchmark(in, 5, dailyReturns(in.EquityCurve))
	require.NotNil(t, cmp)
	assert.Equal(t, "AAA", cmp.Symbol)
	assert.InDelta(t, 10.0, cmp.BuyHoldReturnPct, 1e-9)
	assert.InDelta(t, -5.0, cmp.AlphaPct, 1e-9)

	require.NotNil(t, cmp.External)
	assert.InDelta(t, 3.0, cmp.External.ReturnPct, 1e-9)
	assert.InDelta(t, 2.0, cmp.External.AlphaPct, 1e-9)
	assert.InDelta(t, 1.0, cmp.External.Correlation, 1e-9)

	in.PrimarySymbol = "BBB"
	cmp = CompareBenchmark(in, 5, nil)
	assert.Equal(t, "BBB", cmp.Symbol)

	assert.Nil(t, CompareBenchmark(Input{}, 0, nil))
}

func TestInformationRatioStandardDefinition(t *testing.T) {
	strat := []float64{0.01, 0.02, 0.00, 0.01}
	bench := []float64{0.00, 0.01, 0.01, 0.00}
	curve := []domain.EquityPoint{{Date: day(0), Equity: decimal.NewFromInt(100)}}
	benchBars := []domain.Bar{{Timestamp: day(0), Close: decimal.NewFromInt(100)}}
	eq, bc := 100.0, 100.0
	for i := range strat {
		eq *= 1 + strat[i]
		bc *= 1 + bench[i]
		curve = append(curve, domain.EquityPoint{Date: day(i + 1), Equity: decimal.NewFromFloat(eq)})
		benchBars = append(benchBars, domain.Bar{Timestamp: day(i + 1), Close: decimal.NewFromFloat(bc)})
	}

	ext := compareExternal(curve, benchBars, 0)
	diff := []float64{0.01, 0.01, -0.01, 0.01}
	md := computeMean(diff)
	want := md * 252 / (computeStddev(diff, md) * math.Sqrt(252))
	assert.InDelta(t, want, ext.InformationRatio, 1e-6)
}

func TestBySymbol(t *testing.T) {
	got := BySymbol([]string{"AAA", "BBB"}, []domain.Trade{
		trade("BBB", 10, 1, 1),
		trade("AAA", -5, -1, 1),
		trade("AAA", 15, 3, 1),
	})
	require.Len(t, got, 2)
	assert.Equal(t, "AAA", got[0].Symbol)
	assert.Equal(t, 2, got[0].Trades)
	assert.InDelta(t, 50.0, got[0].WinRate, 1e-9)
	assert.True(t, got[0].NetPnL.Equal(decimal.NewFromInt(10)))
	assert.InDelta(t, 1.0, got[0].AvgPnLPct, 1e-9)

	assert.Nil(t, BySymbol([]string{"AAA"}, []domain.Trade{trade("AAA", 1, 1, 1)}))
}

func TestBySymbolIncludesUntradedSymbols(t *testing.T) {
	bars := map[string][]domain.Bar{
		"BBB": {{Symbol: "BBB", Close: decimal.NewFromInt(10)}},
		"AAA": {{Symbol: "AAA", Close: decimal.NewFromInt(10)}},
	}
	r := Compute(Input{
		InitialCapital: decimal.NewFromInt(1000),
		FinalEquity:    decimal.NewFromInt(1010),
		Trades:         []domain.Trade{trade("AAA", 10, 1, 1)},
		EquityCurve:    curveOf(1000, 1010),
		TotalDates:     2,
		Bars:           bars,
	})

	require.Len(t, r.BySymbol, 2)
	assert.Equal(t, "AAA", r.BySymbol[0].Symbol)
	assert.Equal(t, 1, r.BySymbol[0].Trades)
	assert.InDelta(t, 100.0, r.BySymbol[0].WinRate, 1e-9)

	untraded := r.BySymbol[1]
	assert.Equal(t, "BBB", untraded.Symbol)
	assert.Equal(t, 0, untraded.Trades)
	assert.Zero(t, untraded.WinRate)
	assert.True(t, untraded.NetPnL.IsZero())
}

func TestExtendedRequiresSamples(t *testing.T) {
	values := make([]float64, 30)
	for i := range values {
		values[i] = 1000 + float64(i%5)*10 - float64(i%3)*7
	}
	curve := curveOf(values...)
	trades := make([]domain.Trade, 12)
	for i := range trades {
		pnl := float64(i%4) - 1.5
		trades[i] = trade("AAA", pnl, pnl, i)
	}
	in := Input{Trades: trades, EquityCurve: curve}

	ext := ComputeExtended(in, dailyReturns(curve))
	require.NotNil(t, ext)
	assert.Greater(t, ext.VaR95, 0.0)
	assert.GreaterOrEqual(t, ext.CVaR95, ext.VaR95)
	require.NotNil(t, ext.Bootstrap)
	assert.Equal(t, bootstrapSamples, ext.Bootstrap.Samples)
	assert.LessOrEqual(t, ext.Bootstrap.MeanTradePct.Lower, ext.Bootstrap.MeanTradePct.Upper)

	again := ComputeExtended(in, dailyReturns(curve))
	assert.Equal(t, ext.Bootstrap, again.Bootstrap, "bootstrap is seeded")

	in.Trades = trades[:1]
	assert.Nil(t, ComputeExtended(in, dailyReturns(curve)))
	in.Trades = trades
	in.EquityCurve = curve[:10]
	assert.Nil(t, ComputeExtended(in, dailyReturns(in.EquityCurve)))
}

func TestAdvancedStatistics(t *testing.T) {
	trades := []domain.Trade{
		trade("AAA", 10, 10, 1),
		trade("AAA", 10, 10, 3),
		trade("AAA", -5, -5, 8),
		trade("AAA", 10, 10, 30),
		trade("AAA", -5, -5, 90),
	}
	in := Input{Trades: trades, EquityCurve: curveOf(100, 110, 105, 100, 112, 120)}
	m := computeMetrics(in, dailyReturns(in.EquityCurve))
	adv := ComputeAdvanced(in, m, dailyReturns(in.EquityCurve))
	require.NotNil(t, adv)

	assert.InDelta(t, 0.6*10-0.4*5, adv.ExpectancyPct, 1e-9)
	assert.True(t, adv.ExpectancyAmount.Equal(decimal.NewFromInt(4)))
	assert.InDelta(t, 2.0, adv.PayoffRatio, 1e-9)
	assert.InDelta(t, 0.6-0.4/2, adv.KellyFraction, 1e-9)
	assert.Equal(t, []StreakCount{{Length: 1, Count: 1}, {Length: 2, Count: 1}}, adv.WinStreaks)
	assert.Equal(t, []StreakCount{{Length: 1, Count: 2}}, adv.LossStreaks)
	require.Len(t, adv.HoldingPeriods, 5)
	assert.Equal(t, "0-1d", adv.HoldingPeriods[0].Label)

	dd := adv.Drawdown
	assert.InDelta(t, 10.0/110*100, dd.MaxDrawdownPct, 1e-9)
	assert.Equal(t, day(1), dd.PeakDate)
	assert.Equal(t, day(3), dd.TroughDate)
	require.NotNil(t, dd.RecoveryDate)
	assert.Equal(t, day(4), *dd.RecoveryDate)
	assert.Equal(t, 3, dd.LongestUnderwaterDays)

	assert.Nil(t, ComputeAdvanced(Input{Trades: trades[:4]}, m, nil))
}

func TestDeflatedSharpePenalizesTrials(t *testing.T) {
	r := []float64{0.01, -0.005, 0.012, 0.003, -0.002, 0.008, 0.004, -0.001, 0.006, 0.002}
	one := deflatedSharpe(r, 1)
	many := deflatedSharpe(r, 100)
	assert.Greater(t, one, 0.5)
	assert.Less(t, many, one)
}

func TestNormInvRoundTrip(t *testing.T) {
	for _, p := range []float64{0.01, 0.05, 0.5, 0.9, 0.99} {
		assert.InDelta(t, p, normCDF(normInv(p)), 1e-8)
	}
}

func TestTearSheetRender(t *testing.T) {
	trades := []domain.Trade{trade("AAA", 100, 10, 3), trade("BBB", -20, -2, 1)}
	in := Input{
		InitialCapital: decimal.NewFromInt(10000),
		FinalEquity:    decimal.NewFromInt(10080),
		Trades:         trades,
		EquityCurve:    curveOf(10000, 10100, 10080),
		TotalDates:     3,
		ExposedDates:   2,
	}
	r := Compute(in)
	ts := NewTearSheet(Header{
		Name:           "momentum",
		Symbols:        []string{"AAA", "BBB"},
		Start:          day(0),
		End:            day(2),
		InitialCapital: in.InitialCapital,
		FinalEquity:    in.FinalEquity,
	}, r)

	var buf bytes.Buffer
	require.NoError(t, ts.Render(&buf))
	out := buf.String()
	assert.Contains(t, out, "momentum")
	assert.Contains(t, out, "2024-01-01 to 2024-01-03")
	assert.Contains(t, out, "$10,080.00")
	assert.Contains(t, out, "+0.80%")
	assert.Contains(t, out, "By symbol")
	assert.NotContains(t, out, "Trade quality")
}

func TestFormatters(t *testing.T) {
	assert.Equal(t, "$1,234.50", FormatMoney(decimal.NewFromFloat(1234.5)))
	assert.Equal(t, "-$20.00", FormatMoney(decimal.NewFromInt(-20)))
	assert.Equal(t, "+12.35%", FormatPct(12.346))
	assert.Equal(t, "-1500%", FormatPct(-1500))
	assert.Equal(t, "-", FormatRatio(nil))
	assert.Equal(t, "150K", FormatCount(150_000))
	assert.Equal(t, "1,500", FormatCount(1500))
}
