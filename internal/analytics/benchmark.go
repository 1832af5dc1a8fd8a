package analytics

import (
	"math"
	"sort"
	"time"

	"strategylab/internal/domain"
)

// BenchmarkComparison compares the strategy against buy-and-hold of the
// primary symbol and, when supplied, an external benchmark series.
type BenchmarkComparison struct {
	Symbol            string             `json:"symbol"`
	BuyHoldReturnPct  float64            `json:"buy_hold_return_pct"`
	StrategyReturnPct float64            `json:"strategy_return_pct"`
	AlphaPct          float64            `json:"alpha_pct"`
	External          *ExternalBenchmark `json:"external,omitempty"`
}

// ExternalBenchmark holds the relative statistics against an external
// benchmark series aligned to the equity curve dates.
type ExternalBenchmark struct {
	ReturnPct        float64 `json:"return_pct"`
	AlphaPct         float64 `json:"alpha_pct"`
	Beta             float64 `json:"beta"`
	Correlation      float64 `json:"correlation"`
	TrackingErrorPct float64 `json:"tracking_error_pct"`
	InformationRatio float64 `json:"information_ratio"`
}

// PrimarySymbol returns symbol when it has bars, else the first symbol in
// sorted order.
func PrimarySymbol(bars map[string][]domain.Bar, symbol string) string {
	if _, ok := bars[symbol]; ok && symbol != "" {
		return symbol
	}
	syms := make([]string, 0, len(bars))
	for s, series := range bars {
		if len(series) > 0 {
			syms = append(syms, s)
		}
	}
	if len(syms) == 0 {
		return ""
	}
	sort.Strings(syms)
	return syms[0]
}

// CompareBenchmark returns nil when there is no primary symbol series.
func CompareBenchmark(in Input, strategyReturnPct float64, returns []float64) *BenchmarkComparison {
	sym := PrimarySymbol(in.Bars, in.PrimarySymbol)
	if sym == "" {
		return nil
	}
	bh := buyHoldReturnPct(in.Bars[sym])
	cmp := &BenchmarkComparison{
		Symbol:            sym,
		BuyHoldReturnPct:  bh,
		StrategyReturnPct: strategyReturnPct,
		AlphaPct:          strategyReturnPct - bh,
	}
	if len(in.Benchmark) > 1 {
		cmp.External = compareExternal(in.EquityCurve, in.Benchmark, strategyReturnPct)
	}
	return cmp
}

func buyHoldReturnPct(bars []domain.Bar) float64 {
	if len(bars) < 2 {
		return 0
	}
	sorted := sortedBars(bars)
	first := domain.Float(sorted[0].Close)
	last := domain.Float(sorted[len(sorted)-1].Close)
	if first <= 0 {
		return 0
	}
	return (last/first - 1) * 100
}

func sortedBars(bars []domain.Bar) []domain.Bar {
	out := make([]domain.Bar, len(bars))
	copy(out, bars)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// alignedReturns pairs strategy and benchmark daily returns over the
// equity curve dates that both series cover.
func alignedReturns(curve []domain.EquityPoint, benchmark []domain.Bar) (strat, bench []float64) {
	closes := make(map[time.Time]float64, len(benchmark))
	for _, b := range benchmark {
		closes[b.Timestamp.UTC().Round(0)] = domain.Float(b.Close)
	}
	for i := 1; i < len(curve); i++ {
		prevB, ok1 := closes[curve[i-1].Date.UTC().Round(0)]
		curB, ok2 := closes[curve[i].Date.UTC().Round(0)]
		prevE := domain.Float(curve[i-1].Equity)
		if !ok1 || !ok2 || prevB <= 0 || prevE <= 0 {
			continue
		}
		strat = append(strat, domain.Float(curve[i].Equity)/prevE-1)
		bench = append(bench, curB/prevB-1)
	}
	return strat, bench
}

func compareExternal(curve []domain.EquityPoint, benchmark []domain.Bar, strategyReturnPct float64) *ExternalBenchmark {
	ext := &ExternalBenchmark{ReturnPct: buyHoldReturnPct(benchmark)}
	ext.AlphaPct = strategyReturnPct - ext.ReturnPct

	strat, bench := alignedReturns(curve, benchmark)
	if len(strat) < 2 {
		return ext
	}
	ext.Beta, ext.Correlation = betaCorrelation(strat, bench)

	diff := make([]float64, len(strat))
	for i := range strat {
		diff[i] = strat[i] - bench[i]
	}
	meanDiff := computeMean(diff)
	te := computeStddev(diff, meanDiff) * math.Sqrt(tradingDays)
	ext.TrackingErrorPct = te * 100
	if te > 0 {
		ext.InformationRatio = finite(meanDiff * tradingDays / te)
	}
	return ext
}

// betaCorrelation returns the regression beta of strat on bench and their
// Pearson correlation.
func betaCorrelation(strat, bench []float64) (float64, float64) {
	ms, mb := computeMean(strat), computeMean(bench)
	var cov, vs, vb float64
	for i := range strat {
		ds, db := strat[i]-ms, bench[i]-mb
		cov += ds * db
		vs += ds * ds
		vb += db * db
	}
	var beta, corr float64
	if vb > 0 {
		beta = cov / vb
	}
	if vs > 0 && vb > 0 {
		corr = cov / math.Sqrt(vs*vb)
	}
	return finite(beta), finite(corr)
}
