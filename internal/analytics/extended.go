package analytics

import (
	"math"
	"math/rand/v2"

	"strategylab/internal/domain"
)

// Minimum sample sizes for the optional sections.
const (
	minExtendedTrades  = 2
	minExtendedPoints  = 20
	minBootstrapTrades = 10
	minAdvancedTrades  = 5
)

const (
	bootstrapSamples = 1000
	bootstrapSeed    = 42
)

// Extended holds distribution-aware risk statistics.
type Extended struct {
	Skewness       float64 `json:"skewness"`
	ExcessKurtosis float64 `json:"excess_kurtosis"`

	// Daily value at risk and expected shortfall at 95%, as positive
	// percentages of equity.
	VaR95              float64 `json:"var_95"`
	CVaR95             float64 `json:"cvar_95"`
	CornishFisherVaR95 float64 `json:"cornish_fisher_var_95"`

	OmegaRatio *float64 `json:"omega_ratio"`
	TailRatio  float64  `json:"tail_ratio"`

	Attribution *FactorAttribution  `json:"attribution,omitempty"`
	Bootstrap   *BootstrapIntervals `json:"bootstrap,omitempty"`
}

// FactorAttribution splits the strategy return into a market component
// (beta times benchmark return) and a selection residual.
type FactorAttribution struct {
	AlphaAnnualPct     float64 `json:"alpha_annual_pct"`
	Beta               float64 `json:"beta"`
	RSquared           float64 `json:"r_squared"`
	MarketReturnPct    float64 `json:"market_return_pct"`
	SelectionReturnPct float64 `json:"selection_return_pct"`
}

// ConfidenceInterval is a two-sided percentile interval.
type ConfidenceInterval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// BootstrapIntervals are 95% intervals from resampling the trade log.
type BootstrapIntervals struct {
	Samples      int                `json:"samples"`
	MeanTradePct ConfidenceInterval `json:"mean_trade_pct"`
	WinRate      ConfidenceInterval `json:"win_rate"`
	SumTradePct  ConfidenceInterval `json:"sum_trade_pct"`
}

// ComputeExtended returns nil unless there are enough trades and equity
// points.
func ComputeExtended(in Input, returns []float64) *Extended {
	if len(in.Trades) < minExtendedTrades || len(in.EquityCurve) < minExtendedPoints {
		return nil
	}
	ext := &Extended{
		Skewness:       computeSkewness(returns),
		ExcessKurtosis: computeExcessKurtosis(returns),
	}

	sorted := sortedCopy(returns)
	q05 := computePercentile(sorted, 0.05)
	ext.VaR95 = -q05 * 100
	tail := 0.0
	n := 0
	for _, r := range sorted {
		if r > q05 {
			break
		}
		tail += r
		n++
	}
	if n > 0 {
		ext.CVaR95 = -tail / float64(n) * 100
	}
	ext.CornishFisherVaR95 = cornishFisherVaR(returns, ext.Skewness, ext.ExcessKurtosis, 0.95)
	ext.OmegaRatio = omega(returns, 0)
	if q05 != 0 {
		ext.TailRatio = finite(math.Abs(computePercentile(sorted, 0.95) / q05))
	}

	if len(in.Benchmark) > 1 {
		ext.Attribution = attribute(in.EquityCurve, in.Benchmark)
	}
	if len(in.Trades) >= minBootstrapTrades {
		ext.Bootstrap = bootstrap(in.Trades)
	}
	return ext
}

// cornishFisherVaR adjusts the normal quantile for skew and excess kurtosis.
func cornishFisherVaR(returns []float64, skew, kurt, level float64) float64 {
	m := computeMean(returns)
	s := computeStddev(returns, m)
	if s == 0 {
		return 0
	}
	z := normInv(1 - level)
	zcf := z +
		(z*z-1)*skew/6 +
		(z*z*z-3*z)*kurt/24 -
		(2*z*z*z-5*z)*skew*skew/36
	return finite(-(m + zcf*s) * 100)
}

// omega is the probability-weighted gain over loss relative to threshold.
func omega(returns []float64, threshold float64) *float64 {
	var gains, losses float64
	for _, r := range returns {
		if r > threshold {
			gains += r - threshold
		} else {
			losses += threshold - r
		}
	}
	if losses == 0 {
		return nil
	}
	v := gains / losses
	return &v
}

func attribute(curve []domain.EquityPoint, benchmark []domain.Bar) *FactorAttribution {
	strat, bench := alignedReturns(curve, benchmark)
	if len(strat) < 2 {
		return nil
	}
	beta, corr := betaCorrelation(strat, bench)
	alphaDaily := computeMean(strat) - beta*computeMean(bench)

	stratTotal, benchTotal := 1.0, 1.0
	for i := range strat {
		stratTotal *= 1 + strat[i]
		benchTotal *= 1 + bench[i]
	}
	market := beta * (benchTotal - 1) * 100
	return &FactorAttribution{
		AlphaAnnualPct:     finite(alphaDaily * tradingDays * 100),
		Beta:               beta,
		RSquared:           corr * corr,
		MarketReturnPct:    finite(market),
		SelectionReturnPct: finite((stratTotal-1)*100 - market),
	}
}

// bootstrap resamples trade returns with a fixed seed so results are
// reproducible.
func bootstrap(trades []domain.Trade) *BootstrapIntervals {
	rng := rand.New(rand.NewPCG(bootstrapSeed, uint64(len(trades))))
	n := len(trades)

	means := make([]float64, bootstrapSamples)
	winRates := make([]float64, bootstrapSamples)
	sums := make([]float64, bootstrapSamples)
	for s := 0; s < bootstrapSamples; s++ {
		sum, wins := 0.0, 0
		for i := 0; i < n; i++ {
			t := trades[rng.IntN(n)]
			sum += t.PnLPct
			if t.IsWin() {
				wins++
			}
		}
		means[s] = sum / float64(n)
		winRates[s] = float64(wins) / float64(n) * 100
		sums[s] = sum
	}
	return &BootstrapIntervals{
		Samples:      bootstrapSamples,
		MeanTradePct: interval(means),
		WinRate:      interval(winRates),
		SumTradePct:  interval(sums),
	}
}

func interval(xs []float64) ConfidenceInterval {
	sorted := sortedCopy(xs)
	return ConfidenceInterval{
		Lower: computePercentile(sorted, 0.025),
		Upper: computePercentile(sorted, 0.975),
	}
}
