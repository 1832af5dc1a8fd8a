package engine

import "math"

// Regime is a classification of recent market behavior.
type Regime string

const (
	RegimeUnknown        Regime = "unknown"
	RegimeBull           Regime = "bull"
	RegimeBear           Regime = "bear"
	RegimeSideways       Regime = "sideways"
	RegimeHighVolatility Regime = "high_volatility"
)

// RegimeConfig controls regime-aware position sizing.
type RegimeConfig struct {
	Enabled bool

	ShortWindow int
	LongWindow  int

	// HighVolRatio flags high volatility when short-window volatility
	// exceeds long-window volatility by this factor.
	HighVolRatio float64

	// TrendThreshold is the mean daily return above which the market is
	// bull (below its negation, bear).
	TrendThreshold float64

	Multipliers map[Regime]float64
}

// DefaultRegimeConfig returns the detector defaults. Detection is off.
func DefaultRegimeConfig() RegimeConfig {
	return RegimeConfig{
		ShortWindow:    20,
		LongWindow:     60,
		HighVolRatio:   1.5,
		TrendThreshold: 0.0005,
		Multipliers: map[Regime]float64{
			RegimeBull:           1.0,
			RegimeSideways:       0.75,
			RegimeBear:           0.5,
			RegimeHighVolatility: 0.5,
		},
	}
}

// RegimeDetector classifies a trailing return series and yields a position
// size multiplier.
type RegimeDetector struct {
	cfg     RegimeConfig
	current Regime
}

// NewRegimeDetector creates a detector; zero window fields fall back to the
// defaults.
func NewRegimeDetector(cfg RegimeConfig) *RegimeDetector {
	def := DefaultRegimeConfig()
	if cfg.ShortWindow <= 0 {
		cfg.ShortWindow = def.ShortWindow
	}
	if cfg.LongWindow <= 0 {
		cfg.LongWindow = def.LongWindow
	}
	if cfg.LongWindow < cfg.ShortWindow {
		cfg.LongWindow = cfg.ShortWindow
	}
	if cfg.HighVolRatio <= 0 {
		cfg.HighVolRatio = def.HighVolRatio
	}
	if cfg.Multipliers == nil {
		cfg.Multipliers = def.Multipliers
	}
	return &RegimeDetector{cfg: cfg, current: RegimeUnknown}
}

// Refresh reclassifies from returns, the realized daily returns so far, and
// returns the new regime.
func (d *RegimeDetector) Refresh(returns []float64) Regime {
	if !d.cfg.Enabled {
		d.current = RegimeUnknown
		return d.current
	}
	d.current = classify(returns, d.cfg)
	return d.current
}

// Current returns the last classification.
func (d *RegimeDetector) Current() Regime { return d.current }

// Multiplier returns the size multiplier for the current regime; 1.0 when
// detection is disabled or the regime is unknown.
func (d *RegimeDetector) Multiplier() float64 {
	if !d.cfg.Enabled || d.current == RegimeUnknown {
		return 1.0
	}
	m, ok := d.cfg.Multipliers[d.current]
	if !ok || m < 0 {
		return 1.0
	}
	return m
}

func classify(returns []float64, cfg RegimeConfig) Regime {
	if len(returns) < cfg.LongWindow || cfg.LongWindow < 2 {
		return RegimeUnknown
	}
	long := returns[len(returns)-cfg.LongWindow:]
	short := returns[len(returns)-cfg.ShortWindow:]

	longVol := stddev(long)
	shortVol := stddev(short)
	if longVol > 0 && shortVol/longVol >= cfg.HighVolRatio {
		return RegimeHighVolatility
	}

	trend := mean(long)
	switch {
	case trend > cfg.TrendThreshold:
		return RegimeBull
	case trend < -cfg.TrendThreshold:
		return RegimeBear
	default:
		return RegimeSideways
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev is the sample standard deviation (n-1 denominator).
func stddev(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	m := mean(xs)
	ss := 0.0
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}
