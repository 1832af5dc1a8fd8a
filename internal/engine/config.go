package engine

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"strategylab/internal/domain"
)

// ErrInvalidConfig is returned when a Config cannot drive a run.
var ErrInvalidConfig = errors.New("invalid backtest config")

// AllocationStrategy decides the weight applied to an entry.
type AllocationStrategy string

const (
	AllocationSingleAsset AllocationStrategy = "single_asset"
	AllocationEqualWeight AllocationStrategy = "equal_weight"
	AllocationCustom      AllocationStrategy = "custom"
)

// Config is the immutable parameter set of one run. Percentages are
// fractions (0.05 = 5%).
type Config struct {
	InitialCapital decimal.Decimal

	Commission   CommissionModel
	SlippageRate float64

	// MaxVolumeParticipation caps entry size at this fraction of the bar
	// volume. Zero disables the cap.
	MaxVolumeParticipation float64

	AllowShort           bool
	AllowFractionalShare bool

	// CashSweepRate is the annual interest paid on idle cash.
	CashSweepRate    float64
	MarginMultiplier float64

	PositionSizePct float64
	StopLossPct     float64
	TakeProfitPct   float64
	TrailingStopPct float64

	Allocation    AllocationStrategy
	CustomWeights map[string]float64

	// RebalanceInterval force-closes every position each N dates. Zero
	// disables rebalancing.
	RebalanceInterval int

	Regime RegimeConfig

	// MaxDrawdownHaltPct halts new entries once equity falls this far below
	// its running peak. Zero disables the circuit breaker.
	MaxDrawdownHaltPct float64

	ConfidenceThreshold float64

	// DefaultLimitExpiryBars applies to limit signals that carry no expiry.
	DefaultLimitExpiryBars int

	// RiskFreeRate is the annual risk-free rate used by the analytics.
	RiskFreeRate float64

	// PrimarySymbol is the buy-and-hold benchmark symbol. Empty picks the
	// first symbol in sorted order.
	PrimarySymbol string

	// Benchmark is an optional external benchmark bar series.
	Benchmark []domain.Bar
}

// DefaultConfig returns the defaults used when a field is left zero.
func DefaultConfig() Config {
	return Config{
		InitialCapital:         decimal.NewFromInt(100000),
		Commission:             CommissionModel{Kind: CommissionFlat, Rate: 0.001},
		SlippageRate:           0.0005,
		MarginMultiplier:       1.0,
		PositionSizePct:        1.0,
		Allocation:             AllocationSingleAsset,
		ConfidenceThreshold:    0.5,
		DefaultLimitExpiryBars: 5,
		Regime:                 DefaultRegimeConfig(),
	}
}

// Validate reports configuration errors that would make a run meaningless.
func (c *Config) Validate() error {
	if !c.InitialCapital.IsPositive() {
		return fmt.Errorf("%w: initial capital must be positive", ErrInvalidConfig)
	}
	if c.SlippageRate < 0 || c.SlippageRate >= 1 {
		return fmt.Errorf("%w: slippage rate %v out of range", ErrInvalidConfig, c.SlippageRate)
	}
	if c.PositionSizePct < 0 {
		return fmt.Errorf("%w: position size pct must not be negative", ErrInvalidConfig)
	}
	if c.MaxVolumeParticipation < 0 {
		return fmt.Errorf("%w: volume participation must not be negative", ErrInvalidConfig)
	}
	if c.RebalanceInterval < 0 {
		return fmt.Errorf("%w: rebalance interval must not be negative", ErrInvalidConfig)
	}
	switch c.Allocation {
	case "", AllocationSingleAsset, AllocationEqualWeight:
	case AllocationCustom:
		if len(c.CustomWeights) == 0 {
			return fmt.Errorf("%w: custom allocation needs weights", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown allocation strategy %q", ErrInvalidConfig, c.Allocation)
	}
	return c.Commission.Validate()
}

// WithCapital returns a copy of c starting from capital.
func (c Config) WithCapital(capital decimal.Decimal) Config {
	c.InitialCapital = capital
	return c
}
