package engine

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"strategylab/internal/domain"
)

// CommissionKind selects the commission schedule.
type CommissionKind string

const (
	CommissionFlat     CommissionKind = "flat"
	CommissionTiered   CommissionKind = "tiered"
	CommissionPerShare CommissionKind = "per_share"
)

// CommissionTier is one bracket of a tiered schedule. For tiered models
// UpTo is an order notional and Rate applies to it; for per-share models
// UpTo is a share count and FeePerShare applies. A zero UpTo is unbounded.
type CommissionTier struct {
	UpTo        float64 `yaml:"up_to" json:"up_to"`
	Rate        float64 `yaml:"rate" json:"rate"`
	FeePerShare float64 `yaml:"fee_per_share" json:"fee_per_share"`
}

// CommissionModel computes the commission charged on one fill.
type CommissionModel struct {
	Kind    CommissionKind
	Rate    float64
	Tiers   []CommissionTier
	Minimum float64 // per order, zero disables
	Maximum float64 // per order, zero disables
}

// Validate checks that the schedule is usable.
func (m CommissionModel) Validate() error {
	switch m.Kind {
	case "", CommissionFlat:
		if m.Rate < 0 {
			return fmt.Errorf("%w: negative commission rate", ErrInvalidConfig)
		}
	case CommissionTiered, CommissionPerShare:
		if len(m.Tiers) == 0 {
			return fmt.Errorf("%w: %s commission needs tiers", ErrInvalidConfig, m.Kind)
		}
	default:
		return fmt.Errorf("%w: unknown commission model %q", ErrInvalidConfig, m.Kind)
	}
	return nil
}

// Commission returns the fee for trading shares at price.
func (m CommissionModel) Commission(shares, price decimal.Decimal) decimal.Decimal {
	if !shares.IsPositive() {
		return decimal.Zero
	}
	notional := shares.Mul(price).Abs()

	var fee decimal.Decimal
	switch m.Kind {
	case CommissionTiered:
		tier := m.tierFor(domain.Float(notional))
		fee = notional.Mul(domain.ToDecimal(tier.Rate))
	case CommissionPerShare:
		tier := m.tierFor(domain.Float(shares))
		fee = shares.Mul(domain.ToDecimal(tier.FeePerShare))
	default:
		fee = notional.Mul(domain.ToDecimal(m.Rate))
	}

	if m.Minimum > 0 {
		fee = decimal.Max(fee, domain.ToDecimal(m.Minimum))
	}
	if m.Maximum > 0 {
		fee = decimal.Min(fee, domain.ToDecimal(m.Maximum))
	}
	return fee
}

// tierFor returns the first tier whose bound covers v. Tiers are sorted by
// bound with the unbounded tier last.
func (m CommissionModel) tierFor(v float64) CommissionTier {
	tiers := make([]CommissionTier, len(m.Tiers))
	copy(tiers, m.Tiers)
	sort.SliceStable(tiers, func(i, j int) bool {
		if tiers[i].UpTo == 0 {
			return false
		}
		if tiers[j].UpTo == 0 {
			return true
		}
		return tiers[i].UpTo < tiers[j].UpTo
	})
	for _, t := range tiers {
		if t.UpTo == 0 || v <= t.UpTo {
			return t
		}
	}
	return tiers[len(tiers)-1]
}

// ---------------------------------------------------------------------------
// Fills
// ---------------------------------------------------------------------------

// FillPrice applies slippage against the trader: buys (and short covers)
// fill above raw, sells (and short entries) fill below.
func FillPrice(raw decimal.Decimal, buying bool, slippage float64) decimal.Decimal {
	s := domain.ToDecimal(slippage)
	if buying {
		return raw.Mul(decimal.NewFromInt(1).Add(s))
	}
	return raw.Mul(decimal.NewFromInt(1).Sub(s))
}

// VolumeCap is the maximum share count allowed by the participation limit.
// ok is false when no cap applies.
func VolumeCap(volume, participation float64) (decimal.Decimal, bool) {
	if participation <= 0 || volume <= 0 {
		return decimal.Zero, false
	}
	return domain.ToDecimal(volume * participation), true
}

// SizeRequest carries the inputs to SizeShares.
type SizeRequest struct {
	BuyingPower decimal.Decimal // remaining for this date
	Weight      float64         // allocation weight
	Multiplier  float64         // regime size multiplier
	Fill        decimal.Decimal
	Volume      float64
	Fractional  bool
}

// SizeShares returns the share count for an entry: the smallest of the
// weighted buying-power size, the volume cap and an affordability-adjusted
// count that leaves room for commission. Zero means skip the entry.
func (e *Engine) SizeShares(req SizeRequest) decimal.Decimal {
	if !req.Fill.IsPositive() || !req.BuyingPower.IsPositive() || req.Weight <= 0 || req.Multiplier <= 0 {
		return decimal.Zero
	}

	budget := req.BuyingPower.Mul(domain.ToDecimal(req.Weight * req.Multiplier))
	if budget.GreaterThan(req.BuyingPower) {
		budget = req.BuyingPower
	}
	shares := e.roundShares(budget.Div(req.Fill), req.Fractional)

	if limit, ok := VolumeCap(req.Volume, e.cfg.MaxVolumeParticipation); ok {
		shares = decimal.Min(shares, e.roundShares(limit, req.Fractional))
	}

	// Shrink until cost plus commission fits the buying power. Commission
	// schedules are monotonic in size so a few passes converge.
	for i := 0; i < 8 && shares.IsPositive(); i++ {
		cost := shares.Mul(req.Fill).Add(e.cfg.Commission.Commission(shares, req.Fill))
		if cost.LessThanOrEqual(req.BuyingPower) {
			break
		}
		avail := req.BuyingPower.Sub(e.cfg.Commission.Commission(shares, req.Fill))
		next := e.roundShares(avail.Div(req.Fill), req.Fractional)
		if next.GreaterThanOrEqual(shares) {
			next = shares.Sub(decimal.NewFromInt(1))
			if req.Fractional {
				next = shares.Mul(decimal.RequireFromString("0.99"))
			}
		}
		shares = next
	}
	if shares.IsPositive() {
		cost := shares.Mul(req.Fill).Add(e.cfg.Commission.Commission(shares, req.Fill))
		if cost.GreaterThan(req.BuyingPower) {
			return decimal.Zero
		}
	}

	if req.Fractional {
		if !shares.IsPositive() {
			return decimal.Zero
		}
		return shares
	}
	if shares.LessThan(decimal.NewFromInt(1)) {
		return decimal.Zero
	}
	return shares
}

func (e *Engine) roundShares(v decimal.Decimal, fractional bool) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	if fractional {
		return v.Truncate(6)
	}
	return v.Floor()
}
