package engine

import (
	"time"

	"strategylab/internal/domain"
)

// pendingLimit is a resting limit order.
type pendingLimit struct {
	signal domain.Signal
	placed time.Time
	expiry int
	age    int
}

// LimitOrderBook holds resting limit orders and converts them into market
// signals when a bar trades through the limit price.
type LimitOrderBook struct {
	defaultExpiry int
	orders        []*pendingLimit
}

// NewLimitOrderBook creates an empty book. defaultExpiry applies to orders
// that carry no expiry of their own.
func NewLimitOrderBook(defaultExpiry int) *LimitOrderBook {
	if defaultExpiry <= 0 {
		defaultExpiry = 1
	}
	return &LimitOrderBook{defaultExpiry: defaultExpiry}
}

// Add rests sig, placed on date.
func (b *LimitOrderBook) Add(sig domain.Signal, date time.Time) {
	expiry := sig.ExpiryBars
	if expiry <= 0 {
		expiry = b.defaultExpiry
	}
	b.orders = append(b.orders, &pendingLimit{signal: sig, placed: date, expiry: expiry})
}

// Len returns the number of resting orders.
func (b *LimitOrderBook) Len() int { return len(b.orders) }

// Process checks every resting order against the bars of one date. A buy
// triggers when the low reaches the limit, a sell when the high reaches it.
// Triggered orders come back as market signals in placement order; orders
// that have lived past their expiry are dropped. Orders whose symbol has no
// bar that date neither trigger nor age.
func (b *LimitOrderBook) Process(bars map[string]domain.Bar) []domain.Signal {
	var triggered []domain.Signal
	kept := b.orders[:0]
	for _, o := range b.orders {
		bar, ok := bars[o.signal.Symbol]
		if !ok {
			kept = append(kept, o)
			continue
		}
		o.age++

		limit := *o.signal.LimitPrice
		hit := false
		switch o.signal.Direction {
		case domain.DirectionBuy:
			hit = bar.Low.LessThanOrEqual(limit)
		case domain.DirectionSell:
			hit = bar.High.GreaterThanOrEqual(limit)
		}

		if hit {
			sig := o.signal
			sig.OrderType = ""
			sig.LimitPrice = nil
			sig.ExpiryBars = 0
			triggered = append(triggered, sig)
			continue
		}
		if o.age >= o.expiry {
			continue
		}
		kept = append(kept, o)
	}
	for i := len(kept); i < len(b.orders); i++ {
		b.orders[i] = nil
	}
	b.orders = kept
	return triggered
}
