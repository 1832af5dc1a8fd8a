package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategylab/internal/domain"
)

func limitSignal(sym string, dir domain.Direction, price float64, expiry int) domain.Signal {
	p := d(price)
	s := signal(sym, 0, dir, 1)
	s.OrderType = domain.OrderTypeLimit
	s.LimitPrice = &p
	s.ExpiryBars = expiry
	return s
}

func TestLimitOrderBookTriggers(t *testing.T) {
	b := NewLimitOrderBook(5)
	b.Add(limitSignal("AAA", domain.DirectionBuy, 95, 0), day(0))
	b.Add(limitSignal("BBB", domain.DirectionSell, 55, 0), day(0))

	got := b.Process(map[string]domain.Bar{
		"AAA": ohlc("AAA", 1, 100, 101, 96, 99),
		"BBB": ohlc("BBB", 1, 50, 56, 49, 52),
	})
	require.Len(t, got, 1)
	assert.Equal(t, "BBB", got[0].Symbol)
	assert.False(t, got[0].IsLimit())
	assert.Nil(t, got[0].LimitPrice)
	assert.Equal(t, 1, b.Len())

	got = b.Process(map[string]domain.Bar{"AAA": ohlc("AAA", 2, 96, 97, 95, 96)})
	require.Len(t, got, 1)
	assert.Equal(t, "AAA", got[0].Symbol)
	assert.Equal(t, 0, b.Len())
}

func TestLimitOrderBookExpiry(t *testing.T) {
	b := NewLimitOrderBook(5)
	b.Add(limitSignal("AAA", domain.DirectionBuy, 50, 2), day(0))

	bar := map[string]domain.Bar{"AAA": ohlc("AAA", 1, 100, 100, 100, 100)}
	assert.Empty(t, b.Process(bar))
	assert.Equal(t, 1, b.Len())

	// A date without a bar for the symbol does not age the order.
	assert.Empty(t, b.Process(map[string]domain.Bar{}))
	assert.Equal(t, 1, b.Len())

	assert.Empty(t, b.Process(bar))
	assert.Equal(t, 0, b.Len())
}

func TestLimitOrderBookDefaultExpiry(t *testing.T) {
	b := NewLimitOrderBook(1)
	b.Add(limitSignal("AAA", domain.DirectionBuy, 50, 0), day(0))
	b.Process(map[string]domain.Bar{"AAA": ohlc("AAA", 1, 100, 100, 100, 100)})
	assert.Equal(t, 0, b.Len())
}
