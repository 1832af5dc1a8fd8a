package engine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategylab/internal/domain"
)

func TestMarginTracker(t *testing.T) {
	m := NewMarginTracker(2)
	assert.True(t, m.BuyingPower(d(1000), decimal.Zero).Equal(d(2000)))
	assert.True(t, m.BuyingPower(d(-5), decimal.Zero).IsZero())
	assert.True(t, m.BuyingPower(d(1000), d(1500)).Equal(d(500)), "open shorts consume buying power")
	assert.True(t, m.BuyingPower(d(1000), d(2500)).IsZero())

	m.Update(d(1500), d(1000))
	m.Update(d(500), d(1000))
	assert.InDelta(t, 0.5, m.Utilization(), 1e-12)
	assert.InDelta(t, 1.5, m.PeakUtilization(), 1e-12)

	m.Update(d(500), decimal.Zero)
	assert.InDelta(t, 0.5, m.Utilization(), 1e-12)
}

func TestMarginTrackerClampsMultiplier(t *testing.T) {
	m := NewMarginTracker(0.5)
	assert.True(t, m.BuyingPower(d(1000), decimal.Zero).Equal(d(1000)))
}

func TestCircuitBreaker(t *testing.T) {
	cb := NewCircuitBreaker(0.10)
	assert.False(t, cb.Check(d(100)))
	assert.False(t, cb.Check(d(110)))
	assert.False(t, cb.Check(d(99)), "exactly 10% is not beyond the threshold")
	assert.True(t, cb.Check(d(97.9)))
	assert.True(t, cb.Check(d(200)), "halt latches")
	assert.True(t, cb.Halted())
}

func TestCircuitBreakerDisabled(t *testing.T) {
	cb := NewCircuitBreaker(0)
	cb.Check(d(100))
	assert.False(t, cb.Check(d(1)))
}

func TestTrailingStopsLong(t *testing.T) {
	ts := NewTrailingStops(0.1)
	require.True(t, ts.Enabled())
	ts.Start("AAA", d(100))

	stop, ok := ts.Update("AAA", domain.PositionSideLong, d(110), d(105))
	require.True(t, ok)
	assert.True(t, stop.Equal(d(99)), "stop %s", stop)

	stop, _ = ts.Update("AAA", domain.PositionSideLong, d(104), d(100))
	assert.True(t, stop.Equal(d(99)), "stop must not loosen, got %s", stop)
}

func TestTrailingStopsShort(t *testing.T) {
	ts := NewTrailingStops(0.1)
	ts.Start("AAA", d(100))

	stop, ok := ts.Update("AAA", domain.PositionSideShort, d(95), d(90))
	require.True(t, ok)
	assert.True(t, stop.Equal(d(99)), "stop %s", stop)

	stop, _ = ts.Update("AAA", domain.PositionSideShort, d(98), d(94))
	assert.True(t, stop.Equal(d(99)), "stop %s", stop)

	ts.Remove("AAA")
	stop, _ = ts.Update("AAA", domain.PositionSideShort, d(98), d(96))
	assert.True(t, stop.Equal(d(105.6)), "fresh mark after remove, got %s", stop)
}

func TestTrailingStopsDisabled(t *testing.T) {
	ts := NewTrailingStops(0)
	ts.Start("AAA", d(100))
	_, ok := ts.Update("AAA", domain.PositionSideLong, d(110), d(100))
	assert.False(t, ok)
}
