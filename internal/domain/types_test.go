package domain

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestTypesExist(t *testing.T) {
	// Verify Bar can be instantiated with zero values.
	bar := Bar{}
	if bar.Symbol != "" {
		t.Error("expected empty Symbol for zero-value Bar")
	}
	if !bar.Timestamp.IsZero() {
		t.Error("expected zero Timestamp for zero-value Bar")
	}
	if !bar.Open.IsZero() || !bar.High.IsZero() || !bar.Low.IsZero() || !bar.Close.IsZero() {
		t.Error("expected zero OHLC values for zero-value Bar")
	}

	// Verify enum constants are defined correctly.
	if DirectionBuy != "buy" || DirectionSell != "sell" {
		t.Error("Direction constants have unexpected values")
	}
	if ExitReasonSignalCover != "signal_cover" || ExitReasonEndOfBacktest != "end_of_backtest" {
		t.Error("ExitReason constants have unexpected values")
	}

	signal := Signal{
		Date:       time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Symbol:     "AAPL",
		Direction:  DirectionBuy,
		Confidence: 0.85,
		Reason:     "breakout",
	}
	if signal.IsLimit() {
		t.Error("market signal reported as limit")
	}
	signal.OrderType = OrderTypeLimit
	if signal.IsLimit() {
		t.Error("limit signal without a price reported as limit")
	}
	signal.LimitPrice = DecimalPtr(decimal.NewFromInt(95))
	if !signal.IsLimit() {
		t.Error("limit signal with a price not reported as limit")
	}
}

func TestPositionMarketValue(t *testing.T) {
	long := Position{
		EntryPrice: decimal.NewFromInt(100),
		Shares:     decimal.NewFromInt(10),
		Side:       PositionSideLong,
	}
	if got := long.MarketValue(decimal.NewFromInt(110)); !got.Equal(decimal.NewFromInt(1100)) {
		t.Errorf("long MarketValue = %s, want 1100", got)
	}

	short := Position{
		EntryPrice: decimal.NewFromInt(100),
		Shares:     decimal.NewFromInt(10),
		Side:       PositionSideShort,
	}
	if got := short.MarketValue(decimal.NewFromInt(90)); !got.Equal(decimal.NewFromInt(100)) {
		t.Errorf("short MarketValue = %s, want 100", got)
	}
	if got := short.GrossExposure(decimal.NewFromInt(90)); !got.Equal(decimal.NewFromInt(900)) {
		t.Errorf("short GrossExposure = %s, want 900", got)
	}
}

func TestToDecimal(t *testing.T) {
	if got := ToDecimal(math.NaN()); !got.IsZero() {
		t.Errorf("ToDecimal(NaN) = %s, want 0", got)
	}
	if got := ToDecimal(math.Inf(1)); !got.IsZero() {
		t.Errorf("ToDecimal(+Inf) = %s, want 0", got)
	}
	if got := ToDecimal(100.25); !got.Equal(decimal.RequireFromString("100.25")) {
		t.Errorf("ToDecimal(100.25) = %s", got)
	}
}
