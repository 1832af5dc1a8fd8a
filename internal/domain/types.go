// Package domain defines the core value types shared by the backtesting
// engine, the analytics layer and the storage collaborators.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

// Bar is one OHLCV record for a symbol on a date.
type Bar struct {
	Symbol    string          `json:"symbol"`
	Timestamp time.Time       `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    float64         `json:"volume"`
}

// ---------------------------------------------------------------------------
// Signals
// ---------------------------------------------------------------------------

// Direction is the label carried by a signal.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// OrderType selects how a signal is executed. The empty value is a market
// order.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// Signal is a dated directive produced by an analysis engine.
type Signal struct {
	Date       time.Time        `json:"date" yaml:"date"`
	Symbol     string           `json:"symbol" yaml:"symbol"`
	Direction  Direction        `json:"direction" yaml:"direction"`
	Confidence float64          `json:"confidence" yaml:"confidence"`
	OrderType  OrderType        `json:"order_type,omitempty" yaml:"order_type,omitempty"`
	LimitPrice *decimal.Decimal `json:"limit_price,omitempty" yaml:"-"`
	ExpiryBars int              `json:"expiry_bars,omitempty" yaml:"expiry_bars,omitempty"`
	Reason     string           `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// IsLimit reports whether the signal must rest as a limit order.
func (s Signal) IsLimit() bool {
	return s.OrderType == OrderTypeLimit && s.LimitPrice != nil
}

// ---------------------------------------------------------------------------
// Positions and trades
// ---------------------------------------------------------------------------

// PositionSide is the direction of an open position.
type PositionSide string

const (
	PositionSideLong  PositionSide = "long"
	PositionSideShort PositionSide = "short"
)

// ExitReason records why a position was closed.
type ExitReason string

const (
	ExitReasonSignal        ExitReason = "signal"
	ExitReasonSignalCover   ExitReason = "signal_cover"
	ExitReasonStopLoss      ExitReason = "stop_loss"
	ExitReasonTakeProfit    ExitReason = "take_profit"
	ExitReasonRebalance     ExitReason = "rebalance"
	ExitReasonEndOfBacktest ExitReason = "end_of_backtest"
)

// Position is an open position held by a single backtest run.
type Position struct {
	Symbol          string           `json:"symbol"`
	EntryDate       time.Time        `json:"entry_date"`
	EntryPrice      decimal.Decimal  `json:"entry_price"` // post-slippage fill
	Shares          decimal.Decimal  `json:"shares"`
	StopLoss        *decimal.Decimal `json:"stop_loss,omitempty"`
	TakeProfit      *decimal.Decimal `json:"take_profit,omitempty"`
	Side            PositionSide     `json:"side"`
	EntryCommission decimal.Decimal  `json:"entry_commission"`
	EntrySlippage   decimal.Decimal  `json:"entry_slippage"`
	Signal          Direction        `json:"signal"`
	Confidence      float64          `json:"confidence"`
}

// CostBasis is entry fill times shares.
func (p *Position) CostBasis() decimal.Decimal {
	return p.EntryPrice.Mul(p.Shares)
}

// MarketValue is the contribution of the position to equity at price:
// current value for longs, unrealized gain for shorts.
func (p *Position) MarketValue(price decimal.Decimal) decimal.Decimal {
	if p.Side == PositionSideShort {
		return p.EntryPrice.Sub(price).Mul(p.Shares)
	}
	return price.Mul(p.Shares)
}

// GrossExposure is the absolute notional of the position at price.
func (p *Position) GrossExposure(price decimal.Decimal) decimal.Decimal {
	return price.Mul(p.Shares).Abs()
}

// Trade is a closed round trip.
type Trade struct {
	Symbol      string          `json:"symbol"`
	Signal      Direction       `json:"signal"`
	Confidence  float64         `json:"confidence"`
	EntryDate   time.Time       `json:"entry_date"`
	ExitDate    time.Time       `json:"exit_date"`
	EntryPrice  decimal.Decimal `json:"entry_price"`
	ExitPrice   decimal.Decimal `json:"exit_price"`
	Shares      decimal.Decimal `json:"shares"`
	Side        PositionSide    `json:"side"`
	PnL         decimal.Decimal `json:"pnl"`
	PnLPct      float64         `json:"pnl_pct"`
	HoldingDays int             `json:"holding_days"`
	Commission  decimal.Decimal `json:"commission"`
	Slippage    decimal.Decimal `json:"slippage"`
	ExitReason  ExitReason      `json:"exit_reason"`
}

// IsWin reports whether the trade closed with a positive net P&L.
func (t Trade) IsWin() bool {
	return t.PnL.IsPositive()
}

// EquityPoint is one sample of the equity curve.
type EquityPoint struct {
	Date        time.Time       `json:"date"`
	Equity      decimal.Decimal `json:"equity"`
	DrawdownPct float64         `json:"drawdown_pct"`
}
