package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"strategylab/internal/domain"
)

// ---------------------------------------------------------------------------
// Signal execution
// ---------------------------------------------------------------------------

// executeSignals runs the queued signals at today's open. Buying power is
// snapshotted once, net of open shorts, and consumed by each entry in queue
// order. While halted only closing signals are honored.
func (e *Engine) executeSignals(pending []domain.Signal, bars map[string]domain.Bar, date time.Time, halted bool) {
	if len(pending) == 0 {
		return
	}
	buyingPower := e.margin.BuyingPower(e.cash, e.ledger.ShortCostBasis())

	for _, sig := range pending {
		if sig.Confidence < e.cfg.ConfidenceThreshold {
			e.out.SignalsBelowThreshold++
			continue
		}
		if sig.IsLimit() {
			if !halted {
				e.limits.Add(sig, date)
			}
			continue
		}
		bar, ok := bars[sig.Symbol]
		if !ok {
			e.out.EntriesSkipped++
			continue
		}

		if pos, open := e.ledger.Get(sig.Symbol); open {
			switch {
			case sig.Direction == domain.DirectionSell && pos.Side == domain.PositionSideLong:
				e.closePosition(pos, bar.Open, date, domain.ExitReasonSignal)
			case sig.Direction == domain.DirectionBuy && pos.Side == domain.PositionSideShort:
				e.closePosition(pos, bar.Open, date, domain.ExitReasonSignalCover)
			}
			continue
		}
		if halted {
			continue
		}

		var side domain.PositionSide
		switch sig.Direction {
		case domain.DirectionBuy:
			side = domain.PositionSideLong
		case domain.DirectionSell:
			if !e.cfg.AllowShort {
				continue
			}
			side = domain.PositionSideShort
		default:
			continue
		}
		if used, ok := e.openPosition(sig, side, bar, date, buyingPower); ok {
			buyingPower = buyingPower.Sub(used)
		} else {
			e.out.EntriesSkipped++
		}
	}
}

// weightFor returns the allocation weight of an entry in symbol.
func (e *Engine) weightFor(symbol string) float64 {
	switch e.cfg.Allocation {
	case AllocationEqualWeight:
		n := len(e.timeline.Symbols)
		if n == 0 {
			return 0
		}
		return e.cfg.PositionSizePct / float64(n)
	case AllocationCustom:
		return e.cfg.CustomWeights[symbol]
	default:
		return e.cfg.PositionSizePct
	}
}

// openPosition enters at today's open and returns the buying power consumed.
func (e *Engine) openPosition(sig domain.Signal, side domain.PositionSide, bar domain.Bar, date time.Time, buyingPower decimal.Decimal) (decimal.Decimal, bool) {
	long := side == domain.PositionSideLong
	fill := FillPrice(bar.Open, long, e.cfg.SlippageRate)

	shares := e.SizeShares(SizeRequest{
		BuyingPower: buyingPower,
		Weight:      e.weightFor(sig.Symbol),
		Multiplier:  e.regime.Multiplier(),
		Fill:        fill,
		Volume:      bar.Volume,
		Fractional:  e.cfg.AllowFractionalShare,
	})
	if !shares.IsPositive() {
		return decimal.Zero, false
	}

	commission := e.cfg.Commission.Commission(shares, fill)
	notional := fill.Mul(shares)
	pos := &domain.Position{
		Symbol:          sig.Symbol,
		EntryDate:       date,
		EntryPrice:      fill,
		Shares:          shares,
		Side:            side,
		EntryCommission: commission,
		EntrySlippage:   fill.Sub(bar.Open).Abs().Mul(shares),
		Signal:          sig.Direction,
		Confidence:      sig.Confidence,
	}
	e.setBrackets(pos)
	if !e.ledger.Open(pos) {
		return decimal.Zero, false
	}

	// Short proceeds stay out of cash; the position is marked at its
	// unrealized gain instead.
	if long {
		e.cash = e.cash.Sub(notional).Sub(commission)
	} else {
		e.cash = e.cash.Sub(commission)
	}
	e.trailing.Start(pos.Symbol, fill)

	e.log.Debug("position opened",
		"date", date,
		"symbol", pos.Symbol,
		"side", side,
		"shares", shares.String(),
		"price", fill.StringFixed(4),
	)
	return notional.Add(commission), true
}

// setBrackets derives the fixed stop-loss and take-profit prices from the
// entry fill.
func (e *Engine) setBrackets(pos *domain.Position) {
	one := decimal.NewFromInt(1)
	sl := domain.ToDecimal(e.cfg.StopLossPct)
	tp := domain.ToDecimal(e.cfg.TakeProfitPct)
	if pos.Side == domain.PositionSideShort {
		if sl.IsPositive() {
			pos.StopLoss = domain.DecimalPtr(pos.EntryPrice.Mul(one.Add(sl)))
		}
		if tp.IsPositive() && tp.LessThan(one) {
			pos.TakeProfit = domain.DecimalPtr(pos.EntryPrice.Mul(one.Sub(tp)))
		}
		return
	}
	if sl.IsPositive() && sl.LessThan(one) {
		pos.StopLoss = domain.DecimalPtr(pos.EntryPrice.Mul(one.Sub(sl)))
	}
	if tp.IsPositive() {
		pos.TakeProfit = domain.DecimalPtr(pos.EntryPrice.Mul(one.Add(tp)))
	}
}

// ---------------------------------------------------------------------------
// Intraday exits
// ---------------------------------------------------------------------------

// checkExits closes pos if today's range reaches its stop or take-profit.
// The stop wins when both are reached in the same bar. Exits fill at the
// worse of the open (when it gapped through) and the trigger price.
func (e *Engine) checkExits(pos *domain.Position, bar domain.Bar, date time.Time) {
	if pos.Side == domain.PositionSideShort {
		e.checkShortExits(pos, bar, date)
		return
	}

	if trail, ok := e.trailing.Update(pos.Symbol, pos.Side, bar.High, bar.Low); ok {
		if pos.StopLoss == nil || trail.GreaterThan(*pos.StopLoss) {
			pos.StopLoss = domain.DecimalPtr(trail)
		}
	}
	if pos.StopLoss != nil && bar.Low.LessThanOrEqual(*pos.StopLoss) {
		e.closePosition(pos, decimal.Min(bar.Open, *pos.StopLoss), date, domain.ExitReasonStopLoss)
		return
	}
	if pos.TakeProfit != nil && bar.High.GreaterThanOrEqual(*pos.TakeProfit) {
		e.closePosition(pos, decimal.Min(bar.Open, *pos.TakeProfit), date, domain.ExitReasonTakeProfit)
	}
}

func (e *Engine) checkShortExits(pos *domain.Position, bar domain.Bar, date time.Time) {
	if trail, ok := e.trailing.Update(pos.Symbol, pos.Side, bar.High, bar.Low); ok {
		if pos.StopLoss == nil || trail.LessThan(*pos.StopLoss) {
			pos.StopLoss = domain.DecimalPtr(trail)
		}
	}
	if pos.StopLoss != nil && bar.High.GreaterThanOrEqual(*pos.StopLoss) {
		e.closePosition(pos, decimal.Max(bar.Open, *pos.StopLoss), date, domain.ExitReasonStopLoss)
		return
	}
	if pos.TakeProfit != nil && bar.Low.LessThanOrEqual(*pos.TakeProfit) {
		e.closePosition(pos, decimal.Max(bar.Open, *pos.TakeProfit), date, domain.ExitReasonTakeProfit)
	}
}

// closeAll force-closes what is still open at each symbol's last close.
func (e *Engine) closeAll() {
	for _, sym := range e.ledger.Symbols() {
		pos, _ := e.ledger.Get(sym)
		bar, ok := e.lastBar[sym]
		if !ok {
			bar = domain.Bar{Timestamp: pos.EntryDate, Close: pos.EntryPrice}
		}
		date := dateKey(bar.Timestamp)
		if date.Before(pos.EntryDate) {
			date = pos.EntryDate
		}
		e.closePosition(pos, bar.Close, date, domain.ExitReasonEndOfBacktest)
	}
}

// ---------------------------------------------------------------------------
// Closing
// ---------------------------------------------------------------------------

// closePosition exits pos at raw (before slippage), settles cash and appends
// the round trip to the trade log.
func (e *Engine) closePosition(pos *domain.Position, raw decimal.Decimal, date time.Time, reason domain.ExitReason) {
	if _, ok := e.ledger.Close(pos.Symbol); !ok {
		return
	}
	e.trailing.Remove(pos.Symbol)

	short := pos.Side == domain.PositionSideShort
	fill := FillPrice(raw, short, e.cfg.SlippageRate)
	commission := e.cfg.Commission.Commission(pos.Shares, fill)
	slippage := fill.Sub(raw).Abs().Mul(pos.Shares)

	if short {
		e.cash = e.cash.Add(pos.EntryPrice.Sub(fill).Mul(pos.Shares)).Sub(commission)
	} else {
		e.cash = e.cash.Add(fill.Mul(pos.Shares)).Sub(commission)
	}

	pnl, pnlPct := RoundTrip(pos.Side, pos.EntryPrice, fill, pos.Shares, pos.EntryCommission, commission)
	trade := domain.Trade{
		Symbol:      pos.Symbol,
		Signal:      pos.Signal,
		Confidence:  pos.Confidence,
		EntryDate:   pos.EntryDate,
		ExitDate:    date,
		EntryPrice:  pos.EntryPrice,
		ExitPrice:   fill,
		Shares:      pos.Shares,
		Side:        pos.Side,
		PnL:         pnl,
		PnLPct:      pnlPct,
		HoldingDays: int(date.Sub(pos.EntryDate).Hours() / 24),
		Commission:  pos.EntryCommission.Add(commission),
		Slippage:    pos.EntrySlippage.Add(slippage),
		ExitReason:  reason,
	}
	e.trades = append(e.trades, trade)

	e.log.Debug("position closed",
		"date", date,
		"symbol", pos.Symbol,
		"reason", reason,
		"pnl", pnl.StringFixed(2),
	)
}

// RoundTrip returns the net P&L of a round trip after both commissions and
// its percentage of the entry notional.
func RoundTrip(side domain.PositionSide, entry, exit, shares, entryCommission, exitCommission decimal.Decimal) (decimal.Decimal, float64) {
	gross := exit.Sub(entry).Mul(shares)
	if side == domain.PositionSideShort {
		gross = gross.Neg()
	}
	pnl := gross.Sub(entryCommission).Sub(exitCommission)

	basis := entry.Mul(shares)
	if basis.IsZero() {
		return pnl, 0
	}
	return pnl, domain.Float(pnl.Div(basis)) * 100
}
