// Package engine implements the backtest execution engine: a single-threaded
// date-by-date replay of signals against historical bars with execution
// costs, position lifecycle management and risk controls.
package engine

import (
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"strategylab/internal/domain"
)

// regimeRefreshEvery is the number of dates between regime refreshes.
const regimeRefreshEvery = 20

// tradingDaysPerYear converts annual rates to daily ones.
const tradingDaysPerYear = 252

// Input is the fully materialized data for one run.
type Input struct {
	Bars    map[string][]domain.Bar
	Signals []domain.Signal
}

// RegimeChange records a regime transition during a run.
type RegimeChange struct {
	Date   time.Time `json:"date"`
	Regime Regime    `json:"regime"`
}

// Output is everything a run produces before analytics.
type Output struct {
	Symbols        []string
	StartDate      time.Time
	EndDate        time.Time
	InitialCapital decimal.Decimal
	FinalEquity    decimal.Decimal

	Trades      []domain.Trade
	EquityCurve []domain.EquityPoint

	TotalDates     int
	ExposedDates   int
	PeakEquity     decimal.Decimal
	MaxDrawdownPct float64

	PeakMarginUtilization float64
	RegimeHistory         []RegimeChange
	HaltedOn              *time.Time

	SignalsBelowThreshold int
	SignalsDropped        int
	EntriesSkipped        int
}

// Engine replays one run. It holds all mutable run state and is not safe
// for concurrent use; independent runs use independent Engines.
type Engine struct {
	cfg Config
	log *slog.Logger

	timeline *Timeline
	signals  *SignalIndex

	cash     decimal.Decimal
	ledger   *Ledger
	margin   *MarginTracker
	trailing *TrailingStops
	breaker  *CircuitBreaker
	limits   *LimitOrderBook
	regime   *RegimeDetector

	lastBar map[string]domain.Bar
	trades  []domain.Trade
	curve   []domain.EquityPoint
	returns []float64
	peak    decimal.Decimal
	maxDD   float64
	exposed int
	out     *Output
}

// New creates an Engine for cfg. A nil logger uses slog.Default().
func New(cfg Config, logger *slog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg: cfg,
		log: logger.With("component", "engine"),
	}, nil
}

// Config returns the run configuration.
func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) reset(in Input) {
	e.timeline = BuildTimeline(in.Bars)
	e.signals = IndexSignals(in.Signals, e.timeline)
	e.cash = e.cfg.InitialCapital
	e.ledger = NewLedger()
	e.margin = NewMarginTracker(e.cfg.MarginMultiplier)
	e.trailing = NewTrailingStops(e.cfg.TrailingStopPct)
	e.breaker = NewCircuitBreaker(e.cfg.MaxDrawdownHaltPct)
	e.limits = NewLimitOrderBook(e.cfg.DefaultLimitExpiryBars)
	e.regime = NewRegimeDetector(e.cfg.Regime)
	e.lastBar = make(map[string]domain.Bar)
	e.trades = nil
	e.curve = make([]domain.EquityPoint, 0, e.timeline.Len())
	e.returns = nil
	e.peak = e.cfg.InitialCapital
	e.maxDD = 0
	e.exposed = 0
	e.out = &Output{
		Symbols:        e.timeline.Symbols,
		InitialCapital: e.cfg.InitialCapital,
		SignalsDropped: e.signals.Dropped(),
	}
}

// Run replays in and returns the trade log and equity curve. Each call
// starts from a clean state.
func (e *Engine) Run(in Input) (*Output, error) {
	e.reset(in)
	tl := e.timeline

	var pending []domain.Signal
	for i, date := range tl.Dates {
		bars := tl.BarsOn(date)

		// 1. Open-of-day mark to market.
		openEquity, openGross := e.markToMarket(bars, true)

		// 2. Cash sweep on idle cash.
		if e.cfg.CashSweepRate > 0 && e.cash.IsPositive() {
			daily := domain.ToDecimal(e.cfg.CashSweepRate / tradingDaysPerYear)
			e.cash = e.cash.Add(e.cash.Mul(daily))
		}

		// 3. Margin snapshot.
		e.margin.Update(openGross, openEquity)

		// 4. Scheduled rebalance closes everything before new entries.
		if e.cfg.RebalanceInterval > 0 && i > 0 && i%e.cfg.RebalanceInterval == 0 {
			for _, sym := range e.ledger.Symbols() {
				bar, ok := bars[sym]
				if !ok {
					continue
				}
				pos, _ := e.ledger.Get(sym)
				e.closePosition(pos, bar.Open, date, domain.ExitReasonRebalance)
			}
		}

		// 5. Regime refresh.
		if i > 0 && i%regimeRefreshEvery == 0 {
			prev := e.regime.Current()
			if r := e.regime.Refresh(e.returns); r != prev {
				e.out.RegimeHistory = append(e.out.RegimeHistory, RegimeChange{Date: date, Regime: r})
				e.log.Debug("regime changed", "date", date, "regime", r)
			}
		}

		// 6. Circuit breaker.
		wasHalted := e.breaker.Halted()
		halted := e.breaker.Check(openEquity)
		if halted && !wasHalted {
			d := date
			e.out.HaltedOn = &d
			e.log.Info("circuit breaker tripped", "date", date, "equity", openEquity.StringFixed(2))
		}

		// 7. Limit orders crossed by today's range join today's queue.
		if !halted {
			pending = append(pending, e.limits.Process(bars)...)
		}

		// 8. Execute yesterday's signals at today's open.
		e.executeSignals(pending, bars, date, halted)

		// 9. Stop-loss, take-profit and trailing exits.
		for _, sym := range e.ledger.Symbols() {
			bar, ok := bars[sym]
			if !ok {
				continue
			}
			pos, _ := e.ledger.Get(sym)
			e.checkExits(pos, bar, date)
		}

		// 10. Today's signals execute tomorrow.
		pending = append([]domain.Signal(nil), e.signals.On(date)...)

		// 11. Exposure.
		if e.ledger.Len() > 0 {
			e.exposed++
		}

		// 12. Close-of-day mark to market.
		for sym, bar := range bars {
			e.lastBar[sym] = bar
		}
		closeEquity, _ := e.markToMarket(bars, false)
		e.recordEquity(date, closeEquity)
	}

	e.closeAll()
	return e.finish(), nil
}

// markToMarket values cash plus open positions at the open or close of
// bars. Symbols without a bar use their last known close. It also returns
// gross exposure for the margin tracker.
func (e *Engine) markToMarket(bars map[string]domain.Bar, atOpen bool) (equity, gross decimal.Decimal) {
	equity = e.cash
	for _, sym := range e.ledger.Symbols() {
		pos, _ := e.ledger.Get(sym)
		price := e.priceFor(pos, bars, atOpen)
		equity = equity.Add(pos.MarketValue(price))
		gross = gross.Add(pos.GrossExposure(price))
	}
	return equity, gross
}

func (e *Engine) priceFor(pos *domain.Position, bars map[string]domain.Bar, atOpen bool) decimal.Decimal {
	if bar, ok := bars[pos.Symbol]; ok {
		if atOpen {
			return bar.Open
		}
		return bar.Close
	}
	if bar, ok := e.lastBar[pos.Symbol]; ok {
		return bar.Close
	}
	return pos.EntryPrice
}

func (e *Engine) recordEquity(date time.Time, equity decimal.Decimal) {
	if len(e.curve) > 0 {
		prev := e.curve[len(e.curve)-1].Equity
		if prev.IsPositive() {
			e.returns = append(e.returns, domain.Float(equity.Div(prev))-1)
		}
	}
	if equity.GreaterThan(e.peak) {
		e.peak = equity
	}
	dd := 0.0
	if e.peak.IsPositive() {
		dd = domain.Float(e.peak.Sub(equity).Div(e.peak)) * 100
	}
	if dd > e.maxDD {
		e.maxDD = dd
	}
	e.curve = append(e.curve, domain.EquityPoint{Date: date, Equity: equity, DrawdownPct: dd})
}

func (e *Engine) finish() *Output {
	out := e.out
	out.Trades = e.trades
	out.EquityCurve = e.curve
	out.FinalEquity = e.cash
	out.TotalDates = e.timeline.Len()
	out.ExposedDates = e.exposed
	out.PeakEquity = e.peak
	out.MaxDrawdownPct = e.maxDD
	out.PeakMarginUtilization = e.margin.PeakUtilization()
	if n := e.timeline.Len(); n > 0 {
		out.StartDate = e.timeline.Dates[0]
		out.EndDate = e.timeline.Dates[n-1]
	}
	e.log.Info("backtest finished",
		"dates", out.TotalDates,
		"trades", len(out.Trades),
		"final_equity", out.FinalEquity.StringFixed(2),
		"max_drawdown_pct", out.MaxDrawdownPct,
	)
	return out
}
