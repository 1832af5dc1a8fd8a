// Package backtest wires bar storage, signal feeds, the execution engine and
// the analytics layer into complete runs, and persists their results.
package backtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"strategylab/internal/analytics"
	"strategylab/internal/domain"
	"strategylab/internal/engine"
	"strategylab/internal/store"
	"strategylab/internal/strategy"
)

// Backtest errors.
var (
	ErrNoBars      = errors.New("no bars for requested symbols")
	ErrUnknownFeed = errors.New("unknown signal feed")
)

const defaultMarket = "us"

// Request describes one run to load from storage.
type Request struct {
	// Feed names the registered signal feed; it also names the result.
	Feed    string    `json:"feed"`
	Symbols []string  `json:"symbols"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`

	// Config overrides the backtester's default engine config.
	Config *engine.Config `json:"-"`

	// Benchmark is an optional external benchmark symbol loaded from the
	// same bar store.
	Benchmark string `json:"benchmark,omitempty"`

	// Trials is the number of configurations tried before this one.
	Trials int `json:"trials,omitempty"`
}

// Diagnostics are run-level counters that are not performance metrics.
type Diagnostics struct {
	PeakMarginUtilization float64               `json:"peak_margin_utilization"`
	RegimeHistory         []engine.RegimeChange `json:"regime_history,omitempty"`
	HaltedOn              *time.Time            `json:"halted_on,omitempty"`
	SignalsBelowThreshold int                   `json:"signals_below_threshold"`
	SignalsDropped        int                   `json:"signals_dropped"`
	EntriesSkipped        int                   `json:"entries_skipped"`
}

// Result is the complete, serializable record of one run.
type Result struct {
	ID             string               `json:"id,omitempty"`
	Name           string               `json:"name"`
	Symbols        []string             `json:"symbols"`
	StartDate      time.Time            `json:"start_date"`
	EndDate        time.Time            `json:"end_date"`
	InitialCapital decimal.Decimal      `json:"initial_capital"`
	FinalEquity    decimal.Decimal      `json:"final_equity"`
	Trades         []domain.Trade       `json:"trades"`
	EquityCurve    []domain.EquityPoint `json:"equity_curve"`

	analytics.Report

	Diagnostics Diagnostics `json:"diagnostics"`
}

// TearSheet builds the consolidated summary of r.
func (r *Result) TearSheet() *analytics.TearSheet {
	return analytics.NewTearSheet(analytics.Header{
		Name:           r.Name,
		Symbols:        r.Symbols,
		Start:          r.StartDate,
		End:            r.EndDate,
		InitialCapital: r.InitialCapital,
		FinalEquity:    r.FinalEquity,
	}, &r.Report)
}

// Record converts r into its persisted form.
func (r *Result) Record() (*store.ResultRecord, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return &store.ResultRecord{
		ID:             r.ID,
		Name:           r.Name,
		Symbols:        r.Symbols,
		Start:          r.StartDate,
		End:            r.EndDate,
		TotalReturnPct: r.Metrics.TotalReturnPct,
		SharpeRatio:    r.Metrics.SharpeRatio,
		MaxDrawdownPct: r.Metrics.MaxDrawdownPct,
		TotalTrades:    r.Metrics.TotalTrades,
		Payload:        payload,
	}, nil
}

// DecodeResult restores a Result from a persisted record.
func DecodeResult(rec *store.ResultRecord) (*Result, error) {
	var r Result
	if err := json.Unmarshal(rec.Payload, &r); err != nil {
		return nil, fmt.Errorf("decoding result %s: %w", rec.ID, err)
	}
	r.ID = rec.ID
	return &r, nil
}

// Backtester loads inputs, runs the engine and persists results.
type Backtester struct {
	bars    store.BarStore
	feeds   *strategy.Registry
	results store.ResultStore
	archive store.RunArchive
	cfg     engine.Config
	market  string
	log     *slog.Logger
}

// Option configures a Backtester.
type Option func(*Backtester)

// WithResultStore persists every finished run.
func WithResultStore(rs store.ResultStore) Option {
	return func(b *Backtester) { b.results = rs }
}

// WithArchive writes trade logs and equity curves of persisted runs.
func WithArchive(a store.RunArchive) Option {
	return func(b *Backtester) { b.archive = a }
}

// WithMarket selects the bar store market directory.
func WithMarket(market string) Option {
	return func(b *Backtester) { b.market = market }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backtester) { b.log = l }
}

// New creates a Backtester that reads bars from barStore, looks up signal
// feeds in feeds and runs with cfg unless a request overrides it.
func New(barStore store.BarStore, feeds *strategy.Registry, cfg engine.Config, opts ...Option) *Backtester {
	b := &Backtester{
		bars:   barStore,
		feeds:  feeds,
		cfg:    cfg,
		market: defaultMarket,
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(b)
	}
	b.log = b.log.With("component", "backtest")
	return b
}

// Run loads bars and signals for req, replays them and persists the result
// when a result store is configured.
func (b *Backtester) Run(ctx context.Context, req Request) (*Result, error) {
	cfg := b.cfg
	if req.Config != nil {
		cfg = *req.Config
	}
	in, benchmark, err := b.load(ctx, req)
	if err != nil {
		return nil, err
	}
	return b.run(ctx, req.Feed, cfg, in, benchmark, req.Trials)
}

// RunFromData replays pre-materialized bars and signals with the default
// config. benchmark may be nil.
func (b *Backtester) RunFromData(ctx context.Context, name string, bars map[string][]domain.Bar, signals []domain.Signal, benchmark []domain.Bar) (*Result, error) {
	if len(bars) == 0 {
		return nil, ErrNoBars
	}
	return b.run(ctx, name, b.cfg, engine.Input{Bars: bars, Signals: signals}, benchmark, 0)
}

// RunBatch runs independent requests concurrently, at most limit at a time
// (zero means one per request). Results are returned in request order; the
// first failure cancels the rest.
func (b *Backtester) RunBatch(ctx context.Context, reqs []Request, limit int) ([]*Result, error) {
	if limit <= 0 {
		limit = len(reqs)
	}
	results := make([]*Result, len(reqs))
	sem := make(chan struct{}, max(limit, 1))

	g, gctx := errgroup.WithContext(ctx)
	for i, req := range reqs {
		g.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			res, err := b.Run(gctx, req)
			if err != nil {
				return fmt.Errorf("run %d (%s): %w", i, req.Feed, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// load materializes every input of req before the run starts.
func (b *Backtester) load(ctx context.Context, req Request) (engine.Input, []domain.Bar, error) {
	feed, ok := b.feeds.Get(req.Feed)
	if !ok {
		return engine.Input{}, nil, fmt.Errorf("%w: %q", ErrUnknownFeed, req.Feed)
	}

	bars := make(map[string][]domain.Bar, len(req.Symbols))
	for _, sym := range req.Symbols {
		sym = strings.ToUpper(sym)
		series, err := b.bars.ReadBars(ctx, sym, b.market, req.Start, req.End)
		if err != nil {
			return engine.Input{}, nil, fmt.Errorf("reading bars for %s: %w", sym, err)
		}
		if len(series) == 0 {
			b.log.Warn("no bars for symbol", "symbol", sym, "start", req.Start, "end", req.End)
			continue
		}
		bars[sym] = series
	}
	if len(bars) == 0 {
		return engine.Input{}, nil, ErrNoBars
	}

	symbols := make([]string, 0, len(bars))
	for sym := range bars {
		symbols = append(symbols, sym)
	}
	signals, err := feed.Signals(ctx, symbols, req.Start, req.End)
	if err != nil {
		return engine.Input{}, nil, fmt.Errorf("loading signals from %s: %w", req.Feed, err)
	}

	var benchmark []domain.Bar
	if req.Benchmark != "" {
		benchmark, err = b.bars.ReadBars(ctx, strings.ToUpper(req.Benchmark), b.market, req.Start, req.End)
		if err != nil || len(benchmark) == 0 {
			b.log.Warn("benchmark unavailable", "symbol", req.Benchmark, "error", err)
			benchmark = nil
		}
	}
	return engine.Input{Bars: bars, Signals: signals}, benchmark, nil
}

func (b *Backtester) run(ctx context.Context, name string, cfg engine.Config, in engine.Input, benchmark []domain.Bar, trials int) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if benchmark != nil {
		cfg.Benchmark = benchmark
	}
	res, err := Simulate(name, cfg, in, trials, b.log)
	if err != nil {
		return nil, err
	}
	if err := b.persist(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (b *Backtester) persist(ctx context.Context, res *Result) error {
	if b.results == nil {
		return nil
	}
	rec, err := res.Record()
	if err != nil {
		return err
	}
	id, err := b.results.SaveResult(ctx, rec)
	if err != nil {
		return fmt.Errorf("saving result: %w", err)
	}
	res.ID = id
	if b.archive != nil {
		if err := b.archive.WriteRun(ctx, id, res.Trades, res.EquityCurve); err != nil {
			return fmt.Errorf("archiving run %s: %w", id, err)
		}
	}
	b.log.Info("result saved", "id", id, "name", res.Name)
	return nil
}

// Simulate runs one engine pass over in and computes its analytics. It
// performs no I/O and is safe to call concurrently.
func Simulate(name string, cfg engine.Config, in engine.Input, trials int, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	eng, err := engine.New(cfg, logger.With("run", name))
	if err != nil {
		return nil, err
	}
	out, err := eng.Run(in)
	if err != nil {
		return nil, err
	}

	report := analytics.Compute(analytics.Input{
		InitialCapital: out.InitialCapital,
		FinalEquity:    out.FinalEquity,
		Trades:         out.Trades,
		EquityCurve:    out.EquityCurve,
		ExposedDates:   out.ExposedDates,
		TotalDates:     out.TotalDates,
		RiskFreeRate:   cfg.RiskFreeRate,
		Bars:           in.Bars,
		PrimarySymbol:  cfg.PrimarySymbol,
		Benchmark:      cfg.Benchmark,
		Trials:         trials,
	})

	return &Result{
		Name:           name,
		Symbols:        out.Symbols,
		StartDate:      out.StartDate,
		EndDate:        out.EndDate,
		InitialCapital: out.InitialCapital,
		FinalEquity:    out.FinalEquity,
		Trades:         out.Trades,
		EquityCurve:    out.EquityCurve,
		Report:         *report,
		Diagnostics: Diagnostics{
			PeakMarginUtilization: out.PeakMarginUtilization,
			RegimeHistory:         out.RegimeHistory,
			HaltedOn:              out.HaltedOn,
			SignalsBelowThreshold: out.SignalsBelowThreshold,
			SignalsDropped:        out.SignalsDropped,
			EntriesSkipped:        out.EntriesSkipped,
		},
	}, nil
}
