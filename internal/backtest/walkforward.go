package backtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"strategylab/internal/domain"
	"strategylab/internal/engine"
)

// ErrNoFolds is returned when a walk-forward run is given no folds.
var ErrNoFolds = errors.New("walk-forward needs at least one fold")

// oosEpsilon is the mean out-of-sample return (percent) below which the
// overfitting ratio is reported as infinite.
const oosEpsilon = 1e-9

// Fold is one pre-split train/test pair.
type Fold struct {
	Train engine.Input
	Test  engine.Input
}

// FoldResult summarizes one fold.
type FoldResult struct {
	Index      int       `json:"index"`
	TrainStart time.Time `json:"train_start"`
	TrainEnd   time.Time `json:"train_end"`
	TestStart  time.Time `json:"test_start"`
	TestEnd    time.Time `json:"test_end"`

	InSampleReturnPct    float64 `json:"in_sample_return_pct"`
	InSampleSharpe       float64 `json:"in_sample_sharpe"`
	InSampleTrades       int     `json:"in_sample_trades"`
	OutOfSampleReturnPct float64 `json:"out_of_sample_return_pct"`
	OutOfSampleSharpe    float64 `json:"out_of_sample_sharpe"`
	OutOfSampleTrades    int     `json:"out_of_sample_trades"`

	// OutOfSampleBenchmarkReturnPct is the external benchmark's buy-and-hold
	// return over the test slice, when a benchmark was supplied.
	OutOfSampleBenchmarkReturnPct *float64 `json:"out_of_sample_benchmark_return_pct,omitempty"`

	StartingCapital decimal.Decimal `json:"starting_capital"`
	EndingCapital   decimal.Decimal `json:"ending_capital"`
}

// WalkForwardResult aggregates every fold.
type WalkForwardResult struct {
	Folds []FoldResult `json:"folds"`

	MeanInSampleReturnPct    float64 `json:"mean_in_sample_return_pct"`
	MeanOutOfSampleReturnPct float64 `json:"mean_out_of_sample_return_pct"`

	// OverfittingRatio is mean in-sample over mean out-of-sample return,
	// +Inf when the out-of-sample mean is approximately zero.
	OverfittingRatio float64 `json:"overfitting_ratio"`

	InitialCapital decimal.Decimal `json:"initial_capital"`
	FinalCapital   decimal.Decimal `json:"final_capital"`

	// CombinedEquity concatenates the equity curves of every test slice.
	CombinedEquity []domain.EquityPoint `json:"combined_equity"`
}

// MarshalJSON encodes a non-finite overfitting ratio as null.
func (r WalkForwardResult) MarshalJSON() ([]byte, error) {
	type plain WalkForwardResult
	out := struct {
		plain
		OverfittingRatio *float64 `json:"overfitting_ratio"`
	}{plain: plain(r)}
	if !math.IsInf(r.OverfittingRatio, 0) && !math.IsNaN(r.OverfittingRatio) {
		v := r.OverfittingRatio
		out.OverfittingRatio = &v
	}
	return json.Marshal(out)
}

// RunWalkForward evaluates folds in order. Train slices are independent and
// run concurrently; test slices run sequentially, each starting from the
// previous test slice's ending capital. A benchmark in cfg is cut to each
// slice's date range.
func RunWalkForward(ctx context.Context, cfg engine.Config, folds []Fold, logger *slog.Logger) (*WalkForwardResult, error) {
	if len(folds) == 0 {
		return nil, ErrNoFolds
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "walkforward")

	train := make([]*Result, len(folds))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range folds {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := Simulate(fmt.Sprintf("fold-%d-train", i), sliceConfig(cfg, f.Train), f.Train, 0, logger)
			if err != nil {
				return fmt.Errorf("fold %d train: %w", i, err)
			}
			train[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &WalkForwardResult{
		Folds:          make([]FoldResult, 0, len(folds)),
		InitialCapital: cfg.InitialCapital,
	}
	capital := cfg.InitialCapital
	var sumIS, sumOOS float64
	for i, f := range folds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		test, err := Simulate(fmt.Sprintf("fold-%d-test", i), sliceConfig(cfg.WithCapital(capital), f.Test), f.Test, 0, logger)
		if err != nil {
			return nil, fmt.Errorf("fold %d test: %w", i, err)
		}

		tr := train[i]
		fr := FoldResult{
			Index:                i,
			TrainStart:           tr.StartDate,
			TrainEnd:             tr.EndDate,
			TestStart:            test.StartDate,
			TestEnd:              test.EndDate,
			InSampleReturnPct:    tr.Metrics.TotalReturnPct,
			InSampleSharpe:       tr.Metrics.SharpeRatio,
			InSampleTrades:       tr.Metrics.TotalTrades,
			OutOfSampleReturnPct: test.Metrics.TotalReturnPct,
			OutOfSampleSharpe:    test.Metrics.SharpeRatio,
			OutOfSampleTrades:    test.Metrics.TotalTrades,
			StartingCapital:      capital,
			EndingCapital:        test.FinalEquity,
		}
		if ext := test.Benchmark.External; ext != nil {
			v := ext.ReturnPct
			fr.OutOfSampleBenchmarkReturnPct = &v
		}
		out.Folds = append(out.Folds, fr)
		out.CombinedEquity = append(out.CombinedEquity, test.EquityCurve...)
		sumIS += fr.InSampleReturnPct
		sumOOS += fr.OutOfSampleReturnPct
		capital = test.FinalEquity

		logger.Debug("fold evaluated",
			"fold", i,
			"is_return_pct", fr.InSampleReturnPct,
			"oos_return_pct", fr.OutOfSampleReturnPct,
			"ending_capital", capital.StringFixed(2),
		)
	}

	n := float64(len(folds))
	out.MeanInSampleReturnPct = sumIS / n
	out.MeanOutOfSampleReturnPct = sumOOS / n
	if math.Abs(out.MeanOutOfSampleReturnPct) < oosEpsilon {
		out.OverfittingRatio = math.Inf(1)
	} else {
		out.OverfittingRatio = out.MeanInSampleReturnPct / out.MeanOutOfSampleReturnPct
	}
	out.FinalCapital = capital

	logger.Info("walk-forward finished",
		"folds", len(folds),
		"mean_is_return_pct", out.MeanInSampleReturnPct,
		"mean_oos_return_pct", out.MeanOutOfSampleReturnPct,
		"final_capital", capital.StringFixed(2),
	)
	return out, nil
}

// SplitFolds cuts in into consecutive folds of trainDays then testDays
// timeline dates, advancing stepDays between folds (zero steps by the test
// window). Signals go to the slice whose date range contains them.
func SplitFolds(in engine.Input, trainDays, testDays, stepDays int) []Fold {
	if trainDays <= 0 || testDays <= 0 {
		return nil
	}
	if stepDays <= 0 {
		stepDays = testDays
	}
	dates := engine.BuildTimeline(in.Bars).Dates

	var folds []Fold
	for start := 0; start+trainDays+testDays <= len(dates); start += stepDays {
		trainFrom, trainTo := dates[start], dates[start+trainDays-1]
		testFrom, testTo := dates[start+trainDays], dates[start+trainDays+testDays-1]
		folds = append(folds, Fold{
			Train: sliceInput(in, trainFrom, trainTo),
			Test:  sliceInput(in, testFrom, testTo),
		})
	}
	return folds
}

// sliceConfig returns cfg with its benchmark cut to the date range of in.
func sliceConfig(cfg engine.Config, in engine.Input) engine.Config {
	if len(cfg.Benchmark) == 0 {
		return cfg
	}
	dates := engine.BuildTimeline(in.Bars).Dates
	if len(dates) == 0 {
		cfg.Benchmark = nil
		return cfg
	}
	cfg.Benchmark = sliceBars(cfg.Benchmark, dates[0], dates[len(dates)-1])
	return cfg
}

// sliceBars keeps the bars dated within [from, to].
func sliceBars(series []domain.Bar, from, to time.Time) []domain.Bar {
	var kept []domain.Bar
	for _, b := range series {
		t := b.Timestamp.UTC()
		if !t.Before(from) && !t.After(to) {
			kept = append(kept, b)
		}
	}
	return kept
}

// sliceInput keeps the bars and signals dated within [from, to].
func sliceInput(in engine.Input, from, to time.Time) engine.Input {
	out := engine.Input{Bars: make(map[string][]domain.Bar, len(in.Bars))}
	for sym, series := range in.Bars {
		if kept := sliceBars(series, from, to); len(kept) > 0 {
			out.Bars[sym] = kept
		}
	}
	for _, s := range in.Signals {
		if t := s.Date.UTC(); !t.Before(from) && !t.After(to) {
			out.Signals = append(out.Signals, s)
		}
	}
	return out
}

// WalkForwardRequest loads one data range and splits it into folds.
type WalkForwardRequest struct {
	Request
	TrainDays int `json:"train_days"`
	TestDays  int `json:"test_days"`
	StepDays  int `json:"step_days"`
}

// WalkForward loads req's data and evaluates it fold by fold.
func (b *Backtester) WalkForward(ctx context.Context, req WalkForwardRequest) (*WalkForwardResult, error) {
	cfg := b.cfg
	if req.Config != nil {
		cfg = *req.Config
	}
	in, benchmark, err := b.load(ctx, req.Request)
	if err != nil {
		return nil, err
	}
	if benchmark != nil {
		cfg.Benchmark = benchmark
	}
	folds := SplitFolds(in, req.TrainDays, req.TestDays, req.StepDays)
	b.log.Info("walk-forward folds", "feed", req.Feed, "folds", len(folds))
	return RunWalkForward(ctx, cfg, folds, b.log)
}
