package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"strategylab/internal/backtest"
	"strategylab/internal/config"
	"strategylab/internal/engine"
	"strategylab/internal/store"
	"strategylab/internal/strategy"
	"strategylab/internal/util"
)

// resultStore is a ResultStore that holds a connection.
type resultStore interface {
	store.ResultStore
	Close() error
}

// app is the wiring shared by every subcommand.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	bars    *store.ParquetStore
	results resultStore
	feeds   *strategy.Registry
	engine  engine.Config
}

// newApp loads configuration and opens the stores. The result store is
// Postgres when a DSN is configured and SQLite otherwise.
func newApp(ctx context.Context) (*app, error) {
	path := cfgPath
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	ec, err := cfg.Backtest.EngineConfig()
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		log:    logger,
		bars:   store.NewParquetStore(cfg.Storage.DataDir),
		feeds:  strategy.NewRegistry(),
		engine: ec,
	}

	if err := strategy.LoadDir(a.feeds, cfg.Storage.SignalsDir, logger); err != nil {
		return nil, fmt.Errorf("loading signal feeds: %w", err)
	}

	if cfg.Storage.PostgresDSN != "" {
		pool, err := store.NewPool(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, err
		}
		pg, err := store.NewPostgresStore(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		a.results = pg
	} else {
		sq, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.results = sq
	}
	return a, nil
}

func (a *app) Close() error {
	if a.results != nil {
		return a.results.Close()
	}
	return nil
}

// backtester builds a Backtester that persists into the app's stores unless
// save is false.
func (a *app) backtester(save bool) *backtest.Backtester {
	opts := []backtest.Option{backtest.WithLogger(a.log)}
	if save {
		opts = append(opts, backtest.WithResultStore(a.results), backtest.WithArchive(a.bars))
	}
	return backtest.New(a.bars, a.feeds, a.engine, opts...)
}

// parseRange parses YYYY-MM-DD bounds. An empty end means today.
func parseRange(start, end string) (time.Time, time.Time, error) {
	var from, to time.Time
	var err error
	if start != "" {
		if from, err = time.Parse(time.DateOnly, start); err != nil {
			return from, to, fmt.Errorf("invalid --start: %w", err)
		}
	}
	if end == "" {
		to = time.Now().UTC().Truncate(24 * time.Hour)
	} else if to, err = time.Parse(time.DateOnly, end); err != nil {
		return from, to, fmt.Errorf("invalid --end: %w", err)
	}
	if !from.IsZero() && to.Before(from) {
		return from, to, fmt.Errorf("--end %s is before --start %s", end, start)
	}
	return from, to, nil
}
