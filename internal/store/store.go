// Package store defines storage interfaces for historical bars and
// finished backtest results, with Parquet, SQLite and Postgres backends.
package store

import (
	"context"
	"errors"
	"time"

	"strategylab/internal/domain"
)

// Storage errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key")
)

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars to storage.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol and market within [start, end].
	ReadBars(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the given market.
	ListSymbols(ctx context.Context, market string) ([]string, error)
}

// RunArchive stores the bulky per-run series (trade log and equity curve)
// next to the summary kept in a ResultStore.
type RunArchive interface {
	// WriteRun persists the trade log and equity curve of run id.
	WriteRun(ctx context.Context, id string, trades []domain.Trade, curve []domain.EquityPoint) error

	// ReadTrades returns the archived trade log of run id.
	ReadTrades(ctx context.Context, id string) ([]domain.Trade, error)

	// ReadEquity returns the archived equity curve of run id.
	ReadEquity(ctx context.Context, id string) ([]domain.EquityPoint, error)
}

// ResultRecord is one persisted backtest result: indexed summary columns
// plus the full serialized result.
type ResultRecord struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Symbols        []string  `json:"symbols"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	CreatedAt      time.Time `json:"created_at"`
	TotalReturnPct float64   `json:"total_return_pct"`
	SharpeRatio    float64   `json:"sharpe_ratio"`
	MaxDrawdownPct float64   `json:"max_drawdown_pct"`
	TotalTrades    int       `json:"total_trades"`

	// Payload is the JSON encoding of the full result. List calls leave it
	// empty.
	Payload []byte `json:"-"`
}

// ListFilter narrows ListResults.
type ListFilter struct {
	Name  string // exact match, empty for all
	Limit int    // zero for no limit
}

// ResultStore persists finished backtest results and assigns them durable
// identifiers.
type ResultStore interface {
	// SaveResult inserts rec and returns its ID. An empty rec.ID is assigned
	// a new UUID.
	SaveResult(ctx context.Context, rec *ResultRecord) (string, error)

	// GetResult retrieves a result with its payload.
	GetResult(ctx context.Context, id string) (*ResultRecord, error)

	// ListResults returns summaries, newest first.
	ListResults(ctx context.Context, filter ListFilter) ([]ResultRecord, error)

	// DeleteResult removes a result.
	DeleteResult(ctx context.Context, id string) error
}
