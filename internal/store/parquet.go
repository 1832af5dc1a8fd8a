package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"

	"strategylab/internal/domain"
)

// Compile-time interface checks.
var _ BarStore = (*ParquetStore)(nil)
var _ RunArchive = (*ParquetStore)(nil)

// ParquetStore implements BarStore and RunArchive using Parquet files on disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// Prices are stored as decimal strings so that a round trip through disk is
// exact.

// BarRecord is the Parquet schema for daily bar data.
type BarRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      string  `parquet:"open"`
	High      string  `parquet:"high"`
	Low       string  `parquet:"low"`
	Close     string  `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

// TradeRecord is the Parquet schema for one closed round trip.
type TradeRecord struct {
	Symbol      string  `parquet:"symbol"`
	Side        string  `parquet:"side"`
	Signal      string  `parquet:"signal"`
	Confidence  float64 `parquet:"confidence"`
	EntryTime   int64   `parquet:"entry_time,timestamp(millisecond)"`
	ExitTime    int64   `parquet:"exit_time,timestamp(millisecond)"`
	EntryPrice  string  `parquet:"entry_price"`
	ExitPrice   string  `parquet:"exit_price"`
	Shares      string  `parquet:"shares"`
	PnL         string  `parquet:"pnl"`
	PnLPct      float64 `parquet:"pnl_pct"`
	HoldingDays int32   `parquet:"holding_days"`
	Commission  string  `parquet:"commission"`
	Slippage    string  `parquet:"slippage"`
	ExitReason  string  `parquet:"exit_reason"`
}

// EquityRecord is the Parquet schema for one equity curve point.
type EquityRecord struct {
	Timestamp   int64   `parquet:"timestamp,timestamp(millisecond)"`
	Equity      string  `parquet:"equity"`
	DrawdownPct float64 `parquet:"drawdown_pct"`
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// WriteBars writes bar data to Parquet files organized by symbol and year.
// Each symbol+year combination produces a separate file at:
//
//	<DataDir>/<market>/daily/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) WriteBars(_ context.Context, bars []domain.Bar) error {
	return s.WriteBarsForMarket(bars, "us")
}

// WriteBarsForMarket writes bars to Parquet grouped by symbol and year under
// the given market directory, merging with what is already on disk.
func (s *ParquetStore) WriteBarsForMarket(bars []domain.Bar, market string) error {
	if len(bars) == 0 {
		return nil
	}
	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]BarRecord)
	for _, b := range bars {
		k := key{symbol: strings.ToUpper(b.Symbol), year: b.Timestamp.UTC().Year()}
		groups[k] = append(groups[k], BarRecord{
			Symbol:    k.symbol,
			Timestamp: b.Timestamp.UnixMilli(),
			Open:      b.Open.String(),
			High:      b.High.String(),
			Low:       b.Low.String(),
			Close:     b.Close.String(),
			Volume:    b.Volume,
		})
	}

	for k, records := range groups {
		path := s.barPath(k.symbol, market, time.Date(k.year, 1, 1, 0, 0, 0, 0, time.UTC))

		existing, _ := readParquetFile[BarRecord](path)
		merged := mergeBarRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", k.symbol, k.year, err)
		}
	}
	return nil
}

// ReadBars reads bar data for the given symbol within [start, end], sorted
// by time. Missing year files are skipped; an unparseable price reads as
// zero.
func (s *ParquetStore) ReadBars(_ context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error) {
	var bars []domain.Bar
	for year := start.UTC().Year(); year <= end.UTC().Year(); year++ {
		path := s.barPath(symbol, market, time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC))

		records, err := readParquetFile[BarRecord](path)
		if err != nil {
			continue
		}

		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp).UTC()
			if ts.Before(start) || ts.After(end) {
				continue
			}
			bars = append(bars, domain.Bar{
				Symbol:    r.Symbol,
				Timestamp: ts,
				Open:      parseDecimal(r.Open),
				High:      parseDecimal(r.High),
				Low:       parseDecimal(r.Low),
				Close:     parseDecimal(r.Close),
				Volume:    r.Volume,
			})
		}
	}
	return bars, nil
}

// ListSymbols lists all symbols that have bar data in the given market.
func (s *ParquetStore) ListSymbols(_ context.Context, market string) ([]string, error) {
	dir := filepath.Join(s.DataDir, market, "daily")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// ---------------------------------------------------------------------------
// RunArchive implementation
// ---------------------------------------------------------------------------

// WriteRun writes the trade log and equity curve of a run to
//
//	<DataDir>/runs/<id>/trades.parquet
//	<DataDir>/runs/<id>/equity.parquet
func (s *ParquetStore) WriteRun(_ context.Context, id string, trades []domain.Trade, curve []domain.EquityPoint) error {
	if id == "" {
		return fmt.Errorf("write run: empty id")
	}
	tr := make([]TradeRecord, len(trades))
	for i, t := range trades {
		tr[i] = TradeRecord{
			Symbol:      t.Symbol,
			Side:        string(t.Side),
			Signal:      string(t.Signal),
			Confidence:  t.Confidence,
			EntryTime:   t.EntryDate.UnixMilli(),
			ExitTime:    t.ExitDate.UnixMilli(),
			EntryPrice:  t.EntryPrice.String(),
			ExitPrice:   t.ExitPrice.String(),
			Shares:      t.Shares.String(),
			PnL:         t.PnL.String(),
			PnLPct:      t.PnLPct,
			HoldingDays: int32(t.HoldingDays),
			Commission:  t.Commission.String(),
			Slippage:    t.Slippage.String(),
			ExitReason:  string(t.ExitReason),
		}
	}
	if err := writeParquetFile(s.runPath(id, "trades"), tr); err != nil {
		return fmt.Errorf("writing trades for run %s: %w", id, err)
	}

	eq := make([]EquityRecord, len(curve))
	for i, p := range curve {
		eq[i] = EquityRecord{
			Timestamp:   p.Date.UnixMilli(),
			Equity:      p.Equity.String(),
			DrawdownPct: p.DrawdownPct,
		}
	}
	if err := writeParquetFile(s.runPath(id, "equity"), eq); err != nil {
		return fmt.Errorf("writing equity for run %s: %w", id, err)
	}
	return nil
}

// ReadTrades reads the archived trade log of run id.
func (s *ParquetStore) ReadTrades(_ context.Context, id string) ([]domain.Trade, error) {
	records, err := readParquetFile[TradeRecord](s.runPath(id, "trades"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	trades := make([]domain.Trade, len(records))
	for i, r := range records {
		trades[i] = domain.Trade{
			Symbol:      r.Symbol,
			Side:        domain.PositionSide(r.Side),
			Signal:      domain.Direction(r.Signal),
			Confidence:  r.Confidence,
			EntryDate:   time.UnixMilli(r.EntryTime).UTC(),
			ExitDate:    time.UnixMilli(r.ExitTime).UTC(),
			EntryPrice:  parseDecimal(r.EntryPrice),
			ExitPrice:   parseDecimal(r.ExitPrice),
			Shares:      parseDecimal(r.Shares),
			PnL:         parseDecimal(r.PnL),
			PnLPct:      r.PnLPct,
			HoldingDays: int(r.HoldingDays),
			Commission:  parseDecimal(r.Commission),
			Slippage:    parseDecimal(r.Slippage),
			ExitReason:  domain.ExitReason(r.ExitReason),
		}
	}
	return trades, nil
}

// ReadEquity reads the archived equity curve of run id.
func (s *ParquetStore) ReadEquity(_ context.Context, id string) ([]domain.EquityPoint, error) {
	records, err := readParquetFile[EquityRecord](s.runPath(id, "equity"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	curve := make([]domain.EquityPoint, len(records))
	for i, r := range records {
		curve[i] = domain.EquityPoint{
			Date:        time.UnixMilli(r.Timestamp).UTC(),
			Equity:      parseDecimal(r.Equity),
			DrawdownPct: r.DrawdownPct,
		}
	}
	return curve, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// barPath returns the filesystem path for a bar Parquet file.
// Layout: <dataDir>/<market>/daily/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) barPath(symbol, market string, t time.Time) string {
	year := fmt.Sprintf("%d", t.Year())
	return filepath.Join(s.DataDir, market, "daily", strings.ToUpper(symbol), year+".parquet")
}

// runPath returns the filesystem path for one series of an archived run.
// Layout: <dataDir>/runs/<id>/<series>.parquet
func (s *ParquetStore) runPath(id, series string) string {
	return filepath.Join(s.DataDir, "runs", id, series+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// mergeBarRecords deduplicates bar records by (symbol, timestamp), preferring
// new records over existing ones.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	type key struct {
		symbol string
		ts     int64
	}
	seen := make(map[key]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Symbol, r.Timestamp}] = r
	}
	for _, r := range incoming {
		seen[key{r.Symbol, r.Timestamp}] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
