package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"strategylab/internal/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestParquetStorePath(t *testing.T) {
	ps := NewParquetStore("/data")

	ts := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	bp := ps.barPath("aapl", "us", ts)

	wantBarPath := filepath.Join("/data", "us", "daily", "AAPL", "2024.parquet")
	if bp != wantBarPath {
		t.Errorf("barPath mismatch:\n  got  %s\n  want %s", bp, wantBarPath)
	}

	rp := ps.runPath("run-1", "equity")
	wantRunPath := filepath.Join("/data", "runs", "run-1", "equity.parquet")
	if rp != wantRunPath {
		t.Errorf("runPath mismatch:\n  got  %s\n  want %s", rp, wantRunPath)
	}
	if !strings.HasSuffix(rp, "equity.parquet") {
		t.Errorf("runPath should end with series file: %s", rp)
	}
}

func TestParquetStoreWriteReadBars(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	bars := []domain.Bar{
		{
			Symbol:    "AAPL",
			Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			Open:      dec("185.01"),
			High:      dec("186.5"),
			Low:       dec("184"),
			Close:     dec("185.5"),
			Volume:    50000000,
		},
		{
			Symbol:    "AAPL",
			Timestamp: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
			Open:      dec("185.5"),
			High:      dec("187"),
			Low:       dec("185"),
			Close:     dec("186.07"),
			Volume:    45000000,
		},
	}

	if err := ps.WriteBars(ctx, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	got, err := ps.ReadBars(ctx, "AAPL", "us", start, end)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadBars returned %d bars, want 2", len(got))
	}
	if !got[0].Open.Equal(dec("185.01")) {
		t.Errorf("first bar Open = %v, want 185.01", got[0].Open)
	}
	if !got[1].Close.Equal(dec("186.07")) {
		t.Errorf("second bar Close = %v, want 186.07", got[1].Close)
	}
	if !got[0].Timestamp.Equal(bars[0].Timestamp) {
		t.Errorf("first bar Timestamp = %v, want %v", got[0].Timestamp, bars[0].Timestamp)
	}
}

func TestParquetStoreReadBarsSpansYears(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	bars := []domain.Bar{
		{Symbol: "SPY", Timestamp: time.Date(2023, 12, 29, 0, 0, 0, 0, time.UTC), Open: dec("475"), High: dec("477"), Low: dec("473"), Close: dec("476")},
		{Symbol: "SPY", Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Open: dec("476"), High: dec("478"), Low: dec("471"), Close: dec("472")},
		{Symbol: "SPY", Timestamp: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), Open: dec("482"), High: dec("489"), Low: dec("481"), Close: dec("489")},
	}
	if err := ps.WriteBars(ctx, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	got, err := ps.ReadBars(ctx, "SPY", "us",
		time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadBars returned %d bars, want 2", len(got))
	}
	if got[0].Timestamp.Year() != 2023 || got[1].Timestamp.Year() != 2024 {
		t.Errorf("bars out of order: %v, %v", got[0].Timestamp, got[1].Timestamp)
	}
}

func TestParquetStoreMergeBars(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	bars1 := []domain.Bar{
		{
			Symbol:    "MSFT",
			Timestamp: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			Open:      dec("400"), High: dec("405"), Low: dec("399"), Close: dec("403"),
			Volume: 30000000,
		},
	}
	if err := ps.WriteBars(ctx, bars1); err != nil {
		t.Fatalf("WriteBars (first): %v", err)
	}

	// Same date is replaced, new date is appended.
	bars2 := []domain.Bar{
		{
			Symbol:    "MSFT",
			Timestamp: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			Open:      dec("400"), High: dec("406"), Low: dec("399"), Close: dec("404"),
			Volume: 31000000,
		},
		{
			Symbol:    "MSFT",
			Timestamp: time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
			Open:      dec("403"), High: dec("410"), Low: dec("402"), Close: dec("408"),
			Volume: 35000000,
		},
	}
	if err := ps.WriteBars(ctx, bars2); err != nil {
		t.Fatalf("WriteBars (second): %v", err)
	}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	got, err := ps.ReadBars(ctx, "MSFT", "us", start, end)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadBars returned %d bars after merge, want 2", len(got))
	}
	if !got[0].Close.Equal(dec("404")) {
		t.Errorf("merged bar Close = %v, want 404", got[0].Close)
	}
}

func TestParquetStoreListSymbols(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	if symbols, err := ps.ListSymbols(ctx, "us"); err != nil || symbols != nil {
		t.Fatalf("ListSymbols on empty dir = %v, %v; want nil, nil", symbols, err)
	}

	bars := []domain.Bar{
		{Symbol: "GOOGL", Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Open: dec("140"), High: dec("141"), Low: dec("139"), Close: dec("140.5"), Volume: 20000000},
		{Symbol: "AAPL", Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Open: dec("185"), High: dec("186"), Low: dec("184"), Close: dec("185.5"), Volume: 50000000},
	}
	if err := ps.WriteBars(ctx, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	symbols, err := ps.ListSymbols(ctx, "us")
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if len(symbols) != 2 {
		t.Fatalf("ListSymbols returned %d symbols, want 2", len(symbols))
	}
	if symbols[0] != "AAPL" || symbols[1] != "GOOGL" {
		t.Errorf("ListSymbols = %v, want [AAPL GOOGL]", symbols)
	}
}

func TestParquetStoreRunArchive(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	entry := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	trades := []domain.Trade{
		{
			Symbol:      "AAPL",
			Side:        domain.PositionSideShort,
			Signal:      domain.DirectionSell,
			Confidence:  0.8,
			EntryDate:   entry,
			ExitDate:    entry.AddDate(0, 0, 3),
			EntryPrice:  dec("185.0925"),
			ExitPrice:   dec("180.09"),
			Shares:      dec("53"),
			PnL:         dec("263.11"),
			PnLPct:      2.68,
			HoldingDays: 3,
			Commission:  dec("2"),
			Slippage:    dec("0.19"),
			ExitReason:  domain.ExitReasonSignalCover,
		},
	}
	curve := []domain.EquityPoint{
		{Date: entry, Equity: dec("10000"), DrawdownPct: 0},
		{Date: entry.AddDate(0, 0, 1), Equity: dec("9950.5"), DrawdownPct: 0.495},
	}

	if err := ps.WriteRun(ctx, "run-1", trades, curve); err != nil {
		t.Fatalf("WriteRun: %v", err)
	}

	gotTrades, err := ps.ReadTrades(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadTrades: %v", err)
	}
	if len(gotTrades) != 1 {
		t.Fatalf("ReadTrades returned %d trades, want 1", len(gotTrades))
	}
	tr := gotTrades[0]
	if !tr.EntryPrice.Equal(dec("185.0925")) || !tr.PnL.Equal(dec("263.11")) {
		t.Errorf("trade prices not exact: entry=%v pnl=%v", tr.EntryPrice, tr.PnL)
	}
	if tr.Side != domain.PositionSideShort || tr.ExitReason != domain.ExitReasonSignalCover {
		t.Errorf("trade labels = %s/%s", tr.Side, tr.ExitReason)
	}
	if !tr.ExitDate.Equal(entry.AddDate(0, 0, 3)) {
		t.Errorf("ExitDate = %v", tr.ExitDate)
	}

	gotCurve, err := ps.ReadEquity(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadEquity: %v", err)
	}
	if len(gotCurve) != 2 || !gotCurve[1].Equity.Equal(dec("9950.5")) {
		t.Errorf("ReadEquity = %+v", gotCurve)
	}

	if _, err := ps.ReadTrades(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ReadTrades(missing) error = %v, want ErrNotFound", err)
	}
	if err := ps.WriteRun(ctx, "", nil, nil); err == nil {
		t.Error("WriteRun with empty id should fail")
	}
}
