package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ ResultStore = (*SQLiteStore)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS backtest_results (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	symbols          TEXT NOT NULL,
	start_date       TEXT NOT NULL,
	end_date         TEXT NOT NULL,
	created_at       TEXT NOT NULL,
	total_return_pct REAL NOT NULL,
	sharpe_ratio     REAL NOT NULL,
	max_drawdown_pct REAL NOT NULL,
	total_trades     INTEGER NOT NULL,
	payload          BLOB
);
CREATE INDEX IF NOT EXISTS idx_backtest_results_name ON backtest_results (name, created_at);
`

// createdLayout is fixed width so that created_at sorts as text.
const createdLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements ResultStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns
// a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// Writes are serialized by SQLite anyway; one connection keeps
	// :memory: databases consistent across calls.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveResult inserts a result.
func (s *SQLiteStore) SaveResult(ctx context.Context, rec *ResultRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO backtest_results
			(id, name, symbols, start_date, end_date, created_at,
			 total_return_pct, sharpe_ratio, max_drawdown_pct, total_trades, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Name, strings.Join(rec.Symbols, ","),
		rec.Start.UTC().Format(time.RFC3339), rec.End.UTC().Format(time.RFC3339),
		rec.CreatedAt.UTC().Format(createdLayout),
		rec.TotalReturnPct, rec.SharpeRatio, rec.MaxDrawdownPct, rec.TotalTrades, rec.Payload,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return "", fmt.Errorf("result %s: %w", rec.ID, ErrDuplicateKey)
		}
		return "", fmt.Errorf("insert result: %w", err)
	}
	return rec.ID, nil
}

// GetResult retrieves a result by ID.
func (s *SQLiteStore) GetResult(ctx context.Context, id string) (*ResultRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, symbols, start_date, end_date, created_at,
		       total_return_pct, sharpe_ratio, max_drawdown_pct, total_trades, payload
		FROM backtest_results WHERE id = ?`, id)

	var rec ResultRecord
	var symbols, start, end, created string
	err := row.Scan(&rec.ID, &rec.Name, &symbols, &start, &end, &created,
		&rec.TotalReturnPct, &rec.SharpeRatio, &rec.MaxDrawdownPct, &rec.TotalTrades, &rec.Payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("result %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get result: %w", err)
	}
	if err := fillSQLiteColumns(&rec, symbols, start, end, created); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListResults returns result summaries, newest first.
func (s *SQLiteStore) ListResults(ctx context.Context, filter ListFilter) ([]ResultRecord, error) {
	query := `
		SELECT id, name, symbols, start_date, end_date, created_at,
		       total_return_pct, sharpe_ratio, max_drawdown_pct, total_trades
		FROM backtest_results`
	var args []any
	if filter.Name != "" {
		query += ` WHERE name = ?`
		args = append(args, filter.Name)
	}
	query += ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var out []ResultRecord
	for rows.Next() {
		var rec ResultRecord
		var symbols, start, end, created string
		if err := rows.Scan(&rec.ID, &rec.Name, &symbols, &start, &end, &created,
			&rec.TotalReturnPct, &rec.SharpeRatio, &rec.MaxDrawdownPct, &rec.TotalTrades); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if err := fillSQLiteColumns(&rec, symbols, start, end, created); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteResult removes a result by ID.
func (s *SQLiteStore) DeleteResult(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM backtest_results WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete result: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("result %s: %w", id, ErrNotFound)
	}
	return nil
}

func fillSQLiteColumns(rec *ResultRecord, symbols, start, end, created string) error {
	if symbols != "" {
		rec.Symbols = strings.Split(symbols, ",")
	}
	var err error
	if rec.Start, err = time.Parse(time.RFC3339, start); err != nil {
		return fmt.Errorf("parse start_date: %w", err)
	}
	if rec.End, err = time.Parse(time.RFC3339, end); err != nil {
		return fmt.Errorf("parse end_date: %w", err)
	}
	if rec.CreatedAt, err = time.Parse(createdLayout, created); err != nil {
		return fmt.Errorf("parse created_at: %w", err)
	}
	return nil
}
