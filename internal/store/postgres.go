package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Compile-time interface check.
var _ ResultStore = (*PostgresStore)(nil)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS backtest_results (
	id               UUID PRIMARY KEY,
	name             TEXT NOT NULL,
	symbols          TEXT[] NOT NULL,
	start_date       TIMESTAMPTZ NOT NULL,
	end_date         TIMESTAMPTZ NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL,
	total_return_pct DOUBLE PRECISION NOT NULL,
	sharpe_ratio     DOUBLE PRECISION NOT NULL,
	max_drawdown_pct DOUBLE PRECISION NOT NULL,
	total_trades     INTEGER NOT NULL,
	payload          JSONB
);
CREATE INDEX IF NOT EXISTS idx_backtest_results_name ON backtest_results (name, created_at DESC);
`

// PostgreSQL error codes
const (
	pgErrUniqueViolation = "23505" // unique_violation
)

// Pool wraps pgxpool.Pool for dependency injection.
type Pool struct {
	*pgxpool.Pool
}

// NewPool creates a new Postgres connection pool.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// PostgresStore implements ResultStore using PostgreSQL.
type PostgresStore struct {
	pool *Pool
}

// NewPostgresStore creates a PostgresStore and ensures its table exists.
func NewPostgresStore(ctx context.Context, pool *Pool) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// SaveResult inserts a result. Returns ErrDuplicateKey if the id exists.
func (s *PostgresStore) SaveResult(ctx context.Context, rec *ResultRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO backtest_results (
			id, name, symbols, start_date, end_date, created_at,
			total_return_pct, sharpe_ratio, max_drawdown_pct, total_trades, payload
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.Name, rec.Symbols, rec.Start, rec.End, rec.CreatedAt,
		rec.TotalReturnPct, rec.SharpeRatio, rec.MaxDrawdownPct, rec.TotalTrades, rec.Payload,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return "", fmt.Errorf("result %s: %w", rec.ID, ErrDuplicateKey)
		}
		return "", fmt.Errorf("insert result: %w", err)
	}
	return rec.ID, nil
}

// GetResult retrieves a result by ID.
func (s *PostgresStore) GetResult(ctx context.Context, id string) (*ResultRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("result %s: %w", id, ErrNotFound)
	}
	query := `
		SELECT id::text, name, symbols, start_date, end_date, created_at,
		       total_return_pct, sharpe_ratio, max_drawdown_pct, total_trades, payload
		FROM backtest_results
		WHERE id = $1
	`
	var rec ResultRecord
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&rec.ID, &rec.Name, &rec.Symbols, &rec.Start, &rec.End, &rec.CreatedAt,
		&rec.TotalReturnPct, &rec.SharpeRatio, &rec.MaxDrawdownPct, &rec.TotalTrades, &rec.Payload,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, fmt.Errorf("result %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get result: %w", err)
	}
	normalizeTimes(&rec)
	return &rec, nil
}

// ListResults returns result summaries, newest first.
func (s *PostgresStore) ListResults(ctx context.Context, filter ListFilter) ([]ResultRecord, error) {
	query := `
		SELECT id::text, name, symbols, start_date, end_date, created_at,
		       total_return_pct, sharpe_ratio, max_drawdown_pct, total_trades
		FROM backtest_results
		WHERE ($1 = '' OR name = $1)
		ORDER BY created_at DESC, id
	`
	args := []any{filter.Name}
	if filter.Limit > 0 {
		query += ` LIMIT $2`
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var out []ResultRecord
	for rows.Next() {
		var rec ResultRecord
		if err := rows.Scan(
			&rec.ID, &rec.Name, &rec.Symbols, &rec.Start, &rec.End, &rec.CreatedAt,
			&rec.TotalReturnPct, &rec.SharpeRatio, &rec.MaxDrawdownPct, &rec.TotalTrades,
		); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		normalizeTimes(&rec)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteResult removes a result by ID.
func (s *PostgresStore) DeleteResult(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("result %s: %w", id, ErrNotFound)
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM backtest_results WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("result %s: %w", id, ErrNotFound)
	}
	return nil
}

func normalizeTimes(rec *ResultRecord) {
	rec.Start = rec.Start.UTC()
	rec.End = rec.End.UTC()
	rec.CreatedAt = rec.CreatedAt.UTC()
}

// isDuplicateKeyError checks if error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrUniqueViolation
	}
	return false
}

// isNotFoundError checks if error indicates no rows found.
func isNotFoundError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
