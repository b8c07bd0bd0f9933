// Package dbexec provides the database execution seam used by the SQL backend.
// Executors can be swapped for instrumented or test implementations.
package dbexec

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"content-graphql/internal/logging"
)

// Rows abstracts sql.Rows to allow wrapped cleanup behavior.
type Rows interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// QueryExecutor abstracts SQL execution.
type QueryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...any) (Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// StandardExecutor executes queries directly against a database handle.
type StandardExecutor struct {
	db *sql.DB
}

// NewStandardExecutor creates an executor that runs queries directly against the database.
func NewStandardExecutor(db *sql.DB) *StandardExecutor {
	return &StandardExecutor{db: db}
}

func (e *StandardExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	if e.db == nil {
		return nil, sql.ErrConnDone
	}
	return e.db.QueryContext(ctx, query, args...)
}

func (e *StandardExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if e.db == nil {
		return nil, sql.ErrConnDone
	}
	return e.db.ExecContext(ctx, query, args...)
}

// SlowQueryExecutor logs statements slower than Threshold.
type SlowQueryExecutor struct {
	Next      QueryExecutor
	Threshold time.Duration
	Logger    *logging.Logger
}

// NewSlowQueryExecutor wraps next. A zero threshold returns next unchanged.
func NewSlowQueryExecutor(next QueryExecutor, threshold time.Duration, logger *logging.Logger) QueryExecutor {
	if threshold <= 0 || logger == nil {
		return next
	}
	return &SlowQueryExecutor{Next: next, Threshold: threshold, Logger: logger}
}

func (e *SlowQueryExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	start := time.Now()
	rows, err := e.Next.QueryContext(ctx, query, args...)
	e.observe(ctx, query, start)
	return rows, err
}

func (e *SlowQueryExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := e.Next.ExecContext(ctx, query, args...)
	e.observe(ctx, query, start)
	return res, err
}

func (e *SlowQueryExecutor) observe(ctx context.Context, query string, start time.Time) {
	elapsed := time.Since(start)
	if elapsed < e.Threshold {
		return
	}
	e.Logger.WarnContext(ctx, "slow query",
		slog.String("sql", query),
		slog.Duration("duration", elapsed),
	)
}
