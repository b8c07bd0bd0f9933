// Package sqlstore implements the backend contract over a MySQL-compatible
// database. Every content model maps to one table named after its collection
// name; scalar attributes and owned relation keys are plain columns, while
// components, dynamic zones, JSON attributes and stored id lists are JSON
// columns.
package sqlstore

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/oklog/ulid/v2"

	"content-graphql/internal/backend"
	"content-graphql/internal/contentmodel"
	"content-graphql/internal/dbexec"
	"content-graphql/internal/logging"
)

// Options configures a Store.
type Options struct {
	Executor dbexec.QueryExecutor
	Registry *contentmodel.Registry
	Logger   *logging.Logger
	// AutoIncrementIDs leaves primary keys to the database. By default new
	// records get a ULID.
	AutoIncrementIDs bool
}

// Store is a backend.Provider. Tables are derived once per model.
type Store struct {
	exec     dbexec.QueryExecutor
	registry *contentmodel.Registry
	logger   *logging.Logger
	autoInc  bool

	mu      sync.Mutex
	tables  map[string]*table
	entropy io.Reader
}

// New creates a Store.
func New(opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = &logging.Logger{Logger: slog.Default()}
	}
	return &Store{
		exec:     opts.Executor,
		registry: opts.Registry,
		logger:   logger,
		autoInc:  opts.AutoIncrementIDs,
		tables:   make(map[string]*table),
		entropy:  ulid.Monotonic(rand.Reader, 0),
	}
}

// Query implements backend.Provider.
func (s *Store) Query(uid string) (backend.Query, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tables[uid]; ok {
		return t, nil
	}
	m, ok := s.registry.Lookup(uid)
	if !ok || m.IsComponent() {
		return nil, fmt.Errorf("%w: %s", contentmodel.ErrUnknownModel, uid)
	}
	t := newTable(s, m)
	s.tables[uid] = t
	return t, nil
}

func (s *Store) table(uid string) (*table, error) {
	q, err := s.Query(uid)
	if err != nil {
		return nil, err
	}
	return q.(*table), nil
}

func (s *Store) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *Store) query(ctx context.Context, b sq.Sqlizer, decode func(cols []string, values []any) backend.Record) ([]backend.Record, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", backend.ErrInvalid, err)
	}
	s.logger.Debug("sql query", slog.String("sql", query), slog.Int("args", len(args)))

	rows, err := s.exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, normalizeError(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []backend.Record
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		out = append(out, decode(cols, values))
	}
	if err := rows.Err(); err != nil {
		return nil, normalizeError(err)
	}
	return out, nil
}

func (s *Store) execute(ctx context.Context, b sq.Sqlizer) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", backend.ErrInvalid, err)
	}
	s.logger.Debug("sql exec", slog.String("sql", query), slog.Int("args", len(args)))

	res, err := s.exec.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, normalizeError(err)
	}
	if id, err := res.LastInsertId(); err == nil {
		return id, nil
	}
	return 0, nil
}
