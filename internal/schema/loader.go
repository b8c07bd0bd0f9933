package schema

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"content-graphql/internal/backend"
)

// Loader batches single-record association lookups within one request. Keys
// are enqueued while sibling fields resolve; the first thunk that needs a
// value fetches every pending key of its model and field with one `_in` query.
type Loader struct {
	provider backend.Provider

	mu      sync.Mutex
	pending map[loaderKey][]any
	cache   map[loaderKey]map[string]backend.Record

	batches     int32
	cacheHits   int32
	cacheMisses int32
}

type loaderKey struct {
	uid   string
	field string
}

type loaderContextKey struct{}

// NewLoader creates an empty request-scoped loader.
func NewLoader(provider backend.Provider) *Loader {
	return &Loader{
		provider: provider,
		pending:  make(map[loaderKey][]any),
		cache:    make(map[loaderKey]map[string]backend.Record),
	}
}

// WithLoader stores l in ctx.
func WithLoader(ctx context.Context, l *Loader) context.Context {
	return context.WithValue(ctx, loaderContextKey{}, l)
}

// LoaderFrom returns the loader stored in ctx.
func LoaderFrom(ctx context.Context) (*Loader, bool) {
	if ctx == nil {
		return nil, false
	}
	l, ok := ctx.Value(loaderContextKey{}).(*Loader)
	return l, ok
}

// Enqueue schedules value for the next batch of uid by field.
func (l *Loader) Enqueue(uid, field string, value any) {
	key := loaderKey{uid: uid, field: field}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, cached := l.cache[key][fmt.Sprint(value)]; cached {
		return
	}
	l.pending[key] = append(l.pending[key], value)
}

// Load returns the record of uid whose field equals value, or nil. Pending keys
// of the same model and field are fetched together.
func (l *Loader) Load(ctx context.Context, uid, field string, value any) (backend.Record, error) {
	key := loaderKey{uid: uid, field: field}
	id := fmt.Sprint(value)

	l.mu.Lock()
	defer l.mu.Unlock()
	if rows, ok := l.cache[key]; ok {
		if record, found := rows[id]; found {
			atomic.AddInt32(&l.cacheHits, 1)
			return record, nil
		}
	}
	atomic.AddInt32(&l.cacheMisses, 1)

	values := append(l.pending[key], value)
	delete(l.pending, key)

	q, err := l.provider.Query(uid)
	if err != nil {
		return nil, err
	}
	records, err := q.Find(ctx, backend.Params{field + "_in": unique(values), "_limit": -1})
	if err != nil {
		return nil, err
	}
	atomic.AddInt32(&l.batches, 1)

	rows := l.cache[key]
	if rows == nil {
		rows = make(map[string]backend.Record)
		l.cache[key] = rows
	}
	for _, v := range values {
		rows[fmt.Sprint(v)] = nil
	}
	for _, record := range records {
		rows[fmt.Sprint(record[field])] = record
	}
	return rows[id], nil
}

// Stats returns the number of backend batches, cache hits and cache misses.
func (l *Loader) Stats() (batches, hits, misses int32) {
	return atomic.LoadInt32(&l.batches), atomic.LoadInt32(&l.cacheHits), atomic.LoadInt32(&l.cacheMisses)
}

func unique(values []any) []any {
	seen := make(map[string]struct{}, len(values))
	out := make([]any, 0, len(values))
	for _, v := range values {
		k := fmt.Sprint(v)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}
