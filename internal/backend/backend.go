// Package backend defines the storage contract generated resolvers and default
// controllers run against, plus the parsing of underscore-prefixed query parameters.
package backend

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when an addressed record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("record conflicts with an existing record")
	// ErrInvalid is returned when stored constraints reject a write or a
	// filter cannot be expressed by the backend.
	ErrInvalid = errors.New("invalid record")
	// ErrUnavailable is returned when no storage is attached.
	ErrUnavailable = errors.New("backend unavailable")
)

// Params are backend query parameters: `_sort`, `_limit`, `_start` plus
// `field[_op]` filters with dot paths for relations.
type Params map[string]any

// Record is one stored entity.
type Record map[string]any

// Accumulator computes one aggregate: Op is sum, avg, min, max or count.
type Accumulator struct {
	Alias string
	Op    string
	Field string
}

// GroupSpec describes a group-aggregate query. An empty By aggregates over all
// matching records and yields a single row.
type GroupSpec struct {
	Filters      Params
	By           string
	Accumulators []Accumulator
}

// GroupKey is the row key holding the group value.
const GroupKey = "_id"

// Grouping is a prepared group query.
type Grouping interface {
	// Exec returns one row per group: {"_id": key, alias: value...}.
	Exec(ctx context.Context) ([]Record, error)
}

// Query is the per-model storage contract.
type Query interface {
	Find(ctx context.Context, params Params) ([]Record, error)
	FindOne(ctx context.Context, params Params) (Record, error)
	Create(ctx context.Context, data Record) (Record, error)
	Update(ctx context.Context, where Params, data Record) (Record, error)
	Delete(ctx context.Context, where Params) (Record, error)
	Count(ctx context.Context, filters Params) (int64, error)
	Group(spec GroupSpec) Grouping
}

// Provider returns the query interface of a model UID.
type Provider interface {
	Query(uid string) (Query, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(uid string) (Query, error)

// Query implements Provider.
func (f ProviderFunc) Query(uid string) (Query, error) {
	return f(uid)
}
