// Package backendtest provides an in-memory backend for tests.
package backendtest

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"

	"content-graphql/internal/backend"
)

// Store is a set of in-memory collections keyed by model UID.
type Store struct {
	mu          sync.Mutex
	collections map[string]*Collection
	// Calls records "<uid>.<method>" for every backend call.
	Calls []string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{collections: make(map[string]*Collection)}
}

// Collection returns (creating when needed) the collection of uid.
func (s *Store) Collection(uid string) *Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[uid]
	if !ok {
		c = &Collection{store: s, uid: uid}
		s.collections[uid] = c
	}
	return c
}

// Query implements backend.Provider.
func (s *Store) Query(uid string) (backend.Query, error) {
	return s.Collection(uid), nil
}

// CallCount returns how often "<uid>.<method>" was called.
func (s *Store) CallCount(call string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.Calls {
		if c == call {
			n++
		}
	}
	return n
}

func (s *Store) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, call)
}

// Collection is one model's records. Ids are assigned sequentially as strings.
type Collection struct {
	store   *Store
	uid     string
	mu      sync.Mutex
	records []backend.Record
	nextID  int
}

// Seed inserts records as is and returns the collection.
func (c *Collection) Seed(records ...backend.Record) *Collection {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range records {
		c.records = append(c.records, maps.Clone(r))
		c.nextID++
	}
	return c
}

func (c *Collection) snapshot() []backend.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]backend.Record, len(c.records))
	for i, r := range c.records {
		out[i] = maps.Clone(r)
	}
	return out
}

// Find implements backend.Query.
func (c *Collection) Find(_ context.Context, params backend.Params) ([]backend.Record, error) {
	c.store.record(c.uid + ".find")
	crit, err := backend.ParseParams(params)
	if err != nil {
		return nil, err
	}
	rows := filter(c.snapshot(), crit.Where)
	sortRecords(rows, crit.Sort)
	if crit.Start > 0 {
		if crit.Start >= len(rows) {
			return []backend.Record{}, nil
		}
		rows = rows[crit.Start:]
	}
	if crit.Limit >= 0 && crit.Limit < len(rows) {
		rows = rows[:crit.Limit]
	}
	return rows, nil
}

// FindOne implements backend.Query.
func (c *Collection) FindOne(ctx context.Context, params backend.Params) (backend.Record, error) {
	c.store.record(c.uid + ".findOne")
	crit, err := backend.ParseParams(params)
	if err != nil {
		return nil, err
	}
	rows := filter(c.snapshot(), crit.Where)
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// Create implements backend.Query.
func (c *Collection) Create(_ context.Context, data backend.Record) (backend.Record, error) {
	c.store.record(c.uid + ".create")
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	r := maps.Clone(data)
	if r == nil {
		r = backend.Record{}
	}
	if _, ok := r["id"]; !ok {
		r["id"] = fmt.Sprint(c.nextID)
	}
	c.records = append(c.records, r)
	return maps.Clone(r), nil
}

// Update implements backend.Query.
func (c *Collection) Update(_ context.Context, where backend.Params, data backend.Record) (backend.Record, error) {
	c.store.record(c.uid + ".update")
	crit, err := backend.ParseParams(where)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, r := range c.records {
		if matches(r, crit.Where) {
			for k, v := range data {
				r[k] = v
			}
			c.records[i] = r
			return maps.Clone(r), nil
		}
	}
	return nil, backend.ErrNotFound
}

// Delete implements backend.Query.
func (c *Collection) Delete(_ context.Context, where backend.Params) (backend.Record, error) {
	c.store.record(c.uid + ".delete")
	crit, err := backend.ParseParams(where)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, r := range c.records {
		if matches(r, crit.Where) {
			c.records = append(c.records[:i], c.records[i+1:]...)
			return r, nil
		}
	}
	return nil, backend.ErrNotFound
}

// Count implements backend.Query.
func (c *Collection) Count(_ context.Context, filters backend.Params) (int64, error) {
	c.store.record(c.uid + ".count")
	crit, err := backend.ParseParams(filters)
	if err != nil {
		return 0, err
	}
	return int64(len(filter(c.snapshot(), crit.Where))), nil
}

// Group implements backend.Query.
func (c *Collection) Group(spec backend.GroupSpec) backend.Grouping {
	return grouping{c: c, spec: spec}
}

type grouping struct {
	c    *Collection
	spec backend.GroupSpec
}

func (g grouping) Exec(_ context.Context) ([]backend.Record, error) {
	g.c.store.record(g.c.uid + ".group")
	crit, err := backend.ParseParams(g.spec.Filters)
	if err != nil {
		return nil, err
	}
	rows := filter(g.c.snapshot(), crit.Where)

	var order []string
	groups := make(map[string][]backend.Record)
	keys := make(map[string]any)
	for _, r := range rows {
		var key any
		if g.spec.By != "" {
			key = r[g.spec.By]
		}
		k := fmt.Sprint(key)
		if _, seen := groups[k]; !seen {
			order = append(order, k)
			keys[k] = key
		}
		groups[k] = append(groups[k], r)
	}
	if g.spec.By == "" && len(order) == 0 {
		order = append(order, "<nil>")
		keys["<nil>"] = nil
	}

	out := make([]backend.Record, 0, len(order))
	for _, k := range order {
		row := backend.Record{backend.GroupKey: keys[k]}
		for _, acc := range g.spec.Accumulators {
			row[acc.Alias] = accumulate(acc, groups[k])
		}
		out = append(out, row)
	}
	return out, nil
}

func accumulate(acc backend.Accumulator, rows []backend.Record) any {
	if acc.Op == "count" {
		return int64(len(rows))
	}
	var values []float64
	for _, r := range rows {
		if f, ok := toFloat(r[acc.Field]); ok {
			values = append(values, f)
		}
	}
	if len(values) == 0 {
		return nil
	}
	switch acc.Op {
	case "sum":
		total := 0.0
		for _, v := range values {
			total += v
		}
		return total
	case "avg":
		total := 0.0
		for _, v := range values {
			total += v
		}
		return total / float64(len(values))
	case "min":
		m := values[0]
		for _, v := range values[1:] {
			m = min(m, v)
		}
		return m
	case "max":
		m := values[0]
		for _, v := range values[1:] {
			m = max(m, v)
		}
		return m
	}
	return nil
}

func filter(rows []backend.Record, where []backend.Condition) []backend.Record {
	out := make([]backend.Record, 0, len(rows))
	for _, r := range rows {
		if matches(r, where) {
			out = append(out, r)
		}
	}
	return out
}

func matches(r backend.Record, where []backend.Condition) bool {
	for _, cond := range where {
		if !matchCondition(lookup(r, cond.Field), cond) {
			return false
		}
	}
	return true
}

func lookup(r backend.Record, path string) any {
	var current any = map[string]any(r)
	for _, part := range strings.Split(path, ".") {
		switch m := current.(type) {
		case map[string]any:
			current = m[part]
		case backend.Record:
			current = m[part]
		default:
			return nil
		}
	}
	return current
}

func matchCondition(value any, cond backend.Condition) bool {
	switch cond.Op {
	case backend.OpEq:
		return equalOrContains(value, cond.Value)
	case backend.OpNe:
		return !equalOrContains(value, cond.Value)
	case backend.OpIn, backend.OpNin:
		found := false
		for _, v := range cond.Values() {
			if equal(value, v) {
				found = true
				break
			}
		}
		return found == (cond.Op == backend.OpIn)
	case backend.OpNull:
		return (value == nil) == cond.IsNullCheck()
	case backend.OpContains, backend.OpNContains, backend.OpContainsi, backend.OpNContainsi:
		s, needle := fmt.Sprint(value), fmt.Sprint(cond.Value)
		if cond.Op == backend.OpContainsi || cond.Op == backend.OpNContainsi {
			s, needle = strings.ToLower(s), strings.ToLower(needle)
		}
		contains := value != nil && strings.Contains(s, needle)
		if cond.Op == backend.OpNContains || cond.Op == backend.OpNContainsi {
			return !contains
		}
		return contains
	}
	cmp, ok := compare(value, cond.Value)
	if !ok {
		return false
	}
	switch cond.Op {
	case backend.OpLt:
		return cmp < 0
	case backend.OpLte:
		return cmp <= 0
	case backend.OpGt:
		return cmp > 0
	case backend.OpGte:
		return cmp >= 0
	}
	return false
}

// equalOrContains compares scalars and matches list values (stored relation
// ids) when any element equals want.
func equalOrContains(value, want any) bool {
	if list, ok := value.([]any); ok {
		for _, v := range list {
			if equal(v, want) {
				return true
			}
		}
		return false
	}
	if list, ok := value.([]string); ok {
		for _, v := range list {
			if equal(v, want) {
				return true
			}
		}
		return false
	}
	return equal(value, want)
}

func equal(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func compare(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1, true
			case fa > fb:
				return 1, true
			}
			return 0, true
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b)), true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

func sortRecords(rows []backend.Record, fields []backend.SortField) {
	if len(fields) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, f := range fields {
			cmp, ok := compare(rows[i][f.Field], rows[j][f.Field])
			if !ok || cmp == 0 {
				continue
			}
			if f.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}
