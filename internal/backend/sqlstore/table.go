package sqlstore

import (
	"context"
	"fmt"
	"maps"

	sq "github.com/Masterminds/squirrel"

	"content-graphql/internal/backend"
	"content-graphql/internal/contentmodel"
	"content-graphql/internal/sqlutil"
)

// noLimit is the MySQL idiom for an offset without a limit.
const noLimit = uint64(18446744073709551615)

type columnKind int

const (
	kindScalar columnKind = iota
	kindJSON
	// kindRef holds the primary key of a related record.
	kindRef
)

type column struct {
	name string
	kind columnKind
	attr contentmodel.AttributeType
	// target is the related model UID of a relation column.
	target string
}

// table is the backend.Query of one model.
type table struct {
	store   *Store
	model   *contentmodel.Model
	name    string
	pk      string
	columns []column
	byName  map[string]column
}

func newTable(s *Store, m *contentmodel.Model) *table {
	t := &table{
		store:  s,
		model:  m,
		name:   m.CollectionName,
		pk:     m.PrimaryKey,
		byName: make(map[string]column),
	}
	t.add(column{name: m.PrimaryKey, kind: kindRef})
	for _, ts := range m.Options.Timestamps {
		t.add(column{name: ts, attr: contentmodel.TypeDateTime})
	}
	for _, attr := range m.Attributes {
		switch attr.Type {
		case contentmodel.TypeComponent, contentmodel.TypeDynamicZone, contentmodel.TypeJSON:
			t.add(column{name: attr.Name, kind: kindJSON, attr: attr.Type})
		case contentmodel.TypeRelation:
			assoc, ok := m.Association(attr.Name)
			if !ok {
				continue
			}
			switch {
			case assoc.IsMorph():
				t.add(column{name: attr.Name, kind: kindJSON, attr: attr.Type})
			case assoc.OwnsForeignKey():
				t.add(column{name: attr.Name, kind: kindRef, attr: attr.Type, target: assoc.Target})
			case storesIDs(assoc):
				t.add(column{name: attr.Name, kind: kindJSON, attr: attr.Type, target: assoc.Target})
			}
		default:
			t.add(column{name: attr.Name, attr: attr.Type})
		}
	}
	return t
}

// storesIDs reports whether a collection relation keeps the related ids on
// the declaring record.
func storesIDs(assoc contentmodel.Association) bool {
	if !assoc.IsCollection() {
		return false
	}
	return assoc.Via == "" ||
		assoc.Nature == contentmodel.NatureManyWay ||
		(assoc.Nature == contentmodel.NatureManyToMany && assoc.Dominant)
}

func (t *table) add(c column) {
	if _, dup := t.byName[c.name]; dup {
		return
	}
	t.columns = append(t.columns, c)
	t.byName[c.name] = c
}

func (t *table) selectAll() sq.SelectBuilder {
	cols := make([]string, 0, len(t.columns))
	for _, c := range t.columns {
		cols = append(cols, sqlutil.Qualify(t.name, c.name))
	}
	return sq.Select(cols...).From(sqlutil.QuoteIdentifier(t.name))
}

func (t *table) criteria(params backend.Params) (backend.Criteria, sq.Sqlizer, error) {
	crit, err := backend.ParseParams(params)
	if err != nil {
		return backend.Criteria{}, nil, fmt.Errorf("%w: %v", backend.ErrInvalid, err)
	}
	where, err := t.where(t.name, crit.Where, 0)
	if err != nil {
		return backend.Criteria{}, nil, err
	}
	return crit, where, nil
}

// Find implements backend.Query.
func (t *table) Find(ctx context.Context, params backend.Params) ([]backend.Record, error) {
	crit, where, err := t.criteria(params)
	if err != nil {
		return nil, err
	}
	b := t.selectAll().Where(where)
	for _, s := range crit.Sort {
		if _, ok := t.byName[s.Field]; !ok {
			return nil, fmt.Errorf("%w: cannot sort %s by %q", backend.ErrInvalid, t.model.UID, s.Field)
		}
		dir := "ASC"
		if s.Desc {
			dir = "DESC"
		}
		b = b.OrderBy(sqlutil.Qualify(t.name, s.Field) + " " + dir)
	}
	if crit.Limit >= 0 {
		b = b.Limit(uint64(crit.Limit))
	}
	if crit.Start > 0 {
		if crit.Limit < 0 {
			b = b.Limit(noLimit)
		}
		b = b.Offset(uint64(crit.Start))
	}
	records, err := t.store.query(ctx, b, t.decode)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []backend.Record{}
	}
	return records, nil
}

// FindOne implements backend.Query.
func (t *table) FindOne(ctx context.Context, params backend.Params) (backend.Record, error) {
	one := maps.Clone(params)
	if one == nil {
		one = backend.Params{}
	}
	one["_limit"] = 1
	records, err := t.Find(ctx, one)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return records[0], nil
}

// Count implements backend.Query.
func (t *table) Count(ctx context.Context, filters backend.Params) (int64, error) {
	_, where, err := t.criteria(filters)
	if err != nil {
		return 0, err
	}
	b := sq.Select("COUNT(*) AS " + sqlutil.QuoteIdentifier("count")).From(sqlutil.QuoteIdentifier(t.name)).Where(where)
	rows, err := t.store.query(ctx, b, decodeGeneric)
	if err != nil || len(rows) == 0 {
		return 0, err
	}
	n, _ := toInt64(rows[0]["count"])
	return n, nil
}

// Create implements backend.Query.
func (t *table) Create(ctx context.Context, data backend.Record) (backend.Record, error) {
	values, err := t.encode(data)
	if err != nil {
		return nil, err
	}
	id, hasID := values[t.pk]
	if (!hasID || id == nil) && !t.store.autoInc {
		id = t.store.newID()
		values[t.pk] = id
	}

	cols := make([]string, 0, len(values))
	args := make([]any, 0, len(values))
	for _, c := range t.columns {
		if v, ok := values[c.name]; ok {
			cols = append(cols, sqlutil.QuoteIdentifier(c.name))
			args = append(args, v)
		}
	}
	insert := sq.Insert(sqlutil.QuoteIdentifier(t.name)).Columns(cols...).Values(args...)
	lastID, err := t.store.execute(ctx, insert)
	if err != nil {
		return nil, err
	}
	if id == nil {
		id = lastID
	}

	created, err := t.FindOne(ctx, backend.Params{t.pk: id})
	if err != nil {
		return nil, err
	}
	if created == nil {
		created = maps.Clone(data)
		created[t.pk] = id
	}
	return created, nil
}

// Update implements backend.Query. It updates the first record matching where.
func (t *table) Update(ctx context.Context, where backend.Params, data backend.Record) (backend.Record, error) {
	existing, err := t.FindOne(ctx, where)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, backend.ErrNotFound
	}
	values, err := t.encode(data)
	if err != nil {
		return nil, err
	}
	delete(values, t.pk)
	if len(values) == 0 {
		return existing, nil
	}

	set := make(map[string]any, len(values))
	for name, v := range values {
		set[sqlutil.QuoteIdentifier(name)] = v
	}
	update := sq.Update(sqlutil.QuoteIdentifier(t.name)).SetMap(set).Where(sq.Eq{sqlutil.QuoteIdentifier(t.pk): existing[t.pk]})
	if _, err := t.store.execute(ctx, update); err != nil {
		return nil, err
	}
	return t.FindOne(ctx, backend.Params{t.pk: existing[t.pk]})
}

// Delete implements backend.Query. It deletes the first record matching where
// and returns it.
func (t *table) Delete(ctx context.Context, where backend.Params) (backend.Record, error) {
	existing, err := t.FindOne(ctx, where)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, backend.ErrNotFound
	}
	del := sq.Delete(sqlutil.QuoteIdentifier(t.name)).Where(sq.Eq{sqlutil.QuoteIdentifier(t.pk): existing[t.pk]})
	if _, err := t.store.execute(ctx, del); err != nil {
		return nil, err
	}
	return existing, nil
}

// Group implements backend.Query.
func (t *table) Group(spec backend.GroupSpec) backend.Grouping {
	return grouping{t: t, spec: spec}
}

type grouping struct {
	t    *table
	spec backend.GroupSpec
}

var aggregateFuncs = map[string]string{
	"sum":   "SUM",
	"avg":   "AVG",
	"min":   "MIN",
	"max":   "MAX",
	"count": "COUNT",
}

func (g grouping) Exec(ctx context.Context) ([]backend.Record, error) {
	t := g.t
	_, where, err := t.criteria(g.spec.Filters)
	if err != nil {
		return nil, err
	}

	key := "NULL"
	if g.spec.By != "" {
		if _, ok := t.byName[g.spec.By]; !ok {
			return nil, fmt.Errorf("%w: cannot group %s by %q", backend.ErrInvalid, t.model.UID, g.spec.By)
		}
		key = sqlutil.Qualify(t.name, g.spec.By)
	}
	cols := []string{key + " AS " + sqlutil.QuoteIdentifier(backend.GroupKey)}
	for _, acc := range g.spec.Accumulators {
		fn, ok := aggregateFuncs[acc.Op]
		if !ok {
			return nil, fmt.Errorf("%w: unknown aggregate %q", backend.ErrInvalid, acc.Op)
		}
		arg := "*"
		if acc.Field != "" {
			if _, ok := t.byName[acc.Field]; !ok {
				return nil, fmt.Errorf("%w: cannot aggregate %s.%s", backend.ErrInvalid, t.model.UID, acc.Field)
			}
			arg = sqlutil.Qualify(t.name, acc.Field)
		}
		cols = append(cols, fmt.Sprintf("%s(%s) AS %s", fn, arg, sqlutil.QuoteIdentifier(acc.Alias)))
	}

	b := sq.Select(cols...).From(sqlutil.QuoteIdentifier(t.name)).Where(where)
	if g.spec.By != "" {
		b = b.GroupBy(key).OrderBy(key)
	}
	return t.store.query(ctx, b, func(names []string, values []any) backend.Record {
		row := backend.Record{}
		for i, name := range names {
			if name == backend.GroupKey {
				if c, ok := t.byName[g.spec.By]; ok {
					row[name] = decodeValue(c, values[i])
					continue
				}
			}
			row[name] = g.decodeAggregate(name, values[i])
		}
		return row
	})
}

func (g grouping) decodeAggregate(alias string, v any) any {
	for _, acc := range g.spec.Accumulators {
		if acc.Alias != alias {
			continue
		}
		switch acc.Op {
		case "count":
			n, _ := toInt64(v)
			return n
		case "min", "max":
			if c, ok := g.t.byName[acc.Field]; ok {
				return decodeValue(c, v)
			}
		}
		if f, ok := toFloat64(v); ok {
			return f
		}
		return nil
	}
	return decodeGeneric([]string{alias}, []any{v})[alias]
}

