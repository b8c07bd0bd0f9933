package schema

import (
	"fmt"
	"maps"

	"github.com/graphql-go/graphql"

	"content-graphql/internal/backend"
	"content-graphql/internal/contentmodel"
	"content-graphql/internal/resolver"
)

// TypenameKey tags records of union members with their GraphQL type.
const TypenameKey = "__typename"

// ComponentKey holds the component UID of a dynamic-zone entry.
const ComponentKey = "__component"

func fieldConfig(fn graphql.FieldResolveFn) resolver.Config {
	return resolver.Config{Resolver: resolver.Field{Fn: fn}}
}

// addTypeResolvers registers the default field resolvers of a model type: `id`
// aliases the primary key, associations fetch related records and dynamic
// zones tag each entry with its component type.
func (c *Composer) addTypeResolvers(f *Fragment, m *contentmodel.Model) {
	pk := m.PrimaryKey
	f.Resolvers.Set(m.GlobalID, "id", fieldConfig(func(p graphql.ResolveParams) (any, error) {
		return asMap(p.Source)[pk], nil
	}))

	for _, assoc := range m.Associations {
		if !c.fieldEnabled(m, assoc.Alias) {
			continue
		}
		f.Resolvers.Set(m.GlobalID, assoc.Alias, fieldConfig(c.associationResolver(m, assoc)))
	}
	for _, attr := range m.Attributes {
		if attr.Type == contentmodel.TypeDynamicZone && c.fieldEnabled(m, attr.Name) {
			f.Resolvers.Set(m.GlobalID, attr.Name, fieldConfig(c.dynamicZoneResolver(attr.Name)))
		}
	}
}

func (c *Composer) associationResolver(m *contentmodel.Model, assoc contentmodel.Association) graphql.FieldResolveFn {
	if assoc.IsMorph() {
		return c.morphResolver(assoc)
	}
	target, _ := c.registry.Lookup(assoc.Target)
	if assoc.IsCollection() {
		return c.collectionResolver(m, assoc, target)
	}
	return c.singleResolver(m, assoc, target)
}

// singleResolver fetches the related record by the id stored on the parent, or
// by the inverse `via` field when the other side owns the key. Lookups go
// through the request loader when one is installed.
func (c *Composer) singleResolver(m *contentmodel.Model, assoc contentmodel.Association, target *contentmodel.Model) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		parent := asMap(p.Source)
		if parent == nil {
			return nil, nil
		}
		field, value := target.PrimaryKey, refValue(parent[assoc.Alias], target.PrimaryKey)
		if value == nil {
			if assoc.Via == "" || assoc.OwnsForeignKey() {
				return nil, nil
			}
			field, value = assoc.Via, parent[m.PrimaryKey]
			if value == nil {
				return nil, nil
			}
		}

		if l, ok := LoaderFrom(p.Context); ok {
			l.Enqueue(target.UID, field, value)
			return func() (interface{}, error) {
				record, err := l.Load(p.Context, target.UID, field, value)
				if err != nil {
					return nil, err
				}
				return result(record), nil
			}, nil
		}

		q, err := c.provider.Query(target.UID)
		if err != nil {
			return nil, err
		}
		record, err := q.FindOne(p.Context, backend.Params{field: value})
		if err != nil {
			return nil, err
		}
		return result(record), nil
	}
}

// collectionResolver runs a filtered list query. Dominant many-to-many and
// many-way sides filter the target by the ids stored on the parent; other
// sides filter by the inverse field pointing back at the parent.
func (c *Composer) collectionResolver(m *contentmodel.Model, assoc contentmodel.Association, target *contentmodel.Model) graphql.FieldResolveFn {
	byStoredIDs := assoc.Via == "" ||
		assoc.Nature == contentmodel.NatureManyWay ||
		(assoc.Nature == contentmodel.NatureManyToMany && assoc.Dominant)

	return func(p graphql.ResolveParams) (any, error) {
		parent := asMap(p.Source)
		if parent == nil {
			return nil, nil
		}
		params := backend.Params(resolver.QueryParams(c.limits.Apply(p.Args)))
		if byStoredIDs {
			ids := refValues(parent[assoc.Alias], target.PrimaryKey)
			if len(ids) == 0 {
				return []any{}, nil
			}
			params[target.PrimaryKey+"_in"] = ids
		} else {
			params[assoc.Via] = parent[m.PrimaryKey]
		}

		q, err := c.provider.Query(target.UID)
		if err != nil {
			return nil, err
		}
		records, err := q.Find(p.Context, params)
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, len(records))
		for _, r := range records {
			out = append(out, map[string]any(r))
		}
		return out, nil
	}
}

// morphResolver resolves polymorphic references stored as `{kind, ref}`
// entries, where kind is a model UID or type name.
func (c *Composer) morphResolver(assoc contentmodel.Association) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		parent := asMap(p.Source)
		if parent == nil {
			return nil, nil
		}
		raw := parent[assoc.Alias]
		if !assoc.IsCollection() {
			return c.resolveMorph(p, raw)
		}
		entries := asList(raw)
		out := make([]any, 0, len(entries))
		for _, entry := range entries {
			record, err := c.resolveMorph(p, entry)
			if err != nil {
				return nil, err
			}
			if record != nil {
				out = append(out, record)
			}
		}
		return out, nil
	}
}

func (c *Composer) resolveMorph(p graphql.ResolveParams, entry any) (any, error) {
	ref := asMap(entry)
	if ref == nil {
		return nil, nil
	}
	kind := fmt.Sprint(ref["kind"])
	target, ok := c.registry.Lookup(kind)
	if !ok {
		target, ok = c.registry.ByGlobalID(kind)
	}
	if !ok || target.IsComponent() {
		return nil, nil
	}
	q, err := c.provider.Query(target.UID)
	if err != nil {
		return nil, err
	}
	record, err := q.FindOne(p.Context, backend.Params{target.PrimaryKey: ref["ref"]})
	if err != nil || record == nil {
		return nil, err
	}
	out := maps.Clone(map[string]any(record))
	out[TypenameKey] = target.GlobalID
	return out, nil
}

func (c *Composer) dynamicZoneResolver(attr string) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		parent := asMap(p.Source)
		if parent == nil {
			return nil, nil
		}
		entries := asList(parent[attr])
		out := make([]any, 0, len(entries))
		for _, entry := range entries {
			item := asMap(entry)
			uid, _ := item[ComponentKey].(string)
			component, ok := c.registry.Component(uid)
			if !ok {
				continue
			}
			tagged := maps.Clone(item)
			tagged[TypenameKey] = component.GlobalID
			out = append(out, tagged)
		}
		return out, nil
	}
}

func asMap(v any) map[string]any {
	switch m := v.(type) {
	case map[string]any:
		return m
	case backend.Record:
		return m
	}
	return nil
}

func asList(v any) []any {
	switch l := v.(type) {
	case []any:
		return l
	case []map[string]any:
		out := make([]any, len(l))
		for i, m := range l {
			out[i] = m
		}
		return out
	case []backend.Record:
		out := make([]any, len(l))
		for i, r := range l {
			out[i] = map[string]any(r)
		}
		return out
	}
	return nil
}

// refValue returns the id of a stored reference: a raw id or an embedded record.
func refValue(v any, pk string) any {
	if m := asMap(v); m != nil {
		return m[pk]
	}
	return v
}

func refValues(v any, pk string) []any {
	switch ids := v.(type) {
	case nil:
		return nil
	case []string:
		out := make([]any, len(ids))
		for i, id := range ids {
			out[i] = id
		}
		return out
	}
	entries := asList(v)
	out := make([]any, 0, len(entries))
	for _, entry := range entries {
		if id := refValue(entry, pk); id != nil {
			out = append(out, id)
		}
	}
	return out
}

func result(record backend.Record) any {
	if record == nil {
		return nil
	}
	return map[string]any(record)
}
