// Package aggregation derives the connection type of a collection model: its raw
// values, an aggregator with count and numeric aggregates, and a group-by view
// whose groups drill down into nested connections.
package aggregation

import (
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/graphql-go/graphql"

	"content-graphql/internal/action"
	"content-graphql/internal/backend"
	"content-graphql/internal/contentmodel"
	"content-graphql/internal/naming"
	"content-graphql/internal/resolver"
	"content-graphql/internal/sdl"
)

// Ops are the numeric aggregates exposed when a model has numeric fields.
var Ops = []string{"sum", "avg", "min", "max"}

// Input describes the list query a connection mirrors.
type Input struct {
	Model *contentmodel.Model
	// Fields is the object type field map of the model.
	Fields *sdl.Fields
	// PluralName is the list query name, e.g. `articles`.
	PluralName string
	// Values is the resolver config of the list query. The connection query is
	// authorized like it and `values` dispatches through it.
	Values resolver.Config
}

// Result is the SDL and resolvers generated for one model.
type Result struct {
	Definition string
	Query      *sdl.Fields
	Resolvers  resolver.Map
}

// Builder generates connection types. It holds no per-model state.
type Builder struct {
	provider backend.Provider
	namer    *naming.Namer
}

// New creates a Builder whose resolvers query provider.
func New(provider backend.Provider, namer *naming.Namer) *Builder {
	if namer == nil {
		namer = naming.Default()
	}
	return &Builder{provider: provider, namer: namer}
}

// ConnectionQueryName returns `<plural>Connection`.
func ConnectionQueryName(pluralName string) string {
	return pluralName + "Connection"
}

// NumericFields returns the non-list Int, Long and Float fields.
func NumericFields(fields *sdl.Fields) []sdl.Field {
	var out []sdl.Field
	for _, f := range fields.List() {
		if sdl.IsList(f.Type) || f.Args != "" {
			continue
		}
		switch sdl.BaseType(f.Type) {
		case "Int", "Long", "Float":
			out = append(out, f)
		}
	}
	return out
}

// GroupByFields returns the fields a connection can be grouped by: every
// non-list field holding a scalar or enum value.
func GroupByFields(model *contentmodel.Model, fields *sdl.Fields) []sdl.Field {
	var out []sdl.Field
	for _, f := range fields.List() {
		if sdl.IsList(f.Type) || f.Args != "" {
			continue
		}
		if attr := model.Attribute(f.Name); attr != nil && !attr.Type.IsScalar() {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Build generates the connection, aggregator and group-by types of a model and
// the `<plural>Connection` query.
func (b *Builder) Build(in Input) (*Result, error) {
	if in.Model == nil || in.Fields == nil {
		return nil, errors.New("aggregation: model and fields are required")
	}
	authorizeAs, err := resolverOf(in.Values)
	if err != nil {
		return nil, fmt.Errorf("aggregation %s: %w", in.Model.GlobalID, err)
	}

	globalID := in.Model.GlobalID
	connection := globalID + "Connection"
	aggregator := globalID + "Aggregator"
	groupBy := globalID + "GroupBy"
	uid := in.Model.UID

	res := &Result{Query: sdl.NewFields(), Resolvers: resolver.Map{}}
	var def strings.Builder

	def.WriteString(sdl.Object("type", connection, "", sdl.NewFields(
		sdl.Field{Name: "values", Type: "[" + globalID + "]"},
		sdl.Field{Name: "groupBy", Type: groupBy},
		sdl.Field{Name: "aggregate", Type: aggregator},
	)))
	values := in.Values
	values.ArgsFromSource = true
	values.Description = ""
	res.Resolvers.Set(connection, "values", values)
	res.Resolvers.Set(connection, "groupBy", passthrough())
	res.Resolvers.Set(connection, "aggregate", passthrough())

	aggFields := sdl.NewFields(
		sdl.Field{Name: "count", Type: "Int"},
		sdl.Field{Name: "totalCount", Type: "Int"},
	)
	res.Resolvers.Set(aggregator, "count", field(b.count(uid, true)))
	res.Resolvers.Set(aggregator, "totalCount", field(b.count(uid, false)))

	if numeric := NumericFields(in.Fields); len(numeric) > 0 {
		for _, op := range Ops {
			typeName := aggregator + naming.UpperFirst(op)
			aggFields.Set(sdl.Field{Name: op, Type: typeName})
			res.Resolvers.Set(aggregator, op, passthrough())

			opFields := sdl.NewFields()
			for _, f := range numeric {
				typ := sdl.BaseType(f.Type)
				if op == "avg" {
					typ = "Float"
				}
				opFields.Set(sdl.Field{Name: f.Name, Type: typ})
				res.Resolvers.Set(typeName, f.Name, field(b.aggregate(uid, op, f.Name)))
			}
			def.WriteString(sdl.Object("type", typeName, "", opFields))
		}
	}
	def.WriteString(sdl.Object("type", aggregator, "", aggFields))

	groupFields := sdl.NewFields()
	for _, f := range GroupByFields(in.Model, in.Fields) {
		rowType := connection + naming.UpperFirst(f.Name)
		groupFields.Set(sdl.Field{Name: f.Name, Type: "[" + rowType + "]"})
		res.Resolvers.Set(groupBy, f.Name, field(b.group(uid, f.Name)))
		def.WriteString(sdl.Object("type", rowType, "", sdl.NewFields(
			sdl.Field{Name: "key", Type: strings.TrimSuffix(f.Type, "!")},
			sdl.Field{Name: "connection", Type: connection},
		)))
	}
	if groupFields.Len() == 0 {
		groupFields.Set(sdl.Field{Name: "_", Type: "Boolean"})
	}
	def.WriteString(sdl.Object("type", groupBy, "", groupFields))
	res.Definition = def.String()

	queryName := ConnectionQueryName(in.PluralName)
	res.Query.Set(sdl.Field{
		Name: queryName,
		Args: "sort: String, limit: Int, start: Int, where: JSON",
		Type: connection,
	})
	res.Resolvers.Set("Query", queryName, resolver.Config{
		Resolver:   resolver.Custom{Fn: connectionRoot},
		ResolverOf: authorizeAs,
		Plugin:     in.Values.Plugin,
		Policies:   in.Values.Policies,
	})
	return res, nil
}

func resolverOf(cfg resolver.Config) (string, error) {
	if cfg.ResolverOf != "" {
		return cfg.ResolverOf, nil
	}
	if a, ok := cfg.Resolver.(resolver.Action); ok {
		return a.Ref.String(), nil
	}
	return "", errors.New("list query has no action to authorize the connection as")
}

// connectionRoot returns the amount-limited options; every connection field
// resolves from them.
func connectionRoot(_ *action.Context, call resolver.Call) (any, error) {
	return call.Options, nil
}

func passthrough() resolver.Config {
	return field(func(p graphql.ResolveParams) (any, error) {
		return p.Source, nil
	})
}

func field(fn graphql.FieldResolveFn) resolver.Config {
	return resolver.Config{Resolver: resolver.Field{Fn: fn}}
}

func rootOf(source any) map[string]any {
	if root, ok := source.(map[string]any); ok {
		return root
	}
	return map[string]any{}
}

func (b *Builder) count(uid string, filtered bool) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		q, err := b.provider.Query(uid)
		if err != nil {
			return nil, err
		}
		filters := backend.Params{}
		if filtered {
			filters = resolver.ConvertToQuery(rootOf(p.Source)["where"])
		}
		n, err := q.Count(p.Context, filters)
		if err != nil {
			return nil, err
		}
		return int(n), nil
	}
}

func (b *Builder) aggregate(uid, op, fieldName string) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		q, err := b.provider.Query(uid)
		if err != nil {
			return nil, err
		}
		rows, err := q.Group(backend.GroupSpec{
			Filters:      resolver.ConvertToQuery(rootOf(p.Source)["where"]),
			Accumulators: []backend.Accumulator{{Alias: fieldName, Op: op, Field: fieldName}},
		}).Exec(p.Context)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, nil
		}
		return rows[0][fieldName], nil
	}
}

// group resolves one group-by field into `{key, connection}` rows. connection
// is evaluated lazily and narrows the parent filters to the group key.
func (b *Builder) group(uid, fieldName string) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (any, error) {
		q, err := b.provider.Query(uid)
		if err != nil {
			return nil, err
		}
		root := rootOf(p.Source)
		rows, err := q.Group(backend.GroupSpec{
			Filters: resolver.ConvertToQuery(root["where"]),
			By:      fieldName,
		}).Exec(p.Context)
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, len(rows))
		for _, row := range rows {
			key := row[backend.GroupKey]
			out = append(out, map[string]any{
				"key":        key,
				"connection": drillDown(root, fieldName, key),
			})
		}
		return out, nil
	}
}

func drillDown(root map[string]any, fieldName string, key any) func() interface{} {
	return func() interface{} {
		next := maps.Clone(root)
		where := map[string]any{}
		if parent, ok := root["where"].(map[string]any); ok {
			where = maps.Clone(parent)
		}
		where[fieldName] = key
		next["where"] = where
		return next
	}
}
