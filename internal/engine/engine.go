// Package engine turns a compiled schema artifact into an executable
// graphql-go schema and runs requests against it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/vektah/gqlparser/v2/ast"

	"content-graphql/internal/backend"
	"content-graphql/internal/logging"
	"content-graphql/internal/scalars"
	"content-graphql/internal/schema"
)

// LoaderRecorder receives per-request association loader statistics.
type LoaderRecorder interface {
	RecordLoader(ctx context.Context, batches, hits, misses int64)
}

// Options configures New.
type Options struct {
	// Provider backs the request-scoped association loader. When nil no
	// loader is installed and associations resolve one query at a time.
	Provider backend.Provider
	Logger   *logging.Logger
	Metrics  LoaderRecorder
}

// Engine executes GraphQL requests against one compiled schema. It is safe
// for concurrent use.
type Engine struct {
	schema   graphql.Schema
	typeDefs string
	provider backend.Provider
	logger   *logging.Logger
	metrics  LoaderRecorder
}

// New converts art into an executable schema.
func New(art *schema.Artifact, opts Options) (*Engine, error) {
	if art == nil || art.Schema == nil {
		return nil, errors.New("engine: artifact has no validated schema")
	}
	logger := opts.Logger
	if logger == nil {
		logger = &logging.Logger{Logger: slog.Default()}
	}

	c := newConverter(art)
	gqlSchema, err := c.schema()
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	logger.Debug("executable schema ready", slog.Int("types", len(c.types)))

	return &Engine{
		schema:   gqlSchema,
		typeDefs: art.TypeDefs,
		provider: opts.Provider,
		logger:   logger,
		metrics:  opts.Metrics,
	}, nil
}

// Schema returns the executable schema, for HTTP handlers.
func (e *Engine) Schema() *graphql.Schema {
	return &e.schema
}

// TypeDefs returns the SDL the schema was built from.
func (e *Engine) TypeDefs() string {
	return e.typeDefs
}

// Prepare installs the request-scoped association loader on ctx unless one is
// already present. Do calls it; HTTP handlers call it before executing.
func (e *Engine) Prepare(ctx context.Context) (context.Context, *schema.Loader) {
	if e.provider == nil {
		return ctx, nil
	}
	if l, ok := schema.LoaderFrom(ctx); ok {
		return ctx, l
	}
	l := schema.NewLoader(e.provider)
	return schema.WithLoader(ctx, l), l
}

// Do executes one request.
func (e *Engine) Do(ctx context.Context, query string, variables map[string]any, operationName string) *graphql.Result {
	start := time.Now()
	ctx, loader := e.Prepare(ctx)

	result := graphql.Do(graphql.Params{
		Schema:         e.schema,
		RequestString:  query,
		VariableValues: variables,
		OperationName:  operationName,
		Context:        ctx,
	})
	e.finish(ctx, loader, start)
	if result.HasErrors() {
		e.logger.Debug("request completed with errors",
			slog.Int("errors", len(result.Errors)),
			slog.Duration("duration", time.Since(start)),
		)
	}
	return result
}

// finish reports the loader statistics of one request.
func (e *Engine) finish(ctx context.Context, loader *schema.Loader, start time.Time) {
	if loader == nil {
		return
	}
	batches, hits, misses := loader.Stats()
	if e.metrics != nil {
		e.metrics.RecordLoader(ctx, int64(batches), int64(hits), int64(misses))
	}
	if batches > 0 {
		e.logger.Debug("association batches",
			slog.Int("batches", int(batches)),
			slog.Int("cache_hits", int(hits)),
			slog.Int("cache_misses", int(misses)),
			slog.Duration("duration", time.Since(start)),
		)
	}
}

// converter builds graphql-go types from the validated AST. Types are created
// once by name; field maps are thunks so definitions may reference each other
// in any order.
type converter struct {
	doc       *ast.Schema
	resolvers map[string]map[string]graphql.FieldResolveFn
	types     map[string]graphql.Type
	objects   map[string]*graphql.Object
	// err holds the first failure raised inside a thunk.
	err error
}

func newConverter(art *schema.Artifact) *converter {
	return &converter{
		doc:       art.Schema,
		resolvers: art.Resolvers,
		types:     make(map[string]graphql.Type),
		objects:   make(map[string]*graphql.Object),
	}
}

func (c *converter) schema() (graphql.Schema, error) {
	if c.doc.Query == nil {
		return graphql.Schema{}, errors.New("schema has no Query type")
	}
	extra := make([]graphql.Type, 0, len(c.doc.Types))
	for _, name := range slices.Sorted(maps.Keys(c.doc.Types)) {
		def := c.doc.Types[name]
		if def.BuiltIn {
			continue
		}
		t, err := c.named(name)
		if err != nil {
			return graphql.Schema{}, err
		}
		extra = append(extra, t)
	}

	cfg := graphql.SchemaConfig{Types: extra}
	query, err := c.object(c.doc.Query.Name)
	if err != nil {
		return graphql.Schema{}, err
	}
	cfg.Query = query
	if c.doc.Mutation != nil {
		if cfg.Mutation, err = c.object(c.doc.Mutation.Name); err != nil {
			return graphql.Schema{}, err
		}
	}
	out, err := graphql.NewSchema(cfg)
	if c.err != nil {
		return graphql.Schema{}, c.err
	}
	return out, err
}

func (c *converter) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

func (c *converter) object(name string) (*graphql.Object, error) {
	t, err := c.named(name)
	if err != nil {
		return nil, err
	}
	obj, ok := t.(*graphql.Object)
	if !ok {
		return nil, fmt.Errorf("%s is not an object type", name)
	}
	return obj, nil
}

// named returns the graphql-go type for a named AST type.
func (c *converter) named(name string) (graphql.Type, error) {
	if t, ok := c.types[name]; ok {
		return t, nil
	}
	switch name {
	case "String":
		return graphql.String, nil
	case "Int":
		return graphql.Int, nil
	case "Float":
		return graphql.Float, nil
	case "Boolean":
		return graphql.Boolean, nil
	case "ID":
		return graphql.ID, nil
	}

	def, ok := c.doc.Types[name]
	if !ok {
		return nil, fmt.Errorf("unknown type %q", name)
	}

	var t graphql.Type
	switch def.Kind {
	case ast.Scalar:
		if s, ok := scalars.ByName(name); ok {
			t = s
		} else {
			t = scalars.Opaque(name, def.Description)
		}
	case ast.Enum:
		t = c.enum(def)
	case ast.Object:
		obj := c.newObject(def)
		c.objects[name] = obj
		t = obj
	case ast.Interface:
		t = graphql.NewInterface(graphql.InterfaceConfig{
			Name:        def.Name,
			Description: def.Description,
			Fields:      c.fieldsThunk(def),
			ResolveType: c.resolveType,
		})
	case ast.Union:
		t = graphql.NewUnion(graphql.UnionConfig{
			Name:        def.Name,
			Description: def.Description,
			Types:       c.unionTypes(def),
			ResolveType: c.resolveType,
		})
	case ast.InputObject:
		t = graphql.NewInputObject(graphql.InputObjectConfig{
			Name:        def.Name,
			Description: def.Description,
			Fields:      c.inputFieldsThunk(def),
		})
	default:
		return nil, fmt.Errorf("unsupported kind %s for %s", def.Kind, name)
	}
	c.types[name] = t
	return t, nil
}

func (c *converter) enum(def *ast.Definition) *graphql.Enum {
	values := graphql.EnumValueConfigMap{}
	for _, v := range def.EnumValues {
		values[v.Name] = &graphql.EnumValueConfig{
			Value:             v.Name,
			Description:       v.Description,
			DeprecationReason: deprecation(v.Directives),
		}
	}
	return graphql.NewEnum(graphql.EnumConfig{
		Name:        def.Name,
		Description: def.Description,
		Values:      values,
	})
}

func (c *converter) newObject(def *ast.Definition) *graphql.Object {
	cfg := graphql.ObjectConfig{
		Name:        def.Name,
		Description: def.Description,
		Fields:      c.fieldsThunk(def),
	}
	if len(def.Interfaces) > 0 {
		cfg.Interfaces = graphql.InterfacesThunk(func() []*graphql.Interface {
			out := make([]*graphql.Interface, 0, len(def.Interfaces))
			for _, name := range def.Interfaces {
				t, err := c.named(name)
				if err != nil {
					c.fail(err)
					continue
				}
				if iface, ok := t.(*graphql.Interface); ok {
					out = append(out, iface)
				}
			}
			return out
		})
	}
	return graphql.NewObject(cfg)
}

// fieldsThunk defers field construction until every named type exists.
// Failures are recorded on the converter and reported after NewSchema.
func (c *converter) fieldsThunk(def *ast.Definition) graphql.FieldsThunk {
	return func() graphql.Fields {
		fields := graphql.Fields{}
		for _, f := range def.Fields {
			if strings.HasPrefix(f.Name, "__") {
				continue
			}
			typ, err := c.output(f.Type)
			if err != nil {
				c.fail(fmt.Errorf("%s.%s: %w", def.Name, f.Name, err))
				continue
			}
			args := graphql.FieldConfigArgument{}
			for _, a := range f.Arguments {
				argType, err := c.input(a.Type)
				if err != nil {
					c.fail(fmt.Errorf("%s.%s(%s): %w", def.Name, f.Name, a.Name, err))
					continue
				}
				args[a.Name] = &graphql.ArgumentConfig{
					Type:         argType,
					Description:  a.Description,
					DefaultValue: defaultValue(a.DefaultValue),
				}
			}
			fields[f.Name] = &graphql.Field{
				Name:              f.Name,
				Type:              typ,
				Args:              args,
				Description:       f.Description,
				DeprecationReason: deprecation(f.Directives),
				Resolve:           c.resolvers[def.Name][f.Name],
			}
		}
		return fields
	}
}

func (c *converter) inputFieldsThunk(def *ast.Definition) graphql.InputObjectConfigFieldMapThunk {
	return func() graphql.InputObjectConfigFieldMap {
		fields := graphql.InputObjectConfigFieldMap{}
		for _, f := range def.Fields {
			typ, err := c.input(f.Type)
			if err != nil {
				c.fail(fmt.Errorf("%s.%s: %w", def.Name, f.Name, err))
				continue
			}
			fields[f.Name] = &graphql.InputObjectFieldConfig{
				Type:         typ,
				Description:  f.Description,
				DefaultValue: defaultValue(f.DefaultValue),
			}
		}
		return fields
	}
}

func (c *converter) unionTypes(def *ast.Definition) graphql.UnionTypesThunk {
	return func() []*graphql.Object {
		out := make([]*graphql.Object, 0, len(def.Types))
		for _, name := range def.Types {
			obj, err := c.object(name)
			if err != nil {
				c.fail(err)
				continue
			}
			out = append(out, obj)
		}
		return out
	}
}

// resolveType picks the concrete object of a union or interface value from
// its `__typename` entry.
func (c *converter) resolveType(p graphql.ResolveTypeParams) *graphql.Object {
	var name string
	switch v := p.Value.(type) {
	case map[string]any:
		name, _ = v[schema.TypenameKey].(string)
	case backend.Record:
		name, _ = v[schema.TypenameKey].(string)
	}
	return c.objects[name]
}

func (c *converter) output(t *ast.Type) (graphql.Output, error) {
	wrapped, err := c.wrap(t)
	if err != nil {
		return nil, err
	}
	out, ok := wrapped.(graphql.Output)
	if !ok {
		return nil, fmt.Errorf("%s is not an output type", t.String())
	}
	return out, nil
}

func (c *converter) input(t *ast.Type) (graphql.Input, error) {
	wrapped, err := c.wrap(t)
	if err != nil {
		return nil, err
	}
	in, ok := wrapped.(graphql.Input)
	if !ok {
		return nil, fmt.Errorf("%s is not an input type", t.String())
	}
	return in, nil
}

func (c *converter) wrap(t *ast.Type) (graphql.Type, error) {
	var inner graphql.Type
	var err error
	if t.Elem != nil {
		var elem graphql.Type
		if elem, err = c.wrap(t.Elem); err != nil {
			return nil, err
		}
		inner = graphql.NewList(elem)
	} else if inner, err = c.named(t.NamedType); err != nil {
		return nil, err
	}
	if t.NonNull {
		return graphql.NewNonNull(inner), nil
	}
	return inner, nil
}

func defaultValue(v *ast.Value) any {
	if v == nil {
		return nil
	}
	out, err := v.Value(nil)
	if err != nil {
		return nil
	}
	return out
}

func deprecation(directives ast.DirectiveList) string {
	d := directives.ForName("deprecated")
	if d == nil {
		return ""
	}
	if reason := d.Arguments.ForName("reason"); reason != nil && reason.Value != nil {
		return reason.Value.Raw
	}
	return "No longer supported"
}

