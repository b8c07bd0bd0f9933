package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"

	"content-graphql/internal/action"
	"content-graphql/internal/backend"
	"content-graphql/internal/contentmodel"
	"content-graphql/internal/logging"
	"content-graphql/internal/naming"
	"content-graphql/internal/policy"
	"content-graphql/internal/resolver"
	"content-graphql/internal/schemafilter"
	"content-graphql/internal/sdl"
)

// CoreScalars are the custom scalars every schema declares.
var CoreScalars = []string{"JSON", "Long", "Date", "Time", "DateTime", "Upload"}

// Options configures Build.
type Options struct {
	Registry *contentmodel.Registry
	Actions  *action.Registry
	Policies *policy.Registry
	Provider backend.Provider
	Namer    *naming.Namer
	Filter   schemafilter.Config
	Limits   resolver.Limits
	// DisableShadowCRUD skips the generated model types and operations.
	DisableShadowCRUD bool
	// Plugins merge after shadow CRUD in slice order; User merges last.
	Plugins []*CustomSchema
	User    *CustomSchema
	Logger  *logging.Logger
	Metrics resolver.Recorder
}

// Artifact is the compiled schema handed to the execution engine.
type Artifact struct {
	TypeDefs  string
	Resolvers map[string]map[string]graphql.FieldResolveFn
	// Schema is the validated form of TypeDefs.
	Schema *ast.Schema
}

// Build compiles the registry and custom schemas into an Artifact. Every
// failure is a *CompileError.
func Build(ctx context.Context, opts Options) (*Artifact, error) {
	start := time.Now()
	if opts.Registry == nil {
		return nil, &CompileError{Kind: KindModel, Subject: "registry", Err: errors.New("registry is required")}
	}
	if opts.Namer == nil {
		opts.Namer = naming.Default()
	}
	opts.Namer.Reset()
	if opts.Actions == nil {
		opts.Actions = action.NewRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = &logging.Logger{Logger: slog.Default()}
	}
	logger := opts.Logger

	overrides, err := NewOverrides(append(append([]*CustomSchema{}, opts.Plugins...), opts.User)...)
	if err != nil {
		return nil, err
	}
	models := schemafilter.Apply(opts.Registry.Models(), opts.Filter)

	var crud []*Fragment
	if !opts.DisableShadowCRUD {
		composer := NewComposer(ComposerOptions{
			Registry:  opts.Registry,
			Namer:     opts.Namer,
			Actions:   opts.Actions,
			Provider:  opts.Provider,
			Overrides: overrides,
			Filter:    opts.Filter,
			Limits:    opts.Limits,
			Logger:    logger,
		})
		for _, m := range append(opts.Registry.Components(), models...) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			f, err := composer.ComposeModel(m)
			if err != nil {
				logger.Error("model compilation failed", slog.String("model", m.UID), slog.String("error", err.Error()))
				return nil, err
			}
			crud = append(crud, f)
		}
	}

	var plugins []*Fragment
	for _, cs := range opts.Plugins {
		if cs == nil {
			continue
		}
		f, err := cs.Fragment()
		if err != nil {
			return nil, err
		}
		plugins = append(plugins, f)
	}
	var user []*Fragment
	if opts.User != nil {
		f, err := opts.User.Fragment()
		if err != nil {
			return nil, err
		}
		user = append(user, f)
	}

	core := coreFragment(models, opts.DisableShadowCRUD)
	merged := MergeLayers(
		Layer{Name: LayerCore, Fragments: []*Fragment{core}},
		Layer{Name: LayerShadowCRUD, Fragments: crud},
		Layer{Name: LayerPlugins, Fragments: plugins},
		Layer{Name: LayerUser, Fragments: user},
	)
	removeDisabled(merged, logger)

	typeDefs := Render(merged)
	parsed, gqlErr := gqlparser.LoadSchema(&ast.Source{Name: "schema.graphql", Input: typeDefs})
	if gqlErr != nil {
		logger.Error("generated schema is invalid", slog.String("error", gqlErr.Error()))
		return nil, &CompileError{Kind: KindSDL, Subject: "schema.graphql", Err: gqlErr}
	}

	builder := resolver.NewBuilder(resolver.Options{
		Actions:  opts.Actions,
		Policies: opts.Policies,
		Limits:   opts.Limits,
		Logger:   logger,
		Metrics:  opts.Metrics,
	})
	resolvers, err := buildResolvers(merged, parsed, builder, logger)
	if err != nil {
		logger.Error("resolver compilation failed", slog.String("error", err.Error()))
		return nil, err
	}

	logger.Info("schema compiled",
		slog.Int("models", len(models)),
		slog.Int("components", len(opts.Registry.Components())),
		slog.Int("queries", merged.Query.Len()),
		slog.Int("mutations", merged.Mutation.Len()),
		slog.Duration("duration", time.Since(start)),
	)
	return &Artifact{TypeDefs: typeDefs, Resolvers: resolvers, Schema: parsed}, nil
}

// coreFragment declares the scalars, the id selector input and the Morph
// union over every exposed model.
func coreFragment(models []*contentmodel.Model, shadowCRUDDisabled bool) *Fragment {
	f := NewFragment()
	var b strings.Builder
	for _, scalar := range CoreScalars {
		b.WriteString("scalar " + scalar + "\n")
	}
	f.AddDefinition(b.String())
	f.AddDefinition(sdl.Object("input", "InputID", "", sdl.NewFields(sdl.Field{Name: "id", Type: "ID!"})))

	if !shadowCRUDDisabled && len(models) > 0 {
		members := make([]string, 0, len(models))
		for _, m := range models {
			members = append(members, m.GlobalID)
		}
		f.AddDefinition(sdl.Union("Morph", members))
	}
	return f
}

// removeDisabled drops disabled root operations from the SDL maps and every
// disabled config from the resolver map.
func removeDisabled(f *Fragment, logger *logging.Logger) {
	for root, fields := range map[string]*sdl.Fields{"Query": f.Query, "Mutation": f.Mutation} {
		for _, name := range fields.Names() {
			if cfg, ok := f.Resolvers.Get(root, name); ok && cfg.IsDisabled() {
				fields.Delete(name)
				logger.Debug("operation removed", slog.String("root", root), slog.String("operation", name))
			}
		}
	}
	for typeName, fields := range f.Resolvers {
		for field, cfg := range fields {
			if cfg.IsDisabled() {
				f.Resolvers.Delete(typeName, field)
			}
		}
	}
}

// Render produces the final type definitions: the merged definition followed
// by the Query and Mutation root types. Root field descriptions come from
// their resolver configs. An empty Query gets a placeholder field.
func Render(f *Fragment) string {
	var b strings.Builder
	b.WriteString(f.Definition)

	query := describeRoot(f, "Query", f.Query)
	if query.Len() == 0 {
		query.Set(sdl.Field{Name: "_", Type: "Boolean"})
	}
	b.WriteString("\n")
	b.WriteString(sdl.Object("type", "Query", "", query))
	if f.Mutation.Len() > 0 {
		b.WriteString("\n")
		b.WriteString(sdl.Object("type", "Mutation", "", describeRoot(f, "Mutation", f.Mutation)))
	}
	return b.String()
}

func describeRoot(f *Fragment, root string, fields *sdl.Fields) *sdl.Fields {
	out := fields.Clone()
	for _, field := range out.List() {
		if cfg, ok := f.Resolvers.Get(root, field.Name); ok && cfg.Description != "" {
			field.Description = cfg.Description
			out.Set(field)
		}
	}
	return out
}

func buildResolvers(f *Fragment, parsed *ast.Schema, builder *resolver.Builder, logger *logging.Logger) (map[string]map[string]graphql.FieldResolveFn, error) {
	out := make(map[string]map[string]graphql.FieldResolveFn, len(f.Resolvers))
	for _, typeName := range sdl.SortedKeys(f.Resolvers) {
		fields := f.Resolvers[typeName]
		def := parsed.Types[typeName]
		for _, field := range sdl.SortedKeys(fields) {
			cfg := fields[field]
			subject := typeName + "." + field
			if def == nil || def.Fields.ForName(field) == nil {
				if cfg.Resolver == nil {
					logger.Debug("override for absent field ignored", slog.String("field", subject))
					continue
				}
				return nil, &CompileError{Kind: KindResolver, Subject: subject, Err: errors.New("field is not defined in the schema")}
			}

			isRoot := typeName == "Query" || typeName == "Mutation"
			if !isRoot && cfg.Resolver == nil {
				continue
			}

			var fn graphql.FieldResolveFn
			var err error
			switch typeName {
			case "Query":
				fn, err = builder.BuildQuery(field, cfg)
			case "Mutation":
				fn, err = builder.BuildMutation(field, cfg)
			default:
				fn, err = builder.BuildField(typeName, field, cfg)
			}
			if err != nil {
				return nil, &CompileError{Kind: KindResolver, Subject: subject, Err: err}
			}
			if out[typeName] == nil {
				out[typeName] = make(map[string]graphql.FieldResolveFn)
			}
			out[typeName][field] = fn
		}
	}

	for _, root := range []string{"Query", "Mutation"} {
		def := parsed.Types[root]
		if def == nil {
			continue
		}
		for _, field := range def.Fields {
			if strings.HasPrefix(field.Name, "__") || field.Name == "_" {
				continue
			}
			if _, ok := out[root][field.Name]; !ok {
				logger.Warn("operation has no resolver", slog.String("operation", fmt.Sprintf("%s.%s", root, field.Name)))
			}
		}
	}
	return out, nil
}
