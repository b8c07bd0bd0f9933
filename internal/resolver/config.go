// Package resolver turns resolver configurations of generated and custom
// operations into executable graphql-go resolvers that run the policy pipeline,
// translate arguments into backend parameters and dispatch to controller actions.
package resolver

import (
	"slices"

	"github.com/graphql-go/graphql"

	"content-graphql/internal/action"
)

// Resolver is the closed set of resolver kinds: Disabled, Action, Custom and Field.
type Resolver interface {
	isResolver()
}

// Disabled removes an operation or field from the schema.
type Disabled struct{}

// Action dispatches to a registered controller action.
type Action struct {
	Ref action.Ref
}

// Custom runs a user function. The owning Config must name ResolverOf so the
// call is authorized like the action it stands in for.
type Custom struct {
	Fn CustomFunc
}

// Field is an already executable resolver of a non-root type field. It does
// not run policies.
type Field struct {
	Fn graphql.FieldResolveFn
}

func (Disabled) isResolver() {}
func (Action) isResolver()   {}
func (Custom) isResolver()   {}
func (Field) isResolver()    {}

// Call is the input of a custom resolver function.
type Call struct {
	Source any
	// Options are the arguments after amount limiting.
	Options map[string]any
	Info    graphql.ResolveInfo
}

// CustomFunc is a user-supplied resolver. Params and Query of the context are
// already converted from the call options.
type CustomFunc func(c *action.Context, call Call) (any, error)

// TransformFunc reshapes an action result before it is returned.
type TransformFunc func(any) any

// Config describes how one field is resolved.
type Config struct {
	Resolver        Resolver
	Policies        []string
	ResolverOf      string
	Plugin          string
	Description     string
	TransformOutput TransformFunc
	// ArgsFromSource makes a non-root field read its arguments from the parent
	// object, so a connection's `values` re-runs the list query it was built from.
	ArgsFromSource bool
}

// IsDisabled reports whether the config disables its field.
func (c Config) IsDisabled() bool {
	_, disabled := c.Resolver.(Disabled)
	return disabled
}

// Merge overlays other on c. Zero-valued fields of other keep c's values, so a
// partial override (policies only, description only) leaves the resolver intact.
func (c Config) Merge(other Config) Config {
	out := c
	out.Policies = slices.Clone(c.Policies)
	if other.Resolver != nil {
		out.Resolver = other.Resolver
	}
	if other.Policies != nil {
		out.Policies = slices.Clone(other.Policies)
	}
	if other.ResolverOf != "" {
		out.ResolverOf = other.ResolverOf
	}
	if other.Plugin != "" {
		out.Plugin = other.Plugin
	}
	if other.Description != "" {
		out.Description = other.Description
	}
	if other.TransformOutput != nil {
		out.TransformOutput = other.TransformOutput
	}
	if other.ArgsFromSource {
		out.ArgsFromSource = true
	}
	return out
}

// Map holds resolver configs by type name and field name.
type Map map[string]map[string]Config

// Set stores the config of typeName.field, replacing any previous one.
func (m Map) Set(typeName, field string, cfg Config) {
	fields, ok := m[typeName]
	if !ok {
		fields = make(map[string]Config)
		m[typeName] = fields
	}
	fields[field] = cfg
}

// Get returns the config of typeName.field.
func (m Map) Get(typeName, field string) (Config, bool) {
	cfg, ok := m[typeName][field]
	return cfg, ok
}

// Delete removes typeName.field.
func (m Map) Delete(typeName, field string) {
	delete(m[typeName], field)
	if len(m[typeName]) == 0 {
		delete(m, typeName)
	}
}

// Merge overlays other onto m. Configs present on both sides are merged with
// Config.Merge, so other wins field by field.
func (m Map) Merge(other Map) {
	for typeName, fields := range other {
		for field, cfg := range fields {
			if base, ok := m.Get(typeName, field); ok {
				cfg = base.Merge(cfg)
			}
			m.Set(typeName, field, cfg)
		}
	}
}
