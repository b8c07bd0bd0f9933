package schema

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"os"

	"github.com/graphql-go/graphql"
	"gopkg.in/yaml.v3"

	"content-graphql/internal/action"
	"content-graphql/internal/resolver"
	"content-graphql/internal/sdl"
)

// CustomSchema is a plugin or user extension merged on top of the generated
// schema. Query and Mutation hold field definitions in SDL (`name(args): Type`).
//
//	definition: |
//	  type Stats { articles: Int }
//	query: |
//	  stats: Stats
//	type:
//	  Article:
//	    _description: A blog article
//	    internalNote: false
//	resolver:
//	  Query:
//	    articles: false
//	    stats:
//	      resolver: application::stats.compute
//	      policies: [isAuthenticated]
type CustomSchema struct {
	// Plugin scopes bare action paths and policy names of this schema.
	Plugin     string                                 `yaml:"plugin"`
	Definition string                                 `yaml:"definition"`
	Query      string                                 `yaml:"query"`
	Mutation   string                                 `yaml:"mutation"`
	Types      map[string]TypeOverride                `yaml:"type"`
	Resolvers  map[string]map[string]ResolverOverride `yaml:"resolver"`
}

// TypeOverride changes a generated type: its description and, per field,
// `false` to remove the field or a string to describe it.
type TypeOverride struct {
	Description string
	Fields      map[string]FieldOverride
}

// FieldOverride is one field entry of a TypeOverride.
type FieldOverride struct {
	Disabled    bool
	Description string
}

// UnmarshalYAML decodes `{_description: ..., field: false|"description"}`.
func (t *TypeOverride) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return errors.New("type override must be a mapping")
	}
	t.Fields = make(map[string]FieldOverride)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i].Value, node.Content[i+1]
		if key == "_description" {
			t.Description = value.Value
			continue
		}
		var field FieldOverride
		switch {
		case value.Kind == yaml.ScalarNode && value.Tag == "!!bool":
			var enabled bool
			if err := value.Decode(&enabled); err != nil {
				return fmt.Errorf("field %q: %w", key, err)
			}
			field.Disabled = !enabled
		case value.Kind == yaml.ScalarNode:
			field.Description = value.Value
		default:
			return fmt.Errorf("field %q: expected false or a description", key)
		}
		t.Fields[key] = field
	}
	return nil
}

// ResolverOverride configures one resolver. In YAML it is `false` (disable), an
// action path, or a mapping. Custom and Field can only be set from Go.
type ResolverOverride struct {
	Disabled    bool
	Action      string
	Policies    []string
	ResolverOf  string
	Description string

	Custom          resolver.CustomFunc
	Field           graphql.FieldResolveFn
	TransformOutput resolver.TransformFunc
}

type resolverOverrideYAML struct {
	Resolver    string   `yaml:"resolver"`
	Policies    []string `yaml:"policies"`
	ResolverOf  string   `yaml:"resolverOf"`
	Description string   `yaml:"description"`
}

// UnmarshalYAML decodes the scalar and mapping forms.
func (r *ResolverOverride) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!bool" {
			var enabled bool
			if err := node.Decode(&enabled); err != nil {
				return err
			}
			r.Disabled = !enabled
			return nil
		}
		r.Action = node.Value
		return nil
	case yaml.MappingNode:
		var raw resolverOverrideYAML
		if err := node.Decode(&raw); err != nil {
			return err
		}
		r.Action = raw.Resolver
		r.Policies = raw.Policies
		r.ResolverOf = raw.ResolverOf
		r.Description = raw.Description
		return nil
	}
	return errors.New("resolver override must be false, an action path or a mapping")
}

// Config converts the override into a resolver config. Unset fields stay zero
// so merging keeps the generated values.
func (r ResolverOverride) Config(plugin string) (resolver.Config, error) {
	cfg := resolver.Config{
		Policies:        r.Policies,
		ResolverOf:      r.ResolverOf,
		Description:     r.Description,
		TransformOutput: r.TransformOutput,
		Plugin:          plugin,
	}
	switch {
	case r.Disabled:
		cfg.Resolver = resolver.Disabled{}
	case r.Field != nil:
		cfg.Resolver = resolver.Field{Fn: r.Field}
	case r.Custom != nil:
		cfg.Resolver = resolver.Custom{Fn: r.Custom}
	case r.Action != "":
		ref, err := action.ParseRef(r.Action, plugin)
		if err != nil {
			return resolver.Config{}, err
		}
		cfg.Resolver = resolver.Action{Ref: ref}
	}
	return cfg, nil
}

// DecodeCustomSchema reads one YAML custom schema.
func DecodeCustomSchema(r io.Reader) (*CustomSchema, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var cs CustomSchema
	if err := dec.Decode(&cs); err != nil {
		if errors.Is(err, io.EOF) {
			return &cs, nil
		}
		return nil, fmt.Errorf("decode custom schema: %w", err)
	}
	return &cs, nil
}

// LoadCustomSchema reads a YAML custom schema file.
func LoadCustomSchema(path string) (*CustomSchema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	cs, err := DecodeCustomSchema(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cs, nil
}

func (cs *CustomSchema) source() string {
	if cs.Plugin != "" {
		return "plugin::" + cs.Plugin
	}
	return LayerUser
}

// Fragment compiles the custom schema into a fragment.
func (cs *CustomSchema) Fragment() (*Fragment, error) {
	wrap := func(err error) error {
		return &CompileError{Kind: KindCustom, Subject: cs.source(), Err: err}
	}

	f := NewFragment()
	f.AddDefinition(cs.Definition)

	query, err := sdl.ParseFieldLines(cs.Query)
	if err != nil {
		return nil, wrap(fmt.Errorf("query: %w", err))
	}
	mutation, err := sdl.ParseFieldLines(cs.Mutation)
	if err != nil {
		return nil, wrap(fmt.Errorf("mutation: %w", err))
	}
	f.Query, f.Mutation = query, mutation

	resolvers, err := cs.resolverMap()
	if err != nil {
		return nil, wrap(err)
	}
	f.Resolvers = resolvers
	return f, nil
}

func (cs *CustomSchema) resolverMap() (resolver.Map, error) {
	out := resolver.Map{}
	for _, typeName := range sdl.SortedKeys(cs.Resolvers) {
		fields := cs.Resolvers[typeName]
		for _, field := range sdl.SortedKeys(fields) {
			cfg, err := fields[field].Config(cs.Plugin)
			if err != nil {
				return nil, fmt.Errorf("resolver %s.%s: %w", typeName, field, err)
			}
			out.Set(typeName, field, cfg)
		}
	}
	return out, nil
}

// Overrides is the merged view of every custom schema that the composer
// consults: disabled operations and fields, descriptions and resolver configs.
type Overrides struct {
	types     map[string]TypeOverride
	resolvers resolver.Map
}

// NewOverrides merges custom schemas in order; later schemas win.
func NewOverrides(schemas ...*CustomSchema) (*Overrides, error) {
	o := &Overrides{types: make(map[string]TypeOverride), resolvers: resolver.Map{}}
	for _, cs := range schemas {
		if cs == nil {
			continue
		}
		for typeName, override := range cs.Types {
			merged := o.types[typeName]
			if override.Description != "" {
				merged.Description = override.Description
			}
			if merged.Fields == nil {
				merged.Fields = make(map[string]FieldOverride)
			}
			maps.Copy(merged.Fields, override.Fields)
			o.types[typeName] = merged
		}
		resolvers, err := cs.resolverMap()
		if err != nil {
			return nil, &CompileError{Kind: KindCustom, Subject: cs.source(), Err: err}
		}
		o.resolvers.Merge(resolvers)
	}
	return o, nil
}

// Resolver returns the override config of typeName.field.
func (o *Overrides) Resolver(typeName, field string) (resolver.Config, bool) {
	if o == nil {
		return resolver.Config{}, false
	}
	return o.resolvers.Get(typeName, field)
}

// QueryEnabled reports whether a root query is not disabled.
func (o *Overrides) QueryEnabled(name string) bool {
	cfg, ok := o.Resolver("Query", name)
	return !ok || !cfg.IsDisabled()
}

// MutationEnabled reports whether a root mutation is not disabled.
func (o *Overrides) MutationEnabled(name string) bool {
	cfg, ok := o.Resolver("Mutation", name)
	return !ok || !cfg.IsDisabled()
}

// FieldEnabled reports whether a type field is not disabled.
func (o *Overrides) FieldEnabled(typeName, field string) bool {
	if o == nil {
		return true
	}
	if o.types[typeName].Fields[field].Disabled {
		return false
	}
	cfg, ok := o.resolvers.Get(typeName, field)
	return !ok || !cfg.IsDisabled()
}

// TypeDescription returns the description override of a type.
func (o *Overrides) TypeDescription(typeName string) string {
	if o == nil {
		return ""
	}
	return o.types[typeName].Description
}

// FieldDescription returns the description override of a type field.
func (o *Overrides) FieldDescription(typeName, field string) string {
	if o == nil {
		return ""
	}
	return o.types[typeName].Fields[field].Description
}
