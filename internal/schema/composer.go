package schema

import (
	"log/slog"

	"content-graphql/internal/action"
	"content-graphql/internal/aggregation"
	"content-graphql/internal/backend"
	"content-graphql/internal/contentmodel"
	"content-graphql/internal/logging"
	"content-graphql/internal/naming"
	"content-graphql/internal/resolver"
	"content-graphql/internal/schemafilter"
	"content-graphql/internal/sdl"
	"content-graphql/internal/typebuilder"
)

// ListArgs are the arguments of every list query and collection association.
const ListArgs = "sort: String, limit: Int, start: Int, where: JSON"

// ComposerOptions configures a Composer.
type ComposerOptions struct {
	Registry  *contentmodel.Registry
	Namer     *naming.Namer
	Actions   *action.Registry
	Provider  backend.Provider
	Overrides *Overrides
	Filter    schemafilter.Config
	Limits    resolver.Limits
	Logger    *logging.Logger
}

// Composer generates the shadow CRUD fragment of each model: its object type,
// enums, dynamic zones, inputs, root operations and default field resolvers.
type Composer struct {
	registry     *contentmodel.Registry
	namer        *naming.Namer
	actions      *action.Registry
	provider     backend.Provider
	overrides    *Overrides
	filter       schemafilter.Config
	limits       resolver.Limits
	logger       *logging.Logger
	types        *typebuilder.Builder
	inputs       *typebuilder.Builder
	aggregations *aggregation.Builder
}

// NewComposer creates a Composer.
func NewComposer(opts ComposerOptions) *Composer {
	if opts.Namer == nil {
		opts.Namer = naming.Default()
	}
	if opts.Actions == nil {
		opts.Actions = action.NewRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = &logging.Logger{Logger: slog.Default()}
	}
	c := &Composer{
		registry:  opts.Registry,
		namer:     opts.Namer,
		actions:   opts.Actions,
		provider:  opts.Provider,
		overrides: opts.Overrides,
		filter:    opts.Filter,
		limits:    opts.Limits,
		logger:    opts.Logger,
	}
	c.types = typebuilder.New(opts.Registry, opts.Namer, c.fieldEnabled)
	c.inputs = typebuilder.New(opts.Registry, opts.Namer, c.inputEnabled)
	c.aggregations = aggregation.New(opts.Provider, opts.Namer)
	return c
}

// fieldEnabled hides private attributes, filtered attributes, fields disabled by
// an override and relations to models that are not exposed.
func (c *Composer) fieldEnabled(m *contentmodel.Model, attr string) bool {
	if m.IsPrivate(attr) || !schemafilter.AttributeAllowed(m.Name, attr, c.filter) {
		return false
	}
	if !c.overrides.FieldEnabled(m.GlobalID, attr) {
		return false
	}
	if assoc, ok := m.Association(attr); ok && !assoc.IsMorph() {
		target, found := c.registry.Lookup(assoc.Target)
		return found && schemafilter.ModelAllowed(target, c.filter)
	}
	return true
}

func (c *Composer) inputEnabled(m *contentmodel.Model, attr string) bool {
	return c.fieldEnabled(m, attr) && schemafilter.MutationAttributeAllowed(m.Name, attr, c.filter)
}

// ComposeModel generates the fragment of one model or component.
func (c *Composer) ComposeModel(m *contentmodel.Model) (*Fragment, error) {
	wrap := func(err error) error {
		return &CompileError{Kind: KindModel, Subject: m.UID, Err: err}
	}

	f := NewFragment()
	fields, err := c.BaseFields(m)
	if err != nil {
		return nil, wrap(err)
	}
	enums, err := c.types.GenerateEnums(m)
	if err != nil {
		return nil, wrap(err)
	}
	zones, err := c.types.GenerateDynamicZones(m)
	if err != nil {
		return nil, wrap(err)
	}
	f.AddDefinition(enums)
	f.AddDefinition(zones)

	description := m.Description
	if d := c.overrides.TypeDescription(m.GlobalID); d != "" {
		description = d
	}
	f.AddDefinition(sdl.Object("type", m.GlobalID, description, fields))
	c.addTypeResolvers(f, m)

	switch {
	case m.IsComponent():
		input, err := c.inputs.GenerateInputModel(m, m.GlobalID, typebuilder.InputOptions{AllowIDs: true})
		if err != nil {
			return nil, wrap(err)
		}
		f.AddDefinition(input)
	case m.IsSingleType():
		if err := c.composeSingleType(f, m); err != nil {
			return nil, wrap(err)
		}
	default:
		if err := c.composeCollectionType(f, m, fields); err != nil {
			return nil, wrap(err)
		}
	}

	c.logger.Debug("model composed",
		slog.String("model", m.UID),
		slog.String("type", m.GlobalID),
		slog.Int("fields", fields.Len()),
		slog.Any("queries", f.Query.Names()),
		slog.Any("mutations", f.Mutation.Names()),
	)
	return f, nil
}

// BaseFields returns the object type fields of a model: the id, timestamps and
// every exposed attribute. Collection associations take list arguments.
func (c *Composer) BaseFields(m *contentmodel.Model) (*sdl.Fields, error) {
	fields := sdl.NewFields(sdl.Field{Name: "id", Type: "ID!"})
	for _, name := range m.TimestampFields() {
		if c.fieldEnabled(m, name) {
			fields.Set(sdl.Field{Name: name, Type: "DateTime!", Description: c.overrides.FieldDescription(m.GlobalID, name)})
		}
	}
	for _, attr := range m.Attributes {
		if !c.fieldEnabled(m, attr.Name) {
			continue
		}
		typ, err := c.types.ConvertType(attr, m, attr.Name, typebuilder.RootQuery, typebuilder.ActionNone)
		if err != nil {
			return nil, err
		}
		f := sdl.Field{Name: attr.Name, Type: typ, Description: attr.Description}
		if d := c.overrides.FieldDescription(m.GlobalID, attr.Name); d != "" {
			f.Description = d
		}
		if assoc, ok := m.Association(attr.Name); ok && assoc.IsCollection() {
			f.Args = ListArgs
		}
		fields.Set(f)
	}
	return fields, nil
}

func (c *Composer) composeCollectionType(f *Fragment, m *contentmodel.Model, fields *sdl.Fields) error {
	singular := c.namer.SingularQueryName(m.GlobalID)
	plural := c.namer.PluralQueryName(m.GlobalID)

	if cfg, ok := c.operationConfig("Query", m, singular, "findOne", nil); ok {
		name := c.namer.RegisterQueryField(singular, m.UID)
		f.Query.Set(sdl.Field{Name: name, Args: "id: ID!", Type: m.GlobalID})
		f.Resolvers.Set("Query", name, cfg)
	}
	if cfg, ok := c.operationConfig("Query", m, plural, "find", nil); ok {
		name := c.namer.RegisterQueryField(plural, m.UID)
		f.Query.Set(sdl.Field{Name: name, Args: ListArgs, Type: "[" + m.GlobalID + "]"})
		f.Resolvers.Set("Query", name, cfg)

		if c.overrides.QueryEnabled(aggregation.ConnectionQueryName(name)) {
			res, err := c.aggregations.Build(aggregation.Input{Model: m, Fields: fields, PluralName: name, Values: cfg})
			if err != nil {
				return err
			}
			f.AddDefinition(res.Definition)
			for _, q := range res.Query.List() {
				if registered := c.namer.RegisterQueryField(q.Name, m.UID); registered != q.Name {
					qcfg, _ := res.Resolvers.Get("Query", q.Name)
					res.Resolvers.Delete("Query", q.Name)
					res.Resolvers.Set("Query", registered, qcfg)
					q.Name = registered
				}
				f.Query.Set(q)
			}
			f.Resolvers.Merge(res.Resolvers)
		}
	}
	return c.composeMutations(f, m, typebuilder.ActionCreate, typebuilder.ActionUpdate, typebuilder.ActionDelete)
}

func (c *Composer) composeSingleType(f *Fragment, m *contentmodel.Model) error {
	singular := c.namer.SingularQueryName(m.GlobalID)
	if cfg, ok := c.operationConfig("Query", m, singular, "find", nil); ok {
		name := c.namer.RegisterQueryField(singular, m.UID)
		f.Query.Set(sdl.Field{Name: name, Type: m.GlobalID})
		f.Resolvers.Set("Query", name, cfg)
	}
	return c.composeMutations(f, m, typebuilder.ActionUpdate, typebuilder.ActionDelete)
}

func (c *Composer) composeMutations(f *Fragment, m *contentmodel.Model, actions ...typebuilder.Action) error {
	input, err := c.inputs.GenerateInputModel(m, m.GlobalID, typebuilder.InputOptions{})
	if err != nil {
		return err
	}
	f.AddDefinition(input)
	if !schemafilter.MutationModelAllowed(m, c.filter) {
		c.logger.Debug("mutations filtered", slog.String("model", m.UID))
		return nil
	}

	singular := c.namer.SingularQueryName(m.GlobalID)
	for _, act := range actions {
		mutation := c.types.MutationName(m.GlobalID, act)
		cfg, ok := c.operationConfig("Mutation", m, mutation, string(act), wrapResult(singular))
		if !ok {
			continue
		}
		payload, err := c.inputs.GenerateInputPayloadArguments(m, m.GlobalID, act)
		if err != nil {
			return err
		}
		f.AddDefinition(payload)

		field := sdl.Field{Name: c.namer.RegisterMutationField(mutation, m.UID), Type: mutation + "Payload"}
		if !(m.IsSingleType() && act == typebuilder.ActionDelete) {
			field.Args = "input: " + mutation + "Input"
		}
		f.Mutation.Set(field)
		f.Resolvers.Set("Mutation", field.Name, cfg)
	}
	return nil
}

// operationConfig returns the resolver config of a generated root operation,
// or false when it is disabled by an override or its default action is not
// registered. Overrides that name their own resolver skip the action check;
// an unknown action there fails the build instead.
func (c *Composer) operationConfig(root string, m *contentmodel.Model, name, act string, transform resolver.TransformFunc) (resolver.Config, bool) {
	enabled := c.overrides.QueryEnabled(name)
	if root == "Mutation" {
		enabled = c.overrides.MutationEnabled(name)
	}
	if !enabled {
		c.logger.Debug("operation disabled", slog.String("root", root), slog.String("operation", name))
		return resolver.Config{}, false
	}

	ref := action.ModelRef(m.Scope(), m.Name, act)
	cfg := resolver.Config{Resolver: resolver.Action{Ref: ref}, Plugin: m.Plugin, TransformOutput: transform}
	override, hasOverride := c.overrides.Resolver(root, name)
	if !(hasOverride && override.Resolver != nil) && !c.actions.Exists(ref) {
		c.logger.Debug("operation skipped: action not registered",
			slog.String("root", root),
			slog.String("operation", name),
			slog.String("action", ref.String()),
		)
		return resolver.Config{}, false
	}
	if hasOverride {
		cfg = cfg.Merge(override)
	}
	return cfg, true
}

// wrapResult shapes a mutation result as its payload: {article: result}.
func wrapResult(singular string) resolver.TransformFunc {
	return func(result any) any {
		return map[string]any{singular: result}
	}
}
