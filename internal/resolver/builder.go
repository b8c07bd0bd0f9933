package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/graphql-go/graphql"

	"content-graphql/internal/action"
	"content-graphql/internal/logging"
	"content-graphql/internal/policy"
)

// Recorder receives resolver metrics. observability.GraphQLMetrics implements it.
type Recorder interface {
	RecordResolverCall(ctx context.Context, operation, kind, outcome string, duration time.Duration)
	RecordPolicyShortCircuit(ctx context.Context, operation string)
}

// Options configures a Builder.
type Options struct {
	Actions  *action.Registry
	Policies *policy.Registry
	Limits   Limits
	Logger   *logging.Logger
	Metrics  Recorder
}

// Builder converts resolver configs into executable resolvers. All lookups
// happen at build time; the returned resolvers only read frozen state.
type Builder struct {
	actions  *action.Registry
	policies *policy.Registry
	limits   Limits
	logger   *logging.Logger
	metrics  Recorder
}

// NewBuilder creates a Builder.
func NewBuilder(opts Options) *Builder {
	if opts.Actions == nil {
		opts.Actions = action.NewRegistry()
	}
	if opts.Policies == nil {
		opts.Policies = policy.NewRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = &logging.Logger{Logger: slog.Default()}
	}
	return &Builder{
		actions:  opts.Actions,
		policies: opts.Policies,
		limits:   opts.Limits,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
}

// Limits returns the amount limits applied to every call.
func (b *Builder) Limits() Limits {
	return b.limits
}

type kind string

const (
	kindQuery    kind = "query"
	kindMutation kind = "mutation"
)

// target is the resolved dispatch of one operation.
type target struct {
	route    action.Route
	handler  action.Handler
	custom   CustomFunc
	pipeline *policy.Pipeline
}

func (b *Builder) resolveTarget(k kind, name string, cfg Config) (*target, error) {
	wrap := func(err error) error {
		return &BuildError{Kind: string(k), Operation: name, Err: err}
	}

	var t target
	var policyRef action.Ref
	switch r := cfg.Resolver.(type) {
	case nil:
		return nil, wrap(ErrNoResolver)
	case Disabled:
		return nil, wrap(ErrDisabled)
	case Field:
		return nil, wrap(ErrFieldResolverAtRoot)
	case Custom:
		if r.Fn == nil {
			return nil, wrap(ErrNoResolver)
		}
		if cfg.ResolverOf == "" {
			return nil, wrap(ErrMissingResolverOf)
		}
		ref, err := action.ParseRef(cfg.ResolverOf, cfg.Plugin)
		if err != nil {
			return nil, wrap(err)
		}
		t.custom = r.Fn
		policyRef = ref
	case Action:
		handler, err := b.actions.Lookup(r.Ref)
		if err != nil {
			return nil, wrap(err)
		}
		t.handler = handler
		policyRef = r.Ref
		if cfg.ResolverOf != "" {
			ref, err := action.ParseRef(cfg.ResolverOf, cfg.Plugin)
			if err != nil {
				return nil, wrap(err)
			}
			policyRef = ref
		}
	default:
		return nil, wrap(fmt.Errorf("unsupported resolver %T", r))
	}

	t.route = policyRef.Route()
	pipeline, err := policy.Build(b.policies, t.route, cfg.Policies)
	if err != nil {
		return nil, wrap(err)
	}
	t.pipeline = pipeline
	b.logger.Debug("resolver built",
		slog.String("kind", string(k)),
		slog.String("operation", name),
		slog.String("action", policyRef.String()),
		slog.Any("policies", pipeline.Names()),
	)
	return &t, nil
}

// BuildQuery returns the resolver of a query operation.
func (b *Builder) BuildQuery(name string, cfg Config) (graphql.FieldResolveFn, error) {
	t, err := b.resolveTarget(kindQuery, name, cfg)
	if err != nil {
		return nil, err
	}
	return b.wrap(kindQuery, name, cfg, t, func(c *action.Context, opts map[string]any) {
		c.Query = QueryParams(opts)
		c.Params = ConvertToParams(opts)
	}), nil
}

// BuildMutation returns the resolver of a mutation operation. `input.where`
// becomes the params and `input.data` the request body.
func (b *Builder) BuildMutation(name string, cfg Config) (graphql.FieldResolveFn, error) {
	t, err := b.resolveTarget(kindMutation, name, cfg)
	if err != nil {
		return nil, err
	}
	return b.wrap(kindMutation, name, cfg, t, func(c *action.Context, opts map[string]any) {
		input := mapArg(opts, "input")
		c.Params = ConvertToParams(mapArg(input, "where"))
		c.Query = ConvertToParams(without(opts, "input", "limit"))
		data := mapArg(input, "data")
		if data == nil {
			data = make(map[string]any)
		}
		c.Request.Body = data
	}), nil
}

type prepareFunc func(c *action.Context, opts map[string]any)

func (b *Builder) wrap(k kind, name string, cfg Config, t *target, prepare prepareFunc) graphql.FieldResolveFn {
	transform := cfg.TransformOutput
	return func(p graphql.ResolveParams) (result any, err error) {
		call := b.startCall(p.Context, k, name, t)
		defer func() { call.finish(err) }()
		ctx := call.ctx

		c := action.NewContext(ctx)
		opts := p.Args
		if cfg.ArgsFromSource {
			if src, ok := p.Source.(map[string]any); ok {
				opts = src
			}
		}
		if k == kindQuery {
			opts = b.limits.Apply(opts)
		}
		prepare(c, opts)

		if err := t.pipeline.Run(c); err != nil {
			call.outcome = outcomePolicyError
			return nil, toFieldError(err)
		}
		if halt, halted := c.Halted(); halted && truthy(halt) {
			call.outcome = outcomeShortCircuit
			if b.metrics != nil {
				b.metrics.RecordPolicyShortCircuit(ctx, name)
			}
			if haltErr, isErr := halt.(error); isErr {
				logging.FromContext(ctx).Debug("policy short-circuit", slog.String("operation", name), slog.String("error", haltErr.Error()))
				return nil, toFieldError(haltErr)
			}
			return halt, nil
		}

		var out any
		if t.custom != nil {
			out, err = t.custom(c, Call{Source: p.Source, Options: opts, Info: p.Info})
		} else {
			out, err = t.handler(c)
		}
		if err != nil {
			return nil, toFieldError(err)
		}
		if body, ok := c.Body(); ok {
			out = body
		}
		if outErr, isErr := out.(error); isErr {
			return nil, toFieldError(outErr)
		}
		if transform != nil {
			out = transform(out)
		}
		return out, nil
	}
}

// BuildField returns the resolver of a non-root field. Field resolvers are used
// as is; action and custom resolvers are dispatched like queries.
func (b *Builder) BuildField(typeName, fieldName string, cfg Config) (graphql.FieldResolveFn, error) {
	if f, ok := cfg.Resolver.(Field); ok {
		if f.Fn == nil {
			return nil, &BuildError{Kind: "field", Operation: typeName + "." + fieldName, Err: ErrNoResolver}
		}
		return f.Fn, nil
	}
	fn, err := b.BuildQuery(typeName+"."+fieldName, cfg)
	if err != nil {
		var buildErr *BuildError
		if errors.As(err, &buildErr) {
			buildErr.Kind = "field"
		}
		return nil, err
	}
	return fn, nil
}

// truthy decides whether a halted value answers the call. nil, false, empty
// strings, numeric zeros of any width and nil pointers do not; anything else
// does, including empty maps and slices, which are valid empty answers.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case error:
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return !rv.IsZero()
	case reflect.Pointer, reflect.Interface, reflect.Func, reflect.Chan:
		return !rv.IsNil()
	}
	return true
}
