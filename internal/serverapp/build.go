package serverapp

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"content-graphql/internal/action"
	"content-graphql/internal/backend"
	"content-graphql/internal/config"
	"content-graphql/internal/content"
	"content-graphql/internal/contentmodel"
	"content-graphql/internal/engine"
	"content-graphql/internal/logging"
	"content-graphql/internal/naming"
	"content-graphql/internal/permissions"
	"content-graphql/internal/policy"
	"content-graphql/internal/resolver"
	"content-graphql/internal/schema"
	"content-graphql/internal/schemarefresh"
)

// StoreFactory binds a backend to the models of one build.
type StoreFactory func(*contentmodel.Registry) backend.Provider

// CompileOptions carries the runtime collaborators of a schema build.
type CompileOptions struct {
	// Store backs the default controllers. Nil compiles a schema whose
	// resolvers fail when called, which is enough to print or validate it.
	Store           StoreFactory
	Logger          *logging.Logger
	ResolverMetrics resolver.Recorder
	Permissions     permissions.Recorder
}

// CompileSchema loads the model and schema files named by cfg and compiles
// them into an executable schema artifact.
func CompileSchema(ctx context.Context, cfg *config.Config, opts CompileOptions) (*schema.Artifact, error) {
	art, _, err := compile(ctx, cfg, opts)
	return art, err
}

func compile(ctx context.Context, cfg *config.Config, opts CompileOptions) (*schema.Artifact, backend.Provider, error) {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	gql := cfg.GraphQL

	models, err := contentmodel.LoadDir(gql.ModelsDir)
	if err != nil {
		return nil, nil, fmt.Errorf("load models: %w", err)
	}
	registry, err := contentmodel.NewRegistry(models...)
	if err != nil {
		return nil, nil, fmt.Errorf("register models: %w", err)
	}

	provider := unavailable
	if opts.Store != nil {
		provider = opts.Store(registry)
	}
	actions := action.NewRegistry()
	content.Register(actions, registry, provider, content.Options{Logger: opts.Logger})

	policies := policy.NewRegistry()
	perms, err := permissions.New(cfg.Permissions, opts.Permissions)
	if err != nil {
		return nil, nil, fmt.Errorf("permissions: %w", err)
	}
	perms.Install(policies)

	plugins := make([]*schema.CustomSchema, 0, len(gql.PluginSchemas))
	for _, path := range gql.PluginSchemas {
		cs, err := schema.LoadCustomSchema(path)
		if err != nil {
			return nil, nil, fmt.Errorf("load plugin schema: %w", err)
		}
		if cs.Plugin == "" {
			cs.Plugin = pluginNameFromPath(path)
		}
		plugins = append(plugins, cs)
	}
	var user *schema.CustomSchema
	if gql.SchemaFile != "" {
		if user, err = schema.LoadCustomSchema(gql.SchemaFile); err != nil {
			return nil, nil, fmt.Errorf("load schema file: %w", err)
		}
	}

	art, err := schema.Build(ctx, schema.Options{
		Registry:          registry,
		Actions:           actions,
		Policies:          policies,
		Provider:          provider,
		Namer:             naming.New(cfg.Naming, opts.Logger.Logger),
		Filter:            cfg.SchemaFilters,
		Limits:            resolver.Limits{AmountLimit: gql.AmountLimit},
		DisableShadowCRUD: !gql.ShadowCRUD,
		Plugins:           plugins,
		User:              user,
		Logger:            opts.Logger,
		Metrics:           opts.ResolverMetrics,
	})
	if err != nil {
		return nil, nil, err
	}
	opts.Logger.Info("schema compiled",
		slog.Int("models", len(models)),
		slog.Int("plugins", len(plugins)),
		slog.Bool("shadow_crud", gql.ShadowCRUD),
	)
	return art, provider, nil
}

// unavailable backs schemas compiled without storage.
var unavailable backend.Provider = backend.ProviderFunc(func(uid string) (backend.Query, error) {
	return nil, fmt.Errorf("%w: %s", backend.ErrUnavailable, uid)
})

// pluginNameFromPath names an unscoped plugin schema after its file.
func pluginNameFromPath(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}

// newBuildFunc returns the rebuild callback of the schema manager.
func newBuildFunc(cfg *config.Config, opts CompileOptions, loaderMetrics engine.LoaderRecorder) schemarefresh.BuildFunc {
	return func(ctx context.Context) (*engine.Engine, error) {
		art, provider, err := compile(ctx, cfg, opts)
		if err != nil {
			return nil, err
		}
		return engine.New(art, engine.Options{
			Provider: provider,
			Logger:   opts.Logger,
			Metrics:  loaderMetrics,
		})
	}
}
