package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"content-graphql/internal/observability"
	"content-graphql/internal/schemarefresh"
)

// telemetry is the optional OpenTelemetry state. Each field stays nil when
// its signal is disabled.
type telemetry struct {
	meter    *observability.MeterProvider
	tracer   *observability.TracerProvider
	graphql  *observability.GraphQLMetrics
	refresh  *observability.SchemaRefreshMetrics
	security *observability.SecurityMetrics
}

// compileOptions hands the recorders to the schema build. Typed nil
// pointers must not reach the recorder interfaces.
func (t telemetry) compileOptions(store StoreFactory, a *App) CompileOptions {
	opts := CompileOptions{Store: store, Logger: a.logger}
	if t.graphql != nil {
		opts.ResolverMetrics = t.graphql
	}
	if t.security != nil {
		opts.Permissions = t.security
	}
	return opts
}

// Init acquires everything the server needs, in order: telemetry, the
// database and content store, the compiled schema, then the HTTP stack. A
// failure releases whatever was acquired so far. Init is idempotent.
func (a *App) Init(ctx context.Context) error {
	a.stateMu.Lock()
	done := a.initialized
	a.stateMu.Unlock()
	if done {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var cleanup closers
	committed := false
	defer func() {
		if !committed {
			_ = cleanup.close(context.Background(), a.logger)
		}
	}()

	tel, err := a.initTelemetry(&cleanup)
	if err != nil {
		return err
	}

	db, err := a.openDatabase(ctx, &cleanup)
	if err != nil {
		return err
	}
	store := buildStore(a.cfg, a.logger, db)

	manager, schemaCancel, err := startSchemaManager(ctx, a.cfg, a.logger, tel.compileOptions(store, a), tel.graphql, tel.refresh)
	if err != nil {
		return fmt.Errorf("failed to initialize schema manager: %w", err)
	}
	cleanup.push("schema manager", func(shutdownCtx context.Context) error {
		schemaCancel()
		return manager.Wait(shutdownCtx)
	})

	graphqlHandler, adminHandler, err := a.buildHandlers(ctx, manager, tel)
	if err != nil {
		return err
	}
	mux := buildRouter(a.cfg, a.logger, db, graphqlHandler, adminHandler, tel.meter)
	handler := wrapHTTPHandler(a.cfg, a.logger, mux)
	serverAddr := fmt.Sprintf(":%d", a.cfg.Server.Port)
	srv := buildServer(a.cfg, handler, serverAddr)
	cleanup.push("HTTP server", srv.Shutdown)

	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.reloader = manager
	a.handler = handler
	a.serverAddr = serverAddr
	a.srv = srv
	a.cleanup = cleanup
	a.initialized = true
	committed = true
	return nil
}

func (a *App) initTelemetry(cleanup *closers) (telemetry, error) {
	var tel telemetry
	if a.loggerProvider != nil {
		cleanup.push("logger provider", func(ctx context.Context) error {
			return a.loggerProvider.Shutdown(ctx, a.logger.Logger)
		})
	}

	err := initMetrics(a.cfg, a.logger, &tel)
	if tel.meter != nil {
		cleanup.push("meter provider", func(ctx context.Context) error {
			return tel.meter.Shutdown(ctx, a.logger.Logger)
		})
	}
	if err != nil {
		return tel, fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
	}

	if tel.tracer, err = initTracing(a.cfg, a.logger); err != nil {
		return tel, fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
	}
	if tel.tracer != nil {
		cleanup.push("tracer provider", func(ctx context.Context) error {
			return tel.tracer.Shutdown(ctx, a.logger.Logger)
		})
	}
	return tel, nil
}

func (a *App) openDatabase(ctx context.Context, cleanup *closers) (*sql.DB, error) {
	a.logger.Info("connecting to database",
		slog.String("host", a.cfg.Database.Host),
		slog.Int("port", a.cfg.Database.Port),
		slog.String("database", a.databaseName),
		slog.Bool("dsn_present", a.dsnPresent),
	)

	db, statsReg, err := connectDB(a.cfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	cleanup.push("database", func(context.Context) error {
		if statsReg != nil {
			if err := statsReg.Unregister(); err != nil {
				a.logger.Warn("failed to unregister DB stats metrics", slog.String("error", err.Error()))
			}
		}
		return db.Close()
	})

	if err := configureDatabase(ctx, a.cfg, a.logger, db, a.databaseName); err != nil {
		return nil, fmt.Errorf("failed to verify database connection: %w", err)
	}
	return db, nil
}

func (a *App) buildHandlers(ctx context.Context, manager *schemarefresh.Manager, tel telemetry) (http.Handler, http.Handler, error) {
	graphqlHandler, err := buildGraphQLHandler(ctx, a.cfg, a.logger, manager, tel.graphql, tel.security)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize GraphQL handler: %w", err)
	}
	adminHandler, err := buildAdminHandler(a.cfg, a.logger, manager, tel.security)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize admin handler: %w", err)
	}
	return graphqlHandler, adminHandler, nil
}
