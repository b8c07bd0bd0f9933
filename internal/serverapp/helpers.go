package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"content-graphql/internal/backend"
	"content-graphql/internal/backend/sqlstore"
	"content-graphql/internal/config"
	"content-graphql/internal/contentmodel"
	"content-graphql/internal/dbexec"
	"content-graphql/internal/engine"
	"content-graphql/internal/logging"
	"content-graphql/internal/middleware"
	"content-graphql/internal/observability"
	"content-graphql/internal/schemarefresh"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	graphqlPath = "/graphql"
	healthPath  = "/health"
	metricsPath = "/metrics"
	reloadPath  = "/admin/reload-schema"
)

func otlpExporterConfig(c config.OTLPConfig) observability.OTLPExporterConfig {
	return observability.OTLPExporterConfig{
		Endpoint:          c.Endpoint,
		Protocol:          c.Protocol,
		Insecure:          c.Insecure,
		TLSCertFile:       c.TLSCertFile,
		TLSClientCertFile: c.TLSClientCertFile,
		TLSClientKeyFile:  c.TLSClientKeyFile,
		Headers:           c.Headers,
		Timeout:           c.Timeout,
		Compression:       c.Compression,
		RetryEnabled:      c.RetryEnabled,
		RetryMaxAttempts:  c.RetryMaxAttempts,
	}
}

// InitLogger builds the process logger and, when log export is enabled, the
// OTLP logger provider feeding it.
func InitLogger(cfg *config.Config) (*logging.Logger, *observability.LoggerProvider, error) {
	loggerCfg := logging.Config{
		Level:       cfg.Observability.Logging.Level,
		Format:      cfg.Observability.Logging.Format,
		ServiceName: cfg.Observability.ServiceName,
	}
	logger := logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	if !cfg.Observability.Logging.ExportsEnabled {
		return logger, nil, nil
	}

	logsConfig := cfg.Observability.GetLogsConfig()
	logger.Info("initializing OpenTelemetry logging",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("service_version", cfg.Observability.ServiceVersion),
		slog.String("environment", cfg.Observability.Environment),
		slog.String("otlp_endpoint", logsConfig.Endpoint),
		slog.String("otlp_protocol", logsConfig.Protocol),
		slog.Bool("insecure", logsConfig.Insecure),
	)

	loggerProvider, err := observability.InitLoggerProvider(observability.Config{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Environment:    cfg.Observability.Environment,
		OTLPConfig:     otlpExporterConfig(logsConfig),
	})
	if err != nil {
		return nil, nil, err
	}

	logger.Info("OpenTelemetry logging initialized successfully")

	loggerCfg.LoggerProvider = loggerProvider.Provider()
	logger = logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	return logger, loggerProvider, nil
}

func initMetrics(cfg *config.Config, logger *logging.Logger, t *telemetry) error {
	if !cfg.Observability.MetricsEnabled {
		return nil
	}

	logger.Info("initializing OpenTelemetry metrics",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("service_version", cfg.Observability.ServiceVersion),
		slog.String("environment", cfg.Observability.Environment),
	)

	var err error
	if t.meter, err = observability.InitMeterProvider(observability.Config{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Environment:    cfg.Observability.Environment,
	}); err != nil {
		return err
	}
	if t.graphql, err = observability.InitMetrics(logger.Logger); err != nil {
		return err
	}
	if t.refresh, err = observability.InitSchemaRefreshMetrics(logger.Logger); err != nil {
		return err
	}
	if t.security, err = observability.InitSecurityMetrics(); err != nil {
		return err
	}
	logger.Info("OpenTelemetry metrics initialized successfully")
	return nil
}

func initTracing(cfg *config.Config, logger *logging.Logger) (*observability.TracerProvider, error) {
	if !cfg.Observability.TracingEnabled {
		return nil, nil
	}

	tracesConfig := cfg.Observability.GetTracesConfig()
	logger.Info("initializing OpenTelemetry tracing",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("otlp_endpoint", tracesConfig.Endpoint),
		slog.String("otlp_protocol", tracesConfig.Protocol),
		slog.Float64("sample_ratio", cfg.Observability.TraceSampleRatio),
	)

	tracerProvider, err := observability.InitTracerProvider(observability.Config{
		ServiceName:      cfg.Observability.ServiceName,
		ServiceVersion:   cfg.Observability.ServiceVersion,
		Environment:      cfg.Observability.Environment,
		TraceSampleRatio: cfg.Observability.TraceSampleRatio,
		OTLPConfig:       otlpExporterConfig(tracesConfig),
	})
	if err != nil {
		return nil, err
	}

	logger.Info("OpenTelemetry tracing initialized successfully")
	return tracerProvider, nil
}

func connectDB(cfg *config.Config, logger *logging.Logger) (*sql.DB, interface{ Unregister() error }, error) {
	// Custom TLS configs must be registered before the DSN references them.
	if err := cfg.Database.RegisterTLS(); err != nil {
		return nil, nil, fmt.Errorf("failed to register database TLS config: %w", err)
	}
	dsn := cfg.Database.DSN()

	if !cfg.Observability.MetricsEnabled && !cfg.Observability.TracingEnabled {
		db, err := sql.Open("mysql", dsn)
		if err != nil {
			return nil, nil, err
		}
		return db, nil, nil
	}

	opts := []otelsql.Option{
		otelsql.WithAttributes(semconv.DBSystemMySQL),
	}
	if cfg.Observability.TracingEnabled {
		opts = append(opts, otelsql.WithSpanOptions(otelsql.SpanOptions{
			DisableErrSkip: true,
		}))
	}
	sqlCommenter := cfg.Observability.SQLCommenterEnabled && cfg.Observability.TracingEnabled
	if sqlCommenter {
		opts = append(opts, otelsql.WithSQLCommenter(true))
	} else if cfg.Observability.SQLCommenterEnabled {
		logger.Warn("SQLCommenter requires tracing to be enabled - skipping SQLCommenter")
	}

	db, err := otelsql.Open("mysql", dsn, opts...)
	if err != nil {
		return nil, nil, err
	}

	var dbStatsReg interface{ Unregister() error }
	if cfg.Observability.MetricsEnabled {
		dbStatsReg, err = otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(semconv.DBSystemMySQL))
		if err != nil {
			logger.Warn("failed to register DB stats metrics", slog.String("error", err.Error()))
		}
	}

	logger.Info("database instrumentation enabled",
		slog.Bool("metrics", cfg.Observability.MetricsEnabled),
		slog.Bool("tracing", cfg.Observability.TracingEnabled),
		slog.Bool("sqlcommenter", sqlCommenter),
	)
	return db, dbStatsReg, nil
}

func configureDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB, databaseName string) error {
	db.SetMaxOpenConns(cfg.Database.Pool.MaxOpen)
	db.SetMaxIdleConns(cfg.Database.Pool.MaxIdle)
	db.SetConnMaxLifetime(cfg.Database.Pool.MaxLifetime)

	if err := waitForDatabase(ctx, cfg, logger, db); err != nil {
		return err
	}

	logger.Info("connected to database",
		slog.String("database", databaseName),
		slog.Int("pool_max_open", cfg.Database.Pool.MaxOpen),
		slog.Int("pool_max_idle", cfg.Database.Pool.MaxIdle),
		slog.Duration("pool_max_lifetime", cfg.Database.Pool.MaxLifetime),
	)
	return nil
}

func waitForDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB) error {
	timeout := cfg.Database.ConnectionTimeout
	interval := cfg.Database.ConnectionRetryInterval
	if interval <= 0 {
		interval = time.Second
	}

	// Zero timeout means a single attempt.
	if timeout == 0 {
		return db.PingContext(ctx)
	}

	deadline := time.Now().Add(timeout)
	for attempt := 1; ; attempt++ {
		err := db.PingContext(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("database connection established", slog.Int("attempts", attempt))
			}
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("database not available after %v: %w", timeout, err)
		}

		logger.Warn("database not ready, retrying...",
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", interval),
			slog.String("error", err.Error()),
		)
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		// Exponential backoff, capped at 30s
		interval = min(interval*2, 30*time.Second)
	}
}

// buildStore returns a factory binding one SQL store per compiled model set.
func buildStore(cfg *config.Config, logger *logging.Logger, db *sql.DB) StoreFactory {
	executor := dbexec.NewSlowQueryExecutor(dbexec.NewStandardExecutor(db), cfg.Database.SlowQueryThreshold, logger)
	storeLogger := logger.WithFields(slog.String("component", "sqlstore"))
	return func(registry *contentmodel.Registry) backend.Provider {
		return sqlstore.New(sqlstore.Options{
			Executor:         executor,
			Registry:         registry,
			Logger:           storeLogger,
			AutoIncrementIDs: cfg.Database.AutoIncrementIDs,
		})
	}
}

func startSchemaManager(ctx context.Context, cfg *config.Config, logger *logging.Logger, compile CompileOptions, graphqlMetrics *observability.GraphQLMetrics, refreshMetrics *observability.SchemaRefreshMetrics) (*schemarefresh.Manager, context.CancelFunc, error) {
	var loaderMetrics engine.LoaderRecorder
	if graphqlMetrics != nil {
		loaderMetrics = graphqlMetrics
	}
	schemaFiles := append([]string{}, cfg.GraphQL.PluginSchemas...)
	if cfg.GraphQL.SchemaFile != "" {
		schemaFiles = append(schemaFiles, cfg.GraphQL.SchemaFile)
	}

	managerCfg := schemarefresh.Config{
		Build:       newBuildFunc(cfg, compile, loaderMetrics),
		ModelsDir:   cfg.GraphQL.ModelsDir,
		SchemaFiles: schemaFiles,
		Playground:  cfg.GraphQL.PlaygroundEnabled,
		Logger:      logger,
		MinInterval: cfg.GraphQL.RefreshMinInterval,
		MaxInterval: cfg.GraphQL.RefreshMaxInterval,
	}
	if refreshMetrics != nil {
		managerCfg.Metrics = refreshMetrics
	}
	manager, err := schemarefresh.NewManager(ctx, managerCfg)
	if err != nil {
		return nil, nil, err
	}

	schemaCtx, schemaCancel := context.WithCancel(context.Background())
	manager.Start(schemaCtx)

	return manager, schemaCancel, nil
}

func buildVerifier(ctx context.Context, cfg *config.Config, logger *logging.Logger) (middleware.TokenVerifier, string, error) {
	auth := cfg.Server.Auth
	switch {
	case auth.OIDCEnabled:
		verifier, err := middleware.NewOIDCVerifier(ctx, middleware.OIDCConfig{
			IssuerURL:     auth.OIDCIssuerURL,
			Audience:      auth.OIDCAudience,
			ClockSkew:     auth.ClockSkew,
			SkipTLSVerify: auth.OIDCSkipTLSVerify,
		}, logger)
		if err != nil {
			return nil, "", err
		}
		return verifier, auth.OIDCIssuerURL, nil
	case auth.JWTEnabled():
		return middleware.NewHMACVerifier(auth.JWTSecret, auth.ClockSkew), "jwt", nil
	default:
		return nil, "", nil
	}
}

func buildGraphQLHandler(ctx context.Context, cfg *config.Config, logger *logging.Logger, schemaHandler http.Handler, graphqlMetrics *observability.GraphQLMetrics, securityMetrics *observability.SecurityMetrics) (http.Handler, error) {
	// The chain is:
	//   request -> logging -> auth -> depth limit -> metrics -> tracing -> schema snapshot
	handler := middleware.GraphQLTracingMiddleware()(schemaHandler)

	if graphqlMetrics != nil {
		handler = middleware.GraphQLMetricsMiddleware(graphqlMetrics)(handler)
		logger.Info("GraphQL metrics middleware enabled")
	}

	handler = middleware.DepthLimitMiddleware(cfg.GraphQL.DepthLimit, graphqlMetrics)(handler)

	verifier, issuer, err := buildVerifier(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	var authMetrics middleware.AuthRecorder
	if securityMetrics != nil {
		authMetrics = securityMetrics
	}
	handler = middleware.AuthMiddleware(middleware.AuthConfig{
		Verifier:  verifier,
		RoleClaim: cfg.Server.Auth.RoleClaim,
		Issuer:    issuer,
	}, logger, authMetrics)(handler)
	if verifier != nil {
		logger.Info("bearer token authentication enabled", slog.String("issuer", issuer))
	} else {
		logger.Warn("bearer token authentication disabled - every request uses the public role")
	}

	return middleware.LoggingMiddleware(logger)(handler), nil
}

func buildAdminHandler(cfg *config.Config, logger *logging.Logger, manager *schemarefresh.Manager, securityMetrics *observability.SecurityMetrics) (http.Handler, error) {
	if !cfg.Server.Admin.SchemaReloadEnabled {
		return nil, nil
	}
	adminCfg := middleware.AdminTokenAuthConfig{
		Token:     cfg.Server.Admin.AuthToken,
		Operation: "schema_reload",
	}
	if securityMetrics != nil {
		adminCfg.Metrics = securityMetrics
	}
	adminAuth, err := middleware.AdminTokenAuthMiddleware(adminCfg)
	if err != nil {
		return nil, err
	}
	logger.Info("schema reload endpoint enabled", slog.String("path", reloadPath))
	return middleware.LoggingMiddleware(logger)(adminAuth(schemaReloadHandler(manager))), nil
}

func buildRouter(cfg *config.Config, logger *logging.Logger, db *sql.DB, graphqlHandler http.Handler, adminHandler http.Handler, meterProvider *observability.MeterProvider) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(graphqlPath, graphqlHandler)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, graphqlPath, http.StatusFound)
			return
		}
		http.NotFound(w, r)
	})

	mux.HandleFunc(healthPath, healthHandler(db, cfg.Server.HealthCheckTimeout))
	if cfg.Server.Admin.SchemaReloadEnabled && adminHandler != nil {
		mux.Handle(reloadPath, adminHandler)
	}

	if cfg.Observability.MetricsEnabled && meterProvider != nil {
		mux.Handle(metricsPath, promhttp.Handler())
		logger.Info("metrics endpoint enabled", slog.String("path", metricsPath))
	}

	return mux
}

func wrapHTTPHandler(cfg *config.Config, logger *logging.Logger, handler http.Handler) http.Handler {
	if cfg.Observability.MetricsEnabled || cfg.Observability.TracingEnabled {
		handler = otelhttp.NewHandler(handler, "http.server",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return httpRootSpanName(r)
			}),
			otelhttp.WithMessageEvents(otelhttp.ReadEvents, otelhttp.WriteEvents),
		)
		logger.Info("HTTP instrumentation enabled")
	}

	if cors := cfg.Server.CORS; cors.Enabled {
		handler = middleware.CORSMiddleware(middleware.CORSConfig(cors))(handler)
	}
	if limit := cfg.Server.RateLimit; limit.Enabled {
		handler = middleware.RateLimitMiddleware(middleware.RateLimitConfig(limit))(handler)
	}

	return handler
}

func httpRootSpanName(r *http.Request) string {
	if r == nil {
		return "HTTP /*"
	}

	method := strings.TrimSpace(r.Method)
	if method == "" {
		method = "HTTP"
	}

	return method + " " + normalizeHTTPSpanRoute(r.URL.Path)
}

func normalizeHTTPSpanRoute(rawPath string) string {
	switch rawPath {
	case "/", graphqlPath, healthPath, metricsPath, reloadPath:
		return rawPath
	default:
		return "/*"
	}
}

func buildServer(cfg *config.Config, handler http.Handler, serverAddr string) *http.Server {
	return &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func startServer(cfg *config.Config, logger *logging.Logger, srv *http.Server, serverAddr string) chan error {
	serverErrors := make(chan error, 1)
	go func() {
		logAttrs := []any{
			slog.String("address", serverAddr),
			slog.String("graphql_endpoint", graphqlPath),
			slog.String("health_endpoint", healthPath),
			slog.Int("depth_limit", cfg.GraphQL.DepthLimit),
			slog.Int("amount_limit", cfg.GraphQL.AmountLimit),
			slog.Bool("playground", cfg.GraphQL.PlaygroundEnabled),
			slog.String("log_level", cfg.Observability.Logging.Level),
		}
		if cfg.Observability.MetricsEnabled {
			logAttrs = append(logAttrs, slog.String("metrics_endpoint", metricsPath))
		}
		if limit := cfg.Server.RateLimit; limit.Enabled {
			logAttrs = append(logAttrs,
				slog.Float64("rate_limit_rps", limit.RPS),
				slog.Int("rate_limit_burst", limit.Burst),
			)
		}
		logger.Info("server starting", logAttrs...)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("server failed: %w", err)
		}
	}()
	return serverErrors
}

// healthHandler returns an HTTP handler for health checks
func healthHandler(db *sql.DB, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())
		w.Header().Set("Content-Type", "application/json")

		if db == nil {
			w.WriteHeader(http.StatusOK)
			_, _ = fmt.Fprint(w, `{"status":"healthy"}`)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			reqLogger.Error("health check failed",
				slog.String("error", err.Error()),
				slog.String("check", "database"),
			)
			w.WriteHeader(http.StatusServiceUnavailable)
			// Generic body; details stay in the log.
			_, _ = fmt.Fprint(w, `{"status":"unhealthy","database":"failed"}`)
			return
		}

		reqLogger.Debug("health check passed")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, `{"status":"healthy","database":"ok"}`)
	}
}

// schemaReloadTimeout bounds a reload triggered over HTTP or by SIGHUP.
const schemaReloadTimeout = 15 * time.Second

// schemaReloader is the part of the schema manager that reloads use.
type schemaReloader interface {
	RefreshNowContext(ctx context.Context) error
}

func schemaReloadHandler(manager schemaReloader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())
		w.Header().Set("Content-Type", "application/json")

		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			_, _ = fmt.Fprint(w, `{"error":"method not allowed"}`)
			return
		}

		reqLogger.Info("admin endpoint accessed",
			slog.String("operation", "schema_reload"),
			slog.String("remote_addr", r.RemoteAddr),
		)

		refreshCtx, refreshCancel := context.WithTimeout(r.Context(), schemaReloadTimeout)
		defer refreshCancel()

		if err := manager.RefreshNowContext(refreshCtx); err != nil {
			reqLogger.Error("schema reload failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = fmt.Fprint(w, `{"status":"error","message":"schema reload failed"}`)
			return
		}

		reqLogger.Info("schema reloaded successfully")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, `{"status":"ok"}`)
	}
}
