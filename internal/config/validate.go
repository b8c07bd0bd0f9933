package config

import (
	"cmp"
	"fmt"
	"net"
	"net/url"
	"path"
	"slices"
	"strings"

	"content-graphql/internal/naming"
	"content-graphql/internal/permissions"
	"content-graphql/internal/schemafilter"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (r *ValidationResult) fail(field, hint, format string, args ...any) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Hint: hint})
}

func (r *ValidationResult) warn(field, hint, format string, args ...any) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: fmt.Sprintf(format, args...), Hint: hint})
}

// oneOf fails field unless value is one of allowed.
func (r *ValidationResult) oneOf(field, what, value string, allowed ...string) {
	if slices.Contains(allowed, value) {
		return
	}
	var shown []string
	for _, a := range allowed {
		if a != "" {
			shown = append(shown, a)
		}
	}
	r.fail(field, "valid values are: "+strings.Join(shown, ", "), "invalid %s %q", what, value)
}

func (r *ValidationResult) notNegative(field string, value int64) {
	if value < 0 {
		r.fail(field, "", "%s cannot be negative", field[strings.LastIndex(field, ".")+1:])
	}
}

// Validate checks the configuration. Errors are fatal; warnings are logged.
// Validation fills database.database from the DSN when it is only set there.
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}
	c.Database.validate(result)
	c.Server.validate(result)
	c.GraphQL.validate(result)
	c.Observability.validate(result)
	validatePermissions(result, c.Permissions)
	validateSchemaFilters(result, c.SchemaFilters)
	validateNamingConfig(result, c.Naming)
	return result
}

func (g *GraphQLConfig) validate(result *ValidationResult) {
	if strings.TrimSpace(g.ModelsDir) == "" {
		result.fail("graphql.models_dir", "", "models directory is required")
	}
	result.notNegative("graphql.amount_limit", int64(g.AmountLimit))
	if g.AmountLimit == 0 {
		result.warn("graphql.amount_limit", "set graphql.amount_limit to cap limit arguments", "list sizes are unlimited")
	}
	result.notNegative("graphql.depth_limit", int64(g.DepthLimit))

	switch {
	case g.RefreshMinInterval < 0 || g.RefreshMaxInterval < 0:
		result.fail("graphql.refresh_min_interval", "", "refresh intervals cannot be negative")
	case g.RefreshMinInterval > 0 && g.RefreshMaxInterval > 0 && g.RefreshMaxInterval < g.RefreshMinInterval:
		result.fail("graphql.refresh_max_interval", "", "refresh_max_interval must not be less than refresh_min_interval")
	}
	if g.PlaygroundEnabled {
		result.warn("graphql.playground_enabled", "disable the playground in production", "GraphQL playground is enabled")
	}
}

func validatePermissions(result *ValidationResult, cfg permissions.Config) {
	for role, patterns := range cfg.Roles {
		if strings.TrimSpace(role) == "" {
			result.fail("permissions.roles", "", "role name cannot be empty")
			continue
		}
		for _, pattern := range patterns {
			if _, err := path.Match(pattern, "probe"); err != nil || strings.TrimSpace(pattern) == "" {
				result.fail("permissions.roles",
					"use refs such as application::article.find or application::article.*",
					"invalid action pattern %q for role %q", pattern, role)
			}
		}
	}
	if !cfg.Enabled() {
		return
	}
	public := cmp.Or(cfg.PublicRole, permissions.DefaultPublicRole)
	if _, ok := cfg.Roles[public]; !ok {
		result.warn("permissions.roles", "anonymous callers will be refused every action",
			"no grants for public role %q", public)
	}
}

func validateSchemaFilters(result *ValidationResult, filters schemafilter.Config) {
	validateGlobList(result, "schema_filters.allow_models", filters.AllowModels)
	validateGlobList(result, "schema_filters.deny_models", filters.DenyModels)
	validateGlobList(result, "schema_filters.deny_mutation_models", filters.DenyMutationModels)
	validatePatternMap(result, "schema_filters.private_attributes", filters.PrivateAttributes)
	validatePatternMap(result, "schema_filters.deny_mutation_attributes", filters.DenyMutationAttributes)
}

func validateNamingConfig(result *ValidationResult, cfg naming.Config) {
	for field, overrides := range map[string]map[string]string{
		"naming.plural_overrides":   cfg.PluralOverrides,
		"naming.singular_overrides": cfg.SingularOverrides,
	} {
		for from, to := range overrides {
			if strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
				result.fail(field, "", "override %q -> %q has an empty side", from, to)
			}
		}
	}
}

// checkGlob fails field when pattern is blank or not a valid path.Match glob.
func checkGlob(result *ValidationResult, field, what, pattern string) bool {
	if strings.TrimSpace(pattern) == "" {
		result.fail(field, "", "%s cannot be empty", what)
		return false
	}
	if _, err := path.Match(strings.ToLower(pattern), "probe"); err != nil {
		result.fail(field, "", "invalid %s %q: %v", what, pattern, err)
		return false
	}
	return true
}

func validateGlobList(result *ValidationResult, field string, patterns []string) {
	for _, pattern := range patterns {
		checkGlob(result, field, "glob pattern", pattern)
	}
}

func validatePatternMap(result *ValidationResult, field string, patternMap map[string][]string) {
	for modelPattern, attrPatterns := range patternMap {
		if strings.TrimSpace(modelPattern) == "" {
			result.fail(field, "", "model pattern cannot be empty")
			continue
		}
		checkGlob(result, field, "model glob pattern", modelPattern)
		for _, attrPattern := range attrPatterns {
			checkGlob(result, field, fmt.Sprintf("attribute pattern for %q", modelPattern), attrPattern)
		}
	}
}

func (d *DatabaseConfig) validate(result *ValidationResult) {
	if d.ConnectionString == "" && (d.Port < 1 || d.Port > 65535) {
		result.fail("database.port", "", "port %d is out of valid range (1-65535)", d.Port)
	}
	d.TLS.validate(result)

	result.notNegative("database.pool.max_open", int64(d.Pool.MaxOpen))
	result.notNegative("database.pool.max_idle", int64(d.Pool.MaxIdle))
	if d.Pool.MaxOpen > 0 && d.Pool.MaxIdle > d.Pool.MaxOpen {
		result.warn("database.pool.max_idle", "idle connections will be limited to max_open", "max_idle is greater than max_open")
	}

	result.notNegative("database.connection_timeout", int64(d.ConnectionTimeout))
	result.notNegative("database.connection_retry_interval", int64(d.ConnectionRetryInterval))
	if d.ConnectionTimeout > 0 {
		switch {
		case d.ConnectionRetryInterval == 0:
			result.fail("database.connection_retry_interval",
				"set a retry interval such as 2s, or set connection_timeout to 0 to disable retries",
				"connection_retry_interval must be greater than 0 when connection_timeout is set")
		case d.ConnectionRetryInterval > d.ConnectionTimeout:
			result.warn("database.connection_retry_interval", "only one connection attempt will be made",
				"connection_retry_interval is greater than connection_timeout")
		}
	}
	result.notNegative("database.slow_query_threshold", int64(d.SlowQueryThreshold))

	name, err := d.DatabaseName()
	if err != nil {
		result.fail("database.database", "set database.database or include a /database in database.dsn", "%s", err.Error())
		return
	}
	d.Database = name
}

func (t *DatabaseTLSConfig) validate(result *ValidationResult) {
	result.oneOf("database.tls.mode", "TLS mode", t.Mode, "", "off", "skip-verify", "verify-ca", "verify-full")

	verifies := t.Mode == "verify-ca" || t.Mode == "verify-full"
	if verifies && t.caFile() == "" {
		result.fail("database.tls.ca_file", "set ca_file or ca_file_env to specify the CA certificate",
			"CA file is required for verify-ca and verify-full modes")
	}
	if (t.certFile() == "") != (t.keyFile() == "") {
		result.fail("database.tls.cert_file", "provide both cert_file and key_file, or neither",
			"both cert_file and key_file must be specified for client certificate authentication")
	}
	if t.Mode == "skip-verify" {
		result.warn("database.tls.mode", "use verify-ca or verify-full in production",
			"skip-verify mode does not verify server certificates")
	}
}

func (s *ServerConfig) validate(result *ValidationResult) {
	if s.Port < 1 || s.Port > 65535 {
		result.fail("server.port", "", "port %d is out of valid range (1-65535)", s.Port)
	}
	s.RateLimit.validate(result)
	s.CORS.validate(result)
	s.Auth.validate(result)

	if s.Admin.SchemaReloadEnabled && s.Admin.AuthToken == "" {
		result.fail("server.admin.auth_token", "set server.admin.auth_token or server.admin.auth_token_file",
			"admin auth token is required when schema reload is enabled")
	}
}

func (l *RateLimitConfig) validate(result *ValidationResult) {
	if !l.Enabled {
		if l.RPS > 0 || l.Burst > 0 {
			result.warn("server.rate_limit.enabled", "enable server.rate_limit.enabled to apply rate limits",
				"rate limit values are set but rate limiting is disabled")
		}
		return
	}
	if l.RPS <= 0 {
		result.fail("server.rate_limit.rps", "", "rps must be greater than 0 when rate limiting is enabled")
	}
	if l.Burst <= 0 {
		result.fail("server.rate_limit.burst", "", "burst must be greater than 0 when rate limiting is enabled")
	}
}

func (c *CORSConfig) validate(result *ValidationResult) {
	if !c.Enabled {
		return
	}
	const field = "server.cors.allowed_origins"
	if len(c.AllowedOrigins) == 0 {
		result.fail(field, "set server.cors.allowed_origins or disable CORS", "CORS enabled but no allowed origins configured")
	}
	wildcard := slices.ContainsFunc(c.AllowedOrigins, func(o string) bool { return strings.TrimSpace(o) == "*" })
	if !wildcard {
		return
	}
	if c.AllowCredentials {
		result.fail(field, "use specific origins with credentials, or wildcard without credentials",
			"wildcard origin (*) cannot be used with credentials")
	}
	result.warn(field, "use specific origins in production", "CORS wildcard origin enabled")
}

func (a *AuthConfig) validate(result *ValidationResult) {
	if a.OIDCEnabled {
		if a.OIDCIssuerURL == "" {
			result.fail("server.auth.oidc_issuer_url", "", "issuer URL is required when OIDC is enabled")
		}
		if a.OIDCAudience == "" {
			result.fail("server.auth.oidc_audience", "", "audience is required when OIDC is enabled")
		}
		if a.JWTEnabled() {
			result.fail("server.auth.jwt_secret", "", "jwt_secret and oidc_enabled are mutually exclusive")
		}
	}
	if a.JWTEnabled() && len(a.JWTSecret) < 32 {
		result.warn("server.auth.jwt_secret", "use a longer random secret", "JWT secret is shorter than 32 bytes")
	}
	if a.OIDCSkipTLSVerify {
		result.warn("server.auth.oidc_skip_tls_verify", "", "OIDC provider certificates are not verified")
	}
	result.notNegative("server.auth.clock_skew", int64(a.ClockSkew))
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	result.oneOf("observability.logging.level", "log level", o.Logging.Level, "debug", "info", "warn", "error")
	result.oneOf("observability.logging.format", "log format", o.Logging.Format, "json", "text")

	o.OTLP.validate("observability.otlp", result)
	for prefix, signal := range map[string]*OTLPConfig{
		"observability.traces":  o.Traces,
		"observability.logs":    o.Logs,
		"observability.metrics": o.Metrics,
	} {
		if signal != nil {
			signal.validate(prefix, result)
		}
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	result.oneOf(prefix+".protocol", "OTLP protocol", o.Protocol, "", "grpc", "http/protobuf")
	if o.Protocol == "http/protobuf" && !validOTLPEndpoint(o.Endpoint) {
		result.fail(prefix+".endpoint", "use host:port or a full URL", "invalid OTLP endpoint %q for http/protobuf", o.Endpoint)
	}
	result.oneOf(prefix+".compression", "OTLP compression", o.Compression, "", "none", "gzip")
	result.notNegative(prefix+".retry_max_attempts", int64(o.RetryMaxAttempts))
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		return err == nil && parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}
