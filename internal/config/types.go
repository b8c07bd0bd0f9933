package config

import (
	"maps"
	"time"

	"content-graphql/internal/naming"
	"content-graphql/internal/permissions"
	"content-graphql/internal/schemafilter"
)

// Config holds the application configuration.
type Config struct {
	Database      DatabaseConfig      `mapstructure:"database"`
	Server        ServerConfig        `mapstructure:"server"`
	GraphQL       GraphQLConfig       `mapstructure:"graphql"`
	Permissions   permissions.Config  `mapstructure:"permissions"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	SchemaFilters schemafilter.Config `mapstructure:"schema_filters"`
	Naming        naming.Config       `mapstructure:"naming"`
}

// GraphQLConfig controls how the schema is compiled and served.
type GraphQLConfig struct {
	// ModelsDir holds one YAML file per content type or component.
	ModelsDir string `mapstructure:"models_dir"`
	// SchemaFile is the user extension fragment merged last.
	SchemaFile string `mapstructure:"schema_file"`
	// PluginSchemas are merged in order before SchemaFile.
	PluginSchemas []string `mapstructure:"plugin_schemas"`
	// ShadowCRUD generates the default queries and mutations for every model.
	ShadowCRUD bool `mapstructure:"shadow_crud"`
	// AmountLimit caps the limit argument of every list. Zero disables clamping.
	AmountLimit int `mapstructure:"amount_limit"`
	// DepthLimit rejects documents nested deeper than this. Zero disables the check.
	DepthLimit        int  `mapstructure:"depth_limit"`
	PlaygroundEnabled bool `mapstructure:"playground_enabled"`
	// RefreshMinInterval and RefreshMaxInterval bound how often the model files
	// are polled for changes. A zero RefreshMinInterval disables polling.
	RefreshMinInterval time.Duration `mapstructure:"refresh_min_interval"`
	RefreshMaxInterval time.Duration `mapstructure:"refresh_max_interval"`
}

// PoolConfig holds connection pool parameters.
type PoolConfig struct {
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
}

// DatabaseTLSConfig holds TLS/SSL configuration for database connections.
// Supports both server verification and client certificate authentication (mTLS).
type DatabaseTLSConfig struct {
	// Mode controls TLS behavior:
	//   - "off": No TLS (plaintext connection)
	//   - "skip-verify": TLS without server certificate verification (insecure)
	//   - "verify-ca": TLS with CA verification but no hostname check
	//   - "verify-full": TLS with full verification including hostname
	Mode string `mapstructure:"mode"`

	CAFile string `mapstructure:"ca_file"`
	// CAFileEnv names an environment variable holding the CA file path.
	CAFileEnv string `mapstructure:"ca_file_env"`

	CertFile    string `mapstructure:"cert_file"`
	CertFileEnv string `mapstructure:"cert_file_env"`
	KeyFile     string `mapstructure:"key_file"`
	KeyFileEnv  string `mapstructure:"key_file_env"`

	// ServerName overrides the server name used for TLS verification.
	ServerName string `mapstructure:"server_name"`
}

// DatabaseConfig holds database connection parameters.
type DatabaseConfig struct {
	// ConnectionString is a complete go-sql-driver/mysql Data Source Name.
	// When set, overrides Host/Port/User/Password/Database fields.
	ConnectionString string `mapstructure:"dsn"`
	// ConnectionStringFile is a path to a file containing the DSN.
	// Supports "@-" to read from stdin.
	ConnectionStringFile string `mapstructure:"dsn_file"`

	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	PasswordFile   string `mapstructure:"password_file"`
	PasswordPrompt bool   `mapstructure:"password_prompt"`
	Database       string `mapstructure:"database"`

	TLS  DatabaseTLSConfig `mapstructure:"tls"`
	Pool PoolConfig        `mapstructure:"pool"`

	// ConnectionTimeout is the max time to wait for DB on startup.
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout"`
	// ConnectionRetryInterval is the initial interval between connection retries.
	ConnectionRetryInterval time.Duration `mapstructure:"connection_retry_interval"`
	// SlowQueryThreshold logs statements that take longer. Zero disables it.
	SlowQueryThreshold time.Duration `mapstructure:"slow_query_threshold"`
	// AutoIncrementIDs lets the database assign ids instead of generating ULIDs.
	AutoIncrementIDs bool `mapstructure:"auto_increment_ids"`
}

// AuthConfig selects how bearer tokens are verified. With neither a JWT
// secret nor OIDC every request is anonymous.
type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	JWTSecretFile string        `mapstructure:"jwt_secret_file"`
	RoleClaim     string        `mapstructure:"role_claim"`
	ClockSkew     time.Duration `mapstructure:"clock_skew"`

	OIDCEnabled       bool   `mapstructure:"oidc_enabled"`
	OIDCIssuerURL     string `mapstructure:"oidc_issuer_url"`
	OIDCAudience      string `mapstructure:"oidc_audience"`
	OIDCSkipTLSVerify bool   `mapstructure:"oidc_skip_tls_verify"`
}

// JWTEnabled reports whether HMAC tokens are accepted.
func (a AuthConfig) JWTEnabled() bool {
	return a.JWTSecret != ""
}

// AdminConfig controls the schema reload endpoint.
type AdminConfig struct {
	SchemaReloadEnabled bool   `mapstructure:"schema_reload_enabled"`
	AuthToken           string `mapstructure:"auth_token"`
	AuthTokenFile       string `mapstructure:"auth_token_file"`
}

// CORSConfig controls cross-origin access to the HTTP endpoints. Origins
// may be exact, "*", or path.Match patterns like "https://*.example.com".
type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposeHeaders    []string `mapstructure:"expose_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// RateLimitConfig gives each client address a token bucket.
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port      int             `mapstructure:"port"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Admin     AdminConfig     `mapstructure:"admin"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	CORS      CORSConfig      `mapstructure:"cors"`

	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	IdleTimeout        time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	HealthCheckTimeout time.Duration `mapstructure:"health_check_timeout"`
}

// LoggingConfig holds logging parameters.
type LoggingConfig struct {
	Level          string `mapstructure:"level"`           // debug, info, warn, error
	Format         string `mapstructure:"format"`          // json, text
	ExportsEnabled bool   `mapstructure:"exports_enabled"` // Enable OTLP log export
}

// ObservabilityConfig holds observability parameters.
type ObservabilityConfig struct {
	ServiceName         string        `mapstructure:"service_name"`
	ServiceVersion      string        `mapstructure:"service_version"`
	Environment         string        `mapstructure:"environment"`
	MetricsEnabled      bool          `mapstructure:"metrics_enabled"`
	TracingEnabled      bool          `mapstructure:"tracing_enabled"`
	TraceSampleRatio    float64       `mapstructure:"trace_sample_ratio"`
	SQLCommenterEnabled bool          `mapstructure:"sqlcommenter_enabled"`
	Logging             LoggingConfig `mapstructure:"logging"`

	// Global OTLP settings (defaults for all signals)
	OTLP OTLPConfig `mapstructure:"otlp"`

	// Signal-specific overrides (optional)
	Traces  *OTLPConfig `mapstructure:"traces,omitempty"`
	Logs    *OTLPConfig `mapstructure:"logs,omitempty"`
	Metrics *OTLPConfig `mapstructure:"metrics,omitempty"`
}

// OTLPConfig holds OTLP exporter configuration
type OTLPConfig struct {
	Endpoint          string            `mapstructure:"endpoint"`
	Protocol          string            `mapstructure:"protocol"` // "grpc", "http/protobuf"
	Insecure          bool              `mapstructure:"insecure"`
	TLSCertFile       string            `mapstructure:"tls_cert_file"`
	TLSClientCertFile string            `mapstructure:"tls_client_cert_file"`
	TLSClientKeyFile  string            `mapstructure:"tls_client_key_file"`
	Headers           map[string]string `mapstructure:"headers"`
	Timeout           time.Duration     `mapstructure:"timeout"`
	Compression       string            `mapstructure:"compression"` // "none", "gzip"
	RetryEnabled      bool              `mapstructure:"retry_enabled"`
	RetryMaxAttempts  int               `mapstructure:"retry_max_attempts"`
}

// GetTracesConfig returns the OTLP settings for traces.
func (c *ObservabilityConfig) GetTracesConfig() OTLPConfig { return c.OTLP.overlay(c.Traces) }

// GetLogsConfig returns the OTLP settings for logs.
func (c *ObservabilityConfig) GetLogsConfig() OTLPConfig { return c.OTLP.overlay(c.Logs) }

// GetMetricsConfig returns the OTLP settings for metrics.
func (c *ObservabilityConfig) GetMetricsConfig() OTLPConfig { return c.OTLP.overlay(c.Metrics) }

// overlay lays the non-zero settings of a signal block over the shared ones.
// A present block always decides Insecure; headers are merged.
func (o OTLPConfig) overlay(signal *OTLPConfig) OTLPConfig {
	if signal == nil {
		return o
	}
	out := o
	pick := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	pick(&out.Endpoint, signal.Endpoint)
	pick(&out.Protocol, signal.Protocol)
	pick(&out.TLSCertFile, signal.TLSCertFile)
	pick(&out.TLSClientCertFile, signal.TLSClientCertFile)
	pick(&out.TLSClientKeyFile, signal.TLSClientKeyFile)
	pick(&out.Compression, signal.Compression)
	out.Insecure = signal.Insecure

	if signal.Headers != nil {
		out.Headers = maps.Clone(o.Headers)
		if out.Headers == nil {
			out.Headers = make(map[string]string, len(signal.Headers))
		}
		maps.Copy(out.Headers, signal.Headers)
	}
	if signal.Timeout != 0 {
		out.Timeout = signal.Timeout
	}
	if signal.RetryMaxAttempts != 0 {
		out.RetryEnabled = signal.RetryEnabled
		out.RetryMaxAttempts = signal.RetryMaxAttempts
	}
	return out
}
