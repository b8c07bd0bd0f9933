package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"reflect"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// EnvPrefix prefixes every environment override, e.g. CGQL_DATABASE_DSN.
const EnvPrefix = "CGQL"

// DotEnvFile is read, when present, before the environment is consulted.
const DotEnvFile = ".env"

// LoadFlags reads configuration for a flag set that RegisterFlags populated.
// Sources are applied with the following precedence:
// 1. Command line flags
// 2. Environment variables (including .env)
// 3. Config file
// 4. Default values
func LoadFlags(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	cfgPath, _ := flags.GetString("config")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.SetConfigName("content-graphql")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/content-graphql/")
		v.AddConfigPath("$HOME/.content-graphql")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		if cfgPath != "" {
			return nil, fmt.Errorf("failed to read config file %q: %w", cfgPath, err)
		}
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Variables already in the environment win over .env entries.
	if err := godotenv.Load(DotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read %s: %w", DotEnvFile, err)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	bindChangedFlags(v, flags)

	if err := validateSingleStdinFileSource(v); err != nil {
		return nil, err
	}
	if err := resolveSecrets(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.UnmarshalExact(
		&cfg,
		viper.DecodeHook(
			mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				stringToStringSliceHookFunc(","),
			),
		),
	); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// resolveSecrets loads values that may live outside the config: DSN,
// passwords and tokens read from files, and the interactive password prompt.
func resolveSecrets(v *viper.Viper) error {
	fromFile := []struct {
		key, fileKey, what string
		required          bool
	}{
		{"database.dsn", "database.dsn_file", "database DSN", false},
		{"database.password", "database.password_file", "database password", false},
		{"server.admin.auth_token", "server.admin.auth_token_file", "admin auth token", true},
		{"server.auth.jwt_secret", "server.auth.jwt_secret_file", "JWT secret", true},
	}
	for _, s := range fromFile {
		path := v.GetString(s.fileKey)
		if v.GetString(s.key) != "" || path == "" {
			continue
		}
		value, err := readSecretFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s file: %w", s.what, err)
		}
		if s.required && value == "" {
			return fmt.Errorf("%s file %q is empty", s.what, path)
		}
		v.Set(s.key, value)
	}

	if v.GetString("database.dsn") == "" && v.GetString("database.password") == "" && v.GetBool("database.password_prompt") {
		pwd, err := promptPassword()
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		v.Set("database.password", pwd)
	}
	return nil
}

// bindChangedFlags copies only explicitly-set flags into Viper, preserving
// precedence: flags > env > file > defaults. Config keys are dotted; undotted
// flags such as --config or --version belong to the command.
func bindChangedFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.Visit(func(f *pflag.Flag) {
		if !strings.Contains(f.Name, ".") {
			return
		}
		switch f.Value.Type() {
		case "string":
			val, _ := flags.GetString(f.Name)
			v.Set(f.Name, val)
		case "int":
			val, _ := flags.GetInt(f.Name)
			v.Set(f.Name, val)
		case "bool":
			val, _ := flags.GetBool(f.Name)
			v.Set(f.Name, val)
		case "float64":
			val, _ := flags.GetFloat64(f.Name)
			v.Set(f.Name, val)
		case "duration":
			val, _ := flags.GetDuration(f.Name)
			v.Set(f.Name, val)
		case "stringSlice":
			val, _ := flags.GetStringSlice(f.Name)
			v.Set(f.Name, val)
		default:
			v.Set(f.Name, f.Value.String())
		}
	})
}

// RegisterFlags defines every configuration flag on flags using the canonical
// dotted snake_case keys.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.StringP("config", "c", "", "Config file path")

	flags.String("database.dsn", "", "Complete MySQL DSN (user:pass@tcp(host:port)/db)")
	flags.String("database.dsn_file", "", "Path to file containing database DSN (use @- for stdin)")
	flags.String("database.host", "", "Database host")
	flags.Int("database.port", 0, "Database port")
	flags.String("database.user", "", "Database user")
	flags.String("database.password", "", "Database password")
	flags.String("database.password_file", "", "Path to file containing database password (use @- for stdin)")
	flags.Bool("database.password_prompt", false, "Prompt for database password securely")
	flags.String("database.database", "", "Database name")
	flags.String("database.tls.mode", "", "TLS mode (off, skip-verify, verify-ca, verify-full)")
	flags.String("database.tls.ca_file", "", "Path to CA certificate for server verification")
	flags.String("database.tls.cert_file", "", "Path to client certificate for mTLS")
	flags.String("database.tls.key_file", "", "Path to client private key for mTLS")
	flags.String("database.tls.server_name", "", "Override TLS server name for verification")
	flags.Int("database.pool.max_open", 0, "Maximum open database connections")
	flags.Int("database.pool.max_idle", 0, "Maximum idle connections in pool")
	flags.Duration("database.pool.max_lifetime", 0, "Connection max lifetime (e.g. 5m, 30s)")
	flags.Duration("database.connection_timeout", 0, "Max time to wait for database on startup (0 = fail immediately)")
	flags.Duration("database.connection_retry_interval", 0, "Initial interval between connection retries")
	flags.Duration("database.slow_query_threshold", 0, "Log statements slower than this (0 = off)")
	flags.Bool("database.auto_increment_ids", false, "Let the database assign document ids")

	flags.String("graphql.models_dir", "", "Directory of content-type and component YAML files")
	flags.String("graphql.schema_file", "", "User schema extension file")
	flags.StringSlice("graphql.plugin_schemas", nil, "Plugin schema extension files, merged in order")
	flags.Bool("graphql.shadow_crud", false, "Generate default queries and mutations for every model")
	flags.Int("graphql.amount_limit", 0, "Largest accepted list limit (0 = unlimited)")
	flags.Int("graphql.depth_limit", 0, "Maximum selection depth (0 = unlimited)")
	flags.Bool("graphql.playground_enabled", false, "Serve the GraphQL playground on GET /graphql")
	flags.Duration("graphql.refresh_min_interval", 0, "Minimum interval between model file checks (0 = no polling)")
	flags.Duration("graphql.refresh_max_interval", 0, "Maximum interval between model file checks")

	flags.Int("server.port", 0, "HTTP server port")
	flags.String("server.auth.jwt_secret", "", "HMAC secret for bearer tokens")
	flags.String("server.auth.jwt_secret_file", "", "Path to file containing the HMAC secret (use @- for stdin)")
	flags.String("server.auth.role_claim", "", "Token claim holding the caller's role")
	flags.Duration("server.auth.clock_skew", 0, "Allowed token clock skew (e.g. 2m)")
	flags.Bool("server.auth.oidc_enabled", false, "Verify bearer tokens against an OIDC issuer")
	flags.String("server.auth.oidc_issuer_url", "", "OIDC issuer URL (for discovery and JWKS)")
	flags.String("server.auth.oidc_audience", "", "Expected token audience (client ID)")
	flags.Bool("server.auth.oidc_skip_tls_verify", false, "Skip TLS verification for OIDC provider (dev only)")
	flags.Bool("server.admin.schema_reload_enabled", false, "Enable /admin/reload-schema endpoint")
	flags.String("server.admin.auth_token", "", "Shared secret required in X-Admin-Token header")
	flags.String("server.admin.auth_token_file", "", "Path to file containing admin auth token (use @- for stdin)")
	flags.Bool("server.rate_limit.enabled", false, "Enable per-client rate limiting")
	flags.Float64("server.rate_limit.rps", 0, "Rate limit requests per second")
	flags.Int("server.rate_limit.burst", 0, "Rate limit burst size")
	flags.Bool("server.cors.enabled", false, "Enable CORS (Cross-Origin Resource Sharing)")
	flags.StringSlice("server.cors.allowed_origins", nil, "Allowed CORS origins (comma-separated or repeated)")
	flags.StringSlice("server.cors.allowed_methods", nil, "Allowed CORS methods (comma-separated or repeated)")
	flags.StringSlice("server.cors.allowed_headers", nil, "Allowed CORS headers (comma-separated or repeated)")
	flags.StringSlice("server.cors.expose_headers", nil, "CORS headers to expose to browser (comma-separated or repeated)")
	flags.Bool("server.cors.allow_credentials", false, "Allow credentials in CORS requests")
	flags.Int("server.cors.max_age", 0, "CORS preflight cache duration (seconds)")
	flags.Duration("server.read_timeout", 0, "HTTP server read timeout")
	flags.Duration("server.write_timeout", 0, "HTTP server write timeout")
	flags.Duration("server.idle_timeout", 0, "HTTP server idle timeout")
	flags.Duration("server.shutdown_timeout", 0, "HTTP server graceful shutdown timeout")
	flags.Duration("server.health_check_timeout", 0, "Health check timeout")

	flags.String("observability.service_name", "", "Service name for observability")
	flags.String("observability.service_version", "", "Service version for observability")
	flags.String("observability.environment", "", "Environment name (dev, staging, prod)")
	flags.Bool("observability.metrics_enabled", false, "Enable metrics collection")
	flags.Bool("observability.tracing_enabled", false, "Enable distributed tracing")
	flags.Float64("observability.trace_sample_ratio", 0, "Trace sampling ratio from 0.0 to 1.0")
	flags.Bool("observability.sqlcommenter_enabled", false, "Inject trace context into SQL queries")
	flags.String("observability.logging.level", "", "Log level (debug, info, warn, error)")
	flags.String("observability.logging.format", "", "Log format (json, text)")
	flags.Bool("observability.logging.exports_enabled", false, "Enable OTLP log export")
	flags.String("observability.otlp.endpoint", "", "OTLP endpoint for all signals (e.g., localhost:4317)")
	flags.String("observability.otlp.protocol", "", "OTLP protocol for all signals (grpc, http/protobuf)")
	flags.Bool("observability.otlp.insecure", false, "Use insecure connection (no TLS)")
	flags.Duration("observability.otlp.timeout", 0, "OTLP export timeout")
	flags.String("observability.otlp.compression", "", "OTLP compression (none, gzip)")
}

// setDefaults sets default values (lowest precedence).
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.dsn_file", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.user", "content")
	v.SetDefault("database.password", "")
	v.SetDefault("database.password_file", "")
	v.SetDefault("database.password_prompt", false)
	v.SetDefault("database.database", "")
	v.SetDefault("database.tls.mode", "")
	v.SetDefault("database.tls.ca_file", "")
	v.SetDefault("database.tls.ca_file_env", "")
	v.SetDefault("database.tls.cert_file", "")
	v.SetDefault("database.tls.cert_file_env", "")
	v.SetDefault("database.tls.key_file", "")
	v.SetDefault("database.tls.key_file_env", "")
	v.SetDefault("database.tls.server_name", "")
	v.SetDefault("database.pool.max_open", 25)
	v.SetDefault("database.pool.max_idle", 5)
	v.SetDefault("database.pool.max_lifetime", 5*time.Minute)
	v.SetDefault("database.connection_timeout", 60*time.Second)
	v.SetDefault("database.connection_retry_interval", 2*time.Second)
	v.SetDefault("database.slow_query_threshold", 500*time.Millisecond)
	v.SetDefault("database.auto_increment_ids", false)

	v.SetDefault("graphql.models_dir", "models")
	v.SetDefault("graphql.schema_file", "")
	v.SetDefault("graphql.plugin_schemas", []string{})
	v.SetDefault("graphql.shadow_crud", true)
	v.SetDefault("graphql.amount_limit", 100)
	v.SetDefault("graphql.depth_limit", 7)
	v.SetDefault("graphql.playground_enabled", false)
	v.SetDefault("graphql.refresh_min_interval", time.Duration(0))
	v.SetDefault("graphql.refresh_max_interval", 5*time.Minute)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.auth.jwt_secret", "")
	v.SetDefault("server.auth.jwt_secret_file", "")
	v.SetDefault("server.auth.role_claim", "role")
	v.SetDefault("server.auth.clock_skew", 2*time.Minute)
	v.SetDefault("server.auth.oidc_enabled", false)
	v.SetDefault("server.auth.oidc_issuer_url", "")
	v.SetDefault("server.auth.oidc_audience", "")
	v.SetDefault("server.auth.oidc_skip_tls_verify", false)
	v.SetDefault("server.admin.schema_reload_enabled", false)
	v.SetDefault("server.admin.auth_token", "")
	v.SetDefault("server.admin.auth_token_file", "")
	v.SetDefault("server.rate_limit.enabled", false)
	v.SetDefault("server.rate_limit.rps", 0.0)
	v.SetDefault("server.rate_limit.burst", 0)
	v.SetDefault("server.cors.enabled", false)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("server.cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("server.cors.allowed_headers", []string{"Content-Type", "Authorization"})
	v.SetDefault("server.cors.expose_headers", []string{})
	v.SetDefault("server.cors.allow_credentials", false)
	v.SetDefault("server.cors.max_age", 86400)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.health_check_timeout", 2*time.Second)

	v.SetDefault("permissions.public_role", "public")
	v.SetDefault("permissions.authenticated_role", "authenticated")
	v.SetDefault("permissions.roles", map[string][]string{})

	v.SetDefault("observability.service_name", "content-graphql")
	v.SetDefault("observability.service_version", "")
	v.SetDefault("observability.environment", "development")
	v.SetDefault("observability.metrics_enabled", true)
	v.SetDefault("observability.tracing_enabled", false)
	v.SetDefault("observability.trace_sample_ratio", 1.0)
	v.SetDefault("observability.sqlcommenter_enabled", true)
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.logging.exports_enabled", false)
	v.SetDefault("observability.otlp.endpoint", "localhost:4317")
	v.SetDefault("observability.otlp.protocol", "grpc")
	v.SetDefault("observability.otlp.insecure", false)
	v.SetDefault("observability.otlp.tls_cert_file", "")
	v.SetDefault("observability.otlp.tls_client_cert_file", "")
	v.SetDefault("observability.otlp.tls_client_key_file", "")
	v.SetDefault("observability.otlp.timeout", 10*time.Second)
	v.SetDefault("observability.otlp.compression", "gzip")
	v.SetDefault("observability.otlp.retry_enabled", true)
	v.SetDefault("observability.otlp.retry_max_attempts", 3)

	v.SetDefault("schema_filters.allow_models", []string{"*"})
	v.SetDefault("schema_filters.deny_models", []string{})
	v.SetDefault("schema_filters.private_attributes", map[string][]string{})
	v.SetDefault("schema_filters.deny_mutation_models", []string{})
	v.SetDefault("schema_filters.deny_mutation_attributes", map[string][]string{})

	v.SetDefault("naming.plural_overrides", map[string]string{})
	v.SetDefault("naming.singular_overrides", map[string]string{})
}

// promptPassword prompts the user for a password without echoing to terminal.
func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Enter database password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(bytePassword), nil
}

// readSecretFile reads path, or stdin for "@-", and trims surrounding space.
func readSecretFile(path string) (string, error) {
	var data []byte
	var err error
	if path == "@-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func validateSingleStdinFileSource(v *viper.Viper) error {
	stdinBackedKeys := []string{
		"database.dsn_file",
		"database.password_file",
		"server.admin.auth_token_file",
		"server.auth.jwt_secret_file",
	}

	var configured []string
	for _, key := range stdinBackedKeys {
		if strings.TrimSpace(v.GetString(key)) == "@-" {
			configured = append(configured, key)
		}
	}
	if len(configured) > 1 {
		return fmt.Errorf(
			"multiple stdin-backed file settings use @- (%s); only one @- source is allowed",
			strings.Join(configured, ", "),
		)
	}
	return nil
}

func stringToStringSliceHookFunc(sep string) mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf([]string{}) {
			return data, nil
		}

		raw := strings.TrimSpace(data.(string))
		if raw == "" {
			return []string{}, nil
		}

		parts := strings.Split(raw, sep)
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
}
