// Package config loads configuration from files, env vars and flags, and validates it.
package config

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// EnvPrefix prefixes every environment variable, e.g. DOJOGQL_DATABASE_DSN.
const EnvPrefix = "DOJOGQL"

var defineFlagsOnce sync.Once

// Load loads configuration from multiple sources with the following precedence:
// 1. Explicit overrides (v.Set) for secrets read from files or a prompt
// 2. Command line flags
// 3. Environment variables
// 4. Config file
// 5. Default values
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	defineFlags()
	if !pflag.Parsed() {
		pflag.Parse()
	}

	cfgPath, _ := pflag.CommandLine.GetString("config")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.SetConfigName("dojo-graphql")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/dojo-graphql/")
		v.AddConfigPath("$HOME/.dojo-graphql")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		if cfgPath != "" {
			return nil, fmt.Errorf("failed to read config file %q: %w", cfgPath, err)
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnv(v)
	bindChangedFlagsToViper(v)
	return finish(v)
}

// bindEnv maps canonical keys to env vars: database.pool.max_open becomes
// DOJOGQL_DATABASE_POOL_MAX_OPEN.
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// finish resolves file-backed secrets and decodes the merged settings.
func finish(v *viper.Viper) (*Config, error) {
	if err := validateSingleStdinFileSource(v); err != nil {
		return nil, err
	}

	for _, secret := range fileSecrets {
		if secret.key == "database.password" && v.GetString(secret.key) == "" && v.GetString(secret.fileKey) == "" && v.GetBool("database.password_prompt") {
			pwd, err := promptPassword()
			if err != nil {
				return nil, fmt.Errorf("failed to read password: %w", err)
			}
			v.Set(secret.key, pwd)
			continue
		}
		if err := loadSecretFile(v, secret); err != nil {
			return nil, err
		}
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

// fileSecret is a setting that may instead be read from a file, or from
// stdin when the file is "@-".
type fileSecret struct {
	key     string
	fileKey string
	what    string
}

var fileSecrets = []fileSecret{
	{key: "database.dsn", fileKey: "database.dsn_file", what: "database DSN"},
	{key: "database.password", fileKey: "database.password_file", what: "database password"},
	{key: "server.admin.auth_token", fileKey: "server.admin.auth_token_file", what: "admin auth token"},
	{key: "server.cursor_secret", fileKey: "server.cursor_secret_file", what: "cursor secret"},
}

// loadSecretFile fills the setting from its file when the setting itself is
// unset. A file that trims to nothing is an error.
func loadSecretFile(v *viper.Viper, s fileSecret) error {
	path := v.GetString(s.fileKey)
	if v.GetString(s.key) != "" || path == "" {
		return nil
	}
	secret, err := readSecretFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s file: %w", s.what, err)
	}
	if secret == "" {
		return fmt.Errorf("%s file %q is empty", s.what, path)
	}
	v.Set(s.key, secret)
	return nil
}

// bindChangedFlagsToViper copies only explicitly-set flags into Viper,
// preserving precedence: flags > env > file > defaults.
func bindChangedFlagsToViper(v *viper.Viper) {
	pflag.CommandLine.Visit(func(f *pflag.Flag) {
		if f.Name == "config" || f.Name == "version" {
			return
		}

		switch f.Value.Type() {
		case "string":
			val, _ := pflag.CommandLine.GetString(f.Name)
			v.Set(f.Name, val)
		case "int":
			val, _ := pflag.CommandLine.GetInt(f.Name)
			v.Set(f.Name, val)
		case "bool":
			val, _ := pflag.CommandLine.GetBool(f.Name)
			v.Set(f.Name, val)
		case "float64":
			val, _ := pflag.CommandLine.GetFloat64(f.Name)
			v.Set(f.Name, val)
		case "duration":
			val, _ := pflag.CommandLine.GetDuration(f.Name)
			v.Set(f.Name, val)
		case "stringSlice":
			val, _ := pflag.CommandLine.GetStringSlice(f.Name)
			v.Set(f.Name, val)
		default:
			v.Set(f.Name, f.Value.String())
		}
	})
}

// defineFlags defines all command line flags using canonical snake_case keys.
func defineFlags() {
	defineFlagsOnce.Do(func() {
		pflag.String("database.driver", "", "Store backend: mysql, sqlite or postgres")
		pflag.String("database.dsn", "", "Complete driver DSN")
		pflag.String("database.dsn_file", "", "Path to file containing the database DSN (use @- for stdin)")
		pflag.String("database.host", "", "Database host")
		pflag.Int("database.port", 0, "Database port (0 = driver default)")
		pflag.String("database.user", "", "Database user")
		pflag.String("database.password", "", "Database password")
		pflag.String("database.password_file", "", "Path to file containing database password (use @- for stdin)")
		pflag.Bool("database.password_prompt", false, "Prompt for database password securely")
		pflag.String("database.database", "", "Database name, or the database file for sqlite")
		pflag.Bool("database.ensure_catalog", false, "Create the model catalog tables when missing")

		pflag.String("database.tls.mode", "", "TLS mode (off, skip-verify, verify-ca, verify-full)")
		pflag.String("database.tls.ca_file", "", "Path to CA certificate for server verification")
		pflag.String("database.tls.cert_file", "", "Path to client certificate for mTLS")
		pflag.String("database.tls.key_file", "", "Path to client private key for mTLS")
		pflag.String("database.tls.server_name", "", "Override TLS server name for verification")

		pflag.Int("database.pool.max_open", 0, "Maximum open database connections")
		pflag.Int("database.pool.max_idle", 0, "Maximum idle connections in pool")
		pflag.Duration("database.pool.max_lifetime", 0, "Connection max lifetime (e.g. 5m, 30s)")
		pflag.Duration("database.connection_timeout", 0, "Max time to wait for database on startup (0 = fail immediately)")
		pflag.Duration("database.connection_retry_interval", 0, "Initial interval between connection retries")

		pflag.Int("server.port", 0, "HTTP server port")
		pflag.Int("server.default_page_size", 0, "Page size used when first is omitted")
		pflag.Int("server.max_page_size", 0, "Largest accepted value of first")
		pflag.String("server.cursor_secret", "", "Key used to sign pagination cursors")
		pflag.String("server.cursor_secret_file", "", "Path to file containing the cursor signing key (use @- for stdin)")
		pflag.Int("server.graphql_max_depth", 0, "Maximum GraphQL selection depth (0 = unlimited)")
		pflag.Int("server.graphql_max_fields", 0, "Maximum GraphQL selected fields per operation (0 = unlimited)")
		pflag.Duration("server.schema_refresh_min_interval", 0, "Minimum interval between model catalog checks")
		pflag.Duration("server.schema_refresh_max_interval", 0, "Maximum interval between model catalog checks")
		pflag.Bool("server.graphiql_enabled", false, "Enable GraphiQL UI for /graphql (dev only)")
		pflag.Bool("server.admin.schema_reload_enabled", false, "Enable /admin/reload-schema endpoint")
		pflag.String("server.admin.auth_token", "", "Shared secret required in X-Admin-Token for admin endpoints")
		pflag.String("server.admin.auth_token_file", "", "Path to file containing admin auth token (use @- for stdin)")
		pflag.Bool("server.rate_limit_enabled", false, "Enable rate limiting for all HTTP endpoints")
		pflag.Float64("server.rate_limit_rps", 0, "Rate limit requests per second")
		pflag.Int("server.rate_limit_burst", 0, "Rate limit burst size")
		pflag.Bool("server.rate_limit_per_client", false, "Keep one rate limit bucket per client address")
		pflag.Bool("server.cors_enabled", false, "Enable CORS (Cross-Origin Resource Sharing)")
		pflag.StringSlice("server.cors_allowed_origins", nil, "Allowed CORS origins (comma-separated or repeated)")
		pflag.StringSlice("server.cors_allowed_methods", nil, "Allowed CORS methods (comma-separated or repeated)")
		pflag.StringSlice("server.cors_allowed_headers", nil, "Allowed CORS headers (comma-separated or repeated)")
		pflag.StringSlice("server.cors_expose_headers", nil, "CORS headers to expose to browser (comma-separated or repeated)")
		pflag.Bool("server.cors_allow_credentials", false, "Allow credentials in CORS requests")
		pflag.Int("server.cors_max_age", 0, "CORS preflight cache duration (seconds)")
		pflag.Duration("server.read_timeout", 0, "HTTP server read timeout")
		pflag.Duration("server.write_timeout", 0, "HTTP server write timeout")
		pflag.Duration("server.idle_timeout", 0, "HTTP server idle timeout")
		pflag.Duration("server.shutdown_timeout", 0, "HTTP server graceful shutdown timeout")
		pflag.Duration("server.health_check_timeout", 0, "Health check timeout")
		pflag.String("server.tls_mode", "", "TLS mode: off, auto (self-signed), file (default: off)")
		pflag.String("server.tls_cert_file", "", "Path to TLS certificate file (for file mode)")
		pflag.String("server.tls_key_file", "", "Path to TLS private key file (for file mode)")
		pflag.String("server.tls_auto_cert_dir", "", "Directory for auto-generated certificates (default: .tls)")

		pflag.String("naming.query_style", "", "List query naming: models (positionModels) or plural (positions)")

		pflag.String("observability.service_name", "", "Service name for observability")
		pflag.String("observability.service_version", "", "Service version for observability")
		pflag.String("observability.environment", "", "Environment name (dev, staging, prod)")
		pflag.Bool("observability.metrics_enabled", false, "Enable metrics collection")
		pflag.Bool("observability.tracing_enabled", false, "Enable distributed tracing")
		pflag.Float64("observability.trace_sample_ratio", 0, "Trace sampling ratio from 0.0 to 1.0")
		pflag.Bool("observability.sqlcommenter_enabled", false, "Inject trace context into SQL queries")
		pflag.String("observability.logging.level", "", "Log level (debug, info, warn, error)")
		pflag.String("observability.logging.format", "", "Log format (json, text)")
		pflag.Bool("observability.logging.exports_enabled", false, "Enable OTLP log export")

		pflag.String("observability.otlp.endpoint", "", "OTLP endpoint for all signals (e.g., localhost:4317)")
		pflag.String("observability.otlp.protocol", "", "OTLP protocol for all signals (grpc, http/protobuf)")
		pflag.Bool("observability.otlp.insecure", false, "Use insecure connection (no TLS)")
		pflag.String("observability.otlp.tls_cert_file", "", "Path to TLS certificate file for server verification")
		pflag.String("observability.otlp.tls_client_cert_file", "", "Path to client certificate file for mTLS")
		pflag.String("observability.otlp.tls_client_key_file", "", "Path to client key file for mTLS")
		pflag.Duration("observability.otlp.timeout", 0, "OTLP export timeout")
		pflag.String("observability.otlp.compression", "", "OTLP compression (none, gzip)")
		pflag.Bool("observability.otlp.retry_enabled", false, "Enable retry on transient errors")
		pflag.Int("observability.otlp.retry_max_attempts", 0, "Maximum retry attempts")

		pflag.String("observability.traces.endpoint", "", "OTLP endpoint for traces only")
		pflag.String("observability.traces.protocol", "", "OTLP protocol for traces (grpc, http/protobuf)")
		pflag.Bool("observability.traces.insecure", false, "Use insecure connection for traces")
		pflag.Duration("observability.traces.timeout", 0, "Timeout for trace exports")
		pflag.String("observability.logs.endpoint", "", "OTLP endpoint for logs only")
		pflag.String("observability.logs.protocol", "", "OTLP protocol for logs (grpc, http/protobuf)")
		pflag.Bool("observability.logs.insecure", false, "Use insecure connection for logs")
		pflag.Duration("observability.logs.timeout", 0, "Timeout for log exports")

		pflag.StringP("config", "c", "", "Config file path")
	})
}

// defaults lists every key with its lowest-precedence value. Each key must
// be present so AutomaticEnv can supply it during unmarshalling.
var defaults = map[string]any{
	"database.driver":          DriverSQLite,
	"database.dsn":             "",
	"database.dsn_file":        "",
	"database.host":            "localhost",
	"database.port":            0,
	"database.user":            "dojo",
	"database.password":        "",
	"database.password_file":   "",
	"database.password_prompt": false,
	"database.database":        "",
	"database.ensure_catalog":  true,

	"database.tls.mode":        "",
	"database.tls.ca_file":     "",
	"database.tls.cert_file":   "",
	"database.tls.key_file":    "",
	"database.tls.server_name": "",

	"database.pool.max_open":     25,
	"database.pool.max_idle":     5,
	"database.pool.max_lifetime": 5 * time.Minute,

	"database.connection_timeout":        60 * time.Second,
	"database.connection_retry_interval": 2 * time.Second,

	"server.port":                        8080,
	"server.default_page_size":           25,
	"server.max_page_size":               100,
	"server.cursor_secret":               "",
	"server.cursor_secret_file":          "",
	"server.graphql_max_depth":           8,
	"server.graphql_max_fields":          500,
	"server.schema_refresh_min_interval": 30 * time.Second,
	"server.schema_refresh_max_interval": 5 * time.Minute,
	"server.graphiql_enabled":            false,

	"server.admin.schema_reload_enabled": false,
	"server.admin.auth_token":            "",
	"server.admin.auth_token_file":       "",

	"server.rate_limit_enabled":     false,
	"server.rate_limit_rps":         0.0,
	"server.rate_limit_burst":       0,
	"server.rate_limit_per_client":  false,
	"server.cors_enabled":           false,
	"server.cors_allowed_origins":   []string{},
	"server.cors_allowed_methods":   []string{"GET", "POST", "OPTIONS"},
	"server.cors_allowed_headers":   []string{"Content-Type", "X-Admin-Token"},
	"server.cors_expose_headers":    []string{},
	"server.cors_allow_credentials": false,
	"server.cors_max_age":           86400,
	"server.read_timeout":           15 * time.Second,
	"server.write_timeout":          15 * time.Second,
	"server.idle_timeout":           60 * time.Second,
	"server.shutdown_timeout":       30 * time.Second,
	"server.health_check_timeout":   2 * time.Second,
	"server.tls_mode":               "off",
	"server.tls_cert_file":          "",
	"server.tls_key_file":           "",
	"server.tls_auto_cert_dir":      ".tls",

	"naming.query_style":      "models",
	"naming.plural_overrides": map[string]string{},

	"observability.service_name":         "dojo-graphql",
	"observability.service_version":      "",
	"observability.environment":          "development",
	"observability.metrics_enabled":      true,
	"observability.tracing_enabled":      false,
	"observability.trace_sample_ratio":   1.0,
	"observability.sqlcommenter_enabled": true,

	"observability.logging.level":           "info",
	"observability.logging.format":          "json",
	"observability.logging.exports_enabled": false,

	"observability.otlp.endpoint":             "localhost:4317",
	"observability.otlp.protocol":             "grpc",
	"observability.otlp.insecure":             false,
	"observability.otlp.tls_cert_file":        "",
	"observability.otlp.tls_client_cert_file": "",
	"observability.otlp.tls_client_key_file":  "",
	"observability.otlp.timeout":              10 * time.Second,
	"observability.otlp.compression":          "gzip",
	"observability.otlp.retry_enabled":        true,
	"observability.otlp.retry_max_attempts":   3,
}

func setDefaults(v *viper.Viper) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// promptPassword prompts the user for a password without echoing to terminal.
func promptPassword() (string, error) {
	fmt.Print("Enter database password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(bytePassword), nil
}

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

// validateSingleStdinFileSource rejects configurations where more than one
// file-backed setting reads from stdin.
func validateSingleStdinFileSource(v *viper.Viper) error {
	var configured []string
	for _, secret := range fileSecrets {
		if strings.TrimSpace(v.GetString(secret.fileKey)) == "@-" {
			configured = append(configured, secret.fileKey)
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
