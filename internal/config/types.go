package config

import (
	"time"

	"github.com/jobez/dojo/internal/naming"
)

// Config holds the application configuration.
type Config struct {
	Database      DatabaseConfig      `mapstructure:"database"`
	Server        ServerConfig        `mapstructure:"server"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Naming        naming.Config       `mapstructure:"naming"`
}

// Supported database drivers.
const (
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// PoolConfig holds connection pool parameters.
type PoolConfig struct {
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
}

// DatabaseTLSConfig holds TLS settings for networked backends (mysql, postgres).
type DatabaseTLSConfig struct {
	// Mode is one of off, skip-verify, verify-ca, verify-full.
	// An empty mode leaves the driver default in place.
	Mode string `mapstructure:"mode"`

	CAFile   string `mapstructure:"ca_file"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`

	// ServerName overrides the host name checked in verify-full mode.
	ServerName string `mapstructure:"server_name"`
}

// DatabaseConfig holds database connection parameters.
type DatabaseConfig struct {
	// Driver selects the store backend: mysql, sqlite or postgres.
	Driver string `mapstructure:"driver"`

	// ConnectionString is a complete driver DSN. When set it overrides the
	// discrete fields below. Configured via "dsn" or DOJOGQL_DATABASE_DSN.
	ConnectionString string `mapstructure:"dsn"`
	// ConnectionStringFile is a path to a file containing the DSN.
	// "@-" reads it from stdin.
	ConnectionStringFile string `mapstructure:"dsn_file"`

	// Discrete connection fields. For sqlite only Database is used, as the
	// database file path.
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	PasswordFile   string `mapstructure:"password_file"`
	PasswordPrompt bool   `mapstructure:"password_prompt"`
	Database       string `mapstructure:"database"`

	TLS  DatabaseTLSConfig `mapstructure:"tls"`
	Pool PoolConfig        `mapstructure:"pool"`

	// EnsureCatalog creates the model catalog and record tables at startup
	// when they are missing.
	EnsureCatalog bool `mapstructure:"ensure_catalog"`

	// ConnectionTimeout is the max time to wait for the database on startup.
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout"`
	// ConnectionRetryInterval is the initial interval between connection retries.
	ConnectionRetryInterval time.Duration `mapstructure:"connection_retry_interval"`
}

// AdminConfig controls the schema reload endpoint.
type AdminConfig struct {
	SchemaReloadEnabled bool   `mapstructure:"schema_reload_enabled"`
	AuthToken           string `mapstructure:"auth_token"`
	AuthTokenFile       string `mapstructure:"auth_token_file"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port int `mapstructure:"port"`

	DefaultPageSize  int    `mapstructure:"default_page_size"`
	MaxPageSize      int    `mapstructure:"max_page_size"`
	CursorSecret     string `mapstructure:"cursor_secret"`
	CursorSecretFile string `mapstructure:"cursor_secret_file"`

	GraphQLMaxDepth  int `mapstructure:"graphql_max_depth"`
	GraphQLMaxFields int `mapstructure:"graphql_max_fields"`

	SchemaRefreshMinInterval time.Duration `mapstructure:"schema_refresh_min_interval"`
	SchemaRefreshMaxInterval time.Duration `mapstructure:"schema_refresh_max_interval"`
	GraphiQLEnabled          bool          `mapstructure:"graphiql_enabled"`
	Admin                    AdminConfig   `mapstructure:"admin"`

	RateLimitEnabled   bool    `mapstructure:"rate_limit_enabled"`
	RateLimitRPS       float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst     int     `mapstructure:"rate_limit_burst"`
	RateLimitPerClient bool    `mapstructure:"rate_limit_per_client"`

	CORSEnabled          bool     `mapstructure:"cors_enabled"`
	CORSAllowedOrigins   []string `mapstructure:"cors_allowed_origins"`
	CORSAllowedMethods   []string `mapstructure:"cors_allowed_methods"`
	CORSAllowedHeaders   []string `mapstructure:"cors_allowed_headers"`
	CORSExposeHeaders    []string `mapstructure:"cors_expose_headers"`
	CORSAllowCredentials bool     `mapstructure:"cors_allow_credentials"`
	CORSMaxAge           int      `mapstructure:"cors_max_age"`

	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	IdleTimeout        time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	HealthCheckTimeout time.Duration `mapstructure:"health_check_timeout"`

	TLSMode        string `mapstructure:"tls_mode"` // off, auto or file
	TLSCertFile    string `mapstructure:"tls_cert_file"`
	TLSKeyFile     string `mapstructure:"tls_key_file"`
	TLSAutoCertDir string `mapstructure:"tls_auto_cert_dir"`
}

// LoggingConfig holds logging parameters.
type LoggingConfig struct {
	Level          string `mapstructure:"level"`  // debug, info, warn, error
	Format         string `mapstructure:"format"` // json, text
	ExportsEnabled bool   `mapstructure:"exports_enabled"`
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

	// OTLP holds the defaults shared by every signal.
	OTLP OTLPConfig `mapstructure:"otlp"`

	Traces  *OTLPConfig `mapstructure:"traces,omitempty"`
	Logs    *OTLPConfig `mapstructure:"logs,omitempty"`
	Metrics *OTLPConfig `mapstructure:"metrics,omitempty"`
}

// OTLPConfig holds OTLP exporter configuration
type OTLPConfig struct {
	Endpoint          string            `mapstructure:"endpoint"`
	Protocol          string            `mapstructure:"protocol"` // grpc, http/protobuf
	Insecure          bool              `mapstructure:"insecure"`
	TLSCertFile       string            `mapstructure:"tls_cert_file"`
	TLSClientCertFile string            `mapstructure:"tls_client_cert_file"`
	TLSClientKeyFile  string            `mapstructure:"tls_client_key_file"`
	Headers           map[string]string `mapstructure:"headers"`
	Timeout           time.Duration     `mapstructure:"timeout"`
	Compression       string            `mapstructure:"compression"` // none, gzip
	RetryEnabled      bool              `mapstructure:"retry_enabled"`
	RetryMaxAttempts  int               `mapstructure:"retry_max_attempts"`
}

// GetTracesConfig returns the effective OTLP config for traces.
func (c *ObservabilityConfig) GetTracesConfig() OTLPConfig {
	return c.OTLP.overlay(c.Traces)
}

// GetLogsConfig returns the effective OTLP config for logs.
func (c *ObservabilityConfig) GetLogsConfig() OTLPConfig {
	return c.OTLP.overlay(c.Logs)
}

// GetMetricsConfig returns the effective OTLP config for metrics.
func (c *ObservabilityConfig) GetMetricsConfig() OTLPConfig {
	return c.OTLP.overlay(c.Metrics)
}

// overlay applies the set fields of a signal override on top of the shared
// settings. Insecure always comes from the override when one exists, since a
// bool cannot say whether it was set.
func (o OTLPConfig) overlay(override *OTLPConfig) OTLPConfig {
	if override == nil {
		return o
	}
	merged := o
	merged.Insecure = override.Insecure
	overrideString(&merged.Endpoint, override.Endpoint)
	overrideString(&merged.Protocol, override.Protocol)
	overrideString(&merged.TLSCertFile, override.TLSCertFile)
	overrideString(&merged.TLSClientCertFile, override.TLSClientCertFile)
	overrideString(&merged.TLSClientKeyFile, override.TLSClientKeyFile)
	overrideString(&merged.Compression, override.Compression)
	if override.Headers != nil {
		merged.Headers = make(map[string]string, len(o.Headers)+len(override.Headers))
		for k, v := range o.Headers {
			merged.Headers[k] = v
		}
		for k, v := range override.Headers {
			merged.Headers[k] = v
		}
	}
	if override.Timeout != 0 {
		merged.Timeout = override.Timeout
	}
	if override.RetryMaxAttempts != 0 {
		merged.RetryEnabled = override.RetryEnabled
		merged.RetryMaxAttempts = override.RetryMaxAttempts
	}
	return merged
}

func overrideString(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}
