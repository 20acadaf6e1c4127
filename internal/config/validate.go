package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/jobez/dojo/internal/naming"
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
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (r *ValidationResult) fail(field, message, hint string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Hint: hint})
}

func (r *ValidationResult) warn(field, message, hint string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: message, Hint: hint})
}

// Validate checks the configuration and returns fatal errors and warnings.
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}
	c.Database.validate(result)
	c.Server.validate(result)
	c.Observability.validate(result)
	validateNamingConfig(result, c.Naming)
	return result
}

func validateNamingConfig(result *ValidationResult, cfg naming.Config) {
	switch cfg.QueryStyle {
	case "", naming.QueryStyleModels, naming.QueryStylePlural:
	default:
		result.fail("naming.query_style", fmt.Sprintf("invalid query style %q", cfg.QueryStyle),
			"valid values are: models, plural")
	}
	for singular, plural := range cfg.PluralOverrides {
		if strings.TrimSpace(singular) == "" || strings.TrimSpace(plural) == "" {
			result.fail("naming.plural_overrides", "override keys and values cannot be empty", "")
		}
	}
}

func (d *DatabaseConfig) validate(result *ValidationResult) {
	switch d.Driver {
	case DriverMySQL, DriverPostgres, DriverSQLite:
	default:
		result.fail("database.driver", fmt.Sprintf("unsupported driver %q", d.Driver),
			"valid values are: mysql, sqlite, postgres")
		return
	}

	networked := d.Driver != DriverSQLite
	if networked && d.ConnectionString == "" && (d.Port < 0 || d.Port > 65535) {
		result.fail("database.port", fmt.Sprintf("port %d is out of valid range (1-65535)", d.Port), "")
	}

	if networked {
		d.TLS.validate(result)
	} else if d.TLS.Mode != "" {
		result.warn("database.tls.mode", "TLS settings are ignored for sqlite", "")
	}
	if !networked && (d.PasswordPrompt || d.PasswordFile != "") {
		result.warn("database.password", "password settings are ignored for sqlite", "")
	}

	if d.Pool.MaxOpen < 0 {
		result.fail("database.pool.max_open", "max_open cannot be negative", "")
	}
	if d.Pool.MaxIdle < 0 {
		result.fail("database.pool.max_idle", "max_idle cannot be negative", "")
	}
	if d.Pool.MaxIdle > d.Pool.MaxOpen && d.Pool.MaxOpen > 0 {
		result.warn("database.pool.max_idle", "max_idle is greater than max_open",
			"idle connections will be limited to max_open")
	}

	if d.ConnectionTimeout < 0 {
		result.fail("database.connection_timeout", "connection_timeout cannot be negative", "")
	}
	if d.ConnectionRetryInterval < 0 {
		result.fail("database.connection_retry_interval", "connection_retry_interval cannot be negative", "")
	}
	if d.ConnectionTimeout > 0 && d.ConnectionRetryInterval == 0 {
		result.fail("database.connection_retry_interval",
			"connection_retry_interval must be greater than 0 when connection_timeout is set",
			"set a retry interval such as 2s, or set connection_timeout to 0 to disable retries")
	}
	if d.ConnectionTimeout > 0 && d.ConnectionRetryInterval > d.ConnectionTimeout {
		result.warn("database.connection_retry_interval",
			"connection_retry_interval is greater than connection_timeout",
			"only one connection attempt will be made")
	}

	if _, _, err := d.Target(); err != nil {
		field := "database.database"
		if strings.HasPrefix(err.Error(), "database.dsn") {
			field = "database.dsn"
		}
		result.fail(field, err.Error(), "set database.database or include a database in database.dsn")
	}
}

func (t *DatabaseTLSConfig) validate(result *ValidationResult) {
	validModes := map[string]bool{"": true, "off": true, "skip-verify": true, "verify-ca": true, "verify-full": true}
	if !validModes[t.Mode] {
		result.fail("database.tls.mode", fmt.Sprintf("invalid TLS mode %q", t.Mode),
			"valid values are: off, skip-verify, verify-ca, verify-full")
	}
	if (t.Mode == "verify-ca" || t.Mode == "verify-full") && t.CAFile == "" {
		result.fail("database.tls.ca_file", "CA file is required for verify-ca and verify-full modes", "")
	}
	if (t.CertFile == "") != (t.KeyFile == "") {
		result.fail("database.tls.cert_file",
			"both cert_file and key_file must be specified for client certificate authentication",
			"provide both cert_file and key_file, or neither")
	}
	if t.Mode == "skip-verify" {
		result.warn("database.tls.mode", "skip-verify mode does not verify server certificates",
			"use verify-ca or verify-full in production")
	}
}

func (s *ServerConfig) validate(result *ValidationResult) {
	if s.Port < 1 || s.Port > 65535 {
		result.fail("server.port", fmt.Sprintf("port %d is out of valid range (1-65535)", s.Port), "")
	}

	if s.DefaultPageSize < 1 {
		result.fail("server.default_page_size", "default_page_size must be at least 1", "")
	}
	if s.MaxPageSize < 1 {
		result.fail("server.max_page_size", "max_page_size must be at least 1", "")
	}
	if s.MaxPageSize > 0 && s.DefaultPageSize > s.MaxPageSize {
		result.fail("server.default_page_size", "default_page_size cannot exceed max_page_size", "")
	}
	if s.CursorSecret == "" {
		result.warn("server.cursor_secret", "cursors are signed with a built-in key",
			"set server.cursor_secret so clients cannot mint cursors")
	}

	if s.GraphQLMaxDepth < 0 {
		result.fail("server.graphql_max_depth", "graphql_max_depth cannot be negative", "")
	}
	if s.GraphQLMaxFields < 0 {
		result.fail("server.graphql_max_fields", "graphql_max_fields cannot be negative", "")
	}

	if s.SchemaRefreshMinInterval < 0 || s.SchemaRefreshMaxInterval < 0 {
		result.fail("server.schema_refresh_min_interval", "schema refresh intervals cannot be negative", "")
	}
	if s.SchemaRefreshMaxInterval > 0 && s.SchemaRefreshMinInterval > s.SchemaRefreshMaxInterval {
		result.warn("server.schema_refresh_max_interval", "schema_refresh_max_interval is below the minimum",
			"the minimum interval will be used")
	}

	if s.Admin.SchemaReloadEnabled && s.Admin.AuthToken == "" {
		result.fail("server.admin.auth_token", "schema reload endpoint requires an admin auth token",
			"set server.admin.auth_token or server.admin.auth_token_file")
	}

	if s.RateLimitEnabled {
		if s.RateLimitRPS <= 0 {
			result.fail("server.rate_limit_rps", "rate_limit_rps must be greater than 0 when rate limiting is enabled", "")
		}
		if s.RateLimitBurst <= 0 {
			result.fail("server.rate_limit_burst", "rate_limit_burst must be greater than 0 when rate limiting is enabled", "")
		}
	} else if s.RateLimitRPS > 0 || s.RateLimitBurst > 0 || s.RateLimitPerClient {
		result.warn("server.rate_limit_enabled", "rate limit values are set but rate limiting is disabled",
			"enable server.rate_limit_enabled to apply rate limits")
	}

	s.validateCORS(result)

	switch s.TLSMode {
	case "", "off", "auto":
	case "file":
		if s.TLSCertFile == "" {
			result.fail("server.tls_cert_file", "TLS cert file required when tls_mode is 'file'", "")
		}
		if s.TLSKeyFile == "" {
			result.fail("server.tls_key_file", "TLS key file required when tls_mode is 'file'", "")
		}
	default:
		result.fail("server.tls_mode", fmt.Sprintf("invalid TLS mode %q", s.TLSMode), "valid values are: off, auto, file")
	}
}

func (s *ServerConfig) validateCORS(result *ValidationResult) {
	if !s.CORSEnabled {
		return
	}
	if len(s.CORSAllowedOrigins) == 0 {
		result.fail("server.cors_allowed_origins", "CORS enabled but no allowed origins configured",
			"set cors_allowed_origins or disable CORS")
	}

	hasWildcard := false
	onlyHTTP := len(s.CORSAllowedOrigins) > 0
	for _, origin := range s.CORSAllowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			hasWildcard = true
		}
		if !strings.HasPrefix(origin, "http://") {
			onlyHTTP = false
		}
	}
	if hasWildcard && s.CORSAllowCredentials {
		result.fail("server.cors_allowed_origins", "wildcard origin (*) cannot be used with credentials",
			"use specific origins with credentials, or wildcard without credentials")
	}
	if hasWildcard {
		result.warn("server.cors_allowed_origins", "CORS wildcard origin enabled",
			"use specific origins in production")
	}
	if onlyHTTP && s.TLSMode != "" && s.TLSMode != "off" {
		result.warn("server.cors_allowed_origins", "CORS allowed origins are http:// only while TLS is enabled",
			"use https:// origins when serving over TLS")
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[o.Logging.Level] {
		result.fail("observability.logging.level", fmt.Sprintf("invalid log level %q", o.Logging.Level),
			"valid values are: debug, info, warn, error")
	}
	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[o.Logging.Format] {
		result.fail("observability.logging.format", fmt.Sprintf("invalid log format %q", o.Logging.Format),
			"valid values are: json, text")
	}
	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.fail("observability.trace_sample_ratio", "trace_sample_ratio must be between 0 and 1", "")
	}

	o.OTLP.validate("observability.otlp", result)
	if o.Traces != nil {
		o.Traces.validate("observability.traces", result)
	}
	if o.Logs != nil {
		o.Logs.validate("observability.logs", result)
	}
	if o.Metrics != nil {
		o.Metrics.validate("observability.metrics", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	switch o.Protocol {
	case "", "grpc":
	case "http/protobuf":
		if !validOTLPEndpoint(o.Endpoint) {
			result.fail(prefix+".endpoint", fmt.Sprintf("invalid OTLP endpoint %q for http/protobuf", o.Endpoint),
				"use host:port or a full URL")
		}
	default:
		result.fail(prefix+".protocol", fmt.Sprintf("invalid OTLP protocol %q", o.Protocol),
			"valid values are: grpc, http/protobuf")
	}

	switch o.Compression {
	case "", "none", "gzip":
	default:
		result.fail(prefix+".compression", fmt.Sprintf("invalid OTLP compression %q", o.Compression),
			"valid values are: none, gzip")
	}
	if o.RetryMaxAttempts < 0 {
		result.fail(prefix+".retry_max_attempts", "retry_max_attempts cannot be negative", "")
	}
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
