package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
)

// tlsConfigName is the name the custom TLS config is registered under with the MySQL driver.
const tlsConfigName = "dojo-graphql-custom"

const defaultSQLitePath = "dojo.db"

// EffectivePort returns the configured port, or the driver's default.
func (d *DatabaseConfig) EffectivePort() int {
	if d.Port != 0 {
		return d.Port
	}
	switch d.Driver {
	case DriverMySQL:
		return 3306
	case DriverPostgres:
		return 5432
	}
	return 0
}

// DSN returns the data source name for the configured driver.
func (d *DatabaseConfig) DSN() (string, error) {
	switch d.Driver {
	case DriverMySQL:
		return d.mysqlDSN()
	case DriverPostgres:
		return d.postgresDSN(), nil
	case DriverSQLite:
		return d.sqliteDSN(), nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", d.Driver)
	}
}

func (d *DatabaseConfig) mysqlDSN() (string, error) {
	var cfg *mysql.Config
	if d.ConnectionString != "" {
		parsed, err := mysql.ParseDSN(d.ConnectionString)
		if err != nil {
			return "", fmt.Errorf("database.dsn is invalid: %w", err)
		}
		cfg = parsed
	} else {
		cfg = mysql.NewConfig()
		cfg.User = d.User
		cfg.Passwd = d.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(d.Host, strconv.Itoa(d.EffectivePort()))
		cfg.DBName = d.Database
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	if param := d.mysqlTLSParam(); param != "" && cfg.TLSConfig == "" {
		cfg.TLSConfig = param
	}
	return cfg.FormatDSN(), nil
}

func (d *DatabaseConfig) mysqlTLSParam() string {
	switch d.TLS.Mode {
	case "":
		return ""
	case "off":
		return "false"
	case "skip-verify":
		return "skip-verify"
	default:
		return tlsConfigName
	}
}

func (d *DatabaseConfig) postgresDSN() string {
	if d.ConnectionString != "" {
		return d.ConnectionString
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.EffectivePort())),
		Path:   "/" + d.Database,
	}
	if d.Password != "" {
		u.User = url.UserPassword(d.User, d.Password)
	} else if d.User != "" {
		u.User = url.User(d.User)
	}

	q := url.Values{}
	switch d.TLS.Mode {
	case "off":
		q.Set("sslmode", "disable")
	case "skip-verify":
		q.Set("sslmode", "require")
	case "verify-ca", "verify-full":
		q.Set("sslmode", d.TLS.Mode)
	}
	if d.TLS.CAFile != "" {
		q.Set("sslrootcert", d.TLS.CAFile)
	}
	if d.TLS.CertFile != "" && d.TLS.KeyFile != "" {
		q.Set("sslcert", d.TLS.CertFile)
		q.Set("sslkey", d.TLS.KeyFile)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (d *DatabaseConfig) sqliteDSN() string {
	if d.ConnectionString != "" {
		return d.ConnectionString
	}
	path := d.Database
	if path == "" {
		path = defaultSQLitePath
	}
	if path == ":memory:" || strings.Contains(path, "?") {
		return path
	}
	return path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// Target returns the database the store lives in, and where that name came
// from. It is used for startup logging and validation.
func (d *DatabaseConfig) Target() (name string, source string, err error) {
	dsn := strings.TrimSpace(d.ConnectionString)
	switch d.Driver {
	case DriverMySQL:
		if dsn != "" {
			parsed, err := mysql.ParseDSN(dsn)
			if err != nil {
				return "", "", fmt.Errorf("database.dsn is invalid: %w", err)
			}
			if parsed.DBName == "" {
				return "", "", fmt.Errorf("database.dsn does not name a database")
			}
			return parsed.DBName, "dsn", nil
		}
	case DriverPostgres:
		if dsn != "" {
			parsed, err := pgx.ParseConfig(dsn)
			if err != nil {
				return "", "", fmt.Errorf("database.dsn is invalid: %w", err)
			}
			if parsed.Database == "" {
				return "", "", fmt.Errorf("database.dsn does not name a database")
			}
			return parsed.Database, "dsn", nil
		}
	case DriverSQLite:
		if dsn != "" {
			return strings.SplitN(dsn, "?", 2)[0], "dsn", nil
		}
		if strings.TrimSpace(d.Database) == "" {
			return defaultSQLitePath, "default", nil
		}
	default:
		return "", "", fmt.Errorf("unsupported database driver %q", d.Driver)
	}

	if strings.TrimSpace(d.Database) == "" {
		return "", "", fmt.Errorf("no database configured: set database.database or include it in database.dsn")
	}
	return d.Database, "database.database", nil
}

// RegisterTLS registers the custom TLS configuration with the MySQL driver.
// It must run before the pool is opened. Other drivers and modes that need
// no custom config are a no-op.
func (d *DatabaseConfig) RegisterTLS() error {
	if d.Driver != DriverMySQL {
		return nil
	}
	if d.TLS.Mode != "verify-ca" && d.TLS.Mode != "verify-full" {
		return nil
	}

	tlsCfg, err := d.TLS.build()
	if err != nil {
		return fmt.Errorf("failed to build TLS config: %w", err)
	}
	if err := mysql.RegisterTLSConfig(tlsConfigName, tlsCfg); err != nil {
		return fmt.Errorf("failed to register TLS config: %w", err)
	}
	return nil
}

func (t *DatabaseTLSConfig) build() (*tls.Config, error) {
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}

	if t.CAFile != "" {
		caCert, err := os.ReadFile(t.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file %q: %w", t.CAFile, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate from %q", t.CAFile)
		}
		tlsCfg.RootCAs = pool
	}

	switch {
	case t.CertFile != "" && t.KeyFile != "":
		cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	case t.CertFile != "" || t.KeyFile != "":
		return nil, fmt.Errorf("both cert_file and key_file must be specified for client certificate authentication")
	}

	if t.Mode == "verify-full" && t.ServerName != "" {
		tlsCfg.ServerName = t.ServerName
	}
	return tlsCfg, nil
}
