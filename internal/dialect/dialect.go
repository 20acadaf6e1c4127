// Package dialect captures the per-backend differences the query engine cares
// about: identifier quoting, placeholder style, snapshot transaction options,
// column types for the store layout, and driver error codes.
package dialect

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	sq "github.com/Masterminds/squirrel"
	"github.com/XSAM/otelsql"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"modernc.org/sqlite"

	"github.com/jobez/dojo/internal/schema"
	"github.com/jobez/dojo/internal/sqlutil"
)

// Supported backend names.
const (
	MySQL    = "mysql"
	SQLite   = "sqlite"
	Postgres = "postgres"
)

// Dialect describes one SQL backend.
type Dialect struct {
	name        string
	driver      string
	placeholder sq.PlaceholderFormat
	quote       func(string) string
	txOptions   *sql.TxOptions
	system      attribute.KeyValue
}

var dialects = map[string]Dialect{
	MySQL: {
		name:        MySQL,
		driver:      "mysql",
		placeholder: sq.Question,
		quote:       sqlutil.QuoteIdentifier,
		txOptions:   &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true},
		system:      semconv.DBSystemMySQL,
	},
	// SQLite transactions are serializable; a deferred transaction pins its
	// read snapshot at the first statement.
	SQLite: {
		name:        SQLite,
		driver:      "sqlite",
		placeholder: sq.Question,
		quote:       sqlutil.QuoteIdentifier,
		txOptions:   nil,
		system:      semconv.DBSystemSqlite,
	},
	Postgres: {
		name:        Postgres,
		driver:      "pgx",
		placeholder: sq.Dollar,
		quote:       sqlutil.QuoteANSIIdentifier,
		txOptions:   &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true},
		system:      semconv.DBSystemPostgreSQL,
	},
}

// For returns the dialect with the given name.
func For(name string) (Dialect, error) {
	d, ok := dialects[name]
	if !ok {
		return Dialect{}, fmt.Errorf("unsupported database driver %q (expected mysql, sqlite or postgres)", name)
	}
	return d, nil
}

// MustFor is For for package-level test fixtures.
func MustFor(name string) Dialect {
	d, err := For(name)
	if err != nil {
		panic(err)
	}
	return d
}

// Name returns the backend name.
func (d Dialect) Name() string { return d.name }

// DriverName returns the database/sql driver name.
func (d Dialect) DriverName() string { return d.driver }

// Quote quotes an identifier.
func (d Dialect) Quote(ident string) string { return d.quote(ident) }

// Builder returns a squirrel statement builder using the dialect's placeholders.
func (d Dialect) Builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(d.placeholder)
}

// Placeholder returns the squirrel placeholder format.
func (d Dialect) Placeholder() sq.PlaceholderFormat { return d.placeholder }

// SnapshotTxOptions returns the options for the read-only transaction that
// wraps a count and a page fetch. A nil value means driver defaults.
func (d Dialect) SnapshotTxOptions() *sql.TxOptions {
	if d.txOptions == nil {
		return nil
	}
	opts := *d.txOptions
	return &opts
}

// SystemAttribute returns the semconv db.system attribute.
func (d Dialect) SystemAttribute() attribute.KeyValue { return d.system }

// Open opens an instrumented connection pool.
func (d Dialect) Open(dsn string, opts ...otelsql.Option) (*sql.DB, error) {
	opts = append([]otelsql.Option{otelsql.WithAttributes(d.system)}, opts...)
	if d.name != Postgres {
		return otelsql.Open(d.driver, dsn, opts...)
	}
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres dsn: %w", err)
	}
	return otelsql.OpenDB(stdlib.GetConnector(*cfg), opts...), nil
}

// ColumnType returns the column type used to store a kind.
func (d Dialect) ColumnType(kind schema.Kind) string {
	switch kind {
	case schema.KindInt:
		return "BIGINT"
	case schema.KindFelt:
		if d.name == MySQL {
			return "CHAR(66)"
		}
		return "TEXT"
	case schema.KindBool:
		return "BOOLEAN"
	case schema.KindBytes:
		if d.name == Postgres {
			return "BYTEA"
		}
		return "BLOB"
	default:
		if d.name == MySQL {
			return "VARCHAR(1024)"
		}
		return "TEXT"
	}
}

// IdentityColumnDDL returns the column definition for the internal row identity.
func (d Dialect) IdentityColumnDDL() string {
	switch d.name {
	case MySQL:
		return d.Quote(schema.IdentityColumn) + " BIGINT AUTO_INCREMENT PRIMARY KEY"
	case Postgres:
		return d.Quote(schema.IdentityColumn) + " BIGSERIAL PRIMARY KEY"
	default:
		return d.Quote(schema.IdentityColumn) + " INTEGER PRIMARY KEY AUTOINCREMENT"
	}
}

// BackendCode extracts the driver-specific error code, if any.
func BackendCode(err error) string {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return strconv.Itoa(int(mysqlErr.Number))
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return strconv.Itoa(sqliteErr.Code())
	}
	return ""
}

// Ping verifies connectivity with a bounded context.
func Ping(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return sql.ErrConnDone
	}
	return db.PingContext(ctx)
}
