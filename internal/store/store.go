// Package store owns the relational layout the query engine reads: the model
// catalog (models, model_members), the entities table and one table per model.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jobez/dojo/internal/dbexec"
	"github.com/jobez/dojo/internal/dialect"
	"github.com/jobez/dojo/internal/planner"
	"github.com/jobez/dojo/internal/schema"
)

// Catalog tables.
const (
	ModelsTable  = "models"
	MembersTable = "model_members"
)

func nameType(d dialect.Dialect) string {
	if d.Name() == dialect.MySQL {
		return "VARCHAR(255)"
	}
	return "TEXT"
}

func keysType(d dialect.Dialect) string {
	if d.Name() == dialect.MySQL {
		return "VARCHAR(512)"
	}
	return "TEXT"
}

// CatalogDDL returns the statements creating the catalog and entities tables.
func CatalogDDL(d dialect.Dialect) []string {
	q := d.Quote
	name := nameType(d)
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  %s %s PRIMARY KEY,
  %s INTEGER NOT NULL,
  %s TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`, q(ModelsTable), q("name"), name, q("version"), q("created_at")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  %s %s NOT NULL,
  %s INTEGER NOT NULL,
  %s %s NOT NULL,
  %s %s NOT NULL,
  %s BOOLEAN NOT NULL,
  PRIMARY KEY (%s, %s)
)`, q(MembersTable), q("model_name"), name, q("position"), q("name"), name, q("type"), name, q("is_key"),
			q("model_name"), q("position")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  %s %s PRIMARY KEY,
  %s %s NOT NULL UNIQUE,
  %s %s NOT NULL,
  %s TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
  %s TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`, q(planner.EntityTable), q(planner.EntityIDColumn), name, q(planner.EntityKeysColumn), keysType(d),
			q(planner.EntityModelNamesColumn), d.ColumnType(schema.KindString), q("created_at"), q("updated_at")),
	}
}

// ModelTableDDL returns the statement creating a model's table: the row
// identity, one column per member and a unique constraint over the keys.
func ModelTableDDL(d dialect.Dialect, m schema.Model) string {
	cols := []string{d.IdentityColumnDDL()}
	var keys []string
	for _, f := range m.Fields {
		cols = append(cols, fmt.Sprintf("%s %s NOT NULL", d.Quote(f.Name), d.ColumnType(f.Kind)))
		if f.Key {
			keys = append(keys, d.Quote(f.Name))
		}
	}
	if len(keys) > 0 {
		cols = append(cols, fmt.Sprintf("UNIQUE (%s)", strings.Join(keys, ", ")))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", d.Quote(m.Name), strings.Join(cols, ",\n  "))
}

// EnsureCatalog creates the catalog and entities tables when missing.
func EnsureCatalog(ctx context.Context, exec dbexec.QueryExecutor, d dialect.Dialect) error {
	for _, stmt := range CatalogDDL(d) {
		if _, err := exec.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create catalog: %w", err)
		}
	}
	return nil
}
