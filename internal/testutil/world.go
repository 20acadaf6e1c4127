// Package testutil builds throwaway world stores for integration tests.
//
// NewWorld always works: it opens an in-memory SQLite database. MySQL and
// Postgres worlds are opt-in through DOJO_TEST_MYSQL_DSN and
// DOJO_TEST_POSTGRES_DSN; tests using them are skipped when unset.
package testutil

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jobez/dojo/internal/dbexec"
	"github.com/jobez/dojo/internal/dialect"
	"github.com/jobez/dojo/internal/planner"
	"github.com/jobez/dojo/internal/schema"
	"github.com/jobez/dojo/internal/store"
)

// World is a store with the catalog tables in place.
type World struct {
	DB       *sql.DB
	Dialect  dialect.Dialect
	Exec     *dbexec.StandardExecutor
	Writer   *store.Writer
	Registry *schema.Registry

	models []string
}

// NewWorld opens an empty in-memory SQLite world.
func NewWorld(t testing.TB) *World {
	t.Helper()
	return open(t, dialect.MustFor(dialect.SQLite), ":memory:")
}

// NewWorldFromEnv opens a world on the backend named by driver, reading its
// DSN from the environment. SQLite needs no DSN.
func NewWorldFromEnv(t testing.TB, driver string) *World {
	t.Helper()
	if driver == dialect.SQLite {
		return NewWorld(t)
	}
	env := "DOJO_TEST_" + strings.ToUpper(driver) + "_DSN"
	dsn := os.Getenv(env)
	if dsn == "" {
		t.Skipf("%s not set; skipping %s integration test", env, driver)
	}
	return open(t, dialect.MustFor(driver), dsn)
}

func open(t testing.TB, d dialect.Dialect, dsn string) *World {
	t.Helper()
	db, err := d.Open(dsn)
	if err != nil {
		t.Fatalf("failed to open %s world: %v", d.Name(), err)
	}
	if d.Name() == dialect.SQLite {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		t.Fatalf("failed to ping %s world: %v", d.Name(), err)
	}

	exec := dbexec.NewStandardExecutor(db)
	if err := store.EnsureCatalog(ctx, exec, d); err != nil {
		_ = db.Close()
		t.Fatalf("failed to create catalog: %v", err)
	}

	w := &World{
		DB:       db,
		Dialect:  d,
		Exec:     exec,
		Writer:   store.NewWriter(exec, d),
		Registry: schema.NewRegistry(),
	}
	t.Cleanup(func() { w.teardown(t) })
	return w
}

// RegisterModel registers a model in the store and in w.Registry.
func (w *World) RegisterModel(t testing.TB, m schema.Model) schema.Model {
	t.Helper()
	if err := w.Writer.RegisterModel(context.Background(), m); err != nil {
		t.Fatalf("failed to register model %s: %v", m.Name, err)
	}
	if err := w.Registry.Register(m); err != nil {
		t.Fatalf("failed to add model %s to registry: %v", m.Name, err)
	}
	w.models = append(w.models, m.Name)
	return m
}

// SetRecord writes one row of a registered model.
func (w *World) SetRecord(t testing.TB, model string, values map[string]interface{}) int64 {
	t.Helper()
	m, err := w.Registry.Get(model)
	if err != nil {
		t.Fatalf("model %s is not registered: %v", model, err)
	}
	id, err := w.Writer.SetRecord(context.Background(), m, values)
	if err != nil {
		t.Fatalf("failed to write %s record: %v", model, err)
	}
	return id
}

// MustExec runs a raw statement, for tests that break invariants on purpose.
func (w *World) MustExec(t testing.TB, query string, args ...interface{}) {
	t.Helper()
	if _, err := w.DB.Exec(query, args...); err != nil {
		t.Fatalf("failed to execute %q: %v", query, err)
	}
}

// Model builds a model from "name:type" member specs; a leading '#' marks a key.
func Model(t testing.TB, name string, members ...string) schema.Model {
	t.Helper()
	m := schema.Model{Name: name, Version: 1}
	for _, def := range members {
		parts := strings.SplitN(def, ":", 2)
		if len(parts) != 2 {
			t.Fatalf("invalid member def %q", def)
		}
		memberName := parts[0]
		key := strings.HasPrefix(memberName, "#")
		f, err := schema.NewField(strings.TrimPrefix(memberName, "#"), parts[1], key)
		if err != nil {
			t.Fatalf("invalid member %q: %v", def, err)
		}
		m.Fields = append(m.Fields, f)
	}
	return m
}

func (w *World) teardown(t testing.TB) {
	if w.Dialect.Name() != dialect.SQLite {
		tables := append([]string{}, w.models...)
		tables = append(tables, planner.EntityTable, store.MembersTable, store.ModelsTable)
		for _, table := range tables {
			if _, err := w.DB.Exec("DROP TABLE IF EXISTS " + w.Dialect.Quote(table)); err != nil {
				t.Logf("warning: failed to drop %s: %v", table, err)
			}
		}
	}
	if err := w.DB.Close(); err != nil {
		t.Logf("warning: failed to close world database: %v", err)
	}
}

