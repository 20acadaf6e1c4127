// Command seed-world loads a YAML fixture of models and records into a model
// store, for local development against the query server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jobez/dojo/internal/dbexec"
	"github.com/jobez/dojo/internal/dialect"
	"github.com/jobez/dojo/internal/store"
)

func main() {
	driver := flag.String("driver", dialect.SQLite, "Store driver (sqlite, mysql, postgres)")
	dsn := flag.String("dsn", "dojo.db", "Store DSN")
	fixturePath := flag.String("fixture", "world.yaml", "Path to the YAML fixture")
	timeout := flag.Duration("timeout", time.Minute, "Overall timeout")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, *driver, *dsn, *fixturePath); err != nil {
		exitErr(err)
	}
}

func run(ctx context.Context, driver, dsn, fixturePath string) error {
	d, err := dialect.For(driver)
	if err != nil {
		return err
	}

	f, err := os.Open(fixturePath)
	if err != nil {
		return fmt.Errorf("failed to open fixture: %w", err)
	}
	defer f.Close()
	fx, err := loadFixture(f)
	if err != nil {
		return err
	}

	db, err := d.Open(dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	if d.Name() == dialect.SQLite {
		db.SetMaxOpenConns(1)
	}

	exec := dbexec.NewStandardExecutor(db)
	if err := store.EnsureCatalog(ctx, exec, d); err != nil {
		return err
	}
	stats, err := fx.apply(ctx, store.NewWriter(exec, d))
	if err != nil {
		return err
	}

	fmt.Printf("seeded %d models and %d records\n", stats.models, stats.records)
	return nil
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
