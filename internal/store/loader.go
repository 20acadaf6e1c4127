package store

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/jobez/dojo/internal/dbexec"
	"github.com/jobez/dojo/internal/dialect"
	"github.com/jobez/dojo/internal/schema"
)

// SkippedModel is a catalog model that could not be loaded.
type SkippedModel struct {
	Name string
	Err  error
}

// LoadModels reads every registered model from the catalog, members in
// declaration order. Models whose members cannot be mapped are returned in
// skipped instead of failing the load; read failures still fail it.
func LoadModels(ctx context.Context, q dbexec.QueryExecutor, d dialect.Dialect) (models []schema.Model, skipped []SkippedModel, err error) {
	query, args, err := d.Builder().
		Select(d.Quote("name"), d.Quote("version")).
		From(d.Quote(ModelsTable)).
		OrderBy(d.Quote("name")).
		ToSql()
	if err != nil {
		return nil, nil, err
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("load models: %w", err)
	}
	index := make(map[string]int)
	for rows.Next() {
		var m schema.Model
		if err := rows.Scan(&m.Name, &m.Version); err != nil {
			_ = rows.Close()
			return nil, nil, fmt.Errorf("scan model: %w", err)
		}
		index[m.Name] = len(models)
		models = append(models, m)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, nil, err
	}
	_ = rows.Close()

	query, args, err = d.Builder().
		Select(d.Quote("model_name"), d.Quote("name"), d.Quote("type"), d.Quote("is_key")).
		From(d.Quote(MembersTable)).
		OrderBy(d.Quote("model_name"), d.Quote("position")).
		ToSql()
	if err != nil {
		return nil, nil, err
	}
	rows, err = q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("load model members: %w", err)
	}
	defer func() { _ = rows.Close() }()

	broken := make(map[string]error)
	for rows.Next() {
		var modelName, name, typeName string
		var key bool
		if err := rows.Scan(&modelName, &name, &typeName, &key); err != nil {
			return nil, nil, fmt.Errorf("scan model member: %w", err)
		}
		i, ok := index[modelName]
		if !ok {
			// Members without a catalog row belong to no model.
			continue
		}
		if broken[modelName] != nil {
			continue
		}
		f, err := schema.NewField(name, typeName, key)
		if err != nil {
			broken[modelName] = err
			continue
		}
		models[i].Fields = append(models[i].Fields, f)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	kept := models[:0]
	for _, m := range models {
		if err := broken[m.Name]; err != nil {
			skipped = append(skipped, SkippedModel{Name: m.Name, Err: err})
			continue
		}
		kept = append(kept, m)
	}
	return kept, skipped, nil
}

// LoadRegistry builds a registry from the catalog. Models that fail to load
// or to register are left out and reported in skipped, so one bad
// registration does not hide the rest.
func LoadRegistry(ctx context.Context, q dbexec.QueryExecutor, d dialect.Dialect) (*schema.Registry, []SkippedModel, error) {
	models, skipped, err := LoadModels(ctx, q, d)
	if err != nil {
		return nil, nil, err
	}
	registry := schema.NewRegistry()
	for _, m := range models {
		if err := registry.Register(m); err != nil {
			skipped = append(skipped, SkippedModel{Name: m.Name, Err: err})
		}
	}
	return registry, skipped, nil
}

// CatalogVersion returns a cheap fingerprint of the catalog used to skip
// rebuilds when nothing changed: the model count and the version sum.
func CatalogVersion(ctx context.Context, q dbexec.QueryExecutor, d dialect.Dialect) (string, error) {
	query, args, err := d.Builder().
		Select("COUNT(*)").
		Column(sq.Expr("COALESCE(SUM(" + d.Quote("version") + "), 0)")).
		From(d.Quote(ModelsTable)).
		ToSql()
	if err != nil {
		return "", err
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return "", fmt.Errorf("read catalog version: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var count, sum int64
	if rows.Next() {
		if err := rows.Scan(&count, &sum); err != nil {
			return "", err
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d:%d", count, sum), nil
}
