package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/jobez/dojo/internal/dbexec"
	"github.com/jobez/dojo/internal/dialect"
	"github.com/jobez/dojo/internal/planner"
	"github.com/jobez/dojo/internal/schema"
)

// Writer applies model registrations and record updates the way the
// ingestion pipeline does: a model is registered before its rows, and a row
// change and its entity membership change commit together.
type Writer struct {
	exec    dbexec.TxRunner
	dialect dialect.Dialect
}

// NewWriter creates a writer.
func NewWriter(exec dbexec.TxRunner, d dialect.Dialect) *Writer {
	return &Writer{exec: exec, dialect: d}
}

// EntityID derives the entity id from an encoded key tuple.
func EntityID(keys string) string {
	sum := sha256.Sum256([]byte(keys))
	return "0x" + hex.EncodeToString(sum[:31])
}

// RegisterModel records a model in the catalog and creates its table.
func (w *Writer) RegisterModel(ctx context.Context, m schema.Model) error {
	if err := m.Validate(); err != nil {
		return err
	}
	d := w.dialect
	return w.exec.InTx(ctx, nil, func(q dbexec.QueryExecutor) error {
		if err := exec(ctx, q, d.Builder().
			Insert(d.Quote(ModelsTable)).
			Columns(d.Quote("name"), d.Quote("version")).
			Values(m.Name, m.Version)); err != nil {
			return fmt.Errorf("insert model %s: %w", m.Name, err)
		}
		for i, f := range m.Fields {
			if err := exec(ctx, q, d.Builder().
				Insert(d.Quote(MembersTable)).
				Columns(d.Quote("model_name"), d.Quote("position"), d.Quote("name"), d.Quote("type"), d.Quote("is_key")).
				Values(m.Name, i, f.Name, f.Type, f.Key)); err != nil {
				return fmt.Errorf("insert member %s.%s: %w", m.Name, f.Name, err)
			}
		}
		if _, err := q.ExecContext(ctx, ModelTableDDL(d, m)); err != nil {
			return fmt.Errorf("create table %s: %w", m.Name, err)
		}
		return nil
	})
}

// SetRecord inserts or updates the row identified by the key members in
// values and adds the model to its entity. It returns the row identity.
func (w *Writer) SetRecord(ctx context.Context, m schema.Model, values map[string]interface{}) (int64, error) {
	stored, keys, err := w.encode(m, values)
	if err != nil {
		return 0, err
	}
	d := w.dialect

	var id int64
	err = w.exec.InTx(ctx, nil, func(q dbexec.QueryExecutor) error {
		existing, found, err := w.rowID(ctx, q, m, stored)
		if err != nil {
			return err
		}
		if found {
			update := d.Builder().Update(d.Quote(m.Name)).Where(sq.Eq{d.Quote(schema.IdentityColumn): existing})
			for _, f := range m.Fields {
				if !f.Key {
					update = update.Set(d.Quote(f.Name), stored[f.Name])
				}
			}
			if err := exec(ctx, q, update); err != nil {
				return fmt.Errorf("update %s: %w", m.Name, err)
			}
			id = existing
		} else {
			insert := d.Builder().Insert(d.Quote(m.Name))
			cols := make([]string, 0, len(m.Fields))
			vals := make([]interface{}, 0, len(m.Fields))
			for _, f := range m.Fields {
				cols = append(cols, d.Quote(f.Name))
				vals = append(vals, stored[f.Name])
			}
			if err := exec(ctx, q, insert.Columns(cols...).Values(vals...)); err != nil {
				return fmt.Errorf("insert %s: %w", m.Name, err)
			}
			if id, _, err = w.rowID(ctx, q, m, stored); err != nil {
				return err
			}
		}
		return w.addMembership(ctx, q, keys, m.Name)
	})
	return id, err
}

// DeleteRecord removes a row and drops the model from its entity. An entity
// left without models is deleted.
func (w *Writer) DeleteRecord(ctx context.Context, m schema.Model, values map[string]interface{}) error {
	stored, keys, err := w.encode(m, values)
	if err != nil {
		return err
	}
	d := w.dialect
	return w.exec.InTx(ctx, nil, func(q dbexec.QueryExecutor) error {
		if err := exec(ctx, q, d.Builder().Delete(d.Quote(m.Name)).Where(keyCondition(d, m, stored))); err != nil {
			return fmt.Errorf("delete %s: %w", m.Name, err)
		}
		names, found, err := w.modelNames(ctx, q, keys)
		if err != nil || !found {
			return err
		}
		delete(names, m.Name)
		if len(names) == 0 {
			return exec(ctx, q, d.Builder().Delete(d.Quote(planner.EntityTable)).
				Where(sq.Eq{d.Quote(planner.EntityKeysColumn): keys}))
		}
		return exec(ctx, q, d.Builder().Update(d.Quote(planner.EntityTable)).
			Set(d.Quote(planner.EntityModelNamesColumn), joinNames(names)).
			Where(sq.Eq{d.Quote(planner.EntityKeysColumn): keys}))
	})
}

// encode converts input values to column values and derives the encoded key tuple.
func (w *Writer) encode(m schema.Model, values map[string]interface{}) (map[string]interface{}, string, error) {
	stored := make(map[string]interface{}, len(m.Fields))
	api := make(map[string]interface{}, len(m.Fields))
	for _, f := range m.Fields {
		raw, ok := values[f.Name]
		if !ok {
			if f.Key {
				return nil, "", fmt.Errorf("%s.%s: key member is required", m.Name, f.Name)
			}
			continue
		}
		v, err := f.StoreValue(raw)
		if err != nil {
			return nil, "", fmt.Errorf("%s.%s: %w", m.Name, f.Name, err)
		}
		stored[f.Name] = v
		if api[f.Name], err = f.APIValue(v); err != nil {
			return nil, "", err
		}
	}
	tuple, err := m.KeyTuple(api)
	if err != nil {
		return nil, "", err
	}
	return stored, schema.JoinKeys(tuple), nil
}

func (w *Writer) rowID(ctx context.Context, q dbexec.QueryExecutor, m schema.Model, stored map[string]interface{}) (int64, bool, error) {
	d := w.dialect
	query, args, err := d.Builder().
		Select(d.Quote(schema.IdentityColumn)).
		From(d.Quote(m.Name)).
		Where(keyCondition(d, m, stored)).
		ToSql()
	if err != nil {
		return 0, false, err
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, false, err
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		return 0, false, rows.Err()
	}
	var id int64
	if err := rows.Scan(&id); err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (w *Writer) modelNames(ctx context.Context, q dbexec.QueryExecutor, keys string) (map[string]struct{}, bool, error) {
	d := w.dialect
	query, args, err := d.Builder().
		Select(d.Quote(planner.EntityModelNamesColumn)).
		From(d.Quote(planner.EntityTable)).
		Where(sq.Eq{d.Quote(planner.EntityKeysColumn): keys}).
		ToSql()
	if err != nil {
		return nil, false, err
	}
	var raw string
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		return nil, false, rows.Err()
	}
	if err := rows.Scan(&raw); err != nil {
		return nil, false, err
	}
	names := make(map[string]struct{})
	for _, name := range strings.Split(raw, ",") {
		if name != "" {
			names[name] = struct{}{}
		}
	}
	return names, true, nil
}

func (w *Writer) addMembership(ctx context.Context, q dbexec.QueryExecutor, keys, model string) error {
	d := w.dialect
	names, found, err := w.modelNames(ctx, q, keys)
	if err != nil {
		return err
	}
	if !found {
		return exec(ctx, q, d.Builder().Insert(d.Quote(planner.EntityTable)).
			Columns(d.Quote(planner.EntityIDColumn), d.Quote(planner.EntityKeysColumn), d.Quote(planner.EntityModelNamesColumn)).
			Values(EntityID(keys), keys, model))
	}
	if _, ok := names[model]; ok {
		return nil
	}
	names[model] = struct{}{}
	return exec(ctx, q, d.Builder().Update(d.Quote(planner.EntityTable)).
		Set(d.Quote(planner.EntityModelNamesColumn), joinNames(names)).
		Where(sq.Eq{d.Quote(planner.EntityKeysColumn): keys}))
}

func keyCondition(d dialect.Dialect, m schema.Model, stored map[string]interface{}) sq.Eq {
	cond := sq.Eq{}
	for _, f := range m.KeyFields() {
		cond[d.Quote(f.Name)] = stored[f.Name]
	}
	return cond
}

func joinNames(names map[string]struct{}) string {
	out := make([]string, 0, len(names))
	for name := range names {
		out = append(out, name)
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}

func exec(ctx context.Context, q dbexec.QueryExecutor, stmt sq.Sqlizer) error {
	query, args, err := stmt.ToSql()
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, query, args...)
	return err
}
