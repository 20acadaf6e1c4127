package planner

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/jobez/dojo/internal/dialect"
	"github.com/jobez/dojo/internal/queryerr"
	"github.com/jobez/dojo/internal/schema"
	"github.com/jobez/dojo/internal/typebuilder"
)

// Predicate is one validated comparison against a member column.
type Predicate struct {
	Field schema.Field
	Op    typebuilder.Op
	Value interface{} // store-encoded parameter
}

// Filter is a conjunction of predicates in canonical order.
type Filter struct {
	Predicates []Predicate
}

// CompileFilter validates a where input against the model shape and converts
// it into a Filter. Keys are where input names ("x", "xGTE", ...). An empty
// input matches every row.
func CompileFilter(shape *typebuilder.Shape, where map[string]interface{}) (Filter, error) {
	var filter Filter
	if len(where) == 0 {
		return filter, nil
	}

	names := make([]string, 0, len(where))
	for name := range where {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		in, ok := shape.LookupWhere(name)
		if !ok {
			return Filter{}, shape.Explain(name)
		}
		raw := where[name]
		if raw == nil {
			return Filter{}, queryerr.SchemaValidation(name, "null is not a valid filter value")
		}
		var value interface{}
		var err error
		if in.Op.Ordering() {
			value, err = in.Field.BoundValue(raw)
		} else {
			value, err = in.Field.StoreValue(raw)
		}
		if err != nil {
			return Filter{}, queryerr.SchemaValidation(name, "%v", err)
		}
		filter.Predicates = append(filter.Predicates, Predicate{Field: in.Field, Op: in.Op, Value: value})
	}

	sort.SliceStable(filter.Predicates, func(i, j int) bool {
		pi, pj := filter.Predicates[i], filter.Predicates[j]
		if pi.Field.Name != pj.Field.Name {
			return shape.Model.Position(pi.Field.Name) < shape.Model.Position(pj.Field.Name)
		}
		return pi.Op < pj.Op
	})
	return filter, nil
}

// Empty reports whether the filter matches all rows.
func (f Filter) Empty() bool {
	return len(f.Predicates) == 0
}

// Condition renders the filter as a squirrel condition, or nil when empty.
func (f Filter) Condition(d dialect.Dialect) sq.Sqlizer {
	if f.Empty() {
		return nil
	}
	conditions := make(sq.And, 0, len(f.Predicates))
	for _, p := range f.Predicates {
		conditions = append(conditions, predicateCondition(d.Quote(p.Field.Name), p))
	}
	if len(conditions) == 1 {
		return conditions[0]
	}
	return conditions
}

func predicateCondition(column string, p Predicate) sq.Sqlizer {
	switch p.Op {
	case typebuilder.OpNEQ:
		return sq.NotEq{column: p.Value}
	case typebuilder.OpGT:
		return sq.Gt{column: p.Value}
	case typebuilder.OpGTE:
		return sq.GtOrEq{column: p.Value}
	case typebuilder.OpLT:
		return sq.Lt{column: p.Value}
	case typebuilder.OpLTE:
		return sq.LtOrEq{column: p.Value}
	default:
		return sq.Eq{column: p.Value}
	}
}

// Key is a stable description of the filter, used to bind cursors to it.
func (f Filter) Key() string {
	parts := make([]string, 0, len(f.Predicates))
	for _, p := range f.Predicates {
		parts = append(parts, fmt.Sprintf("%s:%s=%s", p.Field.Name, p.Op, predicateValueText(p.Value)))
	}
	return strings.Join(parts, ";")
}

func predicateValueText(v interface{}) string {
	if b, ok := v.([]byte); ok {
		return "x" + hex.EncodeToString(b)
	}
	return fmt.Sprintf("%v", v)
}
