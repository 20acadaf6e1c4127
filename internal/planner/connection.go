package planner

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/jobez/dojo/internal/dialect"
	"github.com/jobez/dojo/internal/schema"
)

const (
	// DefaultConnectionLimit is the default page size for connection queries.
	DefaultConnectionLimit = 25
	// MaxConnectionLimit is the maximum allowed page size.
	MaxConnectionLimit = 100
)

// ConnectionPlan holds the planned SQL for a connection query.
type ConnectionPlan struct {
	Page    SQLQuery // filtered, seeked, ordered rows (first+1)
	Count   SQLQuery // totalCount query (filter only, no cursor)
	Columns []string // scan order of the page query
	First   int
}

// PlanConnection plans the count and page statements for one model.
// seek holds the store-encoded order tuple of the after cursor, or nil.
func PlanConnection(d dialect.Dialect, model schema.Model, filter Filter, order Order, seek []interface{}, first int) (*ConnectionPlan, error) {
	if len(order.Terms) == 0 {
		return nil, fmt.Errorf("connection on %s requires an order", model.Name)
	}
	columns := PageColumns(model)
	condition := filter.Condition(d)

	var seekCondition sq.Sqlizer
	if seek != nil {
		if len(seek) != len(order.Terms) {
			return nil, fmt.Errorf("seek tuple has %d values, order has %d columns", len(seek), len(order.Terms))
		}
		seekCondition = BuildSeekCondition(d, order.Columns(), seek, order.Direction)
	}

	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = d.Quote(col)
	}
	builder := d.Builder().Select(quoted...).From(d.Quote(model.Name))
	if condition != nil {
		builder = builder.Where(condition)
	}
	if seekCondition != nil {
		builder = builder.Where(seekCondition)
	}
	pageSQL, pageArgs, err := builder.
		OrderBy(order.Clauses(d)...).
		Limit(uint64(first + 1)).
		ToSql()
	if err != nil {
		return nil, err
	}

	count, err := buildCountSQL(d, model, condition)
	if err != nil {
		return nil, err
	}

	return &ConnectionPlan{
		Page:    SQLQuery{SQL: pageSQL, Args: pageArgs},
		Count:   count,
		Columns: columns,
		First:   first,
	}, nil
}

// PageColumns lists the columns selected for a model row: the row identity
// followed by every member in declaration order.
func PageColumns(model schema.Model) []string {
	cols := make([]string, 0, len(model.Fields)+1)
	cols = append(cols, schema.IdentityColumn)
	for _, f := range model.Fields {
		cols = append(cols, f.Name)
	}
	return cols
}

// BuildSeekCondition creates a SQL row comparison for cursor-based seek.
// For ASC: (col1, col2) > (?, ?)
// For DESC: (col1, col2) < (?, ?)
func BuildSeekCondition(d dialect.Dialect, columns []string, values []interface{}, direction string) sq.Sqlizer {
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = d.Quote(col)
	}

	lhs := "(" + strings.Join(quoted, ", ") + ")"
	placeholders := make([]string, len(values))
	for i := range values {
		placeholders[i] = "?"
	}
	rhs := "(" + strings.Join(placeholders, ", ") + ")"

	op := ">"
	if strings.ToUpper(direction) == DESC {
		op = "<"
	}

	return sq.Expr(lhs+" "+op+" "+rhs, values...)
}

func buildCountSQL(d dialect.Dialect, model schema.Model, condition sq.Sqlizer) (SQLQuery, error) {
	builder := d.Builder().Select("*").From(d.Quote(model.Name))
	if condition != nil {
		builder = builder.Where(condition)
	}
	// Placeholders are rewritten after wrapping so Postgres numbering stays intact.
	base, args, err := builder.PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	wrapped, err := d.Placeholder().ReplacePlaceholders(fmt.Sprintf("SELECT COUNT(*) FROM (%s) AS __count", base))
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{SQL: wrapped, Args: args}, nil
}

// ClampFirst resolves the page size: nil selects fallback, values above max
// are clamped, negative values are rejected.
func ClampFirst(first *int, fallback, max int) (int, error) {
	if max <= 0 {
		max = MaxConnectionLimit
	}
	if fallback <= 0 {
		fallback = DefaultConnectionLimit
	}
	if fallback > max {
		fallback = max
	}
	if first == nil {
		return fallback, nil
	}
	if *first < 0 {
		return 0, fmt.Errorf("first must be non-negative")
	}
	if *first > max {
		return max, nil
	}
	return *first, nil
}

// IdentityValue returns the row identity of a scanned page row.
func IdentityValue(row map[string]interface{}) (int64, error) {
	v, err := identityField.APIValue(row[schema.IdentityColumn])
	if err != nil {
		return 0, err
	}
	id, ok := v.(int64)
	if !ok {
		return 0, fmt.Errorf("row has no %s", schema.IdentityColumn)
	}
	return id, nil
}
