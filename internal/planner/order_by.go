package planner

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jobez/dojo/internal/dialect"
	"github.com/jobez/dojo/internal/queryerr"
	"github.com/jobez/dojo/internal/schema"
	"github.com/jobez/dojo/internal/typebuilder"
)

// Sort directions.
const (
	ASC  = "ASC"
	DESC = "DESC"
)

// identityField describes the internal row identity as an Int member so it
// can share the value conversions of ordinary members.
var identityField = schema.Field{Name: schema.IdentityColumn, Type: "i64", Kind: schema.KindInt}

// OrderInput is the caller's requested ordering.
type OrderInput struct {
	Field     string // member name or order enum value
	Direction string
}

// OrderTerm is one column of the compiled ordering.
type OrderTerm struct {
	Field    schema.Field
	Identity bool
}

// Order is a strict total order: an optional member followed by the row identity.
// All terms share one direction.
type Order struct {
	Terms     []OrderTerm
	Direction string
}

// CompileOrder validates the requested ordering. A nil input yields the
// default order, row identity ascending.
func CompileOrder(shape *typebuilder.Shape, input *OrderInput) (Order, error) {
	if input == nil {
		return Order{
			Terms:     []OrderTerm{{Field: identityField, Identity: true}},
			Direction: ASC,
		}, nil
	}

	direction := strings.ToUpper(strings.TrimSpace(input.Direction))
	if direction == "" {
		direction = ASC
	}
	if direction != ASC && direction != DESC {
		return Order{}, queryerr.SchemaValidation("order.direction", "direction must be ASC or DESC, got %q", input.Direction)
	}

	of, ok := shape.LookupOrder(input.Field)
	if !ok {
		if f, exists := shape.Model.Field(input.Field); exists {
			return Order{}, queryerr.SchemaValidation("order.field", "%s member %s is not orderable", f.Kind, f.Name)
		}
		return Order{}, queryerr.SchemaValidation("order.field", "unknown member %q on %s", input.Field, shape.Model.Name)
	}

	return Order{
		Terms: []OrderTerm{
			{Field: of.Field},
			{Field: identityField, Identity: true},
		},
		Direction: direction,
	}, nil
}

// Columns returns the unquoted column names of the order terms.
func (o Order) Columns() []string {
	cols := make([]string, len(o.Terms))
	for i, term := range o.Terms {
		cols[i] = term.Field.Name
	}
	return cols
}

// Clauses returns the ORDER BY clauses for the dialect.
func (o Order) Clauses(d dialect.Dialect) []string {
	clauses := make([]string, len(o.Terms))
	for i, term := range o.Terms {
		clauses[i] = fmt.Sprintf("%s %s", d.Quote(term.Field.Name), o.Direction)
	}
	return clauses
}

// Key is a stable description of the order, used to bind cursors to it.
func (o Order) Key() string {
	parts := make([]string, len(o.Terms))
	for i, term := range o.Terms {
		parts[i] = term.Field.Name + ":" + o.Direction
	}
	return strings.Join(parts, ",")
}

// CursorValues converts the scanned order columns of a row into the textual
// tuple stored in a cursor.
func (o Order) CursorValues(row map[string]interface{}) ([]string, error) {
	values := make([]string, len(o.Terms))
	for i, term := range o.Terms {
		raw, ok := row[term.Field.Name]
		if !ok || raw == nil {
			return nil, fmt.Errorf("row has no value for order column %s", term.Field.Name)
		}
		text, err := cursorText(term.Field, raw)
		if err != nil {
			return nil, fmt.Errorf("order column %s: %w", term.Field.Name, err)
		}
		values[i] = text
	}
	return values, nil
}

func cursorText(f schema.Field, raw interface{}) (string, error) {
	switch f.Kind {
	case schema.KindInt:
		v, err := f.APIValue(raw)
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(v.(int64), 10), nil
	case schema.KindBool:
		v, err := f.APIValue(raw)
		if err != nil {
			return "", err
		}
		return strconv.FormatBool(v.(bool)), nil
	case schema.KindFelt:
		v, err := f.StoreValue(stringOf(raw))
		if err != nil {
			return "", err
		}
		return v.(string), nil
	default:
		return stringOf(raw), nil
	}
}

// SeekValues converts a cursor tuple back into bound parameters.
func (o Order) SeekValues(values []string) ([]interface{}, error) {
	if len(values) != len(o.Terms) {
		return nil, fmt.Errorf("cursor has %d values, order has %d columns", len(values), len(o.Terms))
	}
	out := make([]interface{}, len(values))
	for i, term := range o.Terms {
		var input interface{} = values[i]
		if term.Field.Kind == schema.KindBool {
			b, err := strconv.ParseBool(values[i])
			if err != nil {
				return nil, fmt.Errorf("invalid value for %s", term.Field.Name)
			}
			input = b
		}
		v, err := term.Field.StoreValue(input)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: %w", term.Field.Name, err)
		}
		out[i] = v
	}
	return out, nil
}

func stringOf(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprintf("%v", v)
	}
}
