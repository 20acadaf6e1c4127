// Package typebuilder derives the queryable shape of a registered model: its
// object fields, the where inputs allowed by the operator table, and the
// orderable member enum. Shapes are computed once per model version and
// shared by the filter/order compilers and the GraphQL schema builder.
package typebuilder

import (
	"sync"

	"github.com/jobez/dojo/internal/naming"
	"github.com/jobez/dojo/internal/queryerr"
	"github.com/jobez/dojo/internal/schema"
)

// WhereInput is one legal (member, operator) pair.
type WhereInput struct {
	Name  string
	Field schema.Field
	Op    Op
}

// OrderField is one orderable member.
type OrderField struct {
	Enum  string
	Field schema.Field
}

// Shape is the queryable description of one model.
type Shape struct {
	Model schema.Model
	Where []WhereInput
	Order []OrderField

	whereByName map[string]WhereInput
	orderByName map[string]OrderField
	orderByEnum map[string]OrderField
}

// LookupWhere resolves a where input name.
func (s *Shape) LookupWhere(name string) (WhereInput, bool) {
	in, ok := s.whereByName[name]
	return in, ok
}

// LookupOrder resolves an order field by member name or enum value.
func (s *Shape) LookupOrder(name string) (OrderField, bool) {
	if of, ok := s.orderByName[name]; ok {
		return of, true
	}
	of, ok := s.orderByEnum[name]
	return of, ok
}

// Build derives the shape of a model. Name clashes between generated where
// inputs or order enum values are reported as schema validation errors.
func Build(m schema.Model) (*Shape, error) {
	shape := &Shape{
		Model:       m,
		whereByName: make(map[string]WhereInput),
		orderByName: make(map[string]OrderField),
		orderByEnum: make(map[string]OrderField),
	}
	for _, f := range m.Fields {
		for _, op := range operatorTable[f.Kind] {
			in := WhereInput{Name: f.Name + op.Suffix(), Field: f, Op: op}
			if prev, dup := shape.whereByName[in.Name]; dup {
				return nil, queryerr.SchemaValidation(m.Name+"."+f.Name,
					"where input %s clashes with %s on member %s", in.Name, prev.Op, prev.Field.Name)
			}
			shape.whereByName[in.Name] = in
			shape.Where = append(shape.Where, in)
		}
		if !f.Kind.Orderable() {
			continue
		}
		of := OrderField{Enum: naming.EnumValue(f.Name), Field: f}
		if prev, dup := shape.orderByEnum[of.Enum]; dup {
			return nil, queryerr.SchemaValidation(m.Name+"."+f.Name,
				"order value %s clashes with member %s", of.Enum, prev.Field.Name)
		}
		shape.orderByEnum[of.Enum] = of
		shape.orderByName[f.Name] = of
		shape.Order = append(shape.Order, of)
	}
	return shape, nil
}

type shapeKey struct {
	name    string
	version int
}

// Builder caches shapes per model version.
type Builder struct {
	mu     sync.RWMutex
	shapes map[shapeKey]*Shape
}

// NewBuilder creates an empty shape cache.
func NewBuilder() *Builder {
	return &Builder{shapes: make(map[shapeKey]*Shape)}
}

// Shape returns the cached shape for a model, building it on first use.
func (b *Builder) Shape(m schema.Model) (*Shape, error) {
	key := shapeKey{name: m.Name, version: m.Version}
	b.mu.RLock()
	cached := b.shapes[key]
	b.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	shape, err := Build(m)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if existing := b.shapes[key]; existing != nil {
		return existing, nil
	}
	b.shapes[key] = shape
	return shape, nil
}

// Explain describes why a where input name is not accepted, for error messages.
func (s *Shape) Explain(name string) error {
	member, op := ParseSuffix(name)
	f, ok := s.Model.Field(member)
	if !ok {
		return queryerr.SchemaValidation(name, "unknown member on %s", s.Model.Name)
	}
	if !Allows(f.Kind, op) {
		return queryerr.SchemaValidation(name, "operator %s is not allowed on %s member %s", op, f.Kind, f.Name)
	}
	return queryerr.SchemaValidation(name, "unknown where input on %s", s.Model.Name)
}
