package resolver

import (
	"github.com/graphql-go/graphql"

	"github.com/jobez/dojo/internal/naming"
	"github.com/jobez/dojo/internal/query"
	"github.com/jobez/dojo/internal/scalars"
	"github.com/jobez/dojo/internal/schema"
	"github.com/jobez/dojo/internal/typebuilder"
)

func (r *Resolver) scalar(name string, build func() *graphql.Scalar) *graphql.Scalar {
	r.mu.RLock()
	cached := r.scalars[name]
	r.mu.RUnlock()
	if cached != nil {
		return cached
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached := r.scalars[name]; cached != nil {
		return cached
	}
	s := build()
	r.scalars[name] = s
	return s
}

func (r *Resolver) nonNegativeIntScalar() *graphql.Scalar {
	return r.scalar("NonNegativeInt", scalars.NonNegativeInt)
}

// fieldType maps a member to its GraphQL scalar. Ints that fit 32 bits use
// Int, u32 and usize use UInt32 and i64 uses BigInt.
func (r *Resolver) fieldType(f schema.Field) graphql.Type {
	switch f.Kind {
	case schema.KindInt:
		switch {
		case schema.FitsInt32(f.Type):
			return graphql.Int
		case schema.FitsUint32(f.Type):
			return r.scalar("UInt32", scalars.UInt32)
		}
		return r.scalar("BigInt", scalars.BigInt)
	case schema.KindFelt:
		return r.scalar("Felt", scalars.Felt)
	case schema.KindBool:
		return graphql.Boolean
	case schema.KindBytes:
		return r.scalar("Bytes", scalars.Bytes)
	default:
		return graphql.String
	}
}

func (r *Resolver) fieldInputType(f schema.Field) graphql.Input {
	// Every scalar is both an input and an output type.
	return r.fieldType(f).(graphql.Input)
}

func (r *Resolver) orderDirectionEnum() *graphql.Enum {
	r.mu.RLock()
	cached := r.orderDirection
	r.mu.RUnlock()
	if cached != nil {
		return cached
	}

	enumValue := graphql.NewEnum(graphql.EnumConfig{
		Name: "OrderDirection",
		Values: graphql.EnumValueConfigMap{
			"ASC":  &graphql.EnumValueConfig{Value: "ASC"},
			"DESC": &graphql.EnumValueConfig{Value: "DESC"},
		},
	})

	r.mu.Lock()
	if r.orderDirection == nil {
		r.orderDirection = enumValue
	}
	cached = r.orderDirection
	r.mu.Unlock()
	return cached
}

// pageInfoType returns the shared PageInfo type (lazy-init).
func (r *Resolver) pageInfoType() *graphql.Object {
	r.mu.RLock()
	cached := r.pageInfo
	r.mu.RUnlock()
	if cached != nil {
		return cached
	}

	pageInfo := graphql.NewObject(graphql.ObjectConfig{
		Name: "PageInfo",
		Fields: graphql.Fields{
			"hasNextPage": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Boolean),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return sourceConnection(p).conn.HasNextPage, nil
				},
			},
			"hasPreviousPage": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Boolean),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return sourceConnection(p).hasPrevious, nil
				},
			},
			"startCursor": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return optionalString(sourceConnection(p).startCursor()), nil
				},
			},
			"endCursor": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return optionalString(sourceConnection(p).conn.EndCursor()), nil
				},
			},
		},
	})

	r.mu.Lock()
	if r.pageInfo == nil {
		r.pageInfo = pageInfo
	}
	cached = r.pageInfo
	r.mu.Unlock()
	return cached
}

// objectType builds the node type of a model: one field per member plus the
// owning entity.
func (r *Resolver) objectType(typeName string, m schema.Model) *graphql.Object {
	r.mu.RLock()
	cached, ok := r.objectCache[m.Name]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	fields := graphql.Fields{}
	for _, f := range m.Fields {
		fields[f.Name] = &graphql.Field{
			Type:    graphql.NewNonNull(r.fieldType(f)),
			Resolve: memberResolver(f.Name),
		}
	}
	fields["entity"] = &graphql.Field{
		Type:        graphql.NewNonNull(r.entityObject()),
		Description: "The entity this row belongs to.",
		Resolve:     r.resolveNodeEntity,
	}
	obj := graphql.NewObject(graphql.ObjectConfig{
		Name:   typeName,
		Fields: fields,
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.objectCache[m.Name]; ok {
		return cached
	}
	r.objectCache[m.Name] = obj
	return obj
}

// connectionType builds <Model>Connection and its edge type.
func (r *Resolver) connectionType(typeName string, m schema.Model) *graphql.Object {
	r.mu.RLock()
	cached, ok := r.connectionCache[m.Name]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	edgeType := graphql.NewObject(graphql.ObjectConfig{
		Name: naming.EdgeName(typeName),
		Fields: graphql.Fields{
			"node": &graphql.Field{
				Type: graphql.NewNonNull(r.objectType(typeName, m)),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					edge, _ := p.Source.(query.Edge)
					return edge.Node, nil
				},
			},
			"cursor": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					edge, _ := p.Source.(query.Edge)
					return edge.Cursor, nil
				},
			},
		},
	})

	connType := graphql.NewObject(graphql.ObjectConfig{
		Name: naming.ConnectionName(typeName),
		Fields: graphql.Fields{
			"totalCount": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Int),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return sourceConnection(p).conn.TotalCount, nil
				},
			},
			"edges": &graphql.Field{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(edgeType))),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return sourceConnection(p).edges(), nil
				},
			},
			"pageInfo": &graphql.Field{
				Type: graphql.NewNonNull(r.pageInfoType()),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source, nil
				},
			},
		},
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.connectionCache[m.Name]; ok {
		return cached
	}
	r.connectionCache[m.Name] = connType
	return connType
}

// whereInput builds <Model>WhereInput from the shape's legal (member, operator) pairs.
func (r *Resolver) whereInput(typeName string, shape *typebuilder.Shape) *graphql.InputObject {
	name := shape.Model.Name
	r.mu.RLock()
	cached, ok := r.whereCache[name]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	fields := graphql.InputObjectConfigFieldMap{}
	for _, in := range shape.Where {
		fields[in.Name] = &graphql.InputObjectFieldConfig{
			Type: r.fieldInputType(in.Field),
		}
	}
	input := graphql.NewInputObject(graphql.InputObjectConfig{
		Name:   naming.WhereInputName(typeName),
		Fields: fields,
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.whereCache[name]; ok {
		return cached
	}
	r.whereCache[name] = input
	return input
}

// orderInput builds <Model>Order. Models without an orderable member get no
// order argument and always page by identity.
func (r *Resolver) orderInput(typeName string, shape *typebuilder.Shape) *graphql.InputObject {
	if len(shape.Order) == 0 {
		return nil
	}
	name := shape.Model.Name
	r.mu.RLock()
	cached, ok := r.orderCache[name]
	r.mu.RUnlock()
	if ok {
		return cached
	}

	values := graphql.EnumValueConfigMap{}
	for _, of := range shape.Order {
		values[of.Enum] = &graphql.EnumValueConfig{Value: of.Field.Name}
	}
	fieldEnum := graphql.NewEnum(graphql.EnumConfig{
		Name:   naming.OrderFieldEnumName(typeName),
		Values: values,
	})
	input := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: naming.OrderInputName(typeName),
		Fields: graphql.InputObjectConfigFieldMap{
			"field": &graphql.InputObjectFieldConfig{
				Type: graphql.NewNonNull(fieldEnum),
			},
			"direction": &graphql.InputObjectFieldConfig{
				Type: graphql.NewNonNull(r.orderDirectionEnum()),
			},
		},
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.orderCache[name]; ok {
		return cached
	}
	r.orderCache[name] = input
	return input
}

func (r *Resolver) entityObject() *graphql.Object {
	r.mu.RLock()
	cached := r.entityType
	r.mu.RUnlock()
	if cached != nil {
		return cached
	}

	entity := graphql.NewObject(graphql.ObjectConfig{
		Name:        "Entity",
		Description: "A key tuple and the models that currently hold rows for it.",
		Fields: graphql.Fields{
			"id": &graphql.Field{
				Type: graphql.NewNonNull(graphql.ID),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return sourceEntity(p).ID, nil
				},
			},
			"keys": &graphql.Field{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(graphql.String))),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return nonNilStrings(sourceEntity(p).Keys), nil
				},
			},
			"modelNames": &graphql.Field{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(graphql.String))),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return nonNilStrings(sourceEntity(p).ModelNames), nil
				},
			},
		},
	})

	r.mu.Lock()
	if r.entityType == nil {
		r.entityType = entity
	}
	cached = r.entityType
	r.mu.Unlock()
	return cached
}

func (r *Resolver) modelInfoObject() *graphql.Object {
	r.mu.RLock()
	cached := r.modelInfoType
	r.mu.RUnlock()
	if cached != nil {
		return cached
	}

	member := graphql.NewObject(graphql.ObjectConfig{
		Name: "ModelMember",
		Fields: graphql.Fields{
			"name": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"type": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"kind": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"key":  &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean)},
		},
	})
	info := graphql.NewObject(graphql.ObjectConfig{
		Name:        "ModelInfo",
		Description: "A registered model schema.",
		Fields: graphql.Fields{
			"name":      &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"version":   &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
			"queryName": &graphql.Field{Type: graphql.String},
			"members":   &graphql.Field{Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(member)))},
		},
	})

	r.mu.Lock()
	if r.modelInfoType == nil {
		r.modelInfoType = info
	}
	cached = r.modelInfoType
	r.mu.Unlock()
	return cached
}

func optionalString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
