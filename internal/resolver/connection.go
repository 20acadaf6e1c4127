package resolver

import (
	"fmt"

	"github.com/graphql-go/graphql"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jobez/dojo/internal/planner"
	"github.com/jobez/dojo/internal/query"
	"github.com/jobez/dojo/internal/queryerr"
)

// connectionResult is the source value of a <Model>Connection and its PageInfo.
type connectionResult struct {
	conn        *query.Connection
	hasPrevious bool
}

func (c *connectionResult) edges() []query.Edge {
	if c.conn.Edges == nil {
		return []query.Edge{}
	}
	return c.conn.Edges
}

func (c *connectionResult) startCursor() string {
	if len(c.conn.Edges) == 0 {
		return ""
	}
	return c.conn.Edges[0].Cursor
}

var emptyConnection = &connectionResult{conn: &query.Connection{}}

func sourceConnection(p graphql.ResolveParams) *connectionResult {
	if cr, ok := p.Source.(*connectionResult); ok && cr != nil && cr.conn != nil {
		return cr
	}
	return emptyConnection
}

func (r *Resolver) makeConnectionResolver(model string) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (result interface{}, err error) {
		ctx, span := startResolverSpan(p.Context, "graphql.resolve.connection",
			attribute.String("model", model),
		)
		defer func() { finishResolverSpan(span, err) }()

		args, err := connectionArgs(p.Args)
		if err != nil {
			return nil, err
		}
		conn, err := r.engine.Connection(ctx, model, args)
		if err != nil {
			return nil, err
		}
		// Entity fields resolve after this returns; hand them the whole page.
		query.SeedBatch(p.Context, conn)
		return &connectionResult{
			conn:        conn,
			hasPrevious: args.After != nil && *args.After != "",
		}, nil
	}
}

// connectionArgs converts coerced GraphQL arguments into engine arguments.
func connectionArgs(raw map[string]interface{}) (query.Args, error) {
	var args query.Args
	if where, ok := raw["where"]; ok && where != nil {
		m, ok := where.(map[string]interface{})
		if !ok {
			return args, queryerr.SchemaValidation("where", "expected an input object, got %T", where)
		}
		args.Where = m
	}
	if order, ok := raw["order"]; ok && order != nil {
		m, ok := order.(map[string]interface{})
		if !ok {
			return args, queryerr.SchemaValidation("order", "expected an input object, got %T", order)
		}
		args.Order = &planner.OrderInput{
			Field:     fmt.Sprint(m["field"]),
			Direction: fmt.Sprint(m["direction"]),
		}
	}
	if first, ok := raw["first"]; ok && first != nil {
		n, ok := first.(int)
		if !ok {
			return args, queryerr.SchemaValidation("first", "expected an integer, got %T", first)
		}
		args.First = &n
	}
	if after, ok := raw["after"]; ok && after != nil {
		s, ok := after.(string)
		if !ok {
			return args, queryerr.Cursor("cursor must be a string", nil)
		}
		args.After = &s
	}
	return args, nil
}

func memberResolver(name string) graphql.FieldResolveFn {
	return func(p graphql.ResolveParams) (interface{}, error) {
		node, ok := p.Source.(query.Node)
		if !ok {
			return nil, nil
		}
		return node.Values[name], nil
	}
}

func (r *Resolver) resolveNodeEntity(p graphql.ResolveParams) (interface{}, error) {
	node, ok := p.Source.(query.Node)
	if !ok {
		return nil, nil
	}
	entity, err := r.engine.ResolveEntity(p.Context, node)
	if err != nil {
		return nil, err
	}
	return entity, nil
}

func sourceEntity(p graphql.ResolveParams) *query.Entity {
	if entity, ok := p.Source.(*query.Entity); ok && entity != nil {
		return entity
	}
	return &query.Entity{}
}

func (r *Resolver) entityField() *graphql.Field {
	return &graphql.Field{
		Type:        r.entityObject(),
		Description: "Look up an entity by id.",
		Args: graphql.FieldConfigArgument{
			"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
		},
		Resolve: func(p graphql.ResolveParams) (result interface{}, err error) {
			ctx, span := startResolverSpan(p.Context, "graphql.resolve.entity")
			defer func() { finishResolverSpan(span, err) }()

			id, _ := p.Args["id"].(string)
			entity, err := r.engine.EntityByID(ctx, id)
			if err != nil {
				return nil, err
			}
			return entity, nil
		},
	}
}

// modelsField lists the registry: name, version and members of every model.
func (r *Resolver) modelsField() *graphql.Field {
	return &graphql.Field{
		Type:        graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(r.modelInfoObject()))),
		Description: "Registered model schemas.",
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			models := r.engine.Registry().Models()
			out := make([]map[string]interface{}, 0, len(models))
			for _, m := range models {
				members := make([]map[string]interface{}, 0, len(m.Fields))
				for _, f := range m.Fields {
					members = append(members, map[string]interface{}{
						"name": f.Name,
						"type": f.Type,
						"kind": f.Kind.String(),
						"key":  f.Key,
					})
				}
				info := map[string]interface{}{
					"name":    m.Name,
					"version": m.Version,
					"members": members,
				}
				r.mu.RLock()
				if name, ok := r.queryNames[m.Name]; ok {
					info["queryName"] = name
				}
				r.mu.RUnlock()
				out = append(out, info)
			}
			return out, nil
		},
	}
}
