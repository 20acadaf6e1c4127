// Package resolver builds the GraphQL schema for the registered models and
// resolves its fields through the query engine. Each model gets an object
// type, a where input, an order input and a relay connection; the root query
// carries one connection field per model plus entity and models lookups.
package resolver

import (
	"log/slog"
	"sync"

	"github.com/graphql-go/graphql"

	"github.com/jobez/dojo/internal/naming"
	"github.com/jobez/dojo/internal/query"
	"github.com/jobez/dojo/internal/schema"
	"github.com/jobez/dojo/internal/typebuilder"
)

// Resolver builds one GraphQL schema over a query engine. Type caches are
// keyed by model name; a Resolver is discarded when the registry changes.
type Resolver struct {
	engine *query.Engine
	namer  *naming.Namer
	logger *slog.Logger

	mu              sync.RWMutex
	typeNames       map[string]string
	queryNames      map[string]string
	objectCache     map[string]*graphql.Object
	connectionCache map[string]*graphql.Object
	whereCache      map[string]*graphql.InputObject
	orderCache      map[string]*graphql.InputObject
	orderDirection  *graphql.Enum
	pageInfo        *graphql.Object
	entityType      *graphql.Object
	modelInfoType   *graphql.Object
	scalars         map[string]*graphql.Scalar
}

// NewResolver creates a resolver for the engine's registry.
func NewResolver(engine *query.Engine, namingConfig naming.Config, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		engine:          engine,
		namer:           naming.New(namingConfig, logger),
		logger:          logger,
		typeNames:       make(map[string]string),
		queryNames:      make(map[string]string),
		objectCache:     make(map[string]*graphql.Object),
		connectionCache: make(map[string]*graphql.Object),
		whereCache:      make(map[string]*graphql.InputObject),
		orderCache:      make(map[string]*graphql.InputObject),
		scalars:         make(map[string]*graphql.Scalar),
	}
}

// BuildGraphQLSchema constructs the executable schema. A model whose shape
// cannot be built is skipped with a warning so one bad registration does not
// take the whole API down.
func (r *Resolver) BuildGraphQLSchema() (graphql.Schema, error) {
	r.namer.Reset()
	queryFields := graphql.Fields{
		"entity": r.entityField(),
		"models": r.modelsField(),
	}

	for _, m := range r.engine.Registry().Models() {
		shape, err := r.engine.Shape(m.Name)
		if err != nil {
			r.logger.Warn("skipping model with invalid shape",
				slog.String("model", m.Name),
				slog.String("error", err.Error()),
			)
			continue
		}
		r.addModelQuery(queryFields, shape)
	}

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{
			Name:   "Query",
			Fields: queryFields,
		}),
	})
}

func (r *Resolver) addModelQuery(fields graphql.Fields, shape *typebuilder.Shape) {
	m := shape.Model
	typeName := r.typeName(m)
	fieldName := r.namer.RegisterQueryField(m.Name)
	r.mu.Lock()
	r.queryNames[m.Name] = fieldName
	r.mu.Unlock()

	args := graphql.FieldConfigArgument{
		"where": &graphql.ArgumentConfig{
			Type: r.whereInput(typeName, shape),
		},
		"first": &graphql.ArgumentConfig{
			Type:        r.nonNegativeIntScalar(),
			Description: "Maximum number of edges to return.",
		},
		"after": &graphql.ArgumentConfig{
			Type:        graphql.String,
			Description: "Return edges after this cursor.",
		},
	}
	if order := r.orderInput(typeName, shape); order != nil {
		args["order"] = &graphql.ArgumentConfig{Type: order}
	}

	fields[fieldName] = &graphql.Field{
		Type:        graphql.NewNonNull(r.connectionType(typeName, m)),
		Args:        args,
		Description: "Paginated " + m.Name + " rows.",
		Resolve:     r.makeConnectionResolver(m.Name),
	}
}

// typeName registers the GraphQL type name of a model once per build.
func (r *Resolver) typeName(m schema.Model) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name, ok := r.typeNames[m.Name]; ok {
		return name
	}
	name := r.namer.RegisterType(m.Name)
	r.typeNames[m.Name] = name
	return name
}
