package schemarefresh

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/graphql-go/graphql"

	"github.com/jobez/dojo/internal/dbexec"
	"github.com/jobez/dojo/internal/dialect"
	"github.com/jobez/dojo/internal/logging"
	"github.com/jobez/dojo/internal/naming"
	"github.com/jobez/dojo/internal/query"
	"github.com/jobez/dojo/internal/resolver"
	"github.com/jobez/dojo/internal/schema"
	"github.com/jobez/dojo/internal/store"
	"github.com/jobez/dojo/internal/typebuilder"
)

// BuildSchemaConfig defines inputs for schema assembly.
type BuildSchemaConfig struct {
	Executor dbexec.TxRunner
	Dialect  dialect.Dialect
	Shapes   *typebuilder.Builder
	Naming   naming.Config
	Engine   query.Options
	Logger   *logging.Logger
}

// BuildSchemaResult contains the artifacts of one build.
type BuildSchemaResult struct {
	Registry      *schema.Registry
	Skipped       []store.SkippedModel
	Engine        *query.Engine
	GraphQLSchema graphql.Schema
}

// BuildSchema loads the model catalog and assembles the engine and GraphQL
// schema over it. Used by the refresh manager and by tests.
func BuildSchema(ctx context.Context, cfg BuildSchemaConfig) (*BuildSchemaResult, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("schema builder requires a query executor")
	}

	registry, skipped, err := store.LoadRegistry(ctx, cfg.Executor, cfg.Dialect)
	if err != nil {
		return nil, fmt.Errorf("failed to load model registry: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = &logging.Logger{Logger: slog.Default()}
	}
	for _, s := range skipped {
		logger.Warn("skipping catalog model",
			slog.String("model", s.Name),
			slog.String("error", s.Err.Error()),
		)
	}
	opts := cfg.Engine
	if opts.Logger == nil {
		opts.Logger = logger
	}
	engine := query.NewEngine(registry, cfg.Shapes, cfg.Dialect, cfg.Executor, opts)
	graphqlSchema, err := resolver.NewResolver(engine, cfg.Naming, logger.Logger).BuildGraphQLSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to build GraphQL schema: %w", err)
	}

	return &BuildSchemaResult{
		Registry:      registry,
		Skipped:       skipped,
		Engine:        engine,
		GraphQLSchema: graphqlSchema,
	}, nil
}
