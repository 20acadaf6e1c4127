package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope used for custom metrics.
const MeterName = "dojo-graphql"

// GraphQLMetrics holds custom metrics for GraphQL requests
type GraphQLMetrics struct {
	requestDuration metric.Float64Histogram
	requestCounter  metric.Int64Counter
	errorCounter    metric.Int64Counter
	activeRequests  metric.Int64UpDownCounter
	queryDepth      metric.Int64Histogram
}

// InitGraphQLMetrics initializes GraphQL request metrics
func InitGraphQLMetrics() (*GraphQLMetrics, error) {
	meter := otel.Meter(MeterName)

	requestDuration, err := meter.Float64Histogram(
		"graphql.request.duration",
		metric.WithDescription("Duration of GraphQL requests in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}

	requestCounter, err := meter.Int64Counter(
		"graphql.requests.total",
		metric.WithDescription("Total number of GraphQL requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}

	errorCounter, err := meter.Int64Counter(
		"graphql.errors.total",
		metric.WithDescription("Total number of GraphQL requests that returned errors"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create error counter: %w", err)
	}

	activeRequests, err := meter.Int64UpDownCounter(
		"graphql.requests.active",
		metric.WithDescription("Number of in-flight GraphQL requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active requests counter: %w", err)
	}

	queryDepth, err := meter.Int64Histogram(
		"graphql.query.depth",
		metric.WithDescription("Selection depth of GraphQL operations"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create query depth histogram: %w", err)
	}

	return &GraphQLMetrics{
		requestDuration: requestDuration,
		requestCounter:  requestCounter,
		errorCounter:    errorCounter,
		activeRequests:  activeRequests,
		queryDepth:      queryDepth,
	}, nil
}

// RecordRequest records a GraphQL request with its duration and outcome
func (m *GraphQLMetrics) RecordRequest(ctx context.Context, duration time.Duration, hasErrors bool, operationType string) {
	attrs := []attribute.KeyValue{
		attribute.String("operation_type", operationType),
		attribute.Bool("has_errors", hasErrors),
	}
	m.requestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	m.requestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	if hasErrors {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation_type", operationType),
		))
	}
}

// RecordQueryDepth records the selection depth of an operation
func (m *GraphQLMetrics) RecordQueryDepth(ctx context.Context, depth int64, operationType string) {
	m.queryDepth.Record(ctx, depth, metric.WithAttributes(
		attribute.String("operation_type", operationType),
	))
}

func (m *GraphQLMetrics) IncrementActiveRequests(ctx context.Context) {
	m.activeRequests.Add(ctx, 1)
}

func (m *GraphQLMetrics) DecrementActiveRequests(ctx context.Context) {
	m.activeRequests.Add(ctx, -1)
}

// QueryMetrics records model connection queries and entity lookups.
type QueryMetrics struct {
	connectionDuration metric.Float64Histogram
	connectionRows     metric.Int64Histogram
	queryErrors        metric.Int64Counter
	entityBatchSize    metric.Int64Histogram
	entityCacheHits    metric.Int64Counter
}

// InitQueryMetrics initializes query engine metrics.
func InitQueryMetrics() (*QueryMetrics, error) {
	meter := otel.Meter(MeterName)

	connectionDuration, err := meter.Float64Histogram(
		"model.connection.duration",
		metric.WithDescription("Duration of model connection queries (count and page) in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection duration histogram: %w", err)
	}

	connectionRows, err := meter.Int64Histogram(
		"model.connection.rows",
		metric.WithDescription("Number of edges returned by a model connection query"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection rows histogram: %w", err)
	}

	queryErrors, err := meter.Int64Counter(
		"model.query.errors.total",
		metric.WithDescription("Model query failures by error kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create query error counter: %w", err)
	}

	entityBatchSize, err := meter.Int64Histogram(
		"model.entity.batch_size",
		metric.WithDescription("Number of key tuples resolved by one entity lookup"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create entity batch size histogram: %w", err)
	}

	entityCacheHits, err := meter.Int64Counter(
		"model.entity.cache_hits",
		metric.WithDescription("Entity resolutions served from the request batch"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create entity cache hit counter: %w", err)
	}

	return &QueryMetrics{
		connectionDuration: connectionDuration,
		connectionRows:     connectionRows,
		queryErrors:        queryErrors,
		entityBatchSize:    entityBatchSize,
		entityCacheHits:    entityCacheHits,
	}, nil
}

// RecordConnection records one connection query.
func (m *QueryMetrics) RecordConnection(ctx context.Context, model string, duration time.Duration, edges int, err error, kind string) {
	m.connectionDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(
		attribute.String("model", model),
		attribute.Bool("success", err == nil),
	))
	if err != nil {
		m.RecordError(ctx, model, kind)
		return
	}
	m.connectionRows.Record(ctx, int64(edges), metric.WithAttributes(attribute.String("model", model)))
}

// RecordError counts a failed query by error kind.
func (m *QueryMetrics) RecordError(ctx context.Context, model, kind string) {
	m.queryErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("kind", kind),
	))
}

func (m *QueryMetrics) RecordEntityBatch(ctx context.Context, model string, size int) {
	m.entityBatchSize.Record(ctx, int64(size), metric.WithAttributes(attribute.String("model", model)))
}

func (m *QueryMetrics) RecordEntityCacheHit(ctx context.Context, model string) {
	m.entityCacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("model", model)))
}

// Metrics bundles the custom instruments used by the server.
type Metrics struct {
	GraphQL       *GraphQLMetrics
	Query         *QueryMetrics
	SchemaRefresh *SchemaRefreshMetrics
}

// InitMetrics initializes all custom metrics
func InitMetrics(logger *slog.Logger) (*Metrics, error) {
	gql, err := InitGraphQLMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GraphQL metrics: %w", err)
	}
	query, err := InitQueryMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize query metrics: %w", err)
	}
	refresh, err := InitSchemaRefreshMetrics(logger)
	if err != nil {
		return nil, err
	}

	logger.Info("custom metrics initialized")
	return &Metrics{GraphQL: gql, Query: query, SchemaRefresh: refresh}, nil
}

type graphQLMetricsContextKey struct{}

// ContextWithGraphQLMetrics stores GraphQL metrics in the provided context.
func ContextWithGraphQLMetrics(ctx context.Context, metrics *GraphQLMetrics) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, graphQLMetricsContextKey{}, metrics)
}

// GraphQLMetricsFromContext retrieves GraphQL metrics from the context.
func GraphQLMetricsFromContext(ctx context.Context) *GraphQLMetrics {
	if ctx == nil {
		return nil
	}
	metrics, _ := ctx.Value(graphQLMetricsContextKey{}).(*GraphQLMetrics)
	return metrics
}
