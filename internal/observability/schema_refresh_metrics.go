package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SchemaRefreshMetrics tracks rebuilds of the GraphQL schema from the model catalog.
type SchemaRefreshMetrics struct {
	attempts metric.Int64Counter
	failures metric.Int64Counter
	duration metric.Float64Histogram

	// active is nil until the first successful rebuild, so the gauges stay
	// silent while the server has never served a schema.
	active atomic.Pointer[activeSchema]
}

type activeSchema struct {
	builtAt time.Time
	models  int64
}

// InitSchemaRefreshMetrics registers the schema refresh instruments.
func InitSchemaRefreshMetrics(logger *slog.Logger) (*SchemaRefreshMetrics, error) {
	meter := otel.Meter(MeterName)
	m := &SchemaRefreshMetrics{}

	var err error
	if m.attempts, err = meter.Int64Counter(
		"schema.refresh.total",
		metric.WithDescription("Schema rebuild attempts by trigger and outcome"),
	); err != nil {
		return nil, fmt.Errorf("schema refresh counter: %w", err)
	}
	if m.failures, err = meter.Int64Counter(
		"schema.refresh.errors.total",
		metric.WithDescription("Schema rebuilds that left the previous schema in place"),
	); err != nil {
		return nil, fmt.Errorf("schema refresh error counter: %w", err)
	}
	if m.duration, err = meter.Float64Histogram(
		"schema.refresh.duration",
		metric.WithDescription("Time spent loading the catalog and building the schema"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("schema refresh duration histogram: %w", err)
	}

	builtAt, err := meter.Int64ObservableGauge(
		"schema.refresh.last_success_unix",
		metric.WithDescription("Unix time the active schema was built"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("schema refresh last success gauge: %w", err)
	}
	models, err := meter.Int64ObservableGauge(
		"schema.registry.models",
		metric.WithDescription("Models exposed by the active schema"),
	)
	if err != nil {
		return nil, fmt.Errorf("registry model gauge: %w", err)
	}

	if _, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		state := m.active.Load()
		if state == nil {
			return nil
		}
		o.ObserveInt64(builtAt, state.builtAt.Unix())
		o.ObserveInt64(models, state.models)
		return nil
	}, builtAt, models); err != nil {
		return nil, fmt.Errorf("schema refresh gauge callback: %w", err)
	}

	logger.Info("schema refresh metrics initialized")
	return m, nil
}

// RecordRefresh records a refresh attempt. models is the size of the registry
// that is active afterwards.
func (m *SchemaRefreshMetrics) RecordRefresh(ctx context.Context, duration time.Duration, success bool, trigger string, models int) {
	byTrigger := attribute.String("trigger", trigger)
	outcome := metric.WithAttributes(byTrigger, attribute.Bool("success", success))

	m.attempts.Add(ctx, 1, outcome)
	m.duration.Record(ctx, float64(duration.Microseconds())/1000, outcome)

	if !success {
		m.failures.Add(ctx, 1, metric.WithAttributes(byTrigger))
		return
	}
	m.active.Store(&activeSchema{builtAt: time.Now(), models: int64(models)})
}
