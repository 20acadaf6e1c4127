package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/jobez/dojo/internal/gqlrequest"
	"github.com/jobez/dojo/internal/query"
	"github.com/jobez/dojo/internal/testutil"
)

func setupSpanRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
		otel.SetTracerProvider(previous)
	})
	return recorder
}

func findSpan(t *testing.T, recorder *tracetest.SpanRecorder, name string) sdktrace.ReadOnlySpan {
	t.Helper()
	for _, span := range recorder.Ended() {
		if span.Name() == name {
			return span
		}
	}
	t.Fatalf("span %q not recorded", name)
	return nil
}

func spanAttr(span sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestGraphQLTracingMiddleware_RecordsOperationAndBatchStats(t *testing.T) {
	recorder := setupSpanRecorder(t)

	w := testutil.NewWorld(t)
	w.RegisterModel(t, testutil.Model(t, "Position", "#player:ContractAddress", "x:u32"))
	w.SetRecord(t, "Position", map[string]interface{}{"player": "0x1", "x": 1})
	w.SetRecord(t, "Position", map[string]interface{}{"player": "0x2", "x": 2})
	engine := query.NewEngine(w.Registry, nil, w.Dialect, w.Exec, query.Options{})

	next := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		conn, err := engine.Connection(r.Context(), "Position", query.Args{})
		require.NoError(t, err)
		query.SeedBatch(r.Context(), conn)
		for _, edge := range conn.Edges {
			_, err := engine.ResolveEntity(r.Context(), edge.Node)
			require.NoError(t, err)
		}
		rw.WriteHeader(http.StatusOK)
	})

	handler := GraphQLRequestMiddleware(nil, gqlrequest.Limits{})(
		EntityBatchingMiddleware(GraphQLTracingMiddleware()(next)),
	)
	body := `{"query":"query Rows { positionModels { edges { node { entity { id } } } } }","operationName":"Rows"}`
	handler.ServeHTTP(httptest.NewRecorder(), newGraphQLRequest(body))

	span := findSpan(t, recorder, "graphql.execute")
	name, ok := spanAttr(span, "graphql.operation.name")
	require.True(t, ok)
	assert.Equal(t, "Rows", name.AsString())
	roots, ok := spanAttr(span, "graphql.root_fields")
	require.True(t, ok)
	assert.Equal(t, []string{"positionModels"}, roots.AsStringSlice())

	hits, ok := spanAttr(span, "graphql.entity.cache_hits")
	require.True(t, ok)
	assert.Equal(t, int64(1), hits.AsInt64())
	misses, ok := spanAttr(span, "graphql.entity.cache_misses")
	require.True(t, ok)
	assert.Equal(t, int64(1), misses.AsInt64())
	ratio, ok := spanAttr(span, "graphql.entity.cache_hit_ratio")
	require.True(t, ok)
	assert.InDelta(t, 0.5, ratio.AsFloat64(), 0.0001)

	// Engine spans nest under the execution span.
	batch := findSpan(t, recorder, "model.entity.batch")
	assert.Equal(t, span.SpanContext().TraceID(), batch.SpanContext().TraceID())
}

func TestGraphQLTracingMiddleware_SkipsWithoutOperation(t *testing.T) {
	recorder := setupSpanRecorder(t)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := GraphQLRequestMiddleware(nil, gqlrequest.Limits{})(GraphQLTracingMiddleware()(next))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/graphql", nil))

	for _, span := range recorder.Ended() {
		assert.NotEqual(t, "graphql.execute", span.Name())
	}
}
