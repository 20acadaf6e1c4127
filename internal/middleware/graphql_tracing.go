package middleware

import (
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jobez/dojo/internal/gqlrequest"
	"github.com/jobez/dojo/internal/logging"
	"github.com/jobez/dojo/internal/query"
)

// EntityBatchingMiddleware gives every request its own entity batch so the
// entity fields of a page resolve with one lookup.
func EntityBatchingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(query.NewBatchingContext(r.Context())))
	})
}

// GraphQLTracingMiddleware wraps execution in a graphql.execute span and
// reports entity batch cache use when it ends. It must run inside
// EntityBatchingMiddleware to see the batch.
func GraphQLTracingMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			analysis := gqlrequest.AnalysisFromContext(r.Context())
			if analysis == nil || analysis.Operation == nil {
				next.ServeHTTP(w, r)
				return
			}
			meta, _ := gqlrequest.MetaFromContext(r.Context())

			ctx, span := otel.Tracer("dojo-graphql/graphql").Start(r.Context(), "graphql.execute")
			defer span.End()
			if sc := span.SpanContext(); sc.IsValid() {
				ctx = logging.WithLogger(ctx, logging.FromContext(ctx).WithFields(
					slog.String("trace_id", sc.TraceID().String()),
					slog.String("span_id", sc.SpanID().String()),
				))
			}
			if span.IsRecording() {
				span.SetAttributes(analysis.SpanAttributes(meta)...)
			}

			next.ServeHTTP(w, r.WithContext(ctx))

			hits, misses, ok := query.BatchStats(ctx)
			if !ok || !span.IsRecording() {
				return
			}
			span.SetAttributes(
				attribute.Int64("graphql.entity.cache_hits", hits),
				attribute.Int64("graphql.entity.cache_misses", misses),
			)
			if total := hits + misses; total > 0 {
				span.SetAttributes(attribute.Float64("graphql.entity.cache_hit_ratio", float64(hits)/float64(total)))
			}
		})
	}
}
