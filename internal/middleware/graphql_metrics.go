package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jobez/dojo/internal/gqlrequest"
	"github.com/jobez/dojo/internal/observability"
)

// GraphQLMetricsMiddleware records request counts, latency, errors and depth
// for GraphQL executions. GraphiQL page loads are not counted.
func GraphQLMetricsMiddleware(metrics *observability.GraphQLMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if metrics == nil || r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			ctx := observability.ContextWithGraphQLMetrics(r.Context(), metrics)
			r = r.WithContext(ctx)

			metrics.IncrementActiveRequests(ctx)
			defer metrics.DecrementActiveRequests(ctx)

			analysis := gqlrequest.AnalysisFromContext(ctx)
			if analysis == nil {
				analysis = gqlrequest.AnalyzeRequest(r)
			}
			operationType := "unknown"
			if analysis.Operation != nil {
				operationType = analysis.OperationType
				metrics.RecordQueryDepth(ctx, int64(analysis.Depth), operationType)
			}

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK, body: &bytes.Buffer{}}
			next.ServeHTTP(rec, r)

			failed := rec.status >= http.StatusBadRequest || responseHasGraphQLErrors(rec.body.Bytes())
			metrics.RecordRequest(ctx, time.Since(start), failed, operationType)
		})
	}
}

func responseHasGraphQLErrors(body []byte) bool {
	var payload struct {
		Errors []json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(body), &payload); err != nil {
		return false
	}
	return len(payload.Errors) > 0
}
