package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/jobez/dojo/internal/gqlrequest"
	"github.com/jobez/dojo/internal/logging"
	"github.com/jobez/dojo/internal/schemarefresh"
)

// GraphQLRequestMiddleware analyzes the GraphQL payload once, stores the
// analysis and the serving snapshot's identity in the request context, and
// rejects operations that exceed limits before they reach the executor.
func GraphQLRequestMiddleware(manager *schemarefresh.Manager, limits gqlrequest.Limits) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			analysis := gqlrequest.AnalyzeRequest(r)
			ctx := gqlrequest.WithAnalysis(r.Context(), analysis)

			var meta gqlrequest.Meta
			if manager != nil {
				if snapshot := manager.CurrentSnapshot(); snapshot != nil {
					meta.SchemaFingerprint = snapshot.Fingerprint
					meta.CatalogVersion = snapshot.CatalogVersion
				}
			}
			ctx = gqlrequest.WithMeta(ctx, meta)

			logger := logging.FromContext(ctx)
			if fields := analysis.LogFields(meta); len(fields) > 0 {
				logger = logger.WithFields(fields...)
				ctx = logging.WithLogger(ctx, logger)
			}

			if err := analysis.Check(limits); err != nil {
				logger.Warn("graphql operation rejected",
					slog.String("error", err.Error()),
					slog.Int("depth", analysis.Depth),
					slog.Int("fields", analysis.FieldCount),
				)
				writeGraphQLError(w, http.StatusBadRequest, err.Error(), "query_limit")
				return
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// writeGraphQLError writes a GraphQL-shaped error response without executing.
func writeGraphQLError(w http.ResponseWriter, status int, message, code string) {
	body, _ := json.Marshal(map[string]interface{}{
		"errors": []map[string]interface{}{{
			"message":    message,
			"extensions": map[string]string{"code": code},
		}},
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
