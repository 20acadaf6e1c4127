package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jobez/dojo/internal/config"
	"github.com/jobez/dojo/internal/dialect"
	"github.com/jobez/dojo/internal/gqlrequest"
	"github.com/jobez/dojo/internal/logging"
	"github.com/jobez/dojo/internal/middleware"
	"github.com/jobez/dojo/internal/observability"
	"github.com/jobez/dojo/internal/schemarefresh"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	graphqlPath      = "/graphql"
	healthPath       = "/health"
	metricsPath      = "/metrics"
	reloadSchemaPath = "/admin/reload-schema"
)

const schemaReloadTimeout = 15 * time.Second

// schemaRefresher rebuilds the served schema on demand.
type schemaRefresher interface {
	RefreshNow(ctx context.Context) error
}

// buildGraphQLHandler assembles the request chain:
//
//	logging -> request limits -> metrics -> entity batching -> tracing -> schema snapshot
func buildGraphQLHandler(cfg *config.Config, logger *logging.Logger, manager *schemarefresh.Manager, graphqlMetrics *observability.GraphQLMetrics) http.Handler {
	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		manager.Handler().ServeHTTP(w, r)
	})
	handler = middleware.GraphQLTracingMiddleware()(handler)
	handler = middleware.EntityBatchingMiddleware(handler)

	if cfg.Observability.MetricsEnabled && graphqlMetrics != nil {
		handler = middleware.GraphQLMetricsMiddleware(graphqlMetrics)(handler)
		logger.Info("GraphQL metrics middleware enabled")
	}

	handler = middleware.GraphQLRequestMiddleware(manager, gqlrequest.Limits{
		MaxDepth:  cfg.Server.GraphQLMaxDepth,
		MaxFields: cfg.Server.GraphQLMaxFields,
	})(handler)

	return middleware.LoggingMiddleware(logger)(handler)
}

// buildAdminHandler returns nil when schema reload is disabled.
func buildAdminHandler(cfg *config.Config, logger *logging.Logger, refresher schemaRefresher) (http.Handler, error) {
	if !cfg.Server.Admin.SchemaReloadEnabled {
		return nil, nil
	}
	guard, err := middleware.AdminTokenMiddleware(cfg.Server.Admin.AuthToken)
	if err != nil {
		return nil, fmt.Errorf("schema reload endpoint: %w", err)
	}
	logger.Info("schema reload endpoint enabled", slog.String("path", reloadSchemaPath))
	return middleware.LoggingMiddleware(logger)(guard(schemaReloadHandler(refresher))), nil
}

func buildRouter(cfg *config.Config, logger *logging.Logger, db *sql.DB, graphqlHandler http.Handler, adminHandler http.Handler, meterProvider *observability.MeterProvider) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(graphqlPath, graphqlHandler)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, graphqlPath, http.StatusFound)
			return
		}
		http.NotFound(w, r)
	})
	mux.HandleFunc(healthPath, healthHandler(db, cfg.Server.HealthCheckTimeout))

	if adminHandler != nil {
		mux.Handle(reloadSchemaPath, adminHandler)
	}

	if cfg.Observability.MetricsEnabled && meterProvider != nil {
		mux.Handle(metricsPath, promhttp.Handler())
		logger.Info("metrics endpoint enabled", slog.String("path", metricsPath))
	}

	return mux
}

// healthHandler reports whether the model store answers a ping.
func healthHandler(db *sql.DB, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())
		w.Header().Set("Content-Type", "application/json")

		ctx := r.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		if err := dialect.Ping(ctx, db); err != nil {
			reqLogger.Error("health check failed",
				slog.String("error", err.Error()),
				slog.String("check", "database"),
			)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprint(w, `{"status":"unhealthy","database":"failed"}`)
			return
		}

		reqLogger.Debug("health check passed")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, `{"status":"healthy","database":"ok"}`)
	}
}

func schemaReloadHandler(refresher schemaRefresher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())
		w.Header().Set("Content-Type", "application/json")

		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			_, _ = fmt.Fprint(w, `{"error":"method not allowed"}`)
			return
		}

		reqLogger.Info("admin endpoint accessed",
			slog.String("operation", "schema_reload"),
			slog.String("remote_addr", r.RemoteAddr),
		)

		refreshCtx, cancel := context.WithTimeout(r.Context(), schemaReloadTimeout)
		defer cancel()

		if err := refresher.RefreshNow(refreshCtx); err != nil {
			reqLogger.Error("schema reload failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = fmt.Fprint(w, `{"status":"error","message":"schema reload failed"}`)
			return
		}

		reqLogger.Info("schema reloaded")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, `{"status":"ok"}`)
	}
}
