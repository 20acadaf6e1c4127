package serverapp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jobez/dojo/internal/dbexec"
	"github.com/jobez/dojo/internal/observability"
	"github.com/jobez/dojo/internal/store"
)

// Init acquires every runtime resource: telemetry providers, the store
// connection, the schema manager and the HTTP server. It is idempotent. On
// failure everything acquired so far is released and the App stays
// uninitialized.
func (a *App) Init(ctx context.Context) error {
	a.stateMu.Lock()
	if a.initialized {
		a.stateMu.Unlock()
		return nil
	}
	a.stateMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	var cleanup cleanupStack
	success := false
	defer func() {
		if !success {
			_ = cleanup.run(context.Background(), a.logger)
		}
	}()

	if a.loggerProvider != nil {
		cleanup.push("logger provider", func(shutdownCtx context.Context) error {
			return a.loggerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	if err := a.initTelemetry(&cleanup); err != nil {
		return err
	}
	if err := a.initStore(ctx, &cleanup); err != nil {
		return err
	}
	if err := a.initSchema(ctx, &cleanup); err != nil {
		return err
	}
	if err := a.initHTTP(&cleanup); err != nil {
		return err
	}

	a.stateMu.Lock()
	a.cleanup = cleanup
	a.initialized = true
	a.stateMu.Unlock()

	success = true
	return nil
}

func (a *App) initTelemetry(cleanup *cleanupStack) error {
	meterProvider, metrics, err := initMetrics(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
	}
	if meterProvider != nil {
		cleanup.push("meter provider", func(ctx context.Context) error {
			return meterProvider.Shutdown(ctx, a.logger.Logger)
		})
	}

	tracerProvider, err := initTracing(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
	}
	if tracerProvider != nil {
		cleanup.push("tracer provider", func(ctx context.Context) error {
			return tracerProvider.Shutdown(ctx, a.logger.Logger)
		})
	}

	a.meterProvider = meterProvider
	a.metrics = metrics
	a.tracerProvider = tracerProvider
	return nil
}

func (a *App) initStore(ctx context.Context, cleanup *cleanupStack) error {
	a.logger.Info("connecting to model store",
		slog.String("driver", a.dialect.Name()),
		slog.String("host", a.cfg.Database.Host),
		slog.Int("port", a.cfg.Database.EffectivePort()),
		slog.String("database", a.targetDatabase),
		slog.String("database_source", a.databaseSource),
		slog.Bool("dsn_present", a.dsnPresent),
	)

	db, dbStatsReg, err := connectDB(a.cfg, a.logger, a.dialect)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	cleanup.push("database", func(_ context.Context) error {
		if dbStatsReg != nil {
			if err := dbStatsReg.Unregister(); err != nil {
				a.logger.Warn("failed to unregister DB stats metrics", slog.String("error", err.Error()))
			}
		}
		return db.Close()
	})

	if err := configureDatabase(ctx, a.cfg, a.logger, db, a.targetDatabase, a.databaseSource); err != nil {
		return fmt.Errorf("failed to verify database connection: %w", err)
	}

	executor := dbexec.NewStandardExecutor(db)
	if a.cfg.Database.EnsureCatalog {
		if err := store.EnsureCatalog(ctx, executor, a.dialect); err != nil {
			return fmt.Errorf("failed to prepare model catalog: %w", err)
		}
		a.logger.Info("model catalog ready")
	}

	a.db = db
	a.dbStatsReg = dbStatsReg
	a.executor = executor
	return nil
}

func (a *App) initSchema(ctx context.Context, cleanup *cleanupStack) error {
	manager, schemaCancel, err := startSchemaManager(ctx, a.cfg, a.logger, a.dialect, a.executor, a.metrics)
	if err != nil {
		return fmt.Errorf("failed to initialize schema refresh manager: %w", err)
	}
	cleanup.push("schema manager", func(ctx context.Context) error {
		schemaCancel()
		return manager.Wait(ctx)
	})

	a.stateMu.Lock()
	a.manager = manager
	a.schemaCancel = schemaCancel
	a.stateMu.Unlock()
	return nil
}

func (a *App) initHTTP(cleanup *cleanupStack) error {
	var graphqlMetrics *observability.GraphQLMetrics
	if a.metrics != nil {
		graphqlMetrics = a.metrics.GraphQL
	}
	a.graphqlHandler = buildGraphQLHandler(a.cfg, a.logger, a.manager, graphqlMetrics)

	adminHandler, err := buildAdminHandler(a.cfg, a.logger, a.manager)
	if err != nil {
		return fmt.Errorf("failed to initialize admin handler: %w", err)
	}
	a.adminHandler = adminHandler

	a.mux = buildRouter(a.cfg, a.logger, a.db, a.graphqlHandler, a.adminHandler, a.meterProvider)
	a.handler = wrapHTTPHandler(a.cfg, a.logger, a.mux)

	a.serverAddr = fmt.Sprintf(":%d", a.cfg.Server.Port)
	srv, tlsManager, err := buildServer(a.cfg, a.logger, a.handler, a.serverAddr)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}
	cleanup.push("HTTP server", func(ctx context.Context) error {
		return srv.Shutdown(ctx)
	})
	if tlsManager != nil {
		cleanup.push("TLS manager", func(_ context.Context) error {
			return tlsManager.Shutdown()
		})
	}

	a.srv = srv
	a.tlsManager = tlsManager
	return nil
}
