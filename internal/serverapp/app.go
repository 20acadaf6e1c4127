package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/jobez/dojo/internal/config"
	"github.com/jobez/dojo/internal/dbexec"
	"github.com/jobez/dojo/internal/dialect"
	"github.com/jobez/dojo/internal/logging"
	"github.com/jobez/dojo/internal/observability"
	"github.com/jobez/dojo/internal/schemarefresh"
	"github.com/jobez/dojo/internal/servertls"
)

// App owns runtime resources for the dojo-graphql server lifecycle.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	loggerProvider *observability.LoggerProvider

	targetDatabase string
	databaseSource string
	dsnPresent     bool

	meterProvider  *observability.MeterProvider
	metrics        *observability.Metrics
	tracerProvider *observability.TracerProvider

	dialect    dialect.Dialect
	db         *sql.DB
	dbStatsReg interface{ Unregister() error }
	executor   *dbexec.StandardExecutor

	manager      *schemarefresh.Manager
	schemaCancel context.CancelFunc

	graphqlHandler http.Handler
	adminHandler   http.Handler
	mux            *http.ServeMux
	handler        http.Handler

	serverAddr string
	srv        *http.Server
	tlsManager servertls.Manager

	cleanup cleanupStack

	stateMu      sync.Mutex
	initialized  bool
	started      bool
	serverErrors chan error

	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	d, err := dialect.For(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}

	target, source, err := cfg.Database.Target()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database target: %w", err)
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		dialect:        d,
		targetDatabase: target,
		databaseSource: source,
		dsnPresent:     strings.TrimSpace(cfg.Database.ConnectionString) != "",
	}, nil
}

// AttachLoggerProvider registers an optional logger provider for shutdown cleanup.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}

// Manager returns the schema manager once Init has run.
func (a *App) Manager() *schemarefresh.Manager {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.manager
}
