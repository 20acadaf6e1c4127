// Package schemarefresh builds schema snapshots from the model catalog and
// swaps them in when models are registered or upgraded.
//
// A snapshot bundles the registry, the query engine over it and the GraphQL
// handler. Requests always run against one snapshot; a rebuild never mutates
// the registry a request is using.
package schemarefresh

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/handler"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jobez/dojo/internal/dbexec"
	"github.com/jobez/dojo/internal/dialect"
	"github.com/jobez/dojo/internal/logging"
	"github.com/jobez/dojo/internal/naming"
	"github.com/jobez/dojo/internal/observability"
	"github.com/jobez/dojo/internal/query"
	"github.com/jobez/dojo/internal/schema"
	"github.com/jobez/dojo/internal/store"
	"github.com/jobez/dojo/internal/typebuilder"
)

// Snapshot is an immutable view of the served schema.
type Snapshot struct {
	Schema         *graphql.Schema
	Handler        http.Handler
	Registry       *schema.Registry
	Engine         *query.Engine
	BuiltAt        time.Time
	Fingerprint    string
	CatalogVersion string
	// Components holds one digest per model, used to report what changed.
	Components map[string]string
}

// Config controls schema refresh behavior.
type Config struct {
	Executor    dbexec.TxRunner
	Dialect     dialect.Dialect
	Logger      *logging.Logger
	Metrics     *observability.SchemaRefreshMetrics
	MinInterval time.Duration
	MaxInterval time.Duration
	GraphiQL    bool
	Naming      naming.Config
	Engine      query.Options
}

// Manager maintains and refreshes schema snapshots.
type Manager struct {
	exec        dbexec.TxRunner
	dialect     dialect.Dialect
	logger      *logging.Logger
	metrics     *observability.SchemaRefreshMetrics
	minInterval time.Duration
	maxInterval time.Duration
	graphiQL    bool
	naming      naming.Config
	engineOpts  query.Options
	shapes      *typebuilder.Builder

	mu     sync.Mutex // serializes rebuilds
	active atomic.Pointer[Snapshot]
	wg     sync.WaitGroup
}

// NewManager builds the initial snapshot and returns a manager. An empty
// catalog is not an error; the schema then only carries the fixed fields.
func NewManager(ctx context.Context, cfg Config) (*Manager, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("schema refresh manager requires a query executor")
	}
	if cfg.Logger == nil {
		cfg.Logger = &logging.Logger{Logger: slog.Default()}
	}

	minInterval := cfg.MinInterval
	maxInterval := cfg.MaxInterval
	if minInterval <= 0 {
		minInterval = 30 * time.Second
	}
	if maxInterval <= 0 {
		maxInterval = 5 * time.Minute
	}
	if maxInterval < minInterval {
		maxInterval = minInterval
	}

	manager := &Manager{
		exec:        cfg.Executor,
		dialect:     cfg.Dialect,
		logger:      cfg.Logger.WithFields(slog.String("component", "schema_refresh")),
		metrics:     cfg.Metrics,
		minInterval: minInterval,
		maxInterval: maxInterval,
		graphiQL:    cfg.GraphiQL,
		naming:      cfg.Naming,
		engineOpts:  cfg.Engine,
		shapes:      typebuilder.NewBuilder(),
	}

	start := time.Now()
	version, err := store.CatalogVersion(ctx, manager.exec, manager.dialect)
	if err != nil {
		manager.recordRefresh(time.Since(start), false, "startup", 0)
		return nil, fmt.Errorf("failed to read model catalog: %w", err)
	}
	snapshot, err := manager.buildSnapshot(ctx, version)
	if err != nil {
		manager.recordRefresh(time.Since(start), false, "startup", 0)
		return nil, err
	}
	manager.active.Store(snapshot)
	manager.recordRefresh(time.Since(start), true, "startup", len(snapshot.Components))
	return manager, nil
}

// Start begins the background refresh loop.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.refreshLoop(ctx)
	}()
}

// Handler returns the HTTP handler for the current snapshot.
func (m *Manager) Handler() http.Handler {
	snapshot := m.CurrentSnapshot()
	if snapshot == nil || snapshot.Handler == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "schema not ready", http.StatusServiceUnavailable)
		})
	}
	return snapshot.Handler
}

// CurrentSnapshot returns the active snapshot.
func (m *Manager) CurrentSnapshot() *Snapshot {
	return m.active.Load()
}

// RefreshNow forces a rebuild and swap, regardless of the catalog version.
func (m *Manager) RefreshNow(ctx context.Context) error {
	start := time.Now()
	version, err := store.CatalogVersion(ctx, m.exec, m.dialect)
	if err != nil {
		m.recordRefresh(time.Since(start), false, "manual", m.activeModels())
		return fmt.Errorf("failed to read model catalog: %w", err)
	}
	snapshot, err := m.buildSnapshot(ctx, version)
	if err != nil {
		m.recordRefresh(time.Since(start), false, "manual", m.activeModels())
		return err
	}
	m.swap(snapshot)
	m.recordRefresh(time.Since(start), true, "manual", len(snapshot.Components))
	return nil
}

// Wait blocks until the refresh loop exits or the context is canceled.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) refreshLoop(ctx context.Context) {
	interval := m.minInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("schema refresh stopped")
			return
		case <-timer.C:
			m.refreshOnce(ctx, &interval)
			timer.Reset(interval)
		}
	}
}

// refreshOnce polls the catalog version and rebuilds on change. A failed
// rebuild keeps the previous snapshot.
func (m *Manager) refreshOnce(ctx context.Context, interval *time.Duration) {
	start := time.Now()
	version, err := store.CatalogVersion(ctx, m.exec, m.dialect)
	if err != nil {
		m.logger.Warn("catalog version check failed", slog.String("error", err.Error()))
		m.recordRefresh(time.Since(start), false, "poll", m.activeModels())
		*interval = m.minInterval
		return
	}

	current := m.CurrentSnapshot()
	if current != nil && version == current.CatalogVersion {
		m.recordRefresh(time.Since(start), true, "poll_no_change", len(current.Components))
		*interval = nextInterval(*interval, m.minInterval, m.maxInterval)
		return
	}

	m.logger.Info("model catalog changed, rebuilding",
		slog.String("catalog_version", version),
	)
	snapshot, err := m.buildSnapshot(ctx, version)
	if err != nil {
		m.logger.Error("failed to rebuild schema", slog.String("error", err.Error()))
		m.recordRefresh(time.Since(start), false, "poll", m.activeModels())
		*interval = m.minInterval
		return
	}

	m.swap(snapshot)
	*interval = m.minInterval
	m.recordRefresh(time.Since(start), true, "poll", len(snapshot.Components))
}

func (m *Manager) swap(snapshot *Snapshot) {
	previous := m.active.Swap(snapshot)
	var before map[string]string
	if previous != nil {
		before = previous.Components
	}
	m.logger.Info("schema refresh complete",
		slog.String("fingerprint", snapshot.Fingerprint),
		slog.Any("changed_models", changedComponents(before, snapshot.Components)),
	)
}

func (m *Manager) buildSnapshot(ctx context.Context, version string) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, span := otel.Tracer("dojo-graphql/schema").Start(ctx, "schema.build")
	defer span.End()

	start := time.Now()
	result, err := BuildSchema(ctx, BuildSchemaConfig{
		Executor: m.exec,
		Dialect:  m.dialect,
		Shapes:   m.shapes,
		Naming:   m.naming,
		Engine:   m.engineOpts,
		Logger:   m.logger,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	components := result.Registry.Fingerprints()
	for _, model := range result.Registry.Models() {
		m.logger.Debug("model registered",
			slog.String("model", model.Name),
			slog.Int("version", model.Version),
			slog.Int("members", len(model.Fields)),
		)
	}
	span.SetAttributes(
		attribute.Int("schema.models", len(components)),
		attribute.String("schema.catalog_version", version),
	)

	graphqlSchema := result.GraphQLSchema
	graphqlHandler := handler.New(&handler.Config{
		Schema:   &graphqlSchema,
		Pretty:   true,
		GraphiQL: m.graphiQL,
	})

	m.logger.Info("schema snapshot built",
		slog.Int("models", len(components)),
		slog.Duration("duration", time.Since(start)),
	)

	return &Snapshot{
		Schema:         &graphqlSchema,
		Handler:        graphqlHandler,
		Registry:       result.Registry,
		Engine:         result.Engine,
		BuiltAt:        time.Now(),
		Fingerprint:    result.Registry.Fingerprint(),
		CatalogVersion: version,
		Components:     components,
	}, nil
}

func (m *Manager) activeModels() int {
	if current := m.CurrentSnapshot(); current != nil {
		return len(current.Components)
	}
	return 0
}

func (m *Manager) recordRefresh(duration time.Duration, success bool, trigger string, models int) {
	if m.metrics == nil {
		return
	}
	m.metrics.RecordRefresh(context.Background(), duration, success, trigger, models)
}

func nextInterval(current, minInterval, maxInterval time.Duration) time.Duration {
	if current < minInterval {
		return minInterval
	}
	next := current + current/2
	if next > maxInterval {
		return maxInterval
	}
	return next
}

// changedComponents lists models that were added, removed or changed.
func changedComponents(previous, current map[string]string) []string {
	keySet := make(map[string]struct{}, len(previous)+len(current))
	for key := range previous {
		keySet[key] = struct{}{}
	}
	for key := range current {
		keySet[key] = struct{}{}
	}
	changed := make([]string, 0, len(keySet))
	for key := range keySet {
		if previous[key] != current[key] {
			changed = append(changed, key)
		}
	}
	sort.Strings(changed)
	return changed
}
