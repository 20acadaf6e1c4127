package query

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jobez/dojo/internal/dbexec"
	"github.com/jobez/dojo/internal/planner"
	"github.com/jobez/dojo/internal/queryerr"
	"github.com/jobez/dojo/internal/schema"
)

// entityChunkSize bounds the IN list of one entity lookup.
const entityChunkSize = 500

// Entity is the addressable bundle of model rows sharing one key tuple.
type Entity struct {
	ID         string
	Keys       []string
	ModelNames []string
}

// batchState remembers the nodes of the pages returned in one request so the
// first entity resolution can load the entities of a whole page at once.
type batchState struct {
	mu       sync.Mutex
	pending  map[string][]Node             // model -> nodes not yet resolved
	entities map[string]map[string]*Entity // model -> encoded keys -> entity (nil = miss)
	hits     int64
	misses   int64
}

type batchStateKey struct{}

// NewBatchingContext injects request-scoped entity batching.
func NewBatchingContext(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, batchStateKey{}, &batchState{
		pending:  make(map[string][]Node),
		entities: make(map[string]map[string]*Entity),
	})
}

func getBatchState(ctx context.Context) (*batchState, bool) {
	if ctx == nil {
		return nil, false
	}
	state, ok := ctx.Value(batchStateKey{}).(*batchState)
	return state, ok
}

// BatchStats reports how many entity resolutions in the request were served
// from the batch cache and how many triggered a load.
func BatchStats(ctx context.Context) (hits, misses int64, ok bool) {
	state, ok := getBatchState(ctx)
	if !ok {
		return 0, 0, false
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.hits, state.misses, true
}

// SeedBatch records the nodes of a page for batched entity resolution.
// It is a no-op without a batching context.
func SeedBatch(ctx context.Context, conn *Connection) {
	state, ok := getBatchState(ctx)
	if !ok || conn == nil || len(conn.Edges) == 0 {
		return
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	for _, edge := range conn.Edges {
		state.pending[edge.Node.Model] = append(state.pending[edge.Node.Model], edge.Node)
	}
}

// ResolveEntity returns the entity owning a model row. A row without an
// entity breaks the store's invariants and is reported as a consistency error.
func (e *Engine) ResolveEntity(ctx context.Context, node Node) (*Entity, error) {
	m, err := e.registry.Get(node.Model)
	if err != nil {
		return nil, err
	}
	tuple, err := m.KeyTuple(node.Values)
	if err != nil {
		return nil, queryerr.Consistency(node.Model, "row %d has no usable key tuple: %v", node.ID, err)
	}
	keys := schema.JoinKeys(tuple)

	var entity *Entity
	if state, ok := getBatchState(ctx); ok {
		entity, err = e.resolveBatched(ctx, state, m, keys)
	} else {
		var found map[string]*Entity
		found, err = e.loadEntities(ctx, node.Model, []string{keys})
		entity = found[keys]
	}
	if err != nil {
		return nil, err
	}
	if entity == nil {
		// The page was read in an earlier snapshot; a row deleted since then
		// also loses its entity and is not a broken reference.
		exists, err := e.rowExists(ctx, node)
		if err != nil {
			return nil, e.storeError(ctx, node.Model+".entity", err)
		}
		if !exists {
			e.logger(ctx).Warn("model row removed before its entity was resolved",
				slog.String("model", node.Model),
				slog.Int64("internal_id", node.ID),
			)
			return nil, queryerr.NotFound(node.Model, "row %d no longer exists", node.ID)
		}
		e.logger(ctx).Error("model row has no entity",
			slog.String("model", node.Model),
			slog.Int64("internal_id", node.ID),
			slog.String("keys", keys),
		)
		if e.opts.Metrics != nil {
			e.opts.Metrics.RecordError(ctx, node.Model, string(queryerr.KindConsistency))
		}
		return nil, queryerr.Consistency(node.Model, "no entity for keys %s", keys)
	}
	return entity, nil
}

func (e *Engine) resolveBatched(ctx context.Context, state *batchState, m schema.Model, keys string) (*Entity, error) {
	state.mu.Lock()
	defer state.mu.Unlock()

	cache := state.entities[m.Name]
	if cache == nil {
		cache = make(map[string]*Entity)
		state.entities[m.Name] = cache
	}
	if entity, ok := cache[keys]; ok {
		state.hits++
		if e.opts.Metrics != nil {
			e.opts.Metrics.RecordEntityCacheHit(ctx, m.Name)
		}
		return entity, nil
	}
	state.misses++

	wanted := []string{keys}
	seen := map[string]struct{}{keys: {}}
	for _, pending := range state.pending[m.Name] {
		tuple, err := m.KeyTuple(pending.Values)
		if err != nil {
			continue
		}
		k := schema.JoinKeys(tuple)
		if _, done := cache[k]; done {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		wanted = append(wanted, k)
	}
	delete(state.pending, m.Name)

	found, err := e.loadEntities(ctx, m.Name, wanted)
	if err != nil {
		return nil, err
	}
	for _, k := range wanted {
		cache[k] = found[k]
	}
	return cache[keys], nil
}

// loadEntities looks up entities by encoded key tuples.
func (e *Engine) loadEntities(ctx context.Context, model string, keys []string) (map[string]*Entity, error) {
	ctx, span := startSpan(ctx, "model.entity.batch",
		attribute.String("model", model),
		attribute.Int("keys", len(keys)),
	)
	var err error
	defer func() { finishSpan(span, err) }()

	if e.opts.Metrics != nil {
		e.opts.Metrics.RecordEntityBatch(ctx, model, len(keys))
	}

	out := make(map[string]*Entity, len(keys))
	for start := 0; start < len(keys); start += entityChunkSize {
		end := start + entityChunkSize
		if end > len(keys) {
			end = len(keys)
		}
		var stmt planner.SQLQuery
		stmt, err = planner.PlanEntitiesByKeys(e.dialect, keys[start:end])
		if err != nil {
			return nil, queryerr.SchemaValidation(model, "%v", err)
		}
		var entities []*Entity
		entities, err = queryEntities(ctx, e.exec, stmt)
		if err != nil {
			return nil, e.storeError(ctx, model+".entity", err)
		}
		for _, entity := range entities {
			out[schema.JoinKeys(entity.Keys)] = entity
		}
	}
	return out, nil
}

func (e *Engine) rowExists(ctx context.Context, node Node) (bool, error) {
	stmt, err := planner.PlanRowExists(e.dialect, node.Model, node.ID)
	if err != nil {
		return false, err
	}
	rows, err := e.exec.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return false, err
	}
	defer func() { _ = rows.Close() }()
	found := rows.Next()
	return found, rows.Err()
}

// EntityByID returns one entity by id.
func (e *Engine) EntityByID(ctx context.Context, id string) (*Entity, error) {
	stmt, err := planner.PlanEntityByID(e.dialect, id)
	if err != nil {
		return nil, queryerr.SchemaValidation("id", "%v", err)
	}
	entities, err := queryEntities(ctx, e.exec, stmt)
	if err != nil {
		return nil, e.storeError(ctx, "entity", err)
	}
	if len(entities) == 0 {
		return nil, queryerr.NotFound(id, "entity does not exist")
	}
	return entities[0], nil
}

func queryEntities(ctx context.Context, q dbexec.QueryExecutor, stmt planner.SQLQuery) ([]*Entity, error) {
	rows, err := q.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*Entity
	for rows.Next() {
		var id, keys, modelNames string
		if err := rows.Scan(&id, &keys, &modelNames); err != nil {
			return nil, err
		}
		out = append(out, &Entity{
			ID:         id,
			Keys:       schema.SplitKeys(keys),
			ModelNames: splitModelNames(modelNames),
		})
	}
	return out, rows.Err()
}

func splitModelNames(raw string) []string {
	var names []string
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
