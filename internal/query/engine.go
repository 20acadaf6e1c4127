// Package query executes model connection queries and entity lookups.
//
// An Engine validates every argument against the registered schema before it
// touches the store, then runs the count and the page inside one read-only
// snapshot so totalCount and the edges always describe the same state.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jobez/dojo/internal/cursor"
	"github.com/jobez/dojo/internal/dbexec"
	"github.com/jobez/dojo/internal/dialect"
	"github.com/jobez/dojo/internal/logging"
	"github.com/jobez/dojo/internal/observability"
	"github.com/jobez/dojo/internal/planner"
	"github.com/jobez/dojo/internal/queryerr"
	"github.com/jobez/dojo/internal/schema"
	"github.com/jobez/dojo/internal/typebuilder"
)

// Options tune an Engine.
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
	CursorSecret    string
	Metrics         *observability.QueryMetrics
	Logger          *logging.Logger
}

// Engine runs queries against one registry snapshot.
type Engine struct {
	registry *schema.Registry
	shapes   *typebuilder.Builder
	dialect  dialect.Dialect
	exec     dbexec.TxRunner
	codec    *cursor.Codec
	opts     Options
}

// NewEngine creates an engine. shapes may be shared between engines built
// for successive registry snapshots.
func NewEngine(registry *schema.Registry, shapes *typebuilder.Builder, d dialect.Dialect, exec dbexec.TxRunner, opts Options) *Engine {
	if shapes == nil {
		shapes = typebuilder.NewBuilder()
	}
	return &Engine{
		registry: registry,
		shapes:   shapes,
		dialect:  d,
		exec:     exec,
		codec:    cursor.NewCodec(opts.CursorSecret),
		opts:     opts,
	}
}

// Registry returns the schema registry the engine serves.
func (e *Engine) Registry() *schema.Registry { return e.registry }

// Dialect returns the store dialect.
func (e *Engine) Dialect() dialect.Dialect { return e.dialect }

// Shape returns the queryable shape of a registered model.
func (e *Engine) Shape(model string) (*typebuilder.Shape, error) {
	m, err := e.registry.Get(model)
	if err != nil {
		return nil, err
	}
	return e.shapes.Shape(m)
}

// Args are the client arguments of a connection query.
type Args struct {
	Where map[string]interface{}
	Order *planner.OrderInput
	First *int
	After *string
}

// Node is one model row as exposed on the API.
type Node struct {
	Model  string
	ID     int64
	Values map[string]interface{}
}

// Edge pairs a node with the cursor that resumes after it.
type Edge struct {
	Node   Node
	Cursor string
}

// Connection is one page of a model query.
type Connection struct {
	TotalCount  int
	Edges       []Edge
	HasNextPage bool
}

// EndCursor returns the cursor of the last edge, or "".
func (c *Connection) EndCursor() string {
	if len(c.Edges) == 0 {
		return ""
	}
	return c.Edges[len(c.Edges)-1].Cursor
}

// request is a fully validated connection query.
type request struct {
	shape       *typebuilder.Shape
	filter      planner.Filter
	order       planner.Order
	fingerprint string
	plan        *planner.ConnectionPlan
}

// prepare validates args and plans the statements. It never touches the store.
func (e *Engine) prepare(model string, args Args) (*request, error) {
	shape, err := e.Shape(model)
	if err != nil {
		if queryerr.Is(err, queryerr.KindNotFound) {
			return nil, queryerr.Reclassify(queryerr.KindSchemaValidation, model, err)
		}
		return nil, err
	}
	filter, err := planner.CompileFilter(shape, args.Where)
	if err != nil {
		return nil, err
	}
	order, err := planner.CompileOrder(shape, args.Order)
	if err != nil {
		return nil, err
	}
	first, err := planner.ClampFirst(args.First, e.opts.DefaultPageSize, e.opts.MaxPageSize)
	if err != nil {
		return nil, queryerr.SchemaValidation("first", "%v", err)
	}

	req := &request{
		shape:       shape,
		filter:      filter,
		order:       order,
		fingerprint: cursor.Fingerprint(shape.Model.Name, shape.Model.Version, filter.Key(), order.Key()),
	}

	var seek []interface{}
	if args.After != nil && *args.After != "" {
		values, err := e.codec.DecodeFor(*args.After, req.fingerprint)
		if err != nil {
			return nil, err
		}
		seek, err = order.SeekValues(values)
		if err != nil {
			return nil, queryerr.Cursor("cursor position does not fit the requested order", err)
		}
	}

	req.plan, err = planner.PlanConnection(e.dialect, shape.Model, filter, order, seek, first)
	if err != nil {
		return nil, queryerr.SchemaValidation(model, "%v", err)
	}
	return req, nil
}

// Connection runs a paginated model query.
func (e *Engine) Connection(ctx context.Context, model string, args Args) (conn *Connection, err error) {
	start := time.Now()
	ctx, span := startSpan(ctx, "model.connection", attribute.String("model", model))
	defer func() {
		finishSpan(span, err)
		e.recordConnection(ctx, model, start, conn, err)
	}()

	req, err := e.prepare(model, args)
	if err != nil {
		return nil, err
	}

	var (
		total int64
		rows  []map[string]interface{}
	)
	err = e.exec.InTx(ctx, e.dialect.SnapshotTxOptions(), func(q dbexec.QueryExecutor) error {
		var err error
		if total, err = queryCount(ctx, q, req.plan.Count); err != nil {
			return err
		}
		rows, err = queryRows(ctx, q, req.plan.Page, req.plan.Columns)
		return err
	})
	if err != nil {
		return nil, e.storeError(ctx, model+".connection", err)
	}

	conn = &Connection{TotalCount: int(total)}
	if len(rows) > req.plan.First {
		conn.HasNextPage = true
		rows = rows[:req.plan.First]
	}
	conn.Edges = make([]Edge, 0, len(rows))
	for _, row := range rows {
		edge, err := e.edge(req, row)
		if err != nil {
			return nil, e.storeError(ctx, model+".decode", err)
		}
		conn.Edges = append(conn.Edges, edge)
	}
	return conn, nil
}

func (e *Engine) edge(req *request, row map[string]interface{}) (Edge, error) {
	node, err := decodeNode(req.shape.Model, row)
	if err != nil {
		return Edge{}, err
	}
	values, err := req.order.CursorValues(row)
	if err != nil {
		return Edge{}, err
	}
	return Edge{Node: node, Cursor: e.codec.Encode(values, req.fingerprint)}, nil
}

func decodeNode(m schema.Model, row map[string]interface{}) (Node, error) {
	id, err := planner.IdentityValue(row)
	if err != nil {
		return Node{}, err
	}
	node := Node{Model: m.Name, ID: id, Values: make(map[string]interface{}, len(m.Fields))}
	for _, f := range m.Fields {
		v, err := f.APIValue(row[f.Name])
		if err != nil {
			return Node{}, fmt.Errorf("member %s: %w", f.Name, err)
		}
		node.Values[f.Name] = v
	}
	return node, nil
}

func queryCount(ctx context.Context, q dbexec.QueryExecutor, stmt planner.SQLQuery) (int64, error) {
	rows, err := q.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return 0, err
	}
	defer func() { _ = rows.Close() }()

	var count int64
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return 0, err
		}
	}
	return count, rows.Err()
}

func queryRows(ctx context.Context, q dbexec.QueryExecutor, stmt planner.SQLQuery, columns []string) ([]map[string]interface{}, error) {
	rows, err := q.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		dest := make([]interface{}, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) storeError(ctx context.Context, op string, err error) error {
	qe := queryerr.Store(op, err)
	qe.Code = dialect.BackendCode(err)
	e.logger(ctx).Warn("model query failed",
		slog.String("op", op),
		slog.String("backend_code", qe.Code),
		slog.String("error", err.Error()),
	)
	return qe
}

func (e *Engine) logger(ctx context.Context) *logging.Logger {
	if l := logging.FromContextOrNil(ctx); l != nil {
		return l
	}
	if e.opts.Logger != nil {
		return e.opts.Logger
	}
	return logging.FromContext(ctx)
}

func (e *Engine) recordConnection(ctx context.Context, model string, start time.Time, conn *Connection, err error) {
	if e.opts.Metrics == nil {
		return
	}
	edges := 0
	if conn != nil {
		edges = len(conn.Edges)
	}
	kind, _ := queryerr.KindOf(err)
	e.opts.Metrics.RecordConnection(ctx, model, time.Since(start), edges, err, string(kind))
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("dojo-graphql/query").Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func finishSpan(span trace.Span, err error) {
	if err == nil {
		span.End()
		return
	}
	if kind, ok := queryerr.KindOf(err); ok {
		span.SetAttributes(attribute.String("error.kind", string(kind)))
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.End()
}
