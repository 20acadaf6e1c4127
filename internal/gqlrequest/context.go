package gqlrequest

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
)

type analysisKey struct{}

// Meta ties a request to the schema snapshot that served it.
type Meta struct {
	SchemaFingerprint string
	CatalogVersion    string
}

type metaKey struct{}

// WithAnalysis stores the request analysis in ctx.
func WithAnalysis(ctx context.Context, analysis *Analysis) context.Context {
	return context.WithValue(ctx, analysisKey{}, analysis)
}

// AnalysisFromContext returns the analysis stored by WithAnalysis, or nil.
func AnalysisFromContext(ctx context.Context) *Analysis {
	if ctx == nil {
		return nil
	}
	analysis, _ := ctx.Value(analysisKey{}).(*Analysis)
	return analysis
}

// WithMeta stores snapshot metadata in ctx.
func WithMeta(ctx context.Context, meta Meta) context.Context {
	return context.WithValue(ctx, metaKey{}, meta)
}

// MetaFromContext returns the snapshot metadata stored by WithMeta.
func MetaFromContext(ctx context.Context) (Meta, bool) {
	if ctx == nil {
		return Meta{}, false
	}
	meta, ok := ctx.Value(metaKey{}).(Meta)
	return meta, ok
}

// LogFields returns slog attributes describing the operation.
func (a *Analysis) LogFields(meta Meta) []any {
	if a == nil || a.Operation == nil {
		return nil
	}
	fields := []any{
		slog.String("graphql.operation_name", a.OperationName),
		slog.String("graphql.operation_type", a.OperationType),
		slog.String("graphql.operation_hash", a.Hash),
		slog.Any("graphql.root_fields", a.RootFields),
	}
	if meta.SchemaFingerprint != "" {
		fields = append(fields, slog.String("graphql.schema_fingerprint", meta.SchemaFingerprint))
	}
	return fields
}

// SpanAttributes returns span attributes describing the operation.
func (a *Analysis) SpanAttributes(meta Meta) []attribute.KeyValue {
	if a == nil || a.Operation == nil {
		return nil
	}
	attrs := []attribute.KeyValue{
		attribute.String("graphql.operation.name", a.OperationName),
		attribute.String("graphql.operation.type", a.OperationType),
		attribute.String("graphql.operation.hash", a.Hash),
		attribute.StringSlice("graphql.root_fields", a.RootFields),
		attribute.Int("graphql.field_count", a.FieldCount),
		attribute.Int("graphql.depth", a.Depth),
		attribute.Int("graphql.variable_count", a.VariableCount),
	}
	if meta.SchemaFingerprint != "" {
		attrs = append(attrs,
			attribute.String("graphql.schema.fingerprint", meta.SchemaFingerprint),
			attribute.String("graphql.schema.catalog_version", meta.CatalogVersion),
		)
	}
	return attrs
}
