package resolver

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jobez/dojo/internal/queryerr"
)

const tracerName = "dojo-graphql/resolver"

func startResolverSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

// finishResolverSpan records the outcome. Errors are tagged with their query
// error kind so traces can be filtered by failure class.
func finishResolverSpan(span trace.Span, err error) {
	if span == nil {
		return
	}
	defer span.End()
	if err == nil {
		span.SetAttributes(attribute.String("graphql.resolver.outcome", "success"))
		return
	}
	kind, ok := queryerr.KindOf(err)
	if !ok {
		kind = "internal"
	}
	span.SetAttributes(
		attribute.String("graphql.resolver.outcome", "error"),
		attribute.String("graphql.resolver.error_kind", string(kind)),
	)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
