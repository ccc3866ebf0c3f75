package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DBOperation names the kind of statement a store span covers.
type DBOperation string

const (
	DBOperationQuery  DBOperation = "query"
	DBOperationInsert DBOperation = "insert"
	DBOperationUpdate DBOperation = "update"
	DBOperationDelete DBOperation = "delete"
)

// StartDBSpan opens a client span for one store call against table.
// The returned function ends the span and records err when non-nil:
//
//	ctx, end := tracing.StartDBSpan(ctx, "collection_points", tracing.DBOperationQuery)
//	defer func() { end(err) }()
func StartDBSpan(ctx context.Context, table string, op DBOperation, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	name := string(op)
	if table != "" {
		name += " " + table
	}

	base := []attribute.KeyValue{
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", string(op)),
	}
	if table != "" {
		base = append(base, attribute.String("db.sql.table", table))
	}

	ctx, span := otel.Tracer("wastemap/store").Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append(base, attrs...)...),
	)
	return ctx, ender(span)
}

// StartSpan opens an internal span, e.g. around a report run.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := otel.Tracer("wastemap").Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, ender(span)
}

// AddEvent records an event on the span in ctx, if any.
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

func ender(span trace.Span) func(error) {
	return func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
}
