package middleware

import (
	"log/slog"
	"net/http"

	"content-graphql/internal/logging"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// GraphQLTracingMiddleware instruments GraphQL execution with an inner span.
func GraphQLTracingMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			doc, r, err := inspectRequest(r)
			if doc == nil && err == nil {
				next.ServeHTTP(w, r)
				return
			}

			tracer := otel.Tracer("content-graphql/graphql")
			ctx, span := tracer.Start(r.Context(), "graphql.execute")
			defer span.End()
			if spanCtx := span.SpanContext(); spanCtx.IsValid() {
				reqLogger := logging.FromContext(ctx).WithFields(
					slog.String("trace_id", spanCtx.TraceID().String()),
					slog.String("span_id", spanCtx.SpanID().String()),
				)
				ctx = logging.WithLogger(ctx, reqLogger)
			}

			if span.IsRecording() {
				span.SetAttributes(graphQLSpanAttributes(doc, err)...)
			}

			rec := newResponseRecorder(w, true)
			next.ServeHTTP(rec, r.WithContext(ctx))

			errorCount := graphQLErrorCount(rec.body.Bytes())
			span.SetAttributes(attribute.Int("graphql.response.error_count", errorCount))
			switch {
			case rec.status >= 400:
				span.SetStatus(codes.Error, http.StatusText(rec.status))
			case errorCount > 0:
				span.SetStatus(codes.Error, "graphql errors")
			}
		})
	}
}

func graphQLSpanAttributes(doc *graphQLDocument, parseErr error) []attribute.KeyValue {
	if parseErr != nil {
		return []attribute.KeyValue{attribute.Bool("graphql.document.parse_error", true)}
	}
	attrs := []attribute.KeyValue{
		attribute.Int("graphql.document.length", len(doc.query)),
		attribute.String("graphql.operation.type", doc.operationType),
		attribute.StringSlice("graphql.operation.root_fields", doc.rootFields),
		attribute.Int("graphql.document.field_count", doc.fieldCount),
		attribute.Int("graphql.document.depth", doc.selectionDepth),
		attribute.Int("graphql.document.variable_count", doc.variableCount),
	}
	if doc.operationName != "" {
		attrs = append(attrs, attribute.String("graphql.operation.name", doc.operationName))
	}
	if doc.introspection {
		attrs = append(attrs, attribute.Bool("graphql.introspection", true))
	}
	return attrs
}
