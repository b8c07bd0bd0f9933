package middleware

import (
	"net/http"
	"strings"
	"time"

	"content-graphql/internal/observability"
)

// GraphQLMetricsMiddleware records request duration, errors and in-flight
// count per operation type. Requests without a document, such as playground
// page loads, are not measured. Introspection is labelled separately so schema
// tooling does not skew the query figures.
func GraphQLMetricsMiddleware(metrics *observability.GraphQLMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			doc, r, err := inspectRequest(r)
			if doc == nil && err == nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			defer metrics.TrackActiveRequest(ctx)()

			start := time.Now()
			rec := newResponseRecorder(w, true)
			next.ServeHTTP(rec, r)

			hasErrors := rec.status >= 400 || graphQLErrorCount(rec.body.Bytes()) > 0
			metrics.RecordRequest(ctx, time.Since(start), hasErrors, operationLabel(doc))
		})
	}
}

func operationLabel(doc *graphQLDocument) string {
	switch {
	case doc == nil || strings.TrimSpace(doc.operationType) == "":
		return "unknown"
	case doc.introspection:
		return "introspection"
	default:
		return doc.operationType
	}
}
