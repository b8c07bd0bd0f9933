package middleware

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"content-graphql/internal/logging"
	"content-graphql/internal/observability"
)

// DepthLimitMiddleware rejects documents whose selection depth exceeds limit.
// Documents that fail to parse pass through so the executor reports the
// syntax error. A limit of zero disables the check.
func DepthLimitMiddleware(limit int, metrics *observability.GraphQLMetrics) func(http.Handler) http.Handler {
	if limit <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			metadata, r, err := inspectRequest(r)
			if err != nil || metadata == nil {
				next.ServeHTTP(w, r)
				return
			}
			if metrics != nil {
				metrics.RecordQueryDepth(r.Context(), int64(metadata.selectionDepth), metadata.operationType)
			}
			if metadata.selectionDepth > limit {
				if metrics != nil {
					metrics.RecordDepthRejection(r.Context(), metadata.operationType)
				}
				logging.FromContext(r.Context()).Warn("graphql document exceeds depth limit",
					slog.Int("depth", metadata.selectionDepth),
					slog.Int("limit", limit),
					slog.String("root_fields", strings.Join(metadata.rootFields, ",")),
				)
				writeGraphQLError(w, http.StatusBadRequest,
					fmt.Sprintf("query depth %d exceeds the maximum of %d", metadata.selectionDepth, limit))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeGraphQLError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"errors": []map[string]string{{"message": message}},
	})
}
