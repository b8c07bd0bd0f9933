package logging

import (
	"context"
	"log/slog"
)

type (
	loggerKey    struct{}
	requestIDKey struct{}
)

// FromContext returns the logger stored by WithLogger. Without one it falls
// back to slog.Default, tagged with the request id when the context has it.
func FromContext(ctx context.Context) *Logger {
	if ctx == nil {
		return &Logger{Logger: slog.Default()}
	}
	if logger, ok := ctx.Value(loggerKey{}).(*Logger); ok {
		return logger
	}
	fallback := &Logger{Logger: slog.Default()}
	if id := GetRequestID(ctx); id != "" {
		return fallback.WithRequestID(id)
	}
	return fallback
}

func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetRequestID returns the id set by WithRequestIDContext, or "".
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func WithRequestIDContext(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}
