package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for name, want := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, want, ParseLevel(name))
		})
	}
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: "warn", Format: "json", Output: &buf})

	logger.Info("dropped")
	logger.WithRequestID("req-1").Warn("kept", slog.String("model", "api::article.article"))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &rec))
	assert.Equal(t, "kept", rec["msg"])
	assert.Equal(t, "req-1", rec["request_id"])
	assert.Equal(t, "api::article.article", rec["model"])
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.NotNil(t, FromContext(ctx))
	assert.Empty(t, GetRequestID(ctx))

	logger := Discard()
	ctx = WithLogger(ctx, logger)
	ctx = WithRequestIDContext(ctx, "abc")
	assert.Same(t, logger, FromContext(ctx))
	assert.Equal(t, "abc", GetRequestID(ctx))
}

func TestFromContextFallbackCarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(previous) })

	FromContext(WithRequestIDContext(context.Background(), "req-9")).Info("resolved")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "req-9", rec["request_id"])
}

type failingHandler struct{ slog.Handler }

func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("collector down") }

func TestFanoutKeepsWritingWhenOneHandlerFails(t *testing.T) {
	var buf bytes.Buffer
	local := slog.NewTextHandler(&buf, nil)
	handler := fanout{failingHandler{local}, local}
	record := slog.NewRecord(time.Now(), slog.LevelInfo, "compiled", 0)
	record.AddAttrs(slog.String("uid", "application::article.article"))

	err := handler.Handle(context.Background(), record)
	assert.EqualError(t, err, "collector down")
	assert.Contains(t, buf.String(), "msg=compiled")
	assert.Contains(t, buf.String(), "uid=application::article.article")
}
