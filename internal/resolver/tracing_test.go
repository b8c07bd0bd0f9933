package resolver

import (
	"context"
	"testing"

	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"content-graphql/internal/action"
)

func TestResolver_EmitsTracingSpan(t *testing.T) {
	recorder := recordSpans(t)

	actions := action.NewRegistry()
	actions.Register(action.MustParseRef("article.find", ""), func(*action.Context) (any, error) {
		return []any{}, nil
	})
	actions.Register(action.MustParseRef("article.count", ""), func(*action.Context) (any, error) {
		return nil, action.ErrNotFound
	})
	b := NewBuilder(Options{Actions: actions})

	find, err := b.BuildQuery("articles", Config{Resolver: Action{Ref: action.MustParseRef("article.find", "")}})
	require.NoError(t, err)
	_, err = find(graphql.ResolveParams{Context: context.Background(), Args: map[string]any{}})
	require.NoError(t, err)

	count, err := b.BuildQuery("articlesCount", Config{Resolver: Action{Ref: action.MustParseRef("article.count", "")}})
	require.NoError(t, err)
	_, err = count(graphql.ResolveParams{Context: context.Background(), Args: map[string]any{}})
	require.Error(t, err)

	spans := recorder.Ended()
	ok := spanNamed(spans, "resolver.articles")
	require.NotNil(t, ok)
	assert.Equal(t, "success", stringAttr(ok.Attributes(), "graphql.resolver.outcome"))
	assert.Equal(t, "article.find", stringAttr(ok.Attributes(), "content.action"))

	failed := spanNamed(spans, "resolver.articlesCount")
	require.NotNil(t, failed)
	assert.Equal(t, "error", stringAttr(failed.Attributes(), "graphql.resolver.outcome"))
	assert.Equal(t, codes.Error, failed.Status().Code)
}

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()), sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(previous)
	})
	return recorder
}

func spanNamed(spans []sdktrace.ReadOnlySpan, name string) sdktrace.ReadOnlySpan {
	for _, span := range spans {
		if span.Name() == name {
			return span
		}
	}
	return nil
}

func stringAttr(attrs []attribute.KeyValue, key string) string {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value.AsString()
		}
	}
	return ""
}
