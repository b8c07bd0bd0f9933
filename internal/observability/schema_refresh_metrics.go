package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Trigger the schema watcher reports when a poll finds the model files
// unchanged. Those polls are counted as checks, never as builds.
const triggerPollNoChange = "poll_no_change"

// SchemaRefreshMetrics tracks how often the content schema is checked and
// rebuilt, and when the live schema was last swapped in.
type SchemaRefreshMetrics struct {
	checks      metric.Int64Counter
	builds      metric.Int64Counter
	failures    metric.Int64Counter
	duration    metric.Float64Histogram
	lastSuccess atomic.Int64
}

func InitSchemaRefreshMetrics(logger *slog.Logger) (*SchemaRefreshMetrics, error) {
	meter := otel.Meter("content-graphql/schema")
	m := &SchemaRefreshMetrics{}
	var err error

	if m.checks, err = meter.Int64Counter("schema.refresh.total",
		metric.WithDescription("Schema refresh attempts, including polls that found no change")); err != nil {
		return nil, fmt.Errorf("create schema refresh counter: %w", err)
	}
	if m.builds, err = meter.Int64Counter("content.schema.builds.total",
		metric.WithDescription("Schema compilations from the model files")); err != nil {
		return nil, fmt.Errorf("create schema build counter: %w", err)
	}
	if m.failures, err = meter.Int64Counter("schema.refresh.errors.total",
		metric.WithDescription("Refresh attempts that kept the previous schema")); err != nil {
		return nil, fmt.Errorf("create schema refresh error counter: %w", err)
	}
	if m.duration, err = meter.Float64Histogram("schema.refresh.duration",
		metric.WithDescription("Time spent fingerprinting and compiling the schema"),
		metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("create schema refresh duration histogram: %w", err)
	}

	_, err = meter.Int64ObservableGauge("schema.refresh.last_success_unix",
		metric.WithDescription("Unix time the live schema was last confirmed or replaced"),
		metric.WithUnit("s"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			if v := m.lastSuccess.Load(); v > 0 {
				o.Observe(v)
			}
			return nil
		}))
	if err != nil {
		return nil, fmt.Errorf("create schema refresh gauge: %w", err)
	}

	logger.Debug("schema refresh metrics initialized")
	return m, nil
}

// RecordRefresh records one refresh attempt. Polls that found the files
// unchanged do not count as builds.
func (m *SchemaRefreshMetrics) RecordRefresh(ctx context.Context, duration time.Duration, success bool, trigger string) {
	outcome := attribute.Bool("success", success)
	tr := attribute.String("trigger", trigger)

	m.checks.Add(ctx, 1, metric.WithAttributes(tr, outcome))
	m.duration.Record(ctx, float64(duration.Microseconds())/1000, metric.WithAttributes(tr, outcome))
	if trigger != triggerPollNoChange {
		m.builds.Add(ctx, 1, metric.WithAttributes(tr, outcome))
	}
	if !success {
		m.failures.Add(ctx, 1, metric.WithAttributes(tr))
		return
	}
	m.lastSuccess.Store(time.Now().Unix())
}
