package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// GraphQLMetrics covers the HTTP GraphQL endpoint, the generated resolvers
// and the per-request association loader.
type GraphQLMetrics struct {
	// request level
	requestDuration metric.Float64Histogram
	requestCounter  metric.Int64Counter
	errorCounter    metric.Int64Counter
	activeRequests  metric.Int64UpDownCounter
	queryDepth      metric.Int64Histogram
	depthRejections metric.Int64Counter

	// resolver level
	resolverDuration metric.Float64Histogram
	resolverCalls    metric.Int64Counter
	policyHalts      metric.Int64Counter

	// loader
	loaderBatches metric.Int64Histogram
	loaderHits    metric.Int64Counter
	loaderMisses  metric.Int64Counter
}

type instrumentSpec[T any] struct {
	dst  *T
	name string
	desc string
}

// InitGraphQLMetrics creates the instruments on the global meter provider.
func InitGraphQLMetrics() (*GraphQLMetrics, error) {
	meter := otel.Meter("content-graphql")
	m := &GraphQLMetrics{}

	counters := []instrumentSpec[metric.Int64Counter]{
		{&m.requestCounter, "graphql.requests.total", "GraphQL requests by operation type and error state"},
		{&m.errorCounter, "graphql.errors.total", "GraphQL responses carrying errors"},
		{&m.depthRejections, "graphql.query.depth_rejections.total", "Documents refused by the depth limit"},
		{&m.resolverCalls, "graphql.resolver.calls.total", "Generated resolver calls by operation, kind and outcome"},
		{&m.policyHalts, "graphql.policy.short_circuits.total", "Resolver calls answered by a policy"},
		{&m.loaderHits, "graphql.loader.cache_hits", "Association keys served from the request cache"},
		{&m.loaderMisses, "graphql.loader.cache_misses", "Association keys fetched from the backend"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("create %s counter: %w", c.name, err)
		}
		*c.dst = counter
	}

	durations := []instrumentSpec[metric.Float64Histogram]{
		{&m.requestDuration, "graphql.request.duration", "GraphQL request duration"},
		{&m.resolverDuration, "graphql.resolver.duration", "Generated resolver call duration"},
	}
	for _, h := range durations {
		hist, err := meter.Float64Histogram(h.name, metric.WithDescription(h.desc), metric.WithUnit("ms"))
		if err != nil {
			return nil, fmt.Errorf("create %s histogram: %w", h.name, err)
		}
		*h.dst = hist
	}

	sizes := []instrumentSpec[metric.Int64Histogram]{
		{&m.queryDepth, "graphql.query.depth", "Selection depth of GraphQL documents"},
		{&m.loaderBatches, "graphql.loader.batches", "Association loader batches per request"},
	}
	for _, h := range sizes {
		hist, err := meter.Int64Histogram(h.name, metric.WithDescription(h.desc))
		if err != nil {
			return nil, fmt.Errorf("create %s histogram: %w", h.name, err)
		}
		*h.dst = hist
	}

	active, err := meter.Int64UpDownCounter("graphql.requests.active",
		metric.WithDescription("GraphQL requests in flight"))
	if err != nil {
		return nil, fmt.Errorf("create graphql.requests.active counter: %w", err)
	}
	m.activeRequests = active
	return m, nil
}

// InitMetrics creates the GraphQL instruments and logs that they are live.
func InitMetrics(logger *slog.Logger) (*GraphQLMetrics, error) {
	metrics, err := InitGraphQLMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GraphQL metrics: %w", err)
	}
	logger.Info("GraphQL metrics initialized")
	return metrics, nil
}

func milliseconds(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func (m *GraphQLMetrics) RecordRequest(ctx context.Context, duration time.Duration, hasErrors bool, operationType string) {
	opType := attribute.String("operation_type", operationType)
	attrs := metric.WithAttributes(opType, attribute.Bool("has_errors", hasErrors))
	m.requestDuration.Record(ctx, milliseconds(duration), attrs)
	m.requestCounter.Add(ctx, 1, attrs)
	if hasErrors {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(opType))
	}
}

// TrackActiveRequest counts a request as in flight until the returned func
// is called.
func (m *GraphQLMetrics) TrackActiveRequest(ctx context.Context) func() {
	m.activeRequests.Add(ctx, 1)
	return func() { m.activeRequests.Add(ctx, -1) }
}

func (m *GraphQLMetrics) RecordQueryDepth(ctx context.Context, depth int64, operationType string) {
	m.queryDepth.Record(ctx, depth, metric.WithAttributes(attribute.String("operation_type", operationType)))
}

func (m *GraphQLMetrics) RecordDepthRejection(ctx context.Context, operationType string) {
	m.depthRejections.Add(ctx, 1, metric.WithAttributes(attribute.String("operation_type", operationType)))
}

// RecordResolverCall records one generated resolver invocation. kind is
// query, mutation or field; outcome is ok, error or halted.
func (m *GraphQLMetrics) RecordResolverCall(ctx context.Context, operation, kind, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	)
	m.resolverDuration.Record(ctx, milliseconds(duration), attrs)
	m.resolverCalls.Add(ctx, 1, attrs)
}

func (m *GraphQLMetrics) RecordPolicyShortCircuit(ctx context.Context, operation string) {
	m.policyHalts.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}

// RecordLoader records association loader statistics for one request.
func (m *GraphQLMetrics) RecordLoader(ctx context.Context, batches, hits, misses int64) {
	m.loaderBatches.Record(ctx, batches)
	if hits > 0 {
		m.loaderHits.Add(ctx, hits)
	}
	if misses > 0 {
		m.loaderMisses.Add(ctx, misses)
	}
}
