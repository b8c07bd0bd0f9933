package resolver

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Outcomes a resolver call ends with, as seen by spans and metrics.
const (
	outcomeSuccess      = "success"
	outcomeError        = "error"
	outcomeShortCircuit = "short_circuit"
	outcomePolicyError  = "policy_error"
)

// resolverCall spans one root field resolution. The outcome is left empty
// until a policy decides it; finish derives it from the error otherwise.
type resolverCall struct {
	ctx     context.Context
	span    trace.Span
	start   time.Time
	name    string
	kind    kind
	outcome string
	metrics Recorder
}

func (b *Builder) startCall(ctx context.Context, k kind, name string, t *target) *resolverCall {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := otel.Tracer("content-graphql/resolver").Start(ctx, "resolver."+name,
		trace.WithAttributes(
			attribute.String("graphql.operation.kind", string(k)),
			attribute.String("graphql.field.name", name),
			attribute.String("content.action", t.route.Controller+"."+t.route.Action),
		),
	)
	return &resolverCall{ctx: ctx, span: span, start: time.Now(), name: name, kind: k, metrics: b.metrics}
}

func (c *resolverCall) finish(err error) {
	outcome := c.outcome
	if outcome == "" {
		outcome = outcomeSuccess
		if err != nil {
			outcome = outcomeError
		}
	}
	c.span.SetAttributes(attribute.String("graphql.resolver.outcome", outcome))
	if err != nil {
		c.span.RecordError(err)
		c.span.SetStatus(codes.Error, err.Error())
	}
	c.span.End()
	if c.metrics != nil {
		c.metrics.RecordResolverCall(c.ctx, c.name, string(c.kind), outcome, time.Since(c.start))
	}
}
