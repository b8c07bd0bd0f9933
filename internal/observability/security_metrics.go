package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SecurityMetrics counts what the bearer-token check, the admin token and the
// role permissions decide.
type SecurityMetrics struct {
	authOutcomes     metric.Int64Counter
	tokenErrors      metric.Int64Counter
	adminAccess      metric.Int64Counter
	permissionDenied metric.Int64Counter
}

func InitSecurityMetrics() (*SecurityMetrics, error) {
	meter := otel.Meter("content-graphql/security")
	m := &SecurityMetrics{}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.authOutcomes, "security.auth.total", "Bearer token checks by outcome (attempt, success, failure)"},
		{&m.tokenErrors, "security.token.validation_errors.total", "Bearer tokens that failed verification"},
		{&m.adminAccess, "security.admin.access.total", "Calls to admin endpoints"},
		{&m.permissionDenied, "content.permission.denied.total", "Content actions refused by role permissions"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("create %s counter: %w", c.name, err)
		}
		*c.dst = counter
	}
	return m, nil
}

func (m *SecurityMetrics) auth(ctx context.Context, outcome string, attrs ...attribute.KeyValue) {
	attrs = append(attrs, attribute.String("outcome", outcome))
	m.authOutcomes.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *SecurityMetrics) RecordAuthAttempt(ctx context.Context, endpoint string) {
	m.auth(ctx, "attempt", attribute.String("endpoint", endpoint))
}

func (m *SecurityMetrics) RecordAuthFailure(ctx context.Context, endpoint, reason string) {
	m.auth(ctx, "failure", attribute.String("endpoint", endpoint), attribute.String("reason", reason))
}

func (m *SecurityMetrics) RecordAuthSuccess(ctx context.Context, endpoint, issuer string) {
	m.auth(ctx, "success", attribute.String("endpoint", endpoint), attribute.String("issuer", issuer))
}

func (m *SecurityMetrics) RecordTokenValidationError(ctx context.Context, errorType string) {
	m.tokenErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("error_type", errorType)))
}

// RecordAdminEndpointAccess counts an admin call such as a schema reload.
func (m *SecurityMetrics) RecordAdminEndpointAccess(ctx context.Context, operation string, authenticated bool, success bool) {
	m.adminAccess.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Bool("authenticated", authenticated),
		attribute.Bool("success", success),
	))
}

// RecordPermissionDenied counts a refused action reference such as
// application::article.create, labelled by the caller's role.
func (m *SecurityMetrics) RecordPermissionDenied(ctx context.Context, actionRef, role string) {
	m.permissionDenied.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", actionRef),
		attribute.String("role", role),
	))
}
