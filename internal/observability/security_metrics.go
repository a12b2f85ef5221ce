package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SecurityMetrics counts bearer token authentication and database role
// selection outcomes.
type SecurityMetrics struct {
	authAttempts   metric.Int64Counter
	authFailures   metric.Int64Counter
	authSuccesses  metric.Int64Counter
	roleRejections metric.Int64Counter
}

// NewSecurityMetrics creates the instruments on provider; nil uses the
// global meter provider.
func NewSecurityMetrics(provider metric.MeterProvider) (*SecurityMetrics, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(meterName + "/security")
	m := &SecurityMetrics{}

	var err error
	if m.authAttempts, err = meter.Int64Counter(
		"security.auth.attempts.total",
		metric.WithDescription("Total number of authentication attempts"),
	); err != nil {
		return nil, fmt.Errorf("failed to create auth attempts counter: %w", err)
	}
	if m.authFailures, err = meter.Int64Counter(
		"security.auth.failures.total",
		metric.WithDescription("Total number of authentication failures"),
	); err != nil {
		return nil, fmt.Errorf("failed to create auth failures counter: %w", err)
	}
	if m.authSuccesses, err = meter.Int64Counter(
		"security.auth.successes.total",
		metric.WithDescription("Total number of successful authentications"),
	); err != nil {
		return nil, fmt.Errorf("failed to create auth successes counter: %w", err)
	}
	if m.roleRejections, err = meter.Int64Counter(
		"security.db_role.rejections.total",
		metric.WithDescription("Requests rejected while selecting a database role"),
	); err != nil {
		return nil, fmt.Errorf("failed to create role rejection counter: %w", err)
	}
	return m, nil
}

// RecordAuthAttempt records an authentication attempt
func (m *SecurityMetrics) RecordAuthAttempt(ctx context.Context, endpoint string) {
	m.authAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("endpoint", endpoint)))
}

// RecordAuthFailure records a failed authentication attempt
func (m *SecurityMetrics) RecordAuthFailure(ctx context.Context, endpoint, reason string) {
	m.authFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("reason", reason),
	))
}

// RecordAuthSuccess records a successful authentication
func (m *SecurityMetrics) RecordAuthSuccess(ctx context.Context, endpoint, issuer string) {
	m.authSuccesses.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("issuer", issuer),
	))
}

// RecordRoleRejected records a request refused for its database role claim.
func (m *SecurityMetrics) RecordRoleRejected(ctx context.Context, reason string) {
	m.roleRejections.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
