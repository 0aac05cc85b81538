package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "course-admin/sessions"

// SessionMetrics records session lifecycle counters on an OTel meter.
type SessionMetrics struct {
	created       metric.Int64Counter
	validations   metric.Int64Counter
	refreshes     metric.Int64Counter
	invalidations metric.Int64Counter
	storeErrors   metric.Int64Counter
}

// NewSessionMetrics creates the session counters on mp.
func NewSessionMetrics(mp metric.MeterProvider) (*SessionMetrics, error) {
	m := mp.Meter(meterName)
	var (
		sm  SessionMetrics
		err error
	)
	if sm.created, err = m.Int64Counter("session.created",
		metric.WithDescription("Sessions created, by security level and persistence outcome.")); err != nil {
		return nil, err
	}
	if sm.validations, err = m.Int64Counter("session.validations",
		metric.WithDescription("Session validations, by outcome.")); err != nil {
		return nil, err
	}
	if sm.refreshes, err = m.Int64Counter("session.refreshes",
		metric.WithDescription("Token refreshes, by outcome.")); err != nil {
		return nil, err
	}
	if sm.invalidations, err = m.Int64Counter("session.invalidations",
		metric.WithDescription("Sessions destroyed, by reason.")); err != nil {
		return nil, err
	}
	if sm.storeErrors, err = m.Int64Counter("session.store.errors",
		metric.WithDescription("Failed session store operations, by operation.")); err != nil {
		return nil, err
	}
	return &sm, nil
}

// SessionCreated counts an issued session. persisted is false when the store was down at creation.
func (m *SessionMetrics) SessionCreated(ctx context.Context, level string, persisted bool) {
	m.created.Add(ctx, 1, metric.WithAttributes(
		attribute.String("security_level", level),
		attribute.Bool("persisted", persisted),
	))
}

// Validation counts a validate or authenticate call by outcome, a Reason or "valid".
func (m *SessionMetrics) Validation(ctx context.Context, outcome string) {
	m.validations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Refresh counts a refresh attempt by outcome.
func (m *SessionMetrics) Refresh(ctx context.Context, outcome string) {
	m.refreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Invalidation counts a destroyed session by reason.
func (m *SessionMetrics) Invalidation(ctx context.Context, reason string) {
	m.invalidations.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// StoreError counts a failed store operation such as "get" or "touch".
func (m *SessionMetrics) StoreError(ctx context.Context, op string) {
	m.storeErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}
