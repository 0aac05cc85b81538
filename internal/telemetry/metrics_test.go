package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, r *sdkmetric.ManualReader) map[string]metricdata.Sum[int64] {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := r.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	out := map[string]metricdata.Sum[int64]{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				out[m.Name] = sum
			}
		}
	}
	return out
}

// valueFor sums every data point whose key attribute renders as want. Points that differ in other
// attributes are separate series.
func valueFor(sum metricdata.Sum[int64], key, want string) int64 {
	var total int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.Emit() == want {
			total += dp.Value
		}
	}
	return total
}

func TestSessionMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewSessionMetrics(mp)
	if err != nil {
		t.Fatalf("NewSessionMetrics: %v", err)
	}
	ctx := context.Background()
	m.SessionCreated(ctx, "high", true)
	m.SessionCreated(ctx, "high", false)
	m.Validation(ctx, "valid")
	m.Validation(ctx, "valid")
	m.Validation(ctx, "ip_mismatch")
	m.Refresh(ctx, "ok")
	m.Invalidation(ctx, "logout")
	m.StoreError(ctx, "get")

	got := collect(t, reader)
	if v := valueFor(got["session.created"], "security_level", "high"); v != 2 {
		t.Errorf("session.created{high} = %d, want 2", v)
	}
	if v := valueFor(got["session.created"], "persisted", "false"); v != 1 {
		t.Errorf("session.created{persisted=false} = %d, want 1", v)
	}
	if v := valueFor(got["session.validations"], "outcome", "valid"); v != 2 {
		t.Errorf("session.validations{valid} = %d, want 2", v)
	}
	if v := valueFor(got["session.validations"], "outcome", "ip_mismatch"); v != 1 {
		t.Errorf("session.validations{ip_mismatch} = %d, want 1", v)
	}
	if v := valueFor(got["session.refreshes"], "outcome", "ok"); v != 1 {
		t.Errorf("session.refreshes{ok} = %d, want 1", v)
	}
	if v := valueFor(got["session.invalidations"], "reason", "logout"); v != 1 {
		t.Errorf("session.invalidations{logout} = %d, want 1", v)
	}
	if v := valueFor(got["session.store.errors"], "op", "get"); v != 1 {
		t.Errorf("session.store.errors{get} = %d, want 1", v)
	}
}
