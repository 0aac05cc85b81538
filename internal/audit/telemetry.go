package audit

import (
	"context"
	"log"
	"time"

	"course-admin/backend/internal/telemetry"
)

const eventSource = "audit"

// TelemetryLogger forwards audit events to the OTel log pipeline through an EventEmitter.
type TelemetryLogger struct {
	emitter     telemetry.EventEmitter
	ipExtractor IPExtractor
}

// NewTelemetryLogger returns a TelemetryLogger. ipExtractor may be nil.
func NewTelemetryLogger(emitter telemetry.EventEmitter, ipExtractor IPExtractor) *TelemetryLogger {
	return &TelemetryLogger{emitter: emitter, ipExtractor: ipExtractor}
}

// LogEvent emits the event synchronously; wrap in an AsyncLogger to keep it off the request path.
func (t *TelemetryLogger) LogEvent(ctx context.Context, orgID, userID, action, resource, metadata string) {
	if t.emitter == nil {
		return
	}
	attrs := map[string]string{"resource": resource}
	if t.ipExtractor != nil {
		if ip := t.ipExtractor(ctx); ip != "" {
			attrs["ip"] = ip
		}
	}
	if metadata != "" {
		attrs["metadata"] = metadata
	}
	if orgID == "" {
		orgID = SentinelOrgID
	}
	ev := &telemetry.Event{
		EventType:  action,
		Source:     eventSource,
		OrgID:      orgID,
		UserID:     userID,
		Attributes: attrs,
		CreatedAt:  time.Now().UTC(),
	}
	if err := t.emitter.Emit(ctx, ev); err != nil {
		log.Printf("audit: telemetry emit %s: %v", action, err)
	}
}
