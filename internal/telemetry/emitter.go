package telemetry

import (
	"context"
	"time"
)

// Event is a structured operational event (session lifecycle, audit trail) exported as an OTel log record.
type Event struct {
	EventType  string
	Source     string
	OrgID      string
	UserID     string
	SessionID  string
	Attributes map[string]string
	// Body is an opaque payload, usually JSON.
	Body      []byte
	CreatedAt time.Time
}

// EventEmitter emits telemetry events (e.g. to OTel Logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *Event) error
}
