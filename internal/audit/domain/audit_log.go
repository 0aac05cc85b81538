package domain

import "time"

// AuditLog is one entry of the security audit trail.
type AuditLog struct {
	ID     string
	OrgID  string
	UserID string // empty when the actor is unknown
	// Action is what happened (session_created, session_security_violation, ...); Resource what it happened to.
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
