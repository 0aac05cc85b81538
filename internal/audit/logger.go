package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"course-admin/backend/internal/audit/domain"
	auditrepo "course-admin/backend/internal/audit/repository"
)

// SentinelOrgID is the org_id used for audit events that have no org.
const SentinelOrgID = "_system"

// IPExtractor returns the client IP from the request context (e.g. gRPC metadata or peer).
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event with explicit action/resource. Used by the session manager and
// the gRPC layer. LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, orgID, userID, action, resource, metadata string)
}

// Logger implements AuditLogger on the audit repository.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
}

// NewLogger returns a Logger that persists to repo. ipExtractor may be nil; the IP is then "unknown".
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor) *Logger {
	return &Logger{repo: repo, ipExtractor: ipExtractor}
}

// LogEvent writes one audit entry.
func (l *Logger) LogEvent(ctx context.Context, orgID, userID, action, resource, metadata string) {
	if l.repo == nil {
		return
	}
	if err := l.repo.Create(ctx, newEntry(ctx, l.ipExtractor, orgID, userID, action, resource, metadata)); err != nil {
		log.Printf("audit: failed to log event %s/%s: %v", action, resource, err)
	}
}

func newEntry(ctx context.Context, ipx IPExtractor, orgID, userID, action, resource, metadata string) *domain.AuditLog {
	ip := "unknown"
	if ipx != nil {
		if v := ipx(ctx); v != "" {
			ip = v
		}
	}
	if orgID == "" {
		orgID = SentinelOrgID
	}
	return &domain.AuditLog{
		ID:        uuid.New().String(),
		OrgID:     orgID,
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
}

// Multi fans one event out to several loggers in order. Nil loggers are skipped.
type Multi []AuditLogger

// LogEvent calls LogEvent on every logger.
func (m Multi) LogEvent(ctx context.Context, orgID, userID, action, resource, metadata string) {
	for _, l := range m {
		if l != nil {
			l.LogEvent(ctx, orgID, userID, action, resource, metadata)
		}
	}
}
