package service

import (
	"context"
	"time"

	"course-admin/backend/internal/security"
	"course-admin/backend/internal/session/domain"
)

// TokenIssuer signs and verifies session tokens. Implemented by *security.TokenProvider.
type TokenIssuer interface {
	Issue(c security.SessionClaims, maxLifetime time.Duration) (*security.Issued, error)
	VerifyRefresh(token string) (*security.VerifiedRefresh, error)
	VerifyAccess(token string) (*security.VerifiedAccess, error)
}

// Policy computes the security tier of a new session. Implemented by *policy.Engine.
type Policy interface {
	Classify(role, ipAddress string) domain.SecurityLevel
	MaxLifetime(level domain.SecurityLevel) time.Duration
}

// Metrics receives session lifecycle counts. Implemented by telemetry.SessionMetrics.
type Metrics interface {
	SessionCreated(ctx context.Context, level string, persisted bool)
	Validation(ctx context.Context, outcome string)
	Refresh(ctx context.Context, outcome string)
	Invalidation(ctx context.Context, reason string)
	StoreError(ctx context.Context, op string)
}

type noopMetrics struct{}

func (noopMetrics) SessionCreated(context.Context, string, bool) {}
func (noopMetrics) Validation(context.Context, string)           {}
func (noopMetrics) Refresh(context.Context, string)              {}
func (noopMetrics) Invalidation(context.Context, string)         {}
func (noopMetrics) StoreError(context.Context, string)           {}
