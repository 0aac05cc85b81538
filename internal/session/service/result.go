package service

import (
	"errors"
	"time"

	"course-admin/backend/internal/session/domain"
)

// Sentinel errors; handlers map them to gRPC codes. Authentication failures are Reasons, not errors.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnavailable means the session store could not be reached; the caller may retry.
	ErrUnavailable = errors.New("session service temporarily unavailable")
)

// Reason is the machine-readable cause of a negative validation or refresh result.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonNotFoundOrExpired   Reason = "not_found_or_expired"
	ReasonInactive            Reason = "inactive"
	ReasonIPMismatch          Reason = "ip_mismatch"
	ReasonUAMismatch          Reason = "ua_mismatch"
	ReasonTokenMismatch       Reason = "token_mismatch"
	ReasonInvalidRefreshToken Reason = "invalid_refresh_token"
	ReasonInvalidAccessToken  Reason = "invalid_access_token"
	// ReasonStaleAccessToken is an access token superseded by a refresh. The session stays valid.
	ReasonStaleAccessToken Reason = "stale_access_token"
	// ReasonRefreshConflict means a concurrent refresh rotated the pair first. The session stays valid.
	ReasonRefreshConflict Reason = "refresh_conflict"
)

// Invalidation reasons recorded in logs and the audit trail.
const (
	InvalidateLogout        = "logout"
	InvalidateLogoutOthers  = "logout_other_devices"
	InvalidateAdminRevoke   = "admin_revoke"
	InvalidateLimitEviction = "limit_eviction"
)

// ValidationResult is the outcome of Validate and Authenticate.
type ValidationResult struct {
	Valid   bool
	Reason  Reason
	Session *domain.Session
	// Degraded is set when the result was derived from token claims because the store was unreachable.
	Degraded bool
}

// CreateResult is the outcome of Create.
type CreateResult struct {
	SessionID     string
	Tokens        domain.TokenPair
	SecurityLevel domain.SecurityLevel
	ExpiresAt     time.Time
	// Persisted is false when the store write failed and the session exists only as signed tokens.
	Persisted bool
}

// RefreshResult is the outcome of Refresh.
type RefreshResult struct {
	Valid     bool
	Reason    Reason
	SessionID string
	Tokens    domain.TokenPair
}

func invalid(r Reason) *ValidationResult {
	return &ValidationResult{Reason: r}
}
