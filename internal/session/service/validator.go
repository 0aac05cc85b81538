package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"course-admin/backend/internal/security"
	"course-admin/backend/internal/session/domain"
	"course-admin/backend/internal/session/fingerprint"
	"course-admin/backend/internal/session/repository"
)

// invalidateFunc destroys a session after a security violation or eviction. Errors are handled by the callee.
type invalidateFunc func(ctx context.Context, s *domain.Session, reason string)

// Validator checks a stored session against the origin of the current request.
type Validator struct {
	store      repository.Store
	policy     Policy
	ipBinding  bool
	uaBinding  bool
	invalidate invalidateFunc
	metrics    Metrics
	now        func() time.Time
}

type checkOpts struct {
	// touch re-persists the record with a fresh lastAccess when it is valid.
	touch bool
	// accessJti, when set, must equal the record's current access token id.
	accessJti string
}

// Validate runs the binding checks and, on success, slides lastAccess and the record TTL.
func (v *Validator) Validate(ctx context.Context, sessionID, ipAddress, userAgent string) (*ValidationResult, error) {
	return v.check(ctx, sessionID, ipAddress, userAgent, checkOpts{touch: true})
}

func (v *Validator) check(ctx context.Context, sessionID, ipAddress, userAgent string, opts checkOpts) (*ValidationResult, error) {
	if !security.ValidSessionID(sessionID) {
		return nil, fmt.Errorf("%w: malformed session id", ErrInvalidArgument)
	}
	rec, err := v.store.Get(ctx, sessionID)
	if err != nil {
		v.metrics.StoreError(ctx, "get")
		log.Printf("session: get %s: %v", shortID(sessionID), err)
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if rec == nil {
		return invalid(ReasonNotFoundOrExpired), nil
	}
	if !rec.IsActive {
		return invalid(ReasonInactive), nil
	}
	if opts.accessJti != "" && opts.accessJti != rec.AccessJti {
		return invalid(ReasonStaleAccessToken), nil
	}
	if v.ipBinding && rec.IPAddress != ipAddress {
		v.invalidate(ctx, rec, string(ReasonIPMismatch))
		return invalid(ReasonIPMismatch), nil
	}
	if v.uaBinding {
		stored := rec.UAFingerprint
		if stored == "" {
			stored = fingerprint.Compute(rec.UserAgent)
		}
		if !fingerprint.Match(stored, userAgent) {
			v.invalidate(ctx, rec, string(ReasonUAMismatch))
			return invalid(ReasonUAMismatch), nil
		}
	}
	if opts.touch {
		now := v.now().UTC()
		ttl := v.policy.MaxLifetime(rec.SecurityLevel)
		rec.LastAccess = now
		rec.ExpiresAt = now.Add(ttl)
		switch err := v.store.Touch(ctx, rec, ttl); {
		case err == nil:
		case errors.Is(err, repository.ErrNotFound):
			// Invalidated while we were checking; invalidation is final.
			return invalid(ReasonNotFoundOrExpired), nil
		case errors.Is(err, repository.ErrConflict):
			// Rotated concurrently. The session is still live; the rotation keeps its own lastAccess.
		default:
			// The record was read and checked; a failed touch only loses lastAccess.
			v.metrics.StoreError(ctx, "touch")
			log.Printf("session: touch %s: %v", shortID(sessionID), err)
		}
	}
	return &ValidationResult{Valid: true, Session: rec}, nil
}

// shortID returns a log-safe prefix of a session id.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
