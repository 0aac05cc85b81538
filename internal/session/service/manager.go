package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"course-admin/backend/internal/audit"
	"course-admin/backend/internal/security"
	"course-admin/backend/internal/session/domain"
	"course-admin/backend/internal/session/fingerprint"
	"course-admin/backend/internal/session/repository"
)

// Audit actions written by the manager.
const (
	ActionSessionCreated     = "session_created"
	ActionSessionRefreshed   = "session_refreshed"
	ActionSessionInvalidated = "session_invalidated"
	ActionSecurityViolation  = "session_security_violation"
)

// Manager creates, validates, refreshes and invalidates sessions. It is the only entry point route
// handlers use; construct one at startup and share it.
type Manager struct {
	cfg         Config
	store       repository.Store
	tokens      TokenIssuer
	policy      Policy
	auditLogger audit.AuditLogger
	metrics     Metrics
	validator   *Validator
	limiter     *Limiter
	now         func() time.Time
}

// NewManager returns a Manager. auditLogger and metrics may be nil.
func NewManager(cfg Config, store repository.Store, tokens TokenIssuer, policy Policy, auditLogger audit.AuditLogger, metrics Metrics) (*Manager, error) {
	return newManager(cfg, store, tokens, policy, auditLogger, metrics, time.Now)
}

func newManager(cfg Config, store repository.Store, tokens TokenIssuer, policy Policy, auditLogger audit.AuditLogger, metrics Metrics, now func() time.Time) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil || tokens == nil || policy == nil {
		return nil, errors.New("session: store, token issuer and policy are required")
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	m := &Manager{
		cfg:         cfg,
		store:       store,
		tokens:      tokens,
		policy:      policy,
		auditLogger: auditLogger,
		metrics:     metrics,
		now:         now,
	}
	m.validator = &Validator{
		store:      store,
		policy:     policy,
		ipBinding:  cfg.IPBinding,
		uaBinding:  cfg.UABinding,
		invalidate: m.invalidateRecord,
		metrics:    metrics,
		now:        now,
	}
	m.limiter = &Limiter{
		store:      store,
		max:        cfg.MaxSessionsPerUser,
		invalidate: m.invalidateRecord,
	}
	return m, nil
}

// Create starts a session for an authenticated identity. A store failure does not fail the login: the
// signed tokens are returned with Persisted=false.
func (m *Manager) Create(ctx context.Context, id domain.Identity, origin domain.Origin) (*CreateResult, error) {
	if id.UserID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidArgument)
	}
	sessionID, err := security.NewSessionID()
	if err != nil {
		return nil, err
	}
	level := m.policy.Classify(id.Role, origin.IPAddress)
	ttl := m.policy.MaxLifetime(level)
	issued, err := m.tokens.Issue(security.SessionClaims{
		SessionID:     sessionID,
		UserID:        id.UserID,
		Username:      id.Username,
		Role:          id.Role,
		OrgID:         id.OrganizationID,
		SecurityLevel: level.String(),
	}, ttl)
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}

	now := m.now().UTC()
	rec := &domain.Session{
		ID:               sessionID,
		UserID:           id.UserID,
		Username:         id.Username,
		Role:             id.Role,
		IPAddress:        origin.IPAddress,
		UserAgent:        origin.UserAgent,
		UAFingerprint:    fingerprint.Compute(origin.UserAgent),
		CreatedAt:        now,
		LastAccess:       now,
		ExpiresAt:        now.Add(ttl),
		IsActive:         true,
		SecurityLevel:    level,
		AccessJti:        issued.AccessJti,
		RefreshJti:       issued.RefreshJti,
		RefreshTokenHash: security.HashToken(issued.RefreshToken),
	}
	if id.OrganizationID != "" {
		org := id.OrganizationID
		rec.OrganizationID = &org
	}
	device := origin.DeviceInfo
	if device == "" {
		device = fingerprint.DeviceInfo(origin.UserAgent)
	}
	if device != "" {
		rec.DeviceInfo = &device
	}

	// Evict before writing so the new session is never a candidate.
	m.limiter.Enforce(ctx, id.UserID)

	persisted := true
	if err := m.store.Put(ctx, rec, ttl); err != nil {
		persisted = false
		m.metrics.StoreError(ctx, "put")
		log.Printf("session: create %s for user %s not persisted, continuing stateless: %v", shortID(sessionID), id.UserID, err)
	}
	m.metrics.SessionCreated(ctx, level.String(), persisted)
	m.audit(ctx, rec, ActionSessionCreated, fmt.Sprintf("session=%s level=%s ip=%s persisted=%t", shortID(sessionID), level, origin.IPAddress, persisted))

	return &CreateResult{
		SessionID: sessionID,
		Tokens: domain.TokenPair{
			AccessToken:      issued.AccessToken,
			RefreshToken:     issued.RefreshToken,
			AccessExpiresAt:  issued.AccessExpiresAt,
			RefreshExpiresAt: issued.RefreshExpiresAt,
		},
		SecurityLevel: level,
		ExpiresAt:     rec.ExpiresAt,
		Persisted:     persisted,
	}, nil
}

// Validate checks sessionID against the request origin. Only store failures are returned as errors.
func (m *Manager) Validate(ctx context.Context, sessionID, ipAddress, userAgent string) (*ValidationResult, error) {
	res, err := m.validator.Validate(ctx, sessionID, ipAddress, userAgent)
	m.recordValidation(ctx, res, err)
	return res, err
}

// Authenticate validates a bearer access token: signature and expiry, then the session record it names,
// then the origin bindings. With StatelessFallback, an unreachable store yields a Degraded result built
// from the token claims.
func (m *Manager) Authenticate(ctx context.Context, accessToken, ipAddress, userAgent string) (*ValidationResult, error) {
	if accessToken == "" {
		return nil, fmt.Errorf("%w: access token is required", ErrInvalidArgument)
	}
	claims, err := m.tokens.VerifyAccess(accessToken)
	if err != nil {
		res := invalid(ReasonInvalidAccessToken)
		m.recordValidation(ctx, res, nil)
		return res, nil
	}
	res, err := m.validator.check(ctx, claims.SessionID, ipAddress, userAgent, checkOpts{touch: true, accessJti: claims.Jti})
	if errors.Is(err, ErrInvalidArgument) {
		res, err = invalid(ReasonInvalidAccessToken), nil
	}
	if errors.Is(err, ErrUnavailable) && m.cfg.StatelessFallback {
		log.Printf("session: store unavailable, accepting access token for %s from claims", shortID(claims.SessionID))
		res = &ValidationResult{Valid: true, Degraded: true, Session: sessionFromClaims(claims)}
		m.metrics.Validation(ctx, "degraded")
		return res, nil
	}
	m.recordValidation(ctx, res, err)
	return res, err
}

// Refresh rotates the token pair of the session named by refreshToken. The presented token must be the
// one currently stored; a stale token invalidates the session.
func (m *Manager) Refresh(ctx context.Context, refreshToken, ipAddress, userAgent string) (*RefreshResult, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: refresh token is required", ErrInvalidArgument)
	}
	claims, err := m.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return m.refreshFailed(ctx, "", ReasonInvalidRefreshToken), nil
	}
	v, err := m.validator.check(ctx, claims.SessionID, ipAddress, userAgent, checkOpts{})
	if err != nil {
		if errors.Is(err, ErrInvalidArgument) {
			return m.refreshFailed(ctx, "", ReasonInvalidRefreshToken), nil
		}
		m.metrics.Refresh(ctx, "unavailable")
		return nil, err
	}
	if !v.Valid {
		return m.refreshFailed(ctx, claims.SessionID, v.Reason), nil
	}
	rec := v.Session
	if rec.UserID != claims.UserID || rec.RefreshJti != claims.Jti || !security.TokenHashEqual(refreshToken, rec.RefreshTokenHash) {
		m.invalidateRecord(ctx, rec, string(ReasonTokenMismatch))
		return m.refreshFailed(ctx, claims.SessionID, ReasonTokenMismatch), nil
	}

	ttl := m.policy.MaxLifetime(rec.SecurityLevel)
	issued, err := m.tokens.Issue(security.SessionClaims{
		SessionID:     rec.ID,
		UserID:        rec.UserID,
		Username:      rec.Username,
		Role:          rec.Role,
		OrgID:         rec.OrgID(),
		SecurityLevel: rec.SecurityLevel.String(),
	}, ttl)
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}
	now := m.now().UTC()
	next := rec.Clone()
	next.AccessJti = issued.AccessJti
	next.RefreshJti = issued.RefreshJti
	next.RefreshTokenHash = security.HashToken(issued.RefreshToken)
	next.LastAccess = now
	next.ExpiresAt = now.Add(ttl)

	switch err := m.store.CompareAndSwap(ctx, next, rec.RefreshTokenHash, ttl); {
	case err == nil:
	case errors.Is(err, repository.ErrConflict):
		return m.refreshFailed(ctx, rec.ID, ReasonRefreshConflict), nil
	case errors.Is(err, repository.ErrNotFound):
		return m.refreshFailed(ctx, rec.ID, ReasonNotFoundOrExpired), nil
	default:
		m.metrics.StoreError(ctx, "cas")
		m.metrics.Refresh(ctx, "unavailable")
		log.Printf("session: refresh %s: %v", shortID(rec.ID), err)
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	m.metrics.Refresh(ctx, "ok")
	m.audit(ctx, rec, ActionSessionRefreshed, fmt.Sprintf("session=%s ip=%s", shortID(rec.ID), ipAddress))
	return &RefreshResult{
		Valid:     true,
		SessionID: rec.ID,
		Tokens: domain.TokenPair{
			AccessToken:      issued.AccessToken,
			RefreshToken:     issued.RefreshToken,
			AccessExpiresAt:  issued.AccessExpiresAt,
			RefreshExpiresAt: issued.RefreshExpiresAt,
		},
	}, nil
}

// Invalidate deletes the session and reports whether it existed. Calling it twice returns true, then false.
func (m *Manager) Invalidate(ctx context.Context, sessionID, reason string) (bool, error) {
	if !security.ValidSessionID(sessionID) {
		return false, fmt.Errorf("%w: malformed session id", ErrInvalidArgument)
	}
	rec, err := m.store.Get(ctx, sessionID)
	if err != nil {
		m.metrics.StoreError(ctx, "get")
		return false, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if rec == nil {
		rec = &domain.Session{ID: sessionID}
	}
	return m.delete(ctx, rec, reason)
}

// InvalidateAllForUser deletes every session of userID except exceptSessionID (may be empty) and returns
// how many existed. It keeps going after a failed delete and then returns ErrUnavailable.
func (m *Manager) InvalidateAllForUser(ctx context.Context, userID, exceptSessionID, reason string) (int, error) {
	if userID == "" {
		return 0, fmt.Errorf("%w: user id is required", ErrInvalidArgument)
	}
	ids, err := m.store.ListByUser(ctx, userID)
	if err != nil {
		m.metrics.StoreError(ctx, "list")
		return 0, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	var (
		count   int
		lastErr error
	)
	for _, id := range ids {
		if id == exceptSessionID {
			continue
		}
		ok, err := m.delete(ctx, &domain.Session{ID: id, UserID: userID}, reason)
		if err != nil {
			lastErr = err
			continue
		}
		if ok {
			count++
		} else if err := m.store.Unindex(ctx, userID, id); err != nil {
			log.Printf("session: prune %s for user %s: %v", shortID(id), userID, err)
		}
	}
	if lastErr != nil {
		return count, lastErr
	}
	return count, nil
}

// ListForUser returns the live sessions of userID, newest first.
func (m *Manager) ListForUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidArgument)
	}
	ids, err := m.store.ListByUser(ctx, userID)
	if err != nil {
		m.metrics.StoreError(ctx, "list")
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	out := make([]*domain.Session, 0, len(ids))
	var stale []string
	for _, id := range ids {
		rec, err := m.store.Get(ctx, id)
		if err != nil {
			m.metrics.StoreError(ctx, "get")
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		if rec == nil {
			stale = append(stale, id)
			continue
		}
		out = append(out, rec)
	}
	if len(stale) > 0 {
		if err := m.store.Unindex(ctx, userID, stale...); err != nil {
			log.Printf("session: prune for user %s: %v", userID, err)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// invalidateRecord is the side-effecting invalidation used by the validator, the limiter and refresh.
// Failures are logged; the caller's result does not depend on them.
func (m *Manager) invalidateRecord(ctx context.Context, rec *domain.Session, reason string) {
	if reason != InvalidateLimitEviction {
		m.audit(ctx, rec, ActionSecurityViolation, fmt.Sprintf("session=%s reason=%s ip=%s", shortID(rec.ID), reason, rec.IPAddress))
	}
	if _, err := m.delete(ctx, rec, reason); err != nil {
		log.Printf("session: invalidate %s (%s): %v", shortID(rec.ID), reason, err)
	}
}

func (m *Manager) delete(ctx context.Context, rec *domain.Session, reason string) (bool, error) {
	ok, err := m.store.Delete(ctx, rec.ID)
	if err != nil {
		m.metrics.StoreError(ctx, "delete")
		return false, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if !ok {
		return false, nil
	}
	if reason == "" {
		reason = InvalidateLogout
	}
	log.Printf("session: invalidated %s user=%s reason=%s", shortID(rec.ID), rec.UserID, reason)
	m.metrics.Invalidation(ctx, reason)
	m.audit(ctx, rec, ActionSessionInvalidated, fmt.Sprintf("session=%s reason=%s", shortID(rec.ID), reason))
	return true, nil
}

func (m *Manager) refreshFailed(ctx context.Context, sessionID string, r Reason) *RefreshResult {
	m.metrics.Refresh(ctx, string(r))
	return &RefreshResult{Reason: r, SessionID: sessionID}
}

func (m *Manager) recordValidation(ctx context.Context, res *ValidationResult, err error) {
	switch {
	case err != nil && errors.Is(err, ErrUnavailable):
		m.metrics.Validation(ctx, "unavailable")
	case err != nil:
		m.metrics.Validation(ctx, "invalid_argument")
	case res.Valid:
		m.metrics.Validation(ctx, "valid")
	default:
		m.metrics.Validation(ctx, string(res.Reason))
	}
}

func (m *Manager) audit(ctx context.Context, rec *domain.Session, action, metadata string) {
	if m.auditLogger == nil {
		return
	}
	m.auditLogger.LogEvent(ctx, rec.OrgID(), rec.UserID, action, "session", metadata)
}

func sessionFromClaims(c *security.VerifiedAccess) *domain.Session {
	s := &domain.Session{
		ID:        c.SessionID,
		UserID:    c.UserID,
		Username:  c.Username,
		Role:      c.Role,
		IsActive:  true,
		AccessJti: c.Jti,
		ExpiresAt: c.ExpiresAt,
	}
	if level, err := domain.ParseSecurityLevel(c.SecurityLevel); err == nil {
		s.SecurityLevel = level
	} else {
		s.SecurityLevel = domain.SecurityLevelCritical
	}
	if c.OrgID != "" {
		org := c.OrgID
		s.OrganizationID = &org
	}
	return s
}
