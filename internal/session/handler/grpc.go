package handler

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"course-admin/backend/internal/platform/rbac"
	"course-admin/backend/internal/server/interceptors"
	"course-admin/backend/internal/session/domain"
	"course-admin/backend/internal/session/service"
)

// SessionManager is the subset of *service.Manager the gRPC surface needs.
type SessionManager interface {
	Create(ctx context.Context, id domain.Identity, origin domain.Origin) (*service.CreateResult, error)
	Refresh(ctx context.Context, refreshToken, ipAddress, userAgent string) (*service.RefreshResult, error)
	Validate(ctx context.Context, sessionID, ipAddress, userAgent string) (*service.ValidationResult, error)
	Invalidate(ctx context.Context, sessionID, reason string) (bool, error)
	InvalidateAllForUser(ctx context.Context, userID, exceptSessionID, reason string) (int, error)
	ListForUser(ctx context.Context, userID string) ([]*domain.Session, error)
}

// Server implements SessionServiceServer. Rejected refresh and validation attempts are answered with
// valid=false and a reason, not with an error status.
type Server struct {
	sessions SessionManager
}

// NewServer returns a new Session gRPC server. If sessions is nil, all RPCs return Unimplemented.
func NewServer(sessions SessionManager) *Server {
	return &Server{sessions: sessions}
}

var _ SessionServiceServer = (*Server)(nil)

// CreateSession starts a session for a user the login service has just authenticated. Only a
// system_admin principal (the login service's own session) may call it; the user's origin comes from
// the request, not from the transport.
// Request: user_id, username, role, org_id, ip_address, user_agent, device_info.
// Response: session_id, access_token, refresh_token, access_expires_at, refresh_expires_at,
// security_level, expires_at, persisted.
func (s *Server) CreateSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.sessions == nil {
		return nil, status.Error(codes.Unimplemented, "method CreateSession not implemented")
	}
	if _, err := rbac.RequireRole(ctx, rbac.RoleSystemAdmin); err != nil {
		return nil, err
	}
	id := domain.Identity{
		UserID:         stringField(req, "user_id"),
		Username:       stringField(req, "username"),
		Role:           stringField(req, "role"),
		OrganizationID: stringField(req, "org_id"),
	}
	if id.UserID == "" {
		return nil, status.Error(codes.InvalidArgument, "user_id required")
	}
	origin := domain.Origin{
		IPAddress:  stringField(req, "ip_address"),
		UserAgent:  stringField(req, "user_agent"),
		DeviceInfo: stringField(req, "device_info"),
	}
	if origin.IPAddress == "" {
		return nil, status.Error(codes.InvalidArgument, "ip_address required")
	}
	res, err := s.sessions.Create(ctx, id, origin)
	if err != nil {
		return nil, toStatus(err, "create session")
	}
	return structpb.NewStruct(map[string]interface{}{
		"session_id":         res.SessionID,
		"access_token":       res.Tokens.AccessToken,
		"refresh_token":      res.Tokens.RefreshToken,
		"access_expires_at":  formatTime(res.Tokens.AccessExpiresAt),
		"refresh_expires_at": formatTime(res.Tokens.RefreshExpiresAt),
		"security_level":     res.SecurityLevel.String(),
		"expires_at":         formatTime(res.ExpiresAt),
		"persisted":          res.Persisted,
	})
}

// RefreshSession rotates the token pair. Request: refresh_token.
// Response: valid, reason, session_id, access_token, refresh_token, access_expires_at, refresh_expires_at.
func (s *Server) RefreshSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.sessions == nil {
		return nil, status.Error(codes.Unimplemented, "method RefreshSession not implemented")
	}
	token := stringField(req, "refresh_token")
	if token == "" {
		return nil, status.Error(codes.InvalidArgument, "refresh_token required")
	}
	res, err := s.sessions.Refresh(ctx, token, interceptors.ClientIP(ctx), interceptors.UserAgent(ctx))
	if err != nil {
		return nil, toStatus(err, "refresh session")
	}
	out := map[string]interface{}{
		"valid":  res.Valid,
		"reason": string(res.Reason),
	}
	if res.SessionID != "" {
		out["session_id"] = res.SessionID
	}
	if res.Valid {
		out["access_token"] = res.Tokens.AccessToken
		out["refresh_token"] = res.Tokens.RefreshToken
		out["access_expires_at"] = formatTime(res.Tokens.AccessExpiresAt)
		out["refresh_expires_at"] = formatTime(res.Tokens.RefreshExpiresAt)
	}
	return structpb.NewStruct(out)
}

// ValidateSession checks a session id against the caller's origin. Request: session_id.
// Response: valid, reason and, when valid, the session identity.
func (s *Server) ValidateSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.sessions == nil {
		return nil, status.Error(codes.Unimplemented, "method ValidateSession not implemented")
	}
	sessionID := stringField(req, "session_id")
	if sessionID == "" {
		return nil, status.Error(codes.InvalidArgument, "session_id required")
	}
	res, err := s.sessions.Validate(ctx, sessionID, interceptors.ClientIP(ctx), interceptors.UserAgent(ctx))
	if err != nil {
		return nil, toStatus(err, "validate session")
	}
	out := map[string]interface{}{
		"valid":  res.Valid,
		"reason": string(res.Reason),
	}
	if res.Valid && res.Session != nil {
		ses := res.Session
		out["user_id"] = ses.UserID
		out["username"] = ses.Username
		out["role"] = ses.Role
		out["org_id"] = ses.OrgID()
		out["security_level"] = ses.SecurityLevel.String()
		out["expires_at"] = formatTime(ses.ExpiresAt)
	}
	return structpb.NewStruct(out)
}

// Logout invalidates the caller's session. Response: invalidated.
func (s *Server) Logout(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if s.sessions == nil {
		return nil, status.Error(codes.Unimplemented, "method Logout not implemented")
	}
	caller, err := rbac.RequireSession(ctx)
	if err != nil {
		return nil, err
	}
	ok, err := s.sessions.Invalidate(ctx, caller.SessionID, service.InvalidateLogout)
	if err != nil {
		return nil, toStatus(err, "logout")
	}
	return structpb.NewStruct(map[string]interface{}{"invalidated": ok})
}

// LogoutOtherDevices invalidates every session of the caller except the current one. Response: count.
func (s *Server) LogoutOtherDevices(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if s.sessions == nil {
		return nil, status.Error(codes.Unimplemented, "method LogoutOtherDevices not implemented")
	}
	caller, err := rbac.RequireSession(ctx)
	if err != nil {
		return nil, err
	}
	n, err := s.sessions.InvalidateAllForUser(ctx, caller.UserID, caller.SessionID, service.InvalidateLogoutOthers)
	if err != nil {
		return nil, toStatus(err, "logout other devices")
	}
	return structpb.NewStruct(map[string]interface{}{"count": n})
}

// ListMySessions returns the caller's live sessions, newest first. Response: sessions.
func (s *Server) ListMySessions(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if s.sessions == nil {
		return nil, status.Error(codes.Unimplemented, "method ListMySessions not implemented")
	}
	caller, err := rbac.RequireSession(ctx)
	if err != nil {
		return nil, err
	}
	list, err := s.sessions.ListForUser(ctx, caller.UserID)
	if err != nil {
		return nil, toStatus(err, "list sessions")
	}
	sessions := make([]interface{}, len(list))
	for i, ses := range list {
		sessions[i] = sessionSummary(ses, caller.SessionID)
	}
	return structpb.NewStruct(map[string]interface{}{"sessions": sessions})
}

// RevokeUserSessions invalidates every session of user_id. Caller must be admin or system_admin.
// Response: count.
func (s *Server) RevokeUserSessions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.sessions == nil {
		return nil, status.Error(codes.Unimplemented, "method RevokeUserSessions not implemented")
	}
	if _, err := rbac.RequireRole(ctx, rbac.RoleAdmin, rbac.RoleSystemAdmin); err != nil {
		return nil, err
	}
	userID := stringField(req, "user_id")
	if userID == "" {
		return nil, status.Error(codes.InvalidArgument, "user_id required")
	}
	n, err := s.sessions.InvalidateAllForUser(ctx, userID, "", service.InvalidateAdminRevoke)
	if err != nil {
		return nil, toStatus(err, "revoke sessions")
	}
	return structpb.NewStruct(map[string]interface{}{"count": n})
}

func sessionSummary(ses *domain.Session, currentID string) map[string]interface{} {
	m := map[string]interface{}{
		"session_id":     ses.ID,
		"ip_address":     ses.IPAddress,
		"security_level": ses.SecurityLevel.String(),
		"created_at":     formatTime(ses.CreatedAt),
		"last_access":    formatTime(ses.LastAccess),
		"expires_at":     formatTime(ses.ExpiresAt),
		"current":        ses.ID == currentID,
	}
	if ses.DeviceInfo != nil {
		m["device_info"] = *ses.DeviceInfo
	}
	return m
}

// toStatus maps service errors to gRPC codes. Internal details stay in the server log.
func toStatus(err error, op string) error {
	switch {
	case errors.Is(err, service.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, service.ErrUnavailable):
		return status.Error(codes.Unavailable, "session store unavailable")
	default:
		return status.Errorf(codes.Internal, "failed to %s", op)
	}
}

func stringField(s *structpb.Struct, key string) string {
	if s == nil {
		return ""
	}
	return s.GetFields()[key].GetStringValue()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
