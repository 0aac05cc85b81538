package rbac

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"course-admin/backend/internal/server/interceptors"
)

// Roles allowed to manage other users' sessions.
const (
	RoleAdmin       = "admin"
	RoleSystemAdmin = "system_admin"
)

// Caller is the authenticated principal of a request.
type Caller struct {
	UserID    string
	SessionID string
	OrgID     string
	Role      string
}

// RequireSession ensures the caller is authenticated with a session.
// Returns a gRPC Unauthenticated error when the context carries no identity.
func RequireSession(ctx context.Context) (Caller, error) {
	userID, okUser := interceptors.GetUserID(ctx)
	sessionID, okSession := interceptors.GetSessionID(ctx)
	if !okUser || userID == "" || !okSession || sessionID == "" {
		return Caller{}, status.Error(codes.Unauthenticated, "session context required")
	}
	orgID, _ := interceptors.GetOrgID(ctx)
	role, _ := interceptors.GetRole(ctx)
	return Caller{UserID: userID, SessionID: sessionID, OrgID: orgID, Role: role}, nil
}

// RequireRole ensures the caller is authenticated and holds one of roles. The role is the snapshot taken
// when the session was created.
func RequireRole(ctx context.Context, roles ...string) (Caller, error) {
	c, err := RequireSession(ctx)
	if err != nil {
		return Caller{}, err
	}
	for _, r := range roles {
		if c.Role == r {
			return c, nil
		}
	}
	return Caller{}, status.Error(codes.PermissionDenied, "insufficient role")
}
