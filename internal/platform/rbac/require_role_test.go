package rbac

import (
	"context"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"course-admin/backend/internal/server/interceptors"
)

func authed(role string) context.Context {
	ctx := interceptors.WithIdentity(context.Background(), "user-1", "org-1", "session-1")
	return interceptors.WithPrincipal(ctx, "ana", role)
}

func TestRequireSession(t *testing.T) {
	c, err := RequireSession(authed("student"))
	if err != nil {
		t.Fatalf("RequireSession: %v", err)
	}
	want := Caller{UserID: "user-1", SessionID: "session-1", OrgID: "org-1", Role: "student"}
	if c != want {
		t.Errorf("caller = %+v, want %+v", c, want)
	}
}

func TestRequireSession_Unauthenticated(t *testing.T) {
	for name, ctx := range map[string]context.Context{
		"empty":      context.Background(),
		"no session": interceptors.WithIdentity(context.Background(), "user-1", "", ""),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := RequireSession(ctx)
			if status.Code(err) != codes.Unauthenticated {
				t.Errorf("code = %v, want Unauthenticated", status.Code(err))
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		role string
		want codes.Code
	}{
		{RoleAdmin, codes.OK},
		{RoleSystemAdmin, codes.OK},
		{"instructor", codes.PermissionDenied},
		{"", codes.PermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			_, err := RequireRole(authed(tt.role), RoleAdmin, RoleSystemAdmin)
			if status.Code(err) != tt.want {
				t.Errorf("code = %v, want %v", status.Code(err), tt.want)
			}
		})
	}
}

func TestRequireRole_Unauthenticated(t *testing.T) {
	_, err := RequireRole(context.Background(), RoleAdmin)
	if status.Code(err) != codes.Unauthenticated {
		t.Errorf("code = %v, want Unauthenticated", status.Code(err))
	}
}
