package interceptors

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"course-admin/backend/internal/session/service"
)

const bearerPrefix = "bearer "

// Authenticator resolves a bearer access token into a session for the request origin.
// *service.Manager implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken, ipAddress, userAgent string) (*service.ValidationResult, error)
}

// AuthUnary returns a unary server interceptor that authenticates the Bearer (access) token
// from gRPC metadata and sets the session identity in context for protected RPCs.
// publicMethods is the set of full method names that do not require a Bearer token
// (RefreshSession, ValidateSession, health). On public methods a bad token is ignored.
func AuthUnary(auth Authenticator, publicMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		token := extractBearer(ctx)
		public := publicMethods[info.FullMethod]

		if token == "" {
			if public {
				return handler(ctx, req)
			}
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}

		res, err := auth.Authenticate(ctx, token, ClientIP(ctx), UserAgent(ctx))
		if err != nil {
			if public {
				return handler(ctx, req)
			}
			if errors.Is(err, service.ErrUnavailable) {
				return nil, status.Error(codes.Unavailable, "session store unavailable")
			}
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}
		if !res.Valid || res.Session == nil {
			if public {
				return handler(ctx, req)
			}
			return nil, status.Errorf(codes.Unauthenticated, "session rejected: %s", res.Reason)
		}

		s := res.Session
		ctx = WithIdentity(ctx, s.UserID, s.OrgID(), s.ID)
		ctx = WithPrincipal(ctx, s.Username, s.Role)
		if res.Degraded {
			ctx = WithDegraded(ctx)
		}
		return handler(ctx, req)
	}
}

// UserAgent returns the client user agent. x-user-agent (set by gateways forwarding a browser UA) wins
// over user-agent, which grpc-go suffixes with its own version.
func UserAgent(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, key := range []string{"x-user-agent", "user-agent"} {
		if vals := md.Get(key); len(vals) > 0 {
			if s := strings.TrimSpace(vals[0]); s != "" {
				return s
			}
		}
	}
	return ""
}

// extractBearer returns the Bearer token from ctx metadata, or "" if missing or malformed.
func extractBearer(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return ""
	}
	v := strings.TrimSpace(vals[0])
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
