package interceptors

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"course-admin/backend/internal/audit"
)

// AuditUnary returns a unary server interceptor that records an audit event after each authenticated RPC.
// skipMethods is the set of full method names to not audit (e.g. health Check). Unauthenticated calls are
// not audited here; the session manager audits refresh and validation outcomes itself.
func AuditUnary(logger audit.AuditLogger, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		if logger == nil || skipMethods[info.FullMethod] {
			return resp, err
		}
		userID, _ := GetUserID(ctx)
		if userID == "" {
			return resp, err
		}
		orgID, _ := GetOrgID(ctx)
		ar := audit.ParseFullMethod(info.FullMethod)
		logger.LogEvent(ctx, orgID, userID, ar.Action, ar.Resource, "code="+status.Code(err).String())
		return resp, err
	}
}
