package interceptors

import (
	"context"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"course-admin/backend/internal/telemetry"
)

// TelemetryUnary returns a unary server interceptor that emits a grpc_request event after each RPC.
// Best-effort: emission is asynchronous and never fails the RPC. If emitter is nil, the interceptor no-ops.
// skipMethods is the set of full method names to not emit (e.g. health Check).
func TelemetryUnary(emitter telemetry.EventEmitter, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if emitter == nil || skipMethods[info.FullMethod] {
			return resp, err
		}
		orgID, _ := GetOrgID(ctx)
		userID, _ := GetUserID(ctx)
		sessionID, _ := GetSessionID(ctx)
		attrs := map[string]string{
			"full_method": info.FullMethod,
			"status_code": status.Code(err).String(),
			"duration_ms": strconv.FormatInt(time.Since(start).Milliseconds(), 10),
			"client_ip":   ClientIP(ctx),
		}
		if IsDegraded(ctx) {
			attrs["degraded"] = "true"
		}
		telemetry.EmitAsync(emitter, ctx, &telemetry.Event{
			EventType:  "grpc_request",
			Source:     "grpc_interceptor",
			OrgID:      orgID,
			UserID:     userID,
			SessionID:  sessionID,
			Attributes: attrs,
			CreatedAt:  time.Now().UTC(),
		})
		return resp, err
	}
}
