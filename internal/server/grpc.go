package server

import (
	"net/netip"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	"course-admin/backend/internal/audit"
	healthhandler "course-admin/backend/internal/health/handler"
	"course-admin/backend/internal/server/interceptors"
	sessionhandler "course-admin/backend/internal/session/handler"
	"course-admin/backend/internal/telemetry"
)

// HealthCheckMethod is the standard health probe; it is public and neither audited nor emitted.
const HealthCheckMethod = "/grpc.health.v1.Health/Check"

// Deps holds service dependencies for gRPC handlers.
type Deps struct {
	// Sessions backs SessionService. If nil, session RPCs return Unimplemented.
	Sessions sessionhandler.SessionManager
	// Health serves grpc.health.v1. If nil, the health service is not registered.
	Health *healthhandler.Server
}

// RegisterServices registers the gRPC services with the given server.
//
// Service → handler mapping:
//   - course_admin.session.v1.SessionService → internal/session/handler
//   - grpc.health.v1.Health                  → internal/health/handler
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	sessionhandler.RegisterSessionServiceServer(s, sessionhandler.NewServer(deps.Sessions))
	if deps.Health != nil {
		deps.Health.Register(s)
	}
}

// Options configures the interceptor chain of NewGRPCServer.
type Options struct {
	// Authenticator resolves bearer tokens (a *service.Manager). Required.
	Authenticator interceptors.Authenticator
	// AuditLogger records authenticated RPCs. Nil disables RPC auditing.
	AuditLogger audit.AuditLogger
	// Emitter receives a grpc_request event per RPC. Nil disables emission.
	Emitter telemetry.EventEmitter
	// TrustedProxies are the peers whose forwarding headers name the client. Empty binds sessions to the
	// transport peer address.
	TrustedProxies []netip.Prefix
}

// PublicMethods returns the full method names callable without a bearer token.
func PublicMethods() map[string]bool {
	m := map[string]bool{HealthCheckMethod: true}
	for k, v := range sessionhandler.PublicMethods {
		m[k] = v
	}
	return m
}

// NewGRPCServer returns a server with OTel stats handling and the client IP, auth, audit and telemetry
// interceptors, in that order, so each sees the resolved address and the inner two the identity.
func NewGRPCServer(opts Options, extra ...grpc.ServerOption) *grpc.Server {
	skip := map[string]bool{HealthCheckMethod: true}
	serverOpts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.ClientIPUnary(interceptors.NewIPResolver(opts.TrustedProxies)),
			interceptors.AuthUnary(opts.Authenticator, PublicMethods()),
			interceptors.AuditUnary(opts.AuditLogger, skip),
			interceptors.TelemetryUnary(opts.Emitter, skip),
		),
	}
	return grpc.NewServer(append(serverOpts, extra...)...)
}
