package handler

import (
	"context"
	"log"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Pinger checks the audit database (*sql.DB implements it).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// StoreChecker checks the session store.
type StoreChecker interface {
	Ping(ctx context.Context) error
}

const checkTimeout = 2 * time.Second

// Server serves grpc.health.v1 for readiness/liveness. Status is recomputed by HealthCheck, either on
// demand or periodically via Run, and applies to the empty service name and to each registered service.
type Server struct {
	hs       *health.Server
	db       Pinger
	store    StoreChecker
	services []string
}

// NewServer returns a new Health server. db and store may be nil; a nil dependency is not checked.
// services are the service names whose status follows the overall status.
func NewServer(db Pinger, store StoreChecker, services ...string) *Server {
	return &Server{hs: health.NewServer(), db: db, store: store, services: services}
}

// Register adds the standard health service to r.
func (s *Server) Register(r grpc.ServiceRegistrar) {
	healthpb.RegisterHealthServer(r, s.hs)
}

// HealthCheck pings the dependencies and publishes the result. A failed ping never returns an error;
// it only flips the status to NOT_SERVING. The store is required for serving; the audit database is
// not, since audit writes are best-effort, so a database failure is only logged.
func (s *Server) HealthCheck(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	st := healthpb.HealthCheckResponse_SERVING
	if s.store != nil {
		if err := s.store.Ping(ctx); err != nil {
			log.Printf("health: session store: %v", err)
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	if s.db != nil {
		if err := s.db.PingContext(ctx); err != nil {
			log.Printf("health: audit database: %v", err)
		}
	}
	s.set(st)
	return st
}

// Run calls HealthCheck every interval until ctx is done.
func (s *Server) Run(ctx context.Context, interval time.Duration) {
	s.HealthCheck(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.HealthCheck(ctx)
		}
	}
}

// Shutdown marks every service NOT_SERVING and ignores later updates. Call before GracefulStop.
func (s *Server) Shutdown() {
	s.hs.Shutdown()
}

func (s *Server) set(st healthpb.HealthCheckResponse_ServingStatus) {
	s.hs.SetServingStatus("", st)
	for _, name := range s.services {
		s.hs.SetServingStatus(name, st)
	}
}
