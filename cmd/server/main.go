package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"course-admin/backend/internal/audit"
	auditrepo "course-admin/backend/internal/audit/repository"
	"course-admin/backend/internal/config"
	"course-admin/backend/internal/db"
	healthhandler "course-admin/backend/internal/health/handler"
	"course-admin/backend/internal/security"
	"course-admin/backend/internal/server"
	"course-admin/backend/internal/server/interceptors"
	sessionhandler "course-admin/backend/internal/session/handler"
	"course-admin/backend/internal/session/policy"
	"course-admin/backend/internal/session/repository"
	"course-admin/backend/internal/session/service"
	"course-admin/backend/internal/telemetry"
	otelsetup "course-admin/backend/internal/telemetry/otel"
)

const healthInterval = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx := context.Background()

	priv, pub, err := security.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey)
	if err != nil {
		log.Fatalf("jwt keys: %v", err)
	}
	tokens, err := security.NewTokenProvider(priv, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), cfg.RefreshTTL())
	if err != nil {
		log.Fatalf("token provider: %v", err)
	}
	engine, err := policy.NewEngine(cfg.PrivateNetworks(), cfg.RefreshTTL())
	if err != nil {
		log.Fatalf("security policy: %v", err)
	}

	providers, err := otelsetup.NewProviders(ctx, otelsetup.Options{
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: cfg.OTelServiceName,
		Insecure:    cfg.OTelInsecure,
	})
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	providers.SetGlobal()
	emitter := otelsetup.NewEventEmitter(providers.LoggerProvider)
	metrics, err := telemetry.NewSessionMetrics(providers.MeterProvider)
	if err != nil {
		log.Fatalf("metrics: %v", err)
	}

	var store repository.Store
	if cfg.RedisURL != "" {
		rdb, err := db.OpenRedis(ctx, cfg.RedisURL, cfg.OpTimeout())
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer rdb.Close()
		store = repository.NewRedisStore(rdb, cfg.OpTimeout(), cfg.RefreshTTL())
	} else {
		log.Println("session store: REDIS_URL not set, using in-memory store")
		store = repository.NewMemoryStore()
	}

	sinks := audit.Multi{audit.NewTelemetryLogger(emitter, interceptors.ClientIP)}
	var dbPinger healthhandler.Pinger
	if cfg.DatabaseURL != "" {
		sqlDB, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer sqlDB.Close()
		sinks = append(sinks, audit.NewLogger(auditrepo.NewPostgresRepository(sqlDB), interceptors.ClientIP))
		dbPinger = sqlDB
	} else {
		log.Println("audit: DATABASE_URL not set, audit events go to OTel logs only")
	}
	auditLogger := audit.NewAsyncLogger(sinks, cfg.AuditBufferSize)
	health := healthhandler.NewServer(dbPinger, store, sessionhandler.ServiceName)

	mgr, err := service.NewManager(cfg.Session(), store, tokens, engine, auditLogger, metrics)
	if err != nil {
		log.Fatalf("session manager: %v", err)
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
	defer lis.Close()

	s := server.NewGRPCServer(server.Options{
		Authenticator:  mgr,
		AuditLogger:    auditLogger,
		Emitter:        emitter,
		TrustedProxies: cfg.TrustedProxyPrefixes(),
	})
	server.RegisterServices(s, server.Deps{Sessions: mgr, Health: health})

	healthCtx, stopHealth := context.WithCancel(ctx)
	go health.Run(healthCtx, healthInterval)

	go func() {
		log.Printf("gRPC server listening on %s", cfg.GRPCAddr)
		if err := s.Serve(lis); err != nil {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down gRPC server...")
	health.Shutdown()
	stopHealth()
	s.GracefulStop()
	log.Println("gRPC server stopped")

	drainCtx, cancel := context.WithTimeout(ctx, audit.DrainTimeout)
	if err := auditLogger.Close(drainCtx); err != nil {
		log.Printf("audit: drain: %v (%d events dropped in total)", err, auditLogger.Dropped())
	}
	cancel()

	// Let in-flight async telemetry emits finish before the exporters close.
	time.Sleep(telemetry.ShutdownDrainDuration)
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("otel shutdown: %v", err)
	}
}
