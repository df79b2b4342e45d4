// Package health probes the database and Redis and exposes the result over gRPC health checking.
package health

import (
	"context"
	"net"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"gorm.io/gorm"

	"github.com/cminh91/dong-y-sub001/internal/database"
)

const ServiceName = "storefront"

type Checker struct {
	db    *gorm.DB
	redis *redis.Client
}

func NewChecker(db *gorm.DB, rdb *redis.Client) *Checker {
	return &Checker{db: db, redis: rdb}
}

// Check pings every dependency. The map holds "ok" or the error text per dependency.
func (c *Checker) Check(ctx context.Context) (map[string]string, bool) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	out := map[string]string{"database": "ok", "redis": "ok"}
	healthy := true

	if err := database.Ping(ctx, c.db); err != nil {
		out["database"] = err.Error()
		healthy = false
	}
	if err := c.redis.Ping(ctx).Err(); err != nil {
		out["redis"] = err.Error()
		healthy = false
	}
	return out, healthy
}

type Server struct {
	grpc    *grpc.Server
	health  *health.Server
	checker *Checker
	log     *zap.Logger
}

func NewServer(checker *Checker, log *zap.Logger) *Server {
	s := &Server{
		grpc:    grpc.NewServer(),
		health:  health.NewServer(),
		checker: checker,
		log:     log.Named("health"),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	reflection.Register(s.grpc)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Probe runs one check and publishes the result for both the named service and the server as a whole.
func (s *Server) Probe(ctx context.Context) bool {
	details, ok := s.checker.Check(ctx)
	st := healthpb.HealthCheckResponse_SERVING
	if !ok {
		st = healthpb.HealthCheckResponse_NOT_SERVING
		s.log.Warn("dependency check failed", zap.Any("details", details))
	}
	s.health.SetServingStatus(ServiceName, st)
	s.health.SetServingStatus("", st)
	return ok
}

// Run probes every interval until ctx is done.
func (s *Server) Run(ctx context.Context, interval time.Duration) {
	s.Probe(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Probe(ctx)
		}
	}
}

func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// Stop marks every service NOT_SERVING and drains the gRPC server.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
