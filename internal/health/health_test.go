package health

import (
	"context"
	"testing"

	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cminh91/dong-y-sub001/internal/testutil"
)

func TestProbeReportsDependencyState(t *testing.T) {
	db := testutil.NewDB(t)
	rdb, mr := testutil.NewRedis(t)
	s := NewServer(NewChecker(db, rdb), zap.NewNop())
	ctx := context.Background()

	if !s.Probe(ctx) {
		t.Fatal("expected healthy dependencies")
	}
	resp, err := s.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil || resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %v (%v)", resp, err)
	}

	mr.Close()
	if s.Probe(ctx) {
		t.Fatal("expected redis failure to be reported")
	}
	resp, _ = s.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if resp.Status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING, got %v", resp.Status)
	}

	details, ok := s.checker.Check(ctx)
	if ok || details["database"] != "ok" || details["redis"] == "ok" {
		t.Fatalf("unexpected details %v", details)
	}
}
