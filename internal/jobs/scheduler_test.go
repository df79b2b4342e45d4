package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/cminh91/dong-y-sub001/internal/monitoring"
)

type fakeOrders struct {
	ttl time.Duration
	n   int
	err error
}

func (f *fakeOrders) ExpireUnpaidOrders(ctx context.Context, ttl time.Duration) (int, error) {
	f.ttl = ttl
	return f.n, f.err
}

type fakeCommissions struct {
	holdDays int
	n        int64
}

func (f *fakeCommissions) MatureCommissions(ctx context.Context, holdDays int, now time.Time) (int64, error) {
	f.holdDays = holdDays
	return f.n, nil
}

func testOptions() Options {
	return Options{
		ExpireOrdersSpec:      "@every 15m",
		MatureCommissionsSpec: "0 2 * * *",
		UnpaidOrderTTL:        48 * time.Hour,
		CommissionHoldDays:    7,
	}
}

func TestJobsPassConfiguredLimits(t *testing.T) {
	orders := &fakeOrders{n: 3}
	comms := &fakeCommissions{n: 2}
	s, err := New(orders, comms, testOptions(), zap.NewNop())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	okBefore := testutil.ToFloat64(monitoring.JobRunsTotal.WithLabelValues(JobExpireOrders, "ok"))
	n, err := s.ExpireOrders(context.Background())
	if err != nil || n != 3 || orders.ttl != 48*time.Hour {
		t.Fatalf("expire: n=%d ttl=%s err=%v", n, orders.ttl, err)
	}
	if got := testutil.ToFloat64(monitoring.JobRunsTotal.WithLabelValues(JobExpireOrders, "ok")); got != okBefore+1 {
		t.Fatalf("ok counter = %v, want %v", got, okBefore+1)
	}

	n, err = s.MatureCommissions(context.Background())
	if err != nil || n != 2 || comms.holdDays != 7 {
		t.Fatalf("mature: n=%d hold=%d err=%v", n, comms.holdDays, err)
	}
}

func TestFailedRunIsCounted(t *testing.T) {
	orders := &fakeOrders{err: errors.New("db down")}
	s, _ := New(orders, &fakeCommissions{}, testOptions(), zap.NewNop())

	before := testutil.ToFloat64(monitoring.JobRunsTotal.WithLabelValues(JobExpireOrders, "error"))
	if _, err := s.ExpireOrders(context.Background()); err == nil {
		t.Fatal("expected the job error")
	}
	if got := testutil.ToFloat64(monitoring.JobRunsTotal.WithLabelValues(JobExpireOrders, "error")); got != before+1 {
		t.Fatalf("error counter = %v", got)
	}
}

func TestNewRejectsBadSpec(t *testing.T) {
	opts := testOptions()
	opts.ExpireOrdersSpec = "every now and then"
	if _, err := New(&fakeOrders{}, &fakeCommissions{}, opts, zap.NewNop()); err == nil {
		t.Fatal("expected an invalid cron spec to be rejected")
	}
}

func TestStartStop(t *testing.T) {
	s, _ := New(&fakeOrders{}, &fakeCommissions{}, testOptions(), zap.NewNop())
	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
