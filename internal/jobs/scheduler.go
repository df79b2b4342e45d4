// Package jobs runs the periodic maintenance tasks of the storefront.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/cminh91/dong-y-sub001/internal/monitoring"
)

const (
	JobExpireOrders      = "expire_unpaid_orders"
	JobMatureCommissions = "mature_commissions"

	jobTimeout = 5 * time.Minute
)

type OrderExpirer interface {
	ExpireUnpaidOrders(ctx context.Context, ttl time.Duration) (int, error)
}

type CommissionMaturer interface {
	MatureCommissions(ctx context.Context, holdDays int, now time.Time) (int64, error)
}

type Options struct {
	ExpireOrdersSpec      string
	MatureCommissionsSpec string
	UnpaidOrderTTL        time.Duration
	CommissionHoldDays    int
}

type Scheduler struct {
	cron        *cron.Cron
	orders      OrderExpirer
	commissions CommissionMaturer
	opts        Options
	log         *zap.Logger
}

// cronLogger routes cron's own messages through zap.
type cronLogger struct{ s *zap.SugaredLogger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

func New(orders OrderExpirer, commissions CommissionMaturer, opts Options, log *zap.Logger) (*Scheduler, error) {
	log = log.Named("jobs")
	cl := cronLogger{s: log.Sugar()}
	s := &Scheduler{
		cron:        cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		orders:      orders,
		commissions: commissions,
		opts:        opts,
		log:         log,
	}

	if _, err := s.cron.AddFunc(opts.ExpireOrdersSpec, func() { s.ExpireOrders(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid schedule %q for %s: %w", opts.ExpireOrdersSpec, JobExpireOrders, err)
	}
	if _, err := s.cron.AddFunc(opts.MatureCommissionsSpec, func() { s.MatureCommissions(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid schedule %q for %s: %w", opts.MatureCommissionsSpec, JobMatureCommissions, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started",
		zap.String(JobExpireOrders, s.opts.ExpireOrdersSpec),
		zap.String(JobMatureCommissions, s.opts.MatureCommissionsSpec))
}

// Stop waits for running jobs to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out")
	}
}

func (s *Scheduler) run(ctx context.Context, job string, fn func(ctx context.Context) (int64, error)) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	start := time.Now()
	n, err := fn(ctx)
	if err != nil {
		monitoring.JobRunsTotal.WithLabelValues(job, "error").Inc()
		s.log.Error("job failed", zap.String("job", job), zap.Int64("processed", n), zap.Error(err))
		return n, err
	}
	monitoring.JobRunsTotal.WithLabelValues(job, "ok").Inc()
	s.log.Info("job finished", zap.String("job", job), zap.Int64("processed", n), zap.Duration("took", time.Since(start)))
	return n, nil
}

// ExpireOrders cancels prepaid orders left unpaid past the configured TTL.
func (s *Scheduler) ExpireOrders(ctx context.Context) (int64, error) {
	return s.run(ctx, JobExpireOrders, func(ctx context.Context) (int64, error) {
		n, err := s.orders.ExpireUnpaidOrders(ctx, s.opts.UnpaidOrderTTL)
		return int64(n), err
	})
}

// MatureCommissions approves pending commissions whose order was delivered long enough ago.
func (s *Scheduler) MatureCommissions(ctx context.Context) (int64, error) {
	return s.run(ctx, JobMatureCommissions, func(ctx context.Context) (int64, error) {
		return s.commissions.MatureCommissions(ctx, s.opts.CommissionHoldDays, time.Now())
	})
}
