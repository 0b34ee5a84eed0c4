// Package scheduler drives the recurring background jobs: subscription
// renewals and the points expiry sweep.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	loyaltydomain "github.com/smallbiznis/perkway/internal/loyalty/domain"
	"github.com/smallbiznis/perkway/internal/observability/metrics"
	subdomain "github.com/smallbiznis/perkway/internal/subscription/domain"
)

const (
	JobRenewals     = "renewals"
	JobExpirePoints = "expire_points"
)

type RenewalProcessor interface {
	ProcessAllDueRenewals(ctx context.Context) (subdomain.SweepSummary, error)
}

type PointsExpirer interface {
	ClearExpiredPoints(ctx context.Context) (loyaltydomain.ExpireSummary, error)
}

type Config struct {
	Interval time.Duration
}

type job struct {
	name string
	run  func(ctx context.Context) (processed, failed int, err error)
}

type Scheduler struct {
	logger   *zap.Logger
	interval time.Duration
	locker   *Locker
	jobs     []job
}

func New(logger *zap.Logger, cfg Config, renewals RenewalProcessor, expirer PointsExpirer, locker *Locker) *Scheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		logger:   logger.Named("scheduler"),
		interval: interval,
		locker:   locker,
		jobs: []job{
			{
				name: JobRenewals,
				run: func(ctx context.Context) (int, int, error) {
					summary, err := renewals.ProcessAllDueRenewals(ctx)
					return summary.Renewed + summary.Ended, summary.Failures, err
				},
			},
			{
				name: JobExpirePoints,
				run: func(ctx context.Context) (int, int, error) {
					summary, err := expirer.ClearExpiredPoints(ctx)
					return summary.AccountsSwept, 0, err
				},
			},
		},
	}
}

// RunOnce executes every job. A failing job never blocks the others.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var errs []error
	for _, j := range s.jobs {
		if err := s.runJob(ctx, j); err != nil {
			errs = append(errs, fmt.Errorf("job %s: %w", j.name, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Scheduler) runJob(ctx context.Context, j job) error {
	if s.locker != nil {
		release, ok, err := s.locker.Acquire(ctx, "perkway:scheduler:"+j.name)
		if err != nil {
			return err
		}
		if !ok {
			s.logger.Debug("job held by another instance", zap.String("job", j.name))
			return nil
		}
		defer release()
	}

	m := metrics.Scheduler()
	m.IncJobRun(j.name)
	started := time.Now()

	processed, failed, err := j.run(ctx)

	m.ObserveJobDuration(j.name, time.Since(started))
	m.AddItems(j.name, "ok", processed)
	m.AddItems(j.name, "failed", failed)

	if err != nil {
		m.IncJobError(j.name)
		s.logger.Error("job finished with errors",
			zap.String("job", j.name),
			zap.Int("processed", processed),
			zap.Int("failed", failed),
			zap.Error(err),
		)
		return err
	}

	if processed > 0 || failed > 0 {
		s.logger.Info("job finished",
			zap.String("job", j.name),
			zap.Int("processed", processed),
			zap.Int("failed", failed),
		)
	}
	return nil
}

// RunForever ticks RunOnce until the context ends.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("scheduler pass failed", zap.Error(err))
			}
		}
	}
}
