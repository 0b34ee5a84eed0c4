package scheduler

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/perkway/internal/config"
	loyaltydomain "github.com/smallbiznis/perkway/internal/loyalty/domain"
	subdomain "github.com/smallbiznis/perkway/internal/subscription/domain"
)

type Param struct {
	fx.In

	Logger        *zap.Logger
	Config        config.Config
	Loyalty       loyaltydomain.Service
	Subscriptions subdomain.Service
}

func provide(p Param) *Scheduler {
	var locker *Locker
	if p.Config.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     p.Config.RedisAddr,
			Password: p.Config.RedisPassword,
		})
		locker = NewLocker(client, 2*p.Config.SchedulerRunInterval)
	}
	return New(p.Logger, Config{Interval: p.Config.SchedulerRunInterval}, p.Subscriptions, p.Loyalty, locker)
}

func register(lc fx.Lifecycle, cfg config.Config, s *Scheduler) {
	if !cfg.SchedulerEnabled {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				s.RunForever(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

var Module = fx.Module("scheduler",
	fx.Provide(provide),
	fx.Invoke(register),
)
