package scheduler

import (
	"context"
	"fmt"
	"time"

	"handoff_backend/platform/config"
	"handoff_backend/platform/logger"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// PeriodicSweep enqueues a sweep task on a fixed interval so stale handoff
// requests are closed out even when no API traffic touches them.
type PeriodicSweep struct {
	scheduler *asynq.Scheduler
	log       *logger.Logger
}

func NewPeriodicSweep(cfg config.SchedulerConfig, sweep config.SweepConfig, log *logger.Logger) (*PeriodicSweep, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL)
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	interval := sweep.GetSweepInterval()
	if interval < time.Second {
		interval = time.Minute
	}

	task, err := NewHandoffSweepTask(HandoffSweepPayload{
		OlderThanMinutes: int(sweep.GetHandoffRequestTTL() / time.Minute),
	})
	if err != nil {
		return nil, err
	}

	scheduler := asynq.NewScheduler(opt, nil)
	if _, err := scheduler.Register(fmt.Sprintf("@every %s", interval), task, asynq.Queue(queue)); err != nil {
		return nil, err
	}

	return &PeriodicSweep{scheduler: scheduler, log: log}, nil
}

func (p *PeriodicSweep) Run(ctx context.Context) {
	if p == nil || p.scheduler == nil {
		return
	}

	go func() {
		<-ctx.Done()
		p.scheduler.Shutdown()
	}()

	if err := p.scheduler.Run(); err != nil {
		p.log.Error("periodic sweep scheduler stopped", "error", err)
	}
}

func redisClientOpt(redisURL string) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: opt.TLSConfig,
	}, nil
}
