package scheduler

import (
	"context"
	"fmt"
	"time"

	"handoff_backend/internal/handoff/service"
	"handoff_backend/platform/config"
	"handoff_backend/platform/logger"

	"github.com/hibiken/asynq"
)

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	svc    *service.Service
	sweep  config.SweepConfig
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, sweep config.SweepConfig, svc *service.Service, log *logger.Logger) (*Worker, error) {
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

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		svc:    svc,
		sweep:  sweep,
		log:    log,
	}

	mux.HandleFunc(TaskHandoffSweep, w.handleHandoffSweep)

	return w, nil
}

func (w *Worker) handleHandoffSweep(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseHandoffSweepPayload(task)
	if err != nil {
		return err
	}

	olderThan := time.Duration(payload.OlderThanMinutes) * time.Minute
	if olderThan <= 0 {
		olderThan = w.sweep.GetHandoffRequestTTL()
	}

	expired, err := w.svc.ExpireStale(ctx, olderThan)
	if err != nil {
		return err
	}

	if expired > 0 {
		w.log.Info("stale handoffs expired", "count", expired, "olderThan", olderThan.String())
	}

	return nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
