package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"handoff_backend/internal/events"
	"handoff_backend/internal/handoff"
	"handoff_backend/internal/handoff/repository"
	"handoff_backend/internal/http/router"
	"handoff_backend/internal/notification"
	"handoff_backend/internal/session"
	"handoff_backend/platform/config"
	"handoff_backend/platform/db"
	"handoff_backend/platform/logger"
	"handoff_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr, "store", cfg.StoreBackend)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore := newStore(ctx, cfg, log)
	defer closeStore()

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	issuer := session.New(cfg)
	if !issuer.Configured() {
		log.Warn("session credential issuer not configured; claims will be rejected until LIVEKIT_URL, LIVEKIT_API_KEY and LIVEKIT_API_SECRET are set")
	}

	// Shared validator instance for dependency injection
	val := validator.New()

	// Notification module subscribes to domain events and serves the SSE feed
	notificationModule := notification.New(log)
	notificationModule.RegisterHandlers(eventBus)
	defer notificationModule.Close()

	handoffModule := handoff.NewModule(store, issuer, eventBus, val, log)

	// The memory backend is process-local, so the stale sweep has to run here
	// rather than in the scheduler binary.
	if cfg.StoreBackend == config.StoreBackendMemory {
		go runSweep(ctx, cfg, handoffModule, log)
	}

	engine := router.New(cfg, cfg.Env, log, handoffModule, notificationModule)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: engine,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}

	eventBus.Wait()
}

// newStore builds the handoff store for the configured backend and returns a
// cleanup func that releases its connections.
func newStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (repository.Store, func()) {
	switch cfg.StoreBackend {
	case config.StoreBackendRedis:
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Error("invalid redis url", "error", err)
			panic("invalid redis url: " + err.Error())
		}
		client := redis.NewClient(opt)
		if err := withRetry(ctx, log, "redis connection", 5, 2*time.Second, func() error {
			return client.Ping(ctx).Err()
		}); err != nil {
			log.Error("failed to connect to redis", "error", err)
			panic("failed to connect to redis: " + err.Error())
		}
		log.Info("redis connection established")
		return repository.NewRedisStore(client), func() { _ = client.Close() }

	case config.StoreBackendPostgres:
		if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
			return db.RunMigrations(ctx, cfg, "migrations")
		}); err != nil {
			log.Error("failed to run database migrations", "error", err)
			panic("failed to run database migrations: " + err.Error())
		}
		log.Info("database migrations complete")

		var pool *pgxpool.Pool
		if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
			p, err := db.NewPool(ctx, cfg)
			if err != nil {
				return err
			}
			pool = p
			return nil
		}); err != nil {
			log.Error("failed to connect to database", "error", err)
			panic("failed to connect to database: " + err.Error())
		}
		log.Info("database connection established")
		return repository.NewPostgresStore(pool), pool.Close

	default:
		return repository.NewMemoryStore(), func() {}
	}
}

func runSweep(ctx context.Context, cfg config.SweepConfig, module *handoff.Module, log *logger.Logger) {
	interval := cfg.GetSweepInterval()
	if interval < time.Second {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := module.Service().ExpireStale(ctx, cfg.GetHandoffRequestTTL())
			if err != nil {
				log.Error("stale handoff sweep failed", "error", err)
				continue
			}
			if expired > 0 {
				log.Info("stale handoffs expired", "count", expired)
			}
		}
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
