// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// StoreConfig provides settings for the handoff record store backend.
type StoreConfig interface {
	GetStoreBackend() string
	GetDatabaseURL() string
	GetRedisURL() string
}

// IssuerConfig provides settings for the session credential issuer.
// A zero-value key/secret means the issuer is not configured; the claim
// path reports this distinctly instead of the process refusing to start.
type IssuerConfig interface {
	GetSessionServerURL() string
	GetSessionAPIKey() string
	GetSessionAPISecret() string
	GetCredentialTTL() time.Duration
}

// SchedulerConfig provides settings for the asynq scheduler/worker.
type SchedulerConfig interface {
	GetRedisURL() string
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// SweepConfig provides settings for the stale-handoff sweep.
type SweepConfig interface {
	GetHandoffRequestTTL() time.Duration
	GetSweepInterval() time.Duration
}

// Store backend identifiers accepted for STORE_BACKEND.
const (
	StoreBackendMemory   = "memory"
	StoreBackendRedis    = "redis"
	StoreBackendPostgres = "postgres"
)

type Config struct {
	Env      string
	HTTPAddr string

	CORSAllowAll   bool
	CORSOrigins    []string
	CORSAllowCreds bool

	StoreBackend string
	DatabaseURL  string
	RedisURL     string

	SessionServerURL string
	SessionAPIKey    string
	SessionAPISecret string
	CredentialTTL    time.Duration

	HandoffRequestTTL time.Duration
	SweepInterval     time.Duration

	AsynqQueueName   string
	AsynqConcurrency int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:3000"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:      getEnv("APP_ENV", "development"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		CORSAllowAll:   corsAllowAll,
		CORSOrigins:    corsOrigins,
		CORSAllowCreds: strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),

		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", StoreBackendMemory)),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		RedisURL:     getEnv("REDIS_URL", ""),

		SessionServerURL: getEnv("LIVEKIT_URL", ""),
		SessionAPIKey:    getEnv("LIVEKIT_API_KEY", ""),
		SessionAPISecret: getEnv("LIVEKIT_API_SECRET", ""),
		CredentialTTL:    mustDuration(getEnv("CREDENTIAL_TTL", "30m")),

		HandoffRequestTTL: mustDuration(getEnv("HANDOFF_REQUEST_TTL", "15m")),
		SweepInterval:     mustDuration(getEnv("SWEEP_INTERVAL", "1m")),

		AsynqQueueName:   getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency: getIntEnv("ASYNQ_CONCURRENCY", 10),
	}

	switch cfg.StoreBackend {
	case StoreBackendMemory:
	case StoreBackendRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("REDIS_URL is required when STORE_BACKEND is redis")
		}
	case StoreBackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when STORE_BACKEND is postgres")
		}
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	if cfg.CredentialTTL <= 0 {
		return nil, fmt.Errorf("CREDENTIAL_TTL must be a positive duration")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}

	return cfg, nil
}

// Interface implementations.

func (c *Config) GetHTTPAddr() string { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool { return c.CORSAllowCreds }
func (c *Config) GetStoreBackend() string { return c.StoreBackend }
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }
func (c *Config) GetRedisURL() string { return c.RedisURL }
func (c *Config) GetSessionServerURL() string { return c.SessionServerURL }
func (c *Config) GetSessionAPIKey() string { return c.SessionAPIKey }
func (c *Config) GetSessionAPISecret() string { return c.SessionAPISecret }
func (c *Config) GetCredentialTTL() time.Duration { return c.CredentialTTL }
func (c *Config) GetHandoffRequestTTL() time.Duration { return c.HandoffRequestTTL }
func (c *Config) GetSweepInterval() time.Duration { return c.SweepInterval }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int { return c.AsynqConcurrency }

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	val := getEnv(key, "")
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(origins []string) bool {
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}
