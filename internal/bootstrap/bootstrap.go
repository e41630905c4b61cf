// Package bootstrap provides centralized initialization and lifecycle
// management for the gateway's core dependencies (Postgres, Redis, identity
// provider, audit emitter).
//
// Purpose:
//
//	This package wires together the foundational runtime dependencies
//	required by the gateway binary. It ensures consistent initialization
//	order, handles connection failures fast, and provides a unified shutdown
//	and health check interface.
//
// Dependencies:
//   - github.com/redis/go-redis/v9: Redis client for session cache and lockout
//   - internal/config: Service configuration from environment variables
//   - internal/provider: identity provider composition
//   - internal/storage/postgres: Core data access layer
//
// Key Responsibilities:
//   - Initialize connects to Postgres and optional Redis, composes provider
//   - Runtime bundles all initialized dependencies for use by binaries
//   - ReadinessProbe checks health of Postgres and Redis connections
//   - Close releases all resources in reverse initialization order
//
// Debugging Notes:
//   - Redis connection failures fail fast during initialization (2s timeout)
//   - Without Redis the session cache and lockout tracking are disabled
//   - Postgres connection failures prevent service startup
//   - ReadinessProbe is used by Kubernetes liveness/readiness checks
//
// Thread Safety:
//   - Runtime struct is safe for concurrent read access after initialization
//   - Close should be called once during shutdown
//
// Error Handling:
//   - Initialization errors are wrapped with context ("bootstrap postgres: ...")
//   - Close collects errors but returns the first one encountered
package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/eryai/authgate/internal/audit"
	"github.com/eryai/authgate/internal/config"
	"github.com/eryai/authgate/internal/logging"
	"github.com/eryai/authgate/internal/provider"
	"github.com/eryai/authgate/internal/security"
	"github.com/eryai/authgate/internal/storage/postgres"
)

// Runtime bundles initialized runtime dependencies for the gateway binaries.
// All fields are populated during Initialize and remain valid until Close.
type Runtime struct {
	Config   *config.Config           // Service configuration (read-only after init)
	Logger   zerolog.Logger           // Root structured logger
	Postgres *postgres.Store          // PostgreSQL data access layer (required)
	Redis    *redis.Client            // Redis client (optional, nil if not configured)
	Provider *provider.Provider       // Identity provider (sessions + factors)
	Lockout  *security.LockoutTracker // Failed-login tracker (nil without Redis)
	Audit    audit.Emitter            // Audit event emitter (Kafka or logger)
}

// Initialize wires core dependencies based on the provided configuration.
// Initialization order: Postgres → Redis (if configured) → audit → provider.
// The returned Runtime must be closed via Close() during shutdown.
func Initialize(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	logger := logging.New(cfg.ServiceName, cfg.LogLevel)

	pgStore, err := postgres.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap postgres: %w", err)
	}

	rt := &Runtime{
		Config:   cfg,
		Logger:   logger,
		Postgres: pgStore,
	}

	if cfg.RedisAddr != "" {
		rt.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := rt.Redis.Ping(pingCtx).Err(); err != nil {
			pgStore.Close()
			return nil, fmt.Errorf("bootstrap redis: %w", err)
		}
	}

	var sessionCache provider.SessionCache
	if rt.Redis != nil {
		sessionCache = provider.NewRedisSessionCache(rt.Redis)
		rt.Lockout = security.NewLockoutTracker(rt.Redis, security.LockoutConfig{
			MaxAttempts:     cfg.LockoutMaxAttempts,
			LockoutDuration: time.Duration(cfg.LockoutDurationMinutes) * time.Minute,
			WindowDuration:  time.Duration(cfg.LockoutWindowMinutes) * time.Minute,
		})
	}

	if brokers := splitBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		kafkaEmitter := audit.NewKafkaEmitter(audit.KafkaConfig{
			Brokers:  brokers,
			Topic:    cfg.KafkaTopic,
			ClientID: cfg.KafkaClientID,
		}, logger)
		logger.Info().Str("topic", cfg.KafkaTopic).Msg("using Kafka emitter for audit events")
		rt.Audit = kafkaEmitter
	} else {
		logger.Info().Msg("Kafka not configured, using logger emitter for audit events")
		rt.Audit = audit.NewLoggerEmitter(logger)
	}

	rt.Provider = provider.New(pgStore, sessionCache, rt.Lockout, rt.Audit, provider.Config{
		SessionTTL: cfg.SessionTTL,
		Issuer:     cfg.MFAIssuer,
	}, logger)

	return rt, nil
}

// Close releases runtime resources in reverse initialization order.
// Returns the first error encountered but continues closing other resources.
func (rt *Runtime) Close(ctx context.Context) error {
	if rt == nil {
		return nil
	}
	var firstErr error
	if kafkaEmitter, ok := rt.Audit.(*audit.KafkaEmitter); ok {
		if err := kafkaEmitter.Close(); err != nil {
			firstErr = err
		}
	}
	if rt.Redis != nil {
		if err := rt.Redis.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if rt.Postgres != nil {
		rt.Postgres.Close()
	}
	return firstErr
}

// ReadinessProbe checks the health of critical runtime dependencies. Used by
// the /readyz endpoint. Context timeout should be set by the caller.
func (rt *Runtime) ReadinessProbe(ctx context.Context) error {
	if rt.Postgres != nil {
		if err := rt.Postgres.Ping(ctx); err != nil {
			return fmt.Errorf("postgres not ready: %w", err)
		}
	}
	if rt.Redis != nil {
		if err := rt.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis not ready: %w", err)
		}
	}
	return nil
}

func splitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
