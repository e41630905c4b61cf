// Package config provides environment variable-based configuration loading.
//
// Purpose:
//
//	This package defines the gateway configuration structure and provides
//	functions to load configuration from environment variables using envconfig.
//	All binaries (gateway, migrate, seed) share this configuration structure.
//
// Dependencies:
//   - github.com/kelseyhightower/envconfig: Environment variable parsing
//
// Key Responsibilities:
//   - Config struct defines all service configuration fields
//   - Load reads and validates environment variables
//   - MustLoad exits the process if configuration is invalid
//
// Debugging Notes:
//   - Required fields: DATABASE_URL
//   - Defaults provided for optional fields (ports, Redis, cookie, log level)
//   - Redis is optional: without it the session cache and lockout tracking
//     are disabled, every session read goes to Postgres
//   - KAFKA_BROKERS empty means audit events go to the logger
//
// Thread Safety:
//   - Config struct is read-only after loading (safe for concurrent read access)
//
// Error Handling:
//   - Load returns wrapped errors from envconfig.Process
//   - MustLoad writes to stderr and exits on error
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config represents shared runtime configuration for the gateway binaries.
// All fields are populated from environment variables with defaults where
// specified. Required fields must be set or Load/MustLoad will return an error.
type Config struct {
	// ServiceName is emitted in logs and metrics.
	ServiceName string `envconfig:"SERVICE_NAME" default:"authgate"`
	// HTTPPort is the port the HTTP server listens on.
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`
	// DatabaseURL is the Postgres connection string for the primary database.
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	// RedisAddr is the host:port of the Redis instance used for the session
	// cache and lockout tracking. Empty disables both.
	RedisAddr string `envconfig:"REDIS_ADDR" default:""`
	// RedisPassword is the optional password for Redis authentication.
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	// RedisDB selects the logical Redis database index.
	RedisDB int `envconfig:"REDIS_DB" default:"0"`
	// LogLevel controls zerolog global level (debug, info, warn, error).
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	// Environment describes the current deployment environment (dev, staging, prod).
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	// SessionTTL is the server-side session lifetime.
	SessionTTL time.Duration `envconfig:"SESSION_TTL" default:"12h"`
	// SessionCookie is the name of the session cookie.
	SessionCookie string `envconfig:"SESSION_COOKIE" default:"ag_session"`
	// SessionCookieSecure marks the session cookie https-only.
	SessionCookieSecure bool `envconfig:"SESSION_COOKIE_SECURE" default:"false"`
	// MFAIssuer is the TOTP issuer displayed in authenticator apps.
	MFAIssuer string `envconfig:"MFA_ISSUER" default:"EryAI Dashboard"`
	// KafkaBrokers is a comma-separated list of Kafka broker addresses.
	// If empty, audit events are logged instead of sent to Kafka.
	KafkaBrokers string `envconfig:"KAFKA_BROKERS" default:""`
	// KafkaTopic is the Kafka topic name for audit events.
	KafkaTopic string `envconfig:"KAFKA_TOPIC" default:"audit.identity"`
	// KafkaClientID is the client ID used when connecting to Kafka.
	KafkaClientID string `envconfig:"KAFKA_CLIENT_ID" default:"authgate"`

	// LockoutMaxAttempts is the number of failed logins before lockout.
	LockoutMaxAttempts int `envconfig:"LOCKOUT_MAX_ATTEMPTS" default:"5"`
	// LockoutDurationMinutes is the duration of a lockout in minutes.
	LockoutDurationMinutes int `envconfig:"LOCKOUT_DURATION_MINUTES" default:"15"`
	// LockoutWindowMinutes is the window for counting failed attempts in minutes.
	LockoutWindowMinutes int `envconfig:"LOCKOUT_WINDOW_MINUTES" default:"15"`
}

// Load reads environment variables into Config, applying defaults where necessary.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: process env: %w", err)
	}
	return &cfg, nil
}

// MustLoad returns Config or exits the process.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}
