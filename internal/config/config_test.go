package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/authgate")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "authgate", cfg.ServiceName)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 12*time.Hour, cfg.SessionTTL)
	assert.Equal(t, "ag_session", cfg.SessionCookie)
	assert.False(t, cfg.SessionCookieSecure)
	assert.Empty(t, cfg.RedisAddr)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "audit.identity", cfg.KafkaTopic)
	assert.Equal(t, 5, cfg.LockoutMaxAttempts)
	assert.Equal(t, 15, cfg.LockoutDurationMinutes)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://db:5432/authgate")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("SESSION_TTL", "30m")
	t.Setenv("SESSION_COOKIE", "sid")
	t.Setenv("SESSION_COOKIE_SECURE", "true")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("KAFKA_BROKERS", "kafka1:9092,kafka2:9092")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, "sid", cfg.SessionCookie)
	assert.True(t, cfg.SessionCookieSecure)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, "kafka1:9092,kafka2:9092", cfg.KafkaBrokers)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	// t.Setenv registers the restore; the unset makes the variable truly
	// absent rather than empty.
	t.Setenv("DATABASE_URL", "")
	require.NoError(t, os.Unsetenv("DATABASE_URL"))

	_, err := Load()
	assert.Error(t, err)
}
