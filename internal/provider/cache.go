package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/eryai/authgate/internal/identity"
)

// SessionCache is a read-through cache for resolved sessions. Implementations
// must support invalidation by session id as well as by token hash, because
// elevation knows the session id but not the token.
type SessionCache interface {
	Get(ctx context.Context, tokenHash string) (*cachedSession, error)
	Set(ctx context.Context, tokenHash string, entry *cachedSession, ttl time.Duration) error
	// Invalidate drops any cached entry for the session id.
	Invalidate(ctx context.Context, sessionID uuid.UUID) error
	// Delete drops the entry keyed by token hash.
	Delete(ctx context.Context, tokenHash string) error
}

// cachedSession is the cache entry shape. It carries everything needed to
// rebuild an identity.Session without a database round trip.
type cachedSession struct {
	SessionID uuid.UUID `json:"session_id"`
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	AAL       string    `json:"aal"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (c *cachedSession) toSession() *identity.Session {
	return &identity.Session{
		ID: c.SessionID,
		Identity: identity.Identity{
			ID:    c.UserID,
			Email: c.Email,
		},
		Assurance: identity.AssuranceLevel(c.AAL),
		ExpiresAt: c.ExpiresAt,
	}
}

// RedisSessionCache caches sessions under two keys: the entry itself keyed by
// token hash, and an index keyed by session id pointing at the token hash.
// The index is what lets Elevate and Revoke find the entry without the token.
type RedisSessionCache struct {
	client *redis.Client
	prefix string
}

// NewRedisSessionCache wraps a Redis client as a session cache.
func NewRedisSessionCache(client *redis.Client) *RedisSessionCache {
	return &RedisSessionCache{client: client, prefix: "authgate:session"}
}

func (c *RedisSessionCache) entryKey(tokenHash string) string {
	return fmt.Sprintf("%s:entry:%s", c.prefix, tokenHash)
}

func (c *RedisSessionCache) indexKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("%s:index:%s", c.prefix, sessionID)
}

func (c *RedisSessionCache) Get(ctx context.Context, tokenHash string) (*cachedSession, error) {
	raw, err := c.client.Get(ctx, c.entryKey(tokenHash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("session cache: get: %w", err)
	}
	var entry cachedSession
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("session cache: decode: %w", err)
	}
	return &entry, nil
}

func (c *RedisSessionCache) Set(ctx context.Context, tokenHash string, entry *cachedSession, ttl time.Duration) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("session cache: encode: %w", err)
	}
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, c.entryKey(tokenHash), raw, ttl)
	pipe.Set(ctx, c.indexKey(entry.SessionID), tokenHash, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session cache: set: %w", err)
	}
	return nil
}

func (c *RedisSessionCache) Invalidate(ctx context.Context, sessionID uuid.UUID) error {
	tokenHash, err := c.client.Get(ctx, c.indexKey(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("session cache: invalidate lookup: %w", err)
	}
	if err := c.client.Del(ctx, c.entryKey(tokenHash), c.indexKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("session cache: invalidate delete: %w", err)
	}
	return nil
}

func (c *RedisSessionCache) Delete(ctx context.Context, tokenHash string) error {
	entry, err := c.Get(ctx, tokenHash)
	if err != nil {
		return err
	}
	keys := []string{c.entryKey(tokenHash)}
	if entry != nil {
		keys = append(keys, c.indexKey(entry.SessionID))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("session cache: delete: %w", err)
	}
	return nil
}

// noopSessionCache is used when no Redis client is configured; every Resolve
// goes to Postgres.
type noopSessionCache struct{}

func (noopSessionCache) Get(context.Context, string) (*cachedSession, error) { return nil, nil }
func (noopSessionCache) Set(context.Context, string, *cachedSession, time.Duration) error {
	return nil
}
func (noopSessionCache) Invalidate(context.Context, uuid.UUID) error { return nil }
func (noopSessionCache) Delete(context.Context, string) error        { return nil }
