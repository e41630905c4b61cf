package provider

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*RedisSessionCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisSessionCache(client), mr
}

func TestRedisSessionCache_SetGet(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	entry := &cachedSession{
		SessionID: uuid.New(),
		UserID:    uuid.New(),
		Email:     "alice@example.com",
		AAL:       "aal1",
		ExpiresAt: time.Now().UTC().Add(time.Hour).Truncate(time.Second),
	}

	require.NoError(t, cache.Set(ctx, "tok-hash-1", entry, time.Minute))

	got, err := cache.Get(ctx, "tok-hash-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entry.SessionID, got.SessionID)
	assert.Equal(t, entry.Email, got.Email)
	assert.Equal(t, "aal1", got.AAL)
}

func TestRedisSessionCache_GetMiss(t *testing.T) {
	cache, _ := newTestCache(t)

	got, err := cache.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisSessionCache_InvalidateBySessionID(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	sessionID := uuid.New()
	entry := &cachedSession{
		SessionID: sessionID,
		UserID:    uuid.New(),
		Email:     "alice@example.com",
		AAL:       "aal1",
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, cache.Set(ctx, "tok-hash-2", entry, time.Minute))

	// Invalidation only knows the session id; the index key must find the
	// entry.
	require.NoError(t, cache.Invalidate(ctx, sessionID))

	got, err := cache.Get(ctx, "tok-hash-2")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisSessionCache_InvalidateUnknownSession(t *testing.T) {
	cache, _ := newTestCache(t)

	assert.NoError(t, cache.Invalidate(context.Background(), uuid.New()))
}

func TestRedisSessionCache_Delete(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	sessionID := uuid.New()
	entry := &cachedSession{
		SessionID: sessionID,
		UserID:    uuid.New(),
		Email:     "bob@example.com",
		AAL:       "aal2",
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, cache.Set(ctx, "tok-hash-3", entry, time.Minute))
	require.NoError(t, cache.Delete(ctx, "tok-hash-3"))

	got, err := cache.Get(ctx, "tok-hash-3")
	require.NoError(t, err)
	assert.Nil(t, got)

	// The index key goes with the entry.
	assert.False(t, mr.Exists(cache.indexKey(sessionID)))
}

func TestRedisSessionCache_EntryExpires(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	entry := &cachedSession{
		SessionID: uuid.New(),
		UserID:    uuid.New(),
		Email:     "carol@example.com",
		AAL:       "aal1",
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, cache.Set(ctx, "tok-hash-4", entry, 10*time.Second))

	mr.FastForward(11 * time.Second)

	got, err := cache.Get(ctx, "tok-hash-4")
	require.NoError(t, err)
	assert.Nil(t, got)
}
