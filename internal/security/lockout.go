package security

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockoutConfig bounds the failed-login tracking window.
type LockoutConfig struct {
	// MaxAttempts is the number of failures inside the window that triggers
	// a lockout.
	MaxAttempts int
	// LockoutDuration is how long a triggered lockout lasts.
	LockoutDuration time.Duration
	// WindowDuration is the sliding window failures are counted over.
	WindowDuration time.Duration
}

// LockoutTracker counts failed login attempts per account in Redis.
// When the tracker has no Redis client it degrades to a no-op: logins are
// never locked out, which matches running without Redis in development.
type LockoutTracker struct {
	client *redis.Client
	cfg    LockoutConfig
}

// NewLockoutTracker creates a tracker; client may be nil.
func NewLockoutTracker(client *redis.Client, cfg LockoutConfig) *LockoutTracker {
	return &LockoutTracker{client: client, cfg: cfg}
}

func (t *LockoutTracker) key(emailOrID string) string {
	return fmt.Sprintf("authgate:lockout:%s", emailOrID)
}

// TrackFailedAttempt increments the failure counter for the account and
// reports the current count and whether lockout should be triggered.
func (t *LockoutTracker) TrackFailedAttempt(ctx context.Context, emailOrID string) (int, bool, error) {
	if t.client == nil {
		return 0, false, nil
	}

	key := t.key(emailOrID)
	pipe := t.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, t.cfg.WindowDuration)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, false, fmt.Errorf("lockout tracker: increment counter: %w", err)
	}

	count := incr.Val()
	return int(count), count >= int64(t.cfg.MaxAttempts), nil
}

// ClearAttempts resets the failure counter, called on successful login.
func (t *LockoutTracker) ClearAttempts(ctx context.Context, emailOrID string) error {
	if t.client == nil {
		return nil
	}
	return t.client.Del(ctx, t.key(emailOrID)).Err()
}

// LockoutUntil returns the expiry of a lockout triggered now.
func (t *LockoutTracker) LockoutUntil() time.Time {
	return time.Now().UTC().Add(t.cfg.LockoutDuration)
}
