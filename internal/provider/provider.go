// Package provider is the identity provider behind the gateway: it implements
// the identity.SessionAuthority and identity.FactorStore contracts on top of
// Postgres, an optional Redis session cache, and the security primitives.
//
// Purpose:
//   Password verification, session issuance and elevation, TOTP factor
//   enrollment, and one-time challenge verification all live here. The gate
//   and the MFA flows only ever see the interfaces; this package owns every
//   mutation of session and factor state.
//
// Dependencies:
//   - internal/storage/postgres: durable state
//   - internal/security: Argon2id, TOTP, lockout tracking
//   - internal/audit: lockout audit events
//   - github.com/redis/go-redis/v9: read-through session cache (optional)
//
// Key Responsibilities:
//   - Authenticate: email/password → new AAL1 session + opaque token
//   - Resolve: token → current session state, cache-aware, fresh assurance
//   - Elevate/Revoke: session state transitions with cache invalidation
//   - Enroll/Unenroll/CreateChallenge/VerifyChallenge: the factor lifecycle
//
// Debugging Notes:
//   - Session tokens are 32 random bytes, base64url on the wire, stored only
//     as SHA-256 hex; a leaked database row cannot be replayed as a cookie
//   - The session cache TTL is short (30s) and elevation/revocation delete
//     the cached entry through a session-id index key, so assurance changes
//     are visible immediately
//   - Challenge TTL is 10 minutes; consumption is atomic in the store
//
// Thread Safety:
//   - Provider is immutable after construction and safe for concurrent use
//
// Error Handling:
//   - All contract methods return identity package sentinel errors; storage
//     errors are wrapped, never swallowed
package provider

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"time"

	"github.com/rs/zerolog"

	"github.com/eryai/authgate/internal/audit"
	"github.com/eryai/authgate/internal/security"
	"github.com/eryai/authgate/internal/storage/postgres"
)

const (
	// DefaultSessionTTL bounds a session's lifetime absent configuration.
	DefaultSessionTTL = 12 * time.Hour
	// ChallengeTTL is how long an issued challenge stays redeemable.
	ChallengeTTL = 10 * time.Minute
	// sessionCacheTTL bounds staleness of cached session reads.
	sessionCacheTTL = 30 * time.Second

	tokenBytes = 32
)

// Config holds provider construction parameters.
type Config struct {
	// SessionTTL is the server-side session lifetime.
	SessionTTL time.Duration
	// Issuer is the TOTP issuer shown in authenticator apps.
	Issuer string
}

// Provider implements identity.SessionAuthority and identity.FactorStore.
type Provider struct {
	store   *postgres.Store
	cache   SessionCache
	lockout *security.LockoutTracker
	audit   audit.Emitter
	cfg     Config
	logger  zerolog.Logger
}

// New constructs a provider. cache, lockout, and emitter may be nil, in which
// case session reads always hit Postgres, lockout is disabled, and audit
// events are discarded.
func New(store *postgres.Store, cache SessionCache, lockout *security.LockoutTracker, emitter audit.Emitter, cfg Config, logger zerolog.Logger) *Provider {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "EryAI Dashboard"
	}
	if cache == nil {
		cache = noopSessionCache{}
	}
	if lockout == nil {
		lockout = security.NewLockoutTracker(nil, security.LockoutConfig{})
	}
	if emitter == nil {
		emitter = audit.NewNoopEmitter()
	}
	return &Provider{
		store:   store,
		cache:   cache,
		lockout: lockout,
		audit:   emitter,
		cfg:     cfg,
		logger:  logger.With().Str("component", "provider").Logger(),
	}
}

// newSessionToken returns a fresh opaque token and its storage hash.
func newSessionToken() (token, tokenHash string, err error) {
	raw := make([]byte, tokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	token = base64.RawURLEncoding.EncodeToString(raw)
	return token, hashToken(token), nil
}

// hashToken maps a wire token to its storage form.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
