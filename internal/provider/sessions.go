package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/eryai/authgate/internal/audit"
	"github.com/eryai/authgate/internal/identity"
	"github.com/eryai/authgate/internal/metrics"
	"github.com/eryai/authgate/internal/security"
	"github.com/eryai/authgate/internal/storage/postgres"
)

// Authenticate verifies email/password and issues a new AAL1 session.
// Lockout is enforced before password verification so a locked account leaks
// nothing about credential correctness.
func (p *Provider) Authenticate(ctx context.Context, email, password string) (*identity.Session, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, "", identity.ErrInvalidCredentials
	}

	user, err := p.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			// Burn a comparison so unknown emails cost the same as bad
			// passwords.
			_, _ = security.VerifyPassword(password, dummyHash)
			p.trackFailure(ctx, email, uuid.Nil)
			return nil, "", identity.ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("authenticate: lookup user: %w", err)
	}

	if user.LockoutUntil != nil && user.LockoutUntil.After(time.Now().UTC()) {
		return nil, "", identity.ErrAccountLocked
	}

	ok, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, "", fmt.Errorf("authenticate: verify password: %w", err)
	}
	if !ok {
		p.trackFailure(ctx, email, user.ID)
		return nil, "", identity.ErrInvalidCredentials
	}

	if err := p.lockout.ClearAttempts(ctx, email); err != nil {
		p.logger.Warn().Err(err).Msg("clear lockout attempts failed")
	}

	token, tokenHash, err := newSessionToken()
	if err != nil {
		return nil, "", fmt.Errorf("authenticate: generate token: %w", err)
	}

	sess, err := p.store.CreateSession(ctx, postgres.CreateSessionParams{
		UserID:    user.ID,
		TokenHash: tokenHash,
		AAL:       string(identity.AAL1),
		ExpiresAt: time.Now().UTC().Add(p.cfg.SessionTTL),
	})
	if err != nil {
		return nil, "", fmt.Errorf("authenticate: create session: %w", err)
	}

	return &identity.Session{
		ID: sess.ID,
		Identity: identity.Identity{
			ID:    user.ID,
			Email: user.Email,
		},
		Assurance: identity.AAL1,
		ExpiresAt: sess.ExpiresAt,
	}, token, nil
}

// Resolve maps a session token to current session state. Cached entries are
// short-lived and invalidated on elevation/revocation, so the assurance level
// seen here is current.
func (p *Provider) Resolve(ctx context.Context, token string) (*identity.Session, error) {
	if token == "" {
		return nil, identity.ErrNoSession
	}
	tokenHash := hashToken(token)

	if cached, err := p.cache.Get(ctx, tokenHash); err != nil {
		p.logger.Warn().Err(err).Msg("session cache read failed")
	} else if cached != nil {
		if cached.ExpiresAt.After(time.Now().UTC()) {
			return cached.toSession(), nil
		}
	}

	sess, err := p.store.GetSessionByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, identity.ErrNoSession
		}
		return nil, fmt.Errorf("resolve session: %w", err)
	}

	user, err := p.store.GetUserByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, identity.ErrNoSession
		}
		return nil, fmt.Errorf("resolve session user: %w", err)
	}

	entry := &cachedSession{
		SessionID: sess.ID,
		UserID:    user.ID,
		Email:     user.Email,
		AAL:       sess.AAL,
		ExpiresAt: sess.ExpiresAt,
	}
	if err := p.cache.Set(ctx, tokenHash, entry, sessionCacheTTL); err != nil {
		p.logger.Warn().Err(err).Msg("session cache write failed")
	}

	return entry.toSession(), nil
}

// Elevate raises the session to AAL2 and drops any cached copy so the next
// Resolve sees the new level.
func (p *Provider) Elevate(ctx context.Context, sessionID uuid.UUID) error {
	if err := p.store.ElevateSession(ctx, sessionID, string(identity.AAL2)); err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return identity.ErrNoSession
		}
		return fmt.Errorf("elevate session: %w", err)
	}
	if err := p.cache.Invalidate(ctx, sessionID); err != nil {
		p.logger.Warn().Err(err).Msg("session cache invalidate failed")
	}
	metrics.RecordSessionElevated()
	return nil
}

// Revoke ends the session behind the token. Unknown tokens are a no-op.
func (p *Provider) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	tokenHash := hashToken(token)
	if err := p.store.RevokeSessionByTokenHash(ctx, tokenHash); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	if err := p.cache.Delete(ctx, tokenHash); err != nil {
		p.logger.Warn().Err(err).Msg("session cache delete failed")
	}
	return nil
}

// trackFailure counts a failed login and applies lockout when the threshold
// trips. Lockout applies to real accounts only; the counter still advances
// for unknown emails so probing is visible in Redis.
func (p *Provider) trackFailure(ctx context.Context, email string, userID uuid.UUID) {
	count, shouldLock, err := p.lockout.TrackFailedAttempt(ctx, email)
	if err != nil {
		p.logger.Warn().Err(err).Msg("lockout tracking failed")
		return
	}
	if !shouldLock || userID == uuid.Nil {
		return
	}
	until := p.lockout.LockoutUntil()
	if err := p.store.SetUserLockout(ctx, userID, &until); err != nil {
		p.logger.Error().Err(err).Str("user_id", userID.String()).Msg("apply lockout failed")
		return
	}
	metrics.RecordLockout()

	event := audit.BuildEvent(userID, audit.ActorTypeSystem, audit.ActionAccountLockout, audit.TargetTypeUser, &userID)
	event.Metadata = map[string]any{
		"failed_attempts": count,
		"lockout_until":   until,
	}
	if err := p.audit.Emit(ctx, event); err != nil {
		p.logger.Warn().Err(err).Str("user_id", userID.String()).Msg("audit emit failed")
	}

	p.logger.Warn().
		Str("user_id", userID.String()).
		Int("failed_attempts", count).
		Time("lockout_until", until).
		Msg("account locked out")
}

// dummyHash is a valid Argon2id hash of a random string, used to equalize
// timing for unknown emails.
var dummyHash = func() string {
	h, err := security.HashPassword("authgate-timing-equalizer")
	if err != nil {
		panic(err)
	}
	return h
}()
