package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/eryai/authgate/internal/identity"
	"github.com/eryai/authgate/internal/security"
	"github.com/eryai/authgate/internal/storage/postgres"
)

// ListFactors returns the identity's factors, verified first.
func (p *Provider) ListFactors(ctx context.Context, identityID uuid.UUID) ([]identity.Factor, error) {
	rows, err := p.store.ListFactors(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("list factors: %w", err)
	}
	out := make([]identity.Factor, 0, len(rows))
	for _, row := range rows {
		out = append(out, toFactor(row))
	}
	return out, nil
}

// Enroll creates an unverified TOTP factor and returns the artifact the
// caller needs to configure an authenticator app. An existing verified
// factor blocks enrollment; unverified leftovers do not, they are the
// caller's to clean up.
func (p *Provider) Enroll(ctx context.Context, identityID uuid.UUID, friendlyName string) (*identity.EnrollmentArtifact, error) {
	existing, err := p.store.ListFactors(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("enroll: list factors: %w", err)
	}
	for _, f := range existing {
		if f.Status == string(identity.FactorVerified) {
			return nil, identity.ErrFactorExists
		}
	}

	user, err := p.store.GetUserByID(ctx, identityID)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, identity.ErrNotFound
		}
		return nil, fmt.Errorf("enroll: lookup user: %w", err)
	}

	key, err := security.GenerateTOTPKey(p.cfg.Issuer, user.Email)
	if err != nil {
		return nil, fmt.Errorf("enroll: generate totp key: %w", err)
	}

	factor, err := p.store.CreateFactor(ctx, postgres.CreateFactorParams{
		UserID:       identityID,
		Type:         string(identity.FactorTypeTOTP),
		FriendlyName: friendlyName,
		Secret:       key.Secret,
	})
	if err != nil {
		return nil, fmt.Errorf("enroll: create factor: %w", err)
	}

	p.logger.Info().
		Str("user_id", identityID.String()).
		Str("factor_id", factor.ID.String()).
		Msg("totp factor enrolled")

	return &identity.EnrollmentArtifact{
		FactorID:   factor.ID,
		Secret:     key.Secret,
		OTPAuthURL: key.URL,
		QRCode:     key.QRCodePNG,
	}, nil
}

// Unenroll removes a factor. An absent factor is a no-op.
func (p *Provider) Unenroll(ctx context.Context, identityID, factorID uuid.UUID) error {
	if err := p.store.DeleteFactor(ctx, identityID, factorID); err != nil {
		return fmt.Errorf("unenroll: %w", err)
	}
	return nil
}

// CreateChallenge issues a one-time challenge against the factor. The factor
// must belong to the identity.
func (p *Provider) CreateChallenge(ctx context.Context, identityID, factorID uuid.UUID) (*identity.Challenge, error) {
	if _, err := p.store.GetFactor(ctx, identityID, factorID); err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, identity.ErrNotFound
		}
		return nil, fmt.Errorf("create challenge: lookup factor: %w", err)
	}

	ch, err := p.store.CreateChallenge(ctx, postgres.CreateChallengeParams{
		FactorID:  factorID,
		UserID:    identityID,
		ExpiresAt: time.Now().UTC().Add(ChallengeTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("create challenge: %w", err)
	}

	return &identity.Challenge{
		ID:        ch.ID,
		FactorID:  ch.FactorID,
		ExpiresAt: ch.ExpiresAt,
	}, nil
}

// VerifyChallenge consumes the challenge and checks the TOTP code. The
// challenge is consumed first, atomically, so a wrong code still burns it.
// On success the factor is marked verified and the session is elevated.
func (p *Provider) VerifyChallenge(ctx context.Context, identityID, sessionID, challengeID uuid.UUID, code string) error {
	ch, err := p.store.ConsumeChallenge(ctx, identityID, challengeID)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return identity.ErrChallengeConsumed
		}
		return fmt.Errorf("verify challenge: consume: %w", err)
	}
	if ch.ExpiresAt.Before(time.Now().UTC()) {
		return identity.ErrChallengeConsumed
	}

	factor, err := p.store.GetFactor(ctx, identityID, ch.FactorID)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return identity.ErrNotFound
		}
		return fmt.Errorf("verify challenge: lookup factor: %w", err)
	}

	if !security.ValidateTOTP(factor.Secret, code) {
		return identity.ErrInvalidCode
	}

	if factor.Status != string(identity.FactorVerified) {
		if err := p.store.MarkFactorVerified(ctx, factor.ID); err != nil {
			return fmt.Errorf("verify challenge: mark verified: %w", err)
		}
	}

	if err := p.Elevate(ctx, sessionID); err != nil {
		return fmt.Errorf("verify challenge: elevate: %w", err)
	}

	p.logger.Info().
		Str("user_id", identityID.String()).
		Str("factor_id", factor.ID.String()).
		Str("session_id", sessionID.String()).
		Msg("factor verified, session elevated")

	return nil
}

func toFactor(row postgres.Factor) identity.Factor {
	return identity.Factor{
		ID:           row.ID,
		IdentityID:   row.UserID,
		Type:         identity.FactorType(row.Type),
		Status:       identity.FactorStatus(row.Status),
		FriendlyName: row.FriendlyName,
		CreatedAt:    row.CreatedAt,
		VerifiedAt:   row.VerifiedAt,
	}
}
