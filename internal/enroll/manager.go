// Package enroll drives TOTP factor enrollment: beginning an enrollment
// (with lazy cleanup of abandoned attempts) and finalizing it by proving
// possession of the configured authenticator.
//
// Purpose:
//   BeginEnrollment and FinalizeEnrollment are the two halves of the setup
//   flow. Begin discards unverified leftovers from abandoned attempts before
//   creating a fresh factor, so retrying setup is always safe. Finalize
//   issues a challenge against the new factor and verifies the first code,
//   which both marks the factor verified and elevates the session.
//
// Debugging Notes:
//   - A user who abandons setup repeatedly never accumulates factors: every
//     Begin wipes unverified rows first
//   - Finalize with a wrong code burns the challenge; the next attempt gets
//     a fresh one, so "invalid code" never wedges the flow
//
// Error Handling:
//   - ErrEnrollmentFailed wraps provider-side failures; identity sentinel
//     errors (ErrFactorExists, ErrInvalidCode) pass through for callers to
//     branch on
package enroll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eryai/authgate/internal/identity"
	"github.com/eryai/authgate/internal/metrics"
)

// ErrEnrollmentFailed wraps unexpected provider failures during enrollment.
var ErrEnrollmentFailed = errors.New("enroll: enrollment failed")

// Manager orchestrates the enrollment flow against a FactorStore.
type Manager struct {
	factors identity.FactorStore
	logger  zerolog.Logger
}

// NewManager creates an enrollment manager.
func NewManager(factors identity.FactorStore, logger zerolog.Logger) *Manager {
	return &Manager{
		factors: factors,
		logger:  logger.With().Str("component", "enroll").Logger(),
	}
}

// BeginEnrollment starts (or restarts) TOTP enrollment for the identity.
// Unverified factors from abandoned attempts are removed first, then a fresh
// factor is created. Returns ErrFactorExists if a verified factor is already
// enrolled.
func (m *Manager) BeginEnrollment(ctx context.Context, identityID uuid.UUID, friendlyName string) (*identity.EnrollmentArtifact, error) {
	existing, err := m.factors.ListFactors(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("%w: list factors: %v", ErrEnrollmentFailed, err)
	}

	for _, f := range existing {
		if f.Status == identity.FactorVerified {
			return nil, identity.ErrFactorExists
		}
	}
	for _, f := range existing {
		if f.Status != identity.FactorUnverified {
			continue
		}
		if err := m.factors.Unenroll(ctx, identityID, f.ID); err != nil {
			return nil, fmt.Errorf("%w: remove stale factor: %v", ErrEnrollmentFailed, err)
		}
		m.logger.Debug().
			Str("user_id", identityID.String()).
			Str("factor_id", f.ID.String()).
			Msg("removed abandoned unverified factor")
	}

	artifact, err := m.factors.Enroll(ctx, identityID, friendlyName)
	if err != nil {
		if errors.Is(err, identity.ErrFactorExists) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrEnrollmentFailed, err)
	}

	metrics.RecordMFAAttempt("enroll", "started")
	return artifact, nil
}

// FinalizeEnrollment proves possession of the authenticator configured during
// BeginEnrollment. A correct code marks the factor verified and elevates the
// session; a wrong code returns ErrInvalidCode and the caller may retry.
func (m *Manager) FinalizeEnrollment(ctx context.Context, identityID, sessionID, factorID uuid.UUID, code string) error {
	start := time.Now()

	challenge, err := m.factors.CreateChallenge(ctx, identityID, factorID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return err
		}
		return fmt.Errorf("%w: create challenge: %v", ErrEnrollmentFailed, err)
	}

	err = m.factors.VerifyChallenge(ctx, identityID, sessionID, challenge.ID, code)
	metrics.ObserveMFAVerifyDuration("enroll", time.Since(start))

	switch {
	case err == nil:
		metrics.RecordMFAAttempt("enroll", "success")
		m.logger.Info().
			Str("user_id", identityID.String()).
			Str("factor_id", factorID.String()).
			Msg("enrollment finalized")
		return nil
	case errors.Is(err, identity.ErrInvalidCode),
		errors.Is(err, identity.ErrChallengeConsumed):
		metrics.RecordMFAAttempt("enroll", "failure")
		return err
	default:
		metrics.RecordMFAAttempt("enroll", "error")
		return fmt.Errorf("%w: verify: %v", ErrEnrollmentFailed, err)
	}
}
