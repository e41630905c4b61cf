// Package stepup implements session step-up: proving an already-enrolled
// factor to raise an AAL1 session to AAL2.
//
// Purpose:
//   The verify flow behind /mfa/verify. LoadPrimaryFactor picks the factor
//   the user will be challenged against; Verify issues a challenge and checks
//   the submitted code, elevating the session on success.
//
// Debugging Notes:
//   - LoadPrimaryFactor returns ErrNoFactorEnrolled for identities with no
//     verified factor; the caller sends them to enrollment instead
//   - Each Verify attempt consumes its own challenge, so repeated wrong codes
//     never interfere with each other
package stepup

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

// ErrVerificationFailed wraps unexpected provider failures during step-up.
var ErrVerificationFailed = errors.New("stepup: verification failed")

// Verifier orchestrates the step-up flow against a FactorStore.
type Verifier struct {
	factors identity.FactorStore
	logger  zerolog.Logger
}

// NewVerifier creates a step-up verifier.
func NewVerifier(factors identity.FactorStore, logger zerolog.Logger) *Verifier {
	return &Verifier{
		factors: factors,
		logger:  logger.With().Str("component", "stepup").Logger(),
	}
}

// LoadPrimaryFactor returns the factor to challenge: the first verified TOTP
// factor. Returns ErrNoFactorEnrolled when the identity has none.
func (v *Verifier) LoadPrimaryFactor(ctx context.Context, identityID uuid.UUID) (*identity.Factor, error) {
	factors, err := v.factors.ListFactors(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("%w: list factors: %v", ErrVerificationFailed, err)
	}
	for i := range factors {
		f := &factors[i]
		if f.Type == identity.FactorTypeTOTP && f.Status == identity.FactorVerified {
			return f, nil
		}
	}
	return nil, identity.ErrNoFactorEnrolled
}

// Verify challenges the identity's primary factor with the submitted code and
// elevates the session on success.
func (v *Verifier) Verify(ctx context.Context, identityID, sessionID uuid.UUID, code string) error {
	factor, err := v.LoadPrimaryFactor(ctx, identityID)
	if err != nil {
		return err
	}

	start := time.Now()

	challenge, err := v.factors.CreateChallenge(ctx, identityID, factor.ID)
	if err != nil {
		return fmt.Errorf("%w: create challenge: %v", ErrVerificationFailed, err)
	}

	err = v.factors.VerifyChallenge(ctx, identityID, sessionID, challenge.ID, code)
	metrics.ObserveMFAVerifyDuration("step_up", time.Since(start))

	switch {
	case err == nil:
		metrics.RecordMFAAttempt("step_up", "success")
		v.logger.Info().
			Str("user_id", identityID.String()).
			Str("session_id", sessionID.String()).
			Msg("step-up verified")
		return nil
	case errors.Is(err, identity.ErrInvalidCode),
		errors.Is(err, identity.ErrChallengeConsumed):
		metrics.RecordMFAAttempt("step_up", "failure")
		return err
	default:
		metrics.RecordMFAAttempt("step_up", "error")
		return fmt.Errorf("%w: verify: %v", ErrVerificationFailed, err)
	}
}
