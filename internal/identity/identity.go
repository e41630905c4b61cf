// Package identity defines the contracts between the request gate, the MFA
// flows, and the identity provider that backs them.
//
// Purpose:
//   This package declares the SessionAuthority and FactorStore interfaces the
//   gateway core consumes, together with the shared domain types (Identity,
//   Session, Factor, Challenge) and the sentinel errors callers branch on.
//   The core never talks to storage directly; it orchestrates calls against
//   these two capabilities and interprets their results.
//
// Key Responsibilities:
//   - SessionAuthority: authenticate credentials, resolve a session token to an
//     identity plus assurance level, elevate a session after factor verification
//   - FactorStore: list/enroll/unenroll factors, issue challenges, verify codes
//   - Domain types shared by the gate, enrollment, and step-up packages
//   - Sentinel errors for credential, factor, and challenge failures
//
// Debugging Notes:
//   - Assurance level is authoritative in the provider, never cached by callers;
//     AAL1 means password only, AAL2 means password plus verified second factor
//   - A Challenge is consumed by exactly one Verify call, success or failure;
//     a second Verify against the same challenge fails with ErrChallengeConsumed
//   - Factor status only ever moves unverified → verified, never back
//
// Thread Safety:
//   - Implementations must be safe for concurrent use; the types in this
//     package are plain values
//
// Error Handling:
//   - All operations return sentinel errors from this package so callers can
//     use errors.Is without knowing the provider implementation
package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// AssuranceLevel classifies how strongly a session's identity was proven.
type AssuranceLevel string

const (
	// AAL1 is a password-only session.
	AAL1 AssuranceLevel = "aal1"
	// AAL2 is a session elevated by a verified second factor.
	AAL2 AssuranceLevel = "aal2"
)

// FactorType is the kind of second factor. Only TOTP is supported.
type FactorType string

// FactorTypeTOTP is a time-based one-time password factor (RFC 6238).
const FactorTypeTOTP FactorType = "totp"

// FactorStatus is the verification state of an enrolled factor.
type FactorStatus string

const (
	// FactorUnverified is a factor created by enrollment but not yet proven.
	FactorUnverified FactorStatus = "unverified"
	// FactorVerified is a factor proven by a successful challenge/verify.
	FactorVerified FactorStatus = "verified"
)

// Identity is an opaque principal reference owned by the provider.
type Identity struct {
	ID    uuid.UUID
	Email string
}

// Session associates a session token with exactly one identity and carries the
// current assurance level. The level can change out of band, so callers must
// re-resolve it on every request rather than hold on to a Session value.
type Session struct {
	ID        uuid.UUID
	Identity  Identity
	Assurance AssuranceLevel
	ExpiresAt time.Time
}

// Elevated reports whether the session carries a verified second factor.
func (s *Session) Elevated() bool {
	return s != nil && s.Assurance == AAL2
}

// Factor is a registered second-authentication mechanism bound to an identity.
type Factor struct {
	ID           uuid.UUID
	IdentityID   uuid.UUID
	Type         FactorType
	Status       FactorStatus
	FriendlyName string
	CreatedAt    time.Time
	VerifiedAt   *time.Time
}

// Challenge is a one-time proof-of-possession request issued against a factor.
// It is ephemeral: the provider discards it on the first verify attempt or when
// its TTL lapses.
type Challenge struct {
	ID        uuid.UUID
	FactorID  uuid.UUID
	ExpiresAt time.Time
}

// EnrollmentArtifact is what a caller needs to finish enrolling a TOTP factor:
// the shared secret for manual entry, the otpauth:// URI, and a scannable QR
// payload (base64 PNG data URI). The gateway passes these through unmodified.
type EnrollmentArtifact struct {
	FactorID   uuid.UUID `json:"factor_id"`
	Secret     string    `json:"secret"`
	OTPAuthURL string    `json:"otpauth_url"`
	QRCode     string    `json:"qr_code"`
}

var (
	// ErrInvalidCredentials is returned when email/password authentication fails.
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	// ErrAccountLocked is returned when too many failed logins locked the account.
	ErrAccountLocked = errors.New("identity: account locked")
	// ErrNoSession is returned when a session token resolves to nothing
	// (unknown, expired, or revoked).
	ErrNoSession = errors.New("identity: no session")
	// ErrInvalidCode is returned when a challenge verify rejects the submitted
	// code. The factor and session are unchanged; the caller may retry with a
	// fresh code.
	ErrInvalidCode = errors.New("identity: invalid code")
	// ErrChallengeConsumed is returned when a verify references a challenge that
	// was already consumed or has expired. Independent of code correctness.
	ErrChallengeConsumed = errors.New("identity: challenge consumed or expired")
	// ErrNoFactorEnrolled is returned when elevation is requested but the
	// identity has no verified factor. Callers route to enrollment, not verify.
	ErrNoFactorEnrolled = errors.New("identity: no verified factor enrolled")
	// ErrFactorExists is returned when enrollment is rejected because the
	// identity already holds a verified factor.
	ErrFactorExists = errors.New("identity: verified factor already enrolled")
	// ErrNotFound is returned when a referenced factor or challenge does not
	// exist or belongs to another identity.
	ErrNotFound = errors.New("identity: not found")
)

// SessionAuthority issues, resolves, elevates, and revokes sessions.
type SessionAuthority interface {
	// Authenticate verifies email/password and creates a new AAL1 session,
	// returning its opaque token for the cookie.
	Authenticate(ctx context.Context, email, password string) (*Session, string, error)
	// Resolve maps a session token to the current session state. Returns
	// ErrNoSession for unknown, expired, or revoked tokens. The assurance level
	// in the result is fresh as of this call.
	Resolve(ctx context.Context, token string) (*Session, error)
	// Elevate raises the session to AAL2. Called by the provider-side verify
	// flows after a successful factor proof.
	Elevate(ctx context.Context, sessionID uuid.UUID) error
	// Revoke ends the session. Revoking an unknown session is a no-op.
	Revoke(ctx context.Context, token string) error
}

// FactorStore manages second factors and their proof-of-possession challenges.
type FactorStore interface {
	// ListFactors returns all factors for the identity, verified first,
	// then by creation time.
	ListFactors(ctx context.Context, identityID uuid.UUID) ([]Factor, error)
	// Enroll creates a new unverified TOTP factor and returns the artifact the
	// caller needs to configure an authenticator. Fails with ErrFactorExists
	// when a verified factor is already enrolled.
	Enroll(ctx context.Context, identityID uuid.UUID, friendlyName string) (*EnrollmentArtifact, error)
	// Unenroll removes a factor. Removing an already-absent factor is a no-op.
	Unenroll(ctx context.Context, identityID, factorID uuid.UUID) error
	// CreateChallenge issues a one-time challenge against the factor.
	CreateChallenge(ctx context.Context, identityID, factorID uuid.UUID) (*Challenge, error)
	// VerifyChallenge consumes the challenge and checks the code. On success the
	// factor becomes verified (if it was not already) and the bound session is
	// elevated to AAL2. On failure nothing changes apart from the consumed
	// challenge. Returns ErrInvalidCode or ErrChallengeConsumed.
	VerifyChallenge(ctx context.Context, identityID, sessionID, challengeID uuid.UUID, code string) error
}
