package stepup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eryai/authgate/internal/identity"
)

// fakeFactorStore accepts the code "654321" and rejects everything else.
type fakeFactorStore struct {
	factors    []identity.Factor
	challenges map[uuid.UUID]*identity.Challenge
	elevated   map[uuid.UUID]bool

	listErr error
}

func newFakeFactorStore() *fakeFactorStore {
	return &fakeFactorStore{
		challenges: make(map[uuid.UUID]*identity.Challenge),
		elevated:   make(map[uuid.UUID]bool),
	}
}

func (s *fakeFactorStore) ListFactors(_ context.Context, identityID uuid.UUID) ([]identity.Factor, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []identity.Factor
	for _, f := range s.factors {
		if f.IdentityID == identityID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *fakeFactorStore) Enroll(context.Context, uuid.UUID, string) (*identity.EnrollmentArtifact, error) {
	return nil, errors.New("not used")
}

func (s *fakeFactorStore) Unenroll(context.Context, uuid.UUID, uuid.UUID) error {
	return errors.New("not used")
}

func (s *fakeFactorStore) CreateChallenge(_ context.Context, identityID, factorID uuid.UUID) (*identity.Challenge, error) {
	ch := &identity.Challenge{
		ID:        uuid.New(),
		FactorID:  factorID,
		ExpiresAt: time.Now().UTC().Add(10 * time.Minute),
	}
	s.challenges[ch.ID] = ch
	return ch, nil
}

func (s *fakeFactorStore) VerifyChallenge(_ context.Context, _, sessionID, challengeID uuid.UUID, code string) error {
	if _, ok := s.challenges[challengeID]; !ok {
		return identity.ErrChallengeConsumed
	}
	delete(s.challenges, challengeID)
	if code != "654321" {
		return identity.ErrInvalidCode
	}
	s.elevated[sessionID] = true
	return nil
}

func (s *fakeFactorStore) addFactor(identityID uuid.UUID, status identity.FactorStatus, createdAt time.Time) identity.Factor {
	f := identity.Factor{
		ID:         uuid.New(),
		IdentityID: identityID,
		Type:       identity.FactorTypeTOTP,
		Status:     status,
		CreatedAt:  createdAt,
	}
	s.factors = append(s.factors, f)
	return f
}

func TestLoadPrimaryFactor(t *testing.T) {
	identityID := uuid.New()
	now := time.Now().UTC()

	t.Run("returns verified factor", func(t *testing.T) {
		store := newFakeFactorStore()
		verified := store.addFactor(identityID, identity.FactorVerified, now)

		v := NewVerifier(store, zerolog.Nop())
		got, err := v.LoadPrimaryFactor(context.Background(), identityID)
		require.NoError(t, err)
		assert.Equal(t, verified.ID, got.ID)
	})

	t.Run("skips unverified factors", func(t *testing.T) {
		store := newFakeFactorStore()
		store.addFactor(identityID, identity.FactorUnverified, now)
		verified := store.addFactor(identityID, identity.FactorVerified, now.Add(time.Minute))

		v := NewVerifier(store, zerolog.Nop())
		got, err := v.LoadPrimaryFactor(context.Background(), identityID)
		require.NoError(t, err)
		assert.Equal(t, verified.ID, got.ID)
	})

	t.Run("no factors at all", func(t *testing.T) {
		store := newFakeFactorStore()

		v := NewVerifier(store, zerolog.Nop())
		_, err := v.LoadPrimaryFactor(context.Background(), identityID)
		assert.ErrorIs(t, err, identity.ErrNoFactorEnrolled)
	})

	t.Run("only unverified factors", func(t *testing.T) {
		store := newFakeFactorStore()
		store.addFactor(identityID, identity.FactorUnverified, now)

		v := NewVerifier(store, zerolog.Nop())
		_, err := v.LoadPrimaryFactor(context.Background(), identityID)
		assert.ErrorIs(t, err, identity.ErrNoFactorEnrolled)
	})

	t.Run("list failure", func(t *testing.T) {
		store := newFakeFactorStore()
		store.listErr = errors.New("db down")

		v := NewVerifier(store, zerolog.Nop())
		_, err := v.LoadPrimaryFactor(context.Background(), identityID)
		assert.ErrorIs(t, err, ErrVerificationFailed)
	})
}

func TestVerify(t *testing.T) {
	t.Run("correct code elevates session", func(t *testing.T) {
		store := newFakeFactorStore()
		identityID := uuid.New()
		sessionID := uuid.New()
		store.addFactor(identityID, identity.FactorVerified, time.Now().UTC())

		v := NewVerifier(store, zerolog.Nop())
		err := v.Verify(context.Background(), identityID, sessionID, "654321")
		require.NoError(t, err)
		assert.True(t, store.elevated[sessionID])
	})

	t.Run("wrong code leaves session alone", func(t *testing.T) {
		store := newFakeFactorStore()
		identityID := uuid.New()
		sessionID := uuid.New()
		store.addFactor(identityID, identity.FactorVerified, time.Now().UTC())

		v := NewVerifier(store, zerolog.Nop())
		err := v.Verify(context.Background(), identityID, sessionID, "111111")
		assert.ErrorIs(t, err, identity.ErrInvalidCode)
		assert.False(t, store.elevated[sessionID])
	})

	t.Run("wrong code then right code", func(t *testing.T) {
		store := newFakeFactorStore()
		identityID := uuid.New()
		sessionID := uuid.New()
		store.addFactor(identityID, identity.FactorVerified, time.Now().UTC())

		v := NewVerifier(store, zerolog.Nop())
		require.ErrorIs(t, v.Verify(context.Background(), identityID, sessionID, "111111"), identity.ErrInvalidCode)
		require.NoError(t, v.Verify(context.Background(), identityID, sessionID, "654321"))
		assert.True(t, store.elevated[sessionID])
	})

	t.Run("no enrolled factor", func(t *testing.T) {
		store := newFakeFactorStore()

		v := NewVerifier(store, zerolog.Nop())
		err := v.Verify(context.Background(), uuid.New(), uuid.New(), "654321")
		assert.ErrorIs(t, err, identity.ErrNoFactorEnrolled)
	})
}
