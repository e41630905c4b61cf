package postgres

import (
	"context"
	"database/sql"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	_ "github.com/lib/pq"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/eryai/authgate/internal/security"
)

func setupStore(t *testing.T) (*Store, func()) {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.RunContainer(ctx,
		tcpostgres.WithDatabase("authgate"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp")),
	)
	require.NoError(t, err)

	connString, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connString)
	require.NoError(t, err)

	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "..", "..", "..")
	migrationsDir := filepath.Join(projectRoot, "migrations", "sql")

	require.NoError(t, goose.SetDialect("postgres"))
	require.NoError(t, goose.Up(db, migrationsDir))

	pool, err := pgxpool.New(ctx, connString)
	require.NoError(t, err)

	store := NewStoreFromPool(pool)

	cleanup := func() {
		store.Close()
		pool.Close()
		_ = db.Close()
		require.NoError(t, container.Terminate(ctx))
	}

	return store, cleanup
}

func createTestUser(t *testing.T, store *Store, email string) User {
	t.Helper()
	hash, err := security.HashPassword("Sup3rSecret!")
	require.NoError(t, err)
	user, err := store.CreateUser(context.Background(), CreateUserParams{
		Email:        email,
		DisplayName:  "Test User",
		PasswordHash: hash,
	})
	require.NoError(t, err)
	return user
}

func TestStoreUserLifecycle(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	ctx := context.Background()

	user := createTestUser(t, store, "Alice@Example.com")
	require.Equal(t, "alice@example.com", user.Email)

	// Email lookup is case-insensitive.
	found, err := store.GetUserByEmail(ctx, "ALICE@example.COM")
	require.NoError(t, err)
	require.Equal(t, user.ID, found.ID)

	// Duplicate email is rejected.
	_, err = store.CreateUser(ctx, CreateUserParams{
		Email:        "alice@example.com",
		DisplayName:  "Other",
		PasswordHash: user.PasswordHash,
	})
	require.ErrorIs(t, err, ErrDuplicate)

	// Lockout round trip.
	until := time.Now().UTC().Add(15 * time.Minute)
	require.NoError(t, store.SetUserLockout(ctx, user.ID, &until))
	locked, err := store.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, locked.LockoutUntil)
	require.WithinDuration(t, until, *locked.LockoutUntil, time.Second)

	require.NoError(t, store.SetUserLockout(ctx, user.ID, nil))
	unlocked, err := store.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.Nil(t, unlocked.LockoutUntil)

	require.ErrorIs(t, store.SetUserLockout(ctx, uuid.New(), &until), ErrNotFound)
}

func TestStoreSessionLifecycle(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	ctx := context.Background()
	user := createTestUser(t, store, "session@example.com")

	sess, err := store.CreateSession(ctx, CreateSessionParams{
		UserID:    user.ID,
		TokenHash: "hash-1",
		AAL:       "aal1",
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	})
	require.NoError(t, err)
	require.Equal(t, "aal1", sess.AAL)

	found, err := store.GetSessionByTokenHash(ctx, "hash-1")
	require.NoError(t, err)
	require.Equal(t, sess.ID, found.ID)

	// Elevation flips the assurance level and stamps elevated_at.
	require.NoError(t, store.ElevateSession(ctx, sess.ID, "aal2"))
	elevated, err := store.GetSessionByTokenHash(ctx, "hash-1")
	require.NoError(t, err)
	require.Equal(t, "aal2", elevated.AAL)
	require.NotNil(t, elevated.ElevatedAt)

	// Revocation hides the session from lookups; revoking again is a no-op.
	require.NoError(t, store.RevokeSessionByTokenHash(ctx, "hash-1"))
	_, err = store.GetSessionByTokenHash(ctx, "hash-1")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, store.RevokeSessionByTokenHash(ctx, "hash-1"))
	require.NoError(t, store.RevokeSessionByTokenHash(ctx, "never-existed"))
}

func TestStoreSessionExpiryExcluded(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	ctx := context.Background()
	user := createTestUser(t, store, "expired@example.com")

	_, err := store.CreateSession(ctx, CreateSessionParams{
		UserID:    user.ID,
		TokenHash: "hash-expired",
		AAL:       "aal1",
		ExpiresAt: time.Now().UTC().Add(-time.Minute),
	})
	require.NoError(t, err)

	_, err = store.GetSessionByTokenHash(ctx, "hash-expired")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStoreFactorLifecycle(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	ctx := context.Background()
	user := createTestUser(t, store, "factors@example.com")

	first, err := store.CreateFactor(ctx, CreateFactorParams{
		UserID:       user.ID,
		Type:         "totp",
		FriendlyName: "Phone",
		Secret:       "JBSWY3DPEHPK3PXP",
	})
	require.NoError(t, err)
	require.Equal(t, "unverified", first.Status)

	second, err := store.CreateFactor(ctx, CreateFactorParams{
		UserID:       user.ID,
		Type:         "totp",
		FriendlyName: "Tablet",
		Secret:       "JBSWY3DPEHPK3PXQ",
	})
	require.NoError(t, err)

	// Verifying the second factor makes it sort first.
	require.NoError(t, store.MarkFactorVerified(ctx, second.ID))
	factors, err := store.ListFactors(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, factors, 2)
	require.Equal(t, second.ID, factors[0].ID)
	require.Equal(t, "verified", factors[0].Status)
	require.NotNil(t, factors[0].VerifiedAt)

	// Verification is one-way: marking again changes nothing and does not error.
	require.NoError(t, store.MarkFactorVerified(ctx, second.ID))

	// Ownership is enforced on point lookups.
	_, err = store.GetFactor(ctx, uuid.New(), second.ID)
	require.ErrorIs(t, err, ErrNotFound)

	// Deleting an absent factor is a no-op.
	require.NoError(t, store.DeleteFactor(ctx, user.ID, first.ID))
	require.NoError(t, store.DeleteFactor(ctx, user.ID, first.ID))

	factors, err = store.ListFactors(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, factors, 1)
}

func TestStoreChallengeSingleUse(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	ctx := context.Background()
	user := createTestUser(t, store, "challenge@example.com")

	factor, err := store.CreateFactor(ctx, CreateFactorParams{
		UserID:       user.ID,
		Type:         "totp",
		FriendlyName: "Phone",
		Secret:       "JBSWY3DPEHPK3PXP",
	})
	require.NoError(t, err)

	ch, err := store.CreateChallenge(ctx, CreateChallengeParams{
		FactorID:  factor.ID,
		UserID:    user.ID,
		ExpiresAt: time.Now().UTC().Add(10 * time.Minute),
	})
	require.NoError(t, err)

	// First consumption succeeds, the second finds nothing.
	consumed, err := store.ConsumeChallenge(ctx, user.ID, ch.ID)
	require.NoError(t, err)
	require.Equal(t, factor.ID, consumed.FactorID)

	_, err = store.ConsumeChallenge(ctx, user.ID, ch.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStoreChallengeOwnership(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	ctx := context.Background()
	owner := createTestUser(t, store, "owner@example.com")
	other := createTestUser(t, store, "other@example.com")

	factor, err := store.CreateFactor(ctx, CreateFactorParams{
		UserID:       owner.ID,
		Type:         "totp",
		FriendlyName: "Phone",
		Secret:       "JBSWY3DPEHPK3PXP",
	})
	require.NoError(t, err)

	ch, err := store.CreateChallenge(ctx, CreateChallengeParams{
		FactorID:  factor.ID,
		UserID:    owner.ID,
		ExpiresAt: time.Now().UTC().Add(10 * time.Minute),
	})
	require.NoError(t, err)

	// Another identity cannot consume the challenge, and the failed attempt
	// does not burn it.
	_, err = store.ConsumeChallenge(ctx, other.ID, ch.ID)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = store.ConsumeChallenge(ctx, owner.ID, ch.ID)
	require.NoError(t, err)
}

func TestStoreLeads(t *testing.T) {
	store, cleanup := setupStore(t)
	defer cleanup()

	ctx := context.Background()

	first, err := store.CreateLead(ctx, CreateLeadParams{
		Name:    "Ada Chen",
		Email:   "ada.chen@northwind.io",
		Company: "Northwind",
		Status:  "new",
	})
	require.NoError(t, err)

	_, err = store.CreateLead(ctx, CreateLeadParams{
		Name:    "Luis Romero",
		Email:   "l.romero@contoso.com",
		Company: "Contoso",
		Status:  "contacted",
	})
	require.NoError(t, err)

	// Duplicate lead email is rejected.
	_, err = store.CreateLead(ctx, CreateLeadParams{
		Name:   "Ada Again",
		Email:  "ada.chen@northwind.io",
		Status: "new",
	})
	require.ErrorIs(t, err, ErrDuplicate)

	leads, err := store.ListLeads(ctx)
	require.NoError(t, err)
	require.Len(t, leads, 2)

	lead, err := store.GetLead(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, "Ada Chen", lead.Name)

	_, err = store.GetLead(ctx, uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}
