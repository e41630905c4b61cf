// Package postgres is the persistence layer behind the identity provider:
// users, sessions, MFA factors, one-time challenges, and the leads the
// dashboard serves.
//
// Purpose:
//
//	Thin pgx-backed data access. Business rules (which factor may be enrolled,
//	when a session elevates) live in internal/provider; this package only
//	guarantees the storage-level invariants: unique emails, unique session
//	token hashes, and single-consumption of challenge rows.
//
// Debugging Notes:
//   - ConsumeChallenge is DELETE ... RETURNING, so a challenge row can be
//     handed out exactly once no matter how many verify calls race for it
//   - Session lookups exclude revoked and expired rows at the SQL level
//   - All timestamps are stored as timestamptz in UTC
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides Postgres-backed persistence for the gateway.
type Store struct {
	pool     *pgxpool.Pool
	ownsPool bool
}

// NewStore creates a store from a connection string and takes ownership of
// the resulting pool.
func NewStore(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	return &Store{pool: pool, ownsPool: true}, nil
}

// NewStoreFromPool wraps an existing pgx pool.
func NewStoreFromPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close closes the underlying pool if the store owns it.
func (s *Store) Close() {
	if s.ownsPool && s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks connectivity for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- users ---

// CreateUser inserts a new user row.
func (s *Store) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	id := params.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (user_id, email, display_name, password_hash)
		VALUES ($1, LOWER($2), $3, $4)
		RETURNING user_id, email, display_name, password_hash, lockout_until, created_at, updated_at
	`, id, params.Email, params.DisplayName, params.PasswordHash)
	u, err := scanUser(row)
	if err != nil {
		return User{}, mapPgError(err)
	}
	return u, nil
}

// GetUserByEmail retrieves a user by email (case-insensitive).
func (s *Store) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, email, display_name, password_hash, lockout_until, created_at, updated_at
		FROM users WHERE email = LOWER($1)
	`, email)
	u, err := scanUser(row)
	if err != nil {
		return User{}, mapPgError(err)
	}
	return u, nil
}

// GetUserByID retrieves a user by ID.
func (s *Store) GetUserByID(ctx context.Context, userID uuid.UUID) (User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, email, display_name, password_hash, lockout_until, created_at, updated_at
		FROM users WHERE user_id = $1
	`, userID)
	u, err := scanUser(row)
	if err != nil {
		return User{}, mapPgError(err)
	}
	return u, nil
}

// UpdateUserPassword replaces the stored password hash.
func (s *Store) UpdateUserPassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	cmd, err := s.pool.Exec(ctx, `
		UPDATE users SET password_hash = $2, updated_at = now() WHERE user_id = $1
	`, userID, passwordHash)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetUserLockout sets or clears the lockout expiry on a user.
func (s *Store) SetUserLockout(ctx context.Context, userID uuid.UUID, until *time.Time) error {
	cmd, err := s.pool.Exec(ctx, `
		UPDATE users SET lockout_until = $2, updated_at = now() WHERE user_id = $1
	`, userID, until)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- sessions ---

// CreateSession inserts a new session row.
func (s *Store) CreateSession(ctx context.Context, params CreateSessionParams) (Session, error) {
	id := params.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO sessions (session_id, user_id, token_hash, aal, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING session_id, user_id, token_hash, aal, expires_at, elevated_at, revoked_at, created_at
	`, id, params.UserID, params.TokenHash, params.AAL, params.ExpiresAt)
	sess, err := scanSession(row)
	if err != nil {
		return Session{}, mapPgError(err)
	}
	return sess, nil
}

// GetSessionByTokenHash retrieves a live (unrevoked, unexpired) session by its
// token hash.
func (s *Store) GetSessionByTokenHash(ctx context.Context, tokenHash string) (Session, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT session_id, user_id, token_hash, aal, expires_at, elevated_at, revoked_at, created_at
		FROM sessions
		WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > now()
	`, tokenHash)
	sess, err := scanSession(row)
	if err != nil {
		return Session{}, mapPgError(err)
	}
	return sess, nil
}

// ElevateSession raises a live session to the given assurance level.
func (s *Store) ElevateSession(ctx context.Context, sessionID uuid.UUID, aal string) error {
	cmd, err := s.pool.Exec(ctx, `
		UPDATE sessions
		SET aal = $2, elevated_at = now()
		WHERE session_id = $1 AND revoked_at IS NULL AND expires_at > now()
	`, sessionID, aal)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RevokeSessionByTokenHash marks the session revoked. Revoking an unknown or
// already-revoked session is a no-op.
func (s *Store) RevokeSessionByTokenHash(ctx context.Context, tokenHash string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE sessions SET revoked_at = now()
		WHERE token_hash = $1 AND revoked_at IS NULL
	`, tokenHash)
	return err
}

// --- factors ---

// ListFactors returns all factors for a user, verified first, then oldest
// first.
func (s *Store) ListFactors(ctx context.Context, userID uuid.UUID) ([]Factor, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT factor_id, user_id, factor_type, status, friendly_name, secret, created_at, verified_at
		FROM mfa_factors
		WHERE user_id = $1
		ORDER BY (status = 'verified') DESC, created_at ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Factor
	for rows.Next() {
		f, err := scanFactor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// GetFactor retrieves a factor owned by the given user.
func (s *Store) GetFactor(ctx context.Context, userID, factorID uuid.UUID) (Factor, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT factor_id, user_id, factor_type, status, friendly_name, secret, created_at, verified_at
		FROM mfa_factors
		WHERE factor_id = $1 AND user_id = $2
	`, factorID, userID)
	f, err := scanFactor(row)
	if err != nil {
		return Factor{}, mapPgError(err)
	}
	return f, nil
}

// CreateFactor inserts a new unverified factor.
func (s *Store) CreateFactor(ctx context.Context, params CreateFactorParams) (Factor, error) {
	id := params.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO mfa_factors (factor_id, user_id, factor_type, status, friendly_name, secret)
		VALUES ($1, $2, $3, 'unverified', $4, $5)
		RETURNING factor_id, user_id, factor_type, status, friendly_name, secret, created_at, verified_at
	`, id, params.UserID, params.Type, params.FriendlyName, params.Secret)
	f, err := scanFactor(row)
	if err != nil {
		return Factor{}, mapPgError(err)
	}
	return f, nil
}

// DeleteFactor removes a factor and its outstanding challenges. Deleting an
// absent factor is a no-op.
func (s *Store) DeleteFactor(ctx context.Context, userID, factorID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM mfa_factors WHERE factor_id = $1 AND user_id = $2
	`, factorID, userID)
	return err
}

// MarkFactorVerified transitions a factor to verified. Already-verified
// factors keep their original verified_at.
func (s *Store) MarkFactorVerified(ctx context.Context, factorID uuid.UUID) error {
	cmd, err := s.pool.Exec(ctx, `
		UPDATE mfa_factors
		SET status = 'verified', verified_at = now()
		WHERE factor_id = $1 AND status = 'unverified'
	`, factorID)
	if err != nil {
		return err
	}
	_ = cmd // zero rows means the factor was already verified; not an error
	return nil
}

// --- challenges ---

// CreateChallenge inserts a one-time challenge row.
func (s *Store) CreateChallenge(ctx context.Context, params CreateChallengeParams) (Challenge, error) {
	id := params.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO mfa_challenges (challenge_id, factor_id, user_id, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING challenge_id, factor_id, user_id, expires_at, created_at
	`, id, params.FactorID, params.UserID, params.ExpiresAt)
	c, err := scanChallenge(row)
	if err != nil {
		return Challenge{}, mapPgError(err)
	}
	return c, nil
}

// ConsumeChallenge atomically removes and returns the challenge. The second
// caller, and any caller after expiry handling, gets ErrNotFound: a challenge
// row is handed out exactly once.
func (s *Store) ConsumeChallenge(ctx context.Context, userID, challengeID uuid.UUID) (Challenge, error) {
	row := s.pool.QueryRow(ctx, `
		DELETE FROM mfa_challenges
		WHERE challenge_id = $1 AND user_id = $2
		RETURNING challenge_id, factor_id, user_id, expires_at, created_at
	`, challengeID, userID)
	c, err := scanChallenge(row)
	if err != nil {
		return Challenge{}, mapPgError(err)
	}
	return c, nil
}

// --- leads ---

// CreateLead inserts a lead row.
func (s *Store) CreateLead(ctx context.Context, params CreateLeadParams) (Lead, error) {
	id := params.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	status := params.Status
	if status == "" {
		status = "new"
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO leads (lead_id, name, email, company, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING lead_id, name, email, company, status, created_at, updated_at
	`, id, params.Name, params.Email, params.Company, status)
	l, err := scanLead(row)
	if err != nil {
		return Lead{}, mapPgError(err)
	}
	return l, nil
}

// ListLeads returns all leads, newest first.
func (s *Store) ListLeads(ctx context.Context) ([]Lead, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT lead_id, name, email, company, status, created_at, updated_at
		FROM leads ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// GetLead retrieves one lead by ID.
func (s *Store) GetLead(ctx context.Context, leadID uuid.UUID) (Lead, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT lead_id, name, email, company, status, created_at, updated_at
		FROM leads WHERE lead_id = $1
	`, leadID)
	l, err := scanLead(row)
	if err != nil {
		return Lead{}, mapPgError(err)
	}
	return l, nil
}

// --- scanning ---

func scanUser(row pgx.Row) (User, error) {
	var (
		u       User
		lockout pgtype.Timestamptz
	)
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.DisplayName,
		&u.PasswordHash,
		&lockout,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return User{}, err
	}
	u.LockoutUntil = timePtr(lockout)
	return u, nil
}

func scanSession(row pgx.Row) (Session, error) {
	var (
		sess     Session
		elevated pgtype.Timestamptz
		revoked  pgtype.Timestamptz
	)
	err := row.Scan(
		&sess.ID,
		&sess.UserID,
		&sess.TokenHash,
		&sess.AAL,
		&sess.ExpiresAt,
		&elevated,
		&revoked,
		&sess.CreatedAt,
	)
	if err != nil {
		return Session{}, err
	}
	sess.ElevatedAt = timePtr(elevated)
	sess.RevokedAt = timePtr(revoked)
	return sess, nil
}

func scanFactor(row pgx.Row) (Factor, error) {
	var (
		f        Factor
		verified pgtype.Timestamptz
	)
	err := row.Scan(
		&f.ID,
		&f.UserID,
		&f.Type,
		&f.Status,
		&f.FriendlyName,
		&f.Secret,
		&f.CreatedAt,
		&verified,
	)
	if err != nil {
		return Factor{}, err
	}
	f.VerifiedAt = timePtr(verified)
	return f, nil
}

func scanChallenge(row pgx.Row) (Challenge, error) {
	var c Challenge
	err := row.Scan(
		&c.ID,
		&c.FactorID,
		&c.UserID,
		&c.ExpiresAt,
		&c.CreatedAt,
	)
	if err != nil {
		return Challenge{}, err
	}
	return c, nil
}

func scanLead(row pgx.Row) (Lead, error) {
	var l Lead
	err := row.Scan(
		&l.ID,
		&l.Name,
		&l.Email,
		&l.Company,
		&l.Status,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		return Lead{}, err
	}
	return l, nil
}

func mapPgError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}
