package postgres

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID
	Email        string
	DisplayName  string
	PasswordHash string
	LockoutUntil *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type CreateUserParams struct {
	ID           uuid.UUID
	Email        string
	DisplayName  string
	PasswordHash string
}

type Session struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	TokenHash  string
	AAL        string
	ExpiresAt  time.Time
	ElevatedAt *time.Time
	RevokedAt  *time.Time
	CreatedAt  time.Time
}

type CreateSessionParams struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	AAL       string
	ExpiresAt time.Time
}

type Factor struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	Type         string
	Status       string
	FriendlyName string
	Secret       string
	CreatedAt    time.Time
	VerifiedAt   *time.Time
}

type CreateFactorParams struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	Type         string
	FriendlyName string
	Secret       string
}

type Challenge struct {
	ID        uuid.UUID
	FactorID  uuid.UUID
	UserID    uuid.UUID
	ExpiresAt time.Time
	CreatedAt time.Time
}

type CreateChallengeParams struct {
	ID        uuid.UUID
	FactorID  uuid.UUID
	UserID    uuid.UUID
	ExpiresAt time.Time
}

type Lead struct {
	ID        uuid.UUID
	Name      string
	Email     string
	Company   string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type CreateLeadParams struct {
	ID      uuid.UUID
	Name    string
	Email   string
	Company string
	Status  string
}
