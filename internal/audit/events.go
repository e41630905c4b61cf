// Package audit provides audit event emission for the gateway.
//
// Purpose:
//   This package defines the audit event structure and an interface for
//   emitting audit events. Events cover the security-relevant transitions of
//   the service: logins, logouts, lockouts, factor enrollment and
//   verification, and session elevation. A logger-based emitter serves
//   development; the Kafka emitter streams events in production.
//
// Dependencies:
//   - github.com/google/uuid: event identifiers
//   - github.com/rs/zerolog: logger emitter
//   - github.com/segmentio/kafka-go: production emitter
//
// Key Responsibilities:
//   - Event struct defines the audit event schema
//   - Emitter interface abstracts Kafka vs logger implementations
//   - BuildEvent / BuildEventFromRequest construct enriched events
//
// Debugging Notes:
//   - LoggerEmitter logs events as JSON for development visibility
//   - Events carry actor_id, action, and target_id for traceability
//   - The hash field is SHA-256 over the payload for tamper detection
//
// Thread Safety:
//   - Emitter implementations must be safe for concurrent use
//
// Error Handling:
//   - Emit returns errors for monitoring; callers log and continue, the
//     request path never fails on audit emission
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event is one audit record. All state-mutating operations emit one.
type Event struct {
	EventID    uuid.UUID      `json:"event_id"`
	ActorID    uuid.UUID      `json:"actor_id"`
	ActorType  string         `json:"actor_type"` // "user", "system"
	TargetID   *uuid.UUID     `json:"target_id,omitempty"`
	TargetType string         `json:"target_type,omitempty"` // "user", "session", "factor"
	Action     string         `json:"action"`                // "auth.login", "mfa.verify", etc.
	Resource   string         `json:"resource,omitempty"`
	IPAddress  string         `json:"ip_address,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Hash       string         `json:"hash"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Emitter is the interface for audit event emission.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// LoggerEmitter logs audit events as structured JSON. Used in development
// and whenever Kafka is not configured.
type LoggerEmitter struct {
	logger zerolog.Logger
}

// NewLoggerEmitter creates a logger-based audit emitter.
func NewLoggerEmitter(logger zerolog.Logger) *LoggerEmitter {
	return &LoggerEmitter{logger: logger.With().Str("component", "audit").Logger()}
}

// Emit logs the audit event. Never fails.
func (e *LoggerEmitter) Emit(_ context.Context, event Event) error {
	e.logger.Info().
		Str("event_id", event.EventID.String()).
		Str("actor_id", event.ActorID.String()).
		Str("actor_type", event.ActorType).
		Str("action", event.Action).
		Str("target_type", event.TargetType).
		Interface("metadata", event.Metadata).
		Msg("audit event")
	return nil
}

// NoopEmitter discards all events. Used in tests.
type NoopEmitter struct{}

// NewNoopEmitter creates a no-op audit emitter.
func NewNoopEmitter() *NoopEmitter {
	return &NoopEmitter{}
}

// Emit discards the event.
func (e *NoopEmitter) Emit(context.Context, Event) error {
	return nil
}

// BuildEvent constructs an audit event from common parameters and computes
// its payload hash.
func BuildEvent(actorID uuid.UUID, actorType, action, targetType string, targetID *uuid.UUID) Event {
	event := Event{
		EventID:    uuid.New(),
		ActorID:    actorID,
		ActorType:  actorType,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		CreatedAt:  time.Now().UTC(),
	}
	event.Hash = computeEventHash(event)
	return event
}

// BuildEventFromRequest enriches an audit event with HTTP request metadata.
func BuildEventFromRequest(event Event, r *http.Request) Event {
	event.IPAddress = getClientIP(r)
	event.UserAgent = r.Header.Get("User-Agent")
	if event.Resource == "" {
		event.Resource = r.Method + " " + r.URL.Path
	}
	return event
}

// computeEventHash computes SHA-256 over the payload, hash field excluded.
func computeEventHash(event Event) string {
	eventCopy := event
	eventCopy.Hash = ""

	payload, err := json.Marshal(eventCopy)
	if err != nil {
		payload = []byte(fmt.Sprintf("%+v", eventCopy))
	}

	hash := sha256.Sum256(payload)
	return hex.EncodeToString(hash[:])
}

// getClientIP extracts the client IP from the request, handling proxies.
func getClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}

// Common action constants.
const (
	ActionLogin          = "auth.login"
	ActionLoginFailed    = "auth.login_failed"
	ActionLogout         = "auth.logout"
	ActionAccountLockout = "account.lockout"
	ActionFactorEnroll   = "mfa.enroll"
	ActionFactorVerify   = "mfa.verify"
	ActionSessionElevate = "session.elevate"
)

// Common target type constants.
const (
	TargetTypeUser    = "user"
	TargetTypeSession = "session"
	TargetTypeFactor  = "factor"
)

// Common actor type constants.
const (
	ActorTypeUser   = "user"
	ActorTypeSystem = "system"
)
