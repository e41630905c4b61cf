// Package mfa provides HTTP handlers for the TOTP factor lifecycle: setup
// (enrollment), setup verification, and session step-up verification.
//
// Purpose:
//   These endpoints sit behind the gate, so every request already carries a
//   resolved session on the context. Setup begins enrollment and returns the
//   secret/QR artifact; setup/verify finalizes it with the first code;
//   verify proves an already-enrolled factor to elevate the session.
//
// Dependencies:
//   - github.com/go-chi/chi/v5: route registration
//   - internal/enroll: enrollment flow orchestration
//   - internal/stepup: step-up flow orchestration
//   - internal/gate: session extraction from request context
//   - internal/audit: audit event emission
//
// Debugging Notes:
//   - A request with no session on the context means the route was mounted
//     outside the gated group; handlers return 401 rather than panic
//   - Setup on an account with a verified factor returns 409
//   - Verify on an account with no verified factor returns 409 with a hint
//     to enroll instead
//
// Error Handling:
//   - Wrong codes return 401 with a retryable error body; the challenge is
//     consumed either way, the client just posts again
package mfa

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eryai/authgate/internal/audit"
	"github.com/eryai/authgate/internal/enroll"
	"github.com/eryai/authgate/internal/gate"
	"github.com/eryai/authgate/internal/identity"
	"github.com/eryai/authgate/internal/stepup"
)

// Handler serves the MFA setup and verification endpoints.
type Handler struct {
	Enroll  *enroll.Manager
	StepUp  *stepup.Verifier
	Targets gate.Targets
	Audit   audit.Emitter
	Logger  zerolog.Logger
}

// RegisterRoutes mounts the MFA routes. They must be registered inside the
// gated router group so the session is present on the context.
func RegisterRoutes(router chi.Router, h *Handler) {
	router.Route("/mfa", func(r chi.Router) {
		r.Get("/setup", h.DescribeSetup)
		r.Post("/setup", h.BeginSetup)
		r.Post("/setup/verify", h.FinalizeSetup)
		r.Get("/verify", h.DescribeVerify)
		r.Post("/verify", h.Verify)
	})
}

type setupRequest struct {
	FriendlyName string `json:"friendly_name"`
}

type setupVerifyRequest struct {
	FactorID string `json:"factor_id"`
	Code     string `json:"code"`
}

type verifyRequest struct {
	Code string `json:"code"`
}

// DescribeSetup returns the setup form contract. Accounts that already hold a
// verified factor are pointed at step-up verification instead.
func (h *Handler) DescribeSetup(w http.ResponseWriter, r *http.Request) {
	sess := gate.GetSession(r.Context())
	if sess == nil {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	_, err := h.StepUp.LoadPrimaryFactor(r.Context(), sess.Identity.ID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":    "a verified factor is already enrolled",
			"next_url": h.Targets.Verify,
		})
	case errors.Is(err, identity.ErrNoFactorEnrolled):
		writeJSON(w, http.StatusOK, map[string]any{
			"action": "POST /mfa/setup",
			"fields": []string{"friendly_name"},
		})
	default:
		h.Logger.Error().Err(err).Msg("describe setup failed")
		http.Error(w, "enrollment unavailable", http.StatusInternalServerError)
	}
}

// BeginSetup starts (or restarts) TOTP enrollment for the signed-in identity
// and returns the secret, otpauth URL, and QR code.
func (h *Handler) BeginSetup(w http.ResponseWriter, r *http.Request) {
	sess := gate.GetSession(r.Context())
	if sess == nil {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var payload setupRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, "invalid request payload", http.StatusBadRequest)
			return
		}
	}
	name := strings.TrimSpace(payload.FriendlyName)
	if name == "" {
		name = "Authenticator"
	}

	artifact, err := h.Enroll.BeginEnrollment(r.Context(), sess.Identity.ID, name)
	if err != nil {
		if errors.Is(err, identity.ErrFactorExists) {
			http.Error(w, "a verified factor is already enrolled", http.StatusConflict)
			return
		}
		h.Logger.Error().Err(err).Msg("begin enrollment failed")
		http.Error(w, "enrollment unavailable", http.StatusInternalServerError)
		return
	}

	h.emitAudit(r, audit.BuildEvent(
		sess.Identity.ID, audit.ActorTypeUser, audit.ActionFactorEnroll,
		audit.TargetTypeFactor, &artifact.FactorID,
	))

	writeJSON(w, http.StatusOK, artifact)
}

// FinalizeSetup verifies the first code from the authenticator, marking the
// factor verified and elevating the session.
func (h *Handler) FinalizeSetup(w http.ResponseWriter, r *http.Request) {
	sess := gate.GetSession(r.Context())
	if sess == nil {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var payload setupVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}
	factorID, err := uuid.Parse(payload.FactorID)
	if err != nil || payload.Code == "" {
		http.Error(w, "factor_id and code are required", http.StatusBadRequest)
		return
	}

	err = h.Enroll.FinalizeEnrollment(r.Context(), sess.Identity.ID, sess.ID, factorID, payload.Code)
	if err != nil {
		h.writeVerifyError(w, err, "finalize enrollment")
		return
	}

	h.emitAudit(r, audit.BuildEvent(
		sess.Identity.ID, audit.ActorTypeUser, audit.ActionFactorVerify,
		audit.TargetTypeFactor, &factorID,
	))
	h.emitAudit(r, audit.BuildEvent(
		sess.Identity.ID, audit.ActorTypeUser, audit.ActionSessionElevate,
		audit.TargetTypeSession, nil,
	))

	writeJSON(w, http.StatusOK, map[string]string{"next_url": h.Targets.Home})
}

// DescribeVerify returns the verify form contract: which factor will be
// challenged. Accounts without a verified factor are pointed at setup.
func (h *Handler) DescribeVerify(w http.ResponseWriter, r *http.Request) {
	sess := gate.GetSession(r.Context())
	if sess == nil {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	factor, err := h.StepUp.LoadPrimaryFactor(r.Context(), sess.Identity.ID)
	if err != nil {
		if errors.Is(err, identity.ErrNoFactorEnrolled) {
			writeJSON(w, http.StatusConflict, map[string]string{
				"error":    "no verified factor enrolled",
				"next_url": h.Targets.Enroll,
			})
			return
		}
		h.Logger.Error().Err(err).Msg("load primary factor failed")
		http.Error(w, "verification unavailable", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"action":        "POST /mfa/verify",
		"fields":        []string{"code"},
		"factor_id":     factor.ID,
		"friendly_name": factor.FriendlyName,
	})
}

// Verify proves the enrolled factor and elevates the session.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	sess := gate.GetSession(r.Context())
	if sess == nil {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var payload verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}
	if payload.Code == "" {
		http.Error(w, "code is required", http.StatusBadRequest)
		return
	}

	err := h.StepUp.Verify(r.Context(), sess.Identity.ID, sess.ID, payload.Code)
	if err != nil {
		if errors.Is(err, identity.ErrNoFactorEnrolled) {
			writeJSON(w, http.StatusConflict, map[string]string{
				"error":    "no verified factor enrolled",
				"next_url": h.Targets.Enroll,
			})
			return
		}
		h.writeVerifyError(w, err, "step-up verify")
		return
	}

	h.emitAudit(r, audit.BuildEvent(
		sess.Identity.ID, audit.ActorTypeUser, audit.ActionSessionElevate,
		audit.TargetTypeSession, nil,
	))

	writeJSON(w, http.StatusOK, map[string]string{"next_url": h.Targets.Home})
}

// writeVerifyError maps flow errors to HTTP responses.
func (h *Handler) writeVerifyError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, identity.ErrInvalidCode):
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error":     "invalid code",
			"retryable": "true",
		})
	case errors.Is(err, identity.ErrChallengeConsumed):
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error":     "challenge expired, submit a fresh code",
			"retryable": "true",
		})
	case errors.Is(err, identity.ErrNotFound):
		http.Error(w, "unknown factor", http.StatusNotFound)
	default:
		h.Logger.Error().Err(err).Str("op", op).Msg("verification failed")
		http.Error(w, "verification unavailable", http.StatusInternalServerError)
	}
}

func (h *Handler) emitAudit(r *http.Request, event audit.Event) {
	event = audit.BuildEventFromRequest(event, r)
	if err := h.Audit.Emit(r.Context(), event); err != nil {
		h.Logger.Warn().Err(err).Str("action", event.Action).Msg("audit emit failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
