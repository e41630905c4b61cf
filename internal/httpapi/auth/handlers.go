// Package auth provides HTTP handlers for the password authentication
// endpoints: login and logout.
//
// Purpose:
//   This package implements the gateway's first authentication step. Login
//   verifies email/password against the identity provider, sets the session
//   cookie, and tells the client where to go next (step-up verification when
//   a verified factor exists, enrollment otherwise). Logout revokes the
//   session and clears the cookie.
//
// Dependencies:
//   - github.com/go-chi/chi/v5: HTTP router for route registration
//   - internal/identity: SessionAuthority and FactorStore contracts
//   - internal/gate: session cookie codec and redirect targets
//   - internal/audit: audit event emission
//
// Key Responsibilities:
//   - Login: POST /login with JSON or form credentials
//   - Logout: POST /logout, revoke + clear cookie
//   - Login descriptor: GET /login returns the form contract for clients
//
// Debugging Notes:
//   - Login never reveals whether the email or the password was wrong
//   - A locked account returns 423 Locked
//   - The next_url in the login response mirrors what the gate would decide
//     on the client's next request; clients may ignore it and just navigate
//
// Thread Safety:
//   - Handler methods are stateless and safe for concurrent use
//
// Error Handling:
//   - Invalid JSON returns 400; bad credentials 401; locked accounts 423
//   - Provider failures return 500 with a generic message, details logged
package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eryai/authgate/internal/audit"
	"github.com/eryai/authgate/internal/gate"
	"github.com/eryai/authgate/internal/identity"
	"github.com/eryai/authgate/internal/metrics"
)

// Handler serves the login and logout endpoints.
type Handler struct {
	Authority identity.SessionAuthority
	Factors   identity.FactorStore
	Cookie    gate.SessionCookie
	Targets   gate.Targets
	Audit     audit.Emitter
	Logger    zerolog.Logger
}

// RegisterRoutes mounts the authentication routes.
func RegisterRoutes(router chi.Router, h *Handler) {
	router.Get("/login", h.Describe)
	router.Post("/login", h.Login)
	router.Post("/logout", h.Logout)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	NextURL string `json:"next_url"`
}

// Describe returns the login form contract so clients can render it.
func (h *Handler) Describe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"action": "POST /login",
		"fields": []string{"email", "password"},
	})
}

// Login verifies credentials, issues the session cookie, and points the
// client at its next stop.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	payload, err := decodeLogin(r)
	if err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}

	sess, token, err := h.Authority.Authenticate(ctx, payload.Email, payload.Password)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrAccountLocked):
			metrics.RecordAuthAttempt("locked")
			h.emitLoginFailed(r, payload.Email, "account_locked")
			http.Error(w, "account locked, try again later", http.StatusLocked)
		case errors.Is(err, identity.ErrInvalidCredentials):
			metrics.RecordAuthAttempt("failure")
			h.emitLoginFailed(r, payload.Email, "invalid_credentials")
			http.Error(w, "invalid email or password", http.StatusUnauthorized)
		default:
			metrics.RecordAuthAttempt("error")
			h.Logger.Error().Err(err).Msg("authenticate failed")
			http.Error(w, "authentication unavailable", http.StatusInternalServerError)
		}
		return
	}

	h.Cookie.Write(w, token)
	metrics.RecordAuthAttempt("success")

	event := audit.BuildEvent(
		sess.Identity.ID, audit.ActorTypeUser, audit.ActionLogin, audit.TargetTypeSession, nil,
	)
	h.emitAudit(r, event)

	writeJSON(w, http.StatusOK, loginResponse{NextURL: h.nextURL(r, sess)})
}

// Logout revokes the session behind the cookie and clears it. Always
// redirects to login, even when there was no session to revoke.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token := h.Cookie.Read(r)
	if token != "" {
		if sess, err := h.Authority.Resolve(ctx, token); err == nil {
			event := audit.BuildEvent(
				sess.Identity.ID, audit.ActorTypeUser, audit.ActionLogout, audit.TargetTypeSession, nil,
			)
			h.emitAudit(r, event)
		}
		if err := h.Authority.Revoke(ctx, token); err != nil {
			h.Logger.Error().Err(err).Msg("session revoke failed")
		}
	}

	h.Cookie.Clear(w)
	http.Redirect(w, r, h.Targets.Login, http.StatusFound)
}

// nextURL mirrors the gate's post-login decision: step-up when a verified
// factor exists, otherwise straight to the app. A factor lookup failure is
// read as "factor exists", matching the gate's fail-closed posture.
func (h *Handler) nextURL(r *http.Request, sess *identity.Session) string {
	factors, err := h.Factors.ListFactors(r.Context(), sess.Identity.ID)
	if err != nil {
		h.Logger.Error().Err(err).Msg("factor lookup failed after login")
		return h.Targets.Verify
	}
	for _, f := range factors {
		if f.Status == identity.FactorVerified {
			return h.Targets.Verify
		}
	}
	return h.Targets.Home
}

// emitLoginFailed records a failed login attempt. The actor is unknown until
// credentials verify, so the event carries the claimed email as metadata
// instead of an actor id.
func (h *Handler) emitLoginFailed(r *http.Request, email, reason string) {
	event := audit.BuildEvent(uuid.Nil, audit.ActorTypeUser, audit.ActionLoginFailed, audit.TargetTypeUser, nil)
	event.Metadata = map[string]any{
		"email":  email,
		"reason": reason,
	}
	h.emitAudit(r, event)
}

func (h *Handler) emitAudit(r *http.Request, event audit.Event) {
	event = audit.BuildEventFromRequest(event, r)
	if err := h.Audit.Emit(r.Context(), event); err != nil {
		h.Logger.Warn().Err(err).Str("action", event.Action).Msg("audit emit failed")
	}
}

// decodeLogin accepts either a JSON body or a classic form post.
func decodeLogin(r *http.Request) (loginRequest, error) {
	var payload loginRequest
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			return payload, err
		}
		payload.Email = r.PostFormValue("email")
		payload.Password = r.PostFormValue("password")
		return payload, nil
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return payload, err
	}
	return payload, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
