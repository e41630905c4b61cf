package gate

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eryai/authgate/internal/identity"
	"github.com/eryai/authgate/internal/metrics"
)

// ContextKey is the type for context keys set by the gate middleware.
type ContextKey string

const (
	// SessionKey is the context key for the resolved session.
	SessionKey ContextKey = "gate.session"
)

// Middleware enforces the gate decision on every request of a gated router
// group. It resolves the session cookie, gathers the decision inputs, and
// either forwards the request with the session on the context or issues the
// redirect the decision table chose.
type Middleware struct {
	Authority identity.SessionAuthority
	Factors   identity.FactorStore
	Cookie    SessionCookie
	Targets   Targets
	Logger    zerolog.Logger
}

// Handler wraps next with the gate.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		sess := m.resolveSession(ctx, r)

		in := Input{
			Authenticated: sess != nil,
			Path:          r.URL.Path,
			Category:      Classify(r.URL.Path),
			Elevated:      sess.Elevated(),
		}

		// The factor lookup is only needed when the step-up rule can fire.
		// On lookup failure the gate fails closed: it assumes a verified
		// factor exists and lets the step-up rule redirect to verification
		// rather than silently forwarding.
		if sess != nil && in.Category == RouteProtected {
			verified, err := m.hasVerifiedFactor(ctx, sess.Identity.ID)
			if err != nil {
				m.Logger.Error().Err(err).
					Str("path", r.URL.Path).
					Str("identity_id", sess.Identity.ID.String()).
					Msg("factor lookup failed, failing closed")
				verified = true
			}
			in.HasVerifiedFactor = verified
		}

		d := Decide(in, m.Targets)
		metrics.RecordGateDecision(d.Rule, d.Action == ActionAllow)

		if d.Action == ActionRedirect {
			m.Logger.Debug().
				Str("path", r.URL.Path).
				Str("rule", d.Rule).
				Str("target", d.Target).
				Msg("gate redirect")
			http.Redirect(w, r, d.Target, http.StatusFound)
			return
		}

		if sess != nil {
			ctx = context.WithValue(ctx, SessionKey, sess)
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}

// resolveSession maps the session cookie to current session state. An
// unresolvable token, including an upstream error, is treated as anonymous,
// which is the least-privileged reading: the caller is sent to login, not
// forwarded.
func (m *Middleware) resolveSession(ctx context.Context, r *http.Request) *identity.Session {
	token := m.Cookie.Read(r)
	if token == "" {
		return nil
	}
	sess, err := m.Authority.Resolve(ctx, token)
	if err != nil {
		if !errors.Is(err, identity.ErrNoSession) {
			m.Logger.Error().Err(err).Str("path", r.URL.Path).
				Msg("session resolve failed, treating as anonymous")
		}
		return nil
	}
	return sess
}

func (m *Middleware) hasVerifiedFactor(ctx context.Context, identityID uuid.UUID) (bool, error) {
	factors, err := m.Factors.ListFactors(ctx, identityID)
	if err != nil {
		return false, err
	}
	for _, f := range factors {
		if f.Type == identity.FactorTypeTOTP && f.Status == identity.FactorVerified {
			return true, nil
		}
	}
	return false, nil
}

// GetSession extracts the resolved session from the request context.
// Returns nil on ungated routes or when the caller is anonymous.
func GetSession(ctx context.Context) *identity.Session {
	sess, ok := ctx.Value(SessionKey).(*identity.Session)
	if !ok {
		return nil
	}
	return sess
}
