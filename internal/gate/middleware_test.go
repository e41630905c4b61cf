package gate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eryai/authgate/internal/identity"
)

type fakeAuthority struct {
	sessions map[string]*identity.Session
	err      error
}

func (a *fakeAuthority) Authenticate(context.Context, string, string) (*identity.Session, string, error) {
	return nil, "", errors.New("not used")
}

func (a *fakeAuthority) Resolve(_ context.Context, token string) (*identity.Session, error) {
	if a.err != nil {
		return nil, a.err
	}
	sess, ok := a.sessions[token]
	if !ok {
		return nil, identity.ErrNoSession
	}
	return sess, nil
}

func (a *fakeAuthority) Elevate(context.Context, uuid.UUID) error { return errors.New("not used") }
func (a *fakeAuthority) Revoke(context.Context, string) error     { return errors.New("not used") }

type fakeFactors struct {
	factors map[uuid.UUID][]identity.Factor
	err     error
}

func (f *fakeFactors) ListFactors(_ context.Context, identityID uuid.UUID) ([]identity.Factor, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.factors[identityID], nil
}

func (f *fakeFactors) Enroll(context.Context, uuid.UUID, string) (*identity.EnrollmentArtifact, error) {
	return nil, errors.New("not used")
}

func (f *fakeFactors) Unenroll(context.Context, uuid.UUID, uuid.UUID) error {
	return errors.New("not used")
}

func (f *fakeFactors) CreateChallenge(context.Context, uuid.UUID, uuid.UUID) (*identity.Challenge, error) {
	return nil, errors.New("not used")
}

func (f *fakeFactors) VerifyChallenge(context.Context, uuid.UUID, uuid.UUID, uuid.UUID, string) error {
	return errors.New("not used")
}

const testCookieName = "ag_session"

func newTestMiddleware(authority *fakeAuthority, factors *fakeFactors) *Middleware {
	return &Middleware{
		Authority: authority,
		Factors:   factors,
		Cookie:    SessionCookie{Name: testCookieName, TTL: time.Hour},
		Targets:   DefaultTargets,
		Logger:    zerolog.Nop(),
	}
}

func makeSession(id uuid.UUID, level identity.AssuranceLevel) *identity.Session {
	return &identity.Session{
		ID: uuid.New(),
		Identity: identity.Identity{
			ID:    id,
			Email: "user@example.com",
		},
		Assurance: level,
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}
}

func doRequest(t *testing.T, mw *Middleware, path, token string) (*httptest.ResponseRecorder, *identity.Session) {
	t.Helper()
	var captured *identity.Session
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = GetSession(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.AddCookie(&http.Cookie{Name: testCookieName, Value: token})
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, captured
}

func TestMiddleware_AnonymousRedirectedToLogin(t *testing.T) {
	mw := newTestMiddleware(
		&fakeAuthority{sessions: map[string]*identity.Session{}},
		&fakeFactors{},
	)

	rec, _ := doRequest(t, mw, "/leads", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestMiddleware_AnonymousAllowedOnLogin(t *testing.T) {
	mw := newTestMiddleware(
		&fakeAuthority{sessions: map[string]*identity.Session{}},
		&fakeFactors{},
	)

	rec, sess := doRequest(t, mw, "/login", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, sess)
}

func TestMiddleware_ElevatedSessionForwardedWithContext(t *testing.T) {
	userID := uuid.New()
	sess := makeSession(userID, identity.AAL2)
	mw := newTestMiddleware(
		&fakeAuthority{sessions: map[string]*identity.Session{"tok": sess}},
		&fakeFactors{factors: map[uuid.UUID][]identity.Factor{
			userID: {{Type: identity.FactorTypeTOTP, Status: identity.FactorVerified}},
		}},
	)

	rec, got := doRequest(t, mw, "/leads", "tok")
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, userID, got.Identity.ID)
	assert.True(t, got.Elevated())
}

func TestMiddleware_StepUpRequired(t *testing.T) {
	userID := uuid.New()
	sess := makeSession(userID, identity.AAL1)
	mw := newTestMiddleware(
		&fakeAuthority{sessions: map[string]*identity.Session{"tok": sess}},
		&fakeFactors{factors: map[uuid.UUID][]identity.Factor{
			userID: {{Type: identity.FactorTypeTOTP, Status: identity.FactorVerified}},
		}},
	)

	rec, _ := doRequest(t, mw, "/leads", "tok")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/mfa/verify", rec.Header().Get("Location"))
}

func TestMiddleware_NoFactorForwarded(t *testing.T) {
	userID := uuid.New()
	sess := makeSession(userID, identity.AAL1)
	mw := newTestMiddleware(
		&fakeAuthority{sessions: map[string]*identity.Session{"tok": sess}},
		&fakeFactors{factors: map[uuid.UUID][]identity.Factor{}},
	)

	rec, got := doRequest(t, mw, "/leads", "tok")
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
}

func TestMiddleware_UnverifiedFactorDoesNotForceStepUp(t *testing.T) {
	userID := uuid.New()
	sess := makeSession(userID, identity.AAL1)
	mw := newTestMiddleware(
		&fakeAuthority{sessions: map[string]*identity.Session{"tok": sess}},
		&fakeFactors{factors: map[uuid.UUID][]identity.Factor{
			userID: {{Type: identity.FactorTypeTOTP, Status: identity.FactorUnverified}},
		}},
	)

	rec, _ := doRequest(t, mw, "/leads", "tok")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddleware_AuthenticatedOnLoginGoesHome(t *testing.T) {
	userID := uuid.New()
	sess := makeSession(userID, identity.AAL1)
	mw := newTestMiddleware(
		&fakeAuthority{sessions: map[string]*identity.Session{"tok": sess}},
		&fakeFactors{},
	)

	rec, _ := doRequest(t, mw, "/login", "tok")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/leads", rec.Header().Get("Location"))
}

func TestMiddleware_ElevatedOnVerifyPageGoesHome(t *testing.T) {
	userID := uuid.New()
	sess := makeSession(userID, identity.AAL2)
	mw := newTestMiddleware(
		&fakeAuthority{sessions: map[string]*identity.Session{"tok": sess}},
		&fakeFactors{},
	)

	rec, _ := doRequest(t, mw, "/mfa/verify", "tok")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/leads", rec.Header().Get("Location"))
}

// Session resolution failure is read as anonymous: the caller lands on
// /login, never on protected content.
func TestMiddleware_ResolveErrorTreatedAsAnonymous(t *testing.T) {
	mw := newTestMiddleware(
		&fakeAuthority{err: errors.New("backend down")},
		&fakeFactors{},
	)

	rec, _ := doRequest(t, mw, "/leads", "tok")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

// Factor lookup failure fails closed: the gate assumes a verified factor
// exists and forces step-up rather than forwarding.
func TestMiddleware_FactorLookupErrorFailsClosed(t *testing.T) {
	userID := uuid.New()
	sess := makeSession(userID, identity.AAL1)
	mw := newTestMiddleware(
		&fakeAuthority{sessions: map[string]*identity.Session{"tok": sess}},
		&fakeFactors{err: errors.New("backend down")},
	)

	rec, _ := doRequest(t, mw, "/leads", "tok")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/mfa/verify", rec.Header().Get("Location"))
}

// An elevated session skips the factor lookup outcome entirely: even when the
// lookup fails, an AAL2 session is forwarded.
func TestMiddleware_ElevatedForwardedDespiteFactorError(t *testing.T) {
	userID := uuid.New()
	sess := makeSession(userID, identity.AAL2)
	mw := newTestMiddleware(
		&fakeAuthority{sessions: map[string]*identity.Session{"tok": sess}},
		&fakeFactors{err: errors.New("backend down")},
	)

	rec, _ := doRequest(t, mw, "/leads", "tok")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionCookie_ReadWriteClear(t *testing.T) {
	c := SessionCookie{Name: testCookieName, TTL: time.Hour, Secure: true}

	rec := httptest.NewRecorder()
	c.Write(rec, "token-value")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, testCookieName, cookies[0].Name)
	assert.Equal(t, "token-value", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)
	assert.Equal(t, "/", cookies[0].Path)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	assert.Equal(t, "token-value", c.Read(req))

	assert.Empty(t, c.Read(httptest.NewRequest(http.MethodGet, "/", nil)))

	rec = httptest.NewRecorder()
	c.Clear(rec)
	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Empty(t, cleared[0].Value)
	assert.Negative(t, cleared[0].MaxAge)
}
