package gate

import (
	"net/http"
	"time"
)

// SessionCookie is the explicit codec for the session cookie. Reads and writes
// are distinct operations on request and response; every handler exit path,
// including redirects, goes through Write or Clear so the cookie state on the
// outgoing response is never left to a callback.
type SessionCookie struct {
	// Name is the cookie name (config SESSION_COOKIE).
	Name string
	// Secure marks the cookie https-only. Off for local development.
	Secure bool
	// TTL bounds the cookie lifetime; the server-side session expiry governs.
	TTL time.Duration
}

// Read returns the session token carried by the request, or "" when absent.
func (c SessionCookie) Read(r *http.Request) string {
	ck, err := r.Cookie(c.Name)
	if err != nil {
		return ""
	}
	return ck.Value
}

// Write sets the session token on the response.
func (c SessionCookie) Write(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    token,
		Path:     "/",
		MaxAge:   int(c.TTL / time.Second),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Clear removes the session cookie from the client.
func (c SessionCookie) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
