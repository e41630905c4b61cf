// Package meta serves the ungated service metadata endpoints: the public
// health check and the API descriptor. These routes bypass the gate entirely,
// an anonymous caller can always reach them.
package meta

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Handler serves the metadata endpoints.
type Handler struct {
	ServiceName string
	Version     string
}

// RegisterRoutes mounts the metadata routes outside the gated router group.
func RegisterRoutes(router chi.Router, h *Handler) {
	router.Get("/api/health", h.Health)
	router.Get("/api/openapi", h.OpenAPI)
}

// Health reports service identity and liveness. Unlike /readyz it carries no
// dependency checks; it exists for external uptime monitors.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": h.ServiceName,
		"version": h.Version,
	})
}

// OpenAPI returns a minimal machine-readable description of the gateway's
// HTTP surface.
func (h *Handler) OpenAPI(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"openapi": "3.0.3",
		"info": map[string]string{
			"title":   h.ServiceName,
			"version": h.Version,
		},
		"paths": map[string]any{
			"/login":            map[string]any{"get": opSummary("Login form contract"), "post": opSummary("Authenticate with email and password")},
			"/logout":           map[string]any{"post": opSummary("Revoke the session")},
			"/mfa/setup":        map[string]any{"get": opSummary("Enrollment form contract"), "post": opSummary("Begin TOTP enrollment")},
			"/mfa/setup/verify": map[string]any{"post": opSummary("Finalize TOTP enrollment")},
			"/mfa/verify":       map[string]any{"get": opSummary("Step-up form contract"), "post": opSummary("Verify TOTP code and elevate session")},
			"/leads":            map[string]any{"get": opSummary("List leads")},
			"/leads/{leadID}":   map[string]any{"get": opSummary("Get a lead")},
			"/api/health":       map[string]any{"get": opSummary("Public health check")},
		},
	})
}

func opSummary(summary string) map[string]string {
	return map[string]string{"summary": summary}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
