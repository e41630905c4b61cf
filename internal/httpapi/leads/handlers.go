// Package leads serves the protected lead records: the application content
// the gate exists to protect. List and detail views only; lead management
// belongs to the upstream CRM.
package leads

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eryai/authgate/internal/storage/postgres"
)

// Store is the subset of the lead persistence layer the handlers need.
type Store interface {
	ListLeads(ctx context.Context) ([]postgres.Lead, error)
	GetLead(ctx context.Context, leadID uuid.UUID) (postgres.Lead, error)
}

// Handler serves the lead endpoints.
type Handler struct {
	Store  Store
	Logger zerolog.Logger
}

// RegisterRoutes mounts the lead routes inside the gated router group.
func RegisterRoutes(router chi.Router, h *Handler) {
	router.Route("/leads", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{leadID}", h.Get)
	})
}

type leadView struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Company   string    `json:"company"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// List returns all leads, newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Store.ListLeads(r.Context())
	if err != nil {
		h.Logger.Error().Err(err).Msg("list leads failed")
		http.Error(w, "leads unavailable", http.StatusInternalServerError)
		return
	}

	views := make([]leadView, 0, len(rows))
	for _, row := range rows {
		views = append(views, toView(row))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"leads": views,
		"count": len(views),
	})
}

// Get returns a single lead by id.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	leadID, err := uuid.Parse(chi.URLParam(r, "leadID"))
	if err != nil {
		http.Error(w, "invalid lead id", http.StatusBadRequest)
		return
	}

	lead, err := h.Store.GetLead(r.Context(), leadID)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			http.Error(w, "lead not found", http.StatusNotFound)
			return
		}
		h.Logger.Error().Err(err).Str("lead_id", leadID.String()).Msg("get lead failed")
		http.Error(w, "leads unavailable", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, toView(lead))
}

func toView(lead postgres.Lead) leadView {
	return leadView{
		ID:        lead.ID,
		Name:      lead.Name,
		Email:     lead.Email,
		Company:   lead.Company,
		Status:    lead.Status,
		CreatedAt: lead.CreatedAt,
		UpdatedAt: lead.UpdatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
