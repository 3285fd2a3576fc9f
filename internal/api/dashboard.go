package api

import (
	"net/http"

	"github.com/ashureev/skill-worlds/internal/dashboard"
	"github.com/ashureev/skill-worlds/internal/identity"
	"github.com/go-chi/chi/v5"
)

// GetDashboard returns the aggregated dashboard of the signed-in user.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.dashboard.Load(r.Context(), identity.SessionFromContext(r.Context()))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, d)
}

// CompleteResource marks a learning resource as finished.
func (h *Handler) CompleteResource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.dashboard.MarkResourceCompleted(r.Context(), identity.SessionFromContext(r.Context()), id); err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"resource_id": id, "completed": true})
}

// UpdateProfile edits the profile tab.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req dashboard.ProfileUpdate
	if err := decode(w, r, &req); err != nil {
		WriteError(w, r, err)
		return
	}
	profile, err := h.dashboard.UpdateProfile(r.Context(), identity.SessionFromContext(r.Context()), req)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{"profile": profile})
}
