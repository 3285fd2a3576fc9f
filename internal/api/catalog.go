package api

import (
	"fmt"
	"net/http"

	"github.com/ashureev/skill-worlds/internal/domain"
	"github.com/go-chi/chi/v5"
)

// ListCareers returns the career catalog.
func (h *Handler) ListCareers(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]any{"careers": h.catalog.Careers()})
}

// GetCareer returns one career with its learning resources.
func (h *Handler) GetCareer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	career, ok := h.catalog.Career(id)
	if !ok {
		WriteError(w, r, fmt.Errorf("career %q: %w", id, domain.ErrNotFound))
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"career":    career,
		"resources": h.catalog.Resources(id),
	})
}
