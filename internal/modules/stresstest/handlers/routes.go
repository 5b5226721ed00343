package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all stress test routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/stress-test", h.HandleRun)
	r.Get("/stress-test/scenarios", h.HandleGetScenarios)
}
