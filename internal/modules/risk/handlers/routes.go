package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the risk assessment route
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/risk-assessment", h.HandleAssess)
}
