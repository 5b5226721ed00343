package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the return calculation routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/returns/calculate", h.HandleCalculate)
}
