package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the validation routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/investment-applications", h.HandleApplication)
	r.Post("/investment-applications/transitions", h.HandleTransition)
	r.Post("/portfolios/validate", h.HandlePortfolioRecord)
}
