// Package handlers provides HTTP handlers for portfolio snapshots.
package handlers

import (
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-engine/internal/httpapi"
	"github.com/aristath/portfolio-engine/internal/modules/portfolio"
	"github.com/aristath/portfolio-engine/internal/modules/validation"
)

// Default page parameters.
const (
	DefaultPage  = 1
	DefaultLimit = 20
)

// Handler handles portfolio HTTP requests
type Handler struct {
	service *portfolio.Service
	deps    httpapi.Deps
	log     zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(deps httpapi.Deps, service *portfolio.Service) *Handler {
	return &Handler{
		service: service,
		deps:    deps,
		log:     deps.Log.With().Str("handler", "portfolio").Logger(),
	}
}

// queryNumber reads a numeric query parameter. A malformed value is NaN so
// that pagination validation rejects it.
func queryNumber(r *http.Request, name string, def float64) float64 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func (h *Handler) countFailures(kind string, res validation.Result) {
	for _, code := range res.Codes() {
		h.deps.Metrics.CountValidationFailure(kind, code)
	}
}

// HandleList handles GET /api/portfolios
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	page := queryNumber(r, "page", DefaultPage)
	limit := queryNumber(r, "limit", DefaultLimit)

	out, res, err := h.service.List(r.Context(), page, limit)
	if err != nil {
		httpapi.RespondErr(w, h.log, err)
		return
	}
	if !res.IsValid {
		h.countFailures("pagination", res)
		httpapi.RespondValidation(w, h.log, res)
		return
	}
	httpapi.Respond(w, h.log, http.StatusOK, out)
}

// HandleReport handles GET /api/portfolios/{id}/report?startDate=&endDate=
func (h *Handler) HandleReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	q := r.URL.Query()

	start, end, res := validation.ParseDateRange(q.Get("startDate"), q.Get("endDate"))
	if !res.IsValid {
		h.countFailures("date_range", res)
		httpapi.RespondValidation(w, h.log, res)
		return
	}

	report, res, err := h.service.Report(r.Context(), id, start, end)
	if err != nil {
		httpapi.RespondErr(w, h.log, err)
		return
	}
	if !res.IsValid {
		h.countFailures("date_range", res)
		httpapi.RespondValidation(w, h.log, res)
		return
	}
	httpapi.Respond(w, h.log, http.StatusOK, report)
}
