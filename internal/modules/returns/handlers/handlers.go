// Package handlers provides HTTP handlers for return calculations.
package handlers

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-engine/internal/httpapi"
	"github.com/aristath/portfolio-engine/internal/modules/returns"
	"github.com/aristath/portfolio-engine/internal/modules/validation"
	"github.com/aristath/portfolio-engine/internal/resultcache"
)

// Handler handles return calculation HTTP requests
type Handler struct {
	deps       httpapi.Deps
	calculator *returns.Calculator
	log        zerolog.Logger
}

// NewHandler creates a new return calculation handler
func NewHandler(deps httpapi.Deps, calculator *returns.Calculator) *Handler {
	return &Handler{
		deps:       deps,
		calculator: calculator,
		log:        deps.Log.With().Str("handler", "returns").Logger(),
	}
}

// HandleCalculate handles POST /api/returns/calculate
//
// Only requests with an explicit asOf are cached; without one the result
// depends on the time of the call.
func (h *Handler) HandleCalculate(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	body, err := httpapi.ReadBody(w, r)
	if err != nil {
		httpapi.RespondBodyError(w, h.log, err)
		return
	}

	parsed, res := h.deps.Validate(validation.KindReturnCalculation, body)
	if !res.IsValid {
		httpapi.RespondValidation(w, h.log, res)
		return
	}
	req := parsed.(validation.ReturnCalculationRequest)

	var key string
	if req.AsOf != nil {
		var cached returns.Report
		var hit bool
		key, hit = h.deps.Cache.LookupVersion(resultcache.KindReturns, "", *req.AsOf, req, &cached)
		if hit {
			h.deps.Observe("returns", "cached", started)
			httpapi.RespondCached(w, h.log, &cached)
			return
		}
	}

	report, err := h.calculator.Calculate(r.Context(), req)
	if err != nil {
		h.deps.Observe("returns", "error", started)
		httpapi.RespondErr(w, h.log, err)
		return
	}

	h.deps.Cache.Save(resultcache.KindReturns, key, "", report)
	h.deps.Observe("returns", "ok", started)

	httpapi.Respond(w, h.log, http.StatusOK, report)
}
