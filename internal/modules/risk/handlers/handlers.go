// Package handlers provides HTTP handlers for risk assessment.
package handlers

import (
	"net/http"
	"time"

	"github.com/aristath/portfolio-engine/internal/httpapi"
	"github.com/aristath/portfolio-engine/internal/modules/risk"
	"github.com/aristath/portfolio-engine/internal/modules/validation"
	"github.com/aristath/portfolio-engine/internal/resultcache"
	"github.com/rs/zerolog"
)

// Handler handles risk assessment HTTP requests
type Handler struct {
	deps     httpapi.Deps
	assessor *risk.Assessor
	defaults risk.Options
	log      zerolog.Logger
}

// NewHandler creates a new risk assessment handler
func NewHandler(deps httpapi.Deps, assessor *risk.Assessor, defaults risk.Options) *Handler {
	return &Handler{
		deps:     deps,
		assessor: assessor,
		defaults: defaults,
		log:      deps.Log.With().Str("handler", "risk").Logger(),
	}
}

// HandleAssess handles POST /api/risk-assessment
func (h *Handler) HandleAssess(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	body, err := httpapi.ReadBody(w, r)
	if err != nil {
		httpapi.RespondBodyError(w, h.log, err)
		return
	}

	parsed, res := h.deps.Validate(validation.KindRiskAssessment, body)
	if !res.IsValid {
		httpapi.RespondValidation(w, h.log, res)
		return
	}
	req := parsed.(validation.RiskAssessmentRequest)

	p, err := h.deps.Snapshots.GetSnapshot(r.Context(), *req.PortfolioID)
	if err != nil {
		h.deps.Observe("risk_assessment", "error", started)
		httpapi.RespondErr(w, h.log, err)
		return
	}

	opts := risk.OptionsFrom(req.Options, h.defaults)

	var cached risk.Assessment
	key, hit := h.deps.Cache.Lookup(resultcache.KindRiskAssessment, p, opts, &cached)
	if hit {
		h.deps.Observe("risk_assessment", "cached", started)
		httpapi.RespondCached(w, h.log, &cached)
		return
	}

	assessment := h.assessor.Assess(p, opts)
	h.deps.Cache.Save(resultcache.KindRiskAssessment, key, p.ID, assessment)
	h.deps.Observe("risk_assessment", "ok", started)

	h.log.Debug().
		Str("portfolio_id", p.ID).
		Float64("risk_score", assessment.RiskScore).
		Msg("Risk assessment complete")

	httpapi.Respond(w, h.log, http.StatusOK, assessment)
}
