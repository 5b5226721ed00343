// Package handlers exposes the validation gateway, the application status
// graph and the advisory diversification check over HTTP.
package handlers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/internal/httpapi"
	"github.com/aristath/portfolio-engine/internal/modules/diversification"
	"github.com/aristath/portfolio-engine/internal/modules/validation"
)

// ApplicationResponse is the verdict on an investment application.
// Diversification is only present when the application names a portfolio.
type ApplicationResponse struct {
	ApplicationID   string                    `json:"applicationId"`
	Status          domain.ApplicationStatus  `json:"status"`
	Validation      validation.Result         `json:"validation"`
	Diversification *diversification.Decision `json:"diversification,omitempty"`
}

// TransitionResponse describes an accepted status move.
type TransitionResponse struct {
	From    domain.ApplicationStatus   `json:"from"`
	To      domain.ApplicationStatus   `json:"to"`
	Allowed bool                       `json:"allowed"`
	Next    []domain.ApplicationStatus `json:"allowedFromTarget"`
}

// Handler handles validation HTTP requests
type Handler struct {
	deps     httpapi.Deps
	enforcer *diversification.Enforcer
	log      zerolog.Logger
}

// NewHandler creates a new validation handler
func NewHandler(deps httpapi.Deps, enforcer *diversification.Enforcer) *Handler {
	return &Handler{
		deps:     deps,
		enforcer: enforcer,
		log:      deps.Log.With().Str("handler", "validation").Logger(),
	}
}

// HandleApplication handles POST /api/investment-applications
func (h *Handler) HandleApplication(w http.ResponseWriter, r *http.Request) {
	body, err := httpapi.ReadBody(w, r)
	if err != nil {
		httpapi.RespondBodyError(w, h.log, err)
		return
	}

	parsed, res := h.deps.Validate(validation.KindInvestmentApplication, body)
	if !res.IsValid {
		httpapi.RespondValidation(w, h.log, res)
		return
	}
	req := parsed.(validation.InvestmentApplicationRequest)

	resp := ApplicationResponse{
		ApplicationID: req.ApplicationID,
		Status:        domain.ApplicationPending,
		Validation:    res,
	}
	if resp.ApplicationID == "" {
		resp.ApplicationID = uuid.NewString()
	}

	if portfolioID := strings.TrimSpace(req.PortfolioID); portfolioID != "" {
		p, err := h.deps.Snapshots.GetSnapshot(r.Context(), portfolioID)
		if err != nil {
			httpapi.RespondErr(w, h.log, err)
			return
		}
		decision := h.enforcer.Check(diversification.InvestedExposure(p), candidateOf(req, p))
		resp.Diversification = &decision
	}

	h.log.Debug().
		Str("application_id", resp.ApplicationID).
		Bool("diversified", resp.Diversification == nil || resp.Diversification.Allowed).
		Msg("Investment application checked")

	httpapi.Respond(w, h.log, http.StatusOK, resp)
}

// candidateOf builds the diversification candidate of an application. An
// application for a project the portfolio already holds adds to that
// position.
func candidateOf(req validation.InvestmentApplicationRequest, p *domain.Portfolio) diversification.Candidate {
	c := diversification.Candidate{
		Sector: req.Sector,
		Amount: validation.Float(req.Amount, 0),
	}
	if req.RiskLevel != nil {
		if level, err := domain.ParseRiskLevel(*req.RiskLevel); err == nil {
			c.RiskLevel = level
		}
	}

	projectID := validation.String(req.ProjectID)
	for _, inv := range p.Holdings() {
		if inv.ProjectID == projectID {
			c.Existing += inv.InvestedAmount
		}
	}
	return c
}

// HandleTransition handles POST /api/investment-applications/transitions
func (h *Handler) HandleTransition(w http.ResponseWriter, r *http.Request) {
	body, err := httpapi.ReadBody(w, r)
	if err != nil {
		httpapi.RespondBodyError(w, h.log, err)
		return
	}
	if !gjson.ValidBytes(body) {
		httpapi.RespondValidation(w, h.log, validation.Result{Errors: []validation.Error{{
			Field:   "body",
			Message: "request body is not valid JSON",
			Code:    validation.CodeMalformedBody,
		}}})
		return
	}

	from := gjson.GetBytes(body, "from").String()
	to := gjson.GetBytes(body, "to").String()

	res := validation.ValidateStatusTransition(from, to)
	if !res.IsValid {
		for _, code := range res.Codes() {
			h.deps.Metrics.CountValidationFailure("status_transition", code)
		}
		httpapi.RespondValidation(w, h.log, res)
		return
	}

	source, _ := domain.ParseApplicationStatus(from)
	target, _ := domain.ParseApplicationStatus(to)

	httpapi.Respond(w, h.log, http.StatusOK, TransitionResponse{
		From:    source,
		To:      target,
		Allowed: true,
		Next:    validation.AllowedTransitions(target),
	})
}

// HandlePortfolioRecord handles POST /api/portfolios/validate
func (h *Handler) HandlePortfolioRecord(w http.ResponseWriter, r *http.Request) {
	body, err := httpapi.ReadBody(w, r)
	if err != nil {
		httpapi.RespondBodyError(w, h.log, err)
		return
	}

	_, res := h.deps.Validate(validation.KindPortfolioRecord, body)
	if !res.IsValid {
		httpapi.RespondValidation(w, h.log, res)
		return
	}
	httpapi.Respond(w, h.log, http.StatusOK, res)
}
