// Package handlers provides HTTP and websocket handlers for portfolio
// optimization.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-engine/internal/archive"
	"github.com/aristath/portfolio-engine/internal/httpapi"
	"github.com/aristath/portfolio-engine/internal/modules/optimization"
	"github.com/aristath/portfolio-engine/internal/modules/optimization/progress"
	"github.com/aristath/portfolio-engine/internal/modules/validation"
	"github.com/aristath/portfolio-engine/internal/resultcache"
)

// Response is the body of a successful or infeasible optimization.
type Response struct {
	Result                  *optimization.Result                  `json:"result"`
	StrategyRecommendations []optimization.StrategyRecommendation `json:"strategyRecommendations"`
}

func newResponse(res *optimization.Result) *Response {
	strategies := res.Strategies
	if strategies == nil {
		strategies = []optimization.StrategyRecommendation{}
	}
	return &Response{Result: res, StrategyRecommendations: strategies}
}

// Handler handles optimization requests
type Handler struct {
	deps    httpapi.Deps
	service *optimization.Service
	log     zerolog.Logger
}

// NewHandler creates a new optimization handler
func NewHandler(deps httpapi.Deps, service *optimization.Service) *Handler {
	return &Handler{
		deps:    deps,
		service: service,
		log:     deps.Log.With().Str("handler", "optimization").Logger(),
	}
}

// outcome is a finished run as seen by both transports.
type outcome struct {
	response   *Response
	validation *validation.Result
	err        error
	cached     bool
}

// infeasible reports whether the run ended with an INFEASIBLE result.
func (o outcome) infeasible() bool {
	return o.response != nil && errors.Is(o.err, optimization.ErrInfeasible)
}

// run validates body, loads the snapshot and optimizes it, consulting the
// result cache first.
func (h *Handler) run(ctx context.Context, body []byte, cb progress.Callback) outcome {
	started := time.Now()

	parsed, res := h.deps.Validate(validation.KindOptimization, body)
	if !res.IsValid {
		return outcome{validation: &res}
	}
	req := parsed.(validation.OptimizationRequest)

	p, err := h.deps.Snapshots.GetSnapshot(ctx, *req.PortfolioID)
	if err != nil {
		h.deps.Observe("optimization", "error", started)
		return outcome{err: err}
	}

	var cached Response
	key, hit := h.deps.Cache.Lookup(resultcache.KindOptimization, p, req, &cached)
	if hit {
		h.deps.Observe("optimization", "cached", started)
		progress.Step(cb, progress.PhaseDone, 1, 1, "served from cache")
		return outcome{response: &cached, cached: true}
	}

	result, err := h.service.Optimize(ctx, p, req, cb)
	if err != nil {
		if result != nil && errors.Is(err, optimization.ErrInfeasible) {
			h.deps.Observe("optimization", "infeasible", started)
			return outcome{response: newResponse(result), err: err}
		}
		h.deps.Observe("optimization", "error", started)
		return outcome{err: err}
	}

	resp := newResponse(result)
	h.deps.Cache.Save(resultcache.KindOptimization, key, p.ID, resp)
	h.deps.Metrics.ObserveSolver(string(result.Objective), result.Iterations)
	h.deps.Archiver.Submit(archive.KindOptimization, p.ID, result.RunID, resp)
	h.deps.Observe("optimization", "ok", started)
	return outcome{response: resp}
}

// HandleOptimize handles POST /api/optimize
func (h *Handler) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	body, err := httpapi.ReadBody(w, r)
	if err != nil {
		httpapi.RespondBodyError(w, h.log, err)
		return
	}

	out := h.run(r.Context(), body, nil)
	switch {
	case out.validation != nil:
		httpapi.RespondValidation(w, h.log, *out.validation)
	case out.infeasible():
		httpapi.RespondError(w, h.log, http.StatusUnprocessableEntity, httpapi.CodeInfeasible, out.err.Error(), out.response)
	case out.err != nil:
		httpapi.RespondErr(w, h.log, out.err)
	case out.cached:
		httpapi.RespondCached(w, h.log, out.response)
	default:
		httpapi.Respond(w, h.log, http.StatusOK, out.response)
	}
}

// errorCode maps a run error to its public code.
func errorCode(err error) string {
	if errors.Is(err, optimization.ErrInfeasible) {
		return httpapi.CodeInfeasible
	}
	_, code := httpapi.StatusFor(err)
	return code
}
