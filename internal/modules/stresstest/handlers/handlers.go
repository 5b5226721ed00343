// Package handlers provides HTTP handlers for stress testing.
package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-engine/internal/archive"
	"github.com/aristath/portfolio-engine/internal/httpapi"
	"github.com/aristath/portfolio-engine/internal/modules/stresstest"
	"github.com/aristath/portfolio-engine/internal/modules/validation"
	"github.com/aristath/portfolio-engine/internal/resultcache"
)

// Handler handles stress test HTTP requests
type Handler struct {
	deps   httpapi.Deps
	engine *stresstest.Engine
	log    zerolog.Logger
}

// NewHandler creates a new stress test handler
func NewHandler(deps httpapi.Deps, engine *stresstest.Engine) *Handler {
	return &Handler{
		deps:   deps,
		engine: engine,
		log:    deps.Log.With().Str("handler", "stress_test").Logger(),
	}
}

// HandleRun handles POST /api/stress-test
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	body, err := httpapi.ReadBody(w, r)
	if err != nil {
		httpapi.RespondBodyError(w, h.log, err)
		return
	}

	parsed, res := h.deps.Validate(validation.KindStressTest, body)
	if !res.IsValid {
		httpapi.RespondValidation(w, h.log, res)
		return
	}
	req := parsed.(validation.StressTestRequest)

	p, err := h.deps.Snapshots.GetSnapshot(r.Context(), *req.PortfolioID)
	if err != nil {
		h.deps.Observe("stress_test", "error", started)
		httpapi.RespondErr(w, h.log, err)
		return
	}

	var cached stresstest.Report
	key, hit := h.deps.Cache.Lookup(resultcache.KindStressTest, p, req.Scenarios, &cached)
	if hit {
		h.deps.Observe("stress_test", "cached", started)
		httpapi.RespondCached(w, h.log, &cached)
		return
	}

	report, err := h.engine.Run(r.Context(), p, req)
	if err != nil {
		h.deps.Observe("stress_test", "error", started)
		httpapi.RespondErr(w, h.log, err)
		return
	}

	h.deps.Cache.Save(resultcache.KindStressTest, key, p.ID, report)
	h.deps.Metrics.CountBreaches(report.BreachedCount)
	h.deps.Archiver.Submit(archive.KindStressTest, p.ID, uuid.NewString(), report)
	h.deps.Observe("stress_test", "ok", started)

	httpapi.Respond(w, h.log, http.StatusOK, report)
}

// HandleGetScenarios handles GET /api/stress-test/scenarios
func (h *Handler) HandleGetScenarios(w http.ResponseWriter, r *http.Request) {
	httpapi.Respond(w, h.log, http.StatusOK, map[string]interface{}{
		"builtin": []stresstest.ScenarioType{
			stresstest.UniformShock,
			stresstest.SectorShock,
			stresstest.RiskLevelShock,
		},
		"presets": h.engine.Catalog().Presets(),
	})
}
