// Package stresstest applies deterministic shock scenarios to a portfolio
// snapshot and reports the simulated losses.
package stresstest

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/internal/modules/validation"
)

// ScenarioType selects the shock model of a scenario.
type ScenarioType string

const (
	UniformShock   ScenarioType = "UNIFORM_SHOCK"
	SectorShock    ScenarioType = "SECTOR_SHOCK"
	RiskLevelShock ScenarioType = "RISK_LEVEL_SHOCK"
)

func (t ScenarioType) builtin() bool {
	return t == UniformShock || t == SectorShock || t == RiskLevelShock
}

// maxParallelScenarios bounds the scenarios evaluated at once.
const maxParallelScenarios = 8

// PositionImpact is the effect of a scenario on one holding.
type PositionImpact struct {
	InvestmentID  string           `json:"investmentId"`
	Name          string           `json:"name"`
	Sector        string           `json:"sector"`
	RiskLevel     domain.RiskLevel `json:"riskLevel"`
	ShockPercent  float64          `json:"shockPercent"`
	CurrentValue  float64          `json:"currentValue"`
	StressedValue float64          `json:"stressedValue"`
	Loss          float64          `json:"loss"`
}

// ScenarioResult is the outcome of one scenario. A scenario that could not be
// evaluated carries Error and no figures.
type ScenarioResult struct {
	Error            *domain.RuleViolation `json:"error,omitempty"`
	MaxLossThreshold *float64              `json:"maxLossThreshold,omitempty"`
	Name             string                `json:"name"`
	Type             ScenarioType          `json:"type"`
	Description      string                `json:"description,omitempty"`
	Impacts          []PositionImpact      `json:"impacts,omitempty"`
	OriginalValue    float64               `json:"originalValue"`
	StressedValue    float64               `json:"stressedValue"`
	Loss             float64               `json:"loss"`
	LossPercent      float64               `json:"lossPercent"`
	Breached         bool                  `json:"breached"`
}

// Report collects the scenario results in request order.
type Report struct {
	AsOf          time.Time        `json:"asOf"`
	PortfolioID   string           `json:"portfolioId"`
	WorstScenario string           `json:"worstScenario,omitempty"`
	Results       []ScenarioResult `json:"results"`
	TotalValue    float64          `json:"totalValue"`
	MaxLoss       float64          `json:"maxLoss"`
	BreachedCount int              `json:"breachedCount"`
	FailedCount   int              `json:"failedCount"`
}

// shockModel resolves the shock percentage for a holding.
type shockModel struct {
	sectors     map[string]float64
	levels      map[domain.RiskLevel]float64
	defaultLoss float64
}

func (m shockModel) shockFor(inv domain.PortfolioInvestment) float64 {
	if s, ok := m.sectors[sectorKey(inv.Sector)]; ok && inv.Sector != "" {
		return s
	}
	if s, ok := m.levels[inv.RiskLevel]; ok {
		return s
	}
	return m.defaultLoss
}

// Engine runs stress scenarios.
type Engine struct {
	log     zerolog.Logger
	catalog *Catalog
	now     func() time.Time
}

// NewEngine creates an engine backed by the embedded scenario catalog.
func NewEngine(log zerolog.Logger) (*Engine, error) {
	catalog, err := LoadCatalog()
	if err != nil {
		return nil, err
	}
	return NewEngineWithCatalog(log, catalog), nil
}

// NewEngineWithCatalog creates an engine using the given catalog.
func NewEngineWithCatalog(log zerolog.Logger, catalog *Catalog) *Engine {
	return &Engine{
		log:     log.With().Str("component", "stress_test").Logger(),
		catalog: catalog,
		now:     time.Now,
	}
}

// WithClock returns a copy of the engine that stamps reports with clock().
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	c := *e
	c.now = clock
	return &c
}

// Catalog returns the engine's preset scenarios.
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// Run evaluates every scenario of req against p concurrently. A scenario of
// unknown type yields an UNKNOWN_SCENARIO_TYPE result while the others still
// run. Only cancellation fails the whole run.
func (e *Engine) Run(ctx context.Context, p *domain.Portfolio, req validation.StressTestRequest) (*Report, error) {
	if p == nil {
		return nil, domain.ErrPortfolioNotFound
	}
	snapshot := p.Clone()
	holdings := snapshot.Holdings()

	report := &Report{
		AsOf:        e.now(),
		PortfolioID: snapshot.ID,
		TotalValue:  snapshot.HeldValue(),
		Results:     make([]ScenarioResult, len(req.Scenarios)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelScenarios)
	for i, sc := range req.Scenarios {
		i, sc := i, sc
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			report.Results[i] = e.evaluate(holdings, sc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("stress test cancelled: %w", err)
	}

	for _, r := range report.Results {
		switch {
		case r.Error != nil:
			report.FailedCount++
			continue
		case r.Breached:
			report.BreachedCount++
		}
		if report.WorstScenario == "" || r.Loss > report.MaxLoss {
			report.WorstScenario = r.Name
			report.MaxLoss = r.Loss
		}
	}

	e.log.Debug().
		Str("portfolio_id", report.PortfolioID).
		Int("scenarios", len(report.Results)).
		Int("breached", report.BreachedCount).
		Int("failed", report.FailedCount).
		Msg("Stress test complete")

	return report, nil
}

// evaluate runs one scenario. It never fails: problems are reported on the
// result.
func (e *Engine) evaluate(holdings []domain.PortfolioInvestment, sc validation.StressScenarioInput) ScenarioResult {
	res := ScenarioResult{
		Name:             validation.String(sc.Name),
		Type:             ScenarioType(strings.ToUpper(strings.TrimSpace(validation.String(sc.Type)))),
		MaxLossThreshold: sc.MaxLossThreshold,
	}

	model, description, ok := e.modelFor(res.Type, sc)
	if !ok {
		res.Error = &domain.RuleViolation{
			Code:    domain.CodeUnknownScenarioType,
			Message: fmt.Sprintf("unknown scenario type %q", validation.String(sc.Type)),
		}
		e.log.Debug().Str("scenario", res.Name).Str("type", string(res.Type)).Msg("Unknown scenario type")
		return res
	}
	res.Description = description

	res.Impacts = make([]PositionImpact, len(holdings))
	for i, inv := range holdings {
		shock := model.shockFor(inv)
		loss := inv.CurrentValue * shock / 100
		impact := PositionImpact{
			InvestmentID:  inv.ID,
			Name:          inv.Name,
			Sector:        inv.Sector,
			RiskLevel:     inv.RiskLevel,
			ShockPercent:  shock,
			CurrentValue:  inv.CurrentValue,
			StressedValue: inv.CurrentValue - loss,
			Loss:          loss,
		}
		res.Impacts[i] = impact
		res.OriginalValue += impact.CurrentValue
		res.StressedValue += impact.StressedValue
	}
	res.Loss = res.OriginalValue - res.StressedValue
	if res.OriginalValue > 0 {
		res.LossPercent = res.Loss / res.OriginalValue * 100
	}
	if math.Abs(res.StressedValue) < 1e-9 {
		res.StressedValue = 0
	}
	if res.MaxLossThreshold != nil {
		res.Breached = res.LossPercent > *res.MaxLossThreshold
	}
	return res
}

func (e *Engine) modelFor(t ScenarioType, sc validation.StressScenarioInput) (shockModel, string, bool) {
	m := shockModel{
		sectors: make(map[string]float64),
		levels:  make(map[domain.RiskLevel]float64),
	}
	defaultShock := validation.Float(sc.DefaultShock, 0)

	switch t {
	case UniformShock:
		m.defaultLoss = validation.Float(sc.ShockPercent, defaultShock)
		return m, "uniform shock applied to every holding", true
	case SectorShock:
		m.defaultLoss = defaultShock
		for sector, shock := range sc.SectorShocks {
			m.sectors[sectorKey(sector)] = shock
		}
		return m, "per-sector shock", true
	case RiskLevelShock:
		m.defaultLoss = defaultShock
		addLevels(m.levels, sc.RiskLevelShocks)
		return m, "per-risk-level shock", true
	}

	preset, ok := e.catalog.Lookup(t)
	if !ok {
		return shockModel{}, "", false
	}
	m.defaultLoss = validation.Float(sc.DefaultShock, preset.DefaultShock)
	for sector, shock := range preset.SectorShocks {
		m.sectors[sector] = shock
	}
	for sector, shock := range sc.SectorShocks {
		m.sectors[sectorKey(sector)] = shock
	}
	addLevels(m.levels, preset.RiskLevelShocks)
	addLevels(m.levels, sc.RiskLevelShocks)
	return m, preset.Description, true
}

func addLevels(dst map[domain.RiskLevel]float64, src map[string]float64) {
	for level, shock := range src {
		if rl, err := domain.ParseRiskLevel(level); err == nil {
			dst[rl] = shock
		}
	}
}
