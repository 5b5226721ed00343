package optimization

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/internal/modules/diversification"
	"github.com/aristath/portfolio-engine/internal/modules/optimization/progress"
	"github.com/aristath/portfolio-engine/internal/modules/risk"
	"github.com/aristath/portfolio-engine/internal/modules/validation"
)

// Service runs optimization requests end to end.
type Service struct {
	log         zerolog.Logger
	cfg         Config
	constraints *ConstraintsManager
	solver      *MVOptimizer
	enforcer    *diversification.Enforcer
	assessor    *risk.Assessor
	now         func() time.Time
}

// NewService creates an optimization service.
func NewService(log zerolog.Logger, cfg Config, enforcer *diversification.Enforcer, assessor *risk.Assessor) *Service {
	return &Service{
		log:         log.With().Str("service", "optimization").Logger(),
		cfg:         cfg,
		constraints: NewConstraintsManager(log),
		solver:      NewMVOptimizer(log, cfg),
		enforcer:    enforcer,
		assessor:    assessor,
		now:         time.Now,
	}
}

// WithClock returns a copy of the service that values track records as of
// clock().
func (s *Service) WithClock(clock func() time.Time) *Service {
	c := *s
	c.now = clock
	c.assessor = s.assessor.WithClock(clock)
	return &c
}

// Optimize computes a rebalanced allocation for p. The request must already
// have passed the validation gateway.
//
// An empty feasible region returns the INFEASIBLE result together with an
// error wrapping ErrInfeasible. Cancellation returns only the error.
func (s *Service) Optimize(ctx context.Context, p *domain.Portfolio, req validation.OptimizationRequest, cb progress.Callback) (*Result, error) {
	started := time.Now()

	objective, err := domain.ParseObjective(validation.String(req.Objective))
	if err != nil {
		return nil, fmt.Errorf("failed to parse objective: %w", err)
	}
	if p == nil {
		return nil, domain.ErrPortfolioNotFound
	}

	snapshot := p.Clone()
	machine := newStateMachine()
	c := ConstraintsFrom(req.Constraints)
	budget := validation.Float(req.RebalancingBudget, math.Inf(1))

	res := &Result{
		RunID:           uuid.NewString(),
		PortfolioID:     snapshot.ID,
		Objective:       objective,
		Constraints:     c,
		Recommendations: []AllocationRecommendation{},
		RebalancingCost: decimal.Zero,
		Turnover:        decimal.Zero,
		Budget:          decimal.Zero,
	}
	if !math.IsInf(budget, 1) {
		res.Budget = decimal.NewFromFloat(budget).Round(2)
	}

	log := s.log.With().Str("run_id", res.RunID).Str("portfolio_id", snapshot.ID).Str("objective", string(objective)).Logger()
	log.Info().Msg("Starting optimization")

	progress.Step(cb, progress.PhaseModel, 0, 1, "building feasible region")
	pr, err := s.constraints.build(snapshot, c, s.cfg.RiskFreeRate, s.now())
	if err != nil {
		if !errors.Is(err, ErrInfeasible) {
			return nil, fmt.Errorf("failed to build feasible region: %w", err)
		}
		if advErr := machine.advance(StateInfeasible); advErr != nil {
			return nil, advErr
		}
		res.Status = StatusInfeasible
		res.States = machine.trace()
		res.Warnings = append(res.Warnings, err.Error())
		res.Duration = time.Since(started)
		progress.Step(cb, progress.PhaseDone, 1, 1, "feasible region is empty")
		log.Warn().Err(err).Msg("Optimization infeasible")
		return res, fmt.Errorf("failed to optimize portfolio %s: %w", snapshot.ID, err)
	}
	res.PortfolioValue = pr.value
	progress.Step(cb, progress.PhaseModel, 1, 1, "feasible region ready")

	if err := machine.advance(StateSolving); err != nil {
		return nil, err
	}

	t := targets{
		ret:  validation.Float(req.TargetReturn, 0),
		risk: validation.Float(req.TargetRisk, 0),
	}
	outcome, err := s.solver.solve(ctx, pr, objective, t, cb)
	if err != nil {
		log.Warn().Err(err).Msg("Solver aborted")
		return nil, err
	}
	res.Solver = outcome.method
	res.Iterations = outcome.iterations

	progress.Step(cb, progress.PhaseBudget, 0, 1, "applying rebalancing budget")
	budgeted := pr.applyBudget(outcome.weights, budget/pr.value)
	res.BudgetLimited = budgeted.limited
	if budgeted.limited {
		res.Warnings = append(res.Warnings, "rebalancing budget limits the move toward the optimal allocation")
	}
	progress.Step(cb, progress.PhaseBudget, 1, 1, "budget applied")

	progress.Step(cb, progress.PhaseRecommendations, 0, 2, "settling trades")
	weights, warnings := pr.settleImmaterial(budgeted.weights, s.cfg.MaterialityThreshold)
	res.Warnings = append(res.Warnings, warnings...)

	weights, warnings = pr.enforceDiversification(weights, s.diversificationFor(c), s.cfg.MaterialityThreshold)
	res.Warnings = append(res.Warnings, warnings...)

	recs, turnover := pr.allocationRecommendations(weights)
	res.Recommendations = recs
	res.Turnover = turnover
	res.RebalancingCost = turnover.Mul(decimal.NewFromFloat(s.cfg.TransactionCostRate)).Round(2)
	res.BudgetExceeded = budgeted.exceeded && !math.IsInf(budget, 1) && turnover.GreaterThan(res.Budget)
	if res.BudgetExceeded {
		res.Warnings = append(res.Warnings, fmt.Sprintf("constraints require turnover of %s, above the rebalancing budget of %s",
			turnover.StringFixed(2), res.Budget.StringFixed(2)))
	}
	progress.Step(cb, progress.PhaseRecommendations, 1, 2, "measuring allocations")

	before, after, err := s.measure(ctx, snapshot, pr, weights)
	if err != nil {
		return nil, err
	}
	res.Original = before
	res.Optimized = after
	res.Improvement = improvementOf(before, after)
	res.ExpectedReturn = after.ExpectedReturn
	res.ExpectedRisk = after.ExpectedRisk
	res.ExpectedSharpe = after.ExpectedSharpe
	res.Status = StatusSolved

	if err := machine.advance(StateSolved); err != nil {
		return nil, err
	}
	res.States = machine.trace()
	res.Strategies = strategyRecommendations(res)
	res.Duration = time.Since(started)
	progress.Step(cb, progress.PhaseRecommendations, 2, 2, "recommendations ready")
	progress.Step(cb, progress.PhaseDone, 1, 1, "optimization complete")

	log.Info().
		Str("solver", res.Solver).
		Int("iterations", res.Iterations).
		Str("turnover", res.Turnover.StringFixed(2)).
		Bool("budget_limited", res.BudgetLimited).
		Bool("budget_exceeded", res.BudgetExceeded).
		Dur("duration", res.Duration).
		Msg("Optimization solved")

	return res, nil
}

// diversificationFor tightens the enforcer's sector rule to the request's
// sector cap.
func (s *Service) diversificationFor(c Constraints) *diversification.Enforcer {
	limits := s.enforcer.Limits()
	if c.MaxSectorConcentration > 0 && c.MaxSectorConcentration < 1 {
		limits.MaxSectorShare = c.MaxSectorConcentration
	}
	return s.enforcer.WithLimits(limits)
}
