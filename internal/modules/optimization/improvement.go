package optimization

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/internal/modules/returns"
	"github.com/aristath/portfolio-engine/internal/modules/risk"
)

// measure evaluates the original and the optimized allocation side by side.
// Expected return and volatility come from the problem's model so they match
// the constraints the solver honoured; the risk score and band come from the
// risk assessor run against each allocation as a hypothetical snapshot.
func (s *Service) measure(ctx context.Context, p *domain.Portfolio, pr *problem, optimized []float64) (AllocationMetrics, AllocationMetrics, error) {
	var before, after AllocationMetrics

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := s.metricsFor(gctx, p, pr, pr.w0)
		before = m
		return err
	})
	g.Go(func() error {
		m, err := s.metricsFor(gctx, p, pr, optimized)
		after = m
		return err
	})
	if err := g.Wait(); err != nil {
		return AllocationMetrics{}, AllocationMetrics{}, fmt.Errorf("failed to measure allocations: %w", err)
	}
	return before, after, nil
}

func (s *Service) metricsFor(ctx context.Context, p *domain.Portfolio, pr *problem, w []float64) (AllocationMetrics, error) {
	if err := ctx.Err(); err != nil {
		return AllocationMetrics{}, err
	}

	m := AllocationMetrics{
		ExpectedReturn: pr.expectedReturn(w),
		ExpectedRisk:   pr.volatility(w),
		CashWeight:     1 - sumOf(w),
	}
	if sharpe, und := returns.SharpeRatio(m.ExpectedReturn, pr.rf, m.ExpectedRisk); und == nil {
		m.ExpectedSharpe = sharpe
	}

	assessment := s.assessor.Assess(hypothetical(p, pr, w), risk.DefaultOptions())
	m.RiskScore = assessment.RiskScore
	m.RiskLevel = assessment.RiskLevel
	return m, nil
}

// hypothetical rebuilds the snapshot with holdings valued at weights w. The
// portfolio-level history belongs to the real allocation and is dropped, so
// the assessor falls back to the holdings' covariance model.
func hypothetical(p *domain.Portfolio, pr *problem, w []float64) *domain.Portfolio {
	out := p.Clone()
	out.History = nil
	out.Investments = make([]domain.PortfolioInvestment, len(pr.positions))
	total := 0.0
	for i, pos := range pr.positions {
		inv := pos.inv
		inv.CurrentValue = w[i] * pr.value
		out.Investments[i] = inv
		total += inv.CurrentValue
	}
	out.TotalValue = total
	out.TotalReturn = total - out.TotalInvested
	return out
}

func improvementOf(before, after AllocationMetrics) Improvement {
	return Improvement{
		ReturnImprovement: after.ExpectedReturn - before.ExpectedReturn,
		RiskReduction:     before.ExpectedRisk - after.ExpectedRisk,
		SharpeImprovement: after.ExpectedSharpe - before.ExpectedSharpe,
		RiskScoreChange:   after.RiskScore - before.RiskScore,
	}
}
