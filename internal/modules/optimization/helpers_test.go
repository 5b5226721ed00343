package optimization

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-engine/internal/domain"
)

var asOf = time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)

func quietLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func ptr[T any](v T) *T { return &v }

func holding(id, sector string, level domain.RiskLevel, value float64) domain.PortfolioInvestment {
	return domain.PortfolioInvestment{
		ID:             id,
		Name:           id,
		Sector:         sector,
		RiskLevel:      level,
		Status:         domain.InvestmentActive,
		InvestedAmount: value,
		CurrentValue:   value,
		InvestedAt:     asOf.AddDate(-2, 0, 0),
	}
}

func suspended(inv domain.PortfolioInvestment) domain.PortfolioInvestment {
	inv.Status = domain.InvestmentSuspended
	return inv
}

func portfolioOf(investments ...domain.PortfolioInvestment) *domain.Portfolio {
	p := &domain.Portfolio{ID: "p1", Name: "test", Investments: investments}
	for _, inv := range investments {
		p.TotalInvested += inv.InvestedAmount
		p.TotalValue += inv.CurrentValue
	}
	p.TotalReturn = p.TotalValue - p.TotalInvested
	return p
}

func buildProblem(p *domain.Portfolio, c Constraints) (*problem, error) {
	return NewConstraintsManager(quietLogger()).build(p, c, DefaultConfig().RiskFreeRate, asOf)
}
