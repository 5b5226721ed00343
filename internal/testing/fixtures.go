package testing

import (
	"database/sql"
	"testing"
	"time"

	"github.com/aristath/portfolio-engine/internal/domain"
)

// FixtureAsOf is the valuation date of the fixture portfolios.
var FixtureAsOf = time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)

// NewPortfolioFixture returns a consistent portfolio of five holdings and one
// exited position, with two years of monthly valuation history.
func NewPortfolioFixture(id string) *domain.Portfolio {
	investedAt := FixtureAsOf.AddDate(-2, 0, 0)
	inv := func(n, name, sector string, level domain.RiskLevel, status domain.InvestmentStatus, invested, value float64) domain.PortfolioInvestment {
		return domain.PortfolioInvestment{
			ID:             id + "-" + n,
			PortfolioID:    id,
			ProjectID:      "project-" + n,
			Name:           name,
			Sector:         sector,
			RiskLevel:      level,
			Status:         status,
			InvestedAmount: invested,
			CurrentValue:   value,
			InvestedAt:     investedAt,
		}
	}

	p := &domain.Portfolio{
		ID:     id,
		UserID: "user-1",
		Name:   "Growth book",
		Investments: []domain.PortfolioInvestment{
			inv("1", "Solar Park", "renewable_energy", domain.RiskLevelMedium, domain.InvestmentActive, 2000, 2300),
			inv("2", "City Clinic", "healthcare", domain.RiskLevelLow, domain.InvestmentActive, 1500, 1600),
			inv("3", "Chip Fab", "technology", domain.RiskLevelHigh, domain.InvestmentActive, 1500, 1400),
			inv("4", "Toll Road", "infrastructure", domain.RiskLevelLow, domain.InvestmentActive, 1000, 1050),
			inv("5", "Vertical Farm", "agriculture", domain.RiskLevelVeryHigh, domain.InvestmentSuspended, 500, 450),
			inv("6", "Old Fund", "finance", domain.RiskLevelMedium, domain.InvestmentCompleted, 800, 0),
		},
		UpdatedAt: FixtureAsOf,
	}
	for _, i := range p.Investments {
		p.TotalInvested += i.InvestedAmount
		p.TotalValue += i.CurrentValue
	}
	p.TotalReturn = p.TotalValue - p.TotalInvested
	p.ReturnPercentage = p.TotalReturn / p.TotalInvested * 100
	p.RiskScore = 45

	for m := 0; m <= 24; m++ {
		date := investedAt.AddDate(0, m, 0)
		growth := 1 + 0.004*float64(m)
		if m%5 == 3 {
			growth -= 0.03
		}
		p.History = append(p.History, domain.ValuePoint{Date: date, Value: 6500 * growth})
		for k := range p.Investments[:5] {
			iv := &p.Investments[k]
			iv.History = append(iv.History, domain.ValuePoint{Date: date, Value: iv.InvestedAmount * growth})
		}
	}
	return p
}

// SeedPortfolio writes a portfolio with its investments and histories.
func SeedPortfolio(t *testing.T, db *sql.DB, p *domain.Portfolio) {
	t.Helper()

	exec := func(query string, args ...any) {
		t.Helper()
		if _, err := db.Exec(query, args...); err != nil {
			t.Fatalf("Failed to seed portfolio %s: %v", p.ID, err)
		}
	}

	exec(`INSERT INTO portfolios (id, user_id, name, total_invested, total_value, total_return,
		return_percentage, risk_score, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Name, p.TotalInvested, p.TotalValue, p.TotalReturn,
		p.ReturnPercentage, p.RiskScore, p.UpdatedAt.Unix())

	for _, pt := range p.History {
		exec("INSERT INTO valuation_points (portfolio_id, investment_id, date, value) VALUES (?, '', ?, ?)",
			p.ID, pt.Date.Unix(), pt.Value)
	}

	for _, inv := range p.Investments {
		exec(`INSERT INTO portfolio_investments (id, portfolio_id, project_id, name, sector,
			risk_level, status, invested_amount, current_value, invested_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			inv.ID, p.ID, inv.ProjectID, inv.Name, inv.Sector, string(inv.RiskLevel),
			string(inv.Status), inv.InvestedAmount, inv.CurrentValue, inv.InvestedAt.Unix())
		for _, pt := range inv.History {
			exec("INSERT INTO valuation_points (portfolio_id, investment_id, date, value) VALUES (?, ?, ?, ?)",
				p.ID, inv.ID, pt.Date.Unix(), pt.Value)
		}
	}
}
