// Package domain provides core domain models and types.
package domain

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// invariantTolerance absorbs rounding in stored monetary totals.
const invariantTolerance = 0.01

// ValuePoint is one dated observation of a value series.
type ValuePoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// CashFlow is a dated, signed amount. Outflows from the investor are negative.
type CashFlow struct {
	Date   time.Time    `json:"date"`
	Type   CashFlowType `json:"type"`
	Amount float64      `json:"amount"`
}

// PortfolioInvestment is one holding of a portfolio.
type PortfolioInvestment struct {
	InvestedAt     time.Time        `json:"invested_at"`
	ID             string           `json:"id"`
	PortfolioID    string           `json:"portfolio_id"`
	ProjectID      string           `json:"project_id"`
	Name           string           `json:"name"`
	Sector         string           `json:"sector"`
	RiskLevel      RiskLevel        `json:"risk_level"`
	Status         InvestmentStatus `json:"status"`
	History        []ValuePoint     `json:"history,omitempty"`
	InvestedAmount float64          `json:"invested_amount"`
	CurrentValue   float64          `json:"current_value"`
}

// Portfolio is a read-only snapshot of a user's portfolio.
type Portfolio struct {
	UpdatedAt        time.Time             `json:"updated_at"`
	ID               string                `json:"id"`
	UserID           string                `json:"user_id"`
	Name             string                `json:"name"`
	Investments      []PortfolioInvestment `json:"investments"`
	History          []ValuePoint          `json:"history,omitempty"`
	TotalInvested    float64               `json:"total_invested"`
	TotalValue       float64               `json:"total_value"`
	TotalReturn      float64               `json:"total_return"`
	ReturnPercentage float64               `json:"return_percentage"`
	RiskScore        float64               `json:"risk_score"`
}

// CheckInvariant verifies TotalValue = TotalInvested + TotalReturn. A broken
// invariant is reported, never repaired.
func (p *Portfolio) CheckInvariant() error {
	diff := p.TotalValue - (p.TotalInvested + p.TotalReturn)
	if math.Abs(diff) > invariantTolerance {
		return RuleViolation{
			Code:    CodePortfolioInvariantBroken,
			Message: fmt.Sprintf("total value %.2f differs from invested %.2f plus return %.2f", p.TotalValue, p.TotalInvested, p.TotalReturn),
			Details: map[string]float64{"difference": diff},
		}
	}
	return nil
}

// Holdings returns the investments that still carry value (ACTIVE or SUSPENDED).
func (p *Portfolio) Holdings() []PortfolioInvestment {
	out := make([]PortfolioInvestment, 0, len(p.Investments))
	for _, inv := range p.Investments {
		if inv.Status.Holds() {
			out = append(out, inv)
		}
	}
	return out
}

// HeldValue sums the current value of held investments.
func (p *Portfolio) HeldValue() float64 {
	total := 0.0
	for _, inv := range p.Holdings() {
		total += inv.CurrentValue
	}
	return total
}

// HeldInvested sums the invested amount of held investments.
func (p *Portfolio) HeldInvested() float64 {
	total := 0.0
	for _, inv := range p.Holdings() {
		total += inv.InvestedAmount
	}
	return total
}

// Clone returns a deep copy so engine code can never alias snapshot state.
func (p *Portfolio) Clone() *Portfolio {
	if p == nil {
		return nil
	}
	c := *p
	c.History = cloneSeries(p.History)
	c.Investments = make([]PortfolioInvestment, len(p.Investments))
	for i, inv := range p.Investments {
		inv.History = cloneSeries(inv.History)
		c.Investments[i] = inv
	}
	return &c
}

// SortedHistory returns the portfolio value series ordered by date.
func (p *Portfolio) SortedHistory() []ValuePoint {
	return SortSeries(p.History)
}

// SortSeries returns a date-ordered copy of a value series.
func SortSeries(series []ValuePoint) []ValuePoint {
	out := cloneSeries(series)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

// SeriesValues extracts the values of a series in order.
func SeriesValues(series []ValuePoint) []float64 {
	values := make([]float64, len(series))
	for i, p := range series {
		values[i] = p.Value
	}
	return values
}

func cloneSeries(series []ValuePoint) []ValuePoint {
	if series == nil {
		return nil
	}
	out := make([]ValuePoint, len(series))
	copy(out, series)
	return out
}
