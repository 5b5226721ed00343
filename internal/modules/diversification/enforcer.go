// Package diversification checks candidate investments against position,
// high-risk and sector concentration limits.
package diversification

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-engine/internal/domain"
)

// Default limits as fractions of the resulting total.
const (
	DefaultMaxPositionShare = 0.20
	DefaultMaxHighRiskShare = 0.30
)

// Limits are the shares of the resulting total a candidate may reach.
// A zero MaxSectorShare disables the sector check.
type Limits struct {
	MaxPositionShare float64 `json:"maxPositionShare"`
	MaxHighRiskShare float64 `json:"maxHighRiskShare"`
	MaxSectorShare   float64 `json:"maxSectorShare"`
}

// DefaultLimits returns the 20% position and 30% high-risk limits.
func DefaultLimits() Limits {
	return Limits{
		MaxPositionShare: DefaultMaxPositionShare,
		MaxHighRiskShare: DefaultMaxHighRiskShare,
	}
}

// Exposure is the existing book a candidate is measured against.
type Exposure struct {
	Sectors  map[string]float64 `json:"sectors"`
	Total    float64            `json:"total"`
	HighRisk float64            `json:"highRisk"`
}

// Candidate is a proposed additional amount. Existing is what the same
// position already holds, zero for a new position.
type Candidate struct {
	Sector    string           `json:"sector"`
	RiskLevel domain.RiskLevel `json:"riskLevel"`
	Amount    float64          `json:"amount"`
	Existing  float64          `json:"existing"`
}

// Decision is the advisory verdict on one candidate.
type Decision struct {
	Violations       []domain.RuleViolation `json:"violations"`
	Allowed          bool                   `json:"allowed"`
	MaxAllowedAmount float64                `json:"maxAllowedAmount"`
}

// Codes lists the violation codes of the decision.
func (d Decision) Codes() []string {
	codes := make([]string, len(d.Violations))
	for i, v := range d.Violations {
		codes[i] = v.Code
	}
	return codes
}

// Has reports whether the decision carries the given code.
func (d Decision) Has(code string) bool {
	for _, v := range d.Violations {
		if v.Code == code {
			return true
		}
	}
	return false
}

// InvestedExposure builds the exposure of a portfolio's held positions from
// their invested amounts.
func InvestedExposure(p *domain.Portfolio) Exposure {
	return exposureOf(p.Holdings(), func(inv domain.PortfolioInvestment) float64 { return inv.InvestedAmount })
}

// ValueExposure builds the exposure of held positions from current values.
func ValueExposure(holdings []domain.PortfolioInvestment) Exposure {
	return exposureOf(holdings, func(inv domain.PortfolioInvestment) float64 { return inv.CurrentValue })
}

func exposureOf(holdings []domain.PortfolioInvestment, amount func(domain.PortfolioInvestment) float64) Exposure {
	e := Exposure{Sectors: make(map[string]float64)}
	for _, inv := range holdings {
		v := amount(inv)
		e.Total += v
		if inv.RiskLevel.IsHighRisk() {
			e.HighRisk += v
		}
		if inv.Sector != "" {
			e.Sectors[inv.Sector] += v
		}
	}
	return e
}

// Enforcer evaluates diversification rules. It is advisory: callers decide
// whether a violation blocks anything.
type Enforcer struct {
	log    zerolog.Logger
	limits Limits
}

// NewEnforcer creates an enforcer with the default limits.
func NewEnforcer(log zerolog.Logger) *Enforcer {
	return &Enforcer{
		log:    log.With().Str("component", "diversification").Logger(),
		limits: DefaultLimits(),
	}
}

// WithLimits returns a copy using the given limits.
func (e *Enforcer) WithLimits(limits Limits) *Enforcer {
	cp := *e
	cp.limits = limits
	return &cp
}

// Limits returns the active limits.
func (e *Enforcer) Limits() Limits {
	return e.limits
}

// Check evaluates a candidate against an existing exposure. Every rule is
// evaluated; violations are collected, not short-circuited.
func (e *Enforcer) Check(existing Exposure, c Candidate) Decision {
	resulting := existing.Total + c.Amount
	d := Decision{MaxAllowedAmount: e.MaxAllowed(existing, c)}

	if position := c.Existing + c.Amount; position > e.limits.MaxPositionShare*resulting {
		d.Violations = append(d.Violations, domain.RuleViolation{
			Code:    domain.CodeConcentrationRiskExceeded,
			Message: fmt.Sprintf("position of %.2f exceeds %.0f%% of resulting total %.2f", position, e.limits.MaxPositionShare*100, resulting),
			Details: map[string]float64{"position": position, "limit": e.limits.MaxPositionShare, "share": share(position, resulting)},
		})
	}

	highRisk := existing.HighRisk
	if c.RiskLevel.IsHighRisk() {
		highRisk += c.Amount
	}
	if highRisk > e.limits.MaxHighRiskShare*resulting {
		d.Violations = append(d.Violations, domain.RuleViolation{
			Code:    domain.CodeHighRiskLimitExceeded,
			Message: fmt.Sprintf("high-risk exposure of %.2f exceeds %.0f%% of resulting total %.2f", highRisk, e.limits.MaxHighRiskShare*100, resulting),
			Details: map[string]float64{"exposure": highRisk, "limit": e.limits.MaxHighRiskShare, "share": share(highRisk, resulting)},
		})
	}

	if e.limits.MaxSectorShare > 0 && c.Sector != "" {
		sector := existing.Sectors[c.Sector] + c.Amount
		if sector > e.limits.MaxSectorShare*resulting {
			d.Violations = append(d.Violations, domain.RuleViolation{
				Code:    domain.CodeSectorConcentrationExceeded,
				Message: fmt.Sprintf("sector %s at %.2f exceeds %.0f%% of resulting total %.2f", c.Sector, sector, e.limits.MaxSectorShare*100, resulting),
				Details: map[string]float64{"exposure": sector, "limit": e.limits.MaxSectorShare, "share": share(sector, resulting)},
			})
		}
	}

	d.Allowed = len(d.Violations) == 0
	if !d.Allowed {
		e.log.Debug().
			Strs("codes", d.Codes()).
			Float64("amount", c.Amount).
			Float64("existing_total", existing.Total).
			Msg("Diversification limits exceeded")
	}
	return d
}

// MaxAllowed returns the largest amount of the candidate's kind that passes
// every upper-bound rule, floored at 0. A non-high-risk candidate only dilutes
// high-risk exposure and so is not capped by that rule.
func (e *Enforcer) MaxAllowed(existing Exposure, c Candidate) float64 {
	limit := math.Inf(1)

	// p + a <= s(T + a)  =>  a <= (sT - p) / (1 - s)
	if s := e.limits.MaxPositionShare; s < 1 {
		limit = math.Min(limit, (s*existing.Total-c.Existing)/(1-s))
	}
	if s := e.limits.MaxHighRiskShare; c.RiskLevel.IsHighRisk() && s < 1 {
		limit = math.Min(limit, (s*existing.Total-existing.HighRisk)/(1-s))
	}
	if s := e.limits.MaxSectorShare; s > 0 && s < 1 && c.Sector != "" {
		limit = math.Min(limit, (s*existing.Total-existing.Sectors[c.Sector])/(1-s))
	}

	if math.IsInf(limit, 1) {
		return c.Amount
	}
	return math.Max(0, limit)
}

func share(part, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return part / total
}
