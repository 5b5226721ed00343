// Package optimization produces constrained rebalancing recommendations for a
// portfolio snapshot.
package optimization

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/internal/modules/validation"
)

// ErrInfeasible is returned when no allocation satisfies every constraint.
var ErrInfeasible = errors.New("feasible region is empty")

// Status is the terminal outcome of an optimization.
type Status string

const (
	StatusSolved     Status = "SOLVED"
	StatusInfeasible Status = "INFEASIBLE"
)

// Config holds engine-wide optimizer settings.
type Config struct {
	Timeout              time.Duration
	MaxIterations        int
	MaterialityThreshold float64
	TransactionCostRate  float64
	RiskFreeRate         float64
}

// DefaultConfig returns the standard optimizer settings.
func DefaultConfig() Config {
	return Config{
		Timeout:              10 * time.Second,
		MaxIterations:        2000,
		MaterialityThreshold: 0.005,
		TransactionCostRate:  0.001,
		RiskFreeRate:         0.02,
	}
}

// Constraints bound the recommended allocation. All values are fractions of
// the portfolio's held value. A zero RiskBudget disables the volatility cap.
type Constraints struct {
	MaxPositionSize        float64 `json:"maxPositionSize"`
	MinPositionSize        float64 `json:"minPositionSize"`
	MaxSectorConcentration float64 `json:"maxSectorConcentration"`
	LiquidityRequirement   float64 `json:"liquidityRequirement"`
	RiskBudget             float64 `json:"riskBudget"`
}

// DefaultConstraints leaves every bound open.
func DefaultConstraints() Constraints {
	return Constraints{
		MaxPositionSize:        1,
		MaxSectorConcentration: 1,
	}
}

// ConstraintsFrom overlays submitted constraint fractions on the defaults.
func ConstraintsFrom(in validation.ConstraintsInput) Constraints {
	d := DefaultConstraints()
	return Constraints{
		MaxPositionSize:        validation.Float(in.MaxPositionSize, d.MaxPositionSize),
		MinPositionSize:        validation.Float(in.MinPositionSize, d.MinPositionSize),
		MaxSectorConcentration: validation.Float(in.MaxSectorConcentration, d.MaxSectorConcentration),
		LiquidityRequirement:   validation.Float(in.LiquidityRequirement, d.LiquidityRequirement),
		RiskBudget:             validation.Float(in.RiskBudget, d.RiskBudget),
	}
}

// AllocationRecommendation is the proposed change to one position.
type AllocationRecommendation struct {
	InvestmentID      string                  `json:"investmentId"`
	Name              string                  `json:"name"`
	Sector            string                  `json:"sector"`
	Action            domain.Action           `json:"action"`
	Status            domain.InvestmentStatus `json:"status"`
	TransactionAmount decimal.Decimal         `json:"transactionAmount"`
	CurrentWeight     float64                 `json:"currentWeight"`
	RecommendedWeight float64                 `json:"recommendedWeight"`
	Pinned            bool                    `json:"pinned,omitempty"`
}

// Improvement is the optimized allocation's metrics minus the original's.
type Improvement struct {
	ReturnImprovement float64 `json:"returnImprovement"`
	RiskReduction     float64 `json:"riskReduction"`
	SharpeImprovement float64 `json:"sharpeImprovement"`
	RiskScoreChange   float64 `json:"riskScoreChange"`
}

// AllocationMetrics are the forward-looking metrics of one allocation.
type AllocationMetrics struct {
	RiskLevel      domain.RiskLevel `json:"riskLevel"`
	ExpectedReturn float64          `json:"expectedReturn"`
	ExpectedRisk   float64          `json:"expectedRisk"`
	ExpectedSharpe float64          `json:"expectedSharpe"`
	RiskScore      float64          `json:"riskScore"`
	CashWeight     float64          `json:"cashWeight"`
}

// Result is the complete outcome of one optimization request. It is only
// returned once the state machine has reached a terminal state.
type Result struct {
	RunID           string                     `json:"runId"`
	PortfolioID     string                     `json:"portfolioId"`
	Objective       domain.Objective           `json:"objective"`
	Status          Status                     `json:"status"`
	States          []State                    `json:"states"`
	Recommendations []AllocationRecommendation `json:"recommendations"`
	Warnings        []string                   `json:"warnings,omitempty"`
	Constraints     Constraints                `json:"constraints"`
	Original        AllocationMetrics          `json:"original"`
	Optimized       AllocationMetrics          `json:"optimized"`
	Improvement     Improvement                `json:"improvement"`
	RebalancingCost decimal.Decimal            `json:"rebalancingCost"`
	Turnover        decimal.Decimal            `json:"turnover"`
	Budget          decimal.Decimal            `json:"rebalancingBudget"`
	Solver          string                     `json:"solver"`
	ExpectedReturn  float64                    `json:"expectedReturn"`
	ExpectedRisk    float64                    `json:"expectedRisk"`
	ExpectedSharpe  float64                    `json:"expectedSharpe"`
	PortfolioValue  float64                    `json:"portfolioValue"`
	Iterations      int                        `json:"iterations"`
	BudgetLimited   bool                       `json:"budgetLimited"`
	BudgetExceeded  bool                       `json:"budgetExceeded"`
	Duration        time.Duration              `json:"-"`
	Strategies      []StrategyRecommendation   `json:"-"`
}

// StrategyRecommendation is an implementation hint derived from a result.
type StrategyRecommendation struct {
	Priority             domain.Priority `json:"priority"`
	Title                string          `json:"title"`
	Description          string          `json:"description"`
	TimeHorizon          string          `json:"timeHorizon"`
	ActionItems          []string        `json:"actionItems"`
	ExpectedReturnImpact float64         `json:"expectedReturnImpact"`
	ExpectedRiskImpact   float64         `json:"expectedRiskImpact"`
}
