package validation

import (
	"time"
)

// Kind discriminates the request variants accepted by the engine.
type Kind string

const (
	KindInvestmentApplication Kind = "investment_application"
	KindPortfolioRecord       Kind = "portfolio_record"
	KindOptimization          Kind = "optimization"
	KindRiskAssessment        Kind = "risk_assessment"
	KindStressTest            Kind = "stress_test"
	KindReturnCalculation     Kind = "return_calculation"
)

// Request is the closed set of request variants. The unexported marker keeps
// implementations inside this package so Gateway.Validate stays exhaustive.
type Request interface {
	Kind() Kind
	isRequest()
}

// Optional and required inputs are pointers: nil means the field was absent
// or carried the wrong JSON type (reported separately at parse time).

// InvestmentApplicationRequest asks to fund a project from a portfolio.
type InvestmentApplicationRequest struct {
	ApplicationID string   `json:"applicationId,omitempty"`
	UserID        string   `json:"userId,omitempty"`
	PortfolioID   string   `json:"portfolioId,omitempty"`
	ProjectID     *string  `json:"projectId"`
	Amount        *float64 `json:"amount"`
	Currency      *string  `json:"currency"`
	RiskLevel     *string  `json:"riskLevel,omitempty"`
	Sector        string   `json:"sector,omitempty"`
}

// PortfolioRecordRequest is a portfolio record submitted for checking.
type PortfolioRecordRequest struct {
	Name          *string  `json:"name"`
	RiskScore     *float64 `json:"riskScore,omitempty"`
	TotalValue    *float64 `json:"totalValue,omitempty"`
	TotalInvested *float64 `json:"totalInvested,omitempty"`
}

// ConstraintsInput carries the optimizer constraint fractions as submitted.
type ConstraintsInput struct {
	MaxPositionSize        *float64 `json:"maxPositionSize,omitempty"`
	MinPositionSize        *float64 `json:"minPositionSize,omitempty"`
	MaxSectorConcentration *float64 `json:"maxSectorConcentration,omitempty"`
	LiquidityRequirement   *float64 `json:"liquidityRequirement,omitempty"`
	RiskBudget             *float64 `json:"riskBudget,omitempty"`
}

// OptimizationRequest asks for a rebalanced allocation of a portfolio.
type OptimizationRequest struct {
	PortfolioID       *string          `json:"portfolioId"`
	Objective         *string          `json:"objective"`
	Constraints       ConstraintsInput `json:"constraints"`
	TargetReturn      *float64         `json:"targetReturn,omitempty"`
	TargetRisk        *float64         `json:"targetRisk,omitempty"`
	RebalancingBudget *float64         `json:"rebalancingBudget"`
}

// RiskOptions tunes a risk assessment.
type RiskOptions struct {
	ConfidenceLevel *float64 `json:"confidenceLevel,omitempty"`
	TimeHorizon     *float64 `json:"timeHorizon,omitempty"`
	RiskFreeRate    *float64 `json:"riskFreeRate,omitempty"`
	BenchmarkReturn *float64 `json:"benchmarkReturn,omitempty"`
}

// RiskAssessmentRequest asks for the risk metrics of a portfolio.
type RiskAssessmentRequest struct {
	PortfolioID *string     `json:"portfolioId"`
	Options     RiskOptions `json:"options"`
}

// StressScenarioInput is one named shock scenario.
type StressScenarioInput struct {
	Name             *string            `json:"name"`
	Type             *string            `json:"type"`
	MaxLossThreshold *float64           `json:"maxLossThreshold,omitempty"`
	ShockPercent     *float64           `json:"shockPercent,omitempty"`
	DefaultShock     *float64           `json:"defaultShock,omitempty"`
	SectorShocks     map[string]float64 `json:"sectorShocks,omitempty"`
	RiskLevelShocks  map[string]float64 `json:"riskLevelShocks,omitempty"`
}

// StressTestRequest runs shock scenarios against a portfolio.
type StressTestRequest struct {
	PortfolioID *string               `json:"portfolioId"`
	Scenarios   []StressScenarioInput `json:"scenarios"`
}

// CashFlowInput is one dated cash flow of a return calculation.
type CashFlowInput struct {
	Date   *time.Time `json:"date"`
	Amount *float64   `json:"amount"`
	Type   *string    `json:"type"`
}

// ValuePointInput is one dated valuation used for volatility.
type ValuePointInput struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// ReturnInvestment is one position of a return calculation.
type ReturnInvestment struct {
	ID             string            `json:"id,omitempty"`
	Name           string            `json:"name,omitempty"`
	Amount         *float64          `json:"amount"`
	CurrentValue   *float64          `json:"currentValue"`
	InvestmentDate *time.Time        `json:"investmentDate"`
	CashFlows      []CashFlowInput   `json:"cashFlows,omitempty"`
	ValueHistory   []ValuePointInput `json:"valueHistory,omitempty"`
}

// ReturnCalculationRequest computes a return metric over investments.
type ReturnCalculationRequest struct {
	Investments     []ReturnInvestment `json:"investments"`
	CalculationType *string            `json:"calculationType"`
	BenchmarkRate   *float64           `json:"benchmarkRate,omitempty"`
	AsOf            *time.Time         `json:"asOf,omitempty"`
}

func (InvestmentApplicationRequest) Kind() Kind { return KindInvestmentApplication }
func (PortfolioRecordRequest) Kind() Kind       { return KindPortfolioRecord }
func (OptimizationRequest) Kind() Kind          { return KindOptimization }
func (RiskAssessmentRequest) Kind() Kind        { return KindRiskAssessment }
func (StressTestRequest) Kind() Kind            { return KindStressTest }
func (ReturnCalculationRequest) Kind() Kind     { return KindReturnCalculation }

func (InvestmentApplicationRequest) isRequest() {}
func (PortfolioRecordRequest) isRequest()       {}
func (OptimizationRequest) isRequest()          {}
func (RiskAssessmentRequest) isRequest()        {}
func (StressTestRequest) isRequest()            {}
func (ReturnCalculationRequest) isRequest()     {}

// Float returns the value behind p or def when p is nil.
func Float(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

// String returns the value behind p or "" when p is nil.
func String(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
