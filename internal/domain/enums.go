package domain

import (
	"fmt"
	"strings"
)

// RiskLevel is the declared risk band of an investment.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "LOW"
	RiskLevelMedium   RiskLevel = "MEDIUM"
	RiskLevelHigh     RiskLevel = "HIGH"
	RiskLevelVeryHigh RiskLevel = "VERY_HIGH"
)

// RiskLevels lists every risk level from lowest to highest.
func RiskLevels() []RiskLevel {
	return []RiskLevel{RiskLevelLow, RiskLevelMedium, RiskLevelHigh, RiskLevelVeryHigh}
}

// ParseRiskLevel converts a string into a RiskLevel, rejecting unknown values.
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch RiskLevel(strings.ToUpper(strings.TrimSpace(s))) {
	case RiskLevelLow:
		return RiskLevelLow, nil
	case RiskLevelMedium:
		return RiskLevelMedium, nil
	case RiskLevelHigh:
		return RiskLevelHigh, nil
	case RiskLevelVeryHigh:
		return RiskLevelVeryHigh, nil
	}
	return "", fmt.Errorf("unknown risk level %q", s)
}

// IsHighRisk reports whether the level counts toward the high-risk exposure cap.
func (r RiskLevel) IsHighRisk() bool {
	return r == RiskLevelHigh || r == RiskLevelVeryHigh
}

// ClassifyRiskScore maps a 0-10 score to its band: <=3 LOW, <=6 MEDIUM,
// <=8 HIGH, otherwise VERY_HIGH.
func ClassifyRiskScore(score float64) RiskLevel {
	switch {
	case score <= 3:
		return RiskLevelLow
	case score <= 6:
		return RiskLevelMedium
	case score <= 8:
		return RiskLevelHigh
	default:
		return RiskLevelVeryHigh
	}
}

// InvestmentStatus is the lifecycle state of a held investment.
type InvestmentStatus string

const (
	InvestmentActive    InvestmentStatus = "ACTIVE"
	InvestmentCompleted InvestmentStatus = "COMPLETED"
	InvestmentCancelled InvestmentStatus = "CANCELLED"
	InvestmentSuspended InvestmentStatus = "SUSPENDED"
)

// ParseInvestmentStatus converts a string into an InvestmentStatus.
func ParseInvestmentStatus(s string) (InvestmentStatus, error) {
	switch InvestmentStatus(strings.ToUpper(strings.TrimSpace(s))) {
	case InvestmentActive:
		return InvestmentActive, nil
	case InvestmentCompleted:
		return InvestmentCompleted, nil
	case InvestmentCancelled:
		return InvestmentCancelled, nil
	case InvestmentSuspended:
		return InvestmentSuspended, nil
	}
	return "", fmt.Errorf("unknown investment status %q", s)
}

// Holds reports whether the investment still carries value in the portfolio.
func (s InvestmentStatus) Holds() bool {
	return s == InvestmentActive || s == InvestmentSuspended
}

// ApplicationStatus is the review state of an investment application.
type ApplicationStatus string

const (
	ApplicationPending     ApplicationStatus = "PENDING"
	ApplicationUnderReview ApplicationStatus = "UNDER_REVIEW"
	ApplicationApproved    ApplicationStatus = "APPROVED"
	ApplicationRejected    ApplicationStatus = "REJECTED"
	ApplicationCancelled   ApplicationStatus = "CANCELLED"
)

// ParseApplicationStatus converts a string into an ApplicationStatus.
func ParseApplicationStatus(s string) (ApplicationStatus, error) {
	switch ApplicationStatus(strings.ToUpper(strings.TrimSpace(s))) {
	case ApplicationPending:
		return ApplicationPending, nil
	case ApplicationUnderReview:
		return ApplicationUnderReview, nil
	case ApplicationApproved:
		return ApplicationApproved, nil
	case ApplicationRejected:
		return ApplicationRejected, nil
	case ApplicationCancelled:
		return ApplicationCancelled, nil
	}
	return "", fmt.Errorf("unknown application status %q", s)
}

// CashFlowType tags the direction of a cash flow.
type CashFlowType string

const (
	CashFlowInflow  CashFlowType = "INFLOW"
	CashFlowOutflow CashFlowType = "OUTFLOW"
)

// ParseCashFlowType converts a string into a CashFlowType.
func ParseCashFlowType(s string) (CashFlowType, error) {
	switch CashFlowType(strings.ToUpper(strings.TrimSpace(s))) {
	case CashFlowInflow:
		return CashFlowInflow, nil
	case CashFlowOutflow:
		return CashFlowOutflow, nil
	}
	return "", fmt.Errorf("unknown cash flow type %q", s)
}

// Currency represents a supported currency code
type Currency string

const (
	CurrencyCNY Currency = "CNY"
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
)

// ParseCurrency converts a string into a supported Currency.
func ParseCurrency(s string) (Currency, error) {
	switch Currency(strings.ToUpper(strings.TrimSpace(s))) {
	case CurrencyCNY:
		return CurrencyCNY, nil
	case CurrencyUSD:
		return CurrencyUSD, nil
	case CurrencyEUR:
		return CurrencyEUR, nil
	}
	return "", fmt.Errorf("unsupported currency %q", s)
}

// Objective selects what the strategy optimizer solves for.
type Objective string

const (
	ObjectiveMaximizeReturn Objective = "MAXIMIZE_RETURN"
	ObjectiveMinimizeRisk   Objective = "MINIMIZE_RISK"
	ObjectiveMaximizeSharpe Objective = "MAXIMIZE_SHARPE"
	ObjectiveTargetReturn   Objective = "TARGET_RETURN"
	ObjectiveTargetRisk     Objective = "TARGET_RISK"
)

// ParseObjective converts a string into an Objective.
func ParseObjective(s string) (Objective, error) {
	switch Objective(strings.ToUpper(strings.TrimSpace(s))) {
	case ObjectiveMaximizeReturn:
		return ObjectiveMaximizeReturn, nil
	case ObjectiveMinimizeRisk:
		return ObjectiveMinimizeRisk, nil
	case ObjectiveMaximizeSharpe:
		return ObjectiveMaximizeSharpe, nil
	case ObjectiveTargetReturn:
		return ObjectiveTargetReturn, nil
	case ObjectiveTargetRisk:
		return ObjectiveTargetRisk, nil
	}
	return "", fmt.Errorf("unknown objective %q", s)
}

// CalculationType selects the return metric to compute.
type CalculationType string

const (
	CalculationAbsolute   CalculationType = "ABSOLUTE"
	CalculationAnnualized CalculationType = "ANNUALIZED"
	CalculationIRR        CalculationType = "IRR"
	CalculationSharpe     CalculationType = "SHARPE"
)

// ParseCalculationType converts a string into a CalculationType.
func ParseCalculationType(s string) (CalculationType, error) {
	switch CalculationType(strings.ToUpper(strings.TrimSpace(s))) {
	case CalculationAbsolute:
		return CalculationAbsolute, nil
	case CalculationAnnualized:
		return CalculationAnnualized, nil
	case CalculationIRR:
		return CalculationIRR, nil
	case CalculationSharpe:
		return CalculationSharpe, nil
	}
	return "", fmt.Errorf("unknown calculation type %q", s)
}

// Action is the rebalancing instruction for one position.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionHold Action = "HOLD"
	ActionSell Action = "SELL"
)

// Priority ranks strategy recommendations.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)
