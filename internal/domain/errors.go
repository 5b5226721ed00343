package domain

import (
	"errors"
	"fmt"
)

// Stable codes for business rule violations and undetermined numeric results.
const (
	CodeConcentrationRiskExceeded   = "CONCENTRATION_RISK_EXCEEDED"
	CodeHighRiskLimitExceeded       = "HIGH_RISK_LIMIT_EXCEEDED"
	CodeSectorConcentrationExceeded = "SECTOR_CONCENTRATION_EXCEEDED"
	CodeInvalidStatusTransition     = "INVALID_STATUS_TRANSITION"
	CodePortfolioInvariantBroken    = "PORTFOLIO_INVARIANT_BROKEN"

	CodeIRRNotConverged       = "IRR_NOT_CONVERGED"
	CodeInsufficientCashFlows = "INSUFFICIENT_CASH_FLOWS"
	CodeSharpeUndefined       = "SHARPE_UNDEFINED"
	CodeVaRUndetermined       = "VAR_UNDETERMINED"
	CodeUnknownScenarioType   = "UNKNOWN_SCENARIO_TYPE"
)

// ErrPortfolioNotFound is returned when a portfolio snapshot does not exist.
var ErrPortfolioNotFound = errors.New("portfolio not found")

// RuleViolation is a code-tagged business rule breach.
type RuleViolation struct {
	Code    string             `json:"code"`
	Message string             `json:"message"`
	Details map[string]float64 `json:"details,omitempty"`
}

func (v RuleViolation) Error() string {
	return fmt.Sprintf("%s: %s", v.Code, v.Message)
}

// Undetermined marks a numeric result the engine could not compute. It is
// reported alongside the other metrics rather than failing the request.
type Undetermined struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

func (u *Undetermined) Error() string {
	return fmt.Sprintf("%s: %s", u.Code, u.Reason)
}

// NewUndetermined builds an Undetermined marker.
func NewUndetermined(code, reason string) *Undetermined {
	return &Undetermined{Code: code, Reason: reason}
}
