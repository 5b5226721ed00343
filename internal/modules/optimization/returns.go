package optimization

import (
	"math"
	"time"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/pkg/formulas"
)

// Expected return blending.
const (
	ExpectedReturnMin          = -0.10
	ExpectedReturnMax          = 0.30
	ExpectedReturnsCAGRWeight  = 0.70
	ExpectedReturnsPriorWeight = 0.30

	// minTrackRecordYears is the holding period below which realized growth
	// is ignored.
	minTrackRecordYears = 0.25
)

// RiskLevelPrior is the long-run annual return assumed for a risk level.
func RiskLevelPrior(level domain.RiskLevel) float64 {
	switch level {
	case domain.RiskLevelLow:
		return 0.03
	case domain.RiskLevelMedium:
		return 0.06
	case domain.RiskLevelHigh:
		return 0.10
	case domain.RiskLevelVeryHigh:
		return 0.15
	}
	return 0.06
}

// ExpectedReturn blends a holding's realized CAGR, clamped to
// [ExpectedReturnMin, ExpectedReturnMax], with its risk-level prior. Holdings
// younger than a quarter use the prior alone.
func ExpectedReturn(inv domain.PortfolioInvestment, asOf time.Time) float64 {
	prior := RiskLevelPrior(inv.RiskLevel)

	years := formulas.YearsBetween(inv.InvestedAt, asOf)
	if inv.InvestedAt.IsZero() || years < minTrackRecordYears || inv.InvestedAmount <= 0 {
		return prior
	}

	cagr := formulas.CAGR(inv.InvestedAmount, inv.CurrentValue, years)
	if cagr == nil || math.IsNaN(*cagr) {
		return prior
	}
	realized := math.Max(ExpectedReturnMin, math.Min(ExpectedReturnMax, *cagr))
	return ExpectedReturnsCAGRWeight*realized + ExpectedReturnsPriorWeight*prior
}
