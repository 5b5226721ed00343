package optimization

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/internal/modules/validation"
)

func TestConstraintsFrom_Defaults(t *testing.T) {
	c := ConstraintsFrom(validation.ConstraintsInput{MinPositionSize: ptr(0.05)})

	assert.Equal(t, 1.0, c.MaxPositionSize)
	assert.Equal(t, 0.05, c.MinPositionSize)
	assert.Equal(t, 1.0, c.MaxSectorConcentration)
	assert.Zero(t, c.LiquidityRequirement)
	assert.Zero(t, c.RiskBudget)
}

func TestBuild_NoHeldValue(t *testing.T) {
	closed := holding("a", "tech", domain.RiskLevelLow, 1000)
	closed.Status = domain.InvestmentCompleted

	_, err := buildProblem(portfolioOf(closed), DefaultConstraints())
	assert.ErrorIs(t, err, ErrInfeasible)
}

func TestBuild_ExcludesClosedPositions(t *testing.T) {
	closed := holding("c", "tech", domain.RiskLevelLow, 5000)
	closed.Status = domain.InvestmentCancelled
	p := portfolioOf(
		holding("a", "tech", domain.RiskLevelLow, 600),
		holding("b", "energy", domain.RiskLevelMedium, 400),
		closed,
	)

	pr, err := buildProblem(p, DefaultConstraints())
	require.NoError(t, err)

	assert.Len(t, pr.positions, 2)
	assert.InDelta(t, 1000, pr.value, 1e-9)
	assert.InDeltaSlice(t, []float64{0.6, 0.4}, pr.w0, 1e-12)
}

func TestBuild_InfeasibleRegions(t *testing.T) {
	tests := []struct {
		name        string
		investments []domain.PortfolioInvestment
		constraints Constraints
	}{
		{
			name: "suspended above max position",
			investments: []domain.PortfolioInvestment{
				suspended(holding("a", "tech", domain.RiskLevelLow, 500)),
				holding("b", "energy", domain.RiskLevelLow, 500),
			},
			constraints: Constraints{MaxPositionSize: 0.3, MaxSectorConcentration: 1},
		},
		{
			name: "suspended above investable share",
			investments: []domain.PortfolioInvestment{
				suspended(holding("a", "tech", domain.RiskLevelLow, 950)),
				holding("b", "energy", domain.RiskLevelLow, 50),
			},
			constraints: Constraints{MaxPositionSize: 1, MaxSectorConcentration: 1, LiquidityRequirement: 0.1},
		},
		{
			name: "suspended sector above cap",
			investments: []domain.PortfolioInvestment{
				suspended(holding("a", "tech", domain.RiskLevelLow, 250)),
				suspended(holding("b", "tech", domain.RiskLevelLow, 250)),
				holding("c", "energy", domain.RiskLevelLow, 500),
			},
			constraints: Constraints{MaxPositionSize: 0.3, MaxSectorConcentration: 0.4},
		},
		{
			name: "suspended volatility above risk budget",
			investments: []domain.PortfolioInvestment{
				suspended(holding("a", "tech", domain.RiskLevelVeryHigh, 500)),
				holding("b", "energy", domain.RiskLevelLow, 500),
			},
			constraints: Constraints{MaxPositionSize: 1, MaxSectorConcentration: 1, RiskBudget: 0.1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildProblem(portfolioOf(tt.investments...), tt.constraints)
			assert.ErrorIs(t, err, ErrInfeasible)
		})
	}
}

func TestBuild_InvestedTargetBoundedByCapacity(t *testing.T) {
	p := portfolioOf(
		holding("a", "tech", domain.RiskLevelLow, 400),
		holding("b", "energy", domain.RiskLevelLow, 300),
		holding("c", "health", domain.RiskLevelLow, 300),
	)

	pr, err := buildProblem(p, Constraints{MaxPositionSize: 0.2, MaxSectorConcentration: 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.6, pr.target, 1e-12)

	pr, err = buildProblem(p, Constraints{MaxPositionSize: 1, MaxSectorConcentration: 1, LiquidityRequirement: 0.15})
	require.NoError(t, err)
	assert.InDelta(t, 0.85, pr.target, 1e-12)
}

func TestProject_Bounds(t *testing.T) {
	p := portfolioOf(
		holding("a", "tech", domain.RiskLevelLow, 250),
		holding("b", "tech", domain.RiskLevelLow, 250),
		holding("c", "energy", domain.RiskLevelLow, 250),
		holding("d", "health", domain.RiskLevelLow, 250),
	)
	c := Constraints{MaxPositionSize: 0.35, MaxSectorConcentration: 0.5, LiquidityRequirement: 0.1}
	pr, err := buildProblem(p, c)
	require.NoError(t, err)

	w := pr.project([]float64{0.6, 0.3, -0.2, 0.4})

	assert.GreaterOrEqual(t, w[2], 0.0)
	for i := range w {
		assert.LessOrEqual(t, w[i], c.MaxPositionSize+feasibilityTolerance)
	}
	assert.LessOrEqual(t, w[0]+w[1], c.MaxSectorConcentration+feasibilityTolerance)
	assert.LessOrEqual(t, sumOf(w), 0.9+feasibilityTolerance)
}

func TestFinalize_AlwaysFeasible(t *testing.T) {
	p := portfolioOf(
		holding("a", "tech", domain.RiskLevelHigh, 300),
		holding("b", "tech", domain.RiskLevelMedium, 200),
		holding("c", "energy", domain.RiskLevelLow, 200),
		holding("d", "health", domain.RiskLevelVeryHigh, 150),
		suspended(holding("e", "energy", domain.RiskLevelMedium, 150)),
	)
	c := Constraints{
		MaxPositionSize:        0.3,
		MinPositionSize:        0.05,
		MaxSectorConcentration: 0.45,
		LiquidityRequirement:   0.05,
		RiskBudget:             0.15,
	}
	pr, err := buildProblem(p, c)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 200; trial++ {
		w := make([]float64, len(pr.positions))
		for i := range w {
			w[i] = rng.Float64()*1.2 - 0.1
		}

		got := pr.finalize(w)

		require.True(t, pr.feasible(got), "trial %d produced infeasible %v", trial, got)
		assert.InDelta(t, 0.15, got[4], 1e-12, "suspended position must stay pinned")
	}
}

func TestSnap_ClosesSmallPositions(t *testing.T) {
	p := portfolioOf(
		holding("a", "tech", domain.RiskLevelLow, 500),
		holding("b", "energy", domain.RiskLevelLow, 500),
	)
	pr, err := buildProblem(p, Constraints{MaxPositionSize: 1, MinPositionSize: 0.1, MaxSectorConcentration: 1})
	require.NoError(t, err)

	got := pr.snap([]float64{0.95, 0.05})

	assert.Equal(t, []float64{0.95, 0}, got)
}

func TestExpectedReturn_CashEarnsRiskFree(t *testing.T) {
	p := portfolioOf(holding("a", "tech", domain.RiskLevelMedium, 1000))
	pr, err := buildProblem(p, DefaultConstraints())
	require.NoError(t, err)

	half := pr.expectedReturn([]float64{0.5})
	assert.InDelta(t, 0.5*pr.mu[0]+0.5*pr.rf, half, 1e-12)
	assert.InDelta(t, pr.rf, pr.expectedReturn([]float64{0}), 1e-12)
}
