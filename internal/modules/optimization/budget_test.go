package optimization

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-engine/internal/domain"
)

func evenPair(t *testing.T, c Constraints, a, b float64) *problem {
	t.Helper()
	pr, err := buildProblem(portfolioOf(
		holding("a", "tech", domain.RiskLevelLow, a),
		holding("b", "energy", domain.RiskLevelLow, b),
	), c)
	require.NoError(t, err)
	return pr
}

func TestApplyBudget_WithinBudget(t *testing.T) {
	pr := evenPair(t, DefaultConstraints(), 500, 500)
	target := []float64{0.6, 0.4}

	got := pr.applyBudget(target, 0.5)

	assert.Equal(t, target, got.weights)
	assert.False(t, got.limited)
	assert.False(t, got.exceeded)
}

func TestApplyBudget_Unlimited(t *testing.T) {
	pr := evenPair(t, DefaultConstraints(), 500, 500)
	target := []float64{1, 0}

	got := pr.applyBudget(target, math.Inf(1))

	assert.Equal(t, target, got.weights)
	assert.False(t, got.limited)
}

func TestApplyBudget_PullsBackAlongSegment(t *testing.T) {
	pr := evenPair(t, DefaultConstraints(), 500, 500)

	got := pr.applyBudget([]float64{0.9, 0.1}, 0.2)

	assert.True(t, got.limited)
	assert.False(t, got.exceeded)
	assert.LessOrEqual(t, pr.turnover(got.weights), 0.2+budgetTolerance)
	assert.InDelta(t, 0.6, got.weights[0], 1e-6)
	assert.InDelta(t, 0.4, got.weights[1], 1e-6)
	assert.True(t, pr.feasible(got.weights))
}

func TestApplyBudget_ZeroBudgetKeepsFeasibleCurrent(t *testing.T) {
	pr := evenPair(t, DefaultConstraints(), 500, 500)

	got := pr.applyBudget([]float64{0.7, 0.3}, 0)

	assert.True(t, got.limited)
	assert.InDeltaSlice(t, pr.w0, got.weights, 1e-9)
}

func TestApplyBudget_ExceededWhenConstraintsNeedTrades(t *testing.T) {
	pr := evenPair(t, Constraints{MaxPositionSize: 0.4, MaxSectorConcentration: 1}, 600, 400)

	got := pr.applyBudget([]float64{0.4, 0.4}, 0.1)

	assert.True(t, got.exceeded)
	assert.False(t, got.limited)
	assert.InDeltaSlice(t, []float64{0.4, 0.4}, got.weights, 1e-9)
	assert.True(t, pr.feasible(got.weights))
}
