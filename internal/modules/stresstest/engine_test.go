package stresstest

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/internal/modules/validation"
)

var now = time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(zerolog.New(nil).Level(zerolog.Disabled))
	require.NoError(t, err)
	return e.WithClock(func() time.Time { return now })
}

func holding(id, sector string, level domain.RiskLevel, value float64) domain.PortfolioInvestment {
	return domain.PortfolioInvestment{
		ID:             id,
		Name:           id,
		Sector:         sector,
		RiskLevel:      level,
		Status:         domain.InvestmentActive,
		InvestedAmount: value,
		CurrentValue:   value,
	}
}

func testPortfolio() *domain.Portfolio {
	closed := holding("closed", "technology", domain.RiskLevelHigh, 9999)
	closed.Status = domain.InvestmentCompleted
	return &domain.Portfolio{
		ID: "p1",
		Investments: []domain.PortfolioInvestment{
			holding("a", "Technology", domain.RiskLevelHigh, 4000),
			holding("b", "energy", domain.RiskLevelMedium, 3000),
			holding("c", "real estate", domain.RiskLevelLow, 2000),
			holding("d", "", domain.RiskLevelVeryHigh, 1000),
			closed,
		},
	}
}

func scenario(name, typ string) validation.StressScenarioInput {
	return validation.StressScenarioInput{Name: ptr(name), Type: ptr(typ)}
}

func TestRun_UniformFullShock(t *testing.T) {
	sc := scenario("wipeout", "UNIFORM_SHOCK")
	sc.ShockPercent = ptr(100.0)
	sc.MaxLossThreshold = ptr(99.0)
	full := scenario("wipeout-at-limit", "UNIFORM_SHOCK")
	full.ShockPercent = ptr(100.0)
	full.MaxLossThreshold = ptr(100.0)

	report, err := newTestEngine(t).Run(context.Background(), testPortfolio(),
		validation.StressTestRequest{PortfolioID: ptr("p1"), Scenarios: []validation.StressScenarioInput{sc, full}})
	require.NoError(t, err)

	got := report.Results[0]
	assert.Zero(t, got.StressedValue)
	assert.InDelta(t, 10000, got.Loss, 1e-9)
	assert.InDelta(t, 100, got.LossPercent, 1e-9)
	assert.True(t, got.Breached)
	assert.False(t, report.Results[1].Breached)
	assert.Equal(t, 1, report.BreachedCount)
}

func TestRun_UniformShockProportional(t *testing.T) {
	sc := scenario("mild", "uniform_shock")
	sc.ShockPercent = ptr(15.0)

	report, err := newTestEngine(t).Run(context.Background(), testPortfolio(),
		validation.StressTestRequest{Scenarios: []validation.StressScenarioInput{sc}})
	require.NoError(t, err)

	got := report.Results[0]
	assert.Equal(t, UniformShock, got.Type)
	assert.InDelta(t, 8500, got.StressedValue, 1e-9)
	assert.InDelta(t, 15, got.LossPercent, 1e-9)
	assert.False(t, got.Breached)
	require.Len(t, got.Impacts, 4)
	assert.InDelta(t, 600, got.Impacts[0].Loss, 1e-9)
	assert.Equal(t, 10000.0, report.TotalValue)
}

func TestRun_SectorShock(t *testing.T) {
	sc := scenario("tech rout", "SECTOR_SHOCK")
	sc.SectorShocks = map[string]float64{"technology": 50, "Real-Estate": 20}
	sc.DefaultShock = ptr(5.0)

	report, err := newTestEngine(t).Run(context.Background(), testPortfolio(),
		validation.StressTestRequest{Scenarios: []validation.StressScenarioInput{sc}})
	require.NoError(t, err)

	impacts := report.Results[0].Impacts
	assert.Equal(t, 50.0, impacts[0].ShockPercent)
	assert.Equal(t, 5.0, impacts[1].ShockPercent)
	assert.Equal(t, 20.0, impacts[2].ShockPercent)
	assert.Equal(t, 5.0, impacts[3].ShockPercent)
	assert.InDelta(t, 2000+150+400+50, report.Results[0].Loss, 1e-9)
}

func TestRun_RiskLevelShockWithGain(t *testing.T) {
	sc := scenario("flight to safety", "RISK_LEVEL_SHOCK")
	sc.RiskLevelShocks = map[string]float64{"HIGH": 30, "VERY_HIGH": 45, "LOW": -10}

	report, err := newTestEngine(t).Run(context.Background(), testPortfolio(),
		validation.StressTestRequest{Scenarios: []validation.StressScenarioInput{sc}})
	require.NoError(t, err)

	got := report.Results[0]
	assert.InDelta(t, 1200+0+(-200)+450, got.Loss, 1e-9)
	assert.InDelta(t, 2200, got.Impacts[2].StressedValue, 1e-9)
}

func TestRun_PresetFromCatalog(t *testing.T) {
	sc := scenario("crash", "MARKET_CRASH")
	sc.MaxLossThreshold = ptr(20.0)

	report, err := newTestEngine(t).Run(context.Background(), testPortfolio(),
		validation.StressTestRequest{Scenarios: []validation.StressScenarioInput{sc}})
	require.NoError(t, err)

	got := report.Results[0]
	require.Nil(t, got.Error)
	assert.NotEmpty(t, got.Description)
	// HIGH 40, MEDIUM 25, LOW 10, VERY_HIGH 55
	assert.InDelta(t, 1600+750+200+550, got.Loss, 1e-9)
	assert.True(t, got.Breached)
}

func TestRun_UnknownTypeDoesNotStopOthers(t *testing.T) {
	bad := scenario("alien invasion", "ALIEN_INVASION")
	good := scenario("mild", "UNIFORM_SHOCK")
	good.ShockPercent = ptr(10.0)

	report, err := newTestEngine(t).Run(context.Background(), testPortfolio(),
		validation.StressTestRequest{Scenarios: []validation.StressScenarioInput{bad, good}})
	require.NoError(t, err)

	require.Len(t, report.Results, 2)
	require.NotNil(t, report.Results[0].Error)
	assert.Equal(t, domain.CodeUnknownScenarioType, report.Results[0].Error.Code)
	assert.Equal(t, "alien invasion", report.Results[0].Name)
	assert.Nil(t, report.Results[1].Error)
	assert.InDelta(t, 1000, report.Results[1].Loss, 1e-9)
	assert.Equal(t, 1, report.FailedCount)
	assert.Equal(t, "mild", report.WorstScenario)
}

func TestRun_ResultsKeepRequestOrder(t *testing.T) {
	var scenarios []validation.StressScenarioInput
	for i := 0; i < 20; i++ {
		sc := scenario(string(rune('a'+i)), "UNIFORM_SHOCK")
		sc.ShockPercent = ptr(float64(i))
		scenarios = append(scenarios, sc)
	}

	report, err := newTestEngine(t).Run(context.Background(), testPortfolio(),
		validation.StressTestRequest{Scenarios: scenarios})
	require.NoError(t, err)

	for i, r := range report.Results {
		assert.Equal(t, string(rune('a'+i)), r.Name)
		assert.InDelta(t, float64(i)*100, r.Loss, 1e-9)
	}
	assert.Equal(t, "t", report.WorstScenario)
	assert.Equal(t, now, report.AsOf)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sc := scenario("mild", "UNIFORM_SHOCK")

	report, err := newTestEngine(t).Run(ctx, testPortfolio(),
		validation.StressTestRequest{Scenarios: []validation.StressScenarioInput{sc}})

	assert.Nil(t, report)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_DoesNotMutateSnapshot(t *testing.T) {
	p := testPortfolio()
	before := p.Clone()
	sc := scenario("wipeout", "UNIFORM_SHOCK")
	sc.ShockPercent = ptr(100.0)

	_, err := newTestEngine(t).Run(context.Background(), p,
		validation.StressTestRequest{Scenarios: []validation.StressScenarioInput{sc}})
	require.NoError(t, err)

	assert.Equal(t, before, p)
}

func TestRun_NilPortfolio(t *testing.T) {
	_, err := newTestEngine(t).Run(context.Background(), nil, validation.StressTestRequest{})
	assert.ErrorIs(t, err, domain.ErrPortfolioNotFound)
}
