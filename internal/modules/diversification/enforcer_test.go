package diversification

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/portfolio-engine/internal/domain"
)

func newTestEnforcer() *Enforcer {
	return NewEnforcer(zerolog.New(nil).Level(zerolog.Disabled))
}

func TestCheck_ConcentrationProperty(t *testing.T) {
	e := newTestEnforcer()
	totals := []float64{0, 1000, 4000, 10000, 25000, 123456.78, 1e6}
	amounts := []float64{1, 999, 1000, 2500, 2500.01, 5000, 9999, 30864.195, 250000, 1e7}

	for _, total := range totals {
		for _, a := range amounts {
			d := e.Check(Exposure{Total: total}, Candidate{Amount: a, RiskLevel: domain.RiskLevelLow})
			want := a > 0.2*(total+a)
			assert.Equal(t, want, d.Has(domain.CodeConcentrationRiskExceeded), "T=%v a=%v", total, a)
		}
	}
}

func TestCheck_HighRiskProperty(t *testing.T) {
	e := newTestEnforcer()
	cases := []struct{ total, highRisk float64 }{
		{10000, 0}, {10000, 2000}, {10000, 3000}, {10000, 3500}, {50000, 14000}, {0, 0},
	}
	amounts := []float64{100, 500, 1000, 1500, 2500, 10000}

	for _, c := range cases {
		for _, a := range amounts {
			for _, level := range domain.RiskLevels() {
				d := e.Check(Exposure{Total: c.total, HighRisk: c.highRisk}, Candidate{Amount: a, RiskLevel: level})

				exposure := c.highRisk
				if level.IsHighRisk() {
					exposure += a
				}
				want := exposure > 0.3*(c.total+a)
				assert.Equal(t, want, d.Has(domain.CodeHighRiskLimitExceeded), "T=%v E=%v a=%v level=%s", c.total, c.highRisk, a, level)
			}
		}
	}
}

func TestCheck_CollectsAllViolations(t *testing.T) {
	e := newTestEnforcer().WithLimits(Limits{MaxPositionShare: 0.2, MaxHighRiskShare: 0.3, MaxSectorShare: 0.25})

	d := e.Check(
		Exposure{Total: 1000, HighRisk: 200, Sectors: map[string]float64{"tech": 200}},
		Candidate{Amount: 1000, Sector: "tech", RiskLevel: domain.RiskLevelVeryHigh},
	)

	assert.False(t, d.Allowed)
	assert.ElementsMatch(t, []string{
		domain.CodeConcentrationRiskExceeded,
		domain.CodeHighRiskLimitExceeded,
		domain.CodeSectorConcentrationExceeded,
	}, d.Codes())
	for _, v := range d.Violations {
		assert.NotEmpty(t, v.Message)
		assert.Contains(t, v.Details, "limit")
	}
}

func TestCheck_Allowed(t *testing.T) {
	d := newTestEnforcer().Check(Exposure{Total: 10000}, Candidate{Amount: 1000, RiskLevel: domain.RiskLevelMedium})
	assert.True(t, d.Allowed)
	assert.Empty(t, d.Violations)
}

func TestCheck_ExistingPositionCounts(t *testing.T) {
	e := newTestEnforcer()

	d := e.Check(Exposure{Total: 10000}, Candidate{Amount: 500, Existing: 1800, RiskLevel: domain.RiskLevelLow})
	assert.True(t, d.Has(domain.CodeConcentrationRiskExceeded))

	d = e.Check(Exposure{Total: 10000}, Candidate{Amount: 500, Existing: 1500, RiskLevel: domain.RiskLevelLow})
	assert.False(t, d.Has(domain.CodeConcentrationRiskExceeded))
}

func TestMaxAllowed_IsTheBoundary(t *testing.T) {
	e := newTestEnforcer().WithLimits(Limits{MaxPositionShare: 0.2, MaxHighRiskShare: 0.3, MaxSectorShare: 0.4})
	existing := Exposure{Total: 20000, HighRisk: 4000, Sectors: map[string]float64{"tech": 6000}}

	for _, level := range domain.RiskLevels() {
		c := Candidate{Amount: 1e9, Sector: "tech", RiskLevel: level}
		max := e.MaxAllowed(existing, c)
		require.GreaterOrEqual(t, max, 0.0)

		c.Amount = max * 0.999
		assert.True(t, e.Check(existing, c).Allowed, "just under the cap passes for %s", level)

		c.Amount = max*1.001 + 0.01
		assert.False(t, e.Check(existing, c).Allowed, "just over the cap fails for %s", level)
	}
}

func TestMaxAllowed_FlooredAtZero(t *testing.T) {
	e := newTestEnforcer()
	max := e.MaxAllowed(Exposure{Total: 1000, HighRisk: 900}, Candidate{Amount: 100, RiskLevel: domain.RiskLevelHigh})
	assert.Equal(t, 0.0, max)
}

func TestExposures(t *testing.T) {
	p := &domain.Portfolio{Investments: []domain.PortfolioInvestment{
		{Sector: "tech", RiskLevel: domain.RiskLevelHigh, Status: domain.InvestmentActive, InvestedAmount: 1000, CurrentValue: 1500},
		{Sector: "energy", RiskLevel: domain.RiskLevelLow, Status: domain.InvestmentSuspended, InvestedAmount: 2000, CurrentValue: 1800},
		{Sector: "tech", RiskLevel: domain.RiskLevelVeryHigh, Status: domain.InvestmentCompleted, InvestedAmount: 5000, CurrentValue: 0},
	}}

	invested := InvestedExposure(p)
	assert.Equal(t, 3000.0, invested.Total)
	assert.Equal(t, 1000.0, invested.HighRisk)
	assert.Equal(t, 1000.0, invested.Sectors["tech"])

	value := ValueExposure(p.Holdings())
	assert.Equal(t, 3300.0, value.Total)
	assert.Equal(t, 1500.0, value.HighRisk)
	assert.Equal(t, 1800.0, value.Sectors["energy"])
}
