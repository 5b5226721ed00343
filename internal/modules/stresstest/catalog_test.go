package stresstest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCatalog_EmbeddedPresets(t *testing.T) {
	c, err := LoadCatalog()
	require.NoError(t, err)

	for _, name := range []ScenarioType{"MARKET_CRASH", "FINANCIAL_CRISIS", "TECH_BUBBLE", "INTEREST_RATE_HIKE", "LIQUIDITY_CRISIS"} {
		p, ok := c.Lookup(name)
		assert.True(t, ok, name)
		assert.NotEmpty(t, p.Description, name)
	}
	assert.Len(t, c.Presets(), 5)

	crisis, _ := c.Lookup("FINANCIAL_CRISIS")
	assert.Equal(t, 50.0, crisis.SectorShocks["real_estate"])
}

func TestParseCatalog_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"malformed", "scenarios: [\n"},
		{"missing type", "scenarios:\n  - default_shock: 10\n"},
		{"duplicate", "scenarios:\n  - type: A\n  - type: a\n"},
		{"shadows builtin", "scenarios:\n  - type: UNIFORM_SHOCK\n"},
		{"shock out of range", "scenarios:\n  - type: A\n    default_shock: 150\n"},
		{"bad risk level", "scenarios:\n  - type: A\n    risk_level_shocks:\n      EXTREME: 10\n"},
		{"bad sector shock", "scenarios:\n  - type: A\n    sector_shocks:\n      tech: -101\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestSectorKey(t *testing.T) {
	assert.Equal(t, "real_estate", sectorKey(" Real Estate "))
	assert.Equal(t, "real_estate", sectorKey("real-estate"))
	assert.Equal(t, "tech", sectorKey("TECH"))
}
