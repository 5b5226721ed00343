package stresstest

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aristath/portfolio-engine/internal/domain"
)

//go:embed scenarios.yaml
var catalogYAML []byte

// Preset is a named shock model from the scenario catalog.
type Preset struct {
	Type            ScenarioType       `yaml:"type" json:"type"`
	Description     string             `yaml:"description" json:"description"`
	SectorShocks    map[string]float64 `yaml:"sector_shocks" json:"sectorShocks,omitempty"`
	RiskLevelShocks map[string]float64 `yaml:"risk_level_shocks" json:"riskLevelShocks,omitempty"`
	DefaultShock    float64            `yaml:"default_shock" json:"defaultShock"`
}

// Catalog holds the preset scenarios by type.
type Catalog struct {
	presets map[ScenarioType]Preset
}

// LoadCatalog parses the embedded scenario catalog.
func LoadCatalog() (*Catalog, error) {
	return ParseCatalog(catalogYAML)
}

// ParseCatalog parses a YAML scenario catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var doc struct {
		Scenarios []Preset `yaml:"scenarios"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario catalog: %w", err)
	}

	c := &Catalog{presets: make(map[ScenarioType]Preset, len(doc.Scenarios))}
	for i, p := range doc.Scenarios {
		p.Type = ScenarioType(strings.ToUpper(strings.TrimSpace(string(p.Type))))
		if p.Type == "" {
			return nil, fmt.Errorf("scenario catalog entry %d has no type", i)
		}
		if p.Type.builtin() {
			return nil, fmt.Errorf("scenario catalog entry %s shadows a built-in type", p.Type)
		}
		if _, dup := c.presets[p.Type]; dup {
			return nil, fmt.Errorf("duplicate scenario catalog entry %s", p.Type)
		}
		if err := checkShock(p.DefaultShock); err != nil {
			return nil, fmt.Errorf("scenario %s default shock: %w", p.Type, err)
		}

		sectors := make(map[string]float64, len(p.SectorShocks))
		for sector, shock := range p.SectorShocks {
			if err := checkShock(shock); err != nil {
				return nil, fmt.Errorf("scenario %s sector %s: %w", p.Type, sector, err)
			}
			sectors[sectorKey(sector)] = shock
		}
		p.SectorShocks = sectors

		for level, shock := range p.RiskLevelShocks {
			if _, err := domain.ParseRiskLevel(level); err != nil {
				return nil, fmt.Errorf("scenario %s: %w", p.Type, err)
			}
			if err := checkShock(shock); err != nil {
				return nil, fmt.Errorf("scenario %s risk level %s: %w", p.Type, level, err)
			}
		}

		c.presets[p.Type] = p
	}
	return c, nil
}

// Lookup returns the preset for t.
func (c *Catalog) Lookup(t ScenarioType) (Preset, bool) {
	p, ok := c.presets[t]
	return p, ok
}

// Presets lists the catalog sorted by type.
func (c *Catalog) Presets() []Preset {
	out := make([]Preset, 0, len(c.presets))
	for _, p := range c.presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

func checkShock(v float64) error {
	if !(v >= -100 && v <= 100) {
		return fmt.Errorf("shock %v outside [-100, 100]", v)
	}
	return nil
}

// sectorKey folds case and separators so "Real Estate" matches real_estate.
func sectorKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}
