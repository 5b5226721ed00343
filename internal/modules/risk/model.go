package risk

import (
	"math"
	"strings"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/pkg/formulas"
)

// VolatilitySource tells where a volatility figure came from.
type VolatilitySource string

const (
	SourceHistory   VolatilitySource = "HISTORY"
	SourceRiskLevel VolatilitySource = "RISK_LEVEL_MODEL"
)

// Correlation priors used when two holdings lack a common valuation history.
const (
	SameSectorCorrelation  = 0.6
	CrossSectorCorrelation = 0.2

	// correlationShrinkage pulls sample correlations toward the prior.
	correlationShrinkage = 0.2

	// minHistoryPoints is the fewest valuation points that yield a volatility.
	minHistoryPoints = 3
)

// FallbackVolatility is the annual volatility assumed for a risk level when
// no usable valuation history exists.
func FallbackVolatility(level domain.RiskLevel) float64 {
	switch level {
	case domain.RiskLevelLow:
		return 0.05
	case domain.RiskLevelMedium:
		return 0.12
	case domain.RiskLevelHigh:
		return 0.25
	case domain.RiskLevelVeryHigh:
		return 0.40
	}
	return 0.25
}

// SeriesVolatility annualizes the volatility of a valuation series by its
// observed sampling frequency. ok is false for fewer than three points.
func SeriesVolatility(series []domain.ValuePoint) (vol float64, returns []float64, periodsPerYear float64, ok bool) {
	if len(series) < minHistoryPoints {
		return 0, nil, 0, false
	}
	sorted := domain.SortSeries(series)
	dates := seriesDates(sorted)
	returns = formulas.CalculateReturns(domain.SeriesValues(sorted))
	if len(returns) < 2 {
		return 0, nil, 0, false
	}
	periodsPerYear = formulas.PeriodsPerYear(dates)
	return formulas.AnnualizedVolatility(returns, periodsPerYear), returns, periodsPerYear, true
}

// Model is the covariance model of a set of holdings.
type Model struct {
	IDs     []string
	Vols    []float64
	Sources []VolatilitySource
	Cov     *mat.SymDense
}

// BuildModel derives per-holding volatilities and a covariance matrix.
// Holdings with a usable history use it; the rest use the risk-level model.
// Pairs with aligned histories use their shrunk sample correlation, others
// the sector prior.
func BuildModel(investments []domain.PortfolioInvestment) *Model {
	n := len(investments)
	m := &Model{
		IDs:     make([]string, n),
		Vols:    make([]float64, n),
		Sources: make([]VolatilitySource, n),
	}

	series := make([][]float64, n)
	dateKeys := make([]string, n)
	for i, inv := range investments {
		m.IDs[i] = inv.ID
		vol, returns, _, ok := SeriesVolatility(inv.History)
		if ok && vol > 0 {
			m.Vols[i] = vol
			m.Sources[i] = SourceHistory
			series[i] = returns
			dateKeys[i] = datesKey(domain.SortSeries(inv.History))
			continue
		}
		m.Vols[i] = FallbackVolatility(inv.RiskLevel)
		m.Sources[i] = SourceRiskLevel
	}

	if n == 0 {
		return m
	}

	m.Cov = mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		m.Cov.SetSym(i, i, m.Vols[i]*m.Vols[i])
		for j := i + 1; j < n; j++ {
			rho := priorCorrelation(investments[i], investments[j])
			if series[i] != nil && series[j] != nil && dateKeys[i] == dateKeys[j] {
				sample := stat.Correlation(series[i], series[j], nil)
				if !math.IsNaN(sample) {
					rho = (1-correlationShrinkage)*sample + correlationShrinkage*rho
				}
			}
			m.Cov.SetSym(i, j, rho*m.Vols[i]*m.Vols[j])
		}
	}
	return m
}

// PortfolioVolatility returns sqrt(w'Σw). Weights not summing to one are
// taken as given, so a cash remainder contributes no variance.
func (m *Model) PortfolioVolatility(weights []float64) float64 {
	if m.Cov == nil || len(weights) != len(m.Vols) {
		return 0
	}
	w := mat.NewVecDense(len(weights), append([]float64(nil), weights...))
	variance := mat.Inner(w, m.Cov, w)
	if variance <= 0 || math.IsNaN(variance) {
		return 0
	}
	return math.Sqrt(variance)
}

// Size is the number of holdings in the model.
func (m *Model) Size() int {
	return len(m.Vols)
}

func priorCorrelation(a, b domain.PortfolioInvestment) float64 {
	if a.Sector != "" && a.Sector == b.Sector {
		return SameSectorCorrelation
	}
	return CrossSectorCorrelation
}

func seriesDates(series []domain.ValuePoint) []time.Time {
	dates := make([]time.Time, len(series))
	for i, p := range series {
		dates[i] = p.Date
	}
	return dates
}

func datesKey(series []domain.ValuePoint) string {
	var b strings.Builder
	for _, p := range series {
		b.WriteString(p.Date.UTC().Format("20060102"))
	}
	return b.String()
}
