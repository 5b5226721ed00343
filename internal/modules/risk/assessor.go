// Package risk computes volatility, drawdown, VaR and a 0-10 risk score for a
// portfolio snapshot.
package risk

import (
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/internal/modules/returns"
	"github.com/aristath/portfolio-engine/internal/modules/validation"
	"github.com/aristath/portfolio-engine/pkg/formulas"
)

// Score weights and the values mapped to the top of each 0-10 component.
const (
	volatilityWeight    = 0.4
	drawdownWeight      = 0.3
	concentrationWeight = 0.3

	volatilityCeiling = 0.40
	drawdownCeiling   = 0.50

	rollingWindow = 20
)

// Options tunes one assessment.
type Options struct {
	ConfidenceLevel float64 `json:"confidenceLevel"`
	TimeHorizonDays int     `json:"timeHorizon"`
	RiskFreeRate    float64 `json:"riskFreeRate"`
	BenchmarkReturn float64 `json:"benchmarkReturn"`
}

// DefaultOptions returns a 95% one-year assessment.
func DefaultOptions() Options {
	return Options{
		ConfidenceLevel: 0.95,
		TimeHorizonDays: formulas.TradingDaysPerYear,
		RiskFreeRate:    0.02,
		BenchmarkReturn: 0.07,
	}
}

// OptionsFrom overlays validated request options on defaults.
func OptionsFrom(in validation.RiskOptions, defaults Options) Options {
	opts := defaults
	opts.ConfidenceLevel = validation.Float(in.ConfidenceLevel, defaults.ConfidenceLevel)
	opts.RiskFreeRate = validation.Float(in.RiskFreeRate, defaults.RiskFreeRate)
	opts.BenchmarkReturn = validation.Float(in.BenchmarkReturn, defaults.BenchmarkReturn)
	if in.TimeHorizon != nil {
		opts.TimeHorizonDays = int(*in.TimeHorizon)
	}
	return opts
}

// VaR is a parametric value-at-risk estimate. Amounts are positive losses.
type VaR struct {
	Undetermined *domain.Undetermined `json:"undetermined,omitempty"`
	Confidence   float64              `json:"confidence"`
	HorizonDays  int                  `json:"horizonDays"`
	Amount       float64              `json:"amount"`
	Percent      float64              `json:"percent"`
	DailyAmount  float64              `json:"dailyAmount"`
	CVaR         float64              `json:"cvar"`
}

// ScoreComponents are the normalized 0-10 inputs of the risk score.
type ScoreComponents struct {
	Volatility    float64 `json:"volatility"`
	Drawdown      float64 `json:"drawdown"`
	Concentration float64 `json:"concentration"`
}

// Exposure is the held value grouped under one key.
type Exposure struct {
	Key    string  `json:"key"`
	Value  float64 `json:"value"`
	Weight float64 `json:"weight"`
	Count  int     `json:"count"`
}

// Assessment is the full risk report of a portfolio.
type Assessment struct {
	AsOf                time.Time            `json:"asOf"`
	SharpeRatio         *float64             `json:"sharpeRatio"`
	SharpeUndetermined  *domain.Undetermined `json:"sharpeUndetermined,omitempty"`
	PortfolioID         string               `json:"portfolioId"`
	VolatilitySource    VolatilitySource     `json:"volatilitySource"`
	RiskLevel           domain.RiskLevel     `json:"riskLevel"`
	SectorExposure      []Exposure           `json:"sectorExposure"`
	RiskLevelExposure   []Exposure           `json:"riskLevelExposure"`
	RollingVolatility   []float64            `json:"rollingVolatility,omitempty"`
	Warnings            []string             `json:"warnings,omitempty"`
	VaR                 VaR                  `json:"valueAtRisk"`
	Components          ScoreComponents      `json:"scoreComponents"`
	Options             Options              `json:"options"`
	TotalValue          float64              `json:"totalValue"`
	Volatility          float64              `json:"volatility"`
	MaxDrawdown         float64              `json:"maxDrawdown"`
	AnnualizedReturn    float64              `json:"annualizedReturn"`
	BenchmarkReturn     float64              `json:"benchmarkReturn"`
	Outperformance      float64              `json:"outperformance"`
	Concentration       float64              `json:"concentration"`
	RiskScore           float64              `json:"riskScore"`
	HoldingCount        int                  `json:"holdingCount"`
	HistoryObservations int                  `json:"historyObservations"`
}

// Assessor computes risk assessments.
type Assessor struct {
	log zerolog.Logger
	now func() time.Time
}

// NewAssessor creates a risk assessor.
func NewAssessor(log zerolog.Logger) *Assessor {
	return &Assessor{
		log: log.With().Str("component", "risk_assessor").Logger(),
		now: time.Now,
	}
}

// WithClock overrides the evaluation clock.
func (a *Assessor) WithClock(clock func() time.Time) *Assessor {
	cp := *a
	cp.now = clock
	return &cp
}

// Assess evaluates a portfolio snapshot. It never mutates p. Numerical
// failures are attached as Undetermined markers while the other metrics are
// still reported.
func (a *Assessor) Assess(p *domain.Portfolio, opts Options) *Assessment {
	asOf := a.now()
	holdings := p.Holdings()

	out := &Assessment{
		AsOf:            asOf,
		PortfolioID:     p.ID,
		Options:         opts,
		HoldingCount:    len(holdings),
		BenchmarkReturn: opts.BenchmarkReturn,
	}
	if err := p.CheckInvariant(); err != nil {
		out.Warnings = append(out.Warnings, err.Error())
	}

	weights, total := holdingWeights(holdings)
	out.TotalValue = total
	out.Concentration = formulas.HerfindahlIndex(weights)
	out.SectorExposure = exposures(holdings, total, func(inv domain.PortfolioInvestment) string { return inv.Sector })
	out.RiskLevelExposure = exposures(holdings, total, func(inv domain.PortfolioInvestment) string { return string(inv.RiskLevel) })

	window := horizonWindow(p.SortedHistory(), opts.TimeHorizonDays)
	out.HistoryObservations = len(window)

	// Per-day mean and deviation feed the VaR.
	var muDaily, sigmaDaily float64
	vol, periodReturns, periodsPerYear, ok := SeriesVolatility(window)
	if ok {
		out.Volatility = vol
		out.VolatilitySource = SourceHistory
		out.MaxDrawdown = formulas.MaxDrawdown(domain.SeriesValues(window))
		muDaily = formulas.Mean(periodReturns) * periodsPerYear / formulas.TradingDaysPerYear
		sigmaDaily = vol / math.Sqrt(formulas.TradingDaysPerYear)
		out.RollingVolatility = rolling(periodReturns, periodsPerYear)
	} else {
		model := BuildModel(holdings)
		out.Volatility = model.PortfolioVolatility(weights)
		out.VolatilitySource = SourceRiskLevel
		out.MaxDrawdown = formulas.MaxDrawdown(domain.SeriesValues(window))
		sigmaDaily = out.Volatility / math.Sqrt(formulas.TradingDaysPerYear)
		if len(holdings) > 0 {
			out.Warnings = append(out.Warnings, "fewer than 3 valuation points in horizon; volatility from risk-level model")
		}
	}

	out.VaR = valueAtRisk(total, muDaily, sigmaDaily, opts)

	out.AnnualizedReturn = annualizedReturn(holdings, asOf)
	out.Outperformance = out.AnnualizedReturn - opts.BenchmarkReturn
	sharpe, und := returns.SharpeRatio(out.AnnualizedReturn, opts.RiskFreeRate, out.Volatility)
	if und != nil {
		out.SharpeUndetermined = und
	} else {
		out.SharpeRatio = &sharpe
	}

	out.Components = ScoreComponents{
		Volatility:    normalize(out.Volatility, volatilityCeiling),
		Drawdown:      normalize(out.MaxDrawdown, drawdownCeiling),
		Concentration: normalize(out.Concentration, 1),
	}
	out.RiskScore = Score(out.Components)
	out.RiskLevel = domain.ClassifyRiskScore(out.RiskScore)

	a.log.Debug().
		Str("portfolio_id", p.ID).
		Float64("volatility", out.Volatility).
		Float64("risk_score", out.RiskScore).
		Str("volatility_source", string(out.VolatilitySource)).
		Msg("Risk assessed")

	return out
}

// Score blends the components 0.4/0.3/0.3, rounded to two decimals and
// clamped to [0, 10].
func Score(c ScoreComponents) float64 {
	s := volatilityWeight*c.Volatility + drawdownWeight*c.Drawdown + concentrationWeight*c.Concentration
	s = math.Max(0, math.Min(10, s))
	return math.Round(s*100) / 100
}

// Volatility is the annualized volatility of a series over the most recent
// horizon. Fewer than three points in the window give ok=false.
func Volatility(history []domain.ValuePoint, horizonDays int) (float64, bool) {
	vol, _, _, ok := SeriesVolatility(horizonWindow(domain.SortSeries(history), horizonDays))
	return vol, ok
}

func normalize(v, ceiling float64) float64 {
	if ceiling <= 0 || math.IsNaN(v) || v <= 0 {
		return 0
	}
	return math.Min(10, v/ceiling*10)
}

func valueAtRisk(total, mu, sigma float64, opts Options) VaR {
	out := VaR{Confidence: opts.ConfidenceLevel, HorizonDays: opts.TimeHorizonDays}
	switch {
	case total <= 0:
		out.Undetermined = domain.NewUndetermined(domain.CodeVaRUndetermined, "portfolio has no held value")
		return out
	case math.IsNaN(sigma) || math.IsInf(sigma, 0) || math.IsNaN(mu):
		out.Undetermined = domain.NewUndetermined(domain.CodeVaRUndetermined, "return distribution is not finite")
		return out
	case opts.ConfidenceLevel <= 0 || opts.ConfidenceLevel >= 1 || opts.TimeHorizonDays <= 0:
		out.Undetermined = domain.NewUndetermined(domain.CodeVaRUndetermined, "confidence or horizon out of range")
		return out
	}

	out.Amount = formulas.ParametricVaR(total, mu, sigma, opts.ConfidenceLevel, opts.TimeHorizonDays)
	out.DailyAmount = formulas.ParametricVaR(total, mu, sigma, opts.ConfidenceLevel, 1)
	out.CVaR = formulas.ParametricCVaR(total, mu, sigma, opts.ConfidenceLevel, opts.TimeHorizonDays)
	out.Percent = out.Amount / total * 100
	return out
}

// horizonWindow keeps the points inside the calendar span of horizonDays
// trading days, counted back from the latest point.
func horizonWindow(sorted []domain.ValuePoint, horizonDays int) []domain.ValuePoint {
	if len(sorted) == 0 || horizonDays <= 0 {
		return sorted
	}
	calendarDays := float64(horizonDays) * 365 / formulas.TradingDaysPerYear
	cutoff := sorted[len(sorted)-1].Date.Add(-time.Duration(calendarDays * 24 * float64(time.Hour)))
	start := sort.Search(len(sorted), func(i int) bool { return !sorted[i].Date.Before(cutoff) })
	return sorted[start:]
}

func rolling(periodReturns []float64, periodsPerYear float64) []float64 {
	window := rollingWindow
	if len(periodReturns) < window {
		window = len(periodReturns)
	}
	if window < minHistoryPoints {
		return nil
	}
	return formulas.RollingVolatility(periodReturns, window, periodsPerYear)
}

func holdingWeights(holdings []domain.PortfolioInvestment) ([]float64, float64) {
	total := 0.0
	for _, inv := range holdings {
		total += inv.CurrentValue
	}
	weights := make([]float64, len(holdings))
	if total <= 0 {
		return weights, total
	}
	for i, inv := range holdings {
		weights[i] = inv.CurrentValue / total
	}
	return weights, total
}

// annualizedReturn pools held positions into one compound rate, timed from
// the amount-weighted investment date.
func annualizedReturn(holdings []domain.PortfolioInvestment, asOf time.Time) float64 {
	invested, current, weightedYears := 0.0, 0.0, 0.0
	for _, inv := range holdings {
		invested += inv.InvestedAmount
		current += inv.CurrentValue
		weightedYears += inv.InvestedAmount * math.Max(formulas.YearsBetween(inv.InvestedAt, asOf), returns.MinYears)
	}
	if invested <= 0 {
		return 0
	}
	if current == invested {
		return 0
	}
	cagr := formulas.CAGR(invested, current, weightedYears/invested)
	if cagr == nil {
		return 0
	}
	return *cagr
}

func exposures(holdings []domain.PortfolioInvestment, total float64, key func(domain.PortfolioInvestment) string) []Exposure {
	index := make(map[string]int)
	out := make([]Exposure, 0)
	for _, inv := range holdings {
		k := key(inv)
		if k == "" {
			k = "UNCLASSIFIED"
		}
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, Exposure{Key: k})
		}
		out[i].Value += inv.CurrentValue
		out[i].Count++
	}
	for i := range out {
		if total > 0 {
			out[i].Weight = out[i].Value / total
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Key < out[j].Key
	})
	return out
}
