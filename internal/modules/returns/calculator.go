// Package returns computes absolute, annualized, IRR and Sharpe returns for
// investments.
package returns

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/internal/modules/validation"
	"github.com/aristath/portfolio-engine/pkg/formulas"
)

// MinYears floors elapsed time so a same-day investment cannot blow up the
// annualization exponent.
const MinYears = 1.0 / formulas.DaysPerYear

// AbsoluteReturn is currentValue - investedAmount.
func AbsoluteReturn(invested, current float64) float64 {
	return current - invested
}

// AnnualizedReturn is (current/invested)^(1/years) - 1 with years floored at
// one day. Equal values yield exactly 0; a non-positive invested amount
// yields 0.
func AnnualizedReturn(invested, current float64, from, to time.Time) float64 {
	if invested <= 0 || current == invested {
		return 0
	}
	years := math.Max(formulas.YearsBetween(from, to), MinYears)
	cagr := formulas.CAGR(invested, current, years)
	if cagr == nil {
		return 0
	}
	return *cagr
}

// SharpeRatio is (annualizedReturn - benchmarkRate) / volatility. A
// non-positive volatility has no defined ratio.
func SharpeRatio(annualizedReturn, benchmarkRate, volatility float64) (float64, *domain.Undetermined) {
	if !(volatility > 0) {
		return 0, domain.NewUndetermined(domain.CodeSharpeUndefined, "volatility of period returns is zero")
	}
	return (annualizedReturn - benchmarkRate) / volatility, nil
}

// Calculator runs return calculations.
type Calculator struct {
	log zerolog.Logger
	irr IRRConfig
	now func() time.Time
}

// NewCalculator creates a return calculator with default IRR limits.
func NewCalculator(log zerolog.Logger) *Calculator {
	return &Calculator{
		log: log.With().Str("component", "return_calculator").Logger(),
		irr: DefaultIRRConfig(),
		now: time.Now,
	}
}

// WithIRRConfig overrides the IRR solver limits.
func (c *Calculator) WithIRRConfig(cfg IRRConfig) *Calculator {
	cp := *c
	cp.irr = cfg
	return &cp
}

// WithClock overrides the evaluation clock.
func (c *Calculator) WithClock(clock func() time.Time) *Calculator {
	cp := *c
	cp.now = clock
	return &cp
}

// InvestmentReturn is the metric for one input investment.
type InvestmentReturn struct {
	Value        *float64             `json:"value"`
	Undetermined *domain.Undetermined `json:"undetermined,omitempty"`
	IRR          *IRRResult           `json:"irr,omitempty"`
	ID           string               `json:"id,omitempty"`
	Name         string               `json:"name,omitempty"`
	Index        int                  `json:"index"`
	Invested     float64              `json:"invested"`
	CurrentValue float64              `json:"currentValue"`
	Absolute     float64              `json:"absoluteReturn"`
	Annualized   float64              `json:"annualizedReturn"`
	Years        float64              `json:"years"`
}

// Report is the result of one return calculation request.
type Report struct {
	AsOf            time.Time              `json:"asOf"`
	CalculationType domain.CalculationType `json:"calculationType"`
	Aggregate       *float64               `json:"aggregate"`
	Undetermined    *domain.Undetermined   `json:"undetermined,omitempty"`
	Investments     []InvestmentReturn     `json:"investments"`
	TotalInvested   float64                `json:"totalInvested"`
	TotalValue      float64                `json:"totalValue"`
	BenchmarkRate   float64                `json:"benchmarkRate"`
}

// Calculate evaluates a validated return calculation request.
func (c *Calculator) Calculate(ctx context.Context, req validation.ReturnCalculationRequest) (*Report, error) {
	calcType, err := domain.ParseCalculationType(validation.String(req.CalculationType))
	if err != nil {
		return nil, fmt.Errorf("failed to calculate returns: %w", err)
	}

	asOf := c.now()
	if req.AsOf != nil {
		asOf = *req.AsOf
	}

	report := &Report{
		AsOf:            asOf,
		CalculationType: calcType,
		BenchmarkRate:   validation.Float(req.BenchmarkRate, 0),
		Investments:     make([]InvestmentReturn, 0, len(req.Investments)),
	}

	weightedYears := 0.0
	for i, inv := range req.Investments {
		invested := validation.Float(inv.Amount, 0)
		current := validation.Float(inv.CurrentValue, 0)
		from := asOf
		if inv.InvestmentDate != nil {
			from = *inv.InvestmentDate
		}
		years := math.Max(formulas.YearsBetween(from, asOf), MinYears)

		ir := InvestmentReturn{
			ID:           inv.ID,
			Name:         inv.Name,
			Index:        i,
			Invested:     invested,
			CurrentValue: current,
			Absolute:     AbsoluteReturn(invested, current),
			Annualized:   AnnualizedReturn(invested, current, from, asOf),
			Years:        years,
		}

		report.TotalInvested += invested
		report.TotalValue += current
		weightedYears += invested * years
		report.Investments = append(report.Investments, ir)
	}

	switch calcType {
	case domain.CalculationAbsolute:
		for i := range report.Investments {
			v := report.Investments[i].Absolute
			report.Investments[i].Value = &v
		}
		agg := AbsoluteReturn(report.TotalInvested, report.TotalValue)
		report.Aggregate = &agg

	case domain.CalculationAnnualized:
		for i := range report.Investments {
			v := report.Investments[i].Annualized
			report.Investments[i].Value = &v
		}
		agg := pooledAnnualized(report.TotalInvested, report.TotalValue, weightedYears)
		report.Aggregate = &agg

	case domain.CalculationIRR:
		if err := c.calculateIRR(ctx, req, report); err != nil {
			return nil, err
		}

	case domain.CalculationSharpe:
		c.calculateSharpe(req, report, weightedYears)
	}

	c.log.Debug().
		Str("type", string(calcType)).
		Int("investments", len(report.Investments)).
		Msg("Returns calculated")

	return report, nil
}

func pooledAnnualized(invested, current, weightedYears float64) float64 {
	if invested <= 0 || current == invested {
		return 0
	}
	years := math.Max(weightedYears/invested, MinYears)
	cagr := formulas.CAGR(invested, current, years)
	if cagr == nil {
		return 0
	}
	return *cagr
}

func toCashFlows(inputs []validation.CashFlowInput) []domain.CashFlow {
	flows := make([]domain.CashFlow, 0, len(inputs))
	for _, in := range inputs {
		if in.Date == nil || in.Amount == nil || in.Type == nil {
			continue
		}
		cfType, err := domain.ParseCashFlowType(*in.Type)
		if err != nil {
			continue
		}
		flows = append(flows, domain.CashFlow{Date: *in.Date, Amount: *in.Amount, Type: cfType})
	}
	return flows
}

func (c *Calculator) calculateIRR(ctx context.Context, req validation.ReturnCalculationRequest, report *Report) error {
	var pooled []domain.CashFlow

	for i, inv := range req.Investments {
		flows := toCashFlows(inv.CashFlows)
		res, err := SolveIRR(ctx, flows, c.irr)
		if errors.Is(err, ErrInsufficientCashFlows) {
			report.Investments[i].Undetermined = domain.NewUndetermined(domain.CodeInsufficientCashFlows, "investment has fewer than two cash flows")
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to solve irr for investment %d: %w", i, err)
		}

		pooled = append(pooled, flows...)
		report.Investments[i].IRR = &res
		if res.Undetermined != nil {
			report.Investments[i].Undetermined = res.Undetermined
			continue
		}
		rate := res.Rate
		report.Investments[i].Value = &rate
	}

	if len(pooled) < 2 {
		report.Undetermined = domain.NewUndetermined(domain.CodeInsufficientCashFlows, "no investment has two or more cash flows")
		return nil
	}

	res, err := SolveIRR(ctx, pooled, c.irr)
	if err != nil {
		return fmt.Errorf("failed to solve pooled irr: %w", err)
	}
	if res.Undetermined != nil {
		report.Undetermined = res.Undetermined
		c.log.Warn().Int("iterations", res.Iterations).Msg("IRR did not converge")
		return nil
	}
	rate := res.Rate
	report.Aggregate = &rate
	return nil
}

func (c *Calculator) calculateSharpe(req validation.ReturnCalculationRequest, report *Report, weightedYears float64) {
	benchmark := report.BenchmarkRate

	for i, inv := range req.Investments {
		vol := historyVolatility(inv.ValueHistory)
		v, und := SharpeRatio(report.Investments[i].Annualized, benchmark, vol)
		if und != nil {
			report.Investments[i].Undetermined = und
			continue
		}
		report.Investments[i].Value = &v
	}

	aggReturn := pooledAnnualized(report.TotalInvested, report.TotalValue, weightedYears)

	v, und := SharpeRatio(aggReturn, benchmark, pooledVolatility(req.Investments))
	if und != nil {
		report.Undetermined = und
		return
	}
	report.Aggregate = &v
}

// pooledVolatility is the amount-weighted volatility of period returns over
// the investments that carry a usable valuation history. It is 0 when none
// does, which leaves the aggregate Sharpe ratio undetermined.
func pooledVolatility(investments []validation.ReturnInvestment) float64 {
	weighted, weight := 0.0, 0.0
	for _, inv := range investments {
		vol := historyVolatility(inv.ValueHistory)
		if vol <= 0 {
			continue
		}
		amount := validation.Float(inv.Amount, 0)
		weighted += amount * vol
		weight += amount
	}
	if weight <= 0 {
		return 0
	}
	return weighted / weight
}

// historyVolatility annualizes the volatility of a valuation series. Fewer
// than three points give 0.
func historyVolatility(points []validation.ValuePointInput) float64 {
	if len(points) < 3 {
		return 0
	}
	series := make([]domain.ValuePoint, len(points))
	for i, p := range points {
		series[i] = domain.ValuePoint{Date: p.Date, Value: p.Value}
	}
	series = domain.SortSeries(series)

	dates := make([]time.Time, len(series))
	for i, p := range series {
		dates[i] = p.Date
	}
	returns := formulas.CalculateReturns(domain.SeriesValues(series))
	return formulas.AnnualizedVolatility(returns, formulas.PeriodsPerYear(dates))
}
