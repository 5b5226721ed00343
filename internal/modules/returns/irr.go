package returns

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/aristath/portfolio-engine/internal/domain"
)

// ErrInsufficientCashFlows is returned when fewer than two flows are given.
var ErrInsufficientCashFlows = errors.New("at least two cash flows are required")

// IRR solver bounds.
const (
	irrInitialGuess  = 0.1
	irrLowerBound    = -0.9999
	irrUpperBound    = 10.0
	irrDaysPerPeriod = 365.0
)

// IRRConfig bounds the root-finding work of one IRR solve.
type IRRConfig struct {
	MaxNewtonIterations    int
	MaxBisectionIterations int
	Tolerance              float64
}

// DefaultIRRConfig returns the standard solver limits.
func DefaultIRRConfig() IRRConfig {
	return IRRConfig{
		MaxNewtonIterations:    100,
		MaxBisectionIterations: 200,
		Tolerance:              1e-7,
	}
}

// IRRResult is the outcome of an IRR solve. Rate is meaningful only when
// Undetermined is nil.
type IRRResult struct {
	Undetermined *domain.Undetermined `json:"undetermined,omitempty"`
	Method       string               `json:"method"`
	Rate         float64              `json:"rate"`
	Iterations   int                  `json:"iterations"`
}

type datedFlow struct {
	years  float64
	amount float64
}

// SignedAmount returns the flow amount signed by its type: OUTFLOW from the
// investor is negative, INFLOW is positive.
func SignedAmount(cf domain.CashFlow) float64 {
	switch cf.Type {
	case domain.CashFlowOutflow:
		return -math.Abs(cf.Amount)
	case domain.CashFlowInflow:
		return math.Abs(cf.Amount)
	}
	return cf.Amount
}

// SolveIRR finds the annual rate r with sum(a_i / (1+r)^t_i) = 0 over dated
// flows, t_i in years of 365 days from the earliest flow. Newton iteration runs
// first; bisection over [-0.9999, 10] takes over when Newton fails. A missing
// root yields an Undetermined result, not an error. Only cancellation and
// too few flows are errors.
func SolveIRR(ctx context.Context, flows []domain.CashFlow, cfg IRRConfig) (IRRResult, error) {
	if len(flows) < 2 {
		return IRRResult{}, ErrInsufficientCashFlows
	}

	sorted := make([]domain.CashFlow, len(flows))
	copy(sorted, flows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	t0 := sorted[0].Date
	dated := make([]datedFlow, len(sorted))
	hasPositive, hasNegative := false, false
	for i, cf := range sorted {
		amount := SignedAmount(cf)
		dated[i] = datedFlow{
			years:  cf.Date.Sub(t0).Hours() / 24 / irrDaysPerPeriod,
			amount: amount,
		}
		if amount > 0 {
			hasPositive = true
		}
		if amount < 0 {
			hasNegative = true
		}
	}

	if !hasPositive || !hasNegative {
		return IRRResult{
			Method:       "none",
			Undetermined: domain.NewUndetermined(domain.CodeIRRNotConverged, "cash flows never change sign"),
		}, nil
	}

	rate, iterations, ok, err := newton(ctx, dated, cfg)
	if err != nil {
		return IRRResult{}, err
	}
	if ok {
		return IRRResult{Rate: rate, Iterations: iterations, Method: "newton"}, nil
	}

	rate, more, ok, err := bisection(ctx, dated, cfg)
	iterations += more
	if err != nil {
		return IRRResult{}, err
	}
	if ok {
		return IRRResult{Rate: rate, Iterations: iterations, Method: "bisection"}, nil
	}

	return IRRResult{
		Method:     "bisection",
		Iterations: iterations,
		Undetermined: domain.NewUndetermined(
			domain.CodeIRRNotConverged,
			fmt.Sprintf("no root within %d iterations at tolerance %g", iterations, cfg.Tolerance),
		),
	}, nil
}

func npv(flows []datedFlow, rate float64) float64 {
	total := 0.0
	for _, f := range flows {
		total += f.amount / math.Pow(1+rate, f.years)
	}
	return total
}

func npvDerivative(flows []datedFlow, rate float64) float64 {
	total := 0.0
	for _, f := range flows {
		total -= f.years * f.amount / math.Pow(1+rate, f.years+1)
	}
	return total
}

func newton(ctx context.Context, flows []datedFlow, cfg IRRConfig) (float64, int, bool, error) {
	rate := irrInitialGuess
	for i := 1; i <= cfg.MaxNewtonIterations; i++ {
		if err := ctx.Err(); err != nil {
			return 0, i, false, fmt.Errorf("irr cancelled: %w", err)
		}

		f := npv(flows, rate)
		d := npvDerivative(flows, rate)
		if d == 0 || math.IsNaN(d) || math.IsInf(d, 0) {
			return 0, i, false, nil
		}

		next := rate - f/d
		if math.IsNaN(next) || math.IsInf(next, 0) || next <= irrLowerBound {
			return 0, i, false, nil
		}
		if math.Abs(next-rate) < cfg.Tolerance {
			return next, i, true, nil
		}
		rate = next
	}
	return 0, cfg.MaxNewtonIterations, false, nil
}

func bisection(ctx context.Context, flows []datedFlow, cfg IRRConfig) (float64, int, bool, error) {
	lo, hi := irrLowerBound, irrUpperBound
	fLo := npv(flows, lo)
	fHi := npv(flows, hi)
	if math.IsNaN(fLo) || math.IsNaN(fHi) || fLo*fHi > 0 {
		return 0, 0, false, nil
	}

	for i := 1; i <= cfg.MaxBisectionIterations; i++ {
		if err := ctx.Err(); err != nil {
			return 0, i, false, fmt.Errorf("irr cancelled: %w", err)
		}

		mid := (lo + hi) / 2
		fMid := npv(flows, mid)
		if fMid == 0 || (hi-lo)/2 < cfg.Tolerance {
			return mid, i, true, nil
		}
		if fLo*fMid < 0 {
			hi = mid
		} else {
			lo, fLo = mid, fMid
		}
	}
	return 0, cfg.MaxBisectionIterations, false, nil
}
