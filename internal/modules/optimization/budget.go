package optimization

import "math"

const (
	budgetBisectionSteps = 50
	budgetTolerance      = 1e-9
)

type budgetOutcome struct {
	weights  []float64
	limited  bool
	exceeded bool
}

// applyBudget keeps the turnover of target within budget, a fraction of the
// held value. Over budget, the allocation is pulled back along the segment
// toward the minimal-turnover feasible point. When even that point needs more
// turnover than the budget allows it is returned flagged as exceeded.
func (pr *problem) applyBudget(target []float64, budget float64) budgetOutcome {
	if math.IsInf(budget, 1) || pr.turnover(target) <= budget+budgetTolerance {
		return budgetOutcome{weights: target}
	}

	minimal := pr.finalize(pr.w0)
	if pr.turnover(minimal) > budget+budgetTolerance {
		return budgetOutcome{weights: minimal, exceeded: true}
	}

	within := func(lambda float64) ([]float64, bool) {
		w := pr.snap(lerp(minimal, target, lambda))
		return w, pr.feasible(w) && pr.turnover(w) <= budget+budgetTolerance
	}

	lo, hi := 0.0, 1.0
	for step := 0; step < budgetBisectionSteps; step++ {
		mid := (lo + hi) / 2
		if _, ok := within(mid); ok {
			lo = mid
		} else {
			hi = mid
		}
	}

	w, ok := within(lo)
	if !ok {
		w = minimal
	}
	return budgetOutcome{weights: w, limited: true}
}
