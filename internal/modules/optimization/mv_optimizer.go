package optimization

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/optimize"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/internal/modules/optimization/progress"
)

const (
	penaltyWeight  = 1000.0
	turnoverWeight = 1e-6
	minVolatility  = 1e-6
	progressEvery  = 25
)

// targets carries the optional objective targets.
type targets struct {
	ret  float64
	risk float64
}

type solveOutcome struct {
	weights    []float64
	method     string
	status     optimize.Status
	objective  float64
	iterations int
}

// MVOptimizer searches the feasible region for the allocation that best
// serves an objective.
//
// Each objective is minimized over the free weights as a penalty problem:
//   - MAXIMIZE_RETURN: -R(w)
//   - MINIMIZE_RISK: σ(w)
//   - MAXIMIZE_SHARPE: -(R(w) - r_f) / σ(w)
//   - TARGET_RETURN: σ(w) + P·max(0, target - R(w))²
//   - TARGET_RISK: -R(w) + P·max(0, σ(w) - target)²
//
// plus P·(Σw - s*)² toward the investable target, P·‖x - proj(x)‖² to stay near
// the region and ε·‖w - w₀‖² so ties resolve toward the current allocation.
// The objective is always evaluated at the projected point.
type MVOptimizer struct {
	log zerolog.Logger
	cfg Config
}

// NewMVOptimizer creates a new mean-variance optimizer.
func NewMVOptimizer(log zerolog.Logger, cfg Config) *MVOptimizer {
	return &MVOptimizer{
		log: log.With().Str("component", "mv_optimizer").Logger(),
		cfg: cfg,
	}
}

func (mvo *MVOptimizer) objective(pr *problem, obj domain.Objective, t targets) func(w []float64) float64 {
	switch obj {
	case domain.ObjectiveMaximizeReturn:
		return func(w []float64) float64 { return -pr.expectedReturn(w) }
	case domain.ObjectiveMinimizeRisk:
		return func(w []float64) float64 { return pr.volatility(w) }
	case domain.ObjectiveMaximizeSharpe:
		return func(w []float64) float64 {
			return -(pr.expectedReturn(w) - pr.rf) / math.Max(pr.volatility(w), minVolatility)
		}
	case domain.ObjectiveTargetReturn:
		return func(w []float64) float64 {
			shortfall := math.Max(0, t.ret-pr.expectedReturn(w))
			return pr.volatility(w) + penaltyWeight*shortfall*shortfall
		}
	case domain.ObjectiveTargetRisk:
		return func(w []float64) float64 {
			excess := math.Max(0, pr.volatility(w)-t.risk)
			return -pr.expectedReturn(w) + penaltyWeight*excess*excess
		}
	}
	return nil
}

// solve runs the search and returns the best feasible allocation found. Only
// cancellation and an unknown objective are errors; a solver that fails to
// converge leaves the projected current allocation.
func (mvo *MVOptimizer) solve(ctx context.Context, pr *problem, obj domain.Objective, t targets, cb progress.Callback) (solveOutcome, error) {
	fallback := solveOutcome{weights: pr.finalize(pr.w0), method: "none"}
	if len(pr.free) == 0 {
		return fallback, nil
	}

	f := mvo.objective(pr, obj, t)
	if f == nil {
		return solveOutcome{}, fmt.Errorf("unknown objective %q", obj)
	}

	penalized := func(x []float64) float64 {
		raw := pr.expand(x)
		w := pr.project(raw)
		value := f(w)

		gap := sumOf(w) - pr.target
		value += penaltyWeight * gap * gap

		for i := range raw {
			d := raw[i] - w[i]
			value += penaltyWeight * d * d
			m := w[i] - pr.w0[i]
			value += turnoverWeight * m * m
		}
		return value
	}

	search := optimize.Problem{
		Func: penalized,
		Grad: func(grad, x []float64) {
			fd.Gradient(grad, penalized, x, &fd.Settings{Formula: fd.Central})
		},
	}

	starts := [][]float64{pr.freeOf(pr.project(pr.w0)), mvo.equalWeightStart(pr)}
	best := fallback
	best.objective = math.Inf(1)
	totalIterations := 0

	for s, initial := range starts {
		rec := &contextRecorder{ctx: ctx, cb: cb, total: mvo.cfg.MaxIterations, start: s}
		settings := &optimize.Settings{
			MajorIterations: mvo.cfg.MaxIterations,
			FuncEvaluations: mvo.cfg.MaxIterations * (len(initial) + 1) * 4,
			Runtime:         mvo.cfg.Timeout / time.Duration(len(starts)),
			Recorder:        rec,
		}

		method := "nelder-mead"
		result, err := optimize.Minimize(search, initial, settings, &optimize.NelderMead{})
		if ctxErr := ctx.Err(); ctxErr != nil {
			return solveOutcome{}, fmt.Errorf("optimization cancelled: %w", ctxErr)
		}
		if err != nil || !usable(result.Status) {
			mvo.log.Debug().Err(err).Str("status", statusString(result)).Msg("Nelder-Mead failed, trying LBFGS")

			totalIterations += rec.iterations
			rec.reset()
			method = "lbfgs"
			result, err = optimize.Minimize(search, initial, settings, &optimize.LBFGS{})
			if ctxErr := ctx.Err(); ctxErr != nil {
				return solveOutcome{}, fmt.Errorf("optimization cancelled: %w", ctxErr)
			}
		}
		totalIterations += rec.iterations
		if err != nil || result == nil || !usable(result.Status) {
			mvo.log.Warn().Err(err).Str("status", statusString(result)).Int("start", s).Msg("Optimizer did not converge from start")
			continue
		}

		if result.F < best.objective {
			best = solveOutcome{
				weights:   pr.finalize(pr.expand(result.X)),
				method:    method,
				status:    result.Status,
				objective: result.F,
			}
		}
	}

	best.iterations = totalIterations
	mvo.log.Debug().
		Str("objective", string(obj)).
		Str("method", best.method).
		Int("iterations", totalIterations).
		Float64("value", best.objective).
		Msg("Solver finished")

	return best, nil
}

// equalWeightStart spreads the investable target evenly over free positions.
func (mvo *MVOptimizer) equalWeightStart(pr *problem) []float64 {
	pinned := sumOf(pr.pinnedOnly())
	x := make([]float64, len(pr.free))
	share := math.Max(0, pr.target-pinned) / float64(len(pr.free))
	for k := range x {
		x[k] = share
	}
	return pr.freeOf(pr.project(pr.expand(x)))
}

// usable accepts convergence and budget-limit terminations: the best point
// found is projected onto the region either way.
func usable(status optimize.Status) bool {
	switch status {
	case optimize.Success,
		optimize.GradientThreshold,
		optimize.FunctionConvergence,
		optimize.FunctionThreshold,
		optimize.StepConvergence,
		optimize.MethodConverge,
		optimize.IterationLimit,
		optimize.RuntimeLimit,
		optimize.FunctionEvaluationLimit,
		optimize.GradientEvaluationLimit:
		return true
	}
	return false
}

func statusString(result *optimize.Result) string {
	if result == nil {
		return "no result"
	}
	return result.Status.String()
}

// contextRecorder aborts the search once the request context is done and
// forwards periodic progress.
type contextRecorder struct {
	ctx        context.Context
	cb         progress.Callback
	total      int
	start      int
	iterations int
}

func (r *contextRecorder) Init() error {
	return r.ctx.Err()
}

func (r *contextRecorder) Record(loc *optimize.Location, op optimize.Operation, stats *optimize.Stats) error {
	if err := r.ctx.Err(); err != nil {
		return err
	}
	if op&optimize.MajorIteration == 0 {
		return nil
	}
	r.iterations = stats.MajorIterations
	if r.iterations%progressEvery == 0 {
		progress.Call(r.cb, progress.Update{
			Phase:   progress.PhaseSolve,
			Current: r.iterations,
			Total:   r.total,
			Message: "searching allocations",
			Details: map[string]any{"start": r.start, "objective": loc.F},
		})
	}
	return nil
}

func (r *contextRecorder) reset() {
	r.iterations = 0
}
