package optimization

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/internal/modules/risk"
)

const (
	feasibilityTolerance = 1e-9
	riskBisectionSteps   = 60
	maxSnapRounds        = 10
)

type position struct {
	inv     domain.PortfolioInvestment
	current float64
	upper   float64
	sector  int
	pinned  bool
}

// problem is the feasible region and the data the objectives need. Weights
// are fractions of the held value and are always full-length: pinned
// positions carry their fixed weight.
type problem struct {
	model       *risk.Model
	positions   []position
	free        []int
	sectors     []string
	mu          []float64
	w0          []float64
	constraints Constraints
	value       float64
	maxInvested float64
	target      float64
	rf          float64
}

// ConstraintsManager translates the request constraints and the snapshot into
// a feasible region.
type ConstraintsManager struct {
	log zerolog.Logger
}

// NewConstraintsManager creates a new constraints manager.
func NewConstraintsManager(log zerolog.Logger) *ConstraintsManager {
	return &ConstraintsManager{
		log: log.With().Str("component", "constraints").Logger(),
	}
}

// build derives the problem for p. SUSPENDED holdings are pinned at their
// current weight; COMPLETED and CANCELLED holdings are excluded. An empty
// region yields an error wrapping ErrInfeasible.
func (cm *ConstraintsManager) build(p *domain.Portfolio, c Constraints, rf float64, asOf time.Time) (*problem, error) {
	holdings := p.Holdings()
	value := 0.0
	for _, inv := range holdings {
		value += inv.CurrentValue
	}
	if value <= 0 {
		return nil, fmt.Errorf("%w: portfolio has no held value", ErrInfeasible)
	}

	pr := &problem{
		constraints: c,
		value:       value,
		maxInvested: 1 - c.LiquidityRequirement,
		rf:          rf,
		model:       risk.BuildModel(holdings),
		positions:   make([]position, len(holdings)),
		mu:          make([]float64, len(holdings)),
		w0:          make([]float64, len(holdings)),
	}

	sectorIndex := make(map[string]int)
	for i, inv := range holdings {
		pos := position{
			inv:     inv,
			current: inv.CurrentValue / value,
			upper:   c.MaxPositionSize,
			sector:  -1,
			pinned:  inv.Status == domain.InvestmentSuspended,
		}
		if inv.Sector != "" {
			idx, ok := sectorIndex[inv.Sector]
			if !ok {
				idx = len(pr.sectors)
				sectorIndex[inv.Sector] = idx
				pr.sectors = append(pr.sectors, inv.Sector)
			}
			pos.sector = idx
		}
		if !pos.pinned {
			pr.free = append(pr.free, i)
		}
		pr.positions[i] = pos
		pr.w0[i] = pos.current
		pr.mu[i] = ExpectedReturn(inv, asOf)
	}

	if err := pr.checkPinned(); err != nil {
		cm.log.Debug().Err(err).Str("portfolio_id", p.ID).Msg("Constraint intersection is empty")
		return nil, err
	}
	pr.target = math.Min(pr.maxInvested, pr.capacity())

	cm.log.Debug().
		Int("positions", len(pr.positions)).
		Int("free", len(pr.free)).
		Int("sectors", len(pr.sectors)).
		Float64("invested_target", pr.target).
		Msg("Built feasible region")

	return pr, nil
}

// checkPinned verifies the all-free-at-zero point is feasible. Every other
// constraint only shrinks free weights, so that point exists iff the region
// is non-empty.
func (pr *problem) checkPinned() error {
	c := pr.constraints
	w := pr.pinnedOnly()

	for _, pos := range pr.positions {
		if pos.pinned && pos.current > c.MaxPositionSize+feasibilityTolerance {
			return fmt.Errorf("%w: suspended position %s at %.4f exceeds max position size %.4f",
				ErrInfeasible, pos.inv.ID, pos.current, c.MaxPositionSize)
		}
	}
	if sum := sumOf(w); sum > pr.maxInvested+feasibilityTolerance {
		return fmt.Errorf("%w: suspended positions hold %.4f, above the investable %.4f",
			ErrInfeasible, sum, pr.maxInvested)
	}
	for s, total := range pr.sectorWeights(w) {
		if total > c.MaxSectorConcentration+feasibilityTolerance {
			return fmt.Errorf("%w: suspended positions hold %.4f of sector %s, above %.4f",
				ErrInfeasible, total, pr.sectors[s], c.MaxSectorConcentration)
		}
	}
	if c.RiskBudget > 0 {
		if vol := pr.volatility(w); vol > c.RiskBudget+feasibilityTolerance {
			return fmt.Errorf("%w: suspended positions alone have volatility %.4f, above the risk budget %.4f",
				ErrInfeasible, vol, c.RiskBudget)
		}
	}
	return nil
}

// capacity is the largest investable weight the box and sector caps allow.
func (pr *problem) capacity() float64 {
	perSector := make([]float64, len(pr.sectors))
	total := 0.0
	for _, pos := range pr.positions {
		room := pos.upper
		if pos.pinned {
			room = pos.current
		}
		if pos.sector < 0 {
			total += room
			continue
		}
		perSector[pos.sector] += room
	}
	for _, s := range perSector {
		total += math.Min(s, pr.constraints.MaxSectorConcentration)
	}
	return total
}

func (pr *problem) pinnedOnly() []float64 {
	w := make([]float64, len(pr.positions))
	for i, pos := range pr.positions {
		if pos.pinned {
			w[i] = pos.current
		}
	}
	return w
}

// expand writes a free-variable vector into a full weight vector.
func (pr *problem) expand(x []float64) []float64 {
	w := pr.pinnedOnly()
	for k, i := range pr.free {
		w[i] = x[k]
	}
	return w
}

// freeOf extracts the free variables of a full weight vector.
func (pr *problem) freeOf(w []float64) []float64 {
	x := make([]float64, len(pr.free))
	for k, i := range pr.free {
		x[k] = w[i]
	}
	return x
}

func (pr *problem) sectorWeights(w []float64) []float64 {
	out := make([]float64, len(pr.sectors))
	for i, pos := range pr.positions {
		if pos.sector >= 0 {
			out[pos.sector] += w[i]
		}
	}
	return out
}

// project maps any weight vector onto the convex part of the feasible
// region: box clamp, sector caps, the investable cap and the risk budget, in
// that order. Each step only scales free weights down, so earlier bounds stay
// satisfied. The minimum position rule is applied separately by snap.
func (pr *problem) project(w []float64) []float64 {
	c := pr.constraints
	out := make([]float64, len(w))
	copy(out, w)

	for i, pos := range pr.positions {
		if pos.pinned {
			out[i] = pos.current
			continue
		}
		out[i] = math.Max(0, math.Min(pos.upper, out[i]))
	}

	for s := range pr.sectors {
		pinned, free := 0.0, 0.0
		for i, pos := range pr.positions {
			if pos.sector != s {
				continue
			}
			if pos.pinned {
				pinned += out[i]
			} else {
				free += out[i]
			}
		}
		if pinned+free > c.MaxSectorConcentration && free > 0 {
			pr.scaleFree(out, math.Max(0, c.MaxSectorConcentration-pinned)/free, func(p position) bool { return p.sector == s })
		}
	}

	pinned, free := 0.0, 0.0
	for i, pos := range pr.positions {
		if pos.pinned {
			pinned += out[i]
		} else {
			free += out[i]
		}
	}
	if pinned+free > pr.maxInvested && free > 0 {
		pr.scaleFree(out, math.Max(0, pr.maxInvested-pinned)/free, nil)
	}

	if c.RiskBudget > 0 && pr.volatility(out) > c.RiskBudget {
		base := pr.pinnedOnly()
		lo, hi := 0.0, 1.0
		for step := 0; step < riskBisectionSteps; step++ {
			mid := (lo + hi) / 2
			if pr.volatility(lerp(base, out, mid)) <= c.RiskBudget {
				lo = mid
			} else {
				hi = mid
			}
		}
		out = lerp(base, out, lo)
	}

	return out
}

func (pr *problem) scaleFree(w []float64, factor float64, match func(position) bool) {
	for i, pos := range pr.positions {
		if pos.pinned || (match != nil && !match(pos)) {
			continue
		}
		w[i] *= factor
	}
}

// snap closes free positions below the minimum position size.
func (pr *problem) snap(w []float64) []float64 {
	out := make([]float64, len(w))
	copy(out, w)
	m := pr.constraints.MinPositionSize
	if m <= 0 {
		return out
	}
	for i, pos := range pr.positions {
		if !pos.pinned && out[i] > 0 && out[i] < m-feasibilityTolerance {
			out[i] = 0
		}
	}
	return out
}

// finalize returns a point satisfying every constraint, including the
// minimum position rule.
func (pr *problem) finalize(w []float64) []float64 {
	current := pr.project(w)
	for round := 0; round < maxSnapRounds; round++ {
		snapped := pr.snap(current)
		if pr.feasible(snapped) {
			return snapped
		}
		current = pr.project(snapped)
	}
	return pr.pinnedOnly()
}

// feasible reports whether w satisfies every constraint.
func (pr *problem) feasible(w []float64) bool {
	c := pr.constraints
	for i, pos := range pr.positions {
		if pos.pinned {
			if math.Abs(w[i]-pos.current) > feasibilityTolerance {
				return false
			}
			continue
		}
		if w[i] < -feasibilityTolerance || w[i] > pos.upper+feasibilityTolerance {
			return false
		}
		if c.MinPositionSize > 0 && w[i] > feasibilityTolerance && w[i] < c.MinPositionSize-feasibilityTolerance {
			return false
		}
	}
	for _, s := range pr.sectorWeights(w) {
		if s > c.MaxSectorConcentration+feasibilityTolerance {
			return false
		}
	}
	if sumOf(w) > pr.maxInvested+feasibilityTolerance {
		return false
	}
	if c.RiskBudget > 0 && pr.volatility(w) > c.RiskBudget+feasibilityTolerance {
		return false
	}
	return true
}

func (pr *problem) volatility(w []float64) float64 {
	return pr.model.PortfolioVolatility(w)
}

// expectedReturn includes the uninvested remainder at the risk-free rate.
func (pr *problem) expectedReturn(w []float64) float64 {
	r := 0.0
	for i, wi := range w {
		r += pr.mu[i] * wi
	}
	return r + (1-sumOf(w))*pr.rf
}

func (pr *problem) sharpe(w []float64) float64 {
	vol := pr.volatility(w)
	if vol <= 0 {
		return 0
	}
	return (pr.expectedReturn(w) - pr.rf) / vol
}

// turnover is the traded fraction of the held value.
func (pr *problem) turnover(w []float64) float64 {
	t := 0.0
	for i := range w {
		t += math.Abs(w[i] - pr.w0[i])
	}
	return t
}

func sumOf(w []float64) float64 {
	s := 0.0
	for _, v := range w {
		s += v
	}
	return s
}

func lerp(a, b []float64, t float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] + t*(b[i]-a[i])
	}
	return out
}
