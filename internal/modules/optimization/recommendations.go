package optimization

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/aristath/portfolio-engine/internal/domain"
	"github.com/aristath/portfolio-engine/internal/modules/diversification"
	"github.com/aristath/portfolio-engine/pkg/formulas"
)

// settleImmaterial returns sub-threshold trades to the current weight when
// the result stays feasible. Trades that cannot be undone are kept and
// reported.
func (pr *problem) settleImmaterial(w []float64, threshold float64) ([]float64, []string) {
	out := append([]float64(nil), w...)

	idx := make([]int, 0)
	for i := range out {
		if d := math.Abs(out[i] - pr.w0[i]); d > 0 && d < threshold {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return math.Abs(out[idx[a]]-pr.w0[idx[a]]) < math.Abs(out[idx[b]]-pr.w0[idx[b]])
	})

	var warnings []string
	for _, i := range idx {
		trial := append([]float64(nil), out...)
		trial[i] = pr.w0[i]
		if pr.feasible(trial) {
			out = trial
			continue
		}
		warnings = append(warnings, fmt.Sprintf("trade of %.4f in %s is below the materiality threshold but needed to satisfy constraints",
			out[i]-pr.w0[i], pr.positions[i].inv.ID))
	}
	return out, warnings
}

// enforceDiversification passes every BUY through the enforcer against the
// invested book after the other trades. A rejected BUY is capped at the
// largest allowed increment. A non-high-risk BUY only dilutes high-risk
// exposure and is not blocked by that rule.
func (pr *problem) enforceDiversification(w []float64, enforcer *diversification.Enforcer, threshold float64) ([]float64, []string) {
	out := append([]float64(nil), w...)

	buys := make([]int, 0)
	for i := range out {
		if !pr.positions[i].pinned && out[i]-pr.w0[i] >= threshold {
			buys = append(buys, i)
		}
	}
	sort.SliceStable(buys, func(a, b int) bool {
		return out[buys[a]]-pr.w0[buys[a]] > out[buys[b]]-pr.w0[buys[b]]
	})

	var warnings []string
	for _, i := range buys {
		inv := pr.positions[i].inv
		existing := pr.bookExcept(out, i)
		candidate := diversification.Candidate{
			Sector:    inv.Sector,
			RiskLevel: inv.RiskLevel,
			Amount:    (out[i] - pr.w0[i]) * pr.value,
			Existing:  pr.w0[i] * pr.value,
		}

		decision := enforcer.Check(existing, candidate)
		blocking := make([]string, 0, len(decision.Violations))
		for _, v := range decision.Violations {
			if v.Code == domain.CodeHighRiskLimitExceeded && !inv.RiskLevel.IsHighRisk() {
				continue
			}
			blocking = append(blocking, v.Code)
		}
		if len(blocking) == 0 {
			continue
		}

		allowed := math.Min(decision.MaxAllowedAmount, candidate.Amount)
		capped := pr.w0[i] + allowed/pr.value
		if capped-pr.w0[i] < threshold || capped < pr.constraints.MinPositionSize {
			capped = pr.w0[i]
		}
		trial := append([]float64(nil), out...)
		trial[i] = capped
		if !pr.feasible(trial) {
			trial[i] = pr.w0[i]
		}
		if !pr.feasible(trial) {
			warnings = append(warnings, fmt.Sprintf("BUY of %s exceeds diversification limits %v but cannot be reduced within constraints",
				inv.ID, blocking))
			continue
		}
		warnings = append(warnings, fmt.Sprintf("BUY of %s capped from %.2f to %.2f by diversification limits %v",
			inv.ID, candidate.Amount, (trial[i]-pr.w0[i])*pr.value, blocking))
		out = trial
	}
	return out, warnings
}

// bookExcept is the invested book with position i at its current value and
// every other position at its weight in w.
func (pr *problem) bookExcept(w []float64, i int) diversification.Exposure {
	holdings := make([]domain.PortfolioInvestment, len(pr.positions))
	for j, pos := range pr.positions {
		inv := pos.inv
		inv.CurrentValue = w[j] * pr.value
		if j == i {
			inv.CurrentValue = pr.w0[i] * pr.value
		}
		holdings[j] = inv
	}
	return diversification.ValueExposure(holdings)
}

// allocationRecommendations turns final weights into per-position actions.
// Immaterial trades have already been settled back to the current weight, so
// any remaining difference is a trade.
func (pr *problem) allocationRecommendations(w []float64) ([]AllocationRecommendation, decimal.Decimal) {
	recs := make([]AllocationRecommendation, len(pr.positions))
	turnover := decimal.Zero
	value := decimal.NewFromFloat(pr.value)

	for i, pos := range pr.positions {
		delta := w[i] - pr.w0[i]
		amount := decimal.NewFromFloat(delta).Mul(value).Round(2)

		action := domain.ActionHold
		switch {
		case delta == 0, amount.IsZero():
			amount = decimal.Zero
		case delta > 0:
			action = domain.ActionBuy
		default:
			action = domain.ActionSell
		}

		recs[i] = AllocationRecommendation{
			InvestmentID:      pos.inv.ID,
			Name:              pos.inv.Name,
			Sector:            pos.inv.Sector,
			Status:            pos.inv.Status,
			Pinned:            pos.pinned,
			CurrentWeight:     pr.w0[i],
			RecommendedWeight: w[i],
			Action:            action,
			TransactionAmount: amount,
		}
		turnover = turnover.Add(amount.Abs())
	}
	return recs, turnover
}

// Strategy recommendation thresholds.
const (
	concentratedHHI      = 0.25
	idleCashMargin       = 0.05
	meaningfulRiskChange = 0.01
)

// strategyRecommendations derives implementation hints from a finished result.
func strategyRecommendations(res *Result) []StrategyRecommendation {
	var out []StrategyRecommendation

	var buys, sells []AllocationRecommendation
	weights := make([]float64, 0, len(res.Recommendations))
	for _, r := range res.Recommendations {
		weights = append(weights, r.RecommendedWeight)
		switch r.Action {
		case domain.ActionBuy:
			buys = append(buys, r)
		case domain.ActionSell:
			sells = append(sells, r)
		}
	}

	if res.BudgetExceeded {
		out = append(out, StrategyRecommendation{
			Priority:    domain.PriorityHigh,
			Title:       "Increase the rebalancing budget",
			Description: fmt.Sprintf("Meeting the constraints needs at least %s of trades, more than the %s budget.", res.Turnover.StringFixed(2), res.Budget.StringFixed(2)),
			TimeHorizon: "immediate",
			ActionItems: []string{
				"Raise the rebalancing budget to cover the required turnover",
				"Or relax the position and sector constraints",
			},
		})
	}

	if res.Optimized.RiskLevel.IsHighRisk() {
		out = append(out, StrategyRecommendation{
			Priority:           domain.PriorityHigh,
			Title:              "Review overall risk exposure",
			Description:        fmt.Sprintf("The optimized allocation still scores %.1f (%s) on the 0-10 risk scale.", res.Optimized.RiskScore, res.Optimized.RiskLevel),
			TimeHorizon:        "1-3 months",
			ExpectedRiskImpact: -res.Improvement.RiskReduction,
			ActionItems: []string{
				"Tighten the risk budget constraint",
				"Shift new capital toward LOW and MEDIUM risk projects",
			},
		})
	}

	if len(sells) > 0 {
		priority := domain.PriorityMedium
		if res.Improvement.RiskReduction > meaningfulRiskChange {
			priority = domain.PriorityHigh
		}
		items := make([]string, 0, len(sells))
		for _, s := range sells {
			items = append(items, fmt.Sprintf("Sell %s of %s (%.1f%% -> %.1f%%)", s.TransactionAmount.Abs().StringFixed(2), labelOf(s), s.CurrentWeight*100, s.RecommendedWeight*100))
		}
		out = append(out, StrategyRecommendation{
			Priority:             priority,
			Title:                "Trim overweight positions",
			Description:          fmt.Sprintf("Reduce %d position(s) to bring the allocation within constraints and toward the objective.", len(sells)),
			TimeHorizon:          "immediate",
			ActionItems:          items,
			ExpectedReturnImpact: res.Improvement.ReturnImprovement,
			ExpectedRiskImpact:   -res.Improvement.RiskReduction,
		})
	}

	if len(buys) > 0 {
		items := make([]string, 0, len(buys))
		for _, b := range buys {
			items = append(items, fmt.Sprintf("Buy %s of %s (%.1f%% -> %.1f%%)", b.TransactionAmount.StringFixed(2), labelOf(b), b.CurrentWeight*100, b.RecommendedWeight*100))
		}
		out = append(out, StrategyRecommendation{
			Priority:             domain.PriorityMedium,
			Title:                "Add to underweight positions",
			Description:          fmt.Sprintf("Increase %d position(s) that improve the %s objective.", len(buys), res.Objective),
			TimeHorizon:          "1-3 months",
			ActionItems:          items,
			ExpectedReturnImpact: res.Improvement.ReturnImprovement,
			ExpectedRiskImpact:   -res.Improvement.RiskReduction,
		})
	}

	if res.BudgetLimited {
		out = append(out, StrategyRecommendation{
			Priority:    domain.PriorityMedium,
			Title:       "Stage the rebalance",
			Description: "The budget covers only part of the move toward the optimal allocation.",
			TimeHorizon: "3-6 months",
			ActionItems: []string{
				"Execute the recommended trades now",
				"Re-run the optimizer after the next budget cycle",
			},
		})
	}

	if formulas.HerfindahlIndex(weights) > concentratedHHI {
		out = append(out, StrategyRecommendation{
			Priority:    domain.PriorityMedium,
			Title:       "Broaden diversification",
			Description: "Holdings remain concentrated in a few positions.",
			TimeHorizon: "3-6 months",
			ActionItems: []string{
				"Add positions in sectors not yet held",
				"Lower the maximum position size constraint",
			},
		})
	}

	if res.Optimized.CashWeight > res.Constraints.LiquidityRequirement+idleCashMargin {
		out = append(out, StrategyRecommendation{
			Priority:    domain.PriorityLow,
			Title:       "Deploy idle cash",
			Description: fmt.Sprintf("%.1f%% of the portfolio stays uninvested, above the %.1f%% liquidity requirement.", res.Optimized.CashWeight*100, res.Constraints.LiquidityRequirement*100),
			TimeHorizon: "ongoing",
			ActionItems: []string{
				"Look for new projects that fit the sector and position limits",
			},
		})
	}

	if len(buys) == 0 && len(sells) == 0 {
		out = append(out, StrategyRecommendation{
			Priority:    domain.PriorityLow,
			Title:       "Maintain the current allocation",
			Description: "No trade clears the materiality threshold.",
			TimeHorizon: "ongoing",
			ActionItems: []string{"Re-run the optimizer after significant valuation changes"},
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return priorityRank(out[i].Priority) < priorityRank(out[j].Priority)
	})
	return out
}

func priorityRank(p domain.Priority) int {
	switch p {
	case domain.PriorityHigh:
		return 0
	case domain.PriorityMedium:
		return 1
	case domain.PriorityLow:
		return 2
	}
	return 3
}

func labelOf(r AllocationRecommendation) string {
	if r.Name != "" {
		return r.Name
	}
	return r.InvestmentID
}
