package validation

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/aristath/portfolio-engine/internal/domain"
)

// Limits enforced by the gateway.
const (
	MinInvestmentAmount    = 1_000.0
	MaxInvestmentAmount    = 10_000_000.0
	MaxPortfolioNameLength = 100
	MaxRiskScore           = 10.0
	MaxTimeHorizonDays     = 2520
	MaxReturnInvestments   = 100
	MaxShockPercent        = 100.0
	MaxLossThreshold       = 100.0
	MaxDateRangeYears      = 10
	MaxPageLimit           = 100
)

// Gateway validates engine requests.
type Gateway struct {
	log zerolog.Logger
	now func() time.Time
}

// NewGateway creates a validation gateway using the wall clock.
func NewGateway(log zerolog.Logger) *Gateway {
	return &Gateway{
		log: log.With().Str("component", "validation_gateway").Logger(),
		now: time.Now,
	}
}

// WithClock returns a copy of the gateway that reads "now" from clock.
func (g *Gateway) WithClock(clock func() time.Time) *Gateway {
	c := *g
	c.now = clock
	return &c
}

// Validate dispatches on the request variant and collects every violation.
func (g *Gateway) Validate(req Request) Result {
	r := Valid()

	switch v := req.(type) {
	case InvestmentApplicationRequest:
		g.validateApplication(&r, v)
	case PortfolioRecordRequest:
		g.validatePortfolioRecord(&r, v)
	case OptimizationRequest:
		g.validateOptimization(&r, v)
	case RiskAssessmentRequest:
		g.validateRiskAssessment(&r, v)
	case StressTestRequest:
		g.validateStressTest(&r, v)
	case ReturnCalculationRequest:
		g.validateReturnCalculation(&r, v)
	default:
		r.add("kind", CodeUnknownRequestKind, "unsupported request kind %T", req)
	}

	if !r.IsValid {
		g.log.Debug().
			Str("kind", kindOf(req)).
			Strs("codes", r.Codes()).
			Msg("Request rejected by validation")
	}
	return r
}

// ValidateJSON parses body as the given kind and validates it. Type errors
// found while parsing are merged with rule violations.
func (g *Gateway) ValidateJSON(kind Kind, body []byte) (Request, Result) {
	req, parsed := Parse(kind, body)
	if req == nil {
		return nil, parsed
	}
	parsed.Merge(g.Validate(req))
	return req, parsed
}

// ValidateDateRange checks a reporting window against the gateway clock.
func (g *Gateway) ValidateDateRange(start, end time.Time) Result {
	return ValidateDateRange(start, end, g.now())
}

func kindOf(req Request) string {
	if req == nil {
		return "nil"
	}
	return string(req.Kind())
}

func (g *Gateway) validateApplication(r *Result, req InvestmentApplicationRequest) {
	if req.ProjectID == nil || strings.TrimSpace(*req.ProjectID) == "" {
		r.add("projectId", CodeRequired, "project id is required")
	}

	validateInvestmentAmount(r, "amount", req.Amount)

	if req.Currency == nil {
		r.add("currency", CodeRequired, "currency is required")
	} else if _, err := domain.ParseCurrency(*req.Currency); err != nil {
		r.add("currency", CodeInvalidCurrency, "currency must be one of CNY, USD, EUR")
	}

	if req.RiskLevel != nil {
		if _, err := domain.ParseRiskLevel(*req.RiskLevel); err != nil {
			r.add("riskLevel", CodeInvalidEnum, "risk level must be one of LOW, MEDIUM, HIGH, VERY_HIGH")
		}
	}
}

func validateInvestmentAmount(r *Result, field string, amount *float64) {
	if amount == nil {
		r.add(field, CodeRequired, "amount is required")
		return
	}
	a := *amount
	if math.IsNaN(a) || math.IsInf(a, 0) {
		r.add(field, CodeInvalidType, "amount must be a finite number")
		return
	}
	if a <= 0 {
		r.add(field, CodeAmountNotPositive, "amount must be greater than zero")
	}
	if a < MinInvestmentAmount {
		r.add(field, CodeAmountTooLow, "amount must be at least %.0f", MinInvestmentAmount)
	}
	if a > MaxInvestmentAmount {
		r.add(field, CodeAmountTooHigh, "amount must not exceed %.0f", MaxInvestmentAmount)
	}
}

func (g *Gateway) validatePortfolioRecord(r *Result, req PortfolioRecordRequest) {
	if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
		r.add("name", CodeRequired, "portfolio name is required")
	} else if utf8.RuneCountInString(*req.Name) > MaxPortfolioNameLength {
		r.add("name", CodeNameTooLong, "portfolio name must be at most %d characters", MaxPortfolioNameLength)
	}

	if req.RiskScore != nil && !inClosed(*req.RiskScore, 0, MaxRiskScore) {
		r.add("riskScore", CodeOutOfRange, "risk score must be between 0 and 10")
	}
	nonNegative(r, "totalValue", req.TotalValue)
	nonNegative(r, "totalInvested", req.TotalInvested)
}

func (g *Gateway) validateRiskAssessment(r *Result, req RiskAssessmentRequest) {
	requiredID(r, "portfolioId", req.PortfolioID)

	opts := req.Options
	if opts.ConfidenceLevel != nil {
		c := *opts.ConfidenceLevel
		if !(c > 0 && c < 1) {
			r.add("options.confidenceLevel", CodeOutOfRange, "confidence level must be strictly between 0 and 1")
		}
	}
	if opts.TimeHorizon != nil {
		h := *opts.TimeHorizon
		switch {
		case !(h > 0 && h <= MaxTimeHorizonDays):
			r.add("options.timeHorizon", CodeOutOfRange, "time horizon must be between 1 and %d days", MaxTimeHorizonDays)
		case h != math.Trunc(h):
			r.add("options.timeHorizon", CodeInvalidType, "time horizon must be a whole number of days")
		}
	}
	if opts.RiskFreeRate != nil && !inClosed(*opts.RiskFreeRate, 0, 1) {
		r.add("options.riskFreeRate", CodeOutOfRange, "risk-free rate must be between 0 and 1")
	}
	if opts.BenchmarkReturn != nil && !inClosed(*opts.BenchmarkReturn, -1, 1) {
		r.add("options.benchmarkReturn", CodeOutOfRange, "benchmark return must be between -1 and 1")
	}
}

func (g *Gateway) validateReturnCalculation(r *Result, req ReturnCalculationRequest) {
	now := g.now()

	switch n := len(req.Investments); {
	case n == 0:
		r.add("investments", CodeRequired, "at least one investment is required")
	case n > MaxReturnInvestments:
		r.add("investments", CodeTooManyItems, "at most %d investments are allowed", MaxReturnInvestments)
	}

	for i, inv := range req.Investments {
		if inv.Amount == nil {
			r.add(indexed("investments", i, "amount"), CodeRequired, "amount is required")
		} else if !(*inv.Amount > 0) {
			r.add(indexed("investments", i, "amount"), CodeAmountNotPositive, "amount must be greater than zero")
		}

		if inv.CurrentValue == nil {
			r.add(indexed("investments", i, "currentValue"), CodeRequired, "current value is required")
		} else if !(*inv.CurrentValue >= 0) {
			r.add(indexed("investments", i, "currentValue"), CodeNegativeValue, "current value must not be negative")
		}

		if inv.InvestmentDate == nil {
			r.add(indexed("investments", i, "investmentDate"), CodeRequired, "investment date is required")
		} else if inv.InvestmentDate.After(now) {
			r.add(indexed("investments", i, "investmentDate"), CodeDateInFuture, "investment date must not be in the future")
		}

		for j, cf := range inv.CashFlows {
			prefix := indexed("investments", i, "cashFlows")
			if cf.Date == nil {
				r.add(indexed(prefix, j, "date"), CodeRequired, "cash flow date is required")
			}
			if cf.Amount == nil {
				r.add(indexed(prefix, j, "amount"), CodeRequired, "cash flow amount is required")
			}
			if cf.Type == nil {
				r.add(indexed(prefix, j, "type"), CodeRequired, "cash flow type is required")
			} else if _, err := domain.ParseCashFlowType(*cf.Type); err != nil {
				r.add(indexed(prefix, j, "type"), CodeInvalidEnum, "cash flow type must be INFLOW or OUTFLOW")
			}
		}
	}

	if req.CalculationType == nil {
		r.add("calculationType", CodeRequired, "calculation type is required")
		return
	}
	calcType, err := domain.ParseCalculationType(*req.CalculationType)
	if err != nil {
		r.add("calculationType", CodeInvalidEnum, "calculation type must be one of ABSOLUTE, ANNUALIZED, IRR, SHARPE")
		return
	}

	switch calcType {
	case domain.CalculationSharpe:
		if req.BenchmarkRate == nil {
			r.add("benchmarkRate", CodeRequired, "benchmark rate is required for SHARPE")
		} else if !inClosed(*req.BenchmarkRate, 0, 1) {
			r.add("benchmarkRate", CodeOutOfRange, "benchmark rate must be between 0 and 1")
		}
	case domain.CalculationIRR:
		hasFlows := false
		for _, inv := range req.Investments {
			if len(inv.CashFlows) >= 2 {
				hasFlows = true
				break
			}
		}
		if !hasFlows {
			r.add("investments", CodeInsufficientCashFlows, "IRR requires at least one investment with two or more cash flows")
		}
	case domain.CalculationAbsolute, domain.CalculationAnnualized:
		if req.BenchmarkRate != nil && !inClosed(*req.BenchmarkRate, 0, 1) {
			r.add("benchmarkRate", CodeOutOfRange, "benchmark rate must be between 0 and 1")
		}
	}
}

// uniformShockType is the scenario type whose single shock must be given.
const uniformShockType = "UNIFORM_SHOCK"

func (g *Gateway) validateStressTest(r *Result, req StressTestRequest) {
	requiredID(r, "portfolioId", req.PortfolioID)

	if len(req.Scenarios) == 0 {
		r.add("scenarios", CodeRequired, "at least one scenario is required")
	}

	for i, sc := range req.Scenarios {
		if sc.Name == nil || strings.TrimSpace(*sc.Name) == "" {
			r.add(indexed("scenarios", i, "name"), CodeRequired, "scenario name is required")
		}
		if sc.Type == nil || strings.TrimSpace(*sc.Type) == "" {
			r.add(indexed("scenarios", i, "type"), CodeRequired, "scenario type is required")
		}
		if sc.Type != nil && strings.EqualFold(strings.TrimSpace(*sc.Type), uniformShockType) &&
			sc.ShockPercent == nil && sc.DefaultShock == nil {
			r.add(indexed("scenarios", i, "shockPercent"), CodeRequired, "uniform shock scenarios need shockPercent or defaultShock")
		}
		if sc.MaxLossThreshold != nil && !inClosed(*sc.MaxLossThreshold, 0, MaxLossThreshold) {
			r.add(indexed("scenarios", i, "maxLossThreshold"), CodeOutOfRange, "max loss threshold must be between 0 and 100")
		}
		shockInRange(r, indexed("scenarios", i, "shockPercent"), sc.ShockPercent)
		shockInRange(r, indexed("scenarios", i, "defaultShock"), sc.DefaultShock)
		for sector, shock := range sc.SectorShocks {
			s := shock
			shockInRange(r, indexed("scenarios", i, "sectorShocks."+sector), &s)
		}
		for level, shock := range sc.RiskLevelShocks {
			field := indexed("scenarios", i, "riskLevelShocks."+level)
			if _, err := domain.ParseRiskLevel(level); err != nil {
				r.add(field, CodeInvalidEnum, "unknown risk level %q", level)
				continue
			}
			s := shock
			shockInRange(r, field, &s)
		}
	}
}

func (g *Gateway) validateOptimization(r *Result, req OptimizationRequest) {
	requiredID(r, "portfolioId", req.PortfolioID)

	var objective domain.Objective
	if req.Objective == nil {
		r.add("objective", CodeRequired, "objective is required")
	} else if o, err := domain.ParseObjective(*req.Objective); err != nil {
		r.add("objective", CodeInvalidEnum, "objective must be one of MAXIMIZE_RETURN, MINIMIZE_RISK, MAXIMIZE_SHARPE, TARGET_RETURN, TARGET_RISK")
	} else {
		objective = o
	}

	c := req.Constraints
	fraction(r, "constraints.maxPositionSize", c.MaxPositionSize)
	fraction(r, "constraints.minPositionSize", c.MinPositionSize)
	fraction(r, "constraints.maxSectorConcentration", c.MaxSectorConcentration)
	fraction(r, "constraints.liquidityRequirement", c.LiquidityRequirement)
	fraction(r, "constraints.riskBudget", c.RiskBudget)
	if c.MinPositionSize != nil && c.MaxPositionSize != nil && *c.MinPositionSize > *c.MaxPositionSize {
		r.add("constraints.minPositionSize", CodeInconsistentConstraints, "minimum position size must not exceed maximum position size")
	}

	switch objective {
	case domain.ObjectiveTargetReturn:
		if req.TargetReturn == nil {
			r.add("targetReturn", CodeRequired, "target return is required for TARGET_RETURN")
		}
	case domain.ObjectiveTargetRisk:
		if req.TargetRisk == nil {
			r.add("targetRisk", CodeRequired, "target risk is required for TARGET_RISK")
		}
	case domain.ObjectiveMaximizeReturn, domain.ObjectiveMinimizeRisk, domain.ObjectiveMaximizeSharpe:
	}
	if req.TargetReturn != nil && !inClosed(*req.TargetReturn, -1, 10) {
		r.add("targetReturn", CodeOutOfRange, "target return must be between -1 and 10")
	}
	if req.TargetRisk != nil && !inClosed(*req.TargetRisk, 0, 1) {
		r.add("targetRisk", CodeOutOfRange, "target risk must be between 0 and 1")
	}

	if req.RebalancingBudget == nil {
		r.add("rebalancingBudget", CodeRequired, "rebalancing budget is required")
	} else if !(*req.RebalancingBudget >= 0) {
		r.add("rebalancingBudget", CodeNegativeValue, "rebalancing budget must not be negative")
	}
}

// ValidateDateRange checks start < end, end not after now and a span of at
// most ten years.
func ValidateDateRange(start, end, now time.Time) Result {
	r := Valid()
	if !start.Before(end) {
		r.add("startDate", CodeInvalidDateRange, "start date must be before end date")
	}
	if end.After(now) {
		r.add("endDate", CodeDateInFuture, "end date must not be in the future")
	}
	if end.After(start.AddDate(MaxDateRangeYears, 0, 0)) {
		r.add("endDate", CodeDateRangeTooLong, "date range must not exceed %d years", MaxDateRangeYears)
	}
	return r
}

// ValidatePagination accepts page >= 1 and 1 <= limit <= 100, both integers.
func ValidatePagination(page, limit float64) Result {
	r := Valid()
	if !isInteger(page) || page < 1 {
		r.add("page", CodeInvalidPagination, "page must be an integer of at least 1")
	}
	if !isInteger(limit) || limit < 1 || limit > MaxPageLimit {
		r.add("limit", CodeInvalidPagination, "limit must be an integer between 1 and %d", MaxPageLimit)
	}
	return r
}

func requiredID(r *Result, field string, id *string) {
	if id == nil || strings.TrimSpace(*id) == "" {
		r.add(field, CodeRequired, "%s is required", field)
	}
}

func nonNegative(r *Result, field string, v *float64) {
	if v != nil && !(*v >= 0) {
		r.add(field, CodeNegativeValue, "%s must not be negative", field)
	}
}

func fraction(r *Result, field string, v *float64) {
	if v != nil && !inClosed(*v, 0, 1) {
		r.add(field, CodeOutOfRange, "%s must be between 0 and 1", field)
	}
}

func shockInRange(r *Result, field string, v *float64) {
	if v != nil && !inClosed(*v, -MaxShockPercent, MaxShockPercent) {
		r.add(field, CodeOutOfRange, "shock must be between -100 and 100 percent")
	}
}

// inClosed is false for NaN.
func inClosed(v, lo, hi float64) bool {
	return v >= lo && v <= hi
}

func isInteger(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v == math.Trunc(v)
}
