package validation

import (
	"time"

	"github.com/tidwall/gjson"
)

// Parse decodes a raw JSON body into the request variant for kind. Every
// field with the wrong JSON type is reported; parsing never stops early.
// A nil Request means the body could not be used at all.
func Parse(kind Kind, body []byte) (Request, Result) {
	r := Valid()
	if !gjson.ValidBytes(body) {
		r.add("body", CodeMalformedBody, "request body is not valid JSON")
		return nil, r
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		r.add("body", CodeMalformedBody, "request body must be a JSON object")
		return nil, r
	}

	p := &parser{res: &r}
	var req Request
	switch kind {
	case KindInvestmentApplication:
		req = p.application(root)
	case KindPortfolioRecord:
		req = p.portfolioRecord(root)
	case KindOptimization:
		req = p.optimization(root)
	case KindRiskAssessment:
		req = p.riskAssessment(root)
	case KindStressTest:
		req = p.stressTest(root)
	case KindReturnCalculation:
		req = p.returnCalculation(root)
	default:
		r.add("kind", CodeUnknownRequestKind, "unsupported request kind %q", kind)
		return nil, r
	}
	return req, r
}

type parser struct {
	res *Result
}

func absent(v gjson.Result) bool {
	return !v.Exists() || v.Type == gjson.Null
}

func (p *parser) number(v gjson.Result, field string) *float64 {
	if absent(v) {
		return nil
	}
	if v.Type != gjson.Number {
		p.res.add(field, CodeInvalidType, "%s must be a number", field)
		return nil
	}
	f := v.Float()
	return &f
}

func (p *parser) str(v gjson.Result, field string) *string {
	if absent(v) {
		return nil
	}
	if v.Type != gjson.String {
		p.res.add(field, CodeInvalidType, "%s must be a string", field)
		return nil
	}
	s := v.String()
	return &s
}

func (p *parser) optStr(v gjson.Result, field string) string {
	if s := p.str(v, field); s != nil {
		return *s
	}
	return ""
}

var dateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// ParseDate accepts RFC 3339 timestamps and plain YYYY-MM-DD dates.
func ParseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (p *parser) date(v gjson.Result, field string) *time.Time {
	if absent(v) {
		return nil
	}
	if v.Type != gjson.String {
		p.res.add(field, CodeInvalidType, "%s must be a date string", field)
		return nil
	}
	t, ok := ParseDate(v.String())
	if !ok {
		p.res.add(field, CodeInvalidDate, "%s is not a valid date", field)
		return nil
	}
	return &t
}

func (p *parser) array(v gjson.Result, field string) []gjson.Result {
	if absent(v) {
		return nil
	}
	if !v.IsArray() {
		p.res.add(field, CodeInvalidType, "%s must be an array", field)
		return nil
	}
	return v.Array()
}

func (p *parser) numberMap(v gjson.Result, field string) map[string]float64 {
	if absent(v) {
		return nil
	}
	if !v.IsObject() {
		p.res.add(field, CodeInvalidType, "%s must be an object", field)
		return nil
	}
	out := make(map[string]float64)
	v.ForEach(func(key, value gjson.Result) bool {
		if n := p.number(value, field+"."+key.String()); n != nil {
			out[key.String()] = *n
		}
		return true
	})
	return out
}

func (p *parser) object(v gjson.Result, field string) gjson.Result {
	if absent(v) {
		return gjson.Result{}
	}
	if !v.IsObject() {
		p.res.add(field, CodeInvalidType, "%s must be an object", field)
		return gjson.Result{}
	}
	return v
}

func (p *parser) application(root gjson.Result) InvestmentApplicationRequest {
	return InvestmentApplicationRequest{
		ApplicationID: p.optStr(root.Get("applicationId"), "applicationId"),
		UserID:        p.optStr(root.Get("userId"), "userId"),
		PortfolioID:   p.optStr(root.Get("portfolioId"), "portfolioId"),
		ProjectID:     p.str(root.Get("projectId"), "projectId"),
		Amount:        p.number(root.Get("amount"), "amount"),
		Currency:      p.str(root.Get("currency"), "currency"),
		RiskLevel:     p.str(root.Get("riskLevel"), "riskLevel"),
		Sector:        p.optStr(root.Get("sector"), "sector"),
	}
}

func (p *parser) portfolioRecord(root gjson.Result) PortfolioRecordRequest {
	return PortfolioRecordRequest{
		Name:          p.str(root.Get("name"), "name"),
		RiskScore:     p.number(root.Get("riskScore"), "riskScore"),
		TotalValue:    p.number(root.Get("totalValue"), "totalValue"),
		TotalInvested: p.number(root.Get("totalInvested"), "totalInvested"),
	}
}

func (p *parser) optimization(root gjson.Result) OptimizationRequest {
	c := p.object(root.Get("constraints"), "constraints")
	return OptimizationRequest{
		PortfolioID: p.str(root.Get("portfolioId"), "portfolioId"),
		Objective:   p.str(root.Get("objective"), "objective"),
		Constraints: ConstraintsInput{
			MaxPositionSize:        p.number(c.Get("maxPositionSize"), "constraints.maxPositionSize"),
			MinPositionSize:        p.number(c.Get("minPositionSize"), "constraints.minPositionSize"),
			MaxSectorConcentration: p.number(c.Get("maxSectorConcentration"), "constraints.maxSectorConcentration"),
			LiquidityRequirement:   p.number(c.Get("liquidityRequirement"), "constraints.liquidityRequirement"),
			RiskBudget:             p.number(c.Get("riskBudget"), "constraints.riskBudget"),
		},
		TargetReturn:      p.number(root.Get("targetReturn"), "targetReturn"),
		TargetRisk:        p.number(root.Get("targetRisk"), "targetRisk"),
		RebalancingBudget: p.number(root.Get("rebalancingBudget"), "rebalancingBudget"),
	}
}

func (p *parser) riskAssessment(root gjson.Result) RiskAssessmentRequest {
	o := p.object(root.Get("options"), "options")
	return RiskAssessmentRequest{
		PortfolioID: p.str(root.Get("portfolioId"), "portfolioId"),
		Options: RiskOptions{
			ConfidenceLevel: p.number(o.Get("confidenceLevel"), "options.confidenceLevel"),
			TimeHorizon:     p.number(o.Get("timeHorizon"), "options.timeHorizon"),
			RiskFreeRate:    p.number(o.Get("riskFreeRate"), "options.riskFreeRate"),
			BenchmarkReturn: p.number(o.Get("benchmarkReturn"), "options.benchmarkReturn"),
		},
	}
}

func (p *parser) stressTest(root gjson.Result) StressTestRequest {
	req := StressTestRequest{PortfolioID: p.str(root.Get("portfolioId"), "portfolioId")}

	for i, sc := range p.array(root.Get("scenarios"), "scenarios") {
		field := func(name string) string { return indexed("scenarios", i, name) }
		if !sc.IsObject() {
			p.res.add(field(""), CodeInvalidType, "scenario must be an object")
			req.Scenarios = append(req.Scenarios, StressScenarioInput{})
			continue
		}
		req.Scenarios = append(req.Scenarios, StressScenarioInput{
			Name:             p.str(sc.Get("name"), field("name")),
			Type:             p.str(sc.Get("type"), field("type")),
			MaxLossThreshold: p.number(sc.Get("maxLossThreshold"), field("maxLossThreshold")),
			ShockPercent:     p.number(sc.Get("shockPercent"), field("shockPercent")),
			DefaultShock:     p.number(sc.Get("defaultShock"), field("defaultShock")),
			SectorShocks:     p.numberMap(sc.Get("sectorShocks"), field("sectorShocks")),
			RiskLevelShocks:  p.numberMap(sc.Get("riskLevelShocks"), field("riskLevelShocks")),
		})
	}
	return req
}

func (p *parser) returnCalculation(root gjson.Result) ReturnCalculationRequest {
	req := ReturnCalculationRequest{
		CalculationType: p.str(root.Get("calculationType"), "calculationType"),
		BenchmarkRate:   p.number(root.Get("benchmarkRate"), "benchmarkRate"),
		AsOf:            p.date(root.Get("asOf"), "asOf"),
	}

	for i, inv := range p.array(root.Get("investments"), "investments") {
		field := func(name string) string { return indexed("investments", i, name) }
		if !inv.IsObject() {
			p.res.add(field(""), CodeInvalidType, "investment must be an object")
			req.Investments = append(req.Investments, ReturnInvestment{})
			continue
		}

		ri := ReturnInvestment{
			ID:             p.optStr(inv.Get("id"), field("id")),
			Name:           p.optStr(inv.Get("name"), field("name")),
			Amount:         p.number(inv.Get("amount"), field("amount")),
			CurrentValue:   p.number(inv.Get("currentValue"), field("currentValue")),
			InvestmentDate: p.date(inv.Get("investmentDate"), field("investmentDate")),
		}

		for j, cf := range p.array(inv.Get("cashFlows"), field("cashFlows")) {
			cfField := func(name string) string { return indexed(field("cashFlows"), j, name) }
			if !cf.IsObject() {
				p.res.add(cfField(""), CodeInvalidType, "cash flow must be an object")
				ri.CashFlows = append(ri.CashFlows, CashFlowInput{})
				continue
			}
			ri.CashFlows = append(ri.CashFlows, CashFlowInput{
				Date:   p.date(cf.Get("date"), cfField("date")),
				Amount: p.number(cf.Get("amount"), cfField("amount")),
				Type:   p.str(cf.Get("type"), cfField("type")),
			})
		}

		for j, pt := range p.array(inv.Get("valueHistory"), field("valueHistory")) {
			ptField := func(name string) string { return indexed(field("valueHistory"), j, name) }
			date := p.date(pt.Get("date"), ptField("date"))
			value := p.number(pt.Get("value"), ptField("value"))
			if date == nil || value == nil {
				p.res.add(ptField(""), CodeRequired, "value point needs a date and a numeric value")
				continue
			}
			ri.ValueHistory = append(ri.ValueHistory, ValuePointInput{Date: *date, Value: *value})
		}

		req.Investments = append(req.Investments, ri)
	}
	return req
}

// ParseDateRange parses the startDate/endDate query parameters. Both are
// required; range checks are left to ValidateDateRange, which reports on the
// same field names.
func ParseDateRange(start, end string) (time.Time, time.Time, Result) {
	r := Valid()
	parse := func(field, s string) time.Time {
		if s == "" {
			r.add(field, CodeRequired, "%s is required", field)
			return time.Time{}
		}
		t, ok := ParseDate(s)
		if !ok {
			r.add(field, CodeInvalidDate, "%s is not a valid date", field)
		}
		return t
	}
	from := parse("startDate", start)
	to := parse("endDate", end)
	return from, to, r
}
