package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// ParametricVaR estimates Value at Risk under a normal model.
//
// Loss fraction over h days: z_c * sigma * sqrt(h) - mu * h, floored at 0,
// where mu and sigma are per-day mean and standard deviation of returns.
// The result is expressed in the currency of value.
func ParametricVaR(value, mu, sigma, confidence float64, horizonDays int) float64 {
	if value <= 0 || sigma < 0 || horizonDays <= 0 || confidence <= 0 || confidence >= 1 {
		return 0
	}

	h := float64(horizonDays)
	z := distuv.UnitNormal.Quantile(confidence)
	loss := z*sigma*math.Sqrt(h) - mu*h
	return value * math.Max(0, loss)
}

// ParametricCVaR estimates expected shortfall beyond the parametric VaR.
//
// Loss fraction: sigma * sqrt(h) * pdf(z_c) / (1 - c) - mu * h, floored at 0.
func ParametricCVaR(value, mu, sigma, confidence float64, horizonDays int) float64 {
	if value <= 0 || sigma < 0 || horizonDays <= 0 || confidence <= 0 || confidence >= 1 {
		return 0
	}

	h := float64(horizonDays)
	z := distuv.UnitNormal.Quantile(confidence)
	tail := distuv.UnitNormal.Prob(z) / (1 - confidence)
	loss := sigma*math.Sqrt(h)*tail - mu*h
	return value * math.Max(0, loss)
}
