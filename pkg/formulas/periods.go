package formulas

import "time"

// DaysPerYear is the day count used to turn elapsed time into years.
const DaysPerYear = 365.25

// YearsBetween returns the elapsed time between two instants in years.
func YearsBetween(from, to time.Time) float64 {
	return to.Sub(from).Hours() / 24 / DaysPerYear
}

// PeriodsPerYear infers the annualization factor of a dated series from its
// average spacing. Series sampled about daily use trading days; anything
// sparser uses calendar spacing. Fewer than two dates default to daily.
func PeriodsPerYear(dates []time.Time) float64 {
	if len(dates) < 2 {
		return TradingDaysPerYear
	}

	span := dates[len(dates)-1].Sub(dates[0]).Hours() / 24
	if span <= 0 {
		return TradingDaysPerYear
	}
	avgDays := span / float64(len(dates)-1)
	if avgDays <= 1.5 {
		return TradingDaysPerYear
	}
	return DaysPerYear / avgDays
}
