package formulas

import "math"

// CAGR calculates the compound annual growth rate between two values.
//
// Formula: CAGR = (end / start)^(1/years) - 1
//
// Returns nil when start is not positive, end is negative or years is not
// positive. Equal values always yield exactly 0.
func CAGR(start, end, years float64) *float64 {
	if start <= 0 || end < 0 || years <= 0 {
		return nil
	}

	if end == start {
		zero := 0.0
		return &zero
	}

	cagr := math.Pow(end/start, 1/years) - 1
	return &cagr
}
