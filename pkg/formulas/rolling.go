package formulas

import (
	"math"

	"github.com/markcheno/go-talib"
)

// RollingVolatility returns the annualized rolling standard deviation of
// returns over window periods. The first window-1 entries are dropped, so the
// result has len(returns)-window+1 points. Nil when there is not enough data.
func RollingVolatility(returns []float64, window int, periodsPerYear float64) []float64 {
	if window < 2 || len(returns) < window {
		return nil
	}

	sd := talib.StdDev(returns, window, 1.0)
	out := make([]float64, 0, len(returns)-window+1)
	scale := math.Sqrt(periodsPerYear)
	for i := window - 1; i < len(sd); i++ {
		out = append(out, sd[i]*scale)
	}
	return out
}
