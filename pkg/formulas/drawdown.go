package formulas

// MaxDrawdown returns the largest peak-to-trough decline of a value series as
// a fraction of the peak, in [0, 1].
func MaxDrawdown(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	peak := values[0]
	maxDD := 0.0
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		dd := (peak - v) / peak
		if dd > maxDD {
			maxDD = dd
		}
	}
	if maxDD > 1 {
		maxDD = 1
	}
	return maxDD
}
