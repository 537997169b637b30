package indicators

// RSI smooths up and down moves separately with RMA. Bars whose average
// down move is zero have no defined ratio and stay NaN; the first valid
// value sits at index length.
func RSI(close []float64, length int) []float64 {
	n := len(close)
	result := nanSlice(n)
	if length <= 0 || n < length+1 {
		return result
	}

	ups := make([]float64, n-1)
	downs := make([]float64, n-1)
	for i := 1; i < n; i++ {
		diff := close[i] - close[i-1]
		switch {
		case diff > 0:
			ups[i-1] = diff
		case diff < 0:
			downs[i-1] = -diff
		}
	}

	avgUp := RMA(ups, length)
	avgDown := RMA(downs, length)

	for j := length - 1; j < n-1; j++ {
		if avgDown[j] == 0 {
			continue
		}
		rs := avgUp[j] / avgDown[j]
		result[j+1] = 100.0 - 100.0/(1.0+rs)
	}
	return result
}
