package indicators

import "math"

// TrueRange uses high-low on the first bar, where no previous close exists.
func TrueRange(high, low, close []float64) []float64 {
	n := len(high)
	tr := make([]float64, n)
	if n == 0 {
		return tr
	}
	tr[0] = high[0] - low[0]
	for i := 1; i < n; i++ {
		hl := high[i] - low[i]
		hpc := math.Abs(high[i] - close[i-1])
		lpc := math.Abs(low[i] - close[i-1])
		tr[i] = math.Max(hl, math.Max(hpc, lpc))
	}
	return tr
}

// ATR is the RMA of the true range from bar 1 on, so the first value lands
// at index period.
func ATR(high, low, close []float64, period int) []float64 {
	n := len(high)
	result := nanSlice(n)
	if period <= 0 || n < period+1 {
		return result
	}

	tr := TrueRange(high, low, close)
	smoothed := RMA(tr[1:], period)
	copy(result[period:], smoothed[period-1:])
	return result
}

// Variance is the rolling variance from running sums, denominator
// period-ddof.
func Variance(values []float64, period, ddof int) []float64 {
	n := len(values)
	result := nanSlice(n)
	if period <= 1 || n < period || ddof >= period {
		return result
	}

	p := float64(period)
	denom := p - float64(ddof)
	sum, sumSq := 0.0, 0.0
	for i := 0; i < n; i++ {
		sum += values[i]
		sumSq += values[i] * values[i]
		if i >= period {
			old := values[i-period]
			sum -= old
			sumSq -= old * old
		}
		if i >= period-1 {
			v := (sumSq - sum*sum/p) / denom
			// running sums can drift a few ulps below zero on flat input
			if v < 0 && v > -1e-9 {
				v = 0
			}
			result[i] = v
		}
	}
	return result
}

// Stdev is the population standard deviation (ddof 0).
func Stdev(values []float64, period int) []float64 {
	v := Variance(values, period, 0)
	for i := range v {
		v[i] = math.Sqrt(v[i])
	}
	return v
}

// nonZeroRange widens the whole difference by machine epsilon as soon as
// one element is exactly zero.
func nonZeroRange(a, b []float64) []float64 {
	diff := make([]float64, len(a))
	hasZero := false
	for i := range a {
		diff[i] = a[i] - b[i]
		if diff[i] == 0 {
			hasZero = true
		}
	}
	if hasZero {
		eps := math.Nextafter(1, 2) - 1
		for i := range diff {
			diff[i] += eps
		}
	}
	return diff
}

// Bands is the Bollinger Bands result, one column per field.
type Bands struct {
	Upper     []float64
	Mid       []float64
	Lower     []float64
	Bandwidth []float64
	Percent   []float64
}

func BBands(close []float64, period int, stdMult float64) Bands {
	n := len(close)
	if period <= 1 || n < period {
		return Bands{
			Upper:     nanSlice(n),
			Mid:       nanSlice(n),
			Lower:     nanSlice(n),
			Bandwidth: nanSlice(n),
			Percent:   nanSlice(n),
		}
	}

	mid := SMA(close, period)
	std := Stdev(close, period)
	upper := make([]float64, n)
	lower := make([]float64, n)
	for i := range mid {
		dev := stdMult * std[i]
		upper[i] = mid[i] + dev
		lower[i] = mid[i] - dev
	}

	ulr := nonZeroRange(upper, lower)
	clDiff := nonZeroRange(close, lower)

	bandwidth := nanSlice(n)
	percent := nanSlice(n)
	for i := 0; i < n; i++ {
		if mid[i] != 0 {
			bandwidth[i] = 100 * ulr[i] / mid[i]
		}
		if !math.IsNaN(ulr[i]) && !math.IsNaN(clDiff[i]) && math.Abs(ulr[i]) > 1e-10 {
			percent[i] = clDiff[i] / ulr[i]
		}
	}

	return Bands{Upper: upper, Mid: mid, Lower: lower, Bandwidth: bandwidth, Percent: percent}
}
