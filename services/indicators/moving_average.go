// Package indicators holds the pure indicator kernels used by the sweep engine.
// Every function returns a fresh slice of the input length, NaN-padded over
// its warm-up period.
package indicators

import "math"

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// SMA is the simple moving average. The first period-1 values are NaN.
func SMA(values []float64, period int) []float64 {
	n := len(values)
	result := nanSlice(n)
	if period <= 1 || n < period {
		return result
	}

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	p := float64(period)
	result[period-1] = sum / p
	for i := period; i < n; i++ {
		sum += values[i] - values[i-period]
		result[i] = sum / p
	}
	return result
}

// EMA is seeded with the simple average of the first period values at
// index period-1 and smoothed with alpha = 2/(period+1) afterwards.
func EMA(values []float64, period int) []float64 {
	n := len(values)
	result := nanSlice(n)
	if period <= 1 || n < period {
		return result
	}

	seed := 0.0
	for i := 0; i < period; i++ {
		seed += values[i]
	}
	result[period-1] = seed / float64(period)

	alpha := 2.0 / (float64(period) + 1.0)
	for i := period; i < n; i++ {
		result[i] = alpha*values[i] + (1-alpha)*result[i-1]
	}
	return result
}

// RMA is Wilder's running moving average, seeded with the plain mean of the
// first length values.
func RMA(values []float64, length int) []float64 {
	n := len(values)
	result := nanSlice(n)
	if length <= 0 || n < length {
		return result
	}

	seed := 0.0
	for i := 0; i < length; i++ {
		seed += values[i]
	}
	result[length-1] = seed / float64(length)

	alpha := 1.0 / float64(length)
	for i := length; i < n; i++ {
		result[i] = values[i]*alpha + result[i-1]*(1-alpha)
	}
	return result
}
