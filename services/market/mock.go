package market

import (
	"math/rand/v2"
)

const (
	MockStartMs = 1672531200000
	MockStepMs  = 60_000
)

// MockSeries generates n one-minute bars of a bounded random walk around
// 1000. The same seed always yields the same series.
func MockSeries(n int, seed uint64) *BarSeries {
	rng := rand.New(rand.NewPCG(seed, seed))

	times := make([]int64, n)
	open := make([]float64, n)
	high := make([]float64, n)
	low := make([]float64, n)
	close := make([]float64, n)
	volume := make([]float64, n)

	price := 1000.0
	vol := 10000.0
	for i := 0; i < n; i++ {
		times[i] = MockStartMs + int64(i)*MockStepMs

		price += (rng.Float64() - 0.5) * 2
		if price <= 0 {
			price = 1000
		}
		close[i] = price
		if i == 0 {
			open[i] = 1000
		} else {
			open[i] = close[i-1]
		}

		hi, lo := open[i], close[i]
		if lo > hi {
			hi, lo = lo, hi
		}
		high[i] = hi + rng.Float64()*0.5
		low[i] = lo - rng.Float64()*0.5

		vol += (rng.Float64() - 0.5) * 500
		if vol < 100 {
			vol = 100
		}
		volume[i] = vol
	}

	return &BarSeries{
		Timeframe: TF1m,
		Time:      times,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    volume,
	}
}
