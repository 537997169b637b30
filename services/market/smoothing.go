package market

import (
	"fmt"
	"math"
)

// SmoothMode selects an equal-length transformation applied to a series
// before indicators see it.
type SmoothMode string

const (
	SmoothNone       SmoothMode = ""
	SmoothHeikinAshi SmoothMode = "ha"
)

// Smooth applies mode to s. Unknown modes are rejected; transformations that
// change the bar count are not supported.
func Smooth(s *BarSeries, mode SmoothMode) (*BarSeries, error) {
	switch mode {
	case SmoothNone:
		return s, nil
	case SmoothHeikinAshi:
		return HeikinAshi(s), nil
	default:
		return nil, fmt.Errorf("unsupported smooth mode %q", mode)
	}
}

// HeikinAshi returns the Heikin-Ashi candles of s. Time and volume are shared
// with s.
func HeikinAshi(s *BarSeries) *BarSeries {
	n := s.Len()
	open := make([]float64, n)
	high := make([]float64, n)
	low := make([]float64, n)
	close := make([]float64, n)

	for i := 0; i < n; i++ {
		close[i] = (s.Open[i] + s.High[i] + s.Low[i] + s.Close[i]) / 4
		if i == 0 {
			open[i] = (s.Open[i] + s.Close[i]) / 2
		} else {
			open[i] = (open[i-1] + close[i-1]) / 2
		}
		high[i] = math.Max(s.High[i], math.Max(open[i], close[i]))
		low[i] = math.Min(s.Low[i], math.Min(open[i], close[i]))
	}

	return &BarSeries{
		Timeframe: s.Timeframe,
		Time:      s.Time,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    s.Volume,
	}
}
