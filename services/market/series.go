// Package market holds bar series, timeframes and the multi-timeframe
// aligner shared read-only by every sweep worker.
package market

import (
	"errors"
	"fmt"
)

var (
	ErrEmptySeries    = errors.New("bar series is empty")
	ErrLengthMismatch = errors.New("bar series columns differ in length")
	ErrUnsortedTime   = errors.New("bar series timestamps are not strictly increasing")
)

// BarSeries is a column-oriented OHLCV series. Time is unix milliseconds of
// the bar open. A series is never modified after NewBarSeries returns it.
type BarSeries struct {
	Timeframe Timeframe
	Time      []int64
	Open      []float64
	High      []float64
	Low       []float64
	Close     []float64
	Volume    []float64
}

func NewBarSeries(tf Timeframe, time []int64, open, high, low, close, volume []float64) (*BarSeries, error) {
	n := len(time)
	if n == 0 {
		return nil, ErrEmptySeries
	}
	for _, col := range [][]float64{open, high, low, close, volume} {
		if len(col) != n {
			return nil, fmt.Errorf("%w: time has %d bars, column has %d", ErrLengthMismatch, n, len(col))
		}
	}
	for i := 1; i < n; i++ {
		if time[i] <= time[i-1] {
			return nil, fmt.Errorf("%w: index %d", ErrUnsortedTime, i)
		}
	}
	return &BarSeries{
		Timeframe: tf,
		Time:      time,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		Volume:    volume,
	}, nil
}

func (s *BarSeries) Len() int { return len(s.Time) }

// Frames is the set of timeframes of one run. Frames[0] is the base
// timeframe the simulation steps over; higher timeframes follow.
type Frames []*BarSeries

func (f Frames) Validate() error {
	if len(f) == 0 {
		return errors.New("no timeframes supplied")
	}
	for i, s := range f {
		if s == nil || s.Len() == 0 {
			return fmt.Errorf("timeframe %d: %w", i, ErrEmptySeries)
		}
	}
	return nil
}

func (f Frames) Base() *BarSeries { return f[0] }
