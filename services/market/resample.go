package market

import "fmt"

// Resample aggregates s into epoch-aligned buckets of tf: open is the
// first bar, high the max, low the min, close the last, volume the sum.
// The bucket start becomes the bar time.
func Resample(s *BarSeries, tf Timeframe) (*BarSeries, error) {
	dst, err := tf.Duration()
	if err != nil {
		return nil, err
	}
	dstMs := dst.Milliseconds()

	if s.Timeframe != "" {
		src, err := s.Timeframe.Duration()
		if err == nil && (dst < src || dst%src != 0) {
			return nil, fmt.Errorf("cannot resample %s into %s: target must be a multiple of source", s.Timeframe, tf)
		}
	}

	var (
		times                  []int64
		open, high, low, close []float64
		volume                 []float64
	)
	for i := 0; i < s.Len(); i++ {
		bucket := (s.Time[i] / dstMs) * dstMs
		last := len(times) - 1
		if last < 0 || times[last] != bucket {
			times = append(times, bucket)
			open = append(open, s.Open[i])
			high = append(high, s.High[i])
			low = append(low, s.Low[i])
			close = append(close, s.Close[i])
			volume = append(volume, s.Volume[i])
			continue
		}
		if s.High[i] > high[last] {
			high[last] = s.High[i]
		}
		if s.Low[i] < low[last] {
			low[last] = s.Low[i]
		}
		close[last] = s.Close[i]
		volume[last] += s.Volume[i]
	}

	return NewBarSeries(tf, times, open, high, low, close, volume)
}

// DetectGaps returns the open time of every bar followed by a gap larger
// than step.
func DetectGaps(times []int64, stepMs int64) []int64 {
	var gaps []int64
	for i := 1; i < len(times); i++ {
		if times[i]-times[i-1] > stepMs {
			gaps = append(gaps, times[i-1])
		}
	}
	return gaps
}
