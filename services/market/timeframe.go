package market

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

var timeframePattern = regexp.MustCompile(`^(\d+)([mhdwMy])$`)

var unitMinutes = map[string]int64{
	"m": 1,
	"h": 60,
	"d": 24 * 60,
	"w": 7 * 24 * 60,
	"M": 30 * 24 * 60,
	"y": 365 * 24 * 60,
}

const minutesPerYear = 365 * 24 * 60

// Minutes parses "15m", "4h", "1d", "1w", "1M" (30 days) or "1y" (365 days).
func (tf Timeframe) Minutes() (int64, error) {
	m := timeframePattern.FindStringSubmatch(string(tf))
	if m == nil {
		return 0, fmt.Errorf("unsupported timeframe %q", tf)
	}
	value, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("unsupported timeframe %q", tf)
	}
	return value * unitMinutes[m[2]], nil
}

func (tf Timeframe) Duration() (time.Duration, error) {
	m, err := tf.Minutes()
	if err != nil {
		return 0, err
	}
	return time.Duration(m) * time.Minute, nil
}

// AnnualizationFactor is the number of bars of tf in a 365-day year.
func (tf Timeframe) AnnualizationFactor() (float64, error) {
	m, err := tf.Minutes()
	if err != nil {
		return 0, err
	}
	return float64(minutesPerYear) / float64(m), nil
}
