package strategies

import (
	"errors"
	"math"
	"testing"

	"backtest-sweep/services/indicators"
	"backtest-sweep/services/market"
)

func frame(t *testing.T, tf market.Timeframe, times []int64, close []float64) *market.BarSeries {
	t.Helper()
	s, err := market.NewBarSeries(tf, times, close, close, close, close, close)
	if err != nil {
		t.Fatalf("NewBarSeries: %v", err)
	}
	return s
}

func TestRegistryComplete(t *testing.T) {
	ids := []SignalID{SignalSMACross, SignalBBandsReversion, SignalBBandsReversionMTF, SignalBBandsMTFTrend, SignalEMAATR}
	for _, id := range ids {
		if _, err := Lookup(id); err != nil {
			t.Fatalf("strategy %d not registered: %v", id, err)
		}
	}
	if len(List()) != len(ids) {
		t.Fatalf("List() = %d strategies, want %d", len(List()), len(ids))
	}
	if _, err := Lookup(99); !errors.Is(err, ErrUnknownStrategy) {
		t.Fatalf("expected ErrUnknownStrategy, got %v", err)
	}
}

func TestSMACross(t *testing.T) {
	base := frame(t, market.TF1m, []int64{1, 2, 3}, []float64{1, 1, 1})
	ind := indicators.Output{
		SMA:  []float64{math.NaN(), 2, 1},
		SMA2: []float64{math.NaN(), 1, 2},
	}
	out, err := Dispatch(SignalSMACross, Input{Frames: market.Frames{base}, Indicators: []indicators.Output{ind}})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if out.EnterLong[0] || out.ExitLong[0] || out.EnterShort[0] || out.ExitShort[0] {
		t.Fatal("NaN warm-up bar must not signal")
	}
	if !out.EnterLong[1] || !out.ExitShort[1] || out.EnterShort[1] {
		t.Fatal("bar 1 should be a long signal")
	}
	if !out.EnterShort[2] || !out.ExitLong[2] || out.EnterLong[2] {
		t.Fatal("bar 2 should be a short signal")
	}
}

func TestMissingIndicator(t *testing.T) {
	base := frame(t, market.TF1m, []int64{1, 2}, []float64{1, 2})
	out, err := Dispatch(SignalBBandsReversion, Input{Frames: market.Frames{base}, Indicators: []indicators.Output{{}}})
	if !errors.Is(err, ErrMissingIndicator) {
		t.Fatalf("expected ErrMissingIndicator, got %v", err)
	}
	if out.Len() != 2 {
		t.Fatalf("failed dispatch should still be sized, got %d", out.Len())
	}
}

func TestMTFRequiresTimeframe(t *testing.T) {
	base := frame(t, market.TF1m, []int64{1, 2}, []float64{1, 2})
	nan := []float64{math.NaN(), math.NaN()}
	ind := indicators.Output{BBUpper: nan, BBMid: nan, BBLower: nan}
	_, err := Dispatch(SignalBBandsReversionMTF, Input{Frames: market.Frames{base}, Indicators: []indicators.Output{ind}})
	if !errors.Is(err, ErrMissingTimeframe) {
		t.Fatalf("expected ErrMissingTimeframe, got %v", err)
	}
}

func TestBBandsMTFTrendSkipsEarlyBars(t *testing.T) {
	times := make([]int64, 8)
	closes := make([]float64, 8)
	for i := range times {
		times[i] = int64(i) * 60_000
		closes[i] = 90
	}
	base := frame(t, market.TF1m, times, closes)
	// the 00:00 5m bar only closes together with base bar 4
	htf := frame(t, market.TF5m, []int64{0}, []float64{100})
	frames := market.Frames{base, htf}
	mapping, err := market.BuildMapping(frames)
	if err != nil {
		t.Fatalf("BuildMapping: %v", err)
	}

	// close sits below the lower band on every bar and the htf trend is up
	fill := func(v float64) []float64 {
		c := make([]float64, len(times))
		for i := range c {
			c[i] = v
		}
		return c
	}
	ind := indicators.Output{
		BBUpper: fill(110),
		BBMid:   fill(95),
		BBLower: fill(92),
	}
	htfInd := indicators.Output{SMA: []float64{99}}

	out, err := Dispatch(SignalBBandsMTFTrend, Input{Frames: frames, Indicators: []indicators.Output{ind, htfInd}, Mapping: mapping})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	for i := 0; i < 4; i++ {
		if mapping.Skip[i] != 0 || out.EnterLong[i] || out.ExitLong[i] || out.EnterShort[i] || out.ExitShort[i] {
			t.Fatalf("bar %d precedes the first closed higher timeframe bar and must not signal", i)
		}
	}
	for i := 4; i < len(times); i++ {
		if !out.EnterLong[i] || out.EnterShort[i] {
			t.Fatalf("bar %d should enter long", i)
		}
	}
}

func TestEMAATR(t *testing.T) {
	times := []int64{1, 2}
	base, err := market.NewBarSeries(market.TF1m, times, []float64{100, 100}, []float64{102, 102}, []float64{98, 98}, []float64{101, 99}, []float64{1, 1})
	if err != nil {
		t.Fatalf("NewBarSeries: %v", err)
	}
	ind := indicators.Output{
		EMA:  []float64{10, 9},
		EMA2: []float64{9, 10},
		ATR:  []float64{2, 2},
	}
	out, err := Dispatch(SignalEMAATR, Input{Frames: market.Frames{base}, Indicators: []indicators.Output{ind}})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !out.EnterLong[0] || !out.ExitShort[0] {
		t.Fatal("bar 0 should be long")
	}
	if !out.EnterShort[1] || !out.ExitLong[1] {
		t.Fatal("bar 1 should be short")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	s := NewSignalOutput(3)
	c := s.Clone()
	c.ExitLong[1] = true
	if s.ExitLong[1] {
		t.Fatal("clone shares memory with the original")
	}
}
