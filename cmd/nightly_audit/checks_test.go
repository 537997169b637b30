package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"backtest-sweep/services/market"
)

func series(t *testing.T, tf market.Timeframe, times []int64, o, h, l, c, v []float64) *market.BarSeries {
	t.Helper()
	s, err := market.NewBarSeries(tf, times, o, h, l, c, v)
	if err != nil {
		t.Fatalf("NewBarSeries: %v", err)
	}
	return s
}

func TestCheckMissingBars(t *testing.T) {
	ones := []float64{1, 1, 1}
	s := series(t, market.TF1m, []int64{0, 60_000, 240_000}, ones, ones, ones, ones, ones)
	r, err := checkMissingBars(s)
	if err != nil {
		t.Fatal(err)
	}
	if r.Status != statusFail || r.Details["missing_count"] != int64(2) || r.Details["gap_count"] != 1 {
		t.Fatalf("result = %+v", r)
	}

	r, err = checkMissingBars(market.MockSeries(50, 1))
	if err != nil || r.Status != statusPass {
		t.Fatalf("mock series: %+v, %v", r, err)
	}
}

func TestCheckAnomalies(t *testing.T) {
	cases := []struct {
		name   string
		high   float64
		volume float64
		status string
	}{
		{"clean", 12, 5, statusPass},
		{"high below close", 10.5, 5, statusFail},
		{"zero volume", 12, 0, statusWarn},
	}
	for _, tc := range cases {
		s := series(t, market.TF1m, []int64{0},
			[]float64{10}, []float64{tc.high}, []float64{9}, []float64{11}, []float64{tc.volume})
		if r := checkAnomalies(s); r.Status != tc.status {
			t.Fatalf("%s: status %s (%s)", tc.name, r.Status, r.Message)
		}
	}

	s := series(t, market.TF1m, []int64{0}, []float64{0}, []float64{1}, []float64{0}, []float64{1}, []float64{1})
	if r := checkAnomalies(s); r.Details["invalid_price"] != 1 {
		t.Fatalf("non-positive price not flagged: %+v", r.Details)
	}
}

func TestCheckFreshness(t *testing.T) {
	s := market.MockSeries(10, 1)
	lastClose := time.UnixMilli(s.Time[9]).Add(time.Minute)

	r, err := checkFreshness(s, lastClose.Add(30*time.Minute), time.Hour)
	if err != nil || r.Status != statusPass {
		t.Fatalf("fresh: %+v, %v", r, err)
	}
	r, err = checkFreshness(s, lastClose.Add(3*time.Hour), time.Hour)
	if err != nil || r.Status != statusWarn {
		t.Fatalf("stale: %+v, %v", r, err)
	}
}

func TestCheckResampleParity(t *testing.T) {
	base := market.MockSeries(30, 1)
	higher, err := market.Resample(base, market.TF5m)
	if err != nil {
		t.Fatal(err)
	}
	results := checkResampleParity(market.Frames{base, higher}, 1e-9)
	if len(results) != 1 || results[0].Status != statusPass || results[0].Details["checked"] != 6 {
		t.Fatalf("results = %+v", results[0])
	}

	higher.Close[2] += 1
	results = checkResampleParity(market.Frames{base, higher}, 1e-9)
	if results[0].Status != statusFail || results[0].Details["mismatched"] != 1 {
		t.Fatalf("results = %+v", results[0])
	}
}

func TestCheckAlignment(t *testing.T) {
	base := market.MockSeries(100, 1)
	higher, err := market.Resample(base, market.TF5m)
	if err != nil {
		t.Fatal(err)
	}
	// the first 5m bar closes with base bar 4
	r := checkAlignment(market.Frames{base, higher}, 0.05)
	if r.Status != statusPass || r.Details["unusable_bars"] != 4 {
		t.Fatalf("aligned: %+v", r)
	}

	late := series(t, market.TF5m, higher.Time[1:], higher.Open[1:], higher.High[1:], higher.Low[1:], higher.Close[1:], higher.Volume[1:])
	r = checkAlignment(market.Frames{base, late}, 0.05)
	if r.Status != statusWarn || r.Details["unusable_bars"] != 9 {
		t.Fatalf("late: %+v", r)
	}
	if r := checkAlignment(market.Frames{base}, 0.05); r.Status != statusPass {
		t.Fatalf("single: %+v", r)
	}
}

func TestWriteReport(t *testing.T) {
	results := []*AuditResult{
		result("a", statusPass, "ok", nil),
		result("b", statusFail, "bad", map[string]any{"z": 1, "a": 2}),
	}
	var buf bytes.Buffer
	if err := writeReport(&buf, "BTCUSDT", results); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Symbol: BTCUSDT", "Passed: 1", "Failed: 1", "Check: b", "  a: 2\n  z: 1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
}
