package main

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"backtest-sweep/services/indicators"
)

func TestReadReference(t *testing.T) {
	in := "Time,EMA,atr\n1700000000,1.5,\n1700000060000,2.5,0.25\n"
	ref, err := readReference(strings.NewReader(in))
	if err != nil {
		t.Fatalf("readReference: %v", err)
	}
	first := ref[1700000000000]
	if first["ema"] != 1.5 {
		t.Fatalf("seconds row = %v", first)
	}
	if _, ok := first["atr"]; ok {
		t.Fatal("empty cell should be absent")
	}
	if ref[1700000060000]["atr"] != 0.25 {
		t.Fatalf("ms row = %v", ref[1700000060000])
	}

	if _, err := readReference(strings.NewReader("ema,atr\n1,2\n")); err == nil {
		t.Fatal("expected missing time column error")
	}
}

func TestCompare(t *testing.T) {
	times := []int64{1000, 2000, 3000}
	cols := map[string][]float64{
		"ema": {math.NaN(), 2, 3},
		"rsi": {10, 20, 30},
	}
	ref := reference{
		1000: {"ema": math.NaN()},
		2000: {"ema": 2.0000000001},
		3000: {"ema": 3.5, "atr": 1},
	}
	rows, summary := compare(times, cols, ref, 1e-8)
	if len(rows) != 3 {
		t.Fatalf("rows = %d", len(rows))
	}
	if len(summary) != 1 || summary[0].Column != "ema" {
		t.Fatalf("summary = %+v", summary)
	}
	s := summary[0]
	if s.Compared != 3 || s.Mismatches != 1 || s.MaxDiff != 0.5 {
		t.Fatalf("summary = %+v", s)
	}
	if !rows[0].Match || !rows[1].Match || rows[2].Match {
		t.Fatalf("matches = %v %v %v", rows[0].Match, rows[1].Match, rows[2].Match)
	}

	var buf bytes.Buffer
	if err := writeDiffs(&buf, rows); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 || !strings.HasSuffix(lines[3], ",false") {
		t.Fatalf("diff csv:\n%s", buf.String())
	}
}

func TestParseParams(t *testing.T) {
	p, err := parseParams("ema_enable=1, ema_period=26 ,atr_enable=1")
	if err != nil {
		t.Fatalf("parseParams: %v", err)
	}
	if !p.EMA.Enable || p.EMA.Period != 26 || !p.ATR.Enable {
		t.Fatalf("params = %+v", p)
	}
	cols := indicators.Compute([]float64{2, 3}, []float64{1, 2}, []float64{1.5, 2.5}, p).Columns()
	if _, ok := cols["ema"]; !ok {
		t.Fatal("ema column missing")
	}
	for _, bad := range []string{"ema_enable", "ema_period=x", "nope=1"} {
		if _, err := parseParams(bad); err == nil {
			t.Fatalf("parseParams(%q) should fail", bad)
		}
	}
}

func TestParseTimeOrDate(t *testing.T) {
	cases := map[string]int64{
		"":                     0,
		"1700000000000":        1700000000000,
		"2024-01-01":           1704067200000,
		"2024-01-01T00:01:00Z": 1704067260000,
	}
	for in, want := range cases {
		got, err := parseTimeOrDate(in)
		if err != nil || got != want {
			t.Fatalf("parseTimeOrDate(%q) = %d, %v", in, got, err)
		}
	}
	if _, err := parseTimeOrDate("yesterday"); err == nil {
		t.Fatal("expected error")
	}
}
