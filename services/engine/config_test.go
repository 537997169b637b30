package engine

import (
	"errors"
	"strings"
	"testing"
	"time"

	"backtest-sweep/services/indicators"
	"backtest-sweep/services/market"
)

func TestManifestStable(t *testing.T) {
	frames := market.Frames{market.MockSeries(64, 9)}
	combos, err := ExpandGrid(smaGrid(), 1)
	if err != nil {
		t.Fatalf("ExpandGrid: %v", err)
	}
	a, err := NewManifest("a", Config{Workers: 2}, frames, combos)
	if err != nil {
		t.Fatalf("NewManifest: %v", err)
	}
	b, err := NewManifest("b", Config{Workers: 8}, market.Frames{market.MockSeries(64, 9)}, combos)
	if err != nil {
		t.Fatalf("NewManifest: %v", err)
	}
	if a.ConfigHash != b.ConfigHash || a.DataChecksum != b.DataChecksum {
		t.Fatal("identical inputs must hash identically")
	}
	if a.Bars != 64 || a.Combinations != len(combos) || a.EngineVersion != EngineVersion {
		t.Fatalf("manifest = %+v", a)
	}

	c, _ := NewManifest("c", Config{}, market.Frames{market.MockSeries(64, 10)}, combos[:1])
	if c.ConfigHash == a.ConfigHash || c.DataChecksum == a.DataChecksum {
		t.Fatal("different inputs must hash differently")
	}
}

func TestBacktestParamsFromMap(t *testing.T) {
	p, err := BacktestParamsFromMap(map[string]float64{"pct_sl_enable": 1, "pct_sl": 0.05, "close_for_reversal": 0})
	if err != nil {
		t.Fatalf("BacktestParamsFromMap: %v", err)
	}
	if !p.PctSLEnable || p.PctSL != 0.05 || p.CloseForReversal || p.InitMoney != 10000 {
		t.Fatalf("params = %+v", p)
	}
	if len(BacktestKeys()) != 26 {
		t.Fatalf("got %d keys", len(BacktestKeys()))
	}

	for _, bad := range []map[string]float64{
		{"init_money": 0},
		{"atr_period": 0},
		{"pct_tp": -0.1},
		{"psar_af0": 0.5, "psar_max_af": 0.2},
		{"unknown": 1},
	} {
		_, err := BacktestParamsFromMap(bad)
		var verr ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("%v: expected ValidationError, got %v", bad, err)
		}
	}
}

func TestPerformanceMonitorSLOs(t *testing.T) {
	pm := NewPerformanceMonitor(SLOConfig{MinBarsPerSec: 1000, MaxDuration: time.Second})
	r := pm.RecordBenchmark("sweep", 2*time.Second, 1000, 0)
	if r.BarsPerSec != 500 {
		t.Fatalf("bars/sec = %v, want 500", r.BarsPerSec)
	}
	v := pm.CheckSLOs()
	if len(v) != 2 || !strings.Contains(v[0], "took") {
		t.Fatalf("violations = %v", v)
	}
}

func TestBenchmarkIndicators(t *testing.T) {
	p := indicators.DefaultParams()
	p.SMA.Enable, p.RSI.Enable = true, true
	r := BenchmarkIndicators(market.MockSeries(2000, 3), p)
	if r.Name != "indicators" || r.MemoryMB <= 0 {
		t.Fatalf("result = %+v", r)
	}

	pm := NewPerformanceMonitor(SLOConfig{MaxMemoryMB: 1e-9})
	pm.RecordBenchmark(r.Name, r.Duration, 2000, r.MemoryMB)
	if v := pm.CheckSLOs(); len(v) != 1 || !strings.Contains(v[0], "memory") {
		t.Fatalf("violations = %v", v)
	}
}
