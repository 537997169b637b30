// Command parity_checker replays the golden bar-level cases, checks that a
// parallel sweep reproduces a sequential one bit for bit and measures
// throughput against SLOs.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"time"

	"go.uber.org/zap"

	"backtest-sweep/services/engine"
	"backtest-sweep/services/indicators"
	"backtest-sweep/services/market"
	"backtest-sweep/strategies"
)

func main() {
	bars := flag.Int("bars", 50_000, "mock bars for the determinism and throughput run")
	workers := flag.Int("workers", 0, "parallel workers (0 = all CPUs)")
	minBarsPerSec := flag.Float64("min-bars-per-sec", 1e6, "throughput SLO")
	maxDuration := flag.Duration("max-duration", time.Minute, "duration SLO")
	maxHeapMB := flag.Float64("max-heap-mb", 0, "live heap SLO after the sweep (0 = unchecked)")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	failed := false
	if failures := engine.RunParitySuite(); len(failures) > 0 {
		failed = true
		for _, f := range failures {
			logger.Error("Golden case mismatch", zap.String("detail", f))
		}
	} else {
		logger.Info("Golden cases passed", zap.Int("cases", len(engine.GoldenCases)))
	}

	frames := market.Frames{market.MockSeries(*bars, 42)}
	combos, err := engine.ExpandGrid(engine.ParamSet{
		Indicators: []map[string][]float64{{
			"sma_enable":  {1},
			"sma_period":  {5, 10, 20},
			"sma2_enable": {1},
			"sma2_period": {50, 100},
		}},
		Backtest: map[string][]float64{
			"signal_select":  {float64(strategies.SignalSMACross)},
			"pct_sl_enable":  {0, 1},
			"pct_sl":         {0.01},
			"atr_tsl_enable": {0, 1},
		},
	}, 1)
	if err != nil {
		logger.Fatal("Failed to expand grid", zap.Error(err))
	}

	ctx := context.Background()
	seq, err := engine.NewOrchestrator(engine.Config{Workers: 1}, engine.WithLogger(logger)).Run(ctx, frames, nil, combos)
	if err != nil {
		logger.Fatal("Sequential sweep failed", zap.Error(err))
	}

	monitor := engine.NewPerformanceMonitor(engine.SLOConfig{MaxDuration: *maxDuration, MinBarsPerSec: *minBarsPerSec, MaxMemoryMB: *maxHeapMB})
	par, err := engine.NewOrchestrator(engine.Config{Workers: *workers}, engine.WithLogger(logger), engine.WithMonitor(monitor)).Run(ctx, frames, nil, combos)
	if err != nil {
		logger.Fatal("Parallel sweep failed", zap.Error(err))
	}

	if diff := compare(seq, par); diff != "" {
		failed = true
		logger.Error("Parallel sweep diverged", zap.String("detail", diff))
	} else {
		logger.Info("Parallel sweep matches sequential", zap.Int("combinations", len(combos)))
	}

	all := indicators.DefaultParams()
	for _, ma := range []*indicators.MAParams{&all.SMA, &all.SMA2, &all.EMA, &all.EMA2} {
		ma.Enable = true
	}
	all.BBands.Enable, all.RSI.Enable, all.ATR.Enable, all.PSAR.Enable = true, true, true, true
	ib := engine.BenchmarkIndicators(frames.Base(), all)
	monitor.RecordBenchmark(ib.Name, ib.Duration, frames.Base().Len(), ib.MemoryMB)

	for _, r := range monitor.Results() {
		logger.Info("Throughput",
			zap.String("benchmark", r.Name),
			zap.Duration("duration", r.Duration),
			zap.Float64("bars_per_sec", r.BarsPerSec),
			zap.Float64("heap_mb", r.MemoryMB),
		)
	}
	for _, v := range monitor.CheckSLOs() {
		failed = true
		logger.Error("SLO violated", zap.String("detail", v))
	}

	if failed {
		os.Exit(1)
	}
}

func compare(a, b []engine.Result) string {
	if len(a) != len(b) {
		return fmt.Sprintf("%d vs %d results", len(a), len(b))
	}
	for i := range a {
		if a[i].Valid != b[i].Valid {
			return fmt.Sprintf("combination %d validity differs", i)
		}
		va, vb := a[i].Performance.Values(), b[i].Performance.Values()
		for k := range va {
			if math.Float64bits(va[k]) != math.Float64bits(vb[k]) {
				return fmt.Sprintf("combination %d %s: %v vs %v", i, engine.PerformanceKeys[k], va[k], vb[k])
			}
		}
	}
	return ""
}
