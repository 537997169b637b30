package engine

// Throughput benchmarks and SLOs

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"backtest-sweep/services/indicators"
	"backtest-sweep/services/market"
)

type BenchmarkResult struct {
	Name       string
	Duration   time.Duration
	BarsPerSec float64
	MemoryMB   float64
}

// SLOConfig bounds a sweep. Zero fields are not checked.
type SLOConfig struct {
	MaxDuration   time.Duration
	MinBarsPerSec float64
	MaxMemoryMB   float64
}

// PerformanceMonitor records sweep throughput. Safe for concurrent use.
type PerformanceMonitor struct {
	config SLOConfig

	mu      sync.Mutex
	results []BenchmarkResult
}

func NewPerformanceMonitor(config SLOConfig) *PerformanceMonitor {
	return &PerformanceMonitor{
		config:  config,
		results: make([]BenchmarkResult, 0),
	}
}

// RecordBenchmark stores one measurement. bars is the number of simulated
// bars, i.e. bars per combination times combinations.
func (pm *PerformanceMonitor) RecordBenchmark(name string, duration time.Duration, bars int, memoryMB float64) BenchmarkResult {
	var barsPerSec float64
	if duration > 0 {
		barsPerSec = float64(bars) / duration.Seconds()
	}

	result := BenchmarkResult{
		Name:       name,
		Duration:   duration,
		BarsPerSec: barsPerSec,
		MemoryMB:   memoryMB,
	}

	pm.mu.Lock()
	pm.results = append(pm.results, result)
	pm.mu.Unlock()
	return result
}

func (pm *PerformanceMonitor) Results() []BenchmarkResult {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	out := make([]BenchmarkResult, len(pm.results))
	copy(out, pm.results)
	return out
}

func (pm *PerformanceMonitor) CheckSLOs() []string {
	var violations []string

	for _, result := range pm.Results() {
		if pm.config.MaxDuration > 0 && result.Duration > pm.config.MaxDuration {
			violations = append(violations, fmt.Sprintf("%s took %s, limit %s", result.Name, result.Duration, pm.config.MaxDuration))
		}
		if pm.config.MinBarsPerSec > 0 && result.BarsPerSec < pm.config.MinBarsPerSec {
			violations = append(violations, fmt.Sprintf("%s ran at %.0f bars/sec, minimum %.0f", result.Name, result.BarsPerSec, pm.config.MinBarsPerSec))
		}
		if pm.config.MaxMemoryMB > 0 && result.MemoryMB > pm.config.MaxMemoryMB {
			violations = append(violations, result.Name+" exceeded memory limit")
		}
	}

	return violations
}

// HeapMB is the live heap in MiB.
func HeapMB() float64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return float64(ms.HeapAlloc) / (1 << 20)
}

// BenchmarkIndicators times one Compute pass of p over bars.
func BenchmarkIndicators(bars *market.BarSeries, p indicators.Params) BenchmarkResult {
	start := time.Now()
	indicators.Compute(bars.High, bars.Low, bars.Close, p)
	duration := time.Since(start)

	result := BenchmarkResult{Name: "indicators", Duration: duration, MemoryMB: HeapMB()}
	if duration > 0 {
		result.BarsPerSec = float64(bars.Len()) / duration.Seconds()
	}
	return result
}
