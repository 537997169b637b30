// Command nightly_audit runs data quality checks over stored bars: missing
// bars, price anomalies, freshness, resample parity between timeframes and
// multi-timeframe alignment coverage.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"backtest-sweep/services/clickhouse"
	"backtest-sweep/services/config"
	"backtest-sweep/services/market"
)

type options struct {
	configPath  string
	symbol      string
	timeframes  string
	csvPaths    string
	lookback    time.Duration
	maxAge      time.Duration
	maxUnusable float64
	tolerance   float64
	report      string
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "YAML config with clickhouse settings")
	flag.StringVar(&o.symbol, "symbol", "BTCUSDT", "symbol to audit")
	flag.StringVar(&o.timeframes, "timeframes", "1m,5m,15m", "comma separated timeframes, base first")
	flag.StringVar(&o.csvPaths, "csv", "", "audit these CSV files, one per timeframe, instead of ClickHouse")
	flag.DurationVar(&o.lookback, "lookback", 24*time.Hour, "audit window ending now (ClickHouse only)")
	flag.DurationVar(&o.maxAge, "max-age", 2*time.Hour, "warn when the last bar is older than this")
	flag.Float64Var(&o.maxUnusable, "max-unusable", 0.1, "warn when this fraction of base bars has no higher-timeframe bar")
	flag.Float64Var(&o.tolerance, "tolerance", 1e-9, "resample parity tolerance")
	flag.StringVar(&o.report, "report", "nightly_audit_report.txt", "report file")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	results, err := run(context.Background(), o, logger)
	if err != nil {
		logger.Fatal("Audit failed", zap.Error(err))
	}

	pass, warn, fail := countStatus(results)
	logger.Info("Nightly audit completed", zap.Int("passed", pass), zap.Int("warnings", warn), zap.Int("failed", fail))
	if fail > 0 {
		logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, o options, logger *zap.Logger) ([]*AuditResult, error) {
	var tfs []market.Timeframe
	for _, s := range strings.Split(o.timeframes, ",") {
		tfs = append(tfs, market.Timeframe(strings.TrimSpace(s)))
	}

	now := time.Now()
	frames, err := loadFrames(ctx, o, tfs, now)
	if err != nil {
		return nil, err
	}

	var results []*AuditResult
	for _, s := range frames {
		for _, check := range []func() (*AuditResult, error){
			func() (*AuditResult, error) { return checkMissingBars(s) },
			func() (*AuditResult, error) { return checkAnomalies(s), nil },
			func() (*AuditResult, error) { return checkFreshness(s, now, o.maxAge) },
		} {
			r, err := check()
			if err != nil {
				logger.Warn("Check failed", zap.String("timeframe", string(s.Timeframe)), zap.Error(err))
				r = result("unknown", statusFail, fmt.Sprintf("Check failed: %v", err), nil)
			}
			results = append(results, r)
		}
	}
	results = append(results, checkResampleParity(frames, o.tolerance)...)
	results = append(results, checkAlignment(frames, o.maxUnusable))

	for _, r := range results {
		if r.Status != statusPass {
			logger.Warn("Audit check", zap.String("check", r.CheckName), zap.String("status", r.Status), zap.String("message", r.Message))
		}
	}

	f, err := os.Create(o.report)
	if err != nil {
		logger.Warn("Failed to create audit report", zap.Error(err))
		return results, nil
	}
	defer f.Close()
	if err := writeReport(f, o.symbol, results); err != nil {
		logger.Warn("Failed to write audit report", zap.Error(err))
	} else {
		logger.Info("Audit report saved", zap.String("file", o.report))
	}
	return results, nil
}

// loadFrames reads stored bars for every timeframe; higher timeframes are
// not resampled here since their stored values are under audit.
func loadFrames(ctx context.Context, o options, tfs []market.Timeframe, now time.Time) (market.Frames, error) {
	frames := make(market.Frames, len(tfs))
	if o.csvPaths != "" {
		paths := strings.Split(o.csvPaths, ",")
		if len(paths) != len(tfs) {
			return nil, fmt.Errorf("got %d csv files for %d timeframes", len(paths), len(tfs))
		}
		for k, p := range paths {
			s, err := market.LoadCSV(strings.TrimSpace(p), tfs[k])
			if err != nil {
				return nil, err
			}
			frames[k] = s
		}
		return frames, nil
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if !cfg.ClickHouse.Enabled() {
		return nil, fmt.Errorf("either -csv or clickhouse.addr is required")
	}
	ch, err := clickhouse.NewClient(ctx, cfg.ClickHouse, zap.NewNop())
	if err != nil {
		return nil, err
	}
	defer ch.Close()

	start := now.Add(-o.lookback).UnixMilli()
	for k, tf := range tfs {
		s, err := ch.LoadBars(ctx, o.symbol, tf, start, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s bars: %w", tf, err)
		}
		frames[k] = s
	}
	return frames, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
