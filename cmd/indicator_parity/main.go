// Command indicator_parity recomputes indicator columns over stored bars and
// compares them with a reference CSV exported from another platform.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"backtest-sweep/services/clickhouse"
	"backtest-sweep/services/config"
	"backtest-sweep/services/indicators"
	"backtest-sweep/services/market"
)

type options struct {
	configPath string
	csvPath    string
	symbol     string
	timeframe  string
	start, end string
	params     string
	reference  string
	output     string
	tolerance  float64
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "YAML config with clickhouse settings")
	flag.StringVar(&o.csvPath, "csv", "", "read bars from this CSV instead of ClickHouse")
	flag.StringVar(&o.symbol, "symbol", "BTCUSDT", "symbol to load from ClickHouse")
	flag.StringVar(&o.timeframe, "timeframe", "1m", "bar timeframe")
	flag.StringVar(&o.start, "start", "", "start time (ms epoch, YYYY-MM-DD or RFC3339)")
	flag.StringVar(&o.end, "end", "", "end time, exclusive")
	flag.StringVar(&o.params, "params", "ema_enable=1,ema_period=20,atr_enable=1,atr_period=14", "indicator parameters as key=value pairs")
	flag.StringVar(&o.reference, "reference-csv", "", "reference CSV with a time column and indicator columns (required)")
	flag.StringVar(&o.output, "output", "", "diff CSV path")
	flag.Float64Var(&o.tolerance, "tolerance", 1e-8, "absolute match tolerance")
	flag.Parse()

	if o.reference == "" {
		flag.Usage()
		os.Exit(2)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	mismatches, err := run(context.Background(), o, logger)
	if err != nil {
		logger.Fatal("Indicator parity failed", zap.Error(err))
	}
	if mismatches > 0 {
		logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, o options, logger *zap.Logger) (int, error) {
	p, err := parseParams(o.params)
	if err != nil {
		return 0, err
	}
	series, err := loadSeries(ctx, o, logger)
	if err != nil {
		return 0, err
	}

	f, err := os.Open(o.reference)
	if err != nil {
		return 0, fmt.Errorf("failed to open reference: %w", err)
	}
	ref, err := readReference(f)
	f.Close()
	if err != nil {
		return 0, err
	}

	cols := indicators.Compute(series.High, series.Low, series.Close, p).Columns()
	rows, summary := compare(series.Time, cols, ref, o.tolerance)
	if len(summary) == 0 {
		return 0, fmt.Errorf("reference shares no columns with the enabled indicators %v", columnNames(cols))
	}

	mismatches := 0
	for _, s := range summary {
		logger.Info("Column parity",
			zap.String("column", s.Column),
			zap.Int("compared", s.Compared),
			zap.Int("mismatches", s.Mismatches),
			zap.Float64("max_diff", s.MaxDiff),
		)
		mismatches += s.Mismatches
	}

	out := o.output
	if out == "" {
		out = fmt.Sprintf("indicator_parity_%d.csv", time.Now().Unix())
	}
	w, err := os.Create(out)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", out, err)
	}
	if err := writeDiffs(w, rows); err != nil {
		w.Close()
		return 0, err
	}
	if err := w.Close(); err != nil {
		return 0, err
	}
	logger.Info("Indicator parity CSV written", zap.String("file", out), zap.Int("mismatches", mismatches))
	return mismatches, nil
}

func loadSeries(ctx context.Context, o options, logger *zap.Logger) (*market.BarSeries, error) {
	tf := market.Timeframe(o.timeframe)
	if o.csvPath != "" {
		return market.LoadCSV(o.csvPath, tf)
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if !cfg.ClickHouse.Enabled() {
		return nil, fmt.Errorf("either -csv or clickhouse.addr is required")
	}
	start, err := parseTimeOrDate(o.start)
	if err != nil {
		return nil, err
	}
	end, err := parseTimeOrDate(o.end)
	if err != nil {
		return nil, err
	}
	ch, err := clickhouse.NewClient(ctx, cfg.ClickHouse, logger)
	if err != nil {
		return nil, err
	}
	defer ch.Close()
	return ch.LoadBars(ctx, o.symbol, tf, start, end)
}

// parseParams reads "key=value,key=value" into indicator parameters.
func parseParams(s string) (indicators.Params, error) {
	m := make(map[string]float64)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return indicators.Params{}, fmt.Errorf("parameter %q is not key=value", pair)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return indicators.Params{}, fmt.Errorf("parameter %q: %w", k, err)
		}
		m[strings.TrimSpace(k)] = f
	}
	return indicators.ParamsFromMap(m)
}

// parseTimeOrDate accepts ms epoch, RFC3339 or YYYY-MM-DD. Empty means 0.
func parseTimeOrDate(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UnixMilli(), nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.UnixMilli(), nil
	}
	return 0, fmt.Errorf("invalid time: %s", s)
}
