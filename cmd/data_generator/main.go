//! Data Generator - Creates mock OHLCV data for sweeps
//!
//! Writes the deterministic random-walk series used by the mock data source
//! as CSV or Arrow IPC, optionally resampled, optionally loaded into
//! ClickHouse.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"go.uber.org/zap"

	"backtest-sweep/services/arrowpipeline"
	"backtest-sweep/services/clickhouse"
	"backtest-sweep/services/config"
	"backtest-sweep/services/market"
)

func main() {
	bars := flag.Int("bars", 1000, "one-minute bars to generate")
	seed := flag.Uint64("seed", 42, "random walk seed")
	tf := flag.String("timeframe", "1m", "resample the series to this timeframe")
	symbol := flag.String("symbol", "MOCK", "symbol stored in ClickHouse")
	configPath := flag.String("config", "", "YAML config; when it sets clickhouse.addr the bars are inserted")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: data_generator [flags] <output.csv|output.arrow>")
		fmt.Fprintln(os.Stderr, "Example: data_generator -bars 10000 -timeframe 5m mock_5m.csv")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() < 1 || *bars <= 0 {
		flag.Usage()
		os.Exit(1)
	}
	outputFile := flag.Arg(0)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	series := market.MockSeries(*bars, *seed)
	if target := market.Timeframe(*tf); target != series.Timeframe {
		if series, err = market.Resample(series, target); err != nil {
			logger.Fatal("Failed to resample", zap.Error(err))
		}
	}

	if err := writeSeries(outputFile, series, cfg.Arrow); err != nil {
		logger.Fatal("Failed to write output", zap.String("file", outputFile), zap.Error(err))
	}
	logger.Info("Generated bars",
		zap.String("file", outputFile),
		zap.String("timeframe", string(series.Timeframe)),
		zap.Int("bars", series.Len()),
	)

	if cfg.ClickHouse.Enabled() {
		ctx := context.Background()
		ch, err := clickhouse.NewClient(ctx, cfg.ClickHouse, logger)
		if err != nil {
			logger.Fatal("Failed to connect to ClickHouse", zap.Error(err))
		}
		defer ch.Close()
		if err := ch.EnsureSchema(ctx); err != nil {
			logger.Fatal("Failed to prepare schema", zap.Error(err))
		}
		if err := ch.InsertBars(ctx, *symbol, series); err != nil {
			logger.Fatal("Failed to insert bars", zap.Error(err))
		}
	}
}

// writeSeries picks the format from the file extension.
func writeSeries(path string, s *market.BarSeries, arrowCfg config.ArrowConfig) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if strings.HasSuffix(path, ".arrow") || strings.HasSuffix(path, ".arrows") {
		p, err := arrowpipeline.NewPipeline(arrowCfg, nil)
		if err != nil {
			return err
		}
		if err := p.WriteBars(file, s); err != nil {
			return err
		}
	} else if err := market.WriteCSV(file, s); err != nil {
		return err
	}
	return file.Close()
}
