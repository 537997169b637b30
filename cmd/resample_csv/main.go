package main

import (
	"flag"
	"log"
	"os"

	"go.uber.org/zap"

	"backtest-sweep/services/market"
)

func main() {
	in := flag.String("in", "", "Input CSV (timestamp,open,high,low,close,volume)")
	out := flag.String("out", "", "Output CSV path")
	src := flag.String("src", "5m", "Source cadence (e.g., 5m)")
	dst := flag.String("dst", "15m", "Target cadence (e.g., 15m)")
	flag.Parse()

	if *in == "" || *out == "" {
		log.Fatal("-in and -out are required")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	srcTF := market.Timeframe(*src)
	step, err := srcTF.Duration()
	if err != nil {
		logger.Fatal("Invalid source cadence", zap.Error(err))
	}

	bars, err := market.LoadCSV(*in, srcTF)
	if err != nil {
		logger.Fatal("Failed to load input", zap.Error(err))
	}
	if gaps := market.DetectGaps(bars.Time, step.Milliseconds()); len(gaps) > 0 {
		logger.Warn("Input has gaps", zap.Int("gaps", len(gaps)), zap.Int64("first_gap_after", gaps[0]))
	}

	resampled, err := market.Resample(bars, market.Timeframe(*dst))
	if err != nil {
		logger.Fatal("Failed to resample", zap.Error(err))
	}

	f, err := os.Create(*out)
	if err != nil {
		logger.Fatal("Failed to create output", zap.Error(err))
	}
	if err := market.WriteCSV(f, resampled); err != nil {
		f.Close()
		logger.Fatal("Failed to write output", zap.Error(err))
	}
	if err := f.Close(); err != nil {
		logger.Fatal("Failed to close output", zap.Error(err))
	}

	logger.Info("Resampled",
		zap.String("src", *src),
		zap.String("dst", *dst),
		zap.Int("bars_in", bars.Len()),
		zap.Int("bars_out", resampled.Len()),
	)
}
