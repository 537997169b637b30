package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"backtest-sweep/services/engine"
	"backtest-sweep/services/market"
)

// gridFile is the YAML parameter file. With columns > 0 every value list
// holds exactly that many entries and row i is combination i; otherwise the
// lists expand to their cartesian product.
type gridFile struct {
	engine.ParamSet `yaml:",inline"`
	Columns         int `yaml:"columns"`
}

func loadGrid(path string, timeframes int) ([]engine.Combination, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read grid: %w", err)
	}
	var g gridFile
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to parse grid: %w", err)
	}
	if g.Columns > 0 {
		return engine.CombinationsFromColumns(g.ParamSet, timeframes, g.Columns)
	}
	return engine.ExpandGrid(g.ParamSet, timeframes)
}

func parseTimeframes(s string) ([]market.Timeframe, error) {
	var tfs []market.Timeframe
	for _, part := range strings.Split(s, ",") {
		tf := market.Timeframe(strings.TrimSpace(part))
		if _, err := tf.Minutes(); err != nil {
			return nil, err
		}
		tfs = append(tfs, tf)
	}
	return tfs, nil
}

// loadCSVFrames reads one file per timeframe concurrently. A single path
// with several timeframes resamples the higher ones from it.
func loadCSVFrames(ctx context.Context, paths []string, tfs []market.Timeframe) (market.Frames, error) {
	if len(paths) != 1 && len(paths) != len(tfs) {
		return nil, fmt.Errorf("got %d csv files for %d timeframes", len(paths), len(tfs))
	}

	frames := make(market.Frames, len(tfs))
	g, gctx := errgroup.WithContext(ctx)
	for k, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			s, err := market.LoadCSV(path, tfs[k])
			if err != nil {
				return err
			}
			frames[k] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(paths) == 1 {
		for k := 1; k < len(tfs); k++ {
			s, err := market.Resample(frames[0], tfs[k])
			if err != nil {
				return nil, err
			}
			frames[k] = s
		}
	}
	return frames, nil
}
