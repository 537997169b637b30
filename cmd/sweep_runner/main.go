// Command sweep_runner runs a parameter sweep from the command line and
// exports the performance table as Arrow IPC.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"backtest-sweep/proto"
	"backtest-sweep/services/arrowpipeline"
	"backtest-sweep/services/clickhouse"
	"backtest-sweep/services/config"
	"backtest-sweep/services/engine"
	"backtest-sweep/services/market"
)

type options struct {
	configPath string
	gridPath   string
	csvPaths   string
	timeframes string
	symbol     string
	mockBars   int
	smooth     string
	mode       string
	out        string
	top        int
	debug      bool
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "YAML service config (workers, arrow, clickhouse)")
	flag.StringVar(&o.gridPath, "grid", "", "YAML parameter grid (required)")
	flag.StringVar(&o.csvPaths, "csv", "", "comma separated CSV files, one per timeframe, or one base file")
	flag.StringVar(&o.timeframes, "timeframes", "1m", "comma separated timeframes, base first")
	flag.StringVar(&o.symbol, "symbol", "", "load bars for this symbol from ClickHouse")
	flag.IntVar(&o.mockBars, "mock", 0, "use this many mock bars instead of real data")
	flag.StringVar(&o.smooth, "smooth", "", "bar smoothing: ha for Heikin-Ashi, empty for raw bars")
	flag.StringVar(&o.mode, "mode", "", "full or performance_only (default: automatic)")
	flag.StringVar(&o.out, "out", "", "write the performance table to this Arrow IPC file")
	flag.IntVar(&o.top, "top", 10, "print the best combinations by sharpe ratio")
	flag.BoolVar(&o.debug, "debug", false, "development logging")
	flag.Parse()

	if o.gridPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	logger, err := zap.NewProduction()
	if o.debug {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o, logger); err != nil {
		logger.Fatal("Sweep failed", zap.Error(err))
	}
}

func run(ctx context.Context, o options, logger *zap.Logger) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	tfs, err := parseTimeframes(o.timeframes)
	if err != nil {
		return err
	}
	combos, err := loadGrid(o.gridPath, len(tfs))
	if err != nil {
		return err
	}

	var ch *clickhouse.Client
	if cfg.ClickHouse.Enabled() {
		if ch, err = clickhouse.NewClient(ctx, cfg.ClickHouse, logger); err != nil {
			return err
		}
		defer ch.Close()
	}

	frames, err := loadFrames(ctx, o, tfs, ch)
	if err != nil {
		return err
	}
	for k, f := range frames {
		if frames[k], err = market.Smooth(f, market.SmoothMode(o.smooth)); err != nil {
			return err
		}
	}
	var mapping *market.DataMapping
	if len(frames) > 1 {
		if mapping, err = market.BuildMapping(frames); err != nil {
			return err
		}
	}

	ecfg := engine.Config{Workers: cfg.Engine.MaxWorkers, ChunkSize: cfg.Engine.ChunkSize, Mode: engine.Mode(o.mode)}
	if o.mode == "" && cfg.Engine.PerformanceOnly {
		ecfg.Mode = engine.ModePerformanceOnly
	}
	orch := engine.NewOrchestrator(ecfg, engine.WithLogger(logger))
	manifest, err := engine.NewManifest(uuid.New().String(), orch.Config(), frames, combos)
	if err != nil {
		return err
	}

	start := time.Now()
	results, err := orch.Run(ctx, frames, mapping, combos)
	if err != nil {
		return err
	}
	logger.Info("Sweep complete",
		zap.String("job_id", manifest.JobID),
		zap.Int("combinations", len(combos)),
		zap.Int("bars", frames.Base().Len()),
		zap.Duration("duration", time.Since(start)),
	)

	if o.out != "" {
		if err := writeArrow(ctx, o.out, cfg.Arrow, manifest, results); err != nil {
			return err
		}
		logger.Info("Wrote performance table", zap.String("file", o.out))
	}
	if ch != nil {
		if err := ch.EnsureSchema(ctx); err != nil {
			return err
		}
		if err := ch.WriteResults(ctx, manifest, results); err != nil {
			return err
		}
	}
	return printTop(os.Stdout, results, o.top)
}

func loadFrames(ctx context.Context, o options, tfs []market.Timeframe, ch *clickhouse.Client) (market.Frames, error) {
	switch {
	case o.mockBars > 0:
		base := market.MockSeries(o.mockBars, 42)
		return loadResampled(base, tfs)
	case o.csvPaths != "":
		return loadCSVFrames(ctx, strings.Split(o.csvPaths, ","), tfs)
	case o.symbol != "" && ch != nil:
		return ch.LoadFrames(ctx, engine.DataRequest{Symbol: o.symbol, Timeframes: tfs})
	default:
		return nil, fmt.Errorf("one of -mock, -csv or -symbol with clickhouse.addr is required")
	}
}

func loadResampled(base *market.BarSeries, tfs []market.Timeframe) (market.Frames, error) {
	frames := make(market.Frames, len(tfs))
	for k, tf := range tfs {
		if tf == base.Timeframe {
			frames[k] = base
			continue
		}
		s, err := market.Resample(base, tf)
		if err != nil {
			return nil, err
		}
		frames[k] = s
	}
	return frames, nil
}

func writeArrow(ctx context.Context, path string, cfg config.ArrowConfig, m *engine.Manifest, results []engine.Result) error {
	p, err := arrowpipeline.NewPipeline(cfg, nil)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := p.WriteResults(ctx, f, m, results); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// printTop lists valid combinations by descending sharpe ratio; NaN sorts
// last.
func printTop(w io.Writer, results []engine.Result, n int) error {
	var valid []engine.Result
	for _, r := range results {
		if r.Valid {
			valid = append(valid, r)
		}
	}
	sort.SliceStable(valid, func(i, j int) bool {
		a, b := valid[i].Performance.SharpeRatio, valid[j].Performance.SharpeRatio
		if math.IsNaN(b) {
			return !math.IsNaN(a)
		}
		return a > b
	})
	if len(valid) > n {
		valid = valid[:n]
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "combination\tsharpe\tsortino\tcalmar\twin_rate\ttrades\ttotal_profit_pct\tmax_drawdown")
	for _, r := range valid {
		p := r.Performance
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%.0f\t%s\t%s\n",
			r.ID,
			proto.Decimal(p.SharpeRatio),
			proto.Decimal(p.SortinoRatio),
			proto.Decimal(p.CalmarRatio),
			proto.Decimal(p.WinRate),
			p.TradeCount,
			proto.Decimal(p.TotalProfitPct),
			proto.Decimal(p.MaxDrawdown),
		)
	}
	return tw.Flush()
}
