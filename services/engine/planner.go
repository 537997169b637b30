package engine

// Run planner and orchestrator

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"backtest-sweep/services/indicators"
	"backtest-sweep/services/market"
	"backtest-sweep/strategies"
)

// Chunk is a contiguous range of combination IDs handed to one worker.
type Chunk struct {
	Start int
	End   int // exclusive
}

type Planner struct {
	MaxChunkSize int
	MaxWorkers   int
}

func NewPlanner(maxChunkSize, maxWorkers int) *Planner {
	return &Planner{
		MaxChunkSize: maxChunkSize,
		MaxWorkers:   maxWorkers,
	}
}

// PlanChunks splits [0, total) into ranges of at most MaxChunkSize. A
// non-positive chunk size spreads the work into four chunks per worker.
func (p *Planner) PlanChunks(total int) []Chunk {
	size := p.MaxChunkSize
	if size <= 0 {
		workers := max(p.MaxWorkers, 1)
		size = max(total/(workers*4), 1)
	}

	var chunks []Chunk
	for i := 0; i < total; i += size {
		chunks = append(chunks, Chunk{Start: i, End: min(i+size, total)})
	}
	return chunks
}

type Mode string

const (
	// ModeAuto keeps per-bar arrays for a single combination and drops them
	// for larger batches.
	ModeAuto            Mode = ""
	ModeFull            Mode = "full"
	ModePerformanceOnly Mode = "performance_only"
)

func (m Mode) performanceOnly(combinations int) bool {
	switch m {
	case ModeFull:
		return false
	case ModePerformanceOnly:
		return true
	default:
		return combinations > 1
	}
}

// Config is passed to the orchestrator at construction. There is no
// package-level configuration.
type Config struct {
	Workers   int  // 0 means runtime.NumCPU()
	ChunkSize int  // 0 lets the planner decide
	Mode      Mode // what to keep per combination
	EventLogs bool // attach an EventLog to every full-mode result
}

// Recorder receives batch statistics. services/monitoring implements it.
type Recorder interface {
	ObserveCombination(valid bool)
	ObserveSweep(d time.Duration, combinations, bars int)
}

// Orchestrator runs combinations on a fixed worker pool.
type Orchestrator struct {
	cfg       Config
	logger    *zap.Logger
	recorder  Recorder
	validator *Validator
	monitor   *PerformanceMonitor
}

type Option func(*Orchestrator)

func WithLogger(l *zap.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

func WithRecorder(r Recorder) Option { return func(o *Orchestrator) { o.recorder = r } }

func WithMonitor(m *PerformanceMonitor) Option { return func(o *Orchestrator) { o.monitor = m } }

func NewOrchestrator(cfg Config, opts ...Option) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	o := &Orchestrator{cfg: cfg, logger: zap.NewNop(), validator: &Validator{}}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) Config() Config { return o.cfg }

// Run simulates every combination. Batch invariants are checked first and
// reported as a ValidationError before any work starts. Per-combination
// failures are recorded in the Result and do not stop the batch. When ctx
// is cancelled no further chunks are dispatched; combinations already
// running finish, the rest carry ctx.Err().
func (o *Orchestrator) Run(ctx context.Context, frames market.Frames, mapping *market.DataMapping, combos []Combination) ([]Result, error) {
	if err := o.validator.Validate(frames, mapping, combos); err != nil {
		return nil, err
	}

	start := time.Now()
	bars := frames.Base().Len()
	perfOnly := o.cfg.Mode.performanceOnly(len(combos))
	annual := annualizationFor(frames.Base())

	results := make([]Result, len(combos))
	for i := range results {
		results[i] = Result{ID: i, Performance: NewPerformanceOutput()}
	}

	planner := NewPlanner(o.cfg.ChunkSize, o.cfg.Workers)
	chunks := planner.PlanChunks(len(combos))
	workers := min(o.cfg.Workers, len(chunks))

	o.logger.Info("Starting sweep",
		zap.Int("workers", workers),
		zap.Int("combinations", len(combos)),
		zap.Int("bars", bars),
		zap.Int("timeframes", len(frames)),
		zap.Bool("performance_only", perfOnly),
	)

	queue := make(chan Chunk)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ch := range queue {
				for id := ch.Start; id < ch.End; id++ {
					results[id] = o.runOne(frames, mapping, combos[id], annual, perfOnly)
				}
			}
		}()
	}

	dispatched := 0
dispatch:
	for _, ch := range chunks {
		if ctx.Err() != nil {
			break
		}
		select {
		case queue <- ch:
			dispatched++
		case <-ctx.Done():
			break dispatch
		}
	}
	close(queue)
	wg.Wait()

	var ctxErr error
	if dispatched < len(chunks) {
		ctxErr = ctx.Err()
		for _, ch := range chunks[dispatched:] {
			for id := ch.Start; id < ch.End; id++ {
				results[id].Err = ctxErr
			}
		}
	}

	invalid := 0
	for i := range results {
		if !results[i].Valid {
			invalid++
		}
		// combinations never dispatched are not observed
		if o.recorder != nil && (ctxErr == nil || !errors.Is(results[i].Err, ctxErr)) {
			o.recorder.ObserveCombination(results[i].Valid)
		}
	}

	elapsed := time.Since(start)
	if o.recorder != nil {
		o.recorder.ObserveSweep(elapsed, len(combos), bars)
	}
	if o.monitor != nil {
		o.monitor.RecordBenchmark("sweep", elapsed, bars*len(combos), HeapMB())
	}
	o.logger.Info("Sweep finished",
		zap.Int("combinations", len(combos)),
		zap.Int("invalid", invalid),
		zap.Duration("duration", elapsed),
	)

	if ctxErr != nil {
		return results, fmt.Errorf("sweep interrupted after %d of %d chunks: %w", dispatched, len(chunks), ctxErr)
	}
	return results, nil
}

// runOne is the whole pipeline of one combination. It touches nothing but
// its own Result.
func (o *Orchestrator) runOne(frames market.Frames, mapping *market.DataMapping, c Combination, annual float64, perfOnly bool) Result {
	res := Result{ID: c.ID, Performance: NewPerformanceOutput()}

	res.Indicators = make([]indicators.Output, len(frames))
	for k, f := range frames {
		res.Indicators[k] = indicators.Compute(f.High, f.Low, f.Close, c.Indicators[k])
	}

	base := frames.Base()
	sig, err := strategies.Dispatch(c.Backtest.SignalSelect, strategies.Input{
		Frames:     frames,
		Indicators: res.Indicators,
		Mapping:    mapping,
	})
	res.Signals = sig
	if err != nil {
		res.Backtest = NewBacktestOutput(base.Len())
		return o.fail(res, StageSignals, err, perfOnly)
	}

	var log *EventLog
	if o.cfg.EventLogs && !perfOnly {
		log = &EventLog{}
	}
	sim := NewSimulator(c.Backtest, log)
	out, err := sim.Run(base, &res.Signals)
	res.Backtest = out
	if err != nil {
		return o.fail(res, StageBacktest, err, perfOnly)
	}

	a := c.Backtest.AnnualizationFactor
	if a == 0 {
		a = annual
	}
	res.Performance = Aggregate(out, c.Backtest.InitMoney, a)
	res.Valid = true
	res.Events = log
	if perfOnly {
		res.dropArrays()
	}
	return res
}

func (o *Orchestrator) fail(res Result, stage Stage, err error, perfOnly bool) Result {
	res.Err = &StageError{Stage: stage, Combination: res.ID, Err: err}
	o.logger.Warn("Combination invalid",
		zap.Int("combination", res.ID),
		zap.String("stage", string(stage)),
		zap.Error(err),
	)
	if perfOnly {
		res.dropArrays()
	}
	return res
}

func (r *Result) dropArrays() {
	r.Indicators = nil
	r.Signals = strategies.SignalOutput{}
	r.Backtest = nil
	r.Events = nil
}

// annualizationFor derives bars per year from the series timeframe, or 0
// when the timeframe is unknown.
func annualizationFor(s *market.BarSeries) float64 {
	a, err := s.Timeframe.AnnualizationFactor()
	if err != nil {
		return 0
	}
	return a
}
