package engine

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"backtest-sweep/services/market"
	"backtest-sweep/strategies"
)

func smaGrid() ParamSet {
	return ParamSet{
		Indicators: []map[string][]float64{{
			"sma_enable":  {1},
			"sma_period":  {5, 10},
			"sma2_enable": {1},
			"sma2_period": {20, 30},
		}},
		Backtest: map[string][]float64{
			"signal_select": {float64(strategies.SignalSMACross)},
			"pct_sl_enable": {0, 1},
			"pct_sl":        {0.01},
		},
	}
}

func TestPlanChunks(t *testing.T) {
	chunks := NewPlanner(3, 2).PlanChunks(7)
	want := []Chunk{{0, 3}, {3, 6}, {6, 7}}
	if len(chunks) != len(want) {
		t.Fatalf("chunks = %v", chunks)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Fatalf("chunk %d = %v, want %v", i, chunks[i], want[i])
		}
	}
	if got := NewPlanner(0, 4).PlanChunks(3); len(got) != 3 {
		t.Fatalf("small batches should get one combination per chunk, got %v", got)
	}
}

func TestExpandGridOrder(t *testing.T) {
	combos, err := ExpandGrid(ParamSet{Backtest: map[string][]float64{
		"pct_sl": {0.01, 0.02},
		"pct_tp": {0.1, 0.2},
	}}, 1)
	if err != nil {
		t.Fatalf("ExpandGrid: %v", err)
	}
	if len(combos) != 4 {
		t.Fatalf("got %d combinations, want 4", len(combos))
	}
	want := [][2]float64{{0.01, 0.1}, {0.01, 0.2}, {0.02, 0.1}, {0.02, 0.2}}
	for i, c := range combos {
		if c.ID != i || c.Backtest.PctSL != want[i][0] || c.Backtest.PctTP != want[i][1] {
			t.Fatalf("combination %d = %+v", i, c.Backtest)
		}
		if len(c.Indicators) != 1 {
			t.Fatalf("combination %d has %d indicator sets", i, len(c.Indicators))
		}
	}
}

func TestExpandGridRejectsUnknownKey(t *testing.T) {
	_, err := ExpandGrid(ParamSet{Backtest: map[string][]float64{"stop_loss": {1}}}, 1)
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestCombinationsFromColumns(t *testing.T) {
	cols := ParamSet{Backtest: map[string][]float64{
		"pct_sl": {0.01, 0.02},
		"pct_tp": {0.1, 0.2},
	}}
	combos, err := CombinationsFromColumns(cols, 1, 2)
	if err != nil {
		t.Fatalf("CombinationsFromColumns: %v", err)
	}
	if combos[1].Backtest.PctSL != 0.02 || combos[1].Backtest.PctTP != 0.2 {
		t.Fatalf("combination 1 = %+v", combos[1].Backtest)
	}

	cols.Backtest["pct_tp"] = []float64{0.1}
	_, err = CombinationsFromColumns(cols, 1, 2)
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("shape mismatch should be a ValidationError, got %v", err)
	}
}

func sameResults(t *testing.T, a, b []Result) {
	t.Helper()
	if len(a) != len(b) {
		t.Fatalf("result counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Valid != b[i].Valid {
			t.Fatalf("combination %d validity differs", i)
		}
		va, vb := a[i].Performance.Values(), b[i].Performance.Values()
		for k := range va {
			if math.Float64bits(va[k]) != math.Float64bits(vb[k]) {
				t.Fatalf("combination %d %s: %v vs %v", i, PerformanceKeys[k], va[k], vb[k])
			}
		}
		if a[i].Backtest == nil || b[i].Backtest == nil {
			continue
		}
		for k := range a[i].Backtest.Equity {
			if math.Float64bits(a[i].Backtest.Equity[k]) != math.Float64bits(b[i].Backtest.Equity[k]) {
				t.Fatalf("combination %d equity differs at bar %d", i, k)
			}
		}
	}
}

func TestSequentialMatchesParallel(t *testing.T) {
	frames := market.Frames{market.MockSeries(500, 7)}
	combos, err := ExpandGrid(smaGrid(), 1)
	if err != nil {
		t.Fatalf("ExpandGrid: %v", err)
	}

	seq, err := NewOrchestrator(Config{Workers: 1, Mode: ModeFull}).Run(context.Background(), frames, nil, combos)
	if err != nil {
		t.Fatalf("sequential Run: %v", err)
	}
	par, err := NewOrchestrator(Config{Workers: 4, ChunkSize: 1, Mode: ModeFull}).Run(context.Background(), frames, nil, combos)
	if err != nil {
		t.Fatalf("parallel Run: %v", err)
	}
	sameResults(t, seq, par)

	for _, r := range seq {
		if !r.Valid || r.Err != nil {
			t.Fatalf("combination %d failed: %v", r.ID, r.Err)
		}
		for i, p := range r.Backtest.Position {
			if !p.Valid() {
				t.Fatalf("combination %d bar %d: invalid position %d", r.ID, i, p)
			}
		}
	}
}

func TestInvalidCombinationDoesNotStopBatch(t *testing.T) {
	frames := market.Frames{market.MockSeries(100, 1)}
	grid := smaGrid()
	grid.Backtest["signal_select"] = []float64{float64(strategies.SignalSMACross), float64(strategies.SignalBBandsReversion)}
	combos, err := ExpandGrid(grid, 1)
	if err != nil {
		t.Fatalf("ExpandGrid: %v", err)
	}

	results, err := NewOrchestrator(Config{Workers: 2, Mode: ModeFull}).Run(context.Background(), frames, nil, combos)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	var valid, invalid int
	for _, r := range results {
		if combos[r.ID].Backtest.SignalSelect == strategies.SignalBBandsReversion {
			invalid++
			var se *StageError
			if r.Valid || !errors.As(r.Err, &se) || se.Stage != StageSignals || !errors.Is(r.Err, strategies.ErrMissingIndicator) {
				t.Fatalf("combination %d: valid=%v err=%v", r.ID, r.Valid, r.Err)
			}
			if r.Backtest.Len() != 100 || !math.IsNaN(r.Backtest.Equity[0]) || !math.IsNaN(r.Performance.SharpeRatio) {
				t.Fatalf("combination %d outputs should stay NaN-filled", r.ID)
			}
			continue
		}
		valid++
		if !r.Valid {
			t.Fatalf("combination %d: %v", r.ID, r.Err)
		}
	}
	if valid == 0 || invalid == 0 {
		t.Fatalf("valid=%d invalid=%d", valid, invalid)
	}
}

func TestRunValidation(t *testing.T) {
	frames := market.Frames{market.MockSeries(50, 1)}
	combos, _ := ExpandGrid(smaGrid(), 1)
	orch := NewOrchestrator(Config{})

	cases := map[string]func() (market.Frames, []Combination){
		"no frames":       func() (market.Frames, []Combination) { return nil, combos },
		"no combinations": func() (market.Frames, []Combination) { return frames, nil },
		"id mismatch": func() (market.Frames, []Combination) {
			c := append([]Combination(nil), combos...)
			c[1].ID = 7
			return frames, c
		},
		"timeframe count": func() (market.Frames, []Combination) {
			c := append([]Combination(nil), combos...)
			c[0].Indicators = append(c[0].Indicators, c[0].Indicators[0])
			return frames, c
		},
	}
	for name, build := range cases {
		t.Run(name, func(t *testing.T) {
			f, c := build()
			_, err := orch.Run(context.Background(), f, nil, c)
			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestAutoPerformanceOnly(t *testing.T) {
	frames := market.Frames{market.MockSeries(80, 2)}
	combos, _ := ExpandGrid(smaGrid(), 1)

	many, err := NewOrchestrator(Config{}).Run(context.Background(), frames, nil, combos)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if many[0].Backtest != nil || many[0].Indicators != nil {
		t.Fatal("batches of more than one combination keep only performance")
	}
	if math.IsNaN(many[0].Performance.MaxBalance) {
		t.Fatal("performance must survive")
	}

	one, err := NewOrchestrator(Config{}).Run(context.Background(), frames, nil, combos[:1])
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if one[0].Backtest == nil {
		t.Fatal("a single combination keeps its per-bar arrays")
	}
}

func TestRunCancelled(t *testing.T) {
	frames := market.Frames{market.MockSeries(50, 1)}
	combos, _ := ExpandGrid(smaGrid(), 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := NewOrchestrator(Config{Workers: 2}).Run(ctx, frames, nil, combos)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	for _, r := range results {
		if r.Valid || !errors.Is(r.Err, context.Canceled) {
			t.Fatalf("combination %d should not have run", r.ID)
		}
	}
}

func TestMultiTimeframeSweep(t *testing.T) {
	base := market.MockSeries(300, 5)
	htf, err := market.Resample(base, market.TF5m)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}
	frames := market.Frames{base, htf}
	mapping, err := market.BuildMapping(frames)
	if err != nil {
		t.Fatalf("BuildMapping: %v", err)
	}
	grid := ParamSet{
		Indicators: []map[string][]float64{
			{"bbands_enable": {1}, "bbands_period": {20}},
			{"sma_enable": {1}, "sma_period": {10}},
		},
		Backtest: map[string][]float64{"signal_select": {float64(strategies.SignalBBandsMTFTrend)}},
	}
	combos, err := ExpandGrid(grid, 2)
	if err != nil {
		t.Fatalf("ExpandGrid: %v", err)
	}
	results, err := NewOrchestrator(Config{}).Run(context.Background(), frames, mapping, combos)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !results[0].Valid {
		t.Fatalf("mtf combination failed: %v", results[0].Err)
	}

	// a multi-timeframe strategy without the higher timeframe is a per-combination failure
	combos[0].Indicators = combos[0].Indicators[:1]
	single, err := NewOrchestrator(Config{}).Run(context.Background(), market.Frames{base}, nil, combos)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if single[0].Valid || !errors.Is(single[0].Err, ErrMissingTimeframe) {
		t.Fatalf("expected ErrMissingTimeframe, got %v", single[0].Err)
	}
}

type countingRecorder struct {
	mu             sync.Mutex
	valid, invalid int
	sweeps         int
}

func (r *countingRecorder) ObserveCombination(valid bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if valid {
		r.valid++
	} else {
		r.invalid++
	}
}

func (r *countingRecorder) ObserveSweep(time.Duration, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweeps++
}

func TestRecorderObservesFinishedCombinations(t *testing.T) {
	frames := market.Frames{market.MockSeries(100, 1)}
	grid := smaGrid()
	grid.Indicators[0]["sma2_period"] = []float64{20}
	grid.Backtest["pct_sl_enable"] = []float64{0}
	combos, err := ExpandGrid(grid, 1)
	if err != nil {
		t.Fatalf("ExpandGrid: %v", err)
	}
	if len(combos) != 2 {
		t.Fatalf("got %d combinations, want 2", len(combos))
	}

	rec := &countingRecorder{}
	if _, err := NewOrchestrator(Config{Workers: 2}, WithRecorder(rec)).Run(context.Background(), frames, nil, combos); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.valid != 2 || rec.invalid != 0 || rec.sweeps != 1 {
		t.Fatalf("valid=%d invalid=%d sweeps=%d, want 2/0/1", rec.valid, rec.invalid, rec.sweeps)
	}

	// an invalid combination is observed as invalid
	combos[1].Backtest.SignalSelect = strategies.SignalBBandsReversion
	rec = &countingRecorder{}
	if _, err := NewOrchestrator(Config{Workers: 2}, WithRecorder(rec)).Run(context.Background(), frames, nil, combos); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rec.valid != 1 || rec.invalid != 1 {
		t.Fatalf("valid=%d invalid=%d, want 1/1", rec.valid, rec.invalid)
	}
}

func TestRecorderSkipsUndispatched(t *testing.T) {
	frames := market.Frames{market.MockSeries(50, 1)}
	combos, _ := ExpandGrid(smaGrid(), 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := &countingRecorder{}
	if _, err := NewOrchestrator(Config{Workers: 2}, WithRecorder(rec)).Run(ctx, frames, nil, combos); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if rec.valid+rec.invalid != 0 {
		t.Fatalf("observed %d combinations that never ran", rec.valid+rec.invalid)
	}
}
