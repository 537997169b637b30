package engine

// Golden parity suite

import (
	"fmt"
	"math"

	"backtest-sweep/services/market"
	"backtest-sweep/strategies"
)

// ParityTestCase is a hand-checked scenario: four bars of prices, the
// signals of bar 0 and the expected state after bar 1 or 2.
type ParityTestCase struct {
	Name    string
	Open    []float64
	High    []float64
	Low     []float64
	Close   []float64
	Signals Signals // raised on bar 0
	Params  func(p *BacktestParams)

	Bar          int
	Position     Position
	EntryPrice   float64
	ExitPrice    float64
	Balance      float64
	ExitLongSet  bool // exit_long raised by an exit rule on Bar
	ExitShortSet bool
}

var GoldenCases = []ParityTestCase{
	{
		Name:       "enter_long_at_next_open",
		Open:       []float64{100, 101, 102, 103},
		High:       []float64{100, 101, 102, 103},
		Low:        []float64{100, 101, 102, 103},
		Close:      []float64{100, 101, 102, 103},
		Signals:    Signals{EnterLong: true},
		Bar:        1,
		Position:   EnterLong,
		EntryPrice: 101,
		ExitPrice:  math.NaN(),
		Balance:    10000,
	},
	{
		Name:        "pct_sl_breach_on_close",
		Open:        []float64{100, 100, 97, 97},
		High:        []float64{100, 100, 97, 97},
		Low:         []float64{100, 97, 96, 96},
		Close:       []float64{100, 97, 97, 97},
		Signals:     Signals{EnterLong: true},
		Params:      func(p *BacktestParams) { p.PctSLEnable = true; p.PctSL = 0.02 },
		Bar:         1,
		Position:    EnterLong,
		EntryPrice:  100,
		ExitPrice:   math.NaN(),
		Balance:     10000,
		ExitLongSet: true,
	},
	{
		Name:       "stop_realized_next_open",
		Open:       []float64{100, 100, 97, 97},
		High:       []float64{100, 100, 97, 97},
		Low:        []float64{100, 97, 96, 96},
		Close:      []float64{100, 97, 97, 97},
		Signals:    Signals{EnterLong: true},
		Params:     func(p *BacktestParams) { p.PctSLEnable = true; p.PctSL = 0.02 },
		Bar:        2,
		Position:   ExitLong,
		EntryPrice: 100,
		ExitPrice:  97,
		Balance:    9700,
	},
	{
		Name:         "short_tp_breach",
		Open:         []float64{100, 100, 90, 90},
		High:         []float64{100, 100, 90, 90},
		Low:          []float64{100, 89, 89, 89},
		Close:        []float64{100, 89, 90, 90},
		Signals:      Signals{EnterShort: true},
		Params:       func(p *BacktestParams) { p.PctTPEnable = true; p.PctTP = 0.1 },
		Bar:          1,
		Position:     EnterShort,
		EntryPrice:   100,
		ExitPrice:    math.NaN(),
		Balance:      10000,
		ExitShortSet: true,
	},
}

func (tc ParityTestCase) run() (*BacktestOutput, strategies.SignalOutput, error) {
	n := len(tc.Open)
	times := make([]int64, n)
	for i := range times {
		times[i] = market.MockStartMs + int64(i)*market.MockStepMs
	}
	bars, err := market.NewBarSeries(market.TF1m, times, tc.Open, tc.High, tc.Low, tc.Close, make([]float64, n))
	if err != nil {
		return nil, strategies.SignalOutput{}, err
	}

	sig := strategies.NewSignalOutput(n)
	sig.EnterLong[0] = tc.Signals.EnterLong
	sig.ExitLong[0] = tc.Signals.ExitLong
	sig.EnterShort[0] = tc.Signals.EnterShort
	sig.ExitShort[0] = tc.Signals.ExitShort

	p := DefaultBacktestParams()
	p.ATRPeriod = 1
	if tc.Params != nil {
		tc.Params(&p)
	}
	out, err := NewSimulator(p, nil).Run(bars, &sig)
	return out, sig, err
}

func sameFloat(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return math.Abs(a-b) < 1e-9
}

// RunParitySuite replays GoldenCases and describes every mismatch.
func RunParitySuite() []string {
	var failures []string
	for _, tc := range GoldenCases {
		out, sig, err := tc.run()
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", tc.Name, err))
			continue
		}
		i := tc.Bar
		switch {
		case out.Position[i] != tc.Position:
			failures = append(failures, fmt.Sprintf("%s: position %s, want %s", tc.Name, out.Position[i], tc.Position))
		case !sameFloat(out.EntryPrice[i], tc.EntryPrice):
			failures = append(failures, fmt.Sprintf("%s: entry %v, want %v", tc.Name, out.EntryPrice[i], tc.EntryPrice))
		case !sameFloat(out.ExitPrice[i], tc.ExitPrice):
			failures = append(failures, fmt.Sprintf("%s: exit %v, want %v", tc.Name, out.ExitPrice[i], tc.ExitPrice))
		case !sameFloat(out.Balance[i], tc.Balance):
			failures = append(failures, fmt.Sprintf("%s: balance %v, want %v", tc.Name, out.Balance[i], tc.Balance))
		case tc.ExitLongSet && !sig.ExitLong[i]:
			failures = append(failures, tc.Name+": exit_long not raised")
		case tc.ExitShortSet && !sig.ExitShort[i]:
			failures = append(failures, tc.Name+": exit_short not raised")
		}
	}
	return failures
}
