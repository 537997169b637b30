package engine

import (
	"fmt"
	"sort"

	"backtest-sweep/services/indicators"
)

// Combination is one independent parameter assignment. Indicators[k]
// configures timeframe k.
type Combination struct {
	ID         int
	Indicators []indicators.Params
	Backtest   BacktestParams
}

// ParamSet holds per-key value lists. Indicator keys are scoped per
// timeframe because indicator and backtest keys overlap (atr_period,
// psar_af0, ...).
type ParamSet struct {
	Indicators []map[string][]float64 `yaml:"indicators" json:"indicators"`
	Backtest   map[string][]float64   `yaml:"backtest" json:"backtest"`
}

type axis struct {
	tf     int // -1 for backtest keys
	key    string
	values []float64
}

func (ps ParamSet) axes() []axis {
	var out []axis
	for tf, m := range ps.Indicators {
		for _, k := range sortedKeys(m) {
			out = append(out, axis{tf: tf, key: k, values: m[k]})
		}
	}
	for _, k := range sortedKeys(ps.Backtest) {
		out = append(out, axis{tf: -1, key: k, values: ps.Backtest[k]})
	}
	return out
}

func sortedKeys(m map[string][]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// build turns the i-th value of every axis into a Combination.
func (ps ParamSet) build(id int, axes []axis, pick func(i int) float64) (Combination, error) {
	indMaps := make([]map[string]float64, len(ps.Indicators))
	for k := range indMaps {
		indMaps[k] = map[string]float64{}
	}
	btMap := map[string]float64{}
	for i, a := range axes {
		if a.tf < 0 {
			btMap[a.key] = pick(i)
		} else {
			indMaps[a.tf][a.key] = pick(i)
		}
	}

	c := Combination{ID: id, Indicators: make([]indicators.Params, len(indMaps))}
	for k, m := range indMaps {
		p, err := indicators.ParamsFromMap(m)
		if err != nil {
			return c, ValidationError{Msg: fmt.Sprintf("timeframe %d: %v", k, err)}
		}
		c.Indicators[k] = p
	}
	bt, err := BacktestParamsFromMap(btMap)
	if err != nil {
		return c, err
	}
	c.Backtest = bt
	return c, nil
}

// ExpandGrid returns the cartesian product of every value list. Keys vary
// in a fixed order (timeframe, then sorted key; backtest keys last), the
// last key fastest, so the same grid always yields the same IDs.
func ExpandGrid(grid ParamSet, timeframes int) ([]Combination, error) {
	grid = grid.padded(timeframes)
	axes := grid.axes()
	total := 1
	for _, a := range axes {
		if len(a.values) == 0 {
			return nil, ValidationError{Msg: fmt.Sprintf("parameter %q has no values", a.key)}
		}
		total *= len(a.values)
	}

	combos := make([]Combination, 0, total)
	idx := make([]int, len(axes))
	for id := 0; id < total; id++ {
		c, err := grid.build(id, axes, func(i int) float64 { return axes[i].values[idx[i]] })
		if err != nil {
			return nil, err
		}
		combos = append(combos, c)

		for i := len(axes) - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(axes[i].values) {
				break
			}
			idx[i] = 0
		}
	}
	return combos, nil
}

// CombinationsFromColumns zips value lists of equal length m into m
// combinations. Any list of a different length is a fatal shape error.
func CombinationsFromColumns(cols ParamSet, timeframes, m int) ([]Combination, error) {
	cols = cols.padded(timeframes)
	axes := cols.axes()
	for _, a := range axes {
		if len(a.values) != m {
			return nil, ValidationError{Msg: fmt.Sprintf("%v: parameter %q has %d values, want %d", ErrShapeMismatch, a.key, len(a.values), m)}
		}
	}

	combos := make([]Combination, m)
	for id := 0; id < m; id++ {
		c, err := cols.build(id, axes, func(i int) float64 { return axes[i].values[id] })
		if err != nil {
			return nil, err
		}
		combos[id] = c
	}
	return combos, nil
}

// padded makes sure there is one indicator map per timeframe.
func (ps ParamSet) padded(timeframes int) ParamSet {
	if len(ps.Indicators) >= timeframes {
		return ps
	}
	out := ParamSet{Indicators: make([]map[string][]float64, timeframes), Backtest: ps.Backtest}
	copy(out.Indicators, ps.Indicators)
	for k := range out.Indicators {
		if out.Indicators[k] == nil {
			out.Indicators[k] = map[string][]float64{}
		}
	}
	return out
}
