//! Signal dispatcher
//!
//! Strategies are plain functions registered under a numeric id. Each one
//! turns indicator columns (optionally from higher timeframes) into the four
//! boolean signal series consumed by the engine.

package strategies

import (
	"errors"
	"fmt"
	"sort"

	"backtest-sweep/services/indicators"
	"backtest-sweep/services/market"
)

var (
	ErrUnknownStrategy  = errors.New("unknown strategy")
	ErrMissingIndicator = errors.New("required indicator not computed")
	ErrMissingTimeframe = errors.New("required higher timeframe not supplied")
)

type SignalID int

const (
	SignalSMACross SignalID = iota
	SignalBBandsReversion
	SignalBBandsReversionMTF
	SignalBBandsMTFTrend
	SignalEMAATR
)

// SignalOutput holds one boolean per base-timeframe bar for each signal.
type SignalOutput struct {
	EnterLong  []bool
	ExitLong   []bool
	EnterShort []bool
	ExitShort  []bool
}

func NewSignalOutput(n int) SignalOutput {
	return SignalOutput{
		EnterLong:  make([]bool, n),
		ExitLong:   make([]bool, n),
		EnterShort: make([]bool, n),
		ExitShort:  make([]bool, n),
	}
}

func (s SignalOutput) Len() int { return len(s.EnterLong) }

// Clone returns a deep copy. The engine mutates signals in place when exits
// fire, so each simulation works on its own copy.
func (s SignalOutput) Clone() SignalOutput {
	c := NewSignalOutput(s.Len())
	copy(c.EnterLong, s.EnterLong)
	copy(c.ExitLong, s.ExitLong)
	copy(c.EnterShort, s.EnterShort)
	copy(c.ExitShort, s.ExitShort)
	return c
}

// Input is everything a strategy may read. Indicators[k] belongs to Frames[k].
type Input struct {
	Frames     market.Frames
	Indicators []indicators.Output
	Mapping    *market.DataMapping
}

func (in Input) base() (*market.BarSeries, indicators.Output) {
	return in.Frames.Base(), in.Indicators[0]
}

// higher returns indicator output k and its mapping, or ErrMissingTimeframe.
func (in Input) higher(k int) (indicators.Output, []int, error) {
	if k >= len(in.Frames) || k >= len(in.Indicators) || in.Mapping == nil {
		return indicators.Output{}, nil, fmt.Errorf("%w: timeframe %d", ErrMissingTimeframe, k)
	}
	idx, ok := in.Mapping.Index[market.MappingKey(k)]
	if !ok {
		return indicators.Output{}, nil, fmt.Errorf("%w: mapping %s", ErrMissingTimeframe, market.MappingKey(k))
	}
	return in.Indicators[k], idx, nil
}

// Func fills out from in. out is pre-sized to the base timeframe.
type Func func(in Input, out *SignalOutput) error

// Strategy describes one registered entry.
type Strategy struct {
	ID          SignalID
	Name        string
	Timeframes  int
	Fn          Func
	Description string
}

var registry = map[SignalID]Strategy{}

func register(s Strategy) {
	if _, dup := registry[s.ID]; dup {
		panic(fmt.Sprintf("strategy %d registered twice", s.ID))
	}
	registry[s.ID] = s
}

func Lookup(id SignalID) (Strategy, error) {
	s, ok := registry[id]
	if !ok {
		return Strategy{}, fmt.Errorf("%w: %d", ErrUnknownStrategy, id)
	}
	return s, nil
}

// List returns the registered strategies ordered by id.
func List() []Strategy {
	out := make([]Strategy, 0, len(registry))
	for _, s := range registry {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Dispatch runs strategy id. On error the returned signals are all false and
// still sized to the base timeframe. Bars whose higher timeframes have no
// bar yet never carry a signal.
func Dispatch(id SignalID, in Input) (SignalOutput, error) {
	if len(in.Frames) == 0 || len(in.Indicators) == 0 {
		return SignalOutput{}, fmt.Errorf("%w: no base timeframe", ErrMissingTimeframe)
	}
	n := in.Frames.Base().Len()
	out := NewSignalOutput(n)

	s, err := Lookup(id)
	if err != nil {
		return out, err
	}
	if err := s.Fn(in, &out); err != nil {
		return NewSignalOutput(n), fmt.Errorf("strategy %s: %w", s.Name, err)
	}

	if in.Mapping != nil {
		for i := 0; i < n; i++ {
			if !in.Mapping.Usable(i) {
				out.EnterLong[i] = false
				out.ExitLong[i] = false
				out.EnterShort[i] = false
				out.ExitShort[i] = false
			}
		}
	}
	return out, nil
}

func require(name string, col []float64) error {
	if col == nil {
		return fmt.Errorf("%w: %s", ErrMissingIndicator, name)
	}
	return nil
}
