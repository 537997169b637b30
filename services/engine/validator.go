package engine

import (
	"errors"
	"fmt"

	"backtest-sweep/services/market"
	"backtest-sweep/strategies"
)

// ValidationError is a fatal configuration problem. A batch that fails
// validation does no work.
type ValidationError struct{ Msg string }

func (e ValidationError) Error() string { return e.Msg }

var (
	ErrMissingInput     = errors.New("missing input")
	ErrShapeMismatch    = errors.New("shape mismatch")
	ErrMissingTimeframe = strategies.ErrMissingTimeframe
)

// Stage names one step of the per-combination pipeline.
type Stage string

const (
	StageSignals  Stage = "signals"
	StageBacktest Stage = "backtest"
)

// StageError reports a per-combination failure. The combination keeps its
// NaN-filled outputs and the rest of the batch continues.
type StageError struct {
	Stage       Stage
	Combination int
	Err         error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("combination %d: %s stage: %v", e.Combination, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Validator checks batch invariants before any simulation starts.
type Validator struct{}

func (v *Validator) Validate(frames market.Frames, mapping *market.DataMapping, combos []Combination) error {
	if len(frames) == 0 {
		return ValidationError{Msg: "no timeframes supplied"}
	}
	if err := frames.Validate(); err != nil {
		return ValidationError{Msg: fmt.Sprintf("invalid frames: %v", err)}
	}
	if len(combos) == 0 {
		return ValidationError{Msg: "no parameter combinations supplied"}
	}

	n := frames.Base().Len()
	if len(frames) > 1 {
		if mapping == nil {
			return ValidationError{Msg: "multiple timeframes supplied without a mapping"}
		}
		if len(mapping.Skip) != n {
			return ValidationError{Msg: fmt.Sprintf("mapping covers %d bars, base timeframe has %d", len(mapping.Skip), n)}
		}
	}

	for i, c := range combos {
		if c.ID != i {
			return ValidationError{Msg: fmt.Sprintf("combination at index %d has id %d", i, c.ID)}
		}
		if len(c.Indicators) != len(frames) {
			return ValidationError{Msg: fmt.Sprintf("combination %d has indicator params for %d timeframes, want %d", i, len(c.Indicators), len(frames))}
		}
		if err := c.Backtest.Validate(); err != nil {
			return ValidationError{Msg: fmt.Sprintf("combination %d: %v", i, err)}
		}
	}
	return nil
}

// checkInputs is the precondition of the backtest stage.
func checkInputs(bars *market.BarSeries, sig strategies.SignalOutput, atr []float64) error {
	if bars == nil || bars.Len() == 0 {
		return fmt.Errorf("%w: base bars", ErrMissingInput)
	}
	n := bars.Len()
	if sig.Len() != n {
		return fmt.Errorf("%w: %d signals for %d bars", ErrShapeMismatch, sig.Len(), n)
	}
	if len(atr) != n {
		return fmt.Errorf("%w: %d atr values for %d bars", ErrShapeMismatch, len(atr), n)
	}
	return nil
}
