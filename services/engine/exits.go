package engine

import (
	"math"

	"backtest-sweep/services/indicators"
	"backtest-sweep/strategies"
)

// ExitReason identifies which exit rule closed a position.
type ExitReason int8

const (
	ExitNone ExitReason = iota
	ExitSignal
	ExitPctSL
	ExitPctTP
	ExitPctTSL
	ExitATRSL
	ExitATRTP
	ExitATRTSL
	ExitPSAR
)

var exitReasonNames = [...]string{"none", "signal", "pct_sl", "pct_tp", "pct_tsl", "atr_sl", "atr_tp", "atr_tsl", "psar"}

func (r ExitReason) String() string {
	if int(r) < len(exitReasonNames) && r >= 0 {
		return exitReasonNames[r]
	}
	return "unknown"
}

// exitRule is a breach test for one level. long reports the comparison for a
// long position; shorts use the mirrored comparison.
type exitRule struct {
	Reason  ExitReason
	Enabled func(p *BacktestParams) bool
	Breach  func(o *BacktestOutput, i int, ecp float64, long bool) bool
}

func below(level []float64) func(o *BacktestOutput, i int, ecp float64, long bool) bool {
	return func(o *BacktestOutput, i int, ecp float64, long bool) bool {
		if long {
			return ecp < level[i]
		}
		return ecp > level[i]
	}
}

func above(level []float64) func(o *BacktestOutput, i int, ecp float64, long bool) bool {
	return func(o *BacktestOutput, i int, ecp float64, long bool) bool {
		if long {
			return ecp > level[i]
		}
		return ecp < level[i]
	}
}

// exitRulesFor binds the ordered rule list to the level columns of o. The
// first breached rule is the one recorded.
func exitRulesFor(o *BacktestOutput) []exitRule {
	return []exitRule{
		{ExitPctSL, func(p *BacktestParams) bool { return p.PctSLEnable }, below(o.PctSL)},
		{ExitPctTP, func(p *BacktestParams) bool { return p.PctTPEnable }, above(o.PctTP)},
		{ExitPctTSL, func(p *BacktestParams) bool { return p.PctTSLEnable }, below(o.PctTSL)},
		{ExitATRSL, func(p *BacktestParams) bool { return p.ATRSLEnable }, below(o.ATRSL)},
		{ExitATRTP, func(p *BacktestParams) bool { return p.ATRTPEnable }, above(o.ATRTP)},
		{ExitATRTSL, func(p *BacktestParams) bool { return p.ATRTSLEnable }, below(o.ATRTSL)},
		{ExitPSAR, func(p *BacktestParams) bool { return p.PSAREnable }, func(o *BacktestOutput, i int, _ float64, _ bool) bool {
			return o.PSARReversal[i] == 1
		}},
	}
}

// ExitEngine maintains stop/target levels and turns breaches into exit
// signals for the bar they occur on.
type ExitEngine struct {
	params *BacktestParams
	atr    []float64
	out    *BacktestOutput
	rules  []exitRule
}

func NewExitEngine(p *BacktestParams, atr []float64, out *BacktestOutput) *ExitEngine {
	e := &ExitEngine{params: p, atr: atr, out: out}
	for _, r := range exitRulesFor(out) {
		if r.Enabled(p) {
			e.rules = append(e.rules, r)
		}
	}
	return e
}

// exitCheckPrice is the price tested against the levels on bar i.
func (e *ExitEngine) exitCheckPrice(high, low, close float64, long bool) float64 {
	switch {
	case e.params.CloseForReversal:
		return close
	case long:
		return low
	default:
		return high
	}
}

// Update sets the levels of bar i from position[i]. Call once per bar i >= 1
// after the position transition.
func (e *ExitEngine) Update(i int, open, high, low, close []float64) {
	o, p := e.out, e.params
	prev := i - 1
	pos := o.Position[i]
	target := open[i]
	atr := e.atr[i]

	switch {
	case pos == EnterLong || pos == ReverseToLong:
		o.PctSL[i] = target * (1 - p.PctSL)
		o.PctTP[i] = target * (1 + p.PctTP)
		o.PctTSL[i] = target * (1 - p.PctTSL)
		o.ATRSL[i] = target - atr*p.ATRSLMultiplier
		o.ATRTP[i] = target + atr*p.ATRTPMultiplier
		o.ATRTSL[i] = target - atr*p.ATRTSLMultiplier
		e.startPSAR(i, high, low, close, indicators.DirectionLong)

	case pos == EnterShort || pos == ReverseToShort:
		o.PctSL[i] = target * (1 + p.PctSL)
		o.PctTP[i] = target * (1 - p.PctTP)
		o.PctTSL[i] = target * (1 + p.PctTSL)
		o.ATRSL[i] = target + atr*p.ATRSLMultiplier
		o.ATRTP[i] = target - atr*p.ATRTPMultiplier
		o.ATRTSL[i] = target + atr*p.ATRTSLMultiplier
		e.startPSAR(i, high, low, close, indicators.DirectionShort)

	case pos == HoldLong:
		ecp := e.exitCheckPrice(high[i], low[i], close[i], true)
		o.PctSL[i] = o.PctSL[prev]
		o.PctTP[i] = o.PctTP[prev]
		o.PctTSL[i] = math.Max(o.PctTSL[prev], ecp*(1-p.PctTSL))
		o.ATRSL[i] = o.ATRSL[prev]
		o.ATRTP[i] = o.ATRTP[prev]
		o.ATRTSL[i] = math.Max(o.ATRTSL[prev], ecp-atr*p.ATRTSLMultiplier)
		e.advancePSAR(i, high, low)

	case pos == HoldShort:
		ecp := e.exitCheckPrice(high[i], low[i], close[i], false)
		o.PctSL[i] = o.PctSL[prev]
		o.PctTP[i] = o.PctTP[prev]
		o.PctTSL[i] = math.Min(o.PctTSL[prev], ecp*(1+p.PctTSL))
		o.ATRSL[i] = o.ATRSL[prev]
		o.ATRTP[i] = o.ATRTP[prev]
		o.ATRTSL[i] = math.Min(o.ATRTSL[prev], ecp+atr*p.ATRTSLMultiplier)
		e.advancePSAR(i, high, low)

	default:
		e.clear(i)
	}
}

func (e *ExitEngine) clear(i int) {
	o := e.out
	nan := math.NaN()
	o.PctSL[i], o.PctTP[i], o.PctTSL[i] = nan, nan, nan
	o.ATRSL[i], o.ATRTP[i], o.ATRTSL[i] = nan, nan, nan
	o.PSARIsLong[i] = 0
	o.PSARCurrent[i], o.PSAREP[i], o.PSARAF[i] = nan, nan, nan
	o.PSARReversal[i] = 0
}

func (e *ExitEngine) startPSAR(i int, high, low, close []float64, dir indicators.Direction) {
	p := e.params
	prev := i - 1
	step := indicators.PSARFirstIteration(high[prev], high[i], low[prev], low[i], close[prev], dir, p.PSARAF0, p.PSARAFStep, p.PSARMaxAF)
	e.storePSAR(i, step)
}

func (e *ExitEngine) advancePSAR(i int, high, low []float64) {
	o, p := e.out, e.params
	prev := i - 1
	st := indicators.PSARState{
		IsLong: o.PSARIsLong[prev] > 0,
		SAR:    o.PSARCurrent[prev],
		EP:     o.PSAREP[prev],
		AF:     o.PSARAF[prev],
	}
	step := indicators.PSARUpdate(st, high[i], low[i], high[prev], low[prev], p.PSARAF0, p.PSARAFStep, p.PSARMaxAF)
	e.storePSAR(i, step)
}

func (e *ExitEngine) storePSAR(i int, step indicators.PSARStep) {
	o := e.out
	o.PSARIsLong[i] = 0
	if step.State.IsLong {
		o.PSARIsLong[i] = 1
	}
	o.PSARCurrent[i] = step.State.SAR
	o.PSAREP[i] = step.State.EP
	o.PSARAF[i] = step.State.AF
	o.PSARReversal[i] = 0
	if step.Reversal {
		o.PSARReversal[i] = 1
	}
}

// Trigger tests the enabled rules on bar i and, on a breach, rewrites the
// bar's signals so the next transition closes the position. It returns the
// rule that fired or ExitNone.
func (e *ExitEngine) Trigger(i int, high, low, close []float64, sig *strategies.SignalOutput) ExitReason {
	pos := e.out.Position[i]
	long := pos.IsLong()
	if !long && !pos.IsShort() {
		return ExitNone
	}
	ecp := e.exitCheckPrice(high[i], low[i], close[i], long)

	for _, r := range e.rules {
		if !r.Breach(e.out, i, ecp, long) {
			continue
		}
		if long {
			sig.ExitLong[i] = true
			sig.EnterLong[i] = false
			sig.ExitShort[i] = false
		} else {
			sig.ExitShort[i] = true
			sig.EnterShort[i] = false
			sig.ExitLong[i] = false
		}
		return r.Reason
	}
	return ExitNone
}
