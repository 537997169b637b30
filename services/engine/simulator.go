package engine

import (
	"backtest-sweep/services/indicators"
	"backtest-sweep/services/market"
	"backtest-sweep/strategies"
)

// Simulator runs the bar loop of one combination: position transition, exit
// levels and triggers, then accounting. Bars are processed strictly in
// order; bar i only reads committed values of bar i-1.
type Simulator struct {
	params BacktestParams
	log    *EventLog
}

// NewSimulator builds a simulator. log may be nil.
func NewSimulator(p BacktestParams, log *EventLog) *Simulator {
	return &Simulator{params: p, log: log}
}

// Run simulates bars against sig. sig is modified in place when an exit
// rule fires, so callers pass a copy they own. On a failed precondition the
// returned output is still fully allocated and NaN-filled.
func (s *Simulator) Run(bars *market.BarSeries, sig *strategies.SignalOutput) (*BacktestOutput, error) {
	n := 0
	if bars != nil {
		n = bars.Len()
	}
	out := NewBacktestOutput(n)
	if bars == nil || n == 0 {
		return out, checkInputs(bars, *sig, nil)
	}

	atr := indicators.ATR(bars.High, bars.Low, bars.Close, s.params.ATRPeriod)
	if err := checkInputs(bars, *sig, atr); err != nil {
		return out, err
	}

	p := &s.params
	exits := NewExitEngine(p, atr, out)
	acct := NewAccountant(p, atr, out)

	for i := 1; i < n; i++ {
		prev := i - 1
		t := Step(Signals{
			EnterLong:  sig.EnterLong[prev],
			ExitLong:   sig.ExitLong[prev],
			EnterShort: sig.EnterShort[prev],
			ExitShort:  sig.ExitShort[prev],
		}, out.Position[prev], out.EntryPrice[prev], bars.Open[i])
		out.Position[i] = t.Position
		out.EntryPrice[i] = t.EntryPrice
		out.ExitPrice[i] = t.ExitPrice
		s.logTransition(bars.Time[i], i, t)

		exits.Update(i, bars.Open, bars.High, bars.Low, bars.Close)
		if reason := exits.Trigger(i, bars.High, bars.Low, bars.Close, sig); reason != ExitNone {
			out.ExitReason[i] = reason
			s.log.Append(Event{Ts: bars.Time[i], Bar: i, Type: EventStopTriggered, Position: t.Position, Price: bars.Close[i], Reason: reason})
		}

		acct.Step(i, bars.Close[i])
	}
	return out, nil
}

func (s *Simulator) logTransition(ts int64, i int, t Transition) {
	if s.log == nil {
		return
	}
	switch t.Position {
	case EnterLong, EnterShort:
		s.log.Append(Event{Ts: ts, Bar: i, Type: EventEntry, Position: t.Position, Price: t.EntryPrice})
	case ExitLong, ExitShort:
		s.log.Append(Event{Ts: ts, Bar: i, Type: EventExit, Position: t.Position, Price: t.ExitPrice})
	case ReverseToLong, ReverseToShort:
		s.log.Append(Event{Ts: ts, Bar: i, Type: EventReverse, Position: t.Position, Price: t.EntryPrice})
	}
}
