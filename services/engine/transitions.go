package engine

import "math"

// Signals is the view of bar i-1 a transition rule sees.
type Signals struct {
	EnterLong  bool
	ExitLong   bool
	EnterShort bool
	ExitShort  bool
}

// TransitionRule is one row of the state machine. Rules are evaluated in
// order and the first whose When returns true decides the new position.
type TransitionRule struct {
	Name  string
	When  func(sig Signals, prev Position) bool
	Next  Position
	Entry bool // entry price = current open
	Exit  bool // exit price = current open
}

var transitionRules = []TransitionRule{
	{
		Name:  "reverse_to_long",
		When:  func(s Signals, p Position) bool { return s.EnterLong && s.ExitShort && p.IsShort() },
		Next:  ReverseToLong,
		Entry: true,
		Exit:  true,
	},
	{
		Name:  "reverse_to_short",
		When:  func(s Signals, p Position) bool { return s.EnterShort && s.ExitLong && p.IsLong() },
		Next:  ReverseToShort,
		Entry: true,
		Exit:  true,
	},
	{
		Name: "exit_long",
		When: func(s Signals, p Position) bool { return s.ExitLong && p.IsLong() },
		Next: ExitLong,
		Exit: true,
	},
	{
		Name: "exit_short",
		When: func(s Signals, p Position) bool { return s.ExitShort && p.IsShort() },
		Next: ExitShort,
		Exit: true,
	},
	{
		Name:  "enter_long",
		When:  func(s Signals, p Position) bool { return s.EnterLong && p == NoPosition },
		Next:  EnterLong,
		Entry: true,
	},
	{
		Name:  "enter_short",
		When:  func(s Signals, p Position) bool { return s.EnterShort && p == NoPosition },
		Next:  EnterShort,
		Entry: true,
	},
}

// TransitionRules returns a copy of the ordered rule list.
func TransitionRules() []TransitionRule {
	out := make([]TransitionRule, len(transitionRules))
	copy(out, transitionRules)
	return out
}

// Transition is the outcome of one state machine step.
type Transition struct {
	Position   Position
	EntryPrice float64
	ExitPrice  float64
	Rule       string
}

// Step computes bar i from bar i-1's signals, position and entry price.
// open is bar i's open. Without a matching rule the position is inherited:
// an open side becomes a hold carrying its entry price, anything else is flat
// with no prices.
func Step(sig Signals, prev Position, prevEntry, open float64) Transition {
	for _, r := range transitionRules {
		if !r.When(sig, prev) {
			continue
		}
		t := Transition{Position: r.Next, EntryPrice: math.NaN(), ExitPrice: math.NaN(), Rule: r.Name}
		if r.Entry {
			t.EntryPrice = open
		} else if r.Next == ExitLong || r.Next == ExitShort {
			t.EntryPrice = prevEntry
		}
		if r.Exit {
			t.ExitPrice = open
		}
		return t
	}

	switch {
	case prev.IsLong():
		return Transition{Position: HoldLong, EntryPrice: prevEntry, ExitPrice: math.NaN(), Rule: "hold_long"}
	case prev.IsShort():
		return Transition{Position: HoldShort, EntryPrice: prevEntry, ExitPrice: math.NaN(), Rule: "hold_short"}
	default:
		return Transition{Position: NoPosition, EntryPrice: math.NaN(), ExitPrice: math.NaN(), Rule: "flat"}
	}
}
