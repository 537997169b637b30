package engine

import "fmt"

// Position is the per-bar state of the single position a combination may
// hold. Positive values are long-side states, negative values short-side.
type Position int8

const (
	NoPosition     Position = 0
	EnterLong      Position = 1
	HoldLong       Position = 2
	ExitLong       Position = 3
	ReverseToLong  Position = 4
	EnterShort     Position = -1
	HoldShort      Position = -2
	ExitShort      Position = -3
	ReverseToShort Position = -4
)

var positionNames = map[Position]string{
	NoPosition:     "NO_POSITION",
	EnterLong:      "ENTER_LONG",
	HoldLong:       "HOLD_LONG",
	ExitLong:       "EXIT_LONG",
	ReverseToLong:  "REVERSE_TO_LONG",
	EnterShort:     "ENTER_SHORT",
	HoldShort:      "HOLD_SHORT",
	ExitShort:      "EXIT_SHORT",
	ReverseToShort: "REVERSE_TO_SHORT",
}

func (p Position) String() string {
	if s, ok := positionNames[p]; ok {
		return s
	}
	return fmt.Sprintf("Position(%d)", int8(p))
}

func (p Position) Valid() bool {
	_, ok := positionNames[p]
	return ok
}

// IsLong reports an open long position after this bar.
func (p Position) IsLong() bool {
	return p == EnterLong || p == HoldLong || p == ReverseToLong
}

// IsShort reports an open short position after this bar.
func (p Position) IsShort() bool {
	return p == EnterShort || p == HoldShort || p == ReverseToShort
}

// IsFlat covers NoPosition and the two exit states, which close on this
// bar's open.
func (p Position) IsFlat() bool {
	return p == NoPosition || p == ExitLong || p == ExitShort
}

// IsEntry reports a bar on which a new position was opened.
func (p Position) IsEntry() bool {
	return p == EnterLong || p == EnterShort || p == ReverseToLong || p == ReverseToShort
}
