package indicators

import "math"

// PSARState is the running Parabolic SAR recurrence.
type PSARState struct {
	IsLong bool
	SAR    float64
	EP     float64
	AF     float64
}

// Direction forces the initial PSAR trend. DirectionAuto derives it from the
// directional movement of the first two bars.
type Direction int

const (
	DirectionShort Direction = -1
	DirectionAuto  Direction = 0
	DirectionLong  Direction = 1
)

// PSARStep is the per-bar output of the single-step functions.
type PSARStep struct {
	State    PSARState
	Long     float64
	Short    float64
	Reversal bool
}

func (s PSARStep) reversalFlag() float64 {
	if s.Reversal {
		return 1
	}
	return 0
}

func PSARInit(prevHigh, curHigh, prevLow, curLow, prevClose float64, dir Direction, af0 float64) PSARState {
	var isLong bool
	switch dir {
	case DirectionLong:
		isLong = true
	case DirectionShort:
		isLong = false
	default:
		upDM := curHigh - prevHigh
		dnDM := prevLow - curLow
		falling := dnDM > upDM && dnDM > 0
		isLong = !falling
	}

	ep := prevLow
	if isLong {
		ep = prevHigh
	}
	return PSARState{IsLong: isLong, SAR: prevClose, EP: ep, AF: af0}
}

// PSARFirstIteration initializes on (prev, cur) and produces the values of
// the current bar.
func PSARFirstIteration(prevHigh, curHigh, prevLow, curLow, prevClose float64, dir Direction, af0, afStep, maxAF float64) PSARStep {
	st := PSARInit(prevHigh, curHigh, prevLow, curLow, prevClose, dir, af0)
	if math.IsNaN(st.SAR) {
		return PSARStep{State: st, Long: math.NaN(), Short: math.NaN()}
	}

	var candidate float64
	var reversal bool
	if st.IsLong {
		candidate = st.SAR + st.AF*(st.EP-st.SAR)
		st.SAR = math.Min(candidate, prevLow)
		reversal = curLow < candidate
		if curHigh > st.EP {
			st.EP = curHigh
			st.AF = math.Min(maxAF, st.AF+afStep)
		}
	} else {
		candidate = st.SAR - st.AF*(st.SAR-st.EP)
		st.SAR = math.Max(candidate, prevHigh)
		reversal = curHigh > candidate
		if curLow < st.EP {
			st.EP = curLow
			st.AF = math.Min(maxAF, st.AF+afStep)
		}
	}

	if reversal {
		st.IsLong = !st.IsLong
		st.AF = af0
		st.SAR = st.EP
		if st.IsLong {
			if st.SAR > curLow {
				st.SAR = curLow
			}
			st.EP = curHigh
		} else {
			if st.SAR < curHigh {
				st.SAR = curHigh
			}
			st.EP = curLow
		}
	}

	return newStep(st, reversal)
}

// PSARUpdate advances an existing state by one bar.
func PSARUpdate(prev PSARState, curHigh, curLow, prevHigh, prevLow, af0, afStep, maxAF float64) PSARStep {
	st := prev
	var candidate float64
	var reversal bool
	if prev.IsLong {
		candidate = prev.SAR + prev.AF*(prev.EP-prev.SAR)
		reversal = curLow < candidate
		st.SAR = math.Min(candidate, prevLow)
		if curHigh > st.EP {
			st.EP = curHigh
			st.AF = math.Min(maxAF, prev.AF+afStep)
		}
	} else {
		candidate = prev.SAR - prev.AF*(prev.SAR-prev.EP)
		reversal = curHigh > candidate
		st.SAR = math.Max(candidate, prevHigh)
		if curLow < st.EP {
			st.EP = curLow
			st.AF = math.Min(maxAF, prev.AF+afStep)
		}
	}

	if reversal {
		st.IsLong = !prev.IsLong
		st.AF = af0
		if st.IsLong {
			st.SAR = math.Min(prev.EP, curLow)
			st.EP = curHigh
		} else {
			st.SAR = math.Max(prev.EP, curHigh)
			st.EP = curLow
		}
	}

	return newStep(st, reversal)
}

func newStep(st PSARState, reversal bool) PSARStep {
	step := PSARStep{State: st, Long: math.NaN(), Short: math.NaN(), Reversal: reversal}
	if st.IsLong {
		step.Long = st.SAR
	} else {
		step.Short = st.SAR
	}
	return step
}

// PSARSeries is the batch output, one value per bar.
type PSARSeries struct {
	Long     []float64
	Short    []float64
	AF       []float64
	Reversal []float64
}

// PSAR runs the recurrence over the whole series with auto-detected initial
// direction. Fewer than two bars yield all-NaN columns.
func PSAR(high, low, close []float64, af0, afStep, maxAF float64) PSARSeries {
	n := len(close)
	out := PSARSeries{Long: nanSlice(n), Short: nanSlice(n), AF: nanSlice(n), Reversal: nanSlice(n)}
	if n < 2 {
		return out
	}

	out.AF[0] = af0
	out.Reversal[0] = 0

	step := PSARFirstIteration(high[0], high[1], low[0], low[1], close[0], DirectionAuto, af0, afStep, maxAF)
	out.Long[1] = step.Long
	out.Short[1] = step.Short
	out.Reversal[1] = step.reversalFlag()
	out.AF[1] = step.State.AF
	if math.IsNaN(step.State.SAR) {
		return out
	}

	st := step.State
	for i := 2; i < n; i++ {
		step = PSARUpdate(st, high[i], low[i], high[i-1], low[i-1], af0, afStep, maxAF)
		st = step.State
		out.Long[i] = step.Long
		out.Short[i] = step.Short
		out.AF[i] = st.AF
		out.Reversal[i] = step.reversalFlag()
	}
	return out
}
