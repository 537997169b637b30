package engine

import "math"

// Accountant keeps balance, equity and drawdown for one simulation. Balance
// moves only when a trade is realized; equity also marks open positions to
// the bar's close.
type Accountant struct {
	out          *BacktestOutput
	atr          []float64
	costs        CostModel
	positionSize float64
	maxEquity    float64
}

// NewAccountant seeds bar 0 with the initial capital.
func NewAccountant(p *BacktestParams, atr []float64, out *BacktestOutput) *Accountant {
	a := &Accountant{
		out:          out,
		atr:          atr,
		costs:        NewCostModel(p),
		positionSize: p.PositionSize,
		maxEquity:    p.InitMoney,
	}
	if out.Len() > 0 {
		out.Balance[0] = p.InitMoney
		out.Equity[0] = p.InitMoney
		out.Drawdown[0] = 0
	}
	return a
}

// RealizedProfit is the profit fraction of the trade closed on bar i, and
// whether bar i closed one.
func RealizedProfit(o *BacktestOutput, i int) (float64, bool) {
	if i < 1 {
		return 0, false
	}
	pos, prev := o.Position[i], o.Position[i-1]
	entry := o.EntryPrice[i-1]
	switch {
	case (pos == ExitLong || pos == ReverseToShort) && prev.IsLong():
		return (o.ExitPrice[i] - entry) / entry, true
	case (pos == ExitShort || pos == ReverseToLong) && prev.IsShort():
		return (entry - o.ExitPrice[i]) / entry, true
	}
	return 0, false
}

// Step books bar i >= 1.
func (a *Accountant) Step(i int, close float64) {
	o := a.out
	prev := i - 1
	o.Balance[i] = o.Balance[prev]
	o.Equity[i] = o.Equity[prev]

	if a.positionSize > 0 {
		nominal := o.Balance[prev] * a.positionSize
		if profit, ok := RealizedProfit(o, i); ok {
			cost := a.costs.Total(nominal, a.atr[i], a.positionSize)
			o.Balance[i] = o.Balance[prev] + nominal*profit - cost
			o.Equity[i] = o.Balance[i]
		} else if pos := o.Position[i]; pos.IsLong() {
			o.Equity[i] = o.Balance[prev] + nominal*(close-o.EntryPrice[i])/o.EntryPrice[i]
		} else if pos.IsShort() {
			o.Equity[i] = o.Balance[prev] + nominal*(o.EntryPrice[i]-close)/o.EntryPrice[i]
		}
	}

	a.maxEquity = math.Max(a.maxEquity, o.Equity[i])
	if a.maxEquity > 0 {
		o.Drawdown[i] = (a.maxEquity - o.Equity[i]) / a.maxEquity
	} else {
		o.Drawdown[i] = 0
	}
}
