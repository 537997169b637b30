package engine

// Round-trip trading costs charged when a position is realized.

// CostModel prices one round trip. Each component applies only when its
// rate is positive.
type CostModel struct {
	CommissionPct   float64 // fraction of nominal, charged on entry and exit
	CommissionFixed float64 // flat amount, charged on entry and exit
	SlippageATR     float64 // ATR multiples, scaled by position size
	SlippagePct     float64 // fraction of nominal
}

func NewCostModel(p *BacktestParams) CostModel {
	return CostModel{
		CommissionPct:   p.CommissionPct,
		CommissionFixed: p.CommissionFixed,
		SlippageATR:     p.SlippageATR,
		SlippagePct:     p.SlippagePct,
	}
}

// Slippage is the price impact of a round trip.
func (m CostModel) Slippage(nominal, atr, positionSize float64) float64 {
	var cost float64
	if m.SlippageATR > 0 {
		cost += m.SlippageATR * atr * positionSize
	}
	if m.SlippagePct > 0 {
		cost += nominal * m.SlippagePct
	}
	return cost
}

// Commission counts both legs of the trade.
func (m CostModel) Commission(nominal float64) float64 {
	var cost float64
	if m.CommissionPct > 0 {
		cost += nominal * m.CommissionPct * 2
	}
	if m.CommissionFixed > 0 {
		cost += m.CommissionFixed * 2
	}
	return cost
}

func (m CostModel) Total(nominal, atr, positionSize float64) float64 {
	return m.Slippage(nominal, atr, positionSize) + m.Commission(nominal)
}
