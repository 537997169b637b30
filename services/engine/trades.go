package engine

// Trade is one realized round trip.
type Trade struct {
	Side       Position // EnterLong or EnterShort
	EntryBar   int
	ExitBar    int
	EntryPrice float64
	ExitPrice  float64
	Profit     float64 // fraction of entry price, before costs
	Reason     ExitReason
}

func (t Trade) Long() bool { return t.Side == EnterLong }

// Trades lists the realized trades of a completed simulation in bar order.
// A position still open on the last bar is not a trade.
func Trades(o *BacktestOutput) []Trade {
	var trades []Trade
	entryBar := -1
	for i := 1; i < o.Len(); i++ {
		if profit, ok := RealizedProfit(o, i); ok {
			side := EnterShort
			if o.Position[i-1].IsLong() {
				side = EnterLong
			}
			reason := o.ExitReason[i-1]
			if reason == ExitNone {
				reason = ExitSignal
			}
			trades = append(trades, Trade{
				Side:       side,
				EntryBar:   entryBar,
				ExitBar:    i,
				EntryPrice: o.EntryPrice[i-1],
				ExitPrice:  o.ExitPrice[i],
				Profit:     profit,
				Reason:     reason,
			})
		}
		if o.Position[i].IsEntry() {
			entryBar = i
		}
	}
	return trades
}
