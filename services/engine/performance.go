package engine

import "math"

// Aggregate summarizes a completed simulation. annualization is the number
// of bars per year.
func Aggregate(o *BacktestOutput, initMoney, annualization float64) PerformanceOutput {
	perf := PerformanceOutput{}
	if o == nil || o.Len() == 0 {
		return NewPerformanceOutput()
	}

	trades := Trades(o)
	perf.TradeCount = float64(len(trades))
	perf.WinRate, perf.ProfitLossRatio = tradeStats(trades)
	perf.LongestNoPosition = float64(longestFlat(o.Position))

	returns := equityReturns(o.Equity)
	perf.SharpeRatio = sharpe(returns, annualization)
	perf.SortinoRatio = sortino(returns, annualization, 0)
	perf.CalmarRatio = calmar(o.Equity, o.Drawdown, annualization)

	last := o.Equity[o.Len()-1]
	perf.TotalProfitPct = math.NaN()
	if initMoney != 0 {
		perf.TotalProfitPct = (last/initMoney - 1) * 100
	}
	perf.MaxBalance = maxOf(o.Balance)
	perf.MaxDrawdown = maxOf(o.Drawdown)
	return perf
}

func tradeStats(trades []Trade) (winRate, plRatio float64) {
	if len(trades) == 0 {
		return 0, 0
	}
	var wins, losses int
	var winSum, lossSum float64
	for _, t := range trades {
		switch {
		case t.Profit > 0:
			wins++
			winSum += t.Profit
		case t.Profit < 0:
			losses++
			lossSum += t.Profit
		}
	}
	winRate = float64(wins) / float64(len(trades))
	if wins > 0 && losses > 0 {
		plRatio = (winSum / float64(wins)) / math.Abs(lossSum/float64(losses))
	}
	return winRate, plRatio
}

func longestFlat(pos []Position) int {
	var longest, run int
	for _, p := range pos {
		if p.IsFlat() {
			run++
			longest = max(longest, run)
		} else {
			run = 0
		}
	}
	return longest
}

func equityReturns(equity []float64) []float64 {
	if len(equity) < 2 {
		return nil
	}
	r := make([]float64, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		r[i-1] = (equity[i] - equity[i-1]) / equity[i-1]
	}
	return r
}

func mean(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v
	}
	return sum / float64(len(x))
}

// pstdev is the population standard deviation.
func pstdev(x []float64, m float64) float64 {
	var ss float64
	for _, v := range x {
		ss += (v - m) * (v - m)
	}
	return math.Sqrt(ss / float64(len(x)))
}

func sharpe(returns []float64, annualization float64) float64 {
	if len(returns) == 0 || annualization <= 0 {
		return 0
	}
	m := mean(returns)
	sd := pstdev(returns, m)
	if sd <= 0 || math.IsNaN(sd) {
		return 0
	}
	return m * annualization / (sd * math.Sqrt(annualization))
}

// sortino uses the downside deviation of returns below mar.
func sortino(returns []float64, annualization, mar float64) float64 {
	if len(returns) == 0 || annualization <= 0 {
		return 0
	}
	m := mean(returns)
	var ss float64
	for _, r := range returns {
		if d := r - mar; d < 0 {
			ss += d * d
		}
	}
	dd := math.Sqrt(ss / float64(len(returns)))
	if dd == 0 {
		if m > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return m * annualization / (dd * math.Sqrt(annualization))
}

// calmar annualizes the total return over len(equity)/annualization years.
func calmar(equity, drawdown []float64, annualization float64) float64 {
	if len(equity) < 2 || annualization <= 0 || equity[0] == 0 {
		return 0
	}
	years := float64(len(equity)) / annualization
	annual := math.Pow(equity[len(equity)-1]/equity[0], 1/years) - 1
	dd := maxOf(drawdown)
	if dd > 0 {
		return annual / dd
	}
	return math.Inf(1)
}

// maxOf ignores NaN values; an all-NaN input yields NaN.
func maxOf(x []float64) float64 {
	m := math.NaN()
	for _, v := range x {
		if math.IsNaN(v) {
			continue
		}
		if math.IsNaN(m) || v > m {
			m = v
		}
	}
	return m
}
