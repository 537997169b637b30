package engine

import (
	"math"
	"testing"
)

func realizedOutput(side Position, entry, exit float64) *BacktestOutput {
	out := NewBacktestOutput(2)
	out.Position[0] = side
	out.EntryPrice[0] = entry
	if side.IsLong() {
		out.Position[1] = ExitLong
	} else {
		out.Position[1] = ExitShort
	}
	out.EntryPrice[1] = entry
	out.ExitPrice[1] = exit
	return out
}

func TestBalanceRealizedLong(t *testing.T) {
	p := DefaultBacktestParams()
	out := realizedOutput(EnterLong, 100, 110)
	NewAccountant(&p, []float64{0, 0}, out).Step(1, 110)
	if out.Balance[1] != 11000 || out.Equity[1] != 11000 {
		t.Fatalf("balance/equity = %v/%v, want 11000", out.Balance[1], out.Equity[1])
	}
	if out.Drawdown[1] != 0 {
		t.Fatalf("drawdown = %v, want 0", out.Drawdown[1])
	}
}

func TestBalanceRealizedShort(t *testing.T) {
	p := DefaultBacktestParams()
	out := realizedOutput(HoldShort, 100, 90)
	NewAccountant(&p, []float64{0, 0}, out).Step(1, 90)
	if math.Abs(out.Balance[1]-11000) > 1e-9 {
		t.Fatalf("balance = %v, want 11000", out.Balance[1])
	}
}

func TestBalanceCosts(t *testing.T) {
	p := DefaultBacktestParams()
	p.CommissionPct = 0.001
	p.CommissionFixed = 1
	p.SlippagePct = 0.0005
	p.SlippageATR = 2
	out := realizedOutput(EnterLong, 100, 110)
	NewAccountant(&p, []float64{3, 3}, out).Step(1, 110)

	// 2*3 atr slippage + 5 pct slippage + 20 commission + 2 fixed
	if want := 11000.0 - 33; math.Abs(out.Balance[1]-want) > 1e-9 {
		t.Fatalf("balance = %v, want %v", out.Balance[1], want)
	}
}

func TestCostModelTerms(t *testing.T) {
	m := CostModel{CommissionPct: 0.01}
	if got := m.Total(1000, 5, 1); got != 20 {
		t.Fatalf("commission only = %v, want 20", got)
	}
	if got := (CostModel{SlippageATR: -1, CommissionFixed: -3}).Total(1000, 5, 1); got != 0 {
		t.Fatalf("non-positive rates must not charge, got %v", got)
	}
}

func TestBalanceZeroPositionSize(t *testing.T) {
	p := DefaultBacktestParams()
	p.PositionSize = 0
	out := realizedOutput(EnterLong, 100, 50)
	NewAccountant(&p, []float64{0, 0}, out).Step(1, 50)
	if out.Balance[1] != 10000 || out.Equity[1] != 10000 || out.Drawdown[1] != 0 {
		t.Fatalf("position_size 0 must not move money: %v/%v/%v", out.Balance[1], out.Equity[1], out.Drawdown[1])
	}
}

func TestEquityMarksOpenPosition(t *testing.T) {
	p := DefaultBacktestParams()
	out := NewBacktestOutput(3)
	out.Position[1], out.Position[2] = EnterLong, HoldLong
	out.EntryPrice[1], out.EntryPrice[2] = 100, 100
	a := NewAccountant(&p, make([]float64, 3), out)
	a.Step(1, 105)
	a.Step(2, 95)

	if out.Balance[1] != 10000 || out.Equity[1] != 10500 {
		t.Fatalf("bar 1 balance/equity = %v/%v", out.Balance[1], out.Equity[1])
	}
	if out.Balance[2] != 10000 || out.Equity[2] != 9500 {
		t.Fatalf("bar 2 balance/equity = %v/%v", out.Balance[2], out.Equity[2])
	}
	if want := 1000.0 / 10500; math.Abs(out.Drawdown[2]-want) > 1e-12 {
		t.Fatalf("drawdown = %v, want %v", out.Drawdown[2], want)
	}
}
