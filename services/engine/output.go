package engine

import (
	"math"

	"backtest-sweep/services/indicators"
	"backtest-sweep/strategies"
)

// BacktestOutput is the per-bar state of one simulation.
type BacktestOutput struct {
	Position   []Position
	EntryPrice []float64
	ExitPrice  []float64
	Equity     []float64
	Balance    []float64
	Drawdown   []float64

	// exit levels and PSAR working state
	PctSL        []float64
	PctTP        []float64
	PctTSL       []float64
	ATRSL        []float64
	ATRTP        []float64
	ATRTSL       []float64
	PSARIsLong   []float64
	PSARCurrent  []float64
	PSAREP       []float64
	PSARAF       []float64
	PSARReversal []float64

	// ExitReason is the exit rule that fired on a bar, ExitNone otherwise.
	ExitReason []ExitReason
}

func nanSlice(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}

// NewBacktestOutput allocates n bars. Positions start flat, flags at zero
// and every price or money column at NaN.
func NewBacktestOutput(n int) *BacktestOutput {
	return &BacktestOutput{
		Position:     make([]Position, n),
		EntryPrice:   nanSlice(n),
		ExitPrice:    nanSlice(n),
		Equity:       nanSlice(n),
		Balance:      nanSlice(n),
		Drawdown:     nanSlice(n),
		PctSL:        nanSlice(n),
		PctTP:        nanSlice(n),
		PctTSL:       nanSlice(n),
		ATRSL:        nanSlice(n),
		ATRTP:        nanSlice(n),
		ATRTSL:       nanSlice(n),
		PSARIsLong:   make([]float64, n),
		PSARCurrent:  nanSlice(n),
		PSAREP:       nanSlice(n),
		PSARAF:       nanSlice(n),
		PSARReversal: make([]float64, n),
		ExitReason:   make([]ExitReason, n),
	}
}

func (o *BacktestOutput) Len() int { return len(o.Position) }

// Columns exposes the output under its column names. Position is widened to
// float64 so every column shares a type.
func (o *BacktestOutput) Columns() map[string][]float64 {
	pos := make([]float64, len(o.Position))
	for i, p := range o.Position {
		pos[i] = float64(p)
	}
	return map[string][]float64{
		"position":      pos,
		"entry_price":   o.EntryPrice,
		"exit_price":    o.ExitPrice,
		"equity":        o.Equity,
		"balance":       o.Balance,
		"drawdown":      o.Drawdown,
		"pct_sl":        o.PctSL,
		"pct_tp":        o.PctTP,
		"pct_tsl":       o.PctTSL,
		"atr_sl":        o.ATRSL,
		"atr_tp":        o.ATRTP,
		"atr_tsl":       o.ATRTSL,
		"psar_is_long":  o.PSARIsLong,
		"psar_current":  o.PSARCurrent,
		"psar_ep":       o.PSAREP,
		"psar_af":       o.PSARAF,
		"psar_reversal": o.PSARReversal,
	}
}

// PerformanceOutput holds the scalar summary of one simulation.
type PerformanceOutput struct {
	SharpeRatio       float64
	CalmarRatio       float64
	SortinoRatio      float64
	WinRate           float64
	ProfitLossRatio   float64
	LongestNoPosition float64
	TotalProfitPct    float64
	MaxBalance        float64
	MaxDrawdown       float64
	TradeCount        float64
}

// NewPerformanceOutput is the value an invalid combination reports.
func NewPerformanceOutput() PerformanceOutput {
	nan := math.NaN()
	return PerformanceOutput{
		SharpeRatio:       nan,
		CalmarRatio:       nan,
		SortinoRatio:      nan,
		WinRate:           nan,
		ProfitLossRatio:   nan,
		LongestNoPosition: nan,
		TotalProfitPct:    nan,
		MaxBalance:        nan,
		MaxDrawdown:       nan,
		TradeCount:        nan,
	}
}

// PerformanceKeys is the column order used by every tabular export.
var PerformanceKeys = []string{
	"sharpe_ratio",
	"calmar_ratio",
	"sortino_ratio",
	"win_rate",
	"profit_loss_ratio",
	"longest_no_position",
	"total_profit_pct",
	"max_balance",
	"max_drawdown",
	"trade_count",
}

// Values returns the scalars in PerformanceKeys order.
func (p PerformanceOutput) Values() []float64 {
	return []float64{
		p.SharpeRatio,
		p.CalmarRatio,
		p.SortinoRatio,
		p.WinRate,
		p.ProfitLossRatio,
		p.LongestNoPosition,
		p.TotalProfitPct,
		p.MaxBalance,
		p.MaxDrawdown,
		p.TradeCount,
	}
}

func (p PerformanceOutput) Map() map[string]float64 {
	m := make(map[string]float64, len(PerformanceKeys))
	for i, v := range p.Values() {
		m[PerformanceKeys[i]] = v
	}
	return m
}

// Result is everything produced for one combination. In performance-only
// mode Indicators, Signals and Backtest are dropped after aggregation.
type Result struct {
	ID          int
	Indicators  []indicators.Output
	Signals     strategies.SignalOutput
	Backtest    *BacktestOutput
	Performance PerformanceOutput
	Events      *EventLog
	Valid       bool
	Err         error
}
