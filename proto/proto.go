// Package proto holds the wire types of the sweep API. Prices and money
// travel as fixed-precision decimal strings; non-finite values are spelled
// out ("NaN", "+Inf", "-Inf") because JSON numbers cannot carry them.
package proto

import (
	"math"

	"github.com/shopspring/decimal"
)

// PricePlaces is the precision of every decimal string produced here.
const PricePlaces int32 = 8

// Decimal formats v for the wire.
func Decimal(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	}
	return decimal.NewFromFloat(v).Round(PricePlaces).String()
}

// ParseDecimal is the inverse of Decimal.
func ParseDecimal(s string) (float64, error) {
	switch s {
	case "NaN":
		return math.NaN(), nil
	case "+Inf":
		return math.Inf(1), nil
	case "-Inf":
		return math.Inf(-1), nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	f, _ := d.Float64()
	return f, nil
}

type SweepRequest struct {
	Symbol     string   `json:"symbol"`
	Timeframes []string `json:"timeframes"`
	StartTime  int64    `json:"start_time"`
	EndTime    int64    `json:"end_time"`
	SmoothMode string   `json:"smooth_mode,omitempty"`
	Mode       string   `json:"mode,omitempty"`

	// Grid expands to the cartesian product of its value lists. Indicators
	// holds one key map per timeframe.
	Grid ParamGrid `json:"grid"`
}

type ParamGrid struct {
	Indicators []map[string][]float64 `json:"indicators"`
	Backtest   map[string][]float64   `json:"backtest"`
}

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type SweepResponse struct {
	JobID        string    `json:"job_id"`
	Status       JobStatus `json:"status"`
	Combinations int       `json:"combinations"`
	Error        *Error    `json:"error,omitempty"`
}

// PerformanceRow is the summary of one combination. Metrics are keyed by
// the performance output names.
type PerformanceRow struct {
	Combination int               `json:"combination"`
	Valid       bool              `json:"valid"`
	Error       string            `json:"error,omitempty"`
	Metrics     map[string]string `json:"metrics"`
}

type TradeRecord struct {
	Side       string `json:"side"`
	EntryTime  int64  `json:"entry_time"`
	ExitTime   int64  `json:"exit_time"`
	EntryPrice string `json:"entry_price"`
	ExitPrice  string `json:"exit_price"`
	Profit     string `json:"profit"`
	Reason     string `json:"reason"`
}

type EquityPoint struct {
	Timestamp int64  `json:"timestamp"`
	Position  int32  `json:"position"`
	Equity    string `json:"equity"`
	Balance   string `json:"balance"`
	Drawdown  string `json:"drawdown"`
}

type RunManifest struct {
	JobID         string `json:"job_id"`
	EngineVersion string `json:"engine_version"`
	ConfigHash    string `json:"config_hash"`
	DataChecksum  string `json:"data_checksum"`
	Combinations  int    `json:"combinations"`
	Bars          int    `json:"bars"`
	CreatedAt     int64  `json:"created_at"`
}

type SweepResult struct {
	JobID           string           `json:"job_id"`
	Status          JobStatus        `json:"status"`
	ExecutionTimeMs int64            `json:"execution_time_ms"`
	Rows            []PerformanceRow `json:"rows,omitempty"`
	Manifest        *RunManifest     `json:"manifest,omitempty"`
	Error           *Error           `json:"error,omitempty"`
}

// CombinationDetail carries the per-bar view of a single combination run in
// full mode.
type CombinationDetail struct {
	JobID       string        `json:"job_id"`
	Combination int           `json:"combination"`
	Trades      []TradeRecord `json:"trades"`
	EquityCurve []EquityPoint `json:"equity_curve"`
}
