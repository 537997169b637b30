package engine

import (
	"fmt"
	"math"
	"sort"

	"backtest-sweep/strategies"
)

// BacktestParams configures the simulation of one combination. Enable flags
// switch individual exit rules on; levels are fractions (0.02 = 2%) or ATR
// multiples.
type BacktestParams struct {
	SignalSelect strategies.SignalID

	InitMoney        float64
	CloseForReversal bool // check exits on close instead of low/high

	PctSL        float64
	PctSLEnable  bool
	PctTP        float64
	PctTPEnable  bool
	PctTSL       float64
	PctTSLEnable bool

	ATRPeriod        int
	ATRSLMultiplier  float64
	ATRTPMultiplier  float64
	ATRTSLMultiplier float64
	ATRSLEnable      bool
	ATRTPEnable      bool
	ATRTSLEnable     bool

	PSAREnable bool
	PSARAF0    float64
	PSARAFStep float64
	PSARMaxAF  float64

	CommissionPct   float64
	CommissionFixed float64
	SlippageATR     float64
	SlippagePct     float64

	// PositionSize is the fraction of balance committed per trade; values
	// above 1 act as leverage.
	PositionSize float64

	// AnnualizationFactor is bars per year. Zero means derive it from the
	// base timeframe.
	AnnualizationFactor float64
}

func DefaultBacktestParams() BacktestParams {
	return BacktestParams{
		SignalSelect:     strategies.SignalSMACross,
		InitMoney:        10000,
		CloseForReversal: true,
		ATRPeriod:        14,
		ATRSLMultiplier:  2,
		ATRTPMultiplier:  2,
		ATRTSLMultiplier: 2,
		PSARAF0:          0.02,
		PSARAFStep:       0.02,
		PSARMaxAF:        0.2,
		PositionSize:     1,
	}
}

type backtestSetter func(p *BacktestParams, v float64)

func enabled(v float64) bool { return v != 0 }

var backtestKeys = map[string]backtestSetter{
	"signal_select":        func(p *BacktestParams, v float64) { p.SignalSelect = strategies.SignalID(v) },
	"init_money":           func(p *BacktestParams, v float64) { p.InitMoney = v },
	"close_for_reversal":   func(p *BacktestParams, v float64) { p.CloseForReversal = v > 0 },
	"pct_sl":               func(p *BacktestParams, v float64) { p.PctSL = v },
	"pct_sl_enable":        func(p *BacktestParams, v float64) { p.PctSLEnable = enabled(v) },
	"pct_tp":               func(p *BacktestParams, v float64) { p.PctTP = v },
	"pct_tp_enable":        func(p *BacktestParams, v float64) { p.PctTPEnable = enabled(v) },
	"pct_tsl":              func(p *BacktestParams, v float64) { p.PctTSL = v },
	"pct_tsl_enable":       func(p *BacktestParams, v float64) { p.PctTSLEnable = enabled(v) },
	"atr_period":           func(p *BacktestParams, v float64) { p.ATRPeriod = int(v) },
	"atr_sl_multiplier":    func(p *BacktestParams, v float64) { p.ATRSLMultiplier = v },
	"atr_tp_multiplier":    func(p *BacktestParams, v float64) { p.ATRTPMultiplier = v },
	"atr_tsl_multiplier":   func(p *BacktestParams, v float64) { p.ATRTSLMultiplier = v },
	"atr_sl_enable":        func(p *BacktestParams, v float64) { p.ATRSLEnable = enabled(v) },
	"atr_tp_enable":        func(p *BacktestParams, v float64) { p.ATRTPEnable = enabled(v) },
	"atr_tsl_enable":       func(p *BacktestParams, v float64) { p.ATRTSLEnable = enabled(v) },
	"psar_enable":          func(p *BacktestParams, v float64) { p.PSAREnable = enabled(v) },
	"psar_af0":             func(p *BacktestParams, v float64) { p.PSARAF0 = v },
	"psar_af_step":         func(p *BacktestParams, v float64) { p.PSARAFStep = v },
	"psar_max_af":          func(p *BacktestParams, v float64) { p.PSARMaxAF = v },
	"commission_pct":       func(p *BacktestParams, v float64) { p.CommissionPct = v },
	"commission_fixed":     func(p *BacktestParams, v float64) { p.CommissionFixed = v },
	"slippage_atr":         func(p *BacktestParams, v float64) { p.SlippageATR = v },
	"slippage_pct":         func(p *BacktestParams, v float64) { p.SlippagePct = v },
	"position_size":        func(p *BacktestParams, v float64) { p.PositionSize = v },
	"annualization_factor": func(p *BacktestParams, v float64) { p.AnnualizationFactor = v },
}

// BacktestKeys lists the accepted parameter keys in sorted order.
func BacktestKeys() []string {
	keys := make([]string, 0, len(backtestKeys))
	for k := range backtestKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// BacktestParamsFromMap overlays m on DefaultBacktestParams and validates
// the result. Unknown keys are rejected.
func BacktestParamsFromMap(m map[string]float64) (BacktestParams, error) {
	p := DefaultBacktestParams()
	for k, v := range m {
		set, ok := backtestKeys[k]
		if !ok {
			return p, ValidationError{Msg: fmt.Sprintf("unknown backtest parameter %q", k)}
		}
		set(&p, v)
	}
	return p, p.Validate()
}

// Validate rejects values no simulation can use.
func (p BacktestParams) Validate() error {
	checks := []struct {
		bad bool
		msg string
	}{
		{!finite(p.InitMoney) || p.InitMoney <= 0, "init_money must be positive"},
		{p.ATRPeriod <= 0, "atr_period must be positive"},
		{p.PctSL < 0 || p.PctTP < 0 || p.PctTSL < 0, "percentage levels must not be negative"},
		{p.PSARAF0 < 0 || p.PSARAFStep < 0 || p.PSARMaxAF < p.PSARAF0, "psar factors must satisfy 0 <= af0 <= max_af"},
		{p.CommissionPct < 0 || p.CommissionFixed < 0 || p.SlippageATR < 0 || p.SlippagePct < 0, "costs must not be negative"},
		{!finite(p.PositionSize, p.PctSL, p.PctTP, p.PctTSL, p.ATRSLMultiplier, p.ATRTPMultiplier, p.ATRTSLMultiplier,
			p.PSARAF0, p.PSARAFStep, p.PSARMaxAF, p.CommissionPct, p.CommissionFixed, p.SlippageATR, p.SlippagePct,
			p.AnnualizationFactor), "parameters must be finite numbers"},
		{p.AnnualizationFactor < 0, "annualization_factor must not be negative"},
	}
	for _, c := range checks {
		if c.bad {
			return ValidationError{Msg: c.msg}
		}
	}
	return nil
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
