package indicators

import (
	"fmt"
	"sort"
)

type MAParams struct {
	Enable bool
	Period int
}

type BBandsParams struct {
	Enable  bool
	Period  int
	StdMult float64
}

type PSARParams struct {
	Enable bool
	AF0    float64
	AFStep float64
	MaxAF  float64
}

// Params selects and configures the indicators computed on one timeframe.
type Params struct {
	SMA    MAParams
	SMA2   MAParams
	EMA    MAParams
	EMA2   MAParams
	BBands BBandsParams
	RSI    MAParams
	ATR    MAParams
	PSAR   PSARParams
}

// DefaultParams has every indicator disabled with conventional periods.
func DefaultParams() Params {
	ma := MAParams{Period: 14}
	return Params{
		SMA:    ma,
		SMA2:   ma,
		EMA:    ma,
		EMA2:   ma,
		BBands: BBandsParams{Period: 14, StdMult: 2.0},
		RSI:    ma,
		ATR:    ma,
		PSAR:   PSARParams{AF0: 0.02, AFStep: 0.02, MaxAF: 0.2},
	}
}

type paramSetter func(p *Params, v float64)

func flag(v float64) bool { return v != 0 }

var paramKeys = map[string]paramSetter{
	"sma_enable":      func(p *Params, v float64) { p.SMA.Enable = flag(v) },
	"sma_period":      func(p *Params, v float64) { p.SMA.Period = int(v) },
	"sma2_enable":     func(p *Params, v float64) { p.SMA2.Enable = flag(v) },
	"sma2_period":     func(p *Params, v float64) { p.SMA2.Period = int(v) },
	"ema_enable":      func(p *Params, v float64) { p.EMA.Enable = flag(v) },
	"ema_period":      func(p *Params, v float64) { p.EMA.Period = int(v) },
	"ema2_enable":     func(p *Params, v float64) { p.EMA2.Enable = flag(v) },
	"ema2_period":     func(p *Params, v float64) { p.EMA2.Period = int(v) },
	"bbands_enable":   func(p *Params, v float64) { p.BBands.Enable = flag(v) },
	"bbands_period":   func(p *Params, v float64) { p.BBands.Period = int(v) },
	"bbands_std_mult": func(p *Params, v float64) { p.BBands.StdMult = v },
	"rsi_enable":      func(p *Params, v float64) { p.RSI.Enable = flag(v) },
	"rsi_period":      func(p *Params, v float64) { p.RSI.Period = int(v) },
	"atr_enable":      func(p *Params, v float64) { p.ATR.Enable = flag(v) },
	"atr_period":      func(p *Params, v float64) { p.ATR.Period = int(v) },
	"psar_enable":     func(p *Params, v float64) { p.PSAR.Enable = flag(v) },
	"psar_af0":        func(p *Params, v float64) { p.PSAR.AF0 = v },
	"psar_af_step":    func(p *Params, v float64) { p.PSAR.AFStep = v },
	"psar_max_af":     func(p *Params, v float64) { p.PSAR.MaxAF = v },
}

// Keys lists the accepted parameter keys in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(paramKeys))
	for k := range paramKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ParamsFromMap overlays m on DefaultParams. Unknown keys are rejected.
func ParamsFromMap(m map[string]float64) (Params, error) {
	p := DefaultParams()
	for k, v := range m {
		set, ok := paramKeys[k]
		if !ok {
			return p, fmt.Errorf("unknown indicator parameter %q", k)
		}
		set(&p, v)
	}
	return p, nil
}

// WarmupBars is the number of leading bars for which at least one enabled
// indicator is still undefined.
func (p Params) WarmupBars() int {
	warmups := []int{}
	for _, ma := range []MAParams{p.SMA, p.SMA2, p.EMA, p.EMA2} {
		if ma.Enable {
			warmups = append(warmups, ma.Period-1)
		}
	}
	if p.BBands.Enable {
		warmups = append(warmups, p.BBands.Period-1)
	}
	if p.RSI.Enable {
		warmups = append(warmups, p.RSI.Period)
	}
	if p.ATR.Enable {
		warmups = append(warmups, p.ATR.Period)
	}
	if p.PSAR.Enable {
		warmups = append(warmups, 1)
	}

	max := 0
	for _, w := range warmups {
		if w > max {
			max = w
		}
	}
	return max
}
