package indicators

// Output holds the indicator columns of one timeframe. Disabled indicators
// are nil.
type Output struct {
	SMA  []float64
	SMA2 []float64
	EMA  []float64
	EMA2 []float64

	BBUpper     []float64
	BBMid       []float64
	BBLower     []float64
	BBBandwidth []float64
	BBPercent   []float64

	RSI []float64
	ATR []float64

	PSARLong     []float64
	PSARShort    []float64
	PSARAF       []float64
	PSARReversal []float64
}

// Compute runs every enabled indicator of p over one bar series.
func Compute(high, low, close []float64, p Params) Output {
	var out Output
	if p.SMA.Enable {
		out.SMA = SMA(close, p.SMA.Period)
	}
	if p.SMA2.Enable {
		out.SMA2 = SMA(close, p.SMA2.Period)
	}
	if p.EMA.Enable {
		out.EMA = EMA(close, p.EMA.Period)
	}
	if p.EMA2.Enable {
		out.EMA2 = EMA(close, p.EMA2.Period)
	}
	if p.BBands.Enable {
		b := BBands(close, p.BBands.Period, p.BBands.StdMult)
		out.BBUpper, out.BBMid, out.BBLower = b.Upper, b.Mid, b.Lower
		out.BBBandwidth, out.BBPercent = b.Bandwidth, b.Percent
	}
	if p.RSI.Enable {
		out.RSI = RSI(close, p.RSI.Period)
	}
	if p.ATR.Enable {
		out.ATR = ATR(high, low, close, p.ATR.Period)
	}
	if p.PSAR.Enable {
		ps := PSAR(high, low, close, p.PSAR.AF0, p.PSAR.AFStep, p.PSAR.MaxAF)
		out.PSARLong, out.PSARShort = ps.Long, ps.Short
		out.PSARAF, out.PSARReversal = ps.AF, ps.Reversal
	}
	return out
}

// Columns returns the non-nil columns under their output keys.
func (o Output) Columns() map[string][]float64 {
	all := map[string][]float64{
		"sma":              o.SMA,
		"sma2":             o.SMA2,
		"ema":              o.EMA,
		"ema2":             o.EMA2,
		"bbands_upper":     o.BBUpper,
		"bbands_middle":    o.BBMid,
		"bbands_lower":     o.BBLower,
		"bbands_bandwidth": o.BBBandwidth,
		"bbands_percent":   o.BBPercent,
		"rsi":              o.RSI,
		"atr":              o.ATR,
		"psar_long":        o.PSARLong,
		"psar_short":       o.PSARShort,
		"psar_af":          o.PSARAF,
		"psar_reversal":    o.PSARReversal,
	}
	cols := make(map[string][]float64, len(all))
	for k, v := range all {
		if v != nil {
			cols[k] = v
		}
	}
	return cols
}
