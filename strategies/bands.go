package strategies

import "math"

func init() {
	register(Strategy{
		ID:          SignalBBandsReversion,
		Name:        "bbands_reversion",
		Timeframes:  1,
		Fn:          bbandsReversion,
		Description: "enter outside the bands, exit at the middle band",
	})
	register(Strategy{
		ID:          SignalBBandsReversionMTF,
		Name:        "bbands_reversion_mtf",
		Timeframes:  2,
		Fn:          bbandsReversionMTF,
		Description: "bbands_reversion, requires an aligned higher timeframe",
	})
	register(Strategy{
		ID:          SignalBBandsMTFTrend,
		Name:        "bbands_mtf_trend",
		Timeframes:  2,
		Fn:          bbandsMTFTrend,
		Description: "bbands_reversion filtered by the higher-timeframe sma",
	})
}

func requireBands(name string, upper, mid, lower []float64) error {
	for _, col := range [][]float64{upper, mid, lower} {
		if err := require(name, col); err != nil {
			return err
		}
	}
	return nil
}

func bbandsReversion(in Input, out *SignalOutput) error {
	bars, ind := in.base()
	if err := requireBands("bbands", ind.BBUpper, ind.BBMid, ind.BBLower); err != nil {
		return err
	}

	for i, c := range bars.Close {
		out.EnterLong[i] = c < ind.BBLower[i]
		out.ExitLong[i] = c > ind.BBMid[i]
		out.EnterShort[i] = c > ind.BBUpper[i]
		out.ExitShort[i] = c < ind.BBMid[i]
	}
	return nil
}

func bbandsReversionMTF(in Input, out *SignalOutput) error {
	if _, _, err := in.higher(1); err != nil {
		return err
	}
	return bbandsReversion(in, out)
}

func bbandsMTFTrend(in Input, out *SignalOutput) error {
	bars, ind := in.base()
	if err := requireBands("bbands", ind.BBUpper, ind.BBMid, ind.BBLower); err != nil {
		return err
	}
	htf, idx, err := in.higher(1)
	if err != nil {
		return err
	}
	if err := require("sma (timeframe 1)", htf.SMA); err != nil {
		return err
	}

	for i, c := range bars.Close {
		trend := math.NaN()
		if j := idx[i]; j >= 0 {
			trend = htf.SMA[j]
		}
		mid := ind.BBMid[i]
		out.EnterLong[i] = c < ind.BBLower[i] && trend > mid
		out.ExitLong[i] = c > mid
		out.EnterShort[i] = c > ind.BBUpper[i] && trend < mid
		out.ExitShort[i] = c < mid
	}
	return nil
}
