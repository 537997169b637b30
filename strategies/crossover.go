package strategies

import "math"

func init() {
	register(Strategy{
		ID:          SignalSMACross,
		Name:        "sma_cross",
		Timeframes:  1,
		Fn:          smaCross,
		Description: "long while sma > sma2, short while sma < sma2",
	})
	register(Strategy{
		ID:          SignalEMAATR,
		Name:        "ema_atr",
		Timeframes:  1,
		Fn:          emaATR,
		Description: "ema/ema2 trend with a minimum atr-normalized candle body",
	})
}

func smaCross(in Input, out *SignalOutput) error {
	_, ind := in.base()
	if err := require("sma", ind.SMA); err != nil {
		return err
	}
	if err := require("sma2", ind.SMA2); err != nil {
		return err
	}

	for i := range out.EnterLong {
		fast, slow := ind.SMA[i], ind.SMA2[i]
		out.EnterLong[i] = fast > slow
		out.ExitLong[i] = fast < slow
		out.EnterShort[i] = fast < slow
		out.ExitShort[i] = fast > slow
	}
	return nil
}

// minBodyATR is the smallest candle body, in ATRs, that confirms an entry.
const minBodyATR = 0.25

func emaATR(in Input, out *SignalOutput) error {
	bars, ind := in.base()
	for name, col := range map[string][]float64{"ema": ind.EMA, "ema2": ind.EMA2, "atr": ind.ATR} {
		if err := require(name, col); err != nil {
			return err
		}
	}

	for i := range out.EnterLong {
		atr := ind.ATR[i]
		if math.IsNaN(atr) || atr <= 0 {
			continue
		}
		body := (bars.Close[i] - bars.Open[i]) / atr
		up := ind.EMA[i] > ind.EMA2[i]
		down := ind.EMA[i] < ind.EMA2[i]

		out.EnterLong[i] = up && body >= minBodyATR
		out.EnterShort[i] = down && body <= -minBodyATR
		out.ExitLong[i] = down
		out.ExitShort[i] = up
	}
	return nil
}
