package lifecycle

// Sell signal reasons.
const (
	SellBelowVWAPWeakTape  = "Below VWAP/EMA9 with Weak Tape"
	SellBearishTrend       = "Strong Bearish Trend Confirmation"
	SellVolumeExhaustion   = "Volume Exhaustion with Tape Rollover"
	SellWilliamsOverbought = "Williams %R Overbought with Structure Loss"
)

// SellContext carries the indicator and tape readings a sell decision is
// made from. Zero values for VWAP/EMA9 fall back to the price so a missing
// indicator never triggers a phantom breakdown.
type SellContext struct {
	Price          float64
	VWAP           float64
	EMA9           float64
	ADX            float64
	VolumeRatio    float64
	StochRSIK      float64
	WilliamsR      float64
	ROCPrime       float64 // first difference of the ROC series
	AggressorRatio float64 // buy volume share of recent tape, 0.5 = balanced
	UptickSeq      int     // consecutive buy-side ticks, newest first
}

// DetectSellSignal evaluates the conservative sell rules in priority order.
// Every rule requires tape confirmation so a single indicator reading cannot
// force an exit. Returns the triggering reason, or false when the position
// should be held.
func DetectSellSignal(c SellContext) (string, bool) {
	vwap := c.VWAP
	if vwap == 0 {
		vwap = c.Price
	}
	ema9 := c.EMA9
	if ema9 == 0 {
		ema9 = vwap
	}

	// Price below VWAP and EMA9 with weak momentum and a weak tape.
	if c.Price < vwap && c.Price < ema9 &&
		(c.StochRSIK < 40 || c.ROCPrime < 0) &&
		c.AggressorRatio <= 0.45 {
		return SellBelowVWAPWeakTape, true
	}

	// High ADX with declining price, only when the tape confirms weakness.
	if c.ADX > 35 && c.Price < minf(vwap, ema9) &&
		c.AggressorRatio <= 0.4 && c.ROCPrime < 0 && c.UptickSeq == 0 {
		return SellBearishTrend, true
	}

	// Volume exhaustion coupled with tape rollover and momentum loss.
	if c.VolumeRatio > 3.0 && c.StochRSIK > 80 &&
		c.AggressorRatio <= 0.5 && c.ROCPrime <= 0 {
		return SellVolumeExhaustion, true
	}

	// Williams %R overbought is not a sell by itself; require loss of
	// structure plus a weak tape or fading momentum.
	if c.WilliamsR >= -20 && c.ADX > 20 && c.Price < ema9 &&
		(c.AggressorRatio <= 0.45 || c.ROCPrime < 0) {
		return SellWilliamsOverbought, true
	}

	return "", false
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
