package patterns

import (
	"context"
	"math"
)

// EarlyParabolic detects the early stage of a parabolic move: price
// acceleration picking up alongside volume trend change, MACD divergence
// improvement and volatility expansion.
type EarlyParabolic struct {
	detector
}

func NewEarlyParabolic(data MarketData) *EarlyParabolic {
	p := &EarlyParabolic{detector: detector{
		name:        "EarlyParabolicPattern",
		patternType: "breakout",
		description: "Early Parabolic Setup with acceleration signals",
		data:        data,
	}}
	p.criteria = []Criterion{
		NewCriterion("acceleration_change", 0.3, p.evalAccelerationChange),
		NewCriterion("volume_trend_change", 0.25, p.evalVolumeTrendChange),
		NewCriterion("momentum_divergence", 0.25, p.evalMomentumDivergence),
		NewCriterion("volatility_expansion", 0.2, p.evalVolatilityExpansion),
	}
	return p
}

func (p *EarlyParabolic) Evaluate(ctx context.Context, ticker string) Result {
	if !p.validate(ctx, ticker) {
		return p.defaultResult()
	}
	score, scores := p.scoreCriteria(ctx, ticker)
	if score < SurfaceThreshold {
		return p.defaultResult()
	}
	price, _ := p.data.Price(ctx, ticker)
	return p.result(score, scores, price, price*1.04, price*0.975)
}

func (p *EarlyParabolic) evalAccelerationChange(ctx context.Context, ticker string) float64 {
	const threshold = 1.5
	cs := closes(p.data.Candles(ctx, ticker, 11))
	n := len(cs)
	if n < 11 {
		return 0
	}

	accel := func(shortROC, longROC float64) float64 {
		if longROC == 0 {
			return 0
		}
		return shortROC / (longROC / 5)
	}
	recentAccel := accel(cs[n-1]/cs[n-2]*100, cs[n-1]/cs[n-6]*100)
	prevAccel := accel(cs[n-6]/cs[n-7]*100, cs[n-6]/cs[n-11]*100)
	if prevAccel == 0 {
		return 0
	}
	return min1(recentAccel / prevAccel / threshold)
}

func (p *EarlyParabolic) evalVolumeTrendChange(ctx context.Context, ticker string) float64 {
	const threshold = 1.8
	vs := volumes(p.data.Candles(ctx, ticker, 10))
	n := len(vs)
	if n < 10 {
		return 0
	}
	var recentAvg, prevAvg float64
	for _, v := range vs[n-5:] {
		recentAvg += v / 5
	}
	for _, v := range vs[n-10 : n-5] {
		prevAvg += v / 5
	}
	if prevAvg <= 0 {
		return 0
	}
	return min1(recentAvg / prevAvg / threshold)
}

func (p *EarlyParabolic) evalMomentumDivergence(ctx context.Context, ticker string) float64 {
	macds := p.data.IndicatorSeries(ctx, ticker, "MACD", 2)
	signals := p.data.IndicatorSeries(ctx, ticker, "MACD_signal", 2)
	if len(macds) < 2 || len(signals) < 2 {
		return 0
	}
	if macds[0] == 0 || signals[0] == 0 {
		return 0
	}

	currentDiv := macds[1] - signals[1]
	prevDiv := macds[0] - signals[0]
	if currentDiv > 0 && currentDiv > prevDiv {
		return clamp01(currentDiv / (prevDiv + 0.0001))
	}
	return 0
}

func (p *EarlyParabolic) evalVolatilityExpansion(ctx context.Context, ticker string) float64 {
	const threshold = 1.5
	cs := closes(p.data.Candles(ctx, ticker, 11))
	n := len(cs)
	if n < 11 {
		return 0
	}

	returns := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		if cs[i-1] == 0 {
			return 0
		}
		returns = append(returns, (cs[i]-cs[i-1])/cs[i-1]*100)
	}
	rms := func(rs []float64) float64 {
		var sum float64
		for _, r := range rs {
			sum += r * r
		}
		return math.Sqrt(sum / float64(len(rs)))
	}
	recentVol := rms(returns[len(returns)-5:])
	prevVol := rms(returns[len(returns)-10 : len(returns)-5])
	if prevVol <= 0 {
		return 0
	}
	return min1(recentVol / prevVol / threshold)
}

// MomentumBreakout detects a breakout backed by order-book pressure,
// stochastic momentum, volume confirmation and prior consolidation.
type MomentumBreakout struct {
	detector
}

func NewMomentumBreakout(data MarketData) *MomentumBreakout {
	p := &MomentumBreakout{detector: detector{
		name:        "MomentumBreakoutPattern",
		patternType: "breakout",
		description: "Strong momentum breakout with Level 2 confirmation",
		data:        data,
	}}
	p.criteria = []Criterion{
		NewCriterion("level2_pressure", 0.35, p.evalLevel2Pressure),
		NewCriterion("stoch_rsi_momentum", 0.25, p.evalStochRSIMomentum),
		NewCriterion("volume_confirmation", 0.25, p.evalVolumeConfirmation),
		NewCriterion("price_consolidation", 0.15, p.evalPriceConsolidation),
	}
	return p
}

func (p *MomentumBreakout) Evaluate(ctx context.Context, ticker string) Result {
	if !p.validate(ctx, ticker) {
		return p.defaultResult()
	}
	score, scores := p.scoreCriteria(ctx, ticker)
	if score < SurfaceThreshold {
		return p.defaultResult()
	}

	price, _ := p.data.Price(ctx, ticker)
	target := price * 1.03
	stop := price * 0.985
	levels := p.data.KeyLevels(ctx, ticker)
	if r := nearestResistanceAbove(levels, price*1.01); r > 0 {
		target = r
	}
	if s := nearestSupportBelow(levels, price*0.99); s > 0 {
		stop = s
	}
	return p.result(score, scores, price, target, stop)
}

func (p *MomentumBreakout) evalLevel2Pressure(ctx context.Context, ticker string) float64 {
	ob, ok := p.data.Orderbook(ctx, ticker)
	if !ok {
		return 0
	}
	var bidVolume, askVolume float64
	for _, b := range ob.Bids {
		bidVolume += b.Volume
	}
	for _, a := range ob.Asks {
		askVolume += a.Volume
	}
	if askVolume == 0 {
		return 1
	}
	ratio := bidVolume / askVolume

	var wallStrength float64
	if len(ob.Bids) > 0 {
		avgBidSize := bidVolume / float64(len(ob.Bids))
		largeBids := 0
		for _, b := range ob.Bids {
			if b.Volume > avgBidSize*3 {
				largeBids++
			}
		}
		wallStrength = min1(float64(largeBids) / 5)
	}
	return min1(ratio*0.6 + wallStrength*0.4)
}

func (p *MomentumBreakout) evalStochRSIMomentum(ctx context.Context, ticker string) float64 {
	ks := p.data.IndicatorSeries(ctx, ticker, "StochRSI_K", 2)
	if len(ks) < 2 {
		return 0
	}
	prev, cur := ks[0], ks[1]

	var momentum float64
	if prev > 0 {
		momentum = (cur - prev) / prev
	}
	if prev < 20 && cur > 20 {
		return min1(0.7 + momentum*0.3)
	}
	return math.Max(0, momentum)
}

func (p *MomentumBreakout) evalVolumeConfirmation(ctx context.Context, ticker string) float64 {
	const threshold = 1.5
	var volumeScore float64
	if vr, ok := p.data.Indicator(ctx, ticker, "Volume_Ratio"); ok {
		volumeScore = vr / threshold
	}

	vs := volumes(p.data.Candles(ctx, ticker, 5))
	var trendScore float64
	if len(vs) > 1 {
		increasing := 0
		for i := 1; i < len(vs); i++ {
			if vs[i] > vs[i-1] {
				increasing++
			}
		}
		trendScore = float64(increasing) / 4
	}
	return min1(volumeScore*0.7 + trendScore*0.3)
}

func (p *MomentumBreakout) evalPriceConsolidation(ctx context.Context, ticker string) float64 {
	const duration = 3
	cs := closes(p.data.Candles(ctx, ticker, duration))
	if len(cs) < duration {
		return 0
	}
	var avg float64
	for _, c := range cs {
		avg += c / float64(len(cs))
	}
	var maxDeviation float64
	for _, c := range cs {
		if dev := math.Abs(c-avg) / avg; dev > maxDeviation {
			maxDeviation = dev
		}
	}
	if maxDeviation < 0.005 {
		return 1
	}
	return math.Max(0, 1-maxDeviation/0.01)
}
