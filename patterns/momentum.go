package patterns

import (
	"context"
	"math"
)

// VWAPBounce detects price reclaiming VWAP on increasing volume with an
// oversold oscillator and accumulation in the order book.
type VWAPBounce struct {
	detector
}

func NewVWAPBounce(data MarketData) *VWAPBounce {
	p := &VWAPBounce{detector: detector{
		name:        "VWAPBouncePattern",
		patternType: "momentum",
		description: "VWAP Bounce setup with volume confirmation",
		data:        data,
	}}
	p.criteria = []Criterion{
		NewCriterion("price_touch", 0.3, p.evalPriceTouch),
		NewCriterion("volume_profile", 0.25, p.evalVolumeProfile),
		NewCriterion("oscillator", 0.2, p.evalOscillator),
		NewCriterion("order_flow", 0.25, p.evalOrderFlow),
	}
	return p
}

func (p *VWAPBounce) Evaluate(ctx context.Context, ticker string) Result {
	if !p.validate(ctx, ticker) {
		return p.defaultResult()
	}
	score, scores := p.scoreCriteria(ctx, ticker)
	if score < SurfaceThreshold {
		return p.defaultResult()
	}
	price, _ := p.data.Price(ctx, ticker)
	return p.result(score, scores, price, price*1.02, price*0.995)
}

func (p *VWAPBounce) evalPriceTouch(ctx context.Context, ticker string) float64 {
	price, _ := p.data.Price(ctx, ticker)
	vwap, ok := p.data.Indicator(ctx, ticker, "VWAP")
	if !ok || vwap == 0 {
		return 0
	}
	distance := math.Abs(price-vwap) / vwap
	if distance <= 0.003 {
		return 1
	}
	return math.Max(0, 1-distance/0.01)
}

func (p *VWAPBounce) evalVolumeProfile(ctx context.Context, ticker string) float64 {
	vs := volumes(p.data.Candles(ctx, ticker, 5))
	if len(vs) < 5 {
		return 0
	}

	increasing := 0
	for i := 1; i < len(vs); i++ {
		if vs[i] > vs[i-1] {
			increasing++
		}
	}
	trendRatio := float64(increasing) / float64(len(vs)-1)
	trendScore := 0.5
	switch {
	case trendRatio > 0.6:
		trendScore = 1.0
	case trendRatio < 0.4:
		trendScore = 0.2
	}

	var acceleration float64
	half := len(vs) / 2
	var firstHalf, secondHalf float64
	for _, v := range vs[:half] {
		firstHalf += v
	}
	for _, v := range vs[half:] {
		secondHalf += v
	}
	if firstHalf > 0 {
		acceleration = secondHalf/firstHalf - 1
	}
	accelerationScore := clamp01(acceleration)

	ratio := 1.0
	if vr, ok := p.data.Indicator(ctx, ticker, "Volume_Ratio"); ok {
		ratio = vr
	}
	ratioScore := min1(ratio / 2)

	return trendScore*0.4 + accelerationScore*0.3 + ratioScore*0.3
}

func (p *VWAPBounce) evalOscillator(ctx context.Context, ticker string) float64 {
	stochRSI, ok := p.data.Indicator(ctx, ticker, "StochRSI_K")
	if !ok {
		return 0
	}
	if stochRSI <= 30 {
		return 1
	}
	return math.Max(0, 1-(stochRSI-30)/20)
}

func (p *VWAPBounce) evalOrderFlow(ctx context.Context, ticker string) float64 {
	ob, ok := p.data.Orderbook(ctx, ticker)
	if !ok {
		return 0
	}
	total := ob.BidVolume + ob.AskVolume
	if total == 0 {
		return 0
	}
	imbalance := (ob.BidVolume - ob.AskVolume) / total
	if imbalance > 0 {
		return min1(imbalance * 2)
	}
	return math.Max(0, 0.5+imbalance*0.5)
}

// ParabolicMove detects a fully developed parabolic move: stacked
// acceleration, a volume surge, an extreme oscillator and high velocity.
type ParabolicMove struct {
	detector
}

func NewParabolicMove(data MarketData) *ParabolicMove {
	p := &ParabolicMove{detector: detector{
		name:        "ParabolicMovePattern",
		patternType: "momentum",
		description: "Parabolic Move with strong momentum and volume",
		data:        data,
	}}
	p.criteria = []Criterion{
		NewCriterion("acceleration", 0.35, p.evalAcceleration),
		NewCriterion("volume_surge", 0.25, p.evalVolumeSurge),
		NewCriterion("momentum_extreme", 0.2, p.evalMomentumExtreme),
		NewCriterion("price_velocity", 0.2, p.evalPriceVelocity),
	}
	return p
}

func (p *ParabolicMove) Evaluate(ctx context.Context, ticker string) Result {
	if !p.validate(ctx, ticker) {
		return p.defaultResult()
	}
	score, scores := p.scoreCriteria(ctx, ticker)
	if score < SurfaceThreshold {
		return p.defaultResult()
	}
	price, _ := p.data.Price(ctx, ticker)
	// Wider target and stop: parabolic moves carry higher volatility.
	return p.result(score, scores, price, price*1.05, price*0.97)
}

func (p *ParabolicMove) evalAcceleration(ctx context.Context, ticker string) float64 {
	const threshold = 2.0
	cs := closes(p.data.Candles(ctx, ticker, 20))
	n := len(cs)
	if n < 20 {
		return 0
	}

	roc := func(periods int) float64 { return (cs[n-1]/cs[n-1-periods] - 1) * 100 }
	roc1, roc3, roc5, roc10 := roc(1), roc(3), roc(5), roc(10)

	accel := func(short, long float64, span float64) float64 {
		if long == 0 {
			return 0
		}
		return short / (long / span)
	}
	avgAccel := (accel(roc1, roc3, 3) + accel(roc3, roc5, 5) + accel(roc5, roc10, 10)) / 3
	return min1(avgAccel / threshold)
}

func (p *ParabolicMove) evalVolumeSurge(ctx context.Context, ticker string) float64 {
	const threshold = 2.5
	vr, ok := p.data.Indicator(ctx, ticker, "Volume_Ratio")
	if !ok {
		return 0
	}
	return min1(vr / threshold)
}

func (p *ParabolicMove) evalMomentumExtreme(ctx context.Context, ticker string) float64 {
	const threshold = 80.0
	stochRSI, ok := p.data.Indicator(ctx, ticker, "StochRSI_K")
	if !ok {
		return 0
	}
	if stochRSI > threshold {
		return min1((stochRSI - threshold) / (100 - threshold))
	}
	return 0
}

func (p *ParabolicMove) evalPriceVelocity(ctx context.Context, ticker string) float64 {
	const threshold = 3.0
	cs := closes(p.data.Candles(ctx, ticker, 10))
	n := len(cs)
	if n < 10 {
		return 0
	}
	velocity := (cs[n-1]/cs[n-5] - 1) * 100
	return min1(velocity / threshold)
}
