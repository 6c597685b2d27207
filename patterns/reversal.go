package patterns

import (
	"context"
	"math"
)

// DeadCatBounce detects a short-lived reversal after a decline: seller
// exhaustion, stochastic divergence, a reversal candle and a support test.
type DeadCatBounce struct {
	detector
}

func NewDeadCatBounce(data MarketData) *DeadCatBounce {
	p := &DeadCatBounce{detector: detector{
		name:        "DeadCatBouncePattern",
		patternType: "reversal",
		description: "Dead Cat Bounce reversal with exhaustion signals",
		data:        data,
	}}
	p.criteria = []Criterion{
		NewCriterion("seller_exhaustion", 0.3, p.evalSellerExhaustion),
		NewCriterion("stoch_rsi_divergence", 0.25, p.evalStochRSIDivergence),
		NewCriterion("candlestick_reversal", 0.25, p.evalCandlestickReversal),
		NewCriterion("support_test", 0.2, p.evalSupportTest),
	}
	return p
}

func (p *DeadCatBounce) Evaluate(ctx context.Context, ticker string) Result {
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

func (p *DeadCatBounce) evalSellerExhaustion(ctx context.Context, ticker string) float64 {
	candles := p.data.Candles(ctx, ticker, 5)
	if len(candles) < 5 {
		return 0
	}
	cs, vs := closes(candles), volumes(candles)

	decliningVolOnDown := 0
	for i := 1; i < 5; i++ {
		priceDown := cs[i] < cs[i-1]
		volumeDown := vs[i] < vs[i-1]
		if priceDown && volumeDown {
			decliningVolOnDown++
		}
	}

	var volumeScore float64
	if vr, ok := p.data.Indicator(ctx, ticker, "Volume_Ratio"); ok {
		volumeScore = min1(vr / 2)
	}
	return float64(decliningVolOnDown)/4*0.6 + volumeScore*0.4
}

func (p *DeadCatBounce) evalStochRSIDivergence(ctx context.Context, ticker string) float64 {
	stochRSI, ok := p.data.Indicator(ctx, ticker, "StochRSI_K")
	cs := closes(p.data.Candles(ctx, ticker, 2))
	if len(cs) < 2 {
		return 0
	}
	priceHigher := cs[1] > cs[0]
	stochRSILower := ok && stochRSI < 80
	if priceHigher && stochRSILower {
		return min1((80 - stochRSI) / 30)
	}
	return 0
}

func (p *DeadCatBounce) evalCandlestickReversal(ctx context.Context, ticker string) float64 {
	candles := p.data.Candles(ctx, ticker, 1)
	if len(candles) < 1 {
		return 0
	}
	c := candles[len(candles)-1]

	bodySize := math.Abs(c.Close - c.Open)
	lowerWick := math.Min(c.Open, c.Close) - c.Low
	upperWick := c.High - math.Max(c.Open, c.Close)

	isHammer := lowerWick > bodySize*2 && upperWick < bodySize*0.5
	isDoji := bodySize < (c.High-c.Low)*0.1

	switch {
	case isHammer:
		return 1.0
	case isDoji:
		return 0.8
	}
	return 0
}

func (p *DeadCatBounce) evalSupportTest(ctx context.Context, ticker string) float64 {
	price, _ := p.data.Price(ctx, ticker)
	var closest float64
	closestDist := math.Inf(1)
	for _, l := range p.data.KeyLevels(ctx, ticker) {
		if l.Type != "support" {
			continue
		}
		if d := math.Abs(l.Price - price); d < closestDist {
			closestDist = d
			closest = l.Price
		}
	}
	if closest == 0 || price == 0 {
		return 0
	}
	distance := math.Abs(price-closest) / price
	if distance < 0.003 {
		return 1
	}
	return math.Max(0, 1-distance/0.01)
}

// LiquidityGrab detects a scalp setup around hidden liquidity: outsized
// resting orders, an oscillator extreme, quick reversals and a volume spike.
type LiquidityGrab struct {
	detector
}

func NewLiquidityGrab(data MarketData) *LiquidityGrab {
	p := &LiquidityGrab{detector: detector{
		name:        "LiquidityGrabPattern",
		patternType: "reversal",
		description: "Liquidity Grab Scalp with hidden orders",
		data:        data,
	}}
	p.criteria = []Criterion{
		NewCriterion("hidden_orders", 0.35, p.evalHiddenOrders),
		NewCriterion("stoch_rsi_extreme", 0.25, p.evalStochRSIExtreme),
		NewCriterion("quick_reversal", 0.25, p.evalQuickReversal),
		NewCriterion("volume_spike", 0.15, p.evalVolumeSpike),
	}
	return p
}

func (p *LiquidityGrab) Evaluate(ctx context.Context, ticker string) Result {
	if !p.validate(ctx, ticker) {
		return p.defaultResult()
	}
	score, scores := p.scoreCriteria(ctx, ticker)
	if score < SurfaceThreshold {
		return p.defaultResult()
	}

	price, _ := p.data.Price(ctx, ticker)
	target := price * 1.01
	if r := nearestResistanceAbove(p.data.KeyLevels(ctx, ticker), price); r > 0 {
		target = r
	}
	// Tight stop for scalping.
	return p.result(score, scores, price, target, price*0.997)
}

func (p *LiquidityGrab) evalHiddenOrders(ctx context.Context, ticker string) float64 {
	ob, ok := p.data.Orderbook(ctx, ticker)
	if !ok {
		return 0
	}
	avgVolume, ok := p.data.AvgDailyVolume(ctx, ticker)
	if !ok {
		return 0
	}

	largeOrders := 0
	for _, b := range ob.Bids {
		if b.Volume > avgVolume*0.01 {
			largeOrders++
		}
	}

	total := ob.BidVolume + ob.AskVolume
	if total == 0 {
		return 0
	}
	imbalance := math.Abs(ob.BidVolume-ob.AskVolume) / total
	return min1(float64(largeOrders)*0.2 + imbalance*0.8)
}

func (p *LiquidityGrab) evalStochRSIExtreme(ctx context.Context, ticker string) float64 {
	stochRSI, ok := p.data.Indicator(ctx, ticker, "StochRSI_K")
	if !ok {
		return 0
	}
	switch {
	case stochRSI >= 80:
		return min1((stochRSI - 80) / 20)
	case stochRSI <= 20:
		return min1((20 - stochRSI) / 20)
	}
	return 0
}

func (p *LiquidityGrab) evalQuickReversal(ctx context.Context, ticker string) float64 {
	cs := closes(p.data.Candles(ctx, ticker, 5))
	if len(cs) < 5 {
		return 0
	}
	changes := make([]float64, 0, len(cs)-1)
	for i := 1; i < len(cs); i++ {
		if cs[i-1] == 0 {
			return 0
		}
		changes = append(changes, (cs[i]-cs[i-1])/cs[i-1])
	}
	reversals := 0
	for i := 1; i < len(changes); i++ {
		if (changes[i] > 0 && changes[i-1] < 0) || (changes[i] < 0 && changes[i-1] > 0) {
			reversals++
		}
	}
	return min1(float64(reversals) / 4)
}

func (p *LiquidityGrab) evalVolumeSpike(ctx context.Context, ticker string) float64 {
	const threshold = 2.0
	vr, ok := p.data.Indicator(ctx, ticker, "Volume_Ratio")
	if !ok {
		return 0
	}
	return min1(vr / threshold)
}
