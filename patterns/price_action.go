package patterns

import (
	"context"
	"math"
)

// PriceAction detects a bullish engulfing setup near a key level with volume
// and oscillator confirmation.
type PriceAction struct {
	detector
}

func NewPriceAction(data MarketData) *PriceAction {
	p := &PriceAction{detector: detector{
		name:        "PriceActionPattern",
		patternType: "price_action",
		description: "Price Action Strategy with candlestick confirmation",
		data:        data,
	}}
	p.criteria = []Criterion{
		NewCriterion("engulfing", 0.4, p.evalEngulfing),
		NewCriterion("support_resistance", 0.3, p.evalSupportResistance),
		NewCriterion("volume_surge", 0.2, p.evalVolumeSurge),
		NewCriterion("momentum", 0.1, p.evalMomentum),
	}
	return p
}

func (p *PriceAction) Evaluate(ctx context.Context, ticker string) Result {
	if !p.validate(ctx, ticker) {
		return p.defaultResult()
	}
	score, scores := p.scoreCriteria(ctx, ticker)
	if score < SurfaceThreshold {
		return p.defaultResult()
	}

	price, _ := p.data.Price(ctx, ticker)
	target := price * 1.02
	stop := price * 0.985
	levels := p.data.KeyLevels(ctx, ticker)
	if r := nearestResistanceAbove(levels, price); r > 0 {
		target = r
	}
	if s := nearestSupportBelow(levels, price); s > 0 {
		stop = s * 0.995
	}
	return p.result(score, scores, price, target, stop)
}

func (p *PriceAction) evalEngulfing(ctx context.Context, ticker string) float64 {
	candles := p.data.Candles(ctx, ticker, 2)
	if len(candles) < 2 {
		return 0
	}
	prev, cur := candles[len(candles)-2], candles[len(candles)-1]

	prevBearish := prev.Close < prev.Open
	curBullish := cur.Close > cur.Open
	engulfing := cur.Open <= prev.Close && cur.Close >= prev.Open

	if prevBearish && curBullish && engulfing {
		return 1.0
	}
	if prevBearish && curBullish {
		return math.Min(0.8, (cur.Close-cur.Open)/(prev.Open-prev.Close))
	}
	return 0
}

func (p *PriceAction) evalSupportResistance(ctx context.Context, ticker string) float64 {
	price, _ := p.data.Price(ctx, ticker)
	levels := p.data.KeyLevels(ctx, ticker)
	if len(levels) == 0 || price == 0 {
		return 0
	}

	closestDistance := math.Inf(1)
	var closestStrength float64
	for _, l := range levels {
		distance := math.Abs(price-l.Price) / price
		if distance < closestDistance {
			closestDistance = distance
			strength := l.Strength
			if strength == 0 {
				strength = 50
			}
			closestStrength = strength / 100
		}
	}

	if closestDistance < 0.003 {
		return min1(closestStrength + (1-closestDistance/0.003)*0.5)
	}
	return 0
}

func (p *PriceAction) evalVolumeSurge(ctx context.Context, ticker string) float64 {
	const threshold = 1.2
	vr, ok := p.data.Indicator(ctx, ticker, "Volume_Ratio")
	if !ok {
		return 0
	}
	return min1(vr / threshold)
}

func (p *PriceAction) evalMomentum(ctx context.Context, ticker string) float64 {
	ks := p.data.IndicatorSeries(ctx, ticker, "StochRSI_K", 2)
	price, _ := p.data.Price(ctx, ticker)
	cs := closes(p.data.Candles(ctx, ticker, 2))
	if len(cs) < 2 || len(ks) < 2 {
		return 0
	}

	var priceChange, stochChange float64
	if cs[len(cs)-2] != 0 {
		priceChange = (price - cs[len(cs)-2]) / cs[len(cs)-2]
	}
	if ks[0] != 0 {
		stochChange = (ks[1] - ks[0]) / ks[0]
	}
	if priceChange > 0 && stochChange > 0 {
		return min1((priceChange + stochChange) / 2)
	}
	return 0
}
