package execution

import (
	"context"
	"log"
	"time"
)

// sellDecision is the outcome of one sell-condition check.
type sellDecision struct {
	sell  bool
	price float64
	qty   float64
}

// smartSell supervises an open position until it is fully exited: scale out
// half on the dynamic profit threshold, exit everything on the adaptive
// trailing stop or a VWAP breakdown, and dump immediately when the disaster
// circuit breaker trips. Runs until the position is flat or ctx is done.
func (a *Account) smartSell(ctx context.Context, ticker string, buyPrice, qty float64, filledTime time.Time) {
	highestPrice := buyPrice
	remainingQty := qty

	ticker20 := time.NewTicker(a.cfg.SmartSellInterval)
	defer ticker20.Stop()

	for remainingQty > 0 {
		select {
		case <-ctx.Done():
			log.Printf("🛑 %s Smart sell for %s stopped with %.0f shares remaining", a.id, ticker, remainingQty)
			return
		case <-ticker20.C:
		}

		// Track the highest print since the fill.
		for _, t := range a.data.Ticks(ctx, ticker, a.cfg.ShakeoutTickWindow) {
			if t.Timestamp.After(filledTime) && t.Price > highestPrice {
				highestPrice = t.Price
			}
		}

		currentPrice, ok := a.data.Price(ctx, ticker)
		if !ok {
			continue
		}

		// Disaster circuit breaker.
		if currentPrice < buyPrice*a.cfg.CircuitBreakerRatio {
			log.Printf("🚨 %s Disaster circuit breaker triggered: %.2f < %.2f", ticker, currentPrice, buyPrice*a.cfg.CircuitBreakerRatio)
			if err := a.sellWithRetry(ctx, ticker, currentPrice, remainingQty); err != nil {
				log.Printf("🔴 %s Failed to place emergency sell order %s: %v", a.id, ticker, err)
				continue
			}
			log.Printf("🟢 %s Emergency sell order placed for %s at $%.2f", a.id, ticker, currentPrice)
			return
		}

		decision := a.checkSellCondition(ctx, ticker, buyPrice, highestPrice, remainingQty)
		if !decision.sell || decision.qty <= 0 || decision.qty > remainingQty {
			continue
		}

		if err := a.sellWithRetry(ctx, ticker, decision.price, decision.qty); err != nil {
			log.Printf("🔴 %s Failed to place sell order %s at $%.2f: %v", a.id, ticker, decision.price, err)
			continue
		}
		log.Printf("🟢 %s Placed sell order for %s at $%.2f", a.id, ticker, decision.price)

		remainingQty -= decision.qty
		if remainingQty > 0 {
			// Re-base the cost on the scale-out price so the trailing
			// logic protects realized gains.
			buyPrice = decision.price
		}
	}
}

// checkSellCondition evaluates the exit rules for the current tape.
func (a *Account) checkSellCondition(ctx context.Context, ticker string, buyPrice, highestPrice, remainingQty float64) sellDecision {
	hold := sellDecision{}

	price, ok := a.data.Price(ctx, ticker)
	if !ok {
		return hold
	}

	// Dynamic profit threshold: scale out half above it.
	atr, _ := a.data.Indicator(ctx, ticker, "ATR")
	var profitThreshold float64
	if atr > 0 {
		profitThreshold = buyPrice + maxf(atr*a.cfg.ProfitATRMultiple, buyPrice*a.cfg.ProfitMinPercent)
	} else {
		profitThreshold = buyPrice * (1 + a.cfg.ProfitFallbackPercent)
	}

	if price > profitThreshold {
		ob, ok := a.freshOrderbook(ctx, ticker)
		if !ok {
			return hold
		}
		sellPrice := minf(price, ob.BestBidPrice)
		sellQty := float64(int(remainingQty / 2))
		if sellQty == 0 {
			sellQty = remainingQty
		}
		log.Printf("✅ %s Price reached dynamic profit threshold: %.2f > %.2f, buy_price: %.2f, bid_price: %.2f, sell_qty: %.0f",
			ticker, price, profitThreshold, buyPrice, ob.BestBidPrice, sellQty)
		return sellDecision{sell: true, price: sellPrice, qty: sellQty}
	}

	if atr <= 0 {
		log.Printf("🟡 %s ATR not available, using fallback", ticker)
		atr = buyPrice * a.cfg.ATRFallbackPercent
	}

	// Adaptive trailing stop off the highest print, ADX picks the width.
	adx, _ := a.data.Indicator(ctx, ticker, "ADX")
	atrMultiplier := a.cfg.TrailNormalMultiple
	if adx > 0 {
		switch {
		case adx > a.cfg.TrailStrongADX:
			atrMultiplier = a.cfg.TrailStrongMultiple
		case adx < a.cfg.TrailWeakADX:
			atrMultiplier = a.cfg.TrailWeakMultiple
		}
	}
	limitLine := highestPrice - atr*atrMultiplier
	belowLimitLine := price <= limitLine

	// Failed breakout: price losing VWAP by a wide margin.
	vwapBreakdown := false
	if vwap, ok := a.data.Indicator(ctx, ticker, "VWAP"); ok && vwap > 0 {
		vwapThreshold := vwap - atr*a.cfg.VWAPBreakdownATRMultiple
		vwapBreakdown = price < vwapThreshold
		if vwapBreakdown {
			log.Printf("⚠️ %s VWAP breakdown detected: %.2f < %.2f (VWAP: %.2f)", ticker, price, vwapThreshold, vwap)
		}
	}

	if !belowLimitLine && !vwapBreakdown {
		return hold
	}

	ob, ok := a.freshOrderbook(ctx, ticker)
	if !ok {
		return hold
	}

	// A breakdown through VWAP exits without shakeout confirmation.
	if vwapBreakdown {
		log.Printf("✅ %s VWAP breakdown exit triggered", ticker)
		return sellDecision{sell: true, price: ob.BestBidPrice, qty: remainingQty}
	}

	// Shakeout guards: hold through a dip the bid side is absorbing.
	if ob.Imbalance >= a.cfg.ImbalanceBlock {
		log.Printf("❌ %s Bid dominating %.2f, holding through the dip", ticker, ob.Imbalance)
		return hold
	}
	var buyVol, sellVol float64
	for _, t := range a.data.Ticks(ctx, ticker, a.cfg.ShakeoutTickWindow) {
		switch t.Direction {
		case "BUY":
			buyVol += t.Volume
		case "SELL":
			sellVol += t.Volume
		}
	}
	if buyVol > sellVol {
		log.Printf("❌ %s Strong buy volume on the tape (%.0f > %.0f), holding", ticker, buyVol, sellVol)
		return hold
	}

	log.Printf("✅ %s Trailing stop hit: %.2f <= %.2f (highest %.2f, ATR %.2f x %.1f)",
		ticker, price, limitLine, highestPrice, atr, atrMultiplier)
	return sellDecision{sell: true, price: ob.BestBidPrice, qty: remainingQty}
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
