package execution

import (
	"context"
	"fmt"
	"log"
	"time"

	"moomoo-strategy-bot/venue"
)

// sellWithRetry places a sell order and keeps it working until it fills:
// each attempt is monitored for the fill timeout, then cancelled and
// re-priced to the current best bid. The loop is bounded by the retry budget
// and the context so a dead gateway cannot pin a goroutine forever.
func (a *Account) sellWithRetry(ctx context.Context, ticker string, initialPrice, qty float64) error {
	if ok, reason := a.CanSell(ticker, qty); !ok {
		log.Printf("🔴 %s No place sell order for %s: %s", a.id, ticker, reason)
		return fmt.Errorf("sell rejected for %s: %s", ticker, reason)
	}

	currentPrice := initialPrice
	if currentPrice <= 0 {
		currentPrice = a.repriceToBid(ctx, ticker, currentPrice)
	}

	deadline := time.Now().Add(a.cfg.SellRetryBudget)
	remaining := qty

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("sell retry budget exhausted for %s with %.0f shares remaining", ticker, remaining)
		}

		log.Printf("🟡 %s Attempting to sell %s at $%.2f", a.id, ticker, currentPrice)
		order, err := a.api.PlaceOrder(ctx, venue.OrderRequest{
			Ticker:   ticker,
			Side:     venue.SideSell,
			Price:    currentPrice,
			Quantity: remaining,
		})
		if err != nil {
			log.Printf("🔴 %s Failed to place sell order at $%.2f: %v", a.id, currentPrice, err)
			currentPrice = a.repriceToBid(ctx, ticker, currentPrice)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(a.cfg.SellPollInterval):
			}
			continue
		}

		filled, filledQty := a.monitorSellOrder(ctx, ticker, order.OrderID, remaining)
		remaining -= filledQty
		if filled || remaining <= 0 {
			log.Printf("🟢 %s Sell order for %s executed successfully at $%.2f", a.id, ticker, currentPrice)
			a.mu.Lock()
			a.quantity[ticker] -= qty
			a.mu.Unlock()
			return nil
		}

		// Cancel the stale order before re-pricing, retrying until the
		// gateway acknowledges or the budget runs out.
		for {
			if err := a.api.CancelOrder(ctx, order.OrderID); err == nil {
				break
			}
			if time.Now().After(deadline) {
				return fmt.Errorf("failed to cancel stale sell order %s within budget", order.OrderID)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(a.cfg.CancelRetryInterval):
			}
		}

		currentPrice = a.repriceToBid(ctx, ticker, currentPrice)
	}
}

// monitorSellOrder polls the order until it reaches a terminal state or the
// fill timeout expires. Returns whether the order fully filled and how many
// shares were dealt.
func (a *Account) monitorSellOrder(ctx context.Context, ticker, orderID string, qty float64) (bool, float64) {
	start := time.Now()
	var dealt float64

	for time.Since(start) < a.cfg.SellMonitorTimeout {
		select {
		case <-ctx.Done():
			return false, dealt
		case <-time.After(a.cfg.SellPollInterval):
		}

		a.RefreshOrders(ctx)
		order, ok := a.findOrder(ticker, orderID)
		if !ok {
			continue
		}

		switch order.Status {
		case venue.StatusFilledAll:
			return true, qty
		case venue.StatusCancelledAll, venue.StatusFailed:
			return false, dealt
		case venue.StatusPartialFilled:
			if order.DealtQuantity > dealt {
				dealt = order.DealtQuantity
				log.Printf("🟡 %s Partial fill for %s: %.0f/%.0f shares", a.id, ticker, dealt, qty)
			}
			if dealt >= qty {
				return true, qty
			}
		}
	}

	log.Printf("🟡 %s Sell order monitoring timeout for %s", a.id, ticker)
	return false, dealt
}

// repriceToBid moves the working price to the current best bid, keeping the
// previous price when the book is unavailable or stale.
func (a *Account) repriceToBid(ctx context.Context, ticker string, fallback float64) float64 {
	ob, ok := a.freshOrderbook(ctx, ticker)
	if ok && ob.BestBidPrice > 0 {
		log.Printf("🟡 %s Updated sell price for %s to $%.2f based on current bid", a.id, ticker, ob.BestBidPrice)
		return ob.BestBidPrice
	}
	log.Printf("🟡 %s Orderbook unavailable for %s, retrying with original price", a.id, ticker)
	return fallback
}
