package app

import (
	"context"
	"log"
	"sync"
	"time"

	"moomoo-strategy-bot/strategy"
)

// TickerEvaluator runs one evaluation pass for a ticker.
type TickerEvaluator interface {
	EvaluateTicker(ctx context.Context, ticker string) (*strategy.Strategy, error)
}

// MarketSnapshot exposes the price and volume reads the engine needs to
// detect stale tickers.
type MarketSnapshot interface {
	Price(ctx context.Context, ticker string) (float64, bool)
	Volume(ctx context.Context, ticker string) (float64, bool)
}

// Engine drives the per-ticker strategy evaluation loops.
type Engine struct {
	data    MarketSnapshot
	manager TickerEvaluator
	tickers []string
}

// NewEngine creates the evaluation engine for a fixed ticker list.
func NewEngine(data MarketSnapshot, manager TickerEvaluator, tickers []string) *Engine {
	return &Engine{
		data:    data,
		manager: manager,
		tickers: tickers,
	}
}

// Run starts one evaluation loop per ticker and blocks until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, ticker := range e.tickers {
		wg.Add(1)
		go func(ticker string) {
			defer wg.Done()
			e.runTicker(ctx, ticker)
		}(ticker)
	}
	wg.Wait()
}

// runTicker evaluates one ticker at 1Hz, skipping passes where neither
// price nor volume moved since the last evaluation.
func (e *Engine) runTicker(ctx context.Context, ticker string) {
	log.Printf("📊 Evaluation loop started for %s", ticker)

	var lastPrice, lastVolume float64
	interval := time.NewTicker(1 * time.Second)
	defer interval.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-interval.C:
			price, okPrice := e.data.Price(ctx, ticker)
			volume, okVolume := e.data.Volume(ctx, ticker)
			if !okPrice {
				continue
			}
			if okVolume && price == lastPrice && volume == lastVolume {
				continue
			}
			lastPrice = price
			lastVolume = volume

			if _, err := e.manager.EvaluateTicker(ctx, ticker); err != nil {
				log.Printf("⚠️ Evaluation failed for %s: %v", ticker, err)
			}
		}
	}
}
