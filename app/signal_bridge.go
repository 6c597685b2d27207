package app

import (
	"context"
	"encoding/json"
	"log"

	"moomoo-strategy-bot/execution"
	"moomoo-strategy-bot/signalstore"
)

// SignalBridge listens for published trade signals and turns entry signals
// into buy orders on every registered account.
type SignalBridge struct {
	store    *signalstore.Store
	accounts *execution.Registry
}

// NewSignalBridge creates the bridge between the signal channel and execution.
func NewSignalBridge(store *signalstore.Store, accounts *execution.Registry) *SignalBridge {
	return &SignalBridge{store: store, accounts: accounts}
}

// Run consumes trade signals until ctx is done.
func (b *SignalBridge) Run(ctx context.Context) {
	sub := b.store.SubscribeTradeSignals(ctx)
	defer sub.Close()

	log.Println("📡 Trade signal bridge listening")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var sig signalstore.TradeSignal
			if err := json.Unmarshal([]byte(msg.Payload), &sig); err != nil {
				log.Printf("⚠️ Malformed trade signal: %v", err)
				continue
			}
			if sig.Status != "entry" {
				continue
			}
			b.handleEntry(ctx, sig.Ticker)
		}
	}
}

// handleEntry fires a buy on every account that passes its own guards.
// The global allow-buy switch is checked once per signal.
func (b *SignalBridge) handleEntry(ctx context.Context, ticker string) {
	if !b.store.AllowBuy(ctx) {
		log.Printf("⚠️ Buying disabled globally, skipping entry signal for %s", ticker)
		return
	}

	for _, account := range b.accounts.All() {
		ok, reason := account.CanBuy(ticker)
		if !ok {
			log.Printf("%s", reason)
			continue
		}
		go func(account *execution.Account) {
			if err := account.BuyWithSmartSell(ctx, ticker, true); err != nil {
				log.Printf("🔴 Buy failed on account %s for %s: %v", account.ID(), ticker, err)
			}
		}(account)
	}
}
