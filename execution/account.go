// Package execution executes entries and exits through the brokerage
// gateway: guarded buys, the smart-sell supervisor, and the re-pricing sell
// retry loop.
package execution

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"moomoo-strategy-bot/signalstore"
	"moomoo-strategy-bot/venue"
)

// API is the slice of the gateway the executor needs.
type API interface {
	Unlock(ctx context.Context, password string) error
	PlaceOrder(ctx context.Context, req venue.OrderRequest) (venue.Order, error)
	ModifyOrder(ctx context.Context, orderID string, price, qty float64) error
	CancelOrder(ctx context.Context, orderID string) error
	Balance(ctx context.Context) (venue.Balance, error)
	Positions(ctx context.Context) ([]venue.Position, error)
	Orders(ctx context.Context) ([]venue.Order, error)
}

// MarketData is the slice of the signal store the executor reads.
type MarketData interface {
	Price(ctx context.Context, ticker string) (float64, bool)
	Indicator(ctx context.Context, ticker, name string) (float64, bool)
	Orderbook(ctx context.Context, ticker string) (*signalstore.OrderbookSnapshot, bool)
	Ticks(ctx context.Context, ticker string, n int) []signalstore.Tick
}

// Config holds the execution thresholds. Every heuristic constant lives here
// so accounts can be tuned without code changes.
type Config struct {
	TradingEnabled bool
	TradingAmount  float64 // notional per entry

	DuplicateBuyWindow  time.Duration // min gap between buys of one ticker
	UnfilledCancelAfter time.Duration // cancel entry if unfilled this long
	CancelRetryInterval time.Duration
	CancelBudget        time.Duration // wall clock bound on cancel retries

	CircuitBreakerRatio float64 // emergency exit below buy * ratio

	ProfitATRMultiple     float64 // profit threshold: max(ATR mult, min pct)
	ProfitMinPercent      float64
	ProfitFallbackPercent float64 // threshold without ATR

	TrailStrongADX      float64 // ADX above which the stop loosens
	TrailWeakADX        float64 // ADX below which the stop tightens
	TrailStrongMultiple float64
	TrailWeakMultiple   float64
	TrailNormalMultiple float64
	ATRFallbackPercent  float64 // synthetic ATR as fraction of buy price

	VWAPBreakdownATRMultiple float64 // exit below VWAP - mult*ATR
	ImbalanceBlock           float64 // skip exit when bid imbalance >= this
	ShakeoutTickWindow       int     // recent ticks for buy/sell volume check

	OrderbookMaxAge time.Duration // reject order-flow data older than this

	SmartSellInterval  time.Duration
	SellMonitorTimeout time.Duration // per-order fill monitor
	SellPollInterval   time.Duration
	SellRetryBudget    time.Duration // wall clock bound on the retry loop
}

// DefaultConfig returns the production execution thresholds.
func DefaultConfig() Config {
	return Config{
		TradingEnabled:           false,
		TradingAmount:            10,
		DuplicateBuyWindow:       60 * time.Second,
		UnfilledCancelAfter:      5 * time.Second,
		CancelRetryInterval:      500 * time.Millisecond,
		CancelBudget:             30 * time.Second,
		CircuitBreakerRatio:      0.90,
		ProfitATRMultiple:        1.5,
		ProfitMinPercent:         0.03,
		ProfitFallbackPercent:    0.05,
		TrailStrongADX:           30,
		TrailWeakADX:             20,
		TrailStrongMultiple:      2.0,
		TrailWeakMultiple:        1.0,
		TrailNormalMultiple:      1.5,
		ATRFallbackPercent:       0.02,
		VWAPBreakdownATRMultiple: 0.75,
		ImbalanceBlock:           0.6,
		ShakeoutTickWindow:       10,
		OrderbookMaxAge:          time.Minute,
		SmartSellInterval:        200 * time.Millisecond,
		SellMonitorTimeout:       30 * time.Second,
		SellPollInterval:         time.Second,
		SellRetryBudget:          5 * time.Minute,
	}
}

// Account executes orders for one gateway trading account.
type Account struct {
	id   string
	api  API
	data MarketData
	cfg  Config

	mu            sync.Mutex
	balance       venue.Balance
	positions     map[string]venue.Position
	orders        map[string][]venue.Order
	buyTimestamps map[string]time.Time
	quantity      map[string]float64

	wg sync.WaitGroup
}

// NewAccount wires an executor for one account.
func NewAccount(id string, api API, data MarketData, cfg Config) *Account {
	return &Account{
		id:            id,
		api:           api,
		data:          data,
		cfg:           cfg,
		positions:     make(map[string]venue.Position),
		orders:        make(map[string][]venue.Order),
		buyTimestamps: make(map[string]time.Time),
		quantity:      make(map[string]float64),
	}
}

// ID returns the account identifier.
func (a *Account) ID() string { return a.id }

// Unlock unlocks trading and syncs the account snapshot. The caller treats
// failure as fatal; the process must not trade half-initialized.
func (a *Account) Unlock(ctx context.Context, password string) error {
	if err := a.api.Unlock(ctx, password); err != nil {
		return fmt.Errorf("failed to unlock trade for %s: %w", a.id, err)
	}
	a.RefreshBalance(ctx)
	a.RefreshPositions(ctx)
	return nil
}

// RefreshBalance re-reads the funds snapshot from the gateway.
func (a *Account) RefreshBalance(ctx context.Context) {
	balance, err := a.api.Balance(ctx)
	if err != nil {
		log.Printf("🔴 %s Failed to sync balance: %v", a.id, err)
		return
	}
	a.mu.Lock()
	a.balance = balance
	a.mu.Unlock()
	log.Printf("✅ %s Synced balance: $%.2f (settled $%.2f)", a.id, balance.Cash, balance.SettledCash)
}

// RefreshPositions re-reads open positions, refreshing orders first so each
// position view is consistent with its working orders.
func (a *Account) RefreshPositions(ctx context.Context) {
	a.RefreshOrders(ctx)

	positions, err := a.api.Positions(ctx)
	if err != nil {
		log.Printf("🔴 %s Failed to sync positions: %v", a.id, err)
		return
	}
	byTicker := make(map[string]venue.Position, len(positions))
	for _, p := range positions {
		byTicker[p.Ticker] = p
	}
	a.mu.Lock()
	a.positions = byTicker
	a.mu.Unlock()
}

// RefreshOrders re-reads today's orders.
func (a *Account) RefreshOrders(ctx context.Context) {
	orders, err := a.api.Orders(ctx)
	if err != nil {
		log.Printf("🔴 %s Failed to sync orders: %v", a.id, err)
		return
	}
	byTicker := make(map[string][]venue.Order)
	for _, o := range orders {
		byTicker[o.Ticker] = append(byTicker[o.Ticker], o)
	}
	a.mu.Lock()
	a.orders = byTicker
	a.mu.Unlock()
}

// HandleOrderPush processes an order update push from the stream.
func (a *Account) HandleOrderPush(ctx context.Context, order venue.Order) {
	log.Printf("🟢 %s %s %s %s order(%s) at %.2f with quantity %.0f",
		a.id, order.Ticker, order.Status, order.Side, order.OrderID, order.Price, order.Quantity)
	a.RefreshBalance(ctx)
	a.RefreshPositions(ctx)
}

// HasPosition reports whether the account holds the ticker.
func (a *Account) HasPosition(ticker string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.positions[ticker]
	return ok && p.Quantity > 0
}

// freshOrderbook returns the orderbook snapshot only when it is recent
// enough to base order-flow decisions on.
func (a *Account) freshOrderbook(ctx context.Context, ticker string) (*signalstore.OrderbookSnapshot, bool) {
	ob, ok := a.data.Orderbook(ctx, ticker)
	if !ok {
		return nil, false
	}
	if !ob.Fresh(a.cfg.OrderbookMaxAge) {
		log.Printf("🟡 %s Orderbook for %s is stale, ignoring", a.id, ticker)
		return nil, false
	}
	return ob, true
}

// CanBuy checks the entry guards. The reason string explains the rejection.
func (a *Account) CanBuy(ticker string) (bool, string) {
	if !a.cfg.TradingEnabled {
		return false, fmt.Sprintf("🔴 %s No buy for %s: Trading is disabled", a.id, ticker)
	}
	if a.HasPosition(ticker) {
		return false, fmt.Sprintf("🔴 %s No buy for %s: Already has position", a.id, ticker)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if ts, ok := a.buyTimestamps[ticker]; ok && time.Since(ts) < a.cfg.DuplicateBuyWindow {
		return false, fmt.Sprintf("🔴 %s No buy for %s: Already bought in the last %.0f seconds", a.id, ticker, a.cfg.DuplicateBuyWindow.Seconds())
	}
	if a.quantity[ticker] > 0 {
		return false, fmt.Sprintf("🔴 %s No buy for %s: Already has position", a.id, ticker)
	}
	if a.cfg.TradingAmount > a.balance.SettledCash {
		return false, fmt.Sprintf("🔴 %s No buy for %s: Trading amount is exceed settled cash", a.id, ticker)
	}
	return true, ""
}

// CanSell checks the exit guards against the live position.
func (a *Account) CanSell(ticker string, qty float64) (bool, string) {
	if !a.cfg.TradingEnabled {
		return false, "System sell feature is disabled"
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.positions[ticker]
	if !ok {
		return false, fmt.Sprintf("No position for %s", ticker)
	}
	if p.Quantity < qty {
		return false, fmt.Sprintf("Insufficient position quantity: %.0f", p.Quantity)
	}
	return true, ""
}

// BuyWithSmartSell places a buy at the best ask and hands the fill to the
// smart-sell supervisor. The unfilled-cancel watchdog runs in the background.
func (a *Account) BuyWithSmartSell(ctx context.Context, ticker string, withSmartSell bool) error {
	if ok, reason := a.CanBuy(ticker); !ok {
		log.Print(reason)
		return fmt.Errorf("buy rejected for %s", ticker)
	}

	ob, ok := a.freshOrderbook(ctx, ticker)
	if !ok {
		return fmt.Errorf("🔴 %s No buy for %s: No fresh orderbook snapshot", a.id, ticker)
	}
	askPrice := ob.BestAskPrice
	if askPrice <= 0 {
		return fmt.Errorf("🔴 %s No buy for %s: No ask price", a.id, ticker)
	}
	qty := float64(int(a.cfg.TradingAmount / askPrice))
	if qty == 0 {
		return fmt.Errorf("🔴 %s No buy for %s: Qty is 0", a.id, ticker)
	}

	order, err := a.api.PlaceOrder(ctx, venue.OrderRequest{
		Ticker:   ticker,
		Side:     venue.SideBuy,
		Price:    askPrice,
		Quantity: qty,
	})
	if err != nil {
		log.Printf("🔴 %s Failed to place buy order: %v", a.id, err)
		return err
	}

	a.mu.Lock()
	a.buyTimestamps[ticker] = time.Now()
	a.mu.Unlock()

	log.Printf("🟢 %s Buy order placed for %s: %.0f @ $%.2f", a.id, ticker, qty, askPrice)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.cancelUnfilled(ctx, ticker, order, withSmartSell)
	}()
	return nil
}

// cancelUnfilled cancels the entry order if it has not filled within the
// configured delay. A filled order starts the smart-sell supervisor. Cancel
// retries are bounded by the cancel budget and the context.
func (a *Account) cancelUnfilled(ctx context.Context, ticker string, order venue.Order, withSmartSell bool) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(a.cfg.UnfilledCancelAfter):
	}

	a.RefreshOrders(ctx)
	current, ok := a.findOrder(ticker, order.OrderID)
	if !ok {
		log.Printf("🟡 %s No order %s for %s", a.id, order.OrderID, ticker)
		return
	}

	if current.Status != venue.StatusFilledAll {
		deadline := time.Now().Add(a.cfg.CancelBudget)
		for {
			log.Printf("🟡 %s Cancelling unfilled order %s for %s", a.id, order.OrderID, ticker)
			if err := a.api.CancelOrder(ctx, order.OrderID); err == nil {
				a.mu.Lock()
				delete(a.buyTimestamps, ticker)
				a.mu.Unlock()
				log.Printf("🟢 %s Cancelled unfilled order %s for %s", a.id, order.OrderID, ticker)
				return
			}
			if time.Now().After(deadline) {
				log.Printf("🔴 %s Cancel budget exhausted for order %s", a.id, order.OrderID)
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(a.cfg.CancelRetryInterval):
			}
		}
	}

	a.mu.Lock()
	a.quantity[ticker] = current.Quantity
	a.mu.Unlock()

	if withSmartSell {
		log.Printf("🟢 %s Starting smart sell for %s", a.id, ticker)
		filledTime := parseOrderTime(current.UpdatedTime)
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.smartSell(ctx, ticker, current.Price, current.Quantity, filledTime)
		}()
	}
}

func (a *Account) findOrder(ticker, orderID string) (venue.Order, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, o := range a.orders[ticker] {
		if o.OrderID == orderID {
			return o, true
		}
	}
	return venue.Order{}, false
}

// Wait blocks until all background order workers have finished.
func (a *Account) Wait() {
	a.wg.Wait()
}

func parseOrderTime(s string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Now()
}
