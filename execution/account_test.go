package execution

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"moomoo-strategy-bot/signalstore"
	"moomoo-strategy-bot/venue"
)

type fakeAPI struct {
	mu        sync.Mutex
	placed    []venue.OrderRequest
	cancelled []string
	orders    []venue.Order
	positions []venue.Position
	balance   venue.Balance

	placeErr    error
	cancelFails int
	nextID      int
}

func (f *fakeAPI) Unlock(ctx context.Context, password string) error { return nil }

func (f *fakeAPI) PlaceOrder(ctx context.Context, req venue.OrderRequest) (venue.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeErr != nil {
		return venue.Order{}, f.placeErr
	}
	f.placed = append(f.placed, req)
	f.nextID++
	order := venue.Order{
		OrderID:  string(rune('A' + f.nextID - 1)),
		Ticker:   req.Ticker,
		Side:     req.Side,
		Status:   venue.StatusSubmitted,
		Price:    req.Price,
		Quantity: req.Quantity,
	}
	return order, nil
}

func (f *fakeAPI) ModifyOrder(ctx context.Context, orderID string, price, qty float64) error {
	return nil
}

func (f *fakeAPI) CancelOrder(ctx context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelFails > 0 {
		f.cancelFails--
		return errors.New("gateway busy")
	}
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

func (f *fakeAPI) Balance(ctx context.Context) (venue.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, nil
}

func (f *fakeAPI) Positions(ctx context.Context) ([]venue.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.positions, nil
}

func (f *fakeAPI) Orders(ctx context.Context) ([]venue.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders, nil
}

func (f *fakeAPI) setOrders(orders ...venue.Order) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = orders
}

func (f *fakeAPI) placedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.placed)
}

type fakeMarket struct {
	mu        sync.Mutex
	price     float64
	hasPrice  bool
	inds      map[string]float64
	orderbook *signalstore.OrderbookSnapshot
	ticks     []signalstore.Tick
}

func (f *fakeMarket) Price(ctx context.Context, ticker string) (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.price, f.hasPrice
}

func (f *fakeMarket) setPrice(p float64) {
	f.mu.Lock()
	f.price = p
	f.hasPrice = true
	f.mu.Unlock()
}

func (f *fakeMarket) Indicator(ctx context.Context, ticker, name string) (float64, bool) {
	v, ok := f.inds[name]
	return v, ok
}

func (f *fakeMarket) Orderbook(ctx context.Context, ticker string) (*signalstore.OrderbookSnapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.orderbook == nil {
		return nil, false
	}
	// A snapshot without an explicit timestamp counts as live.
	ob := *f.orderbook
	if ob.Timestamp.IsZero() {
		ob.Timestamp = time.Now()
	}
	return &ob, true
}

func (f *fakeMarket) Ticks(ctx context.Context, ticker string, n int) []signalstore.Tick {
	return f.ticks
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.TradingEnabled = true
	cfg.TradingAmount = 100
	cfg.UnfilledCancelAfter = 10 * time.Millisecond
	cfg.CancelRetryInterval = 5 * time.Millisecond
	cfg.CancelBudget = 200 * time.Millisecond
	cfg.SmartSellInterval = 5 * time.Millisecond
	cfg.SellPollInterval = 5 * time.Millisecond
	cfg.SellMonitorTimeout = 100 * time.Millisecond
	cfg.SellRetryBudget = time.Second
	return cfg
}

func TestCanBuyGuards(t *testing.T) {
	api := &fakeAPI{balance: venue.Balance{SettledCash: 500}}

	t.Run("trading disabled", func(t *testing.T) {
		cfg := testConfig()
		cfg.TradingEnabled = false
		a := NewAccount("acc1", api, &fakeMarket{}, cfg)
		if ok, reason := a.CanBuy("AAPL"); ok || !strings.Contains(reason, "Trading is disabled") {
			t.Errorf("expected disabled rejection, got %v %q", ok, reason)
		}
	})

	t.Run("duplicate buy window", func(t *testing.T) {
		a := NewAccount("acc1", api, &fakeMarket{}, testConfig())
		a.RefreshBalance(context.Background())
		a.buyTimestamps["AAPL"] = time.Now()
		if ok, reason := a.CanBuy("AAPL"); ok || !strings.Contains(reason, "Already bought") {
			t.Errorf("expected duplicate rejection, got %v %q", ok, reason)
		}
		a.buyTimestamps["AAPL"] = time.Now().Add(-2 * time.Minute)
		if ok, _ := a.CanBuy("AAPL"); !ok {
			t.Error("stale buy timestamp should not block")
		}
	})

	t.Run("open position", func(t *testing.T) {
		a := NewAccount("acc1", api, &fakeMarket{}, testConfig())
		a.RefreshBalance(context.Background())
		a.quantity["AAPL"] = 10
		if ok, reason := a.CanBuy("AAPL"); ok || !strings.Contains(reason, "Already has position") {
			t.Errorf("expected position rejection, got %v %q", ok, reason)
		}
	})

	t.Run("venue-reported position", func(t *testing.T) {
		held := &fakeAPI{
			balance:   venue.Balance{SettledCash: 500},
			positions: []venue.Position{{Ticker: "AAPL", Quantity: 10}},
		}
		a := NewAccount("acc1", held, &fakeMarket{}, testConfig())
		a.RefreshBalance(context.Background())
		a.RefreshPositions(context.Background())
		if ok, reason := a.CanBuy("AAPL"); ok || !strings.Contains(reason, "Already has position") {
			t.Errorf("expected position rejection, got %v %q", ok, reason)
		}
	})

	t.Run("insufficient settled cash", func(t *testing.T) {
		cfg := testConfig()
		cfg.TradingAmount = 10000
		a := NewAccount("acc1", api, &fakeMarket{}, cfg)
		a.RefreshBalance(context.Background())
		if ok, reason := a.CanBuy("AAPL"); ok || !strings.Contains(reason, "settled cash") {
			t.Errorf("expected cash rejection, got %v %q", ok, reason)
		}
	})
}

func TestBuyPlacesOrderAtBestAsk(t *testing.T) {
	api := &fakeAPI{balance: venue.Balance{SettledCash: 500}}
	data := &fakeMarket{orderbook: &signalstore.OrderbookSnapshot{BestAskPrice: 9.8, BestBidPrice: 9.75}}
	a := NewAccount("acc1", api, data, testConfig())
	a.RefreshBalance(context.Background())

	if err := a.BuyWithSmartSell(context.Background(), "AAPL", false); err != nil {
		t.Fatalf("BuyWithSmartSell() error: %v", err)
	}
	a.Wait()

	if len(api.placed) != 1 {
		t.Fatalf("expected 1 order, got %d", len(api.placed))
	}
	got := api.placed[0]
	if got.Side != venue.SideBuy || got.Price != 9.8 {
		t.Errorf("unexpected order: %+v", got)
	}
	// 100 notional / 9.8 ask = 10 shares, truncated.
	if got.Quantity != 10 {
		t.Errorf("quantity = %v, want 10", got.Quantity)
	}
}

func TestBuyRejectedWithoutOrderbook(t *testing.T) {
	api := &fakeAPI{balance: venue.Balance{SettledCash: 500}}
	a := NewAccount("acc1", api, &fakeMarket{}, testConfig())
	a.RefreshBalance(context.Background())

	if err := a.BuyWithSmartSell(context.Background(), "AAPL", false); err == nil {
		t.Fatal("expected error without orderbook snapshot")
	}
	if len(api.placed) != 0 {
		t.Errorf("no order should be placed, got %d", len(api.placed))
	}
}

func TestUnfilledBuyIsCancelled(t *testing.T) {
	api := &fakeAPI{balance: venue.Balance{SettledCash: 500}, cancelFails: 2}
	data := &fakeMarket{orderbook: &signalstore.OrderbookSnapshot{BestAskPrice: 10}}
	a := NewAccount("acc1", api, data, testConfig())
	a.RefreshBalance(context.Background())

	if err := a.BuyWithSmartSell(context.Background(), "AAPL", false); err != nil {
		t.Fatalf("BuyWithSmartSell() error: %v", err)
	}
	// The order stays SUBMITTED in the gateway's order list.
	api.setOrders(venue.Order{OrderID: "A", Ticker: "AAPL", Status: venue.StatusSubmitted, Price: 10, Quantity: 10})
	a.Wait()

	if len(api.cancelled) != 1 || api.cancelled[0] != "A" {
		t.Errorf("expected order A cancelled after retries, got %v", api.cancelled)
	}
	a.mu.Lock()
	_, stamped := a.buyTimestamps["AAPL"]
	a.mu.Unlock()
	if stamped {
		t.Error("buy timestamp should be released after cancel")
	}
}

func TestCheckSellConditionProfitScaleOut(t *testing.T) {
	// Buy at $10 with ATR 0.5: threshold = 10 + max(0.75, 0.30) = 10.75.
	data := &fakeMarket{
		price: 10.80, hasPrice: true,
		inds:      map[string]float64{"ATR": 0.5},
		orderbook: &signalstore.OrderbookSnapshot{BestBidPrice: 10.78},
	}
	a := NewAccount("acc1", &fakeAPI{}, data, testConfig())

	got := a.checkSellCondition(context.Background(), "AAPL", 10, 10.80, 10)
	if !got.sell {
		t.Fatal("expected scale-out above profit threshold")
	}
	if got.qty != 5 {
		t.Errorf("scale-out qty = %v, want half position 5", got.qty)
	}
	if got.price != 10.78 {
		t.Errorf("scale-out price = %v, want bid 10.78", got.price)
	}
}

func TestCheckSellConditionStaleOrderbookHolds(t *testing.T) {
	// Same setup as the scale-out test, but the snapshot is 5 minutes old.
	data := &fakeMarket{
		price: 10.80, hasPrice: true,
		inds: map[string]float64{"ATR": 0.5},
		orderbook: &signalstore.OrderbookSnapshot{
			BestBidPrice: 10.78,
			Timestamp:    time.Now().Add(-5 * time.Minute),
		},
	}
	a := NewAccount("acc1", &fakeAPI{}, data, testConfig())

	if got := a.checkSellCondition(context.Background(), "AAPL", 10, 10.80, 10); got.sell {
		t.Errorf("stale orderbook must not drive a scale-out, got %+v", got)
	}
}

func TestBuyRejectedWithStaleOrderbook(t *testing.T) {
	api := &fakeAPI{balance: venue.Balance{SettledCash: 500}}
	data := &fakeMarket{orderbook: &signalstore.OrderbookSnapshot{
		BestAskPrice: 9.8,
		Timestamp:    time.Now().Add(-5 * time.Minute),
	}}
	a := NewAccount("acc1", api, data, testConfig())
	a.RefreshBalance(context.Background())

	if err := a.BuyWithSmartSell(context.Background(), "AAPL", false); err == nil {
		t.Fatal("expected rejection on stale orderbook snapshot")
	}
	if len(api.placed) != 0 {
		t.Errorf("no order should be placed, got %d", len(api.placed))
	}
}

func TestRepriceToBidKeepsPriceOnStaleBook(t *testing.T) {
	data := &fakeMarket{orderbook: &signalstore.OrderbookSnapshot{
		BestBidPrice: 10.5,
		Timestamp:    time.Now().Add(-5 * time.Minute),
	}}
	a := NewAccount("acc1", &fakeAPI{}, data, testConfig())

	if got := a.repriceToBid(context.Background(), "AAPL", 10.2); got != 10.2 {
		t.Errorf("stale book should keep the working price 10.2, got %v", got)
	}

	data.mu.Lock()
	data.orderbook.Timestamp = time.Now()
	data.mu.Unlock()
	if got := a.repriceToBid(context.Background(), "AAPL", 10.2); got != 10.5 {
		t.Errorf("fresh book should re-price to bid 10.5, got %v", got)
	}
}

func TestCheckSellConditionProfitFallbackWithoutATR(t *testing.T) {
	// Without ATR the threshold is buy * 1.05.
	data := &fakeMarket{
		price: 10.4, hasPrice: true,
		inds:      map[string]float64{},
		orderbook: &signalstore.OrderbookSnapshot{BestBidPrice: 10.39, Imbalance: 0.7},
	}
	a := NewAccount("acc1", &fakeAPI{}, data, testConfig())

	if got := a.checkSellCondition(context.Background(), "AAPL", 10, 10.4, 10); got.sell {
		t.Errorf("price 10.40 under fallback threshold 10.50 should hold, got %+v", got)
	}
}

func TestCheckSellConditionTrailingStopADX(t *testing.T) {
	tests := []struct {
		name  string
		adx   float64
		price float64
		sell  bool
	}{
		// Highest 11, ATR 0.4. Strong trend: limit 11 - 0.8 = 10.2.
		{"strong trend loose stop holds", 35, 10.3, false},
		{"strong trend loose stop exits", 35, 10.2, true},
		// Choppy: limit 11 - 0.4 = 10.6.
		{"choppy market tight stop exits", 15, 10.55, true},
		// Normal: limit 11 - 0.6 = 10.4.
		{"normal market standard stop holds", 25, 10.5, false},
		{"normal market standard stop exits", 25, 10.4, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := &fakeMarket{
				price: tt.price, hasPrice: true,
				inds:      map[string]float64{"ATR": 0.4, "ADX": tt.adx},
				orderbook: &signalstore.OrderbookSnapshot{BestBidPrice: tt.price - 0.01, Imbalance: 0.2},
				ticks:     []signalstore.Tick{{Direction: "SELL", Volume: 500}},
			}
			a := NewAccount("acc1", &fakeAPI{}, data, testConfig())
			got := a.checkSellCondition(context.Background(), "AAPL", 10, 11, 10)
			if got.sell != tt.sell {
				t.Errorf("sell = %v, want %v", got.sell, tt.sell)
			}
			if got.sell && got.qty != 10 {
				t.Errorf("trailing stop should exit full position, got %v", got.qty)
			}
		})
	}
}

func TestCheckSellConditionShakeoutGuards(t *testing.T) {
	base := func() *fakeMarket {
		return &fakeMarket{
			price: 10.3, hasPrice: true,
			inds:      map[string]float64{"ATR": 0.4, "ADX": 25},
			orderbook: &signalstore.OrderbookSnapshot{BestBidPrice: 10.29, Imbalance: 0.2},
			ticks:     []signalstore.Tick{{Direction: "SELL", Volume: 500}},
		}
	}

	t.Run("bid imbalance absorbs the dip", func(t *testing.T) {
		data := base()
		data.orderbook.Imbalance = 0.65
		a := NewAccount("acc1", &fakeAPI{}, data, testConfig())
		if got := a.checkSellCondition(context.Background(), "AAPL", 10, 11, 10); got.sell {
			t.Errorf("bid-dominated book should hold, got %+v", got)
		}
	})

	t.Run("buy tape dominance holds", func(t *testing.T) {
		data := base()
		data.ticks = []signalstore.Tick{
			{Direction: "BUY", Volume: 800},
			{Direction: "SELL", Volume: 300},
		}
		a := NewAccount("acc1", &fakeAPI{}, data, testConfig())
		if got := a.checkSellCondition(context.Background(), "AAPL", 10, 11, 10); got.sell {
			t.Errorf("buy-dominated tape should hold, got %+v", got)
		}
	})

	t.Run("vwap breakdown bypasses the guards", func(t *testing.T) {
		data := base()
		data.orderbook.Imbalance = 0.9
		data.ticks = []signalstore.Tick{{Direction: "BUY", Volume: 9999}}
		// VWAP 10.7, ATR 0.4: breakdown below 10.7 - 0.3 = 10.4.
		data.inds["VWAP"] = 10.7
		a := NewAccount("acc1", &fakeAPI{}, data, testConfig())
		got := a.checkSellCondition(context.Background(), "AAPL", 10, 11, 10)
		if !got.sell || got.qty != 10 {
			t.Errorf("VWAP breakdown should exit full position regardless of tape, got %+v", got)
		}
	})
}

func TestSellWithRetryFillsAfterMonitor(t *testing.T) {
	api := &fakeAPI{
		balance:   venue.Balance{SettledCash: 500},
		positions: []venue.Position{{Ticker: "AAPL", Quantity: 10}},
	}
	data := &fakeMarket{orderbook: &signalstore.OrderbookSnapshot{BestBidPrice: 10.5}}
	a := NewAccount("acc1", api, data, testConfig())
	a.RefreshPositions(context.Background())
	a.quantity["AAPL"] = 10

	api.setOrders(venue.Order{OrderID: "A", Ticker: "AAPL", Status: venue.StatusFilledAll, Price: 10.5, Quantity: 10})

	if err := a.sellWithRetry(context.Background(), "AAPL", 10.5, 10); err != nil {
		t.Fatalf("sellWithRetry() error: %v", err)
	}
	if len(api.placed) != 1 || api.placed[0].Side != venue.SideSell {
		t.Errorf("expected one sell order, got %+v", api.placed)
	}
	a.mu.Lock()
	remaining := a.quantity["AAPL"]
	a.mu.Unlock()
	if remaining != 0 {
		t.Errorf("tracked quantity should be 0 after full exit, got %v", remaining)
	}
}

func TestSellWithRetryRejectedWithoutPosition(t *testing.T) {
	api := &fakeAPI{}
	a := NewAccount("acc1", api, &fakeMarket{}, testConfig())

	if err := a.sellWithRetry(context.Background(), "AAPL", 10, 5); err == nil {
		t.Fatal("expected rejection without a position")
	}
	if len(api.placed) != 0 {
		t.Errorf("no order should be placed, got %+v", api.placed)
	}
}

func TestSellWithRetryBudgetBound(t *testing.T) {
	api := &fakeAPI{
		positions: []venue.Position{{Ticker: "AAPL", Quantity: 10}},
		placeErr:  errors.New("gateway down"),
	}
	cfg := testConfig()
	cfg.SellRetryBudget = 50 * time.Millisecond
	a := NewAccount("acc1", api, &fakeMarket{}, cfg)
	a.RefreshPositions(context.Background())

	start := time.Now()
	err := a.sellWithRetry(context.Background(), "AAPL", 10, 5)
	if err == nil {
		t.Fatal("expected budget exhaustion error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("retry loop ran too long: %v", elapsed)
	}
}

func TestSmartSellCircuitBreaker(t *testing.T) {
	api := &fakeAPI{
		positions: []venue.Position{{Ticker: "AAPL", Quantity: 10}},
	}
	// $8.99 is below the $10.00 * 0.90 breaker line.
	data := &fakeMarket{
		price: 8.99, hasPrice: true,
		inds:      map[string]float64{"ATR": 0.2},
		orderbook: &signalstore.OrderbookSnapshot{BestBidPrice: 8.98},
	}
	a := NewAccount("acc1", api, data, testConfig())
	a.RefreshPositions(context.Background())
	a.quantity["AAPL"] = 10

	api.setOrders(venue.Order{OrderID: "A", Ticker: "AAPL", Status: venue.StatusFilledAll, Price: 8.99, Quantity: 10})

	done := make(chan struct{})
	go func() {
		a.smartSell(context.Background(), "AAPL", 10.0, 10, time.Now().Add(-time.Minute))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("smart sell did not exit after circuit breaker")
	}
	if len(api.placed) == 0 || api.placed[0].Side != venue.SideSell {
		t.Fatalf("expected emergency sell order, got %+v", api.placed)
	}
}

func TestSmartSellRebasesAfterScaleOut(t *testing.T) {
	api := &fakeAPI{
		positions: []venue.Position{{Ticker: "AAPL", Quantity: 10}},
	}
	// Buy at $10 with ATR 0.5: threshold 10.75. Price 10.80 scales out half.
	data := &fakeMarket{
		price: 10.80, hasPrice: true,
		inds:      map[string]float64{"ATR": 0.5},
		orderbook: &signalstore.OrderbookSnapshot{BestBidPrice: 10.78},
	}
	a := NewAccount("acc1", api, data, testConfig())
	a.RefreshPositions(context.Background())
	a.quantity["AAPL"] = 10

	// Both sell orders fill immediately at the gateway.
	api.setOrders(
		venue.Order{OrderID: "A", Ticker: "AAPL", Status: venue.StatusFilledAll},
		venue.Order{OrderID: "B", Ticker: "AAPL", Status: venue.StatusFilledAll},
	)

	done := make(chan struct{})
	go func() {
		a.smartSell(context.Background(), "AAPL", 10.0, 10, time.Now().Add(-time.Minute))
		close(done)
	}()

	// Wait for the scale-out, then drop the price to $9.50. That is above
	// the original breaker line (10.00 * 0.90 = 9.00) but below the
	// re-based one (10.78 * 0.90 = 9.70), so the emergency exit only fires
	// if the cost basis re-based to the scale-out price.
	deadline := time.Now().Add(5 * time.Second)
	for api.placedCount() < 1 {
		if time.Now().After(deadline) {
			t.Fatal("scale-out order was never placed")
		}
		time.Sleep(2 * time.Millisecond)
	}
	data.setPrice(9.50)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("circuit breaker did not fire off the re-based buy price")
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.placed) != 2 {
		t.Fatalf("expected scale-out plus emergency sell, got %+v", api.placed)
	}
	if api.placed[0].Quantity != 5 || api.placed[0].Price != 10.78 {
		t.Errorf("scale-out order = %+v, want 5 shares at bid 10.78", api.placed[0])
	}
	if api.placed[1].Quantity != 5 || api.placed[1].Price != 9.50 {
		t.Errorf("emergency sell = %+v, want remaining 5 shares at 9.50", api.placed[1])
	}
}
