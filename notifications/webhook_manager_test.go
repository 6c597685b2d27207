package notifications

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"moomoo-strategy-bot/strategy"
)

func completedStrategy() *strategy.Strategy {
	now := time.Now()
	st := strategy.New("AAPL", "MomentumBreakout", 100, 106, 99, now)
	st.PatternType = "breakout"
	st.Probability = 0.82
	st.Complete(strategy.CompletionTarget, 106.2, now)
	return st
}

func TestNotifyDeliversPayload(t *testing.T) {
	var got Payload
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	m := NewManager([]Webhook{{
		Name:      "test",
		URL:       server.URL,
		AuthType:  "BEARER",
		AuthValue: "secret",
	}})

	m.NotifyStrategyEvent(context.Background(), "strategy_completed", completedStrategy())
	m.Wait()

	if auth != "Bearer secret" {
		t.Fatalf("expected bearer auth, got %q", auth)
	}
	if got.Event != "strategy_completed" || got.Ticker != "AAPL" {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if got.CompletionType != strategy.CompletionTarget || got.ProfitLoss != 6 {
		t.Fatalf("expected completion fields, got %+v", got)
	}
}

func TestNotifySkipsFilteredEvents(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	m := NewManager([]Webhook{{
		Name:   "completions-only",
		URL:    server.URL,
		Events: []string{"strategy_completed"},
	}})

	m.NotifyStrategyEvent(context.Background(), "strategy_locked", completedStrategy())
	m.Wait()

	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("expected no delivery for filtered event, got %d", calls)
	}
}

func TestNotifySkipsFilteredTickers(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	m := NewManager([]Webhook{{
		Name:    "tsla-only",
		URL:     server.URL,
		Tickers: []string{"TSLA"},
	}})

	m.NotifyStrategyEvent(context.Background(), "strategy_completed", completedStrategy())
	m.Wait()

	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("expected no delivery for filtered ticker, got %d", calls)
	}
}

func TestNotifyRetriesFailedDelivery(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	m := NewManager([]Webhook{{
		Name:              "flaky",
		URL:               server.URL,
		RetryCount:        2,
		RetryDelaySeconds: 1,
	}})

	m.NotifyStrategyEvent(context.Background(), "strategy_completed", completedStrategy())
	m.Wait()

	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected retry after failure, got %d calls", calls)
	}
}
