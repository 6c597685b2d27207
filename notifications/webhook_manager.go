// Package notifications delivers strategy lifecycle events to external
// webhook endpoints with per-hook auth, filters and bounded retry.
package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"moomoo-strategy-bot/strategy"
)

// Webhook is one configured delivery endpoint.
type Webhook struct {
	Name              string
	URL               string
	AuthType          string // "BEARER", "CUSTOM", or empty
	AuthHeader        string // header name when AuthType is CUSTOM
	AuthValue         string
	Events            []string // empty means all events
	Tickers           []string // empty means all tickers
	RetryCount        int
	RetryDelaySeconds int
}

// Payload is the JSON body sent to each webhook.
type Payload struct {
	Event             string     `json:"event"`
	Ticker            string     `json:"ticker"`
	StrategyName      string     `json:"strategy_name"`
	PatternType       string     `json:"pattern_type"`
	EntryPrice        float64    `json:"entry_price"`
	TargetPrice       float64    `json:"target_price"`
	StopPrice         float64    `json:"stop_price"`
	Probability       float64    `json:"probability"`
	MatchScore        float64    `json:"match_score"`
	ModelUsed         bool       `json:"model_used"`
	CompletionType    string     `json:"completion_type,omitempty"`
	FinalPrice        float64    `json:"final_price,omitempty"`
	ProfitLoss        float64    `json:"profit_loss,omitempty"`
	ProfitLossPercent float64    `json:"profit_loss_percent,omitempty"`
	CompletionTime    *time.Time `json:"completion_time,omitempty"`
	Timestamp         time.Time  `json:"timestamp"`
}

// Manager fans strategy events out to the configured webhooks.
type Manager struct {
	webhooks []Webhook
	client   *http.Client
	wg       sync.WaitGroup
}

// NewManager creates a webhook manager over a fixed endpoint list.
func NewManager(webhooks []Webhook) *Manager {
	return &Manager{
		webhooks: webhooks,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// NotifyStrategyEvent delivers one lifecycle event to all matching webhooks.
// Delivery runs asynchronously so the trading loop never blocks on HTTP.
func (m *Manager) NotifyStrategyEvent(ctx context.Context, event string, st *strategy.Strategy) {
	if st == nil || len(m.webhooks) == 0 {
		return
	}

	payload := Payload{
		Event:             event,
		Ticker:            st.Ticker,
		StrategyName:      st.Name,
		PatternType:       st.PatternType,
		EntryPrice:        st.EntryPrice,
		TargetPrice:       st.TargetPrice,
		StopPrice:         st.StopPrice,
		Probability:       st.Probability,
		MatchScore:        st.MatchScore,
		ModelUsed:         st.ModelUsed,
		CompletionType:    st.CompletionType,
		FinalPrice:        st.FinalPrice,
		ProfitLoss:        st.ProfitLoss,
		ProfitLossPercent: st.ProfitLossPercent,
		CompletionTime:    st.CompletionTime,
		Timestamp:         time.Now(),
	}

	for _, hook := range m.webhooks {
		if !m.shouldSend(hook, event, st.Ticker) {
			continue
		}
		m.wg.Add(1)
		go func(hook Webhook) {
			defer m.wg.Done()
			m.deliver(ctx, hook, payload)
		}(hook)
	}
}

// Wait blocks until all in-flight deliveries finish. Used during shutdown.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// shouldSend applies the webhook's event and ticker filters.
func (m *Manager) shouldSend(hook Webhook, event, ticker string) bool {
	if len(hook.Events) > 0 {
		matched := false
		for _, e := range hook.Events {
			if strings.EqualFold(e, event) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if len(hook.Tickers) > 0 {
		matched := false
		for _, t := range hook.Tickers {
			if strings.EqualFold(t, ticker) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	return true
}

// deliver posts the payload with a bounded retry loop.
func (m *Manager) deliver(ctx context.Context, hook Webhook, payload Payload) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("🔴 Failed to marshal webhook payload for %s: %v", hook.Name, err)
		return
	}

	attempts := hook.RetryCount
	if attempts < 1 {
		attempts = 1
	}
	delay := time.Duration(hook.RetryDelaySeconds) * time.Second
	if delay <= 0 {
		delay = 5 * time.Second
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		log.Printf("🔹 Sending webhook to %s (Attempt %d/%d)", hook.Name, attempt, attempts)

		err := m.send(ctx, hook, body)
		if err == nil {
			log.Printf("✅ Webhook delivered to %s for %s/%s", hook.Name, payload.Ticker, payload.Event)
			return
		}
		log.Printf("⚠️ Webhook delivery to %s failed: %v", hook.Name, err)

		if attempt < attempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}
	}

	log.Printf("🔴 Webhook delivery to %s exhausted after %d attempts", hook.Name, attempts)
}

func (m *Manager) send(ctx context.Context, hook Webhook, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	switch strings.ToUpper(hook.AuthType) {
	case "BEARER":
		req.Header.Set("Authorization", "Bearer "+hook.AuthValue)
	case "CUSTOM":
		if hook.AuthHeader != "" {
			req.Header.Set(hook.AuthHeader, hook.AuthValue)
		}
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
