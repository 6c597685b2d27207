package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is the REST client for the brokerage gateway daemon.
type Client struct {
	baseURL   string
	accountID string
	client    *http.Client
}

// NewClient creates a gateway client for one trading account.
func NewClient(baseURL, accountID string, timeout time.Duration) *Client {
	// Configure custom HTTP transport for optimal connection pooling
	transport := &http.Transport{
		MaxIdleConns:        100,              // Max idle connections across all hosts
		MaxIdleConnsPerHost: 10,               // Max idle connections per host
		IdleConnTimeout:     90 * time.Second, // Idle connection timeout
		DisableCompression:  false,            // Keep compression enabled
	}

	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL:   baseURL,
		accountID: accountID,
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
	}
}

// AccountID returns the account this client trades for.
func (c *Client) AccountID() string { return c.accountID }

type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, method, path string, body, dest interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Account-ID", c.accountID)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("API error %d: %s", resp.StatusCode, string(raw))
	}

	var wrapper apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&wrapper); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if wrapper.Code != 0 {
		return fmt.Errorf("gateway error %d: %s", wrapper.Code, wrapper.Message)
	}
	if dest != nil && len(wrapper.Data) > 0 {
		if err := json.Unmarshal(wrapper.Data, dest); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return nil
}

// Unlock unlocks trading with the account's trading password. The process
// cannot trade until this succeeds.
func (c *Client) Unlock(ctx context.Context, password string) error {
	body := map[string]string{"password": password}
	if err := c.do(ctx, "POST", "/trade/unlock", body, nil); err != nil {
		return fmt.Errorf("failed to unlock trade: %w", err)
	}
	return nil
}

// PlaceOrder submits a new limit order and returns the accepted order.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (Order, error) {
	var order Order
	if err := c.do(ctx, "POST", "/trade/orders", req, &order); err != nil {
		return Order{}, fmt.Errorf("failed to place %s order for %s: %w", req.Side, req.Ticker, err)
	}
	return order, nil
}

// ModifyOrder re-prices a working order.
func (c *Client) ModifyOrder(ctx context.Context, orderID string, price, qty float64) error {
	body := map[string]interface{}{"price": price, "qty": qty}
	if err := c.do(ctx, "PUT", "/trade/orders/"+orderID, body, nil); err != nil {
		return fmt.Errorf("failed to modify order %s: %w", orderID, err)
	}
	return nil
}

// CancelOrder cancels a working order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if err := c.do(ctx, "DELETE", "/trade/orders/"+orderID, nil, nil); err != nil {
		return fmt.Errorf("failed to cancel order %s: %w", orderID, err)
	}
	return nil
}

// Balance returns the account's funds snapshot.
func (c *Client) Balance(ctx context.Context) (Balance, error) {
	var b Balance
	if err := c.do(ctx, "GET", "/trade/balance", nil, &b); err != nil {
		return Balance{}, fmt.Errorf("failed to query balance: %w", err)
	}
	return b, nil
}

// Positions returns all open positions.
func (c *Client) Positions(ctx context.Context) ([]Position, error) {
	var positions []Position
	if err := c.do(ctx, "GET", "/trade/positions", nil, &positions); err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	return positions, nil
}

// Orders returns today's orders, working and terminal.
func (c *Client) Orders(ctx context.Context) ([]Order, error) {
	var orders []Order
	if err := c.do(ctx, "GET", "/trade/orders", nil, &orders); err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	return orders, nil
}
