// Package oracle talks to the model service that scores pattern setups.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"moomoo-strategy-bot/patterns"
)

// Client is an HTTP client for the pattern-success model service
type Client struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewClient creates a new oracle client
func NewClient(endpoint, apiKey string, timeout time.Duration) *Client {
	// Configure custom HTTP transport for optimal connection pooling
	transport := &http.Transport{
		MaxIdleConns:        100,              // Max idle connections across all hosts
		MaxIdleConnsPerHost: 10,               // Max idle connections per host
		IdleConnTimeout:     90 * time.Second, // Idle connection timeout
		DisableCompression:  false,            // Keep compression enabled
	}

	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
	}
}

// predictRequest is the wire format of a prediction request
type predictRequest struct {
	Ticker   string            `json:"ticker"`
	Features patterns.Features `json:"features"`
}

// predictResponse is the wire format of a prediction response
type predictResponse struct {
	SuccessProbability float64            `json:"success_probability"`
	ConfidenceScore    float64            `json:"confidence_score"`
	ModelUsed          bool               `json:"model_used"`
	FeatureImportance  map[string]float64 `json:"feature_importance"`
}

// Predict scores a feature vector against the trained pattern-success model.
// The caller treats any returned error as "oracle unavailable" and falls back
// to the heuristic probability.
func (c *Client) Predict(ctx context.Context, ticker string, features patterns.Features) (patterns.Prediction, error) {
	reqBody := predictRequest{Ticker: ticker, Features: features}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return patterns.Prediction{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint+"/predict", bytes.NewReader(jsonData))
	if err != nil {
		return patterns.Prediction{}, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return patterns.Prediction{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return patterns.Prediction{}, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var predResp predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&predResp); err != nil {
		return patterns.Prediction{}, fmt.Errorf("failed to decode response: %w", err)
	}

	return patterns.Prediction{
		SuccessProbability: predResp.SuccessProbability,
		ConfidenceScore:    predResp.ConfidenceScore,
		ModelUsed:          predResp.ModelUsed,
		FeatureImportance:  predResp.FeatureImportance,
	}, nil
}
