package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"moomoo-strategy-bot/patterns"
)

func TestPredict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/predict" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected auth header %q", got)
		}

		var req struct {
			Ticker   string            `json:"ticker"`
			Features patterns.Features `json:"features"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Ticker != "BBCA" {
			t.Errorf("unexpected ticker %s", req.Ticker)
		}
		if req.Features.MatchScore != 72 {
			t.Errorf("unexpected match score %v", req.Features.MatchScore)
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"success_probability": 0.81,
			"confidence_score":    0.9,
			"model_used":          true,
			"feature_importance":  map[string]float64{"risk_reward_ratio": 0.4},
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, "secret", time.Second)
	pred, err := c.Predict(context.Background(), "BBCA", patterns.Features{MatchScore: 72})
	if err != nil {
		t.Fatalf("Predict() error: %v", err)
	}
	if pred.SuccessProbability != 0.81 || pred.ConfidenceScore != 0.9 || !pred.ModelUsed {
		t.Errorf("unexpected prediction: %+v", pred)
	}
	if pred.FeatureImportance["risk_reward_ratio"] != 0.4 {
		t.Errorf("unexpected feature importance: %v", pred.FeatureImportance)
	}
}

func TestPredictServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewClient(server.URL, "", time.Second)
	if _, err := c.Predict(context.Background(), "BBCA", patterns.Features{}); err == nil {
		t.Fatal("expected error on 503 response")
	}
}

func TestPredictUnreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "", 200*time.Millisecond)
	if _, err := c.Predict(context.Background(), "BBCA", patterns.Features{}); err == nil {
		t.Fatal("expected error when oracle is unreachable")
	}
}
