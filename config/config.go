package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"moomoo-strategy-bot/notifications"
)

// Config holds application configuration
type Config struct {
	// Tickers watched by the evaluation loops
	Tickers []string

	// Redis configuration
	RedisHost     string
	RedisPort     string
	RedisPassword string

	// Database configuration
	DatabaseHost     string
	DatabasePort     string
	DatabaseName     string
	DatabaseUser     string
	DatabasePassword string

	// Oracle configuration
	Oracle OracleConfig

	// Venue configuration
	Venue VenueConfig

	// Lifecycle thresholds
	Lifecycle LifecycleConfig

	// Execution thresholds
	Execution ExecutionConfig

	// Webhook notification endpoints
	Webhooks []notifications.Webhook
}

// OracleConfig holds prediction service configuration
type OracleConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// VenueConfig holds brokerage gateway configuration
type VenueConfig struct {
	BaseURL  string
	WSURL    string
	Accounts []AccountConfig
}

// AccountConfig is one trading account at the venue
type AccountConfig struct {
	ID            string
	TradePassword string
}

// LifecycleConfig holds strategy lifecycle thresholds
type LifecycleConfig struct {
	EntryProbability      float64
	TargetATRMultiple     float64
	TargetFallbackPercent float64
	StopVWAPATRMultiple   float64
	StopATRMultiple       float64
	TapeWindowSeconds     int
}

// ExecutionConfig holds order execution parameters
type ExecutionConfig struct {
	TradingEnabled bool
	TradingAmount  float64

	ProfitATRMultiple   float64
	ProfitMinPercent    float64
	TrailStrongADX      float64
	TrailWeakADX        float64
	CircuitBreakerRatio float64
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		Tickers: getEnvList("TICKERS", []string{"AAPL"}),

		// Redis configuration
		RedisHost:     getEnvOrDefault("REDIS_HOST", "localhost"),
		RedisPort:     getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),

		// Database configuration
		DatabaseHost:     getEnvOrDefault("DB_HOST", "localhost"),
		DatabasePort:     getEnvOrDefault("DB_PORT", "5432"),
		DatabaseName:     getEnvOrDefault("DB_NAME", "strategy_bot"),
		DatabaseUser:     getEnvOrDefault("DB_USER", "strategy"),
		DatabasePassword: getEnvOrDefault("DB_PASSWORD", ""),

		// Oracle configuration
		Oracle: OracleConfig{
			Endpoint: getEnvOrDefault("ORACLE_ENDPOINT", "http://localhost:8100"),
			APIKey:   getEnvOrDefault("ORACLE_API_KEY", ""),
			Timeout:  time.Duration(getEnvInt("ORACLE_TIMEOUT_SECONDS", 3)) * time.Second,
		},

		// Venue configuration
		Venue: VenueConfig{
			BaseURL:  getEnvOrDefault("VENUE_BASE_URL", "http://localhost:8200"),
			WSURL:    getEnvOrDefault("VENUE_WS_URL", "ws://localhost:8200/ws"),
			Accounts: loadAccounts(),
		},

		// Lifecycle thresholds
		Lifecycle: LifecycleConfig{
			EntryProbability:      getEnvFloat("LIFECYCLE_ENTRY_PROBABILITY", 0.7),
			TargetATRMultiple:     getEnvFloat("LIFECYCLE_TARGET_ATR_MULT", 1.5),
			TargetFallbackPercent: getEnvFloat("LIFECYCLE_TARGET_FALLBACK_PCT", 0.02),
			StopVWAPATRMultiple:   getEnvFloat("LIFECYCLE_STOP_VWAP_ATR_MULT", 0.5),
			StopATRMultiple:       getEnvFloat("LIFECYCLE_STOP_ATR_MULT", 1.5),
			TapeWindowSeconds:     getEnvInt("LIFECYCLE_TAPE_WINDOW_SECONDS", 5),
		},

		// Execution thresholds
		Execution: ExecutionConfig{
			TradingEnabled: getEnvOrDefault("TRADING_ENABLED", "false") == "true",
			TradingAmount:  getEnvFloat("TRADING_AMOUNT", 10),

			ProfitATRMultiple:   getEnvFloat("TRADING_PROFIT_ATR_MULT", 1.5),
			ProfitMinPercent:    getEnvFloat("TRADING_PROFIT_MIN_PCT", 0.03),
			TrailStrongADX:      getEnvFloat("TRADING_TRAIL_STRONG_ADX", 30),
			TrailWeakADX:        getEnvFloat("TRADING_TRAIL_WEAK_ADX", 20),
			CircuitBreakerRatio: getEnvFloat("TRADING_CIRCUIT_BREAKER_RATIO", 0.90),
		},

		Webhooks: loadWebhooks(),
	}
}

// loadAccounts parses the venue account list. Account IDs come as a comma
// separated list; each account may carry its own trade password via
// VENUE_PASSWORD_<ID>, falling back to the shared VENUE_TRADE_PASSWORD.
func loadAccounts() []AccountConfig {
	ids := getEnvList("VENUE_ACCOUNT_IDS", nil)
	shared := os.Getenv("VENUE_TRADE_PASSWORD")

	accounts := make([]AccountConfig, 0, len(ids))
	for _, id := range ids {
		password := os.Getenv("VENUE_PASSWORD_" + id)
		if password == "" {
			password = shared
		}
		accounts = append(accounts, AccountConfig{ID: id, TradePassword: password})
	}
	return accounts
}

// loadWebhooks parses webhook endpoints. WEBHOOK_URLS is a comma separated
// list; auth and retry settings are shared across endpoints.
func loadWebhooks() []notifications.Webhook {
	urls := getEnvList("WEBHOOK_URLS", nil)
	if len(urls) == 0 {
		return nil
	}

	authType := getEnvOrDefault("WEBHOOK_AUTH_TYPE", "")
	authHeader := getEnvOrDefault("WEBHOOK_AUTH_HEADER", "")
	authValue := getEnvOrDefault("WEBHOOK_AUTH_VALUE", "")
	events := getEnvList("WEBHOOK_EVENTS", nil)
	retryCount := getEnvInt("WEBHOOK_RETRY_COUNT", 3)
	retryDelay := getEnvInt("WEBHOOK_RETRY_DELAY_SECONDS", 5)

	hooks := make([]notifications.Webhook, 0, len(urls))
	for i, url := range urls {
		hooks = append(hooks, notifications.Webhook{
			Name:              fmt.Sprintf("webhook-%d", i+1),
			URL:               url,
			AuthType:          authType,
			AuthHeader:        authHeader,
			AuthValue:         authValue,
			Events:            events,
			RetryCount:        retryCount,
			RetryDelaySeconds: retryDelay,
		})
	}
	return hooks
}

// getEnvList gets environment variable as a comma separated list or returns default value
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// getEnvInt gets environment variable as int or returns default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var intValue int
	if _, err := fmt.Sscanf(value, "%d", &intValue); err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvFloat gets environment variable as float64 or returns default value
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var floatValue float64
	if _, err := fmt.Sscanf(value, "%f", &floatValue); err != nil {
		return defaultValue
	}
	return floatValue
}

// getEnvOrDefault gets environment variable or returns default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
