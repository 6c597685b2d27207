package signalstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"moomoo-strategy-bot/strategy"
)

// TradeSignalChannel is the pub/sub topic carrying entry/target/exit events.
const TradeSignalChannel = "trade_signal"

// Store is the shared low-latency market-data and strategy-state store.
// Market data is written by the ingestion pipeline and read-only here; the
// per-ticker strategy slot is owned and mutated by this process.
type Store struct {
	client *redis.Client
}

// New connects to Redis and verifies the connection.
func New(host, port, password string) (*Store, error) {
	addr := fmt.Sprintf("%s:%s", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	log.Printf("✅ Connected to Redis at %s", addr)
	return &Store{client: client}, nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func keyPrice(ticker string) string           { return "price:" + ticker }
func keyVolume(ticker string) string          { return "volume:" + ticker }
func keyIndicators(ticker string) string      { return "indicators:" + ticker }
func keySeries(ticker, name string) string    { return "indicator_series:" + ticker + ":" + name }
func keyCandles(ticker string) string         { return "candles:" + ticker }
func keyTicks(ticker string) string           { return "ticks:" + ticker }
func keyOrderbook(ticker string) string       { return "orderbook:" + ticker }
func keyKeyLevels(ticker string) string       { return "key_levels:" + ticker }
func keyAvgVolume(ticker string) string       { return "avg_30d_volume:" + ticker }
func keyCurrentStrategy(ticker string) string { return "strategy:current:" + ticker }
func keyStrategyHistory(ticker string) string { return "strategy:history:" + ticker }

const keyAllowBuy = "allow_buy"

func (s *Store) getJSON(ctx context.Context, key string, dest interface{}) bool {
	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			log.Printf("⚠️  Redis read failed for %s: %v", key, err)
		}
		return false
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		log.Printf("⚠️  Malformed value at %s: %v", key, err)
		return false
	}
	return true
}

// Price returns the latest price for a ticker.
func (s *Store) Price(ctx context.Context, ticker string) (float64, bool) {
	var p float64
	ok := s.getJSON(ctx, keyPrice(ticker), &p)
	return p, ok && p > 0
}

// Volume returns the latest cumulative session volume for a ticker.
func (s *Store) Volume(ctx context.Context, ticker string) (float64, bool) {
	var v float64
	ok := s.getJSON(ctx, keyVolume(ticker), &v)
	return v, ok
}

// Indicator returns the most recent value of one technical indicator.
func (s *Store) Indicator(ctx context.Context, ticker, name string) (float64, bool) {
	series := s.IndicatorSeries(ctx, ticker, name, 1)
	if len(series) == 0 {
		return 0, false
	}
	return series[len(series)-1], true
}

// IndicatorSeries returns the last n values of an indicator, oldest first.
// Missing data yields an empty slice, never an error.
func (s *Store) IndicatorSeries(ctx context.Context, ticker, name string, n int) []float64 {
	var series []float64
	if !s.getJSON(ctx, keySeries(ticker, name), &series) {
		return nil
	}
	if n > 0 && len(series) > n {
		series = series[len(series)-n:]
	}
	return series
}

// IndicatorMap returns all current indicator values for a ticker.
func (s *Store) IndicatorMap(ctx context.Context, ticker string) map[string]float64 {
	m := make(map[string]float64)
	s.getJSON(ctx, keyIndicators(ticker), &m)
	return m
}

// Candles returns the last n candles, oldest first.
func (s *Store) Candles(ctx context.Context, ticker string, n int) []Candle {
	var candles []Candle
	if !s.getJSON(ctx, keyCandles(ticker), &candles) {
		return nil
	}
	if n > 0 && len(candles) > n {
		candles = candles[len(candles)-n:]
	}
	return candles
}

// Ticks returns the last n trade prints, oldest first.
func (s *Store) Ticks(ctx context.Context, ticker string, n int) []Tick {
	var ticks []Tick
	if !s.getJSON(ctx, keyTicks(ticker), &ticks) {
		return nil
	}
	if n > 0 && len(ticks) > n {
		ticks = ticks[len(ticks)-n:]
	}
	return ticks
}

// Orderbook returns the latest order-book snapshot for a ticker.
func (s *Store) Orderbook(ctx context.Context, ticker string) (*OrderbookSnapshot, bool) {
	var ob OrderbookSnapshot
	if !s.getJSON(ctx, keyOrderbook(ticker), &ob) {
		return nil, false
	}
	return &ob, true
}

// KeyLevels returns the detected support/resistance levels for a ticker.
func (s *Store) KeyLevels(ctx context.Context, ticker string) []KeyLevel {
	var levels []KeyLevel
	s.getJSON(ctx, keyKeyLevels(ticker), &levels)
	return levels
}

// AvgDailyVolume returns the 30-day average daily volume for a ticker.
func (s *Store) AvgDailyVolume(ctx context.Context, ticker string) (float64, bool) {
	var v float64
	ok := s.getJSON(ctx, keyAvgVolume(ticker), &v)
	return v, ok && v > 0
}

// AllowBuy reports the global trading kill-switch. Defaults to true when the
// flag has never been set.
func (s *Store) AllowBuy(ctx context.Context) bool {
	val, err := s.client.Get(ctx, keyAllowBuy).Result()
	if err != nil {
		return true
	}
	return val != "false" && val != "0"
}

// SetAllowBuy flips the global trading kill-switch.
func (s *Store) SetAllowBuy(ctx context.Context, allowed bool) error {
	val := "true"
	if !allowed {
		val = "false"
	}
	return s.client.Set(ctx, keyAllowBuy, val, 0).Err()
}

// CurrentStrategy returns the active strategy for a ticker, if any.
func (s *Store) CurrentStrategy(ctx context.Context, ticker string) (*strategy.Strategy, bool) {
	var st strategy.Strategy
	if !s.getJSON(ctx, keyCurrentStrategy(ticker), &st) {
		return nil, false
	}
	return &st, true
}

// SwapStrategy atomically replaces the per-ticker strategy slot, but only if
// the stored revision still matches expectedRevision (0 means the slot must
// be empty). Passing next == nil clears the slot. Returns false when another
// writer got there first; the caller should re-read and re-decide.
func (s *Store) SwapStrategy(ctx context.Context, ticker string, expectedRevision int64, next *strategy.Strategy) (bool, error) {
	key := keyCurrentStrategy(ticker)
	swapped := false

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Result()
		switch {
		case err == redis.Nil:
			if expectedRevision != 0 {
				return nil
			}
		case err != nil:
			return err
		default:
			var cur strategy.Strategy
			if err := json.Unmarshal([]byte(raw), &cur); err != nil {
				return fmt.Errorf("malformed strategy slot for %s: %w", ticker, err)
			}
			if cur.Revision != expectedRevision {
				return nil
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if next == nil {
				pipe.Del(ctx, key)
				return nil
			}
			next.Revision = expectedRevision + 1
			payload, err := json.Marshal(next)
			if err != nil {
				return err
			}
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		if err == nil {
			swapped = true
		}
		return err
	}, key)

	if err == redis.TxFailedErr {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return swapped, nil
}

// AppendStrategyHistory prepends a completed strategy to the ticker's
// history list, capped at the most recent 100 entries.
func (s *Store) AppendStrategyHistory(ctx context.Context, ticker string, st *strategy.Strategy) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal strategy history entry: %w", err)
	}
	key := keyStrategyHistory(ticker)
	if err := s.client.LPush(ctx, key, payload).Err(); err != nil {
		return fmt.Errorf("failed to append strategy history: %w", err)
	}
	return s.client.LTrim(ctx, key, 0, 99).Err()
}

// StrategyHistory returns up to n most recent completed strategies.
func (s *Store) StrategyHistory(ctx context.Context, ticker string, n int) []strategy.Strategy {
	raws, err := s.client.LRange(ctx, keyStrategyHistory(ticker), 0, int64(n-1)).Result()
	if err != nil {
		return nil
	}
	out := make([]strategy.Strategy, 0, len(raws))
	for _, raw := range raws {
		var st strategy.Strategy
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			continue
		}
		out = append(out, st)
	}
	return out
}

// PublishTradeSignal publishes a discrete event on the trade_signal channel.
func (s *Store) PublishTradeSignal(ctx context.Context, sig TradeSignal) error {
	if sig.Timestamp.IsZero() {
		sig.Timestamp = time.Now()
	}
	payload, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("failed to marshal trade signal: %w", err)
	}
	return s.client.Publish(ctx, TradeSignalChannel, payload).Err()
}

// SubscribeTradeSignals subscribes to the trade_signal channel. The caller
// owns the returned PubSub and must close it.
func (s *Store) SubscribeTradeSignals(ctx context.Context) *redis.PubSub {
	return s.client.Subscribe(ctx, TradeSignalChannel)
}
