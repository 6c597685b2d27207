package signalstore

import (
	"time"
)

// Candle is one aggregated OHLCV bar produced by the market-data pipeline.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Tick is a single trade print with its aggressor classification.
type Tick struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
	Direction string    `json:"direction"` // "BUY", "SELL" or "NEUTRAL"
}

// OrderbookLevel is one price level of an order book side.
type OrderbookLevel struct {
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
}

// OrderbookSnapshot is the latest order-book state for a ticker, including
// the microstructure flags computed by the order-flow pipeline.
type OrderbookSnapshot struct {
	Timestamp      time.Time        `json:"timestamp"`
	Bids           []OrderbookLevel `json:"bids"`
	Asks           []OrderbookLevel `json:"asks"`
	BestBidPrice   float64          `json:"best_bid_price"`
	BestAskPrice   float64          `json:"best_ask_price"`
	BidVolume      float64          `json:"bid_volume"`
	AskVolume      float64          `json:"ask_volume"`
	Imbalance      float64          `json:"imbalance"`
	AggressorRatio float64          `json:"aggressor_ratio"`
	UptickSeq      int              `json:"uptick_seq"`
	SweepFlag      bool             `json:"sweep_flag"`
	ReloadFlag     bool             `json:"reload_flag"`
}

// Fresh reports whether the snapshot is recent enough to base decisions on.
func (o *OrderbookSnapshot) Fresh(maxAge time.Duration) bool {
	if o == nil || o.Timestamp.IsZero() {
		return false
	}
	return time.Since(o.Timestamp) <= maxAge
}

// KeyLevel is a detected support or resistance level.
type KeyLevel struct {
	Price    float64 `json:"price"`
	Type     string  `json:"type"` // "support" or "resistance"
	Strength float64 `json:"strength"`
}

// TradeSignal is a discrete event on the trade_signal bus.
type TradeSignal struct {
	Type      string    `json:"type"`   // signal producer, e.g. "trading_coach"
	Status    string    `json:"status"` // "entry", "target" or "exit"
	Ticker    string    `json:"ticker"`
	Timestamp time.Time `json:"timestamp"`
}

// AggressorStats computes the buyer-initiated volume ratio and the count of
// consecutive buy prints (newest first) over the tail of a tick window.
// Returns ratio 0.5 when there is no classified volume in the window.
func AggressorStats(ticks []Tick, window time.Duration) (ratio float64, uptickSeq int) {
	ratio = 0.5
	if len(ticks) == 0 {
		return ratio, 0
	}

	cutoff := ticks[len(ticks)-1].Timestamp.Add(-window)
	var buyVol, sellVol float64
	counting := true
	for i := len(ticks) - 1; i >= 0; i-- {
		t := ticks[i]
		if t.Timestamp.Before(cutoff) {
			break
		}
		switch t.Direction {
		case "BUY":
			buyVol += t.Volume
			if counting {
				uptickSeq++
			}
		case "SELL":
			sellVol += t.Volume
			counting = false
		}
	}

	if total := buyVol + sellVol; total > 0 {
		ratio = buyVol / total
	}
	return ratio, uptickSeq
}
