// Package strategy holds the per-ticker trading strategy aggregate: the
// state machine, the target ladder, and the indicator snapshot frozen at
// lock time for offline model training.
package strategy

import (
	"time"
)

// State is the lifecycle state of a strategy.
type State string

const (
	StateAnalyzing State = "ANALYZING"
	StateLocked    State = "LOCKED"
	StateCompleted State = "COMPLETED"
)

// Completion reasons.
const (
	CompletionTarget = "target"
	CompletionStop   = "stop"
	CompletionSell   = "sell"
)

// DefaultMaxTargets bounds the target ladder so ratcheting cannot grow it
// without limit.
const DefaultMaxTargets = 3

// TargetLevel is one rung of the target ladder. Append-only except for the
// achieved flag flip.
type TargetLevel struct {
	Price      float64    `json:"price"`
	CreatedAt  time.Time  `json:"created_at"`
	Achieved   bool       `json:"achieved"`
	AchievedAt *time.Time `json:"achieved_at,omitempty"`
}

// IndicatorSnapshot freezes the technical indicator values at lock time.
type IndicatorSnapshot struct {
	VWAP        float64 `json:"VWAP"`
	RSI         float64 `json:"RSI"`
	StochRSIK   float64 `json:"StochRSI_K"`
	StochRSID   float64 `json:"StochRSI_D"`
	MACD        float64 `json:"MACD"`
	MACDSignal  float64 `json:"MACD_signal"`
	MACDHist    float64 `json:"MACD_hist"`
	ADX         float64 `json:"ADX"`
	DMP         float64 `json:"DMP"`
	DMN         float64 `json:"DMN"`
	Supertrend  float64 `json:"Supertrend"`
	Trend       float64 `json:"Trend"`
	PSARLong    float64 `json:"PSAR_L"`
	PSARShort   float64 `json:"PSAR_S"`
	PSARReverse float64 `json:"PSAR_R"`
	EMA200      float64 `json:"EMA200"`
	EMA21       float64 `json:"EMA21"`
	EMA9        float64 `json:"EMA9"`
	EMA4        float64 `json:"EMA4"`
	EMA5        float64 `json:"EMA5"`
	VWAPSlope   float64 `json:"VWAP_Slope"`
	VolumeRatio float64 `json:"Volume_Ratio"`
	ROC         float64 `json:"ROC"`
	WilliamsR   float64 `json:"Williams_R"`
	ATR         float64 `json:"ATR"`
	HOD         float64 `json:"HOD"`
	ATRToHOD    float64 `json:"ATR_to_HOD"`
	ATRToVWAP   float64 `json:"ATR_to_VWAP"`
	ZenP        float64 `json:"ZenP"`
	RVol        float64 `json:"RVol"`
	BBLower     float64 `json:"BB_lower"`
	BBMid       float64 `json:"BB_mid"`
	BBUpper     float64 `json:"BB_upper"`
	ATRSpread   float64 `json:"ATR_Spread"`
}

// SnapshotFrom builds an IndicatorSnapshot from a name→value map, taking
// zero for anything missing.
func SnapshotFrom(m map[string]float64) IndicatorSnapshot {
	return IndicatorSnapshot{
		VWAP:        m["VWAP"],
		RSI:         m["RSI"],
		StochRSIK:   m["StochRSI_K"],
		StochRSID:   m["StochRSI_D"],
		MACD:        m["MACD"],
		MACDSignal:  m["MACD_signal"],
		MACDHist:    m["MACD_hist"],
		ADX:         m["ADX"],
		DMP:         m["DMP"],
		DMN:         m["DMN"],
		Supertrend:  m["Supertrend"],
		Trend:       m["Trend"],
		PSARLong:    m["PSAR_L"],
		PSARShort:   m["PSAR_S"],
		PSARReverse: m["PSAR_R"],
		EMA200:      m["EMA200"],
		EMA21:       m["EMA21"],
		EMA9:        m["EMA9"],
		EMA4:        m["EMA4"],
		EMA5:        m["EMA5"],
		VWAPSlope:   m["VWAP_Slope"],
		VolumeRatio: m["Volume_Ratio"],
		ROC:         m["ROC"],
		WilliamsR:   m["Williams_R"],
		ATR:         m["ATR"],
		HOD:         m["HOD"],
		ATRToHOD:    m["ATR_to_HOD"],
		ATRToVWAP:   m["ATR_to_VWAP"],
		ZenP:        m["ZenP"],
		RVol:        m["RVol"],
		BBLower:     m["BB_lower"],
		BBMid:       m["BB_mid"],
		BBUpper:     m["BB_upper"],
		ATRSpread:   m["ATR_Spread"],
	}
}

// Strategy is the central mutable aggregate: one non-completed instance per
// ticker, stored in the signal store's strategy slot.
type Strategy struct {
	Ticker      string `json:"ticker"`
	Name        string `json:"name"`
	PatternType string `json:"pattern_type"`
	Description string `json:"description"`
	State       State  `json:"state"`

	// Revision guards the store's compare-and-swap replace.
	Revision int64 `json:"revision"`

	EntryPrice  float64 `json:"entry_price"`
	TargetPrice float64 `json:"target_price"`
	StopPrice   float64 `json:"stop_price"`
	Probability float64 `json:"probability"`
	MatchScore  float64 `json:"match_score"`
	Confidence  float64 `json:"confidence"`
	ModelUsed   bool    `json:"model_used"`

	LockTime *time.Time `json:"lock_time,omitempty"`
	BuyTime  *time.Time `json:"buy_time,omitempty"`
	HoldTime *time.Time `json:"hold_time,omitempty"`

	TargetHistory      []TargetLevel `json:"target_history"`
	CurrentTargetIndex int           `json:"current_target_index"`
	MaxTargets         int           `json:"max_targets"`

	CompletionType    string     `json:"completion_type,omitempty"`
	CompletionTime    *time.Time `json:"completion_time,omitempty"`
	FinalPrice        float64    `json:"final_price"`
	ProfitLoss        float64    `json:"profit_loss"`
	ProfitLossPercent float64    `json:"profit_loss_percent"`

	Indicators IndicatorSnapshot `json:"indicators"`
}

// New creates a LOCKED strategy with its target ladder seeded.
func New(ticker, name string, entry, target, stop float64, now time.Time) *Strategy {
	s := &Strategy{
		Ticker:      ticker,
		Name:        name,
		State:       StateLocked,
		EntryPrice:  entry,
		TargetPrice: target,
		StopPrice:   stop,
		LockTime:    &now,
		BuyTime:     &now,
		MaxTargets:  DefaultMaxTargets,
	}
	if target > 0 {
		s.TargetHistory = []TargetLevel{{Price: target, CreatedAt: now}}
	}
	return s
}

// CurrentTarget returns the active rung of the target ladder.
func (s *Strategy) CurrentTarget() (TargetLevel, bool) {
	if s.CurrentTargetIndex < 0 || s.CurrentTargetIndex >= len(s.TargetHistory) {
		return TargetLevel{}, false
	}
	return s.TargetHistory[s.CurrentTargetIndex], true
}

// UpdateTarget ratchets the ladder: when newTarget improves on the current
// unachieved rung, the rung is marked achieved and a new rung is appended,
// bounded by MaxTargets. Returns true when a new rung was added; false when
// the ladder is exhausted or the candidate does not improve on it.
func (s *Strategy) UpdateTarget(newTarget float64, now time.Time) bool {
	if len(s.TargetHistory) == 0 {
		if s.TargetPrice > 0 {
			s.TargetHistory = []TargetLevel{{Price: s.TargetPrice, CreatedAt: now}}
		}
		return false
	}

	maxTargets := s.MaxTargets
	if maxTargets <= 0 {
		maxTargets = DefaultMaxTargets
	}

	current := &s.TargetHistory[s.CurrentTargetIndex]
	if !current.Achieved && newTarget > current.Price {
		current.Achieved = true
		at := now
		current.AchievedAt = &at

		if len(s.TargetHistory) < maxTargets {
			s.TargetHistory = append(s.TargetHistory, TargetLevel{Price: newTarget, CreatedAt: now})
			s.CurrentTargetIndex = len(s.TargetHistory) - 1
			s.TargetPrice = newTarget
			return true
		}
	}
	return false
}

// RaiseStop tightens the stop. Stops only ratchet up, never loosen.
func (s *Strategy) RaiseStop(newStop float64) bool {
	if newStop > s.StopPrice {
		s.StopPrice = newStop
		return true
	}
	return false
}

// Complete transitions the strategy to its terminal state and computes the
// realized P&L from the completion type: sell uses the mark price, stop the
// stop price, target the target price. Completing twice is a no-op.
func (s *Strategy) Complete(completionType string, finalPrice float64, now time.Time) bool {
	if s.State == StateCompleted {
		return false
	}
	s.State = StateCompleted
	s.CompletionType = completionType
	s.CompletionTime = &now
	s.FinalPrice = finalPrice

	if s.BuyTime == nil || s.EntryPrice <= 0 {
		return true
	}

	var exitPrice float64
	switch completionType {
	case CompletionSell:
		exitPrice = finalPrice
	case CompletionStop:
		exitPrice = s.StopPrice
	case CompletionTarget:
		exitPrice = s.TargetPrice
	default:
		exitPrice = finalPrice
	}
	if exitPrice > 0 {
		s.ProfitLoss = exitPrice - s.EntryPrice
		s.ProfitLossPercent = s.ProfitLoss / s.EntryPrice * 100
	}
	return true
}
