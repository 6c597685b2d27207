package database

import "time"

// StrategyHistory is one completed strategy, flattened for SQL analysis.
// The indicator columns freeze the technical snapshot taken at lock time so
// the model trainer can join outcomes to market state.
type StrategyHistory struct {
	ID uint `gorm:"primaryKey"`

	Ticker       string `gorm:"size:16;index;not null"`
	StrategyName string `gorm:"size:64;not null"`
	PatternType  string `gorm:"size:32;index"`
	Description  string `gorm:"size:255"`

	EntryPrice  float64
	TargetPrice float64
	StopPrice   float64
	Probability float64
	MatchScore  float64
	Confidence  float64
	ModelUsed   bool

	LockTime       *time.Time
	BuyTime        *time.Time
	HoldTime       *time.Time
	CompletionTime time.Time `gorm:"index"`

	CompletionType    string `gorm:"size:16;index"`
	FinalPrice        float64
	ProfitLoss        float64
	ProfitLossPercent float64

	// Target ladder as JSON, append-only in the domain.
	TargetHistory string `gorm:"type:text"`

	Session string `gorm:"size:16"`

	// Indicator snapshot at lock time.
	VWAP        float64
	RSI         float64
	StochRSIK   float64 `gorm:"column:stoch_rsi_k"`
	StochRSID   float64 `gorm:"column:stoch_rsi_d"`
	MACD        float64
	MACDSignal  float64 `gorm:"column:macd_signal"`
	MACDHist    float64 `gorm:"column:macd_hist"`
	ADX         float64
	DMP         float64
	DMN         float64
	Supertrend  float64
	Trend       float64
	PSARLong    float64 `gorm:"column:psar_l"`
	PSARShort   float64 `gorm:"column:psar_s"`
	PSARReverse float64 `gorm:"column:psar_r"`
	EMA200      float64
	EMA21       float64
	EMA9        float64
	EMA5        float64
	EMA4        float64
	VWAPSlope   float64 `gorm:"column:vwap_slope"`
	VolumeRatio float64
	ROC         float64
	WilliamsR   float64 `gorm:"column:williams_r"`
	ATR         float64
	HOD         float64
	ATRToHOD    float64 `gorm:"column:atr_to_hod"`
	ATRToVWAP   float64 `gorm:"column:atr_to_vwap"`
	ZenP        float64 `gorm:"column:zen_p"`
	RVol        float64 `gorm:"column:r_vol"`
	BBLower     float64 `gorm:"column:bb_lower"`
	BBMid       float64 `gorm:"column:bb_mid"`
	BBUpper     float64 `gorm:"column:bb_upper"`
	ATRSpread   float64 `gorm:"column:atr_spread"`

	CreatedAt time.Time
}

// TableName pins the table name for StrategyHistory.
func (StrategyHistory) TableName() string {
	return "strategy_histories"
}
