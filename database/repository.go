package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"moomoo-strategy-bot/strategy"
)

// StrategyRepository handles database operations for completed strategies.
type StrategyRepository struct {
	db *Database
}

// NewStrategyRepository creates a new strategy repository
func NewStrategyRepository(db *Database) *StrategyRepository {
	return &StrategyRepository{db: db}
}

// InitSchema performs auto-migration for the strategy tables.
func (r *StrategyRepository) InitSchema() error {
	fmt.Println("🔄 Starting database schema initialization...")

	if err := r.db.db.AutoMigrate(&StrategyHistory{}); err != nil {
		return fmt.Errorf("failed to migrate strategy_histories: %w", err)
	}

	fmt.Println("✅ Database schema ready")
	return nil
}

// SaveCompleted stores a completed strategy with its frozen indicator
// snapshot and target ladder.
func (r *StrategyRepository) SaveCompleted(ctx context.Context, st *strategy.Strategy) error {
	ladder, err := json.Marshal(st.TargetHistory)
	if err != nil {
		return fmt.Errorf("failed to marshal target history: %w", err)
	}

	completionTime := time.Now()
	if st.CompletionTime != nil {
		completionTime = *st.CompletionTime
	}

	record := StrategyHistory{
		Ticker:            st.Ticker,
		StrategyName:      st.Name,
		PatternType:       st.PatternType,
		Description:       st.Description,
		EntryPrice:        st.EntryPrice,
		TargetPrice:       st.TargetPrice,
		StopPrice:         st.StopPrice,
		Probability:       st.Probability,
		MatchScore:        st.MatchScore,
		Confidence:        st.Confidence,
		ModelUsed:         st.ModelUsed,
		LockTime:          st.LockTime,
		BuyTime:           st.BuyTime,
		HoldTime:          st.HoldTime,
		CompletionTime:    completionTime,
		CompletionType:    st.CompletionType,
		FinalPrice:        st.FinalPrice,
		ProfitLoss:        st.ProfitLoss,
		ProfitLossPercent: st.ProfitLossPercent,
		TargetHistory:     string(ladder),
		Session:           currentSession(completionTime),

		VWAP:        st.Indicators.VWAP,
		RSI:         st.Indicators.RSI,
		StochRSIK:   st.Indicators.StochRSIK,
		StochRSID:   st.Indicators.StochRSID,
		MACD:        st.Indicators.MACD,
		MACDSignal:  st.Indicators.MACDSignal,
		MACDHist:    st.Indicators.MACDHist,
		ADX:         st.Indicators.ADX,
		DMP:         st.Indicators.DMP,
		DMN:         st.Indicators.DMN,
		Supertrend:  st.Indicators.Supertrend,
		Trend:       st.Indicators.Trend,
		PSARLong:    st.Indicators.PSARLong,
		PSARShort:   st.Indicators.PSARShort,
		PSARReverse: st.Indicators.PSARReverse,
		EMA200:      st.Indicators.EMA200,
		EMA21:       st.Indicators.EMA21,
		EMA9:        st.Indicators.EMA9,
		EMA5:        st.Indicators.EMA5,
		EMA4:        st.Indicators.EMA4,
		VWAPSlope:   st.Indicators.VWAPSlope,
		VolumeRatio: st.Indicators.VolumeRatio,
		ROC:         st.Indicators.ROC,
		WilliamsR:   st.Indicators.WilliamsR,
		ATR:         st.Indicators.ATR,
		HOD:         st.Indicators.HOD,
		ATRToHOD:    st.Indicators.ATRToHOD,
		ATRToVWAP:   st.Indicators.ATRToVWAP,
		ZenP:        st.Indicators.ZenP,
		RVol:        st.Indicators.RVol,
		BBLower:     st.Indicators.BBLower,
		BBMid:       st.Indicators.BBMid,
		BBUpper:     st.Indicators.BBUpper,
		ATRSpread:   st.Indicators.ATRSpread,
	}

	if err := r.db.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to store strategy history: %w", err)
	}

	log.Printf("✅ Stored completed strategy for %s in database with ID: %d", st.Ticker, record.ID)
	return nil
}

// Recent returns the most recent completed strategies for a ticker.
func (r *StrategyRepository) Recent(ctx context.Context, ticker string, n int) ([]StrategyHistory, error) {
	var records []StrategyHistory
	err := r.db.db.WithContext(ctx).
		Where("ticker = ?", ticker).
		Order("completion_time DESC").
		Limit(n).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query strategy history: %w", err)
	}
	return records, nil
}

// currentSession labels the US market session for an eastern-time moment.
func currentSession(t time.Time) string {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return "unknown"
	}
	et := t.In(loc)
	minutes := et.Hour()*60 + et.Minute()
	switch {
	case minutes < 9*60+30:
		return "premarket"
	case minutes < 16*60:
		return "regular"
	default:
		return "afterhours"
	}
}
