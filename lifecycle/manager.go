// Package lifecycle drives the per-ticker strategy state machine: locking a
// strategy when a pattern surfaces, evolving its target ladder and trailing
// stop while locked, and completing it into history on exit.
package lifecycle

import (
	"context"
	"log"
	"time"

	"moomoo-strategy-bot/patterns"
	"moomoo-strategy-bot/signalstore"
	"moomoo-strategy-bot/strategy"
)

// SignalStore is the slice of the signal store the lifecycle reads and the
// strategy slot it owns.
type SignalStore interface {
	Price(ctx context.Context, ticker string) (float64, bool)
	Indicator(ctx context.Context, ticker, name string) (float64, bool)
	IndicatorSeries(ctx context.Context, ticker, name string, n int) []float64
	IndicatorMap(ctx context.Context, ticker string) map[string]float64
	KeyLevels(ctx context.Context, ticker string) []signalstore.KeyLevel
	Ticks(ctx context.Context, ticker string, n int) []signalstore.Tick

	CurrentStrategy(ctx context.Context, ticker string) (*strategy.Strategy, bool)
	SwapStrategy(ctx context.Context, ticker string, expectedRevision int64, next *strategy.Strategy) (bool, error)
	AppendStrategyHistory(ctx context.Context, ticker string, st *strategy.Strategy) error
	PublishTradeSignal(ctx context.Context, sig signalstore.TradeSignal) error
}

// Evaluator scores patterns for a ticker.
type Evaluator interface {
	EvaluateAll(ctx context.Context, ticker string) []patterns.Evaluation
	EvaluateOne(ctx context.Context, ticker, name string) (patterns.Evaluation, bool)
}

// Recorder persists completed strategies for offline analysis and model
// training. Persistence failure never blocks completion.
type Recorder interface {
	SaveCompleted(ctx context.Context, st *strategy.Strategy) error
}

// Notifier receives strategy lifecycle events.
type Notifier interface {
	NotifyStrategyEvent(ctx context.Context, event string, st *strategy.Strategy)
}

// Config holds the tunable lifecycle thresholds.
type Config struct {
	// EntryProbability is the blended probability required to emit an
	// entry signal on a fresh lock.
	EntryProbability float64
	// TargetATRMultiple extends the target ladder by this many ATRs when
	// no resistance sits above the achieved target.
	TargetATRMultiple float64
	// TargetFallbackPercent extends the target by this fraction when
	// neither resistance nor ATR is available.
	TargetFallbackPercent float64
	// StopVWAPATRMultiple places the trailing stop this many ATRs below
	// VWAP while price holds above it.
	StopVWAPATRMultiple float64
	// StopATRMultiple places the trailing stop this many ATRs below the
	// current price.
	StopATRMultiple float64
	// TapeWindow is the lookback for aggressor tape statistics.
	TapeWindow time.Duration
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		EntryProbability:      0.7,
		TargetATRMultiple:     1.5,
		TargetFallbackPercent: 0.02,
		StopVWAPATRMultiple:   0.5,
		StopATRMultiple:       1.5,
		TapeWindow:            5 * time.Second,
	}
}

// Manager owns the strategy slot for its tickers. One instance per process;
// the compare-and-swap slot replace keeps concurrent evaluators safe.
type Manager struct {
	store     SignalStore
	evaluator Evaluator
	recorder  Recorder
	notifier  Notifier
	cfg       Config
}

// NewManager wires a lifecycle manager. recorder and notifier may be nil.
func NewManager(store SignalStore, evaluator Evaluator, recorder Recorder, notifier Notifier, cfg Config) *Manager {
	if cfg.EntryProbability == 0 {
		cfg = DefaultConfig()
	}
	return &Manager{
		store:     store,
		evaluator: evaluator,
		recorder:  recorder,
		notifier:  notifier,
		cfg:       cfg,
	}
}

// EvaluateTicker runs one lifecycle step for a ticker: progress the locked
// strategy if one exists, otherwise try to lock a new one. A lost
// compare-and-swap race is not an error; the next tick re-reads and retries.
func (m *Manager) EvaluateTicker(ctx context.Context, ticker string) (*strategy.Strategy, error) {
	current, ok := m.store.CurrentStrategy(ctx, ticker)
	if ok && current.State == strategy.StateLocked {
		return m.evaluateExisting(ctx, ticker, current)
	}
	if ok {
		// A stale non-locked strategy occupies the slot; leave it alone.
		return current, nil
	}

	evals := m.evaluator.EvaluateAll(ctx, ticker)
	if len(evals) == 0 || evals[0].MatchScore < patterns.SurfaceThreshold {
		return nil, nil
	}
	return m.createLock(ctx, ticker, evals[0])
}

func (m *Manager) createLock(ctx context.Context, ticker string, eval patterns.Evaluation) (*strategy.Strategy, error) {
	price, ok := m.store.Price(ctx, ticker)
	if !ok {
		return nil, nil
	}
	now := time.Now()

	st := strategy.New(ticker, eval.PatternName, price, eval.TargetPrice, eval.StopPrice, now)
	st.PatternType = eval.PatternType
	st.Description = eval.Description
	st.Probability = eval.SuccessProbability
	st.MatchScore = eval.MatchScore
	st.Confidence = eval.ConfidenceScore
	st.ModelUsed = eval.ModelUsed
	st.Indicators = strategy.SnapshotFrom(m.store.IndicatorMap(ctx, ticker))

	swapped, err := m.store.SwapStrategy(ctx, ticker, 0, st)
	if err != nil {
		return nil, err
	}
	if !swapped {
		log.Printf("⚠️  Lost lock race for %s, another evaluator got there first", ticker)
		return nil, nil
	}

	log.Printf("🔒 Strategy locked for %s: %s (score %.1f, prob %.2f, entry %.2f, target %.2f, stop %.2f)",
		ticker, st.Name, st.MatchScore, st.Probability, st.EntryPrice, st.TargetPrice, st.StopPrice)

	if m.notifier != nil {
		m.notifier.NotifyStrategyEvent(ctx, "strategy_locked", st)
	}
	if st.Probability >= m.cfg.EntryProbability {
		m.publishSignal(ctx, ticker, "entry")
	}
	return st, nil
}

func (m *Manager) evaluateExisting(ctx context.Context, ticker string, st *strategy.Strategy) (*strategy.Strategy, error) {
	price, ok := m.store.Price(ctx, ticker)
	if !ok {
		return st, nil
	}
	now := time.Now()

	// Target reached: ratchet the ladder, or exit when it is exhausted.
	if st.TargetPrice > 0 && price >= st.TargetPrice && st.BuyTime != nil {
		// First target touch starts the hold phase.
		if st.HoldTime == nil {
			st.HoldTime = &now
		}
		newTarget := m.nextTarget(ctx, ticker, st.TargetPrice)
		if st.UpdateTarget(newTarget, now) {
			log.Printf("🎯 Target reached for %s, ladder extended to %.2f", ticker, st.TargetPrice)
			m.publishSignal(ctx, ticker, "target")
			return m.swapUpdated(ctx, ticker, st)
		}
		m.publishSignal(ctx, ticker, "exit")
		return nil, m.complete(ctx, ticker, st, strategy.CompletionTarget, price)
	}

	// High-confidence sell signal from indicators plus tape.
	if st.BuyTime != nil {
		if reason, sell := DetectSellSignal(m.sellContext(ctx, ticker, price)); sell {
			log.Printf("🔴 Sell signal for %s: %s", ticker, reason)
			m.publishSignal(ctx, ticker, "exit")
			return nil, m.complete(ctx, ticker, st, strategy.CompletionSell, price)
		}
	}

	// Stop hit.
	if st.StopPrice > 0 && price <= st.StopPrice {
		log.Printf("🛑 Stop hit for %s at %.2f (stop %.2f)", ticker, price, st.StopPrice)
		m.publishSignal(ctx, ticker, "exit")
		return nil, m.complete(ctx, ticker, st, strategy.CompletionStop, price)
	}

	// Trailing stop adjustment, ratchet up only.
	if newStop, ok := m.stopAdjustment(ctx, ticker, price, st.StopPrice); ok {
		if st.RaiseStop(newStop) {
			log.Printf("📈 Trailing stop for %s raised to %.2f", ticker, st.StopPrice)
		}
	}

	m.refreshMetrics(ctx, ticker, st)
	return m.swapUpdated(ctx, ticker, st)
}

// swapUpdated writes the mutated strategy back through the CAS slot.
func (m *Manager) swapUpdated(ctx context.Context, ticker string, st *strategy.Strategy) (*strategy.Strategy, error) {
	swapped, err := m.store.SwapStrategy(ctx, ticker, st.Revision, st)
	if err != nil {
		return nil, err
	}
	if !swapped {
		log.Printf("⚠️  Strategy slot for %s changed underneath, dropping update", ticker)
		return nil, nil
	}
	return st, nil
}

// complete finalizes the strategy: history, persistence, notification, then
// slot clear. Database failure is logged and swallowed so completion always
// frees the slot.
func (m *Manager) complete(ctx context.Context, ticker string, st *strategy.Strategy, completionType string, finalPrice float64) error {
	now := time.Now()
	if !st.Complete(completionType, finalPrice, now) {
		return nil
	}
	log.Printf("✅ Strategy completed for %s: %s via %s, P&L %.2f (%.2f%%)",
		ticker, st.Name, completionType, st.ProfitLoss, st.ProfitLossPercent)

	if err := m.store.AppendStrategyHistory(ctx, ticker, st); err != nil {
		log.Printf("⚠️  Failed to append strategy history for %s: %v", ticker, err)
	}
	if m.recorder != nil {
		if err := m.recorder.SaveCompleted(ctx, st); err != nil {
			log.Printf("⚠️  Failed to persist completed strategy for %s: %v", ticker, err)
		}
	}
	if m.notifier != nil {
		m.notifier.NotifyStrategyEvent(ctx, "strategy_completed", st)
	}

	swapped, err := m.store.SwapStrategy(ctx, ticker, st.Revision, nil)
	if err != nil {
		return err
	}
	if !swapped {
		log.Printf("⚠️  Lost the slot clear race for %s after completion, next tick re-evaluates", ticker)
	}
	return nil
}

// nextTarget finds the next rung: the nearest resistance above the achieved
// target, else ATR-extended, else a fixed percentage.
func (m *Manager) nextTarget(ctx context.Context, ticker string, currentTarget float64) float64 {
	var best float64
	for _, l := range m.store.KeyLevels(ctx, ticker) {
		if l.Type != "resistance" || l.Price <= currentTarget {
			continue
		}
		if best == 0 || l.Price < best {
			best = l.Price
		}
	}
	if best > 0 {
		return best
	}
	if atr, ok := m.store.Indicator(ctx, ticker, "ATR"); ok && atr > 0 {
		return currentTarget + atr*m.cfg.TargetATRMultiple
	}
	return currentTarget * (1 + m.cfg.TargetFallbackPercent)
}

// stopAdjustment proposes a tighter trailing stop from VWAP or ATR distance.
func (m *Manager) stopAdjustment(ctx context.Context, ticker string, price, currentStop float64) (float64, bool) {
	atr, _ := m.store.Indicator(ctx, ticker, "ATR")
	vwap, hasVWAP := m.store.Indicator(ctx, ticker, "VWAP")

	if hasVWAP && price > vwap {
		if vwapStop := vwap - atr*m.cfg.StopVWAPATRMultiple; vwapStop > currentStop {
			return vwapStop, true
		}
	}
	if atr > 0 {
		if atrStop := price - atr*m.cfg.StopATRMultiple; atrStop > currentStop {
			return atrStop, true
		}
	}
	return 0, false
}

// refreshMetrics re-scores the locked pattern and refreshes the descriptive
// metrics without touching entry, target or stop.
func (m *Manager) refreshMetrics(ctx context.Context, ticker string, st *strategy.Strategy) {
	eval, ok := m.evaluator.EvaluateOne(ctx, ticker, st.Name)
	if !ok || eval.MatchScore < patterns.SurfaceThreshold {
		return
	}
	st.MatchScore = eval.MatchScore
	st.Description = eval.Description
	if eval.SuccessProbability > 0 {
		st.Probability = eval.SuccessProbability
	}
}

// sellContext assembles the indicator and tape readings for the sell rules.
func (m *Manager) sellContext(ctx context.Context, ticker string, price float64) SellContext {
	inds := m.store.IndicatorMap(ctx, ticker)

	var rocPrime float64
	if roc := m.store.IndicatorSeries(ctx, ticker, "ROC", 2); len(roc) >= 2 {
		rocPrime = roc[len(roc)-1] - roc[len(roc)-2]
	}

	ratio, uptickSeq := signalstore.AggressorStats(m.store.Ticks(ctx, ticker, 200), m.cfg.TapeWindow)

	volumeRatio := 1.0
	if v, ok := inds["Volume_Ratio"]; ok {
		volumeRatio = v
	}
	stochRSI := 50.0
	if v, ok := inds["StochRSI_K"]; ok {
		stochRSI = v
	}

	return SellContext{
		Price:          price,
		VWAP:           inds["VWAP"],
		EMA9:           inds["EMA9"],
		ADX:            inds["ADX"],
		VolumeRatio:    volumeRatio,
		StochRSIK:      stochRSI,
		WilliamsR:      inds["Williams_R"],
		ROCPrime:       rocPrime,
		AggressorRatio: ratio,
		UptickSeq:      uptickSeq,
	}
}

func (m *Manager) publishSignal(ctx context.Context, ticker, status string) {
	sig := signalstore.TradeSignal{
		Type:   "trading_coach",
		Status: status,
		Ticker: ticker,
	}
	if err := m.store.PublishTradeSignal(ctx, sig); err != nil {
		log.Printf("⚠️  Failed to publish %s signal for %s: %v", status, ticker, err)
	}
}
