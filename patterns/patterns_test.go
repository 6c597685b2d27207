package patterns

import (
	"context"
	"errors"
	"math"
	"testing"

	"moomoo-strategy-bot/signalstore"
)

type fakeData struct {
	price     float64
	hasPrice  bool
	volume    float64
	inds      map[string][]float64
	candles   []signalstore.Candle
	orderbook *signalstore.OrderbookSnapshot
	levels    []signalstore.KeyLevel
	avgVolume float64
}

func (f *fakeData) Price(ctx context.Context, ticker string) (float64, bool) {
	return f.price, f.hasPrice
}

func (f *fakeData) Volume(ctx context.Context, ticker string) (float64, bool) {
	return f.volume, f.volume > 0
}

func (f *fakeData) Indicator(ctx context.Context, ticker, name string) (float64, bool) {
	series := f.inds[name]
	if len(series) == 0 {
		return 0, false
	}
	return series[len(series)-1], true
}

func (f *fakeData) IndicatorSeries(ctx context.Context, ticker, name string, n int) []float64 {
	series := f.inds[name]
	if len(series) > n {
		series = series[len(series)-n:]
	}
	return series
}

func (f *fakeData) Candles(ctx context.Context, ticker string, n int) []signalstore.Candle {
	cs := f.candles
	if len(cs) > n {
		cs = cs[len(cs)-n:]
	}
	return cs
}

func (f *fakeData) Orderbook(ctx context.Context, ticker string) (*signalstore.OrderbookSnapshot, bool) {
	return f.orderbook, f.orderbook != nil
}

func (f *fakeData) KeyLevels(ctx context.Context, ticker string) []signalstore.KeyLevel {
	return f.levels
}

func (f *fakeData) AvgDailyVolume(ctx context.Context, ticker string) (float64, bool) {
	return f.avgVolume, f.avgVolume > 0
}

func flatCandles(n int, close float64) []signalstore.Candle {
	out := make([]signalstore.Candle, n)
	for i := range out {
		out[i] = signalstore.Candle{Open: close, High: close, Low: close, Close: close, Volume: 1000}
	}
	return out
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestScoreCriteriaWeighting(t *testing.T) {
	d := detector{
		name: "test",
		criteria: []Criterion{
			NewCriterion("a", 0.6, func(ctx context.Context, ticker string) float64 { return 1.0 }),
			NewCriterion("b", 0.4, func(ctx context.Context, ticker string) float64 { return 0.0 }),
		},
	}
	score, scores := d.scoreCriteria(context.Background(), "BBCA")
	if !almostEqual(score, 60) {
		t.Errorf("expected score 60, got %v", score)
	}
	if scores["a"] != 1.0 || scores["b"] != 0.0 {
		t.Errorf("unexpected criteria scores: %v", scores)
	}
}

func TestScoreCriteriaUnnormalizedWeights(t *testing.T) {
	d := detector{
		name: "test",
		criteria: []Criterion{
			NewCriterion("a", 2.0, func(ctx context.Context, ticker string) float64 { return 0.5 }),
			NewCriterion("b", 2.0, func(ctx context.Context, ticker string) float64 { return 0.5 }),
		},
	}
	score, _ := d.scoreCriteria(context.Background(), "BBCA")
	if !almostEqual(score, 50) {
		t.Errorf("expected weight-normalized score 50, got %v", score)
	}
}

func TestDetectorValidate(t *testing.T) {
	tests := []struct {
		name   string
		data   *fakeData
		ticker string
		want   bool
	}{
		{"no price", &fakeData{candles: flatCandles(10, 100)}, "BBCA", false},
		{"too few candles", &fakeData{price: 100, hasPrice: true, candles: flatCandles(3, 100)}, "BBCA", false},
		{"empty ticker", &fakeData{price: 100, hasPrice: true, candles: flatCandles(10, 100)}, "", false},
		{"valid", &fakeData{price: 100, hasPrice: true, candles: flatCandles(10, 100)}, "BBCA", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := detector{name: "test", data: tt.data}
			if got := d.validate(context.Background(), tt.ticker); got != tt.want {
				t.Errorf("validate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDetectorBelowThresholdReturnsDefault(t *testing.T) {
	// Flat candles and no indicators score near zero for every detector.
	data := &fakeData{price: 100, hasPrice: true, candles: flatCandles(25, 100)}
	for _, d := range DefaultRegistry(data).All() {
		result := d.Evaluate(context.Background(), "BBCA")
		if result.MatchScore >= SurfaceThreshold {
			t.Errorf("%s surfaced on flat data with score %v", d.Name(), result.MatchScore)
		}
		if result.EntryPrice != 0 {
			t.Errorf("%s default result carries entry price %v", d.Name(), result.EntryPrice)
		}
	}
}

func TestPriceActionEngulfing(t *testing.T) {
	p := NewPriceAction(&fakeData{})

	tests := []struct {
		name    string
		prev    signalstore.Candle
		cur     signalstore.Candle
		want    float64
		partial bool
	}{
		{
			name: "full bullish engulfing",
			prev: signalstore.Candle{Open: 102, Close: 100},
			cur:  signalstore.Candle{Open: 99, Close: 103},
			want: 1.0,
		},
		{
			name:    "partial engulfing",
			prev:    signalstore.Candle{Open: 104, Close: 100},
			cur:     signalstore.Candle{Open: 100, Close: 102},
			want:    0.5,
			partial: true,
		},
		{
			name: "both bullish",
			prev: signalstore.Candle{Open: 100, Close: 102},
			cur:  signalstore.Candle{Open: 102, Close: 104},
			want: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p.data = &fakeData{candles: []signalstore.Candle{tt.prev, tt.cur}}
			got := p.evalEngulfing(context.Background(), "BBCA")
			if !almostEqual(got, tt.want) {
				t.Errorf("evalEngulfing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDeadCatBounceCandlestickReversal(t *testing.T) {
	p := NewDeadCatBounce(&fakeData{})

	tests := []struct {
		name   string
		candle signalstore.Candle
		want   float64
	}{
		{"hammer", signalstore.Candle{Open: 100, High: 101.2, Low: 97, Close: 101}, 1.0},
		{"doji", signalstore.Candle{Open: 100, High: 101, Low: 99, Close: 100.05}, 0.8},
		{"plain candle", signalstore.Candle{Open: 100, High: 103, Low: 99.8, Close: 102.5}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p.data = &fakeData{candles: []signalstore.Candle{tt.candle}}
			got := p.evalCandlestickReversal(context.Background(), "BBCA")
			if !almostEqual(got, tt.want) {
				t.Errorf("evalCandlestickReversal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNearestLevels(t *testing.T) {
	levels := []signalstore.KeyLevel{
		{Price: 95, Type: "support"},
		{Price: 98, Type: "support"},
		{Price: 103, Type: "resistance"},
		{Price: 108, Type: "resistance"},
	}
	if got := nearestResistanceAbove(levels, 100); got != 103 {
		t.Errorf("nearestResistanceAbove = %v, want 103", got)
	}
	if got := nearestSupportBelow(levels, 100); got != 98 {
		t.Errorf("nearestSupportBelow = %v, want 98", got)
	}
	if got := nearestResistanceAbove(levels, 110); got != 0 {
		t.Errorf("nearestResistanceAbove above all = %v, want 0", got)
	}
}

func TestRegistryOrderAndLookup(t *testing.T) {
	r := DefaultRegistry(&fakeData{})
	want := []string{
		"EarlyParabolicPattern",
		"MomentumBreakoutPattern",
		"VWAPBouncePattern",
		"ParabolicMovePattern",
		"DeadCatBouncePattern",
		"LiquidityGrabPattern",
		"PriceActionPattern",
	}
	all := r.All()
	if len(all) != len(want) {
		t.Fatalf("expected %d detectors, got %d", len(want), len(all))
	}
	for i, name := range want {
		if all[i].Name() != name {
			t.Errorf("detector %d = %s, want %s", i, all[i].Name(), name)
		}
	}
	if _, ok := r.Get("PriceActionPattern"); !ok {
		t.Error("expected PriceActionPattern in registry")
	}
	if _, ok := r.Get("NoSuchPattern"); ok {
		t.Error("unexpected detector NoSuchPattern")
	}
}

type fakeOracle struct {
	pred Prediction
	err  error
}

func (f *fakeOracle) Predict(ctx context.Context, ticker string, features Features) (Prediction, error) {
	return f.pred, f.err
}

func TestBlendModelBacked(t *testing.T) {
	b := NewBlender(&fakeOracle{pred: Prediction{
		SuccessProbability: 0.9,
		ConfidenceScore:    0.8,
		ModelUsed:          true,
	}})
	got := b.Blend(context.Background(), "BBCA", Result{Probability: 0.7})
	if !almostEqual(got.SuccessProbability, 0.9*0.7+0.7*0.3) {
		t.Errorf("blended probability = %v", got.SuccessProbability)
	}
	if !got.ModelUsed || got.ConfidenceScore != 0.8 {
		t.Errorf("unexpected blend metadata: %+v", got)
	}
}

func TestBlendHeuristicOracle(t *testing.T) {
	b := NewBlender(&fakeOracle{pred: Prediction{
		SuccessProbability: 0.9,
		ConfidenceScore:    0.6,
		ModelUsed:          false,
	}})
	got := b.Blend(context.Background(), "BBCA", Result{Probability: 0.7})
	if !almostEqual(got.SuccessProbability, 0.9*0.3+0.7*0.7) {
		t.Errorf("blended probability = %v", got.SuccessProbability)
	}
}

func TestBlendOracleFailure(t *testing.T) {
	b := NewBlender(&fakeOracle{err: errors.New("connection refused")})
	got := b.Blend(context.Background(), "BBCA", Result{Probability: 0.72})
	if !almostEqual(got.SuccessProbability, 0.72) {
		t.Errorf("fallback probability = %v, want 0.72", got.SuccessProbability)
	}
	if got.ModelUsed {
		t.Error("ModelUsed should be false on oracle failure")
	}
	if got.ConfidenceScore != 0.5 {
		t.Errorf("fallback confidence = %v, want 0.5", got.ConfidenceScore)
	}
}

func TestBlendFeatures(t *testing.T) {
	f := BlendFeatures(Result{EntryPrice: 100, TargetPrice: 104, StopPrice: 98, Probability: 0.7})
	if !almostEqual(f.EntryToTargetDistance, 0.04) {
		t.Errorf("target distance = %v", f.EntryToTargetDistance)
	}
	if !almostEqual(f.EntryToStopDistance, 0.02) {
		t.Errorf("stop distance = %v", f.EntryToStopDistance)
	}
	if !almostEqual(f.RiskRewardRatio, 2.0) {
		t.Errorf("risk reward = %v", f.RiskRewardRatio)
	}

	missing := BlendFeatures(Result{})
	if missing.EntryToTargetDistance != 0.05 || missing.EntryToStopDistance != 0.03 || !almostEqual(missing.RiskRewardRatio, 1.67) {
		t.Errorf("missing-entry defaults wrong: %+v", missing)
	}

	inverted := BlendFeatures(Result{EntryPrice: 100, TargetPrice: 104, StopPrice: 102})
	if !almostEqual(inverted.RiskRewardRatio, 1.0) {
		t.Errorf("non-positive stop distance should yield ratio 1.0, got %v", inverted.RiskRewardRatio)
	}
}

type fixedDetector struct {
	name   string
	result Result
}

func (f *fixedDetector) Name() string { return f.name }
func (f *fixedDetector) Evaluate(ctx context.Context, ticker string) Result {
	return f.result
}

func TestEvaluateAllSortsByBlendedProbability(t *testing.T) {
	r := NewRegistry()
	r.Register(&fixedDetector{name: "low", result: Result{PatternName: "low", MatchScore: 70, Probability: 0.70}})
	r.Register(&fixedDetector{name: "high", result: Result{PatternName: "high", MatchScore: 70, Probability: 0.90}})
	r.Register(&fixedDetector{name: "hidden", result: Result{PatternName: "hidden", MatchScore: 40, Probability: 0.99}})

	e := NewEvaluator(r, NewBlender(&fakeOracle{err: errors.New("down")}))
	got := e.EvaluateAll(context.Background(), "BBCA")
	if len(got) != 2 {
		t.Fatalf("expected 2 surfaced evaluations, got %d", len(got))
	}
	if got[0].PatternName != "high" || got[1].PatternName != "low" {
		t.Errorf("unexpected order: %s, %s", got[0].PatternName, got[1].PatternName)
	}
}
