package patterns

import (
	"context"
	"log"
)

// Blend weights. The model-backed weight applies when the oracle served a
// trained model; the fallback weight when it answered from heuristics.
const (
	DefaultModelWeight    = 0.7
	DefaultFallbackWeight = 0.3
)

// Feature defaults used when a result carries no entry price.
const (
	defaultTargetDistance = 0.05
	defaultStopDistance   = 0.03
	defaultRiskReward     = 1.67
)

// Features is the derived feature vector sent to the oracle.
type Features struct {
	Probability           float64 `json:"probability"`
	MatchScore            float64 `json:"match_score"`
	PatternType           string  `json:"pattern_type"`
	EntryPrice            float64 `json:"entry_price"`
	TargetPrice           float64 `json:"target_price"`
	StopPrice             float64 `json:"stop_price"`
	EntryToTargetDistance float64 `json:"entry_to_target_distance"`
	EntryToStopDistance   float64 `json:"entry_to_stop_distance"`
	RiskRewardRatio       float64 `json:"risk_reward_ratio"`
}

// Prediction is the oracle's answer for one pattern result.
type Prediction struct {
	SuccessProbability float64            `json:"success_probability"`
	ConfidenceScore    float64            `json:"confidence_score"`
	ModelUsed          bool               `json:"model_used"`
	FeatureImportance  map[string]float64 `json:"feature_importance"`
}

// Oracle scores a feature vector. An error means the oracle is unreachable
// or degraded; the blender falls back to the heuristic probability.
type Oracle interface {
	Predict(ctx context.Context, ticker string, features Features) (Prediction, error)
}

// Blended is the fused probability attached to a surfaced pattern result.
type Blended struct {
	SuccessProbability float64
	ConfidenceScore    float64
	ModelUsed          bool
	FeatureImportance  map[string]float64
}

// Blender fuses the oracle's prediction with the detector's heuristic
// probability using a weighted average.
type Blender struct {
	oracle         Oracle
	modelWeight    float64
	fallbackWeight float64
}

func NewBlender(oracle Oracle) *Blender {
	return &Blender{
		oracle:         oracle,
		modelWeight:    DefaultModelWeight,
		fallbackWeight: DefaultFallbackWeight,
	}
}

// SetWeights overrides the blend weights. Values outside (0, 1) keep the
// defaults.
func (b *Blender) SetWeights(model, fallback float64) {
	if model > 0 && model < 1 {
		b.modelWeight = model
	}
	if fallback > 0 && fallback < 1 {
		b.fallbackWeight = fallback
	}
}

// BlendFeatures derives the feature vector for a pattern result. A result
// without an entry price gets neutral defaults.
func BlendFeatures(result Result) Features {
	f := Features{
		Probability: result.Probability,
		MatchScore:  result.MatchScore,
		PatternType: result.PatternType,
		EntryPrice:  result.EntryPrice,
		TargetPrice: result.TargetPrice,
		StopPrice:   result.StopPrice,
	}
	if result.EntryPrice > 0 {
		f.EntryToTargetDistance = (result.TargetPrice - result.EntryPrice) / result.EntryPrice
		f.EntryToStopDistance = (result.EntryPrice - result.StopPrice) / result.EntryPrice
		if f.EntryToStopDistance > 0 {
			f.RiskRewardRatio = f.EntryToTargetDistance / f.EntryToStopDistance
		} else {
			f.RiskRewardRatio = 1.0
		}
	} else {
		f.EntryToTargetDistance = defaultTargetDistance
		f.EntryToStopDistance = defaultStopDistance
		f.RiskRewardRatio = defaultRiskReward
	}
	return f
}

// Blend fuses the oracle prediction with the result's heuristic probability.
// Oracle failure degrades gracefully to the heuristic alone.
func (b *Blender) Blend(ctx context.Context, ticker string, result Result) Blended {
	pred, err := b.oracle.Predict(ctx, ticker, BlendFeatures(result))
	if err != nil {
		log.Printf("⚠️ Oracle prediction failed for %s/%s, using heuristic: %v", ticker, result.PatternName, err)
		return Blended{
			SuccessProbability: result.Probability,
			ConfidenceScore:    0.5,
			ModelUsed:          false,
			FeatureImportance:  map[string]float64{},
		}
	}

	weight := b.fallbackWeight
	if pred.ModelUsed {
		weight = b.modelWeight
	}
	blended := pred.SuccessProbability*weight + result.Probability*(1-weight)

	importance := pred.FeatureImportance
	if importance == nil {
		importance = map[string]float64{}
	}
	return Blended{
		SuccessProbability: blended,
		ConfidenceScore:    pred.ConfidenceScore,
		ModelUsed:          pred.ModelUsed,
		FeatureImportance:  importance,
	}
}
