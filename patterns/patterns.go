// Package patterns implements the pattern scorer: a registry of chart
// pattern detectors, each scoring a set of weighted criteria against the
// current signal data, plus the probability blender that fuses the model
// oracle's prediction with the detector's heuristic probability.
package patterns

import (
	"context"

	"moomoo-strategy-bot/signalstore"
)

// SurfaceThreshold is the minimum weighted match score for a pattern to
// surface a non-default result.
const SurfaceThreshold = 65.0

// MarketData is the read-side of the signal store the detectors consume.
type MarketData interface {
	Price(ctx context.Context, ticker string) (float64, bool)
	Volume(ctx context.Context, ticker string) (float64, bool)
	Indicator(ctx context.Context, ticker, name string) (float64, bool)
	IndicatorSeries(ctx context.Context, ticker, name string, n int) []float64
	Candles(ctx context.Context, ticker string, n int) []signalstore.Candle
	Orderbook(ctx context.Context, ticker string) (*signalstore.OrderbookSnapshot, bool)
	KeyLevels(ctx context.Context, ticker string) []signalstore.KeyLevel
	AvgDailyVolume(ctx context.Context, ticker string) (float64, bool)
}

// Criterion is one weighted component of a pattern's match score. Evaluate
// returns a score in [0, 1]; missing data scores zero, never errors.
type Criterion interface {
	Name() string
	Weight() float64
	Evaluate(ctx context.Context, ticker string) float64
}

type criterion struct {
	name   string
	weight float64
	eval   func(ctx context.Context, ticker string) float64
}

// NewCriterion wraps an evaluator function as a Criterion.
func NewCriterion(name string, weight float64, eval func(ctx context.Context, ticker string) float64) Criterion {
	return &criterion{name: name, weight: weight, eval: eval}
}

func (c *criterion) Name() string    { return c.name }
func (c *criterion) Weight() float64 { return c.weight }
func (c *criterion) Evaluate(ctx context.Context, ticker string) float64 {
	return c.eval(ctx, ticker)
}

// Result is the transient output of one detector evaluation.
type Result struct {
	PatternName    string
	PatternType    string
	Description    string
	MatchScore     float64
	EntryPrice     float64
	TargetPrice    float64
	StopPrice      float64
	Probability    float64 // heuristic, match score scaled to [0, 1]
	CriteriaScores map[string]float64
}

// Detector evaluates one chart pattern against a ticker's current signals.
type Detector interface {
	Name() string
	Evaluate(ctx context.Context, ticker string) Result
}

// detector carries the shared scoring machinery; concrete patterns embed it
// and supply their criteria and target formulas.
type detector struct {
	name        string
	patternType string
	description string
	data        MarketData
	criteria    []Criterion
}

func (d *detector) Name() string { return d.name }

func (d *detector) defaultResult() Result {
	return Result{
		PatternName:    d.name,
		PatternType:    d.patternType,
		Description:    "Insufficient data for pattern evaluation",
		CriteriaScores: map[string]float64{},
	}
}

// validate checks the hard data preconditions: a live price and at least
// five candles. A failed precondition yields the zero-score default result.
func (d *detector) validate(ctx context.Context, ticker string) bool {
	if ticker == "" {
		return false
	}
	if _, ok := d.data.Price(ctx, ticker); !ok {
		return false
	}
	return len(d.data.Candles(ctx, ticker, 5)) >= 5
}

// scoreCriteria computes the weight-normalized match score × 100.
func (d *detector) scoreCriteria(ctx context.Context, ticker string) (float64, map[string]float64) {
	var totalScore, totalWeight float64
	scores := make(map[string]float64, len(d.criteria))
	for _, c := range d.criteria {
		score := c.Evaluate(ctx, ticker)
		totalScore += score * c.Weight()
		totalWeight += c.Weight()
		scores[c.Name()] = score
	}
	if totalWeight == 0 {
		return 0, scores
	}
	return totalScore / totalWeight * 100, scores
}

// result assembles the surfaced Result for a detector whose score cleared
// the threshold.
func (d *detector) result(score float64, scores map[string]float64, entry, target, stop float64) Result {
	return Result{
		PatternName:    d.name,
		PatternType:    d.patternType,
		Description:    d.description,
		MatchScore:     score,
		EntryPrice:     entry,
		TargetPrice:    target,
		StopPrice:      stop,
		Probability:    score / 100,
		CriteriaScores: scores,
	}
}

// nearestResistanceAbove returns the lowest resistance level strictly above
// the floor price, or 0 when none exists.
func nearestResistanceAbove(levels []signalstore.KeyLevel, floor float64) float64 {
	best := 0.0
	for _, l := range levels {
		if l.Type != "resistance" || l.Price <= floor {
			continue
		}
		if best == 0 || l.Price < best {
			best = l.Price
		}
	}
	return best
}

// nearestSupportBelow returns the highest support level strictly below the
// ceiling price, or 0 when none exists.
func nearestSupportBelow(levels []signalstore.KeyLevel, ceiling float64) float64 {
	best := 0.0
	for _, l := range levels {
		if l.Type != "support" || l.Price >= ceiling {
			continue
		}
		if l.Price > best {
			best = l.Price
		}
	}
	return best
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}

func closes(candles []signalstore.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func volumes(candles []signalstore.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Volume
	}
	return out
}
