package patterns

import (
	"context"
	"sort"
)

// Evaluation is one surfaced pattern with its blended probability.
type Evaluation struct {
	Result
	Blended
}

// Evaluator runs every registered detector and blends each surfaced result
// with the oracle's prediction.
type Evaluator struct {
	registry *Registry
	blender  *Blender
}

func NewEvaluator(registry *Registry, blender *Blender) *Evaluator {
	return &Evaluator{registry: registry, blender: blender}
}

// EvaluateAll evaluates every detector for the ticker and returns the
// surfaced results sorted by blended probability, best first. Ties keep
// registration order.
func (e *Evaluator) EvaluateAll(ctx context.Context, ticker string) []Evaluation {
	var out []Evaluation
	for _, d := range e.registry.All() {
		result := d.Evaluate(ctx, ticker)
		if result.MatchScore < SurfaceThreshold {
			continue
		}
		out = append(out, Evaluation{
			Result:  result,
			Blended: e.blender.Blend(ctx, ticker, result),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SuccessProbability > out[j].SuccessProbability
	})
	return out
}

// EvaluateOne evaluates a single detector by name.
func (e *Evaluator) EvaluateOne(ctx context.Context, ticker, name string) (Evaluation, bool) {
	d, ok := e.registry.Get(name)
	if !ok {
		return Evaluation{}, false
	}
	result := d.Evaluate(ctx, ticker)
	if result.MatchScore < SurfaceThreshold {
		return Evaluation{Result: result}, true
	}
	return Evaluation{
		Result:  result,
		Blended: e.blender.Blend(ctx, ticker, result),
	}, true
}
