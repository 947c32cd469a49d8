// Package nli re-ranks retrieved chunks with a three-way natural language
// inference classifier.
package nli

import (
	"context"
	"math"
)

// Pair is one classifier input. The premise is the evidence chunk and the
// hypothesis is the query summary.
type Pair struct {
	Premise    string `json:"premise"`
	Hypothesis string `json:"hypothesis"`
}

// Probs are softmax probabilities ordered contradiction, neutral, entailment
type Probs struct {
	Contradiction float64 `json:"contradiction"`
	Neutral       float64 `json:"neutral"`
	Entailment    float64 `json:"entailment"`
}

// Support is the entailment probability
func (p Probs) Support() float64 { return p.Entailment }

// Valid reports whether the probabilities are finite, non-negative and sum to ~1
func (p Probs) Valid() bool {
	vals := []float64{p.Contradiction, p.Neutral, p.Entailment}
	sum := 0.0
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return false
		}
		sum += v
	}
	return math.Abs(sum-1) < 1e-3
}

// Classifier scores premise/hypothesis pairs. The output is index-aligned
// with the input.
type Classifier interface {
	Classify(ctx context.Context, pairs []Pair) ([]Probs, error)
	Model() string
}

// Softmax converts logits into probabilities
func Softmax(logits []float64) []float64 {
	if len(logits) == 0 {
		return nil
	}
	maxL := logits[0]
	for _, l := range logits[1:] {
		if l > maxL {
			maxL = l
		}
	}
	out := make([]float64, len(logits))
	sum := 0.0
	for i, l := range logits {
		out[i] = math.Exp(l - maxL)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// FromLogits builds Probs from (contradiction, neutral, entailment) logits
func FromLogits(contradiction, neutral, entailment float64) Probs {
	p := Softmax([]float64{contradiction, neutral, entailment})
	return Probs{Contradiction: p[0], Neutral: p[1], Entailment: p[2]}
}

// Renormalize scales non-negative scores so they sum to one. All-zero input
// becomes fully neutral.
func Renormalize(p Probs) Probs {
	p.Contradiction = math.Max(0, p.Contradiction)
	p.Neutral = math.Max(0, p.Neutral)
	p.Entailment = math.Max(0, p.Entailment)
	sum := p.Contradiction + p.Neutral + p.Entailment
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return Probs{Neutral: 1}
	}
	return Probs{
		Contradiction: p.Contradiction / sum,
		Neutral:       p.Neutral / sum,
		Entailment:    p.Entailment / sum,
	}
}
