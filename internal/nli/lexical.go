package nli

import (
	"context"
	"strings"
	"unicode"
)

// negations flip lexical support into contradiction
var negations = []string{"not", "no", "never", "false", "아니", "않", "없", "거짓", "사실무근", "허위"}

// LexicalClassifier approximates NLI with hypothesis token coverage. It is
// a model-free baseline for offline runs and tests, not a substitute for a
// trained classifier.
type LexicalClassifier struct{}

func (LexicalClassifier) Model() string { return "lexical-overlap" }

func (LexicalClassifier) Classify(ctx context.Context, pairs []Pair) ([]Probs, error) {
	out := make([]Probs, len(pairs))
	for i, p := range pairs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = lexicalProbs(p)
	}
	return out, nil
}

func lexicalProbs(p Pair) Probs {
	hyp := words(p.Hypothesis)
	if len(hyp) == 0 {
		return Probs{Neutral: 1}
	}
	prem := make(map[string]bool)
	for _, w := range words(p.Premise) {
		prem[w] = true
	}
	hit := 0
	for _, w := range hyp {
		if prem[w] {
			hit++
		}
	}
	coverage := float64(hit) / float64(len(hyp))

	negP := hasNegation(p.Premise)
	negH := hasNegation(p.Hypothesis)
	if negP != negH {
		return Renormalize(Probs{Contradiction: 0.1 + 0.8*coverage, Neutral: 1 - coverage, Entailment: 0.05})
	}
	return Renormalize(Probs{Contradiction: 0.05, Neutral: 1 - coverage, Entailment: 0.1 + 0.8*coverage})
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// hasNegation matches English negations as whole words and Korean
// negation stems anywhere inside a word
func hasNegation(s string) bool {
	for _, w := range words(s) {
		for _, n := range negations {
			if w == n || (!isASCII(n) && strings.Contains(w, n)) {
				return true
			}
		}
	}
	return false
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}
