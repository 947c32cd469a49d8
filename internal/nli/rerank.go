package nli

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ppiankov/veriscope/internal/util"
)

// Outcome is the classifier result for one pair. OK is false when the
// pair could not be classified and its candidate must be dropped.
type Outcome struct {
	Probs
	OK bool
}

// Reranker batches pairs through a Classifier and isolates failures
type Reranker struct {
	clf       Classifier
	batchSize int
	maxChars  int
}

// NewReranker creates a reranker. maxChars bounds each sequence; 0 disables
// truncation.
func NewReranker(clf Classifier, batchSize, maxChars int) *Reranker {
	if batchSize <= 0 {
		batchSize = 16
	}
	return &Reranker{clf: clf, batchSize: batchSize, maxChars: maxChars}
}

// Model returns the classifier model name
func (r *Reranker) Model() string { return r.clf.Model() }

// Rerank classifies all pairs. A failing batch is retried pair by pair;
// pairs that still fail come back with OK=false. Empty input gives empty
// output. Only context cancellation is returned as an error.
func (r *Reranker) Rerank(ctx context.Context, pairs []Pair) ([]Outcome, error) {
	out := make([]Outcome, len(pairs))
	if len(pairs) == 0 {
		return out, nil
	}

	for start := 0; start < len(pairs); start += r.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+r.batchSize, len(pairs))
		batch := r.truncate(pairs[start:end])

		probs, err := r.classify(ctx, batch)
		if err == nil {
			for i, p := range probs {
				out[start+i] = Outcome{Probs: p, OK: true}
			}
			continue
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		zap.L().Warn("nli batch failed, retrying pairs individually",
			zap.Int("start", start), zap.Int("size", len(batch)), zap.Error(err))
		for i, p := range batch {
			single, err := r.classify(ctx, []Pair{p})
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				zap.L().Debug("nli pair failed", zap.Int("index", start+i), zap.Error(err))
				continue
			}
			out[start+i] = Outcome{Probs: single[0], OK: true}
		}
	}
	return out, nil
}

func (r *Reranker) classify(ctx context.Context, batch []Pair) ([]Probs, error) {
	probs, err := r.clf.Classify(ctx, batch)
	if err != nil {
		return nil, err
	}
	if len(probs) != len(batch) {
		return nil, eris.Errorf("nli: got %d results for %d pairs", len(probs), len(batch))
	}
	for _, p := range probs {
		if !p.Valid() {
			return nil, eris.Errorf("nli: invalid probabilities %+v", p)
		}
	}
	return probs, nil
}

func (r *Reranker) truncate(pairs []Pair) []Pair {
	if r.maxChars <= 0 {
		return pairs
	}
	out := make([]Pair, len(pairs))
	for i, p := range pairs {
		out[i] = Pair{
			Premise:    util.Truncate(p.Premise, r.maxChars),
			Hypothesis: util.Truncate(p.Hypothesis, r.maxChars),
		}
	}
	return out
}
