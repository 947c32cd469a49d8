// Package retrieve finds candidate evidence rows for a query: max-pooled
// cosine similarity over the index, top-K selection, the adaptive floor and
// the keyword fallback for short queries.
package retrieve

import (
	"context"
	"runtime"
	"sort"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/veriscope/internal/embed"
	"github.com/ppiankov/veriscope/internal/index"
	"github.com/ppiankov/veriscope/internal/model"
	"github.com/ppiankov/veriscope/internal/util"
)

// minShardRows keeps tiny packs on a single goroutine
const minShardRows = 4096

// Hit is one retrieved row
type Hit struct {
	Index        int     `json:"index"`
	Similarity   float64 `json:"similarity"`
	KeywordScore float64 `json:"keyword_score,omitempty"`
	Fallback     bool    `json:"fallback,omitempty"`
}

// Retriever embeds queries and ranks index rows against them
type Retriever struct {
	embedder embed.Embedder
	topK     int
	workers  int
}

// NewRetriever creates a retriever returning at most topK rows per query
func NewRetriever(embedder embed.Embedder, topK int) *Retriever {
	if topK <= 0 {
		topK = 500
	}
	return &Retriever{
		embedder: embedder,
		topK:     topK,
		workers:  runtime.NumCPU(),
	}
}

// EmbedQuery encodes the query chunks into unit vectors. Chunks whose vector
// cannot be normalized are dropped; if none is left the query embedding has
// failed.
func (r *Retriever) EmbedQuery(ctx context.Context, chunks []string) ([][]float32, error) {
	if len(chunks) == 0 {
		return nil, eris.Wrap(model.ErrInsufficientText, "retrieve: no query chunks")
	}
	cleaned := make([]string, len(chunks))
	for i, c := range chunks {
		cleaned[i] = util.CleanText(c)
	}

	vecs, err := embed.EncodeNormalized(ctx, r.embedder, cleaned)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, eris.Wrapf(model.ErrModelFailure, "retrieve: embed query: %v", err)
	}

	out := vecs[:0]
	for _, v := range vecs {
		if v != nil {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil, eris.Wrap(model.ErrModelFailure, "retrieve: query has no usable vector")
	}
	return out, nil
}

// Search returns the top-K rows of p by max-pooled similarity to the query
// vectors, best first, together with the similarity of every row
func (r *Retriever) Search(ctx context.Context, p *index.Pack, queries [][]float32) ([]Hit, []float64, error) {
	sims, err := Similarities(ctx, p, queries, r.workers)
	if err != nil {
		return nil, nil, err
	}
	return TopK(sims, r.topK), sims, nil
}

// Similarities computes, for every row of p, the maximum dot product with
// any of the query vectors. Rows are split into shards scored concurrently.
func Similarities(ctx context.Context, p *index.Pack, queries [][]float32, workers int) ([]float64, error) {
	n := p.Rows()
	if n == 0 {
		return nil, eris.Wrap(model.ErrEmptyCorpus, "retrieve: similarities")
	}
	for _, q := range queries {
		if len(q) != p.Dim {
			return nil, eris.Errorf("retrieve: query dim %d does not match index dim %d", len(q), p.Dim)
		}
	}

	sims := make([]float64, n)
	shards := 1
	if workers > 1 && n > minShardRows {
		shards = min(workers, (n+minShardRows-1)/minShardRows)
	}
	size := (n + shards - 1) / shards

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < n; start += size {
		lo, hi := start, min(start+size, n)
		g.Go(func() error {
			for i := lo; i < hi; i++ {
				if (i-lo)%1024 == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				row := p.Row(i)
				best := -1.0
				for _, q := range queries {
					if s := embed.Dot(row, q); s > best {
						best = s
					}
				}
				sims[i] = best
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sims, nil
}

// TopK returns the k most similar rows in descending order. Ties keep row
// order. K is bounded by the number of rows.
func TopK(sims []float64, k int) []Hit {
	k = min(k, len(sims))
	if k <= 0 {
		return nil
	}
	hits := make([]Hit, len(sims))
	for i, s := range sims {
		hits[i] = Hit{Index: i, Similarity: s}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Similarity > hits[j].Similarity
	})
	return hits[:k:k]
}

// AdaptiveFloor lowers the similarity floor for short queries, measured in
// runes of cleaned query text
func AdaptiveFloor(queryLen int, base float64) float64 {
	switch {
	case queryLen < 50:
		return max(0.15, base*0.5)
	case queryLen < 100:
		return max(0.20, base*0.7)
	}
	return base
}

// AboveFloor keeps the hits whose similarity reaches floor
func AboveFloor(hits []Hit, floor float64) []Hit {
	var out []Hit
	for _, h := range hits {
		if h.Similarity >= floor {
			out = append(out, h)
		}
	}
	return out
}

// NeedsFallback reports whether keyword search should replace an empty
// similarity result
func NeedsFallback(aboveFloor, queryLen int, source model.QuerySource) bool {
	if aboveFloor > 0 {
		return false
	}
	return queryLen < 100 || source == model.SourceImage
}
