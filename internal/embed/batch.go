package embed

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// BatchPlan describes how a large encode job is split
type BatchPlan struct {
	SliceSize     int // texts per sequential slice, 0 means all at once
	BatchSize     int // texts per Encode call inside a slice
	FallbackBatch int // batch size used to retry a failed slice
}

// PlanFor picks slice and batch sizes for n texts. Larger jobs use smaller
// batches so peak memory on the embedding backend stays bounded.
func PlanFor(n, batch, fallback int) BatchPlan {
	if batch <= 0 {
		batch = 1024
	}
	if fallback <= 0 {
		fallback = 64
	}
	switch {
	case n > 100_000:
		return BatchPlan{SliceSize: 50_000, BatchSize: min(batch, 512), FallbackBatch: fallback}
	case n > 50_000:
		return BatchPlan{SliceSize: 25_000, BatchSize: min(batch, 768), FallbackBatch: fallback}
	default:
		return BatchPlan{SliceSize: 0, BatchSize: batch, FallbackBatch: fallback}
	}
}

// EncodeAll encodes texts slice by slice according to plan and returns the
// unit vectors together with the index of the text each belongs to.
// A slice that fails is retried with the fallback batch size. Batches that
// still fail, and zero vectors, are dropped with a warning. Only context
// cancellation is returned as an error.
func EncodeAll(ctx context.Context, e Embedder, texts []string, plan BatchPlan) ([][]float32, []int, error) {
	sliceSize := plan.SliceSize
	if sliceSize <= 0 {
		sliceSize = len(texts)
	}

	var (
		vecs [][]float32
		kept []int
	)
	for start := 0; start < len(texts); start += sliceSize {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		end := min(start+sliceSize, len(texts))

		sv, err := encodeSlice(ctx, e, texts[start:end], plan.BatchSize)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			zap.L().Warn("embedding slice failed, retrying with fallback batch",
				zap.Int("start", start), zap.Int("size", end-start),
				zap.Int("fallback_batch", plan.FallbackBatch), zap.Error(err))
			sv = encodeTolerant(ctx, e, texts[start:end], plan.FallbackBatch)
		}

		for i, v := range sv {
			if v == nil {
				continue
			}
			if !Normalize(v) {
				zap.L().Warn("dropping zero-norm embedding", zap.Int("row", start+i))
				continue
			}
			vecs = append(vecs, v)
			kept = append(kept, start+i)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return vecs, kept, nil
}

// encodeSlice fails as a whole if any batch fails
func encodeSlice(ctx context.Context, e Embedder, texts []string, batch int) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batch {
		end := min(start+batch, len(texts))
		v, err := e.Encode(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(v) != end-start {
			return nil, errShape(len(v), end-start)
		}
		out = append(out, v...)
	}
	return out, nil
}

// encodeTolerant leaves nil entries for batches that fail
func encodeTolerant(ctx context.Context, e Embedder, texts []string, batch int) [][]float32 {
	out := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += batch {
		if ctx.Err() != nil {
			return out
		}
		end := min(start+batch, len(texts))
		v, err := e.Encode(ctx, texts[start:end])
		if err == nil && len(v) != end-start {
			err = errShape(len(v), end-start)
		}
		if err != nil {
			zap.L().Warn("dropping embedding batch", zap.Int("start", start), zap.Int("size", end-start), zap.Error(err))
			continue
		}
		copy(out[start:end], v)
	}
	return out
}

func errShape(got, want int) error {
	return eris.Errorf("embed: got %d vectors for %d texts", got, want)
}
