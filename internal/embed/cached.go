package embed

import (
	"context"
	"encoding/binary"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/veriscope/internal/cache"
)

// CachedEmbedder looks texts up in a cache before calling the wrapped
// embedder, and only encodes the misses
type CachedEmbedder struct {
	inner Embedder
	cache cache.Cache
	ttl   time.Duration
}

// NewCachedEmbedder wraps inner. A nil cache returns inner unchanged.
func NewCachedEmbedder(inner Embedder, c cache.Cache, ttl time.Duration) Embedder {
	if c == nil {
		return inner
	}
	return &CachedEmbedder{inner: inner, cache: c, ttl: ttl}
}

func (e *CachedEmbedder) Model() string   { return e.inner.Model() }
func (e *CachedEmbedder) Dimensions() int { return e.inner.Dimensions() }

func (e *CachedEmbedder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var (
		missTexts []string
		missIdx   []int
	)
	for i, t := range texts {
		if raw, ok := e.cache.Get(ctx, e.key(t)); ok {
			if v, ok := decodeVector(raw); ok {
				out[i] = v
				continue
			}
		}
		missTexts = append(missTexts, t)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := e.inner.Encode(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, errShape(len(vecs), len(missTexts))
	}

	for j, v := range vecs {
		out[missIdx[j]] = v
		if err := e.cache.Set(ctx, e.key(missTexts[j]), encodeVector(v), e.ttl); err != nil {
			zap.L().Debug("embedding cache write failed", zap.Error(err))
		}
	}
	return out, nil
}

func (e *CachedEmbedder) key(text string) string {
	return cache.Key("emb", e.inner.Model(), text)
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, bool) {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil, false
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v, true
}
