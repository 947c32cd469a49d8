// Package embed defines the sentence embedder contract and the helpers the
// index and retriever share: unit normalisation, caching, batched encoding.
package embed

import (
	"context"
	"math"
)

// Embedder turns texts into fixed-width vectors. Identical input must give
// identical output.
type Embedder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
	Dimensions() int // 0 until known
}

// Normalize scales v to unit length in place. It reports false for a zero
// or non-finite vector, which callers must drop.
func Normalize(v []float32) bool {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return false
	}
	inv := 1 / norm
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return true
}

// Dot returns the dot product of two equal-length vectors. For unit
// vectors this is the cosine similarity.
func Dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var s float32
	for i := 0; i < n; i++ {
		s += a[i] * b[i]
	}
	return float64(s)
}

// EncodeNormalized encodes texts and normalizes the result. Texts whose
// vector cannot be normalized come back as nil.
func EncodeNormalized(ctx context.Context, e Embedder, texts []string) ([][]float32, error) {
	vecs, err := e.Encode(ctx, texts)
	if err != nil {
		return nil, err
	}
	for i, v := range vecs {
		if !Normalize(v) {
			vecs[i] = nil
		}
	}
	return vecs, nil
}
