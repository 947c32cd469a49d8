package embed

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// HashEmbedder is a lexical embedder using the hashing trick over word
// tokens. It needs no model server and is deterministic, which makes it
// useful offline and in tests. Similarity reflects shared vocabulary only.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder creates a hashing embedder with dim buckets
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 256
	}
	return &HashEmbedder{dim: dim}
}

func (h *HashEmbedder) Model() string   { return "hash-bow" }
func (h *HashEmbedder) Dimensions() int { return h.dim }

func (h *HashEmbedder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h *HashEmbedder) vector(text string) []float32 {
	v := make([]float32, h.dim)
	for _, tok := range Tokens(text) {
		f := fnv.New32a()
		_, _ = f.Write([]byte(tok))
		sum := f.Sum32()
		idx := int(sum % uint32(h.dim))
		if sum&(1<<31) != 0 {
			v[idx]--
		} else {
			v[idx]++
		}
	}
	return v
}

// Tokens splits text into lowercased runs of letters and digits
func Tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
