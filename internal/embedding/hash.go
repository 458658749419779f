package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// DefaultHashDimension is used when a HashEmbedder is created with dim <= 0.
const DefaultHashDimension = 256

// HashEmbedder is an offline, deterministic embedder based on signed feature
// hashing of word unigrams and bigrams. It needs no model or network access,
// which makes it suitable for local development and tests; retrieval quality
// is lexical only.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder creates a HashEmbedder producing vectors of length dim.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = DefaultHashDimension
	}
	return &HashEmbedder{dim: dim}
}

// Dimension returns the output vector length.
func (h *HashEmbedder) Dimension() int { return h.dim }

// Embed implements Embedder.
func (h *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.embedOne(text)
	}
	return out, nil
}

func (h *HashEmbedder) embedOne(text string) []float32 {
	v := make([]float32, h.dim)
	// bias feature keeps empty texts away from the zero vector
	h.add(v, "\x00bias", 0.5)

	tokens := tokenize(text)
	for i, tok := range tokens {
		h.add(v, tok, 1)
		if i > 0 {
			h.add(v, tokens[i-1]+" "+tok, 0.5)
		}
	}
	return v
}

func (h *HashEmbedder) add(v []float32, feature string, weight float32) {
	hs := fnv.New64a()
	hs.Write([]byte(feature))
	sum := hs.Sum64()
	idx := int(sum % uint64(h.dim))
	if sum>>63 == 1 {
		weight = -weight
	}
	v[idx] += weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
