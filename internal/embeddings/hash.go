package embeddings

import (
	"context"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"teamdigest/internal/core"
)

// DefaultHashDimension is the width of HashService vectors
const DefaultHashDimension = 256

// HashService is a deterministic local embedder based on signed feature
// hashing of words and word bigrams. Texts sharing vocabulary land close
// together, which is enough for offline runs and tests.
type HashService struct {
	dim int
}

// NewHashService creates a hashing embedder with dim dimensions
func NewHashService(dim int) *HashService {
	if dim <= 0 {
		dim = DefaultHashDimension
	}
	return &HashService{dim: dim}
}

// Dimension returns the vector width
func (h *HashService) Dimension() int { return h.dim }

// Close is a no-op
func (h *HashService) Close() error { return nil }

// Embed hashes each text into a unit vector
func (h *HashService) Embed(ctx context.Context, texts []string) (core.Embeddings, error) {
	out := make(core.Embeddings, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h *HashService) vector(text string) []float64 {
	v := make([]float64, h.dim)
	tokens := tokenize(text)
	for i, tok := range tokens {
		h.add(v, tok, 1)
		if i > 0 {
			h.add(v, tokens[i-1]+" "+tok, 0.5)
		}
	}
	if allZero(v) {
		// empty texts and fully cancelled features share one unit vector
		v[0] = 1
		return v
	}
	Normalize(v)
	return v
}

// add folds feature into v; the top hash bit picks the sign
func (h *HashService) add(v []float64, feature string, weight float64) {
	sum := xxhash.Sum64String(feature)
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

func allZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
