package embedding

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

const bigramWeight = 0.5

// Hashing is a feature-hashing embedder: lower-cased word unigrams and
// bigrams are hashed into signed buckets and the result is L2-normalised.
// It needs no model files, so it serves development and tests.
type Hashing struct {
	dim int
}

func NewHashing(dim int) *Hashing {
	if dim <= 0 {
		dim = 384
	}
	return &Hashing{dim: dim}
}

func (h *Hashing) Name() string   { return "hashing" }
func (h *Hashing) Dimension() int { return h.dim }

func (h *Hashing) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.embed(text)
	}
	return out, nil
}

func (h *Hashing) embed(text string) []float32 {
	vec := make([]float64, h.dim)
	words := tokenize(text)
	for i, w := range words {
		h.add(vec, w, 1)
		if i > 0 {
			h.add(vec, words[i-1]+" "+w, bigramWeight)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	out := make([]float32, h.dim)
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

func (h *Hashing) add(vec []float64, feature string, weight float64) {
	sum := xxhash.Sum64String(feature)
	idx := sum % uint64(h.dim)
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

// tokenize splits on anything that is not a letter or digit, so Arabic and
// Latin text are handled the same way.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
