package similarity

import (
	"testing"

	"github.com/punchamoorthee/libraryops/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeText(t *testing.T) {
	tests := []struct {
		name string
		book domain.Book
		want string
	}{
		{"all parts", domain.Book{Title: "Dune", Description: "Desert planet", Tags: "sf, classic"}, "Dune\nDesert planet\nsf, classic"},
		{"missing description", domain.Book{Title: "Dune", Tags: "sf"}, "Dune\nsf"},
		{"whitespace trimmed", domain.Book{Title: "  Dune ", Description: "\n"}, "Dune"},
		{"empty", domain.Book{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComposeText(tt.book))
		})
	}
}

func TestContentHash(t *testing.T) {
	b := domain.Book{ID: 1, Title: "Dune", Description: "Desert planet", Tags: "sf", TotalCopies: 3}
	h := ContentHash(b)
	assert.Len(t, h, 64)

	other := b
	other.AvailableCopies = 2
	other.Author = "Herbert"
	assert.Equal(t, h, ContentHash(other), "only the embedded text affects the hash")

	other.Tags = "sci-fi"
	assert.NotEqual(t, h, ContentHash(other))

	// Moving text between fields is a different input.
	shifted := domain.Book{Title: "Dune Desert", Description: "planet", Tags: "sf"}
	assert.NotEqual(t, h, ContentHash(shifted))
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2, 3}, []float32{2, 4, 6}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 1}))
}

func TestCosineDimensionMismatchPanics(t *testing.T) {
	assert.Panics(t, func() {
		Cosine([]float32{1, 2}, []float32{1, 2, 3})
	})
}

func TestVectorEncoding(t *testing.T) {
	vec := []float32{0.25, -1.5, 3}
	buf := encodeVector(vec)
	require.Len(t, buf, 12)
	got, err := decodeVector(buf)
	require.NoError(t, err)
	assert.Equal(t, vec, got)

	_, err = decodeVector(buf[:5])
	assert.Error(t, err)
}

func TestRedisKey(t *testing.T) {
	vs := &RedisVectorStore{}
	assert.Equal(t, "libraryops:emb:keyword:abc", vs.Key("keyword", "abc"))
}
