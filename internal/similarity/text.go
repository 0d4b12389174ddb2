package similarity

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strings"

	"github.com/punchamoorthee/libraryops/internal/domain"
)

// ComposeText builds the embedding input for a book: title, description and
// tags in that order, one per line, empty parts skipped.
func ComposeText(b domain.Book) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{b.Title, b.Description, b.Tags} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n")
}

// ContentHash identifies the text a vector was computed from. Any edit to
// the title, description or tags changes it.
func ContentHash(b domain.Book) string {
	h := sha256.New()
	h.Write([]byte(b.Title))
	h.Write([]byte{0x1f})
	h.Write([]byte(b.Description))
	h.Write([]byte{0x1f})
	h.Write([]byte(b.Tags))
	return hex.EncodeToString(h.Sum(nil))
}

// Cosine returns the cosine similarity of a and b, or 0 if either is the
// zero vector. Vectors from different models must never meet here.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		panic("similarity: cosine of vectors with different dimensions")
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
