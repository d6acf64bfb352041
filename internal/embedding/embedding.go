// Package embedding provides the embedding capability used for chunks and queries:
// a deterministic hash embedder and a resilient wrapper around external backends.
package embedding

import (
	"context"
	"errors"
	"math"
)

// Backend names as recorded in the index signature.
const (
	BackendHash   = "hash"
	BackendOpenAI = "openai"
)

// ErrTransient marks backend failures worth one retry (rate limits, 5xx, timeouts).
var ErrTransient = errors.New("transient embedding failure")

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Backend() string
	Model() string
	Dim() int
}

// Normalize scales v to unit length in place. Zero vectors are left untouched.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}

// IsZero reports whether v carries no direction, which makes cosine similarity undefined.
func IsZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// Cosine returns the cosine similarity of a and b, or 0 when undefined.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
