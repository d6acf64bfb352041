package embedding

import (
	"context"
	"hash/fnv"

	"github.com/cloo-solutions/groundwork/internal/textproc"
)

// HashModel identifies the feature-hashing scheme; bump it if the hashing changes.
const HashModel = "hash-v1"

// DefaultHashDim is the dimension used when no external backend is configured.
const DefaultHashDim = 384

const bigramWeight = 0.5

// HashEmbedder is a deterministic, dependency-free embedder using signed feature hashing
// over stemmed terms and adjacent term pairs.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder creates a HashEmbedder producing dim-sized vectors.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = DefaultHashDim
	}
	return &HashEmbedder{dim: dim}
}

func (h *HashEmbedder) Backend() string { return BackendHash }
func (h *HashEmbedder) Model() string   { return HashModel }
func (h *HashEmbedder) Dim() int        { return h.dim }

// Embed never fails; the context is accepted to satisfy Embedder.
func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return h.Vector(text), nil
}

// Vector computes the embedding of text. Text without any terms maps to the zero vector.
func (h *HashEmbedder) Vector(text string) []float32 {
	v := make([]float32, h.dim)
	terms := textproc.Terms(text)
	for i, t := range terms {
		h.add(v, t, 1)
		if i > 0 {
			h.add(v, terms[i-1]+" "+t, bigramWeight)
		}
	}
	return Normalize(v)
}

func (h *HashEmbedder) add(v []float32, feature string, weight float32) {
	f := fnv.New64a()
	_, _ = f.Write([]byte(feature))
	sum := f.Sum64()
	idx := int(sum % uint64(h.dim))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	v[idx] += weight
}
