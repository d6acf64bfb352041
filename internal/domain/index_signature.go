package domain

import "time"

// IndexSignature is the versioned description of how the stored corpus was built.
type IndexSignature struct {
	Backend      string
	Model        string
	Dim          int
	ChunkSize    int
	ChunkOverlap int
	Version      int64
	UpdatedAt    time.Time
}

// SignatureDiff classifies how a configured signature differs from the stored one.
type SignatureDiff int

const (
	SignatureMatch SignatureDiff = iota
	SignatureEmbeddingChanged
	SignatureChunkingChanged
)

// Compare reports the most disruptive difference between s (stored) and want (configured).
// A chunking change dominates an embedding change.
func (s IndexSignature) Compare(want IndexSignature) SignatureDiff {
	if s.ChunkSize != want.ChunkSize || s.ChunkOverlap != want.ChunkOverlap {
		return SignatureChunkingChanged
	}
	if s.Backend != want.Backend || s.Model != want.Model || s.Dim != want.Dim {
		return SignatureEmbeddingChanged
	}
	return SignatureMatch
}
