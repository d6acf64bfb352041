package domain

import (
	"strconv"

	"github.com/google/uuid"
)

// chunkNamespace seeds the UUIDv5 chunk identifiers.
var chunkNamespace = uuid.MustParse("6f1c4f0e-8d0a-5b8e-9a43-2f3c9d7e1b55")

// Chunk is one fixed window of a document's normalized text.
// Offsets are rune positions into the normalized text, end exclusive.
type Chunk struct {
	ID          string
	DocID       string
	Idx         int
	Text        string
	StartOffset int
	EndOffset   int
	Embedding   []float32
}

// ChunkID derives the stable identifier of chunk idx of docID.
func ChunkID(docID string, idx int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(docID+":"+strconv.Itoa(idx))).String()
}

// Embedding describes how a chunk vector was produced.
type Embedding struct {
	ChunkID string
	Backend string
	Model   string
	Dim     int
	Vector  []float32
}
