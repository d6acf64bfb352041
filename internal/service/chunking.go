package service

import (
	"github.com/cloo-solutions/groundwork/internal/domain"
)

// ChunkConfig controls the fixed rune windows documents are split into.
type ChunkConfig struct {
	Size    int
	Overlap int
}

// DefaultChunkConfig provides sane defaults for chunking.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		Size:    800,
		Overlap: 100,
	}
}

// Stride is the distance between consecutive window starts.
func (c ChunkConfig) Stride() int {
	return c.Size - c.Overlap
}

// Validate rejects configurations that cannot make progress.
func (c ChunkConfig) Validate() error {
	if c.Size <= 0 {
		return domain.NewValidationError("chunk size must be positive")
	}
	if c.Overlap < 0 || c.Overlap >= c.Size {
		return domain.NewValidationError("chunk overlap must be in [0, size)")
	}
	return nil
}

// chunkText splits text into windows of Size runes starting every Stride runes.
// Boundaries depend only on rune offsets, so the same text always yields the same chunks.
// The last window ends at the end of the text.
func chunkText(docID, text string, cfg ChunkConfig) []domain.Chunk {
	runes := []rune(text)
	if len(runes) == 0 || cfg.Validate() != nil {
		return nil
	}

	stride := cfg.Stride()
	chunks := make([]domain.Chunk, 0, len(runes)/stride+1)
	for start := 0; ; start += stride {
		end := start + cfg.Size
		if end > len(runes) {
			end = len(runes)
		}
		idx := len(chunks)
		chunks = append(chunks, domain.Chunk{
			ID:          domain.ChunkID(docID, idx),
			DocID:       docID,
			Idx:         idx,
			Text:        string(runes[start:end]),
			StartOffset: start,
			EndOffset:   end,
		})
		if end == len(runes) {
			break
		}
	}
	return chunks
}
