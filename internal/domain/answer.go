package domain

import "time"

// RefusalReason explains why no answer was produced
type RefusalReason string

const (
	RefusalInsufficientEvidence RefusalReason = "insufficient_evidence"
	RefusalSafetyBlock          RefusalReason = "safety_block"
	RefusalInternalError        RefusalReason = "internal_error"
)

// Evidence is one ranked chunk considered by the answerer.
type Evidence struct {
	ChunkID      string
	DocID        string
	Idx          int
	Title        string
	Text         string
	Score        float64
	LexicalScore float64
	VectorScore  float64
	Snippet      string
	SnippetStart int
	SnippetEnd   int

	// ExpiresAt is the source document's retention expiry.
	ExpiresAt *time.Time
}

// Citation points at a verbatim span of a chunk the answer was built from.
// Start and End are rune offsets into the chunk text.
type Citation struct {
	ChunkID string
	DocID   string
	Idx     int
	Quote   string
	Start   int
	End     int
}

// Answer is what an answer provider returns.
type Answer struct {
	Text      string
	Citations []Citation
}

// QueryResult is the outcome of a question. Refused results never carry citations.
type QueryResult struct {
	Question      string
	Answer        string
	Refused       bool
	RefusalReason RefusalReason
	Citations     []Citation
	Retrieval     []Evidence
}

// Refusal builds a refused QueryResult for question.
func Refusal(question string, reason RefusalReason) *QueryResult {
	return &QueryResult{
		Question:      question,
		Refused:       true,
		RefusalReason: reason,
		Citations:     []Citation{},
	}
}

// CitationsWithin reports whether every citation resolves to a chunk in the evidence pack.
func CitationsWithin(citations []Citation, pack []Evidence) bool {
	ids := make(map[string]struct{}, len(pack))
	for _, ev := range pack {
		ids[ev.ChunkID] = struct{}{}
	}
	for _, c := range citations {
		if _, ok := ids[c.ChunkID]; !ok {
			return false
		}
	}
	return true
}
