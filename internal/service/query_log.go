package service

import "context"

// QueryLogEntry records the outcome of one question for evaluation and auditing.
// It never holds chunk text, only the IDs of cited chunks.
type QueryLogEntry struct {
	ID            string
	OrgID         string
	Question      string
	Refused       bool
	RefusalReason string
	CitedChunkIDs []string
	EvidenceCount int
	TopScore      float64
	DurationMs    int
}

// QueryLogRepository persists query logs.
type QueryLogRepository interface {
	CreateQueryLog(ctx context.Context, entry QueryLogEntry) error
}
