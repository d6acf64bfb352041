package repository

import (
	"context"
	"encoding/json"

	"github.com/cloo-solutions/groundwork/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
)

// QueryLogRepository stores answered and refused questions.
type QueryLogRepository struct {
	pool *pgxpool.Pool
}

func NewQueryLogRepository(pool *pgxpool.Pool) *QueryLogRepository {
	return &QueryLogRepository{pool: pool}
}

func (r *QueryLogRepository) CreateQueryLog(ctx context.Context, entry service.QueryLogEntry) error {
	cited := entry.CitedChunkIDs
	if cited == nil {
		cited = []string{}
	}
	citedJSON, err := json.Marshal(cited)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO query_logs (id, org_id, question, refused, refusal_reason, cited_chunk_ids, evidence_count, top_score, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID,
		entry.OrgID,
		entry.Question,
		entry.Refused,
		entry.RefusalReason,
		citedJSON,
		entry.EvidenceCount,
		entry.TopScore,
		entry.DurationMs,
	)
	return err
}
