package repository

import (
	"context"
	"strings"

	"github.com/cloo-solutions/groundwork/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// SearchRepository runs the candidate queries of hybrid retrieval. Both apply the
// caller's scope in the WHERE clause, so nothing outside it is ever ranked.
type SearchRepository struct {
	pool *pgxpool.Pool
}

func NewSearchRepository(pool *pgxpool.Pool) *SearchRepository {
	return &SearchRepository{pool: pool}
}

// SearchLexical OR-s terms into an english tsquery and ranks by cover density,
// normalized to rank/(rank+1).
func (r *SearchRepository) SearchLexical(ctx context.Context, terms []string, filter service.SearchFilter, limit int) ([]service.ChunkCandidate, error) {
	if len(terms) == 0 {
		return []service.ChunkCandidate{}, nil
	}

	rows, err := r.pool.Query(ctx,
		`WITH q AS (SELECT to_tsquery('english', $1) AS query)
		 SELECT c.id, c.doc_id, c.idx, d.title, c.text, ts_rank_cd(c.tsv, q.query, 32)::float8 AS score, d.expires_at
		 FROM q, chunks c
		 JOIN documents d ON d.id = c.doc_id
		 WHERE c.tsv @@ q.query
		   AND d.org_id = $2
		   AND d.classification = ANY($3)
		   AND (d.expires_at IS NULL OR d.expires_at > $4)
		 ORDER BY score DESC, c.id ASC
		 LIMIT $5`,
		strings.Join(terms, " | "), filter.OrgID, filter.Classifications, filter.Now, limit,
	)
	if err != nil {
		return nil, err
	}
	return collectCandidates(rows)
}

// SearchVector ranks by cosine similarity among embeddings of the query's dimension.
func (r *SearchRepository) SearchVector(ctx context.Context, vector []float32, filter service.SearchFilter, limit int) ([]service.ChunkCandidate, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT c.id, c.doc_id, c.idx, d.title, c.text, 1 - (e.embedding <=> $1) AS score, d.expires_at
		 FROM chunk_embeddings e
		 JOIN chunks c ON c.id = e.chunk_id
		 JOIN documents d ON d.id = c.doc_id
		 WHERE e.dim = $2
		   AND d.org_id = $3
		   AND d.classification = ANY($4)
		   AND (d.expires_at IS NULL OR d.expires_at > $5)
		 ORDER BY e.embedding <=> $1, c.id ASC
		 LIMIT $6`,
		pgvector.NewVector(vector), filter.Dim, filter.OrgID, filter.Classifications, filter.Now, limit,
	)
	if err != nil {
		return nil, err
	}
	return collectCandidates(rows)
}

func collectCandidates(rows pgx.Rows) ([]service.ChunkCandidate, error) {
	defer rows.Close()

	results := make([]service.ChunkCandidate, 0)
	for rows.Next() {
		var c service.ChunkCandidate
		if err := rows.Scan(&c.ChunkID, &c.DocID, &c.Idx, &c.Title, &c.Text, &c.Score, &c.ExpiresAt); err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}
