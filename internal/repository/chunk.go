package repository

import (
	"context"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// ChunkRepository handles persistence of chunks and their embeddings.
type ChunkRepository struct {
	db dbtx
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: pool}
}

func NewChunkRepositoryWithTx(tx pgx.Tx) *ChunkRepository {
	return &ChunkRepository{db: tx}
}

// ReplaceForDocument deletes existing chunks for a document and inserts new ones with
// their embeddings.
func (r *ChunkRepository) ReplaceForDocument(ctx context.Context, docID string, chunks []domain.Chunk, backend, model string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM chunks WHERE doc_id = $1`, docID)
	if err != nil {
		return err
	}

	if len(chunks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, c := range chunks {
		batch.Queue(
			`INSERT INTO chunks (id, doc_id, idx, text, start_offset, end_offset)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ID, docID, c.Idx, c.Text, c.StartOffset, c.EndOffset,
		)
		if len(c.Embedding) == 0 {
			continue
		}
		batch.Queue(
			`INSERT INTO chunk_embeddings (chunk_id, backend, model, dim, embedding)
			 VALUES ($1, $2, $3, $4, $5)`,
			c.ID, backend, model, len(c.Embedding), pgvector.NewVector(c.Embedding),
		)
	}
	return r.db.SendBatch(ctx, batch).Close()
}

func (r *ChunkRepository) CountAll(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM chunks`).Scan(&n)
	return n, err
}

// ListAfter pages through every chunk in id order.
func (r *ChunkRepository) ListAfter(ctx context.Context, afterChunkID string, limit int) ([]domain.Chunk, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, doc_id, idx, text, start_offset, end_offset
		 FROM chunks
		 WHERE id > $1
		 ORDER BY id
		 LIMIT $2`,
		afterChunkID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		var c domain.Chunk
		if err := rows.Scan(&c.ID, &c.DocID, &c.Idx, &c.Text, &c.StartOffset, &c.EndOffset); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (r *ChunkRepository) UpsertEmbeddings(ctx context.Context, embeddings []domain.Embedding) error {
	if len(embeddings) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range embeddings {
		batch.Queue(
			`INSERT INTO chunk_embeddings (chunk_id, backend, model, dim, embedding)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (chunk_id) DO UPDATE
			 SET backend = EXCLUDED.backend, model = EXCLUDED.model, dim = EXCLUDED.dim, embedding = EXCLUDED.embedding`,
			e.ChunkID, e.Backend, e.Model, e.Dim, pgvector.NewVector(e.Vector),
		)
	}
	return r.db.SendBatch(ctx, batch).Close()
}

// ListForDocument returns the chunks of docID in order.
func (r *ChunkRepository) ListForDocument(ctx context.Context, docID string) ([]domain.Chunk, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, doc_id, idx, text, start_offset, end_offset
		 FROM chunks WHERE doc_id = $1 ORDER BY idx`,
		docID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		var c domain.Chunk
		if err := rows.Scan(&c.ID, &c.DocID, &c.Idx, &c.Text, &c.StartOffset, &c.EndOffset); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}
