package repository

import (
	"context"
	"errors"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SourceRepository keeps the last accepted raw input per document in Postgres. It is the
// source archive when no object store is configured.
type SourceRepository struct {
	pool *pgxpool.Pool
}

func NewSourceRepository(pool *pgxpool.Pool) *SourceRepository {
	return &SourceRepository{pool: pool}
}

func (r *SourceRepository) Put(ctx context.Context, src *domain.DocumentSource) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO document_sources (doc_id, data, filename, content_type, contract, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (doc_id) DO UPDATE
		 SET data = EXCLUDED.data, filename = EXCLUDED.filename, content_type = EXCLUDED.content_type,
		     contract = EXCLUDED.contract, updated_at = EXCLUDED.updated_at`,
		src.DocID, src.Data, src.Filename, src.ContentType, src.Contract, src.UpdatedAt,
	)
	return err
}

func (r *SourceRepository) Get(ctx context.Context, docID string) (*domain.DocumentSource, error) {
	var src domain.DocumentSource
	err := r.pool.QueryRow(ctx,
		`SELECT doc_id, data, filename, content_type, contract, updated_at
		 FROM document_sources WHERE doc_id = $1`,
		docID,
	).Scan(&src.DocID, &src.Data, &src.Filename, &src.ContentType, &src.Contract, &src.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSourceNotFound
		}
		return nil, err
	}
	return &src, nil
}

func (r *SourceRepository) Delete(ctx context.Context, docID string) error {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM document_sources WHERE doc_id = $1`, docID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrSourceNotFound
	}
	return nil
}
