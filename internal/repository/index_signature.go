package repository

import (
	"context"
	"errors"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IndexSignatureRepository reads and writes the single index_signature row.
type IndexSignatureRepository struct {
	db dbtx
}

func NewIndexSignatureRepository(pool *pgxpool.Pool) *IndexSignatureRepository {
	return &IndexSignatureRepository{db: pool}
}

func NewIndexSignatureRepositoryWithTx(tx pgx.Tx) *IndexSignatureRepository {
	return &IndexSignatureRepository{db: tx}
}

func (r *IndexSignatureRepository) Get(ctx context.Context) (*domain.IndexSignature, error) {
	return r.get(ctx, `SELECT backend, model, dim, chunk_size, chunk_overlap, version, updated_at
		 FROM index_signature WHERE id = 1`)
}

// GetForUpdate locks the row until the transaction ends.
func (r *IndexSignatureRepository) GetForUpdate(ctx context.Context) (*domain.IndexSignature, error) {
	return r.get(ctx, `SELECT backend, model, dim, chunk_size, chunk_overlap, version, updated_at
		 FROM index_signature WHERE id = 1 FOR UPDATE`)
}

func (r *IndexSignatureRepository) get(ctx context.Context, sql string) (*domain.IndexSignature, error) {
	var sig domain.IndexSignature
	err := r.db.QueryRow(ctx, sql).Scan(&sig.Backend, &sig.Model, &sig.Dim, &sig.ChunkSize, &sig.ChunkOverlap, &sig.Version, &sig.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrIndexSignatureNotFound
		}
		return nil, err
	}
	return &sig, nil
}

// Insert creates the row. Losing the race to another process is ErrSignatureChanged.
func (r *IndexSignatureRepository) Insert(ctx context.Context, sig *domain.IndexSignature) error {
	cmdTag, err := r.db.Exec(ctx,
		`INSERT INTO index_signature (id, backend, model, dim, chunk_size, chunk_overlap, version, updated_at)
		 VALUES (1, $1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO NOTHING`,
		sig.Backend, sig.Model, sig.Dim, sig.ChunkSize, sig.ChunkOverlap, sig.Version, sig.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrSignatureChanged
	}
	return nil
}

// Update replaces the row if its version is still expectedVersion.
func (r *IndexSignatureRepository) Update(ctx context.Context, sig *domain.IndexSignature, expectedVersion int64) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE index_signature
		 SET backend = $1, model = $2, dim = $3, chunk_size = $4, chunk_overlap = $5, version = $6, updated_at = $7
		 WHERE id = 1 AND version = $8`,
		sig.Backend, sig.Model, sig.Dim, sig.ChunkSize, sig.ChunkOverlap, sig.Version, sig.UpdatedAt, expectedVersion,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrSignatureChanged
	}
	return nil
}
