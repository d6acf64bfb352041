package repository

import (
	"context"
	"errors"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const documentColumns = `id, org_id, title, source, source_type, classification, retention, expires_at, tags,
	content_sha256, content_bytes, num_chunks, version, created_at, updated_at`

type DocumentRepository struct {
	db dbtx
}

func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: pool}
}

func NewDocumentRepositoryWithTx(tx pgx.Tx) *DocumentRepository {
	return &DocumentRepository{db: tx}
}

func (r *DocumentRepository) GetByID(ctx context.Context, docID string) (*domain.Document, error) {
	doc, err := scanDocument(r.db.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`,
		docID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, err
	}
	return doc, nil
}

// Lock takes the per-document advisory lock for the rest of the transaction.
func (r *DocumentRepository) Lock(ctx context.Context, docID string) error {
	_, err := r.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, docID)
	return err
}

// Insert creates version 1 of a document. A concurrent insert of the same id is a lost
// compare-and-swap.
func (r *DocumentRepository) Insert(ctx context.Context, doc *domain.Document) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO documents (`+documentColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		doc.ID, doc.OrgID, doc.Title, doc.Source, doc.SourceType, doc.Classification, doc.Retention,
		doc.ExpiresAt, tagsOrEmpty(doc.Tags), doc.ContentSHA256, doc.ContentBytes, doc.NumChunks,
		doc.Version, doc.CreatedAt, doc.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrVersionConflict
	}
	return err
}

// UpdateContent writes a new content version if the stored version is still expectedVersion.
func (r *DocumentRepository) UpdateContent(ctx context.Context, doc *domain.Document, expectedVersion int64) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents
		 SET title = $1, source = $2, source_type = $3, classification = $4, retention = $5,
		     expires_at = $6, tags = $7, content_sha256 = $8, content_bytes = $9, num_chunks = $10,
		     version = $11, updated_at = $12
		 WHERE id = $13 AND version = $14`,
		doc.Title, doc.Source, doc.SourceType, doc.Classification, doc.Retention,
		doc.ExpiresAt, tagsOrEmpty(doc.Tags), doc.ContentSHA256, doc.ContentBytes, doc.NumChunks,
		doc.Version, doc.UpdatedAt, doc.ID, expectedVersion,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

// UpdateMetadata changes governance fields without touching the version.
func (r *DocumentRepository) UpdateMetadata(ctx context.Context, doc *domain.Document) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents
		 SET title = $1, source = $2, classification = $3, retention = $4, expires_at = $5, tags = $6, updated_at = $7
		 WHERE id = $8`,
		doc.Title, doc.Source, doc.Classification, doc.Retention, doc.ExpiresAt, tagsOrEmpty(doc.Tags), doc.UpdatedAt, doc.ID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// Delete removes a document; its chunks and embeddings cascade. Lineage is kept.
func (r *DocumentRepository) Delete(ctx context.Context, docID string) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, docID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func (r *DocumentRepository) ListIDs(ctx context.Context, orgID string) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM documents WHERE org_id = $1 ORDER BY id`, orgID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func scanDocument(row pgx.Row) (*domain.Document, error) {
	var d domain.Document
	err := row.Scan(&d.ID, &d.OrgID, &d.Title, &d.Source, &d.SourceType, &d.Classification, &d.Retention,
		&d.ExpiresAt, &d.Tags, &d.ContentSHA256, &d.ContentBytes, &d.NumChunks, &d.Version, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
