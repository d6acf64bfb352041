package repository

import (
	"context"
	"errors"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/pagination"
	"github.com/cloo-solutions/groundwork/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const eventColumns = `id, doc_id, doc_version, ingested_at, content_sha256, prev_content_sha256, changed, num_chunks,
	embedding_backend, embedding_model, embedding_dim, embedding_fallback, chunk_size, chunk_overlap,
	schema_fingerprint, contract_sha256, validation_status, validation_errors, schema_drifted, trigger, replay_run_id`

// IngestEventRepository appends to and reads the lineage ledger. There is no update or
// delete.
type IngestEventRepository struct {
	db dbtx
}

func NewIngestEventRepository(pool *pgxpool.Pool) *IngestEventRepository {
	return &IngestEventRepository{db: pool}
}

func NewIngestEventRepositoryWithTx(tx pgx.Tx) *IngestEventRepository {
	return &IngestEventRepository{db: tx}
}

func (r *IngestEventRepository) Create(ctx context.Context, ev *domain.IngestEvent) error {
	validationErrors := ev.ValidationErrors
	if validationErrors == nil {
		validationErrors = []string{}
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO ingest_events (`+eventColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		ev.ID, ev.DocID, ev.DocVersion, ev.IngestedAt, ev.ContentSHA256, ev.PrevContentSHA256, ev.Changed, ev.NumChunks,
		ev.EmbeddingBackend, ev.EmbeddingModel, ev.EmbeddingDim, ev.EmbeddingFallback, ev.ChunkSize, ev.ChunkOverlap,
		ev.SchemaFingerprint, ev.ContractSHA256, ev.ValidationStatus, validationErrors, ev.SchemaDrifted, ev.Trigger, ev.ReplayRunID,
	)
	return err
}

// Latest returns the newest event for docID, or nil when there is none.
func (r *IngestEventRepository) Latest(ctx context.Context, docID string) (*domain.IngestEvent, error) {
	ev, err := scanEvent(r.db.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM ingest_events
		 WHERE doc_id = $1
		 ORDER BY ingested_at DESC, id DESC
		 LIMIT 1`,
		docID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return ev, err
}

func (r *IngestEventRepository) ListByDoc(ctx context.Context, docID string, cursor *pagination.Cursor, limit int) (*service.IngestEventPage, error) {
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}

	var rows pgx.Rows
	var err error

	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT `+eventColumns+` FROM ingest_events
			 WHERE doc_id = $1 AND (ingested_at, id) < ($2, $3)
			 ORDER BY ingested_at DESC, id DESC
			 LIMIT $4`,
			docID, cursor.Timestamp, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT `+eventColumns+` FROM ingest_events
			 WHERE doc_id = $1
			 ORDER BY ingested_at DESC, id DESC
			 LIMIT $2`,
			docID, limit+1,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.IngestEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hasMore := len(events) > limit
	if hasMore {
		events = events[:limit]
	}

	var nextCursor string
	if hasMore && len(events) > 0 {
		last := events[len(events)-1]
		nextCursor = pagination.EncodeCursor(last.ID, last.IngestedAt)
	}

	return &service.IngestEventPage{
		Items:      events,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

func scanEvent(row pgx.Row) (*domain.IngestEvent, error) {
	var ev domain.IngestEvent
	err := row.Scan(&ev.ID, &ev.DocID, &ev.DocVersion, &ev.IngestedAt, &ev.ContentSHA256, &ev.PrevContentSHA256,
		&ev.Changed, &ev.NumChunks, &ev.EmbeddingBackend, &ev.EmbeddingModel, &ev.EmbeddingDim, &ev.EmbeddingFallback,
		&ev.ChunkSize, &ev.ChunkOverlap, &ev.SchemaFingerprint, &ev.ContractSHA256, &ev.ValidationStatus,
		&ev.ValidationErrors, &ev.SchemaDrifted, &ev.Trigger, &ev.ReplayRunID)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}
