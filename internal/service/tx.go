package service

import (
	"context"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/pagination"
	"github.com/google/uuid"
)

// DocumentRepository persists documents. Insert and UpdateContent return
// domain.ErrVersionConflict when the compare-and-swap on doc_version loses.
type DocumentRepository interface {
	GetByID(ctx context.Context, docID string) (*domain.Document, error)
	Lock(ctx context.Context, docID string) error
	Insert(ctx context.Context, doc *domain.Document) error
	UpdateContent(ctx context.Context, doc *domain.Document, expectedVersion int64) error
	UpdateMetadata(ctx context.Context, doc *domain.Document) error
	Delete(ctx context.Context, docID string) error
	ListIDs(ctx context.Context, orgID string) ([]string, error)
}

// ChunkRepository persists chunks and their embeddings.
type ChunkRepository interface {
	ReplaceForDocument(ctx context.Context, docID string, chunks []domain.Chunk, backend, model string) error
	CountAll(ctx context.Context) (int64, error)
	ListAfter(ctx context.Context, afterChunkID string, limit int) ([]domain.Chunk, error)
	UpsertEmbeddings(ctx context.Context, embeddings []domain.Embedding) error
}

// IngestEventRepository is the append-only lineage ledger.
type IngestEventRepository interface {
	Create(ctx context.Context, ev *domain.IngestEvent) error
	Latest(ctx context.Context, docID string) (*domain.IngestEvent, error)
	ListByDoc(ctx context.Context, docID string, cursor *pagination.Cursor, limit int) (*IngestEventPage, error)
}

// IngestEventPage is one page of lineage, newest first.
type IngestEventPage struct {
	Items      []*domain.IngestEvent
	NextCursor string
	HasMore    bool
}

// IndexSignatureRepository stores the singleton index signature row.
type IndexSignatureRepository interface {
	Get(ctx context.Context) (*domain.IndexSignature, error)
	GetForUpdate(ctx context.Context) (*domain.IndexSignature, error)
	Insert(ctx context.Context, sig *domain.IndexSignature) error
	Update(ctx context.Context, sig *domain.IndexSignature, expectedVersion int64) error
}

// TxRepositories provides transaction-bound repositories.
type TxRepositories interface {
	Documents() DocumentRepository
	Chunks() ChunkRepository
	Events() IngestEventRepository
	Signature() IndexSignatureRepository
}

// TxRunner executes a function within a transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(repos TxRepositories) error) error
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}
