package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/cloo-solutions/groundwork/internal/contract"
	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/embedding"
	"github.com/cloo-solutions/groundwork/internal/normalize"
	"github.com/cloo-solutions/groundwork/internal/pagination"
	"github.com/cloo-solutions/groundwork/internal/telemetry"
)

// SourceStore archives the raw input of each document so replay can re-run ingestion.
type SourceStore interface {
	Put(ctx context.Context, src *domain.DocumentSource) error
	Get(ctx context.Context, docID string) (*domain.DocumentSource, error)
	Delete(ctx context.Context, docID string) error
}

// ChunkEmbedder produces chunk vectors; embedding.Resilient is the production implementation.
type ChunkEmbedder interface {
	Embed(ctx context.Context, text string) (embedding.Vector, error)
	Backend() string
	Model() string
	Dim() int
}

// CacheInvalidator is notified after every committed write.
type CacheInvalidator interface {
	Invalidate()
}

// IngestInput is one document submission.
type IngestInput struct {
	OrgID          string
	DocID          string
	Title          string
	Source         string
	Data           []byte
	Filename       string
	ContentType    string
	Classification string
	Retention      string
	Tags           []string
	Contract       []byte

	Force       bool
	Trigger     domain.IngestTrigger
	ReplayRunID string
}

// IngestResult summarizes a committed ingestion.
type IngestResult struct {
	DocID             string
	NumChunks         int
	Changed           bool
	DocVersion        int64
	EmbeddingFallback bool
	ValidationStatus  domain.ValidationStatus
	Warnings          []string
}

// LineagePage is one page of ingest events for a document.
type LineagePage struct {
	Items      []*domain.IngestEvent
	NextCursor string
	HasMore    bool
}

// IngestService runs the write path: normalize, validate, chunk, embed, and commit
// the document with its chunks and lineage event in one transaction.
type IngestService struct {
	docs       DocumentRepository
	events     IngestEventRepository
	txRunner   TxRunner
	signatures *SignatureService
	sources    SourceStore
	embedder   ChunkEmbedder
	normalizer *normalize.Normalizer
	chunkCfg   ChunkConfig
	cache      CacheInvalidator
	uuidGen    UUIDGenerator
	now        func() time.Time
	logger     *slog.Logger
}

// IngestDeps groups the collaborators of an IngestService.
type IngestDeps struct {
	Documents  DocumentRepository
	Events     IngestEventRepository
	TxRunner   TxRunner
	Signatures *SignatureService
	Sources    SourceStore
	Embedder   ChunkEmbedder
	Chunking   ChunkConfig
	Cache      CacheInvalidator
	Logger     *slog.Logger
}

// NewIngestService creates a new IngestService instance
func NewIngestService(deps IngestDeps) *IngestService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestService{
		docs:       deps.Documents,
		events:     deps.Events,
		txRunner:   deps.TxRunner,
		signatures: deps.Signatures,
		sources:    deps.Sources,
		embedder:   deps.Embedder,
		normalizer: normalize.New(),
		chunkCfg:   deps.Chunking,
		cache:      deps.Cache,
		uuidGen:    &DefaultUUIDGenerator{},
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger,
	}
}

// prepared is an input that passed every check that needs no storage access.
type prepared struct {
	input       IngestInput
	doc         domain.Document
	chunks      []domain.Chunk
	report      *contract.Report
	contractSHA string
	fingerprint string
}

// Ingest stores one document. Re-submitting identical normalized content only appends
// a lineage event with changed=false.
func (s *IngestService) Ingest(ctx context.Context, input IngestInput) (*IngestResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestService.Ingest", telemetry.SpanAttributes{
		OrgID:     input.OrgID,
		DocID:     input.DocID,
		RunID:     input.ReplayRunID,
		Operation: "ingest",
	})
	defer span.End()

	p, err := s.prepare(input)
	if err != nil {
		return nil, err
	}

	var result *IngestResult
	for attempt := 0; ; attempt++ {
		sig, err := s.signatures.Ensure(ctx)
		if err != nil {
			span.SetError(err)
			return nil, err
		}

		result, err = s.write(ctx, p, sig)
		if err == nil {
			break
		}
		if attempt == 0 && (errors.Is(err, domain.ErrVersionConflict) || errors.Is(err, domain.ErrSignatureChanged)) {
			s.logger.Info("ingest lost a concurrent write, retrying", "doc_id", p.doc.ID, "error", err)
			continue
		}
		span.SetError(err)
		return nil, err
	}

	if s.cache != nil {
		s.cache.Invalidate()
	}

	// The archive is only written for committed content: replay treats it as the
	// document's current source.
	if p.input.Trigger == domain.TriggerIngest {
		if err := s.archive(ctx, p); err != nil {
			s.logger.Error("failed to archive document source", "doc_id", result.DocID, "error", err)
			result.Warnings = append(result.Warnings, sourceNotArchivedWarning)
		}
	}

	s.logger.Info("document ingested",
		"doc_id", result.DocID,
		"org_id", p.doc.OrgID,
		"changed", result.Changed,
		"doc_version", result.DocVersion,
		"num_chunks", result.NumChunks,
		"trigger", p.input.Trigger,
	)
	return result, nil
}

const sourceNotArchivedWarning = "source archive was not updated; replay will reprocess the previously archived input"

func (s *IngestService) archive(ctx context.Context, p *prepared) error {
	return s.sources.Put(ctx, &domain.DocumentSource{
		DocID:       p.doc.ID,
		Data:        p.input.Data,
		Filename:    p.input.Filename,
		ContentType: p.input.ContentType,
		Contract:    p.input.Contract,
		UpdatedAt:   s.now(),
	})
}

func (s *IngestService) prepare(input IngestInput) (*prepared, error) {
	if input.OrgID == "" {
		return nil, domain.NewValidationError("org_id is required")
	}
	input.Title = strings.TrimSpace(input.Title)
	input.Source = strings.TrimSpace(input.Source)
	if input.Title == "" {
		return nil, domain.NewValidationError("title is required")
	}
	if input.Source == "" {
		return nil, domain.NewValidationError("source is required")
	}
	if input.DocID == "" {
		input.DocID = domain.DocumentID(input.OrgID, input.Source)
	}
	if input.Trigger == "" {
		input.Trigger = domain.TriggerIngest
	}
	if len(input.Data) == 0 {
		return nil, domain.ErrEmptyDocument
	}

	classification, err := domain.NormalizeClassification(input.Classification)
	if err != nil {
		return nil, err
	}
	retention, _, err := domain.NormalizeRetention(input.Retention)
	if err != nil {
		return nil, err
	}

	norm, err := s.normalizer.Normalize(normalize.Input{
		Data:        input.Data,
		Filename:    input.Filename,
		ContentType: input.ContentType,
	})
	if err != nil {
		return nil, err
	}

	p := &prepared{input: input}
	if norm.Table != nil {
		p.fingerprint = contract.Fingerprint(norm.Table)
	}
	if len(input.Contract) > 0 {
		if norm.Table == nil {
			return nil, domain.NewValidationError("a contract can only be applied to tabular sources")
		}
		c, err := contract.Parse(input.Contract)
		if err != nil {
			return nil, err
		}
		report := contract.Validate(c, norm.Table)
		if err := report.Err(); err != nil {
			return nil, err
		}
		p.report = report
		p.contractSHA = c.SHA256()
	}

	sum := sha256.Sum256([]byte(norm.Text))
	p.doc = domain.Document{
		ID:             input.DocID,
		OrgID:          input.OrgID,
		Title:          input.Title,
		Source:         input.Source,
		SourceType:     norm.SourceType,
		Classification: classification,
		Retention:      retention,
		Tags:           domain.NormalizeTags(input.Tags),
		ContentSHA256:  hex.EncodeToString(sum[:]),
		ContentBytes:   int64(len(norm.Text)),
	}
	if err := domain.ValidateDocument(&p.doc); err != nil {
		return nil, err
	}

	p.chunks = chunkText(p.doc.ID, norm.Text, s.chunkCfg)
	p.doc.NumChunks = len(p.chunks)
	return p, nil
}

func (s *IngestService) write(ctx context.Context, p *prepared, sig *domain.IndexSignature) (*IngestResult, error) {
	docID := p.doc.ID

	existing, err := s.docs.GetByID(ctx, docID)
	if err != nil && !errors.Is(err, domain.ErrDocumentNotFound) {
		return nil, err
	}
	if existing != nil && existing.OrgID != p.doc.OrgID {
		return nil, domain.ErrDocumentOwnership
	}

	prev, err := s.events.Latest(ctx, docID)
	if err != nil {
		return nil, err
	}

	unchanged := existing != nil && existing.ContentSHA256 == p.doc.ContentSHA256 && !p.input.Force

	chunks := p.chunks
	fallback := false
	if !unchanged {
		chunks, fallback, err = s.embedChunks(ctx, p.chunks)
		if err != nil {
			return nil, err
		}
	}

	event := &domain.IngestEvent{
		ID:                s.uuidGen.NewString(),
		DocID:             docID,
		IngestedAt:        s.now(),
		ContentSHA256:     p.doc.ContentSHA256,
		Changed:           !unchanged,
		NumChunks:         len(chunks),
		EmbeddingBackend:  sig.Backend,
		EmbeddingModel:    sig.Model,
		EmbeddingDim:      sig.Dim,
		EmbeddingFallback: fallback,
		ChunkSize:         s.chunkCfg.Size,
		ChunkOverlap:      s.chunkCfg.Overlap,
		SchemaFingerprint: p.fingerprint,
		ContractSHA256:    p.contractSHA,
		Trigger:           p.input.Trigger,
		ReplayRunID:       p.input.ReplayRunID,
	}
	if existing != nil {
		event.PrevContentSHA256 = existing.ContentSHA256
	}
	if prev != nil {
		event.SchemaDrifted = contract.Drifted(prev.SchemaFingerprint, p.fingerprint)
	}
	if p.report != nil {
		event.ValidationStatus = p.report.Status
		event.ValidationErrors = p.report.Messages()
	}

	result := &IngestResult{
		DocID:             docID,
		Changed:           !unchanged,
		EmbeddingFallback: fallback,
		ValidationStatus:  event.ValidationStatus,
	}
	if p.report != nil {
		result.Warnings = p.report.Warnings
	}

	err = s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Documents().Lock(ctx, docID); err != nil {
			return err
		}

		current, err := repos.Documents().GetByID(ctx, docID)
		if err != nil && !errors.Is(err, domain.ErrDocumentNotFound) {
			return err
		}
		if versionOf(current) != versionOf(existing) {
			return domain.ErrVersionConflict
		}

		stored, err := repos.Signature().Get(ctx)
		if err != nil {
			return err
		}
		if stored.Version != sig.Version {
			return domain.ErrSignatureChanged
		}

		now := s.now()
		if unchanged {
			if !existing.MetadataEquals(&p.doc) {
				updated := *existing
				updated.Title = p.doc.Title
				updated.Source = p.doc.Source
				updated.Classification = p.doc.Classification
				updated.Retention = p.doc.Retention
				updated.Tags = p.doc.Tags
				updated.ExpiresAt = domain.RetentionExpiry(updated.Retention, updated.CreatedAt)
				updated.UpdatedAt = now
				if err := repos.Documents().UpdateMetadata(ctx, &updated); err != nil {
					return err
				}
			}
			event.DocVersion = existing.Version
			event.NumChunks = existing.NumChunks
			result.DocVersion = existing.Version
			result.NumChunks = existing.NumChunks
			return repos.Events().Create(ctx, event)
		}

		doc := p.doc
		doc.UpdatedAt = now
		if existing == nil {
			doc.Version = 1
			doc.CreatedAt = now
			doc.ExpiresAt = domain.RetentionExpiry(doc.Retention, doc.CreatedAt)
			if err := repos.Documents().Insert(ctx, &doc); err != nil {
				return err
			}
		} else {
			doc.Version = existing.Version + 1
			doc.CreatedAt = existing.CreatedAt
			doc.ExpiresAt = domain.RetentionExpiry(doc.Retention, doc.CreatedAt)
			if err := repos.Documents().UpdateContent(ctx, &doc, existing.Version); err != nil {
				return err
			}
		}

		backend, model := sig.Backend, sig.Model
		if fallback {
			backend, model = embedding.BackendHash, embedding.HashModel
		}
		if err := repos.Chunks().ReplaceForDocument(ctx, docID, chunks, backend, model); err != nil {
			return err
		}

		event.DocVersion = doc.Version
		result.DocVersion = doc.Version
		result.NumChunks = len(chunks)
		return repos.Events().Create(ctx, event)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// embedChunks embeds every chunk. If any chunk needed the hash fallback, the whole
// document is embedded with the hash embedder so its vectors share one space.
func (s *IngestService) embedChunks(ctx context.Context, chunks []domain.Chunk) ([]domain.Chunk, bool, error) {
	out := make([]domain.Chunk, len(chunks))
	copy(out, chunks)

	fallback := false
	for i := range out {
		v, err := s.embedder.Embed(ctx, out[i].Text)
		if err != nil {
			return nil, false, err
		}
		out[i].Embedding = v.Values
		if v.Fallback {
			fallback = true
			break
		}
	}

	if fallback {
		hash := embedding.NewHashEmbedder(s.embedder.Dim())
		for i := range out {
			out[i].Embedding = hash.Vector(out[i].Text)
		}
	}
	return out, fallback, nil
}

func versionOf(doc *domain.Document) int64 {
	if doc == nil {
		return 0
	}
	return doc.Version
}

// GetDocument returns a document visible to scope. Documents outside the scope are
// reported as not found.
func (s *IngestService) GetDocument(ctx context.Context, scope domain.AccessScope, docID string) (*domain.Document, error) {
	doc, err := s.docs.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	if !doc.VisibleTo(scope, s.now()) {
		return nil, domain.ErrDocumentNotFound
	}
	return doc, nil
}

// DeleteDocument removes a document, its chunks and its archived source. Lineage events remain.
func (s *IngestService) DeleteDocument(ctx context.Context, scope domain.AccessScope, docID string) error {
	ctx, span := telemetry.StartSpan(ctx, "IngestService.DeleteDocument", telemetry.SpanAttributes{
		OrgID:     scope.OrgID,
		DocID:     docID,
		Operation: "delete",
	})
	defer span.End()

	doc, err := s.docs.GetByID(ctx, docID)
	if err != nil {
		return err
	}
	if doc.OrgID != scope.OrgID || !scope.Clearance.Allows(doc.Classification) {
		return domain.ErrDocumentNotFound
	}

	err = s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Documents().Lock(ctx, docID); err != nil {
			return err
		}
		return repos.Documents().Delete(ctx, docID)
	})
	if err != nil {
		span.SetError(err)
		return err
	}

	if err := s.sources.Delete(ctx, docID); err != nil && !errors.Is(err, domain.ErrSourceNotFound) {
		s.logger.Warn("failed to delete archived source", "doc_id", docID, "error", err)
	}
	if s.cache != nil {
		s.cache.Invalidate()
	}
	s.logger.Info("document deleted", "doc_id", docID, "org_id", scope.OrgID)
	return nil
}

// Lineage lists a document's ingest events, newest first.
func (s *IngestService) Lineage(ctx context.Context, scope domain.AccessScope, docID, cursor string, limit int) (*LineagePage, error) {
	if _, err := s.GetDocument(ctx, scope, docID); err != nil {
		return nil, err
	}

	c, err := pagination.DecodeCursor(cursor)
	if err != nil {
		return nil, domain.NewValidationError("invalid cursor")
	}
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}

	page, err := s.events.ListByDoc(ctx, docID, c, limit)
	if err != nil {
		return nil, err
	}
	return &LineagePage{
		Items:      page.Items,
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	}, nil
}
