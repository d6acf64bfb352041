package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/embedding"
	"github.com/cloo-solutions/groundwork/internal/telemetry"
)

const rebuildBatchSize = 256

// SignatureService keeps the stored index signature in step with the configured one.
type SignatureService struct {
	repo     IndexSignatureRepository
	chunks   ChunkRepository
	txRunner TxRunner
	embedder ChunkEmbedder
	want     domain.IndexSignature
	logger   *slog.Logger

	mu      sync.Mutex
	version atomic.Int64
}

// NewSignatureService creates a SignatureService for the embedder and chunking in use.
func NewSignatureService(repo IndexSignatureRepository, chunks ChunkRepository, txRunner TxRunner, embedder ChunkEmbedder, chunking ChunkConfig, logger *slog.Logger) *SignatureService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SignatureService{
		repo:     repo,
		chunks:   chunks,
		txRunner: txRunner,
		embedder: embedder,
		want: domain.IndexSignature{
			Backend:      embedder.Backend(),
			Model:        embedder.Model(),
			Dim:          embedder.Dim(),
			ChunkSize:    chunking.Size,
			ChunkOverlap: chunking.Overlap,
		},
		logger: logger,
	}
}

// Configured returns the signature this process writes with.
func (s *SignatureService) Configured() domain.IndexSignature {
	return s.want
}

// Version is the last stored signature version this process observed.
func (s *SignatureService) Version() int64 {
	return s.version.Load()
}

// Ensure makes the stored signature match the configuration. An embedding change
// re-embeds every chunk; a chunking change over a non-empty corpus is rejected.
func (s *SignatureService) Ensure(ctx context.Context) (*domain.IndexSignature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.repo.Get(ctx)
	if errors.Is(err, domain.ErrIndexSignatureNotFound) {
		sig := s.want
		sig.Version = 1
		sig.UpdatedAt = time.Now().UTC()
		err = s.repo.Insert(ctx, &sig)
		if err == nil {
			s.version.Store(sig.Version)
			return &sig, nil
		}
		if !errors.Is(err, domain.ErrSignatureChanged) {
			return nil, err
		}
		stored, err = s.repo.Get(ctx)
	}
	if err != nil {
		return nil, err
	}

	switch stored.Compare(s.want) {
	case domain.SignatureChunkingChanged:
		n, err := s.chunks.CountAll(ctx)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return nil, domain.ErrIndexIncompatible
		}
		return s.advance(ctx, stored)
	case domain.SignatureEmbeddingChanged:
		return s.rebuild(ctx, stored)
	}

	s.version.Store(stored.Version)
	return stored, nil
}

func (s *SignatureService) advance(ctx context.Context, stored *domain.IndexSignature) (*domain.IndexSignature, error) {
	next := s.want
	next.Version = stored.Version + 1
	next.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, &next, stored.Version); err != nil {
		return nil, err
	}
	s.version.Store(next.Version)
	return &next, nil
}

func (s *SignatureService) rebuild(ctx context.Context, stored *domain.IndexSignature) (*domain.IndexSignature, error) {
	ctx, span := telemetry.StartSpan(ctx, "SignatureService.Rebuild", telemetry.SpanAttributes{
		Operation: "rebuild",
	})
	defer span.End()

	s.logger.Warn("embedding configuration changed, rebuilding index",
		"from_backend", stored.Backend,
		"from_model", stored.Model,
		"from_dim", stored.Dim,
		"to_backend", s.want.Backend,
		"to_model", s.want.Model,
		"to_dim", s.want.Dim,
	)

	var (
		embeddings []domain.Embedding
		fallbacks  int
		after      string
	)
	for {
		batch, err := s.chunks.ListAfter(ctx, after, rebuildBatchSize)
		if err != nil {
			span.SetError(err)
			return nil, err
		}
		if len(batch) == 0 {
			break
		}
		for _, c := range batch {
			v, err := s.embedder.Embed(ctx, c.Text)
			if err != nil {
				span.SetError(err)
				return nil, err
			}
			e := domain.Embedding{
				ChunkID: c.ID,
				Backend: s.want.Backend,
				Model:   s.want.Model,
				Dim:     len(v.Values),
				Vector:  v.Values,
			}
			if v.Fallback {
				fallbacks++
				e.Backend, e.Model = embedding.BackendHash, embedding.HashModel
			}
			embeddings = append(embeddings, e)
		}
		after = batch[len(batch)-1].ID
	}

	next := s.want
	next.Version = stored.Version + 1
	next.UpdatedAt = time.Now().UTC()

	err := s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		current, err := repos.Signature().GetForUpdate(ctx)
		if err != nil {
			return err
		}
		if current.Version != stored.Version {
			return domain.ErrSignatureChanged
		}
		if err := repos.Chunks().UpsertEmbeddings(ctx, embeddings); err != nil {
			return err
		}
		return repos.Signature().Update(ctx, &next, stored.Version)
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	s.version.Store(next.Version)
	s.logger.Info("index rebuilt",
		"chunks", len(embeddings),
		"fallbacks", fallbacks,
		"signature_version", next.Version,
	)
	return &next, nil
}
