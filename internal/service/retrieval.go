package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/embedding"
	"github.com/cloo-solutions/groundwork/internal/telemetry"
	"github.com/cloo-solutions/groundwork/internal/textproc"
)

// SearchFilter restricts candidate queries to what the caller may read. Both candidate
// queries apply it in SQL, before ranking.
type SearchFilter struct {
	OrgID           string
	Classifications []string
	Now             time.Time
	Dim             int
}

// SearchRepository runs the two candidate queries of hybrid retrieval.
type SearchRepository interface {
	SearchLexical(ctx context.Context, terms []string, filter SearchFilter, limit int) ([]ChunkCandidate, error)
	SearchVector(ctx context.Context, vector []float32, filter SearchFilter, limit int) ([]ChunkCandidate, error)
}

// QueryEmbedder embeds questions.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) (embedding.Vector, error)
	Dim() int
}

// SignatureVersion reports the index signature version results were computed against.
type SignatureVersion interface {
	Version() int64
}

// RetrievalConfig holds the retriever defaults.
type RetrievalConfig struct {
	TopK          int
	LexicalLimit  int
	VectorLimit   int
	LexicalWeight float64
	VectorWeight  float64
	SnippetRunes  int
	Timeout       time.Duration
}

// DefaultRetrievalConfig returns the standard retrieval settings.
func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		TopK:          defaultTopK,
		LexicalLimit:  defaultLexicalLimit,
		VectorLimit:   defaultVectorLimit,
		LexicalWeight: defaultLexicalWeight,
		VectorWeight:  defaultVectorWeight,
		SnippetRunes:  defaultSnippetMaxRunes,
		Timeout:       5 * time.Second,
	}
}

// RetrieveInput is one retrieval request. Zero values take the configured defaults.
type RetrieveInput struct {
	Query        string
	Scope        domain.AccessScope
	TopK         int
	LexicalLimit int
	VectorLimit  int
	Weights      *Weights
}

// Retriever ranks chunks for a query by merging lexical and vector candidates.
type Retriever struct {
	repo       SearchRepository
	embedder   QueryEmbedder
	cfg        RetrievalConfig
	cache      *RetrievalCache
	signatures SignatureVersion
	now        func() time.Time
	logger     *slog.Logger
}

// NewRetriever creates a Retriever. cache and signatures may be nil.
func NewRetriever(repo SearchRepository, embedder QueryEmbedder, cfg RetrievalConfig, cache *RetrievalCache, signatures SignatureVersion, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultRetrievalConfig()
	if cfg.TopK <= 0 {
		cfg.TopK = def.TopK
	}
	if cfg.LexicalLimit <= 0 {
		cfg.LexicalLimit = def.LexicalLimit
	}
	if cfg.VectorLimit <= 0 {
		cfg.VectorLimit = def.VectorLimit
	}
	if cfg.LexicalWeight == 0 && cfg.VectorWeight == 0 {
		cfg.LexicalWeight, cfg.VectorWeight = def.LexicalWeight, def.VectorWeight
	}
	if cfg.SnippetRunes <= 0 {
		cfg.SnippetRunes = def.SnippetRunes
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Retriever{
		repo:       repo,
		embedder:   embedder,
		cfg:        cfg,
		cache:      cache,
		signatures: signatures,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     logger,
	}
}

// Retrieve returns up to TopK evidence chunks visible to in.Scope, best first.
// Identical corpus, query and settings always produce the identical list.
func (r *Retriever) Retrieve(ctx context.Context, in RetrieveInput) ([]domain.Evidence, error) {
	ctx, span := telemetry.StartSpan(ctx, "Retriever.Retrieve", telemetry.SpanAttributes{
		OrgID:     in.Scope.OrgID,
		Operation: "retrieve",
	})
	defer span.End()

	topK := clampLimit(in.TopK, r.cfg.TopK, maxTopK)
	lexLimit := clampLimit(in.LexicalLimit, r.cfg.LexicalLimit, maxCandidateLimit)
	vecLimit := clampLimit(in.VectorLimit, r.cfg.VectorLimit, maxCandidateLimit)
	w := Weights{Lexical: r.cfg.LexicalWeight, Vector: r.cfg.VectorWeight}
	if in.Weights != nil {
		w = *in.Weights
	}
	if w.Lexical < 0 || w.Vector < 0 {
		return nil, domain.NewValidationError("retrieval weights must be non-negative")
	}

	query := strings.TrimSpace(in.Query)
	key := r.cacheKey(in.Scope, query, topK, lexLimit, vecLimit, w)
	if r.cache != nil {
		if ev, ok := r.cache.Get(key); ok {
			return ev, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	filter := SearchFilter{
		OrgID:           in.Scope.OrgID,
		Classifications: domain.VisibleClassifications(in.Scope.Clearance),
		Now:             r.now(),
		Dim:             r.embedder.Dim(),
	}

	var lexical []ChunkCandidate
	if terms := lexicalTerms(query); len(terms) > 0 {
		var err error
		lexical, err = r.repo.SearchLexical(ctx, terms, filter, lexLimit)
		if err != nil {
			span.SetError(err)
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeRetrieval, "lexical search failed", err)
		}
	}

	var vector []ChunkCandidate
	qv, err := r.embedder.Embed(ctx, query)
	switch {
	case err != nil:
		if ctx.Err() != nil {
			span.SetError(ctx.Err())
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeRetrieval, "retrieval timed out", ctx.Err())
		}
		r.logger.Warn("query embedding failed, using lexical candidates only", "org_id", in.Scope.OrgID, "error", err)
	case embedding.IsZero(qv.Values):
		// No feature of the query survived tokenization; cosine would be undefined.
	default:
		vector, err = r.repo.SearchVector(ctx, qv.Values, filter, vecLimit)
		if err != nil {
			span.SetError(err)
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeRetrieval, "vector search failed", err)
		}
	}

	span.SetData("lexical_candidates", len(lexical))
	span.SetData("vector_candidates", len(vector))

	merged := mergeCandidates(lexical, vector, w)
	if len(merged) > topK {
		merged = merged[:topK]
	}

	terms := textproc.SalientTerms(query)
	for i := range merged {
		merged[i].Snippet, merged[i].SnippetStart, merged[i].SnippetEnd = makeSnippet(merged[i].Text, terms, r.cfg.SnippetRunes)
	}

	if r.cache != nil {
		r.cache.Put(key, merged)
	}
	return merged, nil
}

func (r *Retriever) cacheKey(scope domain.AccessScope, query string, topK, lexLimit, vecLimit int, w Weights) string {
	if r.cache == nil {
		return ""
	}
	var sigVersion int64
	if r.signatures != nil {
		sigVersion = r.signatures.Version()
	}
	return fmt.Sprintf("%d|%d|%s|%d|%d|%d|%g|%g|%s",
		sigVersion, r.cache.Generation(), scope.Key(), topK, lexLimit, vecLimit, w.Lexical, w.Vector, query)
}
