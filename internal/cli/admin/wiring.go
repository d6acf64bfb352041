package admin

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/cloo-solutions/groundwork/internal/config"
	"github.com/cloo-solutions/groundwork/internal/database"
	"github.com/cloo-solutions/groundwork/internal/embedding"
	"github.com/cloo-solutions/groundwork/internal/openai"
	"github.com/cloo-solutions/groundwork/internal/repository"
	"github.com/cloo-solutions/groundwork/internal/service"
	"github.com/cloo-solutions/groundwork/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
)

// app holds the services shared by serve and the in-process admin commands.
type app struct {
	cfg    *config.Config
	pool   *pgxpool.Pool
	logger *slog.Logger

	orgs       *repository.OrgRepository
	keys       *repository.APIKeyRepository
	auth       *service.AuthService
	signatures *service.SignatureService
	ingest     *service.IngestService
	query      *service.QueryService
	replay     *service.ReplayService
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := database.NewPool(ctx, database.Config{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DatabaseMaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return pool, nil
}

func getDBPool(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return openPool(ctx, cfg)
}

// authApp is the slice of app the org and apikey commands need; it skips embedder and
// source store setup.
type authApp struct {
	pool *pgxpool.Pool
	orgs *repository.OrgRepository
	keys *repository.APIKeyRepository
	auth *service.AuthService
}

func loadAuthApp(ctx context.Context) (*authApp, error) {
	pool, err := getDBPool(ctx)
	if err != nil {
		return nil, err
	}
	a := &authApp{
		pool: pool,
		orgs: repository.NewOrgRepository(pool),
		keys: repository.NewAPIKeyRepository(pool),
	}
	a.auth = service.NewAuthService(a.orgs, a.keys, &service.DefaultUUIDGenerator{})
	return a, nil
}

func (a *authApp) Close() {
	a.pool.Close()
}

// loadApp loads configuration, connects, and wires every service. The caller closes the pool.
func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	pool, err := openPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a, err := newApp(ctx, cfg, pool, newLogger(cfg))
	if err != nil {
		pool.Close()
		return nil, err
	}
	return a, nil
}

func newApp(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:    cfg,
		pool:   pool,
		logger: logger,
		orgs:   repository.NewOrgRepository(pool),
		keys:   repository.NewAPIKeyRepository(pool),
	}
	a.auth = service.NewAuthService(a.orgs, a.keys, &service.DefaultUUIDGenerator{})

	sources, err := newSourceStore(ctx, cfg, pool)
	if err != nil {
		return nil, err
	}

	primary, err := newEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	embedder := embedding.NewResilient(primary, embedding.ResilientConfig{
		Timeout:  cfg.EmbeddingTimeout,
		Fallback: cfg.EmbeddingFallback,
	}, logger.With("component", "embedding"))

	chunking := service.ChunkConfig{Size: cfg.ChunkSize, Overlap: cfg.ChunkOverlap}
	if err := chunking.Validate(); err != nil {
		return nil, err
	}

	docs := repository.NewDocumentRepository(pool)
	chunks := repository.NewChunkRepository(pool)
	txRunner := repository.NewTxRunner(pool, cfg.DBTimeout)
	cache := service.NewRetrievalCache(cfg.CacheTTL, cfg.CacheMaxEntries)

	a.signatures = service.NewSignatureService(
		repository.NewIndexSignatureRepository(pool),
		chunks,
		txRunner,
		embedder,
		chunking,
		logger.With("component", "signature"),
	)

	a.ingest = service.NewIngestService(service.IngestDeps{
		Documents:  docs,
		Events:     repository.NewIngestEventRepository(pool),
		TxRunner:   txRunner,
		Signatures: a.signatures,
		Sources:    sources,
		Embedder:   embedder,
		Chunking:   chunking,
		Cache:      cache,
		Logger:     logger.With("component", "ingest"),
	})

	retriever := service.NewRetriever(
		repository.NewSearchRepository(pool),
		embedder,
		service.RetrievalConfig{
			TopK:          service.DefaultRetrievalConfig().TopK,
			LexicalLimit:  cfg.LexicalLimit,
			VectorLimit:   cfg.VectorLimit,
			LexicalWeight: cfg.LexicalWeight,
			VectorWeight:  cfg.VectorWeight,
			SnippetRunes:  service.DefaultRetrievalConfig().SnippetRunes,
			Timeout:       cfg.RetrievalTimeout,
		},
		cache,
		a.signatures,
		logger.With("component", "retrieval"),
	)

	a.query = service.NewQueryService(
		retriever,
		newAnswerer(cfg),
		service.NewSafetyGate(cfg.EvidenceThreshold, 0),
		cfg.AllowDebug,
		logger.With("component", "query"),
	)
	if cfg.QueryLog {
		a.query.WithQueryLog(repository.NewQueryLogRepository(pool))
	}

	a.replay = service.NewReplayService(
		repository.NewReplayRunRepository(pool),
		docs,
		sources,
		a.ingest,
		cfg.ReplayWorkers,
		logger.With("component", "replay"),
	)

	return a, nil
}

// newSourceStore archives sources in S3 when configured, otherwise in Postgres.
func newSourceStore(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (service.SourceStore, error) {
	if !cfg.HasS3() {
		return repository.NewSourceRepository(pool), nil
	}
	store, err := storage.NewS3SourceStore(ctx, storage.S3ClientConfig{
		Endpoint:        cfg.S3Endpoint,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKey,
		SecretAccessKey: cfg.S3SecretKey,
		Bucket:          cfg.S3Bucket,
		UsePathStyle:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 source store: %w", err)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
	}
	log.Printf("S3 bucket '%s' ready for source archive", cfg.S3Bucket)
	return store, nil
}

func newEmbedder(cfg *config.Config) (embedding.Embedder, error) {
	switch cfg.EmbeddingBackend {
	case config.BackendOpenAI:
		client, err := openai.NewClientWithConfig(openai.Config{
			APIKey:              cfg.OpenAIAPIKey,
			BaseURL:             cfg.OpenAIBaseURL,
			EmbeddingModel:      cfg.EmbeddingModel,
			EmbeddingDimensions: cfg.EmbeddingDim,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create openai embedder: %w", err)
		}
		return client, nil
	default:
		return embedding.NewHashEmbedder(cfg.EmbeddingDim), nil
	}
}

func newAnswerer(cfg *config.Config) service.Answerer {
	if cfg.AnswerBackend == config.BackendOpenAI {
		return openai.NewChatAnswerer(openai.NewAPIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL), cfg.ChatModel)
	}
	return service.NewExtractiveAnswerer()
}
