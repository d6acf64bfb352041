package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "GROUNDWORK"

// Embedding and answer backends.
const (
	BackendHash       = "hash"
	BackendOpenAI     = "openai"
	BackendExtractive = "extractive"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL      string        `envconfig:"DATABASE_URL" required:"true"`
	DatabaseMaxConns int32         `envconfig:"DB_MAX_CONNS" default:"10"`
	DBTimeout        time.Duration `envconfig:"DB_TIMEOUT" default:"10s"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"groundwork-sources"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL"`

	EmbeddingBackend  string        `envconfig:"EMBEDDING_BACKEND" default:"hash"`
	EmbeddingModel    string        `envconfig:"EMBEDDING_MODEL"`
	EmbeddingDim      int           `envconfig:"EMBEDDING_DIM" default:"384"`
	EmbeddingTimeout  time.Duration `envconfig:"EMBEDDING_TIMEOUT" default:"10s"`
	EmbeddingFallback bool          `envconfig:"EMBEDDING_FALLBACK" default:"true"`

	AnswerBackend string `envconfig:"ANSWER_BACKEND" default:"extractive"`
	ChatModel     string `envconfig:"CHAT_MODEL"`

	ChunkSize    int `envconfig:"CHUNK_SIZE" default:"800"`
	ChunkOverlap int `envconfig:"CHUNK_OVERLAP" default:"100"`

	LexicalLimit      int           `envconfig:"LEXICAL_LIMIT" default:"20"`
	VectorLimit       int           `envconfig:"VECTOR_LIMIT" default:"20"`
	LexicalWeight     float64       `envconfig:"LEXICAL_WEIGHT" default:"0.5"`
	VectorWeight      float64       `envconfig:"VECTOR_WEIGHT" default:"0.5"`
	EvidenceThreshold float64       `envconfig:"EVIDENCE_THRESHOLD" default:"0.15"`
	RetrievalTimeout  time.Duration `envconfig:"RETRIEVAL_TIMEOUT" default:"5s"`
	CacheTTL          time.Duration `envconfig:"CACHE_TTL" default:"30s"`
	CacheMaxEntries   int           `envconfig:"CACHE_MAX_ENTRIES" default:"512"`
	AllowDebug        bool          `envconfig:"ALLOW_DEBUG" default:"false"`
	QueryLog          bool          `envconfig:"QUERY_LOG" default:"true"`

	ReplayWorkers      int           `envconfig:"REPLAY_WORKERS" default:"4"`
	ReplayPollInterval time.Duration `envconfig:"REPLAY_POLL_INTERVAL" default:"5s"`

	MaxBodyBytes int64 `envconfig:"MAX_BODY_BYTES" default:"20971520"`

	// Bootstrap: create initial organization and API key on startup
	InitOrgName string `envconfig:"INIT_ORG_NAME"`
	InitAPIKey  string `envconfig:"INIT_API_KEY"`

	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.ChunkSize <= 0 {
		errs = append(errs, errors.New("CHUNK_SIZE must be positive"))
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, fmt.Errorf("CHUNK_OVERLAP must be in [0, %d)", c.ChunkSize))
	}
	if c.LexicalWeight < 0 || c.VectorWeight < 0 {
		errs = append(errs, errors.New("retrieval weights must not be negative"))
	}
	if c.LexicalWeight+c.VectorWeight == 0 {
		errs = append(errs, errors.New("at least one retrieval weight must be positive"))
	}
	if c.LexicalLimit <= 0 || c.VectorLimit <= 0 {
		errs = append(errs, errors.New("retrieval limits must be positive"))
	}
	if c.EvidenceThreshold < 0 || c.EvidenceThreshold > 1 {
		errs = append(errs, errors.New("EVIDENCE_THRESHOLD must be in [0, 1]"))
	}
	if c.EmbeddingDim <= 0 {
		errs = append(errs, errors.New("EMBEDDING_DIM must be positive"))
	}
	switch c.EmbeddingBackend {
	case BackendHash:
	case BackendOpenAI:
		if !c.HasOpenAI() {
			errs = append(errs, errors.New("EMBEDDING_BACKEND=openai requires OPENAI_API_KEY"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown EMBEDDING_BACKEND %q", c.EmbeddingBackend))
	}
	switch c.AnswerBackend {
	case BackendExtractive:
	case BackendOpenAI:
		if !c.HasOpenAI() {
			errs = append(errs, errors.New("ANSWER_BACKEND=openai requires OPENAI_API_KEY"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown ANSWER_BACKEND %q", c.AnswerBackend))
	}
	if c.ReplayWorkers <= 0 {
		errs = append(errs, errors.New("REPLAY_WORKERS must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}
