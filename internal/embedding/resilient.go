package embedding

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloo-solutions/groundwork/internal/domain"
)

// ErrWrongDimensions is returned when a backend answers with a vector of unexpected size.
var ErrWrongDimensions = errors.New("embedding has wrong dimensions")

// ResilientConfig bounds calls to the primary backend.
type ResilientConfig struct {
	Timeout   time.Duration
	RetryWait time.Duration
	Fallback  bool
}

// Vector is an embedding plus whether it came from the hash fallback.
type Vector struct {
	Values   []float32
	Fallback bool
}

// Resilient wraps an Embedder with a per-call timeout, one retry for transient failures,
// and an optional fallback to hash embeddings of the same dimension.
type Resilient struct {
	primary  Embedder
	fallback *HashEmbedder
	cfg      ResilientConfig
	logger   *slog.Logger
}

// NewResilient wraps primary. A nil logger uses slog.Default.
func NewResilient(primary Embedder, cfg ResilientConfig, logger *slog.Logger) *Resilient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = 250 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resilient{
		primary:  primary,
		fallback: NewHashEmbedder(primary.Dim()),
		cfg:      cfg,
		logger:   logger,
	}
}

func (r *Resilient) Backend() string { return r.primary.Backend() }
func (r *Resilient) Model() string   { return r.primary.Model() }
func (r *Resilient) Dim() int        { return r.primary.Dim() }

// Embed returns the primary backend's vector, or the hash fallback when allowed.
// Without fallback, exhausted failures become a retryable INGESTION_ERROR.
func (r *Resilient) Embed(ctx context.Context, text string) (Vector, error) {
	var values []float32
	operation := func() error {
		callCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()

		v, err := r.primary.Embed(callCtx, text)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			if isTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if len(v) != r.primary.Dim() {
			return backoff.Permanent(ErrWrongDimensions)
		}
		values = v
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(r.cfg.RetryWait), 1), ctx)
	err := backoff.Retry(operation, policy)
	if err == nil {
		return Vector{Values: values}, nil
	}
	if ctx.Err() != nil {
		return Vector{}, ctx.Err()
	}

	if r.cfg.Fallback {
		r.logger.Warn("embedding backend failed, using hash fallback",
			"backend", r.primary.Backend(),
			"model", r.primary.Model(),
			"error", err,
		)
		return Vector{Values: r.fallback.Vector(text), Fallback: true}, nil
	}
	return Vector{}, domain.NewRetryableError(domain.ErrCodeIngestion, "embedding backend unavailable", err)
}

func isTransient(err error) bool {
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
