package repository

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloo-solutions/groundwork/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const txRetryWait = 50 * time.Millisecond

// TxRunner provides transactional repositories using a pgx pool. A transaction that fails
// with a transient error is retried once from the start.
type TxRunner struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewTxRunner(pool *pgxpool.Pool, timeout time.Duration) *TxRunner {
	return &TxRunner{pool: pool, timeout: timeout}
}

func (r *TxRunner) WithTx(ctx context.Context, fn func(repos service.TxRepositories) error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(txRetryWait), 1), ctx)
	return backoff.Retry(func() error {
		err := r.run(ctx, fn)
		if err != nil && !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

func (r *TxRunner) run(ctx context.Context, fn func(repos service.TxRepositories) error) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}

	repos := &txRepos{tx: tx}
	if err := fn(repos); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	return tx.Commit(ctx)
}

type txRepos struct {
	tx pgx.Tx
}

func (r *txRepos) Documents() service.DocumentRepository {
	return NewDocumentRepositoryWithTx(r.tx)
}

func (r *txRepos) Chunks() service.ChunkRepository {
	return NewChunkRepositoryWithTx(r.tx)
}

func (r *txRepos) Events() service.IngestEventRepository {
	return NewIngestEventRepositoryWithTx(r.tx)
}

func (r *txRepos) Signature() service.IndexSignatureRepository {
	return NewIndexSignatureRepositoryWithTx(r.tx)
}
