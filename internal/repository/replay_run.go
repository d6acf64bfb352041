package repository

import (
	"context"
	"errors"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const replayRunColumns = `id, org_id, doc_id, force, status, scanned, changed, unchanged, errored, error,
	created_at, started_at, finished_at`

type ReplayRunRepository struct {
	pool *pgxpool.Pool
}

func NewReplayRunRepository(pool *pgxpool.Pool) *ReplayRunRepository {
	return &ReplayRunRepository{pool: pool}
}

func (r *ReplayRunRepository) Create(ctx context.Context, run *domain.ReplayRun) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO replay_runs (`+replayRunColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		run.ID, run.OrgID, run.DocID, run.Force, run.Status, run.Scanned, run.Changed, run.Unchanged,
		run.Errored, run.Error, run.CreatedAt, run.StartedAt, run.FinishedAt,
	)
	return err
}

func (r *ReplayRunRepository) GetByID(ctx context.Context, id string) (*domain.ReplayRun, error) {
	run, err := scanReplayRun(r.pool.QueryRow(ctx,
		`SELECT `+replayRunColumns+` FROM replay_runs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrReplayRunNotFound
		}
		return nil, err
	}
	return run, nil
}

func (r *ReplayRunRepository) Update(ctx context.Context, run *domain.ReplayRun) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE replay_runs
		 SET status = $1, scanned = $2, changed = $3, unchanged = $4, errored = $5, error = $6,
		     started_at = $7, finished_at = $8
		 WHERE id = $9`,
		run.Status, run.Scanned, run.Changed, run.Unchanged, run.Errored, run.Error,
		run.StartedAt, run.FinishedAt, run.ID,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrReplayRunNotFound
	}
	return nil
}

// ClaimPending moves the oldest pending run to running. SKIP LOCKED keeps concurrent
// workers off the same run.
func (r *ReplayRunRepository) ClaimPending(ctx context.Context) (*domain.ReplayRun, error) {
	run, err := scanReplayRun(r.pool.QueryRow(ctx,
		`WITH cte AS (
			 SELECT id
			 FROM replay_runs
			 WHERE status = $1
			 ORDER BY created_at ASC
			 FOR UPDATE SKIP LOCKED
			 LIMIT 1
		 )
		 UPDATE replay_runs
		 SET status = $2, started_at = now()
		 FROM cte
		 WHERE replay_runs.id = cte.id
		 RETURNING replay_runs.id, replay_runs.org_id, replay_runs.doc_id, replay_runs.force, replay_runs.status,
		           replay_runs.scanned, replay_runs.changed, replay_runs.unchanged, replay_runs.errored,
		           replay_runs.error, replay_runs.created_at, replay_runs.started_at, replay_runs.finished_at`,
		domain.ReplayStatusPending, domain.ReplayStatusRunning,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

func scanReplayRun(row pgx.Row) (*domain.ReplayRun, error) {
	var run domain.ReplayRun
	err := row.Scan(&run.ID, &run.OrgID, &run.DocID, &run.Force, &run.Status, &run.Scanned, &run.Changed,
		&run.Unchanged, &run.Errored, &run.Error, &run.CreatedAt, &run.StartedAt, &run.FinishedAt)
	if err != nil {
		return nil, err
	}
	return &run, nil
}
