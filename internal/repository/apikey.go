package repository

import (
	"context"
	"errors"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const apiKeyColumns = `id, org_id, name, key_hash, clearance, can_ingest, created_at, revoked_at`

// APIKeyRepository stores hashed API keys. The plaintext token never reaches it;
// lookups go through the SHA-256 hash the auth service computes.
type APIKeyRepository struct {
	pool *pgxpool.Pool
}

func NewAPIKeyRepository(pool *pgxpool.Pool) *APIKeyRepository {
	return &APIKeyRepository{pool: pool}
}

// Create inserts a key with its clearance and ingest grant. A hash collision
// reports ErrAPIKeyAlreadyExists.
func (r *APIKeyRepository) Create(ctx context.Context, key *domain.APIKey) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO api_keys (`+apiKeyColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.OrgID, key.Name, key.KeyHash, key.Clearance, key.CanIngest, key.CreatedAt, key.RevokedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrAPIKeyAlreadyExists
	}
	return err
}

// GetByHash resolves a bearer token's hash. Revoked keys are returned too; the
// caller decides what a revoked principal may do.
func (r *APIKeyRepository) GetByHash(ctx context.Context, hash string) (*domain.APIKey, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE key_hash = $1`, hash)
	key, err := scanAPIKey(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAPIKeyNotFound
	}
	return key, err
}

// ListByOrg returns an organization's keys, live ones first, newest first within each group.
func (r *APIKeyRepository) ListByOrg(ctx context.Context, orgID string) ([]*domain.APIKey, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE org_id = $1
		 ORDER BY revoked_at IS NOT NULL, created_at DESC`,
		orgID,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.APIKey, error) {
		return scanAPIKey(row)
	})
}

// Revoke is one-way. A second revoke of the same key reports ErrAPIKeyNotFound.
func (r *APIKeyRepository) Revoke(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE api_keys SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`, id)
	switch {
	case err != nil:
		return err
	case tag.RowsAffected() == 0:
		return domain.ErrAPIKeyNotFound
	}
	return nil
}

func scanAPIKey(row pgx.Row) (*domain.APIKey, error) {
	key := new(domain.APIKey)
	if err := row.Scan(&key.ID, &key.OrgID, &key.Name, &key.KeyHash, &key.Clearance, &key.CanIngest, &key.CreatedAt, &key.RevokedAt); err != nil {
		return nil, err
	}
	return key, nil
}
