package repository

import (
	"context"
	"errors"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OrgRepository struct {
	pool *pgxpool.Pool
}

func NewOrgRepository(pool *pgxpool.Pool) *OrgRepository {
	return &OrgRepository{pool: pool}
}

func (r *OrgRepository) Create(ctx context.Context, org *domain.Organization) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO organizations (id, name, created_at) VALUES ($1, $2, $3)`,
		org.ID, org.Name, org.CreatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrOrganizationAlreadyExists
	}
	return err
}

func (r *OrgRepository) GetByID(ctx context.Context, id string) (*domain.Organization, error) {
	return r.getOne(ctx, `SELECT id, name, created_at FROM organizations WHERE id = $1`, id)
}

func (r *OrgRepository) GetByName(ctx context.Context, name string) (*domain.Organization, error) {
	return r.getOne(ctx, `SELECT id, name, created_at FROM organizations WHERE name = $1`, name)
}

func (r *OrgRepository) getOne(ctx context.Context, sql string, arg string) (*domain.Organization, error) {
	var org domain.Organization
	err := r.pool.QueryRow(ctx, sql, arg).Scan(&org.ID, &org.Name, &org.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrganizationNotFound
		}
		return nil, err
	}
	return &org, nil
}

func (r *OrgRepository) List(ctx context.Context) ([]*domain.Organization, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, created_at FROM organizations ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToAddrOfStructByPos[domain.Organization])
}

const usageQuery = `
SELECT
	EXISTS (SELECT 1 FROM organizations WHERE id = $1),
	(SELECT count(*) FROM documents WHERE org_id = $1),
	(SELECT count(*) FROM chunks c JOIN documents d ON d.id = c.doc_id WHERE d.org_id = $1),
	(SELECT count(*) FROM api_keys WHERE org_id = $1 AND revoked_at IS NULL),
	(SELECT count(*) FROM query_logs WHERE org_id = $1),
	(SELECT count(*) FROM query_logs WHERE org_id = $1 AND refused),
	(SELECT max(e.ingested_at) FROM ingest_events e JOIN documents d ON d.id = e.doc_id WHERE d.org_id = $1)`

// Usage counts the live documents, chunks, active keys and logged questions of an organization.
// Lineage of deleted documents is not counted.
func (r *OrgRepository) Usage(ctx context.Context, orgID string) (*domain.OrgUsage, error) {
	var (
		exists bool
		u      domain.OrgUsage
	)
	err := r.pool.QueryRow(ctx, usageQuery, orgID).Scan(
		&exists, &u.Documents, &u.Chunks, &u.ActiveKeys, &u.Queries, &u.Refusals, &u.LastIngestAt,
	)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrOrganizationNotFound
	}
	return &u, nil
}
