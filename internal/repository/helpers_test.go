//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/pagination"
	"github.com/cloo-solutions/groundwork/internal/testutil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

func newTestPool(ctx context.Context, t *testing.T) *pgxpool.Pool {
	t.Helper()
	pc := testutil.NewPostgresContainer(ctx, t)
	t.Cleanup(func() { _ = pc.Terminate(context.Background()) })

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	t.Cleanup(pool.Close)
	return pool
}

func createTestOrg(ctx context.Context, t *testing.T, pool *pgxpool.Pool, name string) *domain.Organization {
	t.Helper()
	org := &domain.Organization{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, NewOrgRepository(pool).Create(ctx, org))
	return org
}

func newTestDocument(orgID, docID string) *domain.Document {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Document{
		ID:             docID,
		OrgID:          orgID,
		Title:          "Title " + docID,
		Source:         "test://" + docID,
		SourceType:     domain.SourceTypeText,
		Classification: domain.ClassificationInternal,
		Retention:      domain.RetentionIndefinite,
		Tags:           []string{"ops"},
		ContentSHA256:  "sha-" + docID,
		ContentBytes:   42,
		NumChunks:      1,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func decodeCursorForTest(s string) (*pagination.Cursor, error) {
	return pagination.DecodeCursor(s)
}
