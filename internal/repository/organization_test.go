//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrgRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(ctx, t)
	repo := NewOrgRepository(pool)

	org := createTestOrg(ctx, t, pool, "Test Org")

	byID, err := repo.GetByID(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, "Test Org", byID.Name)

	byName, err := repo.GetByName(ctx, "Test Org")
	require.NoError(t, err)
	assert.Equal(t, org.ID, byName.ID)

	_, err = repo.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrOrganizationNotFound)

	dup := &domain.Organization{ID: uuid.NewString(), Name: "Test Org", CreatedAt: time.Now().UTC()}
	assert.ErrorIs(t, repo.Create(ctx, dup), domain.ErrOrganizationAlreadyExists)

	createTestOrg(ctx, t, pool, "Second Org")
	orgs, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, orgs, 2)
}

func TestOrgRepository_Usage(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(ctx, t)
	repo := NewOrgRepository(pool)
	org := createTestOrg(ctx, t, pool, "Usage Org")

	empty, err := repo.Usage(ctx, org.ID)
	require.NoError(t, err)
	assert.Zero(t, empty.Documents)
	assert.Nil(t, empty.LastIngestAt)
	assert.Zero(t, empty.RefusalRate())

	require.NoError(t, NewDocumentRepository(pool).Insert(ctx, newTestDocument(org.ID, "u1")))
	require.NoError(t, NewChunkRepository(pool).ReplaceForDocument(ctx, "u1", []domain.Chunk{
		{ID: domain.ChunkID("u1", 0), Idx: 0, Text: "alpha", EndOffset: 5},
		{ID: domain.ChunkID("u1", 1), Idx: 1, Text: "beta", StartOffset: 5, EndOffset: 9},
	}, "hash", "hash-v1"))

	ingestedAt := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, NewIngestEventRepository(pool).Create(ctx, &domain.IngestEvent{
		ID:               uuid.NewString(),
		DocID:            "u1",
		DocVersion:       1,
		IngestedAt:       ingestedAt,
		ContentSHA256:    "sha-u1",
		Changed:          true,
		NumChunks:        2,
		EmbeddingBackend: "hash",
		EmbeddingModel:   "hash-v1",
		EmbeddingDim:     64,
		ChunkSize:        800,
		ChunkOverlap:     100,
		Trigger:          domain.TriggerIngest,
	}))

	keys := NewAPIKeyRepository(pool)
	for i, name := range []string{"live", "revoked"} {
		key := &domain.APIKey{
			ID:        uuid.NewString(),
			OrgID:     org.ID,
			Name:      name,
			KeyHash:   "usage-hash-" + name,
			Clearance: domain.ClassificationInternal,
			CreatedAt: ingestedAt,
		}
		require.NoError(t, keys.Create(ctx, key))
		if i == 1 {
			require.NoError(t, keys.Revoke(ctx, key.ID))
		}
	}

	usage, err := repo.Usage(ctx, org.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, usage.Documents)
	assert.Equal(t, 2, usage.Chunks)
	assert.Equal(t, 1, usage.ActiveKeys)
	require.NotNil(t, usage.LastIngestAt)
	assert.True(t, ingestedAt.Equal(*usage.LastIngestAt))

	_, err = repo.Usage(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrOrganizationNotFound)
}

func TestAPIKeyRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(ctx, t)
	org := createTestOrg(ctx, t, pool, "Key Org")
	repo := NewAPIKeyRepository(pool)

	key := &domain.APIKey{
		ID:        uuid.NewString(),
		OrgID:     org.ID,
		Name:      "ci",
		KeyHash:   "hash-1",
		Clearance: domain.ClassificationConfidential,
		CanIngest: true,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, repo.Create(ctx, key))

	got, err := repo.GetByHash(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ClassificationConfidential, got.Clearance)
	assert.True(t, got.CanIngest)
	assert.Nil(t, got.RevokedAt)

	keys, err := repo.ListByOrg(ctx, org.ID)
	require.NoError(t, err)
	assert.Len(t, keys, 1)

	require.NoError(t, repo.Revoke(ctx, key.ID))
	got, err = repo.GetByHash(ctx, "hash-1")
	require.NoError(t, err)
	assert.True(t, got.IsRevoked())

	assert.ErrorIs(t, repo.Revoke(ctx, key.ID), domain.ErrAPIKeyNotFound)
	_, err = repo.GetByHash(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrAPIKeyNotFound)

	dup := *key
	dup.ID = uuid.NewString()
	assert.ErrorIs(t, repo.Create(ctx, &dup), domain.ErrAPIKeyAlreadyExists)

	// A newer revoked key still sorts after the older live one.
	live := &domain.APIKey{ID: uuid.NewString(), OrgID: org.ID, Name: "live", KeyHash: "hash-2",
		Clearance: domain.ClassificationPublic, CreatedAt: key.CreatedAt.Add(-time.Hour)}
	require.NoError(t, repo.Create(ctx, live))

	keys, err = repo.ListByOrg(ctx, org.ID)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, live.ID, keys[0].ID)
	assert.Equal(t, key.ID, keys[1].ID)
}
