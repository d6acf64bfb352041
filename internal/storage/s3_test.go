//go:build integration

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/cloo-solutions/groundwork/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(ctx context.Context, t *testing.T) *S3SourceStore {
	t.Helper()
	rc := testutil.NewRustFSContainer(ctx, t)
	t.Cleanup(func() { _ = rc.Terminate(context.Background()) })

	store, err := NewS3SourceStore(ctx, S3ClientConfig{
		Endpoint:        rc.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     testutil.RustFSAccessKey,
		SecretAccessKey: testutil.RustFSSecretKey,
		Bucket:          "groundwork-sources",
		UsePathStyle:    true,
	})
	require.NoError(t, err)

	var lastErr error
	for i := 0; i < 10; i++ {
		if lastErr = store.EnsureBucket(ctx); lastErr == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	require.NoError(t, lastErr)
	return store
}

func TestS3SourceStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(ctx, t)

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrSourceNotFound)

	src := &domain.DocumentSource{
		DocID:       "d1",
		Data:        []byte("region,sales\neu,10\n"),
		Filename:    "sales.csv",
		ContentType: "text/csv",
		Contract:    []byte("columns:\n  - name: region\n"),
	}
	require.NoError(t, store.Put(ctx, src))

	got, err := store.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, src.Data, got.Data)
	assert.Equal(t, "sales.csv", got.Filename)
	assert.Equal(t, "text/csv", got.ContentType)
	assert.Equal(t, src.Contract, got.Contract)
	assert.False(t, got.UpdatedAt.IsZero())

	// Re-ingesting without a contract drops the stale one.
	src.Contract = nil
	require.NoError(t, store.Put(ctx, src))
	got, err = store.Get(ctx, "d1")
	require.NoError(t, err)
	assert.Empty(t, got.Contract)

	require.NoError(t, store.Delete(ctx, "d1"))
	_, err = store.Get(ctx, "d1")
	assert.ErrorIs(t, err, domain.ErrSourceNotFound)
	require.NoError(t, store.Delete(ctx, "d1"))
}
