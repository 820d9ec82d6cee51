package minio

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/minio/minio-go/v7"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/chunkcache/blobstore"
)

// TestMinioStore_Integration requires a running MinIO instance.
// Skip if not available.
func TestMinioStore_Integration(t *testing.T) {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		endpoint = "localhost:9000"
	}

	client, err := NewClient(Config{
		Endpoint:  endpoint,
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx := context.Background()
	if _, err := client.ListBuckets(ctx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	store := NewStore(client, "test-chunkcache", "test-prefix/")
	require.NoError(t, store.EnsureBucket(ctx))
	require.NoError(t, store.EnsureBucket(ctx), "idempotent")

	data := []byte("hello minio world")
	require.NoError(t, store.Put(ctx, "ns/a/0.chk", data))

	blob, err := store.Open(ctx, "ns/a/0.chk")
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), blob.Size())

	buf := make([]byte, 5)
	n, err := blob.ReadAt(ctx, buf, 6)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "minio", string(buf))
	require.NoError(t, blob.Close())

	stale, err := store.Open(ctx, "ns/a/0.chk")
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "ns/a/0.chk", []byte("HELLO MINIO WORLD")))
	_, err = stale.ReadAt(ctx, buf, 0)
	assert.ErrorIs(t, err, blobstore.ErrChanged)
	require.NoError(t, store.Put(ctx, "ns/a/0.chk", data))

	got, err := blobstore.ReadAll(ctx, store, "ns/a/0.chk")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	names, err := store.List(ctx, "ns/")
	require.NoError(t, err)
	assert.Equal(t, []string{"ns/a/0.chk"}, names)

	require.NoError(t, store.Delete(ctx, "ns/a/0.chk"))
	require.NoError(t, store.Delete(ctx, "ns/a/0.chk"))

	_, err = store.Open(ctx, "ns/a/0.chk")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestReadErr(t *testing.T) {
	assert.ErrorIs(t, readErr("k", minio.ErrorResponse{Code: "NoSuchKey"}), blobstore.ErrNotFound)
	assert.ErrorIs(t, readErr("k", minio.ErrorResponse{Code: "PreconditionFailed"}), blobstore.ErrChanged)

	other := errors.New("boom")
	assert.Same(t, other, readErr("k", other))
}
