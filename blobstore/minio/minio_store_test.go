package minio

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecsearch/blobstore"
)

func TestKeyMapping(t *testing.T) {
	s := NewStore(nil, "bucket", "vecsearch/")
	assert.Equal(t, "vecsearch/videos/index.snap", s.key("videos/index.snap"))
	assert.Equal(t, "videos/index.snap", s.name("vecsearch/videos/index.snap"))

	s = NewStore(nil, "bucket", "")
	assert.Equal(t, "videos/index.snap", s.key("videos/index.snap"))
	assert.Equal(t, "videos/index.snap", s.name("videos/index.snap"))

	s = NewStore(nil, "bucket", "/nested/root/")
	assert.Equal(t, "nested/root/v/index.snap", s.key("v/index.snap"))
	assert.Equal(t, "v/index.snap", s.name("nested/root/v/index.snap"))
}

func TestOptions(t *testing.T) {
	s := NewStore(nil, "bucket", "", WithPartSize(16<<20), WithStorageClass("REDUCED_REDUNDANCY"))
	assert.Equal(t, uint64(16<<20), s.partSize)
	assert.Equal(t, "REDUCED_REDUNDANCY", s.storageClass)
}

func TestReadPastEnd(t *testing.T) {
	o := &object{size: 4}
	n, err := o.ReadAt(context.Background(), make([]byte, 2), 4)
	assert.Zero(t, n)
	assert.ErrorIs(t, err, io.EOF)
}

// TestMinioStore_Integration requires a running MinIO instance.
func TestMinioStore_Integration(t *testing.T) {
	endpoint := os.Getenv("VECSEARCH_MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("VECSEARCH_MINIO_ENDPOINT not set")
	}
	bucket := "test-vecsearch"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	require.NoError(t, err)

	ctx := context.Background()

	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}))
	}

	store := NewStore(client, bucket, "test-prefix/")

	data := []byte("hello minio world")
	require.NoError(t, store.Put(ctx, "videos/index.snap", data))

	got, err := blobstore.ReadAll(ctx, store, "videos/index.snap")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	blob, err := store.Open(ctx, "videos/index.snap")
	require.NoError(t, err)
	buf := make([]byte, 5)
	_, err = blob.ReadAt(ctx, buf, 6)
	require.NoError(t, err)
	assert.Equal(t, "minio", string(buf))
	require.NoError(t, blob.Close())

	names, err := store.List(ctx, "videos/")
	require.NoError(t, err)
	assert.Contains(t, names, "videos/index.snap")

	require.NoError(t, store.Delete(ctx, "videos/index.snap"))
	_, err = store.Open(ctx, "videos/index.snap")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}
