package blobstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecsearch/internal/fs"
)

func testStores(t *testing.T) map[string]BlobStore {
	return map[string]BlobStore{
		"memory": NewMemoryStore(),
		"local":  NewLocalStore(t.TempDir()),
	}
}

func TestBlobStoreLifecycle(t *testing.T) {
	ctx := context.Background()

	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			data := []byte("hello world, this is a snapshot blob")
			require.NoError(t, store.Put(ctx, "videos/index.snap", data))

			blob, err := store.Open(ctx, "videos/index.snap")
			require.NoError(t, err)
			require.Equal(t, int64(len(data)), blob.Size())

			buf := make([]byte, 5)
			n, err := blob.ReadAt(ctx, buf, 6)
			require.NoError(t, err)
			assert.Equal(t, 5, n)
			assert.Equal(t, "world", string(buf))

			n, err = blob.ReadAt(ctx, make([]byte, 10), int64(len(data)-2))
			assert.Equal(t, 2, n)
			assert.ErrorIs(t, err, io.EOF)
			require.NoError(t, blob.Close())

			got, err := ReadAll(ctx, store, "videos/index.snap")
			require.NoError(t, err)
			assert.Equal(t, data, got)

			require.NoError(t, store.Put(ctx, "videos/index.snap", []byte("v2")))
			got, err = ReadAll(ctx, store, "videos/index.snap")
			require.NoError(t, err)
			assert.Equal(t, "v2", string(got))

			require.NoError(t, store.Delete(ctx, "videos/index.snap"))
			require.NoError(t, store.Delete(ctx, "videos/index.snap"))

			_, err = store.Open(ctx, "videos/index.snap")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestBlobStoreListAndDeletePrefix(t *testing.T) {
	ctx := context.Background()

	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			for i := range 3 {
				require.NoError(t, store.Put(ctx, fmt.Sprintf("a/%d.snap", i), []byte{byte(i)}))
			}
			require.NoError(t, store.Put(ctx, "b/0.snap", []byte{9}))

			names, err := store.List(ctx, "a/")
			require.NoError(t, err)
			assert.Equal(t, []string{"a/0.snap", "a/1.snap", "a/2.snap"}, names)

			require.NoError(t, DeletePrefix(ctx, store, "a/"))

			names, err = store.List(ctx, "")
			require.NoError(t, err)
			assert.Equal(t, []string{"b/0.snap"}, names)
		})
	}
}

func TestReadAllEmptyBlob(t *testing.T) {
	ctx := context.Background()

	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Put(ctx, "empty", nil))
			got, err := ReadAll(ctx, store, "empty")
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestMemoryStoreCopiesInput(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	data := []byte("abc")
	require.NoError(t, store.Put(ctx, "x", data))
	data[0] = 'z'

	got, err := ReadAll(ctx, store, "x")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
}

func TestMemoryStoreAccounting(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Put(ctx, "a", make([]byte, 10)))
	require.NoError(t, store.Put(ctx, "b", make([]byte, 5)))
	require.NoError(t, store.Put(ctx, "a", make([]byte, 3)))
	assert.Equal(t, 2, store.Len())
	assert.Equal(t, int64(8), store.TotalSize())

	require.NoError(t, store.Delete(ctx, "b"))
	require.NoError(t, store.Delete(ctx, "missing"))
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, int64(3), store.TotalSize())

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err := store.Open(cancelled, "a")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocalStoreListMissingRoot(t *testing.T) {
	store := NewLocalStore(filepath.Join(t.TempDir(), "missing"))
	names, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestLocalStorePutFault(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	ffs := fs.NewFaultyFS(nil)
	ffs.AddRule("index.snap", fs.Fault{FailAfterBytes: -1, FailOnSync: true})
	store := NewLocalStoreWithFS(root, ffs)

	require.ErrorIs(t, store.Put(ctx, "c/index.snap", []byte("data")), fs.ErrInjected)

	_, err := os.Stat(filepath.Join(root, "c", "index.snap"))
	assert.True(t, os.IsNotExist(err))
}
