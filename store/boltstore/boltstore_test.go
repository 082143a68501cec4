package boltstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecsearch/codec"
	"github.com/hupe1980/vecsearch/store"
	"github.com/hupe1980/vecsearch/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := Open(filepath.Join(t.TempDir(), FileName), store.Config{Dimension: storetest.Dim})
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestPersistence(t *testing.T) {
	storetest.RunPersistence(t, func(t *testing.T, dir string, dim int) (store.Store, error) {
		return Open(filepath.Join(dir, FileName), store.Config{Dimension: dim})
	})
}

func TestJSONCodec(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := Open(filepath.Join(t.TempDir(), FileName), store.Config{Dimension: storetest.Dim, Codec: codec.JSON{}})
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestCodecMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)

	s, err := Open(path, store.Config{Dimension: 3, Codec: codec.Msgpack{}})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(path, store.Config{Dimension: 3, Codec: codec.JSON{}})
	assert.ErrorIs(t, err, store.ErrCodecMismatch)
}
