// Package storetest is a conformance suite for store.Store implementations.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecsearch/metadata"
	"github.com/hupe1980/vecsearch/model"
	"github.com/hupe1980/vecsearch/store"
)

// Dim is the dimension the suite opens stores with.
const Dim = 3

// Factory opens an empty store of dimension Dim. Cleanup is the caller's
// concern (t.Cleanup).
type Factory func(t *testing.T) store.Store

// Reopener opens the store persisted under dir with dimension dim.
type Reopener func(t *testing.T, dir string, dim int) (store.Store, error)

func rec(id string, v ...float32) model.Record {
	return model.Record{
		ID:       id,
		Vector:   v,
		Document: "doc " + id,
		Metadata: metadata.Document{
			metadata.KeyTitle:     metadata.String("title " + id),
			metadata.KeyViewCount: metadata.Int(int64(len(id)) * 100),
			"rating":              metadata.Float(4.5),
			"live":                metadata.Bool(false),
			"duration_seconds":    metadata.Null(),
		},
	}
}

// Run executes the behavioural suite against stores created by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("PutGet", func(t *testing.T) { testPutGet(t, newStore(t)) })
	t.Run("IdempotentUpsert", func(t *testing.T) { testIdempotentUpsert(t, newStore(t)) })
	t.Run("Validation", func(t *testing.T) { testValidation(t, newStore(t)) })
	t.Run("PutBatchPartial", func(t *testing.T) { testPutBatchPartial(t, newStore(t)) })
	t.Run("GetMany", func(t *testing.T) { testGetMany(t, newStore(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("ScanOrderedRestartable", func(t *testing.T) { testScan(t, newStore(t)) })
	t.Run("ScanPaging", func(t *testing.T) { testScanPaging(t, newStore(t)) })
	t.Run("ScanCancel", func(t *testing.T) { testScanCancel(t, newStore(t)) })
	t.Run("Version", func(t *testing.T) { testVersion(t, newStore(t)) })
	t.Run("Isolation", func(t *testing.T) { testIsolation(t, newStore(t)) })
	t.Run("Closed", func(t *testing.T) { testClosed(t, newStore(t)) })
}

func testPutGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	want := rec("a", 1, 0, 0)
	require.NoError(t, s.Put(ctx, want))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Vector, got.Vector)
	assert.Equal(t, want.Document, got.Document)
	assert.True(t, want.Metadata.Equal(got.Metadata), "metadata %v != %v", want.Metadata, got.Metadata)

	n, ok := got.Metadata[metadata.KeyViewCount].AsInt64()
	require.True(t, ok, "view_count must stay an integer")
	assert.Equal(t, int64(100), n)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testIdempotentUpsert(t *testing.T, s store.Store) {
	ctx := context.Background()
	r := rec("a", 1, 2, 3)
	require.NoError(t, s.Put(ctx, r))
	require.NoError(t, s.Put(ctx, r))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	r2 := rec("a", 3, 2, 1)
	r2.Document = "replaced"
	require.NoError(t, s.Put(ctx, r2))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 2, 1}, got.Vector)
	assert.Equal(t, "replaced", got.Document)
}

func testValidation(t *testing.T, s store.Store) {
	ctx := context.Background()

	tests := []struct {
		name   string
		rec    model.Record
		reason string
	}{
		{"empty id", rec("", 1, 2, 3), store.ReasonEmptyID},
		{"blank id", rec("  ", 1, 2, 3), store.ReasonEmptyID},
		{"short", rec("a", 1, 2), store.ReasonDimensionMismatch},
		{"long", rec("a", 1, 2, 3, 4), store.ReasonDimensionMismatch},
		{"nan", rec("a", 1, float32(math.NaN()), 3), store.ReasonNonFinite},
		{"inf", rec("a", float32(math.Inf(1)), 0, 0), store.ReasonNonFinite},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Put(ctx, tt.rec)
			var ve *store.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tt.reason, ve.Reason)
		})
	}

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testPutBatchPartial(t *testing.T, s store.Store) {
	ctx := context.Background()
	errs, err := s.PutBatch(ctx, []model.Record{
		rec("a", 1, 0, 0),
		rec("b", 1, 0),
		rec("c", 0, 0, 1),
	})
	require.NoError(t, err)
	require.Len(t, errs, 3)
	assert.NoError(t, errs[0])
	assert.Error(t, errs[1])
	assert.NoError(t, errs[2])

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = s.Get(ctx, "b")
	assert.ErrorIs(t, err, store.ErrNotFound)

	errs, err = s.PutBatch(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, errs)
}

func testGetMany(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.PutBatch(ctx, []model.Record{rec("a", 1, 0, 0), rec("c", 0, 0, 1)})
	require.NoError(t, err)

	recs, found, err := s.GetMany(ctx, []string{"c", "b", "a", "c"})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true, true}, found)
	assert.Equal(t, "c", recs[0].ID)
	assert.Empty(t, recs[1].ID)
	assert.Equal(t, "a", recs[2].ID)
	assert.Equal(t, "c", recs[3].ID)
}

func testDelete(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.PutBatch(ctx, []model.Record{rec("a", 1, 0, 0), rec("b", 0, 1, 0)})
	require.NoError(t, err)

	n, err := s.Delete(ctx, []string{"a", "a", "missing"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, store.ErrNotFound)

	n, err = s.Delete(ctx, []string{"missing"})
	require.NoError(t, err)
	assert.Zero(t, n)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func collect(t *testing.T, s store.Store) []string {
	t.Helper()
	var ids []string
	for r, err := range s.Scan(context.Background()) {
		require.NoError(t, err)
		ids = append(ids, r.ID)
	}
	return ids
}

func testScan(t *testing.T, s store.Store) {
	ctx := context.Background()
	assert.Empty(t, collect(t, s))

	_, err := s.PutBatch(ctx, []model.Record{rec("c", 0, 0, 1), rec("a", 1, 0, 0), rec("b", 0, 1, 0)})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, collect(t, s))
	assert.Equal(t, []string{"a", "b", "c"}, collect(t, s))

	// Early break must not leak state into the next scan.
	for range s.Scan(ctx) {
		break
	}
	assert.Equal(t, []string{"a", "b", "c"}, collect(t, s))
}

func testScanPaging(t *testing.T, s store.Store) {
	ctx := context.Background()
	total := store.ScanPageSize*2 + 7

	batch := make([]model.Record, 0, total)
	for i := range total {
		batch = append(batch, rec(fmt.Sprintf("id-%05d", i), float32(i), 1, 0))
	}
	_, err := s.PutBatch(ctx, batch)
	require.NoError(t, err)

	ids := collect(t, s)
	require.Len(t, ids, total)
	for i, id := range ids {
		assert.Equal(t, fmt.Sprintf("id-%05d", i), id)
	}
}

func testScanCancel(t *testing.T, s store.Store) {
	_, err := s.PutBatch(context.Background(), []model.Record{rec("a", 1, 0, 0), rec("b", 0, 1, 0)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var gotErr error
	for _, err := range s.Scan(ctx) {
		if err != nil {
			gotErr = err
			break
		}
	}
	assert.ErrorIs(t, gotErr, context.Canceled)
}

func testVersion(t *testing.T, s store.Store) {
	ctx := context.Background()
	v0, err := s.Version(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, rec("a", 1, 0, 0)))
	v1, err := s.Version(ctx)
	require.NoError(t, err)
	assert.Greater(t, v1, v0)

	_, err = s.Delete(ctx, []string{"missing"})
	require.NoError(t, err)
	v2, err := s.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, v1, v2, "no-op delete must not bump the version")

	_, err = s.PutBatch(ctx, []model.Record{rec("bad", 1)})
	require.NoError(t, err)
	v3, err := s.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, v2, v3, "fully rejected batch must not bump the version")

	_, err = s.Delete(ctx, []string{"a"})
	require.NoError(t, err)
	v4, err := s.Version(ctx)
	require.NoError(t, err)
	assert.Greater(t, v4, v3)
}

func testIsolation(t *testing.T, s store.Store) {
	ctx := context.Background()
	r := rec("a", 1, 0, 0)
	require.NoError(t, s.Put(ctx, r))

	r.Vector[0] = 42
	r.Metadata[metadata.KeyTitle] = metadata.String("mutated")

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, float32(1), got.Vector[0])
	assert.Equal(t, "title a", got.Metadata[metadata.KeyTitle].StringValue())

	got.Vector[1] = 7
	again, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, float32(0), again.Vector[1])
}

func testClosed(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Put(ctx, rec("a", 1, 0, 0)), store.ErrClosed)
	_, err := s.Get(ctx, "a")
	assert.ErrorIs(t, err, store.ErrClosed)
	_, err = s.Count(ctx)
	assert.ErrorIs(t, err, store.ErrClosed)
}

// RunPersistence checks that data and version survive a reopen and that
// reopening with a different dimension fails.
func RunPersistence(t *testing.T, reopen Reopener) {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	s, err := reopen(t, dir, Dim)
	require.NoError(t, err)
	_, err = s.PutBatch(ctx, []model.Record{rec("a", 1, 0, 0), rec("b", 0, 1, 0)})
	require.NoError(t, err)
	_, err = s.Delete(ctx, []string{"b"})
	require.NoError(t, err)
	version, err := s.Version(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = reopen(t, dir, Dim)
	require.NoError(t, err)
	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0, 0}, got.Vector)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	v, err := s.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, version, v)
	require.NoError(t, s.Close())

	_, err = reopen(t, dir, Dim+1)
	assert.ErrorIs(t, err, store.ErrDimensionMismatch)
}
