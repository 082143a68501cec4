package vecsearch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/vecsearch/distance"
	"github.com/hupe1980/vecsearch/embed"
	"github.com/hupe1980/vecsearch/ingest"
	"github.com/hupe1980/vecsearch/metadata"
	"github.com/hupe1980/vecsearch/model"
	"github.com/hupe1980/vecsearch/resource"
	"github.com/hupe1980/vecsearch/testutil"
)

func openMemory(t *testing.T, opts ...Option) *DB {
	t.Helper()
	db, err := Open(context.Background(), append([]Option{InMemory()}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestCollection(t *testing.T, db *DB, dim int, metric distance.Metric) *Collection {
	t.Helper()
	c, err := db.CreateCollection(context.Background(), "test", dim, metric)
	require.NoError(t, err)
	return c
}

func put(t *testing.T, c *Collection, recs ...model.Record) {
	t.Helper()
	errs, err := c.PutBatch(context.Background(), recs)
	require.NoError(t, err)
	for _, e := range errs {
		require.NoError(t, e)
	}
}

func vrec(id string, vec ...float32) model.Record {
	return model.Record{ID: id, Vector: vec}
}

func resultIDs(rs []model.Result) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ID
	}
	return out
}

func TestScenarioCosineRanking(t *testing.T) {
	ctx := context.Background()
	c := newTestCollection(t, openMemory(t), 3, distance.MetricCosine)
	put(t, c,
		vrec("a", 1, 0, 0),
		vrec("b", 0, 1, 0),
		vrec("c", 0.9, 0.1, 0),
	)

	res, err := c.Query(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "c"}, resultIDs(res))
	assert.InDelta(t, 1.0, res[0].Score, 1e-6)
	assert.Greater(t, res[0].Score, res[1].Score)
}

func TestScenarioIngestWithBadRow(t *testing.T) {
	ctx := context.Background()
	c := newTestCollection(t, openMemory(t), 3, distance.MetricCosine)

	rows := []ingest.Row{
		{"id": "r1", "embedding": "[1, 0, 0]", "title": "one"},
		{"id": "r2", "embedding": "0 1 0", "title": "two"},
		{"id": "r3", "embedding": "not,a,vector", "title": "three"},
		{"id": "r4", "embedding": []float64{0, 0, 1}, "title": "four"},
		{"id": "r5", "embedding": "tensor([0.5, 0.5, 0])", "title": "five"},
	}

	summary, err := c.Ingest(ctx, slices.Values(rows))
	require.NoError(t, err)
	assert.Equal(t, 4, summary.InsertedCount)
	assert.Equal(t, 1, summary.SkippedCount)
	require.Len(t, summary.Rejections, 1)
	assert.Equal(t, 3, summary.Rejections[0].RowIndex)
	assert.Equal(t, ingest.ReasonParseFailure, summary.Rejections[0].Reason)

	for _, id := range []string{"r1", "r2", "r4", "r5"} {
		rec, err := c.Get(ctx, id)
		require.NoError(t, err, id)
		assert.Equal(t, id, rec.ID)
	}
	_, err = c.Get(ctx, "r3")
	require.ErrorIs(t, err, ErrNotFound)

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestScenarioEmptyCollection(t *testing.T) {
	c := newTestCollection(t, openMemory(t), 3, distance.MetricCosine)

	res, err := c.Query(context.Background(), []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.NotNil(t, res)
	assert.Empty(t, res)
}

func TestScenarioEmptyIDsGetDistinctIDs(t *testing.T) {
	ctx := context.Background()
	c := newTestCollection(t, openMemory(t), 2, distance.MetricDot)

	rows := []ingest.Row{
		{"id": "", "embedding": "1,0"},
		{"id": "", "embedding": "0,1"},
	}
	summary, err := c.Ingest(ctx, slices.Values(rows))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.InsertedCount)

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	res, err := c.Query(ctx, []float32{1, 1}, 10)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.NotEqual(t, res[0].ID, res[1].ID)
	assert.NotEmpty(t, res[0].ID)
	assert.NotEmpty(t, res[1].ID)
}

func TestIngestSuffixesDuplicateIDs(t *testing.T) {
	ctx := context.Background()
	c := newTestCollection(t, openMemory(t), 2, distance.MetricL2)

	rows := []ingest.Row{
		{"video_id": "v", "embedding": "1,0"},
		{"video_id": "v", "embedding": "0,1"},
	}
	summary, err := c.Ingest(ctx, slices.Values(rows))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.InsertedCount)

	_, err = c.Get(ctx, "v")
	require.NoError(t, err)
	_, err = c.Get(ctx, "v_2")
	require.NoError(t, err)
}

func TestIngestNormalisesMetadata(t *testing.T) {
	ctx := context.Background()
	c := newTestCollection(t, openMemory(t), 2, distance.MetricCosine)

	rows := []ingest.Row{{
		"videoId":      "x",
		"embedding":    "[0.1, 0.2]",
		"title":        "Intro",
		"channelTitle": "Go Channel",
		"viewCount":    "1,234",
		"duration":     "PT4M13S",
		"transcript":   "hello world",
	}}
	_, err := c.Ingest(ctx, slices.Values(rows))
	require.NoError(t, err)

	rec, err := c.Get(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "hello world", rec.Document)
	assert.Equal(t, metadata.String("Go Channel"), rec.Metadata["channel_title"])
	assert.Equal(t, metadata.Int(1234), rec.Metadata["view_count"])
	assert.True(t, rec.Metadata["duration_seconds"].IsNull())
}

func TestIdempotentUpsert(t *testing.T) {
	ctx := context.Background()
	c := newTestCollection(t, openMemory(t), 3, distance.MetricCosine)

	r := model.Record{
		ID:       "a",
		Vector:   []float32{1, 2, 3},
		Document: "doc",
		Metadata: metadata.Document{"title": metadata.String("t")},
	}
	require.NoError(t, c.Put(ctx, r))
	once, err := c.Query(ctx, []float32{1, 2, 3}, 5)
	require.NoError(t, err)

	require.NoError(t, c.Put(ctx, r))
	twice, err := c.Query(ctx, []float32{1, 2, 3}, 5)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUpsertReplaces(t *testing.T) {
	ctx := context.Background()
	c := newTestCollection(t, openMemory(t), 2, distance.MetricDot)

	put(t, c, vrec("a", 1, 0), vrec("b", 0, 1))
	put(t, c, vrec("a", 0, 2))

	res, err := c.Query(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "a", res[0].ID)
	assert.InDelta(t, 2.0, res[0].Score, 1e-6)
}

func TestDimensionInvariant(t *testing.T) {
	ctx := context.Background()
	c := newTestCollection(t, openMemory(t), 3, distance.MetricCosine)

	for _, vec := range [][]float32{{1, 2}, {1, 2, 3, 4}} {
		err := c.Put(ctx, vrec("x", vec...))
		var dme *DimensionMismatchError
		require.ErrorAs(t, err, &dme)
		assert.Equal(t, 3, dme.Expected)
		assert.Equal(t, len(vec), dme.Actual)
		assert.ErrorIs(t, err, ErrInvalidArgument)

		_, err = c.Query(ctx, vec, 1)
		require.ErrorAs(t, err, &dme)
	}

	rows := []ingest.Row{{"id": "short", "embedding": "1,2"}}
	summary, err := c.Ingest(ctx, slices.Values(rows))
	require.NoError(t, err)
	require.Len(t, summary.Rejections, 1)
	assert.Equal(t, ingest.ReasonDimensionMismatch, summary.Rejections[0].Reason)

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPutBatchReportsPerRecord(t *testing.T) {
	ctx := context.Background()
	c := newTestCollection(t, openMemory(t), 2, distance.MetricL2)

	errs, err := c.PutBatch(ctx, []model.Record{
		vrec("ok", 1, 1),
		vrec("", 1, 1),
		vrec("nan", float32(math.NaN()), 1),
		vrec("short", 1),
	})
	require.NoError(t, err)
	require.Len(t, errs, 4)
	assert.NoError(t, errs[0])
	for _, e := range errs[1:] {
		assert.ErrorIs(t, e, ErrInvalidArgument)
	}

	res, err := c.Query(ctx, []float32{1, 1}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, resultIDs(res))
}

func TestSelfSimilarity(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(42)
	recs := rng.Records(200, 16)

	for _, metric := range []distance.Metric{distance.MetricCosine, distance.MetricL2, distance.MetricDot} {
		t.Run(metric.String(), func(t *testing.T) {
			c := newTestCollection(t, openMemory(t), 16, metric)
			put(t, c, recs...)

			for _, i := range []int{0, 17, 199} {
				res, err := c.Query(ctx, recs[i].Vector, 3)
				require.NoError(t, err)
				require.NotEmpty(t, res)
				assert.Equal(t, recs[i].ID, res[0].ID)
				assert.InDelta(t, 1.0, res[0].Score, 1e-5)
			}
		})
	}
}

func TestQueryMatchesExactRanking(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(7)
	recs := rng.Records(300, 8)
	q := rng.UnitVector(8)

	for _, metric := range []distance.Metric{distance.MetricCosine, distance.MetricL2, distance.MetricDot} {
		t.Run(metric.String(), func(t *testing.T) {
			c := newTestCollection(t, openMemory(t), 8, metric)
			put(t, c, recs...)

			res, err := c.Query(ctx, q, 10)
			require.NoError(t, err)

			want := testutil.ExactTopK(q, recs, 10, metric)
			require.Len(t, res, len(want))
			for i := range want {
				assert.Equal(t, want[i].ID, res[i].ID)
				assert.InDelta(t, metric.Score(want[i].Distance), res[i].Score, 1e-5)
			}
		})
	}
}

func TestL2ScoreNormalisation(t *testing.T) {
	c := newTestCollection(t, openMemory(t), 2, distance.MetricL2)
	put(t, c, vrec("origin", 0, 0), vrec("far", 3, 4))

	res, err := c.Query(context.Background(), []float32{0, 0}, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"origin", "far"}, resultIDs(res))
	assert.InDelta(t, 1.0, res[0].Score, 1e-6)
	assert.InDelta(t, 1.0/26.0, res[1].Score, 1e-6)
}

func TestCosineZeroNorm(t *testing.T) {
	c := newTestCollection(t, openMemory(t), 2, distance.MetricCosine)
	put(t, c, vrec("zero", 0, 0), vrec("x", 1, 0))

	res, err := c.Query(context.Background(), []float32{0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	for _, r := range res {
		assert.Zero(t, r.Score)
	}
	assert.Equal(t, []string{"x", "zero"}, resultIDs(res))
}

func TestTieBreakByID(t *testing.T) {
	c := newTestCollection(t, openMemory(t), 2, distance.MetricCosine)
	put(t, c, vrec("c", 1, 0), vrec("a", 1, 0), vrec("b", 1, 0))

	res, err := c.Query(context.Background(), []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, resultIDs(res))
}

func TestTieBreakByIDOnEqualL2Scores(t *testing.T) {
	ctx := context.Background()
	c := newTestCollection(t, openMemory(t), 1, distance.MetricL2)
	// Different squared distances that round to the same 1/(1+d) score.
	put(t, c, vrec("z", 3444.8345), vrec("a", 3444.8347))

	res, err := c.Query(ctx, []float32{0}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	require.Equal(t, res[0].Score, res[1].Score)
	assert.Equal(t, []string{"a", "z"}, resultIDs(res))

	res, err = c.Query(ctx, []float32{0}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, resultIDs(res))
}

func TestTopKMonotonicity(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(3)
	c := newTestCollection(t, openMemory(t), 8, distance.MetricCosine)
	put(t, c, rng.Records(50, 8)...)

	q := rng.UnitVector(8)
	top3, err := c.Query(ctx, q, 3)
	require.NoError(t, err)
	top10, err := c.Query(ctx, q, 10)
	require.NoError(t, err)

	require.Len(t, top3, 3)
	require.Len(t, top10, 10)
	assert.Equal(t, top3, top10[:3])
}

func TestTopKLargerThanCollection(t *testing.T) {
	c := newTestCollection(t, openMemory(t), 2, distance.MetricDot)
	put(t, c, vrec("a", 1, 0), vrec("b", 0, 1))

	res, err := c.Query(context.Background(), []float32{1, 1}, 100)
	require.NoError(t, err)
	assert.Len(t, res, 2)
}

func TestDeleteThenQuery(t *testing.T) {
	ctx := context.Background()
	c := newTestCollection(t, openMemory(t), 2, distance.MetricCosine)
	put(t, c, vrec("a", 1, 0), vrec("b", 0.9, 0.1), vrec("c", 0, 1))

	n, err := c.Delete(ctx, []string{"a", "missing"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	res, err := c.Query(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.NotContains(t, resultIDs(res), "a")
	assert.Equal(t, []string{"b", "c"}, resultIDs(res))

	_, err = c.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)

	n, err = c.Delete(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGetMany(t *testing.T) {
	ctx := context.Background()
	c := newTestCollection(t, openMemory(t), 2, distance.MetricCosine)
	put(t, c, vrec("a", 1, 0), vrec("b", 0, 1))

	recs, found, err := c.GetMany(ctx, []string{"b", "x", "a"})
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true}, found)
	assert.Equal(t, "b", recs[0].ID)
	assert.Equal(t, "a", recs[2].ID)
}

func TestRebuildIsDeterministic(t *testing.T) {
	ctx := context.Background()
	rng := testutil.NewRNG(11)
	c := newTestCollection(t, openMemory(t), 8, distance.MetricL2)
	put(t, c, rng.Records(120, 8)...)
	q := rng.UnitVector(8)

	require.NoError(t, c.Rebuild(ctx))
	first, err := c.Query(ctx, q, 15)
	require.NoError(t, err)

	require.NoError(t, c.Rebuild(ctx))
	second, err := c.Query(ctx, q, 15)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestQueryFilterBeforeRanking(t *testing.T) {
	ctx := context.Background()
	c := newTestCollection(t, openMemory(t), 2, distance.MetricCosine)

	// The five closest records are unpopular; only distant ones pass the filter.
	var recs []model.Record
	for i := range 5 {
		recs = append(recs, model.Record{
			ID:       fmt.Sprintf("near-%d", i),
			Vector:   []float32{1, float32(i) * 0.01},
			Metadata: metadata.Document{"view_count": metadata.Int(10)},
		})
	}
	for i := range 5 {
		recs = append(recs, model.Record{
			ID:       fmt.Sprintf("far-%d", i),
			Vector:   []float32{float32(i) * 0.1, 1},
			Metadata: metadata.Document{"view_count": metadata.Int(5000)},
		})
	}
	put(t, c, recs...)

	res, err := c.Query(ctx, []float32{1, 0}, 3, WithFilters(metadata.Gte("view_count", metadata.Int(1000))))
	require.NoError(t, err)
	assert.Equal(t, []string{"far-4", "far-3", "far-2"}, resultIDs(res))

	res, err = c.Query(ctx, []float32{1, 0}, 3, WithPredicate(func(doc metadata.Document) bool {
		v, _ := doc["view_count"].AsInt64()
		return v >= 1000
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"far-4", "far-3", "far-2"}, resultIDs(res))

	// Both must hold.
	res, err = c.Query(ctx, []float32{1, 0}, 10,
		WithFilters(metadata.Gte("view_count", metadata.Int(1000))),
		WithPredicate(func(doc metadata.Document) bool { return false }),
	)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestQueryValidation(t *testing.T) {
	ctx := context.Background()
	c := newTestCollection(t, openMemory(t), 2, distance.MetricCosine)

	_, err := c.Query(ctx, []float32{1, 0}, 0)
	require.ErrorIs(t, err, ErrInvalidK)
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = c.Query(ctx, []float32{float32(math.Inf(1)), 0}, 1)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "query_vector", ve.Field)

	_, err = c.Query(ctx, []float32{1, 0}, 1, WithFilters(metadata.Filter{Key: "", Operator: metadata.OpEqual}))
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "filter", ve.Field)
}

func TestQueryCancelled(t *testing.T) {
	c := newTestCollection(t, openMemory(t), 4, distance.MetricCosine)
	put(t, c, testutil.NewRNG(1).Records(10, 4)...)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Query(ctx, []float32{1, 0, 0, 0}, 3)
	require.ErrorIs(t, err, context.Canceled)
}

func TestWithoutDocuments(t *testing.T) {
	c := newTestCollection(t, openMemory(t), 2, distance.MetricCosine)
	put(t, c, model.Record{
		ID:       "a",
		Vector:   []float32{1, 0},
		Document: "text",
		Metadata: metadata.Document{"title": metadata.String("A")},
	})

	res, err := c.Query(context.Background(), []float32{1, 0}, 1, WithoutDocuments())
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Empty(t, res[0].Document)
	assert.Equal(t, metadata.String("A"), res[0].Metadata["title"])
}

func TestQueryText(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t, WithEmbedder(embed.Hashing{Dim: 32}))
	c := newTestCollection(t, db, 32, distance.MetricCosine)

	rows := []ingest.Row{
		{"id": "go", "transcript": "goroutines and channels in go"},
		{"id": "rust", "transcript": "ownership and borrowing in rust"},
		{"id": "title-only", "title": "cooking pasta at home"},
	}
	summary, err := c.Ingest(ctx, slices.Values(rows))
	require.NoError(t, err)
	require.Equal(t, 3, summary.InsertedCount)

	res, err := c.QueryText(ctx, "goroutines and channels in go", 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "go", res[0].ID)
	assert.InDelta(t, 1.0, res[0].Score, 1e-5)

	r, err := c.SearchText("cooking pasta at home").First(ctx)
	require.NoError(t, err)
	assert.Equal(t, "title-only", r.ID)

	_, err = c.QueryText(ctx, "   ", 1)
	require.ErrorIs(t, err, ErrInvalidArgument)

	other := newCollectionNamed(t, db, "narrow", 8)
	_, err = other.QueryText(ctx, "go", 1)
	var dme *DimensionMismatchError
	require.ErrorAs(t, err, &dme)
}

func newCollectionNamed(t *testing.T, db *DB, name string, dim int) *Collection {
	t.Helper()
	c, err := db.CreateCollection(context.Background(), name, dim, distance.MetricCosine)
	require.NoError(t, err)
	return c
}

func TestQueryTextWithoutEmbedder(t *testing.T) {
	c := newTestCollection(t, openMemory(t), 2, distance.MetricCosine)
	_, err := c.QueryText(context.Background(), "hello", 1)
	require.ErrorIs(t, err, ErrNoEmbedder)

	rows := []ingest.Row{{"id": "a", "transcript": "no vector here"}}
	summary, err := c.Ingest(context.Background(), slices.Values(rows))
	require.NoError(t, err)
	require.Len(t, summary.Rejections, 1)
	assert.Equal(t, ingest.ReasonMissingEmbedding, summary.Rejections[0].Reason)
}

func TestStaleIndexRebuiltBeforeRead(t *testing.T) {
	ctx := context.Background()
	c := newTestCollection(t, openMemory(t), 2, distance.MetricCosine)
	put(t, c, vrec("a", 1, 0), vrec("b", 0, 1))

	// Simulate an index update that failed after the store commit.
	c.index.Remove("a")
	c.markStale(ctx, errors.New("simulated"))
	require.True(t, c.Stale())

	res, err := c.Query(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, resultIDs(res))
	assert.False(t, c.Stale())
}

func TestMissingStoreRecordTriggersRebuild(t *testing.T) {
	ctx := context.Background()
	c := newTestCollection(t, openMemory(t), 2, distance.MetricCosine)
	put(t, c, vrec("a", 1, 0), vrec("b", 1, 1), vrec("c", 0, 1))

	// Remove behind the collection's back.
	_, err := c.store.Delete(ctx, []string{"a"})
	require.NoError(t, err)

	res, err := c.Query(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, resultIDs(res))
	assert.False(t, c.Stale())
	assert.Equal(t, 2, c.index.Len())

	res, err = c.Query(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, resultIDs(res))
}

func TestConcurrentReadersSeeWholeMutations(t *testing.T) {
	ctx := context.Background()
	c := newTestCollection(t, openMemory(t), 4, distance.MetricDot)

	// Every batch writes a pair with equal vectors; a reader must never
	// see one half of a pair without the other.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for i := range 50 {
			v := float32(i + 1)
			errs, err := c.PutBatch(gctx, []model.Record{
				vrec(fmt.Sprintf("p%02d-a", i), v, 0, 0, 0),
				vrec(fmt.Sprintf("p%02d-b", i), v, 0, 0, 0),
			})
			if err != nil {
				return err
			}
			if err := errors.Join(errs...); err != nil {
				return err
			}
		}
		return nil
	})
	for range 4 {
		g.Go(func() error {
			for range 50 {
				res, err := c.Query(gctx, []float32{1, 0, 0, 0}, 100)
				if err != nil {
					return err
				}
				if len(res)%2 != 0 {
					return fmt.Errorf("observed half-applied batch: %d results", len(res))
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
}

func TestMetricsAndLogging(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	metrics := &BasicMetricsCollector{}
	db := openMemory(t,
		WithMetricsCollector(metrics),
		WithLogger(NewLogger(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))),
	)
	c := newTestCollection(t, db, 2, distance.MetricCosine)

	rows := []ingest.Row{
		{"id": "a", "embedding": "1,0"},
		{"id": "b", "embedding": "oops"},
	}
	_, err := c.Ingest(ctx, slices.Values(rows))
	require.NoError(t, err)
	_, err = c.Query(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	_, err = c.Query(ctx, []float32{1, 0}, 0)
	require.Error(t, err)
	_, err = c.Delete(ctx, []string{"a"})
	require.NoError(t, err)

	stats := metrics.GetStats()
	assert.Equal(t, int64(1), stats.IngestCount)
	assert.Equal(t, int64(2), stats.IngestRows)
	assert.Equal(t, int64(1), stats.IngestSkipped)
	assert.Equal(t, int64(2), stats.QueryCount)
	assert.Equal(t, int64(1), stats.QueryErrors)
	assert.Equal(t, int64(1), stats.DeleteRemoved)
	assert.Equal(t, int64(1), stats.RebuildCount) // initial build on create

	out := buf.String()
	assert.Contains(t, out, `"msg":"ingest completed with rejections"`)
	assert.Contains(t, out, `"collection":"test"`)
	assert.Contains(t, out, `"msg":"query failed"`)
}

func TestIngestRespectsMemoryBudget(t *testing.T) {
	ctx := context.Background()
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 1 << 20})
	c := newTestCollection(t, openMemory(t, WithResourceController(rc)), 4, distance.MetricCosine)

	rows := make([]ingest.Row, 20)
	for i := range rows {
		rows[i] = ingest.Row{"id": fmt.Sprintf("r%d", i), "embedding": []float32{1, float32(i), 0, 0}}
	}
	summary, err := c.Ingest(ctx, slices.Values(rows))
	require.NoError(t, err)
	assert.Equal(t, 20, summary.InsertedCount)
	assert.Zero(t, rc.MemoryUsage())
}

func TestSearchBuilder(t *testing.T) {
	ctx := context.Background()
	c := newTestCollection(t, openMemory(t), 2, distance.MetricCosine)
	put(t, c,
		model.Record{ID: "a", Vector: []float32{1, 0}, Metadata: metadata.Document{"channel_title": metadata.String("x")}},
		model.Record{ID: "b", Vector: []float32{0.8, 0.2}, Metadata: metadata.Document{"channel_title": metadata.String("y")}},
		model.Record{ID: "c", Vector: []float32{0, 1}, Metadata: metadata.Document{"channel_title": metadata.String("y")}},
	)

	res := c.Search([]float32{1, 0}).KNN(2).Filter(metadata.Eq("channel_title", metadata.String("y"))).MustExecute(ctx)
	assert.Equal(t, []string{"b", "c"}, resultIDs(res))

	var streamed []string
	for r, err := range c.Search([]float32{1, 0}).KNN(3).Stream(ctx) {
		require.NoError(t, err)
		streamed = append(streamed, r.ID)
		if r.ID == "b" {
			break
		}
	}
	assert.Equal(t, []string{"a", "b"}, streamed)

	ok, err := c.Search([]float32{1, 0}).Where(func(d metadata.Document) bool { return false }).Exists(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.Search([]float32{1, 0}).Filter(metadata.Eq("channel_title", metadata.String("z"))).First(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	for _, err := range c.Search([]float32{1}).Stream(ctx) {
		require.Error(t, err)
	}

	assert.Panics(t, func() { c.Search([]float32{1}).MustExecute(ctx) })
}
