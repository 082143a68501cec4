package embed

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecsearch/resource"
)

func constant(dim int, vec []float32) Func {
	return Func{Dim: dim, Fn: func(context.Context, string) ([]float32, error) {
		return vec, nil
	}}
}

func TestChecked(t *testing.T) {
	vec, err := Checked(context.Background(), constant(2, []float32{1, 2}), "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2}, vec)

	_, err = Checked(context.Background(), constant(3, []float32{1, 2}), "x")
	var dimErr *DimensionError
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 3, dimErr.Expected)
	assert.Equal(t, 2, dimErr.Actual)

	boom := errors.New("boom")
	_, err = Checked(context.Background(), Func{Dim: 1, Fn: func(context.Context, string) ([]float32, error) {
		return nil, boom
	}}, "x")
	require.ErrorIs(t, err, boom)
}

type batchOnly struct {
	calls atomic.Int32
}

func (b *batchOnly) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("single call not expected")
}

func (b *batchOnly) Dimension() int { return 1 }

func (b *batchOnly) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	b.calls.Add(1)
	out := make([][]float32, len(texts))
	for i, s := range texts {
		out[i] = []float32{float32(len(s))}
	}
	return out, nil
}

func TestBatchUsesBatchEmbedder(t *testing.T) {
	be := &batchOnly{}
	vecs, err := Batch(context.Background(), be, []string{"a", "bbb"}, 2)
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}, {3}}, vecs)
	assert.Equal(t, int32(1), be.calls.Load())
}

func TestBatchConcurrentAligned(t *testing.T) {
	var inflight, peak atomic.Int32
	e := Func{Dim: 1, Fn: func(_ context.Context, s string) ([]float32, error) {
		n := inflight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inflight.Add(-1)
		return []float32{float32(len(s))}, nil
	}}

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee", "ffffff"}
	vecs, err := Batch(context.Background(), e, texts, 2)
	require.NoError(t, err)
	for i, v := range vecs {
		assert.Equal(t, float32(i+1), v[0])
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestBatchError(t *testing.T) {
	boom := errors.New("boom")
	e := Func{Dim: 1, Fn: func(_ context.Context, s string) ([]float32, error) {
		if s == "bad" {
			return nil, boom
		}
		return []float32{1}, nil
	}}

	_, err := Batch(context.Background(), e, []string{"ok", "bad"}, 0)
	require.ErrorIs(t, err, boom)
}

func TestLimited(t *testing.T) {
	rc := resource.NewController(resource.Config{MaxConcurrentEmbeds: 1})
	release := make(chan struct{})
	started := make(chan struct{})
	e := Limited(Func{Dim: 1, Fn: func(context.Context, string) ([]float32, error) {
		close(started)
		<-release
		return []float32{1}, nil
	}}, rc)

	done := make(chan error, 1)
	go func() {
		_, err := e.Embed(context.Background(), "x")
		done <- err
	}()
	<-started

	// The only slot is taken.
	assert.False(t, rc.TryAcquireEmbed())

	close(release)
	require.NoError(t, <-done)
	assert.True(t, rc.TryAcquireEmbed())
	assert.Equal(t, 1, e.Dimension())
}

func TestRateLimited(t *testing.T) {
	e := RateLimited(constant(2, []float32{0, 1}), 1000, 2)
	vec, err := e.Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, vec)
}

func TestHashing(t *testing.T) {
	h := Hashing{Dim: 16}

	a, err := h.Embed(context.Background(), "Learn Go in 100 seconds")
	require.NoError(t, err)
	b, err := h.Embed(context.Background(), "learn go IN 100   seconds")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 16)

	var norm float32
	for _, v := range a {
		norm += v * v
	}
	assert.InDelta(t, 1.0, norm, 1e-5)

	_, err = h.Embed(context.Background(), "   ")
	require.ErrorIs(t, err, ErrEmptyText)
}
