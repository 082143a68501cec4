// Package embed defines the text embedding contract used by ingestion and
// text queries. Model invocation lives outside this module; callers plug
// in an Embedder.
package embed

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/vecsearch/resource"
)

// ErrEmptyText is returned when asked to embed blank text.
var ErrEmptyText = errors.New("embed: empty text")

// Embedder turns text into vectors of a fixed dimension.
type Embedder interface {
	// Embed returns the vector for text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the length of every vector Embed produces.
	Dimension() int
}

// BatchEmbedder is implemented by embedders that can embed several texts
// in one call.
type BatchEmbedder interface {
	Embedder
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Func adapts a function to the Embedder interface.
type Func struct {
	Dim int
	Fn  func(ctx context.Context, text string) ([]float32, error)
}

// Embed calls f.Fn.
func (f Func) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.Fn(ctx, text)
}

// Dimension returns f.Dim.
func (f Func) Dimension() int { return f.Dim }

// DimensionError is returned when an embedder yields a vector of the wrong length.
type DimensionError struct {
	Expected int
	Actual   int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("embed: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Checked calls e and verifies the result has e.Dimension() values.
func Checked(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vec, err := e.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if d := e.Dimension(); len(vec) != d {
		return nil, &DimensionError{Expected: d, Actual: len(vec)}
	}
	return vec, nil
}

// Batch embeds texts with e. BatchEmbedders are called once; otherwise
// texts are embedded concurrently with at most limit calls in flight
// (limit <= 0 means unbounded). The result is aligned to texts.
func Batch(ctx context.Context, e Embedder, texts []string, limit int) ([][]float32, error) {
	if be, ok := e.(BatchEmbedder); ok {
		vecs, err := be.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("embed: batch returned %d vectors for %d texts", len(vecs), len(texts))
		}
		return vecs, nil
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, text := range texts {
		g.Go(func() error {
			vec, err := e.Embed(gctx, text)
			if err != nil {
				return fmt.Errorf("embed: text %d: %w", i, err)
			}
			out[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Limited wraps e so every call first acquires an embedding slot from rc.
// The slot is held for the duration of the call.
func Limited(e Embedder, rc *resource.Controller) Embedder {
	return &limited{Embedder: e, rc: rc}
}

type limited struct {
	Embedder
	rc *resource.Controller
}

func (l *limited) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := l.rc.AcquireEmbed(ctx); err != nil {
		return nil, err
	}
	defer l.rc.ReleaseEmbed()
	return l.Embedder.Embed(ctx, text)
}

// RateLimited wraps e with a controller allowing rps requests per second
// and at most concurrency calls in flight.
func RateLimited(e Embedder, rps float64, concurrency int) Embedder {
	return Limited(e, resource.NewController(resource.Config{
		MaxConcurrentEmbeds: int64(concurrency),
		EmbedRequestsPerSec: rps,
		EmbedBurst:          max(1, concurrency),
	}))
}
