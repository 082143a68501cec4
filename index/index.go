package index

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/hupe1980/vecsearch/metadata"
	"github.com/hupe1980/vecsearch/model"
)

var (
	// ErrInvalidK is returned when k is less than 1.
	ErrInvalidK = errors.New("index: k must be at least 1")

	// ErrCorruptSnapshot is returned when a snapshot fails validation.
	ErrCorruptSnapshot = errors.New("index: corrupt snapshot")
)

// DimensionError is returned when a vector has the wrong length.
type DimensionError struct {
	Expected int
	Actual   int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("index: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// AllowFunc reports whether the record at ordinal may appear in results.
type AllowFunc func(ordinal uint32) bool

// Index is the contract between a collection and its similarity index.
type Index interface {
	// Build replaces the index contents with the records yielded by seq.
	Build(ctx context.Context, seq iter.Seq2[model.Record, error]) error

	// Add inserts rec or replaces the entry with the same id.
	Add(rec model.Record) error

	// Remove drops id from the index. It reports whether id was present.
	Remove(id string) bool

	// Search returns up to k candidates best-first.
	Search(ctx context.Context, q []float32, k int, allow AllowFunc) ([]model.Candidate, error)

	// SearchFilter restricts Search to records whose metadata satisfies fs.
	SearchFilter(ctx context.Context, q []float32, k int, fs *metadata.FilterSet) ([]model.Candidate, error)

	// Len returns the number of indexed records.
	Len() int

	// Dimension returns the vector dimension.
	Dimension() int
}
