package store

import (
	"context"
	"errors"
	"iter"

	"github.com/hupe1980/vecsearch/model"
)

var (
	// ErrNotFound is returned by Get when no record has the requested id.
	ErrNotFound = errors.New("store: record not found")
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store: closed")
	// ErrCodecMismatch is returned when a persisted store was written with a
	// different codec than the one it is opened with.
	ErrCodecMismatch = errors.New("store: codec mismatch")
	// ErrDimensionMismatch is returned when a persisted store was created
	// for a different dimension than the one it is opened with.
	ErrDimensionMismatch = errors.New("store: dimension mismatch")
)

// Store is keyed, durable storage of the records of one collection.
//
// Implementations must be safe for concurrent use. Mutations are applied in
// the order they are issued by a single caller.
type Store interface {
	// Put upserts rec. Putting the same record twice is a no-op observably.
	Put(ctx context.Context, rec model.Record) error

	// PutBatch upserts recs as one unit. The returned slice is aligned to
	// recs: nil for committed records, a *ValidationError for rejected ones.
	// Only valid records are committed. A non-nil second return value is a
	// storage failure, in which case nothing was committed.
	PutBatch(ctx context.Context, recs []model.Record) ([]error, error)

	// Get returns the record with the given id or ErrNotFound.
	Get(ctx context.Context, id string) (model.Record, error)

	// GetMany returns records aligned to ids; found[i] is false for ids
	// that do not exist.
	GetMany(ctx context.Context, ids []string) (recs []model.Record, found []bool, err error)

	// Delete removes the given ids. Missing ids are ignored. It returns the
	// number of records actually removed.
	Delete(ctx context.Context, ids []string) (int, error)

	// Scan yields every record ordered by id. Each call starts a fresh scan.
	// Iteration stops with ctx.Err() when ctx is cancelled.
	Scan(ctx context.Context) iter.Seq2[model.Record, error]

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// Version returns a counter that grows with every committed mutation.
	Version(ctx context.Context) (uint64, error)

	// Close releases the store. Further calls return ErrClosed.
	Close() error
}

// ScanPageSize is the number of records disk backends read per transaction
// while scanning. Scans never hold a transaction across a yield.
const ScanPageSize = 256
