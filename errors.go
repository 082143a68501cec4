package vecsearch

import (
	"errors"
	"fmt"

	"github.com/hupe1980/vecsearch/catalog"
	"github.com/hupe1980/vecsearch/distance"
	"github.com/hupe1980/vecsearch/embed"
	"github.com/hupe1980/vecsearch/index"
	"github.com/hupe1980/vecsearch/model"
	"github.com/hupe1980/vecsearch/store"
)

var (
	// ErrNotFound is returned when a record or collection does not exist.
	ErrNotFound = errors.New("vecsearch: not found")

	// ErrClosed is returned by operations on a closed DB or collection.
	ErrClosed = errors.New("vecsearch: closed")

	// ErrInvalidArgument is matched by every validation failure:
	// ValidationError, DimensionMismatchError and InvalidMetricError.
	ErrInvalidArgument = errors.New("vecsearch: invalid argument")

	// ErrInvalidK is returned when top-k is less than 1.
	ErrInvalidK = errors.New("vecsearch: top-k must be at least 1")

	// ErrNoEmbedder is returned by text queries when no embedder is configured.
	ErrNoEmbedder = errors.New("vecsearch: no embedder configured")

	// ErrSnapshotsDisabled is returned by Snapshot when no snapshot store is configured.
	ErrSnapshotsDisabled = errors.New("vecsearch: snapshots disabled")
)

// ValidationError reports malformed input with enough detail to fix it.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ValidationError struct {
	Field    string
	RowIndex int // 1-based, 0 when not row related
	Reason   string
	Err      error
}

func (e *ValidationError) Error() string {
	msg := "vecsearch: invalid " + e.Field
	if e.RowIndex > 0 {
		msg = fmt.Sprintf("%s (row %d)", msg, e.RowIndex)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidArgument }

// DimensionMismatchError indicates a vector whose length differs from the
// collection's dimension.
type DimensionMismatchError struct {
	Expected int
	Actual   int
	cause    error
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("vecsearch: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *DimensionMismatchError) Unwrap() error { return e.cause }

func (e *DimensionMismatchError) Is(target error) bool { return target == ErrInvalidArgument }

// InvalidMetricError indicates an unsupported metric name.
type InvalidMetricError struct {
	Name  string
	cause error
}

func (e *InvalidMetricError) Error() string {
	return fmt.Sprintf("vecsearch: invalid metric %q", e.Name)
}

func (e *InvalidMetricError) Unwrap() error { return e.cause }

func (e *InvalidMetricError) Is(target error) bool { return target == ErrInvalidArgument }

// ConflictError is returned when a collection is created with a dimension
// or metric different from the existing collection of the same name.
type ConflictError struct {
	Name      string
	Existing  model.CollectionInfo
	Requested model.CollectionInfo
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("vecsearch: collection %q exists with dimension %d and metric %s, requested dimension %d and metric %s",
		e.Name, e.Existing.Dimension, e.Existing.Metric, e.Requested.Dimension, e.Requested.Metric)
}

func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Already translated.
	var (
		ve  *ValidationError
		dme *DimensionMismatchError
		ime *InvalidMetricError
		ce  *ConflictError
	)
	if errors.As(err, &ve) || errors.As(err, &dme) || errors.As(err, &ime) || errors.As(err, &ce) ||
		errors.Is(err, ErrNotFound) || errors.Is(err, ErrClosed) {
		return err
	}

	// Not found unification.
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, catalog.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if errors.Is(err, store.ErrClosed) {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}

	// Dimension and argument normalization.
	var sve *store.ValidationError
	if errors.As(err, &sve) {
		if sve.Reason == store.ReasonDimensionMismatch {
			return &DimensionMismatchError{Expected: sve.Expected, Actual: sve.Actual, cause: err}
		}
		return &ValidationError{Field: sve.Field, Reason: sve.Reason, Err: err}
	}
	var ide *index.DimensionError
	if errors.As(err, &ide) {
		return &DimensionMismatchError{Expected: ide.Expected, Actual: ide.Actual, cause: err}
	}
	var ede *embed.DimensionError
	if errors.As(err, &ede) {
		return &DimensionMismatchError{Expected: ede.Expected, Actual: ede.Actual, cause: err}
	}
	if errors.Is(err, index.ErrInvalidK) {
		return &ValidationError{Field: "top_k", Err: fmt.Errorf("%w: %w", ErrInvalidK, err)}
	}
	if errors.Is(err, embed.ErrEmptyText) {
		return &ValidationError{Field: "text", Err: err}
	}
	var ume *distance.ErrUnknownMetric
	if errors.As(err, &ume) {
		return &InvalidMetricError{Name: ume.Name, cause: err}
	}
	if errors.Is(err, catalog.ErrInvalidName) {
		return &ValidationError{Field: "name", Err: err}
	}
	var cce *catalog.ConflictError
	if errors.As(err, &cce) {
		return &ConflictError{Name: cce.Name, Existing: cce.Existing, Requested: cce.Requested}
	}

	return err
}
