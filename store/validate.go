package store

import (
	"fmt"
	"strings"

	"github.com/hupe1980/vecsearch/distance"
	"github.com/hupe1980/vecsearch/model"
)

// Validation reasons.
const (
	ReasonEmptyID           = "empty id"
	ReasonDimensionMismatch = "dimension mismatch"
	ReasonNonFinite         = "non-finite vector value"
)

// ValidationError describes why a record was rejected.
type ValidationError struct {
	ID       string
	Field    string
	Reason   string
	Expected int
	Actual   int
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case ReasonDimensionMismatch:
		return fmt.Sprintf("store: record %q: %s: expected %d, got %d", e.ID, e.Reason, e.Expected, e.Actual)
	case ReasonNonFinite:
		return fmt.Sprintf("store: record %q: %s at index %d", e.ID, e.Reason, e.Actual)
	default:
		return fmt.Sprintf("store: record %q: %s", e.ID, e.Reason)
	}
}

// Validate checks rec against a collection of the given dimension.
func Validate(rec model.Record, dim int) error {
	if strings.TrimSpace(rec.ID) == "" {
		return &ValidationError{ID: rec.ID, Field: "id", Reason: ReasonEmptyID}
	}
	if len(rec.Vector) != dim {
		return &ValidationError{
			ID:       rec.ID,
			Field:    "vector",
			Reason:   ReasonDimensionMismatch,
			Expected: dim,
			Actual:   len(rec.Vector),
		}
	}
	if i, ok := distance.Finite(rec.Vector); !ok {
		return &ValidationError{ID: rec.ID, Field: "vector", Reason: ReasonNonFinite, Actual: i}
	}
	return nil
}

// ValidateBatch validates every record. It returns the per-record errors
// aligned to recs and the indices of the valid ones in input order.
func ValidateBatch(recs []model.Record, dim int) ([]error, []int) {
	errs := make([]error, len(recs))
	valid := make([]int, 0, len(recs))
	for i, rec := range recs {
		if err := Validate(rec, dim); err != nil {
			errs[i] = err
			continue
		}
		valid = append(valid, i)
	}
	return errs, valid
}

// UniqueIDs returns ids without duplicates, preserving first occurrence.
func UniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
