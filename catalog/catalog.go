// Package catalog records which collections exist and their fixed shape.
//
// Three implementations are provided: Memory for in-process databases,
// File for a catalog.json next to the collection directories, and
// DynamoDB for catalogs shared between processes. All of them make
// Create idempotent for an identical shape and report a *ConflictError
// when the shape differs.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/hupe1980/vecsearch/model"
)

// ErrNotFound is returned when a collection is not registered.
var ErrNotFound = errors.New("catalog: collection not found")

// ErrInvalidName is returned for names that cannot serve as a directory name.
var ErrInvalidName = errors.New("catalog: invalid collection name")

// ConflictError is returned by Create when name exists with another shape.
type ConflictError struct {
	Name      string
	Existing  model.CollectionInfo
	Requested model.CollectionInfo
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("catalog: collection %q exists with dimension=%d metric=%s, requested dimension=%d metric=%s",
		e.Name, e.Existing.Dimension, e.Existing.Metric, e.Requested.Dimension, e.Requested.Metric)
}

// Catalog is a registry of collections.
type Catalog interface {
	// Create registers info. When a collection with the same name and shape
	// exists it is returned with created=false.
	Create(ctx context.Context, info model.CollectionInfo) (model.CollectionInfo, bool, error)

	// Get returns the registered collection or ErrNotFound.
	Get(ctx context.Context, name string) (model.CollectionInfo, error)

	// List returns all collections sorted by name.
	List(ctx context.Context) ([]model.CollectionInfo, error)

	// Delete unregisters name or returns ErrNotFound.
	Delete(ctx context.Context, name string) error
}

var nameRE = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateName checks that name is usable as a collection directory.
func ValidateName(name string) error {
	if !nameRE.MatchString(name) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func validate(info model.CollectionInfo) error {
	if err := ValidateName(info.Name); err != nil {
		return err
	}
	if info.Dimension <= 0 {
		return fmt.Errorf("catalog: dimension must be positive, got %d", info.Dimension)
	}
	if !info.Metric.Valid() {
		return fmt.Errorf("catalog: invalid metric %v", info.Metric)
	}
	return nil
}

// resolve applies the create rules to an existing entry.
func resolve(existing, requested model.CollectionInfo) (model.CollectionInfo, bool, error) {
	if existing.SameShape(requested) {
		return existing, false, nil
	}
	return model.CollectionInfo{}, false, &ConflictError{Name: requested.Name, Existing: existing, Requested: requested}
}

func sortByName(infos []model.CollectionInfo) {
	slices.SortFunc(infos, func(a, b model.CollectionInfo) int { return strings.Compare(a.Name, b.Name) })
}
