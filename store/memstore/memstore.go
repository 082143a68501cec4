// Package memstore provides a process-lifetime store.Store backed by a map.
package memstore

import (
	"context"
	"iter"
	"slices"
	"sync"

	"github.com/hupe1980/vecsearch/model"
	"github.com/hupe1980/vecsearch/store"
)

// Store keeps records in memory. Records are cloned on the way in and out.
type Store struct {
	mu      sync.RWMutex
	dim     int
	records map[string]model.Record
	version uint64
	closed  bool
}

var _ store.Store = (*Store)(nil)

// New creates an empty store for vectors of the given dimension.
func New(dim int) (*Store, error) {
	if _, err := (store.Config{Dimension: dim}).Normalize(); err != nil {
		return nil, err
	}
	return &Store{
		dim:     dim,
		records: make(map[string]model.Record),
	}, nil
}

func (s *Store) Put(ctx context.Context, rec model.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := store.Validate(rec, s.dim); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	s.records[rec.ID] = rec.Clone()
	s.version++
	return nil
}

func (s *Store) PutBatch(ctx context.Context, recs []model.Record) ([]error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	errs, valid := store.ValidateBatch(recs, s.dim)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	for _, i := range valid {
		s.records[recs[i].ID] = recs[i].Clone()
	}
	if len(valid) > 0 {
		s.version++
	}
	return errs, nil
}

func (s *Store) Get(ctx context.Context, id string) (model.Record, error) {
	if err := ctx.Err(); err != nil {
		return model.Record{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.Record{}, store.ErrClosed
	}
	rec, ok := s.records[id]
	if !ok {
		return model.Record{}, store.ErrNotFound
	}
	return rec.Clone(), nil
}

func (s *Store) GetMany(ctx context.Context, ids []string) ([]model.Record, []bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, nil, store.ErrClosed
	}
	recs := make([]model.Record, len(ids))
	found := make([]bool, len(ids))
	for i, id := range ids {
		if rec, ok := s.records[id]; ok {
			recs[i] = rec.Clone()
			found[i] = true
		}
	}
	return recs, found, nil
}

func (s *Store) Delete(ctx context.Context, ids []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, store.ErrClosed
	}
	removed := 0
	for _, id := range ids {
		if _, ok := s.records[id]; ok {
			delete(s.records, id)
			removed++
		}
	}
	if removed > 0 {
		s.version++
	}
	return removed, nil
}

// Scan snapshots the sorted id set, then yields records one at a time
// without holding the lock. Records deleted mid-scan are skipped.
func (s *Store) Scan(ctx context.Context) iter.Seq2[model.Record, error] {
	return func(yield func(model.Record, error) bool) {
		s.mu.RLock()
		if s.closed {
			s.mu.RUnlock()
			yield(model.Record{}, store.ErrClosed)
			return
		}
		ids := make([]string, 0, len(s.records))
		for id := range s.records {
			ids = append(ids, id)
		}
		s.mu.RUnlock()
		slices.Sort(ids)

		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				yield(model.Record{}, err)
				return
			}
			s.mu.RLock()
			rec, ok := s.records[id]
			if ok {
				rec = rec.Clone()
			}
			s.mu.RUnlock()
			if !ok {
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

func (s *Store) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, store.ErrClosed
	}
	return len(s.records), nil
}

func (s *Store) Version(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, store.ErrClosed
	}
	return s.version, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.records = nil
	return nil
}
