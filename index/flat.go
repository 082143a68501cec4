package index

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/vecsearch/distance"
	"github.com/hupe1980/vecsearch/metadata"
	"github.com/hupe1980/vecsearch/model"
)

// Compile-time check to ensure Flat satisfies Index.
var _ Index = (*Flat)(nil)

// cancelCheckInterval is how many ordinals are scanned between context checks.
const cancelCheckInterval = 1024

// flatState holds the full contents of a Flat index. Build constructs a new
// state off to the side and swaps it in.
type flatState struct {
	ids      []string    // ordinal -> id ("" marks a free slot)
	vectors  [][]float32 // ordinal -> vector (nil marks a free slot)
	ordinals map[string]uint32
	freeList []uint32
	meta     *metadata.Index
}

func newFlatState() *flatState {
	return &flatState{
		ordinals: make(map[string]uint32),
		meta:     metadata.NewIndex(),
	}
}

func (s *flatState) add(rec model.Record) {
	vec := slices.Clone(rec.Vector)

	if ord, ok := s.ordinals[rec.ID]; ok {
		s.vectors[ord] = vec
		s.meta.Set(ord, rec.Metadata.Clone())
		return
	}

	var ord uint32
	if n := len(s.freeList); n > 0 {
		ord = s.freeList[n-1]
		s.freeList = s.freeList[:n-1]
		s.ids[ord] = rec.ID
		s.vectors[ord] = vec
	} else {
		ord = uint32(len(s.ids))
		s.ids = append(s.ids, rec.ID)
		s.vectors = append(s.vectors, vec)
	}
	s.ordinals[rec.ID] = ord
	s.meta.Set(ord, rec.Metadata.Clone())
}

func (s *flatState) remove(id string) bool {
	ord, ok := s.ordinals[id]
	if !ok {
		return false
	}
	delete(s.ordinals, id)
	s.ids[ord] = ""
	s.vectors[ord] = nil
	s.meta.Delete(ord)
	s.freeList = append(s.freeList, ord)
	return true
}

// Flat is an exact brute-force index. It is safe for concurrent use.
type Flat struct {
	mu     sync.RWMutex
	dim    int
	metric distance.Metric
	fn     distance.Func
	state  *flatState
}

// NewFlat creates an empty index for vectors of dimension dim.
func NewFlat(dim int, metric distance.Metric) (*Flat, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("index: dimension must be positive, got %d", dim)
	}
	fn, err := distance.Provider(metric)
	if err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}
	return &Flat{
		dim:    dim,
		metric: metric,
		fn:     fn,
		state:  newFlatState(),
	}, nil
}

// Dimension returns the vector dimension.
func (f *Flat) Dimension() int { return f.dim }

// Metric returns the distance metric.
func (f *Flat) Metric() distance.Metric { return f.metric }

// Len returns the number of indexed records.
func (f *Flat) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.state.ordinals)
}

// Contains reports whether id is indexed.
func (f *Flat) Contains(id string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.state.ordinals[id]
	return ok
}

func (f *Flat) checkDim(v []float32) error {
	if len(v) != f.dim {
		return &DimensionError{Expected: f.dim, Actual: len(v)}
	}
	return nil
}

// Build replaces the index contents with the records yielded by seq.
// On error the previous contents are left untouched.
func (f *Flat) Build(ctx context.Context, seq iter.Seq2[model.Record, error]) error {
	next := newFlatState()

	n := 0
	for rec, err := range seq {
		if err != nil {
			return fmt.Errorf("index: build: %w", err)
		}
		if n%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		n++
		if err := f.checkDim(rec.Vector); err != nil {
			return fmt.Errorf("index: build %q: %w", rec.ID, err)
		}
		next.add(rec)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	f.state = next
	f.mu.Unlock()
	return nil
}

// Add inserts rec or replaces the entry with the same id.
func (f *Flat) Add(rec model.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("index: empty id")
	}
	if err := f.checkDim(rec.Vector); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.add(rec)
	return nil
}

// Remove drops id from the index. It reports whether id was present.
func (f *Flat) Remove(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.remove(id)
}

// Metadata returns the indexed metadata for id.
func (f *Flat) Metadata(id string) (metadata.Document, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ord, ok := f.state.ordinals[id]
	if !ok {
		return nil, false
	}
	doc, ok := f.state.meta.Get(ord)
	return doc.Clone(), ok
}

// Search returns up to k candidates best-first. A nil allow admits every
// record.
func (f *Flat) Search(ctx context.Context, q []float32, k int, allow AllowFunc) ([]model.Candidate, error) {
	if err := f.validateQuery(q, k); err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.searchLocked(ctx, q, k, allow)
}

// SearchFilter restricts Search to records whose metadata satisfies fs.
// The filter is compiled into a bitmap first so only eligible vectors are
// scored. A nil or empty fs admits every record.
func (f *Flat) SearchFilter(ctx context.Context, q []float32, k int, fs *metadata.FilterSet) ([]model.Candidate, error) {
	if err := f.validateQuery(q, k); err != nil {
		return nil, err
	}
	if fs != nil {
		if err := fs.Validate(); err != nil {
			return nil, err
		}
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	bm := f.state.meta.CompileFilter(fs)
	if bm == nil {
		return f.searchLocked(ctx, q, k, nil)
	}
	return f.searchBitmapLocked(ctx, q, k, bm)
}

// SearchPredicate restricts Search to records whose metadata satisfies pred.
func (f *Flat) SearchPredicate(ctx context.Context, q []float32, k int, pred func(metadata.Document) bool) ([]model.Candidate, error) {
	if err := f.validateQuery(q, k); err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if pred == nil {
		return f.searchLocked(ctx, q, k, nil)
	}
	return f.searchBitmapLocked(ctx, q, k, f.state.meta.Select(pred))
}

func (f *Flat) validateQuery(q []float32, k int) error {
	if k < 1 {
		return ErrInvalidK
	}
	return f.checkDim(q)
}

func (f *Flat) searchLocked(ctx context.Context, q []float32, k int, allow AllowFunc) ([]model.Candidate, error) {
	s := f.state
	pq := newResultQueue(f.metric, k)
	for ord, vec := range s.vectors {
		if ord%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if vec == nil {
			continue
		}
		if allow != nil && !allow(uint32(ord)) {
			continue
		}
		pq.push(hit{ord: uint32(ord), id: s.ids[ord], dist: f.fn(q, vec)})
	}
	return pq.sorted(), nil
}

func (f *Flat) searchBitmapLocked(ctx context.Context, q []float32, k int, bm *roaring.Bitmap) ([]model.Candidate, error) {
	s := f.state
	pq := newResultQueue(f.metric, k)

	n := 0
	it := bm.Iterator()
	for it.HasNext() {
		ord := it.Next()
		if n%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		n++
		if int(ord) >= len(s.vectors) || s.vectors[ord] == nil {
			continue
		}
		pq.push(hit{ord: ord, id: s.ids[ord], dist: f.fn(q, s.vectors[ord])})
	}
	return pq.sorted(), nil
}
