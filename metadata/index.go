package metadata

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

// Index combines metadata storage with inverted indexing using Roaring Bitmaps.
//
// Documents are keyed by a dense uint32 ordinal assigned by the owner (the
// similarity index). Equality and set-membership filters resolve through
// posting lists; range and substring filters fall back to scanning the
// stored documents. Either way the result is a bitmap of ordinals that is
// computed before any ranking takes place.
type Index struct {
	mu sync.RWMutex

	documents map[uint32]Document

	// field -> valueKey -> bitmap of ordinals
	inverted map[string]map[string]*roaring.Bitmap
}

// NewIndex creates a new metadata index.
func NewIndex() *Index {
	return &Index{
		documents: make(map[uint32]Document),
		inverted:  make(map[string]map[string]*roaring.Bitmap),
	}
}

// Set stores metadata for an ordinal and updates the inverted index.
// This replaces any existing metadata for the ordinal.
func (ix *Index) Set(ord uint32, doc Document) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if oldDoc, exists := ix.documents[ord]; exists {
		ix.removeFromIndexLocked(ord, oldDoc)
	}

	if doc == nil {
		doc = Document{}
	}
	ix.documents[ord] = doc
	ix.addToIndexLocked(ord, doc)
}

// Get retrieves metadata for an ordinal.
func (ix *Index) Get(ord uint32) (Document, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	doc, ok := ix.documents[ord]
	return doc, ok
}

// Delete removes metadata for an ordinal and updates the inverted index.
func (ix *Index) Delete(ord uint32) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if doc, exists := ix.documents[ord]; exists {
		ix.removeFromIndexLocked(ord, doc)
	}
	delete(ix.documents, ord)
}

// Len returns the number of documents in the index.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	return len(ix.documents)
}

// addToIndexLocked adds a document to the inverted index.
// Caller must hold ix.mu.Lock().
func (ix *Index) addToIndexLocked(ord uint32, doc Document) {
	for key, value := range doc {
		valueMap, ok := ix.inverted[key]
		if !ok {
			valueMap = make(map[string]*roaring.Bitmap)
			ix.inverted[key] = valueMap
		}

		valueKey := value.Key()
		bitmap, ok := valueMap[valueKey]
		if !ok {
			bitmap = roaring.New()
			valueMap[valueKey] = bitmap
		}
		bitmap.Add(ord)
	}
}

// removeFromIndexLocked removes a document from the inverted index.
// Caller must hold ix.mu.Lock().
func (ix *Index) removeFromIndexLocked(ord uint32, doc Document) {
	for key, value := range doc {
		valueMap, ok := ix.inverted[key]
		if !ok {
			continue
		}

		valueKey := value.Key()
		bitmap, ok := valueMap[valueKey]
		if !ok {
			continue
		}

		bitmap.Remove(ord)
		if bitmap.IsEmpty() {
			delete(valueMap, valueKey)
			if len(valueMap) == 0 {
				delete(ix.inverted, key)
			}
		}
	}
}

// CompileFilter evaluates a FilterSet into a bitmap of matching ordinals.
// A nil or empty set yields nil, meaning "no restriction".
func (ix *Index) CompileFilter(fs *FilterSet) *roaring.Bitmap {
	if fs == nil || len(fs.Filters) == 0 {
		return nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var result *roaring.Bitmap
	for i := range fs.Filters {
		filterBitmap := ix.compileOneLocked(&fs.Filters[i])

		if result == nil {
			result = filterBitmap
		} else {
			result.And(filterBitmap)
		}

		if result.IsEmpty() {
			return result
		}
	}
	return result
}

// compileOneLocked returns a fresh bitmap (never a shared posting list).
func (ix *Index) compileOneLocked(f *Filter) *roaring.Bitmap {
	switch f.Operator {
	case OpEqual:
		if bm := ix.postingLocked(f.Key, f.Value); bm != nil {
			return bm.Clone()
		}
		return roaring.New()
	case OpIn:
		out := roaring.New()
		arr, ok := f.Value.AsList()
		if !ok {
			return out
		}
		for _, v := range arr {
			if bm := ix.postingLocked(f.Key, v); bm != nil {
				out.Or(bm)
			}
		}
		return out
	default:
		out := roaring.New()
		for ord, doc := range ix.documents {
			if f.Matches(doc) {
				out.Add(ord)
			}
		}
		return out
	}
}

// postingLocked retrieves the bitmap for a specific field=value combination.
// Caller must hold ix.mu.RLock().
func (ix *Index) postingLocked(key string, value Value) *roaring.Bitmap {
	valueMap, ok := ix.inverted[key]
	if !ok {
		return nil
	}
	return valueMap[value.Key()]
}

// Select evaluates an arbitrary predicate against every stored document.
func (ix *Index) Select(pred func(Document) bool) *roaring.Bitmap {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := roaring.New()
	for ord, doc := range ix.documents {
		if pred(doc) {
			out.Add(ord)
		}
	}
	return out
}

// Stats describes the size of the inverted index.
type Stats struct {
	DocumentCount    int
	FieldCount       int
	BitmapCount      int
	TotalCardinality uint64
	MemoryBytes      uint64
}

// GetStats returns statistics about the index.
func (ix *Index) GetStats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	stats := Stats{
		DocumentCount: len(ix.documents),
		FieldCount:    len(ix.inverted),
	}
	for _, valueMap := range ix.inverted {
		for _, bitmap := range valueMap {
			stats.BitmapCount++
			stats.TotalCardinality += bitmap.GetCardinality()
			stats.MemoryBytes += bitmap.GetSizeInBytes()
		}
	}
	return stats
}
