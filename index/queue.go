package index

import (
	"math"
	"slices"
	"strings"

	"github.com/hupe1980/vecsearch/distance"
	"github.com/hupe1980/vecsearch/model"
)

// hit is a scored ordinal. score is the metric's similarity for dist and
// is what ranking compares, so hits with equal scores fall back to id order
// even when their raw distances differ.
type hit struct {
	ord   uint32
	id    string
	dist  float32
	score float32
}

// resultQueue is a bounded binary heap that keeps the best k hits seen so
// far. The worst retained hit sits at the top so it can be evicted in O(log k).
// It does not implement container/heap to avoid interface overhead.
type resultQueue struct {
	metric   distance.Metric
	capacity int
	items    []hit
}

func newResultQueue(metric distance.Metric, capacity int) *resultQueue {
	return &resultQueue{
		metric:   metric,
		capacity: capacity,
		items:    make([]hit, 0, min(capacity, 1024)),
	}
}

// ahead reports whether a ranks strictly before b.
// NaN scores rank last; equal scores fall back to ascending id.
func (q *resultQueue) ahead(a, b hit) bool {
	aNaN, bNaN := math.IsNaN(float64(a.score)), math.IsNaN(float64(b.score))
	switch {
	case aNaN && bNaN:
		return a.id < b.id
	case aNaN:
		return false
	case bNaN:
		return true
	}
	if a.score != b.score {
		return a.score > b.score
	}
	return a.id < b.id
}

// push inserts h. When the queue is full h replaces the top only if it
// ranks ahead of it.
func (q *resultQueue) push(h hit) {
	h.score = q.metric.Score(h.dist)
	if len(q.items) < q.capacity {
		q.items = append(q.items, h)
		q.siftUp(len(q.items) - 1)
		return
	}
	if q.ahead(h, q.items[0]) {
		q.items[0] = h
		q.siftDown(0)
	}
}

func (q *resultQueue) Len() int { return len(q.items) }

// sorted drains the queue best-first.
func (q *resultQueue) sorted() []model.Candidate {
	items := q.items
	q.items = nil

	slices.SortFunc(items, func(a, b hit) int {
		switch {
		case q.ahead(a, b):
			return -1
		case q.ahead(b, a):
			return 1
		default:
			return strings.Compare(a.id, b.id)
		}
	})

	out := make([]model.Candidate, len(items))
	for i, h := range items {
		out[i] = model.Candidate{ID: h.id, Distance: h.dist}
	}
	return out
}

// worse is the heap order: the parent ranks behind its children.
func (q *resultQueue) worse(i, j int) bool {
	return q.ahead(q.items[j], q.items[i])
}

func (q *resultQueue) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !q.worse(i, parent) {
			break
		}
		q.items[i], q.items[parent] = q.items[parent], q.items[i]
		i = parent
	}
}

func (q *resultQueue) siftDown(i int) {
	n := len(q.items)
	for {
		left := 2*i + 1
		if left >= n {
			return
		}
		target := left
		if right := left + 1; right < n && q.worse(right, left) {
			target = right
		}
		if !q.worse(target, i) {
			return
		}
		q.items[i], q.items[target] = q.items[target], q.items[i]
		i = target
	}
}
