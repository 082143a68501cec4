// Package testutil generates deterministic fixtures for tests.
package testutil

import (
	"cmp"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/hupe1980/vecsearch/distance"
	"github.com/hupe1980/vecsearch/metadata"
	"github.com/hupe1980/vecsearch/model"
)

// Channels is the pool of channel titles Records cycles through.
var Channels = []string{"Fireship", "Computerphile", "ThePrimeagen", "Two Minute Papers"}

// RNG is a seeded generator safe for concurrent use. Two RNGs with the
// same seed produce the same sequence.
type RNG struct {
	mu   sync.Mutex
	seed uint64
	src  *rand.PCG
	r    *rand.Rand
}

func NewRNG(seed int64) *RNG {
	g := &RNG{seed: uint64(seed)}
	g.src = rand.NewPCG(g.seed, g.seed^0x9e3779b97f4a7c15)
	g.r = rand.New(g.src)
	return g
}

// Reset rewinds to the initial seed.
func (g *RNG) Reset() {
	g.mu.Lock()
	g.src.Seed(g.seed, g.seed^0x9e3779b97f4a7c15)
	g.mu.Unlock()
}

// fill returns num vectors of length dim sharing one backing array, each
// populated by gen under the lock.
func (g *RNG) fill(num, dim int, gen func(vec []float32)) [][]float32 {
	g.mu.Lock()
	defer g.mu.Unlock()

	backing := make([]float32, num*dim)
	out := make([][]float32, num)
	for i := range out {
		out[i] = backing[i*dim : (i+1)*dim : (i+1)*dim]
		gen(out[i])
	}
	return out
}

// UniformVectors draws every component from [-1, 1).
func (g *RNG) UniformVectors(num, dim int) [][]float32 {
	return g.fill(num, dim, func(vec []float32) {
		for j := range vec {
			vec[j] = g.r.Float32()*2 - 1
		}
	})
}

// UnitVectors draws points uniformly from the unit sphere.
func (g *RNG) UnitVectors(num, dim int) [][]float32 {
	return g.fill(num, dim, g.gaussianUnit)
}

func (g *RNG) UnitVector(dim int) []float32 {
	return g.UnitVectors(1, dim)[0]
}

func (g *RNG) gaussianUnit(vec []float32) {
	var sq float64
	for j := range vec {
		x := g.r.NormFloat64()
		vec[j] = float32(x)
		sq += x * x
	}
	if sq == 0 {
		return
	}
	scale := float32(1 / math.Sqrt(sq))
	for j := range vec {
		vec[j] *= scale
	}
}

// ClusteredVectors scatters num points with gaussian noise of the given
// spread around clusters random unit centroids, assigned round robin.
func (g *RNG) ClusteredVectors(num, dim, clusters int, spread float32) [][]float32 {
	centroids := g.UnitVectors(clusters, dim)
	i := 0
	return g.fill(num, dim, func(vec []float32) {
		c := centroids[i%clusters]
		i++
		for j := range vec {
			vec[j] = c[j] + float32(g.r.NormFloat64())*spread
		}
	})
}

// RecordID is the id Records gives the i-th record.
func RecordID(i int) string {
	return fmt.Sprintf("rec-%04d", i)
}

// Records returns num transcript records with unit vectors and the
// canonical metadata keys. Every seventh record has a null duration.
func (g *RNG) Records(num, dim int) []model.Record {
	vecs := g.UnitVectors(num, dim)

	g.mu.Lock()
	defer g.mu.Unlock()

	recs := make([]model.Record, num)
	for i := range recs {
		duration := metadata.Int(int64(60 + g.r.IntN(3600)))
		if i%7 == 6 {
			duration = metadata.Null()
		}
		recs[i] = model.Record{
			ID:       RecordID(i),
			Vector:   vecs[i],
			Document: fmt.Sprintf("transcript %d", i),
			Metadata: metadata.Document{
				metadata.KeyTitle:           metadata.String(fmt.Sprintf("Video %d", i)),
				metadata.KeyChannelTitle:    metadata.String(Channels[i%len(Channels)]),
				metadata.KeyViewCount:       metadata.Int(g.r.Int64N(1_000_000)),
				metadata.KeyDurationSeconds: duration,
			},
		}
	}
	return recs
}

// ExactTopK scores every record against query and returns the best k,
// ordered by similarity score with equal scores broken by ascending id. It is the reference ranking for index tests.
func ExactTopK(query []float32, recs []model.Record, k int, metric distance.Metric) []model.Candidate {
	fn, err := distance.Provider(metric)
	if err != nil {
		panic(err)
	}

	out := make([]model.Candidate, len(recs))
	for i, rec := range recs {
		out[i] = model.Candidate{ID: rec.ID, Distance: fn(query, rec.Vector)}
	}
	slices.SortFunc(out, func(a, b model.Candidate) int {
		if c := cmp.Compare(metric.Score(b.Distance), metric.Score(a.Distance)); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out[:min(k, len(out))]
}
