package embed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// Hashing is a deterministic bag-of-words embedder. Each lowercase token
// is hashed into one of Dim buckets and the result is L2 normalised. It
// needs no model and is meant for tests, demos and the CLI.
type Hashing struct {
	Dim int
}

// Embed returns the hashed vector for text.
func (h Hashing) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tokens := strings.Fields(strings.ToLower(text))
	if len(tokens) == 0 {
		return nil, ErrEmptyText
	}

	vec := make([]float32, h.Dim)
	for _, tok := range tokens {
		f := fnv.New32a()
		_, _ = f.Write([]byte(tok))
		sum := f.Sum32()
		sign := float32(1)
		if sum&1 == 1 {
			sign = -1
		}
		vec[int(sum>>1)%h.Dim] += sign
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

// Dimension returns h.Dim.
func (h Hashing) Dimension() int { return h.Dim }
