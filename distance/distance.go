package distance

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// SquaredL2 calculates the squared L2 (Euclidean) distance between two vectors.
// Assumes vectors are the same length (caller's responsibility).
func SquaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float32 {
	return float32(math.Sqrt(float64(Dot(v, v))))
}

// Cosine calculates the cosine similarity between two vectors.
// Returns 0 if either vector has zero L2 norm.
func Cosine(a, b []float32) float32 {
	na := Norm(a)
	nb := Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return Dot(a, b) / (na * nb)
}

// NormalizeL2Copy returns a normalized copy of src.
// Returns false if src has zero L2 norm.
func NormalizeL2Copy(src []float32) ([]float32, bool) {
	n := Norm(src)
	if n == 0 {
		return nil, false
	}
	dst := slices.Clone(src)
	inv := 1 / n
	for i := range dst {
		dst[i] *= inv
	}
	return dst, true
}

// Finite reports whether every component of v is a finite number.
// It returns the index of the first offending component otherwise.
func Finite(v []float32) (int, bool) {
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return i, false
		}
	}
	return -1, true
}

// Metric represents the distance metric used for vector comparison.
type Metric int

const (
	MetricL2 Metric = iota
	MetricCosine
	MetricDot
)

func (m Metric) String() string {
	switch m {
	case MetricL2:
		return "l2"
	case MetricCosine:
		return "cosine"
	case MetricDot:
		return "dot"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// Valid reports whether m is one of the supported metrics.
func (m Metric) Valid() bool {
	return m == MetricL2 || m == MetricCosine || m == MetricDot
}

// ErrUnknownMetric is returned by ParseMetric for unsupported names.
type ErrUnknownMetric struct {
	Name string
}

func (e *ErrUnknownMetric) Error() string {
	return fmt.Sprintf("unknown metric %q (want cosine, l2 or dot)", e.Name)
}

// ParseMetric parses a metric name. Matching is case-insensitive.
func ParseMetric(name string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "cosine", "cos":
		return MetricCosine, nil
	case "l2", "squared_l2", "squaredl2", "euclidean":
		return MetricL2, nil
	case "dot", "ip", "inner_product", "dotproduct":
		return MetricDot, nil
	default:
		return 0, &ErrUnknownMetric{Name: name}
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Metric) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, &ErrUnknownMetric{Name: m.String()}
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Metric) UnmarshalText(text []byte) error {
	parsed, err := ParseMetric(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Func is a function type for distance calculation.
type Func func(a, b []float32) float32

// Provider returns the raw distance function for the given metric.
//
// Cosine and Dot return similarities (higher is better); L2 returns a
// squared distance (lower is better). Use Better to compare values.
func Provider(m Metric) (Func, error) {
	switch m {
	case MetricL2:
		return SquaredL2, nil
	case MetricCosine:
		return Cosine, nil
	case MetricDot:
		return Dot, nil
	default:
		return nil, fmt.Errorf("unsupported metric: %v", m)
	}
}

// LowerIsBetter reports whether smaller raw values rank first for m.
func (m Metric) LowerIsBetter() bool {
	return m == MetricL2
}

// Better reports whether raw value a ranks strictly ahead of raw value b.
func (m Metric) Better(a, b float32) bool {
	if m.LowerIsBetter() {
		return a < b
	}
	return a > b
}

// Score converts a raw distance into a similarity score where higher is
// more relevant regardless of metric.
//
//   - cosine: the cosine similarity itself, in [-1, 1]
//   - dot:    the dot product itself
//   - l2:     1 / (1 + d), in (0, 1]
func (m Metric) Score(raw float32) float32 {
	if m == MetricL2 {
		return 1 / (1 + raw)
	}
	return raw
}
