// Package distance provides vector distance calculations and metric semantics.
//
// # Supported Metrics
//
//   - MetricCosine: cosine similarity (0 when either vector has zero norm)
//   - MetricL2: squared Euclidean distance
//   - MetricDot: dot product (inner product)
//
// Raw values keep their natural direction: L2 is lower-is-better, cosine
// and dot are higher-is-better. Metric.Score maps every raw value onto a
// single higher-is-better scale.
//
// # Usage
//
//	m, _ := distance.ParseMetric("cosine")
//	fn, _ := distance.Provider(m)
//	score := m.Score(fn(a, b))
package distance
