package vecsearch

import (
	"context"

	"github.com/hupe1980/vecsearch/distance"
)

// Define starts a fluent definition of a collection. The metric defaults to
// cosine.
//
// The builder is immutable - each method returns a new builder with the
// updated configuration.
//
// Example:
//
//	coll, err := db.Define("videos", 384).
//	    Cosine().
//	    Create(ctx)
func (db *DB) Define(name string, dimension int) CollectionBuilder {
	return CollectionBuilder{
		db:        db,
		name:      name,
		dimension: dimension,
		metric:    distance.MetricCosine,
	}
}

// CollectionBuilder is an immutable fluent builder for collections.
type CollectionBuilder struct {
	db        *DB
	name      string
	dimension int
	metric    distance.Metric
	err       error
}

// Cosine sets the metric to cosine similarity.
func (b CollectionBuilder) Cosine() CollectionBuilder {
	b.metric = distance.MetricCosine
	return b
}

// SquaredL2 sets the metric to squared Euclidean distance.
func (b CollectionBuilder) SquaredL2() CollectionBuilder {
	b.metric = distance.MetricL2
	return b
}

// DotProduct sets the metric to the inner product.
func (b CollectionBuilder) DotProduct() CollectionBuilder {
	b.metric = distance.MetricDot
	return b
}

// Metric sets the metric.
func (b CollectionBuilder) Metric(m distance.Metric) CollectionBuilder {
	b.metric = m
	return b
}

// MetricName sets the metric by name. An unknown name makes Create fail
// with an *InvalidMetricError.
func (b CollectionBuilder) MetricName(name string) CollectionBuilder {
	m, err := ParseMetric(name)
	if err != nil {
		b.err = err
		return b
	}
	b.metric = m
	b.err = nil
	return b
}

// Create creates the collection, or returns the existing one if it has the
// same dimension and metric.
func (b CollectionBuilder) Create(ctx context.Context) (*Collection, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.db.CreateCollection(ctx, b.name, b.dimension, b.metric)
}
