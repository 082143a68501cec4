package vecsearch_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecsearch"
	"github.com/hupe1980/vecsearch/distance"
)

func TestDefine(t *testing.T) {
	ctx := context.Background()
	db, err := vecsearch.Open(ctx, vecsearch.InMemory())
	require.NoError(t, err)
	defer db.Close()

	tests := []struct {
		name    string
		builder vecsearch.CollectionBuilder
		want    distance.Metric
	}{
		{"default", db.Define("default", 4), distance.MetricCosine},
		{"cosine", db.Define("cosine", 4).DotProduct().Cosine(), distance.MetricCosine},
		{"l2", db.Define("l2", 4).SquaredL2(), distance.MetricL2},
		{"dot", db.Define("dot", 4).DotProduct(), distance.MetricDot},
		{"metric", db.Define("metric", 4).Metric(distance.MetricL2), distance.MetricL2},
		{"by name", db.Define("byname", 4).MetricName("ip"), distance.MetricDot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := tt.builder.Create(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Metric())
			assert.Equal(t, 4, c.Dimension())
		})
	}
}

func TestDefineIsImmutable(t *testing.T) {
	ctx := context.Background()
	db, err := vecsearch.Open(ctx, vecsearch.InMemory())
	require.NoError(t, err)
	defer db.Close()

	base := db.Define("base", 2)
	_ = base.SquaredL2()

	c, err := base.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, distance.MetricCosine, c.Metric())
}

func TestDefineInvalidMetricName(t *testing.T) {
	ctx := context.Background()
	db, err := vecsearch.Open(ctx, vecsearch.InMemory())
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Define("x", 2).MetricName("hamming").Create(ctx)
	var me *vecsearch.InvalidMetricError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "hamming", me.Name)

	// A later valid name clears the error.
	c, err := db.Define("x", 2).MetricName("hamming").MetricName("l2").Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, distance.MetricL2, c.Metric())
}
