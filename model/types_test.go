package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecsearch/distance"
	"github.com/hupe1980/vecsearch/metadata"
)

func TestRecordClone(t *testing.T) {
	r := Record{
		ID:       "a",
		Vector:   []float32{1, 2},
		Document: "doc",
		Metadata: metadata.Document{"title": metadata.String("t")},
	}

	c := r.Clone()
	c.Vector[0] = 9
	c.Metadata["title"] = metadata.String("changed")

	assert.Equal(t, float32(1), r.Vector[0])
	assert.Equal(t, "t", r.Metadata["title"].StringValue())
	assert.Equal(t, "Record(a, dim=2)", r.String())
}

func TestResultJSON(t *testing.T) {
	b, err := json.Marshal(Result{ID: "x", Document: "d", Score: 0.5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"x","document":"d","similarity_score":0.5}`, string(b))
}

func TestCollectionInfo(t *testing.T) {
	a := CollectionInfo{Name: "a", Dimension: 3, Metric: distance.MetricCosine}
	b := CollectionInfo{Name: "b", Dimension: 3, Metric: distance.MetricCosine}
	assert.True(t, a.SameShape(b))

	b.Metric = distance.MetricL2
	assert.False(t, a.SameShape(b))

	raw, err := json.Marshal(a)
	require.NoError(t, err)

	var out CollectionInfo
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, distance.MetricCosine, out.Metric)
	assert.Equal(t, 3, out.Dimension)
}
