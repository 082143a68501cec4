package metadata

import (
	"math"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterMatches(t *testing.T) {
	tests := []struct {
		name     string
		filter   Filter
		metadata Document
		want     bool
	}{
		{
			name:     "OpEqual string match",
			filter:   Eq("channel_title", String("Fireship")),
			metadata: Document{"channel_title": String("Fireship")},
			want:     true,
		},
		{
			name:     "OpEqual string no match",
			filter:   Eq("channel_title", String("Fireship")),
			metadata: Document{"channel_title": String("Computerphile")},
			want:     false,
		},
		{
			name:     "OpEqual int vs float",
			filter:   Eq("view_count", Float(10)),
			metadata: Document{"view_count": Int(10)},
			want:     true,
		},
		{
			name:     "OpEqual float vs int beyond 2^53",
			filter:   Eq("view_count", Float(1<<53)),
			metadata: Document{"view_count": Int(1<<53 + 1)},
			want:     false,
		},
		{
			name:     "OpNotEqual",
			filter:   Ne("title", String("a")),
			metadata: Document{"title": String("b")},
			want:     true,
		},
		{
			name:     "OpGreaterThan",
			filter:   Gt("view_count", Int(50)),
			metadata: Document{"view_count": Int(75)},
			want:     true,
		},
		{
			name:     "OpGreaterEqual equal",
			filter:   Gte("view_count", Int(18)),
			metadata: Document{"view_count": Int(18)},
			want:     true,
		},
		{
			name:     "OpGreaterEqual on null",
			filter:   Gte("view_count", Int(0)),
			metadata: Document{"view_count": Null()},
			want:     false,
		},
		{
			name:     "OpLessThan",
			filter:   Lt("duration_seconds", Int(100)),
			metadata: Document{"duration_seconds": Int(75)},
			want:     true,
		},
		{
			name:     "OpLessEqual equal",
			filter:   Lte("duration_seconds", Int(10)),
			metadata: Document{"duration_seconds": Int(10)},
			want:     true,
		},
		{
			name:     "OpIn",
			filter:   In("channel_title", String("a"), String("b")),
			metadata: Document{"channel_title": String("b")},
			want:     true,
		},
		{
			name:     "OpContains",
			filter:   Contains("title", "Go"),
			metadata: Document{"title": String("Learn Go in 100 seconds")},
			want:     true,
		},
		{
			name:     "missing key",
			filter:   Eq("title", String("x")),
			metadata: Document{},
			want:     false,
		},
		{
			name:     "null equals null",
			filter:   Eq("view_count", Null()),
			metadata: Document{"view_count": Null()},
			want:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(tt.metadata))
		})
	}
}

func TestFilterSetMatches(t *testing.T) {
	doc := Document{
		"channel_title": String("Fireship"),
		"view_count":    Int(5000),
	}

	assert.True(t, (*FilterSet)(nil).Matches(doc))
	assert.True(t, NewFilterSet().Matches(doc))
	assert.True(t, NewFilterSet(
		Eq("channel_title", String("Fireship")),
		Gte("view_count", Int(1000)),
	).Matches(doc))
	assert.False(t, NewFilterSet(
		Eq("channel_title", String("Fireship")),
		Gte("view_count", Int(10000)),
	).Matches(doc))
}

func TestFilterSetValidate(t *testing.T) {
	require.NoError(t, NewFilterSet(Eq("a", Int(1))).Validate())
	require.Error(t, NewFilterSet(Filter{Key: "", Operator: OpEqual}).Validate())
	require.Error(t, NewFilterSet(Filter{Key: "a", Operator: "regex"}).Validate())
	require.Error(t, NewFilterSet(Filter{Key: "a", Operator: OpIn, Value: Int(1)}).Validate())
	require.Error(t, NewFilterSet(Filter{Key: "a", Operator: OpContains, Value: Int(1)}).Validate())
}

func TestFromAny(t *testing.T) {
	v, err := FromAny(int8(3))
	require.NoError(t, err)
	assert.Equal(t, Int(3), v)

	v, err = FromAny(uint64(12_000_000_000))
	require.NoError(t, err)
	n, ok := v.AsInt64()
	require.True(t, ok)
	assert.Equal(t, int64(12_000_000_000), n)

	_, err = FromAny(uint64(math.MaxUint64))
	require.Error(t, err)

	_, err = FromAny(math.NaN())
	require.Error(t, err)

	_, err = FromAny(struct{}{})
	require.Error(t, err)

	v, err = FromAny(nil)
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestDocumentFromAny(t *testing.T) {
	doc, err := DocumentFromAny(map[string]any{
		"title":      "Go",
		"view_count": int64(10),
		"live":       false,
		"duration":   nil,
	})
	require.NoError(t, err)
	assert.Equal(t, "Go", doc["title"].StringValue())
	assert.True(t, doc["duration"].IsNull())

	_, err = DocumentFromAny(map[string]any{"tags": []any{"a"}})
	require.Error(t, err)

	doc, err = DocumentFromAny(nil)
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestDocumentCloneAndAny(t *testing.T) {
	doc := Document{"title": String("x"), "view_count": Int(1)}
	clone := doc.Clone()
	clone["title"] = String("y")
	assert.Equal(t, "x", doc["title"].StringValue())

	m := doc.ToAny()
	assert.Equal(t, "x", m["title"])
	assert.Equal(t, int64(1), m["view_count"])

	back, err := DocumentFromAny(m)
	require.NoError(t, err)
	assert.True(t, doc.Equal(back))
	assert.False(t, doc.Equal(Document{"title": String("x")}))
}

func TestValueJSON(t *testing.T) {
	in := Document{"title": String("hello"), "n": Int(2), "r": Float(2.5), "live": Bool(true)}
	b, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"hello","n":2,"r":2.5,"live":true}`, string(b))

	var out Document
	require.NoError(t, json.Unmarshal(b, &out))
	assert.True(t, in.Equal(out))
	assert.Equal(t, KindInt, out["n"].Kind())
	assert.Equal(t, KindFloat, out["r"].Kind())
}

func TestFromAnyNamedTypes(t *testing.T) {
	type views uint16
	type label string

	v, err := FromAny(views(7))
	require.NoError(t, err)
	assert.Equal(t, Int(7), v)

	v, err = FromAny(label("go"))
	require.NoError(t, err)
	assert.Equal(t, String("go"), v)

	v, err = FromAny([]int{1, 2})
	require.NoError(t, err)
	items, ok := v.AsList()
	require.True(t, ok)
	assert.Equal(t, []Value{Int(1), Int(2)}, items)

	v, err = FromAny(json.Number("12"))
	require.NoError(t, err)
	assert.Equal(t, Int(12), v)

	v, err = FromAny(json.Number("1.5"))
	require.NoError(t, err)
	assert.Equal(t, Float(1.5), v)
}

func TestValueString(t *testing.T) {
	assert.Equal(t, `view_count gte 1000`, Gte("view_count", Int(1000)).String())
	assert.Equal(t, `title contains "go"`, Contains("title", "go").String())
	assert.Equal(t, `channel_title in ["a", null, true]`, In("channel_title", String("a"), Null(), Bool(true)).String())
	assert.Equal(t, "<invalid>", Value{}.String())
	assert.Equal(t, "list", KindList.String())
}

func TestRangeFilterNeedsNumber(t *testing.T) {
	require.Error(t, NewFilterSet(Gt("title", String("a"))).Validate())
	require.Error(t, NewFilterSet(Eq("title", In("x").Value)).Validate())
	assert.False(t, Gt("title", Int(1)).Matches(Document{"title": String("b")}))
	assert.True(t, Lt("rating", Float(4.5)).Matches(Document{"rating": Int(4)}))
}
