package model

import (
	"fmt"
	"slices"
	"time"

	"github.com/hupe1980/vecsearch/distance"
	"github.com/hupe1980/vecsearch/metadata"
)

// Record is the atomic unit stored in a collection.
type Record struct {
	// ID is unique within a collection and never empty.
	ID string
	// Vector has exactly the collection's dimension.
	Vector []float32
	// Document is the text the vector was derived from. May be empty.
	Document string
	// Metadata holds scalar attributes (title, channel_title, view_count, ...).
	Metadata metadata.Document
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	return Record{
		ID:       r.ID,
		Vector:   slices.Clone(r.Vector),
		Document: r.Document,
		Metadata: r.Metadata.Clone(),
	}
}

// String returns a short description of the record for logs.
func (r Record) String() string {
	return fmt.Sprintf("Record(%s, dim=%d)", r.ID, len(r.Vector))
}

// Candidate is a raw index hit: the record id and the metric's raw value.
type Candidate struct {
	ID       string
	Distance float32
}

// Result is a ranked query hit with its normalized similarity score
// (higher is more relevant, whatever the metric).
type Result struct {
	ID       string            `json:"id"`
	Document string            `json:"document"`
	Metadata metadata.Document `json:"metadata,omitempty"`
	Score    float32           `json:"similarity_score"`
}

// CollectionInfo describes a collection. Dimension and Metric are fixed
// at creation time.
type CollectionInfo struct {
	Name      string          `json:"name"`
	Dimension int             `json:"dimension"`
	Metric    distance.Metric `json:"metric"`
	CreatedAt time.Time       `json:"created_at"`
}

// SameShape reports whether two descriptors agree on dimension and metric.
func (c CollectionInfo) SameShape(other CollectionInfo) bool {
	return c.Dimension == other.Dimension && c.Metric == other.Metric
}
