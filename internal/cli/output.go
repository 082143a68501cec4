package cli

import (
	"errors"
	"fmt"
	"io"

	json "github.com/goccy/go-json"

	"github.com/hupe1980/vecsearch"
	"github.com/hupe1980/vecsearch/model"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type recordView struct {
	ID       string         `json:"id"`
	Document string         `json:"document,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Vector   []float32      `json:"vector,omitempty"`
}

type resultView struct {
	ID       string         `json:"id"`
	Score    float32        `json:"similarity_score"`
	Document string         `json:"document,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func viewRecord(r model.Record, withVector bool) recordView {
	v := recordView{ID: r.ID, Document: r.Document, Metadata: r.Metadata.ToAny()}
	if withVector {
		v.Vector = r.Vector
	}
	return v
}

func viewResults(rs []model.Result) []resultView {
	out := make([]resultView, len(rs))
	for i, r := range rs {
		out[i] = resultView{ID: r.ID, Score: r.Score, Document: r.Document, Metadata: r.Metadata.ToAny()}
	}
	return out
}

// printError writes err with a hint for the error classes users can act on.
func printError(w io.Writer, err error) {
	var (
		conflict *vecsearch.ConflictError
		dim      *vecsearch.DimensionMismatchError
	)
	switch {
	case errors.As(err, &conflict):
		fmt.Fprintf(w, "error: %v\nhint: drop the collection first or use dimension=%d metric=%s\n",
			err, conflict.Existing.Dimension, conflict.Existing.Metric)
	case errors.As(err, &dim):
		fmt.Fprintf(w, "error: %v\nhint: the collection expects %d-dimensional vectors\n", err, dim.Expected)
	case errors.Is(err, vecsearch.ErrNotFound):
		fmt.Fprintf(w, "error: %v\nhint: run \"vecsearch list\" to see existing collections\n", err)
	default:
		fmt.Fprintf(w, "error: %v\n", err)
	}
}
