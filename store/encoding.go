package store

import (
	"fmt"
	"math"

	"github.com/hupe1980/vecsearch/codec"
	"github.com/hupe1980/vecsearch/metadata"
	"github.com/hupe1980/vecsearch/model"
)

// wireRecord is the persisted form of a record.
type wireRecord struct {
	ID       string               `json:"id" msgpack:"id"`
	Vector   []float32            `json:"vector" msgpack:"vector"`
	Document string               `json:"document,omitempty" msgpack:"document,omitempty"`
	Metadata map[string]wireValue `json:"metadata,omitempty" msgpack:"metadata,omitempty"`
}

// wireValue keeps the metadata kind explicit so integers survive codecs
// that decode every number as float64.
type wireValue struct {
	Kind metadata.Kind `json:"k" msgpack:"k"`
	I    int64         `json:"i,omitempty" msgpack:"i,omitempty"`
	F    float64       `json:"f,omitempty" msgpack:"f,omitempty"`
	S    string        `json:"s,omitempty" msgpack:"s,omitempty"`
	B    bool          `json:"b,omitempty" msgpack:"b,omitempty"`
}

func toWire(v metadata.Value) wireValue {
	w := wireValue{Kind: v.Kind()}
	switch v.Kind() {
	case metadata.KindInt:
		w.I, _ = v.AsInt64()
	case metadata.KindFloat:
		w.F, _ = v.AsFloat64()
	case metadata.KindString:
		w.S = v.StringValue()
	case metadata.KindBool:
		w.B, _ = v.AsBool()
	}
	return w
}

func fromWire(w wireValue) (metadata.Value, error) {
	switch w.Kind {
	case metadata.KindNull:
		return metadata.Null(), nil
	case metadata.KindInt:
		return metadata.Int(w.I), nil
	case metadata.KindFloat:
		if math.IsNaN(w.F) || math.IsInf(w.F, 0) {
			return metadata.Value{}, fmt.Errorf("non-finite float %v", w.F)
		}
		return metadata.Float(w.F), nil
	case metadata.KindString:
		return metadata.String(w.S), nil
	case metadata.KindBool:
		return metadata.Bool(w.B), nil
	default:
		return metadata.Value{}, fmt.Errorf("unsupported kind %d", w.Kind)
	}
}

// EncodeRecord serializes rec with c.
func EncodeRecord(c codec.Codec, rec model.Record) ([]byte, error) {
	w := wireRecord{
		ID:       rec.ID,
		Vector:   rec.Vector,
		Document: rec.Document,
	}
	if len(rec.Metadata) > 0 {
		w.Metadata = make(map[string]wireValue, len(rec.Metadata))
		for k, v := range rec.Metadata {
			w.Metadata[k] = toWire(v)
		}
	}

	b, err := c.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("store: encode %q: %w", rec.ID, err)
	}
	return b, nil
}

// DecodeRecord deserializes a record written by EncodeRecord.
func DecodeRecord(c codec.Codec, data []byte) (model.Record, error) {
	var w wireRecord
	if err := c.Unmarshal(data, &w); err != nil {
		return model.Record{}, fmt.Errorf("store: decode record: %w", err)
	}

	rec := model.Record{
		ID:       w.ID,
		Vector:   w.Vector,
		Document: w.Document,
	}
	if len(w.Metadata) > 0 {
		rec.Metadata = make(metadata.Document, len(w.Metadata))
		for k, wv := range w.Metadata {
			v, err := fromWire(wv)
			if err != nil {
				return model.Record{}, fmt.Errorf("store: decode %q metadata %q: %w", w.ID, k, err)
			}
			rec.Metadata[k] = v
		}
	}
	return rec, nil
}

// Config holds settings shared by all backends.
type Config struct {
	// Dimension every stored vector must have.
	Dimension int
	// Codec used for persisted records. Defaults to codec.Default.
	Codec codec.Codec
}

// Normalize fills defaults and validates c.
func (c Config) Normalize() (Config, error) {
	if c.Dimension <= 0 {
		return c, fmt.Errorf("store: dimension must be positive, got %d", c.Dimension)
	}
	if c.Codec == nil {
		c.Codec = codec.Default
	}
	return c, nil
}

// CheckPersisted verifies that settings read back from disk match c.
func (c Config) CheckPersisted(codecName string, dim int) error {
	if codecName != c.Codec.Name() {
		return fmt.Errorf("%w: stored %q, configured %q", ErrCodecMismatch, codecName, c.Codec.Name())
	}
	if dim != c.Dimension {
		return fmt.Errorf("%w: stored %d, configured %d", ErrDimensionMismatch, dim, c.Dimension)
	}
	return nil
}
