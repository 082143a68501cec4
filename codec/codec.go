// Package codec holds the record encodings available to the persistent
// stores.
//
// A store records the codec name next to its data and refuses to open with
// a different codec, since records written by one cannot be read by another.
package codec

import (
	"bytes"
	"slices"
	"sync"

	"github.com/goccy/go-json"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec encodes and decodes values. Implementations are safe for
// concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// Default is the codec used for newly created stores.
var Default Codec = Msgpack{}

var builtin = map[string]Codec{
	"json":    JSON{},
	"go-json": GoJSON{},
	"msgpack": Msgpack{},
}

// ByName returns the built-in codec registered under name.
func ByName(name string) (Codec, bool) {
	c, ok := builtin[name]
	return c, ok
}

// Names lists the built-in codec names in sorted order.
func Names() []string {
	names := make([]string, 0, len(builtin))
	for n := range builtin {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// JSON writes JSON with map keys in sorted order, so equal records encode
// to equal bytes. Files stay human-readable.
type JSON struct{}

func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (JSON) Name() string { return "json" }

// GoJSON writes the same JSON as JSON but skips map key sorting.
type GoJSON struct{}

func (GoJSON) Marshal(v any) ([]byte, error) { return json.MarshalWithOption(v, json.UnorderedMap()) }

func (GoJSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (GoJSON) Name() string { return "go-json" }

// Msgpack is the binary codec. Vectors are stored as 4-byte floats and
// integers in their smallest encoding.
type Msgpack struct{}

var msgpackBuffers = sync.Pool{New: func() any { return new(bytes.Buffer) }}

func (Msgpack) Marshal(v any) ([]byte, error) {
	buf := msgpackBuffers.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		msgpackBuffers.Put(buf)
	}()

	enc := msgpack.NewEncoder(buf)
	enc.UseCompactInts(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.Clone(buf.Bytes()), nil
}

func (Msgpack) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }

func (Msgpack) Name() string { return "msgpack" }
