package metadata

import (
	"bytes"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Kind is the type tag of a Value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindNull
	KindInt
	KindFloat
	KindString
	KindBool
	// KindList only appears as the operand of an in filter.
	KindList
)

var kindNames = [...]string{"invalid", "null", "int", "float", "string", "bool", "list"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is a tagged metadata scalar. The zero Value is invalid.
// Bools are kept in n as 0 or 1.
type Value struct {
	kind Kind
	n    int64
	f    float64
	s    string
	list []Value
}

func Null() Value { return Value{kind: KindNull} }

func Int(v int64) Value { return Value{kind: KindInt, n: v} }

func Float(v float64) Value { return Value{kind: KindFloat, f: v} }

func String(v string) Value { return Value{kind: KindString, s: v} }

func Bool(v bool) Value {
	if v {
		return Value{kind: KindBool, n: 1}
	}
	return Value{kind: KindBool}
}

// List builds the operand of an in filter.
func List(vs ...Value) Value { return Value{kind: KindList, list: vs} }

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == KindNull }

// IsScalar reports whether v may be stored in a Document.
func (v Value) IsScalar() bool { return v.kind >= KindNull && v.kind <= KindBool }

func (v Value) AsInt64() (int64, bool) { return v.n, v.kind == KindInt }

func (v Value) AsBool() (bool, bool) { return v.n == 1, v.kind == KindBool }

func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

func (v Value) AsList() ([]Value, bool) { return v.list, v.kind == KindList }

// AsFloat64 widens ints so numbers compare across kinds.
func (v Value) AsFloat64() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.n), true
	case KindFloat:
		return v.f, true
	}
	return 0, false
}

// integral reports whether f holds a whole number representable as int64.
func integral(f float64) (int64, bool) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// StringValue returns the string payload, or "" for other kinds.
func (v Value) StringValue() string { return v.s }

func (v Value) isNumber() bool { return v.kind == KindInt || v.kind == KindFloat }

// Key is the posting-list key of v. Ints and integral floats share the
// numeric key space so 3 and 3.0 find the same records. Ints are keyed
// exactly, so values beyond 2^53 keep separate posting lists.
func (v Value) Key() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindInt:
		return "n:" + strconv.FormatInt(v.n, 10)
	case KindFloat:
		if n, ok := integral(v.f); ok {
			return "n:" + strconv.FormatInt(n, 10)
		}
		return "n:" + strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return "s:" + v.s
	case KindBool:
		return "b:" + strconv.FormatInt(v.n, 10)
	case KindList:
		keys := make([]string, len(v.list))
		for i, item := range v.list {
			keys[i] = item.Key()
		}
		return "l:" + strings.Join(keys, "\x1f")
	}
	return "invalid"
}

// String renders v for logs and error messages.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindInt:
		return strconv.FormatInt(v.n, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.s)
	case KindBool:
		return strconv.FormatBool(v.n == 1)
	case KindList:
		parts := make([]string, len(v.list))
		for i, item := range v.list {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return "<invalid>"
}

// Any returns v as nil, int64, float64, string, bool or []any.
func (v Value) Any() any {
	switch v.kind {
	case KindInt:
		return v.n
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindBool:
		return v.n == 1
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Any()
		}
		return out
	}
	return nil
}

// MarshalJSON writes v as the plain JSON value it holds.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Any())
}

// UnmarshalJSON reads a plain JSON value. Integral numbers become ints.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	out, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

// Canonical document keys.
const (
	KeyTitle           = "title"
	KeyChannelTitle    = "channel_title"
	KeyViewCount       = "view_count"
	KeyDurationSeconds = "duration_seconds"
)

// Document maps metadata keys to scalar values.
type Document map[string]Value

// Clone returns a copy of d. Stored values are scalars, so a shallow map
// copy is enough.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// ToAny converts d to a plain map for display and JSON output.
func (d Document) ToAny() map[string]any {
	if d == nil {
		return nil
	}
	m := make(map[string]any, len(d))
	for k, v := range d {
		m[k] = v.Any()
	}
	return m
}

// Equal reports whether d and other hold the same keys with values of the
// same kind and content.
func (d Document) Equal(other Document) bool {
	if len(d) != len(other) {
		return false
	}
	for k, v := range d {
		o, ok := other[k]
		if !ok || v.kind != o.kind || v.Key() != o.Key() {
			return false
		}
	}
	return true
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
