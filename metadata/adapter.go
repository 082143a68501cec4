package metadata

import (
	"fmt"
	"math"
	"reflect"

	"github.com/goccy/go-json"
)

// FromAny converts decoded input (CSV cells, JSON lines, msgpack) into a
// Value. Named numeric types are accepted by their underlying kind, slices
// become lists.
func FromAny(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case int64:
		return Int(x), nil
	case int:
		return Int(int64(x)), nil
	case float64:
		return fromFloat(x)
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return Int(n), nil
		}
		f, err := x.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("metadata: number %q: %w", x, err)
		}
		return fromFloat(f)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return Value{}, fmt.Errorf("metadata: unsigned value %d overflows int64", u)
		}
		return Int(int64(u)), nil
	case reflect.Float32, reflect.Float64:
		return fromFloat(rv.Float())
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.Slice, reflect.Array:
		items := make([]Value, rv.Len())
		for i := range items {
			item, err := FromAny(rv.Index(i).Interface())
			if err != nil {
				return Value{}, fmt.Errorf("metadata: element %d: %w", i, err)
			}
			items[i] = item
		}
		return List(items...), nil
	}
	return Value{}, fmt.Errorf("metadata: unsupported value type %T", v)
}

func fromFloat(f float64) (Value, error) {
	if !finite(f) {
		return Value{}, fmt.Errorf("metadata: float %v is not finite", f)
	}
	return Float(f), nil
}

// DocumentFromAny converts a plain map into a Document. Every value must
// convert to a scalar.
func DocumentFromAny(m map[string]any) (Document, error) {
	if m == nil {
		return nil, nil
	}
	doc := make(Document, len(m))
	for k, raw := range m {
		v, err := FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("metadata: key %q: %w", k, err)
		}
		if !v.IsScalar() {
			return nil, fmt.Errorf("metadata: key %q: %s is not a scalar", k, v.Kind())
		}
		doc[k] = v
	}
	return doc, nil
}
