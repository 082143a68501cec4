package metadata

import (
	"cmp"
	"fmt"
	"strings"
)

// Operator names a filter comparison.
type Operator string

const (
	OpEqual        Operator = "eq"
	OpNotEqual     Operator = "ne"
	OpGreaterThan  Operator = "gt"
	OpGreaterEqual Operator = "gte"
	OpLessThan     Operator = "lt"
	OpLessEqual    Operator = "lte"
	OpIn           Operator = "in"
	OpContains     Operator = "contains"
)

// Filter is one condition on a metadata key. A record without the key never
// matches, whatever the operator.
type Filter struct {
	Key      string
	Operator Operator
	Value    Value
}

func (f Filter) String() string {
	return f.Key + " " + string(f.Operator) + " " + f.Value.String()
}

func Eq(key string, v Value) Filter  { return Filter{key, OpEqual, v} }
func Ne(key string, v Value) Filter  { return Filter{key, OpNotEqual, v} }
func Gt(key string, v Value) Filter  { return Filter{key, OpGreaterThan, v} }
func Gte(key string, v Value) Filter { return Filter{key, OpGreaterEqual, v} }
func Lt(key string, v Value) Filter  { return Filter{key, OpLessThan, v} }
func Lte(key string, v Value) Filter { return Filter{key, OpLessEqual, v} }

// In matches when the stored value equals any of vs.
func In(key string, vs ...Value) Filter { return Filter{key, OpIn, List(vs...)} }

// Contains matches string values holding substr.
func Contains(key, substr string) Filter { return Filter{key, OpContains, String(substr)} }

// Equal reports whether a and b hold the same value. Numbers compare by
// magnitude across int and float, null equals only null.
func Equal(a, b Value) bool {
	if a.isNumber() && b.isNumber() {
		switch {
		case a.kind == KindInt && b.kind == KindInt:
			return a.n == b.n
		case a.kind == KindInt:
			n, ok := integral(b.f)
			return ok && n == a.n
		case b.kind == KindInt:
			n, ok := integral(a.f)
			return ok && n == b.n
		}
		x, _ := a.AsFloat64()
		y, _ := b.AsFloat64()
		return x == y
	}
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindString:
		return a.s == b.s
	case KindBool:
		return a.n == b.n
	}
	return false
}

// order compares two numbers. ok is false when either side is not numeric.
func order(a, b Value) (c int, ok bool) {
	if !a.isNumber() || !b.isNumber() {
		return 0, false
	}
	if a.kind == KindInt && b.kind == KindInt {
		return cmp.Compare(a.n, b.n), true
	}
	x, _ := a.AsFloat64()
	y, _ := b.AsFloat64()
	return cmp.Compare(x, y), true
}

// Matches reports whether doc satisfies f.
func (f Filter) Matches(doc Document) bool {
	got, ok := doc[f.Key]
	if !ok {
		return false
	}

	switch f.Operator {
	case OpEqual:
		return Equal(got, f.Value)
	case OpNotEqual:
		return !Equal(got, f.Value)
	case OpIn:
		for _, want := range f.Value.list {
			if Equal(got, want) {
				return true
			}
		}
		return false
	case OpContains:
		s, isStr := got.AsString()
		return isStr && f.Value.kind == KindString && strings.Contains(s, f.Value.s)
	}

	c, ok := order(got, f.Value)
	if !ok {
		return false
	}
	switch f.Operator {
	case OpGreaterThan:
		return c > 0
	case OpGreaterEqual:
		return c >= 0
	case OpLessThan:
		return c < 0
	case OpLessEqual:
		return c <= 0
	}
	return false
}

func (f Filter) validate() error {
	if f.Key == "" {
		return fmt.Errorf("metadata: filter with empty key")
	}
	switch f.Operator {
	case OpEqual, OpNotEqual:
		if !f.Value.IsScalar() {
			return fmt.Errorf("metadata: filter %s: operand must be a scalar", f.Key)
		}
	case OpGreaterThan, OpGreaterEqual, OpLessThan, OpLessEqual:
		if !f.Value.isNumber() {
			return fmt.Errorf("metadata: filter %s: %s needs a numeric operand, got %s", f.Key, f.Operator, f.Value.Kind())
		}
	case OpIn:
		if f.Value.kind != KindList {
			return fmt.Errorf("metadata: filter %s: in needs a list operand, got %s", f.Key, f.Value.Kind())
		}
	case OpContains:
		if f.Value.kind != KindString {
			return fmt.Errorf("metadata: filter %s: contains needs a string operand, got %s", f.Key, f.Value.Kind())
		}
	default:
		return fmt.Errorf("metadata: filter %s: unknown operator %q", f.Key, f.Operator)
	}
	return nil
}

// FilterSet is a conjunction of filters. A nil or empty set matches every
// document.
type FilterSet struct {
	Filters []Filter
}

func NewFilterSet(filters ...Filter) *FilterSet {
	return &FilterSet{Filters: filters}
}

// Validate rejects empty keys, unknown operators and operands of the wrong
// kind.
func (fs *FilterSet) Validate() error {
	if fs == nil {
		return nil
	}
	for _, f := range fs.Filters {
		if err := f.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (fs *FilterSet) Matches(doc Document) bool {
	if fs == nil {
		return true
	}
	for _, f := range fs.Filters {
		if !f.Matches(doc) {
			return false
		}
	}
	return true
}
