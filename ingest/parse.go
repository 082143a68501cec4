package ingest

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrEmptyVector is returned when an embedding has no elements.
var ErrEmptyVector = errors.New("ingest: embedding has no elements")

// TokenError reports a non-numeric embedding element.
type TokenError struct {
	Index int
	Token string
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("ingest: embedding element %d %q is not a number", e.Index, e.Token)
}

// ParseVector parses a textual embedding. Accepted forms include
// "0.1,0.2", "[0.1, 0.2]", "[[0.1 0.2]]", "0.1;0.2" and
// "tensor([0.1, 0.2], device='cpu')".
func ParseVector(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "tensor("); ok {
		s = rest
		if i := strings.LastIndexByte(s, ')'); i >= 0 {
			s = s[:i]
		}
	}
	if open := strings.IndexByte(s, '['); open >= 0 {
		if end := strings.LastIndexByte(s, ']'); end > open {
			s = s[open+1 : end]
		}
	}

	tokens := strings.FieldsFunc(s, func(r rune) bool {
		switch r {
		case ',', ';', ' ', '\t', '\n', '\r', '[', ']':
			return true
		}
		return false
	})
	if len(tokens) == 0 {
		return nil, ErrEmptyVector
	}

	out := make([]float32, len(tokens))
	for i, tok := range tokens {
		f, err := strconv.ParseFloat(tok, 32)
		if err != nil && !errors.Is(err, strconv.ErrRange) {
			return nil, &TokenError{Index: i, Token: tok}
		}
		out[i] = float32(f)
	}
	return out, nil
}

// toVector converts the supported embedding representations.
func toVector(v any) ([]float32, error) {
	switch x := v.(type) {
	case string:
		return ParseVector(x)
	case []byte:
		return ParseVector(string(x))
	case []float32:
		return nonEmpty(append([]float32(nil), x...))
	case []float64:
		out := make([]float32, len(x))
		for i, f := range x {
			out[i] = float32(f)
		}
		return nonEmpty(out)
	case []int:
		out := make([]float32, len(x))
		for i, n := range x {
			out[i] = float32(n)
		}
		return nonEmpty(out)
	case []int64:
		out := make([]float32, len(x))
		for i, n := range x {
			out[i] = float32(n)
		}
		return nonEmpty(out)
	case []string:
		out := make([]float32, len(x))
		for i, tok := range x {
			f, err := strconv.ParseFloat(strings.TrimSpace(tok), 32)
			if err != nil && !errors.Is(err, strconv.ErrRange) {
				return nil, &TokenError{Index: i, Token: tok}
			}
			out[i] = float32(f)
		}
		return nonEmpty(out)
	case []any:
		out := make([]float32, 0, len(x))
		for i, e := range x {
			switch n := e.(type) {
			case []any, []float64, []float32:
				// One level of nesting, as in [[0.1, 0.2]].
				inner, err := toVector(n)
				if err != nil {
					return nil, err
				}
				out = append(out, inner...)
				continue
			}
			f, ok := number(e)
			if !ok {
				return nil, &TokenError{Index: i, Token: fmt.Sprint(e)}
			}
			out = append(out, float32(f))
		}
		return nonEmpty(out)
	default:
		return nil, fmt.Errorf("ingest: unsupported embedding type %T", v)
	}
}

func nonEmpty(v []float32) ([]float32, error) {
	if len(v) == 0 {
		return nil, ErrEmptyVector
	}
	return v, nil
}

// number reports v as a float64 when it is numeric or a numeric string.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	case fmt.Stringer:
		f, err := strconv.ParseFloat(strings.TrimSpace(n.String()), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// count coerces a view count or duration to a non-negative integer.
// It reports false when v does not look like one.
func count(v any) (int64, bool) {
	if s, ok := v.(string); ok {
		s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, n >= 0
		}
		v = s
	}
	f, ok := number(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f != math.Trunc(f) || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}
