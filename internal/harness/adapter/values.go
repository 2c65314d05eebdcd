package adapter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	appErr "learnhub/pkg/errors"
)

// valueKind classifies a decoded JSON value for code generation.
type valueKind int

const (
	kindNull valueKind = iota
	kindBool
	kindInt
	kindFloat
	kindString
	kindArray
	kindObject
)

func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// decodeValue decodes raw JSON keeping numbers exact.
func decodeValue(raw json.RawMessage) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// compactJSON re-encodes raw JSON without insignificant whitespace.
func compactJSON(raw json.RawMessage) string {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "null"
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "null"
	}
	return buf.String()
}

func kindOf(v any) valueKind {
	switch x := v.(type) {
	case nil:
		return kindNull
	case bool:
		return kindBool
	case json.Number:
		if _, err := x.Int64(); err == nil {
			return kindInt
		}
		return kindFloat
	case string:
		return kindString
	case []any:
		return kindArray
	default:
		return kindObject
	}
}

func (k valueKind) String() string {
	switch k {
	case kindNull:
		return "null"
	case kindBool:
		return "boolean"
	case kindInt:
		return "integer"
	case kindFloat:
		return "number"
	case kindString:
		return "string"
	case kindArray:
		return "array"
	default:
		return "object"
	}
}

func intValue(v any) int64 {
	n, _ := v.(json.Number).Int64()
	return n
}

func floatValue(v any) float64 {
	f, _ := v.(json.Number).Float64()
	return f
}

func fitsInt32(n int64) bool {
	return n >= math.MinInt32 && n <= math.MaxInt32
}

// floatLiteral always carries a decimal point or exponent so C-family and Java read it as double.
func floatLiteral(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// elementKind returns the common kind of an array's elements; kindNull for empty arrays.
// Integers mixed with floats widen to kindFloat. ok is false for mixed arrays.
func elementKind(items []any) (valueKind, bool) {
	if len(items) == 0 {
		return kindNull, true
	}
	common := kindOf(items[0])
	for _, item := range items[1:] {
		k := kindOf(item)
		switch {
		case k == common:
		case (k == kindInt && common == kindFloat) || (k == kindFloat && common == kindInt):
			common = kindFloat
		default:
			return common, false
		}
	}
	return common, true
}

// intSlice returns the elements as integers when every element is one.
func intSlice(v any) ([]int64, bool) {
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]int64, 0, len(items))
	for _, item := range items {
		if kindOf(item) != kindInt {
			return nil, false
		}
		out = append(out, intValue(item))
	}
	return out, true
}

func joinInts(nums []int64, suffix func(int64) string) string {
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = strconv.FormatInt(n, 10) + suffix(n)
	}
	return strings.Join(parts, ", ")
}

func unsupportedArg(caseIdx, argIdx int, format string, args ...any) error {
	return appErr.Newf(appErr.UnsupportedType, "case %d argument %d: %s", caseIdx, argIdx+1, fmt.Sprintf(format, args...))
}
