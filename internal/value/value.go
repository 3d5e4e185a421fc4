package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"unicode/utf16"
)

// Value is a sealed interface for everything a scope slot, an adapter or a
// connector can hold.
// Only Null, String, Int, Float, Bool, Seq, Map and *Ref implement it.
// Undefined is represented by a nil Value.
type Value interface {
	value() // Sealed - only these types implement it
}

// Null represents an explicit null.
type Null struct{}

func (Null) value() {}

// String represents a string primitive.
type String string

func (String) value() {}

// Int represents an integer primitive.
type Int int64

func (Int) value() {}

// Float represents a floating point primitive.
type Float float64

func (Float) value() {}

// Bool represents a boolean primitive.
type Bool bool

func (Bool) value() {}

// Seq represents an ordered sequence.
type Seq []Value

func (Seq) value() {}

// Map represents a keyed map.
// Use SortedKeys() for deterministic iteration.
type Map map[string]Value

func (Map) value() {}

// SortedKeys returns keys ordered by UTF-16 code units so iteration order
// is stable across runs and matches the canonical JSON encoding.
func (m Map) SortedKeys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)
	return keys
}

func compareKeys(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}

// IsPrimitive reports whether v is undefined, null, or a scalar.
func IsPrimitive(v Value) bool {
	switch v.(type) {
	case nil, Null, String, Int, Float, Bool:
		return true
	default:
		return false
	}
}

// IsRef reports whether v is a *Ref.
func IsRef(v Value) bool {
	_, ok := v.(*Ref)
	return ok
}

// Truthy mirrors the presence test used for boolean-driven sections:
// undefined, null, false, zero, the empty string and empty containers are
// all absent.
func Truthy(v Value) bool {
	switch val := v.(type) {
	case nil, Null:
		return false
	case Bool:
		return bool(val)
	case Int:
		return val != 0
	case Float:
		return val != 0 && !math.IsNaN(float64(val))
	case String:
		return val != ""
	case Seq:
		return len(val) > 0
	case Map:
		return len(val) > 0
	default:
		return true
	}
}

// Text renders a primitive the way a view expects to display it.
// Containers and references render through their canonical JSON form.
func Text(v Value) string {
	switch val := v.(type) {
	case nil:
		return ""
	case Null:
		return "null"
	case String:
		return string(val)
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Float:
		return strconv.FormatFloat(float64(val), 'g', -1, 64)
	case Bool:
		return strconv.FormatBool(bool(val))
	default:
		data, err := MarshalCanonical(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

// FromGo converts decoded YAML/JSON data (nil, bool, string, numbers,
// []any, map[string]any) into a Value.
func FromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case int:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("number out of int64 range: %d", val)
		}
		return Int(val), nil
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1<<53 {
			return Int(int64(val)), nil
		}
		return Float(val), nil
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return Int(n), nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", val, err)
		}
		return Float(f), nil
	case []any:
		seq := make(Seq, len(val))
		for i, elem := range val {
			converted, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			seq[i] = converted
		}
		return seq, nil
	case map[string]any:
		m := make(Map, len(val))
		for k, elem := range val {
			converted, err := FromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			m[k] = converted
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// ToGo converts a Value back into plain Go data. References are rendered
// as their string form; callers that need the referenced value should call
// Plain first.
func ToGo(v Value) any {
	switch val := v.(type) {
	case nil, Null:
		return nil
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case Bool:
		return bool(val)
	case Seq:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = ToGo(elem)
		}
		return out
	case Map:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = ToGo(elem)
		}
		return out
	case *Ref:
		return val.String()
	default:
		return nil
	}
}

// ParseJSON decodes a JSON document into a Value, keeping integers exact.
func ParseJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return FromGo(raw)
}
