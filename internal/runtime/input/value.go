// Package input decodes the job payload into a typed, immutable parameter
// mapping and derives the partition assigned to this process instance.
package input

import (
	sterrors "errors"
	"fmt"
	"math"
	"sort"
)

var (
	// ErrParamMissing is wrapped by accessor errors for absent parameters.
	ErrParamMissing = sterrors.New("actorkit: parameter missing")
	// ErrTypeMismatch is wrapped by accessor errors when a parameter holds a
	// different kind than requested.
	ErrTypeMismatch = sterrors.New("actorkit: parameter type mismatch")
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is a tagged union over the JSON value space. Accessors return a
// typed error instead of silently falling back to a zero value, so the
// schema's declared types survive end to end.
type Value struct {
	kind Kind
	str  string
	num  float64
	b    bool
	arr  []Value
	obj  map[string]Value
}

func fromAny(raw any) Value {
	switch v := raw.(type) {
	case nil:
		return Value{kind: KindNull}
	case string:
		return Value{kind: KindString, str: v}
	case bool:
		return Value{kind: KindBool, b: v}
	case float64:
		return Value{kind: KindNumber, num: v}
	case int:
		return Value{kind: KindNumber, num: float64(v)}
	case int64:
		return Value{kind: KindNumber, num: float64(v)}
	case []any:
		arr := make([]Value, len(v))
		for i, item := range v {
			arr[i] = fromAny(item)
		}
		return Value{kind: KindArray, arr: arr}
	case map[string]any:
		obj := make(map[string]Value, len(v))
		for k, item := range v {
			obj[k] = fromAny(item)
		}
		return Value{kind: KindObject, obj: obj}
	default:
		// Unknown decoder output; keep it visible rather than dropping it.
		return Value{kind: KindString, str: fmt.Sprintf("%v", v)}
	}
}

// Kind returns the variant held by the value.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is JSON null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// String returns the string variant.
func (v Value) String() (string, error) {
	if v.kind != KindString {
		return "", fmt.Errorf("%w: expected string, got %s", ErrTypeMismatch, v.kind)
	}
	return v.str, nil
}

// Float64 returns the number variant.
func (v Value) Float64() (float64, error) {
	if v.kind != KindNumber {
		return 0, fmt.Errorf("%w: expected number, got %s", ErrTypeMismatch, v.kind)
	}
	return v.num, nil
}

// Int64 returns the number variant when it carries an integral value.
func (v Value) Int64() (int64, error) {
	f, err := v.Float64()
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: expected integer, got fractional number %v", ErrTypeMismatch, f)
	}
	return int64(f), nil
}

// Bool returns the boolean variant.
func (v Value) Bool() (bool, error) {
	if v.kind != KindBool {
		return false, fmt.Errorf("%w: expected boolean, got %s", ErrTypeMismatch, v.kind)
	}
	return v.b, nil
}

// Array returns the array variant.
func (v Value) Array() ([]Value, error) {
	if v.kind != KindArray {
		return nil, fmt.Errorf("%w: expected array, got %s", ErrTypeMismatch, v.kind)
	}
	return v.arr, nil
}

// Object returns the object variant.
func (v Value) Object() (map[string]Value, error) {
	if v.kind != KindObject {
		return nil, fmt.Errorf("%w: expected object, got %s", ErrTypeMismatch, v.kind)
	}
	return v.obj, nil
}

// Interface converts the value back to plain any, mirroring what
// encoding/json would have produced.
func (v Value) Interface() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	case KindBool:
		return v.b
	case KindArray:
		out := make([]any, len(v.arr))
		for i, item := range v.arr {
			out[i] = item.Interface()
		}
		return out
	case KindObject:
		out := make(map[string]any, len(v.obj))
		for k, item := range v.obj {
			out[k] = item.Interface()
		}
		return out
	default:
		return nil
	}
}

// Configuration is the immutable decoded job payload. It is safe to share
// across concurrent business-logic tasks.
type Configuration struct {
	values map[string]Value
}

// Get returns the named parameter.
func (c *Configuration) Get(name string) (Value, bool) {
	v, ok := c.values[name]
	return v, ok
}

// Len returns the number of top-level parameters.
func (c *Configuration) Len() int { return len(c.values) }

// Names returns the sorted parameter names.
func (c *Configuration) Names() []string {
	names := make([]string, 0, len(c.values))
	for name := range c.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Configuration) lookup(name string) (Value, error) {
	v, ok := c.values[name]
	if !ok {
		return Value{}, fmt.Errorf("%w: %q", ErrParamMissing, name)
	}
	return v, nil
}

// String returns the named string parameter.
func (c *Configuration) String(name string) (string, error) {
	v, err := c.lookup(name)
	if err != nil {
		return "", err
	}
	s, err := v.String()
	if err != nil {
		return "", fmt.Errorf("parameter %q: %w", name, err)
	}
	return s, nil
}

// StringOr returns the named string parameter or fallback when absent.
// A present parameter of the wrong kind still errors.
func (c *Configuration) StringOr(name, fallback string) (string, error) {
	v, ok := c.values[name]
	if !ok {
		return fallback, nil
	}
	s, err := v.String()
	if err != nil {
		return "", fmt.Errorf("parameter %q: %w", name, err)
	}
	return s, nil
}

// Int64 returns the named integer parameter.
func (c *Configuration) Int64(name string) (int64, error) {
	v, err := c.lookup(name)
	if err != nil {
		return 0, err
	}
	n, err := v.Int64()
	if err != nil {
		return 0, fmt.Errorf("parameter %q: %w", name, err)
	}
	return n, nil
}

// Bool returns the named boolean parameter.
func (c *Configuration) Bool(name string) (bool, error) {
	v, err := c.lookup(name)
	if err != nil {
		return false, err
	}
	b, err := v.Bool()
	if err != nil {
		return false, fmt.Errorf("parameter %q: %w", name, err)
	}
	return b, nil
}

// Strings returns the named parameter as a list of strings. This is the
// common shape of a split-key list (e.g. a URL list).
func (c *Configuration) Strings(name string) ([]string, error) {
	v, err := c.lookup(name)
	if err != nil {
		return nil, err
	}
	arr, err := v.Array()
	if err != nil {
		return nil, fmt.Errorf("parameter %q: %w", name, err)
	}
	out := make([]string, len(arr))
	for i, item := range arr {
		s, err := item.String()
		if err != nil {
			return nil, fmt.Errorf("parameter %q[%d]: %w", name, i, err)
		}
		out[i] = s
	}
	return out, nil
}
