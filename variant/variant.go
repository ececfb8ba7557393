// Package variant implements the tagged-value tree that StructureDefinition
// documents and data instances are decoded into. Nothing in the converter or
// validator reflects on Go struct types; every traversal walks a Value.
package variant

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Kind identifies the shape a Value holds.
type Kind int

const (
	Null Kind = iota
	Bool
	Number
	String
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "boolean"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return "unknown"
	}
}

// Value is a structurally-typed node: null, bool, number, string, array of
// Value, or an ordered string->Value mapping. Object key order is preserved
// so that a decoded document can be re-encoded deterministically.
type Value struct {
	kind Kind
	b    bool
	n    json.Number
	s    string
	arr  []Value
	keys []string
	obj  map[string]Value
}

// Kind returns the Kind of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is the null value (or the zero Value).
func (v Value) IsNull() bool { return v.kind == Null }

// NewNull constructs the null value.
func NewNull() Value { return Value{kind: Null} }

// NewBool constructs a boolean value.
func NewBool(b bool) Value { return Value{kind: Bool, b: b} }

// NewString constructs a string value.
func NewString(s string) Value { return Value{kind: String, s: s} }

// NewNumber constructs a number value from its literal text representation,
// preserving the original digits (no float64 round trip).
func NewNumber(lit string) Value { return Value{kind: Number, n: json.Number(lit)} }

// NewArray constructs an array value.
func NewArray(items []Value) Value { return Value{kind: Array, arr: items} }

// NewObject constructs an object value from ordered key/value pairs.
func NewObject(keys []string, obj map[string]Value) Value {
	return Value{kind: Object, keys: keys, obj: obj}
}

// Bool returns the boolean payload; ok is false if v is not a Bool.
func (v Value) Bool() (bool, bool) {
	if v.kind != Bool {
		return false, false
	}
	return v.b, true
}

// String returns the string payload; ok is false if v is not a String.
func (v Value) String() (string, bool) {
	if v.kind != String {
		return "", false
	}
	return v.s, true
}

// Number returns the raw numeric literal; ok is false if v is not a Number.
func (v Value) Number() (json.Number, bool) {
	if v.kind != Number {
		return "", false
	}
	return v.n, true
}

// Items returns the array payload; ok is false if v is not an Array.
func (v Value) Items() ([]Value, bool) {
	if v.kind != Array {
		return nil, false
	}
	return v.arr, true
}

// Keys returns the object's keys in document order; nil if v is not an Object.
func (v Value) Keys() []string {
	if v.kind != Object {
		return nil
	}
	return v.keys
}

// Field looks up a property of an object value.
func (v Value) Field(name string) (Value, bool) {
	if v.kind != Object {
		return Value{}, false
	}
	f, ok := v.obj[name]
	return f, ok
}

// Path looks up a dotted sequence of object fields, stopping at the first
// missing or non-object intermediate.
func (v Value) Path(components ...string) (Value, bool) {
	cur := v
	for _, c := range components {
		next, ok := cur.Field(c)
		if !ok {
			return Value{}, false
		}
		cur = next
	}
	return cur, true
}

// Len returns the number of items (Array) or fields (Object); 0 otherwise.
func (v Value) Len() int {
	switch v.kind {
	case Array:
		return len(v.arr)
	case Object:
		return len(v.keys)
	default:
		return 0
	}
}

// Decode parses raw JSON bytes into a Value tree.
func Decode(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Value{}, fmt.Errorf("variant: decode: %w", err)
	}
	return fromAny(raw), nil
}

// FromAny converts a Go native value (as produced by encoding/json's default
// decode into `any`, or a Value itself) into a Value tree. This lets Pattern
// fields populated either by the converter (already Values) or by re-parsing
// a serialized schema document (plain `any`) be compared uniformly.
func FromAny(raw any) Value {
	if v, ok := raw.(Value); ok {
		return v
	}
	return fromAny(raw)
}

func fromAny(raw any) Value {
	switch t := raw.(type) {
	case nil:
		return NewNull()
	case bool:
		return NewBool(t)
	case json.Number:
		return NewNumber(t.String())
	case string:
		return NewString(t)
	case []any:
		items := make([]Value, len(t))
		for i, e := range t {
			items[i] = fromAny(e)
		}
		return NewArray(items)
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		obj := make(map[string]Value, len(t))
		for k, e := range t {
			obj[k] = fromAny(e)
		}
		return NewObject(keys, obj)
	default:
		return NewNull()
	}
}

// Encode serializes v back to JSON bytes, preserving object key order.
func (v Value) Encode() ([]byte, error) {
	var buf jsonBuffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.b, nil
}

type jsonBuffer struct{ b []byte }

func (j *jsonBuffer) writeByte(c byte) { j.b = append(j.b, c) }
func (j *jsonBuffer) writeString(s string) { j.b = append(j.b, s...) }

func (v Value) encode(buf *jsonBuffer) error {
	switch v.kind {
	case Null:
		buf.writeString("null")
	case Bool:
		if v.b {
			buf.writeString("true")
		} else {
			buf.writeString("false")
		}
	case Number:
		buf.writeString(string(v.n))
	case String:
		enc, err := json.Marshal(v.s)
		if err != nil {
			return err
		}
		buf.b = append(buf.b, enc...)
	case Array:
		buf.writeByte('[')
		for i, item := range v.arr {
			if i > 0 {
				buf.writeByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.writeByte(']')
	case Object:
		buf.writeByte('{')
		for i, k := range v.keys {
			if i > 0 {
				buf.writeByte(',')
			}
			enc, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.b = append(buf.b, enc...)
			buf.writeByte(':')
			if err := v.obj[k].encode(buf); err != nil {
				return err
			}
		}
		buf.writeByte('}')
	}
	return nil
}

