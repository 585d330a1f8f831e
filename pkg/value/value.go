// Package value implements the JSON-compatible values produced by the compiler,
// together with the JavaScript coercion rules the evaluator relies on.
package value

import (
	"fmt"
	"strconv"
	"unicode/utf16"
)

// Kind is the dynamic type of a Value.
type Kind uint8

const (
	KindUndefined Kind = iota
	KindNull
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is an immutable dynamic value. The zero Value is undefined.
//
// Arrays and objects are held by pointer so that strict equality compares identity,
// as it does in JavaScript.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	arr  *array
	obj  *Object
}

type array struct {
	elems []Value
}

var (
	Undefined = Value{}
	Null      = Value{kind: KindNull}
	True      = Value{kind: KindBool, b: true}
	False     = Value{kind: KindBool}
)

// Bool returns a boolean value.
func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

// Number returns a numeric value.
func Number(f float64) Value { return Value{kind: KindNumber, n: f} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Array returns a new array value holding elems. The slice is not copied.
func Array(elems ...Value) Value {
	return Value{kind: KindArray, arr: &array{elems: elems}}
}

// FromObject wraps an object. A nil object becomes an empty one.
func FromObject(o *Object) Value {
	if o == nil {
		o = NewObject()
	}
	return Value{kind: KindObject, obj: o}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsUndefined() bool { return v.kind == KindUndefined }

// IsNullish reports whether v is null or undefined.
func (v Value) IsNullish() bool { return v.kind == KindUndefined || v.kind == KindNull }

// Bool returns the boolean payload. It is false for non-boolean values.
func (v Value) Bool() bool { return v.b }

// Num returns the numeric payload. It is zero for non-number values.
func (v Value) Num() float64 { return v.n }

// Str returns the string payload. It is empty for non-string values.
func (v Value) Str() string { return v.s }

// Elems returns the elements of an array value, or nil.
func (v Value) Elems() []Value {
	if v.kind != KindArray {
		return nil
	}
	return v.arr.elems
}

// Object returns the object payload, or nil.
func (v Value) Object() *Object {
	if v.kind != KindObject {
		return nil
	}
	return v.obj
}

// Get reads property key of an object or array. Arrays answer "length" and
// in-range indices. ok is false when the property does not exist.
func (v Value) Get(key string) (Value, bool) {
	switch v.kind {
	case KindObject:
		return v.obj.Get(key)
	case KindArray:
		if key == "length" {
			return Number(float64(len(v.arr.elems))), true
		}
		if i, err := strconv.Atoi(key); err == nil && strconv.Itoa(i) == key && i >= 0 && i < len(v.arr.elems) {
			return v.arr.elems[i], true
		}
	}
	return Undefined, false
}

// GoString renders the value for debugging.
func (v Value) GoString() string {
	switch v.kind {
	case KindString:
		return strconv.Quote(v.s)
	case KindArray, KindObject:
		b, err := v.MarshalJSON()
		if err != nil {
			return fmt.Sprintf("<%s>", v.kind)
		}
		return string(b)
	default:
		return ToString(v)
	}
}

// Object is an insertion-ordered string-keyed map.
//
// Setting an existing key replaces its value in place and keeps its position.
type Object struct {
	keys []string
	vals map[string]Value
}

func NewObject() *Object {
	return &Object{vals: make(map[string]Value)}
}

func (o *Object) Set(key string, v Value) {
	if _, ok := o.vals[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.vals[key] = v
}

func (o *Object) Get(key string) (Value, bool) {
	v, ok := o.vals[key]
	return v, ok
}

func (o *Object) Has(key string) bool {
	_, ok := o.vals[key]
	return ok
}

// Keys returns the keys in insertion order. The caller must not modify the slice.
func (o *Object) Keys() []string { return o.keys }

func (o *Object) Len() int { return len(o.keys) }

// Assign copies the own enumerable entries of src into o, the way Object.assign does:
// object entries, array indices and string indices. Strings are indexed by UTF-16 code
// unit; a lone surrogate half decodes to U+FFFD. Other values contribute nothing.
func (o *Object) Assign(src Value) {
	switch src.kind {
	case KindObject:
		for _, k := range src.obj.keys {
			o.Set(k, src.obj.vals[k])
		}
	case KindArray:
		for i, e := range src.arr.elems {
			o.Set(strconv.Itoa(i), e)
		}
	case KindString:
		for i, u := range utf16.Encode([]rune(src.s)) {
			o.Set(strconv.Itoa(i), String(string(rune(u))))
		}
	}
}

// Without returns a copy of o that omits the given keys.
func (o *Object) Without(omit map[string]bool) *Object {
	out := NewObject()
	for _, k := range o.keys {
		if omit[k] {
			continue
		}
		out.Set(k, o.vals[k])
	}
	return out
}
