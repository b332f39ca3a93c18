// Package value holds a parsed, ordered view of a manifest document.
//
// A Value is one of Null, Bool, Number, String, Array or Object. Objects keep
// their fields in document order and every node remembers where it came from
// in the source text, so error reports can point at the exact line.
package value

import (
	"fmt"
	"strconv"

	"github.com/zackproser/portfolio-sub002/pointer"
)

// Kind names the variant of a Value.
type Kind string

// Kinds of Value.
const (
	KindNull   Kind = "null"
	KindBool   Kind = "bool"
	KindNumber Kind = "number"
	KindString Kind = "string"
	KindArray  Kind = "array"
	KindObject Kind = "object"
)

// Position is a 1-based location in the source document. Zero means unknown.
type Position struct {
	Line   int
	Column int
}

// Value is the closed set of document node types.
type Value interface {
	Kind() Kind
	Pos() Position
	sealed()
}

// Null is an explicit null or an empty value.
type Null struct{ At Position }

// Bool is a boolean scalar.
type Bool struct {
	V  bool
	At Position
}

// Number is any numeric scalar. Integers are held as float64.
type Number struct {
	V  float64
	At Position
}

// String is a text scalar, including timestamps kept as written.
type String struct {
	V  string
	At Position
}

// Array is an ordered sequence.
type Array struct {
	Items []Value
	At    Position
}

// Field is one key/value pair of an Object.
type Field struct {
	Key   string
	Value Value
}

// Object is a mapping with fields in document order.
type Object struct {
	Fields []Field
	At     Position
}

func (Null) Kind() Kind   { return KindNull }
func (Bool) Kind() Kind   { return KindBool }
func (Number) Kind() Kind { return KindNumber }
func (String) Kind() Kind { return KindString }
func (Array) Kind() Kind  { return KindArray }
func (Object) Kind() Kind { return KindObject }

func (v Null) Pos() Position   { return v.At }
func (v Bool) Pos() Position   { return v.At }
func (v Number) Pos() Position { return v.At }
func (v String) Pos() Position { return v.At }
func (v Array) Pos() Position  { return v.At }
func (v Object) Pos() Position { return v.At }

func (Null) sealed()   {}
func (Bool) sealed()   {}
func (Number) sealed() {}
func (String) sealed() {}
func (Array) sealed()  {}
func (Object) sealed() {}

// Get returns the value of key, if present.
func (o Object) Get(key string) (Value, bool) {
	for _, f := range o.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// Keys returns the field names in document order.
func (o Object) Keys() []string {
	keys := make([]string, len(o.Fields))
	for i, f := range o.Fields {
		keys[i] = f.Key
	}
	return keys
}

// IsNull reports whether v is absent or an explicit null.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// Plain converts v into the generic form produced by encoding/json:
// map[string]any, []any, float64, string, bool and nil.
func Plain(v Value) any {
	switch n := v.(type) {
	case nil, Null:
		return nil
	case Bool:
		return n.V
	case Number:
		return n.V
	case String:
		return n.V
	case Array:
		out := make([]any, len(n.Items))
		for i, item := range n.Items {
			out[i] = Plain(item)
		}
		return out
	case Object:
		out := make(map[string]any, len(n.Fields))
		for _, f := range n.Fields {
			out[f.Key] = Plain(f.Value)
		}
		return out
	default:
		panic(fmt.Sprintf("value: unhandled variant %T", v))
	}
}

// Lookup resolves p against v. It reports false when any token fails to
// address an existing node.
func Lookup(v Value, p pointer.Pointer) (Value, bool) {
	cur := v
	for _, tok := range p {
		switch n := cur.(type) {
		case Object:
			next, ok := n.Get(tok)
			if !ok {
				return nil, false
			}
			cur = next
		case Array:
			if !pointer.IsIndex(tok) {
				return nil, false
			}
			i, err := strconv.Atoi(tok)
			if err != nil || i >= len(n.Items) {
				return nil, false
			}
			cur = n.Items[i]
		default:
			return nil, false
		}
	}
	return cur, cur != nil
}
