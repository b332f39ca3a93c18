// Package coverage enforces that every fact in a manifest has a citation.
//
// Enumerate lists the leaf paths of a facts tree, Matcher decides whether a
// leaf is covered by the declared provenance paths, and Enforce combines the
// two into a pass/fail verdict.
package coverage

import (
	"fmt"

	"github.com/zackproser/portfolio-sub002/pointer"
	"github.com/zackproser/portfolio-sub002/value"
)

// Leaf is one scalar fact and where it was written.
type Leaf struct {
	Path pointer.Pointer
	Pos  value.Position
}

// Enumerate returns the path of every scalar below v, each prefixed by base.
// Objects and arrays are never emitted themselves; nulls contribute nothing.
// Order follows the document: object fields as authored, array elements by
// index.
func Enumerate(v value.Value, base pointer.Pointer) []pointer.Pointer {
	leaves := EnumerateLeaves(v, base)
	out := make([]pointer.Pointer, len(leaves))
	for i, l := range leaves {
		out[i] = l.Path
	}
	return out
}

// EnumerateLeaves is Enumerate keeping source positions.
func EnumerateLeaves(v value.Value, base pointer.Pointer) []Leaf {
	var out []Leaf
	walk(v, base, &out)
	return out
}

func walk(v value.Value, at pointer.Pointer, out *[]Leaf) {
	switch n := v.(type) {
	case nil, value.Null:
		return
	case value.Bool, value.Number, value.String:
		*out = append(*out, Leaf{Path: at, Pos: n.Pos()})
	case value.Array:
		for i, item := range n.Items {
			walk(item, at.AppendIndex(i), out)
		}
	case value.Object:
		for _, f := range n.Fields {
			walk(f.Value, at.Append(f.Key), out)
		}
	default:
		panic(fmt.Sprintf("coverage: unhandled value variant %T", v))
	}
}
