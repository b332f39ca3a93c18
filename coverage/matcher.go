package coverage

import (
	"github.com/zackproser/portfolio-sub002/pointer"
)

// Rule identifies how a leaf was matched to a citation.
type Rule string

const (
	RuleNone          Rule = ""
	RuleExact         Rule = "exact"
	RuleArrayElement  Rule = "array_element"
	RuleOptionalField Rule = "optional_field"
)

// optionalFields are commentary attached to an already cited parent fact
// rather than independently sourced facts.
var optionalFields = map[string]bool{
	"notes":     true,
	"community": true,
	"burst":     true,
}

// IsOptionalField reports whether key is covered by its parent's citation.
func IsOptionalField(key string) bool {
	return optionalFields[key]
}

// Match is the outcome of matching one leaf.
type Match struct {
	Rule     Rule
	Citation pointer.Pointer // the cited path that covers the leaf
}

// Matcher matches leaf paths against a set of cited paths.
type Matcher struct {
	cited map[string]struct{}
}

// NewMatcher builds a matcher over provenance paths. Paths are normalised
// through pointer.Parse; unparseable paths can never match and are ignored.
func NewMatcher(paths []string) *Matcher {
	m := &Matcher{cited: make(map[string]struct{}, len(paths))}
	for _, raw := range paths {
		p, err := pointer.Parse(raw)
		if err != nil {
			continue
		}
		m.cited[p.String()] = struct{}{}
	}
	return m
}

func (m *Matcher) has(p pointer.Pointer) bool {
	_, ok := m.cited[p.String()]
	return ok
}

// Covered reports whether leaf has a citation under any rule.
func (m *Matcher) Covered(leaf pointer.Pointer) bool {
	return m.Match(leaf).Rule != RuleNone
}

// Match applies the rules in priority order; the first that matches wins.
//
//  1. exact: the leaf itself is cited.
//  2. array element: the leaf sits inside an array and either the array
//     (when the index is the final token) or the enclosing element (when the
//     index is an ancestor token) is cited. The deepest index is tried first.
//  3. optional field: the leaf's field key, ignoring trailing indexes, is
//     one of notes/community/burst and the object holding it is cited.
func (m *Matcher) Match(leaf pointer.Pointer) Match {
	if m.has(leaf) {
		return Match{Rule: RuleExact, Citation: leaf}
	}

	for i := len(leaf) - 1; i >= 0; i-- {
		if !pointer.IsIndex(leaf[i]) {
			continue
		}
		if i == len(leaf)-1 {
			if array := leaf[:i]; m.has(array) {
				return Match{Rule: RuleArrayElement, Citation: array}
			}
			continue
		}
		if element := leaf[:i+1]; m.has(element) {
			return Match{Rule: RuleArrayElement, Citation: element}
		}
	}

	key := len(leaf) - 1
	for key >= 0 && pointer.IsIndex(leaf[key]) {
		key--
	}
	if key > 0 && IsOptionalField(leaf[key]) {
		if parent := leaf[:key]; m.has(parent) {
			return Match{Rule: RuleOptionalField, Citation: parent}
		}
	}

	return Match{Rule: RuleNone}
}
