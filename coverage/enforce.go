package coverage

import (
	"fmt"
	"strings"

	"github.com/zackproser/portfolio-sub002/pointer"
	"github.com/zackproser/portfolio-sub002/value"
)

// FactsRoot is the pointer every provenance path must start with.
var FactsRoot = pointer.Pointer{"facts"}

// MissingFact is a fact leaf with no covering citation.
type MissingFact struct {
	Path string `json:"path"`
	Line int    `json:"line,omitempty"`
}

// MissingProvenanceError reports fact leaves without a covering citation.
// Missing is never empty and is in document order.
type MissingProvenanceError struct {
	Slug    string
	Missing []MissingFact
}

// Path returns the first uncovered leaf.
func (e *MissingProvenanceError) Path() string {
	if len(e.Missing) == 0 {
		return ""
	}
	return e.Missing[0].Path
}

// Paths returns every uncovered leaf path.
func (e *MissingProvenanceError) Paths() []string {
	out := make([]string, len(e.Missing))
	for i, m := range e.Missing {
		out[i] = m.Path
	}
	return out
}

func (e *MissingProvenanceError) Error() string {
	prefix := "missing provenance"
	if e.Slug != "" {
		prefix = fmt.Sprintf("manifest %q: missing provenance", e.Slug)
	}
	if len(e.Missing) == 1 {
		return fmt.Sprintf("%s for %s", prefix, e.Missing[0].Path)
	}
	return fmt.Sprintf("%s for %d facts: %s", prefix, len(e.Missing), strings.Join(e.Paths(), ", "))
}

// Options tunes Enforce.
type Options struct {
	// FailFast stops at the first uncovered leaf instead of collecting all.
	FailFast bool
}

// LeafResult is the coverage verdict for one leaf.
type LeafResult struct {
	Path     string `json:"path"`
	Line     int    `json:"line,omitempty"`
	Rule     Rule   `json:"rule"`
	Citation string `json:"citation,omitempty"`
}

// Result is a full coverage report for one facts tree.
type Result struct {
	Leaves    []LeafResult `json:"leaves"`
	Uncovered []LeafResult `json:"uncovered"`
	// Orphans are cited paths that address nothing in the facts tree.
	Orphans []string `json:"orphans"`
}

// Covered reports whether every leaf has a citation.
func (r Result) Covered() bool {
	return len(r.Uncovered) == 0
}

// Check classifies every leaf of facts against provenance without failing.
func Check(facts value.Value, provenance []string) Result {
	matcher := NewMatcher(provenance)
	res := Result{
		Leaves:    []LeafResult{},
		Uncovered: []LeafResult{},
		Orphans:   []string{},
	}

	for _, leaf := range EnumerateLeaves(facts, FactsRoot) {
		lr := LeafResult{Path: leaf.Path.String(), Line: leaf.Pos.Line}
		match := matcher.Match(leaf.Path)
		lr.Rule = match.Rule
		if match.Rule != RuleNone {
			lr.Citation = match.Citation.String()
		} else {
			res.Uncovered = append(res.Uncovered, lr)
		}
		res.Leaves = append(res.Leaves, lr)
	}

	for _, raw := range provenance {
		p, err := pointer.Parse(raw)
		if err != nil || !p.HasPrefix(FactsRoot) {
			res.Orphans = append(res.Orphans, raw)
			continue
		}
		if got, ok := value.Lookup(facts, p[1:]); !ok || value.IsNull(got) {
			res.Orphans = append(res.Orphans, raw)
		}
	}

	return res
}

// Enforce fails with *MissingProvenanceError unless every leaf of facts is
// covered by provenance.
func Enforce(slug string, facts value.Value, provenance []string, opts Options) error {
	matcher := NewMatcher(provenance)
	var missing []MissingFact
	for _, leaf := range EnumerateLeaves(facts, FactsRoot) {
		if matcher.Covered(leaf.Path) {
			continue
		}
		missing = append(missing, MissingFact{Path: leaf.Path.String(), Line: leaf.Pos.Line})
		if opts.FailFast {
			break
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingProvenanceError{Slug: slug, Missing: missing}
}
