// Package audit validates whole manifest collections and keeps a history of
// the outcomes.
package audit

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zackproser/portfolio-sub002/coverage"
	"github.com/zackproser/portfolio-sub002/manifest"
)

// Result is the outcome of validating one manifest.
type Result struct {
	Slug       string                 `json:"slug"`
	Category   manifest.Category      `json:"category,omitempty"`
	Kind       manifest.FailureKind   `json:"kind,omitempty"`
	NotFound   bool                   `json:"not_found,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Issues     []manifest.Issue       `json:"issues,omitempty"`
	Missing    []coverage.MissingFact `json:"missing,omitempty"`
	Facts      int                    `json:"facts,omitempty"`
	DurationMS int64                  `json:"duration_ms"`
}

// OK reports whether the manifest was valid.
func (r Result) OK() bool {
	return r.Kind == manifest.KindNone
}

// NewResult summarises one load outcome.
func NewResult(slug string, m *manifest.Manifest, err error, d time.Duration) Result {
	res := Result{
		Slug:       slug,
		Kind:       manifest.KindOf(err),
		DurationMS: d.Milliseconds(),
	}
	if m != nil {
		res.Category = m.Category
		res.Facts = len(coverage.Enumerate(m.Raw, coverage.FactsRoot))
	}
	if err == nil {
		return res
	}

	res.Error = err.Error()
	var (
		pe  *manifest.ProviderError
		se  *manifest.SchemaError
		mpe *manifest.MissingProvenanceError
	)
	switch {
	case errors.As(err, &pe):
		res.NotFound = pe.NotFound
	case errors.As(err, &se):
		res.Category = se.Category
		res.Issues = se.Issues
	case errors.As(err, &mpe):
		res.Missing = mpe.Missing
	}
	return res
}

// Report is the outcome of one audit run.
type Report struct {
	RunID      string            `json:"run_id"`
	Category   manifest.Category `json:"category,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Results    []Result          `json:"results"`
}

// OK reports whether every manifest was valid.
func (r *Report) OK() bool {
	for _, res := range r.Results {
		if !res.OK() {
			return false
		}
	}
	return true
}

// Failed returns the invalid results in slug order.
func (r *Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.OK() {
			out = append(out, res)
		}
	}
	return out
}

// Counts tallies results by failure kind.
func (r *Report) Counts() Counts {
	c := Counts{Total: len(r.Results), ByKind: map[manifest.FailureKind]int{}}
	for _, res := range r.Results {
		if res.OK() {
			c.Valid++
			continue
		}
		c.ByKind[res.Kind]++
	}
	return c
}

// Counts is a per-kind tally of an audit run.
type Counts struct {
	Total  int                          `json:"total"`
	Valid  int                          `json:"valid"`
	ByKind map[manifest.FailureKind]int `json:"by_kind"`
}

// Invalid is the number of manifests that failed.
func (c Counts) Invalid() int {
	return c.Total - c.Valid
}

// Summary renders the counts as "2 valid, 1 schema error, 3 provenance errors".
func (c Counts) Summary() string {
	parts := []string{fmt.Sprintf("%d valid", c.Valid)}
	kinds := append(manifest.FailureKinds(), manifest.KindOther)
	for _, kind := range kinds {
		n := c.ByKind[kind]
		if n == 0 {
			continue
		}
		noun := "error"
		if n != 1 {
			noun = "errors"
		}
		parts = append(parts, fmt.Sprintf("%d %s %s", n, kind, noun))
	}
	return strings.Join(parts, ", ")
}
