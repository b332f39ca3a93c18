// Package manifest defines tool manifests: typed facts about a third-party
// tool plus the provenance records that cite a source for every fact.
package manifest

import (
	"fmt"
	"strings"
	"time"

	"github.com/zackproser/portfolio-sub002/coverage"
	"github.com/zackproser/portfolio-sub002/pointer"
	"github.com/zackproser/portfolio-sub002/value"
)

// SchemaVersion is the only manifest schema_version accepted.
const SchemaVersion = "1.0"

// Category selects the facts schema of a manifest.
type Category string

const (
	CategoryLLMAPI          Category = "llm_api"
	CategoryVectorDB        Category = "vector_db"
	CategoryCodingAssistant Category = "coding_assistant"
	CategoryAIFramework     Category = "ai_framework"
)

// Categories lists every category in declaration order.
func Categories() []Category {
	return []Category{CategoryLLMAPI, CategoryVectorDB, CategoryCodingAssistant, CategoryAIFramework}
}

// ParseCategory validates and canonicalizes a category string.
func ParseCategory(raw string) (Category, error) {
	c := Category(strings.TrimSpace(raw))
	switch c {
	case CategoryLLMAPI, CategoryVectorDB, CategoryCodingAssistant, CategoryAIFramework:
		return c, nil
	default:
		return "", fmt.Errorf("invalid category %q", raw)
	}
}

// ParseTime parses an RFC 3339 timestamp. A bare date is accepted as
// midnight UTC.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q: want RFC 3339", s)
}

// ProvenanceItem cites the source of the fact at Path.
type ProvenanceItem struct {
	Path       string    `json:"path"`
	URL        string    `json:"url"`
	Quote      string    `json:"quote,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

// ToolManifest is a validated manifest whose facts have type F.
type ToolManifest[F Facts] struct {
	SchemaVersion string           `json:"schema_version"`
	Slug          string           `json:"slug"`
	Name          string           `json:"name"`
	Category      Category         `json:"category"`
	HomepageURL   string           `json:"homepage_url"`
	DocsURL       string           `json:"docs_url,omitempty"`
	GitHubRepo    string           `json:"github_repo,omitempty"`
	AsOf          time.Time        `json:"as_of"`
	Facts         F                `json:"facts"`
	Provenance    []ProvenanceItem `json:"provenance"`

	// Raw is the facts subtree as authored, in document order.
	Raw value.Value `json:"-"`
}

// Manifest is a validated manifest whose facts type is known only at runtime.
type Manifest = ToolManifest[Facts]

// Fact returns the authored value at a /facts path.
func (m *ToolManifest[F]) Fact(path string) (value.Value, bool) {
	p, err := pointer.Parse(path)
	if err != nil || len(p) == 0 || p[0] != "facts" {
		return nil, false
	}
	return value.Lookup(m.Raw, p[1:])
}

// CitationFor returns the provenance item attesting path, applying the same
// fallback rules coverage enforcement uses.
func (m *ToolManifest[F]) CitationFor(path string) (ProvenanceItem, bool) {
	leaf, err := pointer.Parse(path)
	if err != nil {
		return ProvenanceItem{}, false
	}
	paths := make([]string, len(m.Provenance))
	for i, item := range m.Provenance {
		paths[i] = item.Path
	}
	match := coverage.NewMatcher(paths).Match(leaf)
	if match.Rule == coverage.RuleNone {
		return ProvenanceItem{}, false
	}
	cited := match.Citation.String()
	for _, item := range m.Provenance {
		if p, err := pointer.Parse(item.Path); err == nil && p.String() == cited {
			return item, true
		}
	}
	return ProvenanceItem{}, false
}

// As narrows a manifest to a concrete facts type.
func As[F Facts](m *Manifest) (*ToolManifest[F], error) {
	if m == nil {
		return nil, fmt.Errorf("manifest is nil")
	}
	facts, ok := m.Facts.(F)
	if !ok {
		var want F
		return nil, fmt.Errorf("manifest %q has %s facts, not %T", m.Slug, m.Category, want)
	}
	return &ToolManifest[F]{
		SchemaVersion: m.SchemaVersion,
		Slug:          m.Slug,
		Name:          m.Name,
		Category:      m.Category,
		HomepageURL:   m.HomepageURL,
		DocsURL:       m.DocsURL,
		GitHubRepo:    m.GitHubRepo,
		AsOf:          m.AsOf,
		Facts:         facts,
		Provenance:    m.Provenance,
		Raw:           m.Raw,
	}, nil
}
