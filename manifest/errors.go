package manifest

import (
	"errors"
	"fmt"

	"github.com/zackproser/portfolio-sub002/coverage"
)

// ProviderError reports that the manifest source could not be read.
type ProviderError struct {
	Slug     string
	NotFound bool
	Err      error
}

func (e *ProviderError) Error() string {
	if e.NotFound {
		return fmt.Sprintf("manifest %q not found", e.Slug)
	}
	return fmt.Sprintf("reading manifest %q: %v", e.Slug, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ParseError reports text that is not a well-formed document. Err carries
// the position in its message when one is known.
type ParseError struct {
	Slug   string
	Line   int
	Column int
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing manifest %q: %v", e.Slug, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Stage names the validation stage that rejected a manifest.
type Stage string

const (
	StageEnvelope Stage = "envelope"
	StageFacts    Stage = "facts"
)

// Issue is a single schema violation.
type Issue struct {
	Code    string `json:"code"`
	Path    string `json:"path"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

func (i Issue) String() string {
	path := i.Path
	if path == "" {
		path = "/"
	}
	if i.Line > 0 {
		return fmt.Sprintf("[%s] %s (line %d): %s", i.Code, path, i.Line, i.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", i.Code, path, i.Message)
}

// SchemaError reports a manifest that fails the envelope or facts schema.
// Issues is never empty.
type SchemaError struct {
	Slug     string
	Stage    Stage
	Category Category
	Issues   []Issue
}

func (e *SchemaError) Error() string {
	what := string(e.Stage)
	if e.Stage == StageFacts && e.Category != "" {
		what = fmt.Sprintf("%s facts", e.Category)
	}
	switch len(e.Issues) {
	case 0:
		return fmt.Sprintf("manifest %q: invalid %s", e.Slug, what)
	case 1:
		return fmt.Sprintf("manifest %q: invalid %s: %s", e.Slug, what, e.Issues[0])
	default:
		return fmt.Sprintf("manifest %q: invalid %s: %d issues (first: %s)", e.Slug, what, len(e.Issues), e.Issues[0])
	}
}

// MissingProvenanceError reports fact leaves without a covering citation.
type MissingProvenanceError = coverage.MissingProvenanceError

// FailureKind classifies a load failure.
type FailureKind string

const (
	KindNone       FailureKind = ""
	KindProvider   FailureKind = "provider"
	KindParse      FailureKind = "parse"
	KindSchema     FailureKind = "schema"
	KindProvenance FailureKind = "provenance"
	KindOther      FailureKind = "other"
)

// FailureKinds lists every failure kind a load can produce.
func FailureKinds() []FailureKind {
	return []FailureKind{KindProvider, KindParse, KindSchema, KindProvenance}
}

// KindOf classifies err. A nil error is KindNone.
func KindOf(err error) FailureKind {
	if err == nil {
		return KindNone
	}
	var (
		pe  *ProviderError
		ye  *ParseError
		se  *SchemaError
		mpe *MissingProvenanceError
	)
	switch {
	case errors.As(err, &mpe):
		return KindProvenance
	case errors.As(err, &se):
		return KindSchema
	case errors.As(err, &ye):
		return KindParse
	case errors.As(err, &pe):
		return KindProvider
	default:
		return KindOther
	}
}
