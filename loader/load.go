// Package loader reads manifests from a provider and runs them through the
// validation pipeline: parse, envelope schema, facts schema, provenance
// coverage. A manifest is returned only when every stage passes.
package loader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/zackproser/portfolio-sub002/coverage"
	"github.com/zackproser/portfolio-sub002/manifest"
	"github.com/zackproser/portfolio-sub002/pointer"
	"github.com/zackproser/portfolio-sub002/provider"
	"github.com/zackproser/portfolio-sub002/schema"
	"github.com/zackproser/portfolio-sub002/value"
)

// Loader validates manifests served by a provider. It keeps no cache and is
// safe for concurrent use.
type Loader struct {
	provider provider.Provider
	schemas  *schema.Registry
	logger   *zap.Logger
	observer Observer
	failFast bool
	now      func() time.Time
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger.Named("loader")
		}
	}
}

// WithObserver receives one Observation per load.
func WithObserver(o Observer) Option {
	return func(l *Loader) { l.observer = o }
}

// WithFailFast stops coverage at the first uncovered fact.
func WithFailFast(enabled bool) Option {
	return func(l *Loader) { l.failFast = enabled }
}

// WithSchemas overrides the process-wide schema registry.
func WithSchemas(r *schema.Registry) Option {
	return func(l *Loader) {
		if r != nil {
			l.schemas = r
		}
	}
}

// New creates a loader over p.
func New(p provider.Provider, opts ...Option) *Loader {
	l := &Loader{
		provider: p,
		logger:   zap.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.schemas == nil {
		l.schemas = schema.Global()
	}
	return l
}

// Provider returns the provider manifests are read from.
func (l *Loader) Provider() provider.Provider {
	return l.provider
}

// Load reads and validates the manifest stored under slug. Failures are one
// of *manifest.ProviderError, *manifest.ParseError, *manifest.SchemaError or
// *manifest.MissingProvenanceError.
func (l *Loader) Load(ctx context.Context, slug string) (*manifest.Manifest, error) {
	start := l.now()
	data, err := l.read(ctx, slug)
	var m *manifest.Manifest
	if err == nil {
		m, err = l.validate(slug, data)
	}
	l.observe(ctx, slug, m, start, err)
	return m, err
}

// LoadFile validates a manifest file directly, using its base name as the
// slug.
func (l *Loader) LoadFile(ctx context.Context, path string) (*manifest.Manifest, error) {
	start := l.now()
	slug, ok := provider.SlugFor(path)
	if !ok {
		err := &manifest.ProviderError{Slug: slug, Err: fmt.Errorf("%s is not a manifest file name: %w", path, provider.ErrInvalidSlug)}
		l.observe(ctx, slug, nil, start, err)
		return nil, err
	}

	var m *manifest.Manifest
	data, err := os.ReadFile(path) // #nosec G304 -- path from caller
	if err != nil {
		err = &manifest.ProviderError{Slug: slug, NotFound: errors.Is(err, os.ErrNotExist), Err: fmt.Errorf("reading file %s: %w", path, err)}
	} else {
		m, err = l.validate(slug, data)
	}
	l.observe(ctx, slug, m, start, err)
	return m, err
}

// Validate runs the pipeline on in-memory text. An empty slug skips the
// check that the document's slug matches.
func (l *Loader) Validate(slug string, data []byte) (*manifest.Manifest, error) {
	return l.validate(slug, data)
}

// Coverage reports per-leaf coverage for slug. The envelope and facts
// schemas must pass; uncovered facts are reported, not returned as errors.
func (l *Loader) Coverage(ctx context.Context, slug string) (coverage.Result, error) {
	data, err := l.read(ctx, slug)
	if err != nil {
		return coverage.Result{}, err
	}
	doc, err := l.checkSchemas(slug, data)
	if err != nil {
		return coverage.Result{}, err
	}
	return coverage.Check(doc.facts, doc.provenancePaths()), nil
}

// LoadAs loads slug and narrows it to facts type F. A manifest of another
// category fails with *manifest.SchemaError.
func LoadAs[F manifest.Facts](ctx context.Context, l *Loader, slug string) (*manifest.ToolManifest[F], error) {
	m, err := l.Load(ctx, slug)
	if err != nil {
		return nil, err
	}
	typed, err := manifest.As[F](m)
	if err != nil {
		return nil, &manifest.SchemaError{
			Slug:     slug,
			Stage:    manifest.StageEnvelope,
			Category: m.Category,
			Issues:   []manifest.Issue{{Code: "MF-104", Path: "/category", Message: err.Error()}},
		}
	}
	return typed, nil
}

func (l *Loader) read(ctx context.Context, slug string) ([]byte, error) {
	data, err := l.provider.Read(ctx, slug)
	if err != nil {
		return nil, &manifest.ProviderError{Slug: slug, NotFound: errors.Is(err, provider.ErrNotFound), Err: err}
	}
	return data, nil
}

// document is a manifest that passed both schema stages.
type document struct {
	root     value.Object
	category manifest.Category
	facts    value.Value
	typed    manifest.Facts
}

func (d document) provenancePaths() []string {
	items, _ := d.root.Get("provenance")
	arr, _ := items.(value.Array)
	paths := make([]string, 0, len(arr.Items))
	for _, item := range arr.Items {
		obj, _ := item.(value.Object)
		paths = append(paths, stringField(obj, "path"))
	}
	return paths
}

func (l *Loader) checkSchemas(slug string, data []byte) (document, error) {
	root, err := value.Parse(data)
	if err != nil {
		return document{}, parseError(slug, err)
	}
	if err := l.schemas.ValidateEnvelope(slug, root); err != nil {
		return document{}, err
	}

	obj := root.(value.Object)
	if got := stringField(obj, "slug"); slug != "" && got != slug {
		at, _ := obj.Get("slug")
		return document{}, &manifest.SchemaError{
			Slug:  slug,
			Stage: manifest.StageEnvelope,
			Issues: []manifest.Issue{{
				Code:    schema.CodeSlugMismatch,
				Path:    "/slug",
				Message: fmt.Sprintf("slug %q does not match the requested %q", got, slug),
				Line:    at.Pos().Line,
			}},
		}
	}

	doc := document{root: obj, category: manifest.Category(stringField(obj, "category"))}
	doc.facts, _ = obj.Get("facts")
	if err := l.schemas.ValidateFacts(slug, doc.category, doc.facts); err != nil {
		return document{}, err
	}
	if doc.typed, err = decodeFacts(slug, doc.category, doc.facts); err != nil {
		return document{}, err
	}
	return doc, nil
}

// decodeFacts is the last facts check. It catches values the schema accepts
// but the typed facts cannot hold, such as integers beyond the int range.
func decodeFacts(slug string, category manifest.Category, facts value.Value) (manifest.Facts, error) {
	raw, err := json.Marshal(value.Plain(facts))
	if err != nil {
		return nil, fmt.Errorf("encoding facts of %q: %w", slug, err)
	}
	typed, err := manifest.DecodeFacts(category, raw)
	if err != nil {
		return nil, &manifest.SchemaError{
			Slug:     slug,
			Stage:    manifest.StageFacts,
			Category: category,
			Issues:   []manifest.Issue{{Code: "MF-200", Path: "/facts", Message: err.Error()}},
		}
	}
	return typed, nil
}

func (l *Loader) validate(slug string, data []byte) (*manifest.Manifest, error) {
	doc, err := l.checkSchemas(slug, data)
	if err != nil {
		return nil, err
	}
	if slug == "" {
		slug = stringField(doc.root, "slug")
	}

	paths := doc.provenancePaths()
	if err := coverage.Enforce(slug, doc.facts, paths, coverage.Options{FailFast: l.failFast}); err != nil {
		return nil, err
	}
	if res := coverage.Check(doc.facts, paths); len(res.Orphans) > 0 {
		l.logger.Warn("provenance cites paths with no fact",
			zap.String("slug", slug),
			zap.Strings("paths", res.Orphans),
		)
	}

	return decode(slug, doc)
}

func decode(slug string, doc document) (*manifest.Manifest, error) {
	asOf, err := timeField(doc.root, "as_of")
	if err != nil {
		return nil, envelopeFormatError(slug, "/as_of", err)
	}
	m := &manifest.Manifest{
		SchemaVersion: stringField(doc.root, "schema_version"),
		Slug:          stringField(doc.root, "slug"),
		Name:          stringField(doc.root, "name"),
		Category:      doc.category,
		HomepageURL:   stringField(doc.root, "homepage_url"),
		DocsURL:       stringField(doc.root, "docs_url"),
		GitHubRepo:    stringField(doc.root, "github_repo"),
		AsOf:          asOf,
		Facts:         doc.typed,
		Raw:           doc.facts,
	}

	items, _ := doc.root.Get("provenance")
	arr, _ := items.(value.Array)
	m.Provenance = make([]manifest.ProvenanceItem, 0, len(arr.Items))
	for i, item := range arr.Items {
		obj, _ := item.(value.Object)
		captured, err := timeField(obj, "captured_at")
		if err != nil {
			return nil, envelopeFormatError(slug, pointer.Pointer{"provenance"}.AppendIndex(i).Append("captured_at").String(), err)
		}
		m.Provenance = append(m.Provenance, manifest.ProvenanceItem{
			Path:       stringField(obj, "path"),
			URL:        stringField(obj, "url"),
			Quote:      stringField(obj, "quote"),
			CapturedAt: captured,
		})
	}
	return m, nil
}

func envelopeFormatError(slug, path string, err error) error {
	return &manifest.SchemaError{
		Slug:   slug,
		Stage:  manifest.StageEnvelope,
		Issues: []manifest.Issue{{Code: "MF-107", Path: path, Message: err.Error()}},
	}
}

func parseError(slug string, err error) error {
	var se *value.SyntaxError
	if errors.As(err, &se) {
		return &manifest.ParseError{Slug: slug, Line: se.Line, Column: se.Column, Err: err}
	}
	return &manifest.ParseError{Slug: slug, Err: err}
}

func stringField(obj value.Object, key string) string {
	v, _ := obj.Get(key)
	if s, ok := v.(value.String); ok {
		return s.V
	}
	return ""
}

func timeField(obj value.Object, key string) (time.Time, error) {
	return manifest.ParseTime(stringField(obj, key))
}
