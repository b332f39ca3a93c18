// Package schema validates manifests against the embedded envelope and
// per-category facts schemas.
//
// Issue codes:
//
//	MF-1xx  envelope (stage 1)
//	MF-2xx  facts (stage 2)
//
// The last two digits name the violated constraint: 00 schema, 01 required,
// 02 unknown property, 03 type, 04 enum, 05 string shape, 06 range,
// 07 format, 08 slug mismatch.
package schema

import (
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/zackproser/portfolio-sub002/manifest"
	"github.com/zackproser/portfolio-sub002/pointer"
	"github.com/zackproser/portfolio-sub002/value"
)

// CodeSlugMismatch marks a manifest whose slug differs from the key it was
// read under.
const CodeSlugMismatch = "MF-108"

//go:embed schemas/*.json
var schemaFS embed.FS

var (
	global     *Registry
	globalOnce sync.Once
)

// Global returns the registry compiled from the embedded schemas. The
// schemas ship with the binary, so a compile failure panics.
func Global() *Registry {
	globalOnce.Do(func() {
		r, err := New()
		if err != nil {
			panic(fmt.Sprintf("schema: compiling embedded schemas: %v", err))
		}
		global = r
	})
	return global
}

// compiled pairs a schema document with its resolved validator.
type compiled struct {
	name     string
	schema   *jsonschema.Schema
	resolved *jsonschema.Resolved
}

// Registry holds the compiled envelope and facts schemas. It is immutable
// and safe for concurrent use.
type Registry struct {
	envelope        compiled
	llmAPI          compiled
	vectorDB        compiled
	codingAssistant compiled
	aiFramework     compiled
}

// New compiles the embedded schemas.
func New() (*Registry, error) {
	var (
		r   Registry
		err error
	)
	targets := []struct {
		file string
		dst  *compiled
	}{
		{"envelope.json", &r.envelope},
		{"llm_api.json", &r.llmAPI},
		{"vector_db.json", &r.vectorDB},
		{"coding_assistant.json", &r.codingAssistant},
		{"ai_framework.json", &r.aiFramework},
	}
	for _, t := range targets {
		if *t.dst, err = compileFile(t.file); err != nil {
			return nil, err
		}
	}
	return &r, nil
}

func compileFile(file string) (compiled, error) {
	data, err := schemaFS.ReadFile("schemas/" + file)
	if err != nil {
		return compiled{}, fmt.Errorf("reading schema %s: %w", file, err)
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return compiled{}, fmt.Errorf("parsing schema %s: %w", file, err)
	}
	resolved, err := s.Resolve(nil)
	if err != nil {
		return compiled{}, fmt.Errorf("resolving schema %s: %w", file, err)
	}
	return compiled{name: file, schema: &s, resolved: resolved}, nil
}

// Envelope returns the envelope schema document.
func (r *Registry) Envelope() *jsonschema.Schema {
	return r.envelope.schema
}

// FactsSchema returns the facts schema document for category.
func (r *Registry) FactsSchema(category manifest.Category) (*jsonschema.Schema, error) {
	c, err := r.facts(category)
	if err != nil {
		return nil, err
	}
	return c.schema, nil
}

func (r *Registry) facts(category manifest.Category) (*compiled, error) {
	switch category {
	case manifest.CategoryLLMAPI:
		return &r.llmAPI, nil
	case manifest.CategoryVectorDB:
		return &r.vectorDB, nil
	case manifest.CategoryCodingAssistant:
		return &r.codingAssistant, nil
	case manifest.CategoryAIFramework:
		return &r.aiFramework, nil
	default:
		return nil, fmt.Errorf("no facts schema for category %q", category)
	}
}

// ValidateEnvelope checks the whole document against the envelope schema.
// The facts subtree is only required to be an object here.
func (r *Registry) ValidateEnvelope(slug string, doc value.Value) error {
	issues := validate(&r.envelope, doc, nil, envelopeCodes)
	if len(issues) == 0 {
		return nil
	}
	return &manifest.SchemaError{Slug: slug, Stage: manifest.StageEnvelope, Issues: issues}
}

// ValidateFacts checks the facts subtree against the schema for category.
func (r *Registry) ValidateFacts(slug string, category manifest.Category, facts value.Value) error {
	c, err := r.facts(category)
	if err != nil {
		return &manifest.SchemaError{
			Slug:     slug,
			Stage:    manifest.StageFacts,
			Category: category,
			Issues:   []manifest.Issue{{Code: factsCodes.code(codeSchema), Path: "/facts", Message: err.Error()}},
		}
	}
	issues := validate(c, facts, pointer.Pointer{"facts"}, factsCodes)
	if len(issues) == 0 {
		return nil
	}
	return &manifest.SchemaError{Slug: slug, Stage: manifest.StageFacts, Category: category, Issues: issues}
}

// validate runs the resolved validator and the diagnostic walk. The walk
// yields located issues and enforces formats the validator only annotates;
// the validator's verdict is kept when the walk finds nothing.
func validate(c *compiled, v value.Value, at pointer.Pointer, codes codeSet) []manifest.Issue {
	ck := &checker{root: c.schema, codes: codes}
	ck.check(c.schema, v, at)
	if len(ck.issues) > 0 {
		return ck.issues
	}
	if err := c.resolved.Validate(value.Plain(v)); err != nil {
		return []manifest.Issue{{
			Code:    codes.code(codeSchema),
			Path:    at.String(),
			Message: fmt.Sprintf("%s: %v", c.name, err),
			Line:    posOf(v).Line,
		}}
	}
	return nil
}

func posOf(v value.Value) value.Position {
	if v == nil {
		return value.Position{}
	}
	return v.Pos()
}
