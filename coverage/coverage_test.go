package coverage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zackproser/portfolio-sub002/pointer"
	"github.com/zackproser/portfolio-sub002/value"
)

const openAIFacts = `
vendor: openai
auth: { scheme: bearer, header: Authorization, base_url: https://api.openai.com }
models:
  - name: gpt-4o
    modality: [text]
    supports: { streaming: true, tools_function_calling: true, json_mode: true, system_prompt: true }
    pricing: { input_per_1k: 0.0025, output_per_1k: 0.01 }
    availability: ga
sdks: { official: [python, javascript] }
`

func mustFacts(t *testing.T, doc string) value.Value {
	t.Helper()
	v, err := value.Parse([]byte(doc))
	require.NoError(t, err)
	return v
}

func paths(ps []pointer.Pointer) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.String()
	}
	return out
}

func TestEnumerate_DocumentOrder(t *testing.T) {
	got := paths(Enumerate(mustFacts(t, openAIFacts), FactsRoot))
	want := []string{
		"/facts/vendor",
		"/facts/auth/scheme",
		"/facts/auth/header",
		"/facts/auth/base_url",
		"/facts/models/0/name",
		"/facts/models/0/modality/0",
		"/facts/models/0/supports/streaming",
		"/facts/models/0/supports/tools_function_calling",
		"/facts/models/0/supports/json_mode",
		"/facts/models/0/supports/system_prompt",
		"/facts/models/0/pricing/input_per_1k",
		"/facts/models/0/pricing/output_per_1k",
		"/facts/models/0/availability",
		"/facts/sdks/official/0",
		"/facts/sdks/official/1",
	}
	assert.Equal(t, want, got)
}

func TestEnumerate_ScalarsAndNulls(t *testing.T) {
	base := pointer.MustParse("/facts/x")

	assert.Equal(t, []string{"/facts/x"}, paths(Enumerate(value.String{V: "a"}, base)))
	assert.Equal(t, []string{"/facts/x"}, paths(Enumerate(value.Bool{V: false}, base)))
	assert.Equal(t, []string{"/facts/x"}, paths(Enumerate(value.Number{V: 0}, base)))
	assert.Empty(t, Enumerate(value.Null{}, base))
	assert.Empty(t, Enumerate(nil, base))
	assert.Empty(t, Enumerate(value.Object{}, base))
	assert.Empty(t, Enumerate(value.Array{}, base))
}

func TestEnumerate_NeverEmitsComposites(t *testing.T) {
	facts := mustFacts(t, `
a: { b: { c: 1 }, d: [ { e: 2 }, [3, 4], null ] }
f: []
g: {}
h: ~
`)
	got := paths(Enumerate(facts, FactsRoot))
	assert.Equal(t, []string{"/facts/a/b/c", "/facts/a/d/0/e", "/facts/a/d/1/0", "/facts/a/d/1/1"}, got)

	seen := map[string]bool{}
	for _, p := range got {
		assert.False(t, seen[p], "path %s emitted twice", p)
		seen[p] = true

		v, ok := value.Lookup(facts, pointer.MustParse(p)[1:])
		require.True(t, ok, "path %s does not resolve", p)
		switch v.(type) {
		case value.Object, value.Array, value.Null:
			t.Errorf("path %s addresses a %s", p, v.Kind())
		}
	}
}

func TestEnumerate_EscapesKeys(t *testing.T) {
	facts := mustFacts(t, `{ "a/b": { "c~d": 1 } }`)
	got := Enumerate(facts, FactsRoot)
	require.Len(t, got, 1)
	assert.Equal(t, "/facts/a~1b/c~0d", got[0].String())

	back, err := pointer.Parse(got[0].String())
	require.NoError(t, err)
	assert.Equal(t, pointer.Pointer{"facts", "a/b", "c~d"}, back)
}

func TestMatcher_Rules(t *testing.T) {
	m := NewMatcher([]string{
		"/facts/vendor",
		"/facts/models/0",
		"/facts/sdks/official",
		"/facts/models/1/rate_limits",
		"/facts/sdks",
		"/facts/a~1b",
	})

	tests := []struct {
		leaf     string
		rule     Rule
		citation string
	}{
		{leaf: "/facts/vendor", rule: RuleExact, citation: "/facts/vendor"},
		{leaf: "/facts/a~1b", rule: RuleExact, citation: "/facts/a~1b"},
		{leaf: "/facts/models/0/name", rule: RuleArrayElement, citation: "/facts/models/0"},
		{leaf: "/facts/models/0/modality/0", rule: RuleArrayElement, citation: "/facts/models/0"},
		{leaf: "/facts/models/0/pricing/input_per_1k", rule: RuleArrayElement, citation: "/facts/models/0"},
		{leaf: "/facts/sdks/official/1", rule: RuleArrayElement, citation: "/facts/sdks/official"},
		{leaf: "/facts/models/1/rate_limits/notes", rule: RuleOptionalField, citation: "/facts/models/1/rate_limits"},
		{leaf: "/facts/models/1/rate_limits/burst", rule: RuleOptionalField, citation: "/facts/models/1/rate_limits"},
		{leaf: "/facts/sdks/community/0", rule: RuleOptionalField, citation: "/facts/sdks"},
		{leaf: "/facts/models/1/rate_limits/rpm", rule: RuleNone},
		{leaf: "/facts/models/1/name", rule: RuleNone},
		{leaf: "/facts/auth/scheme", rule: RuleNone},
		{leaf: "/facts/notes", rule: RuleNone},
	}
	for _, tt := range tests {
		t.Run(tt.leaf, func(t *testing.T) {
			got := m.Match(pointer.MustParse(tt.leaf))
			assert.Equal(t, tt.rule, got.Rule)
			if tt.rule == RuleNone {
				assert.False(t, m.Covered(pointer.MustParse(tt.leaf)))
				return
			}
			assert.Equal(t, tt.citation, got.Citation.String())
		})
	}
}

func TestMatcher_ExactWinsOverFallbacks(t *testing.T) {
	m := NewMatcher([]string{"/facts/models/0", "/facts/models/0/name"})
	got := m.Match(pointer.MustParse("/facts/models/0/name"))
	assert.Equal(t, RuleExact, got.Rule)
}

func TestMatcher_DeepestElementFirst(t *testing.T) {
	m := NewMatcher([]string{"/facts/models/0", "/facts/models/0/modality"})
	got := m.Match(pointer.MustParse("/facts/models/0/modality/0"))
	assert.Equal(t, RuleArrayElement, got.Rule)
	assert.Equal(t, "/facts/models/0/modality", got.Citation.String())
}

func TestMatcher_NormalisesCitedPaths(t *testing.T) {
	m := NewMatcher([]string{"/facts/bad~2", "/facts/ok"})
	assert.True(t, m.Covered(pointer.MustParse("/facts/ok")))
	assert.False(t, m.Covered(pointer.Pointer{"facts", "bad~2"}))
}

func fullProvenance(t *testing.T, facts value.Value) []string {
	t.Helper()
	return paths(Enumerate(facts, FactsRoot))
}

func TestEnforce_ExactMatchPasses(t *testing.T) {
	facts := mustFacts(t, openAIFacts)
	require.NoError(t, Enforce("openai-api", facts, fullProvenance(t, facts), Options{}))
}

func TestEnforce_ArrayFallbackPasses(t *testing.T) {
	facts := mustFacts(t, openAIFacts)
	prov := []string{
		"/facts/vendor",
		"/facts/auth/scheme",
		"/facts/auth/header",
		"/facts/auth/base_url",
		"/facts/models/0",
		"/facts/sdks/official",
	}
	require.NoError(t, Enforce("openai-api", facts, prov, Options{}))
}

func TestEnforce_OptionalFieldFallbackPasses(t *testing.T) {
	facts := mustFacts(t, `
models:
  - name: m
    rate_limits: { rpm: 500, notes: "tier 1 accounts" }
`)
	prov := []string{
		"/facts/models/0/name",
		"/facts/models/0/rate_limits/rpm",
		"/facts/models/0/rate_limits",
	}
	require.NoError(t, Enforce("x", facts, prov, Options{}))

	// Without the parent citation the note is uncovered.
	err := Enforce("x", facts, prov[:2], Options{})
	var mpe *MissingProvenanceError
	require.True(t, errors.As(err, &mpe))
	assert.Equal(t, []string{"/facts/models/0/rate_limits/notes"}, mpe.Paths())
}

func TestEnforce_RemovingSoleCitationNamesThatLeaf(t *testing.T) {
	facts := mustFacts(t, openAIFacts)
	all := fullProvenance(t, facts)

	for i, removed := range all {
		prov := append(append([]string{}, all[:i]...), all[i+1:]...)
		err := Enforce("openai-api", facts, prov, Options{})

		var mpe *MissingProvenanceError
		require.True(t, errors.As(err, &mpe), "removing %s", removed)
		assert.Equal(t, []string{removed}, mpe.Paths())
		assert.Equal(t, removed, mpe.Path())
		assert.Greater(t, mpe.Missing[0].Line, 0)
	}
}

func TestEnforce_CollectsAllByDefault(t *testing.T) {
	facts := mustFacts(t, openAIFacts)
	prov := []string{"/facts/vendor", "/facts/models/0"}

	err := Enforce("openai-api", facts, prov, Options{})
	var mpe *MissingProvenanceError
	require.True(t, errors.As(err, &mpe))
	assert.Equal(t, []string{
		"/facts/auth/scheme",
		"/facts/auth/header",
		"/facts/auth/base_url",
		"/facts/sdks/official/0",
		"/facts/sdks/official/1",
	}, mpe.Paths())
	assert.Contains(t, err.Error(), `manifest "openai-api": missing provenance for 5 facts`)

	err = Enforce("openai-api", facts, prov, Options{FailFast: true})
	require.True(t, errors.As(err, &mpe))
	assert.Equal(t, []string{"/facts/auth/scheme"}, mpe.Paths())
	assert.Equal(t, `manifest "openai-api": missing provenance for /facts/auth/scheme`, err.Error())
}

func TestEnforce_EmptyFacts(t *testing.T) {
	assert.NoError(t, Enforce("x", value.Object{}, nil, Options{}))
	assert.NoError(t, Enforce("x", nil, nil, Options{}))
}

func TestCheck_ReportsRulesAndOrphans(t *testing.T) {
	facts := mustFacts(t, `
vendor: openai
models:
  - name: m
    notes: ~
`)
	res := Check(facts, []string{"/facts/vendor", "/facts/models/0", "/facts/models/3", "/facts/models/0/notes", "/facts/x~"})

	assert.True(t, res.Covered())
	require.Len(t, res.Leaves, 2)
	assert.Equal(t, RuleExact, res.Leaves[0].Rule)
	assert.Equal(t, RuleArrayElement, res.Leaves[1].Rule)
	assert.Equal(t, "/facts/models/0", res.Leaves[1].Citation)
	assert.Equal(t, []string{"/facts/models/3", "/facts/models/0/notes", "/facts/x~"}, res.Orphans)
}
