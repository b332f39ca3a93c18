package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Facts is the category-typed payload of a manifest. The set of
// implementations is closed: one per Category.
type Facts interface {
	Category() Category
	isFacts()
}

// SDKLanguage is a language an SDK is published for.
type SDKLanguage string

// SDKSet lists official and community SDKs.
type SDKSet struct {
	Official  []SDKLanguage `json:"official"`
	Community []SDKLanguage `json:"community,omitempty"`
}

// LLMAPIFacts describes a hosted large language model API.
type LLMAPIFacts struct {
	Vendor string     `json:"vendor"`
	Auth   LLMAuth    `json:"auth"`
	Models []LLMModel `json:"models"`
	SDKs   SDKSet     `json:"sdks"`
}

// LLMAuth describes how requests to the API authenticate.
type LLMAuth struct {
	Scheme  string `json:"scheme"`
	Header  string `json:"header,omitempty"`
	BaseURL string `json:"base_url,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

// LLMModel is one model offered by an LLM API.
type LLMModel struct {
	Name             string        `json:"name"`
	Modality         []string      `json:"modality"`
	Supports         ModelSupports `json:"supports"`
	Pricing          *ModelPricing `json:"pricing,omitempty"`
	ContextTokensMax *int          `json:"context_tokens_max,omitempty"`
	RateLimits       *RateLimits   `json:"rate_limits,omitempty"`
	Availability     string        `json:"availability"`
	Notes            string        `json:"notes,omitempty"`
}

// ModelSupports flags optional model capabilities. Nil means unknown.
type ModelSupports struct {
	Streaming            *bool `json:"streaming,omitempty"`
	ToolsFunctionCalling *bool `json:"tools_function_calling,omitempty"`
	JSONMode             *bool `json:"json_mode,omitempty"`
	SystemPrompt         *bool `json:"system_prompt,omitempty"`
	Vision               *bool `json:"vision,omitempty"`
}

// ModelPricing is in the given currency per 1k tokens.
type ModelPricing struct {
	InputPer1K       float64  `json:"input_per_1k"`
	OutputPer1K      float64  `json:"output_per_1k"`
	CachedInputPer1K *float64 `json:"cached_input_per_1k,omitempty"`
	Currency         string   `json:"currency,omitempty"`
	Notes            string   `json:"notes,omitempty"`
}

// RateLimits are published request and token limits.
type RateLimits struct {
	RPM   *int   `json:"rpm,omitempty"`
	TPM   *int   `json:"tpm,omitempty"`
	RPD   *int   `json:"rpd,omitempty"`
	Burst *int   `json:"burst,omitempty"`
	Notes string `json:"notes,omitempty"`
}

// VectorDBFacts describes a vector database.
type VectorDBFacts struct {
	Deployment      []string        `json:"deployment"`
	OpenSource      *bool           `json:"open_source,omitempty"`
	License         string          `json:"license,omitempty"`
	IndexTypes      []string        `json:"index_types"`
	DistanceMetrics []string        `json:"distance_metrics"`
	Limits          *VectorDBLimits `json:"limits,omitempty"`
	Pricing         *HostedPricing  `json:"pricing,omitempty"`
	SDKs            SDKSet          `json:"sdks"`
}

// VectorDBLimits are documented capacity limits.
type VectorDBLimits struct {
	MaxDimensions    *int   `json:"max_dimensions,omitempty"`
	MaxVectors       *int   `json:"max_vectors,omitempty"`
	MaxMetadataBytes *int   `json:"max_metadata_bytes,omitempty"`
	Notes            string `json:"notes,omitempty"`
}

// HostedPricing summarises the managed offering's price.
type HostedPricing struct {
	FreeTier            *bool    `json:"free_tier,omitempty"`
	StartingUSDPerMonth *float64 `json:"starting_usd_per_month,omitempty"`
	Notes               string   `json:"notes,omitempty"`
}

// CodingAssistantFacts describes an AI coding assistant product.
type CodingAssistantFacts struct {
	Vendor   string            `json:"vendor"`
	IDEs     []string          `json:"ides"`
	Models   []string          `json:"models,omitempty"`
	Features AssistantFeatures `json:"features"`
	Plans    []Plan            `json:"plans"`
	Privacy  *Privacy          `json:"privacy,omitempty"`
}

// AssistantFeatures flags assistant capabilities. Nil means unknown.
type AssistantFeatures struct {
	Autocomplete    *bool `json:"autocomplete,omitempty"`
	Chat            *bool `json:"chat,omitempty"`
	AgentMode       *bool `json:"agent_mode,omitempty"`
	CodebaseContext *bool `json:"codebase_context,omitempty"`
	CodeReview      *bool `json:"code_review,omitempty"`
}

// Plan is one subscription tier.
type Plan struct {
	Name        string  `json:"name"`
	USDPerMonth float64 `json:"usd_per_month"`
	Billing     string  `json:"billing,omitempty"`
	Notes       string  `json:"notes,omitempty"`
}

// Privacy covers code retention and self-hosting.
type Privacy struct {
	CodeRetention string `json:"code_retention,omitempty"`
	SelfHosted    *bool  `json:"self_hosted,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

// AIFrameworkFacts describes an application framework for building on LLMs.
type AIFrameworkFacts struct {
	Languages    []SDKLanguage     `json:"languages"`
	License      string            `json:"license"`
	Repo         *FrameworkRepo    `json:"repo,omitempty"`
	Features     FrameworkFeatures `json:"features"`
	Integrations *Integrations     `json:"integrations,omitempty"`
	Adoption     *Adoption         `json:"adoption,omitempty"`
}

// FrameworkRepo points at the framework's source repository.
type FrameworkRepo struct {
	URL   string `json:"url"`
	Stars *int   `json:"stars,omitempty"`
}

// FrameworkFeatures flags framework capabilities. Nil means unknown.
type FrameworkFeatures struct {
	Agents        *bool `json:"agents,omitempty"`
	RAG           *bool `json:"rag,omitempty"`
	ToolCalling   *bool `json:"tool_calling,omitempty"`
	Streaming     *bool `json:"streaming,omitempty"`
	MultiAgent    *bool `json:"multi_agent,omitempty"`
	Observability *bool `json:"observability,omitempty"`
}

// Integrations lists supported providers and stores.
type Integrations struct {
	LLMProviders []string `json:"llm_providers,omitempty"`
	VectorStores []string `json:"vector_stores,omitempty"`
}

// Adoption is a rough measure of community uptake.
type Adoption struct {
	GitHubStars *int   `json:"github_stars,omitempty"`
	Community   string `json:"community,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

func (LLMAPIFacts) Category() Category          { return CategoryLLMAPI }
func (VectorDBFacts) Category() Category        { return CategoryVectorDB }
func (CodingAssistantFacts) Category() Category { return CategoryCodingAssistant }
func (AIFrameworkFacts) Category() Category     { return CategoryAIFramework }

func (LLMAPIFacts) isFacts()          {}
func (VectorDBFacts) isFacts()        {}
func (CodingAssistantFacts) isFacts() {}
func (AIFrameworkFacts) isFacts()     {}

// DecodeFacts decodes a JSON facts payload into the type for category.
// Unknown fields are rejected.
func DecodeFacts(category Category, data []byte) (Facts, error) {
	switch category {
	case CategoryLLMAPI:
		return decodeStrict[LLMAPIFacts](data)
	case CategoryVectorDB:
		return decodeStrict[VectorDBFacts](data)
	case CategoryCodingAssistant:
		return decodeStrict[CodingAssistantFacts](data)
	case CategoryAIFramework:
		return decodeStrict[AIFrameworkFacts](data)
	default:
		return nil, fmt.Errorf("no facts type for category %q", category)
	}
}

func decodeStrict[F Facts](data []byte) (Facts, error) {
	var facts F
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&facts); err != nil {
		return nil, fmt.Errorf("decoding %s facts: %w", facts.Category(), err)
	}
	return facts, nil
}
