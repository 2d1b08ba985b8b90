package unifiedllm

// ModelInfo describes a known model in the catalog.
type ModelInfo struct {
	ID                   string           `json:"id"`
	Provider             ProviderIdentity `json:"provider"`
	DisplayName          string           `json:"display_name"`
	ContextWindow        int              `json:"context_window"`
	MaxOutput            *int             `json:"max_output,omitempty"`
	SupportsTools        bool             `json:"supports_tools"`
	SupportsJSONSchema   bool             `json:"supports_json_schema"`
	InputCostPerMillion  *float64         `json:"input_cost_per_million,omitempty"`
	OutputCostPerMillion *float64         `json:"output_cost_per_million,omitempty"`
	Aliases              []string         `json:"aliases,omitempty"`
}

// Catalog is the built-in model catalog. Within a provider, the first entry
// is that provider's default model.
var Catalog = []ModelInfo{
	// OpenAI
	{
		ID: "gpt-4o-mini", Provider: ProviderOpenAI, DisplayName: "GPT-4o mini",
		ContextWindow: 128000, MaxOutput: Int(16384),
		SupportsTools: true, SupportsJSONSchema: true,
		InputCostPerMillion: Float64(0.15), OutputCostPerMillion: Float64(0.60),
		Aliases: []string{"4o-mini"},
	},
	{
		ID: "gpt-4o", Provider: ProviderOpenAI, DisplayName: "GPT-4o",
		ContextWindow: 128000, MaxOutput: Int(16384),
		SupportsTools: true, SupportsJSONSchema: true,
		InputCostPerMillion: Float64(2.50), OutputCostPerMillion: Float64(10.0),
		Aliases: []string{"4o"},
	},
	{
		ID: "gpt-3.5-turbo", Provider: ProviderOpenAI, DisplayName: "GPT-3.5 Turbo",
		ContextWindow: 16385, MaxOutput: Int(4096),
		SupportsTools: true,
		InputCostPerMillion: Float64(0.50), OutputCostPerMillion: Float64(1.50),
	},

	// Anthropic
	{
		ID: "claude-3-haiku-20240307", Provider: ProviderAnthropic, DisplayName: "Claude 3 Haiku",
		ContextWindow: 200000, MaxOutput: Int(4096),
		SupportsTools: true,
		InputCostPerMillion: Float64(0.25), OutputCostPerMillion: Float64(1.25),
		Aliases: []string{"haiku"},
	},
	{
		ID: "claude-3-5-sonnet-latest", Provider: ProviderAnthropic, DisplayName: "Claude 3.5 Sonnet",
		ContextWindow: 200000, MaxOutput: Int(8192),
		SupportsTools: true,
		InputCostPerMillion: Float64(3.0), OutputCostPerMillion: Float64(15.0),
		Aliases: []string{"sonnet"},
	},

	// Mistral
	{
		ID: "mistral-small-latest", Provider: ProviderMistral, DisplayName: "Mistral Small",
		ContextWindow: 32000, SupportsTools: true,
		InputCostPerMillion: Float64(0.20), OutputCostPerMillion: Float64(0.60),
	},
	{
		ID: "mistral-large-latest", Provider: ProviderMistral, DisplayName: "Mistral Large",
		ContextWindow: 128000, SupportsTools: true,
		InputCostPerMillion: Float64(2.0), OutputCostPerMillion: Float64(6.0),
	},

	// Groq
	{
		ID: "groq/llama-3.1-8b-instant", Provider: ProviderGroq, DisplayName: "Llama 3.1 8B (Groq)",
		ContextWindow: 131072, SupportsTools: true,
		Aliases: []string{"llama-3.1-8b-instant"},
	},
	{
		ID: "groq/llama-3.3-70b-versatile", Provider: ProviderGroq, DisplayName: "Llama 3.3 70B (Groq)",
		ContextWindow: 131072, SupportsTools: true,
		Aliases: []string{"llama-3.3-70b-versatile"},
	},

	// Cohere
	{
		ID: "command-r", Provider: ProviderCohere, DisplayName: "Command R",
		ContextWindow: 128000, SupportsTools: true,
	},
	{
		ID: "command-r-plus", Provider: ProviderCohere, DisplayName: "Command R+",
		ContextWindow: 128000, SupportsTools: true,
	},

	// DeepSeek
	{
		ID: "deepseek-chat", Provider: ProviderDeepSeek, DisplayName: "DeepSeek Chat",
		ContextWindow: 64000, SupportsTools: true,
	},
}

// GetModelInfo returns the catalog entry for a model, or nil if unknown.
func GetModelInfo(modelID string) *ModelInfo {
	for i := range Catalog {
		if Catalog[i].ID == modelID {
			return &Catalog[i]
		}
		for _, alias := range Catalog[i].Aliases {
			if alias == modelID {
				return &Catalog[i]
			}
		}
	}
	return nil
}

// CatalogModels returns all known models, optionally filtered by provider.
func CatalogModels(provider ProviderIdentity) []ModelInfo {
	if provider == "" {
		result := make([]ModelInfo, len(Catalog))
		copy(result, Catalog)
		return result
	}
	var result []ModelInfo
	for _, m := range Catalog {
		if m.Provider == provider {
			result = append(result, m)
		}
	}
	return result
}

// DefaultModel returns the default model id for a provider, or "" if the
// catalog has none.
func DefaultModel(provider ProviderIdentity) string {
	for i := range Catalog {
		if Catalog[i].Provider == provider {
			return Catalog[i].ID
		}
	}
	return ""
}
