package unifiedllm

import (
	"context"
	"strings"
	"sync"
)

// ProviderIdentity names the vendor family an adapter talks to.
type ProviderIdentity string

const (
	ProviderOpenAI    ProviderIdentity = "openai"
	ProviderAnthropic ProviderIdentity = "anthropic"
	ProviderLocal     ProviderIdentity = "local"
	ProviderMistral   ProviderIdentity = "mistral"
	ProviderGroq      ProviderIdentity = "groq"
	ProviderCohere    ProviderIdentity = "cohere"
	ProviderDeepSeek  ProviderIdentity = "deepseek"
)

// LocalSpecifier is the model specifier that selects the local
// OpenAI-compatible server.
const LocalSpecifier = "local"

// InferProvider derives the provider identity from a model specifier.
// Names nothing else claims are treated as OpenAI models.
func InferProvider(specifier string) ProviderIdentity {
	s := strings.ToLower(strings.TrimSpace(specifier))
	switch {
	case s == LocalSpecifier:
		return ProviderLocal
	case strings.HasPrefix(s, "claude"):
		return ProviderAnthropic
	case strings.HasPrefix(s, "mistral-"), strings.HasPrefix(s, "open-mistral"), strings.HasPrefix(s, "codestral"):
		return ProviderMistral
	case strings.HasPrefix(s, "groq/"):
		return ProviderGroq
	case strings.HasPrefix(s, "command"):
		return ProviderCohere
	case strings.HasPrefix(s, "deepseek-"):
		return ProviderDeepSeek
	}
	if info := GetModelInfo(s); info != nil {
		return info.Provider
	}
	return ProviderOpenAI
}

// Adapter is the interface every provider backend implements. Adapters
// return vendor errors unmodified and never retry on their own.
type Adapter interface {
	// Provider returns the vendor family this adapter talks to.
	Provider() ProviderIdentity

	// Model returns the model id the adapter was bound to at construction.
	Model() string

	// CreateChatCompletion sends one blocking chat request.
	CreateChatCompletion(ctx context.Context, req Request) (*Response, error)

	// ListModels returns the model ids the vendor reports.
	ListModels(ctx context.Context) ([]string, error)

	// Native returns the underlying vendor client for callers that need
	// vendor-specific features.
	Native() interface{}
}

// Closer is implemented by adapters that hold resources. The built-in
// adapters hold none; adapters returned by a Config.NewAdapter factory may
// implement it to be released by Client.Close.
type Closer interface {
	Close() error
}

// resolveModel maps the request model onto the adapter's bound model.
// Sentinels resolve to the bound model; any other name passes through.
func resolveModel(requested, bound string) string {
	switch strings.TrimSpace(requested) {
	case "", "auto", LocalSpecifier:
		return bound
	}
	return requested
}

// modelCache holds a vendor model list after the first successful query.
type modelCache struct {
	mu  sync.Mutex
	ids []string
}

func (c *modelCache) get() ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ids == nil {
		return nil, false
	}
	return append([]string(nil), c.ids...), true
}

func (c *modelCache) set(ids []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(make([]string, 0, len(ids)), ids...)
}
