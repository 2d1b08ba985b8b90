package unifiedllm

import (
	"context"
	"encoding/json"
	"regexp"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultLocalBaseURL is where a local OpenAI-compatible server is
	// expected when no base URL is configured.
	DefaultLocalBaseURL = "http://localhost:8000/v1"
	// DefaultLocalAPIKey is sent to local servers that ignore authentication.
	DefaultLocalAPIKey = "EMPTY"
	// DefaultLocalModel is used when a reachable local server lists no models.
	DefaultLocalModel = "gpt-3.5-turbo"
)

// ChatCompletionAPI is the part of the go-openai client the OpenAI-compatible
// adapters use. *openai.Client satisfies it.
type ChatCompletionAPI interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	ListModels(ctx context.Context) (openai.ModelsList, error)
}

// OpenAIAdapter talks to the OpenAI Chat Completions API or to any server
// that speaks it. The Local variant differs only in identity, in how its
// model is chosen and in emulating structured output.
type OpenAIAdapter struct {
	provider ProviderIdentity
	api      ChatCompletionAPI
	model    string
	models   modelCache
}

// OpenAIAdapterOption configures an OpenAIAdapter.
type OpenAIAdapterOption func(*openaiAdapterConfig)

type openaiAdapterConfig struct {
	baseURL string
	api     ChatCompletionAPI
}

// WithBaseURL points the adapter at a different OpenAI-compatible endpoint.
func WithBaseURL(url string) OpenAIAdapterOption {
	return func(c *openaiAdapterConfig) {
		c.baseURL = url
	}
}

// WithChatCompletionAPI replaces the go-openai client, mostly for tests.
func WithChatCompletionAPI(api ChatCompletionAPI) OpenAIAdapterOption {
	return func(c *openaiAdapterConfig) {
		c.api = api
	}
}

func newOpenAICompatible(provider ProviderIdentity, apiKey, model string, opts []OpenAIAdapterOption) *OpenAIAdapter {
	cfg := &openaiAdapterConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	api := cfg.api
	if api == nil {
		clientCfg := openai.DefaultConfig(apiKey)
		if cfg.baseURL != "" {
			clientCfg.BaseURL = cfg.baseURL
		}
		api = openai.NewClientWithConfig(clientCfg)
	}
	return &OpenAIAdapter{
		provider: provider,
		api:      api,
		model:    model,
	}
}

// nativeSchema reports whether model takes a json_schema response_format.
// Hosted OpenAI models do unless the catalog says otherwise; local servers
// never do.
func (a *OpenAIAdapter) nativeSchema(model string) bool {
	if a.provider != ProviderOpenAI {
		return false
	}
	if info := GetModelInfo(model); info != nil {
		return info.SupportsJSONSchema
	}
	return true
}

// NewOpenAIAdapter creates an adapter for the hosted OpenAI API bound to
// model.
func NewOpenAIAdapter(apiKey, model string, opts ...OpenAIAdapterOption) *OpenAIAdapter {
	if model == "" {
		model = DefaultModel(ProviderOpenAI)
	}
	return newOpenAICompatible(ProviderOpenAI, apiKey, model, opts)
}

// NewLocalAdapter creates an adapter for a local OpenAI-compatible server
// and detects its model by listing the server's models. An unreachable
// server is reported as an error.
func NewLocalAdapter(ctx context.Context, baseURL, apiKey string, opts ...OpenAIAdapterOption) (*OpenAIAdapter, error) {
	if baseURL == "" {
		baseURL = DefaultLocalBaseURL
	}
	if apiKey == "" {
		apiKey = DefaultLocalAPIKey
	}
	opts = append([]OpenAIAdapterOption{WithBaseURL(baseURL)}, opts...)
	a := newOpenAICompatible(ProviderLocal, apiKey, "", opts)

	ids, err := a.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	a.model = DefaultLocalModel
	if len(ids) > 0 {
		a.model = ids[0]
	}
	return a, nil
}

// Provider returns the adapter identity.
func (a *OpenAIAdapter) Provider() ProviderIdentity { return a.provider }

// Model returns the bound model id.
func (a *OpenAIAdapter) Model() string { return a.model }

// Native returns the go-openai client.
func (a *OpenAIAdapter) Native() interface{} { return a.api }

// CreateChatCompletion sends one Chat Completions request.
func (a *OpenAIAdapter) CreateChatCompletion(ctx context.Context, req Request) (*Response, error) {
	schema, err := compileFormat(req.ResponseFormat)
	if err != nil {
		return nil, err
	}
	wire := a.translateRequest(req, schema)
	resp, err := a.api.CreateChatCompletion(ctx, wire)
	if err != nil {
		return nil, err
	}
	return normalizeOpenAI(resp, a.provider, wire.Model, schema), nil
}

// ListModels returns the ids the server reports, cached after the first
// success.
func (a *OpenAIAdapter) ListModels(ctx context.Context) ([]string, error) {
	if ids, ok := a.models.get(); ok {
		return ids, nil
	}
	list, err := a.api.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		ids = append(ids, m.ID)
	}
	a.models.set(ids)
	return ids, nil
}

func (a *OpenAIAdapter) translateRequest(req Request, schema *outputSchema) openai.ChatCompletionRequest {
	model := resolveModel(req.Model, a.model)
	native := a.nativeSchema(model)
	messages := req.Messages
	if schema != nil && !native {
		messages = withStructuredInstruction(messages, schema.format)
	}

	out := openai.ChatCompletionRequest{
		Model:    model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
		Stop:     req.Stop,
	}
	for _, m := range messages {
		out.Messages = append(out.Messages, translateOpenAIMessage(m))
	}
	if req.MaxTokens != nil {
		out.MaxTokens = *req.MaxTokens
	}
	if req.Temperature != nil {
		out.Temperature = float32(*req.Temperature)
	}
	if req.TopP != nil {
		out.TopP = float32(*req.TopP)
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  toolParameters(t),
			},
		})
	}
	switch req.ToolChoice {
	case "":
	case ToolChoiceAuto, ToolChoiceNone, ToolChoiceRequired:
		out.ToolChoice = req.ToolChoice
	default:
		out.ToolChoice = openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: req.ToolChoice},
		}
	}

	if schema != nil {
		out.ResponseFormat = responseFormat(schema.format, native)
	}
	return out
}

var schemaNamePattern = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

func responseFormat(f *ResponseFormat, native bool) *openai.ChatCompletionResponseFormat {
	if !native || f.Type != ResponseFormatJSONSchema {
		return &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	name := schemaNamePattern.ReplaceAllString(f.Name, "_")
	if name == "" {
		name = "response"
	}
	raw, _ := json.Marshal(f.Schema)
	return &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
		JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
			Name:   name,
			Schema: json.RawMessage(raw),
			Strict: f.Strict,
		},
	}
}

func translateOpenAIMessage(m Message) openai.ChatCompletionMessage {
	out := openai.ChatCompletionMessage{
		Role:       string(m.Role),
		Content:    m.Content,
		Name:       m.Name,
		ToolCallID: m.ToolCallID,
	}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
			ID:   tc.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      tc.Name,
				Arguments: tc.Arguments,
			},
		})
	}
	return out
}

// toolParameters defaults a missing parameter schema to an empty object.
func toolParameters(t Tool) map[string]interface{} {
	if len(t.Parameters) == 0 {
		return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	return t.Parameters
}
