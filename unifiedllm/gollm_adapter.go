package unifiedllm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// GollmAdapter serves the hosted vendors reached through gollm (Mistral,
// Groq, Cohere, DeepSeek). gollm returns only generated text, so usage is
// reported as zero.
type GollmAdapter struct {
	provider ProviderIdentity
	model    string
	llm      gollm.LLM

	// defaults are the construction-time sampling settings. Every call sets
	// each option to the request value or to its default, so one request's
	// settings never carry into the next.
	defaults gollmSettings

	// mu serializes per-request SetOption calls with the Generate they apply to.
	mu        sync.Mutex
	generate  func(ctx context.Context, prompt *gollm.Prompt) (string, error)
	setOption func(key string, value interface{})
}

// GollmAdapterOption configures a GollmAdapter.
type GollmAdapterOption func(*gollmAdapterConfig)

type gollmAdapterConfig struct {
	gollmSettings
	extraOpts []gollm.ConfigOption
}

type gollmSettings struct {
	maxTokens   int
	temperature float64
	topP        float64
}

func defaultGollmSettings() gollmSettings {
	return gollmSettings{maxTokens: 1000, temperature: 0.7, topP: 1.0}
}

// WithMaxTokens sets the default max tokens.
func WithMaxTokens(n int) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.maxTokens = n
	}
}

// WithTemperature sets the default temperature.
func WithTemperature(t float64) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.temperature = t
	}
}

// WithGollmOptions adds extra gollm configuration options.
func WithGollmOptions(opts ...gollm.ConfigOption) GollmAdapterOption {
	return func(c *gollmAdapterConfig) {
		c.extraOpts = append(c.extraOpts, opts...)
	}
}

// NewGollmAdapter creates an adapter for provider bound to model.
func NewGollmAdapter(provider ProviderIdentity, apiKey, model string, opts ...GollmAdapterOption) (*GollmAdapter, error) {
	cfg := &gollmAdapterConfig{gollmSettings: defaultGollmSettings()}
	for _, opt := range opts {
		opt(cfg)
	}
	if model == "" {
		model = DefaultModel(provider)
	}

	gollmOpts := []gollm.ConfigOption{
		gollm.SetProvider(string(provider)),
		gollm.SetModel(gollmModelName(provider, model)),
		gollm.SetMaxTokens(cfg.maxTokens),
		gollm.SetTemperature(cfg.temperature),
		gollm.SetMaxRetries(0),
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if apiKey != "" {
		gollmOpts = append(gollmOpts, gollm.SetAPIKey(apiKey))
	}
	gollmOpts = append(gollmOpts, cfg.extraOpts...)

	llm, err := gollm.NewLLM(gollmOpts...)
	if err != nil {
		return nil, fmt.Errorf("create gollm LLM for provider %s: %w", provider, err)
	}
	a := NewGollmAdapterFromLLM(provider, model, llm)
	a.defaults = cfg.gollmSettings
	return a, nil
}

// NewGollmAdapterFromLLM wraps an existing gollm.LLM instance. Requests that
// omit a sampling setting use max_tokens 1000, temperature 0.7 and top_p 1.
func NewGollmAdapterFromLLM(provider ProviderIdentity, model string, llm gollm.LLM) *GollmAdapter {
	return &GollmAdapter{
		provider: provider,
		model:    model,
		llm:      llm,
		defaults: defaultGollmSettings(),
		generate: func(ctx context.Context, prompt *gollm.Prompt) (string, error) {
			return llm.Generate(ctx, prompt)
		},
		setOption: llm.SetOption,
	}
}

// gollmModelName strips the routing prefix gollm does not expect.
func gollmModelName(provider ProviderIdentity, model string) string {
	if provider == ProviderGroq {
		return strings.TrimPrefix(model, "groq/")
	}
	return model
}

// Provider returns the vendor identity.
func (a *GollmAdapter) Provider() ProviderIdentity { return a.provider }

// Model returns the bound model id.
func (a *GollmAdapter) Model() string { return a.model }

// Native returns the gollm.LLM.
func (a *GollmAdapter) Native() interface{} { return a.llm }

// CreateChatCompletion flattens the conversation into a gollm prompt and
// generates one completion.
func (a *GollmAdapter) CreateChatCompletion(ctx context.Context, req Request) (*Response, error) {
	schema, err := compileFormat(req.ResponseFormat)
	if err != nil {
		return nil, err
	}
	messages := req.Messages
	if schema != nil {
		messages = withStructuredInstruction(messages, schema.format)
	}
	prompt := a.translateRequest(req, messages)
	model := resolveModel(req.Model, a.model)

	a.mu.Lock()
	a.applyRequestOptions(req, model)
	text, err := a.generate(ctx, prompt)
	a.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var toolCalls []ToolCall
	if len(req.Tools) > 0 {
		toolCalls = parseToolCalls(text)
		text = removeToolCallJSON(text, toolCalls)
	}
	return normalizeText(text, toolCalls, a.provider, model, schema), nil
}

// ListModels returns the catalog models for this vendor; gollm has no model
// listing call.
func (a *GollmAdapter) ListModels(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries := CatalogModels(a.provider)
	ids := make([]string, 0, len(entries))
	for _, m := range entries {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// translateRequest converts the conversation into a gollm Prompt.
func (a *GollmAdapter) translateRequest(req Request, messages []Message) *gollm.Prompt {
	var systemParts []string
	var userParts []string

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			systemParts = append(systemParts, msg.Content)
		case RoleUser:
			userParts = append(userParts, msg.Content)
		case RoleAssistant:
			if msg.Content != "" {
				userParts = append(userParts, "[Assistant]: "+msg.Content)
			}
			for _, tc := range msg.ToolCalls {
				userParts = append(userParts, fmt.Sprintf("[Tool Call %s]: %s(%s)", tc.ID, tc.Name, tc.Arguments))
			}
		case RoleTool:
			userParts = append(userParts, "[Tool Result]: "+msg.Content)
		}
	}

	promptText := strings.Join(userParts, "\n")
	promptOpts := []gollm.PromptOption{}

	if len(systemParts) > 0 {
		promptOpts = append(promptOpts, gollm.WithSystemPrompt(strings.Join(systemParts, "\n\n"), gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens != nil {
		promptOpts = append(promptOpts, gollm.WithMaxLength(*req.MaxTokens))
	}

	if len(req.Tools) > 0 && req.ToolChoice != ToolChoiceNone {
		tools := make([]gollm.Tool, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, gollm.Tool{
				Type: "function",
				Function: gollm.Function{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  toolParameters(t),
				},
			})
		}
		promptOpts = append(promptOpts, gollm.WithTools(tools))
		if req.ToolChoice != "" {
			promptOpts = append(promptOpts, gollm.WithToolChoice(req.ToolChoice))
		}
	}

	return gollm.NewPrompt(promptText, promptOpts...)
}

// applyRequestOptions sets every per-request option on the shared gollm LLM,
// falling back to the adapter defaults for settings the request omits.
func (a *GollmAdapter) applyRequestOptions(req Request, model string) {
	d := a.defaults
	temperature, topP, maxTokens := d.temperature, d.topP, d.maxTokens
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	if req.TopP != nil {
		topP = *req.TopP
	}
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	stop := []string{}
	if len(req.Stop) > 0 {
		stop = req.Stop
	}

	a.setOption("model", gollmModelName(a.provider, model))
	a.setOption("temperature", temperature)
	a.setOption("top_p", topP)
	a.setOption("max_tokens", maxTokens)
	a.setOption("stop", stop)
}

// parseToolCalls extracts tool calls that gollm returns embedded in text as
// {"tool_calls": [...]} or a bare [{"name": ...}] array.
func parseToolCalls(text string) []ToolCall {
	type rawCall struct {
		ID        string          `json:"id"`
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
		Function  *struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		} `json:"function"`
	}

	var raw []rawCall
	if start := strings.Index(text, `{"tool_calls"`); start >= 0 {
		var wrapper struct {
			ToolCalls []rawCall `json:"tool_calls"`
		}
		if err := json.NewDecoder(strings.NewReader(text[start:])).Decode(&wrapper); err == nil {
			raw = wrapper.ToolCalls
		}
	} else if start := strings.Index(text, `[{"name"`); start >= 0 {
		_ = json.NewDecoder(strings.NewReader(text[start:])).Decode(&raw)
	}

	calls := make([]ToolCall, 0, len(raw))
	for _, rc := range raw {
		name, args := rc.Name, rc.Arguments
		if rc.Function != nil {
			name, args = rc.Function.Name, rc.Function.Arguments
		}
		if name == "" {
			continue
		}
		id := rc.ID
		if id == "" {
			id = "call_" + uuid.New().String()[:8]
		}
		calls = append(calls, ToolCall{ID: id, Type: "function", Name: name, Arguments: toolArguments(args)})
	}
	return calls
}

// toolArguments accepts arguments encoded either as a JSON object or as a
// string holding one.
func toolArguments(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// removeToolCallJSON drops the tool call payload from the text.
func removeToolCallJSON(text string, calls []ToolCall) string {
	if len(calls) == 0 {
		return text
	}
	result := text
	for _, pattern := range []string{`{"tool_calls"`, `[{"name"`} {
		if idx := strings.Index(result, pattern); idx != -1 {
			result = strings.TrimSpace(result[:idx])
		}
	}
	return result
}
