package unifiedllm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	// DefaultAnthropicMaxTokens is sent when the request sets no limit; the
	// Messages API requires one.
	DefaultAnthropicMaxTokens = 1000

	structuredToolName        = "build_result"
	structuredToolDescription = "Return the final answer as structured data matching the input schema."
)

// MessagesAPI is the part of the Anthropic SDK the adapter uses.
type MessagesAPI interface {
	CreateMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error)
	ListModels(ctx context.Context) ([]string, error)
}

// anthropicSDK adapts anthropic.Client to MessagesAPI.
type anthropicSDK struct {
	client anthropic.Client
}

func (s *anthropicSDK) CreateMessage(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	return s.client.Messages.New(ctx, params)
}

func (s *anthropicSDK) ListModels(ctx context.Context) ([]string, error) {
	page, err := s.client.Models.List(ctx, anthropic.ModelListParams{})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// AnthropicAdapter talks to the Anthropic Messages API.
type AnthropicAdapter struct {
	api    MessagesAPI
	model  string
	models modelCache
}

// AnthropicAdapterOption configures an AnthropicAdapter.
type AnthropicAdapterOption func(*anthropicAdapterConfig)

type anthropicAdapterConfig struct {
	api         MessagesAPI
	requestOpts []option.RequestOption
}

// WithMessagesAPI replaces the Anthropic SDK client, mostly for tests.
func WithMessagesAPI(api MessagesAPI) AnthropicAdapterOption {
	return func(c *anthropicAdapterConfig) {
		c.api = api
	}
}

// WithAnthropicRequestOptions adds SDK request options such as a base URL.
func WithAnthropicRequestOptions(opts ...option.RequestOption) AnthropicAdapterOption {
	return func(c *anthropicAdapterConfig) {
		c.requestOpts = append(c.requestOpts, opts...)
	}
}

// NewAnthropicAdapter creates an adapter bound to model. SDK-level retries
// are disabled; fallback is the router's job.
func NewAnthropicAdapter(apiKey, model string, opts ...AnthropicAdapterOption) *AnthropicAdapter {
	cfg := &anthropicAdapterConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if model == "" {
		model = DefaultModel(ProviderAnthropic)
	}
	api := cfg.api
	if api == nil {
		reqOpts := append([]option.RequestOption{
			option.WithAPIKey(apiKey),
			option.WithMaxRetries(0),
		}, cfg.requestOpts...)
		api = &anthropicSDK{client: anthropic.NewClient(reqOpts...)}
	}
	return &AnthropicAdapter{api: api, model: model}
}

// Provider returns ProviderAnthropic.
func (a *AnthropicAdapter) Provider() ProviderIdentity { return ProviderAnthropic }

// Model returns the bound model id.
func (a *AnthropicAdapter) Model() string { return a.model }

// Native returns the *anthropic.Client, or the injected MessagesAPI.
func (a *AnthropicAdapter) Native() interface{} {
	if sdk, ok := a.api.(*anthropicSDK); ok {
		return &sdk.client
	}
	return a.api
}

// CreateChatCompletion sends one Messages API request.
func (a *AnthropicAdapter) CreateChatCompletion(ctx context.Context, req Request) (*Response, error) {
	schema, err := compileFormat(req.ResponseFormat)
	if err != nil {
		return nil, err
	}
	params := a.translateRequest(req, schema)
	msg, err := a.api.CreateMessage(ctx, params)
	if err != nil {
		return nil, err
	}
	return normalizeAnthropic(msg, string(params.Model), schema), nil
}

// ListModels returns the model ids Anthropic reports, cached after the first
// success.
func (a *AnthropicAdapter) ListModels(ctx context.Context) ([]string, error) {
	if ids, ok := a.models.get(); ok {
		return ids, nil
	}
	ids, err := a.api.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	a.models.set(ids)
	return ids, nil
}

func (a *AnthropicAdapter) translateRequest(req Request, schema *outputSchema) anthropic.MessageNewParams {
	messages := req.Messages
	if schema != nil {
		messages = withStructuredInstruction(messages, schema.format)
	}
	system, turns := translateAnthropicMessages(messages)

	maxTokens := int64(DefaultAnthropicMaxTokens)
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		maxTokens = int64(*req.MaxTokens)
	}
	params := anthropic.MessageNewParams{
		Model:         anthropic.Model(resolveModel(req.Model, a.model)),
		MaxTokens:     maxTokens,
		Messages:      turns,
		StopSequences: req.Stop,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = anthropic.Float(*req.TopP)
	}

	if req.ToolChoice != ToolChoiceNone {
		for _, t := range req.Tools {
			params.Tools = append(params.Tools, anthropicTool(t.Name, t.Description, toolParameters(t)))
		}
		switch req.ToolChoice {
		case "":
		case ToolChoiceAuto:
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
		case ToolChoiceRequired:
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
		default:
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: req.ToolChoice}}
		}
	}

	if schema != nil && schema.format.Type == ResponseFormatJSONSchema {
		params.Tools = append(params.Tools, anthropicTool(structuredToolName, structuredToolDescription, schema.format.Schema))
		params.ToolChoice = anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: structuredToolName}}
	}
	return params
}

// translateAnthropicMessages splits out the system prompt and converts the
// remaining turns. Consecutive turns with the same role are merged, since
// the Messages API requires alternation. Tool results travel as user turns.
func translateAnthropicMessages(messages []Message) (string, []anthropic.MessageParam) {
	var systemParts []string
	var turns []anthropic.MessageParam

	for _, m := range messages {
		var role anthropic.MessageParamRole
		var blocks []anthropic.ContentBlockParamUnion

		switch m.Role {
		case RoleSystem:
			if strings.TrimSpace(m.Content) != "" {
				systemParts = append(systemParts, m.Content)
			}
			continue
		case RoleTool:
			role = anthropic.MessageParamRoleUser
			blocks = append(blocks, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false))
		case RoleAssistant:
			role = anthropic.MessageParamRoleAssistant
			if m.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				args := tc.Arguments
				if strings.TrimSpace(args) == "" {
					args = "{}"
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, json.RawMessage(args), tc.Name))
			}
		default:
			role = anthropic.MessageParamRoleUser
			blocks = append(blocks, anthropic.NewTextBlock(m.Content))
		}

		if len(blocks) == 0 {
			continue
		}
		if n := len(turns); n > 0 && turns[n-1].Role == role {
			turns[n-1].Content = append(turns[n-1].Content, blocks...)
			continue
		}
		turns = append(turns, anthropic.MessageParam{Role: role, Content: blocks})
	}
	return strings.Join(systemParts, "\n\n"), turns
}

// anthropicTool converts a JSON Schema object into a tool definition.
func anthropicTool(name, description string, schema map[string]interface{}) anthropic.ToolUnionParam {
	input := anthropic.ToolInputSchemaParam{Properties: schema["properties"]}
	switch req := schema["required"].(type) {
	case []string:
		input.Required = req
	case []interface{}:
		for _, r := range req {
			if s, ok := r.(string); ok {
				input.Required = append(input.Required, s)
			}
		}
	}
	for k, v := range schema {
		switch k {
		case "type", "properties", "required":
			continue
		}
		if input.ExtraFields == nil {
			input.ExtraFields = map[string]interface{}{}
		}
		input.ExtraFields[k] = v
	}

	tool := anthropic.ToolParam{Name: name, InputSchema: input}
	if description != "" {
		tool.Description = anthropic.String(description)
	}
	return anthropic.ToolUnionParam{OfTool: &tool}
}
