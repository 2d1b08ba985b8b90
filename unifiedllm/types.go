package unifiedllm

import (
	"encoding/json"
	"strings"
)

// Role identifies who produced a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the four roles every provider understands.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// Message is one turn of the conversation in the OpenAI-style shape callers
// already know. Providers with a different schema translate from it.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// SystemMessage creates a system Message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: text}
}

// UserMessage creates a user Message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: text}
}

// AssistantMessage creates an assistant Message.
func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: text}
}

// ToolResultMessage creates a tool Message answering the call toolCallID.
func ToolResultMessage(toolCallID, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: toolCallID}
}

// Tool defines a function the model may call.
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters"` // JSON Schema
}

// ToolCall is a model-initiated tool invocation. Arguments holds the raw JSON
// text of the call arguments.
type ToolCall struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// DecodeArguments unmarshals the call arguments into v.
func (tc ToolCall) DecodeArguments(v interface{}) error {
	args := tc.Arguments
	if strings.TrimSpace(args) == "" {
		args = "{}"
	}
	return json.Unmarshal([]byte(args), v)
}

// Tool choice modes. Any other value names the single tool the model must call.
const (
	ToolChoiceAuto     = "auto"
	ToolChoiceNone     = "none"
	ToolChoiceRequired = "required"
)

// ResponseFormatType selects how the model output should be shaped.
type ResponseFormatType string

const (
	ResponseFormatText       ResponseFormatType = "text"
	ResponseFormatJSONObject ResponseFormatType = "json_object"
	ResponseFormatJSONSchema ResponseFormatType = "json_schema"
)

// ResponseFormat requests structured output. For json_schema, Schema holds the
// JSON Schema the decoded value must satisfy.
type ResponseFormat struct {
	Type   ResponseFormatType     `json:"type" yaml:"type"`
	Name   string                 `json:"name,omitempty" yaml:"name,omitempty"`
	Schema map[string]interface{} `json:"schema,omitempty" yaml:"schema,omitempty"`
	Strict bool                   `json:"strict,omitempty" yaml:"strict,omitempty"`
}

// JSONSchemaFormat returns a json_schema ResponseFormat.
func JSONSchemaFormat(name string, schema map[string]interface{}) *ResponseFormat {
	return &ResponseFormat{Type: ResponseFormatJSONSchema, Name: name, Schema: schema}
}

// JSONObjectFormat returns a ResponseFormat accepting any JSON object.
func JSONObjectFormat() *ResponseFormat {
	return &ResponseFormat{Type: ResponseFormatJSONObject}
}

// structured reports whether the format asks for parsed output at all.
func (f *ResponseFormat) structured() bool {
	return f != nil && f.Type != "" && f.Type != ResponseFormatText
}

// Request is the unified chat-completion request.
type Request struct {
	Model          string          `json:"model,omitempty"`
	Messages       []Message       `json:"messages"`
	MaxTokens      *int            `json:"max_tokens,omitempty"`
	Temperature    *float64        `json:"temperature,omitempty"`
	TopP           *float64        `json:"top_p,omitempty"`
	Stop           []string        `json:"stop,omitempty"`
	Tools          []Tool          `json:"tools,omitempty"`
	ToolChoice     string          `json:"tool_choice,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// Int returns a pointer to v, for optional request fields.
func Int(v int) *int { return &v }

// Float64 returns a pointer to v, for optional request fields.
func Float64(v float64) *float64 { return &v }

// ChoiceMessage is the message of one response choice. Content is nil when the
// provider returned no text (for example a pure tool-call turn). Parsed is set
// only for structured-output calls whose text decoded and validated.
type ChoiceMessage struct {
	Role      Role        `json:"role"`
	Content   *string     `json:"content"`
	Parsed    interface{} `json:"parsed,omitempty"`
	ToolCalls []ToolCall  `json:"tool_calls"`
}

// Text returns the message content, or "" when there is none.
func (m ChoiceMessage) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// Choice is one candidate completion.
type Choice struct {
	Index        int           `json:"index"`
	Message      ChoiceMessage `json:"message"`
	FinishReason string        `json:"finish_reason,omitempty"`
}

// Usage tracks token consumption. All counters are non-negative and default
// to zero when a provider does not report them.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add returns a new Usage that is the sum of u and other.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
	}
}

// Response is the normalized chat completion returned by every provider.
// Native holds the provider's own response object, untouched.
type Response struct {
	ID       string           `json:"id"`
	Object   string           `json:"object"`
	Model    string           `json:"model"`
	Provider ProviderIdentity `json:"provider"`
	Choices  []Choice         `json:"choices"`
	Usage    Usage            `json:"usage"`
	Native   interface{}      `json:"-"`
}

// Message returns the message of the first choice.
func (r *Response) Message() ChoiceMessage {
	if r == nil || len(r.Choices) == 0 {
		return ChoiceMessage{}
	}
	return r.Choices[0].Message
}

// Text returns the content of the first choice.
func (r *Response) Text() string {
	return r.Message().Text()
}

// Parsed returns the structured value of the first choice, or nil.
func (r *Response) Parsed() interface{} {
	return r.Message().Parsed
}

// ToolCalls returns the tool calls of the first choice.
func (r *Response) ToolCalls() []ToolCall {
	return r.Message().ToolCalls
}
