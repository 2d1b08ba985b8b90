package unifiedllm

import (
	"encoding/json"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
)

const chatCompletionObject = "chat.completion"

func newResponseID() string {
	return "chatcmpl-" + uuid.New().String()
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// normalizeUsage clamps reported counters. A counter the vendor omitted
// stays 0; the total is taken as reported, never derived.
func normalizeUsage(prompt, completion, total int) Usage {
	return Usage{
		PromptTokens:     nonNegative(prompt),
		CompletionTokens: nonNegative(completion),
		TotalTokens:      nonNegative(total),
	}
}

func stringPtr(s string) *string { return &s }

// emptyChoice keeps the one-choice minimum when a vendor returns none.
func emptyChoice() Choice {
	return Choice{Message: ChoiceMessage{Role: RoleAssistant, ToolCalls: []ToolCall{}}}
}

// normalizeOpenAI converts a Chat Completions response from an OpenAI or
// OpenAI-compatible server.
func normalizeOpenAI(resp openai.ChatCompletionResponse, provider ProviderIdentity, model string, schema *outputSchema) *Response {
	out := &Response{
		ID:       resp.ID,
		Object:   chatCompletionObject,
		Model:    resp.Model,
		Provider: provider,
		Usage:    normalizeUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens),
		Native:   resp,
	}
	if out.ID == "" {
		out.ID = newResponseID()
	}
	if out.Model == "" {
		out.Model = model
	}

	for i, c := range resp.Choices {
		msg := ChoiceMessage{Role: RoleAssistant, ToolCalls: make([]ToolCall, 0, len(c.Message.ToolCalls))}
		if c.Message.Role != "" {
			msg.Role = Role(c.Message.Role)
		}
		for _, tc := range c.Message.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{
				ID:        tc.ID,
				Type:      string(tc.Type),
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		if c.Message.Content != "" || len(msg.ToolCalls) == 0 {
			msg.Content = stringPtr(c.Message.Content)
		}
		if msg.Content != nil {
			msg.Parsed = schema.parse(*msg.Content)
		}
		out.Choices = append(out.Choices, Choice{
			Index:        i,
			Message:      msg,
			FinishReason: string(c.FinishReason),
		})
	}
	if len(out.Choices) == 0 {
		out.Choices = []Choice{emptyChoice()}
	}
	return out
}

// normalizeAnthropic converts a Messages API response. A build_result tool
// call is structured output, not a tool call for the caller.
func normalizeAnthropic(msg *anthropic.Message, model string, schema *outputSchema) *Response {
	out := &Response{
		ID:       msg.ID,
		Object:   chatCompletionObject,
		Model:    string(msg.Model),
		Provider: ProviderAnthropic,
		Native:   msg,
	}
	if out.ID == "" {
		out.ID = newResponseID()
	}
	if out.Model == "" {
		out.Model = model
	}
	input := int(msg.Usage.InputTokens)
	output := int(msg.Usage.OutputTokens)
	out.Usage = normalizeUsage(input, output, nonNegative(input)+nonNegative(output))

	choice := ChoiceMessage{Role: RoleAssistant, ToolCalls: []ToolCall{}}
	var text strings.Builder
	hasText := false
	structuredDone := false

	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
			hasText = true
		case "tool_use":
			args := string(block.Input)
			if args == "" {
				args = "{}"
			}
			if schema != nil && block.Name == structuredToolName && !structuredDone {
				structuredDone = true
				choice.Content = stringPtr(args)
				var value interface{}
				if err := json.Unmarshal(block.Input, &value); err == nil {
					choice.Parsed = schema.check(value)
				}
				continue
			}
			choice.ToolCalls = append(choice.ToolCalls, ToolCall{
				ID:        block.ID,
				Type:      "function",
				Name:      block.Name,
				Arguments: args,
			})
		}
	}
	if !structuredDone && hasText {
		choice.Content = stringPtr(text.String())
		choice.Parsed = schema.parse(text.String())
	}

	finish := anthropicFinishReason(string(msg.StopReason))
	if structuredDone && len(choice.ToolCalls) == 0 {
		finish = "stop"
	}
	out.Choices = []Choice{{Message: choice, FinishReason: finish}}
	return out
}

func anthropicFinishReason(stop string) string {
	switch stop {
	case "end_turn", "stop_sequence":
		return "stop"
	case "max_tokens":
		return "length"
	case "tool_use":
		return "tool_calls"
	case "refusal":
		return "content_filter"
	}
	return stop
}

// normalizeText builds a response for SDKs that only return generated text.
// They report no usage, so the counters stay at zero.
func normalizeText(text string, toolCalls []ToolCall, provider ProviderIdentity, model string, schema *outputSchema) *Response {
	if toolCalls == nil {
		toolCalls = []ToolCall{}
	}
	msg := ChoiceMessage{Role: RoleAssistant, ToolCalls: toolCalls}
	if text != "" || len(toolCalls) == 0 {
		msg.Content = stringPtr(text)
		msg.Parsed = schema.parse(text)
	}
	finish := "stop"
	if len(toolCalls) > 0 {
		finish = "tool_calls"
	}
	return &Response{
		ID:       newResponseID(),
		Object:   chatCompletionObject,
		Model:    model,
		Provider: provider,
		Choices:  []Choice{{Message: msg, FinishReason: finish}},
		Native:   text,
	}
}
