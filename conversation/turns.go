package conversation

import (
	"time"

	"github.com/martinemde/unifai/unifiedllm"
)

// TurnKind discriminates between turn types.
type TurnKind string

const (
	TurnUser       TurnKind = "user"
	TurnAssistant  TurnKind = "assistant"
	TurnToolResult TurnKind = "tool_result"
	TurnSteering   TurnKind = "steering"
)

// Turn is a single entry in the conversation history.
type Turn struct {
	Kind      TurnKind       `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	User      *UserTurn      `json:"user,omitempty"`
	Assistant *AssistantTurn `json:"assistant,omitempty"`
	Tool      *ToolTurn      `json:"tool,omitempty"`
	Steering  *SteeringTurn  `json:"steering,omitempty"`
}

// UserTurn holds user input.
type UserTurn struct {
	Content string `json:"content"`
}

// AssistantTurn holds one reply and the provider that served it.
type AssistantTurn struct {
	Content    string                      `json:"content"`
	ToolCalls  []unifiedllm.ToolCall       `json:"tool_calls,omitempty"`
	Provider   unifiedllm.ProviderIdentity `json:"provider"`
	Model      string                      `json:"model"`
	Usage      unifiedllm.Usage            `json:"usage"`
	ResponseID string                      `json:"response_id,omitempty"`
}

// ToolTurn holds the output of one tool call.
type ToolTurn struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// SteeringTurn holds a note the session injects for the model, such as a
// loop warning.
type SteeringTurn struct {
	Content string `json:"content"`
}

func NewUserTurn(content string) Turn {
	return Turn{Kind: TurnUser, Timestamp: time.Now(), User: &UserTurn{Content: content}}
}

// NewAssistantTurn records resp as an assistant turn.
func NewAssistantTurn(resp *unifiedllm.Response) Turn {
	return Turn{
		Kind:      TurnAssistant,
		Timestamp: time.Now(),
		Assistant: &AssistantTurn{
			Content:    resp.Text(),
			ToolCalls:  resp.ToolCalls(),
			Provider:   resp.Provider,
			Model:      resp.Model,
			Usage:      resp.Usage,
			ResponseID: resp.ID,
		},
	}
}

func NewToolTurn(call unifiedllm.ToolCall, content string, isError bool) Turn {
	return Turn{
		Kind:      TurnToolResult,
		Timestamp: time.Now(),
		Tool:      &ToolTurn{ToolCallID: call.ID, Name: call.Name, Content: content, IsError: isError},
	}
}

func NewSteeringTurn(content string) Turn {
	return Turn{Kind: TurnSteering, Timestamp: time.Now(), Steering: &SteeringTurn{Content: content}}
}

// TextContent returns the turn's text, whatever its kind.
func (t Turn) TextContent() string {
	switch {
	case t.Kind == TurnUser && t.User != nil:
		return t.User.Content
	case t.Kind == TurnAssistant && t.Assistant != nil:
		return t.Assistant.Content
	case t.Kind == TurnToolResult && t.Tool != nil:
		return t.Tool.Content
	case t.Kind == TurnSteering && t.Steering != nil:
		return t.Steering.Content
	}
	return ""
}

// HistoryToMessages converts the turn history into request messages, with
// the system prompt first when one is set.
func HistoryToMessages(system string, history []Turn) []unifiedllm.Message {
	messages := make([]unifiedllm.Message, 0, len(history)+1)
	if system != "" {
		messages = append(messages, unifiedllm.SystemMessage(system))
	}
	for _, turn := range history {
		if msg, ok := turn.message(); ok {
			messages = append(messages, msg)
		}
	}
	return messages
}

// message renders one turn. Steering notes go out as user messages, which
// every provider accepts mid-conversation. An assistant reply with neither
// text nor tool calls is left out, since no provider accepts it as input.
func (t Turn) message() (unifiedllm.Message, bool) {
	switch {
	case t.Kind == TurnUser && t.User != nil:
		return unifiedllm.UserMessage(t.User.Content), true
	case t.Kind == TurnAssistant && t.Assistant != nil:
		if t.Assistant.Content == "" && len(t.Assistant.ToolCalls) == 0 {
			return unifiedllm.Message{}, false
		}
		msg := unifiedllm.AssistantMessage(t.Assistant.Content)
		msg.ToolCalls = t.Assistant.ToolCalls
		return msg, true
	case t.Kind == TurnToolResult && t.Tool != nil:
		return unifiedllm.ToolResultMessage(t.Tool.ToolCallID, t.Tool.Content), true
	case t.Kind == TurnSteering && t.Steering != nil:
		return unifiedllm.UserMessage(t.Steering.Content), true
	}
	return unifiedllm.Message{}, false
}
