package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/martinemde/unifai/unifiedllm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// scriptedCompleter replies from a fixed script and records every request.
type scriptedCompleter struct {
	mu       sync.Mutex
	replies  []*unifiedllm.Response
	err      error
	requests []unifiedllm.Request
}

func (c *scriptedCompleter) Create(ctx context.Context, req unifiedllm.Request) (*unifiedllm.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	if c.err != nil {
		return nil, c.err
	}
	if len(c.replies) == 0 {
		return nil, errors.New("script exhausted")
	}
	resp := c.replies[0]
	c.replies = c.replies[1:]
	return resp, nil
}

func reply(provider unifiedllm.ProviderIdentity, model, text string, tokens int, calls ...unifiedllm.ToolCall) *unifiedllm.Response {
	var content *string
	if text != "" || len(calls) == 0 {
		content = &text
	}
	return &unifiedllm.Response{
		ID:       "chatcmpl-" + model,
		Object:   "chat.completion",
		Model:    model,
		Provider: provider,
		Choices: []unifiedllm.Choice{{
			Message:      unifiedllm.ChoiceMessage{Role: unifiedllm.RoleAssistant, Content: content, ToolCalls: calls},
			FinishReason: "stop",
		}},
		Usage: unifiedllm.Usage{PromptTokens: tokens, CompletionTokens: tokens, TotalTokens: 2 * tokens},
	}
}

func drain(ch <-chan Event) []EventKind {
	var kinds []EventKind
	for ev := range ch {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

func TestSessionMultiTurn(t *testing.T) {
	c := &scriptedCompleter{replies: []*unifiedllm.Response{
		reply(unifiedllm.ProviderLocal, "qwen2.5-7b", "Paris.", 5),
		reply(unifiedllm.ProviderOpenAI, "gpt-4o-mini", "About 2.1 million.", 7),
	}}
	s := NewSession(c, &Config{SystemPrompt: "Be brief.", MaxToolRounds: 4}, WithLogger(zaptest.NewLogger(t)))

	resp, err := s.Submit(context.Background(), "Capital of France?")
	require.NoError(t, err)
	assert.Equal(t, "Paris.", resp.Text())

	resp, err = s.Submit(context.Background(), "Population?")
	require.NoError(t, err)
	assert.Equal(t, "About 2.1 million.", resp.Text())

	require.Len(t, c.requests, 2)
	second := c.requests[1].Messages
	require.Len(t, second, 4)
	assert.Equal(t, unifiedllm.SystemMessage("Be brief."), second[0])
	assert.Equal(t, "Capital of France?", second[1].Content)
	assert.Equal(t, unifiedllm.RoleAssistant, second[2].Role)
	assert.Equal(t, "Paris.", second[2].Content)
	assert.Equal(t, "Population?", second[3].Content)
	assert.Empty(t, c.requests[1].Tools)

	history := s.History()
	require.Len(t, history, 4)
	assert.Equal(t, unifiedllm.ProviderLocal, history[1].Assistant.Provider)
	assert.Equal(t, "qwen2.5-7b", history[1].Assistant.Model)

	provider, model := s.LastModel()
	assert.Equal(t, unifiedllm.ProviderOpenAI, provider)
	assert.Equal(t, "gpt-4o-mini", model)
	assert.Equal(t, unifiedllm.Usage{PromptTokens: 12, CompletionTokens: 12, TotalTokens: 24}, s.Usage())
	assert.Equal(t, StateIdle, s.State())

	s.Close()
	assert.Equal(t, []EventKind{
		EventSessionStart,
		EventUserInput, EventAssistantReply,
		EventUserInput, EventAssistantReply,
		EventSessionEnd,
	}, drain(s.Events()))
}

func TestSessionFailedSubmitLeavesHistoryUnchanged(t *testing.T) {
	c := &scriptedCompleter{replies: []*unifiedllm.Response{reply(unifiedllm.ProviderOpenAI, "gpt-4o-mini", "Hi!", 2)}}
	s := NewSession(c, nil)

	_, err := s.Submit(context.Background(), "hello")
	require.NoError(t, err)

	failure := &unifiedllm.AllProvidersFailedError{Operation: "create_chat_completion"}
	c.err = failure
	_, err = s.Submit(context.Background(), "again")
	require.Error(t, err)
	var all *unifiedllm.AllProvidersFailedError
	assert.ErrorAs(t, err, &all)

	assert.Len(t, s.History(), 2)
	assert.Equal(t, 4, s.Usage().TotalTokens)
	assert.Equal(t, StateIdle, s.State(), "the session stays usable after a failure")
}

func TestSessionRunsTools(t *testing.T) {
	call := unifiedllm.ToolCall{ID: "call_1", Type: "function", Name: "get_weather", Arguments: `{"city":"Paris"}`}
	c := &scriptedCompleter{replies: []*unifiedllm.Response{
		reply(unifiedllm.ProviderOpenAI, "gpt-4o-mini", "", 3, call),
		reply(unifiedllm.ProviderOpenAI, "gpt-4o-mini", "It is 18C in Paris.", 4),
	}}
	weather := unifiedllm.Tool{Name: "get_weather", Parameters: map[string]interface{}{"type": "object"}}
	var gotArgs string
	s := NewSession(c, nil, WithTool(weather, func(ctx context.Context, arguments string) (string, error) {
		gotArgs = arguments
		return "18C", nil
	}))

	resp, err := s.Submit(context.Background(), "Weather in Paris?")
	require.NoError(t, err)
	assert.Equal(t, "It is 18C in Paris.", resp.Text())
	assert.Equal(t, `{"city":"Paris"}`, gotArgs)

	require.Len(t, c.requests, 2)
	assert.Equal(t, []unifiedllm.Tool{weather}, c.requests[0].Tools)
	assert.Equal(t, unifiedllm.ToolChoiceAuto, c.requests[0].ToolChoice)
	msgs := c.requests[1].Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, []unifiedllm.ToolCall{call}, msgs[1].ToolCalls)
	assert.Equal(t, unifiedllm.ToolResultMessage("call_1", "18C"), msgs[2])

	kinds := []TurnKind{}
	for _, turn := range s.History() {
		kinds = append(kinds, turn.Kind)
	}
	assert.Equal(t, []TurnKind{TurnUser, TurnAssistant, TurnToolResult, TurnAssistant}, kinds)
	assert.Equal(t, 14, s.Usage().TotalTokens)
}

func TestSessionToolErrorsGoBackToModel(t *testing.T) {
	calls := []unifiedllm.ToolCall{
		{ID: "call_1", Name: "lookup", Arguments: `{}`},
		{ID: "call_2", Name: "missing", Arguments: `{}`},
	}
	c := &scriptedCompleter{replies: []*unifiedllm.Response{
		reply(unifiedllm.ProviderOpenAI, "gpt-4o-mini", "", 1, calls...),
		reply(unifiedllm.ProviderOpenAI, "gpt-4o-mini", "Sorry.", 1),
	}}
	s := NewSession(c, nil, WithTool(unifiedllm.Tool{Name: "lookup"}, func(ctx context.Context, arguments string) (string, error) {
		return "", errors.New("index offline")
	}))

	_, err := s.Submit(context.Background(), "find it")
	require.NoError(t, err)

	history := s.History()
	require.Len(t, history, 5)
	assert.True(t, history[2].Tool.IsError)
	assert.Contains(t, history[2].Tool.Content, "index offline")
	assert.True(t, history[3].Tool.IsError)
	assert.Equal(t, "Unknown tool: missing", history[3].Tool.Content)
}

func TestSessionUnhandledToolCallsReturnToCaller(t *testing.T) {
	call := unifiedllm.ToolCall{ID: "call_1", Name: "get_weather", Arguments: `{}`}
	c := &scriptedCompleter{replies: []*unifiedllm.Response{
		reply(unifiedllm.ProviderOpenAI, "gpt-4o-mini", "Checking.", 1, call),
		reply(unifiedllm.ProviderOpenAI, "gpt-4o-mini", "Sunny.", 1),
	}}
	s := NewSession(c, nil)

	resp, err := s.Submit(context.Background(), "Weather?")
	require.NoError(t, err)
	assert.Equal(t, []unifiedllm.ToolCall{call}, resp.ToolCalls())
	assert.Len(t, c.requests, 1)

	history := s.History()
	require.Len(t, history, 2)
	assert.Equal(t, "Checking.", history[1].Assistant.Content)
	assert.Empty(t, history[1].Assistant.ToolCalls)

	_, err = s.Submit(context.Background(), "And tomorrow?")
	require.NoError(t, err)
	require.Len(t, c.requests, 2)
	for _, m := range c.requests[1].Messages {
		assert.Empty(t, m.ToolCalls, "no call without a result is sent back")
	}
	assert.NoError(t, unifiedllm.ValidateRequest(c.requests[1]))
}

func TestSessionToolRoundLimit(t *testing.T) {
	call := unifiedllm.ToolCall{ID: "call_1", Name: "again", Arguments: `{}`}
	var replies []*unifiedllm.Response
	for i := 0; i < 5; i++ {
		replies = append(replies, reply(unifiedllm.ProviderOpenAI, "gpt-4o-mini", "", 1, call))
	}
	c := &scriptedCompleter{replies: replies}
	cfg := DefaultConfig()
	cfg.MaxToolRounds = 2
	cfg.LoopDetectionWindow = 0
	s := NewSession(c, &cfg, WithTool(unifiedllm.Tool{Name: "again"}, func(ctx context.Context, arguments string) (string, error) {
		return "ok", nil
	}))

	resp, err := s.Submit(context.Background(), "go")
	require.NoError(t, err)
	assert.NotNil(t, resp)
	assert.Len(t, c.requests, 3)
	history := s.History()
	assert.Empty(t, history[len(history)-1].Assistant.ToolCalls)
	assert.Len(t, HistoryToMessages("", history), len(history)-1, "the unanswered empty reply is not replayed")

	s.Close()
	assert.Contains(t, drain(s.Events()), EventTurnLimit)
}

func TestSessionLoopDetectionInjectsWarning(t *testing.T) {
	call := unifiedllm.ToolCall{ID: "call_1", Name: "poll", Arguments: `{"id":1}`}
	c := &scriptedCompleter{replies: []*unifiedllm.Response{
		reply(unifiedllm.ProviderOpenAI, "gpt-4o-mini", "", 1, call),
		reply(unifiedllm.ProviderOpenAI, "gpt-4o-mini", "", 1, call),
		reply(unifiedllm.ProviderOpenAI, "gpt-4o-mini", "Done.", 1),
	}}
	cfg := DefaultConfig()
	cfg.LoopDetectionWindow = 2
	s := NewSession(c, &cfg, WithTool(unifiedllm.Tool{Name: "poll"}, func(ctx context.Context, arguments string) (string, error) {
		return "pending", nil
	}))

	_, err := s.Submit(context.Background(), "wait for job")
	require.NoError(t, err)

	last := c.requests[2].Messages
	assert.Equal(t, unifiedllm.RoleUser, last[len(last)-1].Role)
	assert.True(t, strings.HasPrefix(last[len(last)-1].Content, "Loop detected"))
}

func TestSessionTurnLimit(t *testing.T) {
	c := &scriptedCompleter{replies: []*unifiedllm.Response{reply(unifiedllm.ProviderOpenAI, "gpt-4o-mini", "Hi!", 1)}}
	s := NewSession(c, &Config{MaxTurns: 2})

	_, err := s.Submit(context.Background(), "hello")
	require.NoError(t, err)
	_, err = s.Submit(context.Background(), "hello again")
	assert.ErrorIs(t, err, ErrTurnLimit)
	assert.Len(t, c.requests, 1)
}

func TestSessionClosedAndCanceled(t *testing.T) {
	c := &scriptedCompleter{}
	s := NewSession(c, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Submit(ctx, "hello")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, c.requests)

	s.Close()
	s.Close()
	_, err = s.Submit(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestSessionReset(t *testing.T) {
	c := &scriptedCompleter{replies: []*unifiedllm.Response{
		reply(unifiedllm.ProviderOpenAI, "gpt-4o-mini", "One.", 1),
		reply(unifiedllm.ProviderOpenAI, "gpt-4o-mini", "Two.", 1),
	}}
	s := NewSession(c, nil)
	_, err := s.Submit(context.Background(), "first")
	require.NoError(t, err)

	s.Reset()
	s.SetSystemPrompt("Count.")
	assert.Empty(t, s.History())
	assert.Equal(t, unifiedllm.Usage{}, s.Usage())

	_, err = s.Submit(context.Background(), "second")
	require.NoError(t, err)
	assert.Equal(t, []unifiedllm.Message{unifiedllm.SystemMessage("Count."), unifiedllm.UserMessage("second")}, c.requests[1].Messages)
}

func TestEventEmitterDropsWhenFull(t *testing.T) {
	e := NewEventEmitter("s1", 2)
	for i := 0; i < 5; i++ {
		e.Emit(EventUserInput, nil)
	}
	assert.Equal(t, 3, e.Dropped())
	e.Close()
	e.Emit(EventUserInput, nil)
	assert.Len(t, drain(e.Events()), 2)
}
