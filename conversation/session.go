package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/martinemde/unifai/unifiedllm"
	"go.uber.org/zap"
)

// SessionState represents the current lifecycle state of a session.
type SessionState string

const (
	StateIdle       SessionState = "idle"
	StateProcessing SessionState = "processing"
	StateClosed     SessionState = "closed"
)

var (
	ErrSessionClosed = errors.New("session is closed")
	ErrSessionBusy   = errors.New("session is already processing an input")
	ErrTurnLimit     = errors.New("session turn limit reached")
)

// Completer sends one chat request. The Chat.Completions service of a
// unifiedllm.Client satisfies it.
type Completer interface {
	Create(ctx context.Context, req unifiedllm.Request) (*unifiedllm.Response, error)
}

// ToolHandler runs one tool call and returns its output for the model.
type ToolHandler func(ctx context.Context, arguments string) (string, error)

// Config holds configuration for a session.
type Config struct {
	SystemPrompt string `json:"system_prompt,omitempty"`
	// Model is sent with every request. Empty lets each adapter use its
	// bound model.
	Model       string   `json:"model,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`

	MaxTurns            int `json:"max_turns"` // user plus assistant turns, 0 = unlimited
	MaxToolRounds       int `json:"max_tool_rounds"`
	ToolOutputChars     int `json:"tool_output_chars"`
	ToolOutputLines     int `json:"tool_output_lines"`
	LoopDetectionWindow int `json:"loop_detection_window"` // 0 disables
	EventBuffer         int `json:"event_buffer"`
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		MaxToolRounds:       16,
		ToolOutputChars:     DefaultToolOutputChars,
		ToolOutputLines:     DefaultToolOutputLines,
		LoopDetectionWindow: 6,
		EventBuffer:         256,
	}
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTool registers a tool the model may call and the handler that runs it.
func WithTool(tool unifiedllm.Tool, handler ToolHandler) Option {
	return func(s *Session) {
		s.tools = append(s.tools, tool)
		s.handlers[tool.Name] = handler
	}
}

// Session keeps a multi-turn conversation on top of a Completer. Each
// assistant turn records the provider and model that served it.
type Session struct {
	id        string
	completer Completer
	config    Config
	tools     []unifiedllm.Tool
	handlers  map[string]ToolHandler
	history   []Turn
	usage     unifiedllm.Usage
	state     SessionState
	emitter   *EventEmitter
	logger    *zap.Logger
	mu        sync.Mutex
}

// NewSession creates a session. A nil config uses DefaultConfig.
func NewSession(completer Completer, config *Config, opts ...Option) *Session {
	cfg := DefaultConfig()
	if config != nil {
		cfg = *config
	}
	id := uuid.New().String()
	s := &Session{
		id:        id,
		completer: completer,
		config:    cfg,
		handlers:  make(map[string]ToolHandler),
		state:     StateIdle,
		emitter:   NewEventEmitter(id, cfg.EventBuffer),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("session_id", id))
	s.emitter.Emit(EventSessionStart, nil)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// History returns a copy of the conversation history.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.history...)
}

// Usage returns the token usage summed over every assistant turn.
func (s *Session) Usage() unifiedllm.Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

// LastModel returns the provider and model that served the latest reply.
func (s *Session) LastModel() (unifiedllm.ProviderIdentity, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.history) - 1; i >= 0; i-- {
		if t := s.history[i]; t.Kind == TurnAssistant && t.Assistant != nil {
			return t.Assistant.Provider, t.Assistant.Model
		}
	}
	return "", ""
}

// Events returns the event channel for the host application.
func (s *Session) Events() <-chan Event {
	return s.emitter.Events()
}

// SetSystemPrompt replaces the system prompt for subsequent requests.
func (s *Session) SetSystemPrompt(prompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config.SystemPrompt = prompt
}

// Reset clears the history and usage totals.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
	s.usage = unifiedllm.Usage{}
}

// Close ends the session and closes the event channel.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.mu.Unlock()

	s.emitter.Emit(EventSessionEnd, map[string]interface{}{"state": string(StateClosed)})
	s.emitter.Close()
}

// Submit sends userInput and returns the final reply. Replies that call
// registered tools are answered with the tool output and sent again, up to
// MaxToolRounds times. A failed Submit leaves the history unchanged.
func (s *Session) Submit(ctx context.Context, userInput string) (*unifiedllm.Response, error) {
	s.mu.Lock()
	switch s.state {
	case StateClosed:
		s.mu.Unlock()
		return nil, ErrSessionClosed
	case StateProcessing:
		s.mu.Unlock()
		return nil, ErrSessionBusy
	}
	if s.config.MaxTurns > 0 && countTurns(s.history) >= s.config.MaxTurns {
		s.mu.Unlock()
		s.emitter.Emit(EventTurnLimit, map[string]interface{}{"max_turns": s.config.MaxTurns})
		return nil, ErrTurnLimit
	}
	s.state = StateProcessing
	pending := append([]Turn(nil), s.history...)
	committed := len(pending)
	s.mu.Unlock()

	resp, turns, usage, err := s.processInput(ctx, pending, userInput)

	s.mu.Lock()
	if s.state == StateProcessing {
		s.state = StateIdle
	}
	if err == nil {
		s.history = append(s.history, turns[committed:]...)
		s.usage = s.usage.Add(usage)
	}
	s.mu.Unlock()
	return resp, err
}

func (s *Session) processInput(ctx context.Context, history []Turn, userInput string) (*unifiedllm.Response, []Turn, unifiedllm.Usage, error) {
	var usage unifiedllm.Usage
	history = append(history, NewUserTurn(userInput))
	s.emitter.Emit(EventUserInput, map[string]interface{}{"content": userInput})

	s.mu.Lock()
	cfg := s.config
	s.mu.Unlock()

	var resp *unifiedllm.Response
	for round := 0; ; round++ {
		if err := ctx.Err(); err != nil {
			s.emitter.Emit(EventError, map[string]interface{}{"error": err.Error()})
			return nil, nil, usage, err
		}

		req := unifiedllm.Request{
			Model:       cfg.Model,
			Messages:    HistoryToMessages(cfg.SystemPrompt, history),
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		}
		if len(s.tools) > 0 {
			req.Tools = s.tools
			req.ToolChoice = unifiedllm.ToolChoiceAuto
		}

		var err error
		resp, err = s.completer.Create(ctx, req)
		if err != nil {
			s.logger.Warn("chat completion failed", zap.Int("round", round), zap.Error(err))
			s.emitter.Emit(EventError, map[string]interface{}{"error": err.Error()})
			return nil, nil, usage, fmt.Errorf("submit: %w", err)
		}

		history = append(history, NewAssistantTurn(resp))
		usage = usage.Add(resp.Usage)
		s.logger.Debug("assistant reply",
			zap.String("provider", string(resp.Provider)),
			zap.String("model", resp.Model),
			zap.Int("total_tokens", resp.Usage.TotalTokens))
		s.emitter.Emit(EventAssistantReply, map[string]interface{}{
			"text":     resp.Text(),
			"provider": string(resp.Provider),
			"model":    resp.Model,
		})

		calls := resp.ToolCalls()
		if len(calls) == 0 {
			return resp, history, usage, nil
		}
		if !s.handlesAny(calls) {
			return resp, dropPendingCalls(history), usage, nil
		}
		if round >= cfg.MaxToolRounds {
			s.emitter.Emit(EventTurnLimit, map[string]interface{}{"round": round})
			return resp, dropPendingCalls(history), usage, nil
		}

		for _, call := range calls {
			history = append(history, s.runTool(ctx, call, cfg))
		}

		if cfg.LoopDetectionWindow > 0 && DetectLoop(history, cfg.LoopDetectionWindow) {
			warning := fmt.Sprintf("Loop detected: the last %d tool calls follow a repeating pattern. Try a different approach.", cfg.LoopDetectionWindow)
			history = append(history, NewSteeringTurn(warning))
			s.emitter.Emit(EventLoopDetection, map[string]interface{}{"message": warning})
		}
	}
}

// dropPendingCalls removes the tool calls from the last assistant turn.
// Calls handed back to the caller get no tool result, and providers reject
// a history holding a call without one.
func dropPendingCalls(history []Turn) []Turn {
	last := history[len(history)-1]
	if last.Assistant == nil {
		return history
	}
	reply := *last.Assistant
	reply.ToolCalls = nil
	last.Assistant = &reply
	history[len(history)-1] = last
	return history
}

func (s *Session) handlesAny(calls []unifiedllm.ToolCall) bool {
	for _, c := range calls {
		if _, ok := s.handlers[c.Name]; ok {
			return true
		}
	}
	return false
}

// runTool executes one call. The full output goes to the event stream and
// the truncated output into the history.
func (s *Session) runTool(ctx context.Context, call unifiedllm.ToolCall, cfg Config) Turn {
	s.emitter.Emit(EventToolCallStart, map[string]interface{}{
		"tool_name": call.Name,
		"call_id":   call.ID,
	})

	handler, ok := s.handlers[call.Name]
	if !ok {
		msg := fmt.Sprintf("Unknown tool: %s", call.Name)
		s.emitter.Emit(EventToolCallEnd, map[string]interface{}{"call_id": call.ID, "error": msg})
		return NewToolTurn(call, msg, true)
	}

	output, err := handler(ctx, call.Arguments)
	if err != nil {
		msg := fmt.Sprintf("Tool error (%s): %v", call.Name, err)
		s.emitter.Emit(EventToolCallEnd, map[string]interface{}{"call_id": call.ID, "error": msg})
		return NewToolTurn(call, msg, true)
	}

	s.emitter.Emit(EventToolCallEnd, map[string]interface{}{"call_id": call.ID, "output": output})
	if output == "" {
		output = "(no output)"
	}
	return NewToolTurn(call, truncateToolOutput(output, cfg.ToolOutputChars, cfg.ToolOutputLines), false)
}

// countTurns returns the number of user and assistant turns in history.
func countTurns(history []Turn) int {
	count := 0
	for _, turn := range history {
		if turn.Kind == TurnUser || turn.Kind == TurnAssistant {
			count++
		}
	}
	return count
}
