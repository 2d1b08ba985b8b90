package conversation

import (
	"sync"
	"time"
)

// EventKind identifies the type of session event.
type EventKind string

const (
	EventSessionStart   EventKind = "session_start"
	EventSessionEnd     EventKind = "session_end"
	EventUserInput      EventKind = "user_input"
	EventAssistantReply EventKind = "assistant_reply"
	EventToolCallStart  EventKind = "tool_call_start"
	EventToolCallEnd    EventKind = "tool_call_end"
	EventTurnLimit      EventKind = "turn_limit"
	EventLoopDetection  EventKind = "loop_detection"
	EventError          EventKind = "error"
)

const defaultEventBuffer = 256

// Event is one notification from a Session. Data keys depend on Kind.
type Event struct {
	Kind      EventKind              `json:"kind"`
	Timestamp time.Time              `json:"timestamp"`
	SessionID string                 `json:"session_id"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// EventEmitter fans session events into a buffered channel. Emit never
// blocks: once the buffer is full further events are counted and discarded
// until the reader catches up.
type EventEmitter struct {
	mu        sync.Mutex
	sessionID string
	out       chan Event
	done      bool
	dropped   int
}

// NewEventEmitter creates an EventEmitter holding up to bufferSize unread
// events. A non-positive size uses the default of 256.
func NewEventEmitter(sessionID string, bufferSize int) *EventEmitter {
	if bufferSize <= 0 {
		bufferSize = defaultEventBuffer
	}
	return &EventEmitter{sessionID: sessionID, out: make(chan Event, bufferSize)}
}

// Emit queues an event of the given kind. It is a no-op after Close.
func (e *EventEmitter) Emit(kind EventKind, data map[string]interface{}) {
	ev := Event{Kind: kind, Timestamp: time.Now(), SessionID: e.sessionID, Data: data}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return
	}
	select {
	case e.out <- ev:
	default:
		e.dropped++
	}
}

// Events returns the channel events are delivered on. It is closed by Close.
func (e *EventEmitter) Events() <-chan Event { return e.out }

// Dropped returns how many events were discarded because the buffer was full.
func (e *EventEmitter) Dropped() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}

// Close stops delivery and closes the channel. Later calls do nothing.
func (e *EventEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.done {
		return
	}
	e.done = true
	close(e.out)
}
