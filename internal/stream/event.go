package stream

import (
	"encoding/json"
	"fmt"
)

type EventType string

const (
	EventStatus   EventType = "status"
	EventThinking EventType = "thinking"
	EventAnalysis EventType = "analysis"
	EventText     EventType = "text"
	EventToolCall EventType = "tool_call"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Event is one envelope of an incremental AI operation.
type Event struct {
	Type    EventType
	Content string
	Name    string
	Args    map[string]any
}

func Status(s string) Event   { return Event{Type: EventStatus, Content: s} }
func Thinking(s string) Event { return Event{Type: EventThinking, Content: s} }
func Analysis(s string) Event { return Event{Type: EventAnalysis, Content: s} }
func Text(s string) Event     { return Event{Type: EventText, Content: s} }
func Complete(s string) Event { return Event{Type: EventComplete, Content: s} }
func Error(msg string) Event  { return Event{Type: EventError, Content: msg} }

func ToolCall(name string, args map[string]any) Event {
	if args == nil {
		args = map[string]any{}
	}
	return Event{Type: EventToolCall, Name: name, Args: args}
}

// IsTerminal reports whether e closes its stream.
func (e Event) IsTerminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

type wireEvent struct {
	Type    EventType       `json:"type"`
	Content *string         `json:"content,omitempty"`
	Name    string          `json:"name,omitempty"`
	Args    *map[string]any `json:"args,omitempty"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	w := wireEvent{Type: e.Type}
	if e.Type == EventToolCall {
		args := e.Args
		if args == nil {
			args = map[string]any{}
		}
		w.Name, w.Args = e.Name, &args
	} else {
		content := e.Content
		w.Content = &content
	}
	return json.Marshal(w)
}

func (e *Event) UnmarshalJSON(b []byte) error {
	var w wireEvent
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	switch w.Type {
	case EventStatus, EventThinking, EventAnalysis, EventText, EventToolCall, EventComplete, EventError:
	default:
		return fmt.Errorf("unknown event type %q", w.Type)
	}
	*e = Event{Type: w.Type, Name: w.Name}
	if w.Content != nil {
		e.Content = *w.Content
	}
	if w.Args != nil {
		e.Args = *w.Args
	}
	return nil
}
