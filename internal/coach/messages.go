package coach

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownMessage is returned for frames whose type is not part of the protocol.
var ErrUnknownMessage = errors.New("unknown message type")

// DecodeError is a client frame that could not be decoded. The session keeps running.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "decode client message: " + e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

// ClientMessage is a frame sent by the browser.
type ClientMessage interface {
	clientMessage()
}

type TextMessage struct {
	Content string
}

type ToolResultMessage struct {
	Name   string
	Result map[string]any
}

// ContextMessage replaces the session snapshot the coach reasons over.
type ContextMessage struct {
	Analysis json.RawMessage
}

type AudioMessage struct {
	Data []byte
}

func (TextMessage) clientMessage()       {}
func (ToolResultMessage) clientMessage() {}
func (ContextMessage) clientMessage()    {}
func (AudioMessage) clientMessage()      {}

type clientFrame struct {
	Type     string          `json:"type"`
	Content  *string         `json:"content"`
	Name     string          `json:"name"`
	Result   map[string]any  `json:"result"`
	Analysis json.RawMessage `json:"analysis"`
	Data     string          `json:"data"`
}

func DecodeClientMessage(raw []byte) (ClientMessage, error) {
	var f clientFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, &DecodeError{Err: err}
	}
	switch f.Type {
	case "text":
		if f.Content == nil {
			return nil, &DecodeError{Err: errors.New("text message without content")}
		}
		return TextMessage{Content: *f.Content}, nil
	case "tool_result":
		if f.Name == "" {
			return nil, &DecodeError{Err: errors.New("tool_result without name")}
		}
		result := f.Result
		if result == nil {
			result = map[string]any{"status": "ok"}
		}
		return ToolResultMessage{Name: f.Name, Result: result}, nil
	case "context":
		return ContextMessage{Analysis: f.Analysis}, nil
	case "audio":
		data, err := base64.StdEncoding.DecodeString(f.Data)
		if err != nil {
			return nil, &DecodeError{Err: fmt.Errorf("audio data: %w", err)}
		}
		return AudioMessage{Data: data}, nil
	default:
		return nil, &DecodeError{Err: fmt.Errorf("%w %q", ErrUnknownMessage, f.Type)}
	}
}

// ServerMessage is a frame sent to the browser.
type ServerMessage interface {
	serverMessage()
}

type Connected struct{}

type TextChunk struct {
	Content string
}

type ToolCallRequest struct {
	Name string
	Args map[string]any
}

type ErrorMessage struct {
	Message string
}

type AudioChunk struct {
	Data []byte
}

func (Connected) serverMessage()       {}
func (TextChunk) serverMessage()       {}
func (ToolCallRequest) serverMessage() {}
func (ErrorMessage) serverMessage()    {}
func (AudioChunk) serverMessage()      {}

func EncodeServerMessage(m ServerMessage) ([]byte, error) {
	switch v := m.(type) {
	case Connected:
		return json.Marshal(map[string]any{"type": "connected"})
	case TextChunk:
		return json.Marshal(map[string]any{"type": "text", "content": v.Content})
	case ToolCallRequest:
		args := v.Args
		if args == nil {
			args = map[string]any{}
		}
		return json.Marshal(map[string]any{"type": "tool_call", "name": v.Name, "args": args})
	case ErrorMessage:
		return json.Marshal(map[string]any{"type": "error", "message": v.Message})
	case AudioChunk:
		return json.Marshal(map[string]any{"type": "audio", "data": base64.StdEncoding.EncodeToString(v.Data)})
	default:
		return nil, fmt.Errorf("encode server message: unsupported %T", m)
	}
}
