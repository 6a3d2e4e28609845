package coach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/KKQanT/cringe-alert-v2/internal/observability"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/gemini"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/logger"
)

// TextBackend streams one generation. *gemini.Client satisfies it.
type TextBackend interface {
	StreamGenerateContent(ctx context.Context, model string, req gemini.GenerateContentRequest, onChunk func(gemini.GenerateContentResponse) error) error
}

// Turn is one entry of the conversation history.
type Turn struct {
	Role  string
	Parts []gemini.Part
}

// ChatSession is the text-native coach. Rounds are driven synchronously by client
// messages, so at most one generation is in flight.
type ChatSession struct {
	log      *logger.Logger
	backend  TextBackend
	prompts  Prompter
	cfg      Config
	state    stateMachine
	mu       sync.Mutex
	history  []Turn
	snapshot any
}

func NewChatSession(log *logger.Logger, backend TextBackend, prompts Prompter, cfg Config, snapshot any) *ChatSession {
	return &ChatSession{
		log:      log.With("component", "ChatSession"),
		backend:  backend,
		prompts:  prompts,
		cfg:      cfg.withDefaults(),
		snapshot: snapshot,
	}
}

func (s *ChatSession) State() State { return s.state.State() }

// History returns a copy of the conversation so far.
func (s *ChatSession) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}

// Run serves conn until the client leaves or ctx ends. A closed channel is a normal exit.
func (s *ChatSession) Run(ctx context.Context, conn Conn) error {
	observability.Current().CoachSessionOpened(ModeText)
	defer observability.Current().CoachSessionClosed(ModeText)
	defer s.state.set(StateClosed)

	if err := conn.Write(ctx, Connected{}); err != nil {
		return quietClose(err)
	}
	s.state.set(StateReady)

	if err := s.round(ctx, conn, Turn{Role: "user", Parts: []gemini.Part{{Text: s.prompts.CoachGreeting()}}}); err != nil {
		return quietClose(err)
	}

	for {
		msg, err := conn.Read(ctx)
		if err != nil {
			var de *DecodeError
			if errors.As(err, &de) {
				s.log.Warn("Ignoring client frame", "error", err)
				continue
			}
			return quietClose(err)
		}
		if err := s.handle(ctx, conn, msg); err != nil {
			return quietClose(err)
		}
	}
}

func (s *ChatSession) handle(ctx context.Context, conn Conn, msg ClientMessage) error {
	switch m := msg.(type) {
	case TextMessage:
		return s.round(ctx, conn, Turn{Role: "user", Parts: []gemini.Part{{Text: m.Content}}})
	case ToolResultMessage:
		return s.round(ctx, conn, s.toolResultTurn(m))
	case ContextMessage:
		snap, err := decodeSnapshot(m.Analysis)
		if err != nil {
			return conn.Write(ctx, ErrorMessage{Message: fmt.Sprintf("invalid context: %v", err)})
		}
		s.mu.Lock()
		s.snapshot = snap
		s.mu.Unlock()
		s.log.Info("Coach context replaced")
		return nil
	case AudioMessage:
		return conn.Write(ctx, ErrorMessage{Message: "audio is only supported on the live coach"})
	default:
		return conn.Write(ctx, ErrorMessage{Message: fmt.Sprintf("unsupported message %T", msg)})
	}
}

// toolResultTurn answers the matching call of the last model turn with a function
// response. A result with no matching call is relayed as text.
func (s *ChatSession) toolResultTurn(m ToolResultMessage) Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.history) - 1; i >= 0; i-- {
		t := s.history[i]
		if t.Role != "model" {
			continue
		}
		for _, p := range t.Parts {
			if p.FunctionCall != nil && p.FunctionCall.Name == m.Name {
				return Turn{Role: "user", Parts: []gemini.Part{{
					FunctionResponse: &gemini.FunctionResponse{ID: p.FunctionCall.ID, Name: m.Name, Response: m.Result},
				}}}
			}
		}
		break
	}
	return Turn{Role: "user", Parts: []gemini.Part{{Text: toolResultText(m)}}}
}

func toolResultText(m ToolResultMessage) string {
	b, err := json.Marshal(m.Result)
	if err != nil {
		b = []byte(`{}`)
	}
	return fmt.Sprintf("Tool %s result: %s", m.Name, b)
}

// round appends the user turn, streams one generation to conn and appends the model
// turn as text first, then tool calls. Backend failures are reported to the client
// and drop the user turn, as do empty replies; only channel failures are returned.
func (s *ChatSession) round(ctx context.Context, conn Conn, user Turn) (err error) {
	if !s.state.set(StateTurnExchange) {
		return ErrChannelClosed
	}
	defer s.state.set(StateReady)

	ctx, span := observability.StartSpan(ctx, "coach.turn", attribute.String("coach.mode", ModeText))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	s.mu.Lock()
	s.history = append(s.history, user)
	req := gemini.GenerateContentRequest{
		Contents: contents(s.history),
		Tools:    Tools(),
	}
	snapshot := s.snapshot
	s.mu.Unlock()

	system, err := s.prompts.CoachSystem(snapshot)
	if err != nil {
		s.dropLast()
		return conn.Write(ctx, ErrorMessage{Message: err.Error()})
	}
	req.SystemInstruction = gemini.SystemText(system)

	var (
		text     strings.Builder
		textSig  string
		calls    []gemini.Part
		writeErr error
	)
	genErr := s.backend.StreamGenerateContent(ctx, s.cfg.ChatModel, req, func(chunk gemini.GenerateContentResponse) error {
		for _, p := range chunk.Parts() {
			switch {
			case p.FunctionCall != nil:
				calls = append(calls, p)
				observability.Current().IncCoachToolCall(ModeText, p.FunctionCall.Name)
				if writeErr = conn.Write(ctx, ToolCallRequest{Name: p.FunctionCall.Name, Args: p.FunctionCall.Args}); writeErr != nil {
					return writeErr
				}
			case p.Thought:
			case p.Text != "":
				text.WriteString(p.Text)
				if textSig == "" {
					textSig = p.ThoughtSignature
				}
				if writeErr = conn.Write(ctx, TextChunk{Content: p.Text}); writeErr != nil {
					return writeErr
				}
			default:
				if textSig == "" && p.ThoughtSignature != "" {
					textSig = p.ThoughtSignature
				}
			}
		}
		return nil
	})
	if writeErr != nil {
		return writeErr
	}
	if genErr != nil {
		s.dropLast()
		s.log.Warn("Coach turn failed", "error", genErr)
		span.RecordError(genErr)
		return conn.Write(ctx, ErrorMessage{Message: genErr.Error()})
	}

	model := Turn{Role: "model"}
	if text.Len() > 0 {
		model.Parts = append(model.Parts, gemini.Part{Text: text.String(), ThoughtSignature: textSig})
	}
	model.Parts = append(model.Parts, calls...)
	if len(model.Parts) == 0 {
		// An empty reply leaves no model turn; keep user and model turns alternating.
		s.dropLast()
		s.log.Warn("Coach turn produced no output")
		return nil
	}
	s.mu.Lock()
	s.history = append(s.history, model)
	s.mu.Unlock()
	return nil
}

func (s *ChatSession) dropLast() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.history); n > 0 {
		s.history = s.history[:n-1]
	}
}

func contents(history []Turn) []gemini.Content {
	out := make([]gemini.Content, 0, len(history))
	for _, t := range history {
		parts := make([]gemini.Part, len(t.Parts))
		copy(parts, t.Parts)
		out = append(out, gemini.Content{Role: t.Role, Parts: parts})
	}
	return out
}

// quietClose maps a departed client or cancelled context to a clean exit.
func quietClose(err error) error {
	if err == nil || errors.Is(err, ErrChannelClosed) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
