package coach

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/KKQanT/cringe-alert-v2/internal/observability"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/gemini"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/logger"
)

const (
	liveAudioMime      = "audio/pcm"
	liveContextCleared = "Session context cleared: no analysis is loaded."
)

// LiveConn is one open session with an audio-native model.
type LiveConn interface {
	SendText(text string, turnComplete bool) error
	SendAudio(data, mimeType string) error
	SendToolResponse(responses ...gemini.FunctionResponse) error
	Receive() (*gemini.LiveServerMessage, error)
	Close() error
}

type LiveBackend interface {
	Connect(ctx context.Context, cfg gemini.LiveConfig) (LiveConn, error)
}

// GeminiLive adapts *gemini.LiveClient to LiveBackend.
type GeminiLive struct {
	Client *gemini.LiveClient
}

func (g GeminiLive) Connect(ctx context.Context, cfg gemini.LiveConfig) (LiveConn, error) {
	if g.Client == nil {
		return nil, errors.New("live client not configured")
	}
	s, err := g.Client.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// LiveSession bridges a browser and the live model. Backend frames and client frames
// are pumped concurrently; server frames to the browser go through a bounded queue.
type LiveSession struct {
	log      *logger.Logger
	backend  LiveBackend
	prompts  Prompter
	cfg      Config
	state    stateMachine
	mu       sync.Mutex
	snapshot any
}

func NewLiveSession(log *logger.Logger, backend LiveBackend, prompts Prompter, cfg Config, snapshot any) *LiveSession {
	return &LiveSession{
		log:      log.With("component", "LiveSession"),
		backend:  backend,
		prompts:  prompts,
		cfg:      cfg.withDefaults(),
		snapshot: snapshot,
	}
}

func (s *LiveSession) State() State { return s.state.State() }

// Run connects to the live model and serves conn until either side closes.
func (s *LiveSession) Run(ctx context.Context, conn Conn) error {
	observability.Current().CoachSessionOpened(ModeAudio)
	defer observability.Current().CoachSessionClosed(ModeAudio)
	defer s.state.set(StateClosed)

	s.mu.Lock()
	snapshot := s.snapshot
	s.mu.Unlock()
	system, err := s.prompts.CoachSystem(snapshot)
	if err != nil {
		_ = conn.Write(ctx, ErrorMessage{Message: err.Error()})
		return err
	}

	live, err := s.backend.Connect(ctx, gemini.LiveConfig{
		Model:              s.cfg.LiveModel,
		SystemInstruction:  system,
		Tools:              Tools(),
		ResponseModalities: []string{"AUDIO"},
	})
	if err != nil {
		s.log.Warn("Live connect failed", "error", err)
		_ = conn.Write(ctx, ErrorMessage{Message: fmt.Sprintf("live session unavailable: %v", err)})
		return fmt.Errorf("connect live: %w", err)
	}
	defer live.Close()

	if err := conn.Write(ctx, Connected{}); err != nil {
		return quietLive(err)
	}
	s.state.set(StateReady)
	if err := live.SendText(s.prompts.LiveGreeting(), true); err != nil {
		_ = conn.Write(ctx, ErrorMessage{Message: err.Error()})
		return quietLive(err)
	}

	out := make(chan ServerMessage, s.cfg.OutboundQueue)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.receive(gctx, live, out) })
	g.Go(func() error { return forward(gctx, conn, out) })
	g.Go(func() error { return s.readClient(gctx, conn, live) })
	g.Go(func() error {
		<-gctx.Done()
		_ = live.Close()
		_ = conn.Close()
		return nil
	})

	return quietLive(g.Wait())
}

// receive maps live frames to browser frames. Tool calls are acknowledged right away;
// the browser executes them.
func (s *LiveSession) receive(ctx context.Context, live LiveConn, out chan<- ServerMessage) error {
	push := func(m ServerMessage) error {
		select {
		case out <- m:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	for {
		msg, err := live.Receive()
		if err != nil {
			return err
		}
		if msg.ServerContent != nil {
			sc := msg.ServerContent
			if sc.ModelTurn != nil {
				s.state.set(StateTurnExchange)
				for _, p := range sc.ModelTurn.Parts {
					switch {
					case p.InlineData != nil && strings.HasPrefix(p.InlineData.MimeType, "audio/"):
						data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
						if err != nil {
							s.log.Warn("Dropping undecodable audio", "error", err)
							continue
						}
						if err := push(AudioChunk{Data: data}); err != nil {
							return err
						}
					case p.Text != "" && !p.Thought:
						if err := push(TextChunk{Content: p.Text}); err != nil {
							return err
						}
					}
				}
			}
			if sc.Interrupted {
				s.log.Debug("Live turn interrupted")
			}
			if sc.TurnComplete {
				s.state.set(StateReady)
			}
		}
		if msg.ToolCall != nil {
			acks := make([]gemini.FunctionResponse, 0, len(msg.ToolCall.FunctionCalls))
			for _, fc := range msg.ToolCall.FunctionCalls {
				observability.Current().IncCoachToolCall(ModeAudio, fc.Name)
				if err := push(ToolCallRequest{Name: fc.Name, Args: fc.Args}); err != nil {
					return err
				}
				acks = append(acks, gemini.FunctionResponse{ID: fc.ID, Name: fc.Name, Response: map[string]any{"status": "executed"}})
			}
			if len(acks) > 0 {
				if err := live.SendToolResponse(acks...); err != nil {
					return err
				}
			}
		}
		if msg.GoAway != nil {
			s.log.Info("Live backend going away", "time_left", msg.GoAway.TimeLeft)
		}
	}
}

func forward(ctx context.Context, conn Conn, out <-chan ServerMessage) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-out:
			if err := conn.Write(ctx, m); err != nil {
				return err
			}
		}
	}
}

func (s *LiveSession) readClient(ctx context.Context, conn Conn, live LiveConn) error {
	for {
		msg, err := conn.Read(ctx)
		if err != nil {
			var de *DecodeError
			if errors.As(err, &de) {
				s.log.Warn("Ignoring client frame", "error", err)
				continue
			}
			return err
		}
		switch m := msg.(type) {
		case TextMessage:
			err = live.SendText(m.Content, true)
		case AudioMessage:
			err = live.SendAudio(base64.StdEncoding.EncodeToString(m.Data), liveAudioMime)
		case ToolResultMessage:
			err = live.SendText(toolResultText(m), true)
		case ContextMessage:
			snap, derr := decodeSnapshot(m.Analysis)
			if derr != nil {
				err = conn.Write(ctx, ErrorMessage{Message: fmt.Sprintf("invalid context: %v", derr)})
				break
			}
			s.mu.Lock()
			s.snapshot = snap
			s.mu.Unlock()
			if snap == nil {
				err = live.SendText(liveContextCleared, false)
				break
			}
			err = live.SendText("Updated session context: "+string(m.Analysis), false)
		}
		if err != nil {
			return err
		}
	}
}

func quietLive(err error) error {
	if errors.Is(err, gemini.ErrLiveClosed) {
		return nil
	}
	return quietClose(err)
}
