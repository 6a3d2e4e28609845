package coach

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KKQanT/cringe-alert-v2/internal/platform/gemini"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/logger"
)

type frame struct {
	msg ClientMessage
	err error
}

type fakeConn struct {
	in        chan frame
	closed    chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	out       []ServerMessage
}

func newFakeConn(buffer int) *fakeConn {
	return &fakeConn{in: make(chan frame, buffer), closed: make(chan struct{})}
}

func (c *fakeConn) Read(ctx context.Context) (ClientMessage, error) {
	select {
	case f, ok := <-c.in:
		if !ok {
			return nil, ErrChannelClosed
		}
		return f.msg, f.err
	case <-c.closed:
		return nil, ErrChannelClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Write(_ context.Context, m ServerMessage) error {
	select {
	case <-c.closed:
		return ErrChannelClosed
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.out = append(c.out, m)
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) written() []ServerMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ServerMessage, len(c.out))
	copy(out, c.out)
	return out
}

type fakePrompter struct {
	mu        sync.Mutex
	snapshots []any
}

func (p *fakePrompter) CoachSystem(snapshot any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots = append(p.snapshots, snapshot)
	return "be a coach", nil
}

func (p *fakePrompter) CoachGreeting() string { return "greet the user" }
func (p *fakePrompter) LiveGreeting() string  { return "say hi out loud" }

func (p *fakePrompter) lastSnapshot() any {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.snapshots) == 0 {
		return nil
	}
	return p.snapshots[len(p.snapshots)-1]
}

type scriptedReply struct {
	chunks []gemini.GenerateContentResponse
	err    error
}

type scriptedBackend struct {
	replies  []scriptedReply
	requests []gemini.GenerateContentRequest
}

func (b *scriptedBackend) StreamGenerateContent(_ context.Context, _ string, req gemini.GenerateContentRequest, onChunk func(gemini.GenerateContentResponse) error) error {
	b.requests = append(b.requests, req)
	if len(b.replies) == 0 {
		return errors.New("no scripted reply")
	}
	r := b.replies[0]
	b.replies = b.replies[1:]
	for _, c := range r.chunks {
		if err := onChunk(c); err != nil {
			return err
		}
	}
	return r.err
}

func chunk(parts ...gemini.Part) gemini.GenerateContentResponse {
	return gemini.GenerateContentResponse{Candidates: []gemini.Candidate{{Content: gemini.Content{Role: "model", Parts: parts}}}}
}

func textReply(texts ...string) scriptedReply {
	var r scriptedReply
	for _, t := range texts {
		r.chunks = append(r.chunks, chunk(gemini.Part{Text: t}))
	}
	return r
}

func TestChatSessionToolRoundTrip(t *testing.T) {
	backend := &scriptedBackend{replies: []scriptedReply{
		textReply("Hel", "lo"),
		{chunks: []gemini.GenerateContentResponse{chunk(
			gemini.Part{Thought: true, Text: "planning"},
			gemini.Part{
				FunctionCall:     &gemini.FunctionCall{ID: "call-1", Name: ToolSeekVideo, Args: map[string]any{"timestamp_seconds": 12.0}},
				ThoughtSignature: "sig-1",
			},
		)}},
		textReply("Watch the chorus."),
	}}
	conn := newFakeConn(4)
	conn.in <- frame{msg: TextMessage{Content: "show me the chorus"}}
	conn.in <- frame{msg: ToolResultMessage{Name: ToolSeekVideo, Result: map[string]any{"status": "ok"}}}
	close(conn.in)

	s := NewChatSession(logger.Nop(), backend, &fakePrompter{}, Config{}, nil)
	require.NoError(t, s.Run(context.Background(), conn))
	assert.Equal(t, StateClosed, s.State())

	assert.Equal(t, []ServerMessage{
		Connected{},
		TextChunk{Content: "Hel"},
		TextChunk{Content: "lo"},
		ToolCallRequest{Name: ToolSeekVideo, Args: map[string]any{"timestamp_seconds": 12.0}},
		TextChunk{Content: "Watch the chorus."},
	}, conn.written())

	require.Len(t, backend.requests, 3)
	first := backend.requests[0]
	require.NotNil(t, first.SystemInstruction)
	assert.Equal(t, "greet the user", first.Contents[0].Parts[0].Text)
	assert.Len(t, first.Tools[0].FunctionDeclarations, 3)

	last := backend.requests[2].Contents
	require.Len(t, last, 5)
	call := last[3].Parts[0]
	require.NotNil(t, call.FunctionCall)
	assert.Equal(t, "sig-1", call.ThoughtSignature)
	resp := last[4].Parts[0].FunctionResponse
	require.NotNil(t, resp)
	assert.Equal(t, "call-1", resp.ID)
	assert.Equal(t, "user", last[4].Role)

	history := s.History()
	require.Len(t, history, 6)
	assert.Equal(t, "Hello", history[1].Parts[0].Text)
	assert.Equal(t, "Watch the chorus.", history[5].Parts[0].Text)
}

func TestChatSessionBackendErrorKeepsSession(t *testing.T) {
	backend := &scriptedBackend{replies: []scriptedReply{
		textReply("Hi"),
		{err: errors.New("quota exceeded")},
		textReply("Fine."),
	}}
	conn := newFakeConn(4)
	conn.in <- frame{msg: TextMessage{Content: "first"}}
	conn.in <- frame{msg: TextMessage{Content: "second"}}
	close(conn.in)

	s := NewChatSession(logger.Nop(), backend, &fakePrompter{}, Config{}, nil)
	require.NoError(t, s.Run(context.Background(), conn))

	out := conn.written()
	assert.Contains(t, out, ErrorMessage{Message: "quota exceeded"})
	assert.Equal(t, TextChunk{Content: "Fine."}, out[len(out)-1])

	require.Len(t, backend.requests, 3)
	contents := backend.requests[2].Contents
	require.Len(t, contents, 3)
	assert.Equal(t, "second", contents[2].Parts[0].Text)
	assert.Len(t, s.History(), 4)
}

func TestChatSessionEmptyReplyKeepsTurnsAlternating(t *testing.T) {
	backend := &scriptedBackend{replies: []scriptedReply{
		textReply("Hi"),
		{},
		textReply("Got it."),
	}}
	conn := newFakeConn(4)
	conn.in <- frame{msg: TextMessage{Content: "lost"}}
	conn.in <- frame{msg: TextMessage{Content: "again"}}
	close(conn.in)

	s := NewChatSession(logger.Nop(), backend, &fakePrompter{}, Config{}, nil)
	require.NoError(t, s.Run(context.Background(), conn))

	require.Len(t, backend.requests, 3)
	contents := backend.requests[2].Contents
	roles := make([]string, 0, len(contents))
	for _, c := range contents {
		roles = append(roles, c.Role)
	}
	assert.Equal(t, []string{"user", "model", "user"}, roles)
	assert.Equal(t, "again", contents[2].Parts[0].Text)
	assert.Len(t, s.History(), 4)
}

func TestChatSessionContextAndUnmatchedToolResult(t *testing.T) {
	backend := &scriptedBackend{replies: []scriptedReply{textReply("Hi"), textReply("Recorder is open.")}}
	prompts := &fakePrompter{}
	conn := newFakeConn(8)
	conn.in <- frame{err: &DecodeError{Err: errors.New("bad json")}}
	conn.in <- frame{msg: ContextMessage{Analysis: json.RawMessage(`{"overall_score":70}`)}}
	conn.in <- frame{msg: AudioMessage{Data: []byte{1, 2}}}
	conn.in <- frame{msg: ToolResultMessage{Name: ToolOpenRecorder, Result: map[string]any{"status": "ok"}}}
	close(conn.in)

	s := NewChatSession(logger.Nop(), backend, prompts, Config{}, nil)
	require.NoError(t, s.Run(context.Background(), conn))

	assert.Equal(t, map[string]any{"overall_score": 70.0}, prompts.lastSnapshot())
	assert.Contains(t, conn.written(), ErrorMessage{Message: "audio is only supported on the live coach"})

	require.Len(t, backend.requests, 2)
	contents := backend.requests[1].Contents
	assert.Equal(t, `Tool open_recorder result: {"status":"ok"}`, contents[len(contents)-1].Parts[0].Text)
}

func TestChatSessionStopsWhenClientLeaves(t *testing.T) {
	backend := &scriptedBackend{replies: []scriptedReply{textReply("Hi")}}
	conn := newFakeConn(1)
	conn.Close()
	s := NewChatSession(logger.Nop(), backend, &fakePrompter{}, Config{}, nil)
	assert.NoError(t, s.Run(context.Background(), conn))
	assert.Empty(t, backend.requests)
}

type fakeLive struct {
	recv      chan *gemini.LiveServerMessage
	closed    chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	texts     []string
	complete  []bool
	audio     []string
	acks      []gemini.FunctionResponse
}

func newFakeLive() *fakeLive {
	return &fakeLive{recv: make(chan *gemini.LiveServerMessage, 8), closed: make(chan struct{})}
}

func (l *fakeLive) SendText(text string, turnComplete bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.texts = append(l.texts, text)
	l.complete = append(l.complete, turnComplete)
	return nil
}

func (l *fakeLive) SendAudio(data, _ string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.audio = append(l.audio, data)
	return nil
}

func (l *fakeLive) SendToolResponse(responses ...gemini.FunctionResponse) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acks = append(l.acks, responses...)
	return nil
}

func (l *fakeLive) Receive() (*gemini.LiveServerMessage, error) {
	select {
	case m, ok := <-l.recv:
		if !ok {
			return nil, gemini.ErrLiveClosed
		}
		return m, nil
	case <-l.closed:
		return nil, errors.New("use of closed network connection")
	}
}

func (l *fakeLive) Close() error {
	l.closeOnce.Do(func() { close(l.closed) })
	return nil
}

func (l *fakeLive) sentTexts() ([]string, []bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.texts...), append([]bool(nil), l.complete...)
}

type fakeLiveBackend struct {
	live *fakeLive
	err  error
	cfg  gemini.LiveConfig
}

func (b *fakeLiveBackend) Connect(_ context.Context, cfg gemini.LiveConfig) (LiveConn, error) {
	b.cfg = cfg
	if b.err != nil {
		return nil, b.err
	}
	return b.live, nil
}

func TestLiveSessionBridgesBothDirections(t *testing.T) {
	live := newFakeLive()
	backend := &fakeLiveBackend{live: live}
	conn := newFakeConn(8)
	s := NewLiveSession(logger.Nop(), backend, &fakePrompter{}, Config{LiveModel: "live-test"}, nil)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background(), conn) }()

	live.recv <- &gemini.LiveServerMessage{ServerContent: &gemini.LiveServerContent{ModelTurn: &gemini.Content{Parts: []gemini.Part{
		{InlineData: &gemini.Blob{MimeType: "audio/pcm;rate=24000", Data: base64.StdEncoding.EncodeToString([]byte("pcm"))}},
		{Text: "hey"},
	}}}}
	live.recv <- &gemini.LiveServerMessage{ToolCall: &gemini.LiveToolCall{FunctionCalls: []gemini.FunctionCall{
		{ID: "c1", Name: ToolStartCountdown, Args: map[string]any{"seconds": 3.0}},
	}}}

	require.Eventually(t, func() bool { return len(conn.written()) == 4 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []ServerMessage{
		Connected{},
		AudioChunk{Data: []byte("pcm")},
		TextChunk{Content: "hey"},
		ToolCallRequest{Name: ToolStartCountdown, Args: map[string]any{"seconds": 3.0}},
	}, conn.written())

	conn.in <- frame{msg: TextMessage{Content: "hello"}}
	conn.in <- frame{msg: AudioMessage{Data: []byte("mic")}}
	conn.in <- frame{msg: ToolResultMessage{Name: ToolStartCountdown, Result: map[string]any{"status": "ok"}}}
	conn.in <- frame{msg: ContextMessage{Analysis: json.RawMessage(`{"overall_score":80}`)}}
	require.Eventually(t, func() bool {
		texts, _ := live.sentTexts()
		return len(texts) == 4
	}, 2*time.Second, 10*time.Millisecond)
	close(conn.in)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("live session did not stop")
	}

	texts, complete := live.sentTexts()
	assert.Equal(t, []string{
		"say hi out loud",
		"hello",
		`Tool start_countdown result: {"status":"ok"}`,
		`Updated session context: {"overall_score":80}`,
	}, texts)
	assert.Equal(t, []bool{true, true, true, false}, complete)
	assert.Equal(t, []string{base64.StdEncoding.EncodeToString([]byte("mic"))}, live.audio)
	require.Len(t, live.acks, 1)
	assert.Equal(t, "c1", live.acks[0].ID)
	assert.Equal(t, "executed", live.acks[0].Response["status"])
	assert.Equal(t, "live-test", backend.cfg.Model)
	assert.Equal(t, "be a coach", backend.cfg.SystemInstruction)
	assert.Equal(t, StateClosed, s.State())
}

func TestLiveSessionClearedContextIsAnnounced(t *testing.T) {
	live := newFakeLive()
	conn := newFakeConn(4)
	s := NewLiveSession(logger.Nop(), &fakeLiveBackend{live: live}, &fakePrompter{}, Config{}, map[string]any{"overall_score": 60.0})

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background(), conn) }()

	conn.in <- frame{msg: ContextMessage{Analysis: json.RawMessage(`null`)}}
	conn.in <- frame{msg: ContextMessage{}}
	require.Eventually(t, func() bool {
		texts, _ := live.sentTexts()
		return len(texts) == 3
	}, 2*time.Second, 10*time.Millisecond)
	close(conn.in)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("live session did not stop")
	}

	texts, complete := live.sentTexts()
	assert.Equal(t, []string{"say hi out loud", liveContextCleared, liveContextCleared}, texts)
	assert.Equal(t, []bool{true, false, false}, complete)
	for _, text := range texts {
		assert.NotContains(t, text, "Updated session context")
	}
}

func TestLiveSessionEndsWhenBackendCloses(t *testing.T) {
	live := newFakeLive()
	conn := newFakeConn(1)
	s := NewLiveSession(logger.Nop(), &fakeLiveBackend{live: live}, &fakePrompter{}, Config{}, nil)
	close(live.recv)
	assert.NoError(t, s.Run(context.Background(), conn))
	select {
	case <-conn.closed:
	default:
		t.Fatal("client channel left open")
	}
}

func TestLiveSessionConnectFailure(t *testing.T) {
	conn := newFakeConn(1)
	s := NewLiveSession(logger.Nop(), &fakeLiveBackend{err: errors.New("handshake refused")}, &fakePrompter{}, Config{}, nil)
	err := s.Run(context.Background(), conn)
	require.Error(t, err)
	out := conn.written()
	require.Len(t, out, 1)
	assert.IsType(t, ErrorMessage{}, out[0])
}

func TestMessageCodec(t *testing.T) {
	m, err := DecodeClientMessage([]byte(`{"type":"tool_result","name":"seek_video"}`))
	require.NoError(t, err)
	assert.Equal(t, ToolResultMessage{Name: "seek_video", Result: map[string]any{"status": "ok"}}, m)

	m, err = DecodeClientMessage([]byte(`{"type":"audio","data":"` + base64.StdEncoding.EncodeToString([]byte("ab")) + `"}`))
	require.NoError(t, err)
	assert.Equal(t, AudioMessage{Data: []byte("ab")}, m)

	_, err = DecodeClientMessage([]byte(`{"type":"dance"}`))
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.ErrorIs(t, err, ErrUnknownMessage)

	_, err = DecodeClientMessage([]byte(`{"type":"text"}`))
	assert.ErrorAs(t, err, &de)

	b, err := EncodeServerMessage(ToolCallRequest{Name: ToolOpenRecorder})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"tool_call","name":"open_recorder","args":{}}`, string(b))

	b, err = EncodeServerMessage(AudioChunk{Data: []byte("ab")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"audio","data":"YWI="}`, string(b))
}

func TestStateMachineClosedIsTerminal(t *testing.T) {
	var m stateMachine
	assert.Equal(t, StateConnecting, m.State())
	assert.True(t, m.set(StateTurnExchange))
	assert.Equal(t, "turn-exchange", m.State().String())
	assert.True(t, m.set(StateClosed))
	assert.False(t, m.set(StateReady))
	assert.Equal(t, StateClosed, m.State())
}
