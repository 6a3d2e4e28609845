package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/KKQanT/cringe-alert-v2/internal/platform/envutil"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/logger"
)

const defaultLiveURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

var ErrLiveClosed = errors.New("live session closed")

type LiveConfig struct {
	Model              string
	SystemInstruction  string
	Tools              []Tool
	ResponseModalities []string
}

type liveSetup struct {
	Setup struct {
		Model             string            `json:"model"`
		GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
		SystemInstruction *Content          `json:"systemInstruction,omitempty"`
		Tools             []Tool            `json:"tools,omitempty"`
	} `json:"setup"`
}

type liveClientContent struct {
	ClientContent struct {
		Turns        []Content `json:"turns"`
		TurnComplete bool      `json:"turnComplete"`
	} `json:"clientContent"`
}

type liveRealtimeInput struct {
	RealtimeInput struct {
		Audio *Blob `json:"audio"`
	} `json:"realtimeInput"`
}

type liveToolResponse struct {
	ToolResponse struct {
		FunctionResponses []FunctionResponse `json:"functionResponses"`
	} `json:"toolResponse"`
}

type LiveServerContent struct {
	ModelTurn          *Content `json:"modelTurn,omitempty"`
	TurnComplete       bool     `json:"turnComplete,omitempty"`
	GenerationComplete bool     `json:"generationComplete,omitempty"`
	Interrupted        bool     `json:"interrupted,omitempty"`
}

type LiveToolCall struct {
	FunctionCalls []FunctionCall `json:"functionCalls"`
}

type LiveGoAway struct {
	TimeLeft string `json:"timeLeft,omitempty"`
}

// LiveServerMessage is one frame from the bidirectional session. Exactly one field is normally set.
type LiveServerMessage struct {
	SetupComplete *struct{}          `json:"setupComplete,omitempty"`
	ServerContent *LiveServerContent `json:"serverContent,omitempty"`
	ToolCall      *LiveToolCall      `json:"toolCall,omitempty"`
	GoAway        *LiveGoAway        `json:"goAway,omitempty"`
}

const defaultLiveSetupTimeout = 30 * time.Second

type LiveClient struct {
	log    *logger.Logger
	url    string
	apiKey string
	dialer *websocket.Dialer

	// SetupTimeout bounds the wait for setupComplete when ctx carries no earlier deadline.
	SetupTimeout time.Duration
}

func NewLiveClient(log *logger.Logger, apiKey, liveURL string) (*LiveClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("missing GOOGLE_API_KEY")
	}
	if strings.TrimSpace(liveURL) == "" {
		liveURL = envutil.String("GEMINI_LIVE_URL", defaultLiveURL)
	}
	return &LiveClient{
		log:          log.With("service", "GeminiLive"),
		url:          liveURL,
		apiKey:       apiKey,
		dialer:       &websocket.Dialer{HandshakeTimeout: 15 * time.Second, ReadBufferSize: 64 * 1024, WriteBufferSize: 64 * 1024},
		SetupTimeout: envutil.Seconds("GEMINI_LIVE_SETUP_TIMEOUT_SECONDS", defaultLiveSetupTimeout),
	}, nil
}

// Connect dials the live endpoint, sends the setup frame and waits for setupComplete.
func (c *LiveClient) Connect(ctx context.Context, cfg LiveConfig) (*LiveSession, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return nil, fmt.Errorf("parse live url: %w", err)
	}
	q := u.Query()
	q.Set("key", c.apiKey)
	u.RawQuery = q.Encode()

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), http.Header{})
	if err != nil {
		if resp != nil {
			return nil, &HTTPError{StatusCode: resp.StatusCode, Body: "live handshake failed"}
		}
		return nil, fmt.Errorf("dial live: %w", err)
	}
	s := &LiveSession{conn: conn, log: c.log}

	var setup liveSetup
	model := cfg.Model
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}
	setup.Setup.Model = model
	modalities := cfg.ResponseModalities
	if len(modalities) == 0 {
		modalities = []string{"AUDIO"}
	}
	setup.Setup.GenerationConfig = &GenerationConfig{ResponseModalities: modalities}
	if cfg.SystemInstruction != "" {
		setup.Setup.SystemInstruction = SystemText(cfg.SystemInstruction)
	}
	setup.Setup.Tools = cfg.Tools
	if err := s.write(setup); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("send live setup: %w", err)
	}

	_ = conn.SetReadDeadline(c.setupDeadline(ctx))
	for {
		msg, err := s.Receive()
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("await setupComplete: %w", err)
		}
		if msg.SetupComplete != nil {
			break
		}
	}
	_ = conn.SetReadDeadline(time.Time{})
	c.log.Info("Live session established", "model", model)
	return s, nil
}

func (c *LiveClient) setupDeadline(ctx context.Context) time.Time {
	timeout := c.SetupTimeout
	if timeout <= 0 {
		timeout = defaultLiveSetupTimeout
	}
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		return d
	}
	return deadline
}

// LiveSession wraps one websocket to the live model. Sends are serialized; Receive must
// be called from a single goroutine.
type LiveSession struct {
	conn      *websocket.Conn
	log       *logger.Logger
	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    bool
}

func (s *LiveSession) write(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.closed {
		return ErrLiveClosed
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return s.conn.WriteJSON(v)
}

func (s *LiveSession) SendText(text string, turnComplete bool) error {
	var m liveClientContent
	m.ClientContent.Turns = []Content{UserText(text)}
	m.ClientContent.TurnComplete = turnComplete
	return s.write(m)
}

// SendAudio forwards a base64 encoded audio chunk.
func (s *LiveSession) SendAudio(data, mimeType string) error {
	var m liveRealtimeInput
	m.RealtimeInput.Audio = &Blob{MimeType: mimeType, Data: data}
	return s.write(m)
}

func (s *LiveSession) SendToolResponse(responses ...FunctionResponse) error {
	var m liveToolResponse
	m.ToolResponse.FunctionResponses = responses
	return s.write(m)
}

func (s *LiveSession) Receive() (*LiveServerMessage, error) {
	_, raw, err := s.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, ErrLiveClosed
		}
		return nil, err
	}
	var msg LiveServerMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("decode live message: %w", err)
	}
	return &msg, nil
}

func (s *LiveSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		s.closed = true
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}
