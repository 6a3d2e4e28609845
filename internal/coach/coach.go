package coach

import (
	"bytes"
	"encoding/json"

	"github.com/KKQanT/cringe-alert-v2/internal/platform/envutil"
)

const (
	ModeText  = "text"
	ModeAudio = "audio"
)

type Config struct {
	ChatModel string
	LiveModel string
	// OutboundQueue bounds the frames buffered between the live backend and the browser.
	OutboundQueue int
}

func ConfigFromEnv() Config {
	return Config{
		ChatModel:     envutil.String("COACH_MODEL", "gemini-3-flash-preview"),
		LiveModel:     envutil.String("LIVE_MODEL", "gemini-2.5-flash-native-audio-preview-12-2025"),
		OutboundQueue: envutil.Int("COACH_OUTBOUND_QUEUE", 64),
	}
}

func (c Config) withDefaults() Config {
	if c.ChatModel == "" {
		c.ChatModel = "gemini-3-flash-preview"
	}
	if c.LiveModel == "" {
		c.LiveModel = "gemini-2.5-flash-native-audio-preview-12-2025"
	}
	if c.OutboundQueue <= 0 {
		c.OutboundQueue = 64
	}
	return c
}

// Prompter renders the coach persona. *pipeline.Prompts satisfies it.
type Prompter interface {
	CoachSystem(snapshot any) (string, error)
	CoachGreeting() string
	LiveGreeting() string
}

// decodeSnapshot turns a context message payload into the value folded into the
// system instruction. Empty and null payloads clear the snapshot.
func decodeSnapshot(raw json.RawMessage) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return nil, err
	}
	return v, nil
}
