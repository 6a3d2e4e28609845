package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/KKQanT/cringe-alert-v2/internal/coach"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/apierr"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/logger"
	"github.com/KKQanT/cringe-alert-v2/internal/services"
)

type CoachHandler struct {
	log      *logger.Logger
	sessions services.SessionService
	text     coach.TextBackend
	live     coach.LiveBackend
	prompts  coach.Prompter
	cfg      coach.Config
	upgrader websocket.Upgrader
}

type CoachDeps struct {
	Sessions services.SessionService
	Text     coach.TextBackend
	Live     coach.LiveBackend
	Prompts  coach.Prompter
	Config   coach.Config
	Origins  []string
}

func NewCoachHandler(log *logger.Logger, deps CoachDeps) *CoachHandler {
	origins := deps.Origins
	return &CoachHandler{
		log:      log.With("handler", "CoachHandler"),
		sessions: deps.Sessions,
		text:     deps.Text,
		live:     deps.Live,
		prompts:  deps.Prompts,
		cfg:      deps.Config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  32 * 1024,
			WriteBufferSize: 32 * 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(origins) == 0 || slices.Contains(origins, origin)
			},
		},
	}
}

// Text serves the text-native coach over a websocket.
func (h *CoachHandler) Text(c *gin.Context) {
	snapshot := h.snapshot(c.Request.Context(), c.Query("session_id"))
	h.serve(c, coach.ModeText, func(ctx context.Context, conn coach.Conn) error {
		return coach.NewChatSession(h.log, h.text, h.prompts, h.cfg, snapshot).Run(ctx, conn)
	})
}

// Live serves the audio-native coach over a websocket.
func (h *CoachHandler) Live(c *gin.Context) {
	snapshot := h.snapshot(c.Request.Context(), c.Query("session_id"))
	h.serve(c, coach.ModeAudio, func(ctx context.Context, conn coach.Conn) error {
		return coach.NewLiveSession(h.log, h.live, h.prompts, h.cfg, snapshot).Run(ctx, conn)
	})
}

func (h *CoachHandler) serve(c *gin.Context, mode string, run func(ctx context.Context, conn coach.Conn) error) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("Coach upgrade failed", "mode", mode, "error", err)
		return
	}
	conn := coach.NewWebsocketConn(ws)
	defer conn.Close()

	started := time.Now()
	err = run(c.Request.Context(), conn)
	if err != nil {
		h.log.Warn("Coach session ended with error", "mode", mode, "error", err)
		return
	}
	h.log.Info("Coach session closed", "mode", mode, "duration_ms", time.Since(started).Milliseconds())
}

// snapshot loads the session context the coach starts from. Missing or foreign
// sessions start the coach without context.
func (h *CoachHandler) snapshot(ctx context.Context, sessionID string) any {
	if sessionID == "" || h.sessions == nil {
		return nil
	}
	sc, err := h.sessions.Context(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, apierr.ErrNotFound) {
			h.log.Warn("Could not load coach context", "session_id", sessionID, "error", err)
		}
		return nil
	}
	return sc
}

// Ping answers {"type":"ping"} frames with {"type":"pong"} until the client leaves.
func (h *CoachHandler) Ping(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("Ping upgrade failed", "error", err)
		return
	}
	defer ws.Close()
	sessionID := c.Param("session_id")
	h.log.Debug("Ping socket open", "session_id", sessionID)
	for {
		var frame struct {
			Type string `json:"type"`
		}
		_, raw, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if json.Unmarshal(raw, &frame) != nil || frame.Type != "ping" {
			continue
		}
		if err := ws.WriteJSON(map[string]string{"type": "pong"}); err != nil {
			return
		}
	}
}
