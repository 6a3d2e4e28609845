package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/KKQanT/cringe-alert-v2/internal/http/response"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/ctxutil"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/logger"
	"github.com/KKQanT/cringe-alert-v2/internal/realtime"
	"github.com/KKQanT/cringe-alert-v2/internal/services"
)

type RealtimeHandler struct {
	Log      *logger.Logger
	Hub      *realtime.SSEHub
	sessions services.SessionService
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.SSEHub, sessions services.SessionService) *RealtimeHandler {
	return &RealtimeHandler{
		Log:      log.With("handler", "RealtimeHandler"),
		Hub:      hub,
		sessions: sessions,
	}
}

// SessionEvents streams notifications for one session plus the caller's own
// conversion notifications until the client disconnects.
func (h *RealtimeHandler) SessionEvents(c *gin.Context) {
	ctx := c.Request.Context()
	sessionID := c.Param("id")
	if _, err := h.sessions.Get(ctx, sessionID); err != nil {
		response.RespondErr(c, err)
		return
	}
	userID := ctxutil.UserID(ctx)

	client := h.Hub.NewSSEClient(userID)
	client.Logger = client.Logger.With("session_id", sessionID)
	h.Hub.AddChannel(client, realtime.SessionChannel(sessionID))
	if userID != "" {
		h.Hub.AddChannel(client, realtime.UserChannel(userID))
	}
	h.Log.Info("SSE stream open", "session_id", sessionID, "user_id", userID)

	h.Hub.ServeHTTP(c.Writer, c.Request, client)
	h.Hub.CloseClient(client)
}
