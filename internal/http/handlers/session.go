package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/KKQanT/cringe-alert-v2/internal/http/response"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/logger"
	"github.com/KKQanT/cringe-alert-v2/internal/services"
)

const defaultListLimit = 20

type SessionHandler struct {
	log      *logger.Logger
	sessions services.SessionService
	uploads  services.UploadService
}

func NewSessionHandler(log *logger.Logger, sessions services.SessionService, uploads services.UploadService) *SessionHandler {
	return &SessionHandler{
		log:      log.With("handler", "SessionHandler"),
		sessions: sessions,
		uploads:  uploads,
	}
}

func (h *SessionHandler) Create(c *gin.Context) {
	sess, err := h.sessions.Create(c.Request.Context())
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"session_id": sess.SessionID})
}

func (h *SessionHandler) List(c *gin.Context) {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.RespondError(c, http.StatusBadRequest, "invalid_limit", err)
			return
		}
		limit = n
	}
	items, err := h.sessions.List(c.Request.Context(), limit)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"sessions": items})
}

// Get returns the full session document with download URLs signed afresh.
func (h *SessionHandler) Get(c *gin.Context) {
	sess, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	h.uploads.RefreshURLs(c.Request.Context(), sess)
	response.RespondOK(c, gin.H{"session": sess, "summary": sess.Summary()})
}

func (h *SessionHandler) Context(c *gin.Context) {
	sc, err := h.sessions.Context(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, sc)
}

func (h *SessionHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.sessions.Delete(c.Request.Context(), id); err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"status": "deleted", "session_id": id})
}

func (h *SessionHandler) SkipFeedback(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_index", err)
		return
	}
	sess, err := h.sessions.SkipFeedback(c.Request.Context(), c.Param("id"), index)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"status": "skipped", "feedback_index": index, "summary": sess.Summary()})
}
