package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/KKQanT/cringe-alert-v2/internal/http/response"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/ctxutil"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/logger"
	"github.com/KKQanT/cringe-alert-v2/internal/services"
	"github.com/KKQanT/cringe-alert-v2/internal/stream"
)

type AnalyzeHandler struct {
	log     *logger.Logger
	analyze services.AnalyzeService
	fix     services.FixService
	queue   *services.ConversionQueue
}

func NewAnalyzeHandler(log *logger.Logger, analyze services.AnalyzeService, fix services.FixService, queue *services.ConversionQueue) *AnalyzeHandler {
	return &AnalyzeHandler{
		log:     log.With("handler", "AnalyzeHandler"),
		analyze: analyze,
		fix:     fix,
		queue:   queue,
	}
}

// StreamVideo runs the analysis pipeline and streams its events.
func (h *AnalyzeHandler) StreamVideo(c *gin.Context) {
	var req services.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if err := req.Validate(); err != nil {
		response.RespondErr(c, err)
		return
	}
	serveEventStream(c, h.log, func(ctx context.Context, sink stream.Sink) error {
		return h.analyze.Stream(ctx, req, sink)
	})
}

// EnqueueConversion schedules a background transcode of an uploaded video.
func (h *AnalyzeHandler) EnqueueConversion(c *gin.Context) {
	var req struct {
		VideoURL string `json:"video_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	job := services.ConversionJob{BlobName: req.VideoURL, OwnerID: ctxutil.UserID(c.Request.Context())}
	if err := h.queue.Enqueue(job); err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"status": "processing", "message": "Conversion started"})
}

// StreamFix evaluates a fix attempt for one feedback item and streams its events.
func (h *AnalyzeHandler) StreamFix(c *gin.Context) {
	var req services.FixRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if err := req.Validate(); err != nil {
		response.RespondErr(c, err)
		return
	}
	serveEventStream(c, h.log, func(ctx context.Context, sink stream.Sink) error {
		return h.fix.Stream(ctx, req, sink)
	})
}
