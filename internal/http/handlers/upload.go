package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/KKQanT/cringe-alert-v2/internal/http/response"
	"github.com/KKQanT/cringe-alert-v2/internal/services"
)

type UploadHandler struct {
	uploads services.UploadService
}

func NewUploadHandler(uploads services.UploadService) *UploadHandler {
	return &UploadHandler{uploads: uploads}
}

func (h *UploadHandler) SignedURL(c *gin.Context) {
	var req struct {
		Filename    string `json:"filename"`
		ContentType string `json:"content_type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	target, err := h.uploads.SignedURL(c.Request.Context(), req.Filename, req.ContentType)
	if err != nil {
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, target)
}
