package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/KKQanT/cringe-alert-v2/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondErr maps err through apierr.Status. Unclassified errors become 500.
func RespondErr(c *gin.Context, err error) {
	status, code := apierr.Status(err)
	RespondError(c, status, code, err)
}

// AbortErr writes the envelope and stops the handler chain.
func AbortErr(c *gin.Context, status int, code string, err error) {
	RespondError(c, status, code, err)
	c.Abort()
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}
