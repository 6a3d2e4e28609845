package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/KKQanT/cringe-alert-v2/internal/http/response"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/apierr"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/ctxutil"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/logger"
	"github.com/KKQanT/cringe-alert-v2/internal/services"
)

var errMissingToken = errors.New("missing or invalid token")

type AuthMiddleware struct {
	log         *logger.Logger
	authService services.AuthService
	upgrader    websocket.Upgrader
}

func NewAuthMiddleware(log *logger.Logger, authService services.AuthService) *AuthMiddleware {
	middlewareLogger := log.With("Middleware", "AuthMiddleware")
	return &AuthMiddleware{
		log:         middlewareLogger,
		authService: authService,
		upgrader:    websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
	}
}

// RequireAuth attaches the caller to the request context. Websocket handshakes that
// fail authentication are accepted and closed with policy violation (1008) so browsers
// see a close code instead of a failed upgrade.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractTokenFromAll(c)
		var (
			ctx = c.Request.Context()
			err = error(errMissingToken)
		)
		if tokenString != "" {
			ctx, err = am.authService.SetContextFromToken(ctx, tokenString)
		}
		if err == nil && ctxutil.UserID(ctx) == "" {
			err = errMissingToken
		}
		if err != nil {
			am.reject(c, err)
			return
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (am *AuthMiddleware) reject(c *gin.Context, err error) {
	if !websocket.IsWebSocketUpgrade(c.Request) {
		status, code := apierr.Status(err)
		if status != http.StatusUnauthorized {
			status, code = http.StatusUnauthorized, "unauthorized"
		}
		response.AbortErr(c, status, code, err)
		return
	}
	c.Abort()
	ws, uerr := am.upgrader.Upgrade(c.Writer, c.Request, nil)
	if uerr != nil {
		am.log.Debug("Websocket upgrade for rejected caller failed", "error", uerr)
		return
	}
	defer ws.Close()
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()),
		time.Now().Add(time.Second))
}

func extractTokenFromAll(c *gin.Context) string {
	if qToken := c.Query("token"); qToken != "" {
		return qToken
	}
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}
