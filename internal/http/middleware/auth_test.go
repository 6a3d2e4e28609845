package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/KKQanT/cringe-alert-v2/internal/platform/apierr"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/ctxutil"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/logger"
)

type stubAuth struct{}

func (stubAuth) Login(context.Context, string, string) (string, error) { return "", nil }

func (stubAuth) GetAccessTTL() time.Duration { return time.Hour }

func (stubAuth) SetContextFromToken(ctx context.Context, token string) (context.Context, error) {
	if token != "good" {
		return ctx, apierr.New(http.StatusUnauthorized, "invalid_token", errors.New("Invalid token"))
	}
	return ctxutil.WithRequestData(ctx, &ctxutil.RequestData{UserID: "alice", TokenString: token}), nil
}

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	am := NewAuthMiddleware(logger.Nop(), stubAuth{})
	r.GET("/api/whoami", am.RequireAuth(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": ctxutil.UserID(c.Request.Context())})
	})
	return r
}

func TestRequireAuthHeaderAndQuery(t *testing.T) {
	r := newAuthRouter()
	cases := []struct {
		name   string
		target string
		header string
		status int
	}{
		{name: "bearer", target: "/api/whoami", header: "Bearer good", status: http.StatusOK},
		{name: "query", target: "/api/whoami?token=good", status: http.StatusOK},
		{name: "missing", target: "/api/whoami", status: http.StatusUnauthorized},
		{name: "bad token", target: "/api/whoami", header: "Bearer nope", status: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("status: want=%d got=%d body=%s", tc.status, rec.Code, rec.Body.String())
			}
			if tc.status != http.StatusOK {
				var env struct {
					Error struct{ Message, Code string } `json:"error"`
				}
				if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
					t.Fatalf("decode envelope: %v", err)
				}
				if env.Error.Message == "" || env.Error.Code == "" {
					t.Fatalf("envelope incomplete: %s", rec.Body.String())
				}
			}
		})
	}
}

func TestRequireAuthClosesWebsocketWithPolicyViolation(t *testing.T) {
	srv := httptest.NewServer(newAuthRouter())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/whoami?token=nope"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = ws.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("want close 1008 got %v", err)
	}
}
