package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/KKQanT/cringe-alert-v2/internal/platform/logger"
)

// fakeLive accepts one session and echoes client frames into received.
func fakeLive(t *testing.T, received chan<- map[string]any, script func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "k" {
			http.Error(w, "no key", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var setup map[string]any
		if err := conn.ReadJSON(&setup); err != nil {
			return
		}
		received <- setup
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte(`{"setupComplete":{}}`))
		script(conn)
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestLiveConnectAndExchange(t *testing.T) {
	received := make(chan map[string]any, 8)
	srv := fakeLive(t, received, func(conn *websocket.Conn) {
		var m map[string]any
		if err := conn.ReadJSON(&m); err != nil {
			return
		}
		received <- m
		_ = conn.WriteJSON(map[string]any{
			"toolCall": map[string]any{"functionCalls": []any{
				map[string]any{"id": "c1", "name": "seek_video", "args": map[string]any{"timestamp_seconds": 12.5}},
			}},
		})
		if err := conn.ReadJSON(&m); err != nil {
			return
		}
		received <- m
		_ = conn.WriteJSON(map[string]any{
			"serverContent": map[string]any{"modelTurn": map[string]any{"parts": []any{
				map[string]any{"inlineData": map[string]any{"mimeType": "audio/pcm", "data": "AAAA"}},
			}}},
		})
	})
	defer srv.Close()

	lc, err := NewLiveClient(logger.Nop(), "k", wsURL(srv))
	if err != nil {
		t.Fatalf("NewLiveClient: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := lc.Connect(ctx, LiveConfig{Model: "live-model", SystemInstruction: "be nice"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer sess.Close()

	setup := <-received
	b, _ := json.Marshal(setup)
	if !strings.Contains(string(b), `"model":"models/live-model"`) || !strings.Contains(string(b), `"responseModalities":["AUDIO"]`) {
		t.Fatalf("setup frame: %s", b)
	}

	if err := sess.SendText("hello", true); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	b, _ = json.Marshal(<-received)
	if !strings.Contains(string(b), `"turnComplete":true`) || !strings.Contains(string(b), `"text":"hello"`) {
		t.Fatalf("clientContent frame: %s", b)
	}

	msg, err := sess.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if msg.ToolCall == nil || msg.ToolCall.FunctionCalls[0].Name != "seek_video" || msg.ToolCall.FunctionCalls[0].Args["timestamp_seconds"] != 12.5 {
		t.Fatalf("tool call: %+v", msg)
	}

	if err := sess.SendToolResponse(FunctionResponse{ID: "c1", Name: "seek_video", Response: map[string]any{"status": "executed"}}); err != nil {
		t.Fatalf("SendToolResponse: %v", err)
	}
	b, _ = json.Marshal(<-received)
	if !strings.Contains(string(b), `"functionResponses"`) || !strings.Contains(string(b), `"executed"`) {
		t.Fatalf("toolResponse frame: %s", b)
	}

	msg, err = sess.Receive()
	if err != nil {
		t.Fatalf("Receive audio: %v", err)
	}
	if msg.ServerContent == nil || msg.ServerContent.ModelTurn.Parts[0].InlineData.Data != "AAAA" {
		t.Fatalf("audio: %+v", msg)
	}
}

func TestLiveSendAfterClose(t *testing.T) {
	received := make(chan map[string]any, 4)
	srv := fakeLive(t, received, func(conn *websocket.Conn) {
		_, _, _ = conn.ReadMessage()
	})
	defer srv.Close()

	lc, _ := NewLiveClient(logger.Nop(), "k", wsURL(srv))
	sess, err := lc.Connect(context.Background(), LiveConfig{Model: "m"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	_ = sess.Close()
	if err := sess.SendAudio("AAAA", "audio/pcm"); err != ErrLiveClosed {
		t.Fatalf("want ErrLiveClosed got %v", err)
	}
}

func TestLiveConnectTimesOutWithoutSetupComplete(t *testing.T) {
	upgrader := websocket.Upgrader{}
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, _, _ = conn.ReadMessage()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	lc, err := NewLiveClient(logger.Nop(), "k", wsURL(srv))
	if err != nil {
		t.Fatalf("NewLiveClient: %v", err)
	}
	lc.SetupTimeout = 50 * time.Millisecond

	started := time.Now()
	_, err = lc.Connect(context.Background(), LiveConfig{Model: "m"})
	if err == nil || !strings.Contains(err.Error(), "await setupComplete") {
		t.Fatalf("want setup timeout error, got %v", err)
	}
	if elapsed := time.Since(started); elapsed > 2*time.Second {
		t.Fatalf("Connect blocked for %v", elapsed)
	}
}

func TestLiveSetupDeadlinePrefersEarlierContext(t *testing.T) {
	lc := &LiveClient{SetupTimeout: time.Hour}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	want, _ := ctx.Deadline()
	if got := lc.setupDeadline(ctx); !got.Equal(want) {
		t.Fatalf("setupDeadline: want=%v got=%v", want, got)
	}
	if got := lc.setupDeadline(context.Background()); time.Until(got) < 59*time.Minute {
		t.Fatalf("setupDeadline without ctx deadline: got %v", got)
	}
}
