package handlers

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/KKQanT/cringe-alert-v2/internal/platform/logger"
	"github.com/KKQanT/cringe-alert-v2/internal/stream"
)

func TestHeartbeatStopWaitsForBeatInFlight(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	var beats atomic.Int32

	stop := startHeartbeat(time.Millisecond, func() error {
		beats.Add(1)
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	})

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatalf("heartbeat never fired")
	}

	stopped := make(chan struct{})
	go func() {
		stop()
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatalf("stop returned while a beat was still running")
	case <-time.After(30 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("stop did not return after the beat finished")
	}

	after := beats.Load()
	time.Sleep(20 * time.Millisecond)
	if got := beats.Load(); got != after {
		t.Fatalf("beats after stop: want=%d got=%d", after, got)
	}
	stop()
}

func TestServeEventStreamWritesNothingAfterReturn(t *testing.T) {
	gin.SetMode(gin.TestMode)
	prev := heartbeatInterval
	heartbeatInterval = time.Millisecond
	t.Cleanup(func() { heartbeatInterval = prev })

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest("POST", "/api/analyze/video/stream", nil)

	serveEventStream(c, logger.Nop(), func(ctx context.Context, sink stream.Sink) error {
		time.Sleep(20 * time.Millisecond)
		return sink.Emit(ctx, stream.Complete("{}"))
	})

	body := rec.Body.String()
	if !strings.Contains(body, ": ping\n\n") {
		t.Fatalf("expected heartbeats during the stream, got %q", body)
	}
	if !strings.Contains(body, "data: {\"type\":\"complete\",\"content\":\"{}\"}\n\n") {
		t.Fatalf("missing terminal event in %q", body)
	}
	time.Sleep(20 * time.Millisecond)
	if got := rec.Body.String(); got != body {
		t.Fatalf("response written after handler returned: %q", strings.TrimPrefix(got, body))
	}
}
