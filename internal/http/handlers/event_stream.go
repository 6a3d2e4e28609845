package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/KKQanT/cringe-alert-v2/internal/platform/logger"
	"github.com/KKQanT/cringe-alert-v2/internal/stream"
)

var heartbeatInterval = 15 * time.Second

// serveEventStream switches the response to SSE and runs fn against it. Heartbeat
// comments keep proxies from closing the connection during long model calls.
func serveEventStream(c *gin.Context, log *logger.Logger, fn func(ctx context.Context, sink stream.Sink) error) {
	stream.SetSSEHeaders(c.Writer.Header())
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()

	sink := stream.NewSSEWriter(c.Writer)
	ctx, cancel := context.WithCancel(c.Request.Context())
	stop := startHeartbeat(heartbeatInterval, sink.Heartbeat)
	defer func() {
		cancel()
		stop()
	}()

	if err := fn(ctx, sink); err != nil {
		log.Info("Event stream ended with error", "path", c.FullPath(), "error", err)
	}
}

// startHeartbeat calls beat every interval until stop is called. stop waits for a beat
// in flight, so the writer is never touched once it returns.
func startHeartbeat(interval time.Duration, beat func() error) (stop func()) {
	quit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-quit:
				return
			case <-t.C:
				if err := beat(); err != nil {
					return
				}
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(quit)
			<-done
		})
	}
}
