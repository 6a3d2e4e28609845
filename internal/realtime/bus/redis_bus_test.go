package bus

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/KKQanT/cringe-alert-v2/internal/platform/logger"
	"github.com/KKQanT/cringe-alert-v2/internal/realtime"
)

func TestNewRedisBusRequiresAddr(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	if _, err := NewRedisBus(logger.Nop(), "a"); err == nil {
		t.Fatalf("expected error without REDIS_ADDR")
	}
}

func TestRedisBusForwardsAcrossInstances(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis bus tests")
	}
	newClient := func() *goredis.Client { return goredis.NewClient(&goredis.Options{Addr: addr}) }
	a := newRedisBus(logger.Nop(), newClient(), "test-session-events", "instance-a")
	b := newRedisBus(logger.Nop(), newClient(), "test-session-events", "instance-b")
	t.Cleanup(func() { _ = a.Close(); _ = b.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gotA := make(chan realtime.SSEMessage, 1)
	gotB := make(chan realtime.SSEMessage, 1)
	if err := a.StartForwarder(ctx, func(m realtime.SSEMessage) { gotA <- m }); err != nil {
		t.Fatalf("StartForwarder a: %v", err)
	}
	if err := b.StartForwarder(ctx, func(m realtime.SSEMessage) { gotB <- m }); err != nil {
		t.Fatalf("StartForwarder b: %v", err)
	}

	msg := realtime.SSEMessage{Channel: realtime.SessionChannel("s1"), Event: realtime.SSEEventSessionUpdated}
	if err := a.Publish(ctx, msg); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case m := <-gotB:
		if m.Channel != msg.Channel || m.Event != msg.Event {
			t.Fatalf("forwarded message mismatch: %+v", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("instance b never received the message")
	}
	select {
	case m := <-gotA:
		t.Fatalf("publisher must not receive its own message: %+v", m)
	case <-time.After(200 * time.Millisecond):
	}
}
