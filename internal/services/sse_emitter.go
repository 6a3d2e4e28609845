package services

import (
	"context"

	"github.com/KKQanT/cringe-alert-v2/internal/platform/logger"
	"github.com/KKQanT/cringe-alert-v2/internal/realtime"
	"github.com/KKQanT/cringe-alert-v2/internal/realtime/bus"
)

type SSEEmitter interface {
	Emit(ctx context.Context, msg realtime.SSEMessage)
}

type HubEmitter struct{ Hub *realtime.SSEHub }

func (e *HubEmitter) Emit(ctx context.Context, msg realtime.SSEMessage) {
	e.Hub.Broadcast(msg)
}

// RedisEmitter publishes to other instances. The bus forwarder skips our own
// origin, so local subscribers must be reached through a HubEmitter as well.
type RedisEmitter struct {
	Bus bus.Bus
	Log *logger.Logger
}

func (e *RedisEmitter) Emit(ctx context.Context, msg realtime.SSEMessage) {
	if err := e.Bus.Publish(ctx, msg); err != nil && e.Log != nil {
		e.Log.Warn("Redis publish failed", "channel", msg.Channel, "event", msg.Event, "error", err)
	}
}

type MultiEmitter []SSEEmitter

func (m MultiEmitter) Emit(ctx context.Context, msg realtime.SSEMessage) {
	for _, e := range m {
		if e != nil {
			e.Emit(ctx, msg)
		}
	}
}
