package bus

import (
	"context"

	"github.com/KKQanT/cringe-alert-v2/internal/realtime"
)

// Bus fans SSE messages out across server instances.
type Bus interface {
	Publish(ctx context.Context, msg realtime.SSEMessage) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error
	Close() error
}
