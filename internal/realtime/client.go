package realtime

import (
	"github.com/google/uuid"

	"github.com/KKQanT/cringe-alert-v2/internal/platform/logger"
)

// SSEClient is one subscriber connection. Outbound is closed by SSEHub.CloseClient.
type SSEClient struct {
	ID       uuid.UUID
	UserID   string
	Channels map[string]bool
	Outbound chan SSEMessage
	done     chan struct{}
	Logger   *logger.Logger
}
