package services

import (
	"context"

	domain "github.com/KKQanT/cringe-alert-v2/internal/domain/session"
	"github.com/KKQanT/cringe-alert-v2/internal/realtime"
)

// SessionNotifier pushes session changes to SSE subscribers. All methods are no-ops on a nil notifier.
type SessionNotifier interface {
	SessionUpdated(ctx context.Context, s *domain.Session)
	FeedbackUpdated(ctx context.Context, sessionID string, index int, item domain.FeedbackItem)
	ConversionDone(ctx context.Context, ownerID, sourceBlob, convertedBlob string)
	ConversionFailed(ctx context.Context, ownerID, sourceBlob, errorMessage string)
}

type sessionNotifier struct {
	emit SSEEmitter
}

func NewSessionNotifier(emit SSEEmitter) SessionNotifier {
	return &sessionNotifier{emit: emit}
}

func (n *sessionNotifier) SessionUpdated(ctx context.Context, s *domain.Session) {
	if n == nil || n.emit == nil || s == nil {
		return
	}
	n.emit.Emit(ctx, realtime.SSEMessage{
		Channel: realtime.SessionChannel(s.SessionID),
		Event:   realtime.SSEEventSessionUpdated,
		Data:    map[string]any{"session": s.Summary()},
	})
}

func (n *sessionNotifier) FeedbackUpdated(ctx context.Context, sessionID string, index int, item domain.FeedbackItem) {
	if n == nil || n.emit == nil || sessionID == "" {
		return
	}
	n.emit.Emit(ctx, realtime.SSEMessage{
		Channel: realtime.SessionChannel(sessionID),
		Event:   realtime.SSEEventFeedbackUpdated,
		Data: map[string]any{
			"session_id":     sessionID,
			"feedback_index": index,
			"item":           item,
		},
	})
}

func (n *sessionNotifier) ConversionDone(ctx context.Context, ownerID, sourceBlob, convertedBlob string) {
	if n == nil || n.emit == nil || ownerID == "" {
		return
	}
	n.emit.Emit(ctx, realtime.SSEMessage{
		Channel: realtime.UserChannel(ownerID),
		Event:   realtime.SSEEventConversionDone,
		Data: map[string]any{
			"source":    sourceBlob,
			"converted": convertedBlob,
		},
	})
}

func (n *sessionNotifier) ConversionFailed(ctx context.Context, ownerID, sourceBlob, errorMessage string) {
	if n == nil || n.emit == nil || ownerID == "" {
		return
	}
	n.emit.Emit(ctx, realtime.SSEMessage{
		Channel: realtime.UserChannel(ownerID),
		Event:   realtime.SSEEventConversionFailed,
		Data: map[string]any{
			"source": sourceBlob,
			"error":  errorMessage,
		},
	})
}
