package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/KKQanT/cringe-alert-v2/internal/platform/gcp"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/gemini"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/localmedia"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/logger"
	"github.com/KKQanT/cringe-alert-v2/internal/realtime/bus"
)

type Clients struct {
	BlobStore  *gcp.BlobStore
	Gemini     *gemini.Client
	Live       *gemini.LiveClient
	Transcoder *localmedia.Transcoder
	// SSEBus is nil when REDIS_ADDR is unset; notifications then stay in process.
	SSEBus bus.Bus
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	store, err := resolveBlobStore(ctx, log, cfg)
	if err != nil {
		return Clients{}, err
	}

	gc, err := gemini.NewClient(log, cfg.Gemini)
	if err != nil {
		_ = store.Close()
		return Clients{}, fmt.Errorf("init gemini client: %w", err)
	}
	live, err := gemini.NewLiveClient(log, cfg.Gemini.APIKey, cfg.LiveURL)
	if err != nil {
		_ = store.Close()
		return Clients{}, fmt.Errorf("init gemini live client: %w", err)
	}

	transcoder := localmedia.NewTranscoder(log,
		localmedia.WithFFmpegPath(cfg.FFmpegPath),
		localmedia.WithTimeout(cfg.TranscodeTimeout),
	)
	if err := transcoder.AssertReady(); err != nil {
		log.Warn("ffmpeg is not available; analysis requests will fail", "ffmpeg", cfg.FFmpegPath, "error", err)
	}

	// Redis
	var sseBus bus.Bus
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		b, err := bus.NewRedisBus(log, uuid.NewString())
		if err != nil {
			_ = store.Close()
			return Clients{}, fmt.Errorf("init redis bus: %w", err)
		}
		sseBus = b
	}

	return Clients{
		BlobStore:  store,
		Gemini:     gc,
		Live:       live,
		Transcoder: transcoder,
		SSEBus:     sseBus,
	}, nil
}

func (c Clients) Close(log *logger.Logger) {
	if c.SSEBus != nil {
		if err := c.SSEBus.Close(); err != nil {
			log.Warn("Closing SSE bus failed", "error", err)
		}
	}
	if c.BlobStore != nil {
		if err := c.BlobStore.Close(); err != nil {
			log.Warn("Closing blob store failed", "error", err)
		}
	}
}
