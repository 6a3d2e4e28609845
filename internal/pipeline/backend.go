package pipeline

import (
	"context"
	"time"

	"github.com/KKQanT/cringe-alert-v2/internal/platform/envutil"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/gemini"
)

// Backend is the slice of the inference client the pipelines use. *gemini.Client satisfies it.
type Backend interface {
	UploadFile(ctx context.Context, localPath, mimeType string) (*gemini.File, error)
	GetFile(ctx context.Context, name string) (*gemini.File, error)
	DeleteFile(ctx context.Context, name string) error
	StreamGenerateContent(ctx context.Context, model string, req gemini.GenerateContentRequest, onChunk func(gemini.GenerateContentResponse) error) error
}

var _ Backend = (*gemini.Client)(nil)

const (
	DefaultAnalysisModel = "gemini-3-pro-preview"
	DefaultFixEvalModel  = "gemini-3-flash-preview"
	defaultReadyTimeout  = 120 * time.Second
	defaultPollInterval  = 2 * time.Second
	cleanupTimeout       = 30 * time.Second
)

type Config struct {
	AnalysisModel string
	FixEvalModel  string
	// ReadyTimeout bounds how long an uploaded file may stay in PROCESSING.
	ReadyTimeout time.Duration
	PollInterval time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		AnalysisModel: envutil.String("ANALYSIS_MODEL", DefaultAnalysisModel),
		FixEvalModel:  envutil.String("FIX_EVAL_MODEL", DefaultFixEvalModel),
		ReadyTimeout:  envutil.Seconds("FILE_READY_TIMEOUT_SECONDS", defaultReadyTimeout),
		PollInterval:  envutil.Seconds("FILE_POLL_INTERVAL_SECONDS", defaultPollInterval),
	}
}

func (c Config) withDefaults() Config {
	if c.AnalysisModel == "" {
		c.AnalysisModel = DefaultAnalysisModel
	}
	if c.FixEvalModel == "" {
		c.FixEvalModel = DefaultFixEvalModel
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = defaultReadyTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	return c
}
