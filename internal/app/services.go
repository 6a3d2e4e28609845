package app

import (
	"fmt"
	"os"

	"gorm.io/gorm"

	"github.com/KKQanT/cringe-alert-v2/internal/data/db"
	"github.com/KKQanT/cringe-alert-v2/internal/data/repos"
	"github.com/KKQanT/cringe-alert-v2/internal/pipeline"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/logger"
	"github.com/KKQanT/cringe-alert-v2/internal/realtime"
	"github.com/KKQanT/cringe-alert-v2/internal/services"
)

type Services struct {
	Auth       services.AuthService
	Session    services.SessionService
	Upload     services.UploadService
	Analyze    services.AnalyzeService
	Fix        services.FixService
	Conversion *services.ConversionQueue
	Prompts    *pipeline.Prompts
}

func loadPrompts(log *logger.Logger, path string) (*pipeline.Prompts, error) {
	if path == "" {
		return pipeline.DefaultPrompts()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts %s: %w", path, err)
	}
	log.Info("Using prompt override", "path", path)
	return pipeline.ParsePrompts(raw)
}

// wireEmitter fans notifications out to the local hub and, when configured, to the
// redis bus for other instances.
func wireEmitter(log *logger.Logger, hub *realtime.SSEHub, clients Clients) services.SSEEmitter {
	emitters := services.MultiEmitter{&services.HubEmitter{Hub: hub}}
	if clients.SSEBus != nil {
		emitters = append(emitters, &services.RedisEmitter{Bus: clients.SSEBus, Log: log})
	}
	return emitters
}

func wireServices(gdb *gorm.DB, log *logger.Logger, cfg Config, reposet repos.Repos, clients Clients, hub *realtime.SSEHub) (Services, error) {
	log.Info("Wiring services...")

	prompts, err := loadPrompts(log, cfg.PromptsPath)
	if err != nil {
		return Services{}, err
	}

	auth, err := services.NewAuthService(log, cfg.Auth)
	if err != nil {
		return Services{}, fmt.Errorf("init auth: %w", err)
	}

	notifier := services.NewSessionNotifier(wireEmitter(log, hub, clients))
	sessions := services.NewSessionService(log, reposet.Session, db.NewTxRunner(gdb), notifier)

	analysis := pipeline.NewAnalysisPipeline(log, clients.Gemini, prompts, cfg.Pipeline)
	fixEval := pipeline.NewFixEvaluationPipeline(log, clients.Gemini, prompts, cfg.Pipeline)

	return Services{
		Auth:       auth,
		Session:    sessions,
		Upload:     services.NewUploadService(log, clients.BlobStore),
		Analyze:    services.NewAnalyzeService(log, clients.BlobStore, clients.Transcoder, analysis, sessions, cfg.WorkDir),
		Fix:        services.NewFixService(log, clients.BlobStore, clients.Transcoder, fixEval, sessions, cfg.WorkDir),
		Conversion: services.NewConversionQueue(log, clients.BlobStore, clients.Transcoder, notifier, cfg.WorkDir, cfg.Conversion),
		Prompts:    prompts,
	}, nil
}
