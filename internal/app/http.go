package app

import (
	"github.com/KKQanT/cringe-alert-v2/internal/coach"
	"github.com/KKQanT/cringe-alert-v2/internal/http"
	httpH "github.com/KKQanT/cringe-alert-v2/internal/http/handlers"
	httpMW "github.com/KKQanT/cringe-alert-v2/internal/http/middleware"
	"github.com/KKQanT/cringe-alert-v2/internal/observability"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/logger"
	"github.com/KKQanT/cringe-alert-v2/internal/realtime"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health   *httpH.HealthHandler
	Auth     *httpH.AuthHandler
	Upload   *httpH.UploadHandler
	Analyze  *httpH.AnalyzeHandler
	Session  *httpH.SessionHandler
	Realtime *httpH.RealtimeHandler
	Coach    *httpH.CoachHandler
}

func wireHandlers(log *logger.Logger, cfg Config, services Services, clients Clients, sseHub *realtime.SSEHub) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:   httpH.NewHealthHandler(),
		Auth:     httpH.NewAuthHandler(services.Auth),
		Upload:   httpH.NewUploadHandler(services.Upload),
		Analyze:  httpH.NewAnalyzeHandler(log, services.Analyze, services.Fix, services.Conversion),
		Session:  httpH.NewSessionHandler(log, services.Session, services.Upload),
		Realtime: httpH.NewRealtimeHandler(log, sseHub, services.Session),
		Coach: httpH.NewCoachHandler(log, httpH.CoachDeps{
			Sessions: services.Session,
			Text:     clients.Gemini,
			Live:     coach.GeminiLive{Client: clients.Live},
			Prompts:  services.Prompts,
			Config:   cfg.Coach,
			Origins:  cfg.CORSOrigins,
		}),
	}
}

func wireMiddleware(log *logger.Logger, services Services) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, services.Auth),
	}
}

func wireServer(log *logger.Logger, cfg Config, handlers Handlers, middleware Middleware) *http.Server {
	return http.NewServer(http.RouterConfig{
		Log:             log,
		ServiceName:     cfg.ServiceName,
		Origins:         cfg.CORSOrigins,
		Metrics:         observability.Current(),
		AuthMiddleware:  middleware.Auth,
		HealthHandler:   handlers.Health,
		AuthHandler:     handlers.Auth,
		UploadHandler:   handlers.Upload,
		AnalyzeHandler:  handlers.Analyze,
		SessionHandler:  handlers.Session,
		RealtimeHandler: handlers.Realtime,
		CoachHandler:    handlers.Coach,
	})
}
