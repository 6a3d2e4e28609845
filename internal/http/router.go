package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/KKQanT/cringe-alert-v2/internal/http/handlers"
	httpMW "github.com/KKQanT/cringe-alert-v2/internal/http/middleware"
	"github.com/KKQanT/cringe-alert-v2/internal/observability"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	ServiceName string
	Origins     []string
	Metrics     *observability.Metrics

	AuthMiddleware *httpMW.AuthMiddleware

	HealthHandler   *httpH.HealthHandler
	AuthHandler     *httpH.AuthHandler
	UploadHandler   *httpH.UploadHandler
	AnalyzeHandler  *httpH.AnalyzeHandler
	SessionHandler  *httpH.SessionHandler
	RealtimeHandler *httpH.RealtimeHandler
	CoachHandler    *httpH.CoachHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.CORS(cfg.Origins))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.RequestLogger(cfg.Log))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/health", cfg.HealthHandler.HealthCheck)
	}

	requireAuth := func(c *gin.Context) { c.Next() }
	if cfg.AuthMiddleware != nil {
		requireAuth = cfg.AuthMiddleware.RequireAuth()
	}

	api := r.Group("/api")
	{
		// Auth (public)
		if cfg.AuthHandler != nil {
			api.POST("/login", cfg.AuthHandler.Login)
		}
	}

	protected := api.Group("/")
	protected.Use(requireAuth)
	{
		if cfg.UploadHandler != nil {
			protected.POST("/upload/signed-url", cfg.UploadHandler.SignedURL)
		}

		if cfg.AnalyzeHandler != nil {
			protected.POST("/analyze/video/stream", cfg.AnalyzeHandler.StreamVideo)
			protected.POST("/analyze/video", cfg.AnalyzeHandler.EnqueueConversion)
			protected.POST("/analyze/fix/stream", cfg.AnalyzeHandler.StreamFix)
		}

		if cfg.SessionHandler != nil {
			protected.GET("/sessions", cfg.SessionHandler.List)
			protected.POST("/sessions", cfg.SessionHandler.Create)
			protected.GET("/sessions/:id", cfg.SessionHandler.Get)
			protected.GET("/sessions/:id/context", cfg.SessionHandler.Context)
			protected.DELETE("/sessions/:id", cfg.SessionHandler.Delete)
			protected.POST("/sessions/:id/feedback/:index/skip", cfg.SessionHandler.SkipFeedback)
		}

		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			protected.GET("/sessions/:id/events", cfg.RealtimeHandler.SessionEvents)
		}
	}

	// Coach websockets authenticate with ?token=.
	if cfg.CoachHandler != nil {
		r.GET("/coach", requireAuth, cfg.CoachHandler.Text)
		r.GET("/coach/live", requireAuth, cfg.CoachHandler.Live)
		r.GET("/ws/:session_id", cfg.CoachHandler.Ping)
	}

	return r
}
