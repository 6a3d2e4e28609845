package app

import (
	"net"
	"time"

	"github.com/KKQanT/cringe-alert-v2/internal/coach"
	"github.com/KKQanT/cringe-alert-v2/internal/data/db"
	"github.com/KKQanT/cringe-alert-v2/internal/pipeline"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/envutil"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/gcp"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/gemini"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/logger"
	"github.com/KKQanT/cringe-alert-v2/internal/services"
)

const serviceName = "cringe-alert-v2"

type Config struct {
	Host        string
	Port        string
	AppEnv      string
	ServiceName string
	Version     string
	CORSOrigins []string
	MetricsAddr string
	PromptsPath string

	WorkDir          string
	FFmpegPath       string
	TranscodeTimeout time.Duration

	Auth       services.AuthConfig
	DB         db.Config
	Storage    gcp.BlobStoreConfig
	StorageErr error
	Gemini     gemini.Config
	LiveURL    string
	Pipeline   pipeline.Config
	Coach      coach.Config
	Conversion services.ConversionConfig

	RedisAddr string
}

func (c Config) Addr() string { return net.JoinHostPort(c.Host, c.Port) }

// LoadConfig reads the process environment. Storage problems are kept on the config
// and reported when the blob store is built.
func LoadConfig(log *logger.Logger) Config {
	storage, storageErr := gcp.ResolveBlobStoreConfigFromEnv()
	cfg := Config{
		Host:        envutil.String("HOST", "0.0.0.0"),
		Port:        envutil.String("PORT", "8000"),
		AppEnv:      envutil.String("APP_ENV", "development"),
		ServiceName: envutil.String("OTEL_SERVICE_NAME", serviceName),
		Version:     envutil.String("APP_VERSION", "dev"),
		CORSOrigins: envutil.CSV("CORS_ORIGINS", []string{"http://localhost:5173"}),
		MetricsAddr: envutil.String("METRICS_ADDR", ""),
		PromptsPath: envutil.String("PROMPTS_YAML", ""),

		WorkDir:          services.WorkDirFromEnv(),
		FFmpegPath:       envutil.String("FFMPEG_PATH", "ffmpeg"),
		TranscodeTimeout: envutil.Seconds("FFMPEG_TIMEOUT_SECONDS", 10*time.Minute),

		Auth:       services.AuthConfigFromEnv(),
		DB:         db.ConfigFromEnv(),
		Storage:    storage,
		StorageErr: storageErr,
		Gemini:     gemini.ConfigFromEnv(),
		LiveURL:    envutil.String("GEMINI_LIVE_URL", ""),
		Pipeline:   pipeline.ConfigFromEnv(),
		Coach:      coach.ConfigFromEnv(),
		Conversion: services.ConversionConfigFromEnv(),

		RedisAddr: envutil.String("REDIS_ADDR", ""),
	}
	log.Info("Configuration loaded",
		"addr", cfg.Addr(),
		"app_env", cfg.AppEnv,
		"db_driver", cfg.DB.Driver,
		"storage_mode", cfg.Storage.Mode,
		"analysis_model", cfg.Pipeline.AnalysisModel,
		"coach_model", cfg.Coach.ChatModel,
		"live_model", cfg.Coach.LiveModel,
		"redis", cfg.RedisAddr != "",
	)
	return cfg
}
