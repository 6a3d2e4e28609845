package app

import (
	"errors"
	"testing"
	"time"

	"github.com/KKQanT/cringe-alert-v2/internal/data/db"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/gcp"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, k := range []string{"HOST", "PORT", "CORS_ORIGINS", "DB_DRIVER", "REDIS_ADDR", "FFMPEG_TIMEOUT_SECONDS", "OBJECT_STORAGE_MODE", "STORAGE_EMULATOR_HOST"} {
		t.Setenv(k, "")
	}
	t.Setenv("STORAGE_BUCKET", "takes")

	cfg := LoadConfig(mustTestLogger(t))

	if got := cfg.Addr(); got != "0.0.0.0:8000" {
		t.Fatalf("Addr: want=%q got=%q", "0.0.0.0:8000", got)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "http://localhost:5173" {
		t.Fatalf("CORSOrigins: got=%v", cfg.CORSOrigins)
	}
	if cfg.DB.Driver != db.DriverSQLite {
		t.Fatalf("DB.Driver: want=%q got=%q", db.DriverSQLite, cfg.DB.Driver)
	}
	if cfg.TranscodeTimeout != 10*time.Minute {
		t.Fatalf("TranscodeTimeout: want=10m got=%v", cfg.TranscodeTimeout)
	}
	if cfg.StorageErr != nil || cfg.Storage.Mode != gcp.ObjectStorageModeGCS {
		t.Fatalf("Storage: mode=%q err=%v", cfg.Storage.Mode, cfg.StorageErr)
	}
	if cfg.RedisAddr != "" {
		t.Fatalf("RedisAddr: want empty got=%q", cfg.RedisAddr)
	}
}

func TestLoadConfigKeepsStorageError(t *testing.T) {
	t.Setenv("OBJECT_STORAGE_MODE", "")
	t.Setenv("STORAGE_EMULATOR_HOST", "")
	t.Setenv("STORAGE_BUCKET", "")
	t.Setenv("FIREBASE_BUCKET", "")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg := LoadConfig(mustTestLogger(t))

	var cfgErr *gcp.ConfigError
	if !errors.As(cfg.StorageErr, &cfgErr) || cfgErr.Code != gcp.ConfigErrorMissingBucket {
		t.Fatalf("StorageErr: want missing_bucket got=%v", cfg.StorageErr)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("CORSOrigins: got=%v", cfg.CORSOrigins)
	}
}
