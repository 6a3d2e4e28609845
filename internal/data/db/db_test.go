package db

import (
	"path/filepath"
	"testing"

	"github.com/KKQanT/cringe-alert-v2/internal/platform/logger"
)

func TestConfigFromEnvBuildsPostgresDSN(t *testing.T) {
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("POSTGRES_USER", "coach")
	t.Setenv("POSTGRES_PASSWORD", "pw")
	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("POSTGRES_PORT", "6543")
	t.Setenv("POSTGRES_NAME", "sessions")

	cfg := ConfigFromEnv()
	if cfg.Driver != DriverPostgres {
		t.Fatalf("driver: got %q", cfg.Driver)
	}
	want := "postgres://coach:pw@db:6543/sessions?sslmode=disable"
	if cfg.DSN != want {
		t.Fatalf("dsn: want %q got %q", want, cfg.DSN)
	}
}

func TestNewServiceSQLiteMigrates(t *testing.T) {
	cfg := Config{Driver: DriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "nested", "test.db")}
	svc, err := NewService(logger.Nop(), cfg)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })

	if err := AutoMigrateAll(svc.DB()); err != nil {
		t.Fatalf("AutoMigrateAll: %v", err)
	}
	if !svc.DB().Migrator().HasTable("sessions") {
		t.Fatalf("sessions table missing after migrate")
	}
}

func TestNewServiceRejectsUnknownDriver(t *testing.T) {
	if _, err := NewService(logger.Nop(), Config{Driver: "mysql"}); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}
