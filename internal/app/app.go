package app

import (
	"context"
	"fmt"
	"os"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/KKQanT/cringe-alert-v2/internal/data/db"
	"github.com/KKQanT/cringe-alert-v2/internal/data/repos"
	"github.com/KKQanT/cringe-alert-v2/internal/http"
	"github.com/KKQanT/cringe-alert-v2/internal/observability"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/logger"
	"github.com/KKQanT/cringe-alert-v2/internal/realtime"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Server   *http.Server
	Cfg      Config
	Repos    repos.Repos
	Clients  Clients
	Services Services
	SSEHub   *realtime.SSEHub

	dbService    *db.Service
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	ctx := context.Background()
	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.AppEnv,
		Version:     cfg.Version,
	})
	observability.Init(log)

	dbService, err := db.NewService(log, cfg.DB)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	theDB := dbService.DB()
	if err := db.AutoMigrateAll(theDB); err != nil {
		_ = dbService.Close()
		log.Sync()
		return nil, fmt.Errorf("automigrate: %w", err)
	}

	clientset, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = dbService.Close()
		log.Sync()
		return nil, err
	}

	ssehub := realtime.NewSSEHub(log)
	reposet := wireRepos(theDB, log)

	serviceset, err := wireServices(theDB, log, cfg, reposet, clientset, ssehub)
	if err != nil {
		clientset.Close(log)
		_ = dbService.Close()
		log.Sync()
		return nil, err
	}

	handlerset := wireHandlers(log, cfg, serviceset, clientset, ssehub)
	middleware := wireMiddleware(log, serviceset)
	server := wireServer(log, cfg, handlerset, middleware)

	return &App{
		Log:          log,
		DB:           theDB,
		Server:       server,
		Cfg:          cfg,
		Repos:        reposet,
		Clients:      clientset,
		Services:     serviceset,
		SSEHub:       ssehub,
		dbService:    dbService,
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches the background workers: conversion pool, cross-instance SSE
// forwarding and metric collectors.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.Services.Conversion != nil {
		a.Services.Conversion.Start(ctx)
	}

	if a.Clients.SSEBus != nil {
		go func() {
			err := a.Clients.SSEBus.StartForwarder(ctx, func(m realtime.SSEMessage) {
				a.SSEHub.Broadcast(m)
			})
			if err != nil && ctx.Err() == nil {
				a.Log.Warn("SSE forwarder stopped", "error", err)
			}
		}()
	}

	if m := observability.Current(); m != nil {
		m.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
		m.StartDBCollector(ctx, a.Log, a.DB)
		if rc, ok := a.Clients.SSEBus.(interface{ Client() *goredis.Client }); ok {
			m.StartRedisCollector(ctx, a.Log, rc.Client())
		}
	}
}

// Run serves HTTP until Shutdown is called.
func (a *App) Run() error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("HTTP server listening", "addr", a.Cfg.Addr())
	return a.Server.Run(a.Cfg.Addr())
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx expires.
func (a *App) Shutdown(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return nil
	}
	return a.Server.Shutdown(ctx)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Services.Conversion != nil {
		if err := a.Services.Conversion.Close(); err != nil {
			a.Log.Warn("Conversion queue close failed", "error", err)
		}
	}
	a.Clients.Close(a.Log)
	if a.dbService != nil {
		if err := a.dbService.Close(); err != nil {
			a.Log.Warn("Database close failed", "error", err)
		}
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("Tracer shutdown failed", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
