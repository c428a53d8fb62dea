package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/stablelab/growth-milestone-service/internal/config"
	"github.com/stablelab/growth-milestone-service/internal/forse"
	"github.com/stablelab/growth-milestone-service/internal/handler"
	"github.com/stablelab/growth-milestone-service/internal/httpserver"
	"github.com/stablelab/growth-milestone-service/internal/repository"
	"github.com/stablelab/growth-milestone-service/internal/service/milestone"
	pkgconfig "github.com/stablelab/growth-milestone-service/pkg/config"
	"github.com/stablelab/growth-milestone-service/pkg/db"
	"github.com/stablelab/growth-milestone-service/pkg/logger"
	"github.com/stablelab/growth-milestone-service/pkg/redisutil"
)

func main() {
	log := logger.NewLogger()
	defer log.Sync()

	cfg, err := config.Load(pkgconfig.GetEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatal("Config load failed", zap.Error(err))
	}
	if cfg.Auth.APIKey == "" {
		log.Fatal("API_KEY is not configured")
	}

	// Store backend
	var store repository.Store
	switch cfg.Storage.Backend {
	case "file":
		store = repository.NewFileStore(cfg.Storage.FilePath, cfg.Storage.AllowCorruptReset, log)
	case "memory":
		store = repository.NewMemoryStore()
	case "postgres":
		pool, err := db.NewConnection(cfg.DB, log)
		if err != nil {
			log.Fatal("DB initialization failed", zap.Error(err))
		}
		defer pool.Close()

		pg := repository.NewPostgresStore(pool, log)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := pg.EnsureSchema(ctx); err != nil {
			cancel()
			log.Fatal("Schema initialization failed", zap.Error(err))
		}
		cancel()
		store = pg
	default:
		log.Fatal("Unknown storage backend", zap.String("backend", cfg.Storage.Backend))
	}
	log.Info("Store initialized",
		zap.String("backend", store.Backend()),
		zap.String("location", store.Location()),
	)

	// Redis (optional, enables webhook dedup)
	var rdb *redis.Client
	var deduper *redisutil.Deduper
	if cfg.Redis.Addr != "" {
		rdb = redisutil.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer rdb.Close()
		deduper = redisutil.NewDeduper(rdb, time.Hour)
		log.Info("Webhook dedup enabled", zap.String("redis_addr", cfg.Redis.Addr))
	}

	// Forse sync client
	forseClient := forse.NewHTTPClient(
		cfg.Forse.BaseURL,
		cfg.Forse.APIKey,
		time.Duration(cfg.Forse.TimeoutSeconds)*time.Second,
		log,
	)

	// Service and handlers
	svc := milestone.NewService(store, forseClient, log)
	milestoneHandler := handler.NewMilestoneHandler(svc, log)
	webhookHandler := handler.NewWebhookHandler(svc, deduper, log)

	router := httpserver.NewRouter(milestoneHandler, webhookHandler, cfg.Auth.APIKey, store, rdb, log)

	srv := &http.Server{
		Addr:    cfg.Server.Port,
		Handler: router.Engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("Starting milestone service", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server start failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Graceful shutdown failed", zap.Error(err))
	}
}
