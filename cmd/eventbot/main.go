package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"eventpoints-bot/internal/analytics"
	"eventpoints-bot/internal/bot"
	"eventpoints-bot/internal/config"
	"eventpoints-bot/internal/health"
	"eventpoints-bot/internal/metrics"
	"eventpoints-bot/internal/modules/audit"
	"eventpoints-bot/internal/session"
	"eventpoints-bot/internal/storage"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := config.BuildLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	store, err := storage.New(cfg.DatabaseDriver, cfg.DatabasePath)
	if err != nil {
		logger.Fatal("storage init failed", zap.Error(err))
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if cfg.RetentionDays > 0 {
		if err := store.CleanupAuditLogs(ctx, cfg.RetentionDays); err != nil {
			logger.Warn("audit cleanup failed", zap.Error(err))
		}
	}

	auditLogger := audit.NewLogger(store, logger)
	analyticsSvc := analytics.New(store)
	metricsSvc := metrics.New()

	registry := session.NewRegistry()
	if cfg.Session.TTLMinutes > 0 {
		registry.WithTTL(time.Duration(cfg.Session.TTLMinutes) * time.Minute)
	}

	botSvc, err := bot.New(cfg, logger, store, registry, auditLogger, analyticsSvc, metricsSvc)
	if err != nil {
		logger.Fatal("bot init failed", zap.Error(err))
	}

	if err := botSvc.Start(); err != nil {
		logger.Fatal("bot start failed", zap.Error(err))
	}
	logger.Info("bot started", zap.String("driver", cfg.DatabaseDriver), zap.Int("session_ttl_minutes", cfg.Session.TTLMinutes))

	sweep := time.Duration(cfg.Session.SweepSeconds) * time.Second
	go registry.RunSweeper(ctx, sweep, func(n int) {
		logger.Info("idle sessions evicted", zap.Int("count", n))
	})
	go func() {
		if sweep <= 0 {
			return
		}
		ticker := time.NewTicker(sweep)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				botSvc.Housekeeping()
			}
		}
	}()

	var server *http.Server
	if cfg.Health.Enabled {
		server = &http.Server{
			Addr:              cfg.Health.Addr,
			Handler:           health.NewRouter(store, metricsSvc.Handler()),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("health endpoint enabled", zap.String("addr", cfg.Health.Addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("health server error", zap.Error(err))
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown requested", zap.Int("open_sessions", registry.Len()))
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if server != nil {
		_ = server.Shutdown(shutdownCtx)
	}
	botSvc.Close(shutdownCtx)
}
