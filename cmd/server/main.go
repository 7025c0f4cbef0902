package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/user/pulse-ops/internal/adapter/api"
	"github.com/user/pulse-ops/internal/adapter/api/handler"
	"github.com/user/pulse-ops/internal/adapter/api/middleware"
	"github.com/user/pulse-ops/internal/adapter/metrics"
	"github.com/user/pulse-ops/internal/adapter/report"
	"github.com/user/pulse-ops/internal/adapter/repository/memory"
	redisrepo "github.com/user/pulse-ops/internal/adapter/repository/redis"
	"github.com/user/pulse-ops/internal/adapter/tableau"
	"github.com/user/pulse-ops/internal/adapter/tcm"
	"github.com/user/pulse-ops/internal/domain"
	"github.com/user/pulse-ops/internal/pkg/config"
	"github.com/user/pulse-ops/internal/pkg/logger"
	"github.com/user/pulse-ops/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logger.New(cfg.LogLevel)
	slog.SetDefault(logger)

	m := metrics.NewPipelineMetrics()

	// --- Graceful Shutdown Context ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Run History Store ---
	// Redis is optional. When it is not configured or not reachable, run
	// history lives in process memory with the same TTL.
	var runRepo domain.RunRepository = memory.NewRunRepository(cfg.RunHistoryTTL)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("could not connect to redis, keeping run history in memory", "error", err)
		} else {
			runRepo = redisrepo.NewRunRepository(redisClient, logger, cfg.RunHistoryTTL)
			defer redisClient.Close()
		}
	}

	// --- Admin and Metrics Server ---
	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())
	adminMux.Handle("/", api.NewAdminRouter(runRepo, logger))

	adminServer := &http.Server{
		Addr:    cfg.AdminAddr,
		Handler: adminMux,
	}

	go func() {
		logger.Info("starting admin & metrics server", "addr", adminServer.Addr)
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin & metrics server failed", "error", err)
		}
	}()

	// --- Adapters ---
	tcmClient := tcm.NewClient(logger)
	tableauClient := tableau.NewClient(logger)

	sink, err := report.NewFileSink(cfg.OutputDir, logger)
	if err != nil {
		logger.Error("failed to initialize report output directory", "error", err)
		os.Exit(1)
	}

	apiKeyRepo := memory.NewAPIKeyRepository(cfg.APIKey)
	if cfg.APIKey == "" {
		logger.Warn("API_KEY is empty, operator endpoints are unauthenticated")
	}

	// --- Use Cases ---
	activityUseCase := usecase.NewActivityReportUseCase(
		tcmClient, tableauClient, tableauClient, sink, runRepo, logger, m,
		usecase.ActivityReportConfig{
			MaxPagesPerRun:          cfg.MaxPagesPerRun,
			DownloadConcurrency:     cfg.DownloadConcurrency,
			MetricLookupConcurrency: cfg.MetricLookupConcurrency,
			MetricLookupRPS:         cfg.MetricLookupRPS,
			SortEventsByTime:        cfg.SortEventsByTime,
			DefaultEventType:        cfg.DefaultEventType,
		},
	)
	followersUseCase := usecase.NewManageFollowersUseCase(tableauClient, tableauClient, logger)
	certsUseCase := usecase.NewAuditCertificationsUseCase(tableauClient, tableauClient, logger)
	prefsUseCase := usecase.NewUpdatePreferencesUseCase(tableauClient, tableauClient, logger)

	// --- Operator API Server ---
	activityHandler := handler.NewActivityHandler(activityUseCase, runRepo, logger)
	pulseHandler := handler.NewPulseHandler(followersUseCase, certsUseCase, prefsUseCase, logger)

	router := api.NewRouter(logger, apiKeyRepo, activityHandler, pulseHandler)
	server := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: middleware.Logging(logger)(router),
		// Pipeline runs are synchronous and can take minutes; no write
		// timeout on purpose.
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		logger.Info("starting operator API server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("operator API server failed", "error", err)
			stop()
		}
	}()

	// --- Wait for shutdown signal ---
	<-ctx.Done()
	logger.Info("shutting down servers...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("admin server shutdown failed", "error", err)
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("operator API server shutdown failed", "error", err)
	}

	logger.Info("servers shut down gracefully")
}
