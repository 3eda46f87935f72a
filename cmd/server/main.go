package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/insider-one/notification-service/internal/cache"
	"github.com/insider-one/notification-service/internal/config"
	"github.com/insider-one/notification-service/internal/domain"
	"github.com/insider-one/notification-service/internal/handler"
	"github.com/insider-one/notification-service/internal/middleware"
	"github.com/insider-one/notification-service/internal/provider"
	"github.com/insider-one/notification-service/internal/repository/postgres"
	"github.com/insider-one/notification-service/internal/repository/redis"
	"github.com/insider-one/notification-service/internal/service"
	"github.com/insider-one/notification-service/internal/worker"
)

// @title Notification Delivery Service API
// @version 1.0
// @description Multi-channel notification acceptance, delivery, and reconciliation service
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email support@insider.com

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /

// @securityDefinitions.apikey ProviderCallbackAuth
// @in header
// @name X-Provider-Token

func main() {
	cfg := config.Load()

	logLevel := slog.LevelInfo
	if cfg.App.LogLevel == "debug" {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("starting notification service", "env", cfg.App.Env, "port", cfg.Server.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.New(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to PostgreSQL")

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		logger.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	logger.Info("connected to Redis")

	notificationRepo := postgres.NewNotificationRepository(db)
	userRepo := postgres.NewUserRepository(db)
	templateRepo := postgres.NewTemplateRepository(db)

	var remoteCache cache.Cache
	if cfg.Cache.Backend == "remote" {
		remoteCache = redis.NewCache(redisClient)
	}
	lookupCache := cache.New(cfg.Cache.Backend, cfg.Cache.LRUSize, remoteCache)
	cacheTTL := time.Duration(cfg.Cache.TTLSeconds) * time.Second

	webhookProvider := provider.NewWebhookProvider(cfg.Provider)

	notificationService := service.NewNotificationService(notificationRepo, userRepo, templateRepo, lookupCache, cacheTTL, logger)

	wsHub := handler.NewWebSocketHub(logger)
	go wsHub.Run()

	// Status updates are published to Redis; every API replica, this one
	// included, receives them through the subscription below, so each
	// update reaches this replica's own hub exactly once.
	statusBroadcast := func(n *domain.Notification, channel *domain.Channel) {
		update := handler.StatusUpdate{
			Type:           "status_update",
			NotificationID: n.ID,
			Channel:        channel,
			OverallStatus:  domain.DeriveOverallStatus(n.Channels),
			Timestamp:      time.Now().UTC(),
		}
		if err := redisClient.PublishStatusUpdate(ctx, update); err != nil {
			logger.Error("failed to publish status update", "error", err)
		}
	}
	notificationService.SetStatusBroadcast(statusBroadcast)

	// Every replica's updates, this one's included, arrive here and are
	// fanned out to this replica's own locally-connected WebSocket clients.
	go func() {
		err := redisClient.SubscribeStatusUpdates(ctx, func(payload []byte) {
			wsHub.BroadcastRaw(payload)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("status pub/sub subscription ended", "error", err)
		}
	}()

	policy := domain.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
		JitterRatio: cfg.Retry.JitterRatio,
	}

	metrics := handler.NewMetrics()

	processor := worker.NewProcessor(notificationRepo, webhookProvider, logger, policy, cfg.Worker, cfg.Provider)
	processor.SetStatusBroadcast(statusBroadcast)
	processor.SetMetrics(metrics)

	notificationHandler := handler.NewNotificationHandler(notificationService, cfg.Provider.CallbackToken)
	healthHandler := handler.NewHealthHandler()
	healthHandler.AddChecker("postgres", db)
	healthHandler.AddChecker("redis", redisClient)

	metricsHandler := handler.NewMetricsHandler(metrics, notificationRepo)
	wsHandler := handler.NewWebSocketHandler(wsHub)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Correlation)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logging(logger))
	r.Use(chimiddleware.Compress(5))

	r.Get("/health", healthHandler.Health)
	r.Get("/health/live", healthHandler.Liveness)
	r.Get("/health/ready", healthHandler.Readiness)

	r.Handle("/metrics", metricsHandler.Handler())
	r.Get("/metrics/realtime", metricsHandler.RealtimeMetrics)

	r.Get("/ws", wsHandler.HandleWebSocket)

	r.Get("/swagger/*", httpSwagger.WrapHandler)

	r.Route("/api/notifications", func(r chi.Router) {
		notificationHandler.RegisterRoutes(r)
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if err := processor.Start(ctx); err != nil {
		logger.Error("failed to start processor", "error", err)
		os.Exit(1)
	}

	go func() {
		logger.Info("server listening", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	processor.Stop()
	cancel()

	logger.Info("server stopped")
}
