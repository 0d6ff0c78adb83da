package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/grana-app/grana_backend/internal/core/services"
	"github.com/grana-app/grana_backend/internal/events"
	"github.com/grana-app/grana_backend/internal/handlers"
	"github.com/grana-app/grana_backend/internal/middleware"
	"github.com/grana-app/grana_backend/internal/platform/broker"
	"github.com/grana-app/grana_backend/internal/platform/cache"
	"github.com/grana-app/grana_backend/internal/platform/config"
	"github.com/grana-app/grana_backend/internal/repositories/database/mongodb"
	"github.com/grana-app/grana_backend/internal/repositories/database/pgsql"
	"github.com/grana-app/grana_backend/pkg/database"
)

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Primary store
	dbPool, err := database.NewPgxPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("Failed to initialize database pool", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer database.ClosePgxPool(dbPool)

	// Document store
	mongoClient, err := mongodb.Connect(ctx, cfg.MongoURI)
	if err != nil {
		logger.Error("Failed to connect to document store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			logger.Error("Error disconnecting document store", slog.String("error", err.Error()))
		}
	}()
	mongoDB := mongoClient.Database(cfg.MongoDB)
	if err := mongodb.EnsureIndexes(ctx, mongoDB); err != nil {
		logger.Error("Failed to ensure document store indexes", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Hot cache
	cacheManager, err := cache.NewManager(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB, logger)
	if err != nil {
		logger.Error("Failed to connect to cache", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer cacheManager.Close()

	// Event dispatch and repositories
	dispatcher := events.NewDispatcher(logger)
	repos := pgsql.NewRepositoryProvider(dbPool, dispatcher, logger)
	repos.ReadModelRepo = mongodb.NewMongoReadModelRepository(mongoDB)
	repos.DashboardCache = mongodb.NewMongoDashboardCacheRepository(mongoDB)
	repos.MonthlySummary = mongodb.NewMongoMonthlySummaryRepository(mongoDB)

	// Broker producer and services
	producer := broker.NewProducer(cfg.KafkaBrokers, logger)
	container, err := services.NewServiceContainer(cfg, repos, dispatcher, producer, cacheManager, logger)
	if err != nil {
		logger.Error("Failed to build service container", slog.String("error", err.Error()))
		os.Exit(1)
	}
	container.Sync.Start(ctx)

	if cfg.IsProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.StructuredLoggingMiddleware(logger), gin.Recovery())
	if err := r.SetTrustedProxies(nil); err != nil {
		logger.Error("Failed to set trusted proxies", slog.String("error", err.Error()))
		os.Exit(1)
	}
	handlers.RegisterRoutes(r, dbPool, container)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		logger.Info("Server starting", slog.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed to run", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutdown signal received, draining",
		slog.Duration("timeout", cfg.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", slog.String("error", err.Error()))
	}
	if err := container.Sync.Shutdown(shutdownCtx); err != nil {
		logger.Error("Sync service shutdown failed", slog.String("error", err.Error()))
	}
	logger.Info("Shutdown complete")
}
