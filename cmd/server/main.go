package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/driveline/market-research-go/internal/api"
	"github.com/driveline/market-research-go/internal/api/handlers"
	"github.com/driveline/market-research-go/internal/cache"
	"github.com/driveline/market-research-go/internal/config"
	"github.com/driveline/market-research-go/internal/database"
	"github.com/driveline/market-research-go/internal/logging"
	"github.com/driveline/market-research-go/internal/research"
	"github.com/driveline/market-research-go/internal/scheduler"
	"github.com/driveline/market-research-go/internal/sources"
	"github.com/driveline/market-research-go/internal/worker"
)

func main() {
	// Local development convenience; missing .env is fine
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logging.Setup(cfg.LogLevel, cfg.Environment)
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize database
	db, err := database.NewPostgresConnection(cfg.Database)
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Initialize Redis
	redis, err := database.NewRedisConnection(cfg.Redis)
	if err != nil {
		logrus.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redis.Close()

	// Wire the research engine with its source adapters injected
	timeout := cfg.Research.Timeout()
	adapters := []sources.SourceAdapter{
		sources.NewCarGurusAdapter(cfg.Research.CarGurusBaseURL, cfg.Research.DefaultZipCode,
			cfg.Research.SourceWeight("cargurus"), timeout),
		sources.NewAutoTraderAdapter(cfg.Research.AutoTraderBase, cfg.Research.DefaultZipCode,
			cfg.Research.SourceWeight("autotrader"), timeout),
		sources.NewAutoDevAdapter(cfg.Research.AutoDevBaseURL, cfg.Research.AutoDevAPIKey,
			cfg.Research.SourceWeight("autodev"), timeout),
	}

	repo := database.NewResearchRepository(db.Pool)
	filter := research.NewRelevanceFilter(cfg.Research.MaxMileageDelta,
		cfg.Research.MinListingPrice, cfg.Research.MaxListingPrice)
	aggregator := research.NewStatisticalAggregator()
	fallback := research.NewFallbackEstimator(cfg.Research.FallbackBaseMSRP)
	orchestrator := research.NewOrchestrator(adapters, filter, aggregator, fallback, repo)

	valuationCache := cache.NewRedisValuationCache(redis.Client, time.Hour)

	// Background research job processing
	pollTimeout, err := time.ParseDuration(cfg.Worker.PollTimeout)
	if err != nil {
		pollTimeout = 5 * time.Second
	}
	queue := worker.NewQueue(redis.Client, cfg.Worker.QueueKey)
	researchWorker := worker.NewResearchWorker(queue, orchestrator, valuationCache, cfg.Worker.Concurrency, pollTimeout)
	researchWorker.Start()
	defer researchWorker.Stop()

	// Price history retention
	retention := scheduler.New(repo, cfg.Cleanup.HistoryRetentionDays, cfg.Cleanup.Schedule)
	if err := retention.Start(context.Background()); err != nil {
		logrus.Fatalf("Failed to start retention scheduler: %v", err)
	}
	defer retention.Stop()

	// Setup Gin router
	router := gin.Default()
	researchHandler := handlers.NewResearchHandler(repo, valuationCache, orchestrator, queue, cfg.Research)
	api.SetupRoutes(router, db, redis, researchHandler)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logrus.Infof("Server starting on port %d", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down server...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.Fatalf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}
