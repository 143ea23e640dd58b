package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"prebidOptimizer/app/echo-server/metrics"
	"prebidOptimizer/app/echo-server/router"
	"prebidOptimizer/business/job"
	"prebidOptimizer/internal/middleware"
	gcsRepo "prebidOptimizer/internal/repository/gcs"
	psqlRepo "prebidOptimizer/internal/repository/postgres"
	redisRepo "prebidOptimizer/internal/repository/redis"
	"prebidOptimizer/internal/rest"
	"prebidOptimizer/pkg/config"
	"prebidOptimizer/pkg/database"
	"prebidOptimizer/pkg/database/redis"
	"prebidOptimizer/pkg/logger"
	publishMetrics "prebidOptimizer/pkg/metrics"
	"prebidOptimizer/pkg/utils"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.RequireJWT(); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Setup(cfg.App.Environment, logger.Options{File: cfg.App.LogFile})
	defer logger.Close()
	logger.Info("Starting prebid optimizer API", "version", cfg.App.Version)

	utils.SetJWTSecret(cfg.JWT.SecretKey)
	metrics.Init()
	publishMetrics.Init()

	db, err := database.InitPostgres(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal("Failed to migrate database", "error", err)
	}
	logger.Info("Database connected successfully")

	redisClient, err := redis.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to redis", "error", err)
	}
	defer redis.CloseRedisClient(redisClient)

	candidates, err := config.LoadCandidates(cfg.Optimizer.CandidatesFile)
	if err != nil {
		logger.Fatal("Failed to load candidates", "error", err)
	}

	// Init validate
	validate := validator.New()

	// Init repo
	auctionRepo := psqlRepo.NewAuctionRepository(db, cfg.Optimizer.MaxSessionSeconds)
	resultRepo := psqlRepo.NewResultRepository(db)
	distributionCache := redisRepo.NewDistributionCache(redisClient, cfg.Redis.DistributionTTL)

	publishers := []job.DistributionPublisher{distributionCache}
	if cfg.GCS.Enabled {
		storageClient, err := gcsRepo.NewStorageClient(context.Background(), cfg.GCS.CredentialsFile)
		if err != nil {
			logger.Fatal("Failed to init GCS", "error", err)
		}
		defer storageClient.Close()
		publishers = append(publishers, gcsRepo.NewDistributionRepository(storageClient, cfg.GCS.BucketTemplate))
	}

	// Init service
	runService := job.NewRunService(auctionRepo, resultRepo, publishers, validate)

	// Init handler
	distributionHandler := rest.NewDistributionHandler(distributionCache, resultRepo)
	adminHandler := rest.NewAdminHandler(resultRepo, runService, candidates, cfg.Optimizer)

	// Init echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// HTTP error handler
	e.HTTPErrorHandler = middleware.ErrorHandler

	// Global middleware
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Setup routes
	api := e.Group("/api/v1")
	router.SetDistributionRoutes(api, distributionHandler)
	router.SetAdminRoutes(api, adminHandler)

	// Goroutine server
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		logger.Info("Server starting", "address", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Server stopped")
}
