package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus-fit/neiro/server/cache"
	"github.com/prometheus-fit/neiro/server/config"
	"github.com/prometheus-fit/neiro/server/detector"
	"github.com/prometheus-fit/neiro/server/handlers"
	"github.com/prometheus-fit/neiro/server/metrics"
	"github.com/prometheus-fit/neiro/server/middleware"
	"github.com/prometheus-fit/neiro/server/session"
	"go.uber.org/zap"
)

type Server struct {
	router      *gin.Engine
	logger      *zap.Logger
	detector    *detector.Client
	cache       cache.Cache
	registry    *session.Registry
	rateLimiter *middleware.RateLimiter
	config      *config.Config
}

func main() {
	// Load configuration
	cfg := config.LoadConfig()

	// Initialize logger
	var logger *zap.Logger
	var err error

	if cfg.Logging.Format == "json" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}

	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	// Validate configuration
	if err := cfg.ValidateConfig(logger); err != nil {
		logger.Fatal("Configuration validation failed", zap.Error(err))
	}

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	server := NewServer(cfg, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Starting server",
			zap.String("addr", addr),
			zap.String("environment", cfg.Server.Environment))

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	server.detector.Close()
	server.rateLimiter.Shutdown()

	if err := server.cache.Close(); err != nil {
		logger.Error("Failed to close cache", zap.Error(err))
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	cacheInstance := cache.NewMemoryCache(cfg.Cache.MaxEntries, cfg.Cache.TTL, logger)

	// The detector client polls the inference sidecar's health endpoint;
	// caching keeps duplicate frames off the sidecar entirely.
	client := detector.NewClient(&cfg.Detector, logger)
	det := detector.NewCachedDetector(client, cacheInstance, logger)

	registry := session.NewRegistry(logger)
	metricsManager := metrics.New()

	rateLimiter := middleware.NewRateLimiter(
		cfg.Security.RateLimitRPS,
		cfg.Security.RateLimitBurst,
		logger,
	)

	// Setup router
	router := gin.New()
	router.Use(middleware.RequestLogger(logger))
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(cfg.Security.AllowedOrigins))
	router.Use(middleware.RequestSizeLimit(cfg.Security.MaxFrameBytes))

	trackHandler := handlers.NewTrackHandler(det, registry, metricsManager, cfg, logger)
	statusHandler := handlers.NewStatusHandler(det, registry, cacheInstance)

	setupRoutes(router, trackHandler, statusHandler, metricsManager, rateLimiter)

	return &Server{
		router:      router,
		logger:      logger,
		detector:    client,
		cache:       cacheInstance,
		registry:    registry,
		rateLimiter: rateLimiter,
		config:      cfg,
	}
}

func setupRoutes(router *gin.Engine, trackHandler *handlers.TrackHandler, statusHandler *handlers.StatusHandler, m *metrics.Manager, rateLimiter *middleware.RateLimiter) {
	// Health and scrape endpoints (no rate limit)
	router.GET("/health", statusHandler.HandleHealth)
	router.GET("/metrics", gin.WrapH(m.Handler()))

	neiro := router.Group("/neiro")
	{
		// The stream itself is not rate limited; the session queue
		// applies frame backpressure per connection.
		neiro.GET("/track", trackHandler.HandleTrack)

		neiro.GET("/status", rateLimiter.RateLimit(), statusHandler.HandleStatus)
		neiro.GET("/connections", rateLimiter.RateLimit(), statusHandler.HandleConnections)
	}
}
