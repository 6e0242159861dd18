package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/capstan-io/capstan/cmd/registry/middleware"
	"github.com/capstan-io/capstan/internal/auth"
	"github.com/capstan-io/capstan/internal/common"
	"github.com/capstan-io/capstan/internal/registry"
	"github.com/capstan-io/capstan/internal/storage"
	"github.com/capstan-io/capstan/pkg/config"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg := config.LoadFromEnv()

	setupLogging(cfg.Logging)

	log.Info().Msg("starting capstan registry")

	db, err := common.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	cache, err := common.NewCache(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer cache.Close()

	blobStorage, err := storage.NewFactory(&cfg.Storage).CreateStorage()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage")
	}

	reaper := registry.NewReaper(blobStorage, cfg.Storage.SweepWorkers, cfg.Storage.SweepQueue)
	defer reaper.Close()

	authService := auth.NewService(db, cache, &cfg.Auth)
	registryService := registry.NewService(db, blobStorage, reaper, &cfg.Registry)

	router := setupRouter(authService, registryService)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Give outstanding requests 30 seconds to complete; queued blob sweeps
	// drain in the deferred reaper Close
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	} else {
		log.Info().Msg("server shutdown complete")
	}
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func setupRouter(authService *auth.Service, registryService *registry.Service) *gin.Engine {
	if zerolog.GlobalLevel() == zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Match on the raw path so URL-encoded scoped names (@scope%2fname)
	// stay a single :name segment; params are still unescaped for handlers.
	router.UseRawPath = true

	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "capstan-registry",
			"time":    time.Now().UTC(),
		})
	})

	api := router.Group("/api/v1")
	{
		authRoutes := api.Group("/auth")
		{
			authRoutes.POST("/register", handleRegister(authService))
			authRoutes.POST("/login", handleLogin(authService))
			authRoutes.POST("/tokens", middleware.Auth(authService), handleCreateToken(authService))
			authRoutes.DELETE("/tokens/:id", middleware.Auth(authService), handleRevokeToken(authService))
		}

		// npm-compatible surface. Scoped names arrive URL-encoded in :name.
		// The authorization gate decides on missing credentials itself, so
		// the middleware only resolves identity and never rejects.
		npm := api.Group("/npm")
		npm.Use(middleware.Auth(authService))
		{
			npm.GET("/:name", handlePackageInfo(registryService))
			npm.PUT("/:name", handlePublish(registryService))
			npm.DELETE("/:name/-rev/:rev", handleRemove(registryService))
			npm.GET("/:name/-/:filename", handleDownload(registryService))
		}
	}

	return router
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
