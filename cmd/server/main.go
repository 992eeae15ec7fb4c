// Package main runs the askround live Q&A server with WebSocket fan-out and
// graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/askround/backend/config"
	"github.com/askround/backend/internal/auth"
	"github.com/askround/backend/internal/middleware"
	"github.com/askround/backend/internal/realtime"
	"github.com/askround/backend/internal/sessions"
	"github.com/askround/backend/pkg/database"
	"github.com/askround/backend/pkg/redis"
	"github.com/askround/backend/pkg/response"
	"github.com/askround/backend/pkg/utils"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()

	// Persistence: postgres when configured, in-memory otherwise.
	var repo sessions.Repository
	if cfg.Database.URL != "" {
		pool, err := database.NewPostgresPool(ctx, cfg.Database, logger)
		if err != nil {
			logger.Fatal("database", zap.Error(err))
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
		repo = sessions.NewPostgresRepository(pool)
	} else {
		logger.Info("no DATABASE_URL set, using in-memory session store")
		repo = sessions.NewMemoryRepository()
	}

	// Cross-instance broadcast bridge: optional.
	var pub realtime.Publisher
	var sub realtime.Subscriber
	if cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		pubsub := realtime.NewRedisPubSub(rdb.Client, logger)
		pub, sub = pubsub, pubsub
	} else {
		logger.Info("no REDIS_ADDR set, broadcasts stay on this instance")
	}

	hub := realtime.NewHub(logger, pub, sub)
	store := sessions.NewStore(repo, hub, logger)
	defer store.Close()

	adminHash, err := utils.HashPassword(cfg.Instance.AdminPassword)
	if err != nil {
		logger.Fatal("hash admin password", zap.Error(err))
	}
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	authHandler := auth.NewHandler(jwtService, adminHash, logger)
	sessionHandler := sessions.NewHandler(store)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok", "instance": cfg.Instance.Name}) })

	// Sessions
	router.PUT("/sessions/:id", sessionHandler.Create)
	router.GET("/sessions/:id", sessionHandler.Get)

	// Instance admin
	router.POST("/admin/login", authHandler.Login)
	admin := router.Group("/admin", middleware.JWT(jwtService))
	{
		admin.GET("/sessions", sessionHandler.ListForAdmin)
	}

	// WebSocket
	router.GET("/ws", realtime.ServeWs(hub, store, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening",
			zap.String("port", cfg.Server.Port),
			zap.String("base_url", cfg.Instance.BaseURL))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
