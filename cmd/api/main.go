package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/cmis-platform/queue-api/api/swagger"
	"github.com/cmis-platform/queue-api/internal/handler"
	"github.com/cmis-platform/queue-api/internal/middleware"
	"github.com/cmis-platform/queue-api/internal/models"
	"github.com/cmis-platform/queue-api/internal/repository"
	"github.com/cmis-platform/queue-api/internal/service"
	"github.com/cmis-platform/queue-api/pkg/cache"
	"github.com/cmis-platform/queue-api/pkg/config"
	"github.com/cmis-platform/queue-api/pkg/database"
	"github.com/cmis-platform/queue-api/pkg/logger"
	corsmiddleware "github.com/cmis-platform/queue-api/pkg/middleware/cors"
	reqidmiddleware "github.com/cmis-platform/queue-api/pkg/middleware/requestid"
)

// @title CMIS Publishing Queue API
// @version 1.0.0
// @description Slot allocation and scheduling engine for social publishing queues
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Statistics.CacheTTL, logr, cfg.Statistics.CacheEnabled && redisClient != nil)

	cfgRepo := repository.NewQueueConfigRepository(db)
	postRepo := repository.NewQueuedPostRepository(db)
	accountRepo := repository.NewSocialAccountRepository(db)
	userRepo := repository.NewUserRepository(db)

	queueSvc := service.NewQueueService(cfgRepo, postRepo, cacheSvc, metricsSvc, validate, logr, cfg.Queue.SearchHorizonDays, cfg.Queue.ScheduleMaxRetries)
	accountSvc := service.NewSocialAccountService(accountRepo, validate, logr)
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "cmis-queue-api",
	})

	publisher := service.NewPublisherService(postRepo, accountRepo, metricsSvc, logr, cfg.Publisher.Interval, cfg.Publisher.Workers, cfg.Publisher.MaxRetries)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Publisher.Enabled {
		publisher.Start(rootCtx)
		defer publisher.Stop()
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	metricsHandler := handler.NewMetricsHandler(metricsSvc)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerRoutes(r, cfg, authSvc, queueSvc, accountSvc)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-rootCtx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}

func registerRoutes(r *gin.Engine, cfg *config.Config, authSvc *service.AuthService, queueSvc *service.QueueService, accountSvc *service.SocialAccountService) {
	authHandler := handler.NewAuthHandler(authSvc)
	queueHandler := handler.NewQueueHandler(queueSvc)
	accountHandler := handler.NewSocialAccountHandler(accountSvc)

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
	auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)

	protected := api.Group("", middleware.JWT(authSvc))

	manage := middleware.RequireRoles(models.RoleOwner, models.RoleAdmin)

	queues := protected.Group("/queues")
	queues.GET("/:accountId", queueHandler.GetConfig)
	queues.POST("", manage, queueHandler.CreateConfig)
	queues.PUT("/:accountId", manage, queueHandler.UpdateConfig)
	queues.GET("/:accountId/next-slot", queueHandler.NextSlot)
	queues.GET("/:accountId/posts", queueHandler.ListPosts)
	queues.GET("/:accountId/posts/export", queueHandler.ExportPosts)
	queues.POST("/:accountId/schedule", queueHandler.Schedule)
	queues.DELETE("/posts/:postId", queueHandler.RemovePost)
	queues.GET("/:accountId/statistics", queueHandler.Statistics)

	accounts := protected.Group("/accounts")
	accounts.GET("", accountHandler.List)
	accounts.GET("/:id", accountHandler.Get)
	accounts.POST("", manage, accountHandler.Connect)
	accounts.DELETE("/:id", manage, accountHandler.Disconnect)
}
