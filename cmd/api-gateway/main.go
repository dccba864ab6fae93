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
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/ibs-portal-api/api/swagger"
	"github.com/noah-isme/ibs-portal-api/internal/handler"
	internalmiddleware "github.com/noah-isme/ibs-portal-api/internal/middleware"
	"github.com/noah-isme/ibs-portal-api/internal/models"
	"github.com/noah-isme/ibs-portal-api/internal/repository"
	"github.com/noah-isme/ibs-portal-api/internal/service"
	"github.com/noah-isme/ibs-portal-api/pkg/cache"
	"github.com/noah-isme/ibs-portal-api/pkg/config"
	"github.com/noah-isme/ibs-portal-api/pkg/database"
	appErrors "github.com/noah-isme/ibs-portal-api/pkg/errors"
	"github.com/noah-isme/ibs-portal-api/pkg/jobs"
	"github.com/noah-isme/ibs-portal-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/ibs-portal-api/pkg/middleware/cors"
	ratelimitmiddleware "github.com/noah-isme/ibs-portal-api/pkg/middleware/ratelimit"
	reqidmiddleware "github.com/noah-isme/ibs-portal-api/pkg/middleware/requestid"
	securemiddleware "github.com/noah-isme/ibs-portal-api/pkg/middleware/secure"
	"github.com/noah-isme/ibs-portal-api/pkg/response"
)

// @title IBS Portal API
// @version 1.0.0
// @description Client credential vault with position-based access control, audit trail and admin notifications
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close() //nolint:errcheck

	metricsSvc := service.NewMetricsService()
	validate := validator.New()

	// Redis backs the audit view cache and live notification push. Both degrade when it is down.
	var (
		cacheRepo service.CacheRepository
		pusher    notificationPusher
		redisPing handler.Pinger
	)
	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, running without cache and live notifications", zap.Error(err))
	} else {
		defer redisClient.Close() //nolint:errcheck
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
		pusher = repository.NewPushRepository(redisClient, cfg.Notifications.PushChannelPrefix, logr)
		redisPing = redisPinger(redisClient)
	}

	userRepo := repository.NewUserRepository(db)
	clientRepo := repository.NewClientRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	policy, err := service.NewAccessPolicy(cfg.Access.EditPositions)
	if err != nil {
		logr.Sugar().Fatalw("invalid EDIT_POSITIONS", "error", err)
	}

	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Audit.CacheTTL, logr, cfg.Audit.CacheEnabled && cacheRepo != nil)
	auditSvc := service.NewAuditService(auditRepo, cacheSvc, metricsSvc, logr, service.AuditConfig{
		DefaultLimit: cfg.Audit.DefaultLimit,
		ClientLimit:  cfg.Audit.ClientLimit,
		CacheTTL:     cfg.Audit.CacheTTL,
	})
	notificationSvc := service.NewNotificationService(notificationRepo, userRepo, pusher, metricsSvc, logr, cfg.Notifications.FeedLimit)

	alerts := service.NewAlertDispatcher(notificationSvc, metricsSvc, logr, jobs.QueueConfig{
		Workers:    cfg.Alerts.Workers,
		BufferSize: cfg.Alerts.BufferSize,
		MaxRetries: cfg.Alerts.MaxRetries,
		RetryDelay: cfg.Alerts.RetryDelay,
		Logger:     logr,
	})
	alerts.Start(ctx)
	defer alerts.Stop()

	authSvc := service.NewAuthService(userRepo, auditSvc, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		SingleSession:      cfg.JWT.SingleSession,
	})
	userSvc := service.NewUserService(userRepo, policy, notificationSvc, logr)
	clientSvc := service.NewClientService(clientRepo, auditSvc, alerts, validate, logr)

	access := internalmiddleware.NewAccess(policy, userSvc, auditSvc, alerts, metricsSvc, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	permissionHandler := handler.NewPermissionHandler(policy)
	clientHandler := handler.NewClientHandler(clientSvc)
	auditHandler := handler.NewAuditHandler(auditSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc, cfg.Notifications.StreamKeepAlive)
	userHandler := handler.NewUserHandler(userSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, map[string]handler.Pinger{
		"postgres": db,
		"redis":    redisPing,
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(securemiddleware.New(cfg.Env != config.EnvProduction))
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	authGroup := api.Group("/auth")
	if cfg.RateLimit.Enabled {
		limiter := ratelimitmiddleware.New(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
		authGroup.Use(limiter.Middleware(func(c *gin.Context) {
			response.Abort(c, appErrors.ErrRateLimited)
		}))
	}
	authGroup.POST("/signup", authHandler.Signup)
	authGroup.POST("/login", authHandler.Login)
	authGroup.POST("/refresh", authHandler.Refresh)

	secured := api.Group("")
	secured.Use(internalmiddleware.JWT(authSvc), access.Principal())
	secured.POST("/auth/logout", authHandler.Logout)
	secured.GET("/auth/me", authHandler.Me)

	me := secured.Group("/me")
	me.GET("/permissions", permissionHandler.Get)
	me.PUT("/nickname", userHandler.UpdateNickname)

	clients := secured.Group("/clients", access.Require(models.CapabilityView))
	clients.GET("", clientHandler.List)
	clients.GET("/:id", clientHandler.Get)
	clients.POST("/:id/credentials", access.Require(models.CapabilityCreate), clientHandler.CreateCredential)

	credentials := secured.Group("/credentials")
	credentials.PUT("/:id", access.Require(models.CapabilityEdit), clientHandler.UpdateCredential)
	credentials.DELETE("/:id", access.Require(models.CapabilityDelete), clientHandler.DeleteCredential)

	audit := secured.Group("/audit")
	audit.POST("", access.Require(models.CapabilityCopy), auditHandler.Record)
	audit.GET("", access.RequireAdmin(), auditHandler.Recent)
	audit.GET("/clients/:id", access.RequireAdmin(), auditHandler.ByClient)
	audit.GET("/export", access.RequireAdmin(), auditHandler.Export)
	audit.GET("/:id", access.RequireAdmin(), auditHandler.Get)

	notifications := secured.Group("/notifications")
	notifications.GET("", notificationHandler.List)
	notifications.GET("/unread-count", notificationHandler.UnreadCount)
	notifications.GET("/stream", notificationHandler.Stream)
	notifications.POST("/read-all", notificationHandler.MarkAllRead)
	notifications.POST("/:id/read", notificationHandler.MarkRead)
	notifications.POST("", access.RequireAdmin(), notificationHandler.Send)

	users := secured.Group("/users", access.RequireAdmin())
	users.GET("", userHandler.List)
	users.GET("/:id", userHandler.Get)
	users.PUT("/:id/position", userHandler.UpdatePosition)
	users.PUT("/:id/roles", userHandler.ReplaceRoles)
	users.DELETE("/:id", userHandler.Deactivate)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}

type notificationPusher interface {
	Publish(ctx context.Context, event models.NotificationEvent) error
	Subscribe(ctx context.Context, userID int64) (<-chan models.NotificationEvent, func(), error)
}

func redisPinger(client *redis.Client) handler.Pinger {
	return handler.PingFunc(func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
}
