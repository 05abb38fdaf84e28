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
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-reschedule-api/api/swagger"
	"github.com/noah-isme/sma-reschedule-api/internal/handler"
	"github.com/noah-isme/sma-reschedule-api/internal/legacy"
	"github.com/noah-isme/sma-reschedule-api/internal/middleware"
	"github.com/noah-isme/sma-reschedule-api/internal/models"
	"github.com/noah-isme/sma-reschedule-api/internal/repository"
	"github.com/noah-isme/sma-reschedule-api/internal/scheduling"
	"github.com/noah-isme/sma-reschedule-api/internal/service"
	"github.com/noah-isme/sma-reschedule-api/pkg/cache"
	"github.com/noah-isme/sma-reschedule-api/pkg/config"
	"github.com/noah-isme/sma-reschedule-api/pkg/database"
	"github.com/noah-isme/sma-reschedule-api/pkg/jobs"
	"github.com/noah-isme/sma-reschedule-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-reschedule-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-reschedule-api/pkg/middleware/requestid"
	"github.com/noah-isme/sma-reschedule-api/pkg/storage"
)

// @title SMA Reschedule API
// @version 0.1.0
// @description Lesson rescheduling and room availability service
// @BasePath /api/v1
// @schemes http
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
	}

	metrics := service.NewMetricsService()
	var cacheRepo service.CacheRepository
	if redisClient != nil {
		repo := repository.NewCacheRepository(redisClient, logr)
		defer repo.Close() //nolint:errcheck
		cacheRepo = repo
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Scheduler.RoomCacheTTL, logr, redisClient != nil)

	validate := validator.New()
	location := cfg.Scheduler.Location()

	roomRepo := repository.NewRoomRepository(db)
	bookingRepo := repository.NewBookingRepository(db)
	lessonRepo := repository.NewLessonRepository(db)

	bookingChecker := service.NewBookingConflictChecker(bookingRepo, logr)
	var checker scheduling.ConflictChecker = bookingChecker
	var legacyClient *legacy.Client
	if cfg.Scheduler.ConflictChecker == config.ConflictCheckerLegacy {
		legacyClient = legacy.NewClient(cfg.Legacy, nil, logr)
		checker = legacyClient
		logr.Info("using legacy conflict checker", zap.String("base_url", cfg.Legacy.BaseURL))
	}

	queue := jobs.NewQueue("reschedule", service.NewRescheduleJobHandler(cacheSvc, logr), jobs.QueueConfig{
		Workers:    cfg.Jobs.Workers,
		MaxRetries: cfg.Jobs.Retries,
		Logger:     logr,
		DeadLetter: service.DeadLetterToMetrics(metrics, logr),
	})
	queue.Start(ctx)
	defer queue.Stop()

	roomSvc := service.NewRoomService(roomRepo, bookingRepo, cacheSvc, metrics, service.RoomServiceConfig{
		Location:            location,
		RecommendationLimit: cfg.Scheduler.RecommendationLimit,
		NearbyDays:          cfg.Scheduler.NearbyDays,
		CacheTTL:            cfg.Scheduler.RoomCacheTTL,
	}, validate, logr)

	rescheduleSvc := service.NewRescheduleService(lessonRepo, roomRepo, bookingRepo, checker, bookingChecker, queue, metrics, service.RescheduleConfig{
		Location:         location,
		CheckConcurrency: cfg.Scheduler.ExternalCheckConcurrency,
		CheckTimeout:     cfg.Scheduler.ExternalCheckTimeout,
	}, validate, logr)
	if legacyClient != nil {
		rescheduleSvc.WithLessonSource(legacyClient.FetchLessons)
	}

	exportStore, err := storage.NewLocalStorage(cfg.Export.Dir)
	if err != nil {
		logr.Fatal("failed to prepare export storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Export.SignSecret, cfg.Export.LinkTTL)
	exportSvc := service.NewExportService(roomSvc, exportStore, signer, service.ExportConfig{APIPrefix: cfg.APIPrefix}, logr, nil, nil)
	go runExportCleanup(ctx, exportSvc, time.Hour, logr)

	tokenSvc := service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics, "/metrics", "/health"))
	r.Use(middleware.WithResponseMeta())

	checks := map[string]handler.Pinger{"postgres": db.PingContext}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}
	metricsHandler := handler.NewMetricsHandler(metrics, checks)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerRoutes(r.Group(cfg.APIPrefix), routes{
		rooms:      handler.NewRoomHandler(roomSvc, exportSvc),
		exports:    handler.NewExportHandler(exportSvc),
		reschedule: handler.NewRescheduleHandler(rescheduleSvc),
		metrics:    metricsHandler,
		tokens:     tokenSvc,
		audit:      logr.Named("audit"),
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env, "conflict_checker", cfg.Scheduler.ConflictChecker)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	logr.Info("server stopped")
}

type routes struct {
	rooms      *handler.RoomHandler
	exports    *handler.ExportHandler
	reschedule *handler.RescheduleHandler
	metrics    *handler.MetricsHandler
	tokens     middleware.TokenValidator
	audit      *zap.Logger
}

func registerRoutes(api *gin.RouterGroup, h routes) {
	auth := middleware.JWT(h.tokens)
	editors := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleTeacher)

	api.GET("/metrics/summary", auth, middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin), h.metrics.Summary)

	rooms := api.Group("/rooms")
	rooms.GET("", h.rooms.List)
	rooms.GET("/:id", h.rooms.Get)
	rooms.GET("/:id/schedule", h.rooms.Schedule)
	rooms.GET("/:id/schedule/export", h.rooms.ExportSchedule)
	rooms.POST("/:id/schedule/exports", auth, editors, h.rooms.PublishSchedule)
	rooms.POST("/check-availability", h.rooms.CheckAvailability)
	rooms.POST("/search-available", h.rooms.SearchAvailable)
	rooms.POST("/alternatives", h.rooms.Alternatives)

	api.GET("/exports/:token", h.exports.Download)

	classes := api.Group("/classes/:classId/reschedule")
	classes.GET("", h.reschedule.Draft)
	classes.GET("/history", h.reschedule.History)
	classes.POST("/validate", h.reschedule.Validate)
	classes.POST("/check", h.reschedule.Check)
	classes.POST("", auth, editors, middleware.Audit(h.audit, "reschedule.submit", "class"), h.reschedule.Submit)

	api.POST("/teachers/:teacherId/availability", auth,
		middleware.RBAC(string(models.RoleSuperAdmin), string(models.RoleAdmin), "SELF"),
		h.reschedule.TeacherAvailability)
}

func runExportCleanup(ctx context.Context, exports *service.ExportService, every time.Duration, logr *zap.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := exports.Cleanup(); err != nil {
				logr.Warn("export cleanup failed", zap.Error(err))
			}
		}
	}
}
