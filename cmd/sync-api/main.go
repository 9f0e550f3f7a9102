package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/testbridge/exam-sync-api/api/swagger"
	"github.com/testbridge/exam-sync-api/internal/handler"
	"github.com/testbridge/exam-sync-api/internal/middleware"
	"github.com/testbridge/exam-sync-api/internal/models"
	"github.com/testbridge/exam-sync-api/internal/repository"
	"github.com/testbridge/exam-sync-api/internal/service"
	"github.com/testbridge/exam-sync-api/pkg/cache"
	"github.com/testbridge/exam-sync-api/pkg/config"
	"github.com/testbridge/exam-sync-api/pkg/database"
	"github.com/testbridge/exam-sync-api/pkg/jobs"
	"github.com/testbridge/exam-sync-api/pkg/logger"
	corsmiddleware "github.com/testbridge/exam-sync-api/pkg/middleware/cors"
	reqidmiddleware "github.com/testbridge/exam-sync-api/pkg/middleware/requestid"
	"github.com/testbridge/exam-sync-api/pkg/storage"
)

// @title Exam Sync API
// @version 0.1.0
// @description Offline synchronization service for disconnected test centers
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, status reports will skip the cache", "error", err)
		redisClient = nil
	}

	bundleStore, err := storage.NewBundleDir(cfg.Sync.BundleDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare bundle directory", "error", err)
	}
	signer := storage.NewBundleSigner(cfg.Sync.SignedURLSecret, cfg.Sync.SignedURLTTL)

	enrollmentRepo := repository.NewEnrollmentRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	testRepo := repository.NewTestRepository(db)
	centerRepo := repository.NewTestCenterRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
		Audience:          cfg.JWT.Audience,
	})
	packageSvc := service.NewPackageService(enrollmentRepo, studentRepo, testRepo, centerRepo, metricsSvc, nil, logr)
	exportSvc := service.NewExportService(bundleStore, signer, service.ExportConfig{APIPrefix: cfg.APIPrefix}, logr, nil, nil)
	reconcileSvc := service.NewReconcileService(enrollmentRepo, metricsSvc, nil, logr)
	statusSvc := service.NewStatusService(enrollmentRepo, auditRepo, redisClient, metricsSvc, nil, cfg.Sync, logr)

	syncHandler := handler.NewSyncHandler(packageSvc, exportSvc, reconcileSvc, statusSvc)

	maintenance := jobs.NewScheduler(jobs.SchedulerConfig{Interval: cfg.Sync.CleanupInterval, Logger: logr})
	maintenance.Register(jobs.Task{Name: "bundle-cleanup", Run: func(ctx context.Context) error {
		deleted, err := bundleStore.CleanupOlderThan(cfg.Sync.CleanupTTL)
		if err != nil {
			return err
		}
		if len(deleted) > 0 {
			logr.Info("expired bundle files removed", zap.Int("count", len(deleted)))
		}
		return nil
	}})
	maintenance.Start(context.Background())
	defer maintenance.Stop()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	sync := api.Group("/sync")
	sync.Use(middleware.JWT(authSvc))
	sync.Use(middleware.RequireRoles(models.RoleAdmin, models.RoleCenterOperator))
	{
		sync.POST("/download-users",
			middleware.Audit(auditRepo, models.AuditActionPackageCreate, "sync_package"),
			syncHandler.DownloadUsers)
		sync.GET("/download-tests/:packageId", syncHandler.DownloadTests)
		sync.POST("/export-package", syncHandler.ExportPackage)
		sync.GET("/export/:token", syncHandler.DownloadBundle)
		sync.POST("/upload-results",
			middleware.Audit(auditRepo, models.AuditActionResultsUpload, "sync_results"),
			syncHandler.UploadResults)
		sync.GET("/status/:testCenterId", syncHandler.Status)
		sync.PUT("/status", syncHandler.SetStatus)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
