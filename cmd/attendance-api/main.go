package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/uniattend/attendance-api/api/swagger"
	"github.com/uniattend/attendance-api/internal/handler"
	internalmiddleware "github.com/uniattend/attendance-api/internal/middleware"
	"github.com/uniattend/attendance-api/internal/repository"
	"github.com/uniattend/attendance-api/internal/service"
	"github.com/uniattend/attendance-api/pkg/cache"
	"github.com/uniattend/attendance-api/pkg/config"
	"github.com/uniattend/attendance-api/pkg/database"
	"github.com/uniattend/attendance-api/pkg/logger"
	corsmiddleware "github.com/uniattend/attendance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/uniattend/attendance-api/pkg/middleware/requestid"
)

// @title Attendance Verification Engine API
// @version 1.0.0
// @description QR session issuance, three-factor attendance verification and offline sync.
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// The engine degrades without Redis: no key recovery on reuse and
		// in-process create locks only.
		logr.Sugar().Warnw("redis unavailable, continuing without cache", "error", err)
		redisClient = nil
	}

	sessionCache := repository.NewCacheRepository(redisClient, logr)
	defer sessionCache.Close() //nolint:errcheck

	sessionRepo := repository.NewQRSessionRepository(db)
	lectureRepo := repository.NewLectureRepository(db)
	roomRepo := repository.NewRoomRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)

	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(service.AuthConfig{AccessTokenSecret: cfg.JWT.Secret}, logr)

	sessionSvc := service.NewQRSessionService(sessionRepo, lectureRepo, sessionCache, nil, service.QRSessionConfig{
		DefaultDuration: time.Duration(cfg.QR.DefaultDurationMinutes) * time.Minute,
		MaxDuration:     time.Duration(cfg.QR.MaxDurationMinutes) * time.Minute,
		DefaultMaxUsage: cfg.QR.DefaultMaxUsage,
		AllowMultiple:   cfg.QR.AllowMultipleScans,
		EnforceIPList:   cfg.QR.EnforceIPAllowList,
		CreateLockTTL:   cfg.QR.CreateLockTTL,
	}, metricsSvc, nil, logr)

	geofenceSvc := service.NewGeofenceService(service.GeofenceConfig{
		AllowDegraded:  cfg.Verification.AllowDegradedGeofence,
		DegradedRadius: cfg.Verification.DegradedRadiusMeters,
	}, logr)

	verificationSvc := service.NewVerificationService(attendanceRepo, geofenceSvc, nil, service.VerificationConfig{
		FaceScoreThreshold: cfg.Verification.FaceScoreThreshold,
		AltitudeTolerance:  cfg.Verification.AltitudeTolerance,
	}, metricsSvc, logr)

	syncSvc := service.NewSyncConflictService(attendanceRepo, lectureRepo, nil, metricsSvc, nil, logr)
	attendanceSvc := service.NewAttendanceService(sessionSvc, verificationSvc, syncSvc, lectureRepo, roomRepo, nil, logr)
	lectureSvc := service.NewLectureService(lectureRepo, sessionRepo, nil, logr)
	exportSvc := service.NewExportService(sessionRepo, lectureRepo, roomRepo, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sweeper *service.SessionSweeper
	if cfg.Sweeper.Enabled {
		sweeper = service.NewSessionSweeper(sessionSvc, cfg.Sweeper.Interval, logr)
		sweeper.Start(ctx)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	metricsHandler := handler.NewMetricsHandler(metricsSvc)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)
	r.GET("/status", metricsHandler.Status)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r, handler.Handlers{
		Sessions:   handler.NewSessionHandler(sessionSvc, exportSvc),
		Attendance: handler.NewAttendanceHandler(attendanceSvc),
		Lectures:   handler.NewLectureHandler(lectureSvc),
	}, internalmiddleware.JWT(authSvc))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	if sweeper != nil {
		sweeper.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
