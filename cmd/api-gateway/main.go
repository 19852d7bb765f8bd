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

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/noah-isme/school-timetable-api/api/swagger"
	"github.com/noah-isme/school-timetable-api/internal/handler"
	"github.com/noah-isme/school-timetable-api/internal/repository"
	"github.com/noah-isme/school-timetable-api/internal/router"
	"github.com/noah-isme/school-timetable-api/internal/service"
	"github.com/noah-isme/school-timetable-api/pkg/cache"
	"github.com/noah-isme/school-timetable-api/pkg/clock"
	"github.com/noah-isme/school-timetable-api/pkg/config"
	"github.com/noah-isme/school-timetable-api/pkg/database"
	"github.com/noah-isme/school-timetable-api/pkg/export"
	"github.com/noah-isme/school-timetable-api/pkg/jobs"
	"github.com/noah-isme/school-timetable-api/pkg/logger"
)

// @title School Timetable API
// @version 1.0.0
// @description Sections, courses, weekly timetables and quizzes for a school.
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("postgres unavailable", zap.Error(err))
	}
	defer db.Close()

	var redisRepo *repository.CacheRepository
	var cacheRepo service.CacheRepository
	if cfg.Timetables.CacheEnabled {
		redisClient, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, timetable cache disabled", zap.Error(err))
		} else {
			redisRepo = repository.NewCacheRepository(redisClient, logr)
			defer redisRepo.Close() //nolint:errcheck
			cacheRepo = redisRepo
		}
	}

	mongoClient, mongoDB, err := database.NewMongo(ctx, cfg.Mongo)
	if err != nil {
		logr.Fatal("mongo unavailable", zap.Error(err))
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mongoClient.Disconnect(disconnectCtx)
	}()

	validate := validator.New()
	clk := clock.System()
	metrics := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	sectionRepo := repository.NewSectionRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	timetableRepo := repository.NewTimetableRepository(db)
	quizRepo := repository.NewQuizRepository(db)
	notificationRepo := repository.NewNotificationRepository(mongoDB, logr)
	if err := notificationRepo.EnsureIndexes(ctx); err != nil {
		logr.Warn("notification indexes not ensured", zap.Error(err))
	}

	notifications := service.NewNotificationService(notificationRepo, logr, clk)
	// Workers outlive the signal context so requests still draining in Shutdown can enqueue.
	queueCtx, cancelQueue := context.WithCancel(context.Background())
	defer cancelQueue()
	var queue *jobs.Queue
	if cfg.Notifications.Enabled {
		queue = jobs.NewQueue("notifications", notifications.HandleJob, jobs.QueueConfig{
			Workers:    cfg.Notifications.Workers,
			MaxRetries: cfg.Notifications.Retries,
			RetryDelay: cfg.Notifications.RetryDelay,
			Logger:     logr,
		})
		queue.Start(queueCtx)
		notifications.AttachQueue(queue)
		go reportQueueDepth(queueCtx, "notifications", queue, metrics)
	}

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Timetables.CacheTTL, logr, cacheRepo != nil)
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	}, clk)
	sectionSvc := service.NewSectionService(sectionRepo, userRepo, notifications, validate, logr, clk)
	courseSvc := service.NewCourseService(courseRepo, sectionRepo, userRepo, validate, logr)
	timetableSvc := service.NewTimetableService(service.TimetableServiceDeps{
		Repo:      timetableRepo,
		Sections:  sectionRepo,
		Courses:   courseRepo,
		Users:     userRepo,
		Cache:     cacheSvc,
		Metrics:   metrics,
		Notifier:  notifications,
		Validator: validate,
		Logger:    logr,
		Clock:     clk,
	})
	quizSvc := service.NewQuizService(quizRepo, courseRepo, notifications, metrics, validate, logr, clk)
	exportSvc := service.NewExportService(timetableSvc, sectionRepo, courseRepo, userRepo, export.NewPDFExporter(), logr)

	var sweeper *service.SessionSweeper
	if cfg.Sessions.Enabled {
		sweeper = service.NewSessionSweeper(sectionSvc, cfg.Sessions.Schedule, cfg.Sessions.Timeout, logr)
		if err := sweeper.Start(); err != nil {
			logr.Fatal("session sweep not scheduled", zap.Error(err))
		}
	}

	readiness := map[string]handler.Pinger{
		"postgres": handler.PingFunc(db.PingContext),
		"mongo":    handler.PingFunc(func(ctx context.Context) error { return mongoClient.Ping(ctx, nil) }),
	}
	if redisRepo != nil {
		readiness["redis"] = redisRepo
	}

	r := router.New(router.Options{
		Config:  cfg,
		Logger:  logr,
		Tokens:  authSvc,
		Metrics: metrics,
		Handlers: router.Handlers{
			Auth:          handler.NewAuthHandler(authSvc),
			Sections:      handler.NewSectionHandler(sectionSvc),
			Courses:       handler.NewCourseHandler(courseSvc),
			Timetables:    handler.NewTimetableHandler(timetableSvc, exportSvc),
			Quizzes:       handler.NewQuizHandler(quizSvc),
			Notifications: handler.NewNotificationHandler(notifications),
			Metrics:       handler.NewMetricsHandler(metrics, readiness),
		},
		EnableDocs: cfg.Env != config.EnvProduction,
	})

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("http shutdown", zap.Error(err))
	}
	if sweeper != nil {
		sweeper.Stop(shutdownCtx)
	}
	if queue != nil {
		queue.Stop()
	}
	cancelQueue()
}

func reportQueueDepth(ctx context.Context, name string, queue *jobs.Queue, metrics *service.MetricsService) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.SetQueueDepth(name, queue.Stats().Pending)
		}
	}
}
