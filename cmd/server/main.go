package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anonto42/pingup/backend/internal/cache"
	"github.com/anonto42/pingup/backend/internal/metrics"
	"github.com/anonto42/pingup/backend/internal/middleware"
	"github.com/anonto42/pingup/backend/internal/models"
	"github.com/anonto42/pingup/backend/internal/repositories"
	"github.com/anonto42/pingup/backend/internal/router"
	"github.com/anonto42/pingup/backend/internal/scheduler"
	"github.com/anonto42/pingup/backend/internal/services"
	"github.com/anonto42/pingup/backend/internal/storage"
	"github.com/anonto42/pingup/backend/pkg/config"
	"github.com/anonto42/pingup/backend/pkg/firebase"
	"github.com/anonto42/pingup/backend/pkg/logger"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Initialize(cfg.LogLevel, cfg.LogFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	err = run(cfg)
	if err != nil {
		logger.Log.Error("Server exited", zap.Error(err))
	}
	_ = logger.Close()
	if err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	log := logger.Log

	db, err := config.InitDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.CloseDB()

	if err := models.AutoMigrate(db.Postgres); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	log.Info("PostgreSQL auto-migrations completed")

	// --- Repositories ---
	userRepo := repositories.NewPostgresUserRepository(db.Postgres)
	followRepo := repositories.NewPostgresFollowRepository(db.Postgres)
	connRepo := repositories.NewPostgresConnectionRepository(db.Postgres)
	messageRepo := repositories.NewPostgresMessageRepository(db.Postgres)
	notificationRepo := repositories.NewMongoNotificationRepository(db.Mongo)
	if err := notificationRepo.EnsureIndexes(ctx); err != nil {
		return fmt.Errorf("notification indexes: %w", err)
	}

	// --- Redis-backed infrastructure, optional ---
	var unread cache.UnreadCache = cache.NoopUnreadCache{}
	var sched scheduler.Scheduler = scheduler.Noop{Logger: log}
	var worker *scheduler.Worker
	if db.Redis != nil {
		unread = cache.NewRedisUnreadCache(db.Redis, cfg.UnreadCacheTTL)
		store := scheduler.NewRedisScheduler(db.Redis)
		sched = store
		worker = scheduler.NewWorker(store, cfg.SchedulerPollInterval, log)
	}

	var media storage.MediaUploader = storage.Disabled{}
	if cfg.MediaEnabled() {
		s3, err := storage.NewS3Uploader(ctx, cfg.S3Region, cfg.S3Bucket, cfg.S3BaseURL)
		if err != nil {
			return err
		}
		media = s3
	} else {
		log.Warn("S3 is not configured, image uploads are disabled")
	}

	var verifier middleware.TokenVerifier
	if cfg.FirebaseCredentialsPath != "" {
		app, err := firebase.InitFirebase(ctx, firebase.Config{
			CredentialsPath: cfg.FirebaseCredentialsPath,
			ProjectID:       cfg.FirebaseProjectID,
			CheckRevoked:    cfg.FirebaseCheckRevoked,
		})
		if err != nil {
			return err
		}
		verifier = app
	}

	// --- Services ---
	notifier := services.NewNotifier(notificationRepo, userRepo, log)
	graph := services.NewGraphService(userRepo, followRepo, connRepo, notifier, sched, log)
	messaging := services.NewMessagingService(messageRepo, userRepo, unread, media, log)
	users := services.NewUserService(userRepo, notificationRepo, unread, media, log)
	presence := services.NewPresence(userRepo, log)
	reconciler := services.NewReconciler(repositories.NewPostgresReconcileRepository(db.Postgres), cfg.ReconcileInterval, log)

	if worker != nil {
		worker.Handle(services.EventConnectionRequested, graph.HandleConnectionRequested)
		worker.Handle(services.EventConnectionReminder, graph.HandleConnectionReminder)
	}

	e, err := router.New(cfg, router.Services{
		Users:     users,
		Graph:     graph,
		Messaging: messaging,
		Notifier:  notifier,
		Presence:  presence,
		Verifier:  verifier,
	}, log)
	if err != nil {
		return err
	}

	metricsServer := echo.New()
	metricsServer.HideBanner = true
	metricsServer.HidePort = true
	metricsServer.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("API server listening", zap.String("port", cfg.Port))
		return serve(e, ":"+cfg.Port)
	})
	g.Go(func() error {
		log.Info("Metrics server listening", zap.String("port", cfg.MetricsPort))
		return serve(metricsServer, ":"+cfg.MetricsPort)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(e.Shutdown(shutdownCtx), metricsServer.Shutdown(shutdownCtx))
	})
	if worker != nil {
		g.Go(func() error { return worker.Run(gctx) })
	}
	g.Go(func() error { return reconciler.Run(gctx) })

	return g.Wait()
}

func serve(e *echo.Echo, addr string) error {
	if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
