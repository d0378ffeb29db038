package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/picto-request-service/internal/api/http"
	"github.com/spec-kit/picto-request-service/internal/api/http/handlers"
	"github.com/spec-kit/picto-request-service/internal/auth"
	"github.com/spec-kit/picto-request-service/internal/config"
	"github.com/spec-kit/picto-request-service/internal/events"
	"github.com/spec-kit/picto-request-service/internal/live"
	"github.com/spec-kit/picto-request-service/internal/observability"
	"github.com/spec-kit/picto-request-service/internal/persistence"
	"github.com/spec-kit/picto-request-service/internal/ratelimit"
	"github.com/spec-kit/picto-request-service/internal/repository"
	"github.com/spec-kit/picto-request-service/internal/service"
	"github.com/spec-kit/picto-request-service/internal/tracker"
	"github.com/spec-kit/picto-request-service/internal/worker"
)

const (
	deliveryWindow  = time.Hour
	janitorInterval = 10 * time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	pool := pg.PoolHandle()
	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pool, cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	requestRepo := repository.NewRequestRepository(pool)
	commentRepo := repository.NewCommentRepository(pool)
	historyRepo := repository.NewHistoryRepository(pool)
	notificationRepo := repository.NewNotificationRepository(pool)
	reportReadRepo := repository.NewReportReadRepository(pool)

	metrics := observability.NewMetrics()
	registry := live.NewRegistry(cfg.Live.BufferSize, logger, metrics)
	dispatcher := events.NewInMemoryDispatcher()

	healthDeps := map[string]handlers.Pinger{"postgres": pg}

	var (
		limiter    ratelimit.Limiter
		cache      tracker.ListingCache
		deliveries tracker.DeliveryLog
		prunables  []worker.Pruner
	)
	if cfg.Tracker.StateBackend == "redis" {
		redis := persistence.NewRedis(cfg.Redis, logger)
		defer redis.Close()
		healthDeps["redis"] = redis

		limiter = ratelimit.NewRedisFixedWindow(redis.Client, redis.Key("ratelimit", ""), cfg.Tracker.RateLimit, cfg.Tracker.RateWindow())
		cache = tracker.NewRedisCache(redis.Client, redis.Key("reports", "listing"))
		deliveries = tracker.NewRedisDeliveryLog(redis.Client, redis.Key("delivery", ""), deliveryWindow)
	} else {
		memLimiter := ratelimit.NewFixedWindow(cfg.Tracker.RateLimit, cfg.Tracker.RateWindow())
		memDeliveries := tracker.NewMemoryDeliveryLog(deliveryWindow, nil)
		limiter = memLimiter
		cache = tracker.NewMemoryCache(nil)
		deliveries = memDeliveries
		prunables = append(prunables, memLimiter, memDeliveries)
	}

	var trackerClient tracker.Client
	if cfg.Tracker.Configured() {
		gl, err := tracker.NewGitLabClient(cfg.Tracker.BaseURL, cfg.Tracker.Token, cfg.Tracker.Project)
		if err != nil {
			logger.Fatal("failed to init tracker client", zap.Error(err))
		}
		trackerClient = gl
	} else {
		logger.Warn("tracker not configured; report submission disabled")
	}

	notificationService := service.NewNotificationService(service.NotificationDependencies{
		NotificationRepo: notificationRepo,
		Live:             registry,
		Dispatcher:       dispatcher,
		Logger:           logger,
		BaseURL:          cfg.Workflow.BaseURL,
	})
	requestService := service.NewRequestService(service.RequestDependencies{
		RequestRepo: requestRepo,
		CommentRepo: commentRepo,
		HistoryRepo: historyRepo,
		Dispatcher:  dispatcher,
		Handlers:    cfg.Workflow.Handlers,
		Logger:      logger,
	})
	reportService := service.NewReportService(service.ReportDependencies{
		Client:        trackerClient,
		Cache:         cache,
		Limiter:       limiter,
		ReadRepo:      reportReadRepo,
		Deliveries:    deliveries,
		Live:          registry,
		WebhookSecret: cfg.Tracker.WebhookSecret,
		CacheTTL:      cfg.Tracker.CacheTTL(),
		ListLimit:     cfg.Tracker.ListLimit,
		Logger:        logger,
	})

	worker.StartNotificationWorker(notificationService)
	janitorDone := worker.StartJanitor(ctx, janitorInterval, logger, prunables...)

	authMiddleware := auth.NewAuthMiddleware(
		auth.NewTokenManager(cfg.Auth.JWTSecret),
		cfg.Workflow.Handlers,
		cfg.Auth.PrivilegedRoles,
	)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, healthDeps, metrics),
		Requests:       handlers.NewRequestsHandler(requestService),
		Notifications:  handlers.NewNotificationsHandler(notificationService),
		Reports:        handlers.NewReportsHandler(reportService),
		Events:         handlers.NewEventsHandler(registry, cfg.Live.Heartbeat(), logger),
		AuthMiddleware: authMiddleware,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	// Streams block shutdown until their writers return.
	registry.Close()
	_ = app.Shutdown()
	reportService.Wait()
	cancel()
	<-janitorDone
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
