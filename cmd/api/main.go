package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/church-events-api/internal/authz"
	"github.com/noah-isme/church-events-api/internal/config"
	"github.com/noah-isme/church-events-api/internal/database"
	"github.com/noah-isme/church-events-api/internal/handler"
	"github.com/noah-isme/church-events-api/internal/middleware"
	"github.com/noah-isme/church-events-api/internal/models"
	"github.com/noah-isme/church-events-api/internal/repository"
	"github.com/noah-isme/church-events-api/internal/router"
	"github.com/noah-isme/church-events-api/internal/service"
	"github.com/noah-isme/church-events-api/internal/utils"
	"github.com/noah-isme/church-events-api/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}

	db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(rootCtx, cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable; list cache and pub/sub disabled")
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			logger.Warn().Err(err).Msg("nats unavailable; notification fan-out disabled")
			natsConn = nil
		} else {
			defer natsConn.Close()
		}
	}

	table := workflow.DefaultTable()
	authorizer, err := authz.NewAuthorizer(table, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build authorization policy")
	}
	logger.Debug().Str("rules", table.Describe()).Msg("workflow transition table loaded")

	validate := utils.NewValidator()

	requestRepo := repository.NewRequestRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	publishedEventRepo := repository.NewPublishedEventRepository(db)

	notificationService := service.NewNotificationService(notificationRepo, redisClient, natsConn, service.NotificationOptions{
		QueueSize:   cfg.NotificationQueueSize,
		MaxAttempts: cfg.NotificationMaxAttempts,
		MaxBackoff:  cfg.NotificationMaxBackoff,
		ChannelBase: cfg.NotificationChannelBase,
	}, logger)
	notificationService.Start(rootCtx)

	cache := service.NewRequestCache(redisClient, cfg.RequestCacheTTL, logger)
	engine := service.NewRequestWorkflowService(requestRepo, authorizer, table, notificationService, cache, validate, logger)
	queries := service.NewRequestQueryService(requestRepo, authorizer, cache, logger)
	auditService := service.NewAuditService(auditRepo, authorizer, logger)
	calendarService := service.NewCalendarService(publishedEventRepo, validate, logger)

	probes := map[string]handler.HealthProbe{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	if redisClient != nil {
		probes["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: logger})
	router.Register(app, cfg, router.Dependencies{
		RequestHandler:      handler.NewRequestHandler(engine, queries, logger),
		NotificationHandler: handler.NewNotificationHandler(notificationService, logger),
		AuditHandler:        handler.NewAuditHandler(auditService, logger),
		CalendarHandler:     handler.NewCalendarHandler(calendarService, logger),
		Authorizer:          authorizer,
		HealthProbes:        probes,
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(app, notificationService, logger)
}

// waitForShutdown stops accepting HTTP traffic first, then flushes queued notifications.
func waitForShutdown(app *fiber.App, notifications service.NotificationService, logger zerolog.Logger) {
	signalCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-signalCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	if err := notifications.Drain(ctx); err != nil {
		logger.Error().Err(err).Msg("notification queue not fully drained")
	}

	logger.Info().Msg("server stopped")
}
