package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bracketline/notify-engine/internal/config"
	"github.com/bracketline/notify-engine/internal/delivery"
	"github.com/bracketline/notify-engine/internal/handler"
	"github.com/bracketline/notify-engine/internal/infra/postgresql"
	"github.com/bracketline/notify-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/bracketline/notify-engine/internal/infra/redis"
	"github.com/bracketline/notify-engine/internal/observability"
	"github.com/bracketline/notify-engine/internal/repository"
	"github.com/bracketline/notify-engine/internal/service"
	"github.com/bracketline/notify-engine/internal/transport"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("notify-engine exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}

	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis initialization failed: %w", err)
	}
	defer rdb.Close()

	limiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec)
	if err != nil {
		return fmt.Errorf("rate limiter initialization failed: %w", err)
	}

	discordHandler, err := delivery.NewDiscordHandler(cfg.DiscordAPIBaseURL, cfg.DiscordBotToken, limiter, logger)
	if err != nil {
		return fmt.Errorf("discord handler initialization failed: %w", err)
	}
	handlers := delivery.NewRegistry(discordHandler, delivery.NewEmailHandler())

	subscriptionRepo := repository.NewGormSubscriptionRepo(db)
	logRepo := repository.NewGormNotificationLogRepo(db)
	userRepo := repository.NewGormUserRepo(db)

	notificationService, err := service.NewNotificationService(subscriptionRepo, logRepo, logger)
	if err != nil {
		return fmt.Errorf("notification service initialization failed: %w", err)
	}
	userService, err := service.NewUserService(userRepo, logger)
	if err != nil {
		return fmt.Errorf("user service initialization failed: %w", err)
	}

	processor, err := service.NewProcessor(logRepo, handlers, service.ProcessorConfig{
		PollInterval: time.Duration(cfg.PollIntervalSec) * time.Second,
		BatchSize:    cfg.BatchSize,
		MaxRetries:   cfg.MaxRetries,
	}, logger)
	if err != nil {
		return fmt.Errorf("processor initialization failed: %w", err)
	}

	metrics := observability.NewMetrics()
	processor.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		AppName:      "notify-engine",
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	if err := handler.RegisterSubscriptionRoutes(app, notificationService); err != nil {
		return fmt.Errorf("subscription route registration failed: %w", err)
	}
	if err := handler.RegisterNotificationRoutes(app, notificationService); err != nil {
		return fmt.Errorf("notification route registration failed: %w", err)
	}
	if err := handler.RegisterUserRoutes(app, userService); err != nil {
		return fmt.Errorf("user route registration failed: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	processor.Start()

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("notify-engine api started", zap.Int("port", cfg.APIPort))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.APIPort)); err != nil {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutdown signal received")

		processor.Stop()
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			return fmt.Errorf("api shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("notify-engine stopped")
	return nil
}
