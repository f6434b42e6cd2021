package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/alikhafaji/mazadpay-backend/internal/accounts"
	"github.com/alikhafaji/mazadpay-backend/internal/consumers/lifecycle"
	"github.com/alikhafaji/mazadpay-backend/internal/notifications"
	"github.com/alikhafaji/mazadpay-backend/internal/permissions"
	"github.com/alikhafaji/mazadpay-backend/internal/wallet"
	"github.com/alikhafaji/mazadpay-backend/pkg/config"
	"github.com/alikhafaji/mazadpay-backend/pkg/db"
	"github.com/alikhafaji/mazadpay-backend/pkg/instance"
	"github.com/alikhafaji/mazadpay-backend/pkg/logger"
	"github.com/alikhafaji/mazadpay-backend/pkg/migrate"
	"github.com/alikhafaji/mazadpay-backend/pkg/outbox"
	"github.com/alikhafaji/mazadpay-backend/pkg/outbox/idempotency"
	"github.com/alikhafaji/mazadpay-backend/pkg/pubsub"
	"github.com/alikhafaji/mazadpay-backend/pkg/redis"
)

// processedEventTTL bounds how long a consumed event ID stays marked in
// Redis; pubsub redelivery never lags this far behind.
const processedEventTTL = 7 * 24 * time.Hour

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
		}
	}()

	idempotencyManager, err := idempotency.NewManager(redisClient, processedEventTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency manager", err)
		os.Exit(1)
	}

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	accountsService, err := accounts.NewService(accounts.ServiceParams{
		Repo:   accounts.NewRepository(dbClient.DB()),
		Tx:     dbClient,
		Outbox: outboxService,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create accounts service", err)
		os.Exit(1)
	}

	notificationsService, err := notifications.NewService(notifications.ServiceParams{
		Repo:   notifications.NewRepository(dbClient.DB()),
		Tx:     dbClient,
		Outbox: outboxService,
		Admins: accountsService,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create notifications service", err)
		os.Exit(1)
	}

	walletService, err := wallet.NewService(wallet.ServiceParams{
		Repo:   wallet.NewRepository(dbClient.DB()),
		Tx:     dbClient,
		Outbox: outboxService,
		Logger: logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create wallet service", err)
		os.Exit(1)
	}

	permissionsService, err := permissions.NewService(permissions.ServiceParams{
		Repo:           permissions.NewRepository(dbClient.DB()),
		Tx:             dbClient,
		Outbox:         outboxService,
		Wallet:         walletService,
		Accounts:       accountsService,
		Notifier:       notificationsService,
		Logger:         logg,
		SweepBatchSize: cfg.Clearance.SweepBatchSize,
		DebtGraceDays:  cfg.Clearance.DebtGraceDays,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create clearance engine", err)
		os.Exit(1)
	}

	lifecycleConsumer, err := lifecycle.NewConsumer(lifecycle.ConsumerParams{
		Engine:      permissionsService,
		Wallet:      walletService,
		Tx:          dbClient,
		Idempotency: idempotencyManager,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create lifecycle consumer", err)
		os.Exit(1)
	}

	notificationConsumer, err := notifications.NewConsumer(
		&notifications.LogChannel{Logg: logg},
		pubsubClient.DomainSubscription(),
		idempotencyManager,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create notification consumer", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Config:               cfg,
		Logger:               logg,
		DB:                   dbClient,
		Redis:                redisClient,
		PubSub:               pubsubClient,
		LifecycleConsumer:    lifecycleConsumer,
		NotificationConsumer: notificationConsumer,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create worker service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	logg.Info(ctx, "starting worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "worker shutting down gracefully")
}
