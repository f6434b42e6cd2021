package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/alikhafaji/mazadpay-backend/internal/accounts"
	"github.com/alikhafaji/mazadpay-backend/internal/cron"
	"github.com/alikhafaji/mazadpay-backend/internal/notifications"
	"github.com/alikhafaji/mazadpay-backend/internal/permissions"
	"github.com/alikhafaji/mazadpay-backend/internal/wallet"
	"github.com/alikhafaji/mazadpay-backend/pkg/config"
	"github.com/alikhafaji/mazadpay-backend/pkg/db"
	"github.com/alikhafaji/mazadpay-backend/pkg/logger"
	"github.com/alikhafaji/mazadpay-backend/pkg/metrics"
	"github.com/alikhafaji/mazadpay-backend/pkg/migrate"
	"github.com/alikhafaji/mazadpay-backend/pkg/outbox"
	"github.com/alikhafaji/mazadpay-backend/pkg/redis"
)

const lockKeyFormat = "mazadpay:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	notificationsRepo := notifications.NewRepository(dbClient.DB())
	notificationsService, err := notifications.NewService(notifications.ServiceParams{
		Repo:   notificationsRepo,
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

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry()
	registerJob := func(job cron.Job, err error) {
		if err != nil {
			logg.Error(context.Background(), "failed to create cron job", err)
			os.Exit(1)
		}
		registry.Register(job)
	}

	registerJob(cron.NewGracePeriodJob(cron.GracePeriodJobParams{
		Logger:  logg,
		Sweeper: permissionsService,
		Metrics: metricsCollector,
	}))
	registerJob(cron.NewDebtEnforcementJob(cron.DebtEnforcementJobParams{
		Logger:   logg,
		Enforcer: permissionsService,
		Metrics:  metricsCollector,
	}))
	registerJob(cron.NewHighDebtAlertJob(cron.HighDebtAlertJobParams{
		Logger:    logg,
		Alerter:   permissionsService,
		Threshold: cfg.Clearance.HighDebtThreshold,
	}))
	registerJob(cron.NewWalletHoldJob(cron.WalletHoldJobParams{
		Logger:   logg,
		Releaser: walletService,
		Metrics:  metricsCollector,
	}))
	registerJob(cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outbox.NewRepository(dbClient.DB()),
	}))
	registerJob(cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: notificationsRepo,
	}))

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Clearance.SweepInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
