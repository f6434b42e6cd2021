package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/alikhafaji/mazadpay-backend/api/routes"
	"github.com/alikhafaji/mazadpay-backend/internal/accounts"
	"github.com/alikhafaji/mazadpay-backend/internal/notifications"
	"github.com/alikhafaji/mazadpay-backend/internal/permissions"
	"github.com/alikhafaji/mazadpay-backend/internal/wallet"
	"github.com/alikhafaji/mazadpay-backend/pkg/config"
	"github.com/alikhafaji/mazadpay-backend/pkg/db"
	"github.com/alikhafaji/mazadpay-backend/pkg/logger"
	"github.com/alikhafaji/mazadpay-backend/pkg/migrate"
	"github.com/alikhafaji/mazadpay-backend/pkg/outbox"
	"github.com/alikhafaji/mazadpay-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config: cfg,
			Logger: logg,
			Redis:  redisClient,
			DBPing: func() error {
				return dbClient.Ping(context.Background())
			},
			Permissions:   permissionsService,
			Wallet:        walletService,
			Accounts:      accountsService,
			Notifications: notificationsService,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
