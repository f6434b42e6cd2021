package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alikhafaji/mazadpay-backend/api/controllers"
	"github.com/alikhafaji/mazadpay-backend/api/middleware"
	"github.com/alikhafaji/mazadpay-backend/internal/accounts"
	"github.com/alikhafaji/mazadpay-backend/internal/notifications"
	"github.com/alikhafaji/mazadpay-backend/internal/permissions"
	"github.com/alikhafaji/mazadpay-backend/internal/wallet"
	"github.com/alikhafaji/mazadpay-backend/pkg/config"
	"github.com/alikhafaji/mazadpay-backend/pkg/enums"
	"github.com/alikhafaji/mazadpay-backend/pkg/logger"
	"github.com/alikhafaji/mazadpay-backend/pkg/redis"
)

// RouterParams carries everything the HTTP surface needs.
type RouterParams struct {
	Config        *config.Config
	Logger        *logger.Logger
	Redis         *redis.Client
	DBPing        func() error
	Permissions   permissions.Service
	Wallet        wallet.Service
	Accounts      accounts.Service
	Notifications notifications.Service
}

// NewRouter builds the chi handler for the payout clearance API.
func NewRouter(p RouterParams) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, p.DBPing))
	})

	// A typed-nil *redis.Client must not reach the middleware interfaces.
	var idemStore redis.IdempotencyStore
	var counterStore interface {
		IncrWithTTL(context.Context, string, time.Duration) (int64, error)
	}
	if p.Redis != nil {
		idemStore = p.Redis
		counterStore = p.Redis
	}

	partnerPolicy := middleware.NewRateLimitPolicy("logistics", cfg.Partner.RateLimitWindow, cfg.Partner.RateLimitPerIP)

	// Delivery partner surface: static key, no user identity.
	r.Route("/api/v1/logistics", func(r chi.Router) {
		r.Use(middleware.PartnerKey(cfg.Partner, logg))
		r.Use(middleware.RateLimit(partnerPolicy, counterStore, logg))
		r.Use(middleware.Idempotency(idemStore, logg))

		r.Get("/payout-manifest", controllers.PayoutManifest(p.Permissions, logg))
		r.Get("/payout-status/{transactionId}", controllers.PayoutStatus(p.Permissions, logg))
		r.Get("/seller-summary/{sellerId}", controllers.SellerSummary(p.Permissions, logg))
		r.Post("/confirm-payout", controllers.ConfirmPayout(p.Permissions, logg))
	})

	// Admin console surface.
	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(string(enums.UserRoleAdmin), logg))
		r.Use(middleware.Idempotency(idemStore, logg))

		r.Get("/payouts/groups", controllers.AdminPayoutGroups(p.Permissions, logg))
		r.Post("/payouts/mark-paid", controllers.AdminMarkPaidBulk(p.Permissions, logg))
		r.Post("/permissions/{permissionId}/reverse", controllers.AdminReverse(p.Permissions, logg))
		r.Post("/permissions/{transactionId}/block-refund", controllers.AdminBlockRefund(p.Permissions, logg))
		r.Post("/sellers/{sellerId}/reinstate", controllers.AdminReinstateSeller(p.Accounts, logg))
	})

	// Seller dashboard surface.
	r.Route("/api/v1/seller", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(string(enums.UserRoleSeller), logg))
		r.Use(middleware.Idempotency(idemStore, logg))

		r.Get("/payouts", controllers.SellerPayoutHistory(p.Permissions, logg))
		r.Get("/wallet", controllers.SellerWallet(p.Wallet, logg))
		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(p.Notifications, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(p.Notifications, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(p.Notifications, logg))
		})
	})

	return r
}
