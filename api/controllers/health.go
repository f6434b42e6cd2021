package controllers

import (
	"net/http"

	"github.com/alikhafaji/mazadpay-backend/api/responses"
	"github.com/alikhafaji/mazadpay-backend/pkg/config"
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-MazadPay-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports readiness; the pinger is optional so the api binary can
// come up before its database does in dev.
func HealthReady(cfg *config.Config, ping func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-MazadPay-Env", cfg.App.Env)
		if ping != nil {
			if err := ping(); err != nil {
				responses.WriteSuccessStatus(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
