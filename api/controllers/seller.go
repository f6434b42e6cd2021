package controllers

import (
	"net/http"

	"github.com/alikhafaji/mazadpay-backend/api/responses"
	"github.com/alikhafaji/mazadpay-backend/api/validators"
	"github.com/alikhafaji/mazadpay-backend/internal/permissions"
	"github.com/alikhafaji/mazadpay-backend/internal/wallet"
	"github.com/alikhafaji/mazadpay-backend/pkg/logger"
)

const sellerHistoryCap = 200

// SellerPayoutHistory lists the authenticated seller's payout records,
// newest delivery first.
func SellerPayoutHistory(svc permissions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sellerID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, sellerHistoryCap)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		history, err := svc.SellerHistory(r.Context(), sellerID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"payouts": history,
			"count":   len(history),
		})
	}
}

// SellerWallet returns the authenticated seller's balance. Pending covers
// settled earnings still inside the hold window.
func SellerWallet(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sellerID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		balance, err := svc.BalanceFor(r.Context(), sellerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, balance)
	}
}
