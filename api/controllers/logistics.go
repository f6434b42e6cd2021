package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/alikhafaji/mazadpay-backend/api/responses"
	"github.com/alikhafaji/mazadpay-backend/api/validators"
	"github.com/alikhafaji/mazadpay-backend/internal/permissions"
	pkgerrors "github.com/alikhafaji/mazadpay-backend/pkg/errors"
	"github.com/alikhafaji/mazadpay-backend/pkg/logger"
)

const manifestCap = 1000

// PayoutManifest returns cleared payouts oldest-first so the delivery partner
// disburses in the order sellers earned.
func PayoutManifest(svc permissions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", manifestCap, 1, manifestCap)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var sellerID *uuid.UUID
		if raw := strings.TrimSpace(r.URL.Query().Get("sellerId")); raw != "" {
			parsed, parseErr := uuid.Parse(raw)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid seller id"))
				return
			}
			sellerID = &parsed
		}

		payouts, err := svc.ClearedPayouts(r.Context(), sellerID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"payouts": payouts,
			"count":   len(payouts),
		})
	}
}

// PayoutStatus exposes one permission record keyed by its sale transaction.
func PayoutStatus(svc permissions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		transactionID, err := uuid.Parse(chi.URLParam(r, "transactionId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid transaction id"))
			return
		}

		view, err := svc.PayoutStatus(r.Context(), transactionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

type confirmPayoutRequest struct {
	TransactionID   uuid.UUID `json:"transactionId" validate:"required"`
	PayoutReference string    `json:"payoutReference" validate:"required,min=3,max=128"`
	PaidBy          string    `json:"paidBy" validate:"required,max=128"`
}

// ConfirmPayout records that the partner physically handed cash to the seller.
func ConfirmPayout(svc permissions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body confirmPayoutRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		err := svc.MarkPaid(r.Context(), permissions.MarkPaidInput{
			TransactionID:   body.TransactionID,
			PayoutReference: body.PayoutReference,
			PaidBy:          body.PaidBy,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.PayoutStatus(r.Context(), body.TransactionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// SellerSummary gives the partner a per-seller view of what is ready to pay.
func SellerSummary(svc permissions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sellerID, err := uuid.Parse(chi.URLParam(r, "sellerId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid seller id"))
			return
		}

		payouts, err := svc.ClearedPayouts(r.Context(), &sellerID, manifestCap)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var total int64
		for _, p := range payouts {
			total += p.PayoutAmount
		}
		responses.WriteSuccess(w, map[string]any{
			"sellerId":    sellerID,
			"payouts":     payouts,
			"count":       len(payouts),
			"totalAmount": total,
		})
	}
}
