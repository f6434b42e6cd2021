package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/alikhafaji/mazadpay-backend/api/middleware"
	"github.com/alikhafaji/mazadpay-backend/api/responses"
	"github.com/alikhafaji/mazadpay-backend/api/validators"
	"github.com/alikhafaji/mazadpay-backend/internal/accounts"
	"github.com/alikhafaji/mazadpay-backend/internal/permissions"
	pkgerrors "github.com/alikhafaji/mazadpay-backend/pkg/errors"
	"github.com/alikhafaji/mazadpay-backend/pkg/logger"
)

// AdminPayoutGroups returns cleared payouts grouped per seller for the
// reconciliation screen.
func AdminPayoutGroups(svc permissions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var sellerID *uuid.UUID
		if raw := strings.TrimSpace(r.URL.Query().Get("sellerId")); raw != "" {
			parsed, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid seller id"))
				return
			}
			sellerID = &parsed
		}

		groups, err := svc.AdminPayoutGroups(r.Context(), sellerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"groups": groups})
	}
}

type markPaidBulkRequest struct {
	PermissionIDs []uuid.UUID `json:"permissionIds" validate:"required,min=1,max=500"`
	Method        string      `json:"method" validate:"required,max=64"`
	Reference     string      `json:"reference" validate:"required,min=3,max=128"`
}

// AdminMarkPaidBulk confirms a batch of cleared payouts in one call. Records
// that can no longer be paid are skipped and reported, not failed wholesale.
func AdminMarkPaidBulk(svc permissions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adminID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body markPaidBulkRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		paid, err := svc.MarkPaidBulk(r.Context(), permissions.MarkPaidBulkInput{
			PermissionIDs: body.PermissionIDs,
			AdminID:       adminID,
			Method:        body.Method,
			Reference:     body.Reference,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"requested": len(body.PermissionIDs),
			"paid":      paid,
			"skipped":   len(body.PermissionIDs) - paid,
		})
	}
}

type adminReverseRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=512"`
}

// AdminReverse claws back a cleared or paid payout.
func AdminReverse(svc permissions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adminID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		permissionID, err := uuid.Parse(chi.URLParam(r, "permissionId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid permission id"))
			return
		}

		var body adminReverseRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.AdminReverse(r.Context(), permissions.AdminReverseInput{
			PermissionID: permissionID,
			AdminID:      adminID,
			Reason:       body.Reason,
		}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "reversed"})
	}
}

type blockRefundRequest struct {
	Reason       string `json:"reason" validate:"required,min=3,max=512"`
	RefundAmount int64  `json:"refundAmount" validate:"required,gt=0"`
}

// AdminBlockRefund blocks a payout after a manual refund decision outside the
// normal return flow.
func AdminBlockRefund(svc permissions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adminID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		transactionID, err := uuid.Parse(chi.URLParam(r, "transactionId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid transaction id"))
			return
		}

		var body blockRefundRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.BlockForRefund(r.Context(), permissions.BlockForRefundInput{
			TransactionID: transactionID,
			AdminID:       adminID,
			Reason:        body.Reason,
			RefundAmount:  body.RefundAmount,
		}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "blocked"})
	}
}

// AdminReinstateSeller lifts a debt suspension once the seller settles up.
func AdminReinstateSeller(svc accounts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sellerID, err := uuid.Parse(chi.URLParam(r, "sellerId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid seller id"))
			return
		}

		if err := svc.ReinstateSeller(r.Context(), sellerID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "reinstated"})
	}
}

func actorID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing actor identity")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid actor identity")
	}
	return id, nil
}
