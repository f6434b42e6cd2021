package permissions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/alikhafaji/mazadpay-backend/pkg/db"
	"github.com/alikhafaji/mazadpay-backend/pkg/db/models"
	"github.com/alikhafaji/mazadpay-backend/pkg/enums"
	pkgerrors "github.com/alikhafaji/mazadpay-backend/pkg/errors"
	"github.com/alikhafaji/mazadpay-backend/pkg/logger"
	"github.com/alikhafaji/mazadpay-backend/pkg/outbox"
	"github.com/alikhafaji/mazadpay-backend/pkg/outbox/payloads"
)

const (
	// minGraceDays is the platform floor for the clearance window. The grace
	// period is the longer of the listing policy and this floor, never the sum.
	minGraceDays = 2

	refundDebtDueDays  = 30
	reverseDebtDueDays = 5

	defaultSweepBatchSize = 1000

	systemActor = "system"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// WalletLedger is the append-only wallet collaborator. The engine never owns
// that ledger's schema; it only reverses or finalizes entries tied to a
// transaction.
type WalletLedger interface {
	ReverseSettlementTx(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID, reason string) (int64, error)
	MarkEntriesPaidTx(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID) error
}

// AccountDirectory flips seller account flags during debt enforcement.
type AccountDirectory interface {
	// SuspendSellerTx returns false when the seller was already suspended.
	SuspendSellerTx(ctx context.Context, tx *gorm.DB, sellerID uuid.UUID) (bool, error)
}

// Notifier delivers best-effort in-app notifications after a transition
// commits. Failures are logged by the caller, never propagated.
type Notifier interface {
	NotifySeller(ctx context.Context, sellerID uuid.UUID, kind enums.NotificationType, title, message string) error
	NotifyAdmins(ctx context.Context, kind enums.NotificationType, title, message string) error
}

// Service exposes the payout clearance state machine.
type Service interface {
	CreateOnDelivery(ctx context.Context, input CreateOnDeliveryInput) (*models.PayoutPermission, error)
	LockForReturn(ctx context.Context, transactionID, returnRequestID uuid.UUID) error
	ResolveReturn(ctx context.Context, input ResolveReturnInput) error
	BlockForRefund(ctx context.Context, input BlockForRefundInput) error
	BlockForBuyerRefusal(ctx context.Context, transactionID uuid.UUID, reason string) error
	MarkPaid(ctx context.Context, input MarkPaidInput) error
	MarkPaidBulk(ctx context.Context, input MarkPaidBulkInput) (int, error)
	AdminReverse(ctx context.Context, input AdminReverseInput) error

	SweepExpiredGracePeriods(ctx context.Context, now time.Time) (SweepResult, error)
	EnforceDebtSuspensions(ctx context.Context, now time.Time) (int, error)
	HighDebtAlert(ctx context.Context, threshold int64) (int, error)

	ClearedPayouts(ctx context.Context, sellerID *uuid.UUID, limit int) ([]PayoutView, error)
	PayoutStatus(ctx context.Context, transactionID uuid.UUID) (*PayoutView, error)
	AdminPayoutGroups(ctx context.Context, sellerID *uuid.UUID) ([]SellerPayoutGroup, error)
	SellerHistory(ctx context.Context, sellerID uuid.UUID, limit int) ([]PayoutView, error)
}

// ServiceParams wires the engine's collaborators.
type ServiceParams struct {
	Repo           Repository
	Tx             txRunner
	Outbox         outboxPublisher
	Wallet         WalletLedger
	Accounts       AccountDirectory
	Notifier       Notifier
	Logger         *logger.Logger
	Now            func() time.Time
	SweepBatchSize int
	DebtGraceDays  int
}

type service struct {
	repo           Repository
	tx             txRunner
	outbox         outboxPublisher
	wallet         WalletLedger
	accounts       AccountDirectory
	notifier       Notifier
	logg           *logger.Logger
	now            func() time.Time
	sweepBatchSize int
	debtGraceDays  int
}

// NewService builds the clearance engine with the required collaborators.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("permissions repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Wallet == nil {
		return nil, fmt.Errorf("wallet ledger required")
	}
	if params.Accounts == nil {
		return nil, fmt.Errorf("account directory required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("notifier required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	batch := params.SweepBatchSize
	if batch <= 0 {
		batch = defaultSweepBatchSize
	}
	graceDays := params.DebtGraceDays
	if graceDays <= 0 {
		graceDays = reverseDebtDueDays
	}
	return &service{
		repo:           params.Repo,
		tx:             params.Tx,
		outbox:         params.Outbox,
		wallet:         params.Wallet,
		accounts:       params.Accounts,
		notifier:       params.Notifier,
		logg:           params.Logger,
		now:            now,
		sweepBatchSize: batch,
		debtGraceDays:  graceDays,
	}, nil
}

// GracePeriodExpiry computes deliveredAt + max(policyDays, minGraceDays) days.
// The longer window governs; the two windows are never added together.
func GracePeriodExpiry(deliveredAt time.Time, returnPolicyDays int) time.Time {
	days := returnPolicyDays
	if days < minGraceDays {
		days = minGraceDays
	}
	return deliveredAt.Add(time.Duration(days) * 24 * time.Hour)
}

func (s *service) CreateOnDelivery(ctx context.Context, input CreateOnDeliveryInput) (*models.PayoutPermission, error) {
	if input.TransactionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	if input.PlatformCommission < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "commission cannot be negative")
	}

	// Duplicate delivery events are expected; an existing record is a no-op.
	if existing, err := s.repo.FindByTransactionID(ctx, input.TransactionID); err == nil {
		return existing, nil
	} else if err != gorm.ErrRecordNotFound {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout permission")
	}

	var record *models.PayoutPermission
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		txn, err := repo.FindTransaction(ctx, input.TransactionID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
		}
		if txn.Status != enums.TransactionStatusDelivered {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "transaction is not delivered")
		}
		if input.PlatformCommission > txn.Amount {
			return pkgerrors.New(pkgerrors.CodeValidation, "commission exceeds sale amount")
		}

		listing, err := repo.FindListing(ctx, txn.ListingID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load listing")
		}

		deliveredAt := s.now().UTC()
		if txn.DeliveredAt != nil {
			deliveredAt = txn.DeliveredAt.UTC()
		}

		note := noteLine(s.now(), fmt.Sprintf("payout withheld on delivery, grace %d days", effectiveGraceDays(listing.ReturnPolicyDays)))
		record = &models.PayoutPermission{
			ID:                   uuid.New(),
			TransactionID:        txn.ID,
			ListingID:            txn.ListingID,
			SellerID:             txn.SellerID,
			BuyerID:              txn.BuyerID,
			PayoutAmount:         txn.Amount - input.PlatformCommission,
			OriginalAmount:       txn.Amount,
			PlatformCommission:   input.PlatformCommission,
			ReturnPolicyDays:     listing.ReturnPolicyDays,
			DeliveredAt:          deliveredAt,
			GracePeriodExpiresAt: GracePeriodExpiry(deliveredAt, listing.ReturnPolicyDays),
			PermissionStatus:     enums.PermissionStatusWithheld,
			Notes:                &note,
		}
		if err := repo.Create(ctx, record); err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutWithheld,
			AggregateType: enums.AggregatePayoutPermission,
			AggregateID:   record.ID,
			Version:       1,
			Data: payloads.PayoutStateChangedEvent{
				PermissionID:  record.ID,
				TransactionID: record.TransactionID,
				SellerID:      record.SellerID,
				Status:        record.PermissionStatus,
				PayoutAmount:  record.PayoutAmount,
			},
		})
	})
	if err != nil {
		// A concurrent delivery event may have created the record first.
		if dbpkg.IsUniqueViolation(err, "uq_payout_permissions_transaction_id") {
			return s.repo.FindByTransactionID(ctx, input.TransactionID)
		}
		return nil, err
	}
	return record, nil
}

func (s *service) LockForReturn(ctx context.Context, transactionID, returnRequestID uuid.UUID) error {
	if transactionID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	if returnRequestID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "return request id required")
	}

	var sellerID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		record, err := s.loadByTransaction(ctx, repo, transactionID)
		if err != nil {
			return err
		}
		sellerID = record.SellerID

		// A return may be filed even after clearance, within the dispute
		// window the return subsystem enforces.
		allowed := []enums.PermissionStatus{enums.PermissionStatusWithheld, enums.PermissionStatusCleared}
		if !statusIn(record.PermissionStatus, allowed) {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot lock payout in state %s", record.PermissionStatus))
		}

		now := s.now().UTC()
		updates := map[string]any{
			"permission_status":           enums.PermissionStatusLocked,
			"is_cleared":                  false,
			"locked_at":                   now,
			"locked_reason":               "return requested",
			"locked_by_return_request_id": returnRequestID,
			"updated_at":                  now,
		}
		appendNote(updates, now, fmt.Sprintf("locked by return request %s", returnRequestID))

		ok, err := repo.Transition(ctx, record.ID, allowed, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock payout")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "payout was transitioned concurrently")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutLocked,
			AggregateType: enums.AggregatePayoutPermission,
			AggregateID:   record.ID,
			Version:       1,
			Data: payloads.PayoutStateChangedEvent{
				PermissionID:  record.ID,
				TransactionID: record.TransactionID,
				SellerID:      record.SellerID,
				Status:        enums.PermissionStatusLocked,
				PayoutAmount:  record.PayoutAmount,
				Reason:        "return requested",
			},
		})
	})
	if err != nil {
		return err
	}

	s.notifySellerBestEffort(ctx, sellerID, enums.NotificationTypePayoutBlocked,
		"Payout on hold", "A return request placed your payout on hold until the dispute resolves.")
	return nil
}

func (s *service) ResolveReturn(ctx context.Context, input ResolveReturnInput) error {
	switch input.Outcome {
	case ReturnOutcomeRejected:
		return s.unlockAfterReturn(ctx, input.TransactionID, input.ReturnRequestID)
	case ReturnOutcomeRefunded:
		return s.BlockForRefund(ctx, BlockForRefundInput{
			TransactionID: input.TransactionID,
			AdminID:       input.AdminID,
			Reason:        input.Reason,
			RefundAmount:  input.RefundAmount,
		})
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown return outcome %q", input.Outcome))
	}
}

func (s *service) unlockAfterReturn(ctx context.Context, transactionID, returnRequestID uuid.UUID) error {
	if transactionID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}

	var (
		sellerID uuid.UUID
		cleared  bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		record, err := s.loadByTransaction(ctx, repo, transactionID)
		if err != nil {
			return err
		}
		sellerID = record.SellerID

		if record.PermissionStatus != enums.PermissionStatusLocked {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot unlock payout in state %s", record.PermissionStatus))
		}
		// Only the dispute that locked the record may unlock it.
		if record.LockedByReturnRequest == nil || *record.LockedByReturnRequest != returnRequestID {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "return request does not own this lock")
		}

		now := s.now().UTC()
		updates := map[string]any{
			"locked_at":                   nil,
			"locked_reason":               nil,
			"locked_by_return_request_id": nil,
			"updated_at":                  now,
		}

		// A long dispute can outlast the original grace window, so the
		// unlock re-evaluates against now rather than restoring withheld.
		eventType := enums.EventPayoutUnlocked
		target := enums.PermissionStatusWithheld
		if !record.GracePeriodExpiresAt.After(now) {
			target = enums.PermissionStatusCleared
			eventType = enums.EventPayoutCleared
			cleared = true
			updates["is_cleared"] = true
			updates["cleared_at"] = now
			updates["cleared_by"] = systemActor
			appendNote(updates, now, "unlocked after rejected return, grace period already expired, cleared")
		} else {
			appendNote(updates, now, "unlocked after rejected return, back to withheld")
		}
		updates["permission_status"] = target

		ok, err := repo.Transition(ctx, record.ID, []enums.PermissionStatus{enums.PermissionStatusLocked}, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "unlock payout")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "payout was transitioned concurrently")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregatePayoutPermission,
			AggregateID:   record.ID,
			Version:       1,
			Data: payloads.PayoutStateChangedEvent{
				PermissionID:  record.ID,
				TransactionID: record.TransactionID,
				SellerID:      record.SellerID,
				Status:        target,
				PayoutAmount:  record.PayoutAmount,
				Reason:        "return rejected",
			},
		})
	})
	if err != nil {
		return err
	}

	if cleared {
		s.notifySellerBestEffort(ctx, sellerID, enums.NotificationTypePayoutCleared,
			"Payout cleared", "Your payout cleared after the return request was rejected.")
	}
	return nil
}

func (s *service) BlockForRefund(ctx context.Context, input BlockForRefundInput) error {
	if input.TransactionID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	if input.AdminID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "admin id required")
	}
	if input.RefundAmount <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}

	var sellerID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		record, err := s.loadByTransaction(ctx, repo, input.TransactionID)
		if err != nil {
			return err
		}
		sellerID = record.SellerID

		allowed := nonTerminalStatuses()
		if !statusIn(record.PermissionStatus, allowed) {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot block payout in state %s", record.PermissionStatus))
		}

		now := s.now().UTC()
		dueDate := now.Add(refundDebtDueDays * 24 * time.Hour)
		updates := map[string]any{
			"permission_status": enums.PermissionStatusBlocked,
			"is_cleared":        false,
			"blocked_at":        now,
			"blocked_reason":    input.Reason,
			"blocked_by":        input.AdminID.String(),
			"debt_amount":       input.RefundAmount,
			"debt_due_date":     dueDate,
			"debt_status":       enums.DebtStatusPending,
			"updated_at":        now,
		}
		appendNote(updates, now, fmt.Sprintf("blocked for refund of %d by admin %s: %s", input.RefundAmount, input.AdminID, input.Reason))

		ok, err := repo.Transition(ctx, record.ID, allowed, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "block payout")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "payout was transitioned concurrently")
		}

		if _, err := s.wallet.ReverseSettlementTx(ctx, tx, record.TransactionID, "refund issued"); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reverse wallet settlement")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutBlocked,
			AggregateType: enums.AggregatePayoutPermission,
			AggregateID:   record.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.AdminID, Role: string(enums.UserRoleAdmin)},
			Data: payloads.PayoutStateChangedEvent{
				PermissionID:  record.ID,
				TransactionID: record.TransactionID,
				SellerID:      record.SellerID,
				Status:        enums.PermissionStatusBlocked,
				PayoutAmount:  record.PayoutAmount,
				Reason:        input.Reason,
			},
		})
	})
	if err != nil {
		return err
	}

	s.notifySellerBestEffort(ctx, sellerID, enums.NotificationTypePayoutBlocked,
		"Payout blocked", fmt.Sprintf("Your payout was blocked after a refund. You owe %d IQD, due within %d days.", input.RefundAmount, refundDebtDueDays))
	return nil
}

func (s *service) BlockForBuyerRefusal(ctx context.Context, transactionID uuid.UUID, reason string) error {
	if transactionID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}

	var sellerID uuid.UUID
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		record, err := s.loadByTransaction(ctx, repo, transactionID)
		if err != nil {
			return err
		}
		sellerID = record.SellerID

		allowed := nonTerminalStatuses()
		if !statusIn(record.PermissionStatus, allowed) {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot block payout in state %s", record.PermissionStatus))
		}

		// Zero-on-refusal: the sale never completed, so the seller receives
		// nothing and owes nothing. This must not flow through the debt path.
		now := s.now().UTC()
		updates := map[string]any{
			"permission_status": enums.PermissionStatusBlocked,
			"is_cleared":        false,
			"payout_amount":     int64(0),
			"blocked_at":        now,
			"blocked_reason":    reason,
			"blocked_by":        systemActor,
			"debt_amount":       int64(0),
			"debt_due_date":     nil,
			"debt_status":       enums.DebtStatusResolved,
			"updated_at":        now,
		}
		appendNote(updates, now, fmt.Sprintf("blocked on buyer refusal, payout zeroed: %s", reason))

		ok, err := repo.Transition(ctx, record.ID, allowed, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "block payout")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "payout was transitioned concurrently")
		}

		// Pending earnings must never survive a refused delivery.
		if _, err := s.wallet.ReverseSettlementTx(ctx, tx, record.TransactionID, "buyer refused delivery"); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reverse wallet settlement")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutBlocked,
			AggregateType: enums.AggregatePayoutPermission,
			AggregateID:   record.ID,
			Version:       1,
			Data: payloads.PayoutStateChangedEvent{
				PermissionID:  record.ID,
				TransactionID: record.TransactionID,
				SellerID:      record.SellerID,
				Status:        enums.PermissionStatusBlocked,
				PayoutAmount:  0,
				Reason:        reason,
			},
		})
	})
	if err != nil {
		return err
	}

	s.notifySellerBestEffort(ctx, sellerID, enums.NotificationTypePayoutBlocked,
		"Sale cancelled", "The buyer refused delivery. The sale was cancelled with no payout and no debt.")
	return nil
}

func (s *service) MarkPaid(ctx context.Context, input MarkPaidInput) error {
	if input.TransactionID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	if input.PayoutReference == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payout reference required")
	}
	if input.PaidBy == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "paid-by operator required")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		record, err := s.loadByTransaction(ctx, repo, input.TransactionID)
		if err != nil {
			return err
		}
		return s.markPaidLocked(ctx, tx, repo, record, input.PayoutReference, input.PaidBy)
	})
}

// markPaidLocked performs the cleared->paid transition inside the caller's
// transaction. Paying from any other state fails loudly: silent no-ops on
// financial operations hide double-payout bugs.
func (s *service) markPaidLocked(ctx context.Context, tx *gorm.DB, repo Repository, record *models.PayoutPermission, reference, paidBy string) error {
	if record.PermissionStatus != enums.PermissionStatusCleared {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot mark payout paid from state %s", record.PermissionStatus))
	}

	now := s.now().UTC()
	updates := map[string]any{
		"permission_status": enums.PermissionStatusPaid,
		"paid_at":           now,
		"paid_by":           paidBy,
		"payout_reference":  reference,
		"updated_at":        now,
	}
	appendNote(updates, now, fmt.Sprintf("marked paid by %s, reference %s", paidBy, reference))

	ok, err := repo.Transition(ctx, record.ID, []enums.PermissionStatus{enums.PermissionStatusCleared}, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payout paid")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeConflict, "payout was transitioned concurrently")
	}

	if err := s.wallet.MarkEntriesPaidTx(ctx, tx, record.TransactionID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finalize wallet entries")
	}

	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPayoutPaid,
		AggregateType: enums.AggregatePayoutPermission,
		AggregateID:   record.ID,
		Version:       1,
		Data: payloads.PayoutPaidEvent{
			PermissionID:    record.ID,
			TransactionID:   record.TransactionID,
			SellerID:        record.SellerID,
			PayoutAmount:    record.PayoutAmount,
			PayoutReference: reference,
			PaidBy:          paidBy,
			PaidAt:          now,
		},
	})
}

func (s *service) MarkPaidBulk(ctx context.Context, input MarkPaidBulkInput) (int, error) {
	if len(input.PermissionIDs) == 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "permission ids required")
	}
	if input.AdminID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "admin id required")
	}
	reference := input.Reference
	if reference == "" {
		reference = fmt.Sprintf("%s-%s", input.Method, s.now().UTC().Format("20060102150405"))
	}

	paid := 0
	for _, id := range input.PermissionIDs {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			record, err := repo.FindByID(ctx, id)
			if err != nil {
				if err == gorm.ErrRecordNotFound {
					return pkgerrors.New(pkgerrors.CodeNotFound, "payout permission not found")
				}
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout permission")
			}
			return s.markPaidLocked(ctx, tx, repo, record, reference, input.AdminID.String())
		})
		if err != nil {
			// One bad record must not abort the rest of the batch.
			logCtx := s.logg.WithField(ctx, "permission_id", id.String())
			s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "bulk mark-paid skipped record")
			continue
		}
		paid++
	}
	return paid, nil
}

func (s *service) AdminReverse(ctx context.Context, input AdminReverseInput) error {
	if input.PermissionID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "permission id required")
	}
	if input.AdminID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "admin id required")
	}
	if input.Reason == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "reason required")
	}

	var sellerID uuid.UUID
	var debt int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		record, err := repo.FindByID(ctx, input.PermissionID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "payout permission not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout permission")
		}
		sellerID = record.SellerID
		debt = record.PayoutAmount

		allowed := []enums.PermissionStatus{enums.PermissionStatusCleared, enums.PermissionStatusWithheld}
		if !statusIn(record.PermissionStatus, allowed) {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot reverse payout in state %s", record.PermissionStatus))
		}

		// Reversing an already-favorable state is a manual override, so the
		// debt window is deliberately shorter than the refund path's.
		now := s.now().UTC()
		dueDate := now.Add(time.Duration(s.debtGraceDays) * 24 * time.Hour)
		updates := map[string]any{
			"permission_status": enums.PermissionStatusBlocked,
			"is_cleared":        false,
			"blocked_at":        now,
			"blocked_reason":    input.Reason,
			"blocked_by":        input.AdminID.String(),
			"debt_amount":       record.PayoutAmount,
			"debt_due_date":     dueDate,
			"debt_status":       enums.DebtStatusPending,
			"updated_at":        now,
		}
		appendNote(updates, now, fmt.Sprintf("reversed by admin %s: %s", input.AdminID, input.Reason))

		ok, err := repo.Transition(ctx, record.ID, allowed, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reverse payout")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeConflict, "payout was transitioned concurrently")
		}

		// The seller's visible balance must drop: the original ledger entry
		// is marked reversed or offset, never deleted.
		if _, err := s.wallet.ReverseSettlementTx(ctx, tx, record.TransactionID, "admin reversal"); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reverse wallet settlement")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutReversed,
			AggregateType: enums.AggregatePayoutPermission,
			AggregateID:   record.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.AdminID, Role: string(enums.UserRoleAdmin)},
			Data: payloads.PayoutStateChangedEvent{
				PermissionID:  record.ID,
				TransactionID: record.TransactionID,
				SellerID:      record.SellerID,
				Status:        enums.PermissionStatusBlocked,
				PayoutAmount:  record.PayoutAmount,
				Reason:        input.Reason,
			},
		})
	})
	if err != nil {
		return err
	}

	s.notifySellerBestEffort(ctx, sellerID, enums.NotificationTypePayoutBlocked,
		"Payout reversed", fmt.Sprintf("An administrator reversed your payout. You owe %d IQD within %d days.", debt, s.debtGraceDays))
	return nil
}

func (s *service) SweepExpiredGracePeriods(ctx context.Context, now time.Time) (SweepResult, error) {
	result := SweepResult{}
	expired, err := s.repo.ListExpiredWithheld(ctx, now, s.sweepBatchSize)
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expired grace periods")
	}

	for _, record := range expired {
		record := record
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)

			ts := now.UTC()
			updates := map[string]any{
				"permission_status": enums.PermissionStatusCleared,
				"is_cleared":        true,
				"cleared_at":        ts,
				"cleared_by":        systemActor,
				"updated_at":        ts,
			}
			appendNote(updates, ts, "grace period expired, cleared by sweep")

			ok, err := repo.Transition(ctx, record.ID, []enums.PermissionStatus{enums.PermissionStatusWithheld}, updates)
			if err != nil {
				return err
			}
			if !ok {
				// Someone else already moved this record; not an error.
				return nil
			}
			result.Transitioned++

			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventPayoutCleared,
				AggregateType: enums.AggregatePayoutPermission,
				AggregateID:   record.ID,
				Version:       1,
				Data: payloads.PayoutStateChangedEvent{
					PermissionID:  record.ID,
					TransactionID: record.TransactionID,
					SellerID:      record.SellerID,
					Status:        enums.PermissionStatusCleared,
					PayoutAmount:  record.PayoutAmount,
					Reason:        "grace period expired",
				},
			})
		})
		if err != nil {
			result.Failed++
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"permission_id":  record.ID.String(),
				"transaction_id": record.TransactionID.String(),
				"seller_id":      record.SellerID.String(),
			})
			s.logg.Error(logCtx, "grace period sweep failed for record", err)
			continue
		}

		s.notifySellerBestEffort(ctx, record.SellerID, enums.NotificationTypePayoutCleared,
			"Payout cleared", "Your payout cleared and will be included in the next disbursement.")
	}
	return result, nil
}

func (s *service) EnforceDebtSuspensions(ctx context.Context, now time.Time) (int, error) {
	cutoff := now.Add(-time.Duration(s.debtGraceDays) * 24 * time.Hour)
	overdue, err := s.repo.ListOverdueBlocked(ctx, cutoff)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list overdue blocked payouts")
	}

	type sellerDebt struct {
		total   int64
		records []models.PayoutPermission
	}
	bySeller := map[uuid.UUID]*sellerDebt{}
	order := []uuid.UUID{}
	for _, record := range overdue {
		entry, ok := bySeller[record.SellerID]
		if !ok {
			entry = &sellerDebt{}
			bySeller[record.SellerID] = entry
			order = append(order, record.SellerID)
		}
		entry.total += record.DebtAmount
		entry.records = append(entry.records, record)
	}

	suspended := 0
	for _, sellerID := range order {
		entry := bySeller[sellerID]
		var wasSuspended bool
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)

			changed, err := s.accounts.SuspendSellerTx(ctx, tx, sellerID)
			if err != nil {
				return err
			}
			wasSuspended = changed
			if !changed {
				// Already suspended; skip without re-notifying.
				return nil
			}

			now := s.now().UTC()
			recordIDs := make([]string, 0, len(entry.records))
			for _, record := range entry.records {
				updates := map[string]any{
					"debt_status": enums.DebtStatusEscalated,
					"updated_at":  now,
				}
				appendNote(updates, now, "debt overdue, seller suspended")
				if _, err := repo.Transition(ctx, record.ID, []enums.PermissionStatus{enums.PermissionStatusBlocked}, updates); err != nil {
					return err
				}
				recordIDs = append(recordIDs, record.ID.String())
			}

			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventDebtEscalated,
				AggregateType: enums.AggregateSellerAccount,
				AggregateID:   sellerID,
				Version:       1,
				Data: payloads.DebtEscalatedEvent{
					SellerID:   sellerID,
					TotalDebt:  entry.total,
					RecordIDs:  recordIDs,
					Suspended:  true,
					OccurredAt: now,
				},
			})
		})
		if err != nil {
			// One seller's failure must not abort the rest of the sweep.
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"seller_id":  sellerID.String(),
				"total_debt": entry.total,
			})
			s.logg.Error(logCtx, "debt enforcement failed for seller", err)
			continue
		}
		if !wasSuspended {
			continue
		}
		suspended++

		s.notifyAdminsBestEffort(ctx, enums.NotificationTypeAccountSuspended,
			"Seller suspended for overdue debt",
			fmt.Sprintf("Seller %s was suspended with %d IQD of overdue debt across %d payouts.", sellerID, entry.total, len(entry.records)))
		s.notifySellerBestEffort(ctx, sellerID, enums.NotificationTypeAccountSuspended,
			"Account suspended", "Your account was suspended because a platform debt is overdue. Contact support to settle it.")
	}
	return suspended, nil
}

func (s *service) HighDebtAlert(ctx context.Context, threshold int64) (int, error) {
	rows, err := s.repo.OutstandingDebtBySeller(ctx)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "aggregate outstanding debt")
	}

	alerted := 0
	for _, row := range rows {
		if row.TotalDebt <= threshold {
			continue
		}
		alerted++
		s.notifyAdminsBestEffort(ctx, enums.NotificationTypeHighDebtAlert,
			"High seller debt",
			fmt.Sprintf("Seller %s carries %d IQD of outstanding debt across %d blocked payouts.", row.SellerID, row.TotalDebt, row.RecordCount))
	}
	return alerted, nil
}

func (s *service) ClearedPayouts(ctx context.Context, sellerID *uuid.UUID, limit int) ([]PayoutView, error) {
	if limit <= 0 || limit > defaultSweepBatchSize {
		limit = defaultSweepBatchSize
	}
	records, err := s.repo.ListCleared(ctx, sellerID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list cleared payouts")
	}
	return toViews(records), nil
}

func (s *service) PayoutStatus(ctx context.Context, transactionID uuid.UUID) (*PayoutView, error) {
	if transactionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	record, err := s.repo.FindByTransactionID(ctx, transactionID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payout permission not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout permission")
	}
	view := NewPayoutView(*record)
	return &view, nil
}

func (s *service) AdminPayoutGroups(ctx context.Context, sellerID *uuid.UUID) ([]SellerPayoutGroup, error) {
	groups, err := s.repo.ClearedGroupsBySeller(ctx, sellerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "group cleared payouts")
	}
	return groups, nil
}

func (s *service) SellerHistory(ctx context.Context, sellerID uuid.UUID, limit int) ([]PayoutView, error) {
	if sellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	}
	if limit <= 0 || limit > defaultSweepBatchSize {
		limit = defaultSweepBatchSize
	}
	records, err := s.repo.ListBySeller(ctx, sellerID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list seller payouts")
	}
	return toViews(records), nil
}

func (s *service) loadByTransaction(ctx context.Context, repo Repository, transactionID uuid.UUID) (*models.PayoutPermission, error) {
	record, err := repo.FindByTransactionID(ctx, transactionID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			// Missing permission on a write path is a caller-side ordering
			// bug and must surface, not be swallowed.
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payout permission not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout permission")
	}
	return record, nil
}

func (s *service) notifySellerBestEffort(ctx context.Context, sellerID uuid.UUID, kind enums.NotificationType, title, message string) {
	if sellerID == uuid.Nil {
		return
	}
	if err := s.notifier.NotifySeller(ctx, sellerID, kind, title, message); err != nil {
		logCtx := s.logg.WithSellerID(ctx, sellerID.String())
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "seller notification failed")
	}
}

func (s *service) notifyAdminsBestEffort(ctx context.Context, kind enums.NotificationType, title, message string) {
	if err := s.notifier.NotifyAdmins(ctx, kind, title, message); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "admin notification failed")
	}
}

func statusIn(status enums.PermissionStatus, candidates []enums.PermissionStatus) bool {
	for _, candidate := range candidates {
		if candidate == status {
			return true
		}
	}
	return false
}

func nonTerminalStatuses() []enums.PermissionStatus {
	return []enums.PermissionStatus{
		enums.PermissionStatusWithheld,
		enums.PermissionStatusLocked,
		enums.PermissionStatusCleared,
	}
}

func effectiveGraceDays(returnPolicyDays int) int {
	if returnPolicyDays < minGraceDays {
		return minGraceDays
	}
	return returnPolicyDays
}

func noteLine(now time.Time, message string) string {
	return fmt.Sprintf("[%s] %s\n", now.UTC().Format(time.RFC3339), message)
}

// appendNote concatenates onto the audit trail; notes are never overwritten.
func appendNote(updates map[string]any, now time.Time, message string) {
	updates["notes"] = gorm.Expr("COALESCE(notes, '') || ?", noteLine(now, message))
}

func toViews(records []models.PayoutPermission) []PayoutView {
	views := make([]PayoutView, 0, len(records))
	for _, record := range records {
		views = append(views, NewPayoutView(record))
	}
	return views
}
