package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/alikhafaji/mazadpay-backend/pkg/db/models"
	"github.com/alikhafaji/mazadpay-backend/pkg/enums"
	pkgerrors "github.com/alikhafaji/mazadpay-backend/pkg/errors"
	"github.com/alikhafaji/mazadpay-backend/pkg/logger"
	"github.com/alikhafaji/mazadpay-backend/pkg/outbox"
	"github.com/alikhafaji/mazadpay-backend/pkg/outbox/payloads"
)

const (
	// settlementHoldDays delays earned funds before they count as available.
	settlementHoldDays = 2

	// freeSalesPerMonth is the commission-free tier per calendar month;
	// sales past it pay commissionRate.
	freeSalesPerMonth = 15

	defaultHoldReleaseBatch = 1000
)

// commissionRate is 8% of the sale amount, rounded to whole IQD.
var commissionRate = decimal.New(8, -2)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// SettleDeliveryInput books the ledger entries for one delivered sale.
type SettleDeliveryInput struct {
	TransactionID uuid.UUID
	SellerID      uuid.UUID
	Amount        int64
	Commission    int64
	ShippingFee   int64
	DeliveredAt   time.Time
}

// Service maintains the append-only seller wallet ledger.
type Service interface {
	CommissionFor(ctx context.Context, sellerID uuid.UUID, saleAmount int64, at time.Time) (int64, error)
	SettleDeliveryTx(ctx context.Context, tx *gorm.DB, input SettleDeliveryInput) error
	ReverseSettlementTx(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID, reason string) (int64, error)
	MarkEntriesPaidTx(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID) error
	ReleaseExpiredHolds(ctx context.Context, now time.Time) (int, error)
	BalanceFor(ctx context.Context, sellerID uuid.UUID) (Balance, error)
	EntriesForTransaction(ctx context.Context, transactionID uuid.UUID) ([]models.WalletTransaction, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
	now    func() time.Time
}

// ServiceParams wires the wallet service collaborators.
type ServiceParams struct {
	Repo   Repository
	Tx     txRunner
	Outbox outboxPublisher
	Logger *logger.Logger
	Now    func() time.Time
}

// NewService builds the wallet ledger service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:   params.Repo,
		tx:     params.Tx,
		outbox: params.Outbox,
		logg:   params.Logger,
		now:    now,
	}, nil
}

// CommissionFor returns the platform fee for a sale: zero inside the seller's
// monthly free tier, 8% of the sale amount past it.
func (s *service) CommissionFor(ctx context.Context, sellerID uuid.UUID, saleAmount int64, at time.Time) (int64, error) {
	if sellerID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	}
	if saleAmount < 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "sale amount cannot be negative")
	}

	monthStart := time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0)
	count, err := s.repo.CountEarningsInWindow(ctx, sellerID, monthStart, monthEnd)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count monthly sales")
	}
	if count < freeSalesPerMonth {
		return 0, nil
	}

	fee := decimal.NewFromInt(saleAmount).Mul(commissionRate).Round(0)
	return fee.IntPart(), nil
}

func (s *service) SettleDeliveryTx(ctx context.Context, tx *gorm.DB, input SettleDeliveryInput) error {
	if input.TransactionID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	if input.SellerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	}
	if input.Amount < 0 || input.Commission < 0 || input.ShippingFee < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amounts cannot be negative")
	}
	if input.Commission+input.ShippingFee > input.Amount {
		return pkgerrors.New(pkgerrors.CodeValidation, "deductions exceed sale amount")
	}

	repo := s.repo.WithTx(tx)

	// Redelivered events must not double-book the ledger.
	existing, err := repo.ListByTransaction(ctx, input.TransactionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet entries")
	}
	if len(existing) > 0 {
		return nil
	}

	transactionID := input.TransactionID
	availableAt := input.DeliveredAt.Add(settlementHoldDays * 24 * time.Hour)
	entries := []*models.WalletTransaction{
		{
			SellerID:      input.SellerID,
			TransactionID: &transactionID,
			Type:          enums.WalletTransactionTypeSaleEarning,
			Status:        enums.WalletTransactionStatusPending,
			Amount:        input.Amount,
			Description:   "auction sale earning",
			AvailableAt:   &availableAt,
		},
	}
	if input.Commission > 0 {
		entries = append(entries, &models.WalletTransaction{
			SellerID:      input.SellerID,
			TransactionID: &transactionID,
			Type:          enums.WalletTransactionTypeCommissionFee,
			Status:        enums.WalletTransactionStatusPending,
			Amount:        -input.Commission,
			Description:   "platform commission",
			AvailableAt:   &availableAt,
		})
	}
	if input.ShippingFee > 0 {
		entries = append(entries, &models.WalletTransaction{
			SellerID:      input.SellerID,
			TransactionID: &transactionID,
			Type:          enums.WalletTransactionTypeShippingDeduction,
			Status:        enums.WalletTransactionStatusPending,
			Amount:        -input.ShippingFee,
			Description:   "shipping fee deduction",
			AvailableAt:   &availableAt,
		})
	}
	for _, entry := range entries {
		if err := repo.Insert(ctx, entry); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert wallet entry")
		}
	}

	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventWalletSettled,
		AggregateType: enums.AggregateWalletEntry,
		AggregateID:   input.TransactionID,
		Version:       1,
		Data: payloads.WalletSettledEvent{
			TransactionID: input.TransactionID,
			SellerID:      input.SellerID,
			NetAmount:     input.Amount - input.Commission - input.ShippingFee,
			Commission:    input.Commission,
			AvailableAt:   availableAt,
		},
	})
}

// ReverseSettlementTx undoes a transaction's settlement. Unpaid entries flip
// to reversed; already-paid entries stay and are offset with a negative
// reversal row so the seller's balance drops without rewriting history.
func (s *service) ReverseSettlementTx(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID, reason string) (int64, error) {
	if transactionID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}

	repo := s.repo.WithTx(tx)
	now := s.now().UTC()

	reversed, err := repo.MarkReversedByTransaction(ctx, transactionID, now)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reverse wallet entries")
	}

	paidTotal, err := repo.SumPaidByTransaction(ctx, transactionID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum paid wallet entries")
	}
	var sellerID uuid.UUID
	if paidTotal != 0 {
		entries, err := repo.ListByTransaction(ctx, transactionID)
		if err != nil {
			return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet entries")
		}
		if len(entries) > 0 {
			sellerID = entries[0].SellerID
		}
		offset := &models.WalletTransaction{
			SellerID:      sellerID,
			TransactionID: &transactionID,
			Type:          enums.WalletTransactionTypeReturnReversal,
			Status:        enums.WalletTransactionStatusAvailable,
			Amount:        -paidTotal,
			Description:   fmt.Sprintf("settlement reversal: %s", reason),
		}
		if err := repo.Insert(ctx, offset); err != nil {
			return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert reversal entry")
		}
		reversed++
	}

	if reversed == 0 {
		// Nothing was settled for this transaction; reversing is a no-op.
		return 0, nil
	}

	err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventWalletReversed,
		AggregateType: enums.AggregateWalletEntry,
		AggregateID:   transactionID,
		Version:       1,
		Data: payloads.WalletReversedEvent{
			TransactionID: transactionID,
			SellerID:      sellerID,
			Amount:        paidTotal,
			Reason:        reason,
		},
	})
	if err != nil {
		return 0, err
	}
	return reversed, nil
}

func (s *service) MarkEntriesPaidTx(ctx context.Context, tx *gorm.DB, transactionID uuid.UUID) error {
	if transactionID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	if _, err := s.repo.WithTx(tx).MarkPaidByTransaction(ctx, transactionID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark wallet entries paid")
	}
	return nil
}

// ReleaseExpiredHolds flips pending entries whose hold window lapsed to
// available. Runs from the scheduler; each batch commits on its own.
func (s *service) ReleaseExpiredHolds(ctx context.Context, now time.Time) (int, error) {
	released := 0
	for {
		var batch int64
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			batch, err = s.repo.WithTx(tx).ReleaseDueHolds(ctx, now, defaultHoldReleaseBatch)
			return err
		})
		if err != nil {
			return released, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release wallet holds")
		}
		released += int(batch)
		if batch < defaultHoldReleaseBatch {
			if released > 0 {
				s.logg.Info(s.logg.WithField(ctx, "released", released), "wallet holds released")
			}
			return released, nil
		}
	}
}

func (s *service) BalanceFor(ctx context.Context, sellerID uuid.UUID) (Balance, error) {
	if sellerID == uuid.Nil {
		return Balance{}, pkgerrors.New(pkgerrors.CodeValidation, "seller id required")
	}
	balance, err := s.repo.BalanceFor(ctx, sellerID)
	if err != nil {
		return Balance{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet balance")
	}
	// Reversal offsets can briefly push the visible number below zero.
	if balance.Available < 0 {
		balance.Available = 0
	}
	if balance.Pending < 0 {
		balance.Pending = 0
	}
	return balance, nil
}

func (s *service) EntriesForTransaction(ctx context.Context, transactionID uuid.UUID) ([]models.WalletTransaction, error) {
	if transactionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id required")
	}
	entries, err := s.repo.ListByTransaction(ctx, transactionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet entries")
	}
	return entries, nil
}
