package wallet

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/alikhafaji/mazadpay-backend/pkg/db/models"
	"github.com/alikhafaji/mazadpay-backend/pkg/enums"
)

// Balance aggregates a seller's ledger by entry status.
type Balance struct {
	Available int64 `json:"available"`
	Pending   int64 `json:"pending"`
}

// Repository manages persistence for wallet ledger entries. Entries are
// append-only; corrections change status or add offsetting rows, never delete.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, entry *models.WalletTransaction) error
	ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]models.WalletTransaction, error)
	CountEarningsInWindow(ctx context.Context, sellerID uuid.UUID, from, to time.Time) (int64, error)
	MarkReversedByTransaction(ctx context.Context, transactionID uuid.UUID, reversedAt time.Time) (int64, error)
	MarkPaidByTransaction(ctx context.Context, transactionID uuid.UUID) (int64, error)
	SumPaidByTransaction(ctx context.Context, transactionID uuid.UUID) (int64, error)
	ReleaseDueHolds(ctx context.Context, now time.Time, limit int) (int64, error)
	BalanceFor(ctx context.Context, sellerID uuid.UUID) (Balance, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a wallet repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Insert(ctx context.Context, entry *models.WalletTransaction) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]models.WalletTransaction, error) {
	var entries []models.WalletTransaction
	if err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) CountEarningsInWindow(ctx context.Context, sellerID uuid.UUID, from, to time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.WalletTransaction{}).
		Where("seller_id = ? AND type = ? AND created_at >= ? AND created_at < ?",
			sellerID, enums.WalletTransactionTypeSaleEarning, from, to).
		Count(&count).Error
	return count, err
}

// MarkReversedByTransaction flips every still-unpaid entry for the
// transaction to reversed. Paid entries are untouched; the caller offsets
// them with a negative reversal row instead.
func (r *repository) MarkReversedByTransaction(ctx context.Context, transactionID uuid.UUID, reversedAt time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.WalletTransaction{}).
		Where("transaction_id = ? AND status IN ?", transactionID,
			[]enums.WalletTransactionStatus{enums.WalletTransactionStatusPending, enums.WalletTransactionStatusAvailable}).
		Updates(map[string]any{
			"status":      enums.WalletTransactionStatusReversed,
			"reversed_at": reversedAt,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) MarkPaidByTransaction(ctx context.Context, transactionID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.WalletTransaction{}).
		Where("transaction_id = ? AND status IN ?", transactionID,
			[]enums.WalletTransactionStatus{enums.WalletTransactionStatusPending, enums.WalletTransactionStatusAvailable}).
		Update("status", enums.WalletTransactionStatusPaid)
	return result.RowsAffected, result.Error
}

func (r *repository) SumPaidByTransaction(ctx context.Context, transactionID uuid.UUID) (int64, error) {
	var total *int64
	err := r.db.WithContext(ctx).
		Model(&models.WalletTransaction{}).
		Select("SUM(amount)").
		Where("transaction_id = ? AND status = ?", transactionID, enums.WalletTransactionStatusPaid).
		Scan(&total).Error
	if err != nil || total == nil {
		return 0, err
	}
	return *total, nil
}

func (r *repository) ReleaseDueHolds(ctx context.Context, now time.Time, limit int) (int64, error) {
	// gorm cannot apply LIMIT to an UPDATE portably, so release via an id
	// subquery bounded by the batch size.
	sub := r.db.WithContext(ctx).
		Model(&models.WalletTransaction{}).
		Select("id").
		Where("status = ? AND available_at IS NOT NULL AND available_at <= ?",
			enums.WalletTransactionStatusPending, now).
		Limit(limit)
	result := r.db.WithContext(ctx).
		Model(&models.WalletTransaction{}).
		Where("id IN (?)", sub).
		Update("status", enums.WalletTransactionStatusAvailable)
	return result.RowsAffected, result.Error
}

func (r *repository) BalanceFor(ctx context.Context, sellerID uuid.UUID) (Balance, error) {
	type row struct {
		Status enums.WalletTransactionStatus `gorm:"column:status"`
		Total  int64                         `gorm:"column:total"`
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&models.WalletTransaction{}).
		Select("status, SUM(amount) AS total").
		Where("seller_id = ? AND status IN ?", sellerID,
			[]enums.WalletTransactionStatus{enums.WalletTransactionStatusPending, enums.WalletTransactionStatusAvailable}).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return Balance{}, err
	}
	balance := Balance{}
	for _, r := range rows {
		switch r.Status {
		case enums.WalletTransactionStatusAvailable:
			balance.Available = r.Total
		case enums.WalletTransactionStatusPending:
			balance.Pending = r.Total
		}
	}
	return balance, nil
}
