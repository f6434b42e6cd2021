package permissions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/alikhafaji/mazadpay-backend/pkg/db/models"
	"github.com/alikhafaji/mazadpay-backend/pkg/enums"
)

// Repository manages persistence for payout permissions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, record *models.PayoutPermission) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PayoutPermission, error)
	FindByTransactionID(ctx context.Context, transactionID uuid.UUID) (*models.PayoutPermission, error)
	FindTransaction(ctx context.Context, transactionID uuid.UUID) (*models.SaleTransaction, error)
	FindListing(ctx context.Context, listingID uuid.UUID) (*models.Listing, error)

	// Transition applies updates only while the record still holds one of the
	// expected statuses. A false result means another transition won the race.
	Transition(ctx context.Context, id uuid.UUID, expected []enums.PermissionStatus, updates map[string]any) (bool, error)

	ListExpiredWithheld(ctx context.Context, now time.Time, limit int) ([]models.PayoutPermission, error)
	ListOverdueBlocked(ctx context.Context, cutoff time.Time) ([]models.PayoutPermission, error)
	ListCleared(ctx context.Context, sellerID *uuid.UUID, limit int) ([]models.PayoutPermission, error)
	ListBySeller(ctx context.Context, sellerID uuid.UUID, limit int) ([]models.PayoutPermission, error)
	ClearedGroupsBySeller(ctx context.Context, sellerID *uuid.UUID) ([]SellerPayoutGroup, error)
	OutstandingDebtBySeller(ctx context.Context) ([]SellerDebt, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payout permission repository bound to the database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, record *models.PayoutPermission) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PayoutPermission, error) {
	var record models.PayoutPermission
	if err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) FindByTransactionID(ctx context.Context, transactionID uuid.UUID) (*models.PayoutPermission, error) {
	var record models.PayoutPermission
	if err := r.db.WithContext(ctx).First(&record, "transaction_id = ?", transactionID).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) FindTransaction(ctx context.Context, transactionID uuid.UUID) (*models.SaleTransaction, error) {
	var txn models.SaleTransaction
	if err := r.db.WithContext(ctx).First(&txn, "id = ?", transactionID).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) FindListing(ctx context.Context, listingID uuid.UUID) (*models.Listing, error) {
	var listing models.Listing
	if err := r.db.WithContext(ctx).First(&listing, "id = ?", listingID).Error; err != nil {
		return nil, err
	}
	return &listing, nil
}

func (r *repository) Transition(ctx context.Context, id uuid.UUID, expected []enums.PermissionStatus, updates map[string]any) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.PayoutPermission{}).
		Where("id = ? AND permission_status IN ?", id, expected).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) ListExpiredWithheld(ctx context.Context, now time.Time, limit int) ([]models.PayoutPermission, error) {
	var records []models.PayoutPermission
	err := r.db.WithContext(ctx).
		Where("permission_status = ? AND grace_period_expires_at < ?", enums.PermissionStatusWithheld, now).
		Order("grace_period_expires_at ASC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

func (r *repository) ListOverdueBlocked(ctx context.Context, cutoff time.Time) ([]models.PayoutPermission, error) {
	var records []models.PayoutPermission
	err := r.db.WithContext(ctx).
		Where("permission_status = ? AND blocked_at < ? AND (debt_status IS NULL OR debt_status <> ?)",
			enums.PermissionStatusBlocked, cutoff, enums.DebtStatusResolved).
		Order("blocked_at ASC").
		Find(&records).Error
	return records, err
}

func (r *repository) ListCleared(ctx context.Context, sellerID *uuid.UUID, limit int) ([]models.PayoutPermission, error) {
	query := r.db.WithContext(ctx).
		Where("permission_status = ?", enums.PermissionStatusCleared)
	if sellerID != nil {
		query = query.Where("seller_id = ?", *sellerID)
	}
	var records []models.PayoutPermission
	// Oldest cleared first so partners disburse in FIFO order.
	err := query.Order("cleared_at ASC").Limit(limit).Find(&records).Error
	return records, err
}

func (r *repository) ListBySeller(ctx context.Context, sellerID uuid.UUID, limit int) ([]models.PayoutPermission, error) {
	var records []models.PayoutPermission
	err := r.db.WithContext(ctx).
		Where("seller_id = ?", sellerID).
		Order("delivered_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

func (r *repository) ClearedGroupsBySeller(ctx context.Context, sellerID *uuid.UUID) ([]SellerPayoutGroup, error) {
	query := r.db.WithContext(ctx).
		Model(&models.PayoutPermission{}).
		Select("seller_id, COUNT(*) AS payout_count, SUM(payout_amount) AS total_amount").
		Where("permission_status = ?", enums.PermissionStatusCleared).
		Group("seller_id").
		Order("seller_id")
	if sellerID != nil {
		query = query.Where("seller_id = ?", *sellerID)
	}
	var groups []SellerPayoutGroup
	err := query.Scan(&groups).Error
	return groups, err
}

func (r *repository) OutstandingDebtBySeller(ctx context.Context) ([]SellerDebt, error) {
	var rows []SellerDebt
	err := r.db.WithContext(ctx).
		Model(&models.PayoutPermission{}).
		Select("seller_id, SUM(debt_amount) AS total_debt, COUNT(*) AS record_count").
		Where("permission_status = ? AND (debt_status IS NULL OR debt_status <> ?)",
			enums.PermissionStatusBlocked, enums.DebtStatusResolved).
		Group("seller_id").
		Scan(&rows).Error
	return rows, err
}
