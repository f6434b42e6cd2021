package accounts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/alikhafaji/mazadpay-backend/pkg/db/models"
	"github.com/alikhafaji/mazadpay-backend/pkg/enums"
)

// Repository manages persistence for user accounts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	ListAdminIDs(ctx context.Context) ([]uuid.UUID, error)
	// Suspend deactivates an active seller, reporting affected rows so the
	// caller can tell a fresh suspension from an already-suspended account.
	Suspend(ctx context.Context, sellerID uuid.UUID, at time.Time) (int64, error)
	Reinstate(ctx context.Context, sellerID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an accounts repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) ListAdminIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("role = ? AND is_active = ?", enums.UserRoleAdmin, true).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *repository) Suspend(ctx context.Context, sellerID uuid.UUID, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND role = ? AND is_active = ?", sellerID, enums.UserRoleSeller, true).
		Updates(map[string]any{
			"is_active":    false,
			"suspended_at": at,
		})
	return result.RowsAffected, result.Error
}

func (r *repository) Reinstate(ctx context.Context, sellerID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND role = ? AND is_active = ?", sellerID, enums.UserRoleSeller, false).
		Updates(map[string]any{
			"is_active":    true,
			"suspended_at": nil,
		})
	return result.RowsAffected, result.Error
}
