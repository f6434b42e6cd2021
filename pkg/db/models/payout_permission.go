package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/alikhafaji/mazadpay-backend/pkg/enums"
)

// PayoutPermission is the permanent settlement record for one delivered sale.
// Exactly one row exists per transaction. Rows are never deleted; every
// correction is a further transition, and the notes column is an append-only
// audit log of each one.
type PayoutPermission struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	TransactionID uuid.UUID `gorm:"column:transaction_id;type:uuid;not null;uniqueIndex:uq_payout_permissions_transaction_id"`
	ListingID     uuid.UUID `gorm:"column:listing_id;type:uuid;not null;index"`
	SellerID      uuid.UUID `gorm:"column:seller_id;type:uuid;not null;index"`
	BuyerID       uuid.UUID `gorm:"column:buyer_id;type:uuid;not null"`

	// Amounts are IQD minor units. PayoutAmount = OriginalAmount -
	// PlatformCommission, except when forced to zero by a buyer refusal.
	PayoutAmount       int64 `gorm:"column:payout_amount;not null"`
	OriginalAmount     int64 `gorm:"column:original_amount;not null"`
	PlatformCommission int64 `gorm:"column:platform_commission;not null"`

	// ReturnPolicyDays is snapshotted from the listing at creation; later
	// listing edits never change an existing permission.
	ReturnPolicyDays     int       `gorm:"column:return_policy_days;not null"`
	DeliveredAt          time.Time `gorm:"column:delivered_at;not null"`
	GracePeriodExpiresAt time.Time `gorm:"column:grace_period_expires_at;not null;index"`

	PermissionStatus enums.PermissionStatus `gorm:"column:permission_status;type:permission_status;not null;index"`
	IsCleared        bool                   `gorm:"column:is_cleared;not null;default:false"`

	LockedAt              *time.Time `gorm:"column:locked_at"`
	LockedReason          *string    `gorm:"column:locked_reason;type:text"`
	LockedByReturnRequest *uuid.UUID `gorm:"column:locked_by_return_request_id;type:uuid"`

	BlockedAt     *time.Time `gorm:"column:blocked_at"`
	BlockedReason *string    `gorm:"column:blocked_reason;type:text"`
	BlockedBy     *string    `gorm:"column:blocked_by;type:text"`

	DebtAmount  int64             `gorm:"column:debt_amount;not null;default:0"`
	DebtDueDate *time.Time        `gorm:"column:debt_due_date"`
	DebtStatus  *enums.DebtStatus `gorm:"column:debt_status;type:debt_status"`

	ClearedAt *time.Time `gorm:"column:cleared_at"`
	ClearedBy *string    `gorm:"column:cleared_by;type:text"`

	PaidAt          *time.Time `gorm:"column:paid_at"`
	PaidBy          *string    `gorm:"column:paid_by;type:text"`
	PayoutReference *string    `gorm:"column:payout_reference;type:text"`

	Notes *string `gorm:"column:notes;type:text"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
