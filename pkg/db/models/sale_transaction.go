package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/alikhafaji/mazadpay-backend/pkg/enums"
)

// SaleTransaction is one completed auction sale. The lifecycle subsystem
// owns it; the clearance engine reads it when creating a payout permission.
type SaleTransaction struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ListingID uuid.UUID `gorm:"column:listing_id;type:uuid;not null;index"`
	SellerID  uuid.UUID `gorm:"column:seller_id;type:uuid;not null;index"`
	BuyerID   uuid.UUID `gorm:"column:buyer_id;type:uuid;not null"`

	// Amount is the final sale price in IQD minor units.
	Amount      int64                   `gorm:"column:amount;not null"`
	ShippingFee int64                   `gorm:"column:shipping_fee;not null;default:0"`
	Status      enums.TransactionStatus `gorm:"column:status;type:transaction_status;not null;index"`

	DeliveredAt *time.Time `gorm:"column:delivered_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
