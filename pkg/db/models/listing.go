package models

import (
	"time"

	"github.com/google/uuid"
)

// Listing is the auction listing a sale transaction settles against. The
// engine reads only the return-policy window at delivery time.
type Listing struct {
	ID               uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	SellerID         uuid.UUID `gorm:"column:seller_id;type:uuid;not null;index"`
	Title            string    `gorm:"column:title;type:text;not null"`
	ReturnPolicyDays int       `gorm:"column:return_policy_days;not null;default:0"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
