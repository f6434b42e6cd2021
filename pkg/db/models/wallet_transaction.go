package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/alikhafaji/mazadpay-backend/pkg/enums"
)

// WalletTransaction is one entry in the seller's append-only wallet ledger.
// Entries are never deleted; reversals append an offsetting row or flip the
// status to reversed, preserving the audit trail.
type WalletTransaction struct {
	ID            uuid.UUID                     `gorm:"column:id;type:uuid;primaryKey"`
	SellerID      uuid.UUID                     `gorm:"column:seller_id;type:uuid;not null;index"`
	TransactionID *uuid.UUID                    `gorm:"column:transaction_id;type:uuid;index"`
	Type          enums.WalletTransactionType   `gorm:"column:type;type:wallet_transaction_type;not null"`
	Status        enums.WalletTransactionStatus `gorm:"column:status;type:wallet_transaction_status;not null;index"`

	// Amount is IQD minor units, signed: deductions and offsetting reversal
	// entries carry negative amounts.
	Amount      int64  `gorm:"column:amount;not null"`
	Description string `gorm:"column:description;type:text;not null"`

	AvailableAt *time.Time `gorm:"column:available_at"`
	ReversedAt  *time.Time `gorm:"column:reversed_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
