package permissions

import (
	"time"

	"github.com/google/uuid"

	"github.com/alikhafaji/mazadpay-backend/pkg/db/models"
	"github.com/alikhafaji/mazadpay-backend/pkg/enums"
)

// CreateOnDeliveryInput captures the data the lifecycle collaborator provides
// when a delivery is confirmed.
type CreateOnDeliveryInput struct {
	TransactionID      uuid.UUID
	PlatformCommission int64
}

// ReturnOutcome is the resolution of a return dispute.
type ReturnOutcome string

const (
	// ReturnOutcomeRejected means the seller rejected the return; the payout
	// unlocks and the grace window is re-evaluated against now.
	ReturnOutcomeRejected ReturnOutcome = "rejected"
	// ReturnOutcomeRefunded means the buyer was refunded; the payout blocks
	// with debt.
	ReturnOutcomeRefunded ReturnOutcome = "refunded"
)

// ResolveReturnInput resolves a previously filed return.
type ResolveReturnInput struct {
	TransactionID   uuid.UUID
	ReturnRequestID uuid.UUID
	Outcome         ReturnOutcome

	// Refund-path fields, ignored on the unlock path.
	AdminID      uuid.UUID
	Reason       string
	RefundAmount int64
}

// BlockForRefundInput moves a payout to blocked with a 30-day receivable.
type BlockForRefundInput struct {
	TransactionID uuid.UUID
	AdminID       uuid.UUID
	Reason        string
	RefundAmount  int64
}

// MarkPaidInput confirms a cleared payout was disbursed.
type MarkPaidInput struct {
	TransactionID   uuid.UUID
	PayoutReference string
	PaidBy          string
}

// MarkPaidBulkInput confirms a batch of cleared payouts from the admin UI.
type MarkPaidBulkInput struct {
	PermissionIDs []uuid.UUID
	AdminID       uuid.UUID
	Method        string
	Reference     string
}

// AdminReverseInput reverses an already-favorable payout state.
type AdminReverseInput struct {
	PermissionID uuid.UUID
	AdminID      uuid.UUID
	Reason       string
}

// SellerPayoutGroup is one row of the admin reconciliation view.
type SellerPayoutGroup struct {
	SellerID    uuid.UUID `gorm:"column:seller_id" json:"sellerId"`
	PayoutCount int       `gorm:"column:payout_count" json:"payoutCount"`
	TotalAmount int64     `gorm:"column:total_amount" json:"totalAmount"`
}

// SellerDebt aggregates outstanding blocked debt per seller.
type SellerDebt struct {
	SellerID    uuid.UUID `gorm:"column:seller_id" json:"sellerId"`
	TotalDebt   int64     `gorm:"column:total_debt" json:"totalDebt"`
	RecordCount int       `gorm:"column:record_count" json:"recordCount"`
}

// PayoutView is the external representation of one permission record.
type PayoutView struct {
	ID              uuid.UUID              `json:"id"`
	TransactionID   uuid.UUID              `json:"transactionId"`
	SellerID        uuid.UUID              `json:"sellerId"`
	PayoutAmount    int64                  `json:"payoutAmount"`
	Status          enums.PermissionStatus `json:"status"`
	DeliveredAt     time.Time              `json:"deliveredAt"`
	GraceExpiresAt  time.Time              `json:"graceExpiresAt"`
	ClearedAt       *time.Time             `json:"clearedAt,omitempty"`
	PaidAt          *time.Time             `json:"paidAt,omitempty"`
	PayoutReference *string                `json:"payoutReference,omitempty"`
	DebtAmount      int64                  `json:"debtAmount"`
	DebtStatus      *enums.DebtStatus      `json:"debtStatus,omitempty"`
	DebtDueDate     *time.Time             `json:"debtDueDate,omitempty"`
}

// NewPayoutView maps a stored record into its external representation.
func NewPayoutView(record models.PayoutPermission) PayoutView {
	return PayoutView{
		ID:              record.ID,
		TransactionID:   record.TransactionID,
		SellerID:        record.SellerID,
		PayoutAmount:    record.PayoutAmount,
		Status:          record.PermissionStatus,
		DeliveredAt:     record.DeliveredAt,
		GraceExpiresAt:  record.GracePeriodExpiresAt,
		ClearedAt:       record.ClearedAt,
		PaidAt:          record.PaidAt,
		PayoutReference: record.PayoutReference,
		DebtAmount:      record.DebtAmount,
		DebtStatus:      record.DebtStatus,
		DebtDueDate:     record.DebtDueDate,
	}
}

// SweepResult reports what a scheduled run accomplished.
type SweepResult struct {
	Transitioned int `json:"transitioned"`
	Failed       int `json:"failed"`
}
