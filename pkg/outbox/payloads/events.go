package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/alikhafaji/mazadpay-backend/pkg/enums"
)

// PayoutStateChangedEvent is emitted on every permission transition.
type PayoutStateChangedEvent struct {
	PermissionID  uuid.UUID              `json:"permissionId"`
	TransactionID uuid.UUID              `json:"transactionId"`
	SellerID      uuid.UUID              `json:"sellerId"`
	Status        enums.PermissionStatus `json:"status"`
	PayoutAmount  int64                  `json:"payoutAmount"`
	Reason        string                 `json:"reason,omitempty"`
}

// PayoutPaidEvent is emitted when a cleared payout is confirmed disbursed.
type PayoutPaidEvent struct {
	PermissionID    uuid.UUID `json:"permissionId"`
	TransactionID   uuid.UUID `json:"transactionId"`
	SellerID        uuid.UUID `json:"sellerId"`
	PayoutAmount    int64     `json:"payoutAmount"`
	PayoutReference string    `json:"payoutReference"`
	PaidBy          string    `json:"paidBy"`
	PaidAt          time.Time `json:"paidAt"`
}

// DebtEscalatedEvent is emitted when the enforcement sweep suspends a seller.
type DebtEscalatedEvent struct {
	SellerID   uuid.UUID `json:"sellerId"`
	TotalDebt  int64     `json:"totalDebt"`
	RecordIDs  []string  `json:"recordIds"`
	Suspended  bool      `json:"suspended"`
	OccurredAt time.Time `json:"occurredAt"`
}

// SellerSuspendedEvent is emitted when debt enforcement deactivates a seller.
type SellerSuspendedEvent struct {
	SellerID    uuid.UUID `json:"sellerId"`
	SuspendedAt time.Time `json:"suspendedAt"`
}

// WalletSettledEvent is emitted when delivery settlement books ledger entries.
type WalletSettledEvent struct {
	TransactionID uuid.UUID `json:"transactionId"`
	SellerID      uuid.UUID `json:"sellerId"`
	NetAmount     int64     `json:"netAmount"`
	Commission    int64     `json:"commission"`
	AvailableAt   time.Time `json:"availableAt"`
}

// WalletReversedEvent is emitted when a settlement is undone.
type WalletReversedEvent struct {
	TransactionID uuid.UUID `json:"transactionId"`
	SellerID      uuid.UUID `json:"sellerId"`
	Amount        int64     `json:"amount"`
	Reason        string    `json:"reason,omitempty"`
}

// NotificationRequestedEvent tells downstream delivery channels to alert a user.
type NotificationRequestedEvent struct {
	NotificationID uuid.UUID              `json:"notificationId"`
	UserID         uuid.UUID              `json:"userId"`
	Type           enums.NotificationType `json:"type"`
	Title          string                 `json:"title"`
}
