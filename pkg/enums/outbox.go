package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregatePayoutPermission OutboxAggregateType = "payout_permission"
	AggregateWalletEntry      OutboxAggregateType = "wallet_entry"
	AggregateSellerAccount    OutboxAggregateType = "seller_account"
	AggregateNotification     OutboxAggregateType = "notification"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregatePayoutPermission,
	AggregateWalletEntry,
	AggregateSellerAccount,
	AggregateNotification,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventPayoutWithheld        OutboxEventType = "payout_withheld"
	EventPayoutLocked          OutboxEventType = "payout_locked"
	EventPayoutUnlocked        OutboxEventType = "payout_unlocked"
	EventPayoutCleared         OutboxEventType = "payout_cleared"
	EventPayoutBlocked         OutboxEventType = "payout_blocked"
	EventPayoutPaid            OutboxEventType = "payout_paid"
	EventPayoutReversed        OutboxEventType = "payout_reversed"
	EventDebtEscalated         OutboxEventType = "debt_escalated"
	EventSellerSuspended       OutboxEventType = "seller_suspended"
	EventWalletSettled         OutboxEventType = "wallet_settled"
	EventWalletReversed        OutboxEventType = "wallet_reversed"
	EventWalletHoldReleased    OutboxEventType = "wallet_hold_released"
	EventNotificationRequested OutboxEventType = "notification_requested"
)

var validOutboxEventTypes = []OutboxEventType{
	EventPayoutWithheld,
	EventPayoutLocked,
	EventPayoutUnlocked,
	EventPayoutCleared,
	EventPayoutBlocked,
	EventPayoutPaid,
	EventPayoutReversed,
	EventDebtEscalated,
	EventSellerSuspended,
	EventWalletSettled,
	EventWalletReversed,
	EventWalletHoldReleased,
	EventNotificationRequested,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
