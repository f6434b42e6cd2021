package enums

import "fmt"

// TransactionStatus maps to the transaction_status enum in Postgres. It is
// the order-lifecycle state, owned by the transaction subsystem; the
// clearance engine only reads it.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusShipped   TransactionStatus = "shipped"
	TransactionStatusDelivered TransactionStatus = "delivered"
	TransactionStatusReturned  TransactionStatus = "returned"
	TransactionStatusRefunded  TransactionStatus = "refunded"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

var validTransactionStatuses = []TransactionStatus{
	TransactionStatusPending,
	TransactionStatusShipped,
	TransactionStatusDelivered,
	TransactionStatusReturned,
	TransactionStatusRefunded,
	TransactionStatusCancelled,
}

// IsValid reports whether the value matches the canonical enum.
func (s TransactionStatus) IsValid() bool {
	for _, candidate := range validTransactionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseTransactionStatus converts raw input into TransactionStatus.
func ParseTransactionStatus(value string) (TransactionStatus, error) {
	for _, candidate := range validTransactionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction status %q", value)
}
