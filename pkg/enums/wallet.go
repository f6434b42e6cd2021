package enums

import "fmt"

// WalletTransactionType maps to the wallet_transaction_type enum in Postgres.
type WalletTransactionType string

const (
	WalletTransactionTypeSaleEarning       WalletTransactionType = "sale_earning"
	WalletTransactionTypeCommissionFee     WalletTransactionType = "commission_fee"
	WalletTransactionTypeShippingDeduction WalletTransactionType = "shipping_deduction"
	WalletTransactionTypeReturnReversal    WalletTransactionType = "return_reversal"
)

var validWalletTransactionTypes = []WalletTransactionType{
	WalletTransactionTypeSaleEarning,
	WalletTransactionTypeCommissionFee,
	WalletTransactionTypeShippingDeduction,
	WalletTransactionTypeReturnReversal,
}

// IsValid reports whether the value matches the canonical enum.
func (w WalletTransactionType) IsValid() bool {
	for _, candidate := range validWalletTransactionTypes {
		if candidate == w {
			return true
		}
	}
	return false
}

// ParseWalletTransactionType converts raw input into WalletTransactionType.
func ParseWalletTransactionType(value string) (WalletTransactionType, error) {
	for _, candidate := range validWalletTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid wallet transaction type %q", value)
}

// WalletTransactionStatus maps to the wallet_transaction_status enum in Postgres.
type WalletTransactionStatus string

const (
	// WalletTransactionStatusPending means the entry is inside its hold window.
	WalletTransactionStatusPending WalletTransactionStatus = "pending"
	// WalletTransactionStatusAvailable means the hold lapsed and the amount
	// counts toward the withdrawable balance.
	WalletTransactionStatusAvailable WalletTransactionStatus = "available"
	// WalletTransactionStatusPaid means the amount was paid out to the seller.
	WalletTransactionStatusPaid WalletTransactionStatus = "paid"
	// WalletTransactionStatusReversed means the settlement was undone before
	// payout.
	WalletTransactionStatusReversed WalletTransactionStatus = "reversed"
)

var validWalletTransactionStatuses = []WalletTransactionStatus{
	WalletTransactionStatusPending,
	WalletTransactionStatusAvailable,
	WalletTransactionStatusPaid,
	WalletTransactionStatusReversed,
}

// IsValid reports whether the value matches the canonical enum.
func (w WalletTransactionStatus) IsValid() bool {
	for _, candidate := range validWalletTransactionStatuses {
		if candidate == w {
			return true
		}
	}
	return false
}

// ParseWalletTransactionStatus converts raw input into WalletTransactionStatus.
func ParseWalletTransactionStatus(value string) (WalletTransactionStatus, error) {
	for _, candidate := range validWalletTransactionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid wallet transaction status %q", value)
}
