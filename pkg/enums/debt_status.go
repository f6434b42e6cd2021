package enums

import "fmt"

// DebtStatus maps to the debt_status enum in Postgres. It tracks what a
// seller owes the platform after a payout was blocked. The column is nullable:
// a permission that was never blocked with debt carries no status at all.
type DebtStatus string

const (
	// DebtStatusPending means the seller owes the platform and the due date
	// has not been enforced yet.
	DebtStatusPending DebtStatus = "pending"
	// DebtStatusEscalated means the due date lapsed and the account was
	// suspended by the enforcement sweep.
	DebtStatusEscalated DebtStatus = "escalated"
	// DebtStatusResolved means the debt was settled, written off, or never
	// chargeable in the first place (buyer refusal).
	DebtStatusResolved DebtStatus = "resolved"
)

var validDebtStatuses = []DebtStatus{
	DebtStatusPending,
	DebtStatusEscalated,
	DebtStatusResolved,
}

// IsValid reports whether the value matches the canonical debt_status enum.
func (d DebtStatus) IsValid() bool {
	for _, candidate := range validDebtStatuses {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDebtStatus converts raw input into DebtStatus.
func ParseDebtStatus(value string) (DebtStatus, error) {
	for _, candidate := range validDebtStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid debt status %q", value)
}
