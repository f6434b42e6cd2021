package enums

import "fmt"

// PermissionStatus maps to the permission_status enum in Postgres. It is the
// lifecycle state of a seller payout: funds start withheld, may be locked by
// an open return case, clear once the grace period lapses, and terminate as
// either paid or blocked.
type PermissionStatus string

const (
	PermissionStatusWithheld PermissionStatus = "withheld"
	PermissionStatusLocked   PermissionStatus = "locked"
	PermissionStatusCleared  PermissionStatus = "cleared"
	PermissionStatusBlocked  PermissionStatus = "blocked"
	PermissionStatusPaid     PermissionStatus = "paid"
)

var validPermissionStatuses = []PermissionStatus{
	PermissionStatusWithheld,
	PermissionStatusLocked,
	PermissionStatusCleared,
	PermissionStatusBlocked,
	PermissionStatusPaid,
}

// IsValid reports whether the value matches the canonical permission_status enum.
func (p PermissionStatus) IsValid() bool {
	for _, candidate := range validPermissionStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed from the state.
// Blocked payouts can still be reversed by an admin, so only paid is terminal.
func (p PermissionStatus) IsTerminal() bool {
	return p == PermissionStatusPaid
}

// ParsePermissionStatus converts raw input into PermissionStatus.
func ParsePermissionStatus(value string) (PermissionStatus, error) {
	for _, candidate := range validPermissionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid permission status %q", value)
}
