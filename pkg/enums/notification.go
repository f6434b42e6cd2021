package enums

import "fmt"

// NotificationType maps to the notification_type enum in Postgres.
type NotificationType string

const (
	NotificationTypePayoutCleared    NotificationType = "payout_cleared"
	NotificationTypePayoutBlocked    NotificationType = "payout_blocked"
	NotificationTypeDebtReminder     NotificationType = "debt_reminder"
	NotificationTypeAccountSuspended NotificationType = "account_suspended"
	NotificationTypeHighDebtAlert    NotificationType = "high_debt_alert"
	NotificationTypeSystemAlert      NotificationType = "system_alert"
)

var validNotificationTypes = []NotificationType{
	NotificationTypePayoutCleared,
	NotificationTypePayoutBlocked,
	NotificationTypeDebtReminder,
	NotificationTypeAccountSuspended,
	NotificationTypeHighDebtAlert,
	NotificationTypeSystemAlert,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
