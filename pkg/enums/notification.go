package enums

import "fmt"

// NotificationType names the events surfaced to clients and providers.
type NotificationType string

const (
	NotificationTypeRequestReceived  NotificationType = "request_received"
	NotificationTypeRequestAccepted  NotificationType = "request_accepted"
	NotificationTypeRequestDeclined  NotificationType = "request_declined"
	NotificationTypeRequestUpdated   NotificationType = "request_updated"
	NotificationTypeRequestCompleted NotificationType = "request_completed"
	NotificationTypeRequestCancelled NotificationType = "request_cancelled"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeRequestReceived,
	NotificationTypeRequestAccepted,
	NotificationTypeRequestDeclined,
	NotificationTypeRequestUpdated,
	NotificationTypeRequestCompleted,
	NotificationTypeRequestCancelled,
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
