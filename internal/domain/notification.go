package domain

import "time"

// NotificationType tags what a notification is about.
type NotificationType string

const (
	NotificationRequestAssigned         NotificationType = "request_assigned"
	NotificationRequestInProgress       NotificationType = "request_in_progress"
	NotificationRequestPrecisionsNeeded NotificationType = "request_precisions_needed"
	NotificationRequestDelivered        NotificationType = "request_delivered"
	NotificationRequestRefused          NotificationType = "request_refused"
	NotificationRequestComment          NotificationType = "request_comment"
)

// Notification is a persisted message for one recipient.
type Notification struct {
	ID             string
	RecipientLogin string
	Type           NotificationType
	Title          string
	Message        string
	Link           string
	Read           bool
	CreatedAt      time.Time
}
