package realtime

// Named realtime streams.
const (
	StreamNotifications = "notifications"
)

// Events published on StreamNotifications.
const (
	EventNotificationCreated = "notification.created"
	EventNotificationUpdated = "notification.updated"
	EventNotificationsRead   = "notification.read_all"
	EventNotificationsClear  = "notification.cleared"
	EventNotificationDeleted = "notification.deleted"
)
