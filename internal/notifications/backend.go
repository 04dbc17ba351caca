package notifications

import (
	"context"
	"errors"
)

// ErrUnsupportedPatch is returned by backends for bulk patches the data
// service cannot express. Only marking unread (or all) records read is
// supported.
var ErrUnsupportedPatch = errors.New("notifications: unsupported bulk patch")

// BulkMarksRead reports whether filter and patch together mean "mark every
// unread record read", the one bulk update data services implement.
func BulkMarksRead(filter Filter, patch Patch) bool {
	if patch.Read == nil || !*patch.Read {
		return false
	}
	return filter.Read == nil || !*filter.Read
}

// Patch lists the fields a mutation changes. Nil fields are left untouched.
type Patch struct {
	Read *bool `json:"read,omitempty"`
}

// Filter narrows bulk updates. Nil fields match every row.
type Filter struct {
	Read *bool `json:"read,omitempty"`
}

// InsertFunc receives inserted notifications.
type InsertFunc func(Notification)

// Channel is an open realtime feed. Done is closed when the feed stops for
// any reason; Err then reports the transport failure, nil after Close.
type Channel interface {
	Close() error
	Done() <-chan struct{}
	Err() error
}

// Backend is the data service the Store talks to.
type Backend interface {
	// QueryNotifications returns the user's notifications newest first.
	// A limit of zero or less means no limit.
	QueryNotifications(ctx context.Context, userID string, limit int) ([]Notification, error)
	UpdateNotification(ctx context.Context, id string, patch Patch) error
	UpdateNotificationsBulk(ctx context.Context, userID string, filter Filter, patch Patch) error
	DeleteNotifications(ctx context.Context, userID string) error
	DeleteNotification(ctx context.Context, id string) error
	// SubscribeInserts opens a feed of inserts for userID. fn may be called
	// from any goroutine and must not block.
	SubscribeInserts(ctx context.Context, userID string, fn InsertFunc) (Channel, error)
}

func boolPtr(v bool) *bool { return &v }
