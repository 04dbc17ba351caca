package notifications

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownNotification is returned for mutations on ids the store does not hold.
	ErrUnknownNotification = errors.New("notifications: unknown notification")
	// ErrNotLoaded is returned for mutations before a user has been loaded.
	ErrNotLoaded = errors.New("notifications: store has no user")
)

// FetchError reports a failed load. The store is left empty.
type FetchError struct {
	UserID string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("notifications: fetch for %s failed: %v", e.UserID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// SubscriptionError reports a realtime feed that failed to open or dropped.
type SubscriptionError struct {
	UserID string
	Err    error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("notifications: subscription for %s failed: %v", e.UserID, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }

// MutationError reports a server write that failed after the optimistic
// local change. Reverted is true when the store fell back to undoing the
// touched fields because the reconciling refetch failed too.
type MutationError struct {
	Op       string
	ID       string
	Reverted bool
	Err      error
}

func (e *MutationError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("notifications: %s %s failed: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("notifications: %s failed: %v", e.Op, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }
