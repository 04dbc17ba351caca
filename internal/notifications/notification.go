// Package notifications holds the client-side notification feed: a bounded,
// read/unread-aware Store fed by a realtime Subscription, plus the helpers
// views use to navigate from a notification to the record it references.
package notifications

import (
	"sort"
	"strings"
	"time"
)

// Kind is the notification severity.
type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

// BadgeVariant maps the kind to the badge style used by views. Unknown kinds
// fall back to the info style.
func (k Kind) BadgeVariant() string {
	switch Kind(strings.ToLower(string(k))) {
	case KindSuccess:
		return "success"
	case KindWarning:
		return "warning"
	case KindError:
		return "danger"
	default:
		return "info"
	}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindInfo, KindSuccess, KindWarning, KindError:
		return true
	}
	return false
}

// Notification is the client projection of a stored notification.
type Notification struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	Title         string    `json:"title"`
	Message       string    `json:"message"`
	Type          Kind      `json:"type"`
	Read          bool      `json:"read"`
	ReferenceType string    `json:"reference_type,omitempty"`
	ReferenceID   string    `json:"reference_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// HasReference reports whether the notification points at another record.
func (n Notification) HasReference() bool {
	return strings.TrimSpace(n.ReferenceType) != "" && strings.TrimSpace(n.ReferenceID) != ""
}

// sortNewestFirst orders by created_at descending; ties keep their order.
func sortNewestFirst(items []Notification) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}

func countUnread(items []Notification) int {
	unread := 0
	for _, item := range items {
		if !item.Read {
			unread++
		}
	}
	return unread
}
