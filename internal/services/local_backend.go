package services

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/charlesng35/opsdash/internal/notifications"
	"github.com/charlesng35/opsdash/internal/realtime"
)

// LocalBackend serves a notifications.Store from the in-process
// NotificationService. Row-level calls are scoped to the viewer it was built
// for, so one viewer cannot touch another's notifications.
type LocalBackend struct {
	svc    *NotificationService
	viewer string
}

// NewLocalBackend binds the service to viewerID.
func NewLocalBackend(svc *NotificationService, viewerID string) *LocalBackend {
	return &LocalBackend{svc: svc, viewer: strings.TrimSpace(viewerID)}
}

var _ notifications.Backend = (*LocalBackend)(nil)

func (b *LocalBackend) QueryNotifications(ctx context.Context, userID string, limit int) ([]notifications.Notification, error) {
	if err := b.owns(userID); err != nil {
		return nil, err
	}
	rows, err := b.svc.ListForUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]notifications.Notification, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Notification())
	}
	return out, nil
}

func (b *LocalBackend) UpdateNotification(ctx context.Context, id string, patch notifications.Patch) error {
	if patch.Read == nil {
		return nil
	}
	_, err := b.svc.SetRead(ctx, b.viewer, id, *patch.Read)
	return err
}

func (b *LocalBackend) UpdateNotificationsBulk(ctx context.Context, userID string, filter notifications.Filter, patch notifications.Patch) error {
	if err := b.owns(userID); err != nil {
		return err
	}
	if patch.Read == nil {
		return nil
	}
	// Marking read rows read again is a no-op, so a nil filter and read=false
	// both reduce to MarkAllRead.
	if !notifications.BulkMarksRead(filter, patch) {
		return notifications.ErrUnsupportedPatch
	}
	_, err := b.svc.MarkAllRead(ctx, userID)
	return err
}

func (b *LocalBackend) DeleteNotifications(ctx context.Context, userID string) error {
	if err := b.owns(userID); err != nil {
		return err
	}
	_, err := b.svc.ClearAll(ctx, userID)
	return err
}

func (b *LocalBackend) DeleteNotification(ctx context.Context, id string) error {
	return b.svc.Delete(ctx, b.viewer, id)
}

// SubscribeInserts listens on the hub's notifications stream and forwards
// notification.created events for userID.
func (b *LocalBackend) SubscribeInserts(ctx context.Context, userID string, fn notifications.InsertFunc) (notifications.Channel, error) {
	if err := b.owns(userID); err != nil {
		return nil, err
	}
	if err := ensureContext(ctx).Err(); err != nil {
		return nil, err
	}
	hub := b.svc.Hub()
	if hub == nil {
		return nil, errors.New("notification backend: realtime hub is not configured")
	}

	stop := hub.Listen(realtime.StreamNotifications, userID, func(message realtime.Message) {
		if message.Event != realtime.EventNotificationCreated {
			return
		}
		payload, ok := message.Data.(*NotificationEventPayload)
		if !ok || payload.Notification == nil {
			return
		}
		fn(payload.Notification.Notification())
	})
	return newListenerChannel(stop), nil
}

func (b *LocalBackend) owns(userID string) error {
	if b.viewer == "" || userID != b.viewer {
		return ErrForbiddenViewer
	}
	return nil
}

// ErrForbiddenViewer reports a call for a user other than the bound viewer.
var ErrForbiddenViewer = errors.New("notification backend: user does not match viewer")

type listenerChannel struct {
	stop func()
	once sync.Once
	done chan struct{}
}

func newListenerChannel(stop func()) *listenerChannel {
	return &listenerChannel{stop: stop, done: make(chan struct{})}
}

func (c *listenerChannel) Close() error {
	c.once.Do(func() {
		c.stop()
		close(c.done)
	})
	return nil
}

func (c *listenerChannel) Done() <-chan struct{} { return c.done }

// Err is always nil; an in-process listener has no transport to fail.
func (c *listenerChannel) Err() error { return nil }
