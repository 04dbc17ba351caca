package notifications

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var errBackendDown = errors.New("backend down")

type fakeChannel struct {
	once sync.Once
	done chan struct{}
	mu   sync.Mutex
	err  error
	// closes counts Close calls that reached the transport.
	closes int
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{done: make(chan struct{})}
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	c.closes++
	c.mu.Unlock()
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeChannel) Done() <-chan struct{} { return c.done }

func (c *fakeChannel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *fakeChannel) fail(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	c.once.Do(func() { close(c.done) })
}

type fakeFeed struct {
	fn      InsertFunc
	channel *fakeChannel
}

// fakeBackend keeps server rows in memory and lets tests inject failures.
type fakeBackend struct {
	mu   sync.Mutex
	rows []Notification

	queryErr     error
	updateErr    error
	bulkErr      error
	deleteErr    error
	subscribeErr error

	queries int
	feeds   map[string][]*fakeFeed

	// beforeQuery runs without the lock before each query returns.
	beforeQuery func()
	// beforeBulk runs without the lock before a bulk update returns.
	beforeBulk func()
	// beforeSubscribe runs without the lock before a feed is opened.
	beforeSubscribe func()
}

func newFakeBackend(rows ...Notification) *fakeBackend {
	return &fakeBackend{rows: rows, feeds: make(map[string][]*fakeFeed)}
}

func (b *fakeBackend) QueryNotifications(_ context.Context, userID string, limit int) ([]Notification, error) {
	b.mu.Lock()
	b.queries++
	hook := b.beforeQuery
	err := b.queryErr
	var out []Notification
	for _, row := range b.rows {
		if row.UserID == userID {
			out = append(out, row)
		}
	}
	b.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (b *fakeBackend) UpdateNotification(_ context.Context, id string, patch Patch) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.updateErr != nil {
		return b.updateErr
	}
	for i := range b.rows {
		if b.rows[i].ID == id && patch.Read != nil {
			b.rows[i].Read = *patch.Read
		}
	}
	return nil
}

func (b *fakeBackend) UpdateNotificationsBulk(_ context.Context, userID string, filter Filter, patch Patch) error {
	b.mu.Lock()
	hook := b.beforeBulk
	err := b.bulkErr
	if err == nil {
		for i := range b.rows {
			row := &b.rows[i]
			if row.UserID != userID {
				continue
			}
			if filter.Read != nil && row.Read != *filter.Read {
				continue
			}
			if patch.Read != nil {
				row.Read = *patch.Read
			}
		}
	}
	b.mu.Unlock()

	if hook != nil {
		hook()
	}
	return err
}

func (b *fakeBackend) DeleteNotifications(_ context.Context, userID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.deleteErr != nil {
		return b.deleteErr
	}
	kept := b.rows[:0]
	for _, row := range b.rows {
		if row.UserID != userID {
			kept = append(kept, row)
		}
	}
	b.rows = kept
	return nil
}

func (b *fakeBackend) DeleteNotification(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.deleteErr != nil {
		return b.deleteErr
	}
	for i, row := range b.rows {
		if row.ID == id {
			b.rows = append(b.rows[:i], b.rows[i+1:]...)
			break
		}
	}
	return nil
}

func (b *fakeBackend) SubscribeInserts(_ context.Context, userID string, fn InsertFunc) (Channel, error) {
	b.mu.Lock()
	hook := b.beforeSubscribe
	b.mu.Unlock()
	if hook != nil {
		hook()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subscribeErr != nil {
		return nil, b.subscribeErr
	}
	feed := &fakeFeed{fn: fn, channel: newFakeChannel()}
	b.feeds[userID] = append(b.feeds[userID], feed)
	return feed.channel, nil
}

// insert stores a row server side and pushes it to open feeds, as the data
// service does for realtime inserts.
func (b *fakeBackend) insert(n Notification) {
	b.mu.Lock()
	b.rows = append(b.rows, n)
	feeds := append([]*fakeFeed(nil), b.feeds[n.UserID]...)
	b.mu.Unlock()

	for _, feed := range feeds {
		select {
		case <-feed.channel.Done():
		default:
			feed.fn(n)
		}
	}
}

func (b *fakeBackend) feedCount(userID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.feeds[userID])
}

func (b *fakeBackend) setErrors(fn func(b *fakeBackend)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b)
}

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// record builds an unread notification whose age grows with seq, so lower
// seq means newer.
func record(userID string, seq int) Notification {
	return Notification{
		ID:        fmt.Sprintf("%d", seq),
		UserID:    userID,
		Title:     fmt.Sprintf("Notification %d", seq),
		Message:   "body",
		Type:      KindInfo,
		CreatedAt: baseTime.Add(-time.Duration(seq) * time.Minute),
	}
}

func ids(items []Notification) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return out
}
