package notifications

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/opsdash/pkg/logger"
)

const (
	// CompactCap bounds the navbar widget.
	CompactCap = 5
	// DefaultFlashWindow is how long the new-notification alert stays visible.
	DefaultFlashWindow = 2500 * time.Millisecond
	// AlertText is shown after a realtime insertion.
	AlertText = "New notification received"
	// EmptyText is shown by the full center when the user has no records.
	EmptyText = "No notifications yet."
	// FetchFailedText replaces the list when the initial load failed.
	FetchFailedText = "Unable to load notifications."
)

// Options configures a Store.
type Options struct {
	// Cap bounds the visible sequence; zero or less shows every record.
	Cap         int
	FlashWindow time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Store holds one widget's notification feed for one user. All methods are
// safe for concurrent use. Backend calls are made without the lock held and
// their results are dropped if the store was unmounted or switched users in
// the meantime.
type Store struct {
	backend     Backend
	cap         int
	flashWindow time.Duration
	now         func() time.Time
	log         *zap.Logger

	mu         sync.Mutex
	userID     string
	generation uint64
	limit      int
	items      []Notification
	unread     int
	loadErr    error
	alertAt    time.Time
	sub        *Subscription

	changes chan struct{}
}

// NewStore returns an empty Store.
func NewStore(backend Backend, opts Options) *Store {
	if opts.FlashWindow <= 0 {
		opts.FlashWindow = DefaultFlashWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		backend:     backend,
		cap:         opts.Cap,
		flashWindow: opts.FlashWindow,
		now:         opts.Now,
		log:         logger.WithModule("notifications"),
		changes:     make(chan struct{}, 1),
	}
}

// Changes signals after every state change. Signals coalesce; readers should
// take a fresh Snapshot when woken.
func (s *Store) Changes() <-chan struct{} { return s.changes }

// Cap returns the configured cap.
func (s *Store) Cap() int { return s.cap }

// UserID returns the loaded user, empty before Load.
func (s *Store) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Snapshot returns a copy of the held sequence, newest first.
func (s *Store) Snapshot() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notification, len(s.items))
	copy(out, s.items)
	return out
}

// Visible returns the held sequence truncated to the cap. A realtime insert
// is always visible because it lands at the head and evicts the oldest
// visible record.
func (s *Store) Visible() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.items)
	if s.cap > 0 && n > s.cap {
		n = s.cap
	}
	out := make([]Notification, n)
	copy(out, s.items[:n])
	return out
}

// UnreadCount returns the number of held records with read=false, visible
// or not.
func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// Err returns the last load error, nil after a successful load.
func (s *Store) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadErr
}

// Alert returns the transient alert text while it is within its window.
func (s *Store) Alert(now time.Time) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.alertAt.IsZero() || now.Sub(s.alertAt) >= s.flashWindow {
		return "", false
	}
	return AlertText, true
}

// Load replaces the held records with the user's notifications. A limit of
// zero or less loads everything. On failure the store is left empty and a
// *FetchError is returned; there is no retry.
func (s *Store) Load(ctx context.Context, userID string, limit int) error {
	_, err := s.load(ctx, strings.TrimSpace(userID), limit)
	return err
}

// load returns the generation it ran under so callers can tell whether the
// store moved on while the query was in flight.
func (s *Store) load(ctx context.Context, userID string, limit int) (uint64, error) {
	if userID == "" {
		return 0, &FetchError{Err: ErrNotLoaded}
	}

	s.mu.Lock()
	if s.userID != userID {
		s.generation++
		s.userID = userID
		s.items = nil
		s.alertAt = time.Time{}
		s.recountLocked()
	}
	s.limit = limit
	gen := s.generation
	s.mu.Unlock()

	items, err := s.backend.QueryNotifications(ctx, userID, limit)

	s.mu.Lock()
	if !s.currentLocked(gen, userID) {
		s.mu.Unlock()
		s.log.Debug("discarding stale load", zap.String("user_id", userID))
		return gen, nil
	}
	if err != nil {
		s.items = nil
		s.loadErr = &FetchError{UserID: userID, Err: err}
		s.recountLocked()
		loadErr := s.loadErr
		s.mu.Unlock()
		s.notify()
		s.log.Warn("notification fetch failed", zap.String("user_id", userID), zap.Error(err))
		return gen, loadErr
	}
	s.items = s.normalizeLocked(items, limit)
	s.loadErr = nil
	s.recountLocked()
	s.mu.Unlock()

	s.notify()
	return gen, nil
}

// ApplyInsert places n at its created_at position, replacing any held record
// with the same id.
func (s *Store) ApplyInsert(n Notification) {
	s.mu.Lock()
	applied := s.insertLocked(n)
	s.mu.Unlock()
	if applied {
		s.notify()
	}
}

func (s *Store) applyRealtime(gen uint64, userID string, n Notification) {
	s.mu.Lock()
	if !s.currentLocked(gen, userID) || s.userID == "" {
		s.mu.Unlock()
		return
	}
	applied := s.insertLocked(n)
	if applied {
		s.alertAt = s.now()
	}
	s.mu.Unlock()
	if applied {
		s.notify()
	}
}

func (s *Store) insertLocked(n Notification) bool {
	if n.ID == "" {
		return false
	}
	if s.userID != "" && n.UserID != "" && n.UserID != s.userID {
		return false
	}

	items := make([]Notification, 0, len(s.items)+1)
	for _, item := range s.items {
		if item.ID != n.ID {
			items = append(items, item)
		}
	}

	pos := len(items)
	for i, item := range items {
		if !item.CreatedAt.After(n.CreatedAt) {
			pos = i
			break
		}
	}
	items = append(items, Notification{})
	copy(items[pos+1:], items[pos:])
	items[pos] = n

	s.items = items
	s.recountLocked()
	return true
}

// ToggleRead flips the read flag of exactly one record, optimistically.
func (s *Store) ToggleRead(ctx context.Context, id string) error {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return &MutationError{Op: "toggle_read", ID: id, Err: ErrUnknownNotification}
	}
	previous := s.items[idx].Read
	next := !previous
	s.items[idx].Read = next
	s.recountLocked()
	gen, userID := s.generation, s.userID
	s.mu.Unlock()
	s.notify()

	err := s.backend.UpdateNotification(ctx, id, Patch{Read: boolPtr(next)})
	if err == nil {
		return nil
	}
	reverted := s.reconcile(ctx, gen, userID, func() {
		if i := s.indexLocked(id); i >= 0 && s.items[i].Read == next {
			s.items[i].Read = previous
		}
	})
	return &MutationError{Op: "toggle_read", ID: id, Reverted: reverted, Err: err}
}

// MarkAllRead marks every held unread record read in one pass and asks the
// server to mark all of the user's unread rows. Records inserted while the
// request is in flight stay unread.
func (s *Store) MarkAllRead(ctx context.Context) error {
	s.mu.Lock()
	if s.userID == "" {
		s.mu.Unlock()
		return &MutationError{Op: "mark_all_read", Err: ErrNotLoaded}
	}
	touched := make(map[string]struct{})
	for i := range s.items {
		if !s.items[i].Read {
			s.items[i].Read = true
			touched[s.items[i].ID] = struct{}{}
		}
	}
	s.recountLocked()
	gen, userID := s.generation, s.userID
	s.mu.Unlock()
	s.notify()

	err := s.backend.UpdateNotificationsBulk(ctx, userID, Filter{Read: boolPtr(false)}, Patch{Read: boolPtr(true)})
	if err == nil {
		return nil
	}
	reverted := s.reconcile(ctx, gen, userID, func() {
		for i := range s.items {
			if _, ok := touched[s.items[i].ID]; ok && s.items[i].Read {
				s.items[i].Read = false
			}
		}
	})
	return &MutationError{Op: "mark_all_read", Reverted: reverted, Err: err}
}

// ClearAll empties the store and deletes every server row for the user.
func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	if s.userID == "" {
		s.mu.Unlock()
		return &MutationError{Op: "clear_all", Err: ErrNotLoaded}
	}
	removed := s.items
	s.items = nil
	s.recountLocked()
	gen, userID := s.generation, s.userID
	s.mu.Unlock()
	s.notify()

	err := s.backend.DeleteNotifications(ctx, userID)
	if err == nil {
		return nil
	}
	reverted := s.reconcile(ctx, gen, userID, func() {
		s.restoreLocked(removed)
	})
	return &MutationError{Op: "clear_all", Reverted: reverted, Err: err}
}

// Remove deletes a single record.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return &MutationError{Op: "delete", ID: id, Err: ErrUnknownNotification}
	}
	removed := s.items[idx]
	s.items = append(s.items[:idx:idx], s.items[idx+1:]...)
	s.recountLocked()
	gen, userID := s.generation, s.userID
	s.mu.Unlock()
	s.notify()

	err := s.backend.DeleteNotification(ctx, id)
	if err == nil {
		return nil
	}
	reverted := s.reconcile(ctx, gen, userID, func() {
		s.restoreLocked([]Notification{removed})
	})
	return &MutationError{Op: "delete", ID: id, Reverted: reverted, Err: err}
}

// reconcile refetches after a failed mutation. When the refetch fails too,
// revert runs under the lock to undo only what the mutation touched. It
// reports whether the revert path was taken.
func (s *Store) reconcile(ctx context.Context, gen uint64, userID string, revert func()) bool {
	s.mu.Lock()
	limit := s.limit
	s.mu.Unlock()

	items, err := s.backend.QueryNotifications(ctx, userID, limit)

	s.mu.Lock()
	if !s.currentLocked(gen, userID) {
		s.mu.Unlock()
		return false
	}
	reverted := false
	if err != nil {
		revert()
		reverted = true
		s.log.Warn("refetch after failed write also failed, rolled back local change",
			zap.String("user_id", userID), zap.Error(err))
	} else {
		s.items = s.normalizeLocked(items, limit)
	}
	s.recountLocked()
	s.mu.Unlock()

	s.notify()
	return reverted
}

// Mount loads the user's feed and opens its realtime subscription. Any
// previous mount is released first. Load and subscribe failures are both
// reported; either one leaves the other in place. If the store is unmounted
// before Mount finishes, nothing is subscribed.
//
// The feed is queried before the subscription opens, so a row committed in
// between only shows up on the next reload.
func (s *Store) Mount(ctx context.Context, subscriber *Subscriber, userID string) error {
	s.Unmount()

	userID = strings.TrimSpace(userID)
	gen, loadErr := s.load(ctx, userID, s.cap)
	if !s.current(gen, userID) {
		return loadErr
	}

	sub, subErr := subscriber.Subscribe(ctx, userID, func(n Notification) {
		s.applyRealtime(gen, userID, n)
	})
	if subErr != nil {
		return multierr.Combine(loadErr, subErr)
	}

	s.mu.Lock()
	if !s.currentLocked(gen, userID) {
		s.mu.Unlock()
		_ = sub.Close()
		return loadErr
	}
	s.sub = sub
	s.mu.Unlock()
	return loadErr
}

// Unmount closes the subscription and invalidates in-flight results. It is
// safe to call more than once.
func (s *Store) Unmount() {
	s.mu.Lock()
	s.generation++
	sub := s.sub
	s.sub = nil
	s.userID = ""
	s.mu.Unlock()

	if sub != nil {
		if err := sub.Close(); err != nil {
			s.log.Debug("closing subscription", zap.Error(err))
		}
	}
}

// Subscription returns the active subscription, nil when not mounted.
func (s *Store) Subscription() *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sub
}

// restoreLocked merges records back in without dropping anything inserted
// since they were removed.
func (s *Store) restoreLocked(records []Notification) {
	held := make(map[string]struct{}, len(s.items))
	for _, item := range s.items {
		held[item.ID] = struct{}{}
	}
	merged := append([]Notification(nil), s.items...)
	for _, record := range records {
		if _, ok := held[record.ID]; !ok {
			merged = append(merged, record)
		}
	}
	s.items = s.normalizeLocked(merged, 0)
}

func (s *Store) normalizeLocked(items []Notification, limit int) []Notification {
	out := make([]Notification, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if _, dup := seen[item.ID]; dup {
			continue
		}
		seen[item.ID] = struct{}{}
		out = append(out, item)
	}
	sortNewestFirst(out)

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Store) indexLocked(id string) int {
	for i, item := range s.items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) current(gen uint64, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked(gen, userID)
}

func (s *Store) currentLocked(gen uint64, userID string) bool {
	return gen == s.generation && userID == s.userID
}

func (s *Store) recountLocked() {
	s.unread = countUnread(s.items)
}

func (s *Store) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}
