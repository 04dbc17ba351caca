package notifications

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/charlesng35/opsdash/pkg/logger"
)

// Subscriber opens insert feeds on a Backend.
type Subscriber struct {
	backend Backend
	log     *zap.Logger
}

// NewSubscriber returns a Subscriber over backend.
func NewSubscriber(backend Backend) *Subscriber {
	return &Subscriber{backend: backend, log: logger.WithModule("notifications")}
}

// Subscription is one open insert feed. Inserts are queued as they arrive and
// handed to onInsert one at a time, in arrival order, from a single goroutine.
type Subscription struct {
	userID   string
	onInsert InsertFunc
	log      *zap.Logger

	mu      sync.Mutex
	pending []Notification
	closed  bool
	err     error
	channel Channel

	// deliver is held while onInsert runs so Close can wait it out.
	deliver sync.Mutex

	wake      chan struct{}
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Subscribe opens exactly one feed for userID. onInsert must not call Close
// on the same subscription.
func (s *Subscriber) Subscribe(ctx context.Context, userID string, onInsert InsertFunc) (*Subscription, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, &SubscriptionError{Err: ErrNotLoaded}
	}

	sub := &Subscription{
		userID:   userID,
		onInsert: onInsert,
		log:      s.log.With(zap.String("user_id", userID)),
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go sub.drain()

	channel, err := s.backend.SubscribeInserts(ctx, userID, sub.enqueue)
	if err != nil {
		sub.shutdown()
		s.log.Warn("realtime subscription failed", zap.String("user_id", userID), zap.Error(err))
		return nil, &SubscriptionError{UserID: userID, Err: err}
	}

	sub.mu.Lock()
	sub.channel = channel
	sub.mu.Unlock()

	go sub.watch(channel)
	return sub, nil
}

// UserID returns the user the feed is filtered to.
func (s *Subscription) UserID() string { return s.userID }

// Done is closed once the subscription stops delivering.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err reports a transport failure, nil if the feed is open or was closed.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close tears the feed down. No callback starts after Close returns, and
// queued inserts are dropped. Closing again is a no-op.
func (s *Subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.pending = nil
		channel := s.channel
		s.mu.Unlock()

		close(s.stop)
		if channel != nil {
			err = channel.Close()
		}

		// Wait out a callback that is already running.
		s.deliver.Lock()
		s.deliver.Unlock() //nolint:staticcheck
	})
	return err
}

func (s *Subscription) enqueue(n Notification) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if n.UserID != "" && n.UserID != s.userID {
		s.mu.Unlock()
		return
	}
	s.pending = append(s.pending, n)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) next() (Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(s.pending) == 0 {
		return Notification{}, false
	}
	n := s.pending[0]
	s.pending = s.pending[1:]
	return n, true
}

func (s *Subscription) drain() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case <-s.wake:
		}

		for {
			n, ok := s.next()
			if !ok {
				break
			}
			s.deliver.Lock()
			if s.isClosed() {
				s.deliver.Unlock()
				return
			}
			if s.onInsert != nil {
				s.onInsert(n)
			}
			s.deliver.Unlock()
		}
	}
}

func (s *Subscription) watch(channel Channel) {
	select {
	case <-s.stop:
	case <-channel.Done():
		if err := channel.Err(); err != nil && !s.isClosed() {
			s.mu.Lock()
			s.err = &SubscriptionError{UserID: s.userID, Err: err}
			s.mu.Unlock()
			s.log.Warn("realtime feed dropped, updates will be missed", zap.Error(err))
		}
	}
}

func (s *Subscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Subscription) shutdown() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.stop)
	})
}
