package realtime

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/charlesng35/opsdash/pkg/logger"
	"github.com/charlesng35/opsdash/pkg/metrics"
)

const defaultBufferSize = 64

// Message is the JSON frame delivered to subscribers.
type Message struct {
	Stream string         `json:"stream"`
	Event  string         `json:"event"`
	Data   any            `json:"data,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// Listener receives messages in-process on its own goroutine. It may block
// without stalling the hub; messages beyond its buffer are dropped.
type Listener func(Message)

// sink is anything the hub can hand a message to. deliver must not block.
type sink interface {
	deliver(Message)
}

type topic struct {
	stream string
	userID string
}

// Hub routes user-scoped stream events to websocket clients and in-process
// listeners. Every sink for a topic sees messages in broadcast order.
type Hub struct {
	mu     sync.RWMutex
	topics map[topic]map[sink]struct{}

	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewHub constructs an empty hub.
func NewHub() *Hub {
	return &Hub{
		topics: make(map[topic]map[sink]struct{}),
		log:    logger.WithModule("realtime"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     sameOriginOrLoopback,
		},
	}
}

// Serve upgrades the request and blocks until the client goes away. The
// client starts on streams; allowed limits what it may subscribe to later,
// nil meaning any stream.
func (h *Hub) Serve(userID string, streams []string, allowed map[string]struct{}, w http.ResponseWriter, r *http.Request) {
	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	c := &client{
		hub:     h,
		socket:  socket,
		userID:  userID,
		allowed: allowed,
		joined:  make(map[string]struct{}),
		send:    make(chan Message, defaultBufferSize),
	}
	metrics.RealtimeConnections.Inc()
	c.join(streams)

	go c.writePump()
	c.readPump()
}

// BroadcastToUser sends message on stream to every sink of userID.
func (h *Hub) BroadcastToUser(stream, userID string, message Message) {
	stream = normalizeStream(stream)
	if stream == "" || userID == "" {
		return
	}
	message.Stream = stream

	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.topics[topic{stream, userID}] {
		s.deliver(message)
	}
}

// Listen registers fn for messages on stream addressed to userID. The
// returned stop function unregisters it; calling it again is a no-op.
func (h *Hub) Listen(stream, userID string, fn Listener) (stop func()) {
	t := topic{normalizeStream(stream), userID}
	l := &listener{fn: fn, queue: make(chan Message, defaultBufferSize), done: make(chan struct{}), log: h.log}

	h.mu.Lock()
	h.attachLocked(t, l)
	h.mu.Unlock()

	go l.run()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			h.detachLocked(t, l)
			h.mu.Unlock()
			close(l.done)
		})
	}
}

// ConnectionCount returns how many websocket clients are joined to stream.
func (h *Hub) ConnectionCount(stream string) int {
	stream = normalizeStream(stream)

	h.mu.RLock()
	defer h.mu.RUnlock()
	count := 0
	for t, sinks := range h.topics {
		if t.stream != stream {
			continue
		}
		for s := range sinks {
			if _, ok := s.(*client); ok {
				count++
			}
		}
	}
	return count
}

func (h *Hub) attachLocked(t topic, s sink) {
	sinks := h.topics[t]
	if sinks == nil {
		sinks = make(map[sink]struct{})
		h.topics[t] = sinks
	}
	sinks[s] = struct{}{}
}

func (h *Hub) detachLocked(t topic, s sink) {
	sinks := h.topics[t]
	delete(sinks, s)
	if len(sinks) == 0 {
		delete(h.topics, t)
	}
}

type listener struct {
	fn    Listener
	queue chan Message
	done  chan struct{}
	log   *zap.Logger
}

func (l *listener) deliver(message Message) {
	select {
	case <-l.done:
	case l.queue <- message:
	default:
		l.log.Warn("dropping message for slow listener", zap.String("event", message.Event))
	}
}

func (l *listener) run() {
	for {
		select {
		case <-l.done:
			return
		case message := <-l.queue:
			// stop may have raced the dequeue.
			select {
			case <-l.done:
				return
			default:
			}
			l.fn(message)
		}
	}
}

func normalizeStream(stream string) string {
	return strings.ToLower(strings.TrimSpace(stream))
}

func uniqueStreams(streams []string) []string {
	seen := make(map[string]struct{}, len(streams))
	out := make([]string, 0, len(streams))
	for _, stream := range streams {
		stream = normalizeStream(stream)
		if stream == "" {
			continue
		}
		if _, dup := seen[stream]; dup {
			continue
		}
		seen[stream] = struct{}{}
		out = append(out, stream)
	}
	return out
}
