package realtime

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/charlesng35/opsdash/pkg/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxControlSize = 4 << 10
)

// control is a frame sent by the client to change its subscriptions.
type control struct {
	Action  string   `json:"action"`
	Streams []string `json:"streams"`
}

// client is one websocket connection. joined and closed are guarded by
// hub.mu; send is closed exactly once, under that lock, on leave.
type client struct {
	hub     *Hub
	socket  *websocket.Conn
	userID  string
	allowed map[string]struct{}

	joined map[string]struct{}
	closed bool
	send   chan Message

	closeOnce sync.Once
}

// deliver runs with hub.mu held for reading.
func (c *client) deliver(message Message) {
	if c.closed {
		return
	}
	select {
	case c.send <- message:
	default:
		c.hub.log.Warn("dropping slow realtime client", zap.String("user_id", c.userID))
		go c.close()
	}
}

func (c *client) join(streams []string) {
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	if c.closed {
		return
	}
	for _, stream := range uniqueStreams(streams) {
		if !c.permits(stream) {
			c.hub.log.Debug("ignoring unauthorized stream", zap.String("stream", stream), zap.String("user_id", c.userID))
			continue
		}
		if _, ok := c.joined[stream]; ok {
			continue
		}
		c.joined[stream] = struct{}{}
		c.hub.attachLocked(topic{stream, c.userID}, c)
	}
}

func (c *client) part(streams []string) {
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	for _, stream := range uniqueStreams(streams) {
		if _, ok := c.joined[stream]; !ok {
			continue
		}
		delete(c.joined, stream)
		c.hub.detachLocked(topic{stream, c.userID}, c)
	}
}

func (c *client) leave() {
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	for stream := range c.joined {
		c.hub.detachLocked(topic{stream, c.userID}, c)
	}
	c.joined = nil
	c.closed = true
	close(c.send)
}

func (c *client) permits(stream string) bool {
	if len(c.allowed) == 0 {
		return true
	}
	_, ok := c.allowed[stream]
	return ok
}

func (c *client) readPump() {
	defer c.close()

	c.socket.SetReadLimit(maxControlSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		return c.socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.hub.log.Debug("unexpected websocket close", zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}
		if len(payload) == 0 {
			continue
		}

		var ctrl control
		if err := json.Unmarshal(payload, &ctrl); err != nil {
			c.hub.log.Debug("invalid control frame", zap.String("user_id", c.userID), zap.Error(err))
			continue
		}

		switch strings.ToLower(strings.TrimSpace(ctrl.Action)) {
		case "subscribe":
			c.join(ctrl.Streams)
		case "unsubscribe":
			c.part(ctrl.Streams)
		case "ping":
			c.hub.mu.RLock()
			c.deliver(Message{Event: "pong"})
			c.hub.mu.RUnlock()
		default:
			c.hub.log.Debug("unsupported control action", zap.String("action", ctrl.Action), zap.String("user_id", c.userID))
		}
	}
}

func (c *client) writePump() {
	defer c.close()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.socket.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		c.leave()
		metrics.RealtimeConnections.Dec()
		_ = c.socket.Close()
	})
}
