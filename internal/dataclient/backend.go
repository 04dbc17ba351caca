package dataclient

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/charlesng35/opsdash/internal/notifications"
)

const (
	streamNotifications      = "notifications"
	eventNotificationCreated = "notification.created"

	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	writeWait  = 10 * time.Second
)

var _ notifications.Backend = (*Client)(nil)

// QueryNotifications implements notifications.Backend. The server scopes the
// list to the signed-in user.
func (c *Client) QueryNotifications(ctx context.Context, userID string, limit int) ([]notifications.Notification, error) {
	path := "/api/notifications"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var items []notifications.Notification
	if err := c.do(ctx, http.MethodGet, path, nil, &items, nil); err != nil {
		return nil, err
	}
	for _, item := range items {
		if item.UserID != userID {
			return nil, errors.New("dataclient: server returned notifications for another user")
		}
	}
	return items, nil
}

func (c *Client) UpdateNotification(ctx context.Context, id string, patch notifications.Patch) error {
	if patch.Read == nil {
		return nil
	}
	return c.do(ctx, http.MethodPatch, "/api/notifications/"+url.PathEscape(id), patch, nil, nil)
}

// UpdateNotificationsBulk supports marking every unread record read; other
// patches return notifications.ErrUnsupportedPatch.
func (c *Client) UpdateNotificationsBulk(ctx context.Context, userID string, filter notifications.Filter, patch notifications.Patch) error {
	if patch.Read == nil {
		return nil
	}
	if !notifications.BulkMarksRead(filter, patch) {
		return notifications.ErrUnsupportedPatch
	}
	return c.do(ctx, http.MethodPost, "/api/notifications/read-all", nil, nil, nil)
}

func (c *Client) DeleteNotifications(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodDelete, "/api/notifications", nil, nil, nil)
}

func (c *Client) DeleteNotification(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/notifications/"+url.PathEscape(id), nil, nil, nil)
}

// realtimeMessage mirrors the hub's websocket frames.
type realtimeMessage struct {
	Stream string `json:"stream"`
	Event  string `json:"event"`
	Data   struct {
		Notification *notifications.Notification `json:"notification"`
	} `json:"data"`
}

// SubscribeInserts dials the realtime endpoint and forwards
// notification.created events for userID to fn.
func (c *Client) SubscribeInserts(ctx context.Context, userID string, fn notifications.InsertFunc) (notifications.Channel, error) {
	token := c.Tokens().AccessToken
	if token == "" {
		return nil, ErrNoCredentials
	}

	endpoint, err := c.realtimeURL(token)
	if err != nil {
		return nil, err
	}
	conn, resp, err := c.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return nil, &APIError{Status: resp.StatusCode, Message: "websocket handshake rejected"}
		}
		return nil, err
	}

	feed := newWSChannel(conn, c.log.With(zap.String("user_id", userID)))
	go feed.readLoop(userID, fn)
	go feed.pingLoop()
	return feed, nil
}

func (c *Client) realtimeURL(token string) (string, error) {
	u, err := url.Parse(c.baseURL + "/api/realtime")
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("token", token)
	q.Set("stream", streamNotifications)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// wsChannel is an open websocket feed.
type wsChannel struct {
	conn *websocket.Conn
	log  *zap.Logger

	writeMu sync.Mutex

	mu     sync.Mutex
	err    error
	closed bool

	once sync.Once
	done chan struct{}
}

func newWSChannel(conn *websocket.Conn, log *zap.Logger) *wsChannel {
	return &wsChannel{conn: conn, log: log, done: make(chan struct{})}
}

func (w *wsChannel) Done() <-chan struct{} { return w.done }

func (w *wsChannel) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Close stops the feed. Err stays nil after a caller-initiated close.
func (w *wsChannel) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	w.writeMu.Lock()
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	w.writeMu.Unlock()

	err := w.conn.Close()
	w.finish(nil)
	return err
}

// finish records the first failure and closes Done. A nil err never
// overwrites an earlier failure.
func (w *wsChannel) finish(err error) {
	w.mu.Lock()
	if w.err == nil {
		w.err = err
	}
	w.closed = true
	w.mu.Unlock()
	w.once.Do(func() { close(w.done) })
}

func (w *wsChannel) readLoop(userID string, fn notifications.InsertFunc) {
	_ = w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		return w.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg realtimeMessage
		if err := w.conn.ReadJSON(&msg); err != nil {
			w.mu.Lock()
			closing := w.closed
			w.mu.Unlock()
			if closing || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				w.finish(nil)
			} else {
				w.log.Warn("realtime feed dropped", zap.Error(err))
				w.finish(err)
			}
			return
		}
		if msg.Event != eventNotificationCreated || msg.Data.Notification == nil {
			continue
		}
		if !strings.EqualFold(msg.Stream, streamNotifications) || msg.Data.Notification.UserID != userID {
			continue
		}
		fn(*msg.Data.Notification)
	}
}

func (w *wsChannel) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.writeMu.Lock()
			err := w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			w.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
