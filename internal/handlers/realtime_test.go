package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/opsdash/internal/handlers/testutil"
	"github.com/charlesng35/opsdash/internal/identity"
	"github.com/charlesng35/opsdash/internal/realtime"
	"github.com/charlesng35/opsdash/internal/services"
)

func TestRealtimeStreamDeliversCreatedNotifications(t *testing.T) {
	env := testutil.NewEnv(t)
	user, token := env.LoginAs(identity.Member)

	server := httptest.NewServer(env.Router)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/realtime?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool {
		return env.Hub.ConnectionCount(realtime.StreamNotifications) > 0
	}, time.Second, 5*time.Millisecond)

	svc, err := services.NewNotificationService(env.DB, env.Hub)
	require.NoError(t, err)
	created, err := svc.Create(context.Background(), services.CreateNotificationInput{UserID: user.ID, Title: "Deploy finished"})
	require.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Stream string                            `json:"stream"`
		Event  string                            `json:"event"`
		Data   services.NotificationEventPayload `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, realtime.StreamNotifications, msg.Stream)
	require.Equal(t, realtime.EventNotificationCreated, msg.Event)
	require.NotNil(t, msg.Data.Notification)
	require.Equal(t, created.ID, msg.Data.Notification.ID)
}

func TestRealtimeStreamRejectsBadRequests(t *testing.T) {
	env := testutil.NewEnv(t)
	_, token := env.LoginAs(identity.Member)

	w := env.Request(http.MethodGet, "/api/realtime", nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.Request(http.MethodGet, "/api/realtime?token=not-a-jwt", nil, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.Request(http.MethodGet, "/api/realtime?stream=terminal&token="+token, nil, "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRealtimeStreamAcceptsSessionCookie(t *testing.T) {
	env := testutil.NewEnv(t)
	_, token := env.LoginAs(identity.Leader)

	server := httptest.NewServer(env.Router)
	t.Cleanup(server.Close)

	header := http.Header{}
	header.Set("Cookie", env.Config.Auth.CookieName()+"="+token)
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/realtime?streams=Notifications,notifications"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool {
		return env.Hub.ConnectionCount(realtime.StreamNotifications) == 1
	}, time.Second, 5*time.Millisecond)
}
