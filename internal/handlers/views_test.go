package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/opsdash/internal/handlers"
	"github.com/charlesng35/opsdash/internal/handlers/testutil"
	"github.com/charlesng35/opsdash/internal/identity"
	"github.com/charlesng35/opsdash/internal/notifications"
)

func TestDashboardRedirects(t *testing.T) {
	env := testutil.NewEnv(t)

	w := env.Request(http.MethodGet, "/leader/dashboard", nil, "")
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/signin", w.Header().Get("Location"))

	_, memberToken := env.LoginAs(identity.Member)
	w = env.RequestWithCookie(http.MethodGet, "/leader/dashboard", memberToken)
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/not-found", w.Header().Get("Location"))

	_, guestToken := env.LoginAs(identity.Guest)
	w = env.RequestWithCookie(http.MethodGet, "/member/dashboard", guestToken)
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/signin", w.Header().Get("Location"))
}

func TestDashboardShowsCompactWidget(t *testing.T) {
	env := testutil.NewEnv(t)
	member, token := env.LoginAs(identity.Member)
	seedNotifications(t, env, member.ID, 7)

	w := env.RequestWithCookie(http.MethodGet, "/member/dashboard", token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var view handlers.DashboardView
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &view)
	require.Equal(t, identity.Member, view.Role)
	require.Len(t, view.Recent, notifications.CompactCap)
	require.Equal(t, notifications.CompactCap, view.UnreadCount)
	require.Equal(t, "/member/notifications", view.ViewAllPath)
	require.Empty(t, view.Error)
	for _, item := range view.Recent {
		require.Equal(t, "info", item.Badge)
		require.Equal(t, "/member/projects/view/"+item.ReferenceID, item.Target)
	}
}

func TestCenterShowsEverythingOrEmptyState(t *testing.T) {
	env := testutil.NewEnv(t)
	leader, token := env.LoginAs(identity.Leader)

	w := env.RequestWithCookie(http.MethodGet, "/leader/notifications", token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var empty handlers.CenterView
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &empty)
	require.Empty(t, empty.Notifications)
	require.Equal(t, notifications.EmptyText, empty.EmptyMessage)

	seedNotifications(t, env, leader.ID, 7)
	w = env.RequestWithCookie(http.MethodGet, "/leader/notifications", token)
	var full handlers.CenterView
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &full)
	require.Len(t, full.Notifications, 7)
	require.Equal(t, 7, full.UnreadCount)
	require.Empty(t, full.EmptyMessage)
}

func TestOpenRedirectsWithoutMarkingRead(t *testing.T) {
	env := testutil.NewEnv(t)
	leader, token := env.LoginAs(identity.Leader)
	seeded := seedNotifications(t, env, leader.ID, 1)

	w := env.RequestWithCookie(http.MethodGet, "/leader/notifications/"+seeded[0].ID+"/open", token)
	require.Equal(t, http.StatusFound, w.Code)
	require.Equal(t, "/leader/projects/view/41", w.Header().Get("Location"))

	w = env.Request(http.MethodGet, "/api/notifications", nil, token)
	require.Equal(t, 1, *testutil.DecodeResponse(t, w).Meta.Unread)

	w = env.RequestWithCookie(http.MethodGet, "/leader/notifications/missing/open", token)
	require.Equal(t, http.StatusNotFound, w.Code)
}
