package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/opsdash/internal/identity"
	"github.com/charlesng35/opsdash/internal/middleware"
	"github.com/charlesng35/opsdash/internal/notifications"
	"github.com/charlesng35/opsdash/internal/services"
	"github.com/charlesng35/opsdash/pkg/errors"
	"github.com/charlesng35/opsdash/pkg/response"
)

// NotificationItem is a notification decorated for display.
type NotificationItem struct {
	notifications.Notification
	Badge  string `json:"badge"`
	Target string `json:"target,omitempty"`
}

// DashboardView backs the navbar widget on the role dashboards.
type DashboardView struct {
	Role        identity.Role      `json:"role"`
	UnreadCount int                `json:"unread_count"`
	Recent      []NotificationItem `json:"recent"`
	ViewAllPath string             `json:"view_all_path,omitempty"`
	Error       string             `json:"error,omitempty"`
}

// CenterView backs the full notification center.
type CenterView struct {
	Role          identity.Role      `json:"role"`
	UnreadCount   int                `json:"unread_count"`
	Notifications []NotificationItem `json:"notifications"`
	EmptyMessage  string             `json:"empty_message,omitempty"`
	Error         string             `json:"error,omitempty"`
}

// ViewHandler renders the guarded page view-models. Each request builds a
// fresh Store over the viewer's own rows; pages do not subscribe, clients
// open /api/realtime for live inserts.
type ViewHandler struct {
	service *services.NotificationService
	opts    notifications.Options
}

func NewViewHandler(service *services.NotificationService, opts notifications.Options) *ViewHandler {
	if opts.Cap <= 0 {
		opts.Cap = notifications.CompactCap
	}
	return &ViewHandler{service: service, opts: opts}
}

// Dashboard serves /{role}/dashboard.
func (h *ViewHandler) Dashboard(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	store := h.store(principal, h.opts.Cap)
	view := DashboardView{Role: principal.Role}
	if err := store.Load(requestContext(c), principal.UserID(), store.Cap()); err != nil {
		view.Error = notifications.FetchFailedText
	}
	view.UnreadCount = store.UnreadCount()
	view.Recent = decorate(principal.Role, store.Visible())
	view.ViewAllPath, _ = notifications.ViewAllPath(principal.Role)

	response.Success(c, http.StatusOK, view)
}

// Center serves /{role}/notifications.
func (h *ViewHandler) Center(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	store := h.store(principal, 0)
	view := CenterView{Role: principal.Role}
	if err := store.Load(requestContext(c), principal.UserID(), 0); err != nil {
		view.Error = notifications.FetchFailedText
	}
	view.UnreadCount = store.UnreadCount()
	view.Notifications = decorate(principal.Role, store.Visible())
	if len(view.Notifications) == 0 && view.Error == "" {
		view.EmptyMessage = notifications.EmptyText
	}

	response.Success(c, http.StatusOK, view)
}

// Open serves /{role}/notifications/:id/open and redirects to the record
// the notification references. Opening does not mark it read. Notifications
// without a target fall back to the center.
func (h *ViewHandler) Open(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	store := h.store(principal, 0)
	if err := store.Load(requestContext(c), principal.UserID(), 0); err != nil {
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	center := notifications.Center{Store: store, Role: principal.Role}
	for _, item := range store.Snapshot() {
		if item.ID != id {
			continue
		}
		if target, ok := center.Click(item); ok {
			c.Redirect(http.StatusFound, target)
			return
		}
		fallback, _ := notifications.ViewAllPath(principal.Role)
		c.Redirect(http.StatusFound, fallback)
		return
	}
	response.Error(c, errors.ErrNotFound)
}

func (h *ViewHandler) store(principal identity.Principal, capacity int) *notifications.Store {
	opts := h.opts
	opts.Cap = capacity
	return notifications.NewStore(services.NewLocalBackend(h.service, principal.UserID()), opts)
}

func decorate(role identity.Role, items []notifications.Notification) []NotificationItem {
	out := make([]NotificationItem, 0, len(items))
	for _, item := range items {
		decorated := NotificationItem{Notification: item, Badge: item.Type.BadgeVariant()}
		decorated.Target, _ = notifications.ResolveTarget(role, item.ReferenceType, item.ReferenceID)
		out = append(out, decorated)
	}
	return out
}
