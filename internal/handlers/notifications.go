package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/opsdash/internal/middleware"
	"github.com/charlesng35/opsdash/internal/services"
	"github.com/charlesng35/opsdash/pkg/errors"
	"github.com/charlesng35/opsdash/pkg/response"
)

// maxListLimit caps a single page of notifications.
const maxListLimit = 200

// NotificationHandler exposes HTTP endpoints for notifications.
type NotificationHandler struct {
	service *services.NotificationService
}

// NewNotificationHandler constructs a notification handler.
func NewNotificationHandler(service *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{service: service}
}

// List returns notifications for the current user, newest first. Without a
// limit every row is returned.
func (h *NotificationHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	limit := queryInt(c, "limit", 0)
	if limit < 0 {
		limit = 0
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	ctx := requestContext(c)
	items, err := h.service.ListForUser(ctx, userID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	unread, err := h.service.UnreadCount(ctx, userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	unreadCount := int(unread)
	response.SuccessWithMeta(c, http.StatusOK, items, &response.Meta{
		Total:  len(items),
		Limit:  limit,
		Unread: &unreadCount,
	})
}

type updateNotificationRequest struct {
	Read *bool `json:"read" validate:"required"`
}

// Update sets the read flag of one notification.
func (h *NotificationHandler) Update(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req updateNotificationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	dto, err := h.service.SetRead(requestContext(c), userID, strings.TrimSpace(c.Param("id")), *req.Read)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, dto)
}

// MarkAllRead marks all notifications read.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	updated, err := h.service.MarkAllRead(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"updated": updated})
}

// Clear deletes every notification of the current user.
func (h *NotificationHandler) Clear(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	deleted, err := h.service.ClearAll(requestContext(c), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": deleted})
}

// Delete removes a notification.
func (h *NotificationHandler) Delete(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.service.Delete(requestContext(c), userID, strings.TrimSpace(c.Param("id"))); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

type createNotificationRequest struct {
	UserID        string         `json:"user_id" validate:"required"`
	Title         string         `json:"title" validate:"required,max=255"`
	Message       string         `json:"message"`
	Type          string         `json:"type" validate:"omitempty,notification_type"`
	ReferenceType string         `json:"reference_type" validate:"omitempty,max=32"`
	ReferenceID   string         `json:"reference_id" validate:"omitempty,max=64"`
	Metadata      map[string]any `json:"metadata"`
}

// Create stores a notification for any user. Leaders only.
func (h *NotificationHandler) Create(c *gin.Context) {
	var req createNotificationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	dto, err := h.service.Create(requestContext(c), services.CreateNotificationInput{
		UserID:        req.UserID,
		Title:         req.Title,
		Message:       req.Message,
		Type:          req.Type,
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		Metadata:      req.Metadata,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, dto)
}

func currentUser(c *gin.Context) (string, bool) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return "", false
	}
	return userID, true
}
