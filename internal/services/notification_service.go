package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/opsdash/internal/models"
	"github.com/charlesng35/opsdash/internal/notifications"
	"github.com/charlesng35/opsdash/internal/realtime"
	apperrors "github.com/charlesng35/opsdash/pkg/errors"
	"github.com/charlesng35/opsdash/pkg/metrics"
)

// NotificationDTO is the wire form of a notification. Its field names match
// notifications.Notification so clients can decode either.
type NotificationDTO struct {
	ID            string         `json:"id"`
	UserID        string         `json:"user_id"`
	Title         string         `json:"title"`
	Message       string         `json:"message"`
	Type          string         `json:"type"`
	Read          bool           `json:"read"`
	ReferenceType string         `json:"reference_type,omitempty"`
	ReferenceID   string         `json:"reference_id,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Notification converts the DTO to the client projection.
func (d NotificationDTO) Notification() notifications.Notification {
	return notifications.Notification{
		ID:            d.ID,
		UserID:        d.UserID,
		Title:         d.Title,
		Message:       d.Message,
		Type:          notifications.Kind(d.Type),
		Read:          d.Read,
		ReferenceType: d.ReferenceType,
		ReferenceID:   d.ReferenceID,
		CreatedAt:     d.CreatedAt,
	}
}

// CreateNotificationInput defines attributes required to persist a notification.
type CreateNotificationInput struct {
	UserID        string
	Title         string
	Message       string
	Type          string
	ReferenceType string
	ReferenceID   string
	Metadata      map[string]any
}

// NotificationEventPayload is the data of realtime notification events.
type NotificationEventPayload struct {
	Notification   *NotificationDTO `json:"notification,omitempty"`
	NotificationID string           `json:"notification_id,omitempty"`
}

// NotificationService stores notifications and publishes changes on the
// realtime hub.
type NotificationService struct {
	db  *gorm.DB
	hub *realtime.Hub
}

// NewNotificationService constructs a NotificationService. hub may be nil.
func NewNotificationService(db *gorm.DB, hub *realtime.Hub) (*NotificationService, error) {
	if db == nil {
		return nil, errors.New("notification service: db is required")
	}
	return &NotificationService{db: db, hub: hub}, nil
}

// Hub returns the realtime hub events are published on.
func (s *NotificationService) Hub() *realtime.Hub { return s.hub }

// ListForUser returns the user's notifications newest first. A limit of zero
// or less returns every row.
func (s *NotificationService) ListForUser(ctx context.Context, userID string, limit int) ([]NotificationDTO, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("notification service: user id is required")
	}

	query := s.db.WithContext(ensureContext(ctx)).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []models.Notification
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("notification service: list notifications: %w", err)
	}
	return mapNotificationRows(rows), nil
}

// UnreadCount counts the user's unread notifications.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	var count int64
	if err := s.db.WithContext(ensureContext(ctx)).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("notification service: count unread: %w", err)
	}
	return count, nil
}

// Create persists a notification and broadcasts notification.created.
func (s *NotificationService) Create(ctx context.Context, input CreateNotificationInput) (*NotificationDTO, error) {
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return nil, apperrors.NewBadRequest("user_id is required")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, apperrors.NewBadRequest("title is required")
	}
	kind := notifications.Kind(strings.ToLower(defaultIfEmpty(input.Type, string(notifications.KindInfo))))
	if !kind.Valid() {
		return nil, apperrors.NewBadRequest("type must be one of info, success, warning, error")
	}

	notification := models.Notification{
		UserID:        userID,
		Title:         title,
		Message:       strings.TrimSpace(input.Message),
		Type:          string(kind),
		ReferenceType: optionalString(strings.ToLower(input.ReferenceType)),
		ReferenceID:   optionalString(input.ReferenceID),
	}
	if input.Metadata != nil {
		data, err := json.Marshal(input.Metadata)
		if err != nil {
			return nil, fmt.Errorf("notification service: marshal metadata: %w", err)
		}
		notification.Metadata = datatypes.JSON(data)
	}

	if err := s.db.WithContext(ensureContext(ctx)).Create(&notification).Error; err != nil {
		return nil, fmt.Errorf("notification service: create notification: %w", err)
	}
	metrics.NotificationEvents.WithLabelValues("created").Inc()

	dto := mapNotification(notification)
	s.broadcast(userID, realtime.EventNotificationCreated, &NotificationEventPayload{Notification: &dto})
	return &dto, nil
}

// SetRead updates the read flag of one notification owned by userID.
func (s *NotificationService) SetRead(ctx context.Context, userID, notificationID string, read bool) (*NotificationDTO, error) {
	ctx = ensureContext(ctx)

	var notification models.Notification
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Take(&notification).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("notification service: load notification: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&notification).Update("is_read", read).Error; err != nil {
		return nil, fmt.Errorf("notification service: update read flag: %w", err)
	}
	notification.Read = read
	metrics.NotificationEvents.WithLabelValues("updated").Inc()

	dto := mapNotification(notification)
	s.broadcast(userID, realtime.EventNotificationUpdated, &NotificationEventPayload{Notification: &dto, NotificationID: dto.ID})
	return &dto, nil
}

// MarkAllRead marks every unread notification of the user read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	result := s.db.WithContext(ensureContext(ctx)).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	if result.Error != nil {
		return 0, fmt.Errorf("notification service: mark all read: %w", result.Error)
	}
	metrics.NotificationEvents.WithLabelValues("read_all").Inc()

	s.broadcast(userID, realtime.EventNotificationsRead, nil)
	return result.RowsAffected, nil
}

// ClearAll deletes every notification of the user.
func (s *NotificationService) ClearAll(ctx context.Context, userID string) (int64, error) {
	result := s.db.WithContext(ensureContext(ctx)).
		Where("user_id = ?", userID).
		Delete(&models.Notification{})
	if result.Error != nil {
		return 0, fmt.Errorf("notification service: clear notifications: %w", result.Error)
	}
	metrics.NotificationEvents.WithLabelValues("cleared").Inc()

	s.broadcast(userID, realtime.EventNotificationsClear, nil)
	return result.RowsAffected, nil
}

// Delete removes a notification owned by the supplied user.
func (s *NotificationService) Delete(ctx context.Context, userID, notificationID string) error {
	result := s.db.WithContext(ensureContext(ctx)).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Delete(&models.Notification{})
	if result.Error != nil {
		return fmt.Errorf("notification service: delete notification: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrNotFound
	}
	metrics.NotificationEvents.WithLabelValues("deleted").Inc()

	s.broadcast(userID, realtime.EventNotificationDeleted, &NotificationEventPayload{NotificationID: notificationID})
	return nil
}

func (s *NotificationService) broadcast(userID, event string, payload *NotificationEventPayload) {
	if s.hub == nil {
		return
	}
	message := realtime.Message{Stream: realtime.StreamNotifications, Event: event}
	if payload != nil {
		message.Data = payload
	}
	s.hub.BroadcastToUser(realtime.StreamNotifications, userID, message)
}

func mapNotificationRows(rows []models.Notification) []NotificationDTO {
	items := make([]NotificationDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapNotification(row))
	}
	return items
}

func mapNotification(row models.Notification) NotificationDTO {
	return NotificationDTO{
		ID:            row.ID,
		UserID:        row.UserID,
		Title:         row.Title,
		Message:       row.Message,
		Type:          defaultIfEmpty(row.Type, string(notifications.KindInfo)),
		Read:          row.Read,
		ReferenceType: derefString(row.ReferenceType),
		ReferenceID:   derefString(row.ReferenceID),
		Metadata:      decodeJSON(row.Metadata),
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
}

func decodeJSON(data datatypes.JSON) map[string]any {
	if len(data) == 0 {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}

// PurgeReadOlderThan deletes read notifications created before now minus
// the given number of days. Unread rows are never purged.
func (s *NotificationService) PurgeReadOlderThan(ctx context.Context, days int, now time.Time) (int64, error) {
	if days <= 0 {
		return 0, nil
	}
	cutoff := now.UTC().AddDate(0, 0, -days)
	result := s.db.WithContext(ensureContext(ctx)).
		Where("is_read = ? AND created_at < ?", true, cutoff).
		Delete(&models.Notification{})
	if result.Error != nil {
		return 0, fmt.Errorf("notification service: purge read notifications: %w", result.Error)
	}
	return result.RowsAffected, nil
}
