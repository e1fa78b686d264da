package dto

import (
	"time"

	"github.com/noah-isme/kpi-ops-api/internal/models"
)

// NotificationCreateRequest describes the payload to create a notification.
type NotificationCreateRequest struct {
	UserID     uint   `json:"user_id" validate:"required"`
	Title      string `json:"title" validate:"required,min=1,max=255"`
	Message    string `json:"message" validate:"required,min=1,max=2000"`
	Type       string `json:"type" validate:"required,oneof=info warning training audit"`
	Priority   string `json:"priority" validate:"omitempty,oneof=low medium high critical"`
	KPIScoreID *uint  `json:"kpi_score_id"`
	SentBy     string `json:"-"`
}

// NotificationResponse represents notification data returned to clients.
type NotificationResponse struct {
	ID         uint       `json:"id"`
	UserID     uint       `json:"user_id"`
	Title      string     `json:"title"`
	Message    string     `json:"message"`
	Type       string     `json:"type"`
	Priority   string     `json:"priority"`
	KPIScoreID *uint      `json:"kpi_score_id,omitempty"`
	IsRead     bool       `json:"is_read"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
	SentBy     string     `json:"sent_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// NotificationInboxMeta accompanies an inbox listing.
type NotificationInboxMeta struct {
	Unread int64 `json:"unread"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

// NewNotificationResponse converts a model into a DTO.
func NewNotificationResponse(notification models.Notification) NotificationResponse {
	return NotificationResponse{
		ID:         notification.ID,
		UserID:     notification.UserID,
		Title:      notification.Title,
		Message:    notification.Message,
		Type:       notification.Type,
		Priority:   notification.Priority,
		KPIScoreID: notification.KPIScoreID,
		IsRead:     notification.IsRead,
		ReadAt:     notification.ReadAt,
		SentBy:     notification.SentBy,
		CreatedAt:  notification.CreatedAt,
	}
}

// NewNotificationResponseSlice converts a slice of models into DTOs.
func NewNotificationResponseSlice(notifications []models.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(notifications))
	for _, notification := range notifications {
		out = append(out, NewNotificationResponse(notification))
	}
	return out
}
