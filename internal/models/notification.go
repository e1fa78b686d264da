package models

import "time"

// Notification types.
const (
	NotificationTypeInfo     = "info"
	NotificationTypeWarning  = "warning"
	NotificationTypeTraining = "training"
	NotificationTypeAudit    = "audit"
)

// Notification is an in-app message targeted to a specific user.
type Notification struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	UserID     uint       `gorm:"not null;index:idx_notification_inbox,priority:1" json:"user_id"`
	Title      string     `gorm:"size:255;not null" json:"title"`
	Message    string     `gorm:"type:text" json:"message"`
	Type       string     `gorm:"size:32;not null;default:info" json:"type"`
	Priority   string     `gorm:"size:16;not null;default:medium" json:"priority"`
	KPIScoreID *uint      `gorm:"index" json:"kpi_score_id,omitempty"`
	IsRead     bool       `gorm:"not null;default:false;index:idx_notification_inbox,priority:2" json:"is_read"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
	SentBy     string     `gorm:"size:64" json:"sent_by"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
