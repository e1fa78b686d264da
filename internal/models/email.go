package models

import (
	"time"

	"gorm.io/datatypes"
)

// Email delivery statuses.
const (
	EmailStatusPending   = "pending"
	EmailStatusSent      = "sent"
	EmailStatusDelivered = "delivered"
	EmailStatusFailed    = "failed"
)

// EmailLog records one attempted send. Rows are append-only apart from resend status updates.
type EmailLog struct {
	ID                   uint              `gorm:"primaryKey" json:"id"`
	RecipientEmail       string            `gorm:"size:255;not null;index" json:"recipient_email"`
	RecipientName        string            `gorm:"size:255" json:"recipient_name"`
	RecipientRole        string            `gorm:"size:64" json:"recipient_role"`
	TemplateType         string            `gorm:"size:64;not null;index" json:"template_type"`
	Subject              string            `gorm:"size:255" json:"subject"`
	Status               string            `gorm:"size:16;not null;default:pending;index" json:"status"`
	ErrorMessage         string            `gorm:"type:text" json:"error_message,omitempty"`
	MessageID            string            `gorm:"size:64" json:"message_id,omitempty"`
	Attempts             int               `gorm:"not null;default:0" json:"attempts"`
	KPITriggerID         *uint             `gorm:"index" json:"kpi_trigger_id,omitempty"`
	TrainingAssignmentID *uint             `gorm:"index" json:"training_assignment_id,omitempty"`
	AuditScheduleID      *uint             `gorm:"index" json:"audit_schedule_id,omitempty"`
	Variables            datatypes.JSONMap `gorm:"type:json" json:"-"`
	SentAt               *time.Time        `json:"sent_at,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// EmailTemplate stores an editable subject/body pair for one template type.
type EmailTemplate struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	TemplateType string    `gorm:"size:64;uniqueIndex;not null" json:"template_type"`
	Subject      string    `gorm:"size:255;not null" json:"subject"`
	Body         string    `gorm:"type:text;not null" json:"body"`
	IsActive     bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RecipientGroup maps a role tag to a list of addresses.
type RecipientGroup struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Role      string    `gorm:"size:64;not null;index" json:"role"`
	Name      string    `gorm:"size:255" json:"name"`
	Email     string    `gorm:"size:255;not null" json:"email"`
	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
