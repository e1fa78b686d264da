package models

import "time"

// Training assignment statuses.
const (
	TrainingStatusAssigned   = "assigned"
	TrainingStatusInProgress = "in_progress"
	TrainingStatusCompleted  = "completed"
	TrainingStatusOverdue    = "overdue"
	TrainingStatusCancelled  = "cancelled"
)

// Training assignment origins.
const (
	AssignedByManual     = "manual"
	AssignedByKPITrigger = "kpi_trigger"
)

// TrainingAssignment is one remedial training obligation.
type TrainingAssignment struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	UserID       uint       `gorm:"not null;index" json:"user_id"`
	TrainingType string     `gorm:"size:64;not null;index" json:"training_type"`
	AssignedBy   string     `gorm:"size:32;not null;default:manual" json:"assigned_by"`
	AssignedByID *uint      `json:"assigned_by_id,omitempty"`
	KPITriggerID *uint      `gorm:"index" json:"kpi_trigger_id,omitempty"`
	DueDate      time.Time  `gorm:"not null" json:"due_date"`
	Status       string     `gorm:"size:32;not null;default:assigned;index" json:"status"`
	Priority     string     `gorm:"size:16" json:"priority"`
	Score        *float64   `json:"score,omitempty"`
	Notes        string     `gorm:"type:text" json:"notes"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	IsActive     bool       `gorm:"not null;default:true;index" json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// IsOpen reports whether the assignment still blocks a new one of the same type.
func (t TrainingAssignment) IsOpen() bool {
	if !t.IsActive {
		return false
	}
	switch t.Status {
	case TrainingStatusCompleted, TrainingStatusCancelled:
		return false
	}
	return true
}

// IsPastDue returns true when the due date has passed and the training is unfinished.
func (t TrainingAssignment) IsPastDue(reference time.Time) bool {
	return t.IsOpen() && reference.After(t.DueDate)
}
