package models

import "time"

// Audit schedule statuses.
const (
	AuditStatusScheduled  = "scheduled"
	AuditStatusInProgress = "in_progress"
	AuditStatusCompleted  = "completed"
	AuditStatusCancelled  = "cancelled"
)

// Audit types.
const (
	AuditTypeAuditCall  = "audit_call"
	AuditTypeCrossCheck = "cross_check"
	AuditTypeDummyAudit = "dummy_audit"
	AuditTypeRCA        = "rca"
)

// AuditSchedule is one scheduled compliance audit.
type AuditSchedule struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	UserID           uint       `gorm:"not null;index" json:"user_id"`
	AuditType        string     `gorm:"size:32;not null;index" json:"audit_type"`
	KPITriggerID     *uint      `gorm:"index" json:"kpi_trigger_id,omitempty"`
	ScheduledDate    time.Time  `gorm:"not null" json:"scheduled_date"`
	Priority         string     `gorm:"size:16;not null;default:medium" json:"priority"`
	AuditScope       string     `gorm:"size:255" json:"audit_scope"`
	AuditMethod      string     `gorm:"size:64" json:"audit_method"`
	Status           string     `gorm:"size:32;not null;default:scheduled;index" json:"status"`
	Findings         string     `gorm:"type:text" json:"findings"`
	RiskLevel        string     `gorm:"size:16" json:"risk_level"`
	ComplianceStatus string     `gorm:"size:32" json:"compliance_status"`
	AssignedTo       *uint      `json:"assigned_to,omitempty"`
	AssignedBy       string     `gorm:"size:32;not null;default:manual" json:"assigned_by"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	IsActive         bool       `gorm:"not null;default:true;index" json:"is_active"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// IsOpen reports whether the audit has not reached a terminal state.
func (a AuditSchedule) IsOpen() bool {
	if !a.IsActive {
		return false
	}
	switch a.Status {
	case AuditStatusCompleted, AuditStatusCancelled:
		return false
	}
	return true
}
