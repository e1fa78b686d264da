package models

import (
	"time"

	"gorm.io/datatypes"
)

// Lifecycle event categories.
const (
	LifecycleCategoryPositive  = "positive"
	LifecycleCategoryNegative  = "negative"
	LifecycleCategoryNeutral   = "neutral"
	LifecycleCategoryMilestone = "milestone"
)

// Lifecycle event types emitted by the KPI pipeline.
const (
	LifecycleTypeKPIEvaluated      = "kpi_evaluated"
	LifecycleTypeWarning           = "warning"
	LifecycleTypeRewardEligible    = "reward_eligible"
	LifecycleTypeTrainingCompleted = "training_completed"
	LifecycleTypeAuditCompleted    = "audit_completed"
)

// LifecycleEvent is an append-only timeline entry for a user.
type LifecycleEvent struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	UserID      uint              `gorm:"not null;index" json:"user_id"`
	Type        string            `gorm:"size:64;not null;index" json:"type"`
	Title       string            `gorm:"size:255;not null" json:"title"`
	Description string            `gorm:"type:text" json:"description"`
	Category    string            `gorm:"size:16;not null" json:"category"`
	KPIScoreID  *uint             `gorm:"index" json:"kpi_score_id,omitempty"`
	Metadata    datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedBy   string            `gorm:"size:64" json:"created_by"`
	CreatedAt   time.Time         `json:"created_at"`
}
