package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// KPIScore is one evaluation of a user for a period.
type KPIScore struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	UserID              uint      `gorm:"not null;index:idx_kpi_user_period" json:"user_id"`
	Period              string    `gorm:"size:16;not null;index:idx_kpi_user_period" json:"period"`
	TotalCases          int       `json:"total_cases"`
	TAT                 *float64  `json:"tat"`
	MajorNegativity     *float64  `json:"major_negativity"`
	Quality             *float64  `json:"quality"`
	NeighborCheck       *float64  `json:"neighbor_check"`
	Negativity          *float64  `json:"negativity"`
	AppUsage            *float64  `json:"app_usage"`
	Insufficiency       *float64  `json:"insufficiency"`
	OverallScore        float64   `gorm:"not null;default:0" json:"overall_score"`
	Rating              string    `gorm:"size:32;index" json:"rating"`
	ConfigVersion       int       `json:"config_version"`
	TriggeredActionsRaw string    `gorm:"column:triggered_actions;type:text" json:"-"`
	IsActive            bool      `gorm:"not null;default:true;index" json:"is_active"`
	SubmittedBy         uint      `json:"submitted_by"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
	TriggeredActions    []string  `gorm:"-" json:"triggered_actions"`
	User                *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// BeforeSave flattens the action tags into their storage column.
func (k *KPIScore) BeforeSave(tx *gorm.DB) error {
	k.TriggeredActionsRaw = encodeTags(k.TriggeredActions)
	return nil
}

// AfterFind hydrates the action tags after retrieval.
func (k *KPIScore) AfterFind(tx *gorm.DB) error {
	k.TriggeredActions = decodeTags(k.TriggeredActionsRaw)
	return nil
}

func encodeTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	cleaned := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		trimmed := strings.TrimSpace(strings.ToLower(tag))
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		cleaned = append(cleaned, trimmed)
	}
	return strings.Join(cleaned, ",")
}

func decodeTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			tags = append(tags, trimmed)
		}
	}
	return tags
}
