package models

import (
	"time"

	"gorm.io/datatypes"
)

// KPIConfiguration is one persisted version of the KPI rule table.
type KPIConfiguration struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Version   int            `gorm:"not null;uniqueIndex" json:"version"`
	Name      string         `gorm:"size:255" json:"name"`
	Rules     datatypes.JSON `gorm:"type:json;not null" json:"rules"`
	IsActive  bool           `gorm:"not null;default:false;index" json:"is_active"`
	CreatedBy uint           `json:"created_by"`
	CreatedAt time.Time      `json:"created_at"`
}
