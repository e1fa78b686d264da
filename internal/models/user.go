package models

import "time"

// User is a member of staff who can be scored, trained, audited or notified.
type User struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Name       string    `gorm:"size:255;not null" json:"name"`
	Email      string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	EmployeeID string    `gorm:"size:64;index" json:"employee_id"`
	Role       string    `gorm:"size:64;index" json:"role"`
	IsActive   bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
