package models

import (
	"time"

	"gorm.io/gorm"
)

// Department is an organisational unit inside a university. Department codes
// are unique per university.
type Department struct {
	ID           uint           `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
	UniversityID uint           `gorm:"not null;uniqueIndex:idx_university_department_code" json:"university_id"`
	Name         string         `gorm:"not null" json:"name"`
	Code         string         `gorm:"not null;uniqueIndex:idx_university_department_code" json:"code"`
	Description  string         `json:"description,omitempty"`
	HeadID       *uint          `json:"head_id,omitempty"`
	Email        string         `json:"email,omitempty"`
	Phone        string         `json:"phone,omitempty"`
	IsActive     bool           `gorm:"default:true" json:"is_active"`
}
