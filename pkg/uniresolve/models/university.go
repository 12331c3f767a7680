package models

import (
	"time"

	"gorm.io/gorm"
)

// University is the tenant root. Every user, department and complaint belongs
// to exactly one university.
type University struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Name      string         `gorm:"not null" json:"name"`
	Code      string         `gorm:"uniqueIndex;not null" json:"code"` // Short identifier, e.g. "DEMO"
	Domain    string         `gorm:"not null" json:"domain"`           // Email domain, e.g. "demo.edu"
	Address   string         `json:"address,omitempty"`
	Phone     string         `json:"phone,omitempty"`
	Email     string         `json:"email,omitempty"`
	Timezone  string         `gorm:"default:'UTC'" json:"timezone"`
	IsActive  bool           `gorm:"default:true" json:"is_active"`

	// Relationships
	Departments []Department `gorm:"foreignKey:UniversityID" json:"departments,omitempty"`
}
