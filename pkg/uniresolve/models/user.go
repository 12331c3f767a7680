package models

import (
	"time"

	"gorm.io/gorm"
)

// Role represents a user's role within their university
type Role string

const (
	RoleStudent    Role = "student"
	RoleStaff      Role = "staff"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleStaff, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// User represents an account. A user belongs to exactly one university.
type User struct {
	ID           uint           `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
	Email        string         `gorm:"uniqueIndex;not null" json:"email"`
	Username     string         `gorm:"uniqueIndex;not null" json:"username"`
	FullName     string         `gorm:"not null" json:"full_name"`
	PasswordHash string         `json:"-"`
	Role         Role           `gorm:"type:varchar(20);default:'student';index" json:"role"`
	UniversityID uint           `gorm:"not null;index" json:"university_id"`
	DepartmentID *uint          `gorm:"index" json:"department_id,omitempty"`
	StudentID    string         `json:"student_id,omitempty"`
	EmployeeID   string         `json:"employee_id,omitempty"`
	Phone        string         `json:"phone,omitempty"`
	IsActive     bool           `gorm:"default:true" json:"is_active"`
	IsVerified   bool           `gorm:"default:false" json:"is_verified"`
	LastLoginAt  *time.Time     `json:"last_login_at,omitempty"`
}
