package models

import "time"

// NotificationType distinguishes regular event notifications from sweeps
type NotificationType string

const (
	NotificationSystem NotificationType = "system"
	NotificationAlert  NotificationType = "alert"
	NotificationDigest NotificationType = "digest"
)

// Notification is an in-app message addressed to a single user
type Notification struct {
	ID          uint             `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time        `gorm:"index" json:"created_at"`
	UserID      uint             `gorm:"not null;index" json:"user_id"`
	ComplaintID *uint            `gorm:"index" json:"complaint_id,omitempty"`
	Title       string           `gorm:"size:200;not null" json:"title"`
	Message     string           `gorm:"type:text" json:"message"`
	IsRead      bool             `gorm:"default:false;index" json:"is_read"`
	Type        NotificationType `gorm:"column:notification_type;type:varchar(20);default:'system'" json:"notification_type"`
}
