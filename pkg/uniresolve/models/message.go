package models

import "time"

// Message is a comment on a complaint. Internal messages are visible to
// staff-tier users only.
type Message struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	ComplaintID uint      `gorm:"not null;index" json:"complaint_id"`
	SenderID    uint      `gorm:"not null" json:"sender_id"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	IsInternal  bool      `gorm:"default:false" json:"is_internal"`

	// Relationships
	Sender User `gorm:"foreignKey:SenderID" json:"-"`
}
