package models

import "time"

// Attachment is a file uploaded against a complaint. FilePath is the key in
// the configured file store and is never exposed.
type Attachment struct {
	ID               uint      `gorm:"primarykey" json:"id"`
	CreatedAt        time.Time `json:"created_at"`
	ComplaintID      uint      `gorm:"not null;index" json:"complaint_id"`
	UploadedByID     uint      `gorm:"not null" json:"uploaded_by_id"`
	Filename         string    `gorm:"not null" json:"filename"`
	OriginalFilename string    `gorm:"not null" json:"original_filename"`
	FilePath         string    `gorm:"not null" json:"-"`
	FileSize         int64     `json:"file_size"`
	MimeType         string    `json:"mime_type"`
}
