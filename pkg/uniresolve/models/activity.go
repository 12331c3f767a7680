package models

import "time"

// ActivityAction tags an entry in a complaint's history
type ActivityAction string

const (
	ActionComplaintCreated  ActivityAction = "complaint_created"
	ActionComplaintUpdated  ActivityAction = "complaint_updated"
	ActionStatusChanged     ActivityAction = "status_changed"
	ActionPriorityChanged   ActivityAction = "priority_changed"
	ActionResolutionUpdated ActivityAction = "resolution_updated"
	ActionComplaintAssigned ActivityAction = "complaint_assigned"
	ActionMessageAdded      ActivityAction = "message_added"
	ActionFileUploaded      ActivityAction = "file_uploaded"
	ActionComplaintRated    ActivityAction = "complaint_rated"
)

// Activity is an append-only audit record. Rows are never updated or deleted.
type Activity struct {
	ID          uint           `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`
	ComplaintID uint           `gorm:"not null;index" json:"complaint_id"`
	UserID      uint           `gorm:"not null;index" json:"user_id"`
	Action      ActivityAction `gorm:"type:varchar(40);not null" json:"action"`
	Description string         `json:"description"`
	OldValue    *string        `json:"old_value,omitempty"`
	NewValue    *string        `json:"new_value,omitempty"`
}
