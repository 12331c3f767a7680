// Package activity is the append-only audit log of complaint mutations.
// Entries are written with the same transaction handle as the mutation they
// describe, so a rolled back mutation leaves no history behind.
package activity

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/uniresolve/uniresolve/pkg/uniresolve/models"
)

// Entry describes one audit record. OldValue and NewValue are set only for
// single-field changes.
type Entry struct {
	ComplaintID uint
	UserID      uint
	Action      models.ActivityAction
	Description string
	OldValue    *string
	NewValue    *string
}

// Change returns an Entry carrying the old and new value of a single field.
func Change(complaintID, userID uint, action models.ActivityAction, description, oldValue, newValue string) Entry {
	return Entry{
		ComplaintID: complaintID,
		UserID:      userID,
		Action:      action,
		Description: description,
		OldValue:    &oldValue,
		NewValue:    &newValue,
	}
}

// Record appends e using tx.
func Record(tx *gorm.DB, e Entry) error {
	if e.ComplaintID == 0 || e.UserID == 0 || e.Action == "" {
		return fmt.Errorf("activity: incomplete entry %+v", e)
	}
	row := models.Activity{
		ComplaintID: e.ComplaintID,
		UserID:      e.UserID,
		Action:      e.Action,
		Description: e.Description,
		OldValue:    e.OldValue,
		NewValue:    e.NewValue,
	}
	if err := tx.Create(&row).Error; err != nil {
		return fmt.Errorf("record %s: %w", e.Action, err)
	}
	return nil
}

// ForComplaint returns a complaint's history, oldest first.
func ForComplaint(db *gorm.DB, complaintID uint) ([]models.Activity, error) {
	var rows []models.Activity
	err := db.Where("complaint_id = ?", complaintID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

// OnComplaintsOf returns activities since the given time on complaints filed
// by ownerID, excluding the owner's own actions.
func OnComplaintsOf(db *gorm.DB, ownerID uint, since time.Time) ([]models.Activity, error) {
	var rows []models.Activity
	err := db.Joins("JOIN complaints ON complaints.id = activities.complaint_id").
		Where("complaints.complainant_id = ? AND activities.user_id <> ? AND activities.created_at >= ?", ownerID, ownerID, since).
		Order("activities.created_at ASC").
		Find(&rows).Error
	return rows, err
}
